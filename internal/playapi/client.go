// Package playapi implements domain.PublisherClient on top of the Google
// Play Android Publisher v3 API.
package playapi

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/androidpublisher/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/CaioWing/apkharbor/internal/domain"
)

const (
	apkContentType    = "application/vnd.android.package-archive"
	binaryContentType = "application/octet-stream"

	deobfuscationTypeProguard = "proguard"
)

type Config struct {
	CredentialsFile string
	// Endpoint overrides the API base URL; empty means the public endpoint.
	Endpoint  string
	Timeout   time.Duration
	UserAgent string
}

type Client struct {
	svc *androidpublisher.Service
	log *slog.Logger
}

var _ domain.PublisherClient = (*Client)(nil)

// New resolves credentials and builds an authenticated client.
func New(ctx context.Context, cfg Config, log *slog.Logger) (*Client, error) {
	ts, err := LoadTokenSource(ctx, cfg.CredentialsFile)
	if err != nil {
		return nil, err
	}

	hc := oauth2.NewClient(ctx, ts)
	hc.Timeout = cfg.Timeout
	return NewWithHTTPClient(ctx, hc, cfg.Endpoint, cfg.UserAgent, log)
}

// NewWithHTTPClient builds a client around an already authenticated
// *http.Client.
func NewWithHTTPClient(ctx context.Context, hc *http.Client, endpoint, userAgent string, log *slog.Logger) (*Client, error) {
	opts := []option.ClientOption{option.WithHTTPClient(hc)}
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	if userAgent != "" {
		opts = append(opts, option.WithUserAgent(userAgent))
	}

	svc, err := androidpublisher.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: create publisher service: %v", domain.ErrAuthentication, err)
	}
	return &Client{svc: svc, log: log}, nil
}

func (c *Client) CreateEdit(ctx context.Context, applicationID string) (*domain.EditSession, error) {
	edit, err := c.svc.Edits.Insert(applicationID, &androidpublisher.AppEdit{}).Context(ctx).Do()
	if err != nil {
		return nil, translateError("edits.insert", err)
	}
	c.log.Debug("edit created", "app_id", applicationID, "edit_id", edit.Id)
	return &domain.EditSession{ApplicationID: applicationID, EditID: edit.Id}, nil
}

func (c *Client) CommitEdit(ctx context.Context, s *domain.EditSession) error {
	_, err := c.svc.Edits.Commit(s.ApplicationID, s.EditID).Context(ctx).Do()
	return translateError("edits.commit", err)
}

func (c *Client) ListAPKs(ctx context.Context, s *domain.EditSession) ([]domain.RemoteBinary, error) {
	resp, err := c.svc.Edits.Apks.List(s.ApplicationID, s.EditID).Context(ctx).Do()
	if err != nil {
		return nil, translateError("edits.apks.list", err)
	}

	out := make([]domain.RemoteBinary, 0, len(resp.Apks))
	for _, apk := range resp.Apks {
		out = append(out, apkBinary(apk))
	}
	return out, nil
}

func (c *Client) ListBundles(ctx context.Context, s *domain.EditSession) ([]domain.RemoteBinary, error) {
	resp, err := c.svc.Edits.Bundles.List(s.ApplicationID, s.EditID).Context(ctx).Do()
	if err != nil {
		return nil, translateError("edits.bundles.list", err)
	}

	out := make([]domain.RemoteBinary, 0, len(resp.Bundles))
	for _, b := range resp.Bundles {
		out = append(out, domain.RemoteBinary{VersionCode: b.VersionCode, SHA256: b.Sha256, Format: domain.FormatBundle})
	}
	return out, nil
}

func (c *Client) UploadAPK(ctx context.Context, s *domain.EditSession, r io.Reader) (*domain.RemoteBinary, error) {
	apk, err := c.svc.Edits.Apks.Upload(s.ApplicationID, s.EditID).
		Media(r, googleapi.ContentType(apkContentType)).
		Context(ctx).Do()
	if err != nil {
		return nil, translateError("edits.apks.upload", err)
	}
	b := apkBinary(apk)
	return &b, nil
}

func (c *Client) UploadBundle(ctx context.Context, s *domain.EditSession, r io.Reader) (*domain.RemoteBinary, error) {
	bundle, err := c.svc.Edits.Bundles.Upload(s.ApplicationID, s.EditID).
		Media(r, googleapi.ContentType(binaryContentType)).
		Context(ctx).Do()
	if err != nil {
		return nil, translateError("edits.bundles.upload", err)
	}
	return &domain.RemoteBinary{VersionCode: bundle.VersionCode, SHA256: bundle.Sha256, Format: domain.FormatBundle}, nil
}

func (c *Client) UploadDeobfuscation(ctx context.Context, s *domain.EditSession, versionCode int64, r io.Reader) error {
	_, err := c.svc.Edits.Deobfuscationfiles.Upload(s.ApplicationID, s.EditID, versionCode, deobfuscationTypeProguard).
		Media(r, googleapi.ContentType(binaryContentType)).
		Context(ctx).Do()
	return translateError("edits.deobfuscationfiles.upload", err)
}

func (c *Client) GetExpansionFile(ctx context.Context, s *domain.EditSession, versionCode int64, t domain.ExpansionType) (*domain.RemoteExpansionFile, error) {
	f, err := c.svc.Edits.Expansionfiles.Get(s.ApplicationID, s.EditID, versionCode, string(t)).Context(ctx).Do()
	if err != nil {
		return nil, translateError("edits.expansionfiles.get", err)
	}
	return &domain.RemoteExpansionFile{FileSize: f.FileSize, ReferencesVersion: f.ReferencesVersion}, nil
}

func (c *Client) UploadExpansionFile(ctx context.Context, s *domain.EditSession, versionCode int64, t domain.ExpansionType, r io.Reader) error {
	_, err := c.svc.Edits.Expansionfiles.Upload(s.ApplicationID, s.EditID, versionCode, string(t)).
		Media(r, googleapi.ContentType(binaryContentType)).
		Context(ctx).Do()
	return translateError("edits.expansionfiles.upload", err)
}

func (c *Client) ReferenceExpansionFile(ctx context.Context, s *domain.EditSession, versionCode int64, t domain.ExpansionType, referencesVersion int64) error {
	_, err := c.svc.Edits.Expansionfiles.Update(s.ApplicationID, s.EditID, versionCode, string(t),
		&androidpublisher.ExpansionFile{ReferencesVersion: referencesVersion}).
		Context(ctx).Do()
	return translateError("edits.expansionfiles.update", err)
}

func (c *Client) UpdateTrack(ctx context.Context, s *domain.EditSession, track domain.Track, release domain.ReleaseDescriptor) (*domain.ReleaseDescriptor, error) {
	payload := &androidpublisher.Track{
		Track:    track.String(),
		Releases: []*androidpublisher.TrackRelease{toTrackRelease(release)},
	}

	updated, err := c.svc.Edits.Tracks.Update(s.ApplicationID, s.EditID, track.String(), payload).Context(ctx).Do()
	if err != nil {
		return nil, translateError("edits.tracks.update", err)
	}
	if len(updated.Releases) == 0 {
		return &release, nil
	}
	confirmed := fromTrackRelease(updated.Releases[0])
	return &confirmed, nil
}

func apkBinary(apk *androidpublisher.Apk) domain.RemoteBinary {
	b := domain.RemoteBinary{VersionCode: apk.VersionCode, Format: domain.FormatAPK}
	if apk.Binary != nil {
		b.SHA256 = apk.Binary.Sha256
	}
	return b
}
