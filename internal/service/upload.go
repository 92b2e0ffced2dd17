package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/CaioWing/apkharbor/internal/domain"
)

type UploadState string

const (
	StateIdle                  UploadState = "idle"
	StateSessionOpened         UploadState = "session_opened"
	StateExistingStateFetched  UploadState = "existing_state_fetched"
	StateUploading             UploadState = "uploading"
	StateExpansionFilesHandled UploadState = "expansion_files_handled"
	StateTrackAssigned         UploadState = "track_assigned"
	StateCommitting            UploadState = "committing"
	StateCommitted             UploadState = "committed"
	StateCommitUncertain       UploadState = "commit_uncertain"
	StateFailed                UploadState = "failed"
)

// FileSource opens the local files named by upload candidates, mapping
// files and expansion files.
type FileSource interface {
	Open(path string) (io.ReadCloser, error)
	Size(path string) (int64, error)
}

type UploadRequest struct {
	ApplicationID       string
	Candidates          []*domain.UploadCandidate
	Expansion           domain.ExpansionFiles
	ReuseExpansion      bool
	Track               domain.Track
	RolloutFraction     *float64
	ReleaseName         string
	ReleaseNotes        map[string]string
	InAppUpdatePriority *int64
}

type UploadResult struct {
	State        UploadState
	Session      *domain.EditSession
	VersionCodes []int64
	Release      *domain.ReleaseDescriptor
	Recovered    bool
}

// Uploader runs one upload from session creation to commit. It holds no
// state between runs.
type Uploader struct {
	client   domain.PublisherClient
	sessions *SessionManager
	tracks   *TrackAssigner
	log      *slog.Logger
}

func NewUploader(client domain.PublisherClient, log *slog.Logger) *Uploader {
	return &Uploader{
		client:   client,
		sessions: NewSessionManager(client, log),
		tracks:   NewTrackAssigner(client, log),
		log:      log,
	}
}

// uploadRun is the state of a single Upload call.
type uploadRun struct {
	req    UploadRequest
	files  FileSource
	result *UploadResult

	session *domain.EditSession
	// hashes of binaries already present in the edit, lowercase
	existingHashes map[string]int64
	// pre-existing APK version codes, candidates for expansion reuse
	existingAPKs []int64
	uploadedAPKs []int64
}

// Upload performs req against a fresh edit. The returned result is never
// nil; on error its State tells how far the run got.
func (u *Uploader) Upload(ctx context.Context, files FileSource, req UploadRequest) (*UploadResult, error) {
	run := &uploadRun{
		req:    req,
		files:  files,
		result: &UploadResult{State: StateIdle},
	}

	if err := u.upload(ctx, run); err != nil {
		if run.result.State != StateCommitUncertain {
			run.result.State = StateFailed
		}
		return run.result, err
	}
	return run.result, nil
}

func (u *Uploader) upload(ctx context.Context, run *uploadRun) error {
	if len(run.req.Candidates) == 0 {
		return fmt.Errorf("%w: nothing to upload", domain.ErrDiscovery)
	}

	session, err := u.sessions.Open(ctx, run.req.ApplicationID)
	if err != nil {
		return err
	}
	run.session = session
	run.result.Session = session
	run.result.State = StateSessionOpened

	if err := u.fetchExisting(ctx, run); err != nil {
		return err
	}
	run.result.State = StateExistingStateFetched

	run.result.State = StateUploading
	for _, c := range run.req.Candidates {
		if err := u.uploadCandidate(ctx, run, c); err != nil {
			return err
		}
	}

	if err := u.handleExpansionFiles(ctx, run); err != nil {
		return err
	}
	run.result.State = StateExpansionFilesHandled

	descriptor := domain.NewReleaseDescriptor(run.result.VersionCodes, nil, run.req.ReleaseNotes)
	descriptor.Name = run.req.ReleaseName
	descriptor.InAppUpdatePriority = run.req.InAppUpdatePriority

	release, err := u.tracks.Assign(ctx, session, run.req.Track, run.req.RolloutFraction, descriptor)
	if err != nil {
		return err
	}
	run.result.Release = release
	run.result.State = StateTrackAssigned

	run.result.State = StateCommitting
	recovered, err := u.sessions.CommitWithRecovery(ctx, session, run.result.VersionCodes)
	if err != nil {
		if errors.Is(err, domain.ErrAmbiguousResponse) {
			run.result.State = StateCommitUncertain
		}
		return err
	}
	run.result.Recovered = recovered
	run.result.State = StateCommitted
	return nil
}

func (u *Uploader) fetchExisting(ctx context.Context, run *uploadRun) error {
	apks, err := u.client.ListAPKs(ctx, run.session)
	if err != nil {
		return fmt.Errorf("list existing apks: %w", err)
	}
	bundles, err := u.client.ListBundles(ctx, run.session)
	if err != nil {
		return fmt.Errorf("list existing bundles: %w", err)
	}

	run.existingHashes = make(map[string]int64, len(apks)+len(bundles))
	for _, b := range apks {
		run.existingHashes[strings.ToLower(b.SHA256)] = b.VersionCode
		run.existingAPKs = append(run.existingAPKs, b.VersionCode)
	}
	for _, b := range bundles {
		run.existingHashes[strings.ToLower(b.SHA256)] = b.VersionCode
	}

	u.log.Debug("existing binaries fetched", "apks", len(apks), "bundles", len(bundles))
	return nil
}

func (u *Uploader) uploadCandidate(ctx context.Context, run *uploadRun, c *domain.UploadCandidate) error {
	hash, err := c.Hash(run.files.Open)
	if err != nil {
		return err
	}
	if vc, ok := run.existingHashes[strings.ToLower(hash)]; ok {
		return fmt.Errorf("%w: %s has the same SHA-256 as version code %d", domain.ErrDuplicateArtifact, c.Path, vc)
	}

	format := c.Metadata.Format
	if format == "" || format == domain.FormatUnknown {
		format = domain.FormatFromPath(c.Path)
	}

	f, err := run.files.Open(c.Path)
	if err != nil {
		return fmt.Errorf("open %s: %w", c.Path, err)
	}
	defer f.Close()

	u.log.Info("uploading binary", "path", c.Path, "format", format, "sha256", hash)

	var uploaded *domain.RemoteBinary
	switch format {
	case domain.FormatAPK:
		uploaded, err = u.client.UploadAPK(ctx, run.session, f)
	case domain.FormatBundle:
		uploaded, err = u.client.UploadBundle(ctx, run.session, f)
	default:
		return fmt.Errorf("%w: %s is neither an APK nor an app bundle", domain.ErrDiscovery, c.Path)
	}
	if err != nil {
		return fmt.Errorf("upload %s: %w", c.Path, err)
	}

	run.result.VersionCodes = append(run.result.VersionCodes, uploaded.VersionCode)
	if format == domain.FormatAPK {
		run.uploadedAPKs = append(run.uploadedAPKs, uploaded.VersionCode)
	}
	u.log.Info("binary uploaded", "path", c.Path, "version_code", uploaded.VersionCode)

	return u.uploadMapping(ctx, run, c, uploaded.VersionCode)
}

func (u *Uploader) uploadMapping(ctx context.Context, run *uploadRun, c *domain.UploadCandidate, versionCode int64) error {
	if c.MappingFile == "" {
		return nil
	}

	size, err := run.files.Size(c.MappingFile)
	if err != nil {
		return fmt.Errorf("stat mapping file %s: %w", c.MappingFile, err)
	}
	if size == 0 {
		u.log.Info("skipping empty mapping file", "path", c.MappingFile, "version_code", versionCode)
		return nil
	}

	f, err := run.files.Open(c.MappingFile)
	if err != nil {
		return fmt.Errorf("open mapping file %s: %w", c.MappingFile, err)
	}
	defer f.Close()

	if err := u.client.UploadDeobfuscation(ctx, run.session, versionCode, f); err != nil {
		return fmt.Errorf("upload mapping file %s: %w", c.MappingFile, err)
	}
	u.log.Info("mapping file uploaded", "path", c.MappingFile, "version_code", versionCode)
	return nil
}

func (u *Uploader) handleExpansionFiles(ctx context.Context, run *uploadRun) error {
	configured := len(run.req.Expansion) > 0
	if !configured && !run.req.ReuseExpansion {
		return nil
	}
	if len(run.uploadedAPKs) == 0 {
		u.log.Warn("expansion files are only supported for APKs, ignoring expansion settings")
		return nil
	}
	if len(run.uploadedAPKs) < len(run.result.VersionCodes) && configured {
		u.log.Warn("expansion files are ignored for app bundles")
	}

	codes := append([]int64(nil), run.uploadedAPKs...)
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })

	// latest version code carrying real bytes per type; 0 means none
	latest := map[domain.ExpansionType]int64{}
	if run.req.ReuseExpansion {
		var err error
		if latest, err = u.latestRemoteExpansionFiles(ctx, run); err != nil {
			return err
		}
	}

	for _, vc := range codes {
		set := run.req.Expansion[vc]
		for _, t := range domain.ExpansionTypes {
			if file := set.Get(t); file != nil {
				if err := u.uploadExpansionFile(ctx, run, file); err != nil {
					return err
				}
				latest[t] = vc
				continue
			}

			ref := latest[t]
			if !run.req.ReuseExpansion || ref == 0 {
				continue
			}
			if err := u.client.ReferenceExpansionFile(ctx, run.session, vc, t, ref); err != nil {
				return fmt.Errorf("reference %s expansion file of version code %d from %d: %w", t, vc, ref, err)
			}
			u.log.Info("expansion file reused", "type", t, "version_code", vc, "references", ref)
		}
	}
	return nil
}

// latestRemoteExpansionFiles finds, per type, the highest pre-existing APK
// version code holding an uploaded expansion file. A missing file is a
// normal outcome.
func (u *Uploader) latestRemoteExpansionFiles(ctx context.Context, run *uploadRun) (map[domain.ExpansionType]int64, error) {
	codes := append([]int64(nil), run.existingAPKs...)
	sort.Slice(codes, func(i, j int) bool { return codes[i] > codes[j] })

	latest := map[domain.ExpansionType]int64{}
	for _, t := range domain.ExpansionTypes {
		for _, vc := range codes {
			remote, err := u.client.GetExpansionFile(ctx, run.session, vc, t)
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("get %s expansion file of version code %d: %w", t, vc, err)
			}
			if remote.IsReal() {
				latest[t] = vc
				break
			}
		}
	}

	u.log.Debug("latest remote expansion files", "main", latest[domain.ExpansionMain], "patch", latest[domain.ExpansionPatch])
	return latest, nil
}

func (u *Uploader) uploadExpansionFile(ctx context.Context, run *uploadRun, file *domain.ExpansionFile) error {
	f, err := run.files.Open(file.Path)
	if err != nil {
		return fmt.Errorf("open expansion file %s: %w", file.Path, err)
	}
	defer f.Close()

	if err := u.client.UploadExpansionFile(ctx, run.session, file.VersionCode, file.Type, f); err != nil {
		return fmt.Errorf("upload expansion file %s: %w", file.Path, err)
	}
	u.log.Info("expansion file uploaded", "path", file.Path, "type", file.Type, "version_code", file.VersionCode)
	return nil
}
