package playapi

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/CaioWing/apkharbor/internal/domain"
)

// LazyClient resolves credentials on the first remote call, so local
// validation and file discovery can fail without touching the network.
// A failed resolution is retried on the next call.
type LazyClient struct {
	cfg Config
	log *slog.Logger

	mu     sync.Mutex
	client *Client
}

var _ domain.PublisherClient = (*LazyClient)(nil)

func NewLazy(cfg Config, log *slog.Logger) *LazyClient {
	return &LazyClient{cfg: cfg, log: log}
}

func (c *LazyClient) connect(ctx context.Context) (*Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return c.client, nil
	}
	client, err := New(ctx, c.cfg, c.log)
	if err != nil {
		return nil, err
	}
	c.client = client
	return client, nil
}

func (c *LazyClient) CreateEdit(ctx context.Context, applicationID string) (*domain.EditSession, error) {
	client, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	return client.CreateEdit(ctx, applicationID)
}

func (c *LazyClient) CommitEdit(ctx context.Context, s *domain.EditSession) error {
	client, err := c.connect(ctx)
	if err != nil {
		return err
	}
	return client.CommitEdit(ctx, s)
}

func (c *LazyClient) ListAPKs(ctx context.Context, s *domain.EditSession) ([]domain.RemoteBinary, error) {
	client, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	return client.ListAPKs(ctx, s)
}

func (c *LazyClient) ListBundles(ctx context.Context, s *domain.EditSession) ([]domain.RemoteBinary, error) {
	client, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	return client.ListBundles(ctx, s)
}

func (c *LazyClient) UploadAPK(ctx context.Context, s *domain.EditSession, r io.Reader) (*domain.RemoteBinary, error) {
	client, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	return client.UploadAPK(ctx, s, r)
}

func (c *LazyClient) UploadBundle(ctx context.Context, s *domain.EditSession, r io.Reader) (*domain.RemoteBinary, error) {
	client, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	return client.UploadBundle(ctx, s, r)
}

func (c *LazyClient) UploadDeobfuscation(ctx context.Context, s *domain.EditSession, versionCode int64, r io.Reader) error {
	client, err := c.connect(ctx)
	if err != nil {
		return err
	}
	return client.UploadDeobfuscation(ctx, s, versionCode, r)
}

func (c *LazyClient) GetExpansionFile(ctx context.Context, s *domain.EditSession, versionCode int64, t domain.ExpansionType) (*domain.RemoteExpansionFile, error) {
	client, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	return client.GetExpansionFile(ctx, s, versionCode, t)
}

func (c *LazyClient) UploadExpansionFile(ctx context.Context, s *domain.EditSession, versionCode int64, t domain.ExpansionType, r io.Reader) error {
	client, err := c.connect(ctx)
	if err != nil {
		return err
	}
	return client.UploadExpansionFile(ctx, s, versionCode, t, r)
}

func (c *LazyClient) ReferenceExpansionFile(ctx context.Context, s *domain.EditSession, versionCode int64, t domain.ExpansionType, referencesVersion int64) error {
	client, err := c.connect(ctx)
	if err != nil {
		return err
	}
	return client.ReferenceExpansionFile(ctx, s, versionCode, t, referencesVersion)
}

func (c *LazyClient) UpdateTrack(ctx context.Context, s *domain.EditSession, track domain.Track, release domain.ReleaseDescriptor) (*domain.ReleaseDescriptor, error) {
	client, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	return client.UpdateTrack(ctx, s, track, release)
}
