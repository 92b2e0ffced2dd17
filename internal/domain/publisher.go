package domain

import (
	"context"
	"io"
)

// PublisherClient is the remote publishing service. All calls except
// CreateEdit are scoped to an open edit session.
type PublisherClient interface {
	CreateEdit(ctx context.Context, applicationID string) (*EditSession, error)
	CommitEdit(ctx context.Context, s *EditSession) error

	ListAPKs(ctx context.Context, s *EditSession) ([]RemoteBinary, error)
	ListBundles(ctx context.Context, s *EditSession) ([]RemoteBinary, error)
	UploadAPK(ctx context.Context, s *EditSession, r io.Reader) (*RemoteBinary, error)
	UploadBundle(ctx context.Context, s *EditSession, r io.Reader) (*RemoteBinary, error)
	UploadDeobfuscation(ctx context.Context, s *EditSession, versionCode int64, r io.Reader) error

	// GetExpansionFile returns an error matching ErrNotFound when the
	// version code has no expansion file of the given type.
	GetExpansionFile(ctx context.Context, s *EditSession, versionCode int64, t ExpansionType) (*RemoteExpansionFile, error)
	UploadExpansionFile(ctx context.Context, s *EditSession, versionCode int64, t ExpansionType, r io.Reader) error
	ReferenceExpansionFile(ctx context.Context, s *EditSession, versionCode int64, t ExpansionType, referencesVersion int64) error

	UpdateTrack(ctx context.Context, s *EditSession, track Track, release ReleaseDescriptor) (*ReleaseDescriptor, error)
}
