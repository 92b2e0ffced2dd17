package storage

import "io"

// WorkspaceStore holds the per-run directories that uploaded files are
// written to before a publish run reads them.
type WorkspaceStore interface {
	Create() (dir string, err error)
	Save(dir, name string, reader io.Reader) (path string, size int64, err error)
	Remove(dir string) error
}
