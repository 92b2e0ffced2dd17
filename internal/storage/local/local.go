package local

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

type LocalStore struct {
	basePath string
}

func New(basePath string) (*LocalStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve storage dir: %w", err)
	}
	return &LocalStore{basePath: abs}, nil
}

// Create makes a new, empty workspace under a dated directory.
func (s *LocalStore) Create() (string, error) {
	dir := filepath.Join(s.basePath, time.Now().Format("2006/01/02"), uuid.NewString())
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create workspace dir: %w", err)
	}
	return dir, nil
}

// Save writes reader to dir/name. name may contain slashes; it must not
// escape dir.
func (s *LocalStore) Save(dir, name string, reader io.Reader) (string, int64, error) {
	if err := s.checkInside(dir); err != nil {
		return "", 0, err
	}
	clean := filepath.Clean(filepath.FromSlash(name))
	if clean == "." || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", 0, fmt.Errorf("invalid file name %q", name)
	}

	path := filepath.Join(dir, clean)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", 0, fmt.Errorf("create dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("create file: %w", err)
	}
	defer f.Close()

	n, err := io.Copy(f, reader)
	if err != nil {
		os.Remove(path)
		return "", 0, fmt.Errorf("write file: %w", err)
	}

	return path, n, nil
}

// Remove deletes a workspace and everything in it. A missing workspace is
// not an error.
func (s *LocalStore) Remove(dir string) error {
	if err := s.checkInside(dir); err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete workspace: %w", err)
	}
	return nil
}

func (s *LocalStore) checkInside(dir string) error {
	rel, err := filepath.Rel(s.basePath, dir)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%s is not a workspace of this store", dir)
	}
	return nil
}
