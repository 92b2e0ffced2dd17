package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/CaioWing/apkharbor/internal/domain"
	"github.com/CaioWing/apkharbor/internal/workspace"
)

// --- Fake Publisher ---

type expansionKey struct {
	versionCode int64
	typ         domain.ExpansionType
}

// fakePublisher keeps committed binaries plus the uploads of each open edit
// and records every call in order.
type fakePublisher struct {
	mu    sync.Mutex
	calls []string

	apks    []domain.RemoteBinary
	bundles []domain.RemoteBinary
	pending map[string][]domain.RemoteBinary

	// versionCodes maps uploaded content to the version code the service
	// reports for it.
	versionCodes map[string]int64
	expansion    map[expansionKey]*domain.RemoteExpansionFile
	mappings     map[int64]string
	tracks       map[domain.Track]domain.ReleaseDescriptor

	edits int
	// errs makes the named call fail.
	errs map[string]error
	// applyOnCommitErr applies the edit even when commit returns errs["commit"].
	applyOnCommitErr bool
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{
		pending:      make(map[string][]domain.RemoteBinary),
		versionCodes: make(map[string]int64),
		expansion:    make(map[expansionKey]*domain.RemoteExpansionFile),
		mappings:     make(map[int64]string),
		tracks:       make(map[domain.Track]domain.ReleaseDescriptor),
		errs:         make(map[string]error),
	}
}

func (f *fakePublisher) record(call string) error {
	f.calls = append(f.calls, call)
	name, _, _ := strings.Cut(call, " ")
	return f.errs[name]
}

func (f *fakePublisher) callNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, len(f.calls))
	for i, c := range f.calls {
		names[i], _, _ = strings.Cut(c, " ")
	}
	return names
}

func (f *fakePublisher) count(name string) int {
	n := 0
	for _, c := range f.callNames() {
		if c == name {
			n++
		}
	}
	return n
}

func (f *fakePublisher) CreateEdit(_ context.Context, applicationID string) (*domain.EditSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("create_edit"); err != nil {
		return nil, err
	}
	f.edits++
	return &domain.EditSession{ApplicationID: applicationID, EditID: fmt.Sprintf("edit-%d", f.edits)}, nil
}

func (f *fakePublisher) CommitEdit(_ context.Context, s *domain.EditSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	err := f.record("commit")
	if err == nil || f.applyOnCommitErr {
		for _, b := range f.pending[s.EditID] {
			if b.Format == domain.FormatBundle {
				f.bundles = append(f.bundles, b)
			} else {
				f.apks = append(f.apks, b)
			}
		}
		delete(f.pending, s.EditID)
	}
	return err
}

func (f *fakePublisher) list(s *domain.EditSession, format domain.Format, committed []domain.RemoteBinary) []domain.RemoteBinary {
	out := append([]domain.RemoteBinary(nil), committed...)
	for _, b := range f.pending[s.EditID] {
		if b.Format == format {
			out = append(out, b)
		}
	}
	return out
}

func (f *fakePublisher) ListAPKs(_ context.Context, s *domain.EditSession) ([]domain.RemoteBinary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("list_apks"); err != nil {
		return nil, err
	}
	return f.list(s, domain.FormatAPK, f.apks), nil
}

func (f *fakePublisher) ListBundles(_ context.Context, s *domain.EditSession) ([]domain.RemoteBinary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("list_bundles"); err != nil {
		return nil, err
	}
	return f.list(s, domain.FormatBundle, f.bundles), nil
}

func (f *fakePublisher) upload(call string, s *domain.EditSession, format domain.Format, r io.Reader) (*domain.RemoteBinary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if err := f.record(call + " " + string(data)); err != nil {
		return nil, err
	}
	vc, ok := f.versionCodes[string(data)]
	if !ok {
		return nil, &domain.APIError{Op: call, StatusCode: 400, Messages: []string{"unknown binary"}}
	}
	b := domain.RemoteBinary{VersionCode: vc, SHA256: sha256Hex(data), Format: format}
	f.pending[s.EditID] = append(f.pending[s.EditID], b)
	return &b, nil
}

func (f *fakePublisher) UploadAPK(_ context.Context, s *domain.EditSession, r io.Reader) (*domain.RemoteBinary, error) {
	return f.upload("upload_apk", s, domain.FormatAPK, r)
}

func (f *fakePublisher) UploadBundle(_ context.Context, s *domain.EditSession, r io.Reader) (*domain.RemoteBinary, error) {
	return f.upload("upload_bundle", s, domain.FormatBundle, r)
}

func (f *fakePublisher) UploadDeobfuscation(_ context.Context, _ *domain.EditSession, versionCode int64, r io.Reader) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if err := f.record(fmt.Sprintf("upload_mapping %d", versionCode)); err != nil {
		return err
	}
	f.mappings[versionCode] = string(data)
	return nil
}

func (f *fakePublisher) GetExpansionFile(_ context.Context, _ *domain.EditSession, versionCode int64, t domain.ExpansionType) (*domain.RemoteExpansionFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(fmt.Sprintf("get_expansion %s %d", t, versionCode)); err != nil {
		return nil, err
	}
	file, ok := f.expansion[expansionKey{versionCode, t}]
	if !ok {
		return nil, &domain.APIError{Op: "get expansion file", StatusCode: 404, Messages: []string{"not found"}}
	}
	return file, nil
}

func (f *fakePublisher) UploadExpansionFile(_ context.Context, _ *domain.EditSession, versionCode int64, t domain.ExpansionType, r io.Reader) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if err := f.record(fmt.Sprintf("upload_expansion %s %d", t, versionCode)); err != nil {
		return err
	}
	f.expansion[expansionKey{versionCode, t}] = &domain.RemoteExpansionFile{FileSize: int64(len(data))}
	return nil
}

func (f *fakePublisher) ReferenceExpansionFile(_ context.Context, _ *domain.EditSession, versionCode int64, t domain.ExpansionType, ref int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(fmt.Sprintf("reference_expansion %s %d->%d", t, versionCode, ref)); err != nil {
		return err
	}
	f.expansion[expansionKey{versionCode, t}] = &domain.RemoteExpansionFile{ReferencesVersion: ref}
	return nil
}

func (f *fakePublisher) UpdateTrack(_ context.Context, _ *domain.EditSession, track domain.Track, release domain.ReleaseDescriptor) (*domain.ReleaseDescriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("update_track " + track.String()); err != nil {
		return nil, err
	}
	f.tracks[track] = release
	confirmed := release
	return &confirmed, nil
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// --- Fake Workspace ---

// memWorkspace is an in-memory Finder and FileSource. Patterns are matched
// with the real glob finder rules.
type memWorkspace struct {
	files map[string]string
}

var _ workspace.Finder = (*memWorkspace)(nil)

func newMemWorkspace(files map[string]string) *memWorkspace {
	return &memWorkspace{files: files}
}

func (w *memWorkspace) Find(_ string, patterns string) ([]string, error) {
	return workspace.MatchPaths(w.paths(), patterns)
}

func (w *memWorkspace) paths() []string {
	paths := make([]string, 0, len(w.files))
	for p := range w.files {
		paths = append(paths, p)
	}
	return paths
}

func (w *memWorkspace) Open(_ string, path string) (io.ReadCloser, error) {
	data, ok := w.files[path]
	if !ok {
		return nil, fmt.Errorf("open %s: file does not exist", path)
	}
	return io.NopCloser(bytes.NewReader([]byte(data))), nil
}

func (w *memWorkspace) Size(_ string, path string) (int64, error) {
	data, ok := w.files[path]
	if !ok {
		return 0, fmt.Errorf("stat %s: file does not exist", path)
	}
	return int64(len(data)), nil
}

// source binds the workspace as a FileSource for direct Uploader tests.
func (w *memWorkspace) source() FileSource {
	return workspaceFiles{finder: w, baseDir: "/ws"}
}

// --- Fake Metadata Reader ---

type fakeReader struct {
	meta map[string]domain.ArtifactMetadata
}

func (r *fakeReader) Read(path string) (domain.ArtifactMetadata, error) {
	m, ok := r.meta[filepath.Base(path)]
	if !ok {
		return domain.ArtifactMetadata{}, fmt.Errorf("%w: cannot read %s", domain.ErrDiscovery, path)
	}
	return m, nil
}
