package management

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/CaioWing/apkharbor/internal/api/response"
	"github.com/CaioWing/apkharbor/internal/domain"
	"github.com/CaioWing/apkharbor/internal/service"
	"github.com/CaioWing/apkharbor/internal/storage/local"
	"github.com/CaioWing/apkharbor/internal/workspace"
)

// stubPublisher accepts every APK upload and commit. Uploaded content is
// reported with versionCode.
type stubPublisher struct {
	mu          sync.Mutex
	versionCode int64
	apks        []domain.RemoteBinary
	uploaded    []string
	mappings    int
	tracks      map[domain.Track]domain.ReleaseDescriptor
}

func newStubPublisher(versionCode int64) *stubPublisher {
	return &stubPublisher{versionCode: versionCode, tracks: map[domain.Track]domain.ReleaseDescriptor{}}
}

func (p *stubPublisher) CreateEdit(_ context.Context, appID string) (*domain.EditSession, error) {
	return &domain.EditSession{ApplicationID: appID, EditID: "edit-1"}, nil
}

func (p *stubPublisher) CommitEdit(context.Context, *domain.EditSession) error { return nil }

func (p *stubPublisher) ListAPKs(context.Context, *domain.EditSession) ([]domain.RemoteBinary, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.RemoteBinary(nil), p.apks...), nil
}

func (p *stubPublisher) ListBundles(context.Context, *domain.EditSession) ([]domain.RemoteBinary, error) {
	return nil, nil
}

func (p *stubPublisher) UploadAPK(_ context.Context, _ *domain.EditSession, r io.Reader) (*domain.RemoteBinary, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(data)
	bin := domain.RemoteBinary{VersionCode: p.versionCode, SHA256: hex.EncodeToString(sum[:]), Format: domain.FormatAPK}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.uploaded = append(p.uploaded, string(data))
	p.apks = append(p.apks, bin)
	return &bin, nil
}

func (p *stubPublisher) UploadBundle(context.Context, *domain.EditSession, io.Reader) (*domain.RemoteBinary, error) {
	return nil, fmt.Errorf("%w: bundles not supported here", domain.ErrAPI)
}

func (p *stubPublisher) UploadDeobfuscation(context.Context, *domain.EditSession, int64, io.Reader) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mappings++
	return nil
}

func (p *stubPublisher) GetExpansionFile(context.Context, *domain.EditSession, int64, domain.ExpansionType) (*domain.RemoteExpansionFile, error) {
	return nil, domain.ErrNotFound
}

func (p *stubPublisher) UploadExpansionFile(context.Context, *domain.EditSession, int64, domain.ExpansionType, io.Reader) error {
	return nil
}

func (p *stubPublisher) ReferenceExpansionFile(context.Context, *domain.EditSession, int64, domain.ExpansionType, int64) error {
	return nil
}

func (p *stubPublisher) UpdateTrack(_ context.Context, _ *domain.EditSession, track domain.Track, release domain.ReleaseDescriptor) (*domain.ReleaseDescriptor, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tracks[track] = release
	return &release, nil
}

// suffixReader reports metadata for any file whose name ends in ".apk".
type suffixReader struct {
	appID       string
	versionCode int64
}

func (r suffixReader) Read(path string) (domain.ArtifactMetadata, error) {
	if !strings.HasSuffix(path, ".apk") {
		return domain.ArtifactMetadata{}, fmt.Errorf("unsupported file %s", path)
	}
	return domain.ArtifactMetadata{
		ApplicationID: r.appID,
		VersionCode:   r.versionCode,
		Format:        domain.FormatAPK,
	}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestHandler(t *testing.T, pub *stubPublisher) (*PublishHandler, string) {
	t.Helper()
	base := t.TempDir()
	store, err := local.New(base)
	if err != nil {
		t.Fatalf("local.New: %v", err)
	}
	svc := service.NewPublishService(pub, workspace.NewGlobFinder(), suffixReader{appID: "com.example.app", versionCode: 42}, testLogger())
	return NewPublishHandler(svc, store, testLogger()), base
}

type formFile struct {
	field, name, content string
}

func multipartRequest(t *testing.T, fields map[string]string, files []formFile) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("WriteField: %v", err)
		}
	}
	for _, f := range files {
		fw, err := mw.CreateFormFile(f.field, f.name)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		fw.Write([]byte(f.content))
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ci/publish", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func countFiles(t *testing.T, root string) int {
	t.Helper()
	n := 0
	err := filepath.WalkDir(root, func(_ string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			n++
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	return n
}

func TestPublishHandler_Publish(t *testing.T) {
	pub := newStubPublisher(42)
	h, _ := newTestHandler(t, pub)

	req := multipartRequest(t,
		map[string]string{"track": "beta", "rollout": "25", "notes.en-US": "Bug fixes", "release_name": "4.2"},
		[]formFile{
			{field: "binary", name: "app-release.apk", content: "apk-bytes"},
			{field: "mapping", name: "mapping.txt", content: "a -> b"},
		},
	)
	rec := httptest.NewRecorder()
	h.Publish(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var run domain.PublishRun
	if err := json.NewDecoder(rec.Body).Decode(&run); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if run.Status != domain.RunStatusSucceeded {
		t.Fatalf("expected succeeded run, got %s", run.Status)
	}
	if len(pub.uploaded) != 1 || pub.uploaded[0] != "apk-bytes" {
		t.Fatalf("expected one uploaded apk, got %v", pub.uploaded)
	}
	if pub.mappings != 1 {
		t.Fatalf("expected one mapping upload, got %d", pub.mappings)
	}

	release, ok := pub.tracks[domain.TrackBeta]
	if !ok {
		t.Fatal("expected beta track to be updated")
	}
	if release.RolloutFraction == nil || *release.RolloutFraction != 0.25 {
		t.Fatalf("expected rollout fraction 0.25, got %v", release.RolloutFraction)
	}
	if release.ReleaseNotes["en-US"] != "Bug fixes" {
		t.Fatalf("expected release notes to be passed through, got %v", release.ReleaseNotes)
	}
}

func TestPublishHandler_Publish_InvalidReleaseDiscardsWorkspace(t *testing.T) {
	pub := newStubPublisher(42)
	h, base := newTestHandler(t, pub)

	req := multipartRequest(t,
		map[string]string{"track": "beta", "rollout": "150"},
		[]formFile{{field: "binary", name: "app.apk", content: "apk-bytes"}},
	)
	rec := httptest.NewRecorder()
	h.Publish(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d: %s", rec.Code, rec.Body.String())
	}
	var body response.RunFailure
	json.NewDecoder(rec.Body).Decode(&body)
	if !strings.HasPrefix(body.Report, "Upload failed:") {
		t.Fatalf("expected upload failure report, got %q", body.Report)
	}
	if n := countFiles(t, base); n != 0 {
		t.Fatalf("expected workspace to be removed, found %d files", n)
	}
	if len(pub.uploaded) != 0 {
		t.Fatalf("expected no uploads, got %v", pub.uploaded)
	}
}

func TestPublishHandler_Publish_Duplicate(t *testing.T) {
	pub := newStubPublisher(42)
	sum := sha256.Sum256([]byte("apk-bytes"))
	pub.apks = []domain.RemoteBinary{{VersionCode: 41, SHA256: hex.EncodeToString(sum[:]), Format: domain.FormatAPK}}
	h, _ := newTestHandler(t, pub)

	req := multipartRequest(t,
		map[string]string{"track": "internal"},
		[]formFile{{field: "binary", name: "app.apk", content: "apk-bytes"}},
	)
	rec := httptest.NewRecorder()
	h.Publish(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Error string            `json:"error"`
		Run   domain.PublishRun `json:"run"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Run.Status != domain.RunStatusFailed {
		t.Fatalf("expected failed run in body, got %q", body.Run.Status)
	}
}

func TestPublishHandler_Publish_NoBinaries(t *testing.T) {
	h, _ := newTestHandler(t, newStubPublisher(42))

	req := multipartRequest(t, map[string]string{"track": "beta"}, nil)
	rec := httptest.NewRecorder()
	h.Publish(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestPublishHandler_Publish_BadRollout(t *testing.T) {
	h, _ := newTestHandler(t, newStubPublisher(42))

	req := multipartRequest(t,
		map[string]string{"track": "beta", "rollout": "half"},
		[]formFile{{field: "binary", name: "app.apk", content: "apk-bytes"}},
	)
	rec := httptest.NewRecorder()
	h.Publish(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}

func assignRequestFor(track, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ci/tracks/"+track+"/assign", strings.NewReader(body))
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("track", track)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestPublishHandler_Assign(t *testing.T) {
	pub := newStubPublisher(42)
	pub.apks = []domain.RemoteBinary{{VersionCode: 42, SHA256: "abc", Format: domain.FormatAPK}}
	h, _ := newTestHandler(t, pub)

	rec := httptest.NewRecorder()
	h.Assign(rec, assignRequestFor("production", `{"application_id":"com.example.app","version_codes":[42],"rollout":10}`))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	release, ok := pub.tracks[domain.TrackProduction]
	if !ok {
		t.Fatal("expected production track to be updated")
	}
	if len(release.VersionCodes) != 1 || release.VersionCodes[0] != 42 {
		t.Fatalf("expected version code 42, got %v", release.VersionCodes)
	}
}

func TestPublishHandler_Assign_UnknownVersionCode(t *testing.T) {
	h, _ := newTestHandler(t, newStubPublisher(42))

	rec := httptest.NewRecorder()
	h.Assign(rec, assignRequestFor("beta", `{"application_id":"com.example.app","version_codes":[7]}`))

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d: %s", rec.Code, rec.Body.String())
	}
	var body response.RunFailure
	json.NewDecoder(rec.Body).Decode(&body)
	if !strings.HasPrefix(body.Report, "Track assignment failed:") {
		t.Fatalf("expected track assignment report, got %q", body.Report)
	}
}

func TestPublishHandler_Assign_InvalidBody(t *testing.T) {
	h, _ := newTestHandler(t, newStubPublisher(42))

	rec := httptest.NewRecorder()
	h.Assign(rec, assignRequestFor("beta", `{`))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}

func TestReleaseFromForm(t *testing.T) {
	release, err := releaseFromForm(map[string][]string{
		"track":       {" alpha "},
		"priority":    {"3"},
		"notes.de-DE": {"Fehlerbehebungen"},
		"notes.en-US": {"Bug fixes"},
		"other":       {"ignored"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if release.Track != "alpha" {
		t.Fatalf("expected track alpha, got %q", release.Track)
	}
	if release.InAppUpdatePriority == nil || *release.InAppUpdatePriority != 3 {
		t.Fatalf("expected priority 3, got %v", release.InAppUpdatePriority)
	}
	if len(release.ReleaseNotes) != 2 || release.ReleaseNotes["de-DE"] != "Fehlerbehebungen" {
		t.Fatalf("unexpected release notes %v", release.ReleaseNotes)
	}
	if release.RolloutPercentage != nil {
		t.Fatalf("expected no rollout, got %v", *release.RolloutPercentage)
	}

	if _, err := releaseFromForm(map[string][]string{"priority": {"high"}}); err == nil {
		t.Fatal("expected error for non-numeric priority")
	}
}

func TestStatusForRunError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: track", domain.ErrConfiguration), http.StatusBadRequest},
		{fmt.Errorf("%w: none", domain.ErrDiscovery), http.StatusUnprocessableEntity},
		{fmt.Errorf("%w: main.1.x.obb", domain.ErrInvalidNaming), http.StatusUnprocessableEntity},
		{fmt.Errorf("%w: busy", domain.ErrConflict), http.StatusConflict},
		{fmt.Errorf("%w: apk", domain.ErrDuplicateArtifact), http.StatusConflict},
		{fmt.Errorf("%w: commit", domain.ErrAmbiguousResponse), http.StatusGatewayTimeout},
		{&domain.APIError{Op: "edits.commit", StatusCode: 500, Messages: []string{"backend"}}, http.StatusBadGateway},
		{fmt.Errorf("%w: key", domain.ErrAuthentication), http.StatusBadGateway},
		{fmt.Errorf("disk full"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := statusForRunError(tt.err); got != tt.want {
			t.Errorf("statusForRunError(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
