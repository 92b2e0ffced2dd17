package playapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CaioWing/apkharbor/internal/domain"
)

const editsPath = "/androidpublisher/v3/applications/com.example/edits"

func newTestClient(t *testing.T, handler http.HandlerFunc, timeout time.Duration) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	hc := srv.Client()
	hc.Timeout = timeout
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	c, err := NewWithHTTPClient(context.Background(), hc, srv.URL+"/", "apkharbor-test", log)
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func apiError(code int, msg string) map[string]any {
	return map[string]any{"error": map[string]any{
		"code":    code,
		"message": msg,
		"errors":  []map[string]any{{"message": msg, "reason": "badRequest"}},
	}}
}

var session = &domain.EditSession{ApplicationID: "com.example", EditID: "edit-1"}

func TestCreateEdit(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, editsPath, r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]any{"id": "edit-1"})
	}, 0)

	s, err := c.CreateEdit(context.Background(), "com.example")
	require.NoError(t, err)
	assert.Equal(t, "edit-1", s.EditID)
	assert.Equal(t, "com.example", s.ApplicationID)
}

func TestListAPKsAndBundles(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case editsPath + "/edit-1/apks":
			writeJSON(w, http.StatusOK, map[string]any{"apks": []map[string]any{
				{"versionCode": 41, "binary": map[string]any{"sha1": "x", "sha256": "AAA"}},
			}})
		case editsPath + "/edit-1/bundles":
			writeJSON(w, http.StatusOK, map[string]any{"bundles": []map[string]any{
				{"versionCode": 40, "sha256": "bbb"},
			}})
		default:
			http.NotFound(w, r)
		}
	}, 0)

	apks, err := c.ListAPKs(context.Background(), session)
	require.NoError(t, err)
	assert.Equal(t, []domain.RemoteBinary{{VersionCode: 41, SHA256: "AAA", Format: domain.FormatAPK}}, apks)

	bundles, err := c.ListBundles(context.Background(), session)
	require.NoError(t, err)
	assert.Equal(t, []domain.RemoteBinary{{VersionCode: 40, SHA256: "bbb", Format: domain.FormatBundle}}, bundles)
}

func TestUploadAPK(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.True(t, strings.HasPrefix(r.URL.Path, "/upload/"), r.URL.Path)
		assert.True(t, strings.HasSuffix(r.URL.Path, "/edits/edit-1/apks"), r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]any{"versionCode": 42, "binary": map[string]any{"sha256": "abc"}})
	}, 0)

	b, err := c.UploadAPK(context.Background(), session, strings.NewReader("apk bytes"))
	require.NoError(t, err)
	assert.Equal(t, int64(42), b.VersionCode)
	assert.Equal(t, "abc", b.SHA256)
}

func TestGetExpansionFile_NotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, editsPath+"/edit-1/apks/41/expansionFiles/main", r.URL.Path)
		writeJSON(w, http.StatusNotFound, apiError(404, "Expansion file not found"))
	}, 0)

	_, err := c.GetExpansionFile(context.Background(), session, 41, domain.ExpansionMain)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, err, domain.ErrAPI)
}

func TestGetExpansionFile(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"fileSize": "1024"})
	}, 0)

	f, err := c.GetExpansionFile(context.Background(), session, 41, domain.ExpansionPatch)
	require.NoError(t, err)
	assert.True(t, f.IsReal())
}

func TestUpdateTrack(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, editsPath+"/edit-1/tracks/beta", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "beta", body["track"])
		releases := body["releases"].([]any)
		require.Len(t, releases, 1)
		rel := releases[0].(map[string]any)
		assert.Equal(t, "inProgress", rel["status"])
		assert.Equal(t, 0.25, rel["userFraction"])
		assert.Equal(t, []any{"42"}, rel["versionCodes"])

		writeJSON(w, http.StatusOK, body)
	}, 0)

	f := 0.25
	release := domain.NewReleaseDescriptor([]int64{42}, &f, map[string]string{"en-US": "Bug fixes"})
	confirmed, err := c.UpdateTrack(context.Background(), session, domain.TrackBeta, release)
	require.NoError(t, err)
	assert.Equal(t, []int64{42}, confirmed.VersionCodes)
	assert.Equal(t, domain.ReleaseStatusInProgress, confirmed.Status)
	require.NotNil(t, confirmed.RolloutFraction)
	assert.Equal(t, 0.25, *confirmed.RolloutFraction)
	assert.Equal(t, "Bug fixes", confirmed.ReleaseNotes["en-US"])
}

func TestCommitEdit_Rejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, editsPath+"/edit-1:commit", r.URL.Path)
		writeJSON(w, http.StatusBadRequest, apiError(400, "APK specifies a version code that has already been used."))
	}, 0)

	err := c.CommitEdit(context.Background(), session)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAPI)
	assert.NotErrorIs(t, err, domain.ErrAmbiguousResponse)

	var apiErr *domain.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 400, apiErr.StatusCode)
	assert.Equal(t, []string{"APK specifies a version code that has already been used."}, apiErr.Messages)
}

func TestCommitEdit_Timeout(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		writeJSON(w, http.StatusOK, map[string]any{"id": "edit-1"})
	}, 50*time.Millisecond)

	err := c.CommitEdit(context.Background(), session)
	assert.ErrorIs(t, err, domain.ErrAmbiguousResponse)
}
