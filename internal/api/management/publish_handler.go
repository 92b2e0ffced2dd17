package management

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/CaioWing/apkharbor/internal/api/middleware"
	"github.com/CaioWing/apkharbor/internal/api/response"
	"github.com/CaioWing/apkharbor/internal/domain"
	"github.com/CaioWing/apkharbor/internal/service"
	"github.com/CaioWing/apkharbor/internal/storage"
)

const maxUploadSize = 2 << 30

// Workspace subdirectories uploaded files are sorted into.
const (
	binariesDir  = "binaries"
	mappingDir   = "mapping"
	expansionDir = "expansion"
)

// PublishHandler serves publish and assign requests for both the
// management and the CI API; the actor comes from the request context.
type PublishHandler struct {
	publishSvc *service.PublishService
	store      storage.WorkspaceStore
	log        *slog.Logger
}

func NewPublishHandler(publishSvc *service.PublishService, store storage.WorkspaceStore, log *slog.Logger) *PublishHandler {
	return &PublishHandler{publishSvc: publishSvc, store: store, log: log}
}

// Publish accepts a multipart form with "binary", "mapping" and
// "expansion" files plus release fields, stores the files in a fresh
// workspace and runs a publish against it.
func (h *PublishHandler) Publish(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		response.Error(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	release, err := releaseFromForm(r.MultipartForm.Value)
	if err != nil {
		response.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	dir, err := h.store.Create()
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "failed to create workspace")
		return
	}

	input := service.PublishInput{
		Workspace:          dir,
		ReuseExpansion:     formBool(r.MultipartForm.Value, "reuse_expansion"),
		Release:            release,
		Actor:              requestActor(r),
		EphemeralWorkspace: true,
	}

	files := r.MultipartForm.File
	if input.FilePatterns, err = h.saveParts(dir, binariesDir, files["binary"], true); err != nil {
		h.discard(dir)
		response.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if input.MappingPatterns, err = h.saveParts(dir, mappingDir, files["mapping"], true); err != nil {
		h.discard(dir)
		response.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if input.ExpansionPatterns, err = h.saveParts(dir, expansionDir, files["expansion"], false); err != nil {
		h.discard(dir)
		response.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	// A publish is not abandoned when the caller disconnects; the run
	// still has to be recorded.
	run, err := h.publishSvc.Publish(context.WithoutCancel(r.Context()), input)
	if err != nil {
		if run == nil {
			h.discard(dir)
		}
		writeRunError(w, domain.ReportUpload, run, err)
		return
	}

	response.JSON(w, http.StatusCreated, run)
}

type assignRequest struct {
	ApplicationID       string            `json:"application_id"`
	VersionCodes        []int64           `json:"version_codes"`
	Rollout             *float64          `json:"rollout"`
	ReleaseName         string            `json:"release_name"`
	ReleaseNotes        map[string]string `json:"release_notes"`
	InAppUpdatePriority *int64            `json:"in_app_update_priority"`
}

// Assign moves already uploaded version codes to the track in the URL.
func (h *PublishHandler) Assign(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	run, err := h.publishSvc.Assign(context.WithoutCancel(r.Context()), service.AssignInput{
		ApplicationID: req.ApplicationID,
		VersionCodes:  req.VersionCodes,
		Release: service.ReleaseInput{
			Track:               chi.URLParam(r, "track"),
			RolloutPercentage:   req.Rollout,
			ReleaseName:         req.ReleaseName,
			ReleaseNotes:        req.ReleaseNotes,
			InAppUpdatePriority: req.InAppUpdatePriority,
		},
		Actor: requestActor(r),
	})
	if err != nil {
		writeRunError(w, domain.ReportAssign, run, err)
		return
	}

	response.JSON(w, http.StatusOK, run)
}

// saveParts writes the uploaded files into dir/sub and returns a glob
// matching them, or "" when there are none. With keepOrder the files are
// prefixed with their upload position so that sorting by path pairs
// binaries and mapping files in the order they were sent.
func (h *PublishHandler) saveParts(dir, sub string, parts []*multipart.FileHeader, keepOrder bool) (string, error) {
	if len(parts) == 0 {
		return "", nil
	}

	for i, part := range parts {
		name := filepath.Base(filepath.FromSlash(part.Filename))
		if name == "." || name == ".." || name == string(filepath.Separator) || name == "" {
			return "", fmt.Errorf("invalid file name %q", part.Filename)
		}
		if keepOrder {
			name = fmt.Sprintf("%03d-%s", i, name)
		}

		f, err := part.Open()
		if err != nil {
			return "", fmt.Errorf("read %s: %w", part.Filename, err)
		}
		_, size, err := h.store.Save(dir, sub+"/"+name, f)
		f.Close()
		if err != nil {
			return "", fmt.Errorf("store %s: %w", part.Filename, err)
		}
		h.log.Debug("stored upload", "file", name, "size", size)
	}
	return sub + "/*", nil
}

func (h *PublishHandler) discard(dir string) {
	if err := h.store.Remove(dir); err != nil {
		h.log.Warn("failed to remove workspace", "path", dir, "err", err)
	}
}

// releaseFromForm reads track, rollout, release_name, priority and
// notes.<language> fields.
func releaseFromForm(values map[string][]string) (service.ReleaseInput, error) {
	get := func(key string) string {
		if v := values[key]; len(v) > 0 {
			return strings.TrimSpace(v[0])
		}
		return ""
	}

	release := service.ReleaseInput{
		Track:       get("track"),
		ReleaseName: get("release_name"),
	}

	if v := get("rollout"); v != "" {
		pct, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return release, fmt.Errorf("invalid rollout %q", v)
		}
		release.RolloutPercentage = &pct
	}
	if v := get("priority"); v != "" {
		p, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return release, fmt.Errorf("invalid priority %q", v)
		}
		release.InAppUpdatePriority = &p
	}

	for key, v := range values {
		lang, ok := strings.CutPrefix(key, "notes.")
		if !ok || len(v) == 0 {
			continue
		}
		if release.ReleaseNotes == nil {
			release.ReleaseNotes = map[string]string{}
		}
		release.ReleaseNotes[lang] = v[0]
	}

	return release, nil
}

func formBool(values map[string][]string, key string) bool {
	v := values[key]
	if len(v) == 0 {
		return false
	}
	b, _ := strconv.ParseBool(v[0])
	return b
}

func requestActor(r *http.Request) service.Actor {
	name, actorType := middleware.Actor(r.Context())
	return service.Actor{Name: name, Type: actorType, IPAddress: r.RemoteAddr}
}
