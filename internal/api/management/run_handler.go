package management

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/CaioWing/apkharbor/internal/api/response"
	"github.com/CaioWing/apkharbor/internal/domain"
	"github.com/CaioWing/apkharbor/internal/service"
)

type RunHandler struct {
	publishSvc *service.PublishService
}

func NewRunHandler(publishSvc *service.PublishService) *RunHandler {
	return &RunHandler{publishSvc: publishSvc}
}

func (h *RunHandler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := response.ParsePagination(r)
	q := r.URL.Query()

	filter := domain.RunFilter{
		Page:      page,
		PerPage:   perPage,
		SortOrder: q.Get("order"),
	}
	if v := q.Get("app_id"); v != "" {
		filter.ApplicationID = &v
	}
	if v := q.Get("status"); v != "" {
		status := domain.RunStatus(v)
		filter.Status = &status
	}
	if v := q.Get("kind"); v != "" {
		kind := domain.RunKind(v)
		filter.Kind = &kind
	}
	if v := q.Get("track"); v != "" {
		track, err := domain.ParseTrack(v)
		if err != nil {
			response.Error(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Track = &track
	}

	runs, total, err := h.publishSvc.List(r.Context(), filter)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []*domain.PublishRun{}
	}

	response.Paginated(w, http.StatusOK, runs, page, perPage, total)
}

func (h *RunHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "invalid run id")
		return
	}

	run, err := h.publishSvc.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "run not found")
			return
		}
		response.Error(w, http.StatusInternalServerError, "failed to get run")
		return
	}

	response.JSON(w, http.StatusOK, run)
}

func (h *RunHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.publishSvc.GetStats(r.Context())
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "failed to get run statistics")
		return
	}
	response.JSON(w, http.StatusOK, stats)
}
