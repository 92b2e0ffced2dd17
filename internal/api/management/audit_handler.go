package management

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/CaioWing/apkharbor/internal/api/response"
	"github.com/CaioWing/apkharbor/internal/domain"
	"github.com/CaioWing/apkharbor/internal/service"
)

type AuditHandler struct {
	auditSvc *service.AuditService
}

func NewAuditHandler(auditSvc *service.AuditService) *AuditHandler {
	return &AuditHandler{auditSvc: auditSvc}
}

// List serves the audit log, filtered by actor, actor_type, action,
// resource, resource_id and since (RFC 3339).
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := response.ParsePagination(r)
	q := r.URL.Query()

	filter := domain.AuditFilter{
		Page:      page,
		PerPage:   perPage,
		SortOrder: q.Get("order"),
	}
	for key, dst := range map[string]**string{
		"actor":       &filter.Actor,
		"actor_type":  &filter.ActorType,
		"action":      &filter.Action,
		"resource":    &filter.Resource,
		"resource_id": &filter.ResourceID,
	} {
		if v := q.Get(key); v != "" {
			*dst = &v
		}
	}
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "invalid since, expected RFC 3339")
			return
		}
		filter.Since = &since
	}

	entries, total, err := h.auditSvc.List(r.Context(), filter)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "failed to list audit log")
		return
	}

	response.Paginated(w, http.StatusOK, entries, page, perPage, total)
}

// ListForRun serves the audit trail of a single publish or assign run.
func (h *AuditHandler) ListForRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "invalid run id")
		return
	}

	page, perPage := response.ParsePagination(r)
	entries, total, err := h.auditSvc.RunTrail(r.Context(), id, page, perPage)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "failed to list audit log")
		return
	}
	response.Paginated(w, http.StatusOK, entries, page, perPage, total)
}
