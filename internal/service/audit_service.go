package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/CaioWing/apkharbor/internal/domain"
)

// Audit actions recorded for runs.
const (
	AuditActionPublish = "publish.run"
	AuditActionAssign  = "track.assign"
)

const auditResourceRun = "run"

type AuditService struct {
	repo domain.AuditRepository
	log  *slog.Logger
}

func NewAuditService(repo domain.AuditRepository, log *slog.Logger) *AuditService {
	return &AuditService{repo: repo, log: log}
}

// Log records an audit event. Failures are logged, never returned.
func (s *AuditService) Log(ctx context.Context, entry *domain.AuditEntry) {
	if entry.Details == nil {
		entry.Details = map[string]any{}
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		s.log.Warn("failed to write audit log", "action", entry.Action, "err", err)
	}
}

// LogRun records the outcome of a finished run on behalf of actor.
func (s *AuditService) LogRun(ctx context.Context, actor Actor, action string, run *domain.PublishRun) {
	details := map[string]any{
		"app_id":        run.ApplicationID,
		"track":         run.Track.String(),
		"version_codes": run.VersionCodes,
		"status":        string(run.Status),
	}
	if run.RolloutFraction != nil {
		details["rollout_fraction"] = *run.RolloutFraction
	}
	if run.Recovered {
		details["recovered"] = true
	}
	if run.Error != "" {
		details["error"] = run.Error
	}

	s.Log(ctx, &domain.AuditEntry{
		Actor:      actor.Name,
		ActorType:  actor.Type,
		Action:     action,
		Resource:   auditResourceRun,
		ResourceID: run.ID.String(),
		Details:    details,
		IPAddress:  actor.IPAddress,
	})
}

func (s *AuditService) List(ctx context.Context, filter domain.AuditFilter) ([]*domain.AuditEntry, int, error) {
	return s.repo.List(ctx, filter)
}

// RunTrail lists the audit entries of one run, oldest first.
func (s *AuditService) RunTrail(ctx context.Context, runID uuid.UUID, page, perPage int) ([]*domain.AuditEntry, int, error) {
	resource, id := auditResourceRun, runID.String()
	return s.repo.List(ctx, domain.AuditFilter{
		Resource:   &resource,
		ResourceID: &id,
		Page:       page,
		PerPage:    perPage,
		SortOrder:  "asc",
	})
}
