package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/CaioWing/apkharbor/internal/domain"
	"github.com/CaioWing/apkharbor/internal/storage"
)

// CleanupService deletes the uploaded workspaces of finished runs.
type CleanupService struct {
	runs      domain.RunRepository
	store     storage.WorkspaceStore
	retention time.Duration
	log       *slog.Logger
}

func NewCleanupService(
	runs domain.RunRepository,
	store storage.WorkspaceStore,
	retention time.Duration,
	log *slog.Logger,
) *CleanupService {
	return &CleanupService{
		runs:      runs,
		store:     store,
		retention: retention,
		log:       log,
	}
}

// StartScheduler runs cleanup at the specified interval. Call in a goroutine.
func (s *CleanupService) StartScheduler(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.log.Info("cleanup scheduler started", "interval", interval, "retention", s.retention)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("cleanup scheduler stopped")
			return
		case <-ticker.C:
			s.RunCleanup(ctx)
		}
	}
}

// RunCleanup removes the workspace of every run that finished more than
// the retention period ago, and returns how many were removed.
func (s *CleanupService) RunCleanup(ctx context.Context) int {
	before := time.Now().Add(-s.retention)
	runs, err := s.runs.ListFinishedBefore(ctx, before)
	if err != nil {
		s.log.Warn("cleanup: failed to list finished runs", "err", err)
		return 0
	}

	cleaned := 0
	for _, run := range runs {
		if run.WorkspacePath == "" {
			continue
		}
		if err := s.store.Remove(run.WorkspacePath); err != nil {
			s.log.Warn("cleanup: failed to remove workspace", "run_id", run.ID, "path", run.WorkspacePath, "err", err)
			continue
		}
		if err := s.runs.ClearWorkspace(ctx, run.ID); err != nil {
			s.log.Warn("cleanup: failed to clear workspace path", "run_id", run.ID, "err", err)
			continue
		}
		cleaned++
	}

	s.log.Info("cleanup completed", "removed", cleaned)
	return cleaned
}
