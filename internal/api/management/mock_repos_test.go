package management

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/CaioWing/apkharbor/internal/domain"
)

// recordingRunRepo remembers the last list filter and serves runs by id.
type recordingRunRepo struct {
	runs       map[uuid.UUID]*domain.PublishRun
	lastFilter domain.RunFilter
}

func (m *recordingRunRepo) Create(_ context.Context, run *domain.PublishRun) error {
	if m.runs == nil {
		m.runs = map[uuid.UUID]*domain.PublishRun{}
	}
	m.runs[run.ID] = run
	return nil
}

func (m *recordingRunRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.PublishRun, error) {
	run, ok := m.runs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return run, nil
}

func (m *recordingRunRepo) List(_ context.Context, f domain.RunFilter) ([]*domain.PublishRun, int, error) {
	m.lastFilter = f
	return nil, 0, nil
}

func (m *recordingRunRepo) Finish(context.Context, *domain.PublishRun) error { return nil }

func (m *recordingRunRepo) ListFinishedBefore(context.Context, time.Time) ([]*domain.PublishRun, error) {
	return nil, nil
}

func (m *recordingRunRepo) ClearWorkspace(context.Context, uuid.UUID) error { return nil }

func (m *recordingRunRepo) GetStats(context.Context) (*domain.RunStats, error) {
	return &domain.RunStats{Total: len(m.runs)}, nil
}

// recordingAuditRepo remembers the last list filter.
type recordingAuditRepo struct {
	entries    []*domain.AuditEntry
	lastFilter domain.AuditFilter
}

func (m *recordingAuditRepo) Create(_ context.Context, entry *domain.AuditEntry) error {
	m.entries = append(m.entries, entry)
	return nil
}

func (m *recordingAuditRepo) List(_ context.Context, f domain.AuditFilter) ([]*domain.AuditEntry, int, error) {
	m.lastFilter = f
	return m.entries, len(m.entries), nil
}
