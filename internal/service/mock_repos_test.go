package service

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/CaioWing/apkharbor/internal/domain"
)

// --- Mock Run Repository ---

type mockRunRepo struct {
	mu   sync.RWMutex
	runs map[uuid.UUID]*domain.PublishRun
}

func newMockRunRepo() *mockRunRepo {
	return &mockRunRepo{runs: make(map[uuid.UUID]*domain.PublishRun)}
}

func (m *mockRunRepo) Create(_ context.Context, r *domain.PublishRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.runs[r.ID]; exists {
		return domain.ErrConflict
	}
	cp := *r
	m.runs[r.ID] = &cp
	return nil
}

func (m *mockRunRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.PublishRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if r, ok := m.runs[id]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (m *mockRunRepo) List(_ context.Context, f domain.RunFilter) ([]*domain.PublishRun, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.PublishRun
	for _, r := range m.runs {
		if f.ApplicationID != nil && r.ApplicationID != *f.ApplicationID {
			continue
		}
		if f.Status != nil && r.Status != *f.Status {
			continue
		}
		if f.Kind != nil && r.Kind != *f.Kind {
			continue
		}
		if f.Track != nil && r.Track != *f.Track {
			continue
		}
		result = append(result, r)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, len(result), nil
}

func (m *mockRunRepo) Finish(_ context.Context, r *domain.PublishRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[r.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *r
	m.runs[r.ID] = &cp
	return nil
}

func (m *mockRunRepo) ListFinishedBefore(_ context.Context, before time.Time) ([]*domain.PublishRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.PublishRun
	for _, r := range m.runs {
		if r.FinishedAt != nil && r.FinishedAt.Before(before) && r.WorkspacePath != "" {
			cp := *r
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (m *mockRunRepo) ClearWorkspace(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return domain.ErrNotFound
	}
	r.WorkspacePath = ""
	return nil
}

func (m *mockRunRepo) GetStats(_ context.Context) (*domain.RunStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := &domain.RunStats{Total: len(m.runs)}
	for _, r := range m.runs {
		switch r.Status {
		case domain.RunStatusRunning:
			stats.Running++
		case domain.RunStatusSucceeded:
			stats.Succeeded++
		case domain.RunStatusFailed:
			stats.Failed++
		}
	}
	return stats, nil
}

// --- Mock Audit Repository ---

type mockAuditRepo struct {
	mu         sync.Mutex
	entries    []*domain.AuditEntry
	lastFilter domain.AuditFilter
}

func (m *mockAuditRepo) Create(_ context.Context, e *domain.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = uuid.New()
	m.entries = append(m.entries, e)
	return nil
}

func (m *mockAuditRepo) List(_ context.Context, f domain.AuditFilter) ([]*domain.AuditEntry, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastFilter = f
	return m.entries, len(m.entries), nil
}

// --- Mock Workspace Store ---

type mockWorkspaceStore struct {
	mu      sync.Mutex
	removed []string
	failFor map[string]bool
}

func (m *mockWorkspaceStore) Create() (string, error) {
	return "/mock/" + uuid.NewString(), nil
}

func (m *mockWorkspaceStore) Save(dir, name string, reader io.Reader) (string, int64, error) {
	n, err := io.Copy(io.Discard, reader)
	return dir + "/" + name, n, err
}

func (m *mockWorkspaceStore) Remove(dir string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failFor[dir] {
		return errors.New("permission denied")
	}
	m.removed = append(m.removed, dir)
	return nil
}

// --- Mock Notifier ---

type mockNotifier struct {
	mu   sync.Mutex
	runs []domain.PublishRun
	err  error
}

func (m *mockNotifier) Notify(_ context.Context, r *domain.PublishRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, *r)
	return m.err
}
