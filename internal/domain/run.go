package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

type RunKind string

const (
	RunKindPublish RunKind = "publish"
	RunKindAssign  RunKind = "assign"
)

// PublishRun is the history record of one publish or assign invocation.
type PublishRun struct {
	ID              uuid.UUID  `json:"id"`
	Kind            RunKind    `json:"kind"`
	ApplicationID   string     `json:"application_id"`
	Track           Track      `json:"track"`
	RolloutFraction *float64   `json:"rollout_fraction,omitempty"`
	VersionCodes    []int64    `json:"version_codes"`
	Status          RunStatus  `json:"status"`
	Recovered       bool       `json:"recovered"`
	EditID          string     `json:"edit_id,omitempty"`
	Error           string     `json:"error,omitempty"`
	WorkspacePath   string     `json:"-"`
	Actor           string     `json:"actor"`
	CreatedAt       time.Time  `json:"created_at"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
}

type RunFilter struct {
	ApplicationID *string
	Status        *RunStatus
	Kind          *RunKind
	Track         *Track
	Page          int
	PerPage       int
	SortOrder     string
}

type RunStats struct {
	Total     int `json:"total"`
	Running   int `json:"running"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

type RunRepository interface {
	Create(ctx context.Context, run *PublishRun) error
	GetByID(ctx context.Context, id uuid.UUID) (*PublishRun, error)
	List(ctx context.Context, filter RunFilter) ([]*PublishRun, int, error)
	Finish(ctx context.Context, run *PublishRun) error
	ListFinishedBefore(ctx context.Context, before time.Time) ([]*PublishRun, error)
	ClearWorkspace(ctx context.Context, id uuid.UUID) error
	GetStats(ctx context.Context) (*RunStats, error)
}
