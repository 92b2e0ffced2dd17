package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/CaioWing/apkharbor/internal/domain"
)

type RunRepo struct {
	pool *pgxpool.Pool
}

func NewRunRepo(pool *pgxpool.Pool) *RunRepo {
	return &RunRepo{pool: pool}
}

const runColumns = `id, kind, application_id, track, rollout_fraction, version_codes,
	status, recovered, edit_id, error, workspace_path, actor, created_at, finished_at`

func scanRun(row pgx.Row) (*domain.PublishRun, error) {
	r := &domain.PublishRun{}
	err := row.Scan(
		&r.ID, &r.Kind, &r.ApplicationID, &r.Track, &r.RolloutFraction, &r.VersionCodes,
		&r.Status, &r.Recovered, &r.EditID, &r.Error, &r.WorkspacePath, &r.Actor,
		&r.CreatedAt, &r.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (r *RunRepo) Create(ctx context.Context, run *domain.PublishRun) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.VersionCodes == nil {
		run.VersionCodes = []int64{}
	}

	err := r.pool.QueryRow(ctx, `
		INSERT INTO publish_runs (
			id, kind, application_id, track, rollout_fraction, version_codes,
			status, workspace_path, actor
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at
	`,
		run.ID, run.Kind, run.ApplicationID, run.Track, run.RolloutFraction, run.VersionCodes,
		run.Status, run.WorkspacePath, run.Actor,
	).Scan(&run.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (r *RunRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.PublishRun, error) {
	run, err := scanRun(r.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM publish_runs WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

func (r *RunRepo) List(ctx context.Context, f domain.RunFilter) ([]*domain.PublishRun, int, error) {
	page, perPage, orderDir := pageDefaults(f.Page, f.PerPage, f.SortOrder)

	var q filter
	if f.ApplicationID != nil {
		q.add("application_id = $%d", *f.ApplicationID)
	}
	if f.Status != nil {
		q.add("status = $%d", *f.Status)
	}
	if f.Kind != nil {
		q.add("kind = $%d", *f.Kind)
	}
	if f.Track != nil {
		q.add("track = $%d", *f.Track)
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM publish_runs "+q.where(), q.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count runs: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT %s FROM publish_runs %s
		ORDER BY created_at %s
		%s
	`, runColumns, q.where(), orderDir, q.page(page, perPage))

	rows, err := r.pool.Query(ctx, query, q.args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := []*domain.PublishRun{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate runs: %w", err)
	}

	return runs, total, nil
}

func (r *RunRepo) Finish(ctx context.Context, run *domain.PublishRun) error {
	if run.VersionCodes == nil {
		run.VersionCodes = []int64{}
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE publish_runs
		SET status = $2, version_codes = $3, recovered = $4, edit_id = $5,
		    error = $6, finished_at = $7
		WHERE id = $1
	`, run.ID, run.Status, run.VersionCodes, run.Recovered, run.EditID, run.Error, run.FinishedAt)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *RunRepo) ListFinishedBefore(ctx context.Context, before time.Time) ([]*domain.PublishRun, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+runColumns+` FROM publish_runs
		WHERE finished_at IS NOT NULL AND finished_at < $1 AND workspace_path <> ''
		ORDER BY finished_at
		LIMIT 500
	`, before)
	if err != nil {
		return nil, fmt.Errorf("list finished runs: %w", err)
	}
	defer rows.Close()

	var runs []*domain.PublishRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (r *RunRepo) ClearWorkspace(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `UPDATE publish_runs SET workspace_path = '' WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("clear workspace: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *RunRepo) GetStats(ctx context.Context) (*domain.RunStats, error) {
	stats := &domain.RunStats{}
	err := r.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'running'),
			COUNT(*) FILTER (WHERE status = 'succeeded'),
			COUNT(*) FILTER (WHERE status = 'failed')
		FROM publish_runs
	`).Scan(&stats.Total, &stats.Running, &stats.Succeeded, &stats.Failed)
	if err != nil {
		return nil, fmt.Errorf("run stats: %w", err)
	}
	return stats, nil
}
