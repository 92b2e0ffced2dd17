package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/CaioWing/apkharbor/internal/domain"
)

type AuditRepo struct {
	pool *pgxpool.Pool
}

func NewAuditRepo(pool *pgxpool.Pool) *AuditRepo {
	return &AuditRepo{pool: pool}
}

func (r *AuditRepo) Create(ctx context.Context, entry *domain.AuditEntry) error {
	detailsJSON, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("marshal details: %w", err)
	}

	err = r.pool.QueryRow(ctx, `
		INSERT INTO audit_log (actor, actor_type, action, resource, resource_id, details, ip_address)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`, entry.Actor, entry.ActorType, entry.Action, entry.Resource,
		entry.ResourceID, detailsJSON, entry.IPAddress).
		Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (r *AuditRepo) List(ctx context.Context, f domain.AuditFilter) ([]*domain.AuditEntry, int, error) {
	page, perPage, orderDir := pageDefaults(f.Page, f.PerPage, f.SortOrder)

	var q filter
	if f.Actor != nil {
		q.add("actor = $%d", *f.Actor)
	}
	if f.ActorType != nil {
		q.add("actor_type = $%d", *f.ActorType)
	}
	if f.Action != nil {
		q.add("action = $%d", *f.Action)
	}
	if f.Resource != nil {
		q.add("resource = $%d", *f.Resource)
	}
	if f.ResourceID != nil {
		q.add("resource_id = $%d", *f.ResourceID)
	}
	if f.Since != nil {
		q.add("created_at >= $%d", *f.Since)
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM audit_log "+q.where(), q.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit entries: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT id, actor, actor_type, action, resource, resource_id, details, ip_address, created_at
		FROM audit_log %s
		ORDER BY created_at %s
		%s
	`, q.where(), orderDir, q.page(page, perPage))

	rows, err := r.pool.Query(ctx, query, q.args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*domain.AuditEntry
	for rows.Next() {
		e := &domain.AuditEntry{}
		var detailsJSON []byte
		if err := rows.Scan(
			&e.ID, &e.Actor, &e.ActorType, &e.Action, &e.Resource,
			&e.ResourceID, &detailsJSON, &e.IPAddress, &e.CreatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scan audit entry: %w", err)
		}
		if err := json.Unmarshal(detailsJSON, &e.Details); err != nil {
			e.Details = map[string]any{}
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate audit entries: %w", err)
	}
	if entries == nil {
		entries = []*domain.AuditEntry{}
	}

	return entries, total, nil
}
