// Package audit records who retrieved which resource's data and when.
// Providers use the trail to check that consumers honor n-times-usage
// contracts.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type auditDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Trail struct {
	DB auditDB
}

type Access struct {
	ResourceID uuid.UUID `json:"resourceId"`
	Subject    string    `json:"subject"`
	AccessedAt time.Time `json:"accessedAt"`
}

func (t *Trail) EnsureSchema(ctx context.Context) error {
	_, err := t.DB.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS resource_access_log (
			id BIGSERIAL PRIMARY KEY,
			resource_id UUID NOT NULL,
			subject TEXT NOT NULL,
			accessed_at TIMESTAMPTZ NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure access log schema: %w", err)
	}
	return nil
}

func (t *Trail) Record(ctx context.Context, resourceID uuid.UUID, subject string) error {
	_, err := t.DB.Exec(ctx, `
		INSERT INTO resource_access_log (resource_id, subject, accessed_at) VALUES ($1,$2,$3)
	`, resourceID, subject, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record access: %w", err)
	}
	return nil
}

// Count returns how often a resource's data has been handed out.
func (t *Trail) Count(ctx context.Context, resourceID uuid.UUID) (int, error) {
	var count int
	row := t.DB.QueryRow(ctx, `SELECT COUNT(*) FROM resource_access_log WHERE resource_id=$1`, resourceID)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count accesses: %w", err)
	}
	return count, nil
}

func (t *Trail) Recent(ctx context.Context, resourceID uuid.UUID, limit int) ([]Access, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	rows, err := t.DB.Query(ctx, `
		SELECT resource_id, subject, accessed_at FROM resource_access_log
		WHERE resource_id=$1 ORDER BY accessed_at DESC LIMIT $2
	`, resourceID, limit)
	if err != nil {
		return nil, fmt.Errorf("list accesses: %w", err)
	}
	defer rows.Close()
	var out []Access
	for rows.Next() {
		var a Access
		if err := rows.Scan(&a.ResourceID, &a.Subject, &a.AccessedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
