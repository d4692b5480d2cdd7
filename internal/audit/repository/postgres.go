package repository

import (
	"context"
	"database/sql"
	"errors"

	"identity-session-plane/internal/audit/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an audit log repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByID returns the audit log for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.AuditLog, error) {
	const q = `
SELECT id, user_id, action, resource, ip, metadata, created_at
FROM audit_logs
WHERE id = $1;
`
	a, err := scanAuditLog(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return a, nil
}

// ListByUser returns audit logs for the given user, newest first,
// paginated by limit and offset. Returns (nil, error) only on database errors.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string, limit, offset int32) ([]*domain.AuditLog, error) {
	const q = `
SELECT id, user_id, action, resource, ip, metadata, created_at
FROM audit_logs
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3;
`
	rows, err := r.db.QueryContext(ctx, q, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.AuditLog
	for rows.Next() {
		a, err := scanAuditLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Create persists the audit log. The audit log must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, a *domain.AuditLog) error {
	const q = `
INSERT INTO audit_logs (id, user_id, action, resource, ip, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7);
`
	uid := sql.NullString{String: a.UserID, Valid: a.UserID != ""}
	meta := sql.NullString{String: a.Metadata, Valid: a.Metadata != ""}
	_, err := r.db.ExecContext(ctx, q, a.ID, uid, a.Action, a.Resource, a.IP, meta, a.CreatedAt)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAuditLog(row rowScanner) (*domain.AuditLog, error) {
	var a domain.AuditLog
	var uid, meta sql.NullString
	if err := row.Scan(&a.ID, &uid, &a.Action, &a.Resource, &a.IP, &meta, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.UserID = uid.String
	a.Metadata = meta.String
	return &a, nil
}
