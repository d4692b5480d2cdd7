package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"identity-session-plane/internal/user/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// UpsertByExternalID creates the user on first login and refreshes the
// email on later ones. The plan is untouched on conflict so billing
// changes survive re-login.
func (r *PostgresRepository) UpsertByExternalID(ctx context.Context, externalID, email string) (*domain.User, error) {
	const q = `
INSERT INTO users (id, external_id, email, created_at, updated_at)
VALUES ($1, $2, $3, $4, $4)
ON CONFLICT (external_id) DO UPDATE SET email = EXCLUDED.email, updated_at = EXCLUDED.updated_at
RETURNING id, external_id, email, plan_id, settings, created_at, updated_at;
`
	row := r.db.QueryRowContext(ctx, q, uuid.New().String(), externalID, email, time.Now().UTC())
	return scanUser(row)
}

// GetByID returns the user or ErrNotFound.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	const q = `
SELECT id, external_id, email, plan_id, settings, created_at, updated_at
FROM users
WHERE id = $1;
`
	u, err := scanUser(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return u, nil
}

// UpdatePlan sets the user's plan. Returns ErrNotFound when no row matches.
func (r *PostgresRepository) UpdatePlan(ctx context.Context, id, planID string) error {
	const q = `
UPDATE users SET plan_id = $2, updated_at = $3 WHERE id = $1;
`
	res, err := r.db.ExecContext(ctx, q, id, planID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update plan: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateSettings replaces the user's settings document.
func (r *PostgresRepository) UpdateSettings(ctx context.Context, id string, settings map[string]any) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	const q = `
UPDATE users SET settings = $2, updated_at = $3 WHERE id = $1;
`
	res, err := r.db.ExecContext(ctx, q, id, raw, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update settings: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	var u domain.User
	var settings []byte
	if err := row.Scan(&u.ID, &u.ExternalID, &u.Email, &u.PlanID, &settings, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &u.Settings); err != nil {
			return nil, fmt.Errorf("decode settings: %w", err)
		}
	}
	return &u, nil
}
