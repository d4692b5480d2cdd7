package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func userRows(settings string) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{"id", "external_id", "email", "plan_id", "settings", "created_at", "updated_at"}).
		AddRow("u-1", "ext-1", "a@example.com", "free", []byte(settings), now, now)
}

func TestPostgresRepository_UpsertByExternalID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %s", err)
	}
	defer db.Close()
	repo := NewPostgresRepository(db)

	mock.ExpectQuery("INSERT INTO users").
		WithArgs(sqlmock.AnyArg(), "ext-1", "a@example.com", sqlmock.AnyArg()).
		WillReturnRows(userRows(`{"theme":"dark"}`))

	u, err := repo.UpsertByExternalID(context.Background(), "ext-1", "a@example.com")
	if err != nil {
		t.Fatalf("UpsertByExternalID failed: %v", err)
	}
	if u.ID != "u-1" || u.PlanID != "free" {
		t.Errorf("unexpected user: %+v", u)
	}
	if u.Settings["theme"] != "dark" {
		t.Errorf("settings = %v", u.Settings)
	}
}

func TestPostgresRepository_GetByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %s", err)
	}
	defer db.Close()
	repo := NewPostgresRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM users").
		WithArgs("u-1").
		WillReturnRows(userRows(``))

	u, err := repo.GetByID(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if u.ExternalID != "ext-1" {
		t.Errorf("unexpected user: %+v", u)
	}
	if u.Settings != nil {
		t.Errorf("empty settings column should stay nil, got %v", u.Settings)
	}
}

func TestPostgresRepository_GetByIDNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %s", err)
	}
	defer db.Close()
	repo := NewPostgresRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM users").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	if _, err := repo.GetByID(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestPostgresRepository_UpdatePlan(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %s", err)
	}
	defer db.Close()
	repo := NewPostgresRepository(db)

	mock.ExpectExec("UPDATE users SET plan_id").
		WithArgs("u-1", "pro", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.UpdatePlan(context.Background(), "u-1", "pro"); err != nil {
		t.Fatalf("UpdatePlan failed: %v", err)
	}
}

func TestPostgresRepository_UpdatePlanMissingUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %s", err)
	}
	defer db.Close()
	repo := NewPostgresRepository(db)

	mock.ExpectExec("UPDATE users SET plan_id").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.UpdatePlan(context.Background(), "ghost", "pro"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestPostgresRepository_UpdateSettings(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %s", err)
	}
	defer db.Close()
	repo := NewPostgresRepository(db)

	mock.ExpectExec("UPDATE users SET settings").
		WithArgs("u-1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.UpdateSettings(context.Background(), "u-1", map[string]any{"theme": "dark"}); err != nil {
		t.Fatalf("UpdateSettings failed: %v", err)
	}
}
