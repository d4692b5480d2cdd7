package audit

import (
	"context"
	"errors"
	"testing"

	"identity-session-plane/internal/audit/domain"
)

// mockAuditRepo implements audit repository interface for tests.
type mockAuditRepo struct {
	entries   []*domain.AuditLog
	createErr error
}

func (m *mockAuditRepo) GetByID(ctx context.Context, id string) (*domain.AuditLog, error) {
	return nil, nil
}

func (m *mockAuditRepo) Create(ctx context.Context, entry *domain.AuditLog) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.entries = append(m.entries, entry)
	return nil
}

func (m *mockAuditRepo) ListByUser(ctx context.Context, userID string, limit, offset int32) ([]*domain.AuditLog, error) {
	return nil, nil
}

func TestLogger_LogEvent_Success(t *testing.T) {
	repo := &mockAuditRepo{}
	ipExtractor := func(ctx context.Context) string {
		return "192.168.1.1"
	}
	logger := NewLogger(repo, ipExtractor)
	ctx := context.Background()

	logger.LogEvent(ctx, "user-1", "login", "session", "metadata")

	if len(repo.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(repo.entries))
	}
	entry := repo.entries[0]
	if entry.UserID != "user-1" {
		t.Errorf("user_id = %q, want %q", entry.UserID, "user-1")
	}
	if entry.Action != "login" {
		t.Errorf("action = %q, want %q", entry.Action, "login")
	}
	if entry.Resource != "session" {
		t.Errorf("resource = %q, want %q", entry.Resource, "session")
	}
	if entry.IP != "192.168.1.1" {
		t.Errorf("ip = %q, want %q", entry.IP, "192.168.1.1")
	}
	if entry.Metadata != "metadata" {
		t.Errorf("metadata = %q, want %q", entry.Metadata, "metadata")
	}
	if entry.ID == "" {
		t.Error("entry ID should be set")
	}
	if entry.CreatedAt.IsZero() {
		t.Error("entry CreatedAt should be set")
	}
}

func TestLogger_LogEvent_NoIPExtractor(t *testing.T) {
	repo := &mockAuditRepo{}
	logger := NewLogger(repo, nil)

	logger.LogEvent(context.Background(), "user-1", "logout", "session", "")

	if len(repo.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(repo.entries))
	}
	if repo.entries[0].IP != "unknown" {
		t.Errorf("ip = %q, want unknown", repo.entries[0].IP)
	}
}

func TestLogger_LogEvent_RepoFailureIsSwallowed(t *testing.T) {
	repo := &mockAuditRepo{createErr: errors.New("db down")}
	logger := NewLogger(repo, nil)

	// Must not panic or propagate; audit is best-effort.
	logger.LogEvent(context.Background(), "user-1", "login", "session", "")

	if len(repo.entries) != 0 {
		t.Error("no entry should be recorded on failure")
	}
}

func TestLogger_LogEvent_NilRepo(t *testing.T) {
	logger := NewLogger(nil, nil)
	logger.LogEvent(context.Background(), "user-1", "login", "session", "")
}
