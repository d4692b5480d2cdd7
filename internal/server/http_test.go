package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	authservice "identity-session-plane/internal/auth/service"
	"identity-session-plane/internal/gate"
	"identity-session-plane/internal/idp"
	ledgerrepo "identity-session-plane/internal/ledger/repository"
	"identity-session-plane/internal/policy/engine"
	"identity-session-plane/internal/rotation"
	"identity-session-plane/internal/security"
	"identity-session-plane/internal/server/middleware"
	sessionstore "identity-session-plane/internal/session/store"
	userdomain "identity-session-plane/internal/user/domain"
)

type stubProvider struct {
	pair    *idp.TokenPair
	logouts int
}

func (p *stubProvider) ExchangeAuthorizationCode(ctx context.Context, code string) (*idp.TokenPair, error) {
	return p.pair, nil
}

func (p *stubProvider) ExchangeRefreshToken(ctx context.Context, refreshToken string) (*idp.TokenPair, error) {
	return p.pair, nil
}

func (p *stubProvider) Logout(ctx context.Context, refreshToken string) error {
	p.logouts++
	return nil
}

type stubUserRepo struct{}

func (stubUserRepo) UpsertByExternalID(ctx context.Context, externalID, email string) (*userdomain.User, error) {
	return &userdomain.User{ID: "u-1", ExternalID: externalID, Email: email, PlanID: "free"}, nil
}

func (stubUserRepo) GetByID(ctx context.Context, id string) (*userdomain.User, error) {
	return &userdomain.User{ID: id, ExternalID: "ext-1", PlanID: "free", Settings: map[string]any{"theme": "dark"}}, nil
}

func (stubUserRepo) UpdatePlan(ctx context.Context, id, planID string) error { return nil }

func (stubUserRepo) UpdateSettings(ctx context.Context, id string, settings map[string]any) error {
	return nil
}

type memLedger struct {
	tokens  map[string]string
	revokes int
}

func newMemLedger() *memLedger { return &memLedger{tokens: map[string]string{}} }

func (l *memLedger) Save(ctx context.Context, userID, sessionID, token string, expiresAt time.Time) error {
	l.tokens[userID+"/"+sessionID] = token
	return nil
}

func (l *memLedger) FetchValid(ctx context.Context, userID, sessionID string) (string, error) {
	token, ok := l.tokens[userID+"/"+sessionID]
	if !ok {
		return "", ledgerrepo.ErrNotFound
	}
	return token, nil
}

func (l *memLedger) RevokeAll(ctx context.Context, userID, sessionID string) error {
	l.revokes++
	delete(l.tokens, userID+"/"+sessionID)
	return nil
}

type recordSyncer struct {
	plans []string
}

func (s *recordSyncer) Sync(ctx context.Context, userID, planID string) error {
	s.plans = append(s.plans, planID)
	return nil
}

type wiredRouter struct {
	handler  http.Handler
	provider *stubProvider
	ledger   *memLedger
	plans    *recordSyncer
}

func newWiredRouter(t *testing.T) *wiredRouter {
	t.Helper()
	gin.SetMode(gin.TestMode)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	access, err := security.MintTestToken("ext-1", "account", time.Now().Add(5*time.Minute))
	if err != nil {
		t.Fatalf("MintTestToken: %v", err)
	}
	verifier, err := security.NewTestVerifier()
	if err != nil {
		t.Fatalf("NewTestVerifier: %v", err)
	}
	policy, err := engine.NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator: %v", err)
	}

	provider := &stubProvider{pair: &idp.TokenPair{
		AccessToken:      access,
		RefreshToken:     "refresh-1",
		ExpiresIn:        300,
		RefreshExpiresIn: 1800,
	}}
	users := stubUserRepo{}
	ledger := newMemLedger()
	plans := &recordSyncer{}
	st := sessionstore.New(client, 24*time.Hour, 15*time.Minute, 3*time.Minute)
	orch := rotation.NewOrchestrator(ledger, provider, st, verifier, "account", time.Minute, 720*time.Hour)
	g := gate.New(st, orch, ledger)
	svc := authservice.NewAuthService(provider, verifier, users, st, ledger, plans, "account", 720*time.Hour)

	handler := Router(Deps{
		Auth:             svc,
		Gate:             g,
		Verifier:         verifier,
		Users:            users,
		Plans:            plans,
		Policy:           policy,
		Audience:         "account",
		InternalAudience: "internal-api",
	})
	return &wiredRouter{handler: handler, provider: provider, ledger: ledger, plans: plans}
}

func (wr *wiredRouter) login(t *testing.T) string {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/auth/login", bytes.NewBufferString(`{"code":"abc"}`))
	req.Header.Set("Content-Type", "application/json")
	wr.handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d, body %s", w.Code, w.Body.String())
	}
	var resp struct {
		SessionID string `json:"sessionId"`
		UserID    string `json:"userId"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if resp.UserID != "u-1" || resp.SessionID == "" {
		t.Fatalf("login response = %+v", resp)
	}
	return resp.SessionID
}

func TestRouter_LoginMeLogout(t *testing.T) {
	wr := newWiredRouter(t)
	sessionID := wr.login(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/me", nil)
	req.Header.Set(middleware.SessionHeader, sessionID)
	wr.handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("/me status = %d, body %s", w.Code, w.Body.String())
	}
	var me struct {
		UserID string `json:"userId"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &me); err != nil || me.UserID != "u-1" {
		t.Fatalf("/me = %s (err %v)", w.Body.String(), err)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest("POST", "/auth/logout", nil)
	req.Header.Set(middleware.SessionHeader, sessionID)
	wr.handler.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("logout status = %d, body %s", w.Code, w.Body.String())
	}
	if wr.provider.logouts != 1 {
		t.Errorf("provider logouts = %d, want 1", wr.provider.logouts)
	}
	if wr.ledger.revokes != 1 {
		t.Errorf("ledger revokes = %d, want 1", wr.ledger.revokes)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/me", nil)
	req.Header.Set(middleware.SessionHeader, sessionID)
	wr.handler.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("/me after logout status = %d, want 401", w.Code)
	}
}

func TestRouter_LoginSetsSessionCookie(t *testing.T) {
	wr := newWiredRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/auth/login", bytes.NewBufferString(`{"code":"abc"}`))
	req.Header.Set("Content-Type", "application/json")
	wr.handler.ServeHTTP(w, req)

	for _, c := range w.Result().Cookies() {
		if c.Name == middleware.SessionCookie && c.Value != "" && c.HttpOnly {
			return
		}
	}
	t.Error("expected an HttpOnly session cookie")
}

func TestRouter_Introspection(t *testing.T) {
	wr := newWiredRouter(t)
	sessionID := wr.login(t)

	w := httptest.NewRecorder()
	wr.handler.ServeHTTP(w, httptest.NewRequest("GET", "/internal/sessions/"+sessionID, nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated introspection status = %d, want 401", w.Code)
	}

	machine, err := security.MintTestToken("svc-billing", "internal-api", time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("MintTestToken: %v", err)
	}
	w = httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/internal/sessions/"+sessionID, nil)
	req.Header.Set("Authorization", "Bearer "+machine)
	wr.handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("introspection status = %d, body %s", w.Code, w.Body.String())
	}
	var resp struct {
		Status string `json:"status"`
		UserID string `json:"userId"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "valid" || resp.UserID != "u-1" {
		t.Errorf("introspection = %+v", resp)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/internal/sessions/no-such-session", nil)
	req.Header.Set("Authorization", "Bearer "+machine)
	wr.handler.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown session introspection status = %d, want 404", w.Code)
	}
}

func TestRouter_PlanUpdate(t *testing.T) {
	wr := newWiredRouter(t)

	machine, err := security.MintTestToken("svc-billing", "internal-api", time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("MintTestToken: %v", err)
	}
	w := httptest.NewRecorder()
	req := httptest.NewRequest("PUT", "/internal/users/u-1/plan", bytes.NewBufferString(`{"planId":"pro"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+machine)
	wr.handler.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("plan update status = %d, body %s", w.Code, w.Body.String())
	}
	// one sync from login is absent here; only the explicit update
	if len(wr.plans.plans) != 1 || wr.plans.plans[0] != "pro" {
		t.Errorf("synced plans = %v", wr.plans.plans)
	}
}

func TestRouter_Healthz(t *testing.T) {
	wr := newWiredRouter(t)

	w := httptest.NewRecorder()
	wr.handler.ServeHTTP(w, httptest.NewRequest("GET", "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Errorf("healthz status = %d, want 200", w.Code)
	}
}
