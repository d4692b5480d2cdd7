package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"identity-session-plane/internal/events"
	"identity-session-plane/internal/gate"
	"identity-session-plane/internal/security"
	sessiondomain "identity-session-plane/internal/session/domain"
	"identity-session-plane/internal/session/store"
)

type fakeSessionStore struct {
	sess     sessiondomain.Session
	active   bool
	fetchErr error
	deletes  int
}

func (f *fakeSessionStore) Fetch(ctx context.Context, id string) (sessiondomain.Session, bool, error) {
	if f.fetchErr != nil {
		return sessiondomain.Session{}, false, f.fetchErr
	}
	return f.sess, f.active, nil
}

func (f *fakeSessionStore) Delete(ctx context.Context, id string) (bool, error) {
	f.deletes++
	return true, nil
}

type passthroughRefresher struct{}

func (passthroughRefresher) MaybeRefresh(ctx context.Context, sessionID string, sess sessiondomain.Session) (sessiondomain.Session, bool, error) {
	return sess, false, nil
}

type noopRevoker struct{}

func (noopRevoker) RevokeAll(ctx context.Context, userID, sessionID string) error { return nil }

type captureProducer struct {
	mu     sync.Mutex
	events []*events.SecurityEvent
}

func (p *captureProducer) Emit(ctx context.Context, e *events.SecurityEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *captureProducer) Close() error { return nil }

func (p *captureProducer) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.EventType
	}
	return out
}

func sessionRouter(t *testing.T, st *fakeSessionStore, producer events.Producer) *gin.Engine {
	t.Helper()
	verifier, err := security.NewTestVerifier()
	if err != nil {
		t.Fatalf("NewTestVerifier: %v", err)
	}
	g := gate.New(st, passthroughRefresher{}, noopRevoker{})
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", RequireSession(g, verifier, "account", producer), func(c *gin.Context) {
		userID, _ := GetUserID(c.Request.Context())
		sessionID, _ := GetSessionID(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"userId": userID, "sessionId": sessionID})
	})
	return r
}

func liveSession(t *testing.T) sessiondomain.Session {
	t.Helper()
	exp := time.Now().Add(5 * time.Minute)
	token, err := security.MintTestToken("ext-1", "account", exp)
	if err != nil {
		t.Fatalf("MintTestToken: %v", err)
	}
	return sessiondomain.Session{UserID: "u-1", AccessToken: token, AccessExp: exp.Unix()}
}

func TestRequireSession_HeaderAccepted(t *testing.T) {
	st := &fakeSessionStore{sess: liveSession(t), active: true}
	r := sessionRouter(t, st, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/me", nil)
	req.Header.Set(SessionHeader, "s-1")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if got := w.Body.String(); got != `{"sessionId":"s-1","userId":"u-1"}` {
		t.Errorf("body = %s", got)
	}
}

func TestRequireSession_CookieAccepted(t *testing.T) {
	st := &fakeSessionStore{sess: liveSession(t), active: true}
	r := sessionRouter(t, st, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/me", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "s-2"})
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
}

func TestRequireSession_MissingID(t *testing.T) {
	st := &fakeSessionStore{sess: liveSession(t), active: true}
	r := sessionRouter(t, st, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/me", nil))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestRequireSession_UnknownSession(t *testing.T) {
	st := &fakeSessionStore{fetchErr: store.ErrNotFound}
	r := sessionRouter(t, st, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/me", nil)
	req.Header.Set(SessionHeader, "ghost")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestRequireSession_LapsedMarkerEmitsExpiry(t *testing.T) {
	st := &fakeSessionStore{sess: liveSession(t), active: false}
	producer := &captureProducer{}
	r := sessionRouter(t, st, producer)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/me", nil)
	req.Header.Set(SessionHeader, "s-1")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if st.deletes != 1 {
		t.Errorf("deletes = %d, want teardown", st.deletes)
	}

	deadline := time.After(time.Second)
	for len(producer.types()) == 0 {
		select {
		case <-deadline:
			t.Fatal("no event emitted")
		case <-time.After(10 * time.Millisecond):
		}
	}
	if got := producer.types(); got[0] != events.TypeSessionExpired {
		t.Errorf("event type = %q", got[0])
	}
}
