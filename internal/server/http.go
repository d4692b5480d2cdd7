// Package server wires the HTTP surface: routes, middleware, and the server
// itself. Construction is dependency-injected so tests can stand up a router
// with fakes.
package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	auditrepo "identity-session-plane/internal/audit/repository"
	authhandler "identity-session-plane/internal/auth/handler"
	authservice "identity-session-plane/internal/auth/service"
	"identity-session-plane/internal/events"
	"identity-session-plane/internal/gate"
	healthhandler "identity-session-plane/internal/health/handler"
	"identity-session-plane/internal/security"
	"identity-session-plane/internal/server/middleware"
	sessionhandler "identity-session-plane/internal/session/handler"
	userhandler "identity-session-plane/internal/user/handler"
	userrepo "identity-session-plane/internal/user/repository"
)

// Deps holds the dependencies the HTTP routes are built from.
type Deps struct {
	// Auth is the login/logout service. Required.
	Auth *authservice.AuthService
	// Gate validates sessions for /me and the introspection endpoint. Required.
	Gate *gate.Gate
	// Verifier checks provider-signed tokens. Required.
	Verifier *security.Verifier
	// Users backs the internal settings and plan endpoints. Required.
	Users userrepo.Repository
	// Plans pushes plan changes to the provider role mapping. Required.
	Plans userhandler.PlanSyncer
	// Policy resolves roles to permissions for introspection. If nil, responses omit permissions.
	Policy sessionhandler.PermissionEvaluator
	// AuditRepo receives per-request audit entries. If nil, requests are not audited.
	AuditRepo auditrepo.Repository
	// Producer is the security event stream. If nil, no events are emitted.
	Producer events.Producer
	// HealthPinger is probed by /healthz (e.g. *sql.DB). If nil, the DB check is skipped.
	HealthPinger healthhandler.Pinger
	// HealthPolicyChecker is probed by /healthz (e.g. the OPA evaluator). If nil, the policy check is skipped.
	HealthPolicyChecker healthhandler.PolicyChecker

	// Audience is the expected aud claim on user access tokens.
	Audience string
	// InternalAudience is the expected aud claim on machine-to-machine tokens.
	InternalAudience string
	// CookieSecure sets the Secure flag on session cookies; off only in development.
	CookieSecure bool
}

// Router builds the gin engine with all routes and middleware registered.
func Router(deps Deps) *gin.Engine {
	skip := map[string]bool{"/healthz": true}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestTelemetry(deps.Producer, skip))
	r.Use(middleware.Audit(deps.AuditRepo, skip))

	health := healthhandler.NewHandler(deps.HealthPinger, deps.HealthPolicyChecker)
	r.GET("/healthz", health.Check)

	auth := authhandler.NewHandler(deps.Auth, deps.Producer, deps.CookieSecure)
	r.POST("/auth/login", auth.Login)
	r.POST("/auth/logout", auth.Logout)

	requireSession := middleware.RequireSession(deps.Gate, deps.Verifier, deps.Audience, deps.Producer)
	r.GET("/me", requireSession, auth.Me)

	sessions := sessionhandler.NewHandler(deps.Gate, deps.Verifier, deps.Policy, deps.Audience)
	users := userhandler.NewHandler(deps.Users, deps.Plans, deps.Producer)

	internal := r.Group("/internal", middleware.RequireServiceToken(deps.Verifier, deps.InternalAudience))
	internal.GET("/sessions/:id", sessions.Introspect)
	internal.GET("/users/:id/settings", users.GetSettings)
	internal.PUT("/users/:id/settings", users.UpdateSettings)
	internal.PUT("/users/:id/plan", users.UpdatePlan)

	return r
}

// New returns an http.Server serving the wired routes on addr.
func New(addr string, deps Deps) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           Router(deps),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
