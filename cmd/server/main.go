package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"identity-session-plane/internal/audit/repository"
	authservice "identity-session-plane/internal/auth/service"
	"identity-session-plane/internal/cache"
	"identity-session-plane/internal/config"
	"identity-session-plane/internal/db"
	"identity-session-plane/internal/events"
	"identity-session-plane/internal/gate"
	"identity-session-plane/internal/idp"
	ledgerrepo "identity-session-plane/internal/ledger/repository"
	"identity-session-plane/internal/plan"
	"identity-session-plane/internal/policy/engine"
	"identity-session-plane/internal/rotation"
	"identity-session-plane/internal/security"
	"identity-session-plane/internal/server"
	sessionstore "identity-session-plane/internal/session/store"
	otelsetup "identity-session-plane/internal/telemetry/otel"
	userrepo "identity-session-plane/internal/user/repository"
)

const serviceName = "identity-session-plane"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()

	providers, err := otelsetup.NewProviders(ctx, cfg.OTLPEndpoint, serviceName, cfg.Env != "production")
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	providers.SetGlobal()

	sqlDB, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer sqlDB.Close()

	redisClient, err := cache.Open(cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	defer redisClient.Close()

	cipher, err := security.NewCipher(cfg.TokenCipherSecret)
	if err != nil {
		log.Fatalf("cipher: %v", err)
	}
	verifier, err := security.NewVerifier(cfg.IDPPublicKey, cfg.IDPIssuer)
	if err != nil {
		log.Fatalf("verifier: %v", err)
	}

	provider, err := idp.NewClient(idp.Config{
		TokenURL:     cfg.IDPTokenURL,
		UsersURL:     cfg.IDPUsersURL,
		LogoutURL:    cfg.IDPLogoutURL,
		ClientID:     cfg.IDPClientID,
		ClientSecret: cfg.IDPClientSecret,
		RedirectURL:  cfg.IDPRedirectURL,
	})
	if err != nil {
		log.Fatalf("idp: %v", err)
	}
	machineTokens := idp.NewMachineTokenSource(provider, redisClient)

	policy, err := engine.NewEvaluator()
	if err != nil {
		log.Fatalf("policy: %v", err)
	}

	planRoles, err := cfg.PlanRoles()
	if err != nil {
		log.Fatalf("plan roles: %v", err)
	}

	ledger := ledgerrepo.NewPostgresRepository(sqlDB, cipher)
	users := userrepo.NewPostgresRepository(sqlDB)
	auditLogs := repository.NewPostgresRepository(sqlDB)
	sessions := sessionstore.New(redisClient, cfg.SessionMaxTTLD(), cfg.SessionInactivityTimeoutD(), cfg.SessionRefreshThresholdD())

	plans := plan.NewSynchronizer(provider, machineTokens, planRoles)
	orch := rotation.NewOrchestrator(ledger, provider, sessions, verifier, cfg.IDPAudience, cfg.RefreshWindowD(), cfg.RefreshTokenTTLD())
	sessionGate := gate.New(sessions, orch, ledger)
	auth := authservice.NewAuthService(provider, verifier, users, sessions, ledger, plans, cfg.IDPAudience, cfg.RefreshTokenTTLD())

	var producer events.Producer
	if brokers := cfg.EventsKafkaBrokersList(); len(brokers) > 0 {
		kp, err := events.NewKafkaProducer(brokers, cfg.EventsKafkaTopic)
		if err != nil {
			log.Fatalf("kafka: %v", err)
		}
		producer = kp
	} else {
		producer = otelsetup.NewEventProducer(providers.LoggerProvider)
	}

	srv := server.New(cfg.HTTPAddr, server.Deps{
		Auth:                auth,
		Gate:                sessionGate,
		Verifier:            verifier,
		Users:               users,
		Plans:               plans,
		Policy:              policy,
		AuditRepo:           auditLogs,
		Producer:            producer,
		HealthPinger:        sqlDB,
		HealthPolicyChecker: policy,
		Audience:            cfg.IDPAudience,
		InternalAudience:    cfg.IDPInternalAudience,
		CookieSecure:        cfg.Env == "production",
	})

	go func() {
		log.Printf("HTTP server listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	time.Sleep(events.ShutdownDrainDuration)
	if producer != nil {
		if err := producer.Close(); err != nil {
			log.Printf("producer close: %v", err)
		}
	}
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Printf("telemetry shutdown: %v", err)
	}
	log.Println("HTTP server stopped")
}
