// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the Postgres DSN for the refresh token ledger and user records.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// RedisAddr is the Redis host:port for the session store and machine-token cache.
	RedisAddr string `mapstructure:"REDIS_ADDR"`
	// RedisPassword is the Redis password; empty for unauthenticated Redis.
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`

	// IDPTokenURL is the identity provider token endpoint (authorization_code, refresh_token, client_credentials grants).
	IDPTokenURL string `mapstructure:"IDP_TOKEN_URL"`
	// IDPUsersURL is the base URL of the provider's per-user admin API; role calls go to {IDPUsersURL}/{userID}/role-mappings/realm.
	IDPUsersURL string `mapstructure:"IDP_USERS_URL"`
	// IDPLogoutURL is the provider logout endpoint; called best-effort on logout.
	IDPLogoutURL string `mapstructure:"IDP_LOGOUT_URL"`
	// IDPClientID is the OAuth2 client id used for all grants.
	IDPClientID string `mapstructure:"IDP_CLIENT_ID"`
	// IDPClientSecret is the OAuth2 client secret.
	IDPClientSecret string `mapstructure:"IDP_CLIENT_SECRET"`
	// IDPRedirectURL is the redirect_uri sent with the authorization_code grant.
	IDPRedirectURL string `mapstructure:"IDP_REDIRECT_URL"`
	// IDPIssuer is the expected iss claim on provider-signed tokens.
	IDPIssuer string `mapstructure:"IDP_ISSUER"`
	// IDPAudience is the expected aud claim on user access tokens.
	IDPAudience string `mapstructure:"IDP_AUDIENCE"`
	// IDPInternalAudience is the expected aud claim on machine-to-machine tokens for the internal API.
	IDPInternalAudience string `mapstructure:"IDP_INTERNAL_AUDIENCE"`
	// IDPPublicKey is the PEM-encoded provider realm public key (RSA or ECDSA) or a path to it.
	IDPPublicKey string `mapstructure:"IDP_PUBLIC_KEY"`

	// TokenCipherSecret is the secret the refresh-token cipher key is derived from. Required at startup.
	TokenCipherSecret string `mapstructure:"TOKEN_CIPHER_SECRET"`

	// SessionMaxTTL caps the session record lifetime in Redis (e.g. "24h").
	SessionMaxTTL string `mapstructure:"SESSION_MAX_TTL"`
	// SessionInactivityTimeout is the sliding inactivity window (e.g. "15m").
	SessionInactivityTimeout string `mapstructure:"SESSION_INACTIVITY_TIMEOUT"`
	// SessionRefreshThreshold is the liveness-marker remaining TTL below which a fetch re-arms it (e.g. "3m").
	SessionRefreshThreshold string `mapstructure:"SESSION_REFRESH_THRESHOLD"`
	// RefreshWindow is how close to access-token expiry a request triggers rotation (e.g. "60s").
	RefreshWindow string `mapstructure:"REFRESH_WINDOW"`
	// RefreshTokenTTL is the ledger lifetime of an issued refresh token (e.g. "720h").
	RefreshTokenTTL string `mapstructure:"REFRESH_TOKEN_TTL"`

	// PlanRoleMap maps plan ids to provider role ids as comma-separated pairs (e.g. "free=role-free,pro=role-pro").
	PlanRoleMap string `mapstructure:"PLAN_ROLE_MAP"`

	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`

	// EventsKafkaBrokers is a comma-separated list of Kafka broker addresses; empty disables the security event stream.
	EventsKafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// EventsKafkaTopic is the Kafka topic for security events.
	EventsKafkaTopic string `mapstructure:"EVENTS_KAFKA_TOPIC"`
	// KafkaGroupID is the consumer group ID for the audit worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
	// LokiURL is the Loki base URL the audit worker pushes events to (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`
	// OTLPEndpoint is the OTLP gRPC collector endpoint; empty disables telemetry export.
	OTLPEndpoint string `mapstructure:"OTLP_ENDPOINT"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("IDP_ISSUER", "")
	v.SetDefault("IDP_AUDIENCE", "account")
	v.SetDefault("IDP_INTERNAL_AUDIENCE", "internal-api")
	v.SetDefault("SESSION_MAX_TTL", "24h")
	v.SetDefault("SESSION_INACTIVITY_TIMEOUT", "15m")
	v.SetDefault("SESSION_REFRESH_THRESHOLD", "3m")
	v.SetDefault("REFRESH_WINDOW", "60s")
	v.SetDefault("REFRESH_TOKEN_TTL", "720h") // 30d
	v.SetDefault("PLAN_ROLE_MAP", "")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("EVENTS_KAFKA_TOPIC", "isp-security-events")
	v.SetDefault("KAFKA_GROUP_ID", "isp-audit-worker")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("OTLP_ENDPOINT", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if cfg.SessionRefreshThresholdD() >= cfg.SessionInactivityTimeoutD() {
		return nil, errors.New("config: SESSION_REFRESH_THRESHOLD must be below SESSION_INACTIVITY_TIMEOUT")
	}

	return &cfg, nil
}

// SessionMaxTTLD parses SessionMaxTTL as a time.Duration. Returns 24h if unset or invalid.
func (c *Config) SessionMaxTTLD() time.Duration {
	return parseDuration(c.SessionMaxTTL, 24*time.Hour)
}

// SessionInactivityTimeoutD parses SessionInactivityTimeout. Returns 15m if unset or invalid.
func (c *Config) SessionInactivityTimeoutD() time.Duration {
	return parseDuration(c.SessionInactivityTimeout, 15*time.Minute)
}

// SessionRefreshThresholdD parses SessionRefreshThreshold. Returns 3m if unset or invalid.
func (c *Config) SessionRefreshThresholdD() time.Duration {
	return parseDuration(c.SessionRefreshThreshold, 3*time.Minute)
}

// RefreshWindowD parses RefreshWindow. Returns 60s if unset or invalid.
func (c *Config) RefreshWindowD() time.Duration {
	return parseDuration(c.RefreshWindow, 60*time.Second)
}

// RefreshTokenTTLD parses RefreshTokenTTL. Returns 720h if unset or invalid.
func (c *Config) RefreshTokenTTLD() time.Duration {
	return parseDuration(c.RefreshTokenTTL, 720*time.Hour)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// PlanRoles parses PlanRoleMap into a plan→role table. Malformed pairs return an error
// so a typo cannot silently unmap a plan.
func (c *Config) PlanRoles() (map[string]string, error) {
	out := map[string]string{}
	if c == nil || strings.TrimSpace(c.PlanRoleMap) == "" {
		return out, nil
	}
	for _, pair := range strings.Split(c.PlanRoleMap, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		plan, role, ok := strings.Cut(pair, "=")
		plan, role = strings.TrimSpace(plan), strings.TrimSpace(role)
		if !ok || plan == "" || role == "" {
			return nil, fmt.Errorf("config: malformed PLAN_ROLE_MAP entry %q", pair)
		}
		out[plan] = role
	}
	return out, nil
}

// EventsKafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if the security event stream is enabled (non-empty list) and to create the producer.
func (c *Config) EventsKafkaBrokersList() []string {
	if c == nil || c.EventsKafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.EventsKafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
