// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Grant engines accepted by GRANT_ENGINE.
const (
	GrantEngineTable = "table"
	GrantEngineOPA   = "opa"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// GRPCAddr is the address the gRPC server listens on (e.g. :8080).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// DatabaseURL is the Postgres DSN. Empty selects the in-memory stores (development only).
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`

	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file; used with JWT_PUBLIC_KEY for RS256/ES256.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file; used with JWT_PRIVATE_KEY.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTIssuer is the iss claim set on and required of access tokens.
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim set on and required of access tokens.
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token lifetime (e.g. "2h"). Tunable per deployment.
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// JWTRefreshTTL is the refresh token (session) lifetime (e.g. "168h").
	JWTRefreshTTL string `mapstructure:"JWT_REFRESH_TTL"`
	// JWTClockSkew is the leeway allowed on exp/iat when verifying access tokens.
	JWTClockSkew string `mapstructure:"JWT_CLOCK_SKEW"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// MaxSessionsPerUser bounds active sessions per user; the oldest is revoked on overflow.
	MaxSessionsPerUser int `mapstructure:"MAX_SESSIONS_PER_USER"`
	// RefreshGraceWindow is how long before access expiry NeedsRefresh turns true.
	RefreshGraceWindow string `mapstructure:"REFRESH_GRACE_WINDOW"`
	// RefreshTimeout bounds a refresh rotation and every caller waiting on it.
	RefreshTimeout string `mapstructure:"REFRESH_TIMEOUT"`
	// RefreshReuseGrace is how long a just-rotated token keeps returning the same pair
	// to late duplicate requests instead of being treated as a replay. 0 (default) disables,
	// so any presentation after a completed rotation is a replay.
	RefreshReuseGrace string `mapstructure:"REFRESH_REUSE_GRACE"`
	// VerifyTimeout bounds access token verification.
	VerifyTimeout string `mapstructure:"VERIFY_TIMEOUT"`

	// GrantEngine selects the access grant resolver: "table" or "opa".
	GrantEngine string `mapstructure:"GRANT_ENGINE"`
	// GrantTimeout bounds one access grant resolution; on expiry the gate denies.
	GrantTimeout string `mapstructure:"GRANT_TIMEOUT"`
	// DenialThreshold is the number of denials within DenialWindow that triggers the security responder.
	DenialThreshold int `mapstructure:"DENIAL_THRESHOLD"`
	// DenialWindow is the sliding window for DenialThreshold.
	DenialWindow string `mapstructure:"DENIAL_WINDOW"`

	// OIDCIssuerURL enables external-identity login when set.
	OIDCIssuerURL string `mapstructure:"OIDC_ISSUER_URL"`
	// OIDCClientID is the expected aud of external ID tokens.
	OIDCClientID string `mapstructure:"OIDC_CLIENT_ID"`

	// OTLPEndpoint is the OpenTelemetry collector endpoint; empty disables export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext gRPC to the collector.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	// ServiceName is the OTel service.name resource attribute.
	ServiceName string `mapstructure:"OTEL_SERVICE_NAME"`

	// LogLevel is the zerolog level (debug, info, warn, error).
	LogLevel string `mapstructure:"LOG_LEVEL"`
	// LogPretty switches to the human-readable console writer.
	LogPretty bool `mapstructure:"LOG_PRETTY"`

	// SessionRetention is how long revoked/expired session rows are kept before the worker reaps them.
	SessionRetention string `mapstructure:"SESSION_RETENTION"`
	// SweepInterval is how often the worker reaps sessions.
	SweepInterval string `mapstructure:"SWEEP_INTERVAL"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("GRPC_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_ISSUER", "storeguard-auth")
	v.SetDefault("JWT_AUDIENCE", "storeguard-api")
	v.SetDefault("JWT_ACCESS_TTL", "2h")
	v.SetDefault("JWT_REFRESH_TTL", "168h") // 7d
	v.SetDefault("JWT_CLOCK_SKEW", "30s")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("MAX_SESSIONS_PER_USER", 5)
	v.SetDefault("REFRESH_GRACE_WINDOW", "5m")
	v.SetDefault("REFRESH_TIMEOUT", "5s")
	v.SetDefault("REFRESH_REUSE_GRACE", "0s")
	v.SetDefault("VERIFY_TIMEOUT", "1s")
	v.SetDefault("GRANT_ENGINE", GrantEngineTable)
	v.SetDefault("GRANT_TIMEOUT", "2s")
	v.SetDefault("DENIAL_THRESHOLD", 5)
	v.SetDefault("DENIAL_WINDOW", "10m")
	v.SetDefault("OIDC_ISSUER_URL", "")
	v.SetDefault("OIDC_CLIENT_ID", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "storeguard")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", false)
	v.SetDefault("SESSION_RETENTION", "720h")
	v.SetDefault("SWEEP_INTERVAL", "1h")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.GRPCAddr == "" {
		return nil, errors.New("config: GRPC_ADDR must be set")
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}

	if cfg.MaxSessionsPerUser < 1 {
		return nil, errors.New("config: MAX_SESSIONS_PER_USER must be at least 1")
	}

	cfg.GrantEngine = strings.ToLower(strings.TrimSpace(cfg.GrantEngine))
	if cfg.GrantEngine != GrantEngineTable && cfg.GrantEngine != GrantEngineOPA {
		return nil, errors.New("config: GRANT_ENGINE must be table or opa")
	}

	if cfg.DenialThreshold < 1 {
		return nil, errors.New("config: DENIAL_THRESHOLD must be at least 1")
	}

	if cfg.IsProduction() && cfg.DatabaseURL == "" {
		return nil, errors.New("config: DATABASE_URL is required when APP_ENV=production")
	}

	return &cfg, nil
}

// IsProduction reports whether APP_ENV names a production deployment.
func (c *Config) IsProduction() bool {
	switch strings.ToLower(strings.TrimSpace(c.Env)) {
	case "prod", "production":
		return true
	}
	return false
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 2h if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	return parsePositive(c.JWTAccessTTL, 2*time.Hour)
}

// RefreshTTL parses JWTRefreshTTL as a time.Duration. Returns 168h if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	return parsePositive(c.JWTRefreshTTL, 168*time.Hour)
}

// ClockSkew parses JWTClockSkew. Returns 30s if unset or invalid; "0s" is honored.
func (c *Config) ClockSkew() time.Duration {
	return parseNonNegative(c.JWTClockSkew, 30*time.Second)
}

// GraceWindow parses RefreshGraceWindow. Returns 5m if unset or invalid.
func (c *Config) GraceWindow() time.Duration {
	return parsePositive(c.RefreshGraceWindow, 5*time.Minute)
}

// RefreshWait parses RefreshTimeout. Returns 5s if unset or invalid.
func (c *Config) RefreshWait() time.Duration {
	return parsePositive(c.RefreshTimeout, 5*time.Second)
}

// ReuseGrace parses RefreshReuseGrace. Returns 0 (disabled) if unset or invalid.
func (c *Config) ReuseGrace() time.Duration {
	return parseNonNegative(c.RefreshReuseGrace, 0)
}

// VerifyWait parses VerifyTimeout. Returns 1s if unset or invalid.
func (c *Config) VerifyWait() time.Duration {
	return parsePositive(c.VerifyTimeout, time.Second)
}

// GrantWait parses GrantTimeout. Returns 2s if unset or invalid.
func (c *Config) GrantWait() time.Duration {
	return parsePositive(c.GrantTimeout, 2*time.Second)
}

// DenialWindowDuration parses DenialWindow. Returns 10m if unset or invalid.
func (c *Config) DenialWindowDuration() time.Duration {
	return parsePositive(c.DenialWindow, 10*time.Minute)
}

// Retention parses SessionRetention. Returns 720h if unset or invalid.
func (c *Config) Retention() time.Duration {
	return parseNonNegative(c.SessionRetention, 720*time.Hour)
}

// Sweep parses SweepInterval. Returns 1h if unset or invalid.
func (c *Config) Sweep() time.Duration {
	return parsePositive(c.SweepInterval, time.Hour)
}

func parsePositive(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func parseNonNegative(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil || d < 0 {
		return def
	}
	return d
}
