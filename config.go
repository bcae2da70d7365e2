package authsession

import (
	"errors"
	"net/url"
	"strings"
	"time"
)

// Config holds every tunable of an Engine.
//
// Config instances are configured during initialization and then treated as
// immutable.
type Config struct {
	Provider     ProviderConfig
	Session      SessionConfig
	Refresh      RefreshConfig
	Account      AccountConfig
	Audit        AuditConfig
	Metrics      MetricsConfig
	Verification VerificationConfig
}

/*
====================================
PROVIDER CONFIG
====================================
*/

// ProviderConfig locates the identity provider.
type ProviderConfig struct {
	BaseURL   string        `env:"AUTHSESSION_PROVIDER_URL"`
	Timeout   time.Duration `env:"AUTHSESSION_PROVIDER_TIMEOUT"`
	RateLimit float64       `env:"AUTHSESSION_PROVIDER_RATE_LIMIT"` // calls per second, 0 = unthrottled
	RateBurst int           `env:"AUTHSESSION_PROVIDER_RATE_BURST"`
	UserAgent string        `env:"AUTHSESSION_PROVIDER_USER_AGENT"`
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls persisted sessions.
type SessionConfig struct {
	RedisPrefix string `env:"AUTHSESSION_SESSION_REDIS_PREFIX"`
	// Lifetime bounds a persisted record. Zero keeps refreshable sessions
	// until sign-out and others until their access token expires.
	Lifetime time.Duration `env:"AUTHSESSION_SESSION_LIFETIME"`
}

/*
====================================
REFRESH CONFIG
====================================
*/

// RefreshConfig controls the refresh coordinator and the transport.
type RefreshConfig struct {
	// Timeout bounds one provider refresh. It is independent of any caller's
	// context.
	Timeout time.Duration `env:"AUTHSESSION_REFRESH_TIMEOUT"`
	// Proactive refreshes before sending when the access token is known to
	// expire within Leeway.
	Proactive bool          `env:"AUTHSESSION_REFRESH_PROACTIVE"`
	Leeway    time.Duration `env:"AUTHSESSION_REFRESH_LEEWAY"`
}

/*
====================================
ACCOUNT CONFIG
====================================
*/

// AccountConfig controls signup.
type AccountConfig struct {
	AutoLogin bool `env:"AUTHSESSION_ACCOUNT_AUTO_LOGIN"`
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool `env:"AUTHSESSION_AUDIT_ENABLED"`
	BufferSize int  `env:"AUTHSESSION_AUDIT_BUFFER_SIZE"`
	DropIfFull bool `env:"AUTHSESSION_AUDIT_DROP_IF_FULL"`
}

// MetricsConfig controls in-process metrics.
type MetricsConfig struct {
	Enabled                 bool `env:"AUTHSESSION_METRICS_ENABLED"`
	EnableLatencyHistograms bool `env:"AUTHSESSION_METRICS_LATENCY"`
}

/*
====================================
VERIFICATION CONFIG
====================================
*/

// VerificationConfig turns on signature verification of access tokens.
// Disabled, claims are decoded without checking the signature.
type VerificationConfig struct {
	Enabled       bool   `env:"AUTHSESSION_VERIFY_ENABLED"`
	SigningMethod string `env:"AUTHSESSION_VERIFY_SIGNING_METHOD"` // "ed25519" or "hs256"
	// Key is the HS256 shared secret, or an Ed25519 public key (raw or PEM).
	Key      string        `env:"AUTHSESSION_VERIFY_KEY"`
	Issuer   string        `env:"AUTHSESSION_VERIFY_ISSUER"`
	Audience string        `env:"AUTHSESSION_VERIFY_AUDIENCE"`
	Leeway   time.Duration `env:"AUTHSESSION_VERIFY_LEEWAY"`
}

func defaultConfig() Config {
	return Config{
		Provider: ProviderConfig{
			BaseURL: "http://localhost:8000",
			Timeout: 10 * time.Second,
		},
		Session: SessionConfig{
			RedisPrefix: "as",
		},
		Refresh: RefreshConfig{
			Timeout: 15 * time.Second,
			Leeway:  30 * time.Second,
		},
		Account: AccountConfig{
			AutoLogin: true,
		},
		Audit: AuditConfig{
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Verification: VerificationConfig{
			SigningMethod: "ed25519",
		},
	}
}

// DefaultConfig returns the configuration New starts from.
func DefaultConfig() Config {
	return defaultConfig()
}

func cloneConfig(cfg Config) Config {
	return cfg
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	// Provider
	u, err := url.Parse(strings.TrimSpace(c.Provider.BaseURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("Provider BaseURL must be an absolute http(s) URL")
	}
	if c.Provider.Timeout <= 0 {
		return errors.New("Provider Timeout must be > 0")
	}
	if c.Provider.RateLimit < 0 {
		return errors.New("Provider RateLimit must be >= 0")
	}
	if c.Provider.RateBurst < 0 {
		return errors.New("Provider RateBurst must be >= 0")
	}

	// Session
	if strings.TrimSpace(c.Session.RedisPrefix) == "" {
		return errors.New("Session RedisPrefix must not be empty")
	}
	if c.Session.Lifetime < 0 {
		return errors.New("Session Lifetime must be >= 0")
	}

	// Refresh
	if c.Refresh.Timeout <= 0 {
		return errors.New("Refresh Timeout must be > 0")
	}
	if c.Refresh.Leeway < 0 {
		return errors.New("Refresh Leeway must be >= 0")
	}
	if c.Refresh.Proactive && c.Refresh.Leeway == 0 {
		return errors.New("Refresh Leeway must be > 0 when Proactive is true")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	// Verification
	if c.Verification.Enabled {
		if c.Verification.SigningMethod != "ed25519" && c.Verification.SigningMethod != "hs256" {
			return errors.New("Verification SigningMethod must be 'ed25519' or 'hs256'")
		}
		if c.Verification.Key == "" {
			return errors.New("Verification Key is required when verification is enabled")
		}
		if c.Verification.Leeway < 0 || c.Verification.Leeway > 2*time.Minute {
			return errors.New("Verification Leeway must be between 0 and 2m")
		}
		if c.Verification.Audience != "" && strings.TrimSpace(c.Verification.Audience) == "" {
			return errors.New("Verification Audience must not be blank")
		}
	}

	return nil
}
