package authsession

import (
	"net/url"
	"time"
)

// SecurityReport summarizes the security-relevant settings of an Engine.
type SecurityReport struct {
	ProviderURL         string
	ProviderTLS         bool
	VerificationEnabled bool
	SigningMethod       string
	IssuerPinned        bool
	AudiencePinned      bool
	PersistenceEnabled  bool
	SignOutEverywhere   bool
	SessionLifetime     time.Duration
	RefreshTimeout      time.Duration
	ProactiveRefresh    bool
	ProactiveLeeway     time.Duration
	AutoLogin           bool
	OutboundRateLimited bool
	AuditEnabled        bool
	MetricsEnabled      bool
	LintHighFindings    []string
}

// SecurityReport describes how e is configured. It holds no secrets.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	cfg := e.config
	u, _ := url.Parse(cfg.Provider.BaseURL)

	report := SecurityReport{
		ProviderURL:         cfg.Provider.BaseURL,
		ProviderTLS:         u != nil && u.Scheme == "https",
		VerificationEnabled: cfg.Verification.Enabled,
		PersistenceEnabled:  e.persister != nil,
		SignOutEverywhere:   e.subjects != nil,
		SessionLifetime:     cfg.Session.Lifetime,
		RefreshTimeout:      cfg.Refresh.Timeout,
		ProactiveRefresh:    cfg.Refresh.Proactive,
		AutoLogin:           cfg.Account.AutoLogin,
		OutboundRateLimited: cfg.Provider.RateLimit > 0,
		AuditEnabled:        cfg.Audit.Enabled,
		MetricsEnabled:      cfg.Metrics.Enabled,
	}
	if cfg.Refresh.Proactive {
		report.ProactiveLeeway = cfg.Refresh.Leeway
	}
	if cfg.Verification.Enabled {
		report.SigningMethod = cfg.Verification.SigningMethod
		report.IssuerPinned = cfg.Verification.Issuer != ""
		report.AudiencePinned = cfg.Verification.Audience != ""
	}
	for _, w := range cfg.Lint().BySeverity(LintHigh) {
		report.LintHighFindings = append(report.LintHighFindings, w.Code)
	}

	return report
}
