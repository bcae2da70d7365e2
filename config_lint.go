package authsession

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

// LintSeverity ranks a configuration warning.
type LintSeverity int

const (
	LintInfo LintSeverity = iota
	LintWarn
	LintHigh
)

func (s LintSeverity) String() string {
	switch s {
	case LintInfo:
		return "INFO"
	case LintWarn:
		return "WARN"
	case LintHigh:
		return "HIGH"
	default:
		return "UNKNOWN"
	}
}

// LintWarning is a valid but questionable setting.
type LintWarning struct {
	Code     string
	Severity LintSeverity
	Message  string
}

// LintResult is the list of warnings produced by Config.Lint.
type LintResult []LintWarning

// Codes returns the warning codes in order.
func (r LintResult) Codes() []string {
	out := make([]string, 0, len(r))
	for _, w := range r {
		out = append(out, w.Code)
	}
	return out
}

// BySeverity returns the warnings at or above min.
func (r LintResult) BySeverity(min LintSeverity) LintResult {
	var out LintResult
	for _, w := range r {
		if w.Severity >= min {
			out = append(out, w)
		}
	}
	return out
}

// AsError returns an error listing the warnings at or above min, or nil.
func (r LintResult) AsError(min LintSeverity) error {
	hits := r.BySeverity(min)
	if len(hits) == 0 {
		return nil
	}
	codes := hits.Codes()
	return fmt.Errorf("config lint: %d warning(s) at %s or above: %s", len(hits), min, strings.Join(codes, ", "))
}

// Lint reports settings that pass Validate but are likely mistakes.
func (c Config) Lint() LintResult {
	var ws LintResult
	add := func(code string, sev LintSeverity, msg string) {
		ws = append(ws, LintWarning{Code: code, Severity: sev, Message: msg})
	}

	if u, err := url.Parse(c.Provider.BaseURL); err == nil && u.Scheme == "http" && !isLoopbackHost(u.Hostname()) {
		add("provider_plaintext", LintHigh, "credentials are sent to a non-loopback provider over plain http")
	}
	if c.Provider.Timeout > c.Refresh.Timeout {
		add("provider_timeout_exceeds_refresh", LintWarn, "Refresh.Timeout cuts off provider calls before Provider.Timeout")
	}
	if c.Refresh.Timeout > time.Minute {
		add("refresh_timeout_long", LintWarn, "waiters may block for over a minute on one refresh")
	}
	if c.Refresh.Proactive && c.Refresh.Leeway > 5*time.Minute {
		add("proactive_leeway_large", LintWarn, "proactive refresh leeway above 5m refreshes most requests")
	}
	if !c.Verification.Enabled {
		add("verification_disabled", LintInfo, "access token claims are decoded without signature verification")
	} else if c.Verification.SigningMethod == "hs256" {
		add("verification_hs256", LintWarn, "hs256 verification shares the provider's signing secret")
	}
	if !c.Audit.Enabled {
		add("audit_disabled", LintInfo, "audit events are not emitted")
	}
	if !c.Metrics.Enabled {
		add("metrics_disabled", LintInfo, "metrics are not collected")
	}

	return ws
}

func isLoopbackHost(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
