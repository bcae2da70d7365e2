package internaldefs

import (
	"github.com/MrEthical07/authsession"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   authsession.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for exporters.
type HistogramDef struct {
	ID   authsession.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: authsession.MetricLoginSuccess, Name: "authsession_login_success_total", Help: "Successful logins."},
	{ID: authsession.MetricLoginFailure, Name: "authsession_login_failure_total", Help: "Failed logins."},
	{ID: authsession.MetricSignupSuccess, Name: "authsession_signup_success_total", Help: "Accounts created."},
	{ID: authsession.MetricSignupFailure, Name: "authsession_signup_failure_total", Help: "Rejected or failed signups."},
	{ID: authsession.MetricSignupAutoLoginFailure, Name: "authsession_signup_auto_login_failure_total", Help: "Signups whose follow-up login failed."},
	{ID: authsession.MetricSignOut, Name: "authsession_sign_out_total", Help: "Sign-outs, single and everywhere."},
	{ID: authsession.MetricRefreshStarted, Name: "authsession_refresh_started_total", Help: "Refresh calls sent to the identity provider."},
	{ID: authsession.MetricRefreshCoalesced, Name: "authsession_refresh_coalesced_total", Help: "Refresh requests that joined an in-flight refresh."},
	{ID: authsession.MetricRefreshSuccess, Name: "authsession_refresh_success_total", Help: "Successful refreshes."},
	{ID: authsession.MetricRefreshFailure, Name: "authsession_refresh_failure_total", Help: "Failed refreshes that cleared the session."},
	{ID: authsession.MetricRefreshSuperseded, Name: "authsession_refresh_superseded_total", Help: "Refresh outcomes discarded because the session changed in flight."},
	{ID: authsession.MetricRefreshRotated, Name: "authsession_refresh_rotated_total", Help: "Refreshes that rotated the refresh token."},
	{ID: authsession.MetricProactiveRefresh, Name: "authsession_proactive_refresh_total", Help: "Refreshes started before sending a request."},
	{ID: authsession.MetricRequestRetried, Name: "authsession_request_retried_total", Help: "Requests retried after a refresh."},
	{ID: authsession.MetricUnauthenticated, Name: "authsession_unauthenticated_total", Help: "Requests failed for lack of a usable credential."},
	{ID: authsession.MetricSessionCleared, Name: "authsession_session_cleared_total", Help: "Sessions cleared by a failure."},
	{ID: authsession.MetricSessionRestored, Name: "authsession_session_restored_total", Help: "Sessions restored from the persister."},
	{ID: authsession.MetricPersistFailure, Name: "authsession_persist_failure_total", Help: "Session record writes or deletes that failed."},
}

var HistogramDefs = []HistogramDef{
	{ID: authsession.MetricRefreshLatency, Name: "authsession_refresh_latency_seconds", Help: "Identity provider refresh latency."},
}

// HistogramUpperBounds are the finite bucket bounds in seconds. The last
// engine bucket is +Inf.
var HistogramUpperBounds = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}

var HistogramBounds = []string{
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"1",
	"+Inf",
}

var HistogramBoundSuffix = []string{
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"1",
	"inf",
}

// NormalizeBuckets copies raw into a fixed array, zero-filling missing
// buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
