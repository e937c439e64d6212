package internaldefs

import (
	"github.com/MrEthical07/tokengate"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   tokengate.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for exporters.
type HistogramDef struct {
	ID   tokengate.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: tokengate.MetricLoginSuccess, Name: "tokengate_login_success_total", Help: "Successful logins."},
	{ID: tokengate.MetricLoginFailure, Name: "tokengate_login_failure_total", Help: "Rejected logins."},
	{ID: tokengate.MetricLoginRateLimited, Name: "tokengate_login_rate_limited_total", Help: "Logins refused by the attempt throttle."},
	{ID: tokengate.MetricRegisterSuccess, Name: "tokengate_register_success_total", Help: "Successful registrations."},
	{ID: tokengate.MetricRegisterDuplicate, Name: "tokengate_register_duplicate_total", Help: "Registrations rejected as duplicate."},
	{ID: tokengate.MetricRefreshSuccess, Name: "tokengate_refresh_success_total", Help: "Successful refresh rotations."},
	{ID: tokengate.MetricRefreshFailure, Name: "tokengate_refresh_failure_total", Help: "Failed refresh rotations."},
	{ID: tokengate.MetricRefreshRaceLost, Name: "tokengate_refresh_race_lost_total", Help: "Refreshes that lost the conditional revoke to a concurrent caller."},
	{ID: tokengate.MetricLogout, Name: "tokengate_logout_total", Help: "Logout calls."},
	{ID: tokengate.MetricLogoutPartialFailure, Name: "tokengate_logout_partial_failure_total", Help: "Logouts where a revocation step failed."},
	{ID: tokengate.MetricLogoutAll, Name: "tokengate_logout_all_total", Help: "Revoke-all-for-owner operations."},
	{ID: tokengate.MetricTokenBlacklisted, Name: "tokengate_token_blacklisted_total", Help: "Access tokens added to the revocation registry."},
	{ID: tokengate.MetricGatePublic, Name: "tokengate_gate_public_total", Help: "Requests bypassing the gate on public routes."},
	{ID: tokengate.MetricGateAllowed, Name: "tokengate_gate_allowed_total", Help: "Requests admitted by the gate."},
	{ID: tokengate.MetricGateNoToken, Name: "tokengate_gate_no_token_total", Help: "Requests rejected without a bearer token."},
	{ID: tokengate.MetricGateRevoked, Name: "tokengate_gate_revoked_total", Help: "Requests rejected with a revoked token."},
	{ID: tokengate.MetricGateExpired, Name: "tokengate_gate_expired_total", Help: "Requests rejected with an expired token."},
	{ID: tokengate.MetricGateInvalid, Name: "tokengate_gate_invalid_total", Help: "Requests rejected with an invalid token."},
	{ID: tokengate.MetricGateForbidden, Name: "tokengate_gate_forbidden_total", Help: "Requests rejected for insufficient role."},
	{ID: tokengate.MetricGateStoreFailure, Name: "tokengate_gate_store_failure_total", Help: "Requests rejected because the revocation store was unreachable."},
	{ID: tokengate.MetricSweepRun, Name: "tokengate_sweep_run_total", Help: "Expired-record sweeps."},
	{ID: tokengate.MetricSweepFailure, Name: "tokengate_sweep_failure_total", Help: "Sweeps with at least one failed part."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: tokengate.MetricGateLatency, Name: "tokengate_gate_latency_seconds", Help: "Gate decision latency."},
}

// AuditDroppedName is the counter for audit events lost to backpressure.
const AuditDroppedName = "tokengate_audit_dropped_total"

// HistogramBounds are the upper bounds of the engine's latency buckets.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundValues mirrors HistogramBounds without the +Inf bucket.
var HistogramBoundValues = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix is HistogramBounds in a form usable in instrument names.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed array, padding missing buckets with zero.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
