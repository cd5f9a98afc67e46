package internaldefs

import (
	"strconv"

	"github.com/voyz/tokenauth"
)

// Label is one dimension of a counter in the dimensional layout.
type Label struct {
	Key   string
	Value string
}

// CounterDef maps an engine counter to its exported name. Instrument and
// Labels place it in the dimensional layout, where counters that describe
// outcomes of one operation share an instrument and differ by labels.
type CounterDef struct {
	ID         tokenauth.MetricID
	Name       string
	Help       string
	Instrument string
	Labels     []Label
}

// HistogramDef maps an engine latency histogram to its exported names.
type HistogramDef struct {
	ID         tokenauth.MetricID
	Name       string
	Help       string
	Instrument string
}

// InstrumentDef describes a dimensional instrument.
type InstrumentDef struct {
	Name string
	Unit string
	Help string
}

// Dimensional instrument names.
const (
	InstrumentOperations       = "tokenauth.operations"
	InstrumentRefreshRejected  = "tokenauth.refresh.rejected"
	InstrumentSessionsExpired  = "tokenauth.sessions.expired"
	InstrumentStoreFailures    = "tokenauth.store.failures"
	InstrumentAuditDropped     = "tokenauth.audit.dropped"
	InstrumentValidateDuration = "tokenauth.validate.duration"
	InstrumentRefreshDuration  = "tokenauth.refresh.duration"
)

// InstrumentDefs lists the counter instruments of the dimensional layout.
var InstrumentDefs = []InstrumentDef{
	{Name: InstrumentOperations, Unit: "{operation}", Help: "Engine operations by operation and outcome."},
	{Name: InstrumentRefreshRejected, Unit: "{refresh}", Help: "Refresh attempts rejected by their session, by reason."},
	{Name: InstrumentSessionsExpired, Unit: "{session}", Help: "Expired sessions removed, by removal path."},
	{Name: InstrumentStoreFailures, Unit: "{error}", Help: "Session store failures."},
}

func op(name, outcome string) []Label {
	return []Label{{Key: "operation", Value: name}, {Key: "outcome", Value: outcome}}
}

// CounterDefs lists every exported counter in render order.
var CounterDefs = []CounterDef{
	{ID: tokenauth.MetricLoginSuccess, Name: "tokenauth_login_success_total", Help: "Token pairs issued.",
		Instrument: InstrumentOperations, Labels: op("login", "success")},
	{ID: tokenauth.MetricLoginFailure, Name: "tokenauth_login_failure_total", Help: "Failed token issuance.",
		Instrument: InstrumentOperations, Labels: op("login", "failure")},
	{ID: tokenauth.MetricRefreshSuccess, Name: "tokenauth_refresh_success_total", Help: "Successful access token rotations.",
		Instrument: InstrumentOperations, Labels: op("refresh", "success")},
	{ID: tokenauth.MetricRefreshFailure, Name: "tokenauth_refresh_failure_total", Help: "Failed refresh operations.",
		Instrument: InstrumentOperations, Labels: op("refresh", "failure")},
	{ID: tokenauth.MetricRefreshMismatch, Name: "tokenauth_refresh_mismatch_total", Help: "Refresh tokens no longer bound to their session.",
		Instrument: InstrumentRefreshRejected, Labels: []Label{{Key: "reason", Value: "mismatch"}}},
	{ID: tokenauth.MetricRefreshExpired, Name: "tokenauth_refresh_expired_total", Help: "Refresh attempts at or after session expiry.",
		Instrument: InstrumentRefreshRejected, Labels: []Label{{Key: "reason", Value: "expired"}}},
	{ID: tokenauth.MetricValidateSuccess, Name: "tokenauth_validate_success_total", Help: "Access tokens that verified.",
		Instrument: InstrumentOperations, Labels: op("validate", "success")},
	{ID: tokenauth.MetricValidateFailure, Name: "tokenauth_validate_failure_total", Help: "Access tokens that failed verification.",
		Instrument: InstrumentOperations, Labels: op("validate", "failure")},
	{ID: tokenauth.MetricSessionResumed, Name: "tokenauth_session_resumed_total", Help: "Access tokens confirmed against their session.",
		Instrument: InstrumentOperations, Labels: op("resume", "success")},
	{ID: tokenauth.MetricSessionResumeFailure, Name: "tokenauth_session_resume_failure_total", Help: "Failed session resumes.",
		Instrument: InstrumentOperations, Labels: op("resume", "failure")},
	{ID: tokenauth.MetricLogout, Name: "tokenauth_logout_total", Help: "Logout operations.",
		Instrument: InstrumentOperations, Labels: op("logout", "success")},
	{ID: tokenauth.MetricSessionExpiredLazily, Name: "tokenauth_session_expired_lazily_total", Help: "Expired sessions deleted on read.",
		Instrument: InstrumentSessionsExpired, Labels: []Label{{Key: "path", Value: "lazy"}}},
	{ID: tokenauth.MetricSweepRun, Name: "tokenauth_sweep_run_total", Help: "Completed expiry sweeps.",
		Instrument: InstrumentOperations, Labels: op("sweep", "success")},
	{ID: tokenauth.MetricSweepFailure, Name: "tokenauth_sweep_failure_total", Help: "Failed expiry sweeps.",
		Instrument: InstrumentOperations, Labels: op("sweep", "failure")},
	{ID: tokenauth.MetricSweepRemoved, Name: "tokenauth_sweep_removed_total", Help: "Sessions removed by expiry sweeps.",
		Instrument: InstrumentSessionsExpired, Labels: []Label{{Key: "path", Value: "sweep"}}},
	{ID: tokenauth.MetricPersistenceFailure, Name: "tokenauth_persistence_failure_total", Help: "Session store failures.",
		Instrument: InstrumentStoreFailures},
}

// HistogramDefs lists every exported latency histogram.
var HistogramDefs = []HistogramDef{
	{ID: tokenauth.MetricValidateLatency, Name: "tokenauth_validate_latency_seconds", Help: "Validate latency histogram.",
		Instrument: InstrumentValidateDuration},
	{ID: tokenauth.MetricRefreshLatency, Name: "tokenauth_refresh_latency_seconds", Help: "Refresh latency histogram.",
		Instrument: InstrumentRefreshDuration},
}

// AuditDroppedName is the counter for audit events dropped under backpressure.
const AuditDroppedName = "tokenauth_audit_dropped_total"

// AuditDroppedHelp describes AuditDroppedName.
const AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."

// UpperBounds are the finite bucket bounds in seconds. The eighth bucket is +Inf.
var UpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// BucketLabels returns the "le" label value of each bucket, +Inf included.
func BucketLabels() []string {
	out := make([]string, 0, len(UpperBounds)+1)
	for _, bound := range UpperBounds {
		out = append(out, strconv.FormatFloat(bound, 'g', -1, 64))
	}
	return append(out, "+Inf")
}

// NormalizeBuckets copies raw into a fixed eight-bucket array, padding with zeros.
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
