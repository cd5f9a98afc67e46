// Package otel publishes tokenauth engine metrics through OpenTelemetry.
//
// [NewOTelExporter] registers a handful of observable instruments:
// tokenauth.operations (attributes operation and outcome),
// tokenauth.refresh.rejected (reason), tokenauth.sessions.expired (path),
// tokenauth.store.failures and tokenauth.audit.dropped, plus a bucket and a
// count gauge per latency histogram. One callback reads
// [tokenauth.Engine.MetricsSnapshot] per collection cycle. The caller owns
// the MeterProvider.
package otel
