// Package prometheus exposes tokenauth engine metrics as a
// client_golang Collector.
//
// Counters are named tokenauth_*_total; the validate and refresh latency
// histograms are tokenauth_validate_latency_seconds and
// tokenauth_refresh_latency_seconds. [PrometheusExporter.Handler] serves a
// private registry; [PrometheusExporter.Register] adds the collector to a
// caller's registry instead. Nothing is registered globally.
package prometheus
