// Package internaldefs holds the metric names, help strings and bucket
// bounds shared by the Prometheus and OpenTelemetry exporters. Prometheus
// publishes one flat series per counter; OpenTelemetry groups the same
// counters into a few instruments distinguished by labels.
//
// It performs no I/O and imports no exporter package.
package internaldefs
