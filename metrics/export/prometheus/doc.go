// Package prometheus exposes authsession engine metrics to Prometheus.
//
// [PrometheusExporter] is a client_golang Collector; register it with your
// own registry or mount [PrometheusExporter.Handler]. Counter names are
// authsession_*_total and the refresh latency histogram is
// authsession_refresh_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in the global Prometheus registry.
//   - Mutate engine state.
package prometheus
