// Package prometheus exposes goAuthz counters and the authorize latency
// histogram to Prometheus.
//
// [PrometheusExporter] is a prometheus.Collector. It can be registered with an
// application registry, or served on its own through [PrometheusExporter.Handler],
// which uses a private registry. Counter names follow goauthz_*_total; the
// histogram is goauthz_authorize_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in the global Prometheus registry.
//   - Mutate engine state.
package prometheus
