// Package otel provides OpenTelemetry metric bindings for goAuthz counters and
// the authorize latency histogram.
//
// [New] registers an Int64ObservableCounter per counter. A histogram becomes
// a "_bucket" gauge with one point per le attribute and a "_count" gauge.
// One callback reads [goAuthz.Engine.MetricsSnapshot] per collection.
//
// # What this package must NOT do
//
//   - Own the MeterProvider; callers supply the Meter.
//   - Mutate engine state.
package otel
