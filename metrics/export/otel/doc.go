// Package otel publishes engine metrics as OpenTelemetry instruments.
//
// [NewExporter] registers one Int64ObservableCounter per engine counter and a gauge
// per latency bucket on a caller-supplied Meter. A single callback reads
// [tokengate.Engine.MetricsSnapshot] on each collection cycle. The MeterProvider and
// its readers stay with the caller.
package otel
