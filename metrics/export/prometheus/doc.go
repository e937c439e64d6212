// Package prometheus exposes engine metrics through client_golang.
//
// [Collector] is a prometheus.Collector that reads [tokengate.Engine.MetricsSnapshot]
// on each scrape. Counter names are tokengate_*_total and the gate latency histogram is
// tokengate_gate_latency_seconds. Register it on your own registry, or mount [Handler]
// for a private one.
package prometheus
