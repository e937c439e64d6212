package tokengate

import (
	internalmetrics "github.com/MrEthical07/tokengate/internal/metrics"
)

// MetricID identifies a specific counter or histogram in the in-process metrics system.
type MetricID = internalmetrics.MetricID

const (
	MetricLoginSuccess         = internalmetrics.MetricLoginSuccess
	MetricLoginFailure         = internalmetrics.MetricLoginFailure
	MetricLoginRateLimited     = internalmetrics.MetricLoginRateLimited
	MetricRegisterSuccess      = internalmetrics.MetricRegisterSuccess
	MetricRegisterDuplicate    = internalmetrics.MetricRegisterDuplicate
	MetricRefreshSuccess       = internalmetrics.MetricRefreshSuccess
	MetricRefreshFailure       = internalmetrics.MetricRefreshFailure
	MetricRefreshRaceLost      = internalmetrics.MetricRefreshRaceLost
	MetricLogout               = internalmetrics.MetricLogout
	MetricLogoutPartialFailure = internalmetrics.MetricLogoutPartialFailure
	MetricLogoutAll            = internalmetrics.MetricLogoutAll
	MetricTokenBlacklisted     = internalmetrics.MetricTokenBlacklisted
	MetricGatePublic           = internalmetrics.MetricGatePublic
	MetricGateAllowed          = internalmetrics.MetricGateAllowed
	MetricGateNoToken          = internalmetrics.MetricGateNoToken
	MetricGateRevoked          = internalmetrics.MetricGateRevoked
	MetricGateExpired          = internalmetrics.MetricGateExpired
	MetricGateInvalid          = internalmetrics.MetricGateInvalid
	MetricGateForbidden        = internalmetrics.MetricGateForbidden
	MetricGateStoreFailure     = internalmetrics.MetricGateStoreFailure
	MetricSweepRun             = internalmetrics.MetricSweepRun
	MetricSweepFailure         = internalmetrics.MetricSweepFailure
	// MetricGateLatency is the only histogram.
	MetricGateLatency = internalmetrics.MetricGateLatency
)

// Metrics holds atomic counters and the optional gate latency histogram.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time copy of all metrics.
type MetricsSnapshot = internalmetrics.Snapshot

// NewMetrics creates a [Metrics] instance. When cfg.Enabled is false all operations are no-ops.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(internalmetrics.Config{
		Enabled:       cfg.Enabled,
		EnableLatency: cfg.EnableLatencyHistograms,
	})
}
