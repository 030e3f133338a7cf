// Package telemetry exposes Prometheus counters for the evaluation loop.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CyclesTotal counts completed scheduler cycles.
	CyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zeus_cycles_total",
		Help: "Completed evaluation cycles.",
	})

	// DecisionsTotal counts emitted edge decisions, by station.
	DecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zeus_decisions_total",
		Help: "Edge decisions emitted by the sizer.",
	}, []string{"station"})

	// TradesTotal counts paper trades written to the ledger, by station.
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zeus_paper_trades_total",
		Help: "Paper trades appended to the ledger.",
	}, []string{"station"})

	// UpstreamErrorsTotal counts upstream failures, by provider.
	UpstreamErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zeus_upstream_errors_total",
		Help: "Upstream fetch failures after retries.",
	}, []string{"provider"})

	// CycleDuration observes wall time per cycle.
	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "zeus_cycle_duration_seconds",
		Help:    "Wall time of one full evaluation cycle.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	})
)
