package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "walletmon"

var (
	// Rate limiter
	RateLimitWaits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ratelimit",
		Name:      "waits_total",
		Help:      "Acquires that had to wait for a token",
	})

	RateLimitDailyCost = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "ratelimit",
		Name:      "daily_cost",
		Help:      "Provider credits charged since local midnight",
	})

	// Result cache
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "lookups_total",
		Help:      "Result cache lookups by outcome",
	}, []string{"cache", "result"})

	// Token metadata
	MetadataResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "metadata",
		Name:      "resolutions_total",
		Help:      "Token metadata lookups by provider and outcome",
	}, []string{"provider", "outcome"})

	// Scanner
	ScansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scanner",
		Name:      "scans_total",
		Help:      "Wallet approval scans by kind and outcome",
	}, []string{"kind", "outcome"})

	ScanLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "scanner",
		Name:      "scan_duration_seconds",
		Help:      "Wallet approval scan duration",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"kind"})

	// Monitor
	AlertsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "monitor",
		Name:      "alerts_total",
		Help:      "Alerts emitted by type and severity",
	}, []string{"type", "severity"})

	MonitorTicks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "monitor",
		Name:      "poll_ticks_total",
		Help:      "Poll ticks by outcome (run|skipped)",
	}, []string{"outcome"})

	WalletChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "monitor",
		Name:      "wallet_checks_total",
		Help:      "Per-wallet checks by trigger and outcome",
	}, []string{"trigger", "outcome"})

	WalletsByMode = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "monitor",
		Name:      "wallets",
		Help:      "Watched wallets by delivery mode",
	}, []string{"mode"})
)
