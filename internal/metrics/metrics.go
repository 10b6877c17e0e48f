// Package metrics provides Prometheus metrics for the monitor.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	CollectCyclesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "wgusage",
		Subsystem: "collect",
		Name:      "cycles_total",
		Help:      "Total number of sampling cycles attempted.",
	})
	CollectSkippedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "wgusage",
		Subsystem: "collect",
		Name:      "cycles_skipped_total",
		Help:      "Sampling cycles skipped because the interface snapshot was empty or failed.",
	})
	CollectPeerErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "wgusage",
		Subsystem: "collect",
		Name:      "peer_errors_total",
		Help:      "Per-peer ledger update failures (the cycle continues past them).",
	})
	PeersSampled = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "wgusage",
		Subsystem: "collect",
		Name:      "peers_sampled",
		Help:      "Number of peers seen in the most recent interface snapshot.",
	})
	BytesRecordedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wgusage",
		Subsystem: "collect",
		Name:      "bytes_recorded_total",
		Help:      "Raw byte increments folded into the ledger.",
	}, []string{"direction"}) // "received" or "sent"

	ReconcileDrift = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "wgusage",
		Subsystem: "reconcile",
		Name:      "drift",
		Help:      "Peer-set drift found by the most recent reconciliation.",
	}, []string{"kind"}) // "missing_in_registry" or "missing_in_live"
	ReconcileFixesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "wgusage",
		Subsystem: "reconcile",
		Name:      "fixes_total",
		Help:      "Registry entries added or removed by reconciliation auto-fix.",
	})
)

func init() {
	prometheus.MustRegister(
		CollectCyclesTotal,
		CollectSkippedTotal,
		CollectPeerErrorsTotal,
		PeersSampled,
		BytesRecordedTotal,
		ReconcileDrift,
		ReconcileFixesTotal,
	)
}
