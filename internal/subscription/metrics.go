package subscription

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	diffsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_sync_diffs_applied_total",
		Help: "Diffs that changed local state, by resource and kind.",
	}, []string{"resource", "kind"})

	snapshotsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_sync_snapshots_total",
		Help: "Full partition snapshots received, by resource.",
	}, []string{"resource"})

	reconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_sync_reconnects_total",
		Help: "Transport failures followed by a reconnect attempt, by resource.",
	}, []string{"resource"})

	decodeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_sync_decode_failures_total",
		Help: "Remote documents that could not be decoded and were skipped.",
	}, []string{"resource"})

	livePartitions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "catalog_sync_live_partitions",
		Help: "Partitions currently in the live state.",
	})
)
