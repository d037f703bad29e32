// Package metrics exposes the Prometheus instrumentation surface named in
// SPEC_FULL.md's AMBIENT STACK section. None of it is mandatory: a caller
// that never constructs a Recorder pays nothing, matching the teacher's
// pattern of lazily-registered per-instance stats (cf. the `stats` package
// referenced from ais/prxs3.go).
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Recorder groups the named metrics a buddy allocator, pool, broker, or
// relay instance can report into, labeled by instance name.
type Recorder struct {
	BuddyBlocksInUse    *prometheus.GaugeVec
	BuddyFreeListDepth  *prometheus.GaugeVec
	PoolClusters        *prometheus.GaugeVec
	PoolFillRate        *prometheus.GaugeVec
	BrokerMessagesTotal *prometheus.CounterVec
	RelayMchainDepth    *prometheus.GaugeVec
	RelayPendingTotal   *prometheus.CounterVec
	RelayPendingSeconds *prometheus.HistogramVec
}

// New builds a Recorder and registers its collectors with reg.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		BuddyBlocksInUse: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ash_buddy_blocks_in_use",
			Help: "Number of outstanding buddy allocator blocks.",
		}, []string{"instance"}),
		BuddyFreeListDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ash_buddy_free_list_depth",
			Help: "Number of free blocks at a given buddy table index.",
		}, []string{"instance", "index"}),
		PoolClusters: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ash_pool_clusters",
			Help: "Number of clusters owned by an object pool.",
		}, []string{"instance"}),
		PoolFillRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ash_pool_fill_rate",
			Help: "Fraction of free slots in the object pool's current cluster.",
		}, []string{"instance"}),
		BrokerMessagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ash_broker_messages_total",
			Help: "Messages offered to a broker via SendMessage, by returned status.",
		}, []string{"instance", "status"}),
		RelayMchainDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ash_relay_mchain_depth",
			Help: "Number of messages currently resident in a relay's mchain.",
		}, []string{"instance"}),
		RelayPendingTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ash_relay_pending_total",
			Help: "Number of times a relay reported Pending back-pressure.",
		}, []string{"instance"}),
		RelayPendingSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ash_relay_pending_seconds",
			Help:    "Time a message spent resident in a relay's mchain before Success or RelayError.",
			Buckets: prometheus.DefBuckets,
		}, []string{"instance"}),
	}

	reg.MustRegister(
		r.BuddyBlocksInUse,
		r.BuddyFreeListDepth,
		r.PoolClusters,
		r.PoolFillRate,
		r.BrokerMessagesTotal,
		r.RelayMchainDepth,
		r.RelayPendingTotal,
		r.RelayPendingSeconds,
	)
	return r
}
