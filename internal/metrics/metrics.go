// Package metrics collects Prometheus metrics for the runtime's
// membership, broadcast, replication, and transport subsystems.
// Exporting them over HTTP is out of scope: this package registers
// collectors on an isolated Registry and leaves scraping to whatever
// embeds it.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the collectors a running peer exposes.
type Metrics struct {
	Registry *prometheus.Registry

	MembershipActiveView  prometheus.Gauge
	MembershipPassiveView prometheus.Gauge

	GossipDelivered  *prometheus.CounterVec
	GossipDuplicates *prometheus.CounterVec
	GossipReAsked    *prometheus.CounterVec

	ReplicationTotal    *prometheus.CounterVec
	ReplicationBytes    prometheus.Counter
	FetcherSlotWaitsMS  prometheus.Histogram
	RateLimitRejections *prometheus.CounterVec

	MDNSDiscoveredTotal *prometheus.CounterVec
}

// New builds a fresh collector set on its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,

		MembershipActiveView: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "linkd_membership_active_view_size",
			Help: "Current size of the HyParView active view.",
		}),
		MembershipPassiveView: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "linkd_membership_passive_view_size",
			Help: "Current size of the HyParView passive view.",
		}),

		GossipDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linkd_gossip_delivered_total",
			Help: "Total gossip payloads delivered to local storage.",
		}, []string{"urn"}),
		GossipDuplicates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linkd_gossip_duplicates_total",
			Help: "Total gossip payloads recognized as already seen.",
		}, []string{"urn"}),
		GossipReAsked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linkd_gossip_reasked_total",
			Help: "Total gossip payloads that failed to apply and were scheduled for a retry.",
		}, []string{"urn"}),

		ReplicationTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linkd_replication_total",
			Help: "Total replication runs by outcome.",
		}, []string{"outcome"}),
		ReplicationBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "linkd_replication_bytes_total",
			Help: "Total bytes transferred via fetch-pack across all replications.",
		}),
		FetcherSlotWaitsMS: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "linkd_fetcher_slot_wait_milliseconds",
			Help:    "Time spent waiting to acquire a per-(urn,remote) fetcher slot.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		RateLimitRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linkd_rate_limit_rejections_total",
			Help: "Total inbound messages rejected by the per-peer rate limiter.",
		}, []string{"kind"}),

		MDNSDiscoveredTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linkd_mdns_discovered_total",
			Help: "Total peers discovered via mDNS.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.MembershipActiveView,
		m.MembershipPassiveView,
		m.GossipDelivered,
		m.GossipDuplicates,
		m.GossipReAsked,
		m.ReplicationTotal,
		m.ReplicationBytes,
		m.FetcherSlotWaitsMS,
		m.RateLimitRejections,
		m.MDNSDiscoveredTotal,
	)

	return m
}
