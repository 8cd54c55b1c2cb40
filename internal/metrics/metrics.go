package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SyncCyclesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "siteplan_sync_cycles_total",
		Help: "Ingestion cycles by layer and outcome",
	}, []string{"layer", "status"})
	SyncRecordsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "siteplan_sync_records_total",
		Help: "Records applied by ingestion, by layer and operation",
	}, []string{"layer", "op"})
	InvalidGeometryTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "siteplan_invalid_geometry_total",
		Help: "Incoming records rejected by validation",
	}, []string{"layer"})
	SyncAnomaliesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "siteplan_sync_anomalies_total",
		Help: "Anomalies that blocked promotion, by kind",
	}, []string{"kind"})
	SyncDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "siteplan_sync_duration_seconds",
		Help:    "Duration of one scope's fetch and reconcile",
		Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"layer"})
	ResolveTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "siteplan_resolve_total",
		Help: "Spatial resolutions by outcome",
	}, []string{"outcome"})
	RuleConflictsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "siteplan_rule_conflicts_total",
		Help: "Rule lookups that matched more than one planning rule",
	})
	RulesUnavailableTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "siteplan_rules_unavailable_total",
		Help: "Rule lookups that produced no usable rule, by reason",
	}, []string{"reason"})
	CacheHitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "siteplan_cache_hits_total",
		Help: "Cache hits by tier",
	}, []string{"tier"})
	CacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "siteplan_cache_misses_total",
		Help: "Lookups that missed every cache tier",
	})
	StoreVersion = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "siteplan_store_version",
		Help: "Version of the promoted geometry snapshot",
	})
	RequestDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "siteplan_request_duration_ms",
		Help:    "HTTP request duration in milliseconds",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000},
	}, []string{"method", "route", "status"})
)

func init() {
	prometheus.MustRegister(SyncCyclesTotal)
	prometheus.MustRegister(SyncRecordsTotal)
	prometheus.MustRegister(InvalidGeometryTotal)
	prometheus.MustRegister(SyncAnomaliesTotal)
	prometheus.MustRegister(SyncDurationSeconds)
	prometheus.MustRegister(ResolveTotal)
	prometheus.MustRegister(RuleConflictsTotal)
	prometheus.MustRegister(RulesUnavailableTotal)
	prometheus.MustRegister(CacheHitsTotal)
	prometheus.MustRegister(CacheMissesTotal)
	prometheus.MustRegister(StoreVersion)
	prometheus.MustRegister(RequestDurationMs)
}

// Handler exposes the registered collectors for scraping.
func Handler() http.Handler { return promhttp.Handler() }
