package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "agent_trader"

var (
	registry = prometheus.NewRegistry()
	once     sync.Once

	exchangeRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exchange_requests_total",
			Help:      "Exchange API calls by operation and result.",
		},
		[]string{"op", "result"},
	)
	exchangeLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "exchange_request_seconds",
			Help:      "Latency of exchange API calls in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"op"},
	)
	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Resource cache lookups by kind and result (hit, miss, stale, empty).",
		},
		[]string{"kind", "result"},
	)
	intents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intents_total",
			Help:      "Processed trade intents by type and outcome.",
		},
		[]string{"type", "outcome"},
	)
	rejects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejects_total",
			Help:      "Rejected intents by reason.",
		},
		[]string{"reason"},
	)
	reconciled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciled_trades_total",
			Help:      "Trades closed by the reconciler by exit type.",
		},
		[]string{"exit_type"},
	)
	openTrades = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "open_trades",
		Help:      "Number of OPEN trades in the journal.",
	})
	tickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "tick_seconds",
		Help:      "Duration of one runner tick.",
		Buckets:   prometheus.DefBuckets,
	})
	degraded = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "exchange_degraded",
		Help:      "1 when the exchange client runs in degraded (read/cache-only) mode.",
	})
)

// Init регистрирует метрики один раз.
func Init() {
	once.Do(func() {
		registry.MustRegister(
			prometheus.NewGoCollector(),
			prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
			exchangeRequests,
			exchangeLatency,
			cacheLookups,
			intents,
			rejects,
			reconciled,
			openTrades,
			tickDuration,
			degraded,
		)
	})
}

// Registry отдаёт приватный реестр (для тестов и Gather).
func Registry() *prometheus.Registry {
	Init()
	return registry
}

// Handler: http.Handler для /metrics.
func Handler() http.Handler {
	Init()
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

func ObserveExchangeCall(op, result string, d time.Duration) {
	Init()
	exchangeRequests.WithLabelValues(op, result).Inc()
	exchangeLatency.WithLabelValues(op).Observe(d.Seconds())
}

func IncCacheLookup(kind, result string) {
	Init()
	cacheLookups.WithLabelValues(kind, result).Inc()
}

func IncIntent(intentType, outcome string) {
	Init()
	intents.WithLabelValues(intentType, outcome).Inc()
}

func IncReject(reason string) {
	Init()
	rejects.WithLabelValues(reason).Inc()
}

func IncReconciled(exitType string) {
	Init()
	reconciled.WithLabelValues(exitType).Inc()
}

func SetOpenTrades(n int) {
	Init()
	openTrades.Set(float64(n))
}

func ObserveTick(d time.Duration) {
	Init()
	tickDuration.Observe(d.Seconds())
}

func SetDegraded(on bool) {
	Init()
	if on {
		degraded.Set(1)
		return
	}
	degraded.Set(0)
}
