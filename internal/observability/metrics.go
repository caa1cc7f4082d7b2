package observability

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/noni/smptweaks/internal/pkg/logger"
)

type Metrics struct {
	registry *prometheus.Registry

	storeOps       *prometheus.CounterVec
	storeLatency   *prometheus.HistogramVec
	poolStats      *prometheus.GaugeVec
	degraded       prometheus.Gauge
	activePlayers  prometheus.Gauge
	flushTotal     *prometheus.CounterVec
	cacheLookups   *prometheus.CounterVec
	workerTotal    prometheus.Counter
	workerPanics   prometheus.Counter
	redisUp        prometheus.Gauge
	redisPing      prometheus.Gauge
	startupSeconds prometheus.Gauge
	httpRequests   *prometheus.CounterVec
	httpLatency    *prometheus.HistogramVec
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	v := strings.TrimSpace(os.Getenv("METRICS_ENABLED"))
	if v == "" {
		return false
	}
	return strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
}

func Current() *Metrics {
	return instance
}

// Init builds the process-wide metrics set once. enabled overrides
// METRICS_ENABLED when the configuration file turns metrics on.
func Init(log *logger.Logger, enabled bool) *Metrics {
	if !enabled && !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = New()
		if log != nil {
			log.Info("metrics initialized")
		}
	})
	return instance
}

// New returns a metrics set on its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		storeOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smptweaks_store_operations_total",
			Help: "Progression store operations by backend/op/status.",
		}, []string{"backend", "op", "status"}),
		storeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "smptweaks_store_operation_duration_seconds",
			Help:    "Progression store operation latency in seconds.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"backend", "op"}),
		poolStats: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "smptweaks_store_pool",
			Help: "Connection pool state by backend and field.",
		}, []string{"backend", "field"}),
		degraded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "smptweaks_persistence_degraded",
			Help: "1 while persistence runs in degraded (no-op) mode.",
		}),
		activePlayers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "smptweaks_active_players",
			Help: "Players with a live progression record in memory.",
		}),
		flushTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smptweaks_progression_flush_total",
			Help: "Progression saves by trigger and status.",
		}, []string{"trigger", "status"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smptweaks_cache_lookups_total",
			Help: "Progression cache lookups by result.",
		}, []string{"result"}),
		workerTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smptweaks_worker_tasks_total",
			Help: "Background persistence tasks executed.",
		}),
		workerPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smptweaks_worker_panics_total",
			Help: "Background persistence tasks that panicked.",
		}),
		redisUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "smptweaks_redis_up",
			Help: "1 when the progression cache answers PING.",
		}),
		redisPing: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "smptweaks_redis_ping_seconds",
			Help: "Latest progression cache PING round trip.",
		}),
		startupSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "smptweaks_startup_seconds",
			Help: "Time taken by the last startup sequence.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smptweaks_http_requests_total",
			Help: "Admin HTTP requests by method/route/status.",
		}, []string{"method", "route", "status"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "smptweaks_http_request_duration_seconds",
			Help:    "Admin HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	reg.MustRegister(
		m.storeOps,
		m.storeLatency,
		m.poolStats,
		m.degraded,
		m.activePlayers,
		m.flushTotal,
		m.cacheLookups,
		m.workerTotal,
		m.workerPanics,
		m.redisUp,
		m.redisPing,
		m.startupSeconds,
		m.httpRequests,
		m.httpLatency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveStoreOperation(backend, op, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.storeOps.WithLabelValues(backend, op, status).Inc()
	m.storeLatency.WithLabelValues(backend, op).Observe(dur.Seconds())
}

func (m *Metrics) SetDegraded(on bool) {
	if m == nil {
		return
	}
	if on {
		m.degraded.Set(1)
		return
	}
	m.degraded.Set(0)
}

func (m *Metrics) SetActivePlayers(n int) {
	if m == nil {
		return
	}
	m.activePlayers.Set(float64(n))
}

func (m *Metrics) IncFlush(trigger, status string) {
	if m == nil {
		return
	}
	m.flushTotal.WithLabelValues(trigger, status).Inc()
}

func (m *Metrics) IncCacheLookup(result string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) IncWorkerTask(panicked bool) {
	if m == nil {
		return
	}
	m.workerTotal.Inc()
	if panicked {
		m.workerPanics.Inc()
	}
}

func (m *Metrics) ObserveStartup(dur time.Duration) {
	if m == nil {
		return
	}
	m.startupSeconds.Set(dur.Seconds())
}

func (m *Metrics) ObserveHTTP(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, status).Inc()
	m.httpLatency.WithLabelValues(method, route).Observe(dur.Seconds())
}

// PoolSnapshot is what StartPoolCollector samples.
type PoolSnapshot struct {
	Capacity int
	InUse    int
	Open     int
	WaitTime time.Duration
}

func (m *Metrics) StartPoolCollector(ctx context.Context, backend string, sample func() PoolSnapshot) {
	if m == nil || sample == nil {
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s := sample()
				m.poolStats.WithLabelValues(backend, "capacity").Set(float64(s.Capacity))
				m.poolStats.WithLabelValues(backend, "in_use").Set(float64(s.InUse))
				m.poolStats.WithLabelValues(backend, "open_connections").Set(float64(s.Open))
				m.poolStats.WithLabelValues(backend, "wait_duration_seconds").Set(s.WaitTime.Seconds())
			}
		}
	}()
}

func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, rdb *redis.Client) {
	if m == nil || rdb == nil {
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				start := time.Now()
				if err := rdb.Ping(ctx).Err(); err != nil {
					m.redisUp.Set(0)
					if log != nil {
						log.Warn("metrics: redis ping failed", "error", err)
					}
					continue
				}
				m.redisUp.Set(1)
				m.redisPing.Set(time.Since(start).Seconds())
			}
		}
	}()
}

func scrapeInterval() time.Duration {
	v := strings.TrimSpace(os.Getenv("METRICS_SCRAPE_INTERVAL_SECONDS"))
	if v == "" {
		return 10 * time.Second
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 10 * time.Second
	}
	return time.Duration(n) * time.Second
}
