package output

import (
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/sohell-ranaa/ssh-guardian-2.0-sub001/internal/domain"
)

// StatsSource supplies the current engine statistics for gauge callbacks.
type StatsSource func() domain.EngineStats

type PrometheusMetrics struct {
	eventsScored    prometheus.CounterFunc
	eventsByVerdict *prometheus.CounterVec
	eventsByResult  *prometheus.CounterVec
	threatsDetected *prometheus.CounterVec
	degradedScores  prometheus.Counter
	riskScore       prometheus.Histogram
	processingTime  prometheus.Histogram
	activeWorkers   prometheus.GaugeFunc
	eventsPerSecond prometheus.GaugeFunc
	queueSize       prometheus.Gauge
	trackedIPs      prometheus.GaugeFunc
	trackedUsers    prometheus.GaugeFunc
	mlEnabled       prometheus.GaugeFunc
	outOfOrder      prometheus.CounterFunc
	memoryUsage     prometheus.GaugeFunc

	routes map[string]http.Handler
	server *http.Server
	mu     sync.Mutex
}

type MetricsConfig struct {
	Port string
	Path string
}

func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Port: ":9090",
		Path: "/metrics",
	}
}

func NewPrometheusMetrics(namespace string, internalMetrics *domain.EngineMetrics, stats StatsSource) *PrometheusMetrics {
	if namespace == "" {
		namespace = "sshguardian"
	}

	m := &PrometheusMetrics{
		routes: make(map[string]http.Handler),
	}

	m.eventsScored = promauto.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_scored_total",
		Help:      "Total number of authentication events scored",
	}, func() float64 {
		if internalMetrics != nil {
			return float64(internalMetrics.EventsScored())
		}
		return 0
	})

	m.eventsByVerdict = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_by_verdict_total",
		Help:      "Scored events by rule verdict",
	}, []string{"verdict"})

	m.eventsByResult = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_processed_total",
		Help:      "Pipeline submissions by processing outcome",
	}, []string{"result"})

	m.threatsDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "threats_detected_total",
		Help:      "Anomalous results by threat type",
	}, []string{"type"})

	m.degradedScores = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "degraded_scores_total",
		Help:      "Events scored without an active model",
	})

	m.riskScore = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "risk_score",
		Help:      "Distribution of final risk scores",
		Buckets:   prometheus.LinearBuckets(0, 10, 11),
	})

	m.processingTime = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "processing_duration_seconds",
		Help:      "Time spent scoring each event",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 10),
	})

	m.activeWorkers = promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_workers",
		Help:      "Number of active worker goroutines",
	}, func() float64 {
		if internalMetrics != nil {
			return float64(internalMetrics.GetSnapshot().ActiveWorkers)
		}
		return 0
	})

	m.eventsPerSecond = promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "events_per_second",
		Help:      "Current scoring throughput",
	}, func() float64 {
		if internalMetrics != nil {
			return internalMetrics.GetSnapshot().EventsPerSecond
		}
		return 0
	})

	m.queueSize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_size",
		Help:      "Current size of the processing queue",
	})

	m.trackedIPs = promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "tracked_ips",
		Help:      "Source addresses currently tracked in history",
	}, func() float64 {
		if stats != nil {
			return float64(stats().TrackedIPs)
		}
		return 0
	})

	m.trackedUsers = promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "tracked_users",
		Help:      "Usernames currently tracked in history",
	}, func() float64 {
		if stats != nil {
			return float64(stats().TrackedUsers)
		}
		return 0
	})

	m.mlEnabled = promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ml_enabled",
		Help:      "1 when a supervised model is active, 0 in degraded mode",
	}, func() float64 {
		if stats != nil && stats().MLEnabled {
			return 1
		}
		return 0
	})

	m.outOfOrder = promauto.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "out_of_order_clamped_total",
		Help:      "History appends whose timestamps were clamped forward",
	}, func() float64 {
		if stats != nil {
			return float64(stats().OutOfOrderClamped)
		}
		return 0
	})

	m.memoryUsage = promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "memory_bytes",
		Help:      "Current memory usage in bytes",
	}, func() float64 {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		return float64(ms.Alloc)
	})

	return m
}

func (m *PrometheusMetrics) IncrementEvents(verdict domain.Verdict) {
	m.eventsByVerdict.WithLabelValues(string(verdict)).Inc()
}

func (m *PrometheusMetrics) IncrementThreats(threatType domain.ThreatType) {
	m.threatsDetected.WithLabelValues(string(threatType)).Inc()
}

// IncrementEventsByResult implements ports.ProcessingObserver.
func (m *PrometheusMetrics) IncrementEventsByResult(result string) {
	m.eventsByResult.WithLabelValues(result).Inc()
}

func (m *PrometheusMetrics) IncrementDegraded() {
	m.degradedScores.Inc()
}

func (m *PrometheusMetrics) ObserveRiskScore(score int) {
	m.riskScore.Observe(float64(score))
}

func (m *PrometheusMetrics) ObserveProcessingTime(seconds float64) {
	m.processingTime.Observe(seconds)
}

// SetActiveWorkers is a no-op: the active_workers gauge reads the count
// from EngineMetrics, which the worker pool keeps current.
func (m *PrometheusMetrics) SetActiveWorkers(count int) {
}

func (m *PrometheusMetrics) SetQueueSize(size int) {
	m.queueSize.Set(float64(size))
}

// OnResult implements ports.ResultSubscriber so the engine can feed the
// collectors without knowing about Prometheus.
func (m *PrometheusMetrics) OnResult(se *domain.ScoredEvent) {
	m.IncrementEvents(se.Result.RuleVerdict)
	m.ObserveRiskScore(se.Result.RiskScore)
	if se.Result.Anomalous() {
		m.IncrementThreats(se.Result.ThreatType)
	}
	if !se.Result.MLAvailable {
		m.IncrementDegraded()
	}
}

// Handle mounts an extra HTTP handler (health, stats) on the metrics
// server. Must be called before StartServer.
func (m *PrometheusMetrics) Handle(path string, handler http.Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes[path] = handler
}

func (m *PrometheusMetrics) StartServer(config MetricsConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	mux := http.NewServeMux()
	mux.Handle(config.Path, promhttp.Handler())
	for path, handler := range m.routes {
		mux.Handle(path, handler)
	}

	m.server = &http.Server{
		Addr:              config.Port,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", config.Port).Str("path", config.Path).Msg("Starting Prometheus metrics server")
		if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Metrics server error")
		}
	}()

	return nil
}

func (m *PrometheusMetrics) StopServer() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.server != nil {
		return m.server.Close()
	}
	return nil
}
