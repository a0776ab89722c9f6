package output

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sohell-ranaa/ssh-guardian-2.0-sub001/internal/app"
	"github.com/sohell-ranaa/ssh-guardian-2.0-sub001/internal/ports"
)

type HealthStatus struct {
	Healthy       bool          `json:"healthy"`
	Status        string        `json:"status"`
	QueueLength   int           `json:"queue_length"`
	QueueCapacity int           `json:"queue_capacity"`
	Utilization   float64       `json:"utilization_percent"`
	MLEnabled     bool          `json:"ml_enabled"`
	Uptime        time.Duration `json:"uptime_ns"`
	Reason        string        `json:"reason,omitempty"`
}

// HealthChecker reports pipeline liveness and saturation. Scoring without
// a model is a DEGRADED but healthy state: the rule engine still runs.
// Checks never inject synthetic events, since any event submitted to the
// pipeline would land in the behavioral history.
type HealthChecker struct {
	workerPool *app.WorkerPool
	provider   ports.ModelProvider
	startTime  time.Time

	lastCheck     HealthStatus
	lastCheckTime time.Time
	lastCheckMu   sync.RWMutex
	checkInterval time.Duration
}

type HealthCheckerConfig struct {
	CheckInterval time.Duration
}

func DefaultHealthCheckerConfig() HealthCheckerConfig {
	return HealthCheckerConfig{
		CheckInterval: 5 * time.Second,
	}
}

func NewHealthChecker(wp *app.WorkerPool, provider ports.ModelProvider, config HealthCheckerConfig) *HealthChecker {
	return &HealthChecker{
		workerPool:    wp,
		provider:      provider,
		checkInterval: config.CheckInterval,
		startTime:     time.Now(),
	}
}

func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	h.lastCheckMu.RLock()
	if time.Since(h.lastCheckTime) < h.checkInterval {
		cached := h.lastCheck
		h.lastCheckMu.RUnlock()
		return cached
	}
	h.lastCheckMu.RUnlock()

	status := h.performCheck(ctx)

	h.lastCheckMu.Lock()
	h.lastCheck = status
	h.lastCheckTime = time.Now()
	h.lastCheckMu.Unlock()

	return status
}

func (h *HealthChecker) performCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Uptime: time.Since(h.startTime),
	}
	if h.workerPool == nil || !h.workerPool.IsRunning() {
		status.Healthy = false
		status.Status = "OFFLINE"
		status.Reason = "worker pool not running"
		return status
	}

	status.QueueLength = h.workerPool.QueueLength()
	status.QueueCapacity = h.workerPool.QueueCapacity()
	status.Utilization = h.workerPool.QueueUtilization()
	if h.provider != nil {
		status.MLEnabled = h.provider.MLEnabled()
	}

	if status.Utilization >= 95 {
		status.Healthy = false
		status.Status = "SATURATED"
		status.Reason = fmt.Sprintf("queue utilization at %.1f%%", status.Utilization)
		return status
	}

	status.Healthy = true
	switch {
	case status.Utilization >= 80:
		status.Status = "DEGRADED"
		status.Reason = fmt.Sprintf("queue utilization elevated at %.1f%%", status.Utilization)
	case h.provider != nil && !status.MLEnabled:
		status.Status = "DEGRADED"
		status.Reason = "scoring without a supervised model"
	default:
		status.Status = "HEALTHY"
	}

	return status
}

func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)

	w.Header().Set("Content-Type", "application/json")
	if status.Healthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	fmt.Fprintf(w, `{"healthy":%t,"status":"%s","queue_length":%d,"queue_capacity":%d,"utilization_percent":%.1f,"ml_enabled":%t,"uptime_seconds":%.0f`,
		status.Healthy,
		status.Status,
		status.QueueLength,
		status.QueueCapacity,
		status.Utilization,
		status.MLEnabled,
		status.Uptime.Seconds(),
	)

	if status.Reason != "" {
		fmt.Fprintf(w, `,"reason":"%s"`, status.Reason)
	}
	fmt.Fprint(w, "}")
}

// StatsHandler serves the aggregate engine statistics as JSON.
type StatsHandler struct {
	stats StatsSource
}

func NewStatsHandler(stats StatsSource) *StatsHandler {
	return &StatsHandler{stats: stats}
}

func (s *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.stats()); err != nil {
		http.Error(w, "stats encoding failed", http.StatusInternalServerError)
	}
}
