package domain

import (
	"sync"
	"sync/atomic"
	"time"
)

type MetricsSnapshot struct {
	EventsScored    int64
	Anomalies       int64
	DegradedScores  int64
	RejectedEvents  int64
	AlertsEmitted   int64
	EventsPerSecond float64
	ActiveWorkers   int
	Uptime          time.Duration
	StartTime       time.Time
}

type EngineMetrics struct {
	eventsScored   atomic.Int64
	anomalies      atomic.Int64
	degradedScores atomic.Int64
	rejectedEvents atomic.Int64
	alertsEmitted  atomic.Int64

	EventsPerSecond float64
	ActiveWorkers   int
	StartTime       time.Time

	mu sync.RWMutex
}

func NewEngineMetrics() *EngineMetrics {
	return &EngineMetrics{
		StartTime: time.Now(),
	}
}

func (m *EngineMetrics) IncrementScored() {
	m.eventsScored.Add(1)
}

func (m *EngineMetrics) IncrementAnomalies() {
	m.anomalies.Add(1)
}

func (m *EngineMetrics) IncrementDegraded() {
	m.degradedScores.Add(1)
}

func (m *EngineMetrics) IncrementRejected() {
	m.rejectedEvents.Add(1)
}

func (m *EngineMetrics) IncrementAlerts() {
	m.alertsEmitted.Add(1)
}

func (m *EngineMetrics) EventsScored() int64 {
	return m.eventsScored.Load()
}

func (m *EngineMetrics) GetSnapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return MetricsSnapshot{
		EventsScored:    m.eventsScored.Load(),
		Anomalies:       m.anomalies.Load(),
		DegradedScores:  m.degradedScores.Load(),
		RejectedEvents:  m.rejectedEvents.Load(),
		AlertsEmitted:   m.alertsEmitted.Load(),
		EventsPerSecond: m.EventsPerSecond,
		ActiveWorkers:   m.ActiveWorkers,
		Uptime:          time.Since(m.StartTime),
		StartTime:       m.StartTime,
	}
}

func (m *EngineMetrics) UpdateEPS(eps float64) {
	m.mu.Lock()
	m.EventsPerSecond = eps
	m.mu.Unlock()
}

func (m *EngineMetrics) SetActiveWorkers(count int) {
	m.mu.Lock()
	m.ActiveWorkers = count
	m.mu.Unlock()
}

// EngineStats is the aggregate statistics query answered by the engine
// and served on the HTTP stats endpoint.
type EngineStats struct {
	MLEnabled           bool   `json:"ml_enabled"`
	SupervisedLoaded    bool   `json:"supervised_loaded"`
	UnsupervisedLoaded  bool   `json:"unsupervised_loaded"`
	SupervisedVersion   uint64 `json:"supervised_version,omitempty"`
	UnsupervisedVersion uint64 `json:"unsupervised_version,omitempty"`
	SchemaVersion       int    `json:"schema_version"`
	TrackedIPs          int    `json:"tracked_ips"`
	TrackedUsers        int    `json:"tracked_users"`
	IPEntries           int    `json:"ip_entries"`
	UserEntries         int    `json:"user_entries"`
	EventsScored        int64  `json:"events_scored"`
	Anomalies           int64  `json:"anomalies"`
	DegradedScores      int64  `json:"degraded_scores"`
	RejectedEvents      int64  `json:"rejected_events"`
	OutOfOrderClamped   int64  `json:"out_of_order_clamped"`
}
