package ports

import (
	"context"

	"github.com/sohell-ranaa/ssh-guardian-2.0-sub001/internal/domain"
)

// ResultSink defines the interface for dispatching scored events to
// output destinations.
//
// Implementations:
//   - JSONSink: Writes scored events as JSON lines to file or stdout
//   - MemorySink: In-memory ring buffer for tests and inspection
//   - RedisPublisher: Publishes anomalies to a Redis channel
//
// Thread Safety: Implementations MUST be safe for concurrent Send() calls.
type ResultSink interface {
	// Send dispatches a scored event to the output destination.
	//
	// Returns:
	//   - nil on success
	//   - Error if dispatch fails (caller may retry or log)
	Send(ctx context.Context, scored *domain.ScoredEvent) error

	// Flush forces pending results to be written to the destination.
	// Called during graceful shutdown to ensure delivery.
	Flush() error

	// Close releases resources and ensures all results are flushed.
	Close() error
}

// ResultSubscriber defines the callback interface for scoring
// notifications. Used by the engine to feed interested components
// (metrics, future UIs) without coupling them to sink semantics.
//
// Implementations should return quickly to avoid blocking the worker
// pool; buffer expensive operations.
type ResultSubscriber interface {
	OnResult(scored *domain.ScoredEvent)
}

// MetricsCollector defines the interface for observability metric
// collection. Implemented by the Prometheus adapter.
//
// Thread Safety: All methods MUST be safe for concurrent calls.
type MetricsCollector interface {
	// IncrementEvents increments the scored-event counter, labeled by
	// rule verdict. Called once per scored event.
	IncrementEvents(verdict domain.Verdict)

	// IncrementThreats increments the threat counter by type.
	// Called once per anomalous result.
	IncrementThreats(threatType domain.ThreatType)

	// IncrementDegraded counts events scored without a model.
	IncrementDegraded()

	// ObserveRiskScore records a final risk score for distribution
	// tracking.
	ObserveRiskScore(score int)

	// ObserveProcessingTime records the scoring duration in seconds.
	ObserveProcessingTime(seconds float64)

	// SetActiveWorkers updates the active worker gauge.
	SetActiveWorkers(count int)
}

// ProcessingObserver defines the interface for observing per-event
// processing results ("scored", "rejected", "dropped", "error").
type ProcessingObserver interface {
	// IncrementEventsByResult records the outcome of processing one event.
	//
	// Thread Safety: Implementations MUST be safe for concurrent calls.
	IncrementEventsByResult(result string)
}
