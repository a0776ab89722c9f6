// Package ports defines the primary and secondary port interfaces following
// hexagonal architecture (ports and adapters pattern).
//
// This package contains interfaces that define the contract between the core
// scoring logic and external infrastructure (event sources, output
// destinations, model storage).
//
// Design Principles:
//   - Interfaces are small and focused (Interface Segregation Principle)
//   - Dependencies flow inward (core domain has no external dependencies)
//   - Implementations provided by adapters in internal/adapters/
package ports

import (
	"context"

	"github.com/sohell-ranaa/ssh-guardian-2.0-sub001/internal/domain"
)

// RiskScorer defines the interface for scoring a single authentication
// event against its behavioral context.
//
// Implementations:
//   - HybridScorer: supervised + unsupervised model blend with rule fallback
//
// Thread Safety: Implementations MUST be safe for concurrent Score() calls.
// The worker pool invokes Score() from multiple goroutines simultaneously.
type RiskScorer interface {
	// Score evaluates a feature vector extracted for one event.
	//
	// Parameters:
	//   - ctx: Context for cancellation
	//   - event: The event being scored (immutable, do not modify)
	//   - vector: Feature vector extracted after the event was appended
	//     to history (includes composite indicator flags)
	//
	// Returns:
	//   - RiskResult. Absence of a loaded model yields the degraded
	//     result shape, never an error. Inference failures are caught,
	//     recorded on the result and logged; they never propagate.
	//
	// Contract:
	//   - MUST be thread-safe
	//   - MUST NOT block on external I/O
	//   - MUST NOT panic on malformed model state
	Score(ctx context.Context, event *domain.Event, vector *domain.FeatureVector) domain.RiskResult

	// Name returns the scorer's identifier for logging and metrics.
	Name() string
}

// ModelProvider exposes the currently active model snapshot state.
// Implemented by the model registry; consumed by the stats surface.
type ModelProvider interface {
	// MLEnabled reports whether a supervised model is currently active.
	MLEnabled() bool

	// Stats fills the model-related fields of an EngineStats value.
	Stats(stats *domain.EngineStats)
}
