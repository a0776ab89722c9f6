package app

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sohell-ranaa/ssh-guardian-2.0-sub001/internal/adapters/detection"
	"github.com/sohell-ranaa/ssh-guardian-2.0-sub001/internal/domain"
	"github.com/sohell-ranaa/ssh-guardian-2.0-sub001/internal/ports"
)

// ScoringChain bundles the stateless scoring stages: feature extraction,
// the rule table and the risk scorer. The chain is swapped atomically on
// config reload; the history store deliberately sits outside it so a
// reload never discards accumulated behavioral state.
type ScoringChain struct {
	Extractor *detection.Extractor
	Rules     *detection.RuleEngine
	Scorer    ports.RiskScorer
}

// Engine runs the full scoring pipeline for one event at a time:
// validate, observe both histories, extract features, apply composite
// indicators, classify against the rule table, then score.
//
// Thread Safety: Score is safe for concurrent calls; the worker pool
// invokes it from many goroutines. SetCollector must be called before
// scoring starts.
type Engine struct {
	history   *detection.HistoryStore
	chain     atomic.Pointer[ScoringChain]
	provider  ports.ModelProvider
	metrics   *domain.EngineMetrics
	collector ports.MetricsCollector
}

// NewEngine creates an engine over the given history store and scoring
// chain. provider may be nil when no model registry is attached (the
// stats surface then reports ml_enabled=false).
func NewEngine(history *detection.HistoryStore, chain ScoringChain, provider ports.ModelProvider, metrics *domain.EngineMetrics) *Engine {
	if metrics == nil {
		metrics = domain.NewEngineMetrics()
	}
	e := &Engine{
		history:  history,
		provider: provider,
		metrics:  metrics,
	}
	e.chain.Store(&chain)
	return e
}

// SetCollector attaches an optional metrics collector for per-event
// timing. Not safe to call once scoring has started.
func (e *Engine) SetCollector(collector ports.MetricsCollector) {
	e.collector = collector
}

// SwapChain atomically replaces the scoring stages. Events being scored
// concurrently finish on the chain they loaded; history is untouched.
func (e *Engine) SwapChain(chain ScoringChain) {
	e.chain.Store(&chain)
	log.Info().Msg("Scoring chain swapped")
}

// Score runs the pipeline for one event.
//
// The event is normalized in place, appended to both the source-IP and
// username histories, and scored against the windows that now include
// it. The rule table is evaluated on every event so the verdict is
// available for audit even when a model carries the final score.
//
// Returns:
//   - The scored event on success
//   - An InputError when the event is unscorable; rejections are
//     counted and never reach the histories
func (e *Engine) Score(ctx context.Context, event *domain.Event) (*domain.ScoredEvent, error) {
	if event == nil {
		return nil, &domain.InputError{Field: "event", Reason: "nil"}
	}

	event.Normalize()
	if err := event.Validate(); err != nil {
		e.metrics.IncrementRejected()
		log.Debug().Err(err).Str("raw_line", event.RawLine).Msg("Rejected unscorable event")
		return nil, err
	}

	started := time.Now()

	ipSnap := e.history.Observe(detection.KeyIP, event.SourceIP, domain.HistoryEntry{
		Timestamp:   event.Timestamp,
		EventType:   event.EventType,
		Counterpart: event.Username,
	})
	userSnap := e.history.Observe(detection.KeyUser, event.Username, domain.HistoryEntry{
		Timestamp:   event.Timestamp,
		EventType:   event.EventType,
		Counterpart: event.SourceIP,
	})

	chain := e.chain.Load()

	vector := chain.Extractor.Extract(event, ipSnap, userSnap)
	chain.Rules.ApplyIndicators(vector, ipSnap.Lifetime)
	verdict, ruleName := chain.Rules.Classify(vector)

	result := chain.Scorer.Score(ctx, event, vector)
	result.RuleVerdict = verdict
	result.RuleName = ruleName

	e.metrics.IncrementScored()
	if result.Anomalous() {
		e.metrics.IncrementAnomalies()
	}
	if !result.MLAvailable {
		e.metrics.IncrementDegraded()
	}
	if e.collector != nil {
		e.collector.ObserveProcessingTime(time.Since(started).Seconds())
	}

	return domain.NewScoredEvent(*event, result), nil
}

// Stats assembles the engine stats surface: model state from the
// provider, key and entry counts from the history store, and the
// lifetime counters.
func (e *Engine) Stats() domain.EngineStats {
	var stats domain.EngineStats
	stats.SchemaVersion = domain.FeatureSchemaVersion
	if e.provider != nil {
		e.provider.Stats(&stats)
	}

	stats.TrackedIPs = e.history.TrackedKeys(detection.KeyIP)
	stats.TrackedUsers = e.history.TrackedKeys(detection.KeyUser)
	stats.IPEntries = e.history.TotalEntries(detection.KeyIP)
	stats.UserEntries = e.history.TotalEntries(detection.KeyUser)
	stats.OutOfOrderClamped = e.history.OutOfOrderClamped()

	snap := e.metrics.GetSnapshot()
	stats.EventsScored = snap.EventsScored
	stats.Anomalies = snap.Anomalies
	stats.DegradedScores = snap.DegradedScores
	stats.RejectedEvents = snap.RejectedEvents

	return stats
}

// Metrics returns the engine's internal counters for external wiring.
func (e *Engine) Metrics() *domain.EngineMetrics {
	return e.metrics
}

// StartCleanup begins the history store's idle-key sweep.
func (e *Engine) StartCleanup(ctx context.Context) {
	e.history.StartCleanup(ctx)
}

// StopCleanup halts the history sweep goroutine.
func (e *Engine) StopCleanup() {
	e.history.StopCleanup()
}
