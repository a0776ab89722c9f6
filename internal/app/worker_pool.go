// Package app composes the scoring pipeline: the engine that scores one
// event at a time, the worker pool that runs it concurrently over a
// bounded queue, and the analyzer that feeds the pool from an event
// reader. Configuration loading, validation and hot reload live here too.
package app

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sohell-ranaa/ssh-guardian-2.0-sub001/internal/domain"
	"github.com/sohell-ranaa/ssh-guardian-2.0-sub001/internal/ports"
	"github.com/sohell-ranaa/ssh-guardian-2.0-sub001/pkg/ttlcache"
)

// cooldownCapacity bounds the alert suppression cache. At one entry per
// (source IP, threat type) pair this covers far more concurrent attack
// sources than the history store tracks.
const cooldownCapacity = 4096

// WorkerPool manages concurrent event scoring.
//
// Features:
//   - Fixed worker count for predictable resource usage
//   - Backpressure with configurable submit timeout
//   - Automatic worker restart on panic
//   - Result dispatch to sinks and subscribers off the scoring path
//   - Per (source IP, threat type) alert cooldown
//
// Thread Safety: All public methods are safe for concurrent access.
type WorkerPool struct {
	workerCount int
	inputChan   chan *domain.Event       // Buffered event input
	outputChan  chan *domain.ScoredEvent // Buffered result output
	engine      *Engine                  // Scoring pipeline
	sinks       []ports.ResultSink       // Anomaly output destinations
	subscribers []ports.ResultSubscriber // Per-result notification callbacks
	observers   []ports.ProcessingObserver
	metrics     *domain.EngineMetrics
	bufferSize  int

	submitTimeout   time.Duration // Max wait for channel space
	useBackpressure bool          // Enable timeout-based backpressure

	alertCooldown time.Duration
	cooldown      *ttlcache.Cache[string, time.Time]

	dropped atomic.Int64 // Results discarded because the output queue stayed full

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopChan chan struct{}
	running  bool
	mu       sync.RWMutex // Protects running state, sinks, subscribers, observers
}

// WorkerPoolConfig defines worker pool configuration options.
type WorkerPoolConfig struct {
	WorkerCount   int           // Number of worker goroutines (default: 32)
	BufferSize    int           // Input/output channel buffer (default: 50000)
	SubmitTimeout time.Duration // Backpressure timeout (default: 100ms)
	AlertCooldown time.Duration // Suppression window per (source IP, threat type); 0 disables
}

// DefaultWorkerPoolConfig returns production-ready default configuration.
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		WorkerCount:   32,
		BufferSize:    50000,
		SubmitTimeout: 100 * time.Millisecond,
		AlertCooldown: 5 * time.Minute,
	}
}

// NewWorkerPool creates a configured worker pool.
//
// Parameters:
//   - config: Pool configuration options
//   - engine: Scoring pipeline (required)
//   - sinks: Destinations for anomalous results
//
// Returns:
//   - Configured WorkerPool ready for Start()
func NewWorkerPool(config WorkerPoolConfig, engine *Engine, sinks []ports.ResultSink) *WorkerPool {
	if config.WorkerCount <= 0 {
		config.WorkerCount = 4
	}
	if config.BufferSize <= 0 {
		config.BufferSize = 1000
	}
	if config.SubmitTimeout <= 0 {
		config.SubmitTimeout = 100 * time.Millisecond
	}

	wp := &WorkerPool{
		workerCount:     config.WorkerCount,
		inputChan:       make(chan *domain.Event, config.BufferSize),
		outputChan:      make(chan *domain.ScoredEvent, config.BufferSize),
		engine:          engine,
		sinks:           sinks,
		bufferSize:      config.BufferSize,
		submitTimeout:   config.SubmitTimeout,
		useBackpressure: config.SubmitTimeout > 0,
		alertCooldown:   config.AlertCooldown,
		stopChan:        make(chan struct{}),
	}
	if engine != nil {
		wp.metrics = engine.Metrics()
	}
	if config.AlertCooldown > 0 {
		wp.cooldown = ttlcache.New[string, time.Time](cooldownCapacity)
	}

	return wp
}

// Start launches worker goroutines and the result dispatcher.
//
// Behavior:
//   - Spawns WorkerCount worker goroutines
//   - Spawns the result dispatcher goroutine
//   - Updates metrics with worker count
//   - Idempotent (safe to call multiple times)
func (wp *WorkerPool) Start(ctx context.Context) {
	wp.mu.Lock()
	if wp.running {
		wp.mu.Unlock()
		return
	}
	wp.running = true
	wp.mu.Unlock()

	for i := 0; i < wp.workerCount; i++ {
		wp.wg.Add(1)
		go wp.worker(ctx, i)
	}

	wp.wg.Add(1)
	go wp.resultDispatcher(ctx)

	if wp.metrics != nil {
		wp.metrics.SetActiveWorkers(wp.workerCount)
	}

	log.Info().
		Int("workers", wp.workerCount).
		Bool("backpressure", wp.useBackpressure).
		Dur("alert_cooldown", wp.alertCooldown).
		Msg("Worker pool started")
}

// worker is the main loop for a single worker goroutine. It reads events
// from the input channel, runs the scoring engine and forwards results.
// Includes panic recovery with automatic restart.
func (wp *WorkerPool) worker(ctx context.Context, id int) {
	defer wp.wg.Done()

	var currentEvent *domain.Event

	defer func() {
		if r := recover(); r != nil {
			evt := log.Error().
				Interface("panic", r).
				Int("worker_id", id)
			if currentEvent != nil {
				evt = evt.Str("source_ip", currentEvent.SourceIP).
					Str("event_type", string(currentEvent.EventType))
			}
			evt.Msg("Worker panic recovered")

			wp.notifyObservers("error")

			// Restart worker
			wp.wg.Add(1)
			go wp.worker(ctx, id)
		}
	}()

	log.Debug().Int("worker_id", id).Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			log.Debug().Int("worker_id", id).Msg("Worker stopped (context cancelled)")
			return
		case <-wp.stopChan:
			log.Debug().Int("worker_id", id).Msg("Worker stopped (stop signal)")
			return
		case event, ok := <-wp.inputChan:
			if !ok {
				log.Debug().Int("worker_id", id).Msg("Worker stopped (input channel closed)")
				return
			}

			currentEvent = event

			scored, err := wp.engine.Score(ctx, event)
			if err != nil {
				// The engine counted and logged the rejection.
				wp.notifyObservers("rejected")
				currentEvent = nil
				continue
			}

			if wp.sendResult(scored) {
				wp.notifyObservers("scored")
			} else {
				wp.dropped.Add(1)
				wp.notifyObservers("dropped")
				log.Debug().
					Str("source_ip", scored.Event.SourceIP).
					Int("queue", len(wp.outputChan)).
					Msg("Result dropped, output queue full")
			}

			currentEvent = nil
		}
	}
}

// sendResult attempts to hand a scored event to the dispatcher.
// Uses backpressure with timeout; a result that still cannot be queued
// is dropped and counted by the caller.
func (wp *WorkerPool) sendResult(scored *domain.ScoredEvent) bool {
	// Fast path: non-blocking send
	select {
	case wp.outputChan <- scored:
		return true
	default:
	}

	if wp.useBackpressure {
		timer := time.NewTimer(wp.submitTimeout)
		select {
		case wp.outputChan <- scored:
			timer.Stop()
			return true
		case <-timer.C:
			return false
		}
	}

	return false
}

// resultDispatcher reads scored events off the output channel, notifies
// subscribers and forwards anomalies to the sinks.
func (wp *WorkerPool) resultDispatcher(ctx context.Context) {
	defer wp.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-wp.stopChan:
			return
		case scored, ok := <-wp.outputChan:
			if !ok {
				return
			}
			wp.dispatch(ctx, scored)
		}
	}
}

func (wp *WorkerPool) dispatch(ctx context.Context, scored *domain.ScoredEvent) {
	wp.mu.RLock()
	subscribers := wp.subscribers
	wp.mu.RUnlock()

	for _, sub := range subscribers {
		sub.OnResult(scored)
	}

	if !scored.Result.Anomalous() {
		return
	}

	if wp.suppressed(scored) {
		log.Debug().
			Str("source_ip", scored.Event.SourceIP).
			Str("threat_type", string(scored.Result.ThreatType)).
			Msg("Alert suppressed by cooldown")
		return
	}

	wp.mu.RLock()
	sinks := wp.sinks
	wp.mu.RUnlock()

	sent := false
	for _, sink := range sinks {
		if err := sink.Send(ctx, scored); err != nil {
			log.Debug().Err(err).Msg("Result sink send failed")
			continue
		}
		sent = true
	}

	if sent && wp.metrics != nil {
		wp.metrics.IncrementAlerts()
	}
}

// suppressed reports whether an anomaly for this (source IP, threat type)
// pair already alerted inside the cooldown window, marking the pair as
// alerted when it did not.
func (wp *WorkerPool) suppressed(scored *domain.ScoredEvent) bool {
	if wp.cooldown == nil {
		return false
	}
	key := scored.Event.SourceIP + "|" + string(scored.Result.ThreatType)
	_, loaded := wp.cooldown.GetOrSet(key, scored.ScoredAt, wp.alertCooldown)
	return loaded
}

// Submit attempts non-blocking event submission with backpressure fallback.
//
// Returns:
//   - true if submitted (channel space or backpressure wait)
//   - false if pool not running or the queue stayed full
func (wp *WorkerPool) Submit(event *domain.Event) bool {
	wp.mu.RLock()
	running := wp.running
	wp.mu.RUnlock()

	if !running {
		return false
	}

	// Fast path
	select {
	case wp.inputChan <- event:
		return true
	default:
	}

	// Backpressure path
	if wp.useBackpressure {
		timer := time.NewTimer(wp.submitTimeout)
		select {
		case wp.inputChan <- event:
			timer.Stop()
			return true
		case <-timer.C:
			return false
		}
	}

	return false
}

// SubmitBlocking blocks until the event is submitted or the context is
// cancelled.
//
// Returns:
//   - true if submitted successfully
//   - false if context cancelled or pool stopped
func (wp *WorkerPool) SubmitBlocking(ctx context.Context, event *domain.Event) bool {
	select {
	case wp.inputChan <- event:
		return true
	case <-ctx.Done():
		return false
	case <-wp.stopChan:
		return false
	}
}

// Dropped returns the count of scored events discarded because the
// dispatcher queue stayed full past the backpressure timeout.
func (wp *WorkerPool) Dropped() int64 {
	return wp.dropped.Load()
}

// Stop performs graceful shutdown of the worker pool.
// Closes channels, waits for workers, and reports anything left queued.
// Idempotent via sync.Once protection.
func (wp *WorkerPool) Stop() {
	wp.stopOnce.Do(func() {
		wp.mu.Lock()
		wp.running = false
		wp.mu.Unlock()

		close(wp.stopChan)
		close(wp.inputChan)

		wp.wg.Wait()

		remaining := len(wp.inputChan) + len(wp.outputChan)
		close(wp.outputChan)

		if wp.metrics != nil {
			wp.metrics.SetActiveWorkers(0)
		}

		if remaining > 0 {
			log.Warn().
				Int("discarded", remaining).
				Int64("dropped", wp.dropped.Load()).
				Msg("Worker pool stopped with queued items discarded")
		} else {
			log.Info().Msg("Worker pool stopped")
		}
	})
}

// IsRunning returns true if the pool is actively processing.
func (wp *WorkerPool) IsRunning() bool {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	return wp.running
}

// QueueLength returns current events waiting in the input channel.
func (wp *WorkerPool) QueueLength() int {
	return len(wp.inputChan)
}

// QueueCapacity returns the input channel buffer size.
func (wp *WorkerPool) QueueCapacity() int {
	return wp.bufferSize
}

// QueueUtilization returns percentage of input channel capacity in use.
func (wp *WorkerPool) QueueUtilization() float64 {
	if wp.bufferSize == 0 {
		return 0
	}
	return float64(len(wp.inputChan)) / float64(wp.bufferSize) * 100
}

// Engine returns the scoring pipeline the pool runs.
func (wp *WorkerPool) Engine() *Engine {
	return wp.engine
}

// AddSink dynamically adds an anomaly output destination.
func (wp *WorkerPool) AddSink(sink ports.ResultSink) {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	wp.sinks = append(wp.sinks, sink)
}

// AddSubscriber registers a per-result notification callback.
func (wp *WorkerPool) AddSubscriber(sub ports.ResultSubscriber) {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	wp.subscribers = append(wp.subscribers, sub)
}

// AddObserver registers a processing outcome observer.
func (wp *WorkerPool) AddObserver(obs ports.ProcessingObserver) {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	wp.observers = append(wp.observers, obs)
}

func (wp *WorkerPool) notifyObservers(result string) {
	wp.mu.RLock()
	observers := wp.observers
	wp.mu.RUnlock()

	for _, obs := range observers {
		obs.IncrementEventsByResult(result)
	}
}
