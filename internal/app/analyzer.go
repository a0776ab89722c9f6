package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sohell-ranaa/ssh-guardian-2.0-sub001/internal/domain"
	"github.com/sohell-ranaa/ssh-guardian-2.0-sub001/internal/ports"
)

// Analyzer feeds events from a reader into the worker pool and keeps the
// events-per-second gauge current.
type Analyzer struct {
	reader     ports.EventReader
	workerPool *WorkerPool
	metrics    *domain.EngineMetrics

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.RWMutex

	lastEventsScored int64
	lastEPSCheck     time.Time
}

// NewAnalyzer wires a reader to a worker pool running the given engine.
// Sinks receive anomalous results; subscribers and observers are added
// afterwards via the Add methods.
func NewAnalyzer(reader ports.EventReader, engine *Engine, sinks []ports.ResultSink) *Analyzer {
	workerPool := NewWorkerPool(DefaultWorkerPoolConfig(), engine, sinks)

	return &Analyzer{
		reader:       reader,
		workerPool:   workerPool,
		metrics:      engine.Metrics(),
		lastEPSCheck: time.Now(),
	}
}

// SetWorkerConfig rebuilds the worker pool with new settings. Only valid
// before Start; registered subscribers and observers carry over.
func (a *Analyzer) SetWorkerConfig(config WorkerPoolConfig) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running {
		log.Warn().Msg("Cannot change worker config while running")
		return
	}

	pool := NewWorkerPool(config, a.workerPool.engine, a.workerPool.sinks)
	pool.subscribers = a.workerPool.subscribers
	pool.observers = a.workerPool.observers
	a.workerPool = pool
}

// AddResultSubscriber registers a callback invoked for every scored event.
func (a *Analyzer) AddResultSubscriber(sub ports.ResultSubscriber) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.workerPool.AddSubscriber(sub)
}

// AddProcessingObserver registers an observer of per-event outcomes.
func (a *Analyzer) AddProcessingObserver(obs ports.ProcessingObserver) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.workerPool.AddObserver(obs)
}

func (a *Analyzer) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = true
	a.mu.Unlock()

	a.ctx, a.cancel = context.WithCancel(ctx)

	a.workerPool.Start(a.ctx)

	eventChan, errChan := a.reader.Start(a.ctx)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.processEvents(eventChan, errChan)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.updateMetrics()
	}()

	log.Info().Msg("Analyzer started")
	return nil
}

func (a *Analyzer) processEvents(eventChan <-chan *domain.Event, errChan <-chan error) {
	for {
		select {
		case <-a.ctx.Done():
			return
		case err, ok := <-errChan:
			if !ok {
				continue
			}
			log.Error().Err(err).Msg("Error reading events")
		case event, ok := <-eventChan:
			if !ok {
				log.Info().Msg("Event channel closed")
				return
			}
			if !a.workerPool.SubmitBlocking(a.ctx, event) {
				a.workerPool.notifyObservers("dropped")
				log.Warn().Msg("Failed to submit event to worker pool")
			}
		}
	}
}

func (a *Analyzer) updateMetrics() {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			elapsed := now.Sub(a.lastEPSCheck).Seconds()
			if elapsed >= 1.0 {
				scored := a.metrics.EventsScored()
				eps := float64(scored-a.lastEventsScored) / elapsed
				a.metrics.UpdateEPS(eps)
				a.lastEventsScored = scored
				a.lastEPSCheck = now
			}
		}
	}
}

func (a *Analyzer) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.running = false
	a.mu.Unlock()

	log.Info().Msg("Stopping analyzer gracefully...")

	if a.cancel != nil {
		a.cancel()
	}
	if err := a.reader.Stop(); err != nil {
		log.Error().Err(err).Msg("Error stopping reader")
	}

	a.workerPool.Stop()

	a.wg.Wait()

	log.Info().Msg("Analyzer stopped")
}

func (a *Analyzer) InternalMetrics() *domain.EngineMetrics {
	return a.metrics
}

// Pool returns the worker pool for health and stats wiring.
func (a *Analyzer) Pool() *WorkerPool {
	return a.workerPool
}

// Engine returns the scoring pipeline the analyzer runs.
func (a *Analyzer) Engine() *Engine {
	return a.workerPool.Engine()
}

func (a *Analyzer) IsRunning() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.running
}
