package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"classifieds-marketplace/internal/config"
	"classifieds-marketplace/internal/models"
	"classifieds-marketplace/internal/outbox"

	"github.com/rs/zerolog/log"
)

// Handler consumes one outbox event. A returned error marks the event failed
// and schedules a retry.
type Handler func(ctx context.Context, ev *models.OutboxEvent) error

// OutboxRelay drains outbox_events through registered handlers
type OutboxRelay struct {
	store        outbox.Store
	handlers     map[string]Handler
	stopChan     chan struct{}
	done         chan struct{}
	isRunning    bool
	mu           sync.Mutex
	pollInterval time.Duration
	batchSize    int
	maxRetries   int
	stuckAfter   time.Duration
	timeout      time.Duration
}

// NewOutboxRelay creates a relay with the configured polling settings
func NewOutboxRelay(store outbox.Store, cfg config.OutboxConfig) *OutboxRelay {
	r := &OutboxRelay{
		store:        store,
		handlers:     map[string]Handler{},
		pollInterval: cfg.PollInterval(),
		batchSize:    cfg.BatchSize,
		maxRetries:   cfg.MaxRetries,
		stuckAfter:   5 * time.Minute,
		timeout:      30 * time.Second,
	}
	if r.pollInterval <= 0 {
		r.pollInterval = 10 * time.Second
	}
	if r.batchSize <= 0 {
		r.batchSize = 20
	}
	if r.maxRetries <= 0 {
		r.maxRetries = 5
	}
	return r
}

// Register sets the handler for an event name
func (w *OutboxRelay) Register(eventName string, h Handler) {
	w.handlers[eventName] = h
}

// Start starts the polling loop
func (w *OutboxRelay) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.isRunning {
		log.Warn().Str("component", "outbox_relay").Msg("already running")
		return
	}

	w.isRunning = true
	w.stopChan = make(chan struct{})
	w.done = make(chan struct{})
	log.Info().Str("component", "outbox_relay").
		Dur("poll_interval", w.pollInterval).
		Int("batch_size", w.batchSize).
		Msg("started")

	go w.run(w.stopChan, w.done)
}

// Stop stops the loop and waits for the current batch
func (w *OutboxRelay) Stop() {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return
	}
	w.isRunning = false
	close(w.stopChan)
	done := w.done
	w.mu.Unlock()

	<-done
	log.Info().Str("component", "outbox_relay").Msg("stopped")
}

func (w *OutboxRelay) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
			if _, err := w.ProcessBatch(ctx); err != nil {
				log.Error().Err(err).Str("component", "outbox_relay").Msg("batch failed")
			}
			cancel()
		}
	}
}

// ProcessBatch recovers stuck and retryable events, then handles one batch.
// It returns the number of events completed.
func (w *OutboxRelay) ProcessBatch(ctx context.Context) (int, error) {
	logger := log.With().Str("component", "outbox_relay").Logger()

	if n, err := w.store.RecoverStuck(ctx, w.stuckAfter); err != nil {
		return 0, err
	} else if n > 0 {
		logger.Warn().Int64("count", n).Msg("recovered stuck events")
	}
	if n, err := w.store.Requeue(ctx, w.maxRetries); err != nil {
		return 0, err
	} else if n > 0 {
		logger.Info().Int64("count", n).Msg("requeued failed events")
	}

	events, err := w.store.ClaimPending(ctx, w.batchSize)
	if err != nil {
		return 0, err
	}

	completed := 0
	for i := range events {
		ev := &events[i]
		if err := w.handle(ctx, ev); err != nil {
			logger.Warn().Err(err).
				Str("event_id", ev.ID).
				Str("event", ev.EventName).
				Int("attempt", ev.RetryCount+1).
				Msg("event failed")
			if err := w.store.MarkFailed(ctx, ev.ID, err); err != nil {
				logger.Error().Err(err).Str("event_id", ev.ID).Msg("failed to record failure")
			}
			continue
		}
		if err := w.store.MarkCompleted(ctx, ev.ID); err != nil {
			logger.Error().Err(err).Str("event_id", ev.ID).Msg("failed to mark completed")
			continue
		}
		completed++
	}

	if len(events) > 0 {
		logger.Info().Int("claimed", len(events)).Int("completed", completed).Msg("batch processed")
	}
	return completed, nil
}

func (w *OutboxRelay) handle(ctx context.Context, ev *models.OutboxEvent) (err error) {
	h, ok := w.handlers[ev.EventName]
	if !ok {
		return fmt.Errorf("no handler registered for %s", ev.EventName)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, ev)
}

// GetQueueStats returns outbox statistics and the relay state
func (w *OutboxRelay) GetQueueStats(ctx context.Context) (map[string]interface{}, error) {
	stats, err := w.store.Stats(ctx)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	running := w.isRunning
	w.mu.Unlock()

	out := map[string]interface{}{
		"pending":    stats.Pending,
		"processing": stats.Processing,
		"completed":  stats.Completed,
		"failed":     stats.Failed,
		"is_running": running,
	}
	if stats.OldestPending != nil {
		out["oldest_pending"] = stats.OldestPending
	}
	return out, nil
}
