package geo

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrCircuitOpen is returned while the breaker refuses geocoder calls
var ErrCircuitOpen = errors.New("geocoder circuit open")

// CircuitBreaker stops calling the geocoder once it looks blocked or down.
// Two consecutive critical answers (403, 429, 5xx) open it at once; after
// 20 calls a failure rate of 40% opens it too.
type CircuitBreaker struct {
	next             Geocoder
	failureThreshold float64
	resetTimeout     time.Duration
	now              func() time.Time

	failures            int
	totalRequests       int
	consecutiveFailures int
	isOpen              bool
	lastFailureTime     time.Time

	mutex sync.Mutex
}

// NewCircuitBreaker wraps next
func NewCircuitBreaker(next Geocoder, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		next:             next,
		failureThreshold: 0.40,
		resetTimeout:     resetTimeout,
		now:              time.Now,
	}
}

// Reverse forwards to the wrapped geocoder unless the circuit is open
func (cb *CircuitBreaker) Reverse(ctx context.Context, lat, lon float64) (*Place, error) {
	if !cb.CanProceed() {
		return nil, ErrCircuitOpen
	}

	place, err := cb.next.Reverse(ctx, lat, lon)
	switch {
	case err == nil, errors.Is(err, ErrNoResult):
		cb.RecordSuccess()
	case errors.Is(err, context.Canceled):
		// caller went away; says nothing about the geocoder
	default:
		cb.RecordFailure(err)
	}
	return place, err
}

// RecordSuccess records a successful request
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.totalRequests++
	cb.consecutiveFailures = 0
}

// RecordFailure records a failed request
func (cb *CircuitBreaker) RecordFailure(err error) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.failures++
	cb.consecutiveFailures++
	cb.totalRequests++
	cb.lastFailureTime = cb.now()

	if cb.consecutiveFailures >= 2 && isCritical(err) {
		cb.isOpen = true
		log.Warn().Err(err).Str("component", "geo").
			Int("consecutive_failures", cb.consecutiveFailures).
			Dur("reset_after", cb.resetTimeout).
			Msg("geocoder circuit open")
		return
	}

	if cb.totalRequests >= 20 {
		failureRate := float64(cb.failures) / float64(cb.totalRequests)
		if failureRate >= cb.failureThreshold {
			cb.isOpen = true
			log.Warn().Str("component", "geo").
				Float64("failure_rate", failureRate).
				Int("failures", cb.failures).
				Int("total", cb.totalRequests).
				Msg("geocoder circuit open")
		}
	}
}

// CanProceed checks if requests are allowed; an expired open circuit resets
func (cb *CircuitBreaker) CanProceed() bool {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	if !cb.isOpen {
		return true
	}

	if cb.now().Sub(cb.lastFailureTime) > cb.resetTimeout {
		log.Info().Str("component", "geo").Msg("geocoder circuit half-open")
		cb.isOpen = false
		cb.failures = 0
		cb.totalRequests = 0
		cb.consecutiveFailures = 0
		return true
	}

	return false
}

// GetStatus returns current circuit breaker status
func (cb *CircuitBreaker) GetStatus() (isOpen bool, failures int, total int) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.isOpen, cb.failures, cb.totalRequests
}

func isCritical(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		// transport errors and timeouts
		return true
	}
	return se.StatusCode == http.StatusForbidden ||
		se.StatusCode == http.StatusTooManyRequests ||
		se.StatusCode >= 500
}
