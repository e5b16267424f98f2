package exchange

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sportsfade/fadebot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// CIRCUIT BREAKER - Transport protection for exchange calls
// ═══════════════════════════════════════════════════════════════════════════════
//
// closed → open after N consecutive transport failures
// open → half-open after the cooldown elapses
// half-open → closed on first success, back to open on failure
//
// ═══════════════════════════════════════════════════════════════════════════════

type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

func (s breakerState) String() string {
	switch s {
	case stateOpen:
		return "open"
	case stateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

type CircuitBreaker struct {
	mu sync.Mutex

	maxFailures int
	cooldown    time.Duration

	state        breakerState
	failures     int
	openedAt     time.Time
	halfOpenBusy bool
}

func NewCircuitBreaker(maxFailures int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		maxFailures: maxFailures,
		cooldown:    cooldown,
	}
}

// Allow reports whether a call may proceed. In half-open state only one
// probe call is let through at a time.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case stateClosed:
		return true
	case stateOpen:
		if time.Since(cb.openedAt) >= cb.cooldown {
			cb.state = stateHalfOpen
			cb.halfOpenBusy = true
			log.Info().Msg("Circuit breaker half-open, probing")
			return true
		}
		return false
	case stateHalfOpen:
		if cb.halfOpenBusy {
			return false
		}
		cb.halfOpenBusy = true
		return true
	}
	return false
}

// RecordSuccess closes the breaker.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != stateClosed {
		log.Info().Str("from", cb.state.String()).Msg("✅ Circuit breaker closed")
	}
	cb.state = stateClosed
	cb.failures = 0
	cb.halfOpenBusy = false
}

// RecordFailure counts a transport failure and may trip the breaker.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.halfOpenBusy = false

	if cb.state == stateHalfOpen || cb.failures >= cb.maxFailures {
		if cb.state != stateOpen {
			log.Warn().
				Int("failures", cb.failures).
				Dur("cooldown", cb.cooldown).
				Msg("🚨 Circuit breaker opened")
		}
		cb.state = stateOpen
		cb.openedAt = time.Now()
	}
}

// State returns the current state name for health reporting.
func (cb *CircuitBreaker) State() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state.String()
}

// Err returns ErrCircuitOpen when calls are being shed.
func (cb *CircuitBreaker) Err() error {
	return types.ErrCircuitOpen
}

// backoffDelay returns the exponential backoff for attempt n (0-based)
// with 10% jitter.
func backoffDelay(attempt int, base time.Duration) time.Duration {
	d := float64(base) * math.Pow(2, float64(attempt))
	jitter := d * 0.1 * (rand.Float64()*2 - 1)
	return time.Duration(d + jitter)
}
