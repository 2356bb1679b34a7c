package integration

import (
	"sync"
	"time"

	"github.com/mescon/Archivarr/internal/clock"
)

// CircuitState represents the current state of the circuit breaker.
type CircuitState int

const (
	// CircuitClosed is the normal operating state - requests are allowed.
	CircuitClosed CircuitState = iota
	// CircuitOpen is the failure state - requests are rejected immediately.
	CircuitOpen
	// CircuitHalfOpen lets a single trial request through.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures the circuit breaker behavior.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before opening the circuit.
	FailureThreshold int
	// ResetTimeout is how long to wait before allowing a trial request.
	ResetTimeout time.Duration
	// SuccessThreshold is the number of trial successes needed to close the circuit.
	SuccessThreshold int
}

// DefaultCircuitBreakerConfig returns sensible defaults for the circuit breaker.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
		SuccessThreshold: 2,
	}
}

// CircuitBreaker stops the client from hammering an API that keeps failing.
// A run talks to one API, so one breaker guards the whole client.
type CircuitBreaker struct {
	mu              sync.Mutex
	config          CircuitBreakerConfig
	clock           clock.Clock
	state           CircuitState
	failures        int // consecutive failures
	successes       int // consecutive trial successes
	trialInFlight   bool
	lastFailureTime time.Time
	totalRejected   int64
}

// NewCircuitBreaker creates a new circuit breaker. A nil clock uses wall time.
func NewCircuitBreaker(config CircuitBreakerConfig, clk clock.Clock) *CircuitBreaker {
	defaults := DefaultCircuitBreakerConfig()
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = defaults.FailureThreshold
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = defaults.ResetTimeout
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = defaults.SuccessThreshold
	}
	if clk == nil {
		clk = clock.NewRealClock()
	}
	return &CircuitBreaker{
		config: config,
		clock:  clk,
		state:  CircuitClosed,
	}
}

// Allow checks if a request should be allowed through.
// Call RecordSuccess or RecordFailure after an allowed request completes.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitOpen:
		if cb.clock.Now().Sub(cb.lastFailureTime) < cb.config.ResetTimeout {
			cb.totalRejected++
			return false
		}
		cb.state = CircuitHalfOpen
		cb.successes = 0
		cb.trialInFlight = true
		return true

	case CircuitHalfOpen:
		if cb.trialInFlight {
			cb.totalRejected++
			return false
		}
		cb.trialInFlight = true
		return true

	default:
		return true
	}
}

// RecordSuccess records a successful request, potentially closing the circuit.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitHalfOpen:
		cb.trialInFlight = false
		cb.successes++
		if cb.successes >= cb.config.SuccessThreshold {
			cb.state = CircuitClosed
			cb.failures = 0
			cb.successes = 0
		}
	default:
		cb.failures = 0
	}
}

// RecordFailure records a failed request, potentially opening the circuit.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.successes = 0
	cb.lastFailureTime = cb.clock.Now()

	switch cb.state {
	case CircuitClosed:
		if cb.failures >= cb.config.FailureThreshold {
			cb.state = CircuitOpen
		}
	case CircuitHalfOpen:
		// Failed trial - back to open
		cb.trialInFlight = false
		cb.state = CircuitOpen
	}
}

// State returns the current state of the circuit breaker.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Rejected returns how many requests were refused while the circuit was not closed.
func (cb *CircuitBreaker) Rejected() int64 {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.totalRejected
}
