// Package resilience keeps the pipeline's external providers usable when
// one of them degrades. A [CircuitBreaker] guards a single backend: it
// trips after repeated failures, cools down, then probes before trusting
// the backend again. A [FallbackGroup] composes interchangeable backends
// of one concern behind per-backend breakers, so a tripped primary is
// routed around instead of retried.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen rejects a call while the breaker is open and its cooldown
// has not elapsed.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Breaker defaults, applied when the config leaves a knob at zero.
const (
	defaultMaxFailures  = 5
	defaultResetTimeout = 30 * time.Second
	defaultHalfOpenMax  = 3
)

// State is the breaker's operating mode.
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the cooldown ends.
	StateOpen

	// StateHalfOpen lets a bounded number of probe calls through to decide
	// whether the backend has recovered.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// CircuitBreakerConfig tunes one breaker.
type CircuitBreakerConfig struct {
	// Name labels the breaker in logs, usually the backend it guards.
	Name string

	// MaxFailures is how many consecutive failures trip the breaker.
	MaxFailures int

	// ResetTimeout is the open-state cooldown before probing starts.
	ResetTimeout time.Duration

	// HalfOpenMax bounds the probe calls allowed while half-open; that many
	// successes in a row close the breaker, one failure re-opens it.
	HalfOpenMax int
}

// CircuitBreaker implements the closed/open/half-open breaker pattern for
// one backend.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probes   int
	probeOK  int
}

// NewCircuitBreaker builds a breaker, filling zero config knobs with the
// package defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = defaultMaxFailures
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = defaultResetTimeout
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = defaultHalfOpenMax
	}
	return &CircuitBreaker{cfg: cfg}
}

// Execute runs fn when the breaker allows it. Open breakers reject with
// [ErrCircuitOpen]; half-open breakers admit a bounded number of probes.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probing, err := cb.allow()
	if err != nil {
		return err
	}
	err = fn()
	cb.observe(err == nil, probing)
	return err
}

// allow decides whether a call may proceed, moving open to half-open once
// the cooldown has elapsed. Reports whether the call counts as a probe.
func (cb *CircuitBreaker) allow() (probing bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if time.Since(cb.openedAt) < cb.cfg.ResetTimeout {
			return false, ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.probes, cb.probeOK = 0, 0
		slog.Info("circuit breaker probing backend", "name", cb.cfg.Name)
	}
	if cb.state == StateHalfOpen {
		if cb.probes >= cb.cfg.HalfOpenMax {
			return false, ErrCircuitOpen
		}
		cb.probes++
		return true, nil
	}
	return false, nil
}

// observe records one call outcome.
func (cb *CircuitBreaker) observe(ok, probing bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if probing {
		if !ok {
			// One failed probe re-opens immediately.
			cb.state = StateOpen
			cb.openedAt = time.Now()
			cb.failures = cb.cfg.MaxFailures
			slog.Warn("circuit breaker re-opened", "name", cb.cfg.Name)
			return
		}
		cb.probeOK++
		if cb.probeOK >= cb.cfg.HalfOpenMax {
			cb.state = StateClosed
			cb.failures = 0
			slog.Info("circuit breaker closed after probes", "name", cb.cfg.Name)
		}
		return
	}

	if ok {
		cb.failures = 0
		return
	}
	cb.failures++
	cb.openedAt = time.Now()
	if cb.state == StateClosed && cb.failures >= cb.cfg.MaxFailures {
		cb.state = StateOpen
		slog.Warn("circuit breaker opened",
			"name", cb.cfg.Name, "failures", cb.failures)
	}
}

// State reports the current mode. An open breaker past its cooldown reports
// half-open; the actual transition happens on the next [CircuitBreaker.Execute].
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && time.Since(cb.openedAt) >= cb.cfg.ResetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker closed and clears its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.failures, cb.probes, cb.probeOK = 0, 0, 0
	slog.Info("circuit breaker reset", "name", cb.cfg.Name)
}
