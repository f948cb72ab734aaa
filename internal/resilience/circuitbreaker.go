// Package resilience provides circuit breaking and provider failover for the
// cloud and local speech backends.
//
// A [CircuitBreaker] trips after consecutive failures and lets probe calls
// through once its reset timeout elapsed. A [FallbackGroup] puts one breaker
// in front of each provider of a kind and tries them in registration order,
// so a dead Deepgram key degrades to local whisper instead of failing every
// recognition session.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] while the breaker
// rejects calls.
var ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

// Breaker defaults applied by [NewCircuitBreaker].
const (
	DefaultMaxFailures  = 5
	DefaultResetTimeout = 30 * time.Second
	DefaultHalfOpenMax  = 3
)

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the reset timeout
	// elapsed.
	StateOpen

	// StateHalfOpen lets up to HalfOpenMax probe calls through. Enough
	// successes close the breaker, any failure opens it again.
	StateHalfOpen
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds tuning knobs for a [CircuitBreaker]. Zero values
// select the package defaults.
type CircuitBreakerConfig struct {
	// Name labels log lines, usually the provider name.
	Name string

	// MaxFailures consecutive failures open a closed breaker.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before probing.
	ResetTimeout time.Duration

	// HalfOpenMax is the probe budget of the half-open state.
	HalfOpenMax int

	// OnStateChange, when set, is called after every transition with the
	// breaker lock released.
	OnStateChange func(name string, from, to State)
}

// CircuitBreaker implements the three-state circuit breaker pattern.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	halfOpenMax  int
	onChange     func(name string, from, to State)
	now          func() time.Time

	mu              sync.Mutex
	state           State
	consecutiveFail int
	openedAt        time.Time
	probes          int
	probeOK         int
}

// NewCircuitBreaker creates a closed [CircuitBreaker].
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = DefaultMaxFailures
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = DefaultResetTimeout
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = DefaultHalfOpenMax
	}
	return &CircuitBreaker{
		name:         cfg.Name,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
		halfOpenMax:  cfg.HalfOpenMax,
		onChange:     cfg.OnStateChange,
		now:          time.Now,
		state:        StateClosed,
	}
}

// Name returns the configured breaker name.
func (cb *CircuitBreaker) Name() string { return cb.name }

// Execute runs fn if the breaker allows it and records the outcome. A
// rejected call returns [ErrCircuitOpen] without calling fn.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probe, from, changed, err := cb.admit()
	if changed {
		cb.notify(from, StateHalfOpen)
	}
	if err != nil {
		return err
	}

	callErr := fn()

	from, to, changed := cb.record(probe, callErr == nil)
	if changed {
		cb.notify(from, to)
	}
	return callErr
}

// admit decides whether a call may proceed. probe reports whether the call
// counts against the half-open budget.
func (cb *CircuitBreaker) admit() (probe bool, from State, changed bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.resetTimeout {
			return false, cb.state, false, ErrCircuitOpen
		}
		from, changed = cb.state, true
		cb.state = StateHalfOpen
		cb.probes, cb.probeOK = 0, 0
		slog.Info("circuit breaker half-open", "breaker", cb.name)
	case StateHalfOpen:
		if cb.probes >= cb.halfOpenMax {
			return false, cb.state, false, ErrCircuitOpen
		}
	}
	if cb.state == StateHalfOpen {
		cb.probes++
		return true, from, changed, nil
	}
	return false, from, changed, nil
}

func (cb *CircuitBreaker) record(probe, ok bool) (from, to State, changed bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	from = cb.state

	switch {
	case ok && probe:
		cb.probeOK++
		if cb.probeOK >= cb.halfOpenMax && cb.state == StateHalfOpen {
			cb.state = StateClosed
			cb.consecutiveFail = 0
			slog.Info("circuit breaker closed", "breaker", cb.name)
		}
	case ok:
		cb.consecutiveFail = 0
	case probe:
		if cb.state == StateHalfOpen {
			cb.trip()
			slog.Warn("circuit breaker re-opened by failed probe", "breaker", cb.name)
		}
	default:
		cb.consecutiveFail++
		if cb.state == StateClosed && cb.consecutiveFail >= cb.maxFailures {
			cb.trip()
			slog.Warn("circuit breaker opened",
				"breaker", cb.name,
				"consecutive_failures", cb.consecutiveFail)
		}
	}
	return from, cb.state, from != cb.state
}

// trip opens the breaker. Must be called with cb.mu held.
func (cb *CircuitBreaker) trip() {
	cb.state = StateOpen
	cb.openedAt = cb.now()
	cb.consecutiveFail = cb.maxFailures
}

func (cb *CircuitBreaker) notify(from, to State) {
	if cb.onChange != nil {
		cb.onChange(cb.name, from, to)
	}
}

// State returns the current [State]. An open breaker whose reset timeout
// elapsed reports [StateHalfOpen]; the transition itself happens on the next
// [CircuitBreaker.Execute].
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker back to [StateClosed].
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	from := cb.state
	cb.state = StateClosed
	cb.consecutiveFail = 0
	cb.probes, cb.probeOK = 0, 0
	cb.mu.Unlock()

	slog.Info("circuit breaker reset", "breaker", cb.name)
	if from != StateClosed {
		cb.notify(from, StateClosed)
	}
}
