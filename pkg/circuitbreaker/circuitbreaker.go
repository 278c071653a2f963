package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrOpen is returned without calling the function while the breaker is
// open or the half-open probe budget is used up.
var ErrOpen = errors.New("circuit breaker is open")

// State represents the circuit breaker state
type State int

const (
	StateClosed   State = iota // calls pass through
	StateOpen                  // calls fail fast with ErrOpen
	StateHalfOpen              // a limited number of probe calls pass
)

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

// Config holds circuit breaker configuration
type Config struct {
	FailureThreshold    int           // consecutive failures that open the circuit
	SuccessThreshold    int           // half-open successes that close it again
	Cooldown            time.Duration // time spent open before probing
	MaxRequestsHalfOpen int           // concurrent probes allowed while half-open
}

func DefaultConfig() Config {
	return Config{
		FailureThreshold:    5,
		SuccessThreshold:    2,
		Cooldown:            10 * time.Second,
		MaxRequestsHalfOpen: 1,
	}
}

type Stats struct {
	State           State
	Failures        int
	Successes       int
	LastFailure     time.Time
	LastStateChange time.Time
}

type CircuitBreaker struct {
	cfg Config
	now func() time.Time

	mu          sync.Mutex
	state       State
	failures    int
	successes   int
	inFlight    int
	lastFailure time.Time
	changedAt   time.Time

	onStateChange func(from, to State)
}

func New(cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 1
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 1
	}
	if cfg.MaxRequestsHalfOpen <= 0 {
		cfg.MaxRequestsHalfOpen = 1
	}
	return &CircuitBreaker{
		cfg:       cfg,
		now:       time.Now,
		changedAt: time.Now(),
	}
}

// WithClock replaces time.Now. Used by tests.
func (cb *CircuitBreaker) WithClock(now func() time.Time) *CircuitBreaker {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.now = now
	cb.changedAt = now()
	return cb
}

// OnStateChange registers fn, called synchronously after each transition
// with the breaker unlocked.
func (cb *CircuitBreaker) OnStateChange(fn func(from, to State)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onStateChange = fn
}

// Execute runs fn unless the circuit is open. Context cancellation is not
// counted as a failure.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := cb.acquire(); err != nil {
		return err
	}
	err := fn(ctx)
	cb.release(err)
	return err
}

// Call is Execute for functions that produce a value.
func Call[T any](ctx context.Context, cb *CircuitBreaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := cb.Execute(ctx, func(ctx context.Context) error {
		var err error
		result, err = fn(ctx)
		return err
	})
	return result, err
}

func (cb *CircuitBreaker) acquire() error {
	cb.mu.Lock()

	var transition func()
	if cb.state == StateOpen && cb.now().Sub(cb.changedAt) >= cb.cfg.Cooldown {
		transition = cb.transitionLocked(StateHalfOpen)
	}

	switch cb.state {
	case StateOpen:
		cb.mu.Unlock()
		return ErrOpen
	case StateHalfOpen:
		if cb.inFlight >= cb.cfg.MaxRequestsHalfOpen {
			cb.mu.Unlock()
			notify(transition)
			return fmt.Errorf("%w: probe in progress", ErrOpen)
		}
	}
	cb.inFlight++
	cb.mu.Unlock()
	notify(transition)
	return nil
}

func (cb *CircuitBreaker) release(err error) {
	cb.mu.Lock()
	cb.inFlight--

	var transition func()
	switch {
	case err == nil:
		cb.failures = 0
		if cb.state == StateHalfOpen {
			cb.successes++
			if cb.successes >= cb.cfg.SuccessThreshold {
				transition = cb.transitionLocked(StateClosed)
			}
		}
	case errors.Is(err, context.Canceled):
	default:
		cb.failures++
		cb.successes = 0
		cb.lastFailure = cb.now()
		if cb.state == StateHalfOpen || cb.failures >= cb.cfg.FailureThreshold {
			transition = cb.transitionLocked(StateOpen)
		}
	}
	cb.mu.Unlock()
	notify(transition)
}

// transitionLocked changes state and returns the callback to run once the
// lock is released.
func (cb *CircuitBreaker) transitionLocked(to State) func() {
	from := cb.state
	if from == to {
		return nil
	}
	cb.state = to
	cb.changedAt = cb.now()
	cb.failures = 0
	cb.successes = 0

	if fn := cb.onStateChange; fn != nil {
		return func() { fn(from, to) }
	}
	return nil
}

func notify(fn func()) {
	if fn != nil {
		fn()
	}
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) Stats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return Stats{
		State:           cb.state,
		Failures:        cb.failures,
		Successes:       cb.successes,
		LastFailure:     cb.lastFailure,
		LastStateChange: cb.changedAt,
	}
}

// Reset closes the circuit.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	transition := cb.transitionLocked(StateClosed)
	cb.mu.Unlock()
	notify(transition)
}
