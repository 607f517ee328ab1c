// Package breaker implements a three-state circuit breaker guarding calls
// to a named external dependency, extending the structure of
// infrastructure/circuitbreaker with a rate-limit-aware backoff multiplier
// on the open-state dwell time.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/andreabozzo/ares/internal/apperrors"
)

// State is the breaker's current position.
type State int32

const (
	StateClosed State = iota
	StateOpen
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
	default:
		return "unknown"
	}
}

// Config controls breaker thresholds and dwell times. Defaults mirror the
// spec's configuration table.
type Config struct {
	FailureThreshold          int
	SuccessThreshold          int
	RecoveryTimeout           time.Duration
	RateLimitBackoffMultiplier float64
	MaxRecoveryTimeout        time.Duration

	// OnStateChange, if set, is invoked (not under the lock) whenever the
	// breaker transitions from one state to another.
	OnStateChange func(name string, from, to State)
}

// DefaultConfig returns the spec's defaults.
func DefaultConfig() Config {
	return Config{
		FailureThreshold:           5,
		SuccessThreshold:           2,
		RecoveryTimeout:            30 * time.Second,
		RateLimitBackoffMultiplier: 2.0,
		MaxRecoveryTimeout:         300 * time.Second,
	}
}

// ErrOpen is returned by Execute when the breaker rejects a call without
// invoking the protected operation. It is always distinct from any error
// the protected operation itself could return.
type ErrOpen struct {
	Name       string
	RetryAfter time.Duration
}

func (e *ErrOpen) Error() string {
	return fmt.Sprintf("circuit breaker %q is open, retry after %s", e.Name, e.RetryAfter)
}

// Stats is a coherent snapshot of breaker state for observability.
type Stats struct {
	Name               string
	State              State
	FailureCount       int
	SuccessCount       int
	LastError          string
	TimeUntilHalfOpen  time.Duration // zero when not Open
}

// Breaker is a thread-safe circuit breaker. All mutable state is guarded by
// a single mutex; public accessors return coherent snapshots.
type Breaker struct {
	name   string
	config Config

	mu                     sync.Mutex
	state                  State
	failureCount           int
	successCount           int
	lastFailureTime        time.Time
	lastErrorMessage       string
	currentRecoveryTimeout time.Duration
}

// New creates a named breaker.
func New(name string, config Config) *Breaker {
	return &Breaker{
		name:                   name,
		config:                 config,
		state:                  StateClosed,
		currentRecoveryTimeout: config.RecoveryTimeout,
	}
}

// Name returns the breaker's name.
func (b *Breaker) Name() string { return b.name }

// State returns the current state, applying the lazy open→half-open
// transition first.
func (b *Breaker) State() State {
	b.mu.Lock()
	changed, from := b.maybeTransitionToHalfOpen()
	state := b.state
	b.mu.Unlock()

	if changed {
		b.notify(from, state)
	}
	return state
}

// Stats returns a coherent snapshot of the breaker's internals.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	changed, from := b.maybeTransitionToHalfOpen()

	var until time.Duration
	if b.state == StateOpen && !b.lastFailureTime.IsZero() {
		elapsed := time.Since(b.lastFailureTime)
		if elapsed < b.currentRecoveryTimeout {
			until = b.currentRecoveryTimeout - elapsed
		}
	}

	stats := Stats{
		Name:              b.name,
		State:             b.state,
		FailureCount:      b.failureCount,
		SuccessCount:      b.successCount,
		LastError:         b.lastErrorMessage,
		TimeUntilHalfOpen: until,
	}
	to := b.state
	b.mu.Unlock()

	if changed {
		b.notify(from, to)
	}
	return stats
}

// Execute runs op through the breaker.
//
//  1. Lazily transitions open→half_open if the dwell time elapsed.
//  2. If open, rejects immediately with *ErrOpen without invoking op.
//  3. Otherwise invokes op; on success, records success; on a
//     trips_circuit error, records failure; on any other error, the
//     breaker is left untouched.
//
// A panic inside op is recovered and surfaced as a generic apperrors.Error,
// so a single misbehaving job can never crash the worker goroutine holding
// the breaker.
func (b *Breaker) Execute(ctx context.Context, op func(ctx context.Context) error) (err error) {
	b.mu.Lock()
	changed, from := b.maybeTransitionToHalfOpen()
	to := b.state
	isOpen := b.state == StateOpen

	var retryAfter time.Duration
	var name string
	if isOpen {
		retryAfter = b.currentRecoveryTimeout
		if !b.lastFailureTime.IsZero() {
			elapsed := time.Since(b.lastFailureTime)
			if elapsed < b.currentRecoveryTimeout {
				retryAfter = b.currentRecoveryTimeout - elapsed
			} else {
				retryAfter = 0
			}
		}
		name = b.name
	}
	b.mu.Unlock()

	if changed {
		b.notify(from, to)
	}
	if isOpen {
		return &ErrOpen{Name: name, RetryAfter: retryAfter}
	}

	defer func() {
		if r := recover(); r != nil {
			err = apperrors.NewGeneric(fmt.Sprintf("recovered panic in breaker operation: %v", r), nil)
		}
	}()

	err = op(ctx)
	if err == nil {
		b.RecordSuccess()
		return nil
	}
	if apperrors.TripsCircuit(err) {
		b.RecordFailure(err)
	}
	return err
}

// RecordSuccess records a successful call outside of Execute (used by
// callers that need finer control than Execute's single op() call, and by
// Execute itself).
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	var changed bool
	var from State

	switch b.state {
	case StateHalfOpen:
		b.successCount++
		if b.successCount >= b.config.SuccessThreshold {
			changed, from = b.transitionTo(StateClosed)
			b.failureCount = 0
			b.successCount = 0
			b.currentRecoveryTimeout = b.config.RecoveryTimeout
		}
	case StateClosed:
		b.failureCount = 0
	case StateOpen:
		// no-op
	}
	to := b.state
	b.mu.Unlock()

	if changed {
		b.notify(from, to)
	}
}

// RecordFailure records a failed call. Callers should only call this for
// errors where apperrors.TripsCircuit(err) is true; Execute enforces this
// automatically.
func (b *Breaker) RecordFailure(err error) {
	b.mu.Lock()
	var changed bool
	var from State

	isRateLimit := isRateLimitError(err)

	switch b.state {
	case StateClosed:
		b.failureCount++
		b.lastFailureTime = time.Now()
		b.lastErrorMessage = err.Error()

		if b.failureCount >= b.config.FailureThreshold {
			changed, from = b.transitionTo(StateOpen)
			if isRateLimit {
				b.extendRecoveryTimeout()
			}
		}
	case StateHalfOpen:
		changed, from = b.transitionTo(StateOpen)
		b.lastFailureTime = time.Now()
		b.lastErrorMessage = err.Error()
		b.successCount = 0
		if isRateLimit {
			b.extendRecoveryTimeout()
		}
	case StateOpen:
		b.lastErrorMessage = err.Error()
	}
	to := b.state
	b.mu.Unlock()

	if changed {
		b.notify(from, to)
	}
}

// Reset forces the breaker back to closed, clearing all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failureCount = 0
	b.successCount = 0
	b.lastFailureTime = time.Time{}
	b.lastErrorMessage = ""
	b.currentRecoveryTimeout = b.config.RecoveryTimeout
}

func (b *Breaker) extendRecoveryTimeout() {
	next := time.Duration(float64(b.currentRecoveryTimeout) * b.config.RateLimitBackoffMultiplier)
	if b.config.MaxRecoveryTimeout > 0 && next > b.config.MaxRecoveryTimeout {
		next = b.config.MaxRecoveryTimeout
	}
	b.currentRecoveryTimeout = next
}

// maybeTransitionToHalfOpen must be called with b.mu held. It reports
// whether a transition happened and the state transitioned from, so the
// caller can notify OnStateChange after releasing the lock.
func (b *Breaker) maybeTransitionToHalfOpen() (changed bool, from State) {
	if b.state == StateOpen && !b.lastFailureTime.IsZero() &&
		time.Since(b.lastFailureTime) >= b.currentRecoveryTimeout {
		changed, from = b.transitionTo(StateHalfOpen)
		b.successCount = 0
		return changed, from
	}
	return false, b.state
}

// transitionTo must be called with b.mu held. It only mutates state; the
// caller is responsible for invoking notify after releasing the lock so
// OnStateChange never runs while b.mu is held.
func (b *Breaker) transitionTo(to State) (changed bool, from State) {
	from = b.state
	b.state = to
	return from != to, from
}

// notify invokes OnStateChange. Callers must never hold b.mu here.
func (b *Breaker) notify(from, to State) {
	if b.config.OnStateChange != nil && from != to {
		b.config.OnStateChange(b.name, from, to)
	}
}

func isRateLimitError(err error) bool {
	var e *apperrors.Error
	if errors.As(err, &e) {
		return e.IsRateLimit()
	}
	return false
}
