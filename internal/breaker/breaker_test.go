package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/andreabozzo/ares/internal/apperrors"
)

func testConfig() Config {
	return Config{
		FailureThreshold:           3,
		SuccessThreshold:           2,
		RecoveryTimeout:            50 * time.Millisecond,
		RateLimitBackoffMultiplier: 2.0,
		MaxRecoveryTimeout:         200 * time.Millisecond,
	}
}

func tripErr() error {
	return apperrors.NewTimeout(5)
}

func rateLimitErr() error {
	return apperrors.NewRateLimit()
}

func TestCircuitStartsClosed(t *testing.T) {
	b := New("test", testConfig())
	if b.State() != StateClosed {
		t.Fatalf("new breaker should start closed, got %s", b.State())
	}
}

func TestCircuitOpensAfterThresholdFailures(t *testing.T) {
	b := New("test", testConfig())
	for i := 0; i < 3; i++ {
		b.RecordFailure(tripErr())
	}
	if b.State() != StateOpen {
		t.Fatalf("expected open after 3 failures, got %s", b.State())
	}
}

func TestCircuitStaysClosedBelowThreshold(t *testing.T) {
	b := New("test", testConfig())
	b.RecordFailure(tripErr())
	b.RecordFailure(tripErr())
	if b.State() != StateClosed {
		t.Fatalf("expected closed below threshold, got %s", b.State())
	}
}

func TestSuccessResetsFailureCount(t *testing.T) {
	b := New("test", testConfig())
	b.RecordFailure(tripErr())
	b.RecordFailure(tripErr())
	b.RecordSuccess()
	b.RecordFailure(tripErr())
	b.RecordFailure(tripErr())
	if b.State() != StateClosed {
		t.Fatalf("failure count should have reset on success, got %s", b.State())
	}
}

func TestCircuitTransitionsToHalfOpen(t *testing.T) {
	cfg := testConfig()
	b := New("test", cfg)
	for i := 0; i < 3; i++ {
		b.RecordFailure(tripErr())
	}
	if b.State() != StateOpen {
		t.Fatalf("expected open, got %s", b.State())
	}
	time.Sleep(cfg.RecoveryTimeout + 10*time.Millisecond)
	if b.State() != StateHalfOpen {
		t.Fatalf("expected half-open after recovery timeout, got %s", b.State())
	}
}

func TestHalfOpenClosesOnSuccess(t *testing.T) {
	cfg := testConfig()
	b := New("test", cfg)
	for i := 0; i < 3; i++ {
		b.RecordFailure(tripErr())
	}
	time.Sleep(cfg.RecoveryTimeout + 10*time.Millisecond)
	if b.State() != StateHalfOpen {
		t.Fatalf("expected half-open, got %s", b.State())
	}
	b.RecordSuccess()
	if b.State() != StateHalfOpen {
		t.Fatalf("one success below threshold should remain half-open, got %s", b.State())
	}
	b.RecordSuccess()
	if b.State() != StateClosed {
		t.Fatalf("expected closed after success threshold, got %s", b.State())
	}
}

func TestHalfOpenReopensOnFailure(t *testing.T) {
	cfg := testConfig()
	b := New("test", cfg)
	for i := 0; i < 3; i++ {
		b.RecordFailure(tripErr())
	}
	time.Sleep(cfg.RecoveryTimeout + 10*time.Millisecond)
	if b.State() != StateHalfOpen {
		t.Fatalf("expected half-open, got %s", b.State())
	}
	b.RecordFailure(tripErr())
	if b.State() != StateOpen {
		t.Fatalf("any half-open failure should reopen, got %s", b.State())
	}
}

func TestRateLimitExtendsRecoveryTimeout(t *testing.T) {
	cfg := testConfig()
	b := New("test", cfg)
	for i := 0; i < 2; i++ {
		b.RecordFailure(tripErr())
	}
	b.RecordFailure(rateLimitErr())
	if b.State() != StateOpen {
		t.Fatalf("expected open, got %s", b.State())
	}

	stats := b.Stats()
	if stats.TimeUntilHalfOpen <= cfg.RecoveryTimeout {
		t.Fatalf("rate limit trip should extend dwell beyond base recovery timeout, got %v", stats.TimeUntilHalfOpen)
	}
}

func TestRateLimitBackoffCappedAtMax(t *testing.T) {
	cfg := testConfig()
	b := New("test", cfg)
	for i := 0; i < 3; i++ {
		b.RecordFailure(rateLimitErr())
	}
	// Cycle open -> half-open -> open via rate limit repeatedly to keep
	// doubling the dwell, and confirm it never exceeds MaxRecoveryTimeout.
	for i := 0; i < 5; i++ {
		time.Sleep(cfg.MaxRecoveryTimeout + 10*time.Millisecond)
		b.State() // drive the lazy half-open transition
		b.RecordFailure(rateLimitErr())
	}
	stats := b.Stats()
	if stats.TimeUntilHalfOpen > cfg.MaxRecoveryTimeout {
		t.Fatalf("dwell time should be capped at %v, got %v", cfg.MaxRecoveryTimeout, stats.TimeUntilHalfOpen)
	}
}

func TestManualReset(t *testing.T) {
	b := New("test", testConfig())
	for i := 0; i < 3; i++ {
		b.RecordFailure(tripErr())
	}
	if b.State() != StateOpen {
		t.Fatalf("expected open, got %s", b.State())
	}
	b.Reset()
	if b.State() != StateClosed {
		t.Fatalf("expected closed after reset, got %s", b.State())
	}
	stats := b.Stats()
	if stats.FailureCount != 0 {
		t.Fatalf("expected failure count cleared after reset, got %d", stats.FailureCount)
	}
}

func TestCallReturnsOpenErrorWhenCircuitOpen(t *testing.T) {
	b := New("test", testConfig())
	for i := 0; i < 3; i++ {
		b.RecordFailure(tripErr())
	}
	err := b.Execute(context.Background(), func(ctx context.Context) error {
		t.Fatal("op should not be invoked while breaker is open")
		return nil
	})
	var openErr *ErrOpen
	if !errors.As(err, &openErr) {
		t.Fatalf("expected *ErrOpen, got %v (%T)", err, err)
	}
}

func TestCallExecutesWhenClosed(t *testing.T) {
	b := New("test", testConfig())
	called := false
	err := b.Execute(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("op should have been invoked while closed")
	}
}

func TestCallRecordsFailure(t *testing.T) {
	b := New("test", testConfig())
	_ = b.Execute(context.Background(), func(ctx context.Context) error {
		return tripErr()
	})
	stats := b.Stats()
	if stats.FailureCount != 1 {
		t.Fatalf("expected failure count 1, got %d", stats.FailureCount)
	}
}

func TestCallDoesNotRecordNonTrippingError(t *testing.T) {
	b := New("test", testConfig())
	_ = b.Execute(context.Background(), func(ctx context.Context) error {
		return apperrors.NewSchema("bad shape")
	})
	stats := b.Stats()
	if stats.FailureCount != 0 {
		t.Fatalf("schema errors should not trip the breaker, got failure count %d", stats.FailureCount)
	}
}

func TestCallRecoversPanic(t *testing.T) {
	b := New("test", testConfig())
	err := b.Execute(context.Background(), func(ctx context.Context) error {
		panic("boom")
	})
	if err == nil {
		t.Fatal("expected an error surfaced from the recovered panic")
	}
}

func TestOnStateChangeFires(t *testing.T) {
	cfg := testConfig()
	var transitions []State
	cfg.OnStateChange = func(name string, from, to State) {
		transitions = append(transitions, to)
	}
	b := New("test", cfg)
	for i := 0; i < 3; i++ {
		b.RecordFailure(tripErr())
	}
	if len(transitions) != 1 || transitions[0] != StateOpen {
		t.Fatalf("expected one transition to open, got %v", transitions)
	}
}
