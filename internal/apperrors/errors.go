// Package apperrors defines the error taxonomy shared by every component of
// the core: every failure is classified along two independent axes,
// retryable and trips_circuit, and policy decisions elsewhere in the
// codebase query only those two predicates rather than matching on a
// specific kind.
package apperrors

import (
	"errors"
	"fmt"
	"strings"
)

// Kind identifies the category of a core error.
type Kind int

const (
	// KindNetwork covers connection refused/reset, DNS failures.
	KindNetwork Kind = iota
	// KindTimeout covers an operation exceeding its deadline.
	KindTimeout
	// KindRateLimit covers a provider-reported 429.
	KindRateLimit
	// KindLLM covers a non-2xx/non-timeout response from the LLM provider.
	KindLLM
	// KindHTTP covers generic HTTP transport failures from the fetcher.
	KindHTTP
	// KindCleaner covers malformed input to the HTML-to-Markdown transform.
	KindCleaner
	// KindSchema covers extracted data that fails schema validation.
	KindSchema
	// KindSerialization covers malformed structured data.
	KindSerialization
	// KindDatabase covers persistence failures.
	KindDatabase
	// KindConfig covers misconfiguration.
	KindConfig
	// KindGeneric is the catch-all.
	KindGeneric
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindTimeout:
		return "timeout"
	case KindRateLimit:
		return "rate_limit"
	case KindLLM:
		return "llm"
	case KindHTTP:
		return "http"
	case KindCleaner:
		return "cleaner"
	case KindSchema:
		return "schema"
	case KindSerialization:
		return "serialization"
	case KindDatabase:
		return "database"
	case KindConfig:
		return "config"
	default:
		return "generic"
	}
}

// Error is the concrete error type used across the core. It is never
// compared by kind for policy decisions outside this package — callers use
// Retryable()/TripsCircuit().
type Error struct {
	Kind Kind
	Msg  string
	Err  error

	// Status carries the HTTP status code for KindLLM and KindHTTP errors.
	Status int
	// retryableOverride is set for KindLLM, whose retryability is carried
	// explicitly by the provider response rather than derived from Status.
	retryableOverride bool
	// Seconds carries the elapsed bound for KindTimeout.
	Seconds int
}

func (e *Error) Error() string {
	if e.Status != 0 {
		switch e.Kind {
		case KindLLM:
			return fmt.Sprintf("llm error (HTTP %d): %s", e.Status, e.Msg)
		case KindHTTP:
			return fmt.Sprintf("http error (HTTP %d): %s", e.Status, e.Msg)
		}
	}
	if e.Kind == KindTimeout && e.Seconds > 0 {
		return fmt.Sprintf("request timed out after %d seconds", e.Seconds)
	}
	if e.Msg == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind.String(), e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the same work, run again later, could plausibly
// succeed.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindNetwork, KindTimeout, KindRateLimit:
		return true
	case KindLLM:
		return e.retryableOverride
	case KindHTTP:
		return httpMessageIsTransient(e.Msg)
	default:
		return false
	}
}

// TripsCircuit reports whether this failure indicates the external
// dependency is unhealthy.
func (e *Error) TripsCircuit() bool {
	switch e.Kind {
	case KindNetwork, KindTimeout, KindRateLimit:
		return true
	case KindLLM:
		return e.Status == 429 || e.Status >= 500 || e.retryableOverride
	case KindHTTP:
		return httpMessageIsTransient(e.Msg)
	default:
		return false
	}
}

// IsRateLimit reports whether this error represents a rate-limit response,
// the one condition that drives the breaker's backoff multiplier.
func (e *Error) IsRateLimit() bool {
	return e.Kind == KindRateLimit || (e.Kind == KindLLM && e.Status == 429)
}

func httpMessageIsTransient(msg string) bool {
	lower := strings.ToLower(msg)
	for _, substr := range []string{"timeout", "connect", "reset", "connection"} {
		if strings.Contains(lower, substr) {
			return true
		}
	}
	return false
}

// --- constructors ---

// NewNetwork builds a retryable, circuit-tripping network error.
func NewNetwork(msg string, cause error) *Error {
	return &Error{Kind: KindNetwork, Msg: msg, Err: cause}
}

// NewTimeout builds a retryable, circuit-tripping timeout error.
func NewTimeout(seconds int) *Error {
	return &Error{Kind: KindTimeout, Seconds: seconds}
}

// NewRateLimit builds a retryable, circuit-tripping rate-limit error.
func NewRateLimit() *Error {
	return &Error{Kind: KindRateLimit, Msg: "rate limit exceeded"}
}

// NewLLM builds an LLM-provider error. retryable is carried explicitly by
// the caller rather than derived, per spec: `Llm{status,retryable}`.
func NewLLM(status int, msg string, retryable bool) *Error {
	return &Error{Kind: KindLLM, Status: status, Msg: msg, retryableOverride: retryable}
}

// NewHTTP builds a generic HTTP/transport error; retryability is derived
// from the message content (timeout/connect/reset).
func NewHTTP(msg string, cause error) *Error {
	return &Error{Kind: KindHTTP, Msg: msg, Err: cause}
}

// NewCleaner builds a non-retryable cleaner error.
func NewCleaner(msg string) *Error {
	return &Error{Kind: KindCleaner, Msg: msg}
}

// NewSchema builds a non-retryable schema-validation error.
func NewSchema(msg string) *Error {
	return &Error{Kind: KindSchema, Msg: msg}
}

// NewSerialization builds a non-retryable serialization error.
func NewSerialization(msg string, cause error) *Error {
	return &Error{Kind: KindSerialization, Msg: msg, Err: cause}
}

// NewDatabase builds a non-retryable database error. The core never
// retries database failures itself; callers decide policy.
func NewDatabase(msg string, cause error) *Error {
	return &Error{Kind: KindDatabase, Msg: msg, Err: cause}
}

// NewConfig builds a non-retryable configuration error.
func NewConfig(msg string) *Error {
	return &Error{Kind: KindConfig, Msg: msg}
}

// NewGeneric builds a catch-all non-retryable error.
func NewGeneric(msg string, cause error) *Error {
	return &Error{Kind: KindGeneric, Msg: msg, Err: cause}
}

// FromError classifies an arbitrary error as Generic, unless it already
// wraps an *Error, in which case the original classification is preserved.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return NewGeneric(err.Error(), err)
}

// Retryable reports whether err, when classified, is retryable. Non-*Error
// values are treated as non-retryable, matching the taxonomy's Generic
// default.
func Retryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable()
	}
	return false
}

// TripsCircuit reports whether err, when classified, should trip the
// breaker.
func TripsCircuit(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.TripsCircuit()
	}
	return false
}
