package apperrors

import "testing"

func TestRetryableErrors(t *testing.T) {
	cases := []struct {
		name string
		err  *Error
		want bool
	}{
		{"network", NewNetwork("reset", nil), true},
		{"timeout", NewTimeout(30), true},
		{"rate_limit", NewRateLimit(), true},
		{"llm_retryable", NewLLM(500, "server error", true), true},
		{"llm_not_retryable", NewLLM(400, "bad request", false), false},
		{"cleaner", NewCleaner("bad html"), false},
		{"schema", NewSchema("missing field"), false},
		{"database", NewDatabase("conn refused", nil), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.err.Retryable(); got != tc.want {
				t.Errorf("Retryable() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestTripsCircuit(t *testing.T) {
	if !NewRateLimit().TripsCircuit() {
		t.Error("rate limit should trip circuit")
	}
	if !NewTimeout(30).TripsCircuit() {
		t.Error("timeout should trip circuit")
	}
	if NewSchema("bad").TripsCircuit() {
		t.Error("schema error should not trip circuit")
	}
	if !NewLLM(429, "rate limited", false).TripsCircuit() {
		t.Error("llm 429 should trip circuit regardless of retryable flag")
	}
	if !NewLLM(503, "unavailable", false).TripsCircuit() {
		t.Error("llm 5xx should trip circuit regardless of retryable flag")
	}
	if NewLLM(400, "bad request", false).TripsCircuit() {
		t.Error("llm 4xx non-retryable should not trip circuit")
	}
}

func TestHTTPDerivesFromMessage(t *testing.T) {
	e := NewHTTP("connection timeout while fetching", nil)
	if !e.Retryable() || !e.TripsCircuit() {
		t.Error("http timeout message should be retryable and trip the circuit")
	}

	e2 := NewHTTP("404 not found", nil)
	if e2.Retryable() || e2.TripsCircuit() {
		t.Error("http 404 message should not be retryable or trip the circuit")
	}
}

func TestFromErrorPreservesClassification(t *testing.T) {
	original := NewRateLimit()
	classified := FromError(original)
	if classified != original {
		t.Error("FromError should return the original *Error unchanged")
	}

	generic := FromError(errUnclassified{})
	if generic.Kind != KindGeneric {
		t.Errorf("expected KindGeneric, got %v", generic.Kind)
	}
}

type errUnclassified struct{}

func (errUnclassified) Error() string { return "boom" }

func TestIsRateLimit(t *testing.T) {
	if !NewRateLimit().IsRateLimit() {
		t.Error("NewRateLimit should report IsRateLimit")
	}
	if !NewLLM(429, "too many requests", true).IsRateLimit() {
		t.Error("LLM 429 should report IsRateLimit")
	}
	if NewLLM(500, "server error", true).IsRateLimit() {
		t.Error("LLM 500 should not report IsRateLimit")
	}
}
