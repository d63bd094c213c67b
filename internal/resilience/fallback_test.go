package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestGroup(t *testing.T, cfg CircuitBreakerConfig) *FallbackGroup[string] {
	t.Helper()
	fg := NewFallbackGroup("stt", "clova", "clova", FallbackConfig{CircuitBreaker: cfg})
	fg.AddFallback("whisper", "whisper")
	return fg
}

func TestFallbackGroup_PrefersPrimary(t *testing.T) {
	fg := newTestGroup(t, CircuitBreakerConfig{MaxFailures: 3})

	var called string
	err := fg.Execute(context.Background(), func(v string) error {
		called = v
		return nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if called != "clova" {
		t.Fatalf("called = %q, want clova", called)
	}
}

func TestFallbackGroup_FailsOverInOrder(t *testing.T) {
	fg := newTestGroup(t, CircuitBreakerConfig{MaxFailures: 3})

	var called string
	err := fg.Execute(context.Background(), func(v string) error {
		if v == "clova" {
			return errBackendDown
		}
		called = v
		return nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if called != "whisper" {
		t.Fatalf("called = %q, want whisper", called)
	}
}

func TestFallbackGroup_AllBackendsDown(t *testing.T) {
	fg := newTestGroup(t, CircuitBreakerConfig{MaxFailures: 3})

	err := fg.Execute(context.Background(), func(string) error {
		return errBackendDown
	})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestFallbackGroup_SkipsTrippedPrimary(t *testing.T) {
	fg := newTestGroup(t, CircuitBreakerConfig{
		MaxFailures:  2,
		ResetTimeout: time.Hour,
	})

	// Trip the primary's breaker.
	for i := 0; i < 2; i++ {
		_ = fg.Execute(context.Background(), func(v string) error {
			if v == "clova" {
				return errBackendDown
			}
			return nil
		})
	}

	var calls []string
	err := fg.Execute(context.Background(), func(v string) error {
		calls = append(calls, v)
		return nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(calls) != 1 || calls[0] != "whisper" {
		t.Fatalf("calls = %v, want only whisper while clova's circuit is open", calls)
	}
}

func TestExecuteWithResult_ReturnsPrimaryValue(t *testing.T) {
	fg := NewFallbackGroup("llm", 10, "ten", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fg.AddFallback("twenty", 20)

	result, err := ExecuteWithResult(context.Background(), fg, func(v int) (string, error) {
		if v == 10 {
			return "from-ten", nil
		}
		return "from-twenty", nil
	})
	if err != nil {
		t.Fatalf("ExecuteWithResult: %v", err)
	}
	if result != "from-ten" {
		t.Fatalf("result = %q, want from-ten", result)
	}
}

func TestExecuteWithResult_FailsOver(t *testing.T) {
	fg := NewFallbackGroup("llm", 10, "ten", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fg.AddFallback("twenty", 20)

	result, err := ExecuteWithResult(context.Background(), fg, func(v int) (string, error) {
		if v == 10 {
			return "", errBackendDown
		}
		return "from-twenty", nil
	})
	if err != nil {
		t.Fatalf("ExecuteWithResult: %v", err)
	}
	if result != "from-twenty" {
		t.Fatalf("result = %q, want from-twenty", result)
	}
}

func TestExecuteWithResult_AllBackendsDown(t *testing.T) {
	fg := NewFallbackGroup("llm", 10, "ten", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})

	_, err := ExecuteWithResult(context.Background(), fg, func(int) (string, error) {
		return "", errBackendDown
	})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}
