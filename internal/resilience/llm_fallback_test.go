package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/moyeo-ai/moyeo/pkg/llm"
	llmmock "github.com/moyeo-ai/moyeo/pkg/llm/mock"
)

func TestLLMFallbackPrefersPrimary(t *testing.T) {
	primary := &llmmock.Provider{Responses: []llm.CompletionResponse{{Content: "from primary"}}}
	secondary := &llmmock.Provider{Responses: []llm.CompletionResponse{{Content: "from secondary"}}}

	fb := NewLLMFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	resp, err := fb.Complete(context.Background(), llm.CompletionRequest{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "from primary" {
		t.Fatalf("content = %q", resp.Content)
	}
	if secondary.CallCount() != 0 {
		t.Fatalf("secondary called %d times", secondary.CallCount())
	}
}

func TestLLMFallbackFailsOver(t *testing.T) {
	primary := &llmmock.Provider{Err: errors.New("rate limited")}
	secondary := &llmmock.Provider{Responses: []llm.CompletionResponse{{Content: "from secondary"}}}

	fb := NewLLMFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	resp, err := fb.Complete(context.Background(), llm.CompletionRequest{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "from secondary" {
		t.Fatalf("content = %q", resp.Content)
	}
	if primary.CallCount() != 1 {
		t.Fatalf("primary called %d times", primary.CallCount())
	}
}

func TestLLMFallbackAllFailed(t *testing.T) {
	primary := &llmmock.Provider{Err: errors.New("down")}
	secondary := &llmmock.Provider{Err: errors.New("also down")}

	fb := NewLLMFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	if _, err := fb.Complete(context.Background(), llm.CompletionRequest{}); !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestLLMFallbackOpenBreakerSkipsPrimary(t *testing.T) {
	primary := &llmmock.Provider{Err: errors.New("down")}
	secondary := &llmmock.Provider{}

	fb := NewLLMFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 2},
	})
	fb.AddFallback("secondary", secondary)

	// Two failures trip the primary's breaker; the third round must not
	// touch it at all.
	for range 3 {
		if _, err := fb.Complete(context.Background(), llm.CompletionRequest{}); err != nil {
			t.Fatalf("Complete: %v", err)
		}
	}
	if primary.CallCount() != 2 {
		t.Fatalf("open breaker did not skip primary, calls = %d", primary.CallCount())
	}
	if secondary.CallCount() != 3 {
		t.Fatalf("secondary calls = %d, want 3", secondary.CallCount())
	}
}

func TestLLMFallbackStreamCompletion(t *testing.T) {
	primary := &llmmock.Provider{Err: errors.New("down")}
	secondary := &llmmock.Provider{Chunks: [][]llm.Chunk{{
		{Text: "안녕"},
		{Text: "하세요", FinishReason: "stop"},
	}}}

	fb := NewLLMFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	ch, err := fb.StreamCompletion(context.Background(), llm.CompletionRequest{})
	if err != nil {
		t.Fatalf("StreamCompletion: %v", err)
	}
	var text string
	for c := range ch {
		text += c.Text
	}
	if text != "안녕하세요" {
		t.Fatalf("streamed %q", text)
	}
}
