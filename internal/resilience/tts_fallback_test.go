package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/moyeo-ai/moyeo/pkg/tts"
	ttsmock "github.com/moyeo-ai/moyeo/pkg/tts/mock"
)

func TestTTSFallbackPrefersPrimary(t *testing.T) {
	primary := &ttsmock.Provider{}
	secondary := &ttsmock.Provider{}

	fb := NewTTSFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	audio, err := fb.Synthesize(context.Background(), tts.SynthesisRequest{Text: "안녕하세요", Voice: "nara"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if len(audio.PCM) == 0 {
		t.Fatal("empty audio")
	}
	if len(primary.Requests) != 1 || len(secondary.Requests) != 0 {
		t.Fatalf("requests primary=%d secondary=%d", len(primary.Requests), len(secondary.Requests))
	}
}

func TestTTSFallbackFailsOver(t *testing.T) {
	primary := &ttsmock.Provider{Err: errors.New("synthesis backend down")}
	secondary := &ttsmock.Provider{}

	fb := NewTTSFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	audio, err := fb.Synthesize(context.Background(), tts.SynthesisRequest{Text: "안녕하세요"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if len(audio.PCM) == 0 {
		t.Fatal("empty audio")
	}
	if len(secondary.Requests) != 1 {
		t.Fatalf("secondary requests = %d, want 1", len(secondary.Requests))
	}
}

func TestTTSFallbackAllFailed(t *testing.T) {
	primary := &ttsmock.Provider{Err: errors.New("down")}
	secondary := &ttsmock.Provider{Err: errors.New("also down")}

	fb := NewTTSFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	if _, err := fb.Synthesize(context.Background(), tts.SynthesisRequest{Text: "x"}); !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}
