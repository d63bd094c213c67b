package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/moyeo-ai/moyeo/pkg/stt"
	sttmock "github.com/moyeo-ai/moyeo/pkg/stt/mock"
)

func TestSTTFallbackPrefersPrimary(t *testing.T) {
	primary := &sttmock.Provider{}
	secondary := &sttmock.Provider{}

	fb := NewSTTFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	handle, err := fb.StartStream(context.Background(), stt.StreamConfig{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	defer handle.Close()

	if primary.Started != 1 || secondary.Started != 0 {
		t.Fatalf("sessions started primary=%d secondary=%d", primary.Started, secondary.Started)
	}
}

func TestSTTFallbackFailsOver(t *testing.T) {
	primary := &sttmock.Provider{Err: errors.New("quota exceeded")}
	secondary := &sttmock.Provider{}

	fb := NewSTTFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	handle, err := fb.StartStream(context.Background(), stt.StreamConfig{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	defer handle.Close()

	if secondary.Started != 1 {
		t.Fatalf("secondary started %d sessions, want 1", secondary.Started)
	}
}

func TestSTTFallbackAllFailed(t *testing.T) {
	primary := &sttmock.Provider{Err: errors.New("down")}
	secondary := &sttmock.Provider{Err: errors.New("also down")}

	fb := NewSTTFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	if _, err := fb.StartStream(context.Background(), stt.StreamConfig{}); !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}
