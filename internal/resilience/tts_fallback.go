package resilience

import (
	"context"

	"github.com/moyeo-ai/moyeo/pkg/tts"
)

// TTSFallback implements [tts.Provider] with automatic failover across
// multiple synthesis backends. The fallback voice may differ from the
// primary's; callers that care should configure the same voice on every
// backend.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
}

var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback creates a [TTSFallback] with primary as the preferred
// backend.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{
		group: NewFallbackGroup("tts", primary, primaryName, cfg),
	}
}

// AddFallback registers an additional synthesis backend as a fallback.
func (f *TTSFallback) AddFallback(name string, provider tts.Provider) {
	f.group.AddFallback(name, provider)
}

// Synthesize renders req through the first healthy backend.
func (f *TTSFallback) Synthesize(ctx context.Context, req tts.SynthesisRequest) (*tts.Audio, error) {
	return ExecuteWithResult(ctx, f.group, func(p tts.Provider) (*tts.Audio, error) {
		return p.Synthesize(ctx, req)
	})
}
