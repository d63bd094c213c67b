package resilience

import (
	"context"

	"github.com/moyeo-ai/moyeo/pkg/stt"
)

// STTFallback implements [stt.Provider] with automatic failover across
// multiple recognition backends. Failover happens at session start: an
// established session stays on its backend for its whole lifetime, since
// interim results are not transferable between providers.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] with primary as the preferred
// backend.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	return &STTFallback{
		group: NewFallbackGroup("stt", primary, primaryName, cfg),
	}
}

// AddFallback registers an additional recognition backend as a fallback.
func (f *STTFallback) AddFallback(name string, provider stt.Provider) {
	f.group.AddFallback(name, provider)
}

// StartStream opens a session against the first healthy backend.
func (f *STTFallback) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	return ExecuteWithResult(ctx, f.group, func(p stt.Provider) (stt.SessionHandle, error) {
		return p.StartStream(ctx, cfg)
	})
}
