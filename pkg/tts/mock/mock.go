// Package mock provides a scriptable tts.Provider for tests.
package mock

import (
	"context"
	"sync"

	"github.com/moyeo-ai/moyeo/pkg/tts"
)

// Provider is a mock tts.Provider. It records every request and returns
// either Err or a short silence buffer. SynthesizeFn, when set, overrides
// the default behaviour entirely.
type Provider struct {
	mu       sync.Mutex
	Requests []tts.SynthesisRequest
	Err      error

	SynthesizeFn func(ctx context.Context, req tts.SynthesisRequest) (*tts.Audio, error)
}

var _ tts.Provider = (*Provider)(nil)

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, req tts.SynthesisRequest) (*tts.Audio, error) {
	p.mu.Lock()
	p.Requests = append(p.Requests, req)
	fn := p.SynthesizeFn
	err := p.Err
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	return &tts.Audio{
		PCM:        make([]byte, 320), // 10ms of silence at 16kHz mono
		SampleRate: 16000,
		Channels:   1,
	}, nil
}

// Texts returns the text of every request received so far.
func (p *Provider) Texts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.Requests))
	for i, r := range p.Requests {
		out[i] = r.Text
	}
	return out
}
