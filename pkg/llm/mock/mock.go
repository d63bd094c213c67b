// Package mock provides a scriptable llm.Provider for tests.
package mock

import (
	"context"
	"sync"

	"github.com/moyeo-ai/moyeo/pkg/llm"
)

// Provider is a mock llm.Provider. Responses are consumed in FIFO order;
// when the queue is empty, Err (or an empty response) is returned.
type Provider struct {
	mu        sync.Mutex
	Responses []llm.CompletionResponse
	Chunks    [][]llm.Chunk
	Err       error

	// Requests records every request received, in order.
	Requests []llm.CompletionRequest
}

var _ llm.Provider = (*Provider)(nil)

// Complete pops the next queued response.
func (p *Provider) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Requests = append(p.Requests, req)
	if p.Err != nil {
		return nil, p.Err
	}
	if len(p.Responses) == 0 {
		return &llm.CompletionResponse{}, nil
	}
	resp := p.Responses[0]
	p.Responses = p.Responses[1:]
	return &resp, nil
}

// StreamCompletion pops the next queued chunk script and replays it.
func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	p.mu.Lock()
	p.Requests = append(p.Requests, req)
	if p.Err != nil {
		p.mu.Unlock()
		return nil, p.Err
	}
	var script []llm.Chunk
	if len(p.Chunks) > 0 {
		script = p.Chunks[0]
		p.Chunks = p.Chunks[1:]
	}
	p.mu.Unlock()

	ch := make(chan llm.Chunk, len(script))
	go func() {
		defer close(ch)
		for _, c := range script {
			select {
			case ch <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// CallCount returns the number of requests received so far.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Requests)
}
