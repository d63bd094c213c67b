// Package mock provides a deterministic embeddings.Provider for tests.
package mock

import (
	"context"
	"sync"

	"github.com/moyeo-ai/moyeo/pkg/embeddings"
)

// Provider is a mock embeddings.Provider. Vectors defaults to a fixed small
// vector per call; set it to script specific outputs keyed by input text.
type Provider struct {
	mu sync.Mutex

	// Vectors maps input text to the vector to return. Unknown inputs get
	// a zero vector of length Dim.
	Vectors map[string][]float32

	// Dim is the reported dimension. Defaults to 4.
	Dim int

	// Err, when set, is returned by Embed.
	Err error

	// Inputs records every embedded text, in order.
	Inputs []string
}

var _ embeddings.Provider = (*Provider)(nil)

// Embed implements embeddings.Provider.
func (p *Provider) Embed(_ context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Inputs = append(p.Inputs, text)
	if p.Err != nil {
		return nil, p.Err
	}
	if v, ok := p.Vectors[text]; ok {
		return v, nil
	}
	return make([]float32, p.Dimensions()), nil
}

// Dimensions implements embeddings.Provider.
func (p *Provider) Dimensions() int {
	if p.Dim > 0 {
		return p.Dim
	}
	return 4
}
