// Package mock provides a test double for the embeddings.Provider interface.
//
// The mock derives deterministic vectors from the input text so tests can
// assert that distinct texts receive distinct embeddings without a live
// backend.
package mock

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/MrWong99/loquax/pkg/provider/embeddings"
)

// Provider is a mock implementation of embeddings.Provider.
type Provider struct {
	mu sync.Mutex

	// Dim is the dimensionality of produced vectors. Zero defaults to 8.
	Dim int

	// Err, if non-nil, is returned by Embed and EmbedBatch.
	Err error

	// EmbedCalls records the text of every Embed invocation in order.
	EmbedCalls []string

	// EmbedBatchCalls records the texts of every EmbedBatch invocation.
	EmbedBatchCalls [][]string
}

// Ensure Provider implements embeddings.Provider at compile time.
var _ embeddings.Provider = (*Provider)(nil)

func (p *Provider) dim() int {
	if p.Dim > 0 {
		return p.Dim
	}
	return 8
}

// vector derives a deterministic pseudo-embedding from text.
func (p *Provider) vector(text string) []float32 {
	h := fnv.New32a()
	h.Write([]byte(text))
	seed := h.Sum32()

	v := make([]float32, p.dim())
	for i := range v {
		seed = seed*1664525 + 1013904223
		v[i] = float32(seed%1000) / 1000
	}
	return v
}

// Embed records the call and returns a deterministic vector for text.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EmbedCalls = append(p.EmbedCalls, text)
	if p.Err != nil {
		return nil, p.Err
	}
	return p.vector(text), nil
}

// EmbedBatch records the call and returns one deterministic vector per text.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	recorded := make([]string, len(texts))
	copy(recorded, texts)
	p.EmbedBatchCalls = append(p.EmbedBatchCalls, recorded)
	if p.Err != nil {
		return nil, p.Err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = p.vector(t)
	}
	return out, nil
}

// Dimensions returns the configured vector dimensionality.
func (p *Provider) Dimensions() int {
	return p.dim()
}

// ModelID returns a fixed identifier for the mock.
func (p *Provider) ModelID() string {
	return "mock-embeddings"
}
