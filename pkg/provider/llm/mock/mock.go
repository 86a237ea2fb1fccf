// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to verify that the correction engine sends
// correct CompletionRequests and to feed controlled responses without a live
// LLM backend. Responses are scripted per call via the Responses slice; calls
// beyond the scripted length reuse the final entry.
//
// Example:
//
//	p := &mock.Provider{
//	    Responses: []*llm.CompletionResponse{{Content: `{"corrected_text": "..."}`}},
//	}
//	resp, err := p.Complete(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/loquax/pkg/provider/llm"
)

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	// Ctx is the context passed to Complete.
	Ctx context.Context
	// Req is the CompletionRequest passed to Complete.
	Req llm.CompletionRequest
}

// Provider is a mock implementation of llm.Provider.
// Zero values for response fields cause methods to return zero values and nil
// errors. Set the error fields to inject failures.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Responses is consumed one entry per Complete call; the last entry
	// repeats once exhausted. An empty slice yields an empty response.
	Responses []*llm.CompletionResponse

	// CompleteErrs mirrors Responses: entry i is the error returned by the
	// i-th Complete call. Shorter than Responses means nil for the rest.
	CompleteErrs []error

	// TokenCount is returned by CountTokens.
	TokenCount int

	// CountTokensErr, if non-nil, is returned as the error from CountTokens.
	CountTokensErr error

	// --- Call records (read after test) ---

	// CompleteCalls records every invocation of Complete in order.
	CompleteCalls []CompleteCall

	next int
}

// Ensure Provider implements llm.Provider at compile time.
var _ llm.Provider = (*Provider)(nil)

// Complete records the call and returns the next scripted response.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Ctx: ctx, Req: req})

	i := p.next
	p.next++

	var err error
	if i < len(p.CompleteErrs) {
		err = p.CompleteErrs[i]
	}
	if err != nil {
		return nil, err
	}

	if len(p.Responses) == 0 {
		return &llm.CompletionResponse{}, nil
	}
	if i >= len(p.Responses) {
		i = len(p.Responses) - 1
	}
	return p.Responses[i], nil
}

// CountTokens returns TokenCount, CountTokensErr.
func (p *Provider) CountTokens(messages []llm.Message) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.TokenCount, p.CountTokensErr
}

// Reset clears all recorded calls and rewinds the response script.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = nil
	p.next = 0
}
