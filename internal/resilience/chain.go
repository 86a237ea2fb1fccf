package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/loquax/pkg/provider/llm"
)

// ErrAllProvidersFailed is returned when every provider in a [Chain] fails
// or sits behind an open breaker.
var ErrAllProvidersFailed = errors.New("resilience: all providers failed")

// chainEntry pairs a named provider with its dedicated breaker.
type chainEntry struct {
	name     string
	provider llm.Provider
	breaker  *Breaker
}

// Chain is an [llm.Provider] that fails over across an ordered list of
// backends. Each backend has its own circuit breaker, so a dead primary is
// routed around without paying its timeout on every call.
type Chain struct {
	entries []chainEntry
}

var _ llm.Provider = (*Chain)(nil)

// NewChain creates a chain with primary as the first backend. Fallbacks are
// added via [Chain.Add] and tried in insertion order.
func NewChain(primaryName string, primary llm.Provider) *Chain {
	c := &Chain{}
	c.Add(primaryName, primary)
	return c
}

// Add appends a fallback backend with default breaker settings.
func (c *Chain) Add(name string, provider llm.Provider) {
	c.entries = append(c.entries, chainEntry{
		name:     name,
		provider: provider,
		breaker:  NewBreaker(name, 0, 0),
	})
}

// Complete dispatches to the first healthy backend. A context cancellation
// aborts the chain immediately; it is the caller giving up, not a backend
// failing.
func (c *Chain) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	var lastErr error
	for i := range c.entries {
		e := &c.entries[i]
		if err := e.breaker.Allow(); err != nil {
			slog.Debug("skipping provider, breaker open", "provider", e.name)
			lastErr = err
			continue
		}

		resp, err := e.provider.Complete(ctx, req)
		e.breaker.Report(err)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		slog.Warn("provider failed, trying next", "provider", e.name, "error", err)
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %w", ErrAllProvidersFailed, lastErr)
}

// CountTokens delegates to the primary backend. Token estimates are
// heuristic and close enough across backends that failover is not worth the
// complexity here.
func (c *Chain) CountTokens(messages []llm.Message) (int, error) {
	return c.entries[0].provider.CountTokens(messages)
}
