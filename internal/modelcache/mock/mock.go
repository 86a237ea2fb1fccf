// Package mock provides a test double for the modelcache.Store interface.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/loquax/internal/modelcache"
	"github.com/MrWong99/loquax/internal/tier"
)

// FetchCall records a single invocation of Fetch.
type FetchCall struct {
	Tier tier.Tier
}

// Store is a mock implementation of modelcache.Store. Paths maps tiers to
// the artifact path Fetch should return; tiers absent from Paths are treated
// as cache misses that fail with Err (or a zero path when Err is nil).
type Store struct {
	mu sync.Mutex

	// Paths maps each tier to the artifact path returned by Fetch.
	Paths map[tier.Tier]string

	// Err, if non-nil, is returned by Fetch for every tier not in Paths.
	Err error

	// FetchCalls records every invocation of Fetch in order.
	FetchCalls []FetchCall
}

// Compile-time interface assertion.
var _ modelcache.Store = (*Store)(nil)

// Has reports whether t is present in Paths.
func (s *Store) Has(t tier.Tier) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.Paths[t]
	return ok
}

// Fetch records the call and returns the scripted path or Err.
func (s *Store) Fetch(_ context.Context, t tier.Tier) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FetchCalls = append(s.FetchCalls, FetchCall{Tier: t})
	if p, ok := s.Paths[t]; ok {
		return p, nil
	}
	return "", s.Err
}
