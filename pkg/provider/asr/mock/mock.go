// Package mock provides a test double for the asr.Engine interface.
//
// Script per-call outcomes via the Outcomes slice; calls beyond the scripted
// length reuse the final entry. This makes fallback-chain tests trivial:
// script a resource-exhaustion error followed by a success.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/loquax/pkg/provider/asr"
)

// Outcome scripts the result of one Transcribe call.
type Outcome struct {
	Result *asr.Result
	Err    error
}

// TranscribeCall records a single invocation of Transcribe.
type TranscribeCall struct {
	Ctx context.Context
	Req asr.Request
}

// Engine is a mock implementation of asr.Engine.
type Engine struct {
	mu sync.Mutex

	// Outcomes is consumed one entry per call; the last entry repeats once
	// exhausted. An empty slice yields an empty successful result.
	Outcomes []Outcome

	// TranscribeCalls records every invocation of Transcribe in order.
	TranscribeCalls []TranscribeCall

	next int
}

// Compile-time interface assertion.
var _ asr.Engine = (*Engine)(nil)

// Transcribe records the call and returns the next scripted outcome.
func (e *Engine) Transcribe(ctx context.Context, req asr.Request) (*asr.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.TranscribeCalls = append(e.TranscribeCalls, TranscribeCall{Ctx: ctx, Req: req})

	if len(e.Outcomes) == 0 {
		return &asr.Result{}, nil
	}
	i := e.next
	if i >= len(e.Outcomes) {
		i = len(e.Outcomes) - 1
	}
	e.next++
	return e.Outcomes[i].Result, e.Outcomes[i].Err
}
