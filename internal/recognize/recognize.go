// Package recognize drives the speech-recognition stage of the loquax
// pipeline: it walks an ordered model-tier fallback chain, fetching each
// tier's artifact and attempting transcription until one tier succeeds.
//
// The retry-with-degradation behaviour is modelled as an explicit finite
// state machine over the tier chain rather than nested error handlers:
//
//	SELECTING → ATTEMPTING(tier) → SUCCEEDED
//	                            ↘ EXHAUSTED(tier) → ATTEMPTING(next tier)
//
// Only engine resource exhaustion advances the chain. A model artifact
// checksum failure or any other engine error aborts the run immediately.
package recognize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/loquax/internal/modelcache"
	"github.com/MrWong99/loquax/internal/tier"
	"github.com/MrWong99/loquax/pkg/provider/asr"
)

// ErrAllTiersExhausted is returned when every tier in the fallback chain
// failed with resource exhaustion.
var ErrAllTiersExhausted = errors.New("recognize: all model tiers exhausted")

// ErrRecognitionFailed wraps non-retryable engine failures, including
// attempt timeouts.
var ErrRecognitionFailed = errors.New("recognize: recognition failed")

// state is one node of the fallback state machine. Kept as a named type so
// attempt records can expose the transition trace to tests and diagnostics.
type state string

const (
	stateSelecting state = "selecting"
	stateAttempt   state = "attempting"
	stateSucceeded state = "succeeded"
	stateExhausted state = "exhausted"
)

// Attempt records one tier attempt for diagnostics.
type Attempt struct {
	Tier     tier.Tier
	Duration time.Duration
	Err      error
}

// Outcome is the result of a successful recognition run.
type Outcome struct {
	// Segments is the raw segment sequence produced by the winning tier.
	Segments []asr.RawSegment

	// Language is the detected (or echoed) language code.
	Language string

	// Tier is the tier that produced the transcript.
	Tier tier.Tier

	// Attempts lists every tier tried, in order, including the winner.
	Attempts []Attempt
}

// Option is a functional option for configuring a [Recognizer].
type Option func(*Recognizer)

// WithAttemptTimeout bounds each single tier attempt. Zero (the default)
// means no per-attempt timeout. A timed-out attempt is a hard recognition
// failure, not a fallback trigger — a slow model would only get slower one
// tier down on CPU.
func WithAttemptTimeout(d time.Duration) Option {
	return func(r *Recognizer) {
		r.attemptTimeout = d
	}
}

// Recognizer runs the fallback state machine against one engine and one
// artifact cache. It is stateless between calls and safe for concurrent use.
type Recognizer struct {
	cache          modelcache.Store
	engine         asr.Engine
	attemptTimeout time.Duration
}

// New creates a [Recognizer] using the given artifact cache and engine.
func New(cache modelcache.Store, engine asr.Engine, opts ...Option) *Recognizer {
	r := &Recognizer{
		cache:  cache,
		engine: engine,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Recognize transcribes samples using the first tier in plan that both has a
// fetchable model artifact and fits in memory. language follows the
// [asr.Request] contract ("auto" enables detection).
//
// Error classes:
//   - [modelcache.ErrChecksumMismatch] (wrapped): corrupt artifact, aborts.
//   - [ErrRecognitionFailed] (wrapped): hard engine failure or attempt
//     timeout, aborts.
//   - [ErrAllTiersExhausted]: every tier hit resource exhaustion.
func (r *Recognizer) Recognize(ctx context.Context, samples []float32, language string, plan []tier.Tier) (*Outcome, error) {
	if len(plan) == 0 {
		return nil, errors.New("recognize: empty tier plan")
	}

	var attempts []Attempt
	slog.Debug("fallback state machine started", "state", stateSelecting, "plan", plan)

	for _, t := range plan {
		slog.Info("attempting recognition", "state", stateAttempt, "tier", t, "language", language)

		modelPath, err := r.cache.Fetch(ctx, t)
		if err != nil {
			// A corrupt artifact is a user-actionable failure; there is no
			// point degrading to a smaller model the user also never vetted.
			return nil, fmt.Errorf("recognize: fetch model for tier %q: %w", t, err)
		}

		start := time.Now()
		result, err := r.attempt(ctx, asr.Request{
			ModelPath: modelPath,
			Samples:   samples,
			Language:  language,
		})
		attempts = append(attempts, Attempt{Tier: t, Duration: time.Since(start), Err: err})

		switch {
		case err == nil:
			slog.Info("recognition succeeded",
				"state", stateSucceeded,
				"tier", t,
				"segments", len(result.Segments),
				"language", result.Language,
				"attempts", len(attempts),
			)
			return &Outcome{
				Segments: result.Segments,
				Language: result.Language,
				Tier:     t,
				Attempts: attempts,
			}, nil

		case errors.Is(err, asr.ErrResourceExhausted):
			slog.Warn("tier exhausted resources, falling back", "state", stateExhausted, "tier", t, "error", err)
			continue

		default:
			return nil, fmt.Errorf("%w: tier %q: %w", ErrRecognitionFailed, t, err)
		}
	}

	return nil, fmt.Errorf("%w (%d attempts)", ErrAllTiersExhausted, len(attempts))
}

// attempt runs a single engine call under the configured timeout. A timeout
// expiry is surfaced as a plain error so the caller classifies it as a hard
// failure rather than exhaustion.
func (r *Recognizer) attempt(ctx context.Context, req asr.Request) (*asr.Result, error) {
	if r.attemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.attemptTimeout)
		defer cancel()
	}
	result, err := r.engine.Transcribe(ctx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("attempt timed out after %s: %w", r.attemptTimeout, err)
		}
		return nil, err
	}
	return result, nil
}
