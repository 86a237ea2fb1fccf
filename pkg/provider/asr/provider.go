// Package asr defines the Engine interface for batch speech-recognition
// backends.
//
// An ASR engine consumes a fixed-rate mono PCM sample buffer together with a
// model artifact path and a language hint, and produces the time-ordered raw
// segment sequence the loquax pipeline post-processes. Implementors must be
// safe for concurrent use; serialising inference internally is acceptable.
package asr

import (
	"context"
	"errors"
)

// SampleRate is the PCM sample rate (Hz) every engine consumes. Audio at any
// other rate must be resampled by the caller before transcription.
const SampleRate = 16000

// ErrResourceExhausted is returned (wrapped) by Transcribe when the engine
// cannot allocate working memory for the requested model. Callers treat it
// as retryable by falling back to a smaller model tier.
var ErrResourceExhausted = errors.New("asr: engine resource exhausted")

// Request carries everything an engine needs for one transcription run.
type Request struct {
	// ModelPath is the local path of the model artifact to load.
	ModelPath string

	// Samples is the full mono PCM signal at [SampleRate], normalised to
	// [-1.0, 1.0].
	Samples []float32

	// Language is a BCP-47 language hint, or "auto" to let the engine
	// detect the language and report it in [Result.Language].
	Language string
}

// Result is the output of one transcription run.
type Result struct {
	// Segments is the time-ordered raw segment sequence. Segments may
	// overlap or leave gaps; downstream assembly normalises them.
	Segments []RawSegment

	// Language is the language the engine transcribed in. Equals the
	// request hint unless the hint was "auto".
	Language string
}

// Engine is the abstraction over any batch speech-recognition backend.
type Engine interface {
	// Transcribe runs recognition over the whole sample buffer. Resource
	// exhaustion while loading or running the model is reported as an
	// error wrapping [ErrResourceExhausted]; any other error is a hard
	// recognition failure. Implementations must respect ctx cancellation
	// between processing steps.
	Transcribe(ctx context.Context, req Request) (*Result, error)
}
