// Package whispercpp provides an asr.Engine backed by the whisper.cpp CGO
// bindings. The whisper.cpp static library (libwhisper.a) and headers
// (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH environment variables.
//
// Unlike a server deployment that loads one model at startup, loquax runs
// one batch job per input file and may need to retry with a smaller model
// when the preferred one does not fit in memory. The engine therefore loads
// the model named in each request and releases it when the call returns.
package whispercpp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/MrWong99/loquax/pkg/provider/asr"
)

// Compile-time assertion that Engine satisfies asr.Engine.
var _ asr.Engine = (*Engine)(nil)

// Option is a functional option for configuring an [Engine].
type Option func(*Engine)

// WithThreads sets the number of inference threads. Defaults to the number
// of logical CPUs.
func WithThreads(n uint) Option {
	return func(e *Engine) {
		if n > 0 {
			e.threads = n
		}
	}
}

// Engine implements asr.Engine using whisper.cpp. Inference is serialised
// internally — whisper contexts are not thread-safe and concurrent model
// loads would contend for the same accelerator memory anyway.
type Engine struct {
	threads uint

	mu sync.Mutex
}

// New creates a whisper.cpp engine with the supplied options applied.
func New(opts ...Option) *Engine {
	e := &Engine{
		threads: uint(runtime.NumCPU()),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Transcribe implements asr.Engine. The model at req.ModelPath is loaded for
// the duration of the call. Allocation failures while loading or running the
// model are reported wrapping [asr.ErrResourceExhausted] so the caller can
// fall back to a smaller tier.
func (e *Engine) Transcribe(ctx context.Context, req asr.Request) (*asr.Result, error) {
	if req.ModelPath == "" {
		return nil, errors.New("whispercpp: ModelPath must not be empty")
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whispercpp: context already cancelled: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	model, err := whisperlib.New(req.ModelPath)
	if err != nil {
		return nil, classify(fmt.Errorf("whispercpp: load model %q: %w", req.ModelPath, err))
	}
	defer model.Close()

	wctx, err := model.NewContext()
	if err != nil {
		return nil, classify(fmt.Errorf("whispercpp: create context: %w", err))
	}

	wctx.SetThreads(e.threads)
	wctx.SetTokenTimestamps(true)

	lang := req.Language
	if lang == "" {
		lang = "auto"
	}
	if err := wctx.SetLanguage(lang); err != nil {
		slog.Warn("whispercpp: failed to set language", "language", lang, "error", err)
	}

	if err := wctx.Process(req.Samples, nil, nil, nil); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("whispercpp: process audio: %w", ctxErr)
		}
		return nil, classify(fmt.Errorf("whispercpp: process audio: %w", err))
	}

	var segments []asr.RawSegment
	for {
		seg, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("whispercpp: read segment: %w", err)
		}

		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}

		raw := asr.RawSegment{
			Start: seg.Start.Seconds(),
			End:   seg.End.Seconds(),
			Text:  text,
		}
		for _, tok := range seg.Tokens {
			word := strings.TrimSpace(tok.Text)
			if word == "" {
				continue
			}
			raw.Words = append(raw.Words, asr.Word{
				Token: word,
				Start: tok.Start.Seconds(),
				End:   tok.End.Seconds(),
			})
		}
		segments = append(segments, raw)
	}

	detected := wctx.Language()
	if detected == "" || detected == "auto" {
		detected = wctx.DetectedLanguage()
	}

	return &asr.Result{
		Segments: segments,
		Language: detected,
	}, nil
}

// classify maps whisper.cpp allocation failures onto asr.ErrResourceExhausted.
// The bindings surface ggml errors as opaque strings, so this is a substring
// heuristic over the known allocator messages.
func classify(err error) error {
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"alloc", "out of memory", "insufficient memory", "vram"} {
		if strings.Contains(msg, marker) {
			return fmt.Errorf("%w: %w", asr.ErrResourceExhausted, err)
		}
	}
	return err
}
