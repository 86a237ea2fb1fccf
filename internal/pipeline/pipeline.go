// Package pipeline wires the loquax stages into one end-to-end run: audio
// extraction, speech recognition with tier fallback, segment assembly,
// terminology correction, document rendering, and best-effort archival.
//
// Stage implementations are injected as interfaces so tests can run the full
// pipeline against mocks. When a stage is optional (correction, archival),
// a nil injection disables it and the surrounding stages are unaffected.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MrWong99/loquax/internal/archive"
	"github.com/MrWong99/loquax/internal/correct"
	"github.com/MrWong99/loquax/internal/media"
	"github.com/MrWong99/loquax/internal/observe"
	"github.com/MrWong99/loquax/internal/recognize"
	"github.com/MrWong99/loquax/internal/render"
	"github.com/MrWong99/loquax/internal/segment"
	"github.com/MrWong99/loquax/internal/tier"
)

// MediaSource abstracts audio extraction and duration probing.
// [media.Extractor] is the production implementation.
type MediaSource interface {
	ExtractAudio(ctx context.Context, mediaPath string) (string, error)
	Duration(ctx context.Context, mediaPath string) (float64, error)
}

var _ MediaSource = (*media.Extractor)(nil)

// Transcriber abstracts the recognition stage. [recognize.Recognizer] is the
// production implementation.
type Transcriber interface {
	Recognize(ctx context.Context, samples []float32, language string, plan []tier.Tier) (*recognize.Outcome, error)
}

var _ Transcriber = (*recognize.Recognizer)(nil)

// Corrector abstracts the terminology correction stage. [correct.Engine] is
// the production implementation.
type Corrector interface {
	Correct(ctx context.Context, segs []segment.Segment) ([]segment.Segment, *correct.Report, error)
}

var _ Corrector = (*correct.Engine)(nil)

// Input names the media file to process and where the document goes.
type Input struct {
	// MediaPath is the source audio or video file.
	MediaPath string

	// OutputPath is the Markdown destination. Empty derives
	// "<media base>.md" next to the source file.
	OutputPath string
}

// Result reports what one pipeline run produced.
type Result struct {
	// Document is the rendered transcript.
	Document *render.Document

	// Report is the correction report, nil when correction was disabled.
	Report *correct.Report

	// OutputPath is where the Markdown document was written.
	OutputPath string
}

// Option is a functional option for [New].
type Option func(*Pipeline)

// WithCorrector enables the terminology correction stage.
func WithCorrector(c Corrector) Option {
	return func(p *Pipeline) { p.corrector = c }
}

// WithArchive enables best-effort archival of finished documents.
func WithArchive(s archive.Store) Option {
	return func(p *Pipeline) { p.store = s }
}

// WithLanguage sets the spoken language hint. Default "auto".
func WithLanguage(lang string) Option {
	return func(p *Pipeline) { p.language = lang }
}

// WithAssembler overrides the default segment assembler.
func WithAssembler(a *segment.Assembler) Option {
	return func(p *Pipeline) { p.assembler = a }
}

// WithMetrics overrides the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithSampleLoader overrides how extracted audio is decoded into samples.
// Default: [media.LoadSamples].
func WithSampleLoader(fn func(path string) ([]float32, error)) Option {
	return func(p *Pipeline) { p.loadSamples = fn }
}

// Pipeline runs the full transcription flow. It is stateless between runs
// and safe for concurrent use as long as the injected stages are.
type Pipeline struct {
	media       MediaSource
	transcriber Transcriber
	assembler   *segment.Assembler
	corrector   Corrector
	store       archive.Store
	metrics     *observe.Metrics
	loadSamples func(path string) ([]float32, error)
	plan        []tier.Tier
	language    string
}

// New creates a Pipeline. media and transcriber are required; plan is the
// ordered tier fallback chain from [tier.Plan] or [tier.PlanFrom].
func New(src MediaSource, transcriber Transcriber, plan []tier.Tier, opts ...Option) *Pipeline {
	p := &Pipeline{
		media:       src,
		transcriber: transcriber,
		assembler:   segment.New(),
		loadSamples: media.LoadSamples,
		plan:        plan,
		language:    "auto",
	}
	for _, o := range opts {
		o(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	return p
}

// Run processes one media file end to end. The document file is written
// atomically: either the complete document appears at the output path or
// nothing does. Archive failures are logged, never fatal.
func (p *Pipeline) Run(ctx context.Context, in Input) (*Result, error) {
	ctx, span := observe.StartSpan(ctx, "pipeline.run")
	defer span.End()
	log := observe.Logger(ctx).With("media", in.MediaPath)

	// ── Extract ──────────────────────────────────────────────────────────
	samples, duration, err := p.extract(ctx, in.MediaPath)
	if err != nil {
		return nil, err
	}
	log.Info("audio extracted", "samples", len(samples), "duration_s", duration)

	// ── Recognize ────────────────────────────────────────────────────────
	outcome, err := p.recognize(ctx, samples)
	if err != nil {
		return nil, err
	}
	log.Info("recognition complete",
		"tier", outcome.Tier,
		"attempts", len(outcome.Attempts),
		"language", outcome.Language)

	// ── Assemble ─────────────────────────────────────────────────────────
	segs, err := p.assembler.Assemble(outcome.Segments)
	if err != nil {
		return nil, fmt.Errorf("pipeline: assemble segments: %w", err)
	}

	// ── Correct ──────────────────────────────────────────────────────────
	segs, report, err := p.correct(ctx, segs)
	if err != nil {
		return nil, err
	}

	// ── Render + write ───────────────────────────────────────────────────
	if duration <= 0 && len(segs) > 0 {
		duration = segs[len(segs)-1].End
	}
	doc := &render.Document{
		Title:       strings.TrimSuffix(filepath.Base(in.MediaPath), filepath.Ext(in.MediaPath)),
		GeneratedAt: time.Now(),
		Duration:    duration,
		Language:    outcome.Language,
		Model:       string(outcome.Tier),
		Segments:    segs,
	}
	outPath := in.OutputPath
	if outPath == "" {
		outPath = strings.TrimSuffix(in.MediaPath, filepath.Ext(in.MediaPath)) + ".md"
	}
	if err := p.render(ctx, doc, outPath); err != nil {
		return nil, err
	}
	p.metrics.DocumentSegments.Add(ctx, int64(len(segs)))
	log.Info("document written", "path", outPath, "segments", len(segs))

	// ── Archive (best-effort) ────────────────────────────────────────────
	if p.store != nil {
		if err := p.store.Archive(ctx, doc, report); err != nil {
			log.Warn("archive failed, document delivered anyway", "error", err)
		}
	}

	return &Result{Document: doc, Report: report, OutputPath: outPath}, nil
}

func (p *Pipeline) extract(ctx context.Context, mediaPath string) (samples []float32, duration float64, err error) {
	ctx, span := observe.StartSpan(ctx, "pipeline.extract")
	defer span.End()
	start := time.Now()
	defer func() { p.metrics.ExtractDuration.Record(ctx, time.Since(start).Seconds()) }()

	audioPath, err := p.media.ExtractAudio(ctx, mediaPath)
	if err != nil {
		return nil, 0, fmt.Errorf("pipeline: extract audio: %w", err)
	}
	defer func() {
		if rmErr := os.Remove(audioPath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			observe.Logger(ctx).Warn("failed to remove intermediate audio", "path", audioPath, "error", rmErr)
		}
	}()

	samples, err = p.loadSamples(audioPath)
	if err != nil {
		return nil, 0, fmt.Errorf("pipeline: load samples: %w", err)
	}

	// Duration probing is diagnostic metadata; a probe failure must not kill
	// the run.
	duration, err = p.media.Duration(ctx, mediaPath)
	if err != nil {
		observe.Logger(ctx).Warn("duration probe failed", "error", err)
		duration = 0
	}
	return samples, duration, nil
}

func (p *Pipeline) recognize(ctx context.Context, samples []float32) (*recognize.Outcome, error) {
	ctx, span := observe.StartSpan(ctx, "pipeline.recognize")
	defer span.End()
	start := time.Now()
	defer func() { p.metrics.RecognizeDuration.Record(ctx, time.Since(start).Seconds()) }()

	outcome, err := p.transcriber.Recognize(ctx, samples, p.language, p.plan)
	if err != nil {
		return nil, fmt.Errorf("pipeline: recognize: %w", err)
	}
	for _, a := range outcome.Attempts {
		status := "success"
		if a.Err != nil {
			status = "exhausted"
		}
		p.metrics.RecordRecognitionAttempt(ctx, string(a.Tier), status)
	}
	return outcome, nil
}

func (p *Pipeline) correct(ctx context.Context, segs []segment.Segment) ([]segment.Segment, *correct.Report, error) {
	if p.corrector == nil {
		return segs, nil, nil
	}
	ctx, span := observe.StartSpan(ctx, "pipeline.correct")
	defer span.End()
	start := time.Now()
	defer func() { p.metrics.CorrectDuration.Record(ctx, time.Since(start).Seconds()) }()

	corrected, report, err := p.corrector.Correct(ctx, segs)
	if err != nil {
		return nil, nil, fmt.Errorf("pipeline: correct: %w", err)
	}
	if report == nil {
		return corrected, nil, nil
	}

	for i := 0; i < report.Applied; i++ {
		p.metrics.RecordCorrectionBatch(ctx, "applied")
	}
	for _, s := range report.Skipped {
		p.metrics.RecordCorrectionBatch(ctx, string(s.Reason))
	}
	p.metrics.LedgerContradictions.Add(ctx, int64(len(report.Contradictions)))
	p.metrics.PreSubstitutions.Add(ctx, int64(report.PreSubstitutions))

	if len(report.Skipped) > 0 {
		observe.Logger(ctx).Warn("some batches kept their original text",
			"skipped", len(report.Skipped), "total", report.Batches)
	}
	return corrected, report, nil
}

// render writes the Markdown document atomically: a temp file in the target
// directory, then a rename.
func (p *Pipeline) render(ctx context.Context, doc *render.Document, outPath string) error {
	ctx, span := observe.StartSpan(ctx, "pipeline.render")
	defer span.End()
	start := time.Now()
	defer func() { p.metrics.RenderDuration.Record(ctx, time.Since(start).Seconds()) }()

	markdown := render.Render(doc)

	dir := filepath.Dir(outPath)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(outPath)+".*")
	if err != nil {
		return fmt.Errorf("pipeline: create temp document: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(markdown); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("pipeline: write document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("pipeline: close document: %w", err)
	}
	if err := os.Rename(tmpName, outPath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("pipeline: move document into place: %w", err)
	}
	return nil
}
