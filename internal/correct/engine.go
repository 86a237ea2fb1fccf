package correct

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/MrWong99/loquax/internal/segment"
	"github.com/MrWong99/loquax/pkg/provider/llm"
)

// DefaultEditTolerance is the default fractional token-count divergence
// between a batch and its corrected form beyond which the batch is skipped.
const DefaultEditTolerance = 0.3

const defaultTemperature = 0.0

// SkipReason classifies why a batch kept its original text.
type SkipReason string

const (
	// SkipUnavailable: the correction capability failed at the transport
	// level. Once seen, all remaining batches are skipped without calls.
	SkipUnavailable SkipReason = "capability-unavailable"

	// SkipTimeout: the per-batch timeout expired.
	SkipTimeout SkipReason = "timeout"

	// SkipUnparseable: the response did not honour the JSON contract.
	SkipUnparseable SkipReason = "unparseable-response"

	// SkipDivergence: the corrected text diverged from the original by more
	// than the edit tolerance, suggesting a rewrite rather than corrections.
	SkipDivergence SkipReason = "edit-divergence"

	// SkipRealignment: the corrected text could not be mapped back onto the
	// batch's segments.
	SkipRealignment SkipReason = "realignment-failed"
)

// SkippedBatch describes one batch that kept its original text.
type SkippedBatch struct {
	// Batch is the zero-based batch index in document order.
	Batch int

	// SegmentIDs lists the segments the batch covered.
	SegmentIDs []int

	// Reason classifies the skip.
	Reason SkipReason

	// Err carries the underlying error, if any.
	Err error
}

// Report summarises one correction run for diagnostics and archival.
type Report struct {
	// Batches is the total number of batches planned.
	Batches int

	// Applied is the number of batches whose corrections were accepted.
	Applied int

	// Skipped lists every batch that kept its original text, in order.
	Skipped []SkippedBatch

	// Terms is the final ledger content in first-recorded order.
	Terms []Term

	// Contradictions lists corrections that conflicted with ledgered terms.
	Contradictions []Contradiction

	// PreSubstitutions counts ledger rewrites applied before dispatch.
	PreSubstitutions int
}

// Option is a functional option for configuring an [Engine].
type Option func(*Engine)

// WithCharBudget sets the per-batch character budget.
// Default: [DefaultCharBudget].
func WithCharBudget(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.charBudget = n
		}
	}
}

// WithEditTolerance sets the fractional token-count divergence above which a
// batch is skipped. Default: [DefaultEditTolerance].
func WithEditTolerance(f float64) Option {
	return func(e *Engine) {
		if f > 0 {
			e.editTolerance = f
		}
	}
}

// WithBatchTimeout bounds each LLM call. Zero (the default) means no
// per-batch timeout. Expiry skips the batch; it does not latch the
// capability as unavailable.
func WithBatchTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.batchTimeout = d
	}
}

// WithLedgerPolicy sets the ledger conflict policy.
// Default: [PolicyFirstWins].
func WithLedgerPolicy(p Policy) Option {
	return func(e *Engine) {
		if p.IsValid() {
			e.policy = p
		}
	}
}

// WithTemperature sets the LLM sampling temperature. Default 0.0 for
// reproducible corrections.
func WithTemperature(t float64) Option {
	return func(e *Engine) {
		e.temperature = t
	}
}

// Engine runs terminology correction over an assembled transcript. One
// Engine instance handles one document per Correct call; the term ledger
// lives for the duration of the call, never across calls.
type Engine struct {
	provider      llm.Provider
	charBudget    int
	editTolerance float64
	batchTimeout  time.Duration
	policy        Policy
	temperature   float64
}

// NewEngine returns an [Engine] backed by the given LLM provider.
func NewEngine(provider llm.Provider, opts ...Option) *Engine {
	e := &Engine{
		provider:      provider,
		charBudget:    DefaultCharBudget,
		editTolerance: DefaultEditTolerance,
		policy:        PolicyFirstWins,
		temperature:   defaultTemperature,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Correct rewrites misrecognized terminology across segs and returns the
// corrected copy plus a [Report]. The input slice is never modified.
//
// Batches are processed strictly in document order so the ledger state each
// batch observes is deterministic. Correct itself only fails on context
// cancellation; every per-batch failure degrades to that batch keeping its
// original text.
func (e *Engine) Correct(ctx context.Context, segs []segment.Segment) ([]segment.Segment, *Report, error) {
	out := make([]segment.Segment, len(segs))
	copy(out, segs)
	if len(segs) == 0 {
		return out, &Report{}, nil
	}

	texts := make([]string, len(segs))
	for i, s := range segs {
		texts[i] = s.Text
	}

	ledger := NewLedger(WithPolicy(e.policy))
	c := &corrector{llm: e.provider, temperature: e.temperature}
	spans := planBatches(texts, e.charBudget)
	contextBudget := int(float64(e.charBudget) * contextShare)

	report := &Report{Batches: len(spans)}
	corrected := make([]string, len(texts))
	unavailable := false

	for bi, span := range spans {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		ids := segmentIDs(out[span.start:span.end])

		skip := func(reason SkipReason, err error) {
			// Fail closed: the batch keeps its original text verbatim, ledger
			// pre-substitutions included only in batches that resolve.
			copy(corrected[span.start:span.end], texts[span.start:span.end])
			report.Skipped = append(report.Skipped, SkippedBatch{
				Batch: bi, SegmentIDs: ids, Reason: reason, Err: err,
			})
			slog.Warn("correction batch skipped", "batch", bi, "reason", reason, "error", err)
		}

		if unavailable {
			skip(SkipUnavailable, nil)
			continue
		}

		// Pre-substitution: terms the ledger already resolved are rewritten
		// locally so the model never sees (and never re-decides) them.
		presubbed := make([]string, span.end-span.start)
		for i := span.start; i < span.end; i++ {
			t, n := ledger.Apply(texts[i])
			presubbed[i-span.start] = t
			report.PreSubstitutions += n
		}

		batchText := strings.Join(presubbed, "\n")
		tail := contextTail(corrected, span, contextBudget)

		correctedText, corrections, err := e.callWithTimeout(ctx, c, batchText, tail, ledger.Terms())
		switch {
		case err == nil:
		case errors.Is(err, errUnparseable):
			skip(SkipUnparseable, err)
			continue
		case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
			skip(SkipTimeout, err)
			continue
		case ctx.Err() != nil:
			return nil, nil, ctx.Err()
		default:
			unavailable = true
			skip(SkipUnavailable, err)
			continue
		}

		if diverges(batchText, correctedText, e.editTolerance) {
			skip(SkipDivergence, nil)
			continue
		}

		lines, ok := realign(correctedText, presubbed)
		if !ok {
			skip(SkipRealignment, nil)
			continue
		}

		// Verify per segment: undeclared edits are reverted, then declared
		// corrections run through the ledger so conflicting resolutions of
		// the same term collapse onto the ledgered spelling.
		for i := range lines {
			verified, confirmed := verifyCorrectedText(presubbed[i], lines[i], corrections)
			for _, corr := range confirmed {
				term := Term{Original: corr.Original, Corrected: corr.Corrected, Confidence: corr.Confidence}
				if !ledger.Record(term) {
					if held, ok := ledger.Lookup(corr.Original); ok && held.Corrected != corr.Corrected {
						verified, _ = replaceWordFold(verified, corr.Corrected, held.Corrected)
					}
				}
			}
			corrected[span.start+i] = verified
		}
		report.Applied++
	}

	for i := range out {
		out[i].Text = corrected[i]
	}
	report.Terms = ledger.Terms()
	report.Contradictions = ledger.Contradictions()
	return out, report, nil
}

// callWithTimeout runs one corrector call under the configured batch timeout.
func (e *Engine) callWithTimeout(ctx context.Context, c *corrector, text, tail string, known []Term) (string, []Correction, error) {
	if e.batchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.batchTimeout)
		defer cancel()
	}
	return c.correct(ctx, text, tail, known)
}

// diverges reports whether the corrected text's token count differs from the
// original's by more than tolerance (fractional). A terminology-only pass
// keeps the token count nearly unchanged; big swings mean the model rewrote.
func diverges(original, corrected string, tolerance float64) bool {
	ot := len(strings.Fields(original))
	ct := len(strings.Fields(corrected))
	if ot == 0 {
		return ct != 0
	}
	diff := ot - ct
	if diff < 0 {
		diff = -diff
	}
	return float64(diff)/float64(ot) > tolerance
}

func segmentIDs(segs []segment.Segment) []int {
	ids := make([]int, len(segs))
	for i, s := range segs {
		ids[i] = s.ID
	}
	return ids
}
