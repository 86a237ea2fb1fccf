// Package segment turns raw recognizer output into the stable sentence-level
// units the rest of the loquax pipeline operates on.
//
// Raw whisper segments are noisy: they may overlap, leave gaps, contain
// empty placeholder entries for silence, and split sentences mid-clause.
// [Assembler.Assemble] normalises them into an ordered [Segment] sequence
// with canonical boundaries and monotonically increasing ids.
package segment

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/loquax/pkg/provider/asr"
)

// ErrInvariant indicates the assembled output violated an ordering
// invariant. This is a logic-bug guard: the condition is never repaired
// silently, the run aborts.
var ErrInvariant = errors.New("segment: assembly invariant violation")

// DefaultSilenceGap is the maximum gap (seconds) between raw segments that
// still permits coalescing.
const DefaultSilenceGap = 0.6

// Segment is a sentence- or phrase-level transcript unit. After assembly the
// sequence is read-only downstream, with one exception: the correction
// engine rewrites Text in place when a correction batch resolves.
type Segment struct {
	// ID increases monotonically in output order, starting at 0.
	ID int

	// Start and End are seconds from the beginning of the audio.
	// Start < End holds for every assembled segment.
	Start float64
	End   float64

	// Text is the transcript content.
	Text string
}

// Duration returns the segment length in seconds.
func (s Segment) Duration() float64 {
	return s.End - s.Start
}

// Option is a functional option for configuring an [Assembler].
type Option func(*Assembler)

// WithSilenceGap sets the maximum inter-segment gap (seconds) across which
// text is still coalesced. Default: [DefaultSilenceGap].
func WithSilenceGap(gap float64) Option {
	return func(a *Assembler) {
		a.silenceGap = gap
	}
}

// WithMaxSentenceDuration caps the duration (seconds) of a coalesced
// segment. Zero (the default) disables the cap: segments grow until the
// text terminates a sentence or a silence gap intervenes.
func WithMaxSentenceDuration(d float64) Option {
	return func(a *Assembler) {
		a.maxSentenceDuration = d
	}
}

// Assembler merges raw recognizer segments into sentence-level units.
// It is read-only after construction and safe for concurrent use.
type Assembler struct {
	silenceGap          float64
	maxSentenceDuration float64
}

// New returns an [Assembler] with the supplied options applied.
func New(opts ...Option) *Assembler {
	a := &Assembler{
		silenceGap: DefaultSilenceGap,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Assemble normalises raw into the assembled segment sequence.
//
// Processing order:
//  1. Overlapping neighbour boundaries are trimmed to the overlap midpoint.
//  2. Empty-text and zero-duration entries are dropped. A dropped entry
//     still acts as a coalesce barrier — the recognizer emitted it because
//     it saw a pause, and merging across it would fabricate continuity.
//  3. Adjacent entries coalesce while the accumulated text does not end a
//     sentence, the gap stays under the silence threshold, and the combined
//     duration respects the configured cap.
//  4. IDs are assigned in output order from 0.
//
// The returned sequence satisfies: strictly increasing ids, non-decreasing
// starts, and Start < End per segment. A violation is reported as an error
// wrapping [ErrInvariant].
func (a *Assembler) Assemble(raw []asr.RawSegment) ([]Segment, error) {
	trimmed := trimOverlaps(raw)

	var out []Segment
	var cur *Segment
	flush := func() {
		if cur != nil {
			out = append(out, *cur)
			cur = nil
		}
	}

	for _, r := range trimmed {
		text := strings.TrimSpace(r.Text)
		if text == "" || r.End <= r.Start {
			// Silence placeholder: drop it and close the current run.
			flush()
			continue
		}

		if cur == nil {
			cur = &Segment{Start: r.Start, End: r.End, Text: text}
			continue
		}

		gap := r.Start - cur.End
		combined := r.End - cur.Start
		switch {
		case endsSentence(cur.Text):
			flush()
			cur = &Segment{Start: r.Start, End: r.End, Text: text}
		case gap >= a.silenceGap:
			flush()
			cur = &Segment{Start: r.Start, End: r.End, Text: text}
		case a.maxSentenceDuration > 0 && combined > a.maxSentenceDuration:
			flush()
			cur = &Segment{Start: r.Start, End: r.End, Text: text}
		default:
			cur.Text = cur.Text + " " + text
			cur.End = r.End
		}
	}
	flush()

	for i := range out {
		out[i].ID = i
	}

	if err := checkInvariants(out); err != nil {
		return nil, err
	}
	return out, nil
}

// trimOverlaps returns a copy of raw where each overlapping neighbour pair
// shares the midpoint of its overlap as the boundary.
func trimOverlaps(raw []asr.RawSegment) []asr.RawSegment {
	if len(raw) == 0 {
		return nil
	}
	trimmed := make([]asr.RawSegment, len(raw))
	copy(trimmed, raw)
	for i := 1; i < len(trimmed); i++ {
		prev := &trimmed[i-1]
		cur := &trimmed[i]
		if cur.Start < prev.End {
			mid := (cur.Start + prev.End) / 2
			prev.End = mid
			cur.Start = mid
		}
	}
	return trimmed
}

// sentenceTerminators covers Latin and CJK sentence-ending punctuation plus
// the ellipsis whisper likes to emit on trailing speech.
const sentenceTerminators = ".!?。！？…"

// endsSentence reports whether text ends with terminal punctuation,
// ignoring trailing quotes and brackets.
func endsSentence(text string) bool {
	t := strings.TrimRight(strings.TrimSpace(text), "\"')]»”’")
	if t == "" {
		return false
	}
	runes := []rune(t)
	return strings.ContainsRune(sentenceTerminators, runes[len(runes)-1])
}

// checkInvariants validates the assembled output ordering contract.
func checkInvariants(segs []Segment) error {
	for i, s := range segs {
		if s.ID != i {
			return fmt.Errorf("%w: segment %d has id %d", ErrInvariant, i, s.ID)
		}
		if s.Start >= s.End {
			return fmt.Errorf("%w: segment %d has start %.3f >= end %.3f", ErrInvariant, i, s.Start, s.End)
		}
		if i > 0 && s.Start < segs[i-1].Start {
			return fmt.Errorf("%w: segment %d start %.3f precedes segment %d start %.3f",
				ErrInvariant, i, s.Start, i-1, segs[i-1].Start)
		}
	}
	return nil
}
