package segment_test

import (
	"testing"

	"github.com/MrWong99/loquax/internal/segment"
	"github.com/MrWong99/loquax/pkg/provider/asr"
)

func TestAssemble_CoalescesUnterminatedText(t *testing.T) {
	t.Parallel()

	raw := []asr.RawSegment{
		{Start: 0.0, End: 1.5, Text: "the model was trained"},
		{Start: 1.6, End: 3.0, Text: "on two million samples."},
		{Start: 3.2, End: 4.0, Text: "Results follow."},
	}

	segs, err := segment.New().Assemble(raw)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(segs) != 2 {
		t.Fatalf("got %d segments, want 2: %+v", len(segs), segs)
	}
	if segs[0].Text != "the model was trained on two million samples." {
		t.Errorf("coalesced text = %q", segs[0].Text)
	}
	if segs[0].Start != 0.0 || segs[0].End != 3.0 {
		t.Errorf("coalesced bounds = [%.1f, %.1f], want [0.0, 3.0]", segs[0].Start, segs[0].End)
	}
	if segs[1].Text != "Results follow." {
		t.Errorf("second segment text = %q", segs[1].Text)
	}
}

func TestAssemble_SilenceGapSplits(t *testing.T) {
	t.Parallel()

	raw := []asr.RawSegment{
		{Start: 0.0, End: 1.0, Text: "first thought"},
		// 0.8s pause exceeds the 0.6s default: new segment even without
		// terminal punctuation.
		{Start: 1.8, End: 3.0, Text: "second thought"},
	}

	segs, err := segment.New().Assemble(raw)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(segs) != 2 {
		t.Fatalf("got %d segments, want 2: %+v", len(segs), segs)
	}
}

func TestAssemble_EmptySegmentDroppedAndSplits(t *testing.T) {
	t.Parallel()

	// An empty recognizer entry marks a pause; it is dropped but the
	// neighbours must not merge across it.
	raw := []asr.RawSegment{
		{Start: 0.0, End: 2.0, Text: "pie torch is great"},
		{Start: 2.0, End: 2.4, Text: ""},
		{Start: 2.4, End: 5.0, Text: "with pie torch you can train"},
	}

	segs, err := segment.New().Assemble(raw)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(segs) != 2 {
		t.Fatalf("got %d segments, want 2: %+v", len(segs), segs)
	}
	if segs[0].Text != "pie torch is great" || segs[1].Text != "with pie torch you can train" {
		t.Errorf("texts = %q, %q", segs[0].Text, segs[1].Text)
	}
	if segs[0].ID != 0 || segs[1].ID != 1 {
		t.Errorf("ids = %d, %d, want 0, 1", segs[0].ID, segs[1].ID)
	}
}

func TestAssemble_ZeroDurationDropped(t *testing.T) {
	t.Parallel()

	raw := []asr.RawSegment{
		{Start: 1.0, End: 1.0, Text: "glitch"},
		{Start: 1.0, End: 2.0, Text: "Real speech."},
	}

	segs, err := segment.New().Assemble(raw)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(segs) != 1 {
		t.Fatalf("got %d segments, want 1: %+v", len(segs), segs)
	}
	if segs[0].Text != "Real speech." {
		t.Errorf("text = %q", segs[0].Text)
	}
}

func TestAssemble_OverlapTrimmedToMidpoint(t *testing.T) {
	t.Parallel()

	raw := []asr.RawSegment{
		{Start: 0.0, End: 2.0, Text: "First sentence ends here."},
		{Start: 1.0, End: 3.0, Text: "Second starts early."},
	}

	segs, err := segment.New().Assemble(raw)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(segs) != 2 {
		t.Fatalf("got %d segments, want 2: %+v", len(segs), segs)
	}
	if segs[0].End != 1.5 {
		t.Errorf("first segment end = %.2f, want 1.50", segs[0].End)
	}
	if segs[1].Start != 1.5 {
		t.Errorf("second segment start = %.2f, want 1.50", segs[1].Start)
	}
}

func TestAssemble_MaxSentenceDurationCaps(t *testing.T) {
	t.Parallel()

	raw := []asr.RawSegment{
		{Start: 0.0, End: 8.0, Text: "rambling without any"},
		{Start: 8.1, End: 16.0, Text: "punctuation at all"},
		{Start: 16.1, End: 24.0, Text: "still going strong"},
	}

	segs, err := segment.New(segment.WithMaxSentenceDuration(20)).Assemble(raw)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(segs) != 2 {
		t.Fatalf("got %d segments, want 2: %+v", len(segs), segs)
	}
	if segs[0].Duration() > 20 {
		t.Errorf("first segment duration %.1f exceeds cap", segs[0].Duration())
	}
}

func TestAssemble_CJKTerminatorSplits(t *testing.T) {
	t.Parallel()

	raw := []asr.RawSegment{
		{Start: 0.0, End: 1.0, Text: "これで終わりです。"},
		{Start: 1.1, End: 2.0, Text: "次の文"},
	}

	segs, err := segment.New().Assemble(raw)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(segs) != 2 {
		t.Fatalf("got %d segments, want 2: %+v", len(segs), segs)
	}
}

func TestAssemble_EmptyInput(t *testing.T) {
	t.Parallel()

	segs, err := segment.New().Assemble(nil)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(segs) != 0 {
		t.Errorf("got %d segments from empty input", len(segs))
	}
}

func TestAssemble_IDsContiguousFromZero(t *testing.T) {
	t.Parallel()

	raw := []asr.RawSegment{
		{Start: 0.0, End: 1.0, Text: "One."},
		{Start: 1.5, End: 2.0, Text: ""},
		{Start: 2.5, End: 3.0, Text: "Two."},
		{Start: 4.0, End: 5.0, Text: "Three."},
	}

	segs, err := segment.New().Assemble(raw)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	for i, s := range segs {
		if s.ID != i {
			t.Errorf("segment %d has id %d", i, s.ID)
		}
		if s.Start >= s.End {
			t.Errorf("segment %d has non-positive duration [%.2f, %.2f]", i, s.Start, s.End)
		}
	}
}
