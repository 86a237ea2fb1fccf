package correct

import (
	"strings"
	"testing"
)

func TestPlanBatches_RespectsBudget(t *testing.T) {
	t.Parallel()

	texts := []string{
		strings.Repeat("a", 30),
		strings.Repeat("b", 30),
		strings.Repeat("c", 30),
	}

	spans := planBatches(texts, 65)
	if len(spans) != 2 {
		t.Fatalf("planned %d batches, want 2: %+v", len(spans), spans)
	}
	// 30 + 1 + 30 = 61 fits; adding the third (31 more) would not.
	if spans[0] != (batchSpan{start: 0, end: 2}) {
		t.Errorf("first span = %+v", spans[0])
	}
	if spans[1] != (batchSpan{start: 2, end: 3}) {
		t.Errorf("second span = %+v", spans[1])
	}
}

func TestPlanBatches_OversizedSegmentGetsOwnBatch(t *testing.T) {
	t.Parallel()

	texts := []string{
		"short",
		strings.Repeat("x", 500),
		"tail",
	}

	spans := planBatches(texts, 100)
	if len(spans) != 3 {
		t.Fatalf("planned %d batches, want 3: %+v", len(spans), spans)
	}
	if spans[1].end-spans[1].start != 1 {
		t.Errorf("oversized segment shares a batch: %+v", spans[1])
	}
}

func TestPlanBatches_SingleBatchWhenEverythingFits(t *testing.T) {
	t.Parallel()

	spans := planBatches([]string{"one", "two", "three"}, 4000)
	if len(spans) != 1 || spans[0] != (batchSpan{start: 0, end: 3}) {
		t.Errorf("spans = %+v, want one full-range batch", spans)
	}
}

func TestContextTail_WholeSegmentsWithinCap(t *testing.T) {
	t.Parallel()

	corrected := []string{"first sentence here", "second one", "third"}
	span := batchSpan{start: 3, end: 5}

	// Cap of 17 fits "third" (5) + "\n" + "second one" (10) = 16 but not the
	// first segment as well.
	tail := contextTail(corrected, span, 17)
	if tail != "second one\nthird" {
		t.Errorf("tail = %q", tail)
	}
}

func TestContextTail_FirstBatchHasNone(t *testing.T) {
	t.Parallel()

	if tail := contextTail([]string{"x"}, batchSpan{start: 0, end: 1}, 100); tail != "" {
		t.Errorf("first batch got context %q", tail)
	}
}

func TestContextTail_NothingFits(t *testing.T) {
	t.Parallel()

	corrected := []string{"a rather long previous segment"}
	if tail := contextTail(corrected, batchSpan{start: 1, end: 2}, 5); tail != "" {
		t.Errorf("tail = %q, want empty when no whole segment fits", tail)
	}
}

func TestRealign_NewlineSplit(t *testing.T) {
	t.Parallel()

	lines, ok := realign("PyTorch is great\nwith PyTorch you can train", []string{
		"pie torch is great",
		"with pie torch you can train",
	})
	if !ok {
		t.Fatal("realign failed on matching line count")
	}
	if lines[0] != "PyTorch is great" || lines[1] != "with PyTorch you can train" {
		t.Errorf("lines = %q", lines)
	}
}

func TestRealign_TrailingBlankLineTolerated(t *testing.T) {
	t.Parallel()

	lines, ok := realign("one\ntwo\n", []string{"one", "two"})
	if !ok || len(lines) != 2 {
		t.Fatalf("realign = %q, %v", lines, ok)
	}
}

func TestRealign_ProportionalFallback(t *testing.T) {
	t.Parallel()

	// Model merged the two lines into one; words must be redistributed
	// proportionally to the original word counts (3 and 3).
	lines, ok := realign("alpha beta gamma delta epsilon zeta", []string{
		"one two three",
		"four five six",
	})
	if !ok {
		t.Fatal("proportional fallback failed")
	}
	if lines[0] != "alpha beta gamma" || lines[1] != "delta epsilon zeta" {
		t.Errorf("lines = %q", lines)
	}
}

func TestRealign_TooFewWordsFails(t *testing.T) {
	t.Parallel()

	if _, ok := realign("word", []string{"one two", "three four"}); ok {
		t.Error("realign accepted fewer words than segments")
	}
}

func TestDiverges(t *testing.T) {
	t.Parallel()

	if diverges("one two three four five six seven eight nine ten", "one two three four five six seven eight nine PyTorch", 0.3) {
		t.Error("equal-length correction flagged as divergent")
	}
	if !diverges("one two three four five six seven eight nine ten", "short now", 0.3) {
		t.Error("heavy rewrite not flagged as divergent")
	}
}
