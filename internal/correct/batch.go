package correct

import "strings"

// DefaultCharBudget is the default per-batch character budget. Sized so a
// batch plus prompt comfortably fits small local-model context windows.
const DefaultCharBudget = 4000

// contextShare is the fraction of the character budget that trailing context
// from the previous batch may occupy.
const contextShare = 0.10

// batchSpan is a half-open range [start, end) of segment indices forming one
// correction batch.
type batchSpan struct {
	start, end int
}

// planBatches splits the segment texts into consecutive batches whose joined
// length (texts separated by "\n") stays within budget. A batch boundary
// never splits a segment: a single segment longer than the budget forms a
// batch of its own.
func planBatches(texts []string, budget int) []batchSpan {
	var spans []batchSpan
	start := 0
	size := 0

	for i, t := range texts {
		add := len(t)
		if size > 0 {
			add++ // "\n" separator
		}
		if size > 0 && size+add > budget {
			spans = append(spans, batchSpan{start: start, end: i})
			start = i
			size = len(t)
			continue
		}
		size += add
	}
	if start < len(texts) {
		spans = append(spans, batchSpan{start: start, end: len(texts)})
	}
	return spans
}

// contextTail returns the largest whole-segment suffix of the already
// corrected texts preceding span that fits in maxChars. Whole segments only:
// a cut-off sentence would invite the model to "complete" it.
func contextTail(corrected []string, span batchSpan, maxChars int) string {
	if span.start == 0 || maxChars <= 0 {
		return ""
	}

	total := 0
	first := span.start
	for i := span.start - 1; i >= 0; i-- {
		add := len(corrected[i])
		if total > 0 {
			add++
		}
		if total+add > maxChars {
			break
		}
		total += add
		first = i
	}
	if first == span.start {
		return ""
	}
	return strings.Join(corrected[first:span.start], "\n")
}
