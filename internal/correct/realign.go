package correct

import "strings"

// realign maps the corrected batch text back onto the batch's segments.
//
// The prompt demands one output line per input line, so the newline split is
// authoritative when the counts match. When they do not — a model merged or
// split lines despite instructions — the corrected words are redistributed
// proportionally to the original per-segment word counts, which keeps every
// word and leaves segment boundaries approximately where they were.
//
// Returns ok=false when no safe mapping exists; the caller skips the batch.
func realign(corrected string, orig []string) ([]string, bool) {
	lines := splitLines(corrected)
	if len(lines) == len(orig) {
		return lines, true
	}

	words := strings.Fields(corrected)
	if len(words) < len(orig) {
		return nil, false
	}

	origCounts := make([]int, len(orig))
	total := 0
	for i, t := range orig {
		origCounts[i] = len(strings.Fields(t))
		total += origCounts[i]
	}
	if total == 0 {
		return nil, false
	}

	out := make([]string, len(orig))
	pos := 0
	for i := range orig {
		remainingSegs := len(orig) - i
		var take int
		if i == len(orig)-1 {
			take = len(words) - pos
		} else {
			// Proportional share of the remaining words, leaving at least one
			// word for each remaining segment.
			take = (origCounts[i]*len(words) + total/2) / total
			if take < 1 {
				take = 1
			}
			if max := len(words) - pos - (remainingSegs - 1); take > max {
				take = max
			}
		}
		if take < 1 {
			return nil, false
		}
		out[i] = strings.Join(words[pos:pos+take], " ")
		pos += take
	}
	return out, true
}

// splitLines splits s on newlines, trimming surrounding whitespace per line
// and dropping leading/trailing blank lines a model may have added around
// the payload. Interior blank lines are kept: they would signal a genuine
// line-count mismatch.
func splitLines(s string) []string {
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	for len(lines) > 0 && lines[0] == "" {
		lines = lines[1:]
	}
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
