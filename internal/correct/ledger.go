// Package correct implements the context-aware terminology correction stage
// of the loquax pipeline.
//
// Assembled transcript segments are grouped into character-budgeted batches
// and sent to an LLM with a conservative correction prompt. Accepted
// corrections are recorded in a [Ledger] so that later occurrences of the
// same mistaken surface form are rewritten locally, without asking the model
// again, and so that the same mistake is never resolved two different ways
// within one document.
//
// Every guard in this package fails closed: a batch that cannot be corrected
// safely keeps its original text verbatim.
package correct

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

// Policy selects how the ledger resolves conflicting corrections for the
// same surface form.
type Policy string

const (
	// PolicyFirstWins keeps the first accepted correction for a surface form
	// and rejects later disagreements. This is the default: it guarantees a
	// term is spelled the same way throughout the document.
	PolicyFirstWins Policy = "first-wins"

	// PolicyLastWins lets a later correction replace an earlier one. Later
	// batches see more context, so their corrections may be better informed.
	PolicyLastWins Policy = "last-wins"
)

// IsValid reports whether p is a known policy.
func (p Policy) IsValid() bool {
	return p == PolicyFirstWins || p == PolicyLastWins
}

// Term is one accepted correction: a mistaken surface form and its
// replacement.
type Term struct {
	// Original is the surface form as it appeared in the transcript.
	Original string

	// Corrected is the accepted replacement.
	Corrected string

	// Confidence is the model's reported confidence for the substitution.
	Confidence float64
}

// Contradiction records a correction that disagreed with an already-ledgered
// one for the same (or phonetically equivalent) surface form. Contradictions
// are diagnostic only; which side got applied depends on the policy.
type Contradiction struct {
	// Key is the normalized ledger key both corrections mapped to.
	Key string

	// Applied is the correction that holds for the key after resolution.
	Applied string

	// Rejected is the correction that lost.
	Rejected string
}

// aliasJWThreshold is the minimum Jaro-Winkler similarity for two surface
// forms with overlapping Double Metaphone codes to be folded onto the same
// ledger key. High on purpose: only trivial variants ("pietorch" vs
// "pie torch") should merge, not genuinely different words.
const aliasJWThreshold = 0.90

// LedgerOption is a functional option for configuring a [Ledger].
type LedgerOption func(*Ledger)

// WithPolicy sets the conflict resolution policy. Default: [PolicyFirstWins].
func WithPolicy(p Policy) LedgerOption {
	return func(l *Ledger) {
		if p.IsValid() {
			l.policy = p
		}
	}
}

// Ledger accumulates accepted corrections over the course of one document.
// It is not safe for concurrent use; batches are processed strictly in
// document order precisely so the ledger never needs a lock.
type Ledger struct {
	policy  Policy
	entries map[string]Term
	order   []string

	contradictions []Contradiction
}

// NewLedger returns an empty [Ledger] with the supplied options applied.
func NewLedger(opts ...LedgerOption) *Ledger {
	l := &Ledger{
		policy:  PolicyFirstWins,
		entries: make(map[string]Term),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Record registers a correction. It returns true when t now holds for its
// key and false when an existing entry won under the policy.
//
// The key is the normalized Original; if no entry exists under that key but
// a phonetically equivalent key does, the correction folds onto the existing
// key instead of creating a near-duplicate.
func (l *Ledger) Record(t Term) bool {
	key := normalizeTerm(t.Original)
	if key == "" || normalizeTerm(t.Corrected) == "" {
		return false
	}

	if _, ok := l.entries[key]; !ok {
		if alias, ok := l.aliasKey(key); ok {
			key = alias
		}
	}

	existing, ok := l.entries[key]
	if !ok {
		l.entries[key] = t
		l.order = append(l.order, key)
		return true
	}

	if normalizeTerm(existing.Corrected) == normalizeTerm(t.Corrected) {
		// Same resolution, nothing to record.
		return false
	}

	if l.policy == PolicyLastWins {
		l.contradictions = append(l.contradictions, Contradiction{
			Key:      key,
			Applied:  t.Corrected,
			Rejected: existing.Corrected,
		})
		l.entries[key] = t
		return true
	}

	l.contradictions = append(l.contradictions, Contradiction{
		Key:      key,
		Applied:  existing.Corrected,
		Rejected: t.Corrected,
	})
	return false
}

// Lookup returns the ledgered correction for the given surface form, if any.
// Like [Ledger.Record], a phonetically equivalent key matches when the exact
// key does not, so a variant spelling resolves to the same entry its
// corrections fold onto.
func (l *Ledger) Lookup(surface string) (Term, bool) {
	key := normalizeTerm(surface)
	if t, ok := l.entries[key]; ok {
		return t, true
	}
	if alias, ok := l.aliasKey(key); ok {
		return l.entries[alias], true
	}
	return Term{}, false
}

// Terms returns all ledgered corrections in first-recorded order.
func (l *Ledger) Terms() []Term {
	out := make([]Term, 0, len(l.order))
	for _, k := range l.order {
		out = append(out, l.entries[k])
	}
	return out
}

// Contradictions returns every conflicting correction seen so far, in the
// order the conflicts occurred.
func (l *Ledger) Contradictions() []Contradiction {
	return l.contradictions
}

// Len returns the number of distinct ledgered surface forms.
func (l *Ledger) Len() int {
	return len(l.entries)
}

// Apply rewrites every ledgered surface form occurring in text with its
// accepted correction and returns the rewritten text plus the number of
// substitutions made. Matching is case-insensitive on word boundaries.
func (l *Ledger) Apply(text string) (string, int) {
	total := 0
	for _, k := range l.order {
		t := l.entries[k]
		var n int
		text, n = replaceWordFold(text, t.Original, t.Corrected)
		total += n
	}
	return text, total
}

// aliasKey scans existing keys for one phonetically equivalent to key:
// overlapping Double Metaphone codes and Jaro-Winkler similarity at or
// above aliasJWThreshold (computed space-stripped, so token splits do not
// depress the score).
func (l *Ledger) aliasKey(key string) (string, bool) {
	keyCodes := metaphoneCodes(key)
	keyFlat := strings.ReplaceAll(key, " ", "")

	for _, existing := range l.order {
		if !codesOverlap(keyCodes, metaphoneCodes(existing)) {
			continue
		}
		existingFlat := strings.ReplaceAll(existing, " ", "")
		if matchr.JaroWinkler(keyFlat, existingFlat, false) >= aliasJWThreshold {
			return existing, true
		}
	}
	return "", false
}

// normalizeTerm lowercases s and strips common trailing punctuation so that
// surface forms like "PyTorch." match terms ledgered as "PyTorch".
func normalizeTerm(s string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimRight(s, ".,;:!?\"')")))
}

// metaphoneCodes returns the union of Double Metaphone codes for every token
// of s. Empty codes are excluded.
func metaphoneCodes(s string) map[string]struct{} {
	tokens := strings.Fields(s)
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, sec := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if sec != "" {
			codes[sec] = struct{}{}
		}
	}
	return codes
}

// codesOverlap reports whether the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// replaceWordFold replaces case-insensitive occurrences of old in text with
// repl, requiring a word boundary on both sides of the match. Matching is
// rune-wise via [strings.EqualFold]: all byte offsets are computed on the
// original text, so case folds that change byte length (Turkish "İ",
// uppercase "ẞ") cannot desynchronize the scan. Returns the rewritten text
// and the number of replacements.
func replaceWordFold(text, old, repl string) (string, int) {
	if old == "" {
		return text, 0
	}
	oldRunes := utf8.RuneCountInString(old)

	var sb strings.Builder
	count := 0
	i := 0
	for i < len(text) {
		if n, ok := runePrefixLen(text[i:], oldRunes); ok &&
			strings.EqualFold(text[i:i+n], old) &&
			isWordBoundary(text, i, i+n) {
			sb.WriteString(repl)
			count++
			i += n
			continue
		}
		_, size := utf8.DecodeRuneInString(text[i:])
		sb.WriteString(text[i : i+size])
		i += size
	}
	if count == 0 {
		return text, 0
	}
	return sb.String(), count
}

// runePrefixLen returns the byte length of the first n runes of s, or false
// when s holds fewer than n runes.
func runePrefixLen(s string, n int) (int, bool) {
	i := 0
	for ; n > 0; n-- {
		if i >= len(s) {
			return 0, false
		}
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	return i, true
}

// isWordBoundary reports whether [start, end) in s is delimited by
// non-letter, non-digit runes (or the string edges) on both sides.
func isWordBoundary(s string, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(s[:start])
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
	}
	if end < len(s) {
		r, _ := utf8.DecodeRuneInString(s[end:])
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
