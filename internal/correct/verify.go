package correct

import "strings"

// anchor maps a token index in the original sequence to the corresponding
// index in the corrected sequence.
type anchor struct {
	origIdx int
	corrIdx int
}

// tokenLCS computes the longest common subsequence of two token slices and
// returns the anchor pairs of common tokens in order. Standard O(m×n) DP —
// the inputs are single transcript segments, so sizes stay small.
func tokenLCS(a, b []string) []anchor {
	m, n := len(a), len(b)
	if m == 0 || n == 0 {
		return nil
	}

	dp := make([][]int, m+1)
	for i := range dp {
		dp[i] = make([]int, n+1)
	}
	for i := 1; i <= m; i++ {
		for j := 1; j <= n; j++ {
			switch {
			case a[i-1] == b[j-1]:
				dp[i][j] = dp[i-1][j-1] + 1
			case dp[i-1][j] >= dp[i][j-1]:
				dp[i][j] = dp[i-1][j]
			default:
				dp[i][j] = dp[i][j-1]
			}
		}
	}

	lcsLen := dp[m][n]
	if lcsLen == 0 {
		return nil
	}

	anchors := make([]anchor, lcsLen)
	i, j, k := m, n, lcsLen-1
	for i > 0 && j > 0 {
		switch {
		case a[i-1] == b[j-1]:
			anchors[k] = anchor{origIdx: i - 1, corrIdx: j - 1}
			i--
			j--
			k--
		case dp[i-1][j] >= dp[i][j-1]:
			i--
		default:
			j--
		}
	}
	return anchors
}

// verifyCorrectedText walks the token-level diff between original and
// corrected in one pass over the LCS anchors. Every gap between anchored
// (unchanged) tokens is a region the model edited: a gap matching a declared
// correction is kept and the correction returned as confirmed; any other gap
// is reverted to the original tokens.
//
// This is the guard against models that "fix" grammar or rephrase while
// claiming to have only corrected terminology.
func verifyCorrectedText(original, corrected string, corrections []Correction) (string, []Correction) {
	if original == corrected {
		return original, corrections
	}

	origTokens := strings.Fields(original)
	corrTokens := strings.Fields(corrected)
	anchors := tokenLCS(origTokens, corrTokens)

	type pair struct{ orig, corr string }
	declared := make(map[pair]Correction, len(corrections))
	for _, c := range corrections {
		declared[pair{normalizeTerm(c.Original), normalizeTerm(c.Corrected)}] = c
	}

	var result []string
	var confirmed []Correction

	resolveGap := func(orig, corr []string) {
		if len(orig) == 0 && len(corr) == 0 {
			return
		}
		key := pair{
			normalizeTerm(strings.Join(orig, " ")),
			normalizeTerm(strings.Join(corr, " ")),
		}
		if c, ok := declared[key]; ok {
			result = append(result, corr...)
			confirmed = append(confirmed, c)
			return
		}
		result = append(result, orig...)
	}

	oi, ci := 0, 0
	for _, a := range anchors {
		resolveGap(origTokens[oi:a.origIdx], corrTokens[ci:a.corrIdx])
		result = append(result, origTokens[a.origIdx])
		oi, ci = a.origIdx+1, a.corrIdx+1
	}
	resolveGap(origTokens[oi:], corrTokens[ci:])

	return strings.Join(result, " "), confirmed
}
