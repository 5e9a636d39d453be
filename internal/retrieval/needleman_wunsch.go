package retrieval

import "github.com/austinkregel/tunescribe/internal/config"

// NeedlemanWunsch computes a memory-efficient overlap-alignment score
// between a and b using a single rolling row of length
// min(|a|,|b|)+1, swapping inputs so the shorter sequence drives the
// columns. Leading gaps are free on both sequences (the boundary row and
// column are zero-initialized, not gap-penalized): a query is typically an
// excerpt of a tune, not the whole thing, so the alignment should not pay
// to skip to wherever the excerpt actually starts or stops. The returned
// score is the maximum cell seen anywhere during the scan — not just the
// final row — normalized as 0.5 * maxCell / min(|a|,|b|) (spec.md §4.E,
// §8). Free leading gaps alone only buys the excerpt a cheap start; taking
// the running max is what lets it also stop early without paying for a
// trailing mismatch against material the query never reached.
//
// Symmetric by construction (NW(a,b) == NW(b,a)): swapping which sequence
// drives rows vs. columns does not change the set of cell values computed,
// only their layout.
func NeedlemanWunsch(cfg config.Pipeline, a, b []int) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	rows, cols := a, b
	if len(cols) > len(rows) {
		rows, cols = cols, rows
	}
	// Now len(cols) <= len(rows); the rolling row has length len(cols)+1.

	m := len(cols)
	prev := make([]float64, m+1)
	curr := make([]float64, m+1)

	// maxCell starts at 0: the zero boundary row is itself a valid (if
	// uninteresting) candidate, so two highly dissimilar sequences score 0
	// rather than a negative value.
	maxCell := 0.0

	for i := 1; i <= len(rows); i++ {
		curr[0] = 0
		for j := 1; j <= m; j++ {
			sub := cfg.NWMismatch
			if rows[i-1] == cols[j-1] {
				sub = cfg.NWMatch
			}
			diag := prev[j-1] + sub
			up := prev[j] + cfg.NWGap
			left := curr[j-1] + cfg.NWGap
			curr[j] = max3(diag, up, left)
			if curr[j] > maxCell {
				maxCell = curr[j]
			}
		}
		prev, curr = curr, prev
	}

	minLen := len(rows)
	if len(cols) < minLen {
		minLen = len(cols)
	}
	return 0.5 * maxCell / float64(minLen)
}

func max3(a, b, c float64) float64 {
	m := a
	if b > m {
		m = b
	}
	if c > m {
		m = c
	}
	return m
}
