package lsh

// sanitizeK clamps k to [1, maxResults]; k <= 0 keeps every result.
func sanitizeK(k, maxResults int) int {
	if k <= 0 || k > maxResults {
		return maxResults
	}
	return k
}

// limitCandidates keeps the first k candidates of a score-ordered slice.
func limitCandidates(results []Candidate, k int) []Candidate {
	return results[:sanitizeK(k, len(results))]
}

// autocutCandidates cuts a score-ordered slice before the cutoff-th
// extremum of its score curve. A cutoff of -1 (or 0) is a no-op.
//
// Usage:
//
//	return autocutCandidates(results, 1)
func autocutCandidates(results []Candidate, cutoff int) []Candidate {
	if cutoff <= 0 || len(results) == 0 {
		return results
	}
	scores := make([]float64, len(results))
	for i, r := range results {
		scores[i] = r.Score
	}
	return results[:Autocut(scores, cutoff)]
}

// Autocut determines a cutoff point in a sorted score distribution.
//
// It compares the min-max normalized scores against the ideal linear
// distribution and counts local maxima of the difference. Returns the index
// before the cutOff-th extremum, or len(yValues) when there are fewer.
//
// A flat distribution (all scores equal) is never cut.
func Autocut(yValues []float64, cutOff int) int {
	n := len(yValues)
	if n <= 2 {
		return n
	}
	span := yValues[n-1] - yValues[0]
	if span == 0 {
		return n
	}

	diff := make([]float64, n)
	step := 1 / float64(n-1)
	for i, y := range yValues {
		diff[i] = (y-yValues[0])/span - float64(i)*step
	}

	extrema := 0
	for i := 1; i < n; i++ {
		var peak bool
		if i == n-1 {
			peak = diff[i] > diff[i-1] && diff[i] > diff[i-2]
		} else {
			peak = diff[i] > diff[i-1] && diff[i] > diff[i+1]
		}
		if peak {
			extrema++
			if extrema >= cutOff {
				return i
			}
		}
	}
	return n
}
