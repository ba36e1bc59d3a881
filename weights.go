package dafetch

import (
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
)

// logWeight combines a log-posterior with a transition-density correction
// into an importance weight. NaN never survives past this point: a
// degenerate evaluation becomes a -Inf weight and can never be selected.
func logWeight(posterior, q float64) float64 {
	w := posterior + q
	if math.IsNaN(w) {
		return math.Inf(-1)
	}
	return w
}

func allNegInf(w []float64) bool {
	for _, wi := range w {
		if !math.IsInf(wi, -1) {
			return false
		}
	}
	return true
}

// sampleCategorical draws index i with probability
// exp(w[i] - logsumexp(w)) using a single uniform draw against the
// cumulative distribution. At least one weight must be finite.
func sampleCategorical(rng *rand.Rand, w []float64) int {
	lse := floats.LogSumExp(w)
	u := rng.Float64()
	var cum float64
	for i, wi := range w {
		cum += math.Exp(wi - lse)
		if u < cum {
			return i
		}
	}
	// cum can fall short of 1 by a few ulps.
	return len(w) - 1
}

// clampProbability maps an acceptance ratio onto [0, 1]. NaN means a
// degenerate evaluation took part in the ratio and forces a rejection.
func clampProbability(a float64) float64 {
	if math.IsNaN(a) {
		return 0
	}
	return math.Min(1, a)
}
