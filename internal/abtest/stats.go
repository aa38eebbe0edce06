package abtest

import "math"

// ZScore computes the two-proportion z-score for rates p1 (over n1 samples)
// and p2 (over n2 samples).
//
// Returns 0 when either sample is empty or the pooled standard error is 0
// (both proportions equal, or both 0%, or both 100%). Callers must treat a
// zero z-score from "no data" identically to "truly no difference" — that
// is an accepted limitation, not a defect. The result is always
// non-negative and symmetric under swapping the samples.
func ZScore(p1 float64, n1 int, p2 float64, n2 int) float64 {
	if n1 == 0 || n2 == 0 {
		return 0
	}
	pooled := (p1*float64(n1) + p2*float64(n2)) / float64(n1+n2)
	se := math.Sqrt(pooled * (1 - pooled) * (1/float64(n1) + 1/float64(n2)))
	if se == 0 {
		return 0
	}
	return math.Abs(p1-p2) / se
}

// Zelen & Severo rational polynomial coefficients for the standard normal
// CDF (Abramowitz & Stegun 26.2.17). Absolute error < 7.5e-8.
const (
	cdfP  = 0.2316419
	cdfB1 = 0.319381530
	cdfB2 = -0.356563782
	cdfB3 = 1.781477937
	cdfB4 = -1.821255978
	cdfB5 = 1.330274429
)

// Confidence approximates the standard normal CDF at z, i.e. the one-sided
// confidence that the observed difference is real. Confidence(0) = 0.5,
// Confidence(z) + Confidence(-z) = 1, and the function is monotone
// non-decreasing in z.
func Confidence(z float64) float64 {
	if z < 0 {
		return 1 - Confidence(-z)
	}
	t := 1 / (1 + cdfP*z)
	poly := t * (cdfB1 + t*(cdfB2+t*(cdfB3+t*(cdfB4+t*cdfB5))))
	pdf := math.Exp(-z*z/2) / math.Sqrt(2*math.Pi)
	return 1 - pdf*poly
}
