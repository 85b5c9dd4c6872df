package hrv

import (
	"log"
	"math"

	"gonum.org/v1/gonum/stat"
)

// DFA box-size range for the short-term scaling exponent. Box sizes run from
// MinDFABoxSize up to min(MaxDFABoxSize, N/4).
const (
	MinDFACount   = 100
	MinDFABoxSize = 4
	MaxDFABoxSize = 16
	MinDFAPairs   = 3 // (n, F(n)) pairs required for the log-log fit
)

// Complexity is the interpretation bucket of the Alpha1 exponent.
type Complexity string

const (
	ComplexityUncorrelated Complexity = "uncorrelated"       // < 0.5
	ComplexityFatigue      Complexity = "fatigue-signal"     // 0.5 - 0.75
	ComplexityHealthy      Complexity = "healthy-complexity" // 0.75 - 1.0
	ComplexityRigid        Complexity = "rigid-pattern"      // 1.0 - 1.2
	ComplexityCorrelated   Complexity = "highly-correlated"  // >= 1.2
)

// DFAResult is the outcome of a detrended fluctuation analysis.
type DFAResult struct {
	Alpha1         float64    `json:"alpha1"`
	Interpretation Complexity `json:"interpretation"`
	BoxSizes       []int      `json:"box_sizes"`
	Fluctuations   []float64  `json:"fluctuations"`
	RSquared       float64    `json:"r_squared"`
}

// ComputeDFA calculates the short-term fractal scaling exponent Alpha1 over
// a snapshot of clean RR intervals (ms). ok is false when fewer than 100
// intervals are given or too few valid fluctuation points exist for the fit.
func ComputeDFA(intervals []float64) (DFAResult, bool) {
	if len(intervals) < MinDFACount {
		log.Printf("hrv: DFA skipped, %d intervals < %d required", len(intervals), MinDFACount)
		return DFAResult{}, false
	}

	// Integrate the mean-subtracted series into a cumulative-sum profile.
	mean := stat.Mean(intervals, nil)
	profile := make([]float64, len(intervals))
	var sum float64
	for i, v := range intervals {
		sum += v - mean
		profile[i] = sum
	}

	maxBox := MaxDFABoxSize
	if n4 := len(intervals) / 4; n4 < maxBox {
		maxBox = n4
	}

	var boxSizes []int
	var fluctuations []float64
	for n := MinDFABoxSize; n <= maxBox; n++ {
		f, ok := fluctuation(profile, n)
		if !ok {
			continue
		}
		boxSizes = append(boxSizes, n)
		fluctuations = append(fluctuations, f)
	}
	if len(boxSizes) < MinDFAPairs {
		log.Printf("hrv: DFA skipped, only %d fluctuation points (%d required)", len(boxSizes), MinDFAPairs)
		return DFAResult{}, false
	}

	logN := make([]float64, len(boxSizes))
	logF := make([]float64, len(fluctuations))
	for i := range boxSizes {
		logN[i] = math.Log(float64(boxSizes[i]))
		logF[i] = math.Log(fluctuations[i])
	}

	alpha1, r2 := logLogFit(logN, logF)
	return DFAResult{
		Alpha1:         alpha1,
		Interpretation: interpretAlpha1(alpha1),
		BoxSizes:       boxSizes,
		Fluctuations:   fluctuations,
		RSquared:       r2,
	}, true
}

// fluctuation computes F(n): per-box the RMS of residuals around a local
// least-squares linear trend, averaged across all complete boxes. ok is
// false when F(n) would be zero or no complete box fits.
func fluctuation(profile []float64, n int) (float64, bool) {
	numBoxes := len(profile) / n
	if numBoxes == 0 {
		return 0, false
	}

	var total float64
	for b := 0; b < numBoxes; b++ {
		box := profile[b*n : (b+1)*n]
		total += boxRMS(box)
	}
	f := total / float64(numBoxes)
	if f <= 0 {
		// Perfectly linear box profile; log(F) is undefined.
		return 0, false
	}
	return f, true
}

// boxRMS fits y = a + b*x by least squares over the box and returns the RMS
// of the residuals. A zero-variance box yields zero residuals (flat trend).
func boxRMS(box []float64) float64 {
	n := float64(len(box))
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range box {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	var a, b float64
	if denom == 0 {
		a = sumY / n
	} else {
		b = (n*sumXY - sumX*sumY) / denom
		a = (sumY - b*sumX) / n
	}

	var sumSq float64
	for i, y := range box {
		r := y - (a + b*float64(i))
		sumSq += r * r
	}
	return math.Sqrt(sumSq / n)
}

// logLogFit regresses logF on logN and returns the slope plus R-squared.
// A degenerate (zero-variance) input yields a flat zero-slope result
// instead of propagating NaN.
func logLogFit(logN, logF []float64) (slope, r2 float64) {
	if stat.Variance(logN, nil) == 0 || stat.Variance(logF, nil) == 0 {
		return 0, 0
	}
	_, slope = stat.LinearRegression(logN, logF, nil, false)
	r := stat.Correlation(logN, logF, nil)
	r2 = r * r
	if math.IsNaN(slope) || math.IsNaN(r2) {
		return 0, 0
	}
	return slope, r2
}

func interpretAlpha1(alpha1 float64) Complexity {
	switch {
	case alpha1 < 0.5:
		return ComplexityUncorrelated
	case alpha1 < 0.75:
		return ComplexityFatigue
	case alpha1 < 1.0:
		return ComplexityHealthy
	case alpha1 < 1.2:
		return ComplexityRigid
	default:
		return ComplexityCorrelated
	}
}
