package sleep

// Classification thresholds, expressed as ratios of epoch physiology to the
// waking baseline.
const (
	deepHRNormMax    = 0.95
	deepHRVNormMin   = 1.10
	deepStdDevMax    = 3.0
	remHRNormMin     = 0.95
	remHRNormMax     = 1.05
	remHRVNormMin    = 0.95
	remHRVNormMax    = 1.10
	remStdDevMin     = 3.0
	lightHRNormMax   = 1.05
	lightHRVNormMin  = 0.90
	baselineEpochMax = 10 // epochs sampled for the session baseline

	// Sanity floors for a computed session baseline; below these the fixed
	// defaults are used instead.
	minBaselineHR    = 40.0
	minBaselineRMSSD = 10.0

	// Fixed fallback baseline when none can be computed.
	DefaultBaselineHR    = 70.0
	DefaultBaselineRMSSD = 40.0
)

// Baseline is a rolling reference point for awake physiology.
type Baseline struct {
	HeartRate float64 `json:"heart_rate"`
	RMSSD     float64 `json:"rmssd"`
	HRStdDev  float64 `json:"hr_std_dev"`
}

// DefaultBaseline returns the built-in fallback reference.
func DefaultBaseline() Baseline {
	return Baseline{HeartRate: DefaultBaselineHR, RMSSD: DefaultBaselineRMSSD, HRStdDev: defaultBaselineHRStdDev}
}

const defaultBaselineHRStdDev = 4.0

// ClassifyEpoch labels a single epoch against the waking baseline. The rules
// are evaluated in order and the first match wins:
//
//	deep:  HR well below baseline, RMSSD elevated, very stable HR
//	rem:   HR near baseline, RMSSD near baseline, unstable HR
//	light: HR at most slightly above baseline with preserved RMSSD
//	awake: everything else
//
// A zero or implausible baseline falls back to the built-in defaults so
// classification stays total.
func ClassifyEpoch(e Epoch, b Baseline) Phase {
	if b.HeartRate <= 0 || b.RMSSD <= 0 {
		b = DefaultBaseline()
	}
	hrNorm := e.AverageHR / b.HeartRate
	hrvNorm := e.AverageRMSSD / b.RMSSD

	switch {
	case hrNorm < deepHRNormMax && hrvNorm > deepHRVNormMin && e.HRStdDev < deepStdDevMax:
		return PhaseDeep
	case hrNorm >= remHRNormMin && hrNorm <= remHRNormMax &&
		hrvNorm >= remHRVNormMin && hrvNorm <= remHRVNormMax &&
		e.HRStdDev >= remStdDevMin:
		return PhaseREM
	case hrNorm < lightHRNormMax && hrvNorm >= lightHRVNormMin:
		return PhaseLight
	default:
		return PhaseAwake
	}
}

// SessionBaseline derives a waking baseline from the opening epochs of a
// session (assumed pre-sleep). It averages HR and RMSSD over at most the
// first ten epochs and falls back to the defaults when the result is
// implausibly low.
func SessionBaseline(epochs []Epoch) Baseline {
	if len(epochs) == 0 {
		return DefaultBaseline()
	}
	n := len(epochs)
	if n > baselineEpochMax {
		n = baselineEpochMax
	}

	var sumHR, sumRMSSD float64
	for _, e := range epochs[:n] {
		sumHR += e.AverageHR
		sumRMSSD += e.AverageRMSSD
	}
	b := Baseline{
		HeartRate: sumHR / float64(n),
		RMSSD:     sumRMSSD / float64(n),
	}
	if b.HeartRate <= minBaselineHR {
		b.HeartRate = DefaultBaselineHR
	}
	if b.RMSSD <= minBaselineRMSSD {
		b.RMSSD = DefaultBaselineRMSSD
	}
	return b
}
