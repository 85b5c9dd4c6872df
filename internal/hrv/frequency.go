package hrv

import (
	"log"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
	"gonum.org/v1/gonum/stat"
)

// Spectral analysis parameters. Intervals are resampled to a uniform 4Hz
// grid, Hamming-tapered as a whole, and analysed with Welch's method over
// 256-sample segments at 50% overlap (each segment windowed again), giving
// a frequency resolution of 4/256 = 0.015625 Hz.
const (
	ResampleHz       = 4.0
	WelchSegmentSize = 256
	MinSpectralCount = 256 // minimum clean intervals for a spectrum

	// Standard short-term HRV bands (Hz). LF upper edge is exclusive, HF
	// upper edge inclusive.
	LFLowHz  = 0.04
	LFHighHz = 0.15
	HFLowHz  = 0.15
	HFHighHz = 0.40
)

// Balance is the interpretation bucket of the LF/HF ratio.
type Balance string

const (
	BalanceParasympathetic Balance = "parasympathetic-dominant" // ratio < 0.5
	BalanceBalanced        Balance = "balanced"                 // 0.5 - 2.0
	BalanceSympathetic     Balance = "sympathetic-dominant"     // 2.0 - 4.0
	BalanceHighlyStressed  Balance = "highly-stressed"          // >= 4.0
)

// FrequencyDomainMetrics holds Welch band powers in ms^2 and the LF/HF ratio.
type FrequencyDomainMetrics struct {
	LFPower    float64 `json:"lf_power"`
	HFPower    float64 `json:"hf_power"`
	LFHFRatio  float64 `json:"lf_hf_ratio"`
	TotalPower float64 `json:"total_power"`
	Balance    Balance `json:"balance"`
}

// ComputeFrequencyDomain runs the full spectral pipeline over a snapshot of
// clean RR intervals (ms). ok is false when fewer than 256 intervals are
// given or not a single complete Welch segment can be assembled.
func ComputeFrequencyDomain(intervals []float64) (FrequencyDomainMetrics, bool) {
	if len(intervals) < MinSpectralCount {
		log.Printf("hrv: spectral analysis skipped, %d intervals < %d required", len(intervals), MinSpectralCount)
		return FrequencyDomainMetrics{}, false
	}

	resampled := resampleUniform(intervals, ResampleHz)
	if len(resampled) < WelchSegmentSize {
		log.Printf("hrv: spectral analysis skipped, %d resampled points < segment size %d", len(resampled), WelchSegmentSize)
		return FrequencyDomainMetrics{}, false
	}

	// Detrend: remove the DC component before windowing.
	mean := stat.Mean(resampled, nil)
	for i := range resampled {
		resampled[i] -= mean
	}

	// Taper the whole detrended series; each Welch segment is windowed
	// again before its FFT.
	window.Apply(resampled, window.Hamming)

	psd, ok := welchPSD(resampled, WelchSegmentSize, ResampleHz)
	if !ok {
		return FrequencyDomainMetrics{}, false
	}

	binWidth := ResampleHz / float64(WelchSegmentSize)
	lf := bandPower(psd, binWidth, LFLowHz, LFHighHz, false)
	hf := bandPower(psd, binWidth, HFLowHz, HFHighHz, true)
	total := bandPower(psd, binWidth, binWidth/2, ResampleHz/2, true)

	ratio := 0.0
	if hf > 0 {
		ratio = lf / hf
	}

	return FrequencyDomainMetrics{
		LFPower:    lf,
		HFPower:    hf,
		LFHFRatio:  ratio,
		TotalPower: total,
		Balance:    interpretBalance(ratio),
	}, true
}

// resampleUniform converts an RR interval sequence (ms) into a uniformly
// sampled tachogram at fs Hz by linear interpolation along the cumulative
// beat-time axis.
func resampleUniform(intervals []float64, fs float64) []float64 {
	times := make([]float64, len(intervals))
	var t float64
	for i, v := range intervals {
		t += v / 1000.0
		times[i] = t
	}

	start, end := times[0], times[len(times)-1]
	n := int((end-start)*fs) + 1
	if n <= 0 {
		return nil
	}

	out := make([]float64, n)
	idx := 0
	for i := 0; i < n; i++ {
		ts := start + float64(i)/fs
		for idx < len(times)-2 && times[idx+1] < ts {
			idx++
		}
		t0, t1 := times[idx], times[idx+1]
		v0, v1 := intervals[idx], intervals[idx+1]
		if t1 == t0 {
			out[i] = v0
			continue
		}
		frac := (ts - t0) / (t1 - t0)
		if frac < 0 {
			frac = 0
		}
		if frac > 1 {
			frac = 1
		}
		out[i] = v0 + frac*(v1-v0)
	}
	return out
}

// welchPSD averages windowed periodograms over 50%-overlapping segments.
// Returns the one-sided power spectral density (segSize/2+1 bins) and ok set
// false when no complete segment fits.
func welchPSD(samples []float64, segSize int, fs float64) ([]float64, bool) {
	hop := segSize / 2
	numSegments := 0
	psd := make([]float64, segSize/2+1)
	ham := window.Hamming(segSize)

	for off := 0; off+segSize <= len(samples); off += hop {
		seg := make([]float64, segSize)
		for i := 0; i < segSize; i++ {
			seg[i] = samples[off+i] * ham[i]
		}
		spectrum := fft.FFTReal(seg)
		for k := 0; k <= segSize/2; k++ {
			m := cmplx.Abs(spectrum[k])
			psd[k] += m * m
		}
		numSegments++
	}
	if numSegments == 0 {
		return nil, false
	}

	scale := 1.0 / (float64(numSegments) * float64(segSize) * fs)
	for k := range psd {
		psd[k] *= scale
	}
	return psd, true
}

// bandPower integrates the PSD over [lo, hi) (or [lo, hi] when hiInclusive)
// using rectangular bins of the given width.
func bandPower(psd []float64, binWidth, lo, hi float64, hiInclusive bool) float64 {
	var power float64
	for k, p := range psd {
		f := float64(k) * binWidth
		if f < lo {
			continue
		}
		if f > hi || (!hiInclusive && f >= hi) {
			break
		}
		power += p * binWidth
	}
	return power
}

func interpretBalance(ratio float64) Balance {
	switch {
	case ratio < 0.5:
		return BalanceParasympathetic
	case ratio < 2.0:
		return BalanceBalanced
	case ratio < 4.0:
		return BalanceSympathetic
	default:
		return BalanceHighlyStressed
	}
}
