package hrv

import "log"

// Physiological bounds for a single RR interval. Anything outside is an
// ectopic beat or a sensor glitch and is dropped before artifact analysis.
const (
	MinIntervalMs = 300.0
	MaxIntervalMs = 2000.0

	// MaxRelativeJump is the largest interval-to-interval change tolerated
	// before the sample is flagged as a motion/contact artifact.
	MaxRelativeJump = 0.20

	// MinValidDurationSeconds is the cumulative clean recording time below
	// which a processed batch is marked invalid for metric computation.
	MinValidDurationSeconds = 120.0
)

// Quality is a categorical grade of a processed interval batch.
type Quality string

const (
	QualityExcellent  Quality = "excellent"  // score >= 95
	QualityGood       Quality = "good"       // score >= 85
	QualityAcceptable Quality = "acceptable" // score >= 70
	QualityPoor       Quality = "poor"       // score >= 50
	QualityUnusable   Quality = "unusable"
)

// ProcessedIntervals is the result of validating and repairing a raw RR batch.
// Immutable once produced; Clean preserves the temporal order of the input.
type ProcessedIntervals struct {
	Clean             []float64 // repaired interval sequence, ms
	EctopicCount      int       // intervals dropped for leaving [300,2000]ms
	ArtifactCount     int       // intervals flagged for a >20% jump
	InterpolatedCount int       // artifacts actually replaced
	QualityScore      float64   // untouched/original * 100
	Quality           Quality
	Valid             bool // cumulative clean duration >= 120s
}

// ProcessIntervals validates and repairs a batch of raw RR intervals (ms).
//
// Stages: ectopic rejection outside the physiological bounds, artifact
// flagging of >20% jumps against the previous valid interval, Catmull-Rom
// repair of each flagged sample (with linear and nearest-neighbour
// fallbacks near the edges), then the 120s validity gate.
func ProcessIntervals(raw []float64) ProcessedIntervals {
	var res ProcessedIntervals
	if len(raw) == 0 {
		res.Quality = QualityUnusable
		return res
	}

	// Stage 1: ectopic rejection.
	kept := make([]float64, 0, len(raw))
	for _, v := range raw {
		if v < MinIntervalMs || v > MaxIntervalMs {
			res.EctopicCount++
			continue
		}
		kept = append(kept, v)
	}

	// Stage 2: artifact detection against the previous valid interval.
	// Flagged samples do not become the comparison reference for their
	// successors, so a single spike cannot cascade flags down the batch.
	artifact := make([]bool, len(kept))
	prevValid := -1
	for i, v := range kept {
		if prevValid >= 0 {
			prev := kept[prevValid]
			if delta := v - prev; delta > prev*MaxRelativeJump || -delta > prev*MaxRelativeJump {
				artifact[i] = true
				res.ArtifactCount++
				continue
			}
		}
		prevValid = i
	}

	// Stage 3: repair flagged samples.
	clean := make([]float64, len(kept))
	copy(clean, kept)
	for i := range kept {
		if !artifact[i] {
			continue
		}
		clean[i] = clampInterval(repairInterval(kept, artifact, i))
		res.InterpolatedCount++
	}
	res.Clean = clean

	// Stage 4: validity gate and quality grade.
	var totalSeconds float64
	for _, v := range clean {
		totalSeconds += v / 1000.0
	}
	res.Valid = totalSeconds >= MinValidDurationSeconds

	untouched := len(raw) - res.EctopicCount - res.InterpolatedCount
	res.QualityScore = float64(untouched) / float64(len(raw)) * 100.0
	res.Quality = gradeQuality(res.QualityScore)

	if !res.Valid {
		log.Printf("hrv: processed batch below validity gate (%.1fs clean of %.0fs required)",
			totalSeconds, MinValidDurationSeconds)
	}
	return res
}

// repairInterval produces a replacement for the artifact at index i using the
// nearest valid neighbours. With two valid neighbours on each side it
// evaluates the Catmull-Rom spline at the artifact position; with one
// neighbour per side it falls back to linear interpolation; at a sequence
// edge it copies the nearest valid neighbour.
func repairInterval(vals []float64, artifact []bool, i int) float64 {
	left := validNeighbours(vals, artifact, i, -1, 2)
	right := validNeighbours(vals, artifact, i, +1, 2)

	switch {
	case len(left) >= 2 && len(right) >= 2:
		// Catmull-Rom at the midpoint between the inner neighbours.
		p0, p1 := left[1], left[0]
		p2, p3 := right[0], right[1]
		return (-p0 + 9.0*p1 + 9.0*p2 - p3) / 16.0
	case len(left) >= 1 && len(right) >= 1:
		return (left[0] + right[0]) / 2.0
	case len(left) >= 1:
		return left[0]
	case len(right) >= 1:
		return right[0]
	default:
		// Every sample flagged; nothing usable to repair from.
		return vals[i]
	}
}

// validNeighbours collects up to max valid (non-artifact) values walking from
// i in the given direction. Result is ordered nearest-first.
func validNeighbours(vals []float64, artifact []bool, i, dir, max int) []float64 {
	out := make([]float64, 0, max)
	for j := i + dir; j >= 0 && j < len(vals) && len(out) < max; j += dir {
		if !artifact[j] {
			out = append(out, vals[j])
		}
	}
	return out
}

func clampInterval(v float64) float64 {
	if v < MinIntervalMs {
		return MinIntervalMs
	}
	if v > MaxIntervalMs {
		return MaxIntervalMs
	}
	return v
}

func gradeQuality(score float64) Quality {
	switch {
	case score >= 95:
		return QualityExcellent
	case score >= 85:
		return QualityGood
	case score >= 70:
		return QualityAcceptable
	case score >= 50:
		return QualityPoor
	default:
		return QualityUnusable
	}
}
