package hrv

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// steadyIntervals returns n intervals around base with a gentle alternation
// well inside the artifact threshold.
func steadyIntervals(n int, base float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = base
		if i%2 == 1 {
			out[i] = base + 20
		}
	}
	return out
}

func TestProcessIntervalsCleanPassthrough(t *testing.T) {
	raw := steadyIntervals(200, 800)
	res := ProcessIntervals(raw)

	if res.EctopicCount != 0 || res.ArtifactCount != 0 || res.InterpolatedCount != 0 {
		t.Errorf("clean input produced corrections: ectopic=%d artifact=%d interpolated=%d",
			res.EctopicCount, res.ArtifactCount, res.InterpolatedCount)
	}
	if diff := cmp.Diff(raw, res.Clean); diff != "" {
		t.Errorf("clean sequence changed (-want +got):\n%s", diff)
	}
	if !res.Valid {
		t.Error("200 intervals of ~800ms should pass the 120s validity gate")
	}
	if res.Quality != QualityExcellent {
		t.Errorf("Quality = %q, want %q (score %.1f)", res.Quality, QualityExcellent, res.QualityScore)
	}
}

func TestProcessIntervalsSingleEctopic(t *testing.T) {
	raw := steadyIntervals(200, 800)
	raw[100] = 5000

	res := ProcessIntervals(raw)
	if res.EctopicCount != 1 {
		t.Errorf("EctopicCount = %d, want 1", res.EctopicCount)
	}
	if len(res.Clean) != 199 {
		t.Errorf("len(Clean) = %d, want 199", len(res.Clean))
	}
}

func TestProcessIntervalsSingleArtifact(t *testing.T) {
	raw := make([]float64, 100)
	for i := range raw {
		raw[i] = 800
	}
	raw[50] = 1120 // +40% jump, still inside physiological bounds

	res := ProcessIntervals(raw)
	if res.ArtifactCount != 1 || res.InterpolatedCount != 1 {
		t.Fatalf("artifact=%d interpolated=%d, want 1/1", res.ArtifactCount, res.InterpolatedCount)
	}
	if res.EctopicCount != 0 {
		t.Errorf("EctopicCount = %d, want 0", res.EctopicCount)
	}
	got := res.Clean[50]
	if got < MinIntervalMs || got > MaxIntervalMs {
		t.Errorf("interpolated value %.1f outside [%v, %v]", got, MinIntervalMs, MaxIntervalMs)
	}
	// Flat neighbourhood: Catmull-Rom must reproduce the plateau.
	if math.Abs(got-800) > 1e-9 {
		t.Errorf("interpolated value = %.3f, want 800", got)
	}
}

func TestProcessIntervalsArtifactAtEdge(t *testing.T) {
	raw := []float64{800, 810, 805, 800, 810, 805, 800, 810, 805, 1100}
	res := ProcessIntervals(raw)
	if res.InterpolatedCount != 1 {
		t.Fatalf("InterpolatedCount = %d, want 1", res.InterpolatedCount)
	}
	last := res.Clean[len(res.Clean)-1]
	if last < MinIntervalMs || last > MaxIntervalMs {
		t.Errorf("edge repair %.1f outside physiological bounds", last)
	}
}

func TestProcessIntervalsValidityGate(t *testing.T) {
	testCases := []struct {
		name  string
		count int
		valid bool
	}{
		{"below_120s", 100, false}, // 100 * 0.8s = 80s
		{"above_120s", 200, true},  // 200 * 0.8s = 160s
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			res := ProcessIntervals(steadyIntervals(tc.count, 800))
			if res.Valid != tc.valid {
				t.Errorf("Valid = %v, want %v", res.Valid, tc.valid)
			}
		})
	}
}

func TestProcessIntervalsEmptyInput(t *testing.T) {
	res := ProcessIntervals(nil)
	if res.Valid {
		t.Error("empty input must be invalid")
	}
	if res.Quality != QualityUnusable {
		t.Errorf("Quality = %q, want %q", res.Quality, QualityUnusable)
	}
	if len(res.Clean) != 0 {
		t.Errorf("len(Clean) = %d, want 0", len(res.Clean))
	}
}

func TestGradeQuality(t *testing.T) {
	testCases := []struct {
		score float64
		want  Quality
	}{
		{100, QualityExcellent},
		{95, QualityExcellent},
		{94.9, QualityGood},
		{85, QualityGood},
		{84.9, QualityAcceptable},
		{70, QualityAcceptable},
		{69.9, QualityPoor},
		{50, QualityPoor},
		{49.9, QualityUnusable},
		{0, QualityUnusable},
	}
	for _, tc := range testCases {
		if got := gradeQuality(tc.score); got != tc.want {
			t.Errorf("gradeQuality(%.1f) = %q, want %q", tc.score, got, tc.want)
		}
	}
}
