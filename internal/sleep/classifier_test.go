package sleep

import "testing"

func TestClassifyEpoch(t *testing.T) {
	base := Baseline{HeartRate: 70, RMSSD: 40, HRStdDev: 4}

	testCases := []struct {
		name  string
		epoch Epoch
		want  Phase
	}{
		{
			name:  "deep_low_hr_high_hrv_stable",
			epoch: Epoch{AverageHR: 60, AverageRMSSD: 50, HRStdDev: 2},
			want:  PhaseDeep,
		},
		{
			name:  "rem_near_baseline_unstable",
			epoch: Epoch{AverageHR: 70, AverageRMSSD: 40, HRStdDev: 4},
			want:  PhaseREM,
		},
		{
			name:  "light_slightly_low_hr_preserved_hrv",
			epoch: Epoch{AverageHR: 66, AverageRMSSD: 37, HRStdDev: 2},
			want:  PhaseLight,
		},
		{
			name:  "awake_elevated_hr",
			epoch: Epoch{AverageHR: 80, AverageRMSSD: 35, HRStdDev: 6},
			want:  PhaseAwake,
		},
		{
			name:  "awake_suppressed_hrv",
			epoch: Epoch{AverageHR: 72, AverageRMSSD: 20, HRStdDev: 2},
			want:  PhaseAwake,
		},
		{
			// Deep criteria except HR too unstable; falls through to light.
			name:  "unstable_low_hr_falls_to_light",
			epoch: Epoch{AverageHR: 60, AverageRMSSD: 50, HRStdDev: 5},
			want:  PhaseLight,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyEpoch(tc.epoch, base); got != tc.want {
				t.Errorf("ClassifyEpoch() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestClassifyEpochRuleOrder(t *testing.T) {
	// An epoch satisfying the deep rule also satisfies light; deep must win.
	base := Baseline{HeartRate: 70, RMSSD: 40, HRStdDev: 4}
	e := Epoch{AverageHR: 62, AverageRMSSD: 48, HRStdDev: 1}
	if got := ClassifyEpoch(e, base); got != PhaseDeep {
		t.Errorf("first-match-wins violated: got %q, want %q", got, PhaseDeep)
	}
}

func TestClassifyEpochZeroBaselineFallsBack(t *testing.T) {
	// With the 70/40 defaults this epoch is deep; a zero baseline must not
	// produce NaN ratios or panic.
	e := Epoch{AverageHR: 60, AverageRMSSD: 50, HRStdDev: 2}
	if got := ClassifyEpoch(e, Baseline{}); got != PhaseDeep {
		t.Errorf("ClassifyEpoch with zero baseline = %q, want %q", got, PhaseDeep)
	}
}

func TestSessionBaseline(t *testing.T) {
	epochs := make([]Epoch, 14)
	for i := range epochs {
		epochs[i] = Epoch{AverageHR: 68 + float64(i), AverageRMSSD: 42}
	}

	b := SessionBaseline(epochs)
	// Only the first ten epochs contribute: HR 68..77 averages 72.5.
	if b.HeartRate != 72.5 {
		t.Errorf("HeartRate = %v, want 72.5", b.HeartRate)
	}
	if b.RMSSD != 42 {
		t.Errorf("RMSSD = %v, want 42", b.RMSSD)
	}
}

func TestSessionBaselineSanityFloors(t *testing.T) {
	testCases := []struct {
		name      string
		epochs    []Epoch
		wantHR    float64
		wantRMSSD float64
	}{
		{"empty", nil, DefaultBaselineHR, DefaultBaselineRMSSD},
		{
			"implausible_hr",
			[]Epoch{{AverageHR: 30, AverageRMSSD: 45}},
			DefaultBaselineHR, 45,
		},
		{
			"implausible_rmssd",
			[]Epoch{{AverageHR: 72, AverageRMSSD: 5}},
			72, DefaultBaselineRMSSD,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			b := SessionBaseline(tc.epochs)
			if b.HeartRate != tc.wantHR || b.RMSSD != tc.wantRMSSD {
				t.Errorf("SessionBaseline() = %+v, want HR=%v RMSSD=%v", b, tc.wantHR, tc.wantRMSSD)
			}
		})
	}
}
