package hrv

import (
	"math"
	"testing"
	"time"

	"github.com/nightbeat-data/pulse.report/internal/timeutil"
)

func TestTimeDomainConstantSequence(t *testing.T) {
	intervals := make([]float64, 50)
	for i := range intervals {
		intervals[i] = 800
	}

	rmssd, ok := RMSSD(intervals)
	if !ok || rmssd != 0 {
		t.Errorf("RMSSD = %v (ok=%v), want exactly 0", rmssd, ok)
	}
	sdnn, ok := SDNN(intervals)
	if !ok || sdnn != 0 {
		t.Errorf("SDNN = %v (ok=%v), want exactly 0", sdnn, ok)
	}
	pnn50, ok := PNN50(intervals)
	if !ok || pnn50 != 0 {
		t.Errorf("PNN50 = %v (ok=%v), want exactly 0", pnn50, ok)
	}
}

func TestTimeDomainKnownValues(t *testing.T) {
	// Alternating 800/860: every successive difference is +-60ms.
	intervals := []float64{800, 860, 800, 860, 800, 860}

	rmssd, ok := RMSSD(intervals)
	if !ok {
		t.Fatal("RMSSD returned no result")
	}
	if math.Abs(rmssd-60) > 1e-9 {
		t.Errorf("RMSSD = %v, want 60", rmssd)
	}

	pnn50, ok := PNN50(intervals)
	if !ok {
		t.Fatal("PNN50 returned no result")
	}
	if pnn50 != 100 {
		t.Errorf("PNN50 = %v, want 100 (all diffs exceed 50ms)", pnn50)
	}
}

func TestTimeDomainDeterminism(t *testing.T) {
	intervals := []float64{812, 795, 803, 821, 790, 808, 799, 815}
	first, ok1 := ComputeTimeDomain(intervals)
	second, ok2 := ComputeTimeDomain(intervals)
	if !ok1 || !ok2 {
		t.Fatal("ComputeTimeDomain returned no result")
	}
	if first != second {
		t.Errorf("repeated computation differs: %+v vs %+v", first, second)
	}
}

func TestTimeDomainInsufficientData(t *testing.T) {
	for _, intervals := range [][]float64{nil, {800}} {
		if _, ok := RMSSD(intervals); ok {
			t.Errorf("RMSSD(%v) produced a result from insufficient data", intervals)
		}
		if _, ok := SDNN(intervals); ok {
			t.Errorf("SDNN(%v) produced a result from insufficient data", intervals)
		}
		if _, ok := PNN50(intervals); ok {
			t.Errorf("PNN50(%v) produced a result from insufficient data", intervals)
		}
	}
}

func TestRollingWindowMinIntervals(t *testing.T) {
	clock := timeutil.NewMockClock(time.Date(2025, 3, 1, 23, 0, 0, 0, time.UTC))
	w := NewRollingWindow(DefaultRollingWindowConfig(), clock)

	for i := 0; i < 29; i++ {
		w.Add(clock.Now(), 800)
		clock.Advance(time.Second)
	}
	if _, ok := w.Metrics(); ok {
		t.Error("29 intervals produced a result; 30 required")
	}

	w.Add(clock.Now(), 800)
	if _, ok := w.Metrics(); !ok {
		t.Error("30 intervals inside the window produced no result")
	}
}

func TestRollingWindowRetentionTrim(t *testing.T) {
	clock := timeutil.NewMockClock(time.Date(2025, 3, 1, 23, 0, 0, 0, time.UTC))
	cfg := DefaultRollingWindowConfig()
	w := NewRollingWindow(cfg, clock)

	w.Add(clock.Now(), 800)
	clock.Advance(cfg.Retention + time.Minute)
	w.Add(clock.Now(), 810) // insert triggers the trim

	if got := w.Len(); got != 1 {
		t.Errorf("Len() = %d after retention expiry, want 1", got)
	}
}

func TestRollingWindowComputationWindow(t *testing.T) {
	clock := timeutil.NewMockClock(time.Date(2025, 3, 1, 23, 0, 0, 0, time.UTC))
	cfg := DefaultRollingWindowConfig()
	w := NewRollingWindow(cfg, clock)

	// 40 old intervals just outside the 5min computation window but inside
	// retention, then 10 recent ones: not enough inside the window.
	for i := 0; i < 40; i++ {
		w.Add(clock.Now(), 800)
		clock.Advance(time.Second)
	}
	clock.Advance(cfg.Window)
	for i := 0; i < 10; i++ {
		w.Add(clock.Now(), 800)
		clock.Advance(time.Second)
	}

	if got := len(w.WindowIntervals()); got != 10 {
		t.Errorf("WindowIntervals() returned %d intervals, want 10", got)
	}
	if _, ok := w.Metrics(); ok {
		t.Error("metrics computed from fewer than MinIntervals inside the window")
	}
}
