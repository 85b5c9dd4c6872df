package sleep

import (
	"log"
	"sync"
	"time"
)

// State represents the detector's position in the sleep cycle.
type State string

const (
	StateAwake    State = "awake"    // default; accumulating onset evidence
	StatePreSleep State = "preSleep" // sustained high probability, unconfirmed
	StateSleeping State = "sleeping" // confirmed sleep
	StateWaking   State = "waking"   // sustained low probability, unconfirmed
)

// Probability component weights and ramp endpoints. Each component is
// linearly interpolated between 0 and 1 across its ratio band relative to
// the adaptive pre-bed baseline.
const (
	hrDropWeight    = 0.40
	rmssdRiseWeight = 0.30
	stabilityWeight = 0.30

	hrRatioFull = 0.85 // HR ratio at or below this scores 1.0
	hrRatioZero = 0.95 // HR ratio at or above this scores 0.0

	rmssdRatioFull = 1.15 // RMSSD ratio at or above this scores 1.0
	rmssdRatioZero = 1.00 // RMSSD ratio at or below this scores 0.0

	stabilityRatioFull = 0.5 // HR-stddev ratio at or below this scores 1.0
	stabilityRatioZero = 1.0 // HR-stddev ratio at or above this scores 0.0

	// noBaselineConfidence scales the probability while no adaptive
	// baseline exists and the built-in defaults stand in.
	noBaselineConfidence = 0.75

	// revertSamples is how many consecutive high-probability samples in
	// waking send the machine back to sleeping. Deliberately much shorter
	// than the wake confirmation run: ending a sleep session prematurely is
	// the costlier mistake.
	revertSamples = 3

	// samplesPerMinute at the 30s update cadence.
	samplesPerMinute = 2
)

// DetectorConfig holds hysteresis thresholds. Minute values convert to
// sample counts at the 30s update cadence.
type DetectorConfig struct {
	OnsetMinutes       int // sustained high probability before preSleep
	ConfirmMinutes     int // further sustained high probability before sleeping
	WakeOnsetMinutes   int // sustained low probability before waking
	WakeConfirmMinutes int // further sustained low probability before awake

	OnsetProbability   float64 // reading counts as decisively high at/above
	WakeProbability    float64 // reading counts as decisively low below
	ConfirmProbability float64 // waking->sleeping revert threshold

	// Circadian gate: updates outside [WindowStartHour, WindowEndHour)
	// (wrapping midnight) are ignored unless sleep tracking has started.
	UseCircadianWindow bool
	WindowStartHour    int
	WindowEndHour      int
}

// DefaultDetectorConfig returns the standard detection thresholds.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		OnsetMinutes:       5,
		ConfirmMinutes:     10,
		WakeOnsetMinutes:   3,
		WakeConfirmMinutes: 5,
		OnsetProbability:   0.60,
		WakeProbability:    0.30,
		ConfirmProbability: 0.60,
		UseCircadianWindow: true,
		WindowStartHour:    18,
		WindowEndHour:      10,
	}
}

// StateChange is a discrete transition event.
type StateChange struct {
	From State
	To   State
	At   time.Time
}

// DetectorCallbacks are the consumer hooks. All callbacks fire on the
// goroutine driving Update, after the transition has been applied.
type DetectorCallbacks struct {
	OnStateChange  func(StateChange)
	OnSleepStart   func(onset time.Time) // estimated onset, backdated
	OnWakeDetected func(at time.Time)
}

// Detector is the online hysteresis sleep state machine. It consumes one
// epoch-level reading per 30s and requires sustained evidence on both the
// sleep and wake side before committing to a transition, so a cough or a
// brief movement cannot flap the detected state.
type Detector struct {
	mu        sync.Mutex
	cfg       DetectorConfig
	callbacks DetectorCallbacks
	baseline  *BaselineEstimator

	state            State
	sleepProbability float64
	sleepStart       time.Time
	consecutiveHigh  int
	consecutiveLow   int
	revertStreak     int
}

// NewDetector creates a detector in the awake state. A nil estimator gets a
// fresh one with the default window.
func NewDetector(cfg DetectorConfig, baseline *BaselineEstimator, callbacks DetectorCallbacks) *Detector {
	if baseline == nil {
		baseline = NewBaselineEstimator(0)
	}
	return &Detector{
		cfg:       cfg,
		callbacks: callbacks,
		baseline:  baseline,
		state:     StateAwake,
	}
}

// State returns the current detection state.
func (d *Detector) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Probability returns the most recent sleep probability.
func (d *Detector) Probability() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sleepProbability
}

// SleepStart returns the estimated sleep onset, zero unless sleeping/waking.
func (d *Detector) SleepStart() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sleepStart
}

// Baseline exposes the adaptive baseline estimator feeding this detector.
func (d *Detector) Baseline() *BaselineEstimator {
	return d.baseline
}

// Update consumes one epoch-level reading. Updates must arrive in timestamp
// order; concurrent callers are serialized.
func (d *Detector) Update(e Epoch) {
	d.mu.Lock()

	if d.cfg.UseCircadianWindow && !d.trackingStartedLocked() && !inWindow(e.EndTime, d.cfg.WindowStartHour, d.cfg.WindowEndHour) {
		d.mu.Unlock()
		return
	}

	// While awake, epochs double as baseline material.
	if d.state == StateAwake || d.state == StatePreSleep {
		d.baseline.AddSample(e.AverageHR, e.AverageRMSSD, e.HRStdDev, e.EndTime)
	}

	p := d.scoreLocked(e)
	d.sleepProbability = p

	switch {
	case p >= d.cfg.OnsetProbability:
		d.consecutiveHigh++
		d.consecutiveLow = 0
	case p < d.cfg.WakeProbability:
		d.consecutiveLow++
		d.consecutiveHigh = 0
	default:
		d.consecutiveHigh = 0
		d.consecutiveLow = 0
	}

	var fired []func()
	switch d.state {
	case StateAwake:
		if d.consecutiveHigh >= d.cfg.OnsetMinutes*samplesPerMinute {
			fired = d.transitionLocked(StatePreSleep, e.EndTime)
		}
	case StatePreSleep:
		if d.consecutiveHigh >= d.cfg.ConfirmMinutes*samplesPerMinute {
			onset := e.EndTime.Add(-time.Duration(d.cfg.ConfirmMinutes) * time.Minute)
			d.sleepStart = onset
			fired = d.transitionLocked(StateSleeping, e.EndTime)
			if cb := d.callbacks.OnSleepStart; cb != nil {
				fired = append(fired, func() { cb(onset) })
			}
		} else if d.consecutiveLow >= d.cfg.WakeOnsetMinutes*samplesPerMinute {
			// False alarm: physiology never settled.
			fired = d.transitionLocked(StateAwake, e.EndTime)
		}
	case StateSleeping:
		if d.consecutiveLow >= d.cfg.WakeOnsetMinutes*samplesPerMinute {
			fired = d.transitionLocked(StateWaking, e.EndTime)
		}
	case StateWaking:
		if p >= d.cfg.ConfirmProbability {
			d.revertStreak++
		} else {
			d.revertStreak = 0
		}
		if d.revertStreak >= revertSamples {
			// Short spike back above the confirm threshold: the wearer is
			// still asleep, keep the session running.
			fired = d.transitionLocked(StateSleeping, e.EndTime)
		} else if d.consecutiveLow >= d.cfg.WakeConfirmMinutes*samplesPerMinute {
			wakeAt := e.EndTime
			fired = d.transitionLocked(StateAwake, e.EndTime)
			if cb := d.callbacks.OnWakeDetected; cb != nil {
				fired = append(fired, func() { cb(wakeAt) })
			}
		}
	}
	d.mu.Unlock()

	for _, f := range fired {
		f()
	}
}

// ForceSleep manually overrides the machine into sleeping, bypassing
// probability evaluation.
func (d *Detector) ForceSleep(at time.Time) {
	d.mu.Lock()
	alreadySleeping := d.state == StateSleeping
	if !alreadySleeping {
		d.sleepStart = at
	}
	fired := d.transitionLocked(StateSleeping, at)
	if cb := d.callbacks.OnSleepStart; cb != nil && !alreadySleeping {
		fired = append(fired, func() { cb(at) })
	}
	d.mu.Unlock()
	for _, f := range fired {
		f()
	}
}

// ForceAwake manually overrides the machine into awake.
func (d *Detector) ForceAwake(at time.Time) {
	d.mu.Lock()
	wasAsleep := d.trackingStartedLocked()
	fired := d.transitionLocked(StateAwake, at)
	if wasAsleep {
		if cb := d.callbacks.OnWakeDetected; cb != nil {
			fired = append(fired, func() { cb(at) })
		}
	}
	d.mu.Unlock()
	for _, f := range fired {
		f()
	}
}

// RecalculateBaseline triggers an explicit baseline refresh from the
// trailing pre-sleep window ending at now.
func (d *Detector) RecalculateBaseline(now time.Time) (Baseline, bool) {
	return d.baseline.Recalculate(now)
}

// transitionLocked applies a state change, resets the hysteresis counters
// and returns the callbacks to fire once the lock is released. No-op when
// already in the target state.
func (d *Detector) transitionLocked(to State, at time.Time) []func() {
	if d.state == to {
		return nil
	}
	change := StateChange{From: d.state, To: to, At: at}
	d.state = to
	d.consecutiveHigh = 0
	d.consecutiveLow = 0
	d.revertStreak = 0
	if to == StateAwake {
		d.sleepStart = time.Time{}
	}
	log.Printf("sleep: state %s -> %s at %s", change.From, change.To, at.Format(time.RFC3339))

	var fired []func()
	if cb := d.callbacks.OnStateChange; cb != nil {
		fired = append(fired, func() { cb(change) })
	}
	return fired
}

// trackingStartedLocked reports whether a sleep session is in progress;
// circadian gating and wake semantics both key off it.
func (d *Detector) trackingStartedLocked() bool {
	return d.state == StateSleeping || d.state == StateWaking
}

// scoreLocked computes the weighted sleep probability for one reading.
func (d *Detector) scoreLocked(e Epoch) float64 {
	b, ok := d.baseline.Current()
	if !ok || b.HeartRate <= 0 || b.RMSSD <= 0 || b.HRStdDev <= 0 {
		b = DefaultBaseline()
	}

	hrScore := rampDown(e.AverageHR/b.HeartRate, hrRatioFull, hrRatioZero)
	rmssdScore := rampUp(e.AverageRMSSD/b.RMSSD, rmssdRatioZero, rmssdRatioFull)
	stabilityScore := rampDown(e.HRStdDev/b.HRStdDev, stabilityRatioFull, stabilityRatioZero)

	p := hrDropWeight*hrScore + rmssdRiseWeight*rmssdScore + stabilityWeight*stabilityScore
	if !ok {
		p *= noBaselineConfidence
	}
	return p
}

// rampDown maps ratio <= full to 1.0 and ratio >= zero to 0.0, linear in
// between.
func rampDown(ratio, full, zero float64) float64 {
	if ratio <= full {
		return 1.0
	}
	if ratio >= zero {
		return 0.0
	}
	return (zero - ratio) / (zero - full)
}

// rampUp maps ratio <= zero to 0.0 and ratio >= full to 1.0, linear in
// between.
func rampUp(ratio, zero, full float64) float64 {
	if ratio >= full {
		return 1.0
	}
	if ratio <= zero {
		return 0.0
	}
	return (ratio - zero) / (full - zero)
}

// inWindow reports whether t's local hour falls inside [startHour, endHour),
// wrapping midnight when startHour > endHour.
func inWindow(t time.Time, startHour, endHour int) bool {
	h := t.Hour()
	if startHour == endHour {
		return true
	}
	if startHour < endHour {
		return h >= startHour && h < endHour
	}
	return h >= startHour || h < endHour
}
