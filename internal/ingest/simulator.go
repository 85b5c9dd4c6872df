package ingest

import (
	"math"
	"math/rand"
	"time"
)

// Simulator produces a deterministic synthetic heart-rate stream for dev
// mode and replay tests. It models a wearer drifting from an awake resting
// state into sleep: heart rate eases toward SleepHR while beat-to-beat
// variability widens, with seeded gaussian noise on top.
type Simulator struct {
	AwakeHR     float64       // resting heart rate at t=0, bpm
	SleepHR     float64       // asymptotic sleeping heart rate, bpm
	SettleAfter time.Duration // when the drift toward sleep begins
	SettleOver  time.Duration // how long the drift takes

	rng     *rand.Rand
	start   time.Time
	elapsed time.Duration
	phase   float64
}

// NewSimulator creates a simulator with the given seed. Identical seeds
// produce identical streams.
func NewSimulator(start time.Time, seed int64) *Simulator {
	return &Simulator{
		AwakeHR:     70,
		SleepHR:     57,
		SettleAfter: 45 * time.Minute,
		SettleOver:  20 * time.Minute,
		rng:         rand.New(rand.NewSource(seed)),
		start:       start,
	}
}

// Next advances one second of simulated time and returns the packet for it.
func (s *Simulator) Next() Packet {
	ts := s.start.Add(s.elapsed)
	s.elapsed += time.Second

	hr := s.currentHR()
	meanInterval := 60000.0 / hr

	// Respiratory sinus arrhythmia at ~0.25Hz plus noise; the modulation
	// depth grows as the wearer settles, mirroring rising RMSSD.
	depth := 15.0 + 25.0*s.settleFraction()
	var intervals []float64
	budget := 1000.0 // one second of beats per packet
	for budget > 0 {
		s.phase += 2 * math.Pi * 0.25 * meanInterval / 1000.0
		iv := meanInterval + depth*math.Sin(s.phase) + s.rng.NormFloat64()*4
		intervals = append(intervals, iv)
		budget -= iv
	}

	return Packet{
		HeartRate:   int(math.Round(hr)),
		RRIntervals: intervals,
		Timestamp:   ts,
	}
}

func (s *Simulator) currentHR() float64 {
	f := s.settleFraction()
	return s.AwakeHR + (s.SleepHR-s.AwakeHR)*f + s.rng.NormFloat64()*0.6
}

// settleFraction is 0 while awake, ramping to 1 across the settle window.
func (s *Simulator) settleFraction() float64 {
	past := s.elapsed - s.SettleAfter
	if past <= 0 {
		return 0
	}
	if past >= s.SettleOver {
		return 1
	}
	return float64(past) / float64(s.SettleOver)
}
