package sleep

import (
	"log"
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Epoch aggregation constants.
const (
	// DefaultEpochDuration is the nominal aggregation window.
	DefaultEpochDuration = 30 * time.Second

	// DefaultMinEpochSamples is the minimum number of accumulated samples
	// for an epoch to be emitted; sparser epochs are discarded.
	DefaultMinEpochSamples = 10
)

// Phase is the classified sleep stage of an epoch.
type Phase string

const (
	PhaseUnknown Phase = ""
	PhaseAwake   Phase = "awake"
	PhaseLight   Phase = "light"
	PhaseDeep    Phase = "deep"
	PhaseREM     Phase = "rem"
)

// Epoch is a finalized fixed-duration aggregation window. Immutable after
// creation; WithPhase produces an annotated copy rather than mutating.
type Epoch struct {
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	AverageHR    float64   `json:"average_hr"`
	AverageRMSSD float64   `json:"average_rmssd"` // 0 when no RMSSD samples arrived
	HRStdDev     float64   `json:"hr_std_dev"`    // population std-dev of HR
	SampleCount  int       `json:"sample_count"`
	Phase        Phase     `json:"phase,omitempty"`
}

// WithPhase returns a copy of the epoch annotated with the given phase.
func (e Epoch) WithPhase(p Phase) Epoch {
	e.Phase = p
	return e
}

// Sample is one live reading fed to the aggregator, ~1/s while connected.
type Sample struct {
	HeartRate float64
	RMSSD     float64 // instantaneous RMSSD, valid only when HasRMSSD
	HasRMSSD  bool
	Timestamp time.Time
}

// EpochBuilderConfig holds aggregation parameters.
type EpochBuilderConfig struct {
	Duration   time.Duration // epoch length
	MinSamples int           // minimum samples for emission
}

// DefaultEpochBuilderConfig returns the standard 30s / 10-sample configuration.
func DefaultEpochBuilderConfig() EpochBuilderConfig {
	return EpochBuilderConfig{
		Duration:   DefaultEpochDuration,
		MinSamples: DefaultMinEpochSamples,
	}
}

// EpochBuilder accumulates live samples into contiguous, non-overlapping
// epochs. The epoch timer starts on the first sample; once elapsed time
// reaches the configured duration the epoch is finalized and emitted through
// the callback, and the next epoch begins at the completion timestamp.
// Safe for concurrent use; callbacks run on the caller's goroutine so epoch
// emission preserves sample order.
type EpochBuilder struct {
	mu            sync.Mutex
	cfg           EpochBuilderConfig
	epochCallback func(Epoch)

	epochStart time.Time
	hr         []float64
	rmssd      []float64

	epochCount     int64
	discardedCount int64
}

// NewEpochBuilder creates an aggregator. The callback may be nil when the
// caller drains epochs via the Flush return value only.
func NewEpochBuilder(cfg EpochBuilderConfig, callback func(Epoch)) *EpochBuilder {
	if cfg.Duration <= 0 {
		cfg.Duration = DefaultEpochDuration
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = DefaultMinEpochSamples
	}
	return &EpochBuilder{cfg: cfg, epochCallback: callback}
}

// AddSample feeds one reading into the current epoch, finalizing first if
// the epoch window has elapsed. The triggering sample belongs to the next
// epoch.
func (b *EpochBuilder) AddSample(s Sample) {
	b.mu.Lock()
	var done *Epoch
	if b.epochStart.IsZero() {
		b.epochStart = s.Timestamp
	} else if s.Timestamp.Sub(b.epochStart) >= b.cfg.Duration {
		done = b.finalizeLocked(s.Timestamp)
	}
	b.hr = append(b.hr, s.HeartRate)
	if s.HasRMSSD {
		b.rmssd = append(b.rmssd, s.RMSSD)
	}
	b.mu.Unlock()

	if done != nil && b.epochCallback != nil {
		b.epochCallback(*done)
	}
}

// Flush forces early completion of the in-progress epoch (session end).
// Returns the epoch and true when it met the minimum sample count.
func (b *EpochBuilder) Flush(now time.Time) (Epoch, bool) {
	b.mu.Lock()
	if b.epochStart.IsZero() && len(b.hr) == 0 {
		b.mu.Unlock()
		return Epoch{}, false
	}
	done := b.finalizeLocked(now)
	b.epochStart = time.Time{}
	b.mu.Unlock()

	if done == nil {
		return Epoch{}, false
	}
	if b.epochCallback != nil {
		b.epochCallback(*done)
	}
	return *done, true
}

// Counts reports emitted and discarded epoch totals.
func (b *EpochBuilder) Counts() (emitted, discarded int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.epochCount, b.discardedCount
}

// finalizeLocked closes the current epoch at end, resets accumulation state
// and starts the next epoch at end. Returns nil when the epoch was discarded
// for having too few samples.
func (b *EpochBuilder) finalizeLocked(end time.Time) *Epoch {
	count := len(b.hr)
	start := b.epochStart

	var avgRMSSD float64
	if len(b.rmssd) > 0 {
		avgRMSSD = stat.Mean(b.rmssd, nil)
	}
	var epoch *Epoch
	if count >= b.cfg.MinSamples {
		epoch = &Epoch{
			StartTime:    start,
			EndTime:      end,
			AverageHR:    stat.Mean(b.hr, nil),
			AverageRMSSD: avgRMSSD,
			HRStdDev:     popStdDev(b.hr),
			SampleCount:  count,
		}
		b.epochCount++
	} else {
		b.discardedCount++
		log.Printf("sleep: discarded epoch starting %s with %d samples (%d required)",
			start.Format(time.RFC3339), count, b.cfg.MinSamples)
	}

	b.hr = b.hr[:0]
	b.rmssd = b.rmssd[:0]
	b.epochStart = end
	return epoch
}

// popStdDev is the population standard deviation (N denominator).
func popStdDev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	mean := stat.Mean(xs, nil)
	var sumSq float64
	for _, x := range xs {
		d := x - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(xs)))
}
