package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nightbeat-data/pulse.report/internal/hrv"
	"github.com/nightbeat-data/pulse.report/internal/sleep"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "pulse_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSessionLifecycle(t *testing.T) {
	db := newTestDB(t)
	start := time.Date(2025, 3, 1, 23, 0, 0, 0, time.UTC)

	id, err := db.BeginSession(start)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	require.NoError(t, db.SetSessionOnset(id, start.Add(-10*time.Minute)))
	require.NoError(t, db.EndSession(id, start.Add(7*time.Hour)))

	var onset, end time.Time
	err = db.QueryRow("SELECT sleep_onset, end_time FROM sessions WHERE session_id = ?", id).Scan(&onset, &end)
	require.NoError(t, err)
	assert.True(t, onset.Equal(start.Add(-10*time.Minute)))
	assert.True(t, end.Equal(start.Add(7*time.Hour)))
}

func TestEpochRoundTrip(t *testing.T) {
	db := newTestDB(t)
	start := time.Date(2025, 3, 1, 23, 0, 0, 0, time.UTC)
	id, err := db.BeginSession(start)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		e := sleep.Epoch{
			StartTime:    start.Add(time.Duration(i) * 30 * time.Second),
			EndTime:      start.Add(time.Duration(i+1) * 30 * time.Second),
			AverageHR:    60 + float64(i),
			AverageRMSSD: 45,
			HRStdDev:     2.5,
			SampleCount:  28,
			Phase:        sleep.PhaseLight,
		}
		require.NoError(t, db.RecordEpoch(id, e))
	}

	epochs, err := db.SessionEpochs(id)
	require.NoError(t, err)
	require.Len(t, epochs, 3)
	assert.Equal(t, 60.0, epochs[0].AverageHR)
	assert.Equal(t, 62.0, epochs[2].AverageHR)
	assert.Equal(t, sleep.PhaseLight, epochs[1].Phase)
	assert.Equal(t, 28, epochs[0].SampleCount)
}

func TestRecentEpochsChronological(t *testing.T) {
	db := newTestDB(t)
	start := time.Date(2025, 3, 1, 23, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		e := sleep.Epoch{
			StartTime: start.Add(time.Duration(i) * 30 * time.Second),
			EndTime:   start.Add(time.Duration(i+1) * 30 * time.Second),
			AverageHR: float64(60 + i),
		}
		require.NoError(t, db.RecordEpoch("", e))
	}

	epochs, err := db.RecentEpochs(3)
	require.NoError(t, err)
	require.Len(t, epochs, 3)
	assert.Equal(t, 62.0, epochs[0].AverageHR, "oldest of the recent three first")
	assert.Equal(t, 64.0, epochs[2].AverageHR)
}

func TestSnapshotRoundTrip(t *testing.T) {
	db := newTestDB(t)
	at := time.Date(2025, 3, 1, 23, 30, 0, 0, time.UTC)

	s := Snapshot{
		Timestamp:  at,
		TimeDomain: hrv.TimeDomainMetrics{RMSSD: 48.5, SDNN: 52.1, PNN50: 31.0},
		Frequency:  &hrv.FrequencyDomainMetrics{LFPower: 820, HFPower: 1100, LFHFRatio: 0.745},
		DFA:        &hrv.DFAResult{Alpha1: 0.93},
		Quality:    hrv.QualityGood,
	}
	require.NoError(t, db.RecordSnapshot(s))

	got, ok, err := db.LatestSnapshot()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 48.5, got.TimeDomain.RMSSD)
	require.NotNil(t, got.Frequency)
	assert.Equal(t, 0.745, got.Frequency.LFHFRatio)
	require.NotNil(t, got.DFA)
	assert.Equal(t, 0.93, got.DFA.Alpha1)
	assert.Equal(t, hrv.QualityGood, got.Quality)
}

func TestSnapshotWithoutSpectral(t *testing.T) {
	db := newTestDB(t)
	s := Snapshot{
		Timestamp:  time.Date(2025, 3, 1, 23, 30, 0, 0, time.UTC),
		TimeDomain: hrv.TimeDomainMetrics{RMSSD: 40},
		Quality:    hrv.QualityAcceptable,
	}
	require.NoError(t, db.RecordSnapshot(s))

	got, ok, err := db.LatestSnapshot()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Nil(t, got.Frequency, "missing spectral result must round-trip as nil, not zeros")
	assert.Nil(t, got.DFA)
}

func TestLatestSnapshotEmpty(t *testing.T) {
	db := newTestDB(t)
	_, ok, err := db.LatestSnapshot()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBaselinePersistence(t *testing.T) {
	db := newTestDB(t)

	_, _, ok, err := db.LatestBaseline()
	require.NoError(t, err)
	assert.False(t, ok)

	first := sleep.Baseline{HeartRate: 68, RMSSD: 44, HRStdDev: 3.2}
	second := sleep.Baseline{HeartRate: 66, RMSSD: 47, HRStdDev: 3.0}
	at := time.Date(2025, 3, 1, 21, 0, 0, 0, time.UTC)
	require.NoError(t, db.SaveBaseline(first, at))
	require.NoError(t, db.SaveBaseline(second, at.Add(time.Hour)))

	got, gotAt, ok, err := db.LatestBaseline()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, second, got)
	assert.True(t, gotAt.Equal(at.Add(time.Hour)))
}
