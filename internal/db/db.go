// Package db persists sleep sessions, epochs, HRV snapshots and baselines
// to a local sqlite database.
package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/nightbeat-data/pulse.report/internal/hrv"
	"github.com/nightbeat-data/pulse.report/internal/sleep"
)

type DB struct {
	*sql.DB
}

// NewDB opens (creating if needed) the sqlite database at path.
func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			session_id        TEXT PRIMARY KEY,
			start_time        TIMESTAMP,
			sleep_onset       TIMESTAMP,
			end_time          TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS epochs (
			session_id        TEXT,
			start_time        TIMESTAMP,
			end_time          TIMESTAMP,
			average_hr        DOUBLE,
			average_rmssd     DOUBLE,
			hr_stddev         DOUBLE,
			sample_count      BIGINT,
			phase             TEXT,
			FOREIGN KEY(session_id) REFERENCES sessions(session_id)
		);
		CREATE TABLE IF NOT EXISTS hrv_snapshots (
			timestamp         TIMESTAMP,
			rmssd             DOUBLE,
			sdnn              DOUBLE,
			pnn50             DOUBLE,
			lf_power          DOUBLE,
			hf_power          DOUBLE,
			lf_hf_ratio       DOUBLE,
			alpha1            DOUBLE,
			quality           TEXT
		);
		CREATE TABLE IF NOT EXISTS baselines (
			heart_rate        DOUBLE,
			rmssd             DOUBLE,
			hr_stddev         DOUBLE,
			computed_at       TIMESTAMP
		);
	`)
	if err != nil {
		return nil, err
	}

	return &DB{db}, nil
}

// BeginSession inserts a new sleep session starting at start and returns its ID.
func (db *DB) BeginSession(start time.Time) (string, error) {
	id := uuid.New().String()
	_, err := db.Exec("INSERT INTO sessions (session_id, start_time) VALUES (?, ?)", id, start)
	if err != nil {
		return "", fmt.Errorf("failed to insert session: %w", err)
	}
	return id, nil
}

// SetSessionOnset records the estimated (possibly backdated) sleep onset.
func (db *DB) SetSessionOnset(sessionID string, onset time.Time) error {
	_, err := db.Exec("UPDATE sessions SET sleep_onset = ? WHERE session_id = ?", onset, sessionID)
	if err != nil {
		return fmt.Errorf("failed to set session onset: %w", err)
	}
	return nil
}

// EndSession closes a sleep session at end.
func (db *DB) EndSession(sessionID string, end time.Time) error {
	_, err := db.Exec("UPDATE sessions SET end_time = ? WHERE session_id = ?", end, sessionID)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	return nil
}

// RecordEpoch persists one finalized epoch under a session. sessionID may be
// empty for epochs captured outside a sleep session.
func (db *DB) RecordEpoch(sessionID string, e sleep.Epoch) error {
	_, err := db.Exec(
		"INSERT INTO epochs (session_id, start_time, end_time, average_hr, average_rmssd, hr_stddev, sample_count, phase) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		sessionID, e.StartTime, e.EndTime, e.AverageHR, e.AverageRMSSD, e.HRStdDev, e.SampleCount, string(e.Phase),
	)
	if err != nil {
		return fmt.Errorf("failed to record epoch: %w", err)
	}
	return nil
}

func scanEpochs(rows *sql.Rows) ([]sleep.Epoch, error) {
	var epochs []sleep.Epoch
	for rows.Next() {
		var e sleep.Epoch
		var phase string
		if err := rows.Scan(&e.StartTime, &e.EndTime, &e.AverageHR, &e.AverageRMSSD, &e.HRStdDev, &e.SampleCount, &phase); err != nil {
			return nil, fmt.Errorf("failed to scan epoch: %w", err)
		}
		e.Phase = sleep.Phase(phase)
		epochs = append(epochs, e)
	}
	return epochs, rows.Err()
}

// SessionEpochs returns the epochs of a session ordered by start time.
func (db *DB) SessionEpochs(sessionID string) ([]sleep.Epoch, error) {
	rows, err := db.Query(
		"SELECT start_time, end_time, average_hr, average_rmssd, hr_stddev, sample_count, phase FROM epochs WHERE session_id = ? ORDER BY start_time",
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query epochs: %w", err)
	}
	defer rows.Close()
	return scanEpochs(rows)
}

// RecentEpochs returns the latest limit epochs across all sessions,
// chronological order.
func (db *DB) RecentEpochs(limit int) ([]sleep.Epoch, error) {
	rows, err := db.Query(
		"SELECT start_time, end_time, average_hr, average_rmssd, hr_stddev, sample_count, phase FROM epochs ORDER BY start_time DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query epochs: %w", err)
	}
	defer rows.Close()

	epochs, err := scanEpochs(rows)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(epochs)-1; i < j; i, j = i+1, j-1 {
		epochs[i], epochs[j] = epochs[j], epochs[i]
	}
	return epochs, nil
}

// Snapshot is one persisted HRV metric sample. Frequency-domain and DFA
// fields are nil when the corresponding analysis had insufficient data.
type Snapshot struct {
	Timestamp  time.Time                   `json:"timestamp"`
	TimeDomain hrv.TimeDomainMetrics       `json:"time_domain"`
	Frequency  *hrv.FrequencyDomainMetrics `json:"frequency,omitempty"`
	DFA        *hrv.DFAResult              `json:"dfa,omitempty"`
	Quality    hrv.Quality                 `json:"quality"`
}

// RecordSnapshot persists one HRV metric sample.
func (db *DB) RecordSnapshot(s Snapshot) error {
	var lf, hf, ratio, alpha1 sql.NullFloat64
	if s.Frequency != nil {
		lf = sql.NullFloat64{Float64: s.Frequency.LFPower, Valid: true}
		hf = sql.NullFloat64{Float64: s.Frequency.HFPower, Valid: true}
		ratio = sql.NullFloat64{Float64: s.Frequency.LFHFRatio, Valid: true}
	}
	if s.DFA != nil {
		alpha1 = sql.NullFloat64{Float64: s.DFA.Alpha1, Valid: true}
	}
	_, err := db.Exec(
		"INSERT INTO hrv_snapshots (timestamp, rmssd, sdnn, pnn50, lf_power, hf_power, lf_hf_ratio, alpha1, quality) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		s.Timestamp, s.TimeDomain.RMSSD, s.TimeDomain.SDNN, s.TimeDomain.PNN50, lf, hf, ratio, alpha1, string(s.Quality),
	)
	if err != nil {
		return fmt.Errorf("failed to record snapshot: %w", err)
	}
	return nil
}

// LatestSnapshot returns the most recent HRV snapshot, ok false when none
// exists.
func (db *DB) LatestSnapshot() (Snapshot, bool, error) {
	row := db.QueryRow("SELECT timestamp, rmssd, sdnn, pnn50, lf_power, hf_power, lf_hf_ratio, alpha1, quality FROM hrv_snapshots ORDER BY timestamp DESC LIMIT 1")

	var s Snapshot
	var lf, hf, ratio, alpha1 sql.NullFloat64
	var quality string
	err := row.Scan(&s.Timestamp, &s.TimeDomain.RMSSD, &s.TimeDomain.SDNN, &s.TimeDomain.PNN50, &lf, &hf, &ratio, &alpha1, &quality)
	if err == sql.ErrNoRows {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("failed to scan snapshot: %w", err)
	}
	s.Quality = hrv.Quality(quality)
	if lf.Valid {
		s.Frequency = &hrv.FrequencyDomainMetrics{LFPower: lf.Float64, HFPower: hf.Float64, LFHFRatio: ratio.Float64}
	}
	if alpha1.Valid {
		s.DFA = &hrv.DFAResult{Alpha1: alpha1.Float64}
	}
	return s, true, nil
}

// SaveBaseline persists an adaptive baseline for cross-restart continuity.
func (db *DB) SaveBaseline(b sleep.Baseline, at time.Time) error {
	_, err := db.Exec(
		"INSERT INTO baselines (heart_rate, rmssd, hr_stddev, computed_at) VALUES (?, ?, ?, ?)",
		b.HeartRate, b.RMSSD, b.HRStdDev, at,
	)
	if err != nil {
		return fmt.Errorf("failed to save baseline: %w", err)
	}
	return nil
}

// LatestBaseline returns the most recently computed baseline, ok false when
// none has been saved.
func (db *DB) LatestBaseline() (sleep.Baseline, time.Time, bool, error) {
	row := db.QueryRow("SELECT heart_rate, rmssd, hr_stddev, computed_at FROM baselines ORDER BY computed_at DESC LIMIT 1")

	var b sleep.Baseline
	var at time.Time
	err := row.Scan(&b.HeartRate, &b.RMSSD, &b.HRStdDev, &at)
	if err == sql.ErrNoRows {
		return sleep.Baseline{}, time.Time{}, false, nil
	}
	if err != nil {
		return sleep.Baseline{}, time.Time{}, false, fmt.Errorf("failed to scan baseline: %w", err)
	}
	return b, at, true, nil
}
