// Package sleep owns epoch aggregation and online sleep detection.
//
// Responsibilities: bucketing the live heart-rate sample stream into fixed
// 30-second epochs, rule-based phase classification of finalized epochs
// (awake/light/deep/REM) against a waking baseline, adaptive pre-bed
// baseline estimation, and the hysteresis state machine that tracks the
// wearer through awake -> preSleep -> sleeping -> waking.
//
// The EpochBuilder and Detector are sequential state machines: updates must
// arrive in timestamp order and concurrent callers are serialized
// internally. The classifier and baseline math are pure functions over
// immutable epoch values.
package sleep
