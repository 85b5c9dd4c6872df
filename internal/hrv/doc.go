// Package hrv owns the heart-rate-variability analysis pipeline.
//
// Responsibilities: validating and repairing raw RR interval batches,
// time-domain metrics (RMSSD/SDNN/pNN50) as both stateless functions and a
// rolling-window engine, frequency-domain LF/HF band power via Welch's
// method, and the DFA short-term scaling exponent (Alpha1).
//
// Every computation checks its minimum-sample precondition and reports
// "no result" instead of fabricating a value; callers must check the ok
// return before using a metric.
package hrv
