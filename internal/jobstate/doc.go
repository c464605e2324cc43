// Package jobstate holds the observable state of the current migration run.
//
// A single Tracker per process serialises every change behind a mutex and
// hands out deep-copied snapshots to pollers. Each log entry is mirrored to
// zap and every applied update is forwarded to registered observers after the
// lock is released.
package jobstate
