// Package telemetry publishes migration progress as Prometheus metrics by
// observing job state transitions and repository transfer outcomes.
package telemetry
