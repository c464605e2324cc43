// Package cli constructs the glmigrate command-line interface, wiring the
// Cobra command hierarchy, configuration loader, and structured logging.
// The migrate subcommand performs a single run; serve exposes the run
// trigger and status over HTTP.
package cli
