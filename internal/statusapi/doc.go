// Package statusapi exposes the migration trigger and the run status over HTTP.
//
// POST /start-migration launches a background run through migrate.Launcher,
// GET /get-status returns the jobstate snapshot, GET /healthz answers liveness
// probes and GET /metrics serves the Prometheus registry.
package statusapi
