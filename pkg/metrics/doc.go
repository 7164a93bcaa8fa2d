// Package metrics registers the Prometheus collectors used across this
// core: mediator claim/replay/conflict counters, enrichment worker
// admission and backoff instrumentation, ingestion counts, and command
// service durations. Handler exposes them for scraping; HealthHandler,
// ReadyHandler, and LivenessHandler expose a small operational status
// surface alongside them.
package metrics
