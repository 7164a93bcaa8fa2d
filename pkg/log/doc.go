// Package log wraps zerolog with this core's conventions: a single
// process-wide Logger, level/output configured once via Init, and
// component-scoped children via WithComponent/WithUserID/WithJobID.
//
// Prefer a scoped child logger over the package-level helpers wherever a
// user ID or enrichment job ID is in hand, so downstream log aggregation
// can filter by either dimension.
package log
