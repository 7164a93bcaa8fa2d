/*
Package types defines the self-validating value model used across every
command service: identifiers, bounding boxes, zoom ranges, and the closed
enum taxonomies (mutation kind, bundle kind/status, unit system, walk stat
kind). Constructors return a *ValidationError instead of panicking, so
callers can map validation failures straight onto the invalid_request
error code without a second translation layer.
*/
package types
