package enrichment

import (
	"context"
	"errors"

	"github.com/leynos/wildside-core/pkg/types"
)

// OverpassPoi is one point of interest as returned by the enrichment
// source, before filtering against the request bounding box.
type OverpassPoi struct {
	ElementType types.ElementType
	ElementID   uint64
	Lng         float64
	Lat         float64
	Tags        map[string]string
}

// FetchRequest describes one enrichment call: the bounding box to
// query and an optional tag filter (e.g. amenity=cafe).
type FetchRequest struct {
	Bounds    types.BoundingBox
	TagFilter map[string]string
}

// FetchResult is a successful source call's payload.
type FetchResult struct {
	POIs          []OverpassPoi
	TransferBytes int64
	SourceURL     string
}

// SourceErrorKind classifies a source failure for the retry/permanent
// decision in the execution loop.
type SourceErrorKind int

const (
	SourceErrorTransport SourceErrorKind = iota
	SourceErrorTimeout
	SourceErrorRateLimit
	SourceErrorInvalidRequest
)

// Transient reports whether this error kind should be retried.
// InvalidRequest is the only permanent kind; the other three are
// treated as transient per §4.1.3.
func (k SourceErrorKind) Transient() bool {
	return k != SourceErrorInvalidRequest
}

// SourceError wraps an underlying error with its retry classification.
type SourceError struct {
	Kind SourceErrorKind
	Err  error
}

func (e *SourceError) Error() string { return e.Err.Error() }
func (e *SourceError) Unwrap() error { return e.Err }

// AsSourceError extracts a *SourceError from err, if present.
func AsSourceError(err error) (*SourceError, bool) {
	var se *SourceError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// Source fetches points of interest from the external enrichment
// collaborator. Implementations must classify every error via
// SourceError so the worker can decide whether to retry.
type Source interface {
	FetchPOIs(ctx context.Context, req FetchRequest) (FetchResult, error)
}
