// Package provenance records and lists enrichment provenance rows —
// one per successful Overpass enrichment call — and implements the
// lossless keyset pagination described for the enrichment provenance
// listing: a cursor over (imported_at DESC, id DESC) that expands to
// include every row sharing a boundary timestamp rather than splitting
// a page inside it.
package provenance

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/leynos/wildside-core/pkg/errs"
	"github.com/leynos/wildside-core/pkg/types"
)

// EnrichmentProvenance is one record of a successful enrichment source
// call: what bounds were requested, from where, and when.
type EnrichmentProvenance struct {
	ID         uuid.UUID
	SourceURL  string
	ImportedAt time.Time
	Bounds     types.BoundingBox
	CreatedAt  time.Time
}

// Repository persists and lists enrichment provenance rows.
type Repository interface {
	Persist(ctx context.Context, rec EnrichmentProvenance) error
	// ListRecent returns up to limit rows ordered by (imported_at
	// DESC, id DESC), optionally restricted to imported_at < before.
	// The caller (Lister) asks for one row more than its page size,
	// relies on that extra row to detect a next page, and on the
	// ordering to perform boundary expansion.
	ListRecent(ctx context.Context, limit int, before *time.Time) ([]EnrichmentProvenance, error)
	// ListAtTimestamp returns every row with imported_at exactly equal
	// to at, ordered by id DESC, further restricted to imported_at <
	// before when before is non-nil. Used only for boundary expansion.
	ListAtTimestamp(ctx context.Context, at time.Time, before *time.Time) ([]EnrichmentProvenance, error)
}

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

// Page is one page of a provenance listing, plus the cursor for the
// next page, if any.
type Page struct {
	Rows       []EnrichmentProvenance
	NextBefore *time.Time
}

// Lister implements the cursor-paginated descending-timestamp listing
// of enrichment provenance, including boundary expansion.
type Lister struct {
	repo Repository
}

func NewLister(repo Repository) *Lister {
	return &Lister{repo: repo}
}

// List returns one page. limit must lie in [1, 200]; zero selects the
// default of 50, and any other value outside the range is rejected with
// invalid_request.
func (l *Lister) List(ctx context.Context, limit int, before *time.Time) (Page, error) {
	switch {
	case limit == 0:
		limit = defaultPageLimit
	case limit < 1 || limit > maxPageLimit:
		return Page{}, errs.InvalidRequest("limit must be between 1 and 200", &errs.Details{
			Field: "limit", Code: "out_of_range",
		})
	}

	rows, err := l.repo.ListRecent(ctx, limit+1, before)
	if err != nil {
		return Page{}, errs.ServiceUnavailable("failed to list enrichment provenance", err)
	}

	if len(rows) <= limit {
		return Page{Rows: rows, NextBefore: nil}, nil
	}

	// There is an extra row: rows[limit-1] and rows[limit] may share
	// imported_at, which would split that timestamp bucket across
	// pages. Expand to include every row at the boundary instead.
	boundary := rows[limit-1].ImportedAt
	if !rows[limit].ImportedAt.Equal(boundary) {
		page := rows[:limit]
		next := rows[limit-1].ImportedAt
		return Page{Rows: page, NextBefore: &next}, nil
	}

	kept := make([]EnrichmentProvenance, 0, len(rows))
	for _, row := range rows {
		if !row.ImportedAt.Equal(boundary) {
			kept = append(kept, row)
		}
	}

	bucket, err := l.repo.ListAtTimestamp(ctx, boundary, before)
	if err != nil {
		return Page{}, errs.ServiceUnavailable("failed to expand provenance page boundary", err)
	}
	kept = append(kept, bucket...)

	older, err := l.repo.ListRecent(ctx, 1, &boundary)
	if err != nil {
		return Page{}, errs.ServiceUnavailable("failed to probe for older provenance rows", err)
	}

	var nextBefore *time.Time
	if len(older) > 0 {
		b := boundary
		nextBefore = &b
	}

	return Page{Rows: kept, NextBefore: nextBefore}, nil
}
