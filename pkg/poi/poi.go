// Package poi holds the point-of-interest value type and the storage
// port shared by the bulk ingestion command and the enrichment worker —
// both upsert into the same keyed table, just from different sources.
package poi

import (
	"context"

	"github.com/leynos/wildside-core/pkg/types"
)

// POI is one point of interest, keyed by its OSM element identity.
type POI struct {
	ElementType     types.ElementType
	ElementID       uint64
	Lng             float64
	Lat             float64
	Tags            map[string]string
	Narrative       *string
	PopularityScore *float64
}

// Key returns the (element_type, element_id) primary key.
func (p POI) Key() (types.ElementType, uint64) {
	return p.ElementType, p.ElementID
}

// Repository upserts points of interest by their element identity.
// UpsertPOIs must be atomic: either every row in rows is written, or
// none is — callers rely on this when persisting alongside a
// provenance record in the same transaction.
type Repository interface {
	UpsertPOIs(ctx context.Context, rows []POI) error
}
