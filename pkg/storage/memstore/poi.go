package memstore

import (
	"context"
	"sync"

	"github.com/leynos/wildside-core/pkg/poi"
	"github.com/leynos/wildside-core/pkg/types"
)

type poiKey struct {
	elementType types.ElementType
	elementID   uint64
}

// POIRepository implements poi.Repository over a mutex-guarded map.
type POIRepository struct {
	mu   sync.Mutex
	rows map[poiKey]poi.POI
}

func NewPOIRepository() *POIRepository {
	return &POIRepository{rows: make(map[poiKey]poi.POI)}
}

func (r *POIRepository) UpsertPOIs(ctx context.Context, rows []poi.POI) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range rows {
		et, id := p.Key()
		r.rows[poiKey{et, id}] = p
	}
	return nil
}

// Snapshot returns a defensive copy of every stored POI, for tests
// that need to assert on what was persisted.
func (r *POIRepository) Snapshot() []poi.POI {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]poi.POI, 0, len(r.rows))
	for _, p := range r.rows {
		out = append(out, p)
	}
	return out
}
