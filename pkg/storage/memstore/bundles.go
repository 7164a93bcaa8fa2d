package memstore

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/leynos/wildside-core/pkg/bundles"
)

// BundlesRepository implements bundles.Repository over a
// mutex-guarded map.
type BundlesRepository struct {
	mu   sync.Mutex
	rows map[uuid.UUID]bundles.Bundle
}

func NewBundlesRepository() *BundlesRepository {
	return &BundlesRepository{rows: make(map[uuid.UUID]bundles.Bundle)}
}

func (r *BundlesRepository) Load(ctx context.Context, bundleID uuid.UUID) (*bundles.Bundle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[bundleID]
	if !ok {
		return nil, nil
	}
	copied := row
	return &copied, nil
}

func (r *BundlesRepository) Save(ctx context.Context, next bundles.Bundle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[next.ID] = next
	return nil
}

func (r *BundlesRepository) Delete(ctx context.Context, bundleID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[bundleID]; !ok {
		return false, nil
	}
	delete(r.rows, bundleID)
	return true, nil
}
