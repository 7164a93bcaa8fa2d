package memstore

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/leynos/wildside-core/pkg/errs"
	"github.com/leynos/wildside-core/pkg/progress"
	"github.com/leynos/wildside-core/pkg/types"
)

// ProgressRepository implements progress.Repository over a
// mutex-guarded map.
type ProgressRepository struct {
	mu   sync.Mutex
	rows map[string]progress.Progress
}

func NewProgressRepository() *ProgressRepository {
	return &ProgressRepository{rows: make(map[string]progress.Progress)}
}

func progressKey(routeID uuid.UUID, userID types.UserID) string {
	return routeID.String() + "|" + userID.UUID().String()
}

func (r *ProgressRepository) Load(ctx context.Context, routeID uuid.UUID, userID types.UserID) (progress.Progress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[progressKey(routeID, userID)]
	if !ok {
		return progress.Progress{RouteID: routeID, UserID: userID}, nil
	}
	return row, nil
}

func (r *ProgressRepository) Save(ctx context.Context, next progress.Progress) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := progressKey(next.RouteID, next.UserID)
	current, exists := r.rows[k]
	if exists && current.Revision != next.Revision-1 {
		return errs.Conflict("progress revision mismatch", &errs.Details{
			Field: "expected_revision", Code: "revision_mismatch",
		})
	}
	r.rows[k] = next
	return nil
}
