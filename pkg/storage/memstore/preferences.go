package memstore

import (
	"context"
	"sync"

	"github.com/leynos/wildside-core/pkg/errs"
	"github.com/leynos/wildside-core/pkg/preferences"
	"github.com/leynos/wildside-core/pkg/types"
)

// PreferencesRepository implements preferences.Repository over a
// mutex-guarded map.
type PreferencesRepository struct {
	mu   sync.Mutex
	rows map[string]preferences.Preferences
}

func NewPreferencesRepository() *PreferencesRepository {
	return &PreferencesRepository{rows: make(map[string]preferences.Preferences)}
}

func (r *PreferencesRepository) Load(ctx context.Context, userID types.UserID) (preferences.Preferences, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[userID.UUID().String()]
	if !ok {
		return preferences.Preferences{UserID: userID}, nil
	}
	return row, nil
}

func (r *PreferencesRepository) Save(ctx context.Context, next preferences.Preferences) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := next.UserID.UUID().String()
	current, exists := r.rows[k]
	if exists && current.Revision != next.Revision-1 {
		return errs.Conflict("preferences revision mismatch", &errs.Details{
			Field: "expected_revision", Code: "revision_mismatch",
		})
	}
	r.rows[k] = next
	return nil
}
