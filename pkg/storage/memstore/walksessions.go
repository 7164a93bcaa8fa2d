package memstore

import (
	"context"
	"sync"

	"github.com/leynos/wildside-core/pkg/walksessions"
)

// WalkSessionsRepository implements walksessions.Repository over a
// mutex-guarded, append-only slice.
type WalkSessionsRepository struct {
	mu       sync.Mutex
	sessions []walksessions.Session
}

func NewWalkSessionsRepository() *WalkSessionsRepository {
	return &WalkSessionsRepository{}
}

func (r *WalkSessionsRepository) Append(ctx context.Context, session walksessions.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = append(r.sessions, session)
	return nil
}

// Snapshot returns a defensive copy of every appended session.
func (r *WalkSessionsRepository) Snapshot() []walksessions.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]walksessions.Session, len(r.sessions))
	copy(out, r.sessions)
	return out
}
