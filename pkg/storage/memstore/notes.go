package memstore

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/leynos/wildside-core/pkg/errs"
	"github.com/leynos/wildside-core/pkg/notes"
)

// NotesRepository implements notes.Repository over a mutex-guarded
// map.
type NotesRepository struct {
	mu   sync.Mutex
	rows map[uuid.UUID]notes.Note
}

func NewNotesRepository() *NotesRepository {
	return &NotesRepository{rows: make(map[uuid.UUID]notes.Note)}
}

func (r *NotesRepository) Load(ctx context.Context, noteID uuid.UUID) (notes.Note, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[noteID]
	if !ok {
		return notes.Note{ID: noteID}, nil
	}
	return row, nil
}

func (r *NotesRepository) Save(ctx context.Context, next notes.Note) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, exists := r.rows[next.ID]
	if exists && current.Revision != next.Revision-1 {
		return errs.Conflict("note revision mismatch", &errs.Details{
			Field: "expected_revision", Code: "revision_mismatch",
		})
	}
	r.rows[next.ID] = next
	return nil
}

func (r *NotesRepository) Delete(ctx context.Context, noteID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[noteID]; !ok {
		return false, nil
	}
	delete(r.rows, noteID)
	return true, nil
}

// RouteExistenceChecker implements notes.RouteExistenceChecker over a
// mutex-guarded set, for local/dev wiring where routes are registered
// as they are created.
type RouteExistenceChecker struct {
	mu     sync.Mutex
	routes map[uuid.UUID]struct{}
}

func NewRouteExistenceChecker() *RouteExistenceChecker {
	return &RouteExistenceChecker{routes: make(map[uuid.UUID]struct{})}
}

func (c *RouteExistenceChecker) Register(routeID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.routes[routeID] = struct{}{}
}

func (c *RouteExistenceChecker) RouteExists(ctx context.Context, routeID uuid.UUID) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.routes[routeID]
	return ok, nil
}
