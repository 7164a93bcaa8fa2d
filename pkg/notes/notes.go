// Package notes implements the route note commands: upsert_note, a
// revision-guarded CAS mutation, and delete_note, an ownership-checked
// delete that takes no revision; both are routed through the
// idempotency mediator.
package notes

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/leynos/wildside-core/pkg/canonicaljson"
	"github.com/leynos/wildside-core/pkg/errs"
	"github.com/leynos/wildside-core/pkg/idempotency"
	"github.com/leynos/wildside-core/pkg/types"
)

// Note is the persisted aggregate.
type Note struct {
	ID        uuid.UUID
	RouteID   uuid.UUID
	UserID    types.UserID
	POIID     *uuid.UUID
	Body      string
	Revision  int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RouteExistenceChecker confirms a route id is a known aggregate, for
// upsert_note's not_found case.
type RouteExistenceChecker interface {
	RouteExists(ctx context.Context, routeID uuid.UUID) (bool, error)
}

// Repository is the revision store port for Note.
type Repository interface {
	// Load returns the note by id, or a zero-revision Note if none
	// exists (new notes start at revision 0 before the first save).
	Load(ctx context.Context, noteID uuid.UUID) (Note, error)
	// Save performs the §4.5 conditional update.
	Save(ctx context.Context, next Note) error
	// Delete removes a note, returning whether a row was actually
	// deleted.
	Delete(ctx context.Context, noteID uuid.UUID) (bool, error)
}

// Clock abstracts the wall clock read for timestamps.
type Clock interface{ Now() time.Time }

// Service executes the note commands.
type Service struct {
	repo     Repository
	routes   RouteExistenceChecker
	mediator *idempotency.Mediator
	clock    Clock
}

func NewService(repo Repository, routes RouteExistenceChecker, mediator *idempotency.Mediator, c Clock) *Service {
	return &Service{repo: repo, routes: routes, mediator: mediator, clock: c}
}

// UpsertRequest is upsert_note's input.
type UpsertRequest struct {
	NoteID           uuid.UUID
	RouteID          uuid.UUID
	UserID           types.UserID
	POIID            *uuid.UUID
	Body             string
	ExpectedRevision *int64
	IdempotencyKey   *types.IdempotencyKey
}

// UpsertResult is upsert_note's output.
type UpsertResult struct {
	Note     Note
	Replayed bool
}

func (s *Service) UpsertNote(ctx context.Context, req UpsertRequest) (UpsertResult, error) {
	if req.Body == "" {
		return UpsertResult{}, errs.InvalidRequest("note body must not be empty", &errs.Details{
			Field: "body", Code: "empty_body",
		})
	}

	exists, err := s.routes.RouteExists(ctx, req.RouteID)
	if err != nil {
		return UpsertResult{}, errs.ServiceUnavailable("failed to check route existence", err)
	}
	if !exists {
		return UpsertResult{}, errs.NotFound("route not found")
	}

	hash, err := canonicaljson.Hash(req)
	if err != nil {
		return UpsertResult{}, errs.Internal("failed to hash note payload", err)
	}

	env, err := idempotency.Run(ctx, s.mediator, idempotency.MutationContext{
		IdempotencyKey: req.IdempotencyKey,
		UserID:         req.UserID,
		MutationKind:   types.MutationNotes,
		PayloadHash:    hash,
	}, func(ctx context.Context) (Note, error) {
		return s.applyUpsert(ctx, req)
	})
	if err != nil {
		return UpsertResult{}, err
	}
	return UpsertResult{Note: env.Response, Replayed: env.Replayed}, nil
}

func (s *Service) applyUpsert(ctx context.Context, req UpsertRequest) (Note, error) {
	current, err := s.repo.Load(ctx, req.NoteID)
	if err != nil {
		return Note{}, errs.ServiceUnavailable("failed to load note", err)
	}

	if req.ExpectedRevision != nil && *req.ExpectedRevision != current.Revision {
		return Note{}, errs.RevisionConflict(*req.ExpectedRevision, current.Revision)
	}

	now := s.clock.Now()
	createdAt := current.CreatedAt
	if current.Revision == 0 {
		createdAt = now
	}

	next := Note{
		ID:        req.NoteID,
		RouteID:   req.RouteID,
		UserID:    req.UserID,
		POIID:     req.POIID,
		Body:      req.Body,
		Revision:  current.Revision + 1,
		CreatedAt: createdAt,
		UpdatedAt: now,
	}

	if err := s.repo.Save(ctx, next); err != nil {
		if wErr, ok := errs.As(err); ok && wErr.Code == errs.CodeConflict {
			return Note{}, err
		}
		return Note{}, errs.ServiceUnavailable("failed to save note", err)
	}
	return next, nil
}

// DeleteRequest is delete_note's input.
type DeleteRequest struct {
	NoteID         uuid.UUID
	UserID         types.UserID
	IdempotencyKey *types.IdempotencyKey
}

// DeleteResult is delete_note's output.
type DeleteResult struct {
	Deleted  bool
	Replayed bool
}

func (s *Service) DeleteNote(ctx context.Context, req DeleteRequest) (DeleteResult, error) {
	hash, err := canonicaljson.Hash(req)
	if err != nil {
		return DeleteResult{}, errs.Internal("failed to hash note delete payload", err)
	}

	env, err := idempotency.Run(ctx, s.mediator, idempotency.MutationContext{
		IdempotencyKey: req.IdempotencyKey,
		UserID:         req.UserID,
		MutationKind:   types.MutationNotes,
		PayloadHash:    hash,
	}, func(ctx context.Context) (bool, error) {
		return s.applyDelete(ctx, req)
	})
	if err != nil {
		return DeleteResult{}, err
	}
	return DeleteResult{Deleted: env.Response, Replayed: env.Replayed}, nil
}

func (s *Service) applyDelete(ctx context.Context, req DeleteRequest) (bool, error) {
	current, err := s.repo.Load(ctx, req.NoteID)
	if err != nil {
		return false, errs.ServiceUnavailable("failed to load note", err)
	}
	if current.Revision == 0 {
		return false, nil
	}
	if current.UserID.String() != req.UserID.String() {
		return false, errs.Forbidden("cannot delete another user's note")
	}

	deleted, err := s.repo.Delete(ctx, req.NoteID)
	if err != nil {
		return false, errs.ServiceUnavailable("failed to delete note", err)
	}
	return deleted, nil
}
