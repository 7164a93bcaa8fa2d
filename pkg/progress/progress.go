// Package progress implements update_progress: a revision-guarded CAS
// update that records which stops on a route a user has visited,
// deduplicating while preserving first-seen order.
package progress

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/leynos/wildside-core/pkg/canonicaljson"
	"github.com/leynos/wildside-core/pkg/errs"
	"github.com/leynos/wildside-core/pkg/idempotency"
	"github.com/leynos/wildside-core/pkg/types"
)

// Progress is the persisted aggregate, keyed by (RouteID, UserID).
type Progress struct {
	RouteID        uuid.UUID
	UserID         types.UserID
	VisitedStopIDs []uuid.UUID
	Revision       int64
	UpdatedAt      time.Time
}

// Repository is the revision store port for Progress.
type Repository interface {
	Load(ctx context.Context, routeID uuid.UUID, userID types.UserID) (Progress, error)
	Save(ctx context.Context, next Progress) error
}

// Clock abstracts the wall clock read for UpdatedAt.
type Clock interface{ Now() time.Time }

// Service executes the progress commands.
type Service struct {
	repo     Repository
	mediator *idempotency.Mediator
	clock    Clock
}

func NewService(repo Repository, mediator *idempotency.Mediator, c Clock) *Service {
	return &Service{repo: repo, mediator: mediator, clock: c}
}

// UpdateRequest is update_progress' input.
type UpdateRequest struct {
	RouteID          uuid.UUID
	UserID           types.UserID
	VisitedStopIDs   []uuid.UUID
	ExpectedRevision *int64
	IdempotencyKey   *types.IdempotencyKey
}

// UpdateResult is update_progress' output.
type UpdateResult struct {
	Progress Progress
	Replayed bool
}

func (s *Service) UpdateProgress(ctx context.Context, req UpdateRequest) (UpdateResult, error) {
	req.VisitedStopIDs = dedupePreservingOrder(req.VisitedStopIDs)

	hash, err := canonicaljson.Hash(req)
	if err != nil {
		return UpdateResult{}, errs.Internal("failed to hash progress payload", err)
	}

	env, err := idempotency.Run(ctx, s.mediator, idempotency.MutationContext{
		IdempotencyKey: req.IdempotencyKey,
		UserID:         req.UserID,
		MutationKind:   types.MutationProgress,
		PayloadHash:    hash,
	}, func(ctx context.Context) (Progress, error) {
		return s.apply(ctx, req)
	})
	if err != nil {
		return UpdateResult{}, err
	}
	return UpdateResult{Progress: env.Response, Replayed: env.Replayed}, nil
}

func (s *Service) apply(ctx context.Context, req UpdateRequest) (Progress, error) {
	current, err := s.repo.Load(ctx, req.RouteID, req.UserID)
	if err != nil {
		return Progress{}, errs.ServiceUnavailable("failed to load progress", err)
	}

	if req.ExpectedRevision != nil && *req.ExpectedRevision != current.Revision {
		return Progress{}, errs.RevisionConflict(*req.ExpectedRevision, current.Revision)
	}

	next := Progress{
		RouteID:        req.RouteID,
		UserID:         req.UserID,
		VisitedStopIDs: req.VisitedStopIDs,
		Revision:       current.Revision + 1,
		UpdatedAt:      s.clock.Now(),
	}

	if err := s.repo.Save(ctx, next); err != nil {
		if wErr, ok := errs.As(err); ok && wErr.Code == errs.CodeConflict {
			return Progress{}, err
		}
		return Progress{}, errs.ServiceUnavailable("failed to save progress", err)
	}
	return next, nil
}

// dedupePreservingOrder removes duplicate ids, keeping the first
// occurrence's position, per §4.5's update_progress contract.
func dedupePreservingOrder(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
