// Package bundles implements the offline bundle commands:
// upsert_offline_bundle and delete_offline_bundle.
package bundles

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/leynos/wildside-core/pkg/canonicaljson"
	"github.com/leynos/wildside-core/pkg/errs"
	"github.com/leynos/wildside-core/pkg/idempotency"
	"github.com/leynos/wildside-core/pkg/types"
)

// Bundle is the persisted aggregate.
type Bundle struct {
	ID            uuid.UUID
	OwnerUserID   *types.UserID
	DeviceID      string
	Kind          types.BundleKind
	RouteID       *uuid.UUID
	RegionID      *uuid.UUID
	Bounds        types.BoundingBox
	ZoomRange     types.ZoomRange
	SizeBytes     int64
	Status        types.BundleStatus
	Progress      float64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Repository is the store port for Bundle.
type Repository interface {
	Load(ctx context.Context, bundleID uuid.UUID) (*Bundle, error)
	Save(ctx context.Context, next Bundle) error
	Delete(ctx context.Context, bundleID uuid.UUID) (bool, error)
}

// Clock abstracts the wall clock read for timestamps.
type Clock interface{ Now() time.Time }

// Service executes the offline bundle commands.
type Service struct {
	repo     Repository
	mediator *idempotency.Mediator
	clock    Clock
}

func NewService(repo Repository, mediator *idempotency.Mediator, c Clock) *Service {
	return &Service{repo: repo, mediator: mediator, clock: c}
}

// UpsertRequest is upsert_offline_bundle's input: a full bundle draft.
type UpsertRequest struct {
	ID             uuid.UUID
	OwnerUserID    *types.UserID
	UserID         types.UserID
	DeviceID       string
	Kind           types.BundleKind
	RouteID        *uuid.UUID
	RegionID       *uuid.UUID
	Bounds         types.BoundingBox
	ZoomRange      types.ZoomRange
	SizeBytes      int64
	Status         types.BundleStatus
	Progress       float64
	IdempotencyKey *types.IdempotencyKey
}

// UpsertResult is upsert_offline_bundle's output.
type UpsertResult struct {
	Bundle   Bundle
	Replayed bool
}

func (s *Service) UpsertBundle(ctx context.Context, req UpsertRequest) (UpsertResult, error) {
	if err := validateDraft(req); err != nil {
		return UpsertResult{}, err
	}

	hash, err := canonicaljson.Hash(req)
	if err != nil {
		return UpsertResult{}, errs.Internal("failed to hash bundle payload", err)
	}

	env, err := idempotency.Run(ctx, s.mediator, idempotency.MutationContext{
		IdempotencyKey: req.IdempotencyKey,
		UserID:         req.UserID,
		MutationKind:   types.MutationBundles,
		PayloadHash:    hash,
	}, func(ctx context.Context) (Bundle, error) {
		return s.apply(ctx, req)
	})
	if err != nil {
		return UpsertResult{}, err
	}
	return UpsertResult{Bundle: env.Response, Replayed: env.Replayed}, nil
}

func validateDraft(req UpsertRequest) error {
	if !req.Kind.Valid() {
		return errs.InvalidRequest("invalid bundle kind", &errs.Details{Field: "kind", Code: "invalid_enum_value", Value: string(req.Kind)})
	}
	switch req.Kind {
	case types.BundleKindRoute:
		if req.RouteID == nil || req.RegionID != nil {
			return errs.InvalidRequest("route bundles require route_id and no region_id", &errs.Details{Field: "route_id", Code: "kind_id_mismatch"})
		}
	case types.BundleKindRegion:
		if req.RegionID == nil || req.RouteID != nil {
			return errs.InvalidRequest("region bundles require region_id and no route_id", &errs.Details{Field: "region_id", Code: "kind_id_mismatch"})
		}
	}
	if err := req.Bounds.Validate(); err != nil {
		return errs.InvalidRequest("invalid bundle bounds", &errs.Details{Field: "bounds", Code: "invalid_bounds"})
	}
	if err := types.ValidateBundleProgress(req.Status, req.Progress); err != nil {
		return errs.InvalidRequest("invalid status/progress pairing", &errs.Details{Field: "progress", Code: "invalid_status_progress_pair"})
	}
	return nil
}

func (s *Service) apply(ctx context.Context, req UpsertRequest) (Bundle, error) {
	current, err := s.repo.Load(ctx, req.ID)
	if err != nil {
		return Bundle{}, errs.ServiceUnavailable("failed to load bundle", err)
	}

	now := s.clock.Now()
	createdAt := now
	if current != nil {
		createdAt = current.CreatedAt
	}

	next := Bundle{
		ID:          req.ID,
		OwnerUserID: req.OwnerUserID,
		DeviceID:    req.DeviceID,
		Kind:        req.Kind,
		RouteID:     req.RouteID,
		RegionID:    req.RegionID,
		Bounds:      req.Bounds,
		ZoomRange:   req.ZoomRange,
		SizeBytes:   req.SizeBytes,
		Status:      req.Status,
		Progress:    req.Progress,
		CreatedAt:   createdAt,
		UpdatedAt:   now,
	}

	if err := s.repo.Save(ctx, next); err != nil {
		if wErr, ok := errs.As(err); ok && wErr.Code == errs.CodeConflict {
			return Bundle{}, err
		}
		return Bundle{}, errs.ServiceUnavailable("failed to save bundle", err)
	}
	return next, nil
}

// DeleteRequest is delete_offline_bundle's input.
type DeleteRequest struct {
	BundleID       uuid.UUID
	UserID         types.UserID
	IdempotencyKey *types.IdempotencyKey
}

// DeleteResult is delete_offline_bundle's output.
type DeleteResult struct {
	BundleID uuid.UUID
	Replayed bool
}

func (s *Service) DeleteBundle(ctx context.Context, req DeleteRequest) (DeleteResult, error) {
	hash, err := canonicaljson.Hash(req)
	if err != nil {
		return DeleteResult{}, errs.Internal("failed to hash bundle delete payload", err)
	}

	env, err := idempotency.Run(ctx, s.mediator, idempotency.MutationContext{
		IdempotencyKey: req.IdempotencyKey,
		UserID:         req.UserID,
		MutationKind:   types.MutationBundles,
		PayloadHash:    hash,
	}, func(ctx context.Context) (uuid.UUID, error) {
		return req.BundleID, s.applyDelete(ctx, req)
	})
	if err != nil {
		return DeleteResult{}, err
	}
	return DeleteResult{BundleID: env.Response, Replayed: env.Replayed}, nil
}

func (s *Service) applyDelete(ctx context.Context, req DeleteRequest) error {
	current, err := s.repo.Load(ctx, req.BundleID)
	if err != nil {
		return errs.ServiceUnavailable("failed to load bundle", err)
	}
	if current == nil {
		return errs.NotFound("offline bundle not found")
	}
	if _, err := s.repo.Delete(ctx, req.BundleID); err != nil {
		return errs.ServiceUnavailable("failed to delete bundle", err)
	}
	return nil
}
