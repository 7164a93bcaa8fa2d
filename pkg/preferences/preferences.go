// Package preferences implements the update_preferences command: a
// revision-guarded CAS update over each user's interest themes, safety
// toggles, and unit system, routed through the idempotency mediator.
package preferences

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/leynos/wildside-core/pkg/canonicaljson"
	"github.com/leynos/wildside-core/pkg/errs"
	"github.com/leynos/wildside-core/pkg/idempotency"
	"github.com/leynos/wildside-core/pkg/types"
)

var validate = validator.New()

// Preferences is the persisted aggregate, keyed by UserID.
type Preferences struct {
	UserID           types.UserID
	InterestThemeIDs []uuid.UUID
	SafetyToggleIDs  []uuid.UUID
	UnitSystem       types.UnitSystem
	Revision         int64
	UpdatedAt        time.Time
}

// Repository is the revision store port for Preferences.
type Repository interface {
	// Load returns the current row, or a zero-revision Preferences if
	// none exists yet (preferences are created lazily on first read).
	Load(ctx context.Context, userID types.UserID) (Preferences, error)
	// Save performs the conditional update described in §4.5 step 4: it
	// succeeds only if the stored revision still equals next.Revision-1
	// (or the row does not yet exist, when next.Revision == 1).
	// Otherwise it returns *errs.Error with CodeConflict.
	Save(ctx context.Context, next Preferences) error
}

// UpdateRequest is update_preferences' input.
type UpdateRequest struct {
	UserID           types.UserID
	InterestThemeIDs []uuid.UUID `validate:"omitempty,dive,required"`
	SafetyToggleIDs  []uuid.UUID `validate:"omitempty,dive,required"`
	UnitSystem       types.UnitSystem
	ExpectedRevision *int64
	IdempotencyKey   *types.IdempotencyKey
}

// UpdateResult is update_preferences' output.
type UpdateResult struct {
	Preferences Preferences
	Replayed    bool
}

// Clock abstracts the wall clock read for UpdatedAt.
type Clock interface{ Now() time.Time }

// Service executes the preferences commands.
type Service struct {
	repo     Repository
	mediator *idempotency.Mediator
	clock    Clock
}

func NewService(repo Repository, mediator *idempotency.Mediator, c Clock) *Service {
	return &Service{repo: repo, mediator: mediator, clock: c}
}

// UpdatePreferences runs the common CAS pattern from §4.5.
func (s *Service) UpdatePreferences(ctx context.Context, req UpdateRequest) (UpdateResult, error) {
	if err := validate.Struct(req); err != nil {
		return UpdateResult{}, errs.InvalidRequest("invalid preferences update", &errs.Details{
			Field: "preferences", Code: "validation_failed",
		})
	}
	if !req.UnitSystem.Valid() {
		return UpdateResult{}, errs.InvalidRequest("invalid unit system", &errs.Details{
			Field: "unit_system", Code: "invalid_enum_value", Value: string(req.UnitSystem),
		})
	}

	hash, err := canonicaljson.Hash(req)
	if err != nil {
		return UpdateResult{}, errs.Internal("failed to hash preferences payload", err)
	}

	env, err := idempotency.Run(ctx, s.mediator, idempotency.MutationContext{
		IdempotencyKey: req.IdempotencyKey,
		UserID:         req.UserID,
		MutationKind:   types.MutationPreferences,
		PayloadHash:    hash,
	}, func(ctx context.Context) (Preferences, error) {
		return s.apply(ctx, req)
	})
	if err != nil {
		return UpdateResult{}, err
	}
	return UpdateResult{Preferences: env.Response, Replayed: env.Replayed}, nil
}

func (s *Service) apply(ctx context.Context, req UpdateRequest) (Preferences, error) {
	current, err := s.repo.Load(ctx, req.UserID)
	if err != nil {
		return Preferences{}, errs.ServiceUnavailable("failed to load preferences", err)
	}

	if req.ExpectedRevision != nil && *req.ExpectedRevision != current.Revision {
		return Preferences{}, errs.RevisionConflict(*req.ExpectedRevision, current.Revision)
	}

	next := Preferences{
		UserID:           req.UserID,
		InterestThemeIDs: req.InterestThemeIDs,
		SafetyToggleIDs:  req.SafetyToggleIDs,
		UnitSystem:       req.UnitSystem,
		Revision:         current.Revision + 1,
		UpdatedAt:        s.clock.Now(),
	}

	if err := s.repo.Save(ctx, next); err != nil {
		if wErr, ok := errs.As(err); ok && wErr.Code == errs.CodeConflict {
			return Preferences{}, err
		}
		return Preferences{}, errs.ServiceUnavailable("failed to save preferences", err)
	}
	return next, nil
}
