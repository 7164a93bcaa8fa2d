// Package walksessions implements create_walk_session: an append-only
// record of one completed or in-progress walk, with its stats and
// highlighted points of interest.
package walksessions

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/leynos/wildside-core/pkg/canonicaljson"
	"github.com/leynos/wildside-core/pkg/errs"
	"github.com/leynos/wildside-core/pkg/idempotency"
	"github.com/leynos/wildside-core/pkg/types"
)

// Stat is one nonnegative, finite walk statistic.
type Stat struct {
	Kind  types.WalkStatKind
	Value float64
}

// SecondaryStat is a detail-level stat with a display unit.
type SecondaryStat struct {
	Kind  types.WalkStatKind
	Value float64
	Unit  string
}

// Session is the persisted, append-only aggregate.
type Session struct {
	ID                uuid.UUID
	UserID            types.UserID
	RouteID           uuid.UUID
	StartedAt         time.Time
	EndedAt           *time.Time
	PrimaryStats      []Stat
	SecondaryStats    []SecondaryStat
	HighlightedPOIIDs []uuid.UUID
}

// Repository is the append-only store port.
type Repository interface {
	Append(ctx context.Context, session Session) error
}

// Service executes the walk session commands.
type Service struct {
	repo     Repository
	mediator *idempotency.Mediator
}

func NewService(repo Repository, mediator *idempotency.Mediator) *Service {
	return &Service{repo: repo, mediator: mediator}
}

// CreateRequest is create_walk_session's input: a full session draft.
type CreateRequest struct {
	ID                uuid.UUID
	UserID            types.UserID
	RouteID           uuid.UUID
	StartedAt         time.Time
	EndedAt           *time.Time
	PrimaryStats      []Stat
	SecondaryStats    []SecondaryStat
	HighlightedPOIIDs []uuid.UUID
	IdempotencyKey    *types.IdempotencyKey
}

// CompletionSummary is present iff the session draft carries an
// EndedAt.
type CompletionSummary struct {
	PrimaryStats   []Stat
	SecondaryStats []SecondaryStat
}

// CreateResult is create_walk_session's output.
type CreateResult struct {
	SessionID         uuid.UUID
	CompletionSummary *CompletionSummary
	Replayed          bool
}

func (s *Service) CreateWalkSession(ctx context.Context, req CreateRequest) (CreateResult, error) {
	normalized, err := validateAndNormalize(req)
	if err != nil {
		return CreateResult{}, err
	}

	hash, err := canonicaljson.Hash(normalized)
	if err != nil {
		return CreateResult{}, errs.Internal("failed to hash walk session payload", err)
	}

	env, err := idempotency.Run(ctx, s.mediator, idempotency.MutationContext{
		IdempotencyKey: normalized.IdempotencyKey,
		UserID:         normalized.UserID,
		MutationKind:   types.MutationRoutes,
		PayloadHash:    hash,
	}, func(ctx context.Context) (CreateResult, error) {
		return s.apply(ctx, normalized)
	})
	if err != nil {
		return CreateResult{}, err
	}
	result := env.Response
	result.Replayed = env.Replayed
	return result, nil
}

func (s *Service) apply(ctx context.Context, req CreateRequest) (CreateResult, error) {
	session := Session{
		ID:                req.ID,
		UserID:            req.UserID,
		RouteID:           req.RouteID,
		StartedAt:         req.StartedAt,
		EndedAt:           req.EndedAt,
		PrimaryStats:      req.PrimaryStats,
		SecondaryStats:    req.SecondaryStats,
		HighlightedPOIIDs: req.HighlightedPOIIDs,
	}

	if err := s.repo.Append(ctx, session); err != nil {
		return CreateResult{}, errs.ServiceUnavailable("failed to append walk session", err)
	}

	result := CreateResult{SessionID: req.ID}
	if req.EndedAt != nil {
		result.CompletionSummary = &CompletionSummary{
			PrimaryStats:   req.PrimaryStats,
			SecondaryStats: req.SecondaryStats,
		}
	}
	return result, nil
}

func validateAndNormalize(req CreateRequest) (CreateRequest, error) {
	if req.EndedAt != nil && req.EndedAt.Before(req.StartedAt) {
		return req, errs.InvalidRequest("ended_at must not precede started_at", &errs.Details{
			Field: "ended_at", Code: "ended_before_started",
		})
	}

	for i, stat := range req.PrimaryStats {
		if err := validateStatValue("primary_stats", i, stat.Value); err != nil {
			return req, err
		}
	}

	normalizedSecondary := make([]SecondaryStat, len(req.SecondaryStats))
	for i, stat := range req.SecondaryStats {
		if err := validateStatValue("secondary_stats", i, stat.Value); err != nil {
			return req, err
		}
		unit := strings.TrimSpace(stat.Unit)
		if unit == "" {
			idx := i
			return req, errs.InvalidRequest("secondary stat unit must not be empty", &errs.Details{
				Field: "secondary_stats.unit", Index: &idx, Code: "empty_unit",
			})
		}
		stat.Unit = unit
		normalizedSecondary[i] = stat
	}
	req.SecondaryStats = normalizedSecondary

	return req, nil
}

func validateStatValue(field string, index int, value float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		idx := index
		return errs.InvalidRequest("walk stat must be a nonnegative finite number", &errs.Details{
			Field: field, Index: &idx, Code: "invalid_stat_value",
		})
	}
	return nil
}
