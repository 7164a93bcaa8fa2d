// Package routesubmission implements submit_route: an idempotency-only
// command over an opaque route request payload. Downstream route
// generation is out of scope; this package only allocates the request
// id and records the mediator snapshot.
package routesubmission

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/leynos/wildside-core/pkg/canonicaljson"
	"github.com/leynos/wildside-core/pkg/errs"
	"github.com/leynos/wildside-core/pkg/idempotency"
	"github.com/leynos/wildside-core/pkg/types"
)

// Status is submit_route's outcome discriminant.
type Status int

const (
	StatusAccepted Status = iota
	StatusReplayed
)

// IDAllocator mints the RequestID for a freshly accepted submission.
type IDAllocator interface {
	NewRequestID() uuid.UUID
}

// UUIDAllocator allocates request ids via google/uuid.
type UUIDAllocator struct{}

func (UUIDAllocator) NewRequestID() uuid.UUID { return uuid.New() }

// Request is submit_route's input.
type Request struct {
	UserID         types.UserID
	Payload        json.RawMessage
	IdempotencyKey *types.IdempotencyKey
}

// Result is submit_route's output.
type Result struct {
	RequestID uuid.UUID
	Status    Status
}

// Service executes submit_route.
type Service struct {
	mediator  *idempotency.Mediator
	allocator IDAllocator
}

func NewService(mediator *idempotency.Mediator, allocator IDAllocator) *Service {
	if allocator == nil {
		allocator = UUIDAllocator{}
	}
	return &Service{mediator: mediator, allocator: allocator}
}

func (s *Service) SubmitRoute(ctx context.Context, req Request) (Result, error) {
	hash, err := canonicaljson.HashRaw(req.Payload)
	if err != nil {
		return Result{}, errs.InvalidRequest("route payload is not valid JSON", &errs.Details{
			Field: "payload", Code: "malformed_json",
		})
	}

	env, err := idempotency.Run(ctx, s.mediator, idempotency.MutationContext{
		IdempotencyKey: req.IdempotencyKey,
		UserID:         req.UserID,
		MutationKind:   types.MutationRoutes,
		PayloadHash:    hash,
	}, func(ctx context.Context) (uuid.UUID, error) {
		return s.allocator.NewRequestID(), nil
	})
	if err != nil {
		return Result{}, err
	}

	status := StatusAccepted
	if env.Replayed {
		status = StatusReplayed
	}
	return Result{RequestID: env.Response, Status: status}, nil
}
