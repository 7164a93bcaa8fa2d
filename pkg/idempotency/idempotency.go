// Package idempotency implements the claim/replay protocol every mutating
// command in this core goes through: a single Mediator wraps a pure
// business operation and a canonical payload hash, resolves concurrent
// duplicate submissions via a bounded race-resolution loop, and
// distinguishes in-flight, failed, and completed outcomes.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/leynos/wildside-core/pkg/clock"
	"github.com/leynos/wildside-core/pkg/errs"
	"github.com/leynos/wildside-core/pkg/log"
	"github.com/leynos/wildside-core/pkg/types"
	"github.com/rs/zerolog"
)

// state markers reserved in the response_snapshot JSON column. A command
// layer must never return a typed response envelope whose canonical JSON
// happens to collide with one of these objects.
const (
	stateKey        = "__idempotency_state"
	stateInProgress = "in_progress"
	stateFailed     = "failed"
)

// Record is one durable idempotency claim/replay row.
type Record struct {
	Key              types.IdempotencyKey
	UserID           types.UserID
	MutationKind     types.MutationKind
	PayloadHash      types.PayloadHash
	ResponseSnapshot json.RawMessage
	CreatedAt        time.Time
}

// LookupOutcome is the closed set of results a scoped lookup can return.
type LookupOutcome int

const (
	LookupNotFound LookupOutcome = iota
	LookupMatchingPayload
	LookupConflictingPayload
)

// LookupResult pairs the outcome with the record when one was found.
type LookupResult struct {
	Outcome LookupOutcome
	Record  Record
}

// ErrDuplicateKey is returned by Repository.Claim when a record already
// exists for (key, user, kind) — the race-resolution trigger.
var ErrDuplicateKey = errors.New("idempotency: duplicate key")

// Repository is the durable key/value/claim port behind the mediator.
// Implementations must make Claim observably atomic: a duplicate insert
// must see the first insert's state (linearisability via a unique index),
// and the mediator never holds a lock across a call to Repository or to
// the wrapped operation.
type Repository interface {
	// Claim inserts an in-progress record, or returns ErrDuplicateKey if
	// one already exists for (key, user_id, mutation_kind).
	Claim(ctx context.Context, rec Record) error
	// Lookup resolves a scoped lookup by (key, user, kind, payload hash).
	Lookup(ctx context.Context, key types.IdempotencyKey, userID types.UserID, kind types.MutationKind, hash types.PayloadHash) (LookupResult, error)
	// UpdateSnapshot overwrites the response_snapshot for an existing
	// claim, scoped the same way as Lookup.
	UpdateSnapshot(ctx context.Context, key types.IdempotencyKey, userID types.UserID, kind types.MutationKind, snapshot json.RawMessage) error
	// CleanupExpired deletes records older than ttl and returns the
	// number of rows deleted. Never called from a request path.
	CleanupExpired(ctx context.Context, ttl time.Duration) (int64, error)
}

// RaceResolutionConfig bounds the duplicate-claim race resolution loop.
// The spec's default is 20 retries spaced 25ms apart (~500ms worst case).
type RaceResolutionConfig struct {
	MaxRetries int
	Interval   time.Duration
}

func DefaultRaceResolutionConfig() RaceResolutionConfig {
	return RaceResolutionConfig{MaxRetries: 20, Interval: 25 * time.Millisecond}
}

// Mediator wraps every mutating command with the claim/replay protocol.
type Mediator struct {
	repo   Repository
	clock  clock.Clock
	sleep  clock.Sleeper
	race   RaceResolutionConfig
	logger zerolog.Logger
}

// NewMediator constructs a Mediator. Pass clock.System{} in production and
// a clock.Mutable in tests.
func NewMediator(repo Repository, c clock.Clock, sleeper clock.Sleeper, race RaceResolutionConfig) *Mediator {
	return &Mediator{
		repo:   repo,
		clock:  c,
		sleep:  sleeper,
		race:   race,
		logger: log.WithComponent("idempotency"),
	}
}

// MutationContext carries the per-call mediation parameters.
type MutationContext struct {
	IdempotencyKey *types.IdempotencyKey
	UserID         types.UserID
	MutationKind   types.MutationKind
	PayloadHash    types.PayloadHash
}

// Envelope wraps a command response with the replay flag every mediated
// response must carry.
type Envelope[T any] struct {
	Response T
	Replayed bool
}

// Run executes op under the idempotency protocol described in §4.3. If
// mctx.IdempotencyKey is nil, op runs unmediated and Replayed is always
// false.
func Run[T any](ctx context.Context, m *Mediator, mctx MutationContext, op func(context.Context) (T, error)) (Envelope[T], error) {
	if mctx.IdempotencyKey == nil {
		resp, err := op(ctx)
		if err != nil {
			var zero T
			return Envelope[T]{Response: zero}, err
		}
		return Envelope[T]{Response: resp, Replayed: false}, nil
	}

	key := *mctx.IdempotencyKey
	claim := Record{
		Key:              key,
		UserID:           mctx.UserID,
		MutationKind:     mctx.MutationKind,
		PayloadHash:      mctx.PayloadHash,
		ResponseSnapshot: inProgressSnapshot(),
		CreatedAt:        m.clock.Now(),
	}

	err := m.repo.Claim(ctx, claim)
	switch {
	case err == nil:
		return executeAndRecord(ctx, m, mctx, op)
	case errors.Is(err, ErrDuplicateKey):
		return resolveRace[T](ctx, m, mctx)
	default:
		var zero T
		return Envelope[T]{Response: zero}, errs.ServiceUnavailable("idempotency claim failed", err)
	}
}

// executeAndRecord runs op after a fresh claim succeeded, persisting the
// terminal snapshot (response or failed marker) per §4.3.1 steps 2–3. A
// best-effort failure to persist the failed marker is logged, never
// propagated over the operation's own error.
func executeAndRecord[T any](ctx context.Context, m *Mediator, mctx MutationContext, op func(context.Context) (T, error)) (Envelope[T], error) {
	key := *mctx.IdempotencyKey

	resp, opErr := op(ctx)
	if opErr != nil {
		if err := m.repo.UpdateSnapshot(ctx, key, mctx.UserID, mctx.MutationKind, failedSnapshot()); err != nil {
			m.logger.Warn().Err(err).Str("key", key.String()).Msg("failed to persist failed idempotency snapshot")
		}
		var zero T
		return Envelope[T]{Response: zero}, opErr
	}

	snapshot, err := json.Marshal(resp)
	if err != nil {
		var zero T
		return Envelope[T]{Response: zero}, errs.Internal("failed to serialise mediated response", err)
	}

	if err := m.repo.UpdateSnapshot(ctx, key, mctx.UserID, mctx.MutationKind, snapshot); err != nil {
		var zero T
		return Envelope[T]{Response: zero}, errs.ServiceUnavailable("failed to persist mediated response", err)
	}

	return Envelope[T]{Response: resp, Replayed: false}, nil
}

// resolveRace implements §4.3.2: one lookup plus up to race.MaxRetries
// retries spaced race.Interval apart, distinguishing not-found, in-progress, failed, and
// concrete-response snapshots, plus the conflicting-payload short circuit.
func resolveRace[T any](ctx context.Context, m *Mediator, mctx MutationContext) (Envelope[T], error) {
	key := *mctx.IdempotencyKey
	var zero T

	for attempt := 0; attempt <= m.race.MaxRetries; attempt++ {
		result, err := m.repo.Lookup(ctx, key, mctx.UserID, mctx.MutationKind, mctx.PayloadHash)
		if err != nil {
			return Envelope[T]{Response: zero}, errs.ServiceUnavailable("idempotency lookup failed", err)
		}

		switch result.Outcome {
		case LookupConflictingPayload:
			return Envelope[T]{Response: zero}, errs.Conflict(
				"idempotency key already used with different payload",
				&errs.Details{Field: "idempotency_key", Code: "payload_conflict"},
			)

		case LookupNotFound:
			if isLastAttempt(attempt, m.race.MaxRetries) {
				return Envelope[T]{Response: zero}, errs.Internal("idempotency record disappeared during race resolution", nil)
			}
			if err := m.sleep.Sleep(ctx, m.race.Interval); err != nil {
				return Envelope[T]{Response: zero}, errs.ServiceUnavailable("idempotency race wait interrupted", err)
			}
			continue

		case LookupMatchingPayload:
			marker, isMarker := stateMarker(result.Record.ResponseSnapshot)
			switch {
			case isMarker && marker == stateInProgress:
				if isLastAttempt(attempt, m.race.MaxRetries) {
					return Envelope[T]{Response: zero}, errs.ServiceUnavailable("request still in progress", nil)
				}
				if err := m.sleep.Sleep(ctx, m.race.Interval); err != nil {
					return Envelope[T]{Response: zero}, errs.ServiceUnavailable("idempotency race wait interrupted", err)
				}
				continue

			case isMarker && marker == stateFailed:
				return Envelope[T]{Response: zero}, errs.ServiceUnavailable("retry with a new idempotency key", nil)

			default:
				var resp T
				if err := json.Unmarshal(result.Record.ResponseSnapshot, &resp); err != nil {
					return Envelope[T]{Response: zero}, errs.Internal("failed to deserialise replayed response", err)
				}
				return Envelope[T]{Response: resp, Replayed: true}, nil
			}
		}
	}

	return Envelope[T]{Response: zero}, errs.ServiceUnavailable("idempotency race resolution exhausted retries", nil)
}

// CleanupExpired deletes idempotency records older than ttl. It is meant
// to be invoked from a periodic sweep (pkg/cleanup), never from a request
// path, per §4.3.4.
func (m *Mediator) CleanupExpired(ctx context.Context, ttl time.Duration) (int64, error) {
	deleted, err := m.repo.CleanupExpired(ctx, ttl)
	if err != nil {
		return 0, errs.ServiceUnavailable("idempotency cleanup failed", err)
	}
	return deleted, nil
}

func isLastAttempt(attempt, maxRetries int) bool { return attempt == maxRetries }

func inProgressSnapshot() json.RawMessage {
	return json.RawMessage(`{"` + stateKey + `":"` + stateInProgress + `"}`)
}

func failedSnapshot() json.RawMessage {
	return json.RawMessage(`{"` + stateKey + `":"` + stateFailed + `"}`)
}

func stateMarker(snapshot json.RawMessage) (string, bool) {
	var probe map[string]any
	if err := json.Unmarshal(snapshot, &probe); err != nil {
		return "", false
	}
	v, ok := probe[stateKey]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
