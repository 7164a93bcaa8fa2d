package routesubmission

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/leynos/wildside-core/pkg/clock"
	"github.com/leynos/wildside-core/pkg/errs"
	"github.com/leynos/wildside-core/pkg/idempotency"
	"github.com/leynos/wildside-core/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memIdempotencyRepo struct {
	claims map[string]idempotency.Record
}

func newMediator() *idempotency.Mediator {
	repo := &memIdempotencyRepo{claims: map[string]idempotency.Record{}}
	c := clock.NewMutable(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	return idempotency.NewMediator(repo, c, c, idempotency.DefaultRaceResolutionConfig())
}

func (r *memIdempotencyRepo) key(k types.IdempotencyKey, userID types.UserID, kind types.MutationKind) string {
	return k.String() + "|" + userID.String() + "|" + string(kind)
}

func (r *memIdempotencyRepo) Claim(ctx context.Context, rec idempotency.Record) error {
	k := r.key(rec.Key, rec.UserID, rec.MutationKind)
	if _, ok := r.claims[k]; ok {
		return idempotency.ErrDuplicateKey
	}
	r.claims[k] = rec
	return nil
}

func (r *memIdempotencyRepo) Lookup(ctx context.Context, key types.IdempotencyKey, userID types.UserID, kind types.MutationKind, hash types.PayloadHash) (idempotency.LookupResult, error) {
	rec, ok := r.claims[r.key(key, userID, kind)]
	if !ok {
		return idempotency.LookupResult{Outcome: idempotency.LookupNotFound}, nil
	}
	if rec.PayloadHash != hash {
		return idempotency.LookupResult{Outcome: idempotency.LookupConflictingPayload, Record: rec}, nil
	}
	return idempotency.LookupResult{Outcome: idempotency.LookupMatchingPayload, Record: rec}, nil
}

func (r *memIdempotencyRepo) UpdateSnapshot(ctx context.Context, key types.IdempotencyKey, userID types.UserID, kind types.MutationKind, snapshot json.RawMessage) error {
	k := r.key(key, userID, kind)
	rec := r.claims[k]
	rec.ResponseSnapshot = snapshot
	r.claims[k] = rec
	return nil
}

func (r *memIdempotencyRepo) CleanupExpired(ctx context.Context, ttl time.Duration) (int64, error) {
	return 0, nil
}

func newUserID(t *testing.T) types.UserID {
	t.Helper()
	id, err := types.NewUserID(uuid.New().String())
	require.NoError(t, err)
	return id
}

func TestSubmitRoute_RejectsMalformedPayload(t *testing.T) {
	svc := NewService(newMediator(), nil)
	_, err := svc.SubmitRoute(context.Background(), Request{
		UserID:  newUserID(t),
		Payload: json.RawMessage(`{not json`),
	})
	require.Error(t, err)
	wErr, ok := errs.As(err)
	require.True(t, ok)
	assert.Equal(t, errs.CodeInvalidRequest, wErr.Code)
}

func TestSubmitRoute_AcceptsThenReplays(t *testing.T) {
	svc := NewService(newMediator(), nil)
	userID := newUserID(t)
	key, err := types.NewIdempotencyKey(uuid.New().String())
	require.NoError(t, err)

	req := Request{UserID: userID, Payload: json.RawMessage(`{"waypoints":["a","b"]}`), IdempotencyKey: &key}

	first, err := svc.SubmitRoute(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, first.Status)

	second, err := svc.SubmitRoute(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, StatusReplayed, second.Status)
	assert.Equal(t, first.RequestID, second.RequestID)
}

func TestSubmitRoute_WithoutKeyNeverReplays(t *testing.T) {
	svc := NewService(newMediator(), nil)
	userID := newUserID(t)
	req := Request{UserID: userID, Payload: json.RawMessage(`{"waypoints":["a"]}`)}

	first, err := svc.SubmitRoute(context.Background(), req)
	require.NoError(t, err)
	second, err := svc.SubmitRoute(context.Background(), req)
	require.NoError(t, err)
	assert.NotEqual(t, first.RequestID, second.RequestID)
	assert.Equal(t, StatusAccepted, second.Status)
}
