package bundles

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

type memRepo struct {
	rows map[uuid.UUID]Bundle
}

func newMemRepo() *memRepo { return &memRepo{rows: map[uuid.UUID]Bundle{}} }

func (r *memRepo) Load(ctx context.Context, bundleID uuid.UUID) (*Bundle, error) {
	if b, ok := r.rows[bundleID]; ok {
		return &b, nil
	}
	return nil, nil
}

func (r *memRepo) Save(ctx context.Context, next Bundle) error {
	r.rows[next.ID] = next
	return nil
}

func (r *memRepo) Delete(ctx context.Context, bundleID uuid.UUID) (bool, error) {
	if _, ok := r.rows[bundleID]; !ok {
		return false, nil
	}
	delete(r.rows, bundleID)
	return true, nil
}

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

func validBounds(t *testing.T) types.BoundingBox {
	t.Helper()
	bb, err := types.NewBoundingBox(-3.30, 55.90, -3.10, 56.00)
	require.NoError(t, err)
	return bb
}

func TestUpsertBundle_RejectsKindIDMismatch(t *testing.T) {
	svc := NewService(newMemRepo(), newMediator(), clock.NewMutable(time.Now()))
	routeID := uuid.New()
	regionID := uuid.New()

	_, err := svc.UpsertBundle(context.Background(), UpsertRequest{
		ID:        uuid.New(),
		UserID:    newUserID(t),
		DeviceID:  "device-1",
		Kind:      types.BundleKindRoute,
		RouteID:   &routeID,
		RegionID:  &regionID,
		Bounds:    validBounds(t),
		ZoomRange: types.ZoomRange{Min: 10, Max: 16},
		Status:    types.BundleStatusQueued,
		Progress:  0,
	})
	require.Error(t, err)
	wErr, ok := errs.As(err)
	require.True(t, ok)
	assert.Equal(t, errs.CodeInvalidRequest, wErr.Code)
}

// TestUpsertBundle_RejectsDownloadingAtBoundary resolves the spec's open
// question: Downloading rejects progress at exactly 0.0 or 1.0.
func TestUpsertBundle_RejectsDownloadingAtBoundary(t *testing.T) {
	svc := NewService(newMemRepo(), newMediator(), clock.NewMutable(time.Now()))
	routeID := uuid.New()

	_, err := svc.UpsertBundle(context.Background(), UpsertRequest{
		ID:        uuid.New(),
		UserID:    newUserID(t),
		DeviceID:  "device-1",
		Kind:      types.BundleKindRoute,
		RouteID:   &routeID,
		Bounds:    validBounds(t),
		ZoomRange: types.ZoomRange{Min: 10, Max: 16},
		Status:    types.BundleStatusDownloading,
		Progress:  1.0,
	})
	require.Error(t, err)
	wErr, ok := errs.As(err)
	require.True(t, ok)
	assert.Equal(t, errs.CodeInvalidRequest, wErr.Code)
}

func TestUpsertBundle_AcceptsValidDraft(t *testing.T) {
	svc := NewService(newMemRepo(), newMediator(), clock.NewMutable(time.Now()))
	routeID := uuid.New()

	result, err := svc.UpsertBundle(context.Background(), UpsertRequest{
		ID:        uuid.New(),
		UserID:    newUserID(t),
		DeviceID:  "device-1",
		Kind:      types.BundleKindRoute,
		RouteID:   &routeID,
		Bounds:    validBounds(t),
		ZoomRange: types.ZoomRange{Min: 10, Max: 16},
		Status:    types.BundleStatusQueued,
		Progress:  0,
	})
	require.NoError(t, err)
	assert.Equal(t, result.Bundle.CreatedAt, result.Bundle.UpdatedAt)
}

func TestDeleteBundle_NotFound(t *testing.T) {
	svc := NewService(newMemRepo(), newMediator(), clock.NewMutable(time.Now()))
	_, err := svc.DeleteBundle(context.Background(), DeleteRequest{BundleID: uuid.New(), UserID: newUserID(t)})
	require.Error(t, err)
	wErr, ok := errs.As(err)
	require.True(t, ok)
	assert.Equal(t, errs.CodeNotFound, wErr.Code)
}
