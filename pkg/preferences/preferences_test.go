package preferences

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
	rows map[string]Preferences
}

func newMemRepo() *memRepo { return &memRepo{rows: map[string]Preferences{}} }

func (r *memRepo) Load(ctx context.Context, userID types.UserID) (Preferences, error) {
	if p, ok := r.rows[userID.String()]; ok {
		return p, nil
	}
	return Preferences{UserID: userID, Revision: 0}, nil
}

func (r *memRepo) Save(ctx context.Context, next Preferences) error {
	current := r.rows[next.UserID.String()]
	if current.Revision != next.Revision-1 {
		return errs.RevisionConflict(next.Revision-1, current.Revision)
	}
	r.rows[next.UserID.String()] = next
	return nil
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

func TestUpdatePreferences_FirstWriteStartsAtRevisionOne(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, newMediator(), clock.NewMutable(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
	userID := newUserID(t)

	result, err := svc.UpdatePreferences(context.Background(), UpdateRequest{
		UserID:     userID,
		UnitSystem: types.UnitSystemMetric,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Preferences.Revision)
	assert.False(t, result.Replayed)
}

// TestUpdatePreferences_RevisionConflict_S6 reproduces scenario S6:
// existing preferences at revision 1, expected_revision=2 returns
// conflict with details.expected=2, details.actual=1, store unchanged.
func TestUpdatePreferences_RevisionConflict_S6(t *testing.T) {
	repo := newMemRepo()
	userID := newUserID(t)
	repo.rows[userID.String()] = Preferences{UserID: userID, UnitSystem: types.UnitSystemMetric, Revision: 1}

	svc := NewService(repo, newMediator(), clock.NewMutable(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
	expected := int64(2)

	_, err := svc.UpdatePreferences(context.Background(), UpdateRequest{
		UserID:           userID,
		UnitSystem:       types.UnitSystemImperial,
		ExpectedRevision: &expected,
	})
	require.Error(t, err)
	wErr, ok := errs.As(err)
	require.True(t, ok)
	assert.Equal(t, errs.CodeConflict, wErr.Code)
	assert.EqualValues(t, int64(2), wErr.Details.Expected)
	assert.EqualValues(t, int64(1), wErr.Details.Actual)
	assert.Equal(t, types.UnitSystemMetric, repo.rows[userID.String()].UnitSystem)
}

func TestUpdatePreferences_RejectsInvalidUnitSystem(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, newMediator(), clock.NewMutable(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))

	_, err := svc.UpdatePreferences(context.Background(), UpdateRequest{
		UserID:     newUserID(t),
		UnitSystem: types.UnitSystem("bogus"),
	})
	require.Error(t, err)
	wErr, ok := errs.As(err)
	require.True(t, ok)
	assert.Equal(t, errs.CodeInvalidRequest, wErr.Code)
}

func TestUpdatePreferences_ReplaysOnDuplicateIdempotencyKey(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, newMediator(), clock.NewMutable(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
	userID := newUserID(t)
	key, err := types.NewIdempotencyKey(uuid.New().String())
	require.NoError(t, err)

	req := UpdateRequest{UserID: userID, UnitSystem: types.UnitSystemMetric, IdempotencyKey: &key}

	first, err := svc.UpdatePreferences(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	second, err := svc.UpdatePreferences(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Preferences.Revision, second.Preferences.Revision)
}
