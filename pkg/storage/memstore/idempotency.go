// Package memstore implements every repository port this core defines
// as an in-process, mutex-guarded map, for local development and for
// wiring tests that exercise a real Service against a real Repository
// without a database.
package memstore

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/leynos/wildside-core/pkg/idempotency"
	"github.com/leynos/wildside-core/pkg/types"
)

type idempotencyKey struct {
	key    string
	userID string
	kind   types.MutationKind
}

// IdempotencyRepository implements idempotency.Repository over a
// mutex-guarded map.
type IdempotencyRepository struct {
	mu      sync.Mutex
	records map[idempotencyKey]idempotency.Record
}

func NewIdempotencyRepository() *IdempotencyRepository {
	return &IdempotencyRepository{records: make(map[idempotencyKey]idempotency.Record)}
}

func keyFor(key types.IdempotencyKey, userID types.UserID, kind types.MutationKind) idempotencyKey {
	return idempotencyKey{key: key.UUID().String(), userID: userID.UUID().String(), kind: kind}
}

func (r *IdempotencyRepository) Claim(ctx context.Context, rec idempotency.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := keyFor(rec.Key, rec.UserID, rec.MutationKind)
	if _, exists := r.records[k]; exists {
		return idempotency.ErrDuplicateKey
	}
	r.records[k] = rec
	return nil
}

func (r *IdempotencyRepository) Lookup(ctx context.Context, key types.IdempotencyKey, userID types.UserID, kind types.MutationKind, hash types.PayloadHash) (idempotency.LookupResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[keyFor(key, userID, kind)]
	if !ok {
		return idempotency.LookupResult{Outcome: idempotency.LookupNotFound}, nil
	}
	if rec.PayloadHash != hash {
		return idempotency.LookupResult{Outcome: idempotency.LookupConflictingPayload, Record: rec}, nil
	}
	return idempotency.LookupResult{Outcome: idempotency.LookupMatchingPayload, Record: rec}, nil
}

func (r *IdempotencyRepository) UpdateSnapshot(ctx context.Context, key types.IdempotencyKey, userID types.UserID, kind types.MutationKind, snapshot json.RawMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := keyFor(key, userID, kind)
	rec, ok := r.records[k]
	if !ok {
		return nil
	}
	rec.ResponseSnapshot = snapshot
	r.records[k] = rec
	return nil
}

func (r *IdempotencyRepository) CleanupExpired(ctx context.Context, ttl time.Duration) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := time.Now().UTC().Add(-ttl)
	var removed int64
	for k, rec := range r.records {
		if rec.CreatedAt.Before(cutoff) {
			delete(r.records, k)
			removed++
		}
	}
	return removed, nil
}
