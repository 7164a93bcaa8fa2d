package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/leynos/wildside-core/pkg/idempotency"
	"github.com/leynos/wildside-core/pkg/types"
)

// uniqueViolation is Postgres' SQLSTATE for a unique-index conflict.
const uniqueViolation = "23505"

// IdempotencyRepository implements idempotency.Repository against
// idempotency_keys.
type IdempotencyRepository struct {
	db *sqlx.DB
}

func NewIdempotencyRepository(db *sqlx.DB) *IdempotencyRepository {
	return &IdempotencyRepository{db: db}
}

type idempotencyRow struct {
	Key              string          `db:"key"`
	UserID           string          `db:"user_id"`
	MutationType     string          `db:"mutation_type"`
	PayloadHash      []byte          `db:"payload_hash"`
	ResponseSnapshot json.RawMessage `db:"response_snapshot"`
	CreatedAt        time.Time       `db:"created_at"`
}

func (r *IdempotencyRepository) Claim(ctx context.Context, rec idempotency.Record) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO idempotency_keys (key, user_id, mutation_type, payload_hash, response_snapshot, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.Key.UUID(), rec.UserID.UUID(), string(rec.MutationKind), rec.PayloadHash.Bytes(), rec.ResponseSnapshot, rec.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return idempotency.ErrDuplicateKey
		}
		return err
	}
	return nil
}

func (r *IdempotencyRepository) Lookup(ctx context.Context, key types.IdempotencyKey, userID types.UserID, kind types.MutationKind, hash types.PayloadHash) (idempotency.LookupResult, error) {
	var row idempotencyRow
	err := r.db.GetContext(ctx, &row, `
		SELECT key, user_id, mutation_type, payload_hash, response_snapshot, created_at
		FROM idempotency_keys
		WHERE key = $1 AND user_id = $2 AND mutation_type = $3`,
		key.UUID(), userID.UUID(), string(kind),
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return idempotency.LookupResult{Outcome: idempotency.LookupNotFound}, nil
		}
		return idempotency.LookupResult{}, err
	}

	storedHash, err := types.PayloadHashFromBytes(row.PayloadHash)
	if err != nil {
		return idempotency.LookupResult{}, err
	}

	rec := idempotency.Record{
		Key:              key,
		UserID:           userID,
		MutationKind:     kind,
		PayloadHash:      storedHash,
		ResponseSnapshot: row.ResponseSnapshot,
		CreatedAt:        row.CreatedAt,
	}
	if storedHash != hash {
		return idempotency.LookupResult{Outcome: idempotency.LookupConflictingPayload, Record: rec}, nil
	}
	return idempotency.LookupResult{Outcome: idempotency.LookupMatchingPayload, Record: rec}, nil
}

func (r *IdempotencyRepository) UpdateSnapshot(ctx context.Context, key types.IdempotencyKey, userID types.UserID, kind types.MutationKind, snapshot json.RawMessage) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE idempotency_keys SET response_snapshot = $4
		WHERE key = $1 AND user_id = $2 AND mutation_type = $3`,
		key.UUID(), userID.UUID(), string(kind), snapshot,
	)
	return err
}

func (r *IdempotencyRepository) CleanupExpired(ctx context.Context, ttl time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-ttl)
	res, err := r.db.ExecContext(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
