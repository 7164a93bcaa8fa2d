package postgres

import (
	"context"
	"encoding/json"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/leynos/wildside-core/pkg/walksessions"
)

// WalkSessionsRepository implements walksessions.Repository against
// walk_sessions. Primary and secondary stats are stored as jsonb; the
// table is append-only, so there is no conflicting-write case to
// guard against.
type WalkSessionsRepository struct {
	db *sqlx.DB
}

func NewWalkSessionsRepository(db *sqlx.DB) *WalkSessionsRepository {
	return &WalkSessionsRepository{db: db}
}

func (r *WalkSessionsRepository) Append(ctx context.Context, session walksessions.Session) error {
	primaryStats, err := json.Marshal(session.PrimaryStats)
	if err != nil {
		return err
	}
	secondaryStats, err := json.Marshal(session.SecondaryStats)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO walk_sessions
			(id, user_id, route_id, started_at, ended_at, primary_stats, secondary_stats, highlighted_poi_ids)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		session.ID, session.UserID.UUID(), session.RouteID, session.StartedAt, session.EndedAt,
		primaryStats, secondaryStats, pq.Array(session.HighlightedPOIIDs),
	)
	return err
}
