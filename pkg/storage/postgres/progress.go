package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/leynos/wildside-core/pkg/errs"
	"github.com/leynos/wildside-core/pkg/progress"
	"github.com/leynos/wildside-core/pkg/types"
)

// ProgressRepository implements progress.Repository against
// route_progress.
type ProgressRepository struct {
	db *sqlx.DB
}

func NewProgressRepository(db *sqlx.DB) *ProgressRepository {
	return &ProgressRepository{db: db}
}

func (r *ProgressRepository) Load(ctx context.Context, routeID uuid.UUID, userID types.UserID) (progress.Progress, error) {
	var (
		visitedStopIDs []uuid.UUID
		revision       int64
		updatedAt      time.Time
	)
	row := r.db.QueryRowContext(ctx, `
		SELECT visited_stop_ids, revision, updated_at
		FROM route_progress WHERE route_id = $1 AND user_id = $2`, routeID, userID.UUID())
	err := row.Scan(pq.Array(&visitedStopIDs), &revision, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return progress.Progress{RouteID: routeID, UserID: userID}, nil
		}
		return progress.Progress{}, err
	}
	return progress.Progress{
		RouteID:        routeID,
		UserID:         userID,
		VisitedStopIDs: visitedStopIDs,
		Revision:       revision,
		UpdatedAt:      updatedAt,
	}, nil
}

func (r *ProgressRepository) Save(ctx context.Context, next progress.Progress) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO route_progress (route_id, user_id, visited_stop_ids, revision, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (route_id, user_id) DO UPDATE SET
			visited_stop_ids = EXCLUDED.visited_stop_ids,
			revision = EXCLUDED.revision,
			updated_at = EXCLUDED.updated_at
		WHERE route_progress.revision = EXCLUDED.revision - 1`,
		next.RouteID, next.UserID.UUID(), pq.Array(next.VisitedStopIDs), next.Revision, next.UpdatedAt,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return errs.Conflict("progress revision mismatch", &errs.Details{
			Field: "expected_revision", Code: "revision_mismatch",
		})
	}
	return nil
}
