package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/leynos/wildside-core/pkg/errs"
	"github.com/leynos/wildside-core/pkg/notes"
	"github.com/leynos/wildside-core/pkg/types"
)

// NotesRepository implements notes.Repository against route_notes.
type NotesRepository struct {
	db *sqlx.DB
}

func NewNotesRepository(db *sqlx.DB) *NotesRepository {
	return &NotesRepository{db: db}
}

func (r *NotesRepository) Load(ctx context.Context, noteID uuid.UUID) (notes.Note, error) {
	var (
		routeID   uuid.UUID
		userID    uuid.UUID
		poiID     *uuid.UUID
		body      string
		revision  int64
		createdAt time.Time
		updatedAt time.Time
	)
	row := r.db.QueryRowContext(ctx, `
		SELECT route_id, poi_id, user_id, body, revision, created_at, updated_at
		FROM route_notes WHERE id = $1`, noteID)
	err := row.Scan(&routeID, &poiID, &userID, &body, &revision, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return notes.Note{ID: noteID}, nil
		}
		return notes.Note{}, err
	}
	return notes.Note{
		ID:        noteID,
		RouteID:   routeID,
		UserID:    types.UserIDFromUUID(userID),
		POIID:     poiID,
		Body:      body,
		Revision:  revision,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}, nil
}

func (r *NotesRepository) Save(ctx context.Context, next notes.Note) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO route_notes (id, route_id, poi_id, user_id, body, revision, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			route_id = EXCLUDED.route_id,
			poi_id = EXCLUDED.poi_id,
			body = EXCLUDED.body,
			revision = EXCLUDED.revision,
			updated_at = EXCLUDED.updated_at
		WHERE route_notes.revision = EXCLUDED.revision - 1`,
		next.ID, next.RouteID, next.POIID, next.UserID.UUID(), next.Body, next.Revision, next.CreatedAt, next.UpdatedAt,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return errs.Conflict("note revision mismatch", &errs.Details{
			Field: "expected_revision", Code: "revision_mismatch",
		})
	}
	return nil
}

func (r *NotesRepository) Delete(ctx context.Context, noteID uuid.UUID) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM route_notes WHERE id = $1`, noteID)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}
