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
	"github.com/leynos/wildside-core/pkg/preferences"
	"github.com/leynos/wildside-core/pkg/types"
)

// PreferencesRepository implements preferences.Repository against
// user_preferences. uuid[] columns are bound through lib/pq's Array
// helper, since google/uuid.UUID already satisfies driver.Valuer and
// sql.Scanner.
type PreferencesRepository struct {
	db *sqlx.DB
}

func NewPreferencesRepository(db *sqlx.DB) *PreferencesRepository {
	return &PreferencesRepository{db: db}
}

func (r *PreferencesRepository) Load(ctx context.Context, userID types.UserID) (preferences.Preferences, error) {
	var (
		interestThemeIDs []uuid.UUID
		safetyToggleIDs  []uuid.UUID
		unitSystem       string
		revision         int64
		updatedAt        time.Time
	)
	row := r.db.QueryRowContext(ctx, `
		SELECT interest_theme_ids, safety_toggle_ids, unit_system, revision, updated_at
		FROM user_preferences WHERE user_id = $1`, userID.UUID())
	err := row.Scan(pq.Array(&interestThemeIDs), pq.Array(&safetyToggleIDs), &unitSystem, &revision, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return preferences.Preferences{UserID: userID}, nil
		}
		return preferences.Preferences{}, err
	}
	return preferences.Preferences{
		UserID:           userID,
		InterestThemeIDs: interestThemeIDs,
		SafetyToggleIDs:  safetyToggleIDs,
		UnitSystem:       types.UnitSystem(unitSystem),
		Revision:         revision,
		UpdatedAt:        updatedAt,
	}, nil
}

func (r *PreferencesRepository) Save(ctx context.Context, next preferences.Preferences) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO user_preferences (user_id, interest_theme_ids, safety_toggle_ids, unit_system, revision, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE SET
			interest_theme_ids = EXCLUDED.interest_theme_ids,
			safety_toggle_ids = EXCLUDED.safety_toggle_ids,
			unit_system = EXCLUDED.unit_system,
			revision = EXCLUDED.revision,
			updated_at = EXCLUDED.updated_at
		WHERE user_preferences.revision = EXCLUDED.revision - 1`,
		next.UserID.UUID(), pq.Array(next.InterestThemeIDs), pq.Array(next.SafetyToggleIDs),
		string(next.UnitSystem), next.Revision, next.UpdatedAt,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return errs.Conflict("preferences revision mismatch", &errs.Details{
			Field: "expected_revision", Code: "revision_mismatch",
		})
	}
	return nil
}
