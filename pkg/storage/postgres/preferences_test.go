package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/leynos/wildside-core/pkg/errs"
	"github.com/leynos/wildside-core/pkg/preferences"
	"github.com/leynos/wildside-core/pkg/types"
)

func TestPreferencesRepository_Load_NotFoundReturnsZeroRevision(t *testing.T) {
	db, mock := newMockedDB(t)
	repo := NewPreferencesRepository(db)
	userID := newMockUserID(t)

	mock.ExpectQuery("SELECT interest_theme_ids").
		WithArgs(userID.UUID()).
		WillReturnError(sql.ErrNoRows)

	got, err := repo.Load(context.Background(), userID)
	require.NoError(t, err)
	require.Equal(t, int64(0), got.Revision)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPreferencesRepository_Save_ConflictWhenNoRowsAffected(t *testing.T) {
	db, mock := newMockedDB(t)
	repo := NewPreferencesRepository(db)
	userID := newMockUserID(t)

	mock.ExpectExec("INSERT INTO user_preferences").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Save(context.Background(), preferences.Preferences{
		UserID:     userID,
		UnitSystem: types.UnitSystemMetric,
		Revision:   3,
		UpdatedAt:  time.Now().UTC(),
	})

	require.Error(t, err)
	wErr, ok := errs.As(err)
	require.True(t, ok)
	require.Equal(t, errs.CodeConflict, wErr.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPreferencesRepository_Save_SucceedsOnSingleRowUpdate(t *testing.T) {
	db, mock := newMockedDB(t)
	repo := NewPreferencesRepository(db)
	userID := newMockUserID(t)

	mock.ExpectExec("INSERT INTO user_preferences").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Save(context.Background(), preferences.Preferences{
		UserID:     userID,
		UnitSystem: types.UnitSystemMetric,
		Revision:   1,
		UpdatedAt:  time.Now().UTC(),
	})

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func newMockUserID(t *testing.T) types.UserID {
	t.Helper()
	id, err := types.NewUserID(uuid.New().String())
	require.NoError(t, err)
	return id
}
