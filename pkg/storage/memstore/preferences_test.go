package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/leynos/wildside-core/pkg/errs"
	"github.com/leynos/wildside-core/pkg/preferences"
	"github.com/leynos/wildside-core/pkg/types"
)

func TestPreferencesRepository_LoadMissingReturnsZeroRevision(t *testing.T) {
	repo := NewPreferencesRepository()
	userID, err := types.NewUserID(uuid.New().String())
	require.NoError(t, err)

	got, err := repo.Load(context.Background(), userID)
	require.NoError(t, err)
	require.Equal(t, int64(0), got.Revision)
}

func TestPreferencesRepository_SaveRejectsStaleRevision(t *testing.T) {
	repo := NewPreferencesRepository()
	userID, err := types.NewUserID(uuid.New().String())
	require.NoError(t, err)

	require.NoError(t, repo.Save(context.Background(), preferences.Preferences{
		UserID: userID, UnitSystem: types.UnitSystemMetric, Revision: 1, UpdatedAt: time.Now().UTC(),
	}))

	err = repo.Save(context.Background(), preferences.Preferences{
		UserID: userID, UnitSystem: types.UnitSystemImperial, Revision: 1, UpdatedAt: time.Now().UTC(),
	})
	require.Error(t, err)
	wErr, ok := errs.As(err)
	require.True(t, ok)
	require.Equal(t, errs.CodeConflict, wErr.Code)

	current, err := repo.Load(context.Background(), userID)
	require.NoError(t, err)
	require.Equal(t, types.UnitSystemMetric, current.UnitSystem)
}

func TestPreferencesRepository_SaveAcceptsNextRevision(t *testing.T) {
	repo := NewPreferencesRepository()
	userID, err := types.NewUserID(uuid.New().String())
	require.NoError(t, err)

	require.NoError(t, repo.Save(context.Background(), preferences.Preferences{
		UserID: userID, UnitSystem: types.UnitSystemMetric, Revision: 1, UpdatedAt: time.Now().UTC(),
	}))
	require.NoError(t, repo.Save(context.Background(), preferences.Preferences{
		UserID: userID, UnitSystem: types.UnitSystemImperial, Revision: 2, UpdatedAt: time.Now().UTC(),
	}))

	current, err := repo.Load(context.Background(), userID)
	require.NoError(t, err)
	require.Equal(t, types.UnitSystemImperial, current.UnitSystem)
	require.Equal(t, int64(2), current.Revision)
}
