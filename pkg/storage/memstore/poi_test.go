package memstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/leynos/wildside-core/pkg/poi"
	"github.com/leynos/wildside-core/pkg/types"
)

func TestPOIRepository_UpsertPOIs_OverwritesByElementKey(t *testing.T) {
	repo := NewPOIRepository()

	require.NoError(t, repo.UpsertPOIs(context.Background(), []poi.POI{
		{ElementType: types.ElementNode, ElementID: 1, Lng: 0, Lat: 1},
	}))
	require.NoError(t, repo.UpsertPOIs(context.Background(), []poi.POI{
		{ElementType: types.ElementNode, ElementID: 1, Lng: 9, Lat: 9},
	}))

	snapshot := repo.Snapshot()
	require.Len(t, snapshot, 1)
	require.Equal(t, 9.0, snapshot[0].Lng)
}

func TestPOIRepository_UpsertPOIs_DistinctKeysAccumulate(t *testing.T) {
	repo := NewPOIRepository()

	require.NoError(t, repo.UpsertPOIs(context.Background(), []poi.POI{
		{ElementType: types.ElementNode, ElementID: 1},
		{ElementType: types.ElementWay, ElementID: 1},
	}))

	require.Len(t, repo.Snapshot(), 2)
}
