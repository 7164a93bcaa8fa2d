package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/leynos/wildside-core/pkg/bundles"
	"github.com/leynos/wildside-core/pkg/types"
)

// BundlesRepository implements bundles.Repository against
// offline_bundles. Bundles carry no expected_revision in their
// contract, so Save is a plain upsert rather than a conditional
// update.
type BundlesRepository struct {
	db *sqlx.DB
}

func NewBundlesRepository(db *sqlx.DB) *BundlesRepository {
	return &BundlesRepository{db: db}
}

func (r *BundlesRepository) Load(ctx context.Context, bundleID uuid.UUID) (*bundles.Bundle, error) {
	var (
		ownerUserID                              *uuid.UUID
		deviceID, kind, status                    string
		routeID, regionID                         *uuid.UUID
		minLng, minLat, maxLng, maxLat            float64
		zoomMin, zoomMax                          int
		sizeBytes                                 int64
		progress                                  float64
		createdAt, updatedAt                      time.Time
	)
	row := r.db.QueryRowContext(ctx, `
		SELECT owner_user_id, device_id, kind, route_id, region_id,
			bounds_min_lng, bounds_min_lat, bounds_max_lng, bounds_max_lat,
			zoom_min, zoom_max, size_bytes, status, progress, created_at, updated_at
		FROM offline_bundles WHERE id = $1`, bundleID)
	err := row.Scan(&ownerUserID, &deviceID, &kind, &routeID, &regionID,
		&minLng, &minLat, &maxLng, &maxLat, &zoomMin, &zoomMax, &sizeBytes,
		&status, &progress, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	var owner *types.UserID
	if ownerUserID != nil {
		u := types.UserIDFromUUID(*ownerUserID)
		owner = &u
	}

	b := &bundles.Bundle{
		ID:          bundleID,
		OwnerUserID: owner,
		DeviceID:    deviceID,
		Kind:        types.BundleKind(kind),
		RouteID:     routeID,
		RegionID:    regionID,
		Bounds: types.BoundingBox{
			MinLng: minLng, MinLat: minLat, MaxLng: maxLng, MaxLat: maxLat,
		},
		ZoomRange: types.ZoomRange{Min: zoomMin, Max: zoomMax},
		SizeBytes: sizeBytes,
		Status:    types.BundleStatus(status),
		Progress:  progress,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}
	return b, nil
}

func (r *BundlesRepository) Save(ctx context.Context, next bundles.Bundle) error {
	var ownerUserID *uuid.UUID
	if next.OwnerUserID != nil {
		id := next.OwnerUserID.UUID()
		ownerUserID = &id
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO offline_bundles
			(id, owner_user_id, device_id, kind, route_id, region_id,
			 bounds_min_lng, bounds_min_lat, bounds_max_lng, bounds_max_lat,
			 zoom_min, zoom_max, size_bytes, status, progress, created_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (id) DO UPDATE SET
			owner_user_id = EXCLUDED.owner_user_id,
			device_id = EXCLUDED.device_id,
			kind = EXCLUDED.kind,
			route_id = EXCLUDED.route_id,
			region_id = EXCLUDED.region_id,
			bounds_min_lng = EXCLUDED.bounds_min_lng,
			bounds_min_lat = EXCLUDED.bounds_min_lat,
			bounds_max_lng = EXCLUDED.bounds_max_lng,
			bounds_max_lat = EXCLUDED.bounds_max_lat,
			zoom_min = EXCLUDED.zoom_min,
			zoom_max = EXCLUDED.zoom_max,
			size_bytes = EXCLUDED.size_bytes,
			status = EXCLUDED.status,
			progress = EXCLUDED.progress,
			updated_at = EXCLUDED.updated_at`,
		next.ID, ownerUserID, next.DeviceID, string(next.Kind), next.RouteID, next.RegionID,
		next.Bounds.MinLng, next.Bounds.MinLat, next.Bounds.MaxLng, next.Bounds.MaxLat,
		next.ZoomRange.Min, next.ZoomRange.Max, next.SizeBytes, string(next.Status), next.Progress,
		next.CreatedAt, next.UpdatedAt,
	)
	return err
}

func (r *BundlesRepository) Delete(ctx context.Context, bundleID uuid.UUID) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM offline_bundles WHERE id = $1`, bundleID)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}
