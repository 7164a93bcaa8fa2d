package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/leynos/wildside-core/pkg/ingestion"
	"github.com/leynos/wildside-core/pkg/poi"
	"github.com/leynos/wildside-core/pkg/provenance"
	"github.com/leynos/wildside-core/pkg/types"
)

// EnrichmentProvenanceRepository implements provenance.Repository
// against overpass_enrichment_provenance.
type EnrichmentProvenanceRepository struct {
	db *sqlx.DB
}

func NewEnrichmentProvenanceRepository(db *sqlx.DB) *EnrichmentProvenanceRepository {
	return &EnrichmentProvenanceRepository{db: db}
}

type enrichmentProvenanceRow struct {
	ID          string    `db:"id"`
	SourceURL   string    `db:"source_url"`
	ImportedAt  time.Time `db:"imported_at"`
	BoundsMinLng float64  `db:"bounds_min_lng"`
	BoundsMinLat float64  `db:"bounds_min_lat"`
	BoundsMaxLng float64  `db:"bounds_max_lng"`
	BoundsMaxLat float64  `db:"bounds_max_lat"`
	CreatedAt   time.Time `db:"created_at"`
}

func (row enrichmentProvenanceRow) toDomain() (provenance.EnrichmentProvenance, error) {
	id, err := uuid.Parse(row.ID)
	if err != nil {
		return provenance.EnrichmentProvenance{}, err
	}
	return provenance.EnrichmentProvenance{
		ID:        id,
		SourceURL: row.SourceURL,
		ImportedAt: row.ImportedAt,
		Bounds: types.BoundingBox{
			MinLng: row.BoundsMinLng,
			MinLat: row.BoundsMinLat,
			MaxLng: row.BoundsMaxLng,
			MaxLat: row.BoundsMaxLat,
		},
		CreatedAt: row.CreatedAt,
	}, nil
}

func (r *EnrichmentProvenanceRepository) Persist(ctx context.Context, rec provenance.EnrichmentProvenance) error {
	return persistEnrichmentProvenance(ctx, r.db, rec)
}

func persistEnrichmentProvenance(ctx context.Context, ext sqlx.ExtContext, rec provenance.EnrichmentProvenance) error {
	_, err := sqlx.NamedExecContext(ctx, ext, `
		INSERT INTO overpass_enrichment_provenance
			(id, source_url, imported_at, bounds_min_lng, bounds_min_lat, bounds_max_lng, bounds_max_lat, created_at)
		VALUES
			(:id, :source_url, :imported_at, :bounds_min_lng, :bounds_min_lat, :bounds_max_lng, :bounds_max_lat, :created_at)`,
		map[string]any{
			"id":             rec.ID,
			"source_url":     rec.SourceURL,
			"imported_at":    rec.ImportedAt,
			"bounds_min_lng": rec.Bounds.MinLng,
			"bounds_min_lat": rec.Bounds.MinLat,
			"bounds_max_lng": rec.Bounds.MaxLng,
			"bounds_max_lat": rec.Bounds.MaxLat,
			"created_at":     rec.CreatedAt,
		},
	)
	return err
}

func (r *EnrichmentProvenanceRepository) ListRecent(ctx context.Context, limit int, before *time.Time) ([]provenance.EnrichmentProvenance, error) {
	var rows []enrichmentProvenanceRow
	var err error
	if before == nil {
		err = r.db.SelectContext(ctx, &rows, `
			SELECT id, source_url, imported_at, bounds_min_lng, bounds_min_lat, bounds_max_lng, bounds_max_lat, created_at
			FROM overpass_enrichment_provenance
			ORDER BY imported_at DESC, id DESC
			LIMIT $1`, limit)
	} else {
		err = r.db.SelectContext(ctx, &rows, `
			SELECT id, source_url, imported_at, bounds_min_lng, bounds_min_lat, bounds_max_lng, bounds_max_lat, created_at
			FROM overpass_enrichment_provenance
			WHERE imported_at < $1
			ORDER BY imported_at DESC, id DESC
			LIMIT $2`, *before, limit)
	}
	if err != nil {
		return nil, err
	}
	return toDomainRows(rows)
}

func (r *EnrichmentProvenanceRepository) ListAtTimestamp(ctx context.Context, at time.Time, before *time.Time) ([]provenance.EnrichmentProvenance, error) {
	var rows []enrichmentProvenanceRow
	var err error
	if before == nil {
		err = r.db.SelectContext(ctx, &rows, `
			SELECT id, source_url, imported_at, bounds_min_lng, bounds_min_lat, bounds_max_lng, bounds_max_lat, created_at
			FROM overpass_enrichment_provenance
			WHERE imported_at = $1
			ORDER BY id DESC`, at)
	} else {
		err = r.db.SelectContext(ctx, &rows, `
			SELECT id, source_url, imported_at, bounds_min_lng, bounds_min_lat, bounds_max_lng, bounds_max_lat, created_at
			FROM overpass_enrichment_provenance
			WHERE imported_at = $1 AND imported_at < $2
			ORDER BY id DESC`, at, *before)
	}
	if err != nil {
		return nil, err
	}
	return toDomainRows(rows)
}

func toDomainRows(rows []enrichmentProvenanceRow) ([]provenance.EnrichmentProvenance, error) {
	out := make([]provenance.EnrichmentProvenance, 0, len(rows))
	for _, row := range rows {
		rec, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// EnrichmentPersister implements enrichment.Persister: a single
// transaction wrapping the POI upsert and the enrichment provenance
// insert, so a crash between the two never leaves one without the
// other.
type EnrichmentPersister struct {
	db *sqlx.DB
}

func NewEnrichmentPersister(db *sqlx.DB) *EnrichmentPersister {
	return &EnrichmentPersister{db: db}
}

func (p *EnrichmentPersister) PersistEnrichment(ctx context.Context, rows []poi.POI, rec provenance.EnrichmentProvenance) error {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin enrichment transaction: %w", err)
	}
	defer tx.Rollback()

	if err := NewPOIRepositoryTx(tx).UpsertPOIs(ctx, rows); err != nil {
		return fmt.Errorf("postgres: upsert enriched POIs: %w", err)
	}
	if err := persistEnrichmentProvenance(ctx, tx, rec); err != nil {
		return fmt.Errorf("postgres: persist enrichment provenance: %w", err)
	}
	return tx.Commit()
}

// IngestionProvenanceRepository implements ingestion.ProvenanceRepository
// against osm_ingestion_provenance, upserting POIs in the same
// transaction as the provenance row.
type IngestionProvenanceRepository struct {
	db *sqlx.DB
}

func NewIngestionProvenanceRepository(db *sqlx.DB) *IngestionProvenanceRepository {
	return &IngestionProvenanceRepository{db: db}
}

type ingestionProvenanceRow struct {
	GeofenceID       string    `db:"geofence_id"`
	SourceURL        string    `db:"source_url"`
	InputDigest      string    `db:"input_digest"`
	ImportedAt       time.Time `db:"imported_at"`
	BoundsMinLng     float64   `db:"bounds_min_lng"`
	BoundsMinLat     float64   `db:"bounds_min_lat"`
	BoundsMaxLng     float64   `db:"bounds_max_lng"`
	BoundsMaxLat     float64   `db:"bounds_max_lat"`
	RawPOICount      int       `db:"raw_poi_count"`
	FilteredPOICount int       `db:"filtered_poi_count"`
}

func (row ingestionProvenanceRow) toDomain() ingestion.Provenance {
	return ingestion.Provenance{
		GeofenceID:  row.GeofenceID,
		SourceURL:   row.SourceURL,
		InputDigest: row.InputDigest,
		ImportedAt:  row.ImportedAt,
		GeofenceBounds: types.BoundingBox{
			MinLng: row.BoundsMinLng,
			MinLat: row.BoundsMinLat,
			MaxLng: row.BoundsMaxLng,
			MaxLat: row.BoundsMaxLat,
		},
		RawPOICount:      row.RawPOICount,
		FilteredPOICount: row.FilteredPOICount,
	}
}

func (r *IngestionProvenanceRepository) FindByRerunKey(ctx context.Context, geofenceID, inputDigest string) (*ingestion.Provenance, error) {
	var row ingestionProvenanceRow
	err := r.db.GetContext(ctx, &row, `
		SELECT geofence_id, source_url, input_digest, imported_at,
			bounds_min_lng, bounds_min_lat, bounds_max_lng, bounds_max_lat,
			raw_poi_count, filtered_poi_count
		FROM osm_ingestion_provenance
		WHERE geofence_id = $1 AND input_digest = $2`,
		geofenceID, inputDigest,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	rec := row.toDomain()
	return &rec, nil
}

func (r *IngestionProvenanceRepository) PersistIngestion(ctx context.Context, rec ingestion.Provenance, rows []poi.POI) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin ingestion transaction: %w", err)
	}
	defer tx.Rollback()

	if err := NewPOIRepositoryTx(tx).UpsertPOIs(ctx, rows); err != nil {
		return fmt.Errorf("postgres: upsert ingested POIs: %w", err)
	}

	if _, err := sqlx.NamedExecContext(ctx, tx, `
		INSERT INTO osm_ingestion_provenance
			(id, geofence_id, source_url, input_digest, imported_at,
			 bounds_min_lng, bounds_min_lat, bounds_max_lng, bounds_max_lat,
			 raw_poi_count, filtered_poi_count)
		VALUES
			(:id, :geofence_id, :source_url, :input_digest, :imported_at,
			 :bounds_min_lng, :bounds_min_lat, :bounds_max_lng, :bounds_max_lat,
			 :raw_poi_count, :filtered_poi_count)`,
		map[string]any{
			"id":               uuid.New(),
			"geofence_id":      rec.GeofenceID,
			"source_url":       rec.SourceURL,
			"input_digest":     rec.InputDigest,
			"imported_at":      rec.ImportedAt,
			"bounds_min_lng":   rec.GeofenceBounds.MinLng,
			"bounds_min_lat":   rec.GeofenceBounds.MinLat,
			"bounds_max_lng":   rec.GeofenceBounds.MaxLng,
			"bounds_max_lat":   rec.GeofenceBounds.MaxLat,
			"raw_poi_count":      rec.RawPOICount,
			"filtered_poi_count": rec.FilteredPOICount,
		},
	); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ingestion.ErrConflict
		}
		return fmt.Errorf("postgres: persist ingestion provenance: %w", err)
	}

	return tx.Commit()
}
