package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/leynos/wildside-core/pkg/poi"
)

// POIRepository implements poi.Repository against pois. db is an
// sqlx.ExtContext so the same type serves both a pooled *sqlx.DB and a
// transaction-scoped *sqlx.Tx.
type POIRepository struct {
	db sqlx.ExtContext
}

func NewPOIRepository(db *sqlx.DB) *POIRepository {
	return &POIRepository{db: db}
}

// NewPOIRepositoryTx binds the repository to an in-flight transaction,
// for callers (the enrichment worker, bulk ingestion) that must upsert
// POIs and a provenance row atomically.
func NewPOIRepositoryTx(tx *sqlx.Tx) *POIRepository {
	return &POIRepository{db: tx}
}

// UpsertPOIs upserts rows keyed by (element_type, element_id), updating
// the existing row's tags/narrative/popularity on conflict.
func (r *POIRepository) UpsertPOIs(ctx context.Context, rows []poi.POI) error {
	for _, p := range rows {
		args, err := poiRowArgsFrom(p)
		if err != nil {
			return fmt.Errorf("postgres: marshal POI tags: %w", err)
		}
		if _, err := sqlx.NamedExecContext(ctx, r.db, `
			INSERT INTO pois (element_type, element_id, location, osm_tags, narrative, popularity_score)
			VALUES (:element_type, :element_id, point(:lng, :lat), :tags, :narrative, :popularity_score)
			ON CONFLICT (element_type, element_id) DO UPDATE SET
				location = EXCLUDED.location,
				osm_tags = EXCLUDED.osm_tags,
				narrative = COALESCE(EXCLUDED.narrative, pois.narrative),
				popularity_score = COALESCE(EXCLUDED.popularity_score, pois.popularity_score)`,
			args,
		); err != nil {
			return err
		}
	}
	return nil
}

type poiRowArgs struct {
	ElementType     string   `db:"element_type"`
	ElementID       int64    `db:"element_id"`
	Lng             float64  `db:"lng"`
	Lat             float64  `db:"lat"`
	Tags            []byte   `db:"tags"`
	Narrative       *string  `db:"narrative"`
	PopularityScore *float64 `db:"popularity_score"`
}

func poiRowArgsFrom(p poi.POI) (poiRowArgs, error) {
	tags, err := marshalTags(p.Tags)
	if err != nil {
		return poiRowArgs{}, err
	}
	return poiRowArgs{
		ElementType:     string(p.ElementType),
		ElementID:       int64(p.ElementID),
		Lng:             p.Lng,
		Lat:             p.Lat,
		Tags:            tags,
		Narrative:       p.Narrative,
		PopularityScore: p.PopularityScore,
	}, nil
}
