package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/leynos/wildside-core/pkg/ingestion"
	"github.com/leynos/wildside-core/pkg/poi"
	"github.com/leynos/wildside-core/pkg/provenance"
)

// EnrichmentProvenanceRepository implements provenance.Repository over
// a mutex-guarded slice.
type EnrichmentProvenanceRepository struct {
	mu   sync.Mutex
	rows []provenance.EnrichmentProvenance
}

func NewEnrichmentProvenanceRepository() *EnrichmentProvenanceRepository {
	return &EnrichmentProvenanceRepository{}
}

func (r *EnrichmentProvenanceRepository) Persist(ctx context.Context, rec provenance.EnrichmentProvenance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, rec)
	return nil
}

func sortedDescending(rows []provenance.EnrichmentProvenance) []provenance.EnrichmentProvenance {
	sorted := make([]provenance.EnrichmentProvenance, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].ImportedAt.Equal(sorted[j].ImportedAt) {
			return sorted[i].ImportedAt.After(sorted[j].ImportedAt)
		}
		return sorted[i].ID.String() > sorted[j].ID.String()
	})
	return sorted
}

func (r *EnrichmentProvenanceRepository) ListRecent(ctx context.Context, limit int, before *time.Time) ([]provenance.EnrichmentProvenance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sorted := sortedDescending(r.rows)
	out := make([]provenance.EnrichmentProvenance, 0, limit)
	for _, rec := range sorted {
		if before != nil && !rec.ImportedAt.Before(*before) {
			continue
		}
		out = append(out, rec)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *EnrichmentProvenanceRepository) ListAtTimestamp(ctx context.Context, at time.Time, before *time.Time) ([]provenance.EnrichmentProvenance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sorted := sortedDescending(r.rows)
	out := make([]provenance.EnrichmentProvenance, 0)
	for _, rec := range sorted {
		if !rec.ImportedAt.Equal(at) {
			continue
		}
		if before != nil && !rec.ImportedAt.Before(*before) {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// EnrichmentPersister implements enrichment.Persister by writing to an
// in-process POIRepository and EnrichmentProvenanceRepository under a
// single lock, mirroring the transactional all-or-nothing contract the
// Postgres persister gives through a *sqlx.Tx.
type EnrichmentPersister struct {
	mu         sync.Mutex
	pois       *POIRepository
	provenance *EnrichmentProvenanceRepository
}

func NewEnrichmentPersister(pois *POIRepository, provenanceRepo *EnrichmentProvenanceRepository) *EnrichmentPersister {
	return &EnrichmentPersister{pois: pois, provenance: provenanceRepo}
}

func (p *EnrichmentPersister) PersistEnrichment(ctx context.Context, rows []poi.POI, rec provenance.EnrichmentProvenance) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.pois.UpsertPOIs(ctx, rows); err != nil {
		return err
	}
	return p.provenance.Persist(ctx, rec)
}

// IngestionProvenanceRepository implements ingestion.ProvenanceRepository
// over a mutex-guarded map keyed by the bulk ingestion rerun key.
type IngestionProvenanceRepository struct {
	mu   sync.Mutex
	pois *POIRepository
	rows map[string]ingestion.Provenance
}

func NewIngestionProvenanceRepository(pois *POIRepository) *IngestionProvenanceRepository {
	return &IngestionProvenanceRepository{pois: pois, rows: make(map[string]ingestion.Provenance)}
}

func rerunKey(geofenceID, inputDigest string) string {
	return geofenceID + "|" + inputDigest
}

func (r *IngestionProvenanceRepository) FindByRerunKey(ctx context.Context, geofenceID, inputDigest string) (*ingestion.Provenance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.rows[rerunKey(geofenceID, inputDigest)]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (r *IngestionProvenanceRepository) PersistIngestion(ctx context.Context, rec ingestion.Provenance, rows []poi.POI) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := rerunKey(rec.GeofenceID, rec.InputDigest)
	if _, exists := r.rows[k]; exists {
		return ingestion.ErrConflict
	}
	if err := r.pois.UpsertPOIs(ctx, rows); err != nil {
		return err
	}
	r.rows[k] = rec
	return nil
}
