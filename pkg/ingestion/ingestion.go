// Package ingestion implements the bulk ingestion command: a
// deterministic, idempotent ingest of a content-addressed OSM dump into
// geofence-filtered POI rows plus a provenance record, keyed by
// (geofence_id, input_digest) for safe, side-effect-free reruns.
package ingestion

import (
	"context"
	"errors"
	"time"

	"github.com/leynos/wildside-core/pkg/errs"
	"github.com/leynos/wildside-core/pkg/poi"
	"github.com/leynos/wildside-core/pkg/types"
)

// Status is the outcome of one ingest invocation.
type Status int

const (
	StatusExecuted Status = iota
	StatusReplayed
)

// SourcePoi is one candidate point of interest decoded from the dump,
// before geofence filtering.
type SourcePoi struct {
	ElementType types.ElementType
	ElementID   uint64
	Lng         float64
	Lat         float64
	Tags        map[string]string
}

// SourceReport is everything the ingestion source port decodes from one
// dump file.
type SourceReport struct {
	POIs []SourcePoi
}

// Source reads and decodes the content-addressed dump named by path.
type Source interface {
	Read(ctx context.Context, sourceFilePath string) (SourceReport, error)
}

// Provenance is one ingestion run's durable record, keyed by
// (GeofenceID, InputDigest).
type Provenance struct {
	GeofenceID       string
	SourceURL        string
	InputDigest      string
	ImportedAt       time.Time
	GeofenceBounds   types.BoundingBox
	RawPOICount      int
	FilteredPOICount int
}

// ErrConflict is returned by ProvenanceRepository.PersistIngestion when
// a concurrent ingest already wrote the same rerun key.
var ErrConflict = errors.New("ingestion: rerun key conflict")

// ProvenanceRepository looks up and atomically persists ingestion
// provenance alongside the POI rows it produced.
type ProvenanceRepository interface {
	FindByRerunKey(ctx context.Context, geofenceID, inputDigest string) (*Provenance, error)
	// PersistIngestion writes rows and rec in a single transaction. It
	// returns ErrConflict if the rerun key already exists.
	PersistIngestion(ctx context.Context, rec Provenance, rows []poi.POI) error
}

// Request is the bulk ingestion command's input.
type Request struct {
	SourceFilePath string
	SourceURL      string
	GeofenceID     string
	GeofenceBounds types.BoundingBox
	InputDigest    string
}

// Outcome is the bulk ingestion command's result.
type Outcome struct {
	Status           Status
	SourceURL        string
	GeofenceID       string
	InputDigest      string
	ImportedAt       time.Time
	GeofenceBounds   types.BoundingBox
	RawPOICount      int
	PersistedPOICount int
}

// Clock abstracts the wall clock read for ImportedAt, so tests can
// supply a fixed instant.
type Clock interface {
	Now() time.Time
}

// Service executes the bulk ingestion command.
type Service struct {
	source     Source
	provenance ProvenanceRepository
	clock      Clock
}

func NewService(source Source, provenance ProvenanceRepository, c Clock) *Service {
	return &Service{source: source, provenance: provenance, clock: c}
}

// Ingest runs the algorithm in §4.4: replay on an existing rerun key,
// otherwise read, geofence-filter, and atomically persist.
func (s *Service) Ingest(ctx context.Context, req Request) (Outcome, error) {
	existing, err := s.provenance.FindByRerunKey(ctx, req.GeofenceID, req.InputDigest)
	if err != nil {
		return Outcome{}, errs.ServiceUnavailable("failed to look up ingestion provenance", err)
	}
	if existing != nil {
		return outcomeFromProvenance(StatusReplayed, *existing), nil
	}

	report, err := s.source.Read(ctx, req.SourceFilePath)
	if err != nil {
		return Outcome{}, errs.ServiceUnavailable("failed to ingest OSM source", err)
	}

	filtered := make([]poi.POI, 0, len(report.POIs))
	for _, p := range report.POIs {
		if !req.GeofenceBounds.Contains(p.Lng, p.Lat) {
			continue
		}
		filtered = append(filtered, poi.POI{
			ElementType: p.ElementType,
			ElementID:   p.ElementID,
			Lng:         p.Lng,
			Lat:         p.Lat,
			Tags:        p.Tags,
		})
	}

	rec := Provenance{
		GeofenceID:       req.GeofenceID,
		SourceURL:        req.SourceURL,
		InputDigest:      req.InputDigest,
		ImportedAt:       s.clock.Now(),
		GeofenceBounds:   req.GeofenceBounds,
		RawPOICount:      len(report.POIs),
		FilteredPOICount: len(filtered),
	}

	if err := s.provenance.PersistIngestion(ctx, rec, filtered); err != nil {
		if errors.Is(err, ErrConflict) {
			replay, lookupErr := s.provenance.FindByRerunKey(ctx, req.GeofenceID, req.InputDigest)
			if lookupErr != nil {
				return Outcome{}, errs.ServiceUnavailable("failed to look up ingestion provenance after conflict", lookupErr)
			}
			if replay == nil {
				return Outcome{}, errs.ServiceUnavailable("ingestion provenance conflict occurred but rerun key was not found", nil)
			}
			return outcomeFromProvenance(StatusReplayed, *replay), nil
		}
		return Outcome{}, errs.ServiceUnavailable("failed to persist ingestion provenance", err)
	}

	return outcomeFromProvenance(StatusExecuted, rec), nil
}

func outcomeFromProvenance(status Status, rec Provenance) Outcome {
	return Outcome{
		Status:            status,
		SourceURL:         rec.SourceURL,
		GeofenceID:        rec.GeofenceID,
		InputDigest:       rec.InputDigest,
		ImportedAt:        rec.ImportedAt,
		GeofenceBounds:    rec.GeofenceBounds,
		RawPOICount:       rec.RawPOICount,
		PersistedPOICount: rec.FilteredPOICount,
	}
}
