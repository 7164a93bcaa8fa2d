// Package types defines the value model shared by every command service
// and subsystem in the core: identifiers, bounding boxes, zoom ranges, and
// the closed enum taxonomies used across mutations. Constructors validate
// their inputs and return a *ValidationError rather than panicking, so a
// command layer can translate validation failures directly into the
// invalid_request error code.
package types

import (
	"fmt"
	"math"

	"github.com/google/uuid"
)

// ValidationError describes a single invalid field, mirroring the
// "details" object the error taxonomy attaches to invalid_request.
type ValidationError struct {
	Field string
	Code  string
	Value string
}

func (e *ValidationError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("invalid %s (%s): %s", e.Field, e.Code, e.Value)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Code)
}

func newValidationError(field, code, value string) *ValidationError {
	return &ValidationError{Field: field, Code: code, Value: value}
}

// UserID identifies the caller of a mutating command. Callers assume a
// UserID already exists when a command is invoked; this core never
// allocates one.
type UserID struct {
	id uuid.UUID
}

// NewUserID parses and validates a UserID from its UUID text form.
func NewUserID(s string) (UserID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return UserID{}, newValidationError("user_id", "malformed_uuid", s)
	}
	return UserID{id: id}, nil
}

// UserIDFromUUID wraps an already-parsed UUID.
func UserIDFromUUID(id uuid.UUID) UserID { return UserID{id: id} }

func (u UserID) String() string  { return u.id.String() }
func (u UserID) UUID() uuid.UUID { return u.id }
func (u UserID) IsZero() bool    { return u.id == uuid.Nil }

// IdempotencyKey is a client-chosen UUID used to deduplicate a mutation.
type IdempotencyKey struct {
	id uuid.UUID
}

// NewIdempotencyKey parses and validates an IdempotencyKey.
func NewIdempotencyKey(s string) (IdempotencyKey, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return IdempotencyKey{}, newValidationError("idempotency_key", "malformed_uuid", s)
	}
	return IdempotencyKey{id: id}, nil
}

func (k IdempotencyKey) String() string  { return k.id.String() }
func (k IdempotencyKey) UUID() uuid.UUID { return k.id }

// PayloadHash is the 32-byte SHA-256 digest of a canonical JSON payload.
type PayloadHash [32]byte

func (h PayloadHash) String() string {
	return fmt.Sprintf("%x", h[:])
}

// Bytes returns the hash as a byte slice, suitable for a bytea column.
func (h PayloadHash) Bytes() []byte {
	b := make([]byte, len(h))
	copy(b, h[:])
	return b
}

// PayloadHashFromBytes reconstructs a PayloadHash from stored bytes.
func PayloadHashFromBytes(b []byte) (PayloadHash, error) {
	var h PayloadHash
	if len(b) != len(h) {
		return h, fmt.Errorf("payload hash must be %d bytes, got %d", len(h), len(b))
	}
	copy(h[:], b)
	return h, nil
}

// MutationKind is the closed set of mutation categories the mediator and
// idempotency store key records by.
type MutationKind string

const (
	MutationRoutes      MutationKind = "routes"
	MutationNotes       MutationKind = "notes"
	MutationProgress    MutationKind = "progress"
	MutationPreferences MutationKind = "preferences"
	MutationBundles     MutationKind = "bundles"
)

func (k MutationKind) Valid() bool {
	switch k {
	case MutationRoutes, MutationNotes, MutationProgress, MutationPreferences, MutationBundles:
		return true
	}
	return false
}

// UnitSystem is the closed set of measurement systems for preferences.
type UnitSystem string

const (
	UnitSystemMetric   UnitSystem = "metric"
	UnitSystemImperial UnitSystem = "imperial"
)

func (u UnitSystem) Valid() bool {
	return u == UnitSystemMetric || u == UnitSystemImperial
}

// BundleKind distinguishes a route-scoped offline bundle from a
// region-scoped one.
type BundleKind string

const (
	BundleKindRoute  BundleKind = "route"
	BundleKindRegion BundleKind = "region"
)

func (k BundleKind) Valid() bool {
	return k == BundleKindRoute || k == BundleKindRegion
}

// BundleStatus is the closed set of offline bundle lifecycle states.
type BundleStatus string

const (
	BundleStatusQueued      BundleStatus = "queued"
	BundleStatusDownloading BundleStatus = "downloading"
	BundleStatusComplete    BundleStatus = "complete"
	BundleStatusFailed      BundleStatus = "failed"
)

func (s BundleStatus) Valid() bool {
	switch s {
	case BundleStatusQueued, BundleStatusDownloading, BundleStatusComplete, BundleStatusFailed:
		return true
	}
	return false
}

// ValidateBundleProgress enforces the status/progress pairing rules from
// the data model, including the resolved Open Question: Downloading
// rejects progress at exactly 0.0 or 1.0 (the open interval is
// authoritative, not the test that once accepted 0.5 as a boundary case).
func ValidateBundleProgress(status BundleStatus, progress float64) error {
	if math.IsNaN(progress) || math.IsInf(progress, 0) {
		return newValidationError("progress", "not_finite", fmt.Sprintf("%v", progress))
	}
	switch status {
	case BundleStatusQueued:
		if progress != 0.0 {
			return newValidationError("progress", "queued_requires_zero", fmt.Sprintf("%v", progress))
		}
	case BundleStatusDownloading:
		if !(progress > 0.0 && progress < 1.0) {
			return newValidationError("progress", "downloading_requires_open_interval", fmt.Sprintf("%v", progress))
		}
	case BundleStatusComplete:
		if progress != 1.0 {
			return newValidationError("progress", "complete_requires_one", fmt.Sprintf("%v", progress))
		}
	case BundleStatusFailed:
		if !(progress >= 0.0 && progress < 1.0) {
			return newValidationError("progress", "failed_requires_partial", fmt.Sprintf("%v", progress))
		}
	default:
		return newValidationError("status", "unknown_bundle_status", string(status))
	}
	return nil
}

// WalkStatKind is the closed set of statistic categories a walk session
// can report, split into primary (always shown) and secondary (detail).
type WalkStatKind string

const (
	WalkStatDistanceMeters  WalkStatKind = "distance_meters"
	WalkStatDurationSeconds WalkStatKind = "duration_seconds"
	WalkStatElevationGain   WalkStatKind = "elevation_gain_meters"
	WalkStatStepCount       WalkStatKind = "step_count"
	WalkStatCaloriesBurned  WalkStatKind = "calories_burned"
	WalkStatAverageSpeed    WalkStatKind = "average_speed_mps"
)

// BoundingBox is a closed-interval lat/lng rectangle: [min_lng, max_lng] x
// [min_lat, max_lat]. Endpoints are inclusive everywhere this core filters
// by bounds.
type BoundingBox struct {
	MinLng float64
	MinLat float64
	MaxLng float64
	MaxLat float64
}

// NewBoundingBox validates ordering and finiteness before constructing a
// BoundingBox.
func NewBoundingBox(minLng, minLat, maxLng, maxLat float64) (BoundingBox, error) {
	b := BoundingBox{MinLng: minLng, MinLat: minLat, MaxLng: maxLng, MaxLat: maxLat}
	if err := b.Validate(); err != nil {
		return BoundingBox{}, err
	}
	return b, nil
}

func (b BoundingBox) Validate() error {
	for name, v := range map[string]float64{
		"min_lng": b.MinLng, "min_lat": b.MinLat,
		"max_lng": b.MaxLng, "max_lat": b.MaxLat,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return newValidationError("bounds."+name, "not_finite", fmt.Sprintf("%v", v))
		}
	}
	if b.MinLng > b.MaxLng {
		return newValidationError("bounds", "min_lng_exceeds_max_lng", fmt.Sprintf("%v > %v", b.MinLng, b.MaxLng))
	}
	if b.MinLat > b.MaxLat {
		return newValidationError("bounds", "min_lat_exceeds_max_lat", fmt.Sprintf("%v > %v", b.MinLat, b.MaxLat))
	}
	return nil
}

// Contains reports whether (lng, lat) falls within the closed interval
// bounding box. Non-finite coordinates never match.
func (b BoundingBox) Contains(lng, lat float64) bool {
	if math.IsNaN(lng) || math.IsInf(lng, 0) || math.IsNaN(lat) || math.IsInf(lat, 0) {
		return false
	}
	return lng >= b.MinLng && lng <= b.MaxLng && lat >= b.MinLat && lat <= b.MaxLat
}

// ZoomRange is an inclusive min/max map zoom level pair.
type ZoomRange struct {
	Min int
	Max int
}

func NewZoomRange(min, max int) (ZoomRange, error) {
	if min < 0 || max < 0 {
		return ZoomRange{}, newValidationError("zoom_range", "negative", fmt.Sprintf("%d..%d", min, max))
	}
	if min > max {
		return ZoomRange{}, newValidationError("zoom_range", "min_exceeds_max", fmt.Sprintf("%d > %d", min, max))
	}
	return ZoomRange{Min: min, Max: max}, nil
}

// ElementType is the decoded OSM element kind: node, way, or relation.
type ElementType string

const (
	ElementNode     ElementType = "node"
	ElementWay      ElementType = "way"
	ElementRelation ElementType = "relation"
)

// DecodeElementID splits a bit-packed encoded OSM id into its type tag
// (top two bits) and numeric id (low 62 bits), per the ingestion wire
// format: 00 = node, 01 = way, 10 = relation.
func DecodeElementID(encoded uint64) (ElementType, uint64, error) {
	tag := encoded >> 62
	numeric := encoded &^ (uint64(0b11) << 62)
	switch tag {
	case 0b00:
		return ElementNode, numeric, nil
	case 0b01:
		return ElementWay, numeric, nil
	case 0b10:
		return ElementRelation, numeric, nil
	default:
		return "", 0, fmt.Errorf("unknown element type tag %02b in encoded id %d", tag, encoded)
	}
}

// EncodeElementID packs a type tag and numeric id back into the wire
// format used by DecodeElementID. Exposed for tests and fixtures.
func EncodeElementID(t ElementType, numeric uint64) (uint64, error) {
	var tag uint64
	switch t {
	case ElementNode:
		tag = 0b00
	case ElementWay:
		tag = 0b01
	case ElementRelation:
		tag = 0b10
	default:
		return 0, fmt.Errorf("unknown element type %q", t)
	}
	if numeric >= (uint64(1) << 62) {
		return 0, fmt.Errorf("numeric id %d overflows 62 bits", numeric)
	}
	return (tag << 62) | numeric, nil
}
