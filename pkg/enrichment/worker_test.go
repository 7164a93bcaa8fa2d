package enrichment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/leynos/wildside-core/pkg/clock"
	"github.com/leynos/wildside-core/pkg/poi"
	"github.com/leynos/wildside-core/pkg/provenance"
	"github.com/leynos/wildside-core/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedSource replays a fixed sequence of results/errors, one per
// FetchPOIs call, and records how many times it was called.
type scriptedSource struct {
	script []scriptStep
	calls  int
}

type scriptStep struct {
	result FetchResult
	err    error
}

func (s *scriptedSource) FetchPOIs(ctx context.Context, req FetchRequest) (FetchResult, error) {
	step := s.script[s.calls]
	s.calls++
	return step.result, step.err
}

type recordingPersister struct {
	calls int
	rows  []poi.POI
	rec   provenance.EnrichmentProvenance
}

func (p *recordingPersister) PersistEnrichment(ctx context.Context, rows []poi.POI, rec provenance.EnrichmentProvenance) error {
	p.calls++
	p.rows = rows
	p.rec = rec
	return nil
}

// testJitter reproduces S3's deterministic jitter: add attempt
// milliseconds to the base delay.
type testJitter struct{}

func (testJitter) Jittered(base time.Duration, attempt int) time.Duration {
	return base + time.Duration(attempt)*time.Millisecond
}

func bbox(minLng, minLat, maxLng, maxLat float64) types.BoundingBox {
	bb, err := types.NewBoundingBox(minLng, minLat, maxLng, maxLat)
	if err != nil {
		panic(err)
	}
	return bb
}

// TestWorkerBackoff_S3 reproduces scenario S3: initial_backoff=100ms,
// max_backoff=500ms, max_attempts=3, source scripted
// [Transport, Timeout, Ok], deterministic jitter adding attempt ms;
// recorded sleeps must be exactly [101ms, 202ms], attempts = 3.
func TestWorkerBackoff_S3(t *testing.T) {
	source := &scriptedSource{script: []scriptStep{
		{err: &SourceError{Kind: SourceErrorTransport, Err: errors.New("transport")}},
		{err: &SourceError{Kind: SourceErrorTimeout, Err: errors.New("timeout")}},
		{result: FetchResult{POIs: []OverpassPoi{{ElementType: types.ElementNode, ElementID: 1, Lng: 0, Lat: 0}}, TransferBytes: 64, SourceURL: "https://overpass.example/api"}},
	}}
	persister := &recordingPersister{}
	mclock := clock.NewMutable(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	w := NewWorker(Config{
		MaxConcurrentCalls: 1,
		MaxAttempts:        3,
		InitialBackoff:     100 * time.Millisecond,
		MaxBackoff:         500 * time.Millisecond,
		Quota:              DailyQuota{MaxRequestsPerDay: 1000, MaxTransferBytesPerDay: 1 << 30},
		Circuit:            CircuitBreakerConfig{FailureThreshold: 100, OpenCooldown: time.Minute},
	}, source, persister, mclock, mclock, testJitter{})

	outcome, err := w.Run(context.Background(), Job{Request: FetchRequest{Bounds: bbox(-1, -1, 1, 1)}})
	require.NoError(t, err)
	assert.Equal(t, 3, outcome.Attempts)
	assert.Equal(t, 1, outcome.PersistedCount)
	assert.Equal(t, 1, persister.calls)

	sleeps := mclock.Sleeps()
	require.Len(t, sleeps, 2)
	assert.Equal(t, 101*time.Millisecond, sleeps[0])
	assert.Equal(t, 202*time.Millisecond, sleeps[1])
}

func TestWorkerFiltersOutOfBoundsAndNonFinitePOIs(t *testing.T) {
	nan := func() float64 { return 0 / zero() }()
	source := &scriptedSource{script: []scriptStep{
		{result: FetchResult{
			POIs: []OverpassPoi{
				{ElementType: types.ElementNode, ElementID: 1, Lng: -3.20, Lat: 55.95},
				{ElementType: types.ElementNode, ElementID: 2, Lng: -3.10, Lat: 56.00},
				{ElementType: types.ElementNode, ElementID: 3, Lng: -3.31, Lat: 55.95},
				{ElementType: types.ElementNode, ElementID: 4, Lng: -3.20, Lat: nan},
			},
			TransferBytes: 10,
			SourceURL:     "https://overpass.example/api",
		}},
	}}
	persister := &recordingPersister{}
	mclock := clock.NewMutable(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	w := NewWorker(Config{
		MaxConcurrentCalls: 1,
		MaxAttempts:        1,
		InitialBackoff:     time.Millisecond,
		MaxBackoff:         time.Millisecond,
		Quota:              DailyQuota{MaxRequestsPerDay: 10, MaxTransferBytesPerDay: 1 << 30},
		Circuit:            CircuitBreakerConfig{FailureThreshold: 5, OpenCooldown: time.Minute},
	}, source, persister, mclock, mclock, DefaultJitter{})

	outcome, err := w.Run(context.Background(), Job{Request: FetchRequest{Bounds: bbox(-3.30, 55.90, -3.10, 56.00)}})
	require.NoError(t, err)
	assert.Equal(t, 2, outcome.PersistedCount)
}

func zero() float64 { return 0 }

func TestWorkerDeniesWhenQuotaExhausted(t *testing.T) {
	source := &scriptedSource{script: []scriptStep{
		{result: FetchResult{SourceURL: "https://overpass.example/api"}},
	}}
	persister := &recordingPersister{}
	mclock := clock.NewMutable(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	w := NewWorker(Config{
		MaxConcurrentCalls: 1,
		MaxAttempts:        1,
		InitialBackoff:     time.Millisecond,
		MaxBackoff:         time.Millisecond,
		Quota:              DailyQuota{MaxRequestsPerDay: 0, MaxTransferBytesPerDay: 1 << 30},
		Circuit:            CircuitBreakerConfig{FailureThreshold: 5, OpenCooldown: time.Minute},
	}, source, persister, mclock, mclock, DefaultJitter{})

	_, err := w.Run(context.Background(), Job{Request: FetchRequest{Bounds: bbox(-1, -1, 1, 1)}})
	assert.Error(t, err)
	assert.Equal(t, 0, source.calls)
	assert.Equal(t, 0, persister.calls)
}
