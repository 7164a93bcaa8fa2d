// Package enrichment implements the bounded-concurrency enrichment
// worker: an admission policy (daily quota plus a three-state circuit
// breaker), jittered exponential backoff, and atomic POI+provenance
// persistence for one bounding-box enrichment job at a time.
package enrichment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/leynos/wildside-core/pkg/clock"
	"github.com/leynos/wildside-core/pkg/errs"
	"github.com/leynos/wildside-core/pkg/log"
	"github.com/leynos/wildside-core/pkg/metrics"
	"github.com/leynos/wildside-core/pkg/poi"
	"github.com/leynos/wildside-core/pkg/provenance"
	"golang.org/x/sync/semaphore"
)

// Config bounds concurrency, quota, retries, and the circuit breaker
// for one worker instance, per §4.1.1.
type Config struct {
	MaxConcurrentCalls int64
	MaxAttempts        int
	InitialBackoff     time.Duration
	MaxBackoff         time.Duration
	Quota              DailyQuota
	Circuit            CircuitBreakerConfig
}

// Persister writes the filtered POI rows and the provenance record for
// one successful job in a single transaction: if provenance insertion
// fails after the POIs were written, the whole thing rolls back.
type Persister interface {
	PersistEnrichment(ctx context.Context, rows []poi.POI, rec provenance.EnrichmentProvenance) error
}

// Job is one bounding-box enrichment request.
type Job struct {
	Request FetchRequest
}

// Outcome reports how a job completed.
type Outcome struct {
	Attempts       int
	PersistedCount int
	Elapsed        time.Duration
}

// Worker runs enrichment jobs under a single shared admission policy
// and a semaphore bounding outbound concurrency.
type Worker struct {
	cfg     Config
	source  Source
	persist Persister
	policy  *PolicyState
	sem     *semaphore.Weighted
	clock   clock.Clock
	sleep   clock.Sleeper
	jitter  Jitter
}

// NewWorker constructs a Worker. policy is rooted at c.Now() and shared
// across every job this Worker runs.
func NewWorker(cfg Config, source Source, persist Persister, c clock.Clock, sleeper clock.Sleeper, jitter Jitter) *Worker {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.MaxConcurrentCalls < 1 {
		cfg.MaxConcurrentCalls = 1
	}
	if jitter == nil {
		jitter = DefaultJitter{}
	}
	return &Worker{
		cfg:     cfg,
		source:  source,
		persist: persist,
		policy:  NewPolicyState(c.Now(), cfg.Quota, cfg.Circuit),
		sem:     semaphore.NewWeighted(cfg.MaxConcurrentCalls),
		clock:   c,
		sleep:   sleeper,
		jitter:  jitter,
	}
}

// Policy exposes the shared admission policy, mainly for tests that
// need to assert on circuit/quota state directly.
func (w *Worker) Policy() *PolicyState { return w.policy }

// Run executes one job's attempt loop under a single semaphore permit,
// per §4.1.3.
func (w *Worker) Run(ctx context.Context, job Job) (Outcome, error) {
	if err := w.sem.Acquire(ctx, 1); err != nil {
		return Outcome{}, errs.ServiceUnavailable("failed to acquire enrichment concurrency permit", err)
	}
	defer w.sem.Release(1)

	logger := log.WithComponent("enrichment_worker")
	start := w.clock.Now()
	var lastErr error

	for attempt := 1; attempt <= w.cfg.MaxAttempts; attempt++ {
		now := w.clock.Now()
		decision := w.policy.AdmitCall(now)
		if decision.Outcome != AdmissionAllowed {
			w.policy.RecordFailure(now)
			recordDenial(decision)
			return Outcome{}, errs.ServiceUnavailable(denialMessage(decision), nil)
		}
		metrics.EnrichmentAdmissionsTotal.WithLabelValues("allowed").Inc()

		timer := metrics.NewTimer()
		result, err := w.source.FetchPOIs(ctx, job.Request)
		timer.ObserveDuration(metrics.EnrichmentCallDuration)

		if err == nil {
			w.policy.RecordSuccess(w.clock.Now(), result.TransferBytes)

			filtered := filterPOIs(result.POIs, job.Request.Bounds)
			rec := provenance.EnrichmentProvenance{
				ID:         uuid.New(),
				SourceURL:  result.SourceURL,
				ImportedAt: w.clock.Now(),
				Bounds:     job.Request.Bounds,
			}

			if err := w.persist.PersistEnrichment(ctx, filtered, rec); err != nil {
				return Outcome{}, errs.ServiceUnavailable("failed to persist enrichment results", err)
			}

			metrics.EnrichmentPOIsPersistedTotal.Add(float64(len(filtered)))
			return Outcome{
				Attempts:       attempt,
				PersistedCount: len(filtered),
				Elapsed:        w.clock.Now().Sub(start),
			}, nil
		}

		lastErr = err
		w.policy.RecordFailure(w.clock.Now())

		se, ok := AsSourceError(err)
		if ok && !se.Kind.Transient() {
			metrics.EnrichmentJobsFailedTotal.Inc()
			return Outcome{}, errs.InvalidRequest("enrichment source rejected the request", &errs.Details{
				Code: "source_rejected",
			})
		}

		if attempt >= w.cfg.MaxAttempts {
			break
		}

		base := BaseDelay(attempt, w.cfg.InitialBackoff, w.cfg.MaxBackoff)
		sleep := w.jitter.Jittered(base, attempt)
		metrics.EnrichmentBackoffSleepSeconds.Observe(sleep.Seconds())
		if err := w.sleep.Sleep(ctx, sleep); err != nil {
			return Outcome{}, errs.ServiceUnavailable("enrichment backoff wait interrupted", err)
		}
	}

	metrics.EnrichmentJobsFailedTotal.Inc()
	logger.Warn().Err(lastErr).Msg("enrichment job exhausted retries")
	return Outcome{}, errs.ServiceUnavailable("enrichment source call failed after retries", lastErr)
}

func recordDenial(d AdmissionDecision) {
	switch d.Outcome {
	case AdmissionDeniedByQuota:
		metrics.EnrichmentAdmissionsTotal.WithLabelValues("denied_by_quota").Inc()
		metrics.EnrichmentDeniedByQuotaTotal.WithLabelValues(d.QuotaReason.String()).Inc()
	case AdmissionDeniedByCircuit:
		metrics.EnrichmentAdmissionsTotal.WithLabelValues("denied_by_circuit").Inc()
	}
}

func denialMessage(d AdmissionDecision) string {
	switch d.Outcome {
	case AdmissionDeniedByQuota:
		if d.QuotaReason == QuotaDenyTransferLimit {
			return "daily transfer byte quota exhausted"
		}
		return "daily request quota exhausted"
	case AdmissionDeniedByCircuit:
		return "circuit breaker open"
	default:
		return "enrichment call not admitted"
	}
}

// filterPOIs keeps only points whose coordinates are finite and fall
// within bounds' closed interval, per §4.1.5.
func filterPOIs(in []OverpassPoi, bounds boundsChecker) []poi.POI {
	out := make([]poi.POI, 0, len(in))
	for _, p := range in {
		if !bounds.Contains(p.Lng, p.Lat) {
			continue
		}
		out = append(out, poi.POI{
			ElementType: p.ElementType,
			ElementID:   p.ElementID,
			Lng:         p.Lng,
			Lat:         p.Lat,
			Tags:        p.Tags,
		})
	}
	return out
}

// boundsChecker narrows types.BoundingBox to the one method this file
// uses, so tests can pass a bare struct literal.
type boundsChecker interface {
	Contains(lng, lat float64) bool
}
