package enrichment

import (
	"sync"
	"time"
)

// DailyQuota bounds the per-UTC-day call volume for one worker instance.
type DailyQuota struct {
	MaxRequestsPerDay      int64
	MaxTransferBytesPerDay int64
}

// CircuitBreakerConfig bounds how many consecutive failures open the
// breaker and how long it stays open before admitting a probe.
type CircuitBreakerConfig struct {
	FailureThreshold int
	OpenCooldown     time.Duration
}

// QuotaDenyReason distinguishes which daily limit denied a call.
type QuotaDenyReason int

const (
	QuotaDenyRequestLimit QuotaDenyReason = iota
	QuotaDenyTransferLimit
)

func (r QuotaDenyReason) String() string {
	if r == QuotaDenyTransferLimit {
		return "transfer_limit"
	}
	return "request_limit"
}

// CircuitBreakerState is the externally observable breaker state, used
// by tests; the policy's internal representation carries extra fields
// (consecutive failure count, opened-at instant, probe flag) not
// exposed here.
type CircuitBreakerState int

const (
	CircuitClosed CircuitBreakerState = iota
	CircuitOpen
	CircuitHalfOpen
)

// AdmissionOutcome is the closed set of results admitting one call can
// produce.
type AdmissionOutcome int

const (
	AdmissionAllowed AdmissionOutcome = iota
	AdmissionDeniedByQuota
	AdmissionDeniedByCircuit
)

// AdmissionDecision is the result of one admit_call evaluation.
type AdmissionDecision struct {
	Outcome     AdmissionOutcome
	QuotaReason QuotaDenyReason // meaningful only when Outcome == AdmissionDeniedByQuota
}

type circuitKind int

const (
	circuitKindClosed circuitKind = iota
	circuitKindOpen
	circuitKindHalfOpen
)

// PolicyState is the admission policy shared across every job a single
// worker instance runs: daily quota counters plus a three-state circuit
// breaker. All mutation happens under its own mutex, per the single
// non-async critical section the worker's concurrency model requires.
type PolicyState struct {
	mu sync.Mutex

	quota    DailyQuota
	quotaDay time.Time // UTC date, truncated to midnight

	requestsUsed      int64
	transferBytesUsed int64

	circuitConfig       CircuitBreakerConfig
	circuit             circuitKind
	consecutiveFailures int
	openedAt            time.Time
	probeInFlight       bool
}

// NewPolicyState builds policy state rooted at now, in the Closed
// breaker state with zeroed counters.
func NewPolicyState(now time.Time, quota DailyQuota, circuit CircuitBreakerConfig) *PolicyState {
	if circuit.FailureThreshold < 1 {
		circuit.FailureThreshold = 1
	}
	return &PolicyState{
		quota:         quota,
		quotaDay:      utcDate(now),
		circuitConfig: circuit,
		circuit:       circuitKindClosed,
	}
}

// AdmitCall evaluates quota and circuit state for one call attempt. It
// is the only place requestsUsed increments; denials never increment it.
func (p *PolicyState) AdmitCall(now time.Time) AdmissionDecision {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.resetDayIfNeeded(now)

	if p.requestsUsed >= p.quota.MaxRequestsPerDay {
		return AdmissionDecision{Outcome: AdmissionDeniedByQuota, QuotaReason: QuotaDenyRequestLimit}
	}
	if p.transferBytesUsed >= p.quota.MaxTransferBytesPerDay {
		return AdmissionDecision{Outcome: AdmissionDeniedByQuota, QuotaReason: QuotaDenyTransferLimit}
	}

	switch p.circuit {
	case circuitKindClosed:
		p.requestsUsed++
		return AdmissionDecision{Outcome: AdmissionAllowed}

	case circuitKindOpen:
		if now.Sub(p.openedAt) >= p.circuitConfig.OpenCooldown {
			p.circuit = circuitKindHalfOpen
			p.probeInFlight = true
			p.requestsUsed++
			return AdmissionDecision{Outcome: AdmissionAllowed}
		}
		return AdmissionDecision{Outcome: AdmissionDeniedByCircuit}

	case circuitKindHalfOpen:
		if p.probeInFlight {
			return AdmissionDecision{Outcome: AdmissionDeniedByCircuit}
		}
		p.probeInFlight = true
		p.requestsUsed++
		return AdmissionDecision{Outcome: AdmissionAllowed}

	default:
		return AdmissionDecision{Outcome: AdmissionDeniedByCircuit}
	}
}

// RecordSuccess resets consecutive failures, closes the breaker, and
// accumulates the transferred byte count.
func (p *PolicyState) RecordSuccess(now time.Time, transferBytes int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.resetDayIfNeeded(now)
	p.transferBytesUsed += transferBytes
	p.circuit = circuitKindClosed
	p.consecutiveFailures = 0
	p.probeInFlight = false
}

// RecordFailure advances the breaker: Closed increments the consecutive
// failure count, opening the breaker once the threshold is reached;
// HalfOpen always reopens; Open stays Open.
func (p *PolicyState) RecordFailure(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.resetDayIfNeeded(now)

	switch p.circuit {
	case circuitKindClosed:
		p.consecutiveFailures++
		if p.consecutiveFailures >= p.circuitConfig.FailureThreshold {
			p.circuit = circuitKindOpen
			p.openedAt = now
		}
	case circuitKindHalfOpen:
		p.circuit = circuitKindOpen
		p.openedAt = now
		p.probeInFlight = false
	case circuitKindOpen:
		// stays open
	}
}

// CircuitState snapshots the externally observable breaker state.
func (p *PolicyState) CircuitState() CircuitBreakerState {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.circuit {
	case circuitKindOpen:
		return CircuitOpen
	case circuitKindHalfOpen:
		return CircuitHalfOpen
	default:
		return CircuitClosed
	}
}

func (p *PolicyState) resetDayIfNeeded(now time.Time) {
	day := utcDate(now)
	if !day.Equal(p.quotaDay) {
		p.quotaDay = day
		p.requestsUsed = 0
		p.transferBytesUsed = 0
	}
}

func utcDate(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
