package enrichment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAdmitCall_QuotaRequestLimit(t *testing.T) {
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	p := NewPolicyState(now, DailyQuota{MaxRequestsPerDay: 1, MaxTransferBytesPerDay: 1000}, CircuitBreakerConfig{FailureThreshold: 5, OpenCooldown: time.Minute})

	first := p.AdmitCall(now)
	assert.Equal(t, AdmissionAllowed, first.Outcome)

	second := p.AdmitCall(now)
	assert.Equal(t, AdmissionDeniedByQuota, second.Outcome)
	assert.Equal(t, QuotaDenyRequestLimit, second.QuotaReason)
}

func TestAdmitCall_QuotaTransferLimit(t *testing.T) {
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	p := NewPolicyState(now, DailyQuota{MaxRequestsPerDay: 100, MaxTransferBytesPerDay: 10}, CircuitBreakerConfig{FailureThreshold: 5, OpenCooldown: time.Minute})

	p.RecordSuccess(now, 10)

	decision := p.AdmitCall(now)
	assert.Equal(t, AdmissionDeniedByQuota, decision.Outcome)
	assert.Equal(t, QuotaDenyTransferLimit, decision.QuotaReason)
}

func TestAdmitCall_DayRollover(t *testing.T) {
	day1 := time.Date(2026, 1, 1, 23, 59, 0, 0, time.UTC)
	day2 := time.Date(2026, 1, 2, 0, 1, 0, 0, time.UTC)

	p := NewPolicyState(day1, DailyQuota{MaxRequestsPerDay: 1, MaxTransferBytesPerDay: 1000}, CircuitBreakerConfig{FailureThreshold: 5, OpenCooldown: time.Minute})

	assert.Equal(t, AdmissionAllowed, p.AdmitCall(day1).Outcome)
	assert.Equal(t, AdmissionDeniedByQuota, p.AdmitCall(day1).Outcome)

	// new UTC day resets counters even though elapsed time is tiny
	assert.Equal(t, AdmissionAllowed, p.AdmitCall(day2).Outcome)
}

// TestCircuitOpensAndBlocks_S4 reproduces scenario S4 from the
// testable properties: two consecutive failures with threshold 2 open
// the breaker; it stays open before cooldown and admits exactly one
// probe once the cooldown elapses.
func TestCircuitOpensAndBlocks_S4(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cooldown := 120 * time.Second
	p := NewPolicyState(t0, DailyQuota{MaxRequestsPerDay: 1000, MaxTransferBytesPerDay: 1 << 30}, CircuitBreakerConfig{FailureThreshold: 2, OpenCooldown: cooldown})

	require := assert.New(t)

	d1 := p.AdmitCall(t0)
	require.Equal(AdmissionAllowed, d1.Outcome)
	p.RecordFailure(t0)

	d2 := p.AdmitCall(t0)
	require.Equal(AdmissionAllowed, d2.Outcome)
	p.RecordFailure(t0)

	require.Equal(CircuitOpen, p.CircuitState())

	blocked := p.AdmitCall(t0)
	require.Equal(AdmissionDeniedByCircuit, blocked.Outcome)

	t61 := t0.Add(61 * time.Second)
	stillBlocked := p.AdmitCall(t61)
	require.Equal(AdmissionDeniedByCircuit, stillBlocked.Outcome)

	t120 := t0.Add(cooldown)
	probe := p.AdmitCall(t120)
	require.Equal(AdmissionAllowed, probe.Outcome)
	require.Equal(CircuitHalfOpen, p.CircuitState())

	// only one probe per cooldown window
	secondProbe := p.AdmitCall(t120)
	require.Equal(AdmissionDeniedByCircuit, secondProbe.Outcome)
}

func TestCircuitThreshold_ExactBoundary(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p := NewPolicyState(t0, DailyQuota{MaxRequestsPerDay: 1000, MaxTransferBytesPerDay: 1 << 30}, CircuitBreakerConfig{FailureThreshold: 3, OpenCooldown: time.Minute})

	p.AdmitCall(t0)
	p.RecordFailure(t0)
	assert.Equal(t, CircuitClosed, p.CircuitState())

	p.AdmitCall(t0)
	p.RecordFailure(t0)
	assert.Equal(t, CircuitClosed, p.CircuitState())

	p.AdmitCall(t0)
	p.RecordFailure(t0)
	assert.Equal(t, CircuitOpen, p.CircuitState())
}

func TestRecordSuccess_ClosesBreakerAndResetsFailures(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p := NewPolicyState(t0, DailyQuota{MaxRequestsPerDay: 1000, MaxTransferBytesPerDay: 1 << 30}, CircuitBreakerConfig{FailureThreshold: 1, OpenCooldown: time.Minute})

	p.AdmitCall(t0)
	p.RecordFailure(t0)
	assert.Equal(t, CircuitOpen, p.CircuitState())

	t61 := t0.Add(61 * time.Second)
	probe := p.AdmitCall(t61)
	assert.Equal(t, AdmissionAllowed, probe.Outcome)
	p.RecordSuccess(t61, 100)
	assert.Equal(t, CircuitClosed, p.CircuitState())
}
