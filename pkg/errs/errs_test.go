package errs

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedacted_StripsInternalDetailsButKeepsTraceID(t *testing.T) {
	e := Internal("matching idempotency record disappeared", fmt.Errorf("boom")).WithTraceID("trace-1")
	r := e.Redacted()

	assert.Equal(t, CodeInternal, r.Code)
	assert.Equal(t, "Internal server error", r.Message)
	assert.Equal(t, "trace-1", r.TraceID)
	assert.Nil(t, r.Details)
}

func TestRedacted_LeavesOtherCodesAlone(t *testing.T) {
	e := NotFound("route not found").WithTraceID("trace-2")
	r := e.Redacted()
	assert.Equal(t, "route not found", r.Message)
}

func TestRevisionConflict_Details(t *testing.T) {
	e := RevisionConflict(int64(2), int64(1))
	assert.Equal(t, CodeConflict, e.Code)
	assert.EqualValues(t, 2, e.Details.Expected)
	assert.EqualValues(t, 1, e.Details.Actual)
}

func TestAs_UnwrapsWrappedError(t *testing.T) {
	base := ServiceUnavailable("store down", fmt.Errorf("conn refused"))
	wrapped := fmt.Errorf("command failed: %w", base)

	found, ok := As(wrapped)
	assert.True(t, ok)
	assert.Equal(t, CodeServiceUnavailable, found.Code)
}
