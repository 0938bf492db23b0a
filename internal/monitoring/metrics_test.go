package monitoring

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordToolInvocation(t *testing.T) {
	before := testutil.ToFloat64(ToolInvocations.WithLabelValues("add", "math", ""))
	RecordToolInvocation("add", "math", "", 3*time.Millisecond)
	RecordToolInvocation("add", "math", "invalid_arguments", time.Millisecond)

	assert.Equal(t, before+1, testutil.ToFloat64(ToolInvocations.WithLabelValues("add", "math", "")))
	assert.Equal(t, float64(1), testutil.ToFloat64(ToolInvocations.WithLabelValues("add", "math", "invalid_arguments")))
}

func TestRecordResourceRead(t *testing.T) {
	RecordResourceRead("file:///{name}", nil)
	RecordResourceRead("file:///{name}", errors.New("denied"))

	assert.Equal(t, float64(1), testutil.ToFloat64(ResourceReads.WithLabelValues("file:///{name}", OutcomeOK)))
	assert.Equal(t, float64(1), testutil.ToFloat64(ResourceReads.WithLabelValues("file:///{name}", OutcomeError)))
}

func TestRegisterMetricsIsIdempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		RegisterMetrics()
		RegisterMetrics()
	})
}

func TestRecordReload(t *testing.T) {
	RecordReload(TriggerSignal, 20*time.Millisecond)
	assert.Equal(t, float64(1), testutil.ToFloat64(reloadCounter.WithLabelValues(TriggerSignal)))

	RecordConnectFailure("terminal")
	assert.Equal(t, float64(1), testutil.ToFloat64(connectFailures.WithLabelValues("terminal")))
}
