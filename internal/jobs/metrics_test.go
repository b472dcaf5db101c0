package jobmetrics

import (
	"errors"
	"fmt"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTrackerOutcomes(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	assert.NoError(t, m.Track("ledger:integrity").End(nil))
	boom := errors.New("db down")
	assert.Same(t, boom, m.Track("ledger:integrity").End(boom))
	assert.Error(t, m.Track("ledger:integrity").End(fmt.Errorf("%w: bad payload", asynq.SkipRetry)))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("ledger:integrity", StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("ledger:integrity", StatusFailure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("ledger:integrity", StatusRejected)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("ledger:integrity")))
}

func TestAddFindingsIgnoresEmptyCounts(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.AddFindings("drift", 0)
	m.AddFindings("drift", 3)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.findings.WithLabelValues("drift")))

	var nilMetrics *Metrics
	nilMetrics.AddFindings("drift", 1)
	assert.NoError(t, nilMetrics.Track("x").End(nil))
}
