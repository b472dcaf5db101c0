package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
)

type fakeChecker struct {
	drifts   []ledger.Drift
	tb       ledger.TrialBalance
	err      error
	tbAsOf   time.Time
	verified int
}

func (f *fakeChecker) VerifyBalances(ctx context.Context) ([]ledger.Drift, error) {
	f.verified++
	return f.drifts, f.err
}

func (f *fakeChecker) TrialBalance(ctx context.Context, asOf time.Time) (ledger.TrialBalance, error) {
	f.tbAsOf = asOf
	return f.tb, nil
}

type fakeGauge struct {
	drift      int
	difference float64
	calls      int
}

func (g *fakeGauge) SetIntegrity(driftAccounts int, difference float64) {
	g.drift = driftAccounts
	g.difference = difference
	g.calls++
}

func newIntegrityJob(checker IntegrityChecker, gauge IntegrityGauge) *LedgerIntegrityJob {
	job := NewLedgerIntegrityJob(checker, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()), gauge)
	job.clock = func() time.Time { return time.Date(2025, 3, 4, 18, 30, 0, 0, time.UTC) }
	return job
}

func TestLedgerIntegrityHealthy(t *testing.T) {
	checker := &fakeChecker{tb: ledger.TrialBalance{
		TotalDebit:  decimal.NewFromInt(500),
		TotalCredit: decimal.NewFromInt(500),
		Difference:  decimal.Zero,
		IsBalanced:  true,
	}}
	gauge := &fakeGauge{}
	job := newIntegrityJob(checker, gauge)

	report, err := job.Run(context.Background(), time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, report.Healthy())
	assert.Equal(t, "500.00", report.TotalDebit)
	assert.Equal(t, "0.00", report.Difference)
	assert.Equal(t, 1, gauge.calls)
	assert.Zero(t, gauge.drift)
}

func TestLedgerIntegrityReportsFindings(t *testing.T) {
	checker := &fakeChecker{
		drifts: []ledger.Drift{{AccountID: 3, Code: "1110", Expected: decimal.NewFromInt(500), Stored: decimal.NewFromInt(550), Difference: decimal.NewFromInt(50)}},
		tb: ledger.TrialBalance{
			TotalDebit:  decimal.NewFromInt(550),
			TotalCredit: decimal.NewFromInt(500),
			Difference:  decimal.NewFromInt(50),
		},
	}
	gauge := &fakeGauge{}
	job := newIntegrityJob(checker, gauge)

	report, err := job.Run(context.Background(), time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.False(t, report.Healthy())
	assert.False(t, report.Balanced)
	require.Len(t, report.Drifts, 1)
	assert.Equal(t, 1, gauge.drift)
	assert.InDelta(t, 50.0, gauge.difference, 0.0001)
}

func TestLedgerIntegrityCheckerFailure(t *testing.T) {
	gauge := &fakeGauge{}
	job := newIntegrityJob(&fakeChecker{err: errors.New("db down")}, gauge)

	_, err := job.Run(context.Background(), time.Now())
	require.EqualError(t, err, "db down")
	assert.Zero(t, gauge.calls)

	_, err = NewLedgerIntegrityJob(nil, nil, nil, nil).Run(context.Background(), time.Now())
	require.Error(t, err)
}

func TestLedgerIntegrityHandlePayload(t *testing.T) {
	checker := &fakeChecker{tb: ledger.TrialBalance{IsBalanced: true}}
	job := newIntegrityJob(checker, nil)

	task, err := NewLedgerIntegrityTask(LedgerIntegrityPayload{AsOf: "2025-02-28"})
	require.NoError(t, err)
	require.Equal(t, TaskLedgerIntegrity, task.Type())
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC), checker.tbAsOf)

	task, err = NewLedgerIntegrityTask(LedgerIntegrityPayload{})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC), checker.tbAsOf)

	bad := asynq.NewTask(TaskLedgerIntegrity, []byte(`{"as_of":"28/02/2025"}`))
	assert.ErrorIs(t, job.Handle(context.Background(), bad), asynq.SkipRetry)

	garbage := asynq.NewTask(TaskLedgerIntegrity, []byte(`{`))
	assert.ErrorIs(t, job.Handle(context.Background(), garbage), asynq.SkipRetry)
	assert.Equal(t, 2, checker.verified)
}

type fakeBuilder struct {
	asOf []time.Time
	err  error
}

func (f *fakeBuilder) BalanceSheet(ctx context.Context, asOf time.Time) (reports.BalanceSheet, error) {
	f.asOf = append(f.asOf, asOf)
	return reports.BalanceSheet{}, f.err
}

func (f *fakeBuilder) TrialBalance(ctx context.Context, asOf time.Time) (reports.TrialBalance, error) {
	f.asOf = append(f.asOf, asOf)
	return reports.TrialBalance{}, nil
}

func TestReportWarmupBuildsStatements(t *testing.T) {
	builder := &fakeBuilder{}
	job := NewReportWarmupJob(builder, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	payload, err := json.Marshal(ReportWarmupPayload{AsOf: "2025-01-31"})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskReportWarmup, payload)))
	day := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, []time.Time{day, day}, builder.asOf)

	builder.err = errors.New("redis down")
	require.EqualError(t, job.Handle(context.Background(), asynq.NewTask(TaskReportWarmup, payload)), "redis down")

	assert.Error(t, (&ReportWarmupJob{}).Handle(context.Background(), asynq.NewTask(TaskReportWarmup, nil)))
}

func TestStatsWithoutInspector(t *testing.T) {
	stats, err := Stats(nil)
	require.NoError(t, err)
	assert.Equal(t, QueueDefault, stats.Queue)
}
