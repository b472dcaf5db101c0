package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/ledger"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
)

// IntegrityChecker exposes the ledger checks run by the job.
type IntegrityChecker interface {
	VerifyBalances(ctx context.Context) ([]ledger.Drift, error)
	TrialBalance(ctx context.Context, asOf time.Time) (ledger.TrialBalance, error)
}

// IntegrityGauge publishes the outcome of the latest run.
type IntegrityGauge interface {
	SetIntegrity(driftAccounts int, difference float64)
}

// IntegrityReport summarises one integrity run.
type IntegrityReport struct {
	AsOf        time.Time      `json:"as_of"`
	Drifts      []ledger.Drift `json:"drifts"`
	TotalDebit  string         `json:"total_debit"`
	TotalCredit string         `json:"total_credit"`
	Difference  string         `json:"difference"`
	Balanced    bool           `json:"balanced"`
}

// Healthy reports whether the ledger passed every check.
func (r IntegrityReport) Healthy() bool {
	return r.Balanced && len(r.Drifts) == 0
}

// LedgerIntegrityJob compares stored balances with posted history and checks
// that the trial balance still balances.
type LedgerIntegrityJob struct {
	Checker IntegrityChecker
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	Gauge   IntegrityGauge
	clock   func() time.Time
}

// NewLedgerIntegrityJob wires dependencies for the integrity handler.
func NewLedgerIntegrityJob(checker IntegrityChecker, logger *slog.Logger, metrics *jobmetrics.Metrics, gauge IntegrityGauge) *LedgerIntegrityJob {
	return &LedgerIntegrityJob{
		Checker: checker,
		Logger:  logger,
		Metrics: metrics,
		Gauge:   gauge,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes TaskLedgerIntegrity tasks. Findings are logged and counted;
// the task only fails when the checks themselves cannot run.
func (j *LedgerIntegrityJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("ledger integrity: handler not configured")
	}
	var payload LedgerIntegrityPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	asOf, err := parseAsOf(payload.AsOf, j.now())
	if err != nil {
		return asynq.SkipRetry
	}
	_, err = j.Run(ctx, asOf)
	return err
}

// Run executes the checks synchronously.
func (j *LedgerIntegrityJob) Run(ctx context.Context, asOf time.Time) (IntegrityReport, error) {
	if j.Checker == nil {
		return IntegrityReport{}, errors.New("ledger integrity: checker not configured")
	}
	tracker := j.metrics().Track(TaskLedgerIntegrity)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.String("as_of", asOf.Format(time.DateOnly)))
	logger.Info("starting ledger integrity check")

	drifts, err := j.Checker.VerifyBalances(ctx)
	if err != nil {
		resultErr = err
		logger.Error("verify balances", slog.Any("error", err))
		return IntegrityReport{}, resultErr
	}
	tb, err := j.Checker.TrialBalance(ctx, asOf)
	if err != nil {
		resultErr = err
		logger.Error("trial balance", slog.Any("error", err))
		return IntegrityReport{}, resultErr
	}

	report := IntegrityReport{
		AsOf:        asOf,
		Drifts:      drifts,
		TotalDebit:  tb.TotalDebit.StringFixed(2),
		TotalCredit: tb.TotalCredit.StringFixed(2),
		Difference:  tb.Difference.StringFixed(2),
		Balanced:    tb.IsBalanced,
	}
	for _, d := range drifts {
		logger.Warn("account balance drift",
			slog.String("code", d.Code),
			slog.String("expected", d.Expected.StringFixed(2)),
			slog.String("stored", d.Stored.StringFixed(2)),
			slog.String("difference", d.Difference.StringFixed(2)),
		)
	}
	j.metrics().AddFindings("drift", len(drifts))
	if !tb.IsBalanced {
		logger.Warn("trial balance out of balance", slog.String("difference", report.Difference))
		j.metrics().AddFindings("imbalance", 1)
	}
	if j.Gauge != nil {
		j.Gauge.SetIntegrity(len(drifts), tb.Difference.InexactFloat64())
	}

	logger.Info("completed ledger integrity check",
		slog.Int("drifts", len(drifts)),
		slog.Bool("balanced", tb.IsBalanced),
	)
	return report, resultErr
}

func (j *LedgerIntegrityJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *LedgerIntegrityJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *LedgerIntegrityJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
