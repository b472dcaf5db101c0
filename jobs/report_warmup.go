package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// ReportBuilder is the subset of the statement builder the warmup needs.
type ReportBuilder interface {
	BalanceSheet(ctx context.Context, asOf time.Time) (reports.BalanceSheet, error)
	TrialBalance(ctx context.Context, asOf time.Time) (reports.TrialBalance, error)
}

// ReportWarmupJob rebuilds the day's statements so the first reader after a
// posting hits the cache.
type ReportWarmupJob struct {
	Reports ReportBuilder
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewReportWarmupJob wires dependencies for the warmup handler.
func NewReportWarmupJob(builder ReportBuilder, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReportWarmupJob {
	return &ReportWarmupJob{
		Reports: builder,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes TaskReportWarmup tasks.
func (j *ReportWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Reports == nil {
		return errors.New("report warmup: handler not configured")
	}
	var payload ReportWarmupPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	asOf, err := parseAsOf(payload.AsOf, j.now())
	if err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskReportWarmup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.String("as_of", asOf.Format(time.DateOnly)))
	if _, err := j.Reports.TrialBalance(ctx, asOf); err != nil {
		resultErr = err
		logger.Error("warm trial balance", slog.Any("error", err))
		return resultErr
	}
	if _, err := j.Reports.BalanceSheet(ctx, asOf); err != nil {
		resultErr = err
		logger.Error("warm balance sheet", slog.Any("error", err))
		return resultErr
	}
	logger.Info("warmed ledger reports")
	return resultErr
}

// WatchReportVersion enqueues a warmup whenever the report cache version is
// bumped. It blocks until ctx is cancelled.
func WatchReportVersion(ctx context.Context, cache *reports.Cache, client *Client, logger *slog.Logger) error {
	sub := cache.Subscribe(ctx)
	if sub == nil {
		return nil
	}
	defer sub.Close()
	if logger == nil {
		logger = slog.Default()
	}
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if _, err := client.EnqueueReportWarmup(ctx, ReportWarmupPayload{}); err != nil && !errors.Is(err, asynq.ErrDuplicateTask) {
				logger.Warn("enqueue report warmup", slog.String("version", msg.Payload), slog.Any("error", err))
			}
		}
	}
}

func (j *ReportWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *ReportWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *ReportWarmupJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
