package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerIntegrity replays posted history against stored balances.
	TaskLedgerIntegrity = "ledger:integrity"
	// TaskReportWarmup rebuilds cached statements after the report version moves.
	TaskReportWarmup = "ledger:reports_warmup"
)

// LedgerIntegrityPayload parameterises an integrity run. An empty AsOf means
// today.
type LedgerIntegrityPayload struct {
	AsOf string `json:"as_of,omitempty"`
}

// ReportWarmupPayload names the statement date to prebuild.
type ReportWarmupPayload struct {
	AsOf string `json:"as_of,omitempty"`
}

// NewLedgerIntegrityTask constructs the integrity check task.
func NewLedgerIntegrityTask(payload LedgerIntegrityPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerIntegrity, data, asynq.MaxRetry(3), asynq.Timeout(5*time.Minute)), nil
}

// NewReportWarmupTask constructs the report warmup task. Warmups for the same
// day collapse into one while queued.
func NewReportWarmupTask(payload ReportWarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReportWarmup, data, asynq.MaxRetry(1), asynq.Unique(time.Minute)), nil
}

func parseAsOf(raw string, now time.Time) (time.Time, error) {
	if raw == "" {
		y, m, d := now.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
	}
	return time.Parse(time.DateOnly, raw)
}
