package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/integration"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
)

// Operational events delivered to the ledger through the queue.
const (
	TaskSalesInvoicePosted = "ledger:event:sales_invoice_posted"
	TaskPurchaseBillPosted = "ledger:event:purchase_bill_posted"
	TaskPaymentReceived    = "ledger:event:payment_received"
	TaskPaymentMade        = "ledger:event:payment_made"
	TaskPayrollPosted      = "ledger:event:payroll_posted"
)

// EventPoster turns operational events into posted journal entries.
type EventPoster interface {
	HandleSalesInvoicePosted(ctx context.Context, evt integration.SalesInvoicePostedEvent) error
	HandlePurchaseBillPosted(ctx context.Context, evt integration.PurchaseBillPostedEvent) error
	HandlePaymentReceived(ctx context.Context, evt integration.PaymentReceivedEvent) error
	HandlePaymentMade(ctx context.Context, evt integration.PaymentMadeEvent) error
	HandlePayrollPosted(ctx context.Context, evt integration.PayrollPostedEvent) error
}

// IntegrationEventJob consumes queued operational events.
type IntegrationEventJob struct {
	Poster  EventPoster
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewIntegrationEventJob wires dependencies for the event handlers.
func NewIntegrationEventJob(poster EventPoster, logger *slog.Logger, metrics *jobmetrics.Metrics) *IntegrationEventJob {
	return &IntegrationEventJob{Poster: poster, Logger: logger, Metrics: metrics}
}

// Handlers lists one task handler per event type.
func (j *IntegrationEventJob) Handlers() []TaskHandler {
	return []TaskHandler{
		{Type: TaskSalesInvoicePosted, Handler: func(ctx context.Context, t *asynq.Task) error {
			return runEvent(ctx, j, t, j.Poster.HandleSalesInvoicePosted)
		}},
		{Type: TaskPurchaseBillPosted, Handler: func(ctx context.Context, t *asynq.Task) error {
			return runEvent(ctx, j, t, j.Poster.HandlePurchaseBillPosted)
		}},
		{Type: TaskPaymentReceived, Handler: func(ctx context.Context, t *asynq.Task) error {
			return runEvent(ctx, j, t, j.Poster.HandlePaymentReceived)
		}},
		{Type: TaskPaymentMade, Handler: func(ctx context.Context, t *asynq.Task) error {
			return runEvent(ctx, j, t, j.Poster.HandlePaymentMade)
		}},
		{Type: TaskPayrollPosted, Handler: func(ctx context.Context, t *asynq.Task) error {
			return runEvent(ctx, j, t, j.Poster.HandlePayrollPosted)
		}},
	}
}

// runEvent decodes the payload and posts it. Payload and validation failures
// are not retried; concurrency conflicts and missing mappings are.
func runEvent[T any](ctx context.Context, j *IntegrationEventJob, t *asynq.Task, post func(context.Context, T) error) error {
	if j == nil || j.Poster == nil {
		return errors.New("integration event: handler not configured")
	}
	var evt T
	if err := json.Unmarshal(t.Payload(), &evt); err != nil {
		return fmt.Errorf("%w: decode %s: %v", asynq.SkipRetry, t.Type(), err)
	}

	tracker := j.metrics().Track(t.Type())
	err := post(ctx, evt)
	switch {
	case err == nil:
	case errors.Is(err, shared.ErrConcurrency), errors.Is(err, shared.ErrMappingNotFound):
		j.logger().Warn("integration event deferred", slog.String("type", t.Type()), slog.Any("error", err))
	default:
		j.logger().Error("integration event rejected", slog.String("type", t.Type()), slog.Any("error", err))
		err = fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	return tracker.End(err)
}

// NewIntegrationEventTask wraps an event for the queue. Events are retried
// for a day so a missing account mapping can be fixed in the meantime.
func NewIntegrationEventTask(taskType string, event any) (*asynq.Task, error) {
	switch taskType {
	case TaskSalesInvoicePosted, TaskPurchaseBillPosted, TaskPaymentReceived, TaskPaymentMade, TaskPayrollPosted:
	default:
		return nil, fmt.Errorf("integration event: unsupported task %s", taskType)
	}
	data, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, data, asynq.MaxRetry(25), asynq.Retention(24*time.Hour)), nil
}

func (j *IntegrationEventJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *IntegrationEventJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
