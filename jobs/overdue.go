package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	jobmetrics "github.com/voyager-crm/voyager/internal/jobs"
)

// OverdueMarker flags pending transactions whose due date has passed.
type OverdueMarker interface {
	MarkOverdue(ctx context.Context, agencyID *uuid.UUID) (int64, error)
}

// MarkOverdueJob runs the overdue sweep.
type MarkOverdueJob struct {
	Finance OverdueMarker
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewMarkOverdueJob wires dependencies for the overdue sweep.
func NewMarkOverdueJob(finance OverdueMarker, logger *slog.Logger, metrics *jobmetrics.Metrics) *MarkOverdueJob {
	return &MarkOverdueJob{Finance: finance, Logger: logger, Metrics: metrics}
}

// Handle processes overdue sweep tasks.
func (j *MarkOverdueJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Finance == nil {
		return errors.New("mark overdue: handler not configured")
	}
	payload, err := decodeAgencyPayload(t)
	if err != nil {
		return asynq.SkipRetry
	}
	tracker := metricsOrDefault(j.Metrics).Track(TaskFinanceMarkOverdue)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	n, err := j.Finance.MarkOverdue(ctx, payload.AgencyID)
	if err != nil {
		loggerOrDefault(j.Logger).Error("mark overdue", slog.Any("error", err))
		return err
	}
	loggerOrDefault(j.Logger).Info("marked transactions overdue", slog.Int64("count", n))
	return nil
}
