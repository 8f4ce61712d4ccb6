package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	jobmetrics "github.com/voyager-crm/voyager/internal/jobs"
	"github.com/voyager-crm/voyager/internal/settlement"
)

// Backfiller runs settlement over every closed proposal of a scope.
type Backfiller interface {
	Backfill(ctx context.Context, agencyID *uuid.UUID) (settlement.BatchReport, error)
}

// SettlementBackfillJob settles closed proposals that never produced their income or commission.
type SettlementBackfillJob struct {
	Settlement Backfiller
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
}

// NewSettlementBackfillJob wires dependencies for the backfill handler.
func NewSettlementBackfillJob(svc Backfiller, logger *slog.Logger, metrics *jobmetrics.Metrics) *SettlementBackfillJob {
	return &SettlementBackfillJob{Settlement: svc, Logger: logger, Metrics: metrics}
}

// Handle processes settlement backfill tasks. Per-proposal failures are logged and do not fail the task.
func (j *SettlementBackfillJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Settlement == nil {
		return errors.New("settlement backfill: handler not configured")
	}
	payload, err := decodeAgencyPayload(t)
	if err != nil {
		return asynq.SkipRetry
	}

	tracker := metricsOrDefault(j.Metrics).Track(TaskSettlementBackfill)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := loggerOrDefault(j.Logger).With(slog.String("job", TaskSettlementBackfill))
	if payload.AgencyID != nil {
		logger = logger.With(slog.String("agency_id", payload.AgencyID.String()))
	}

	report, err := j.Settlement.Backfill(ctx, payload.AgencyID)
	if err != nil {
		logger.Error("settlement backfill", slog.Any("error", err))
		return err
	}
	for _, f := range report.Failures {
		logger.Warn("settle proposal", slog.String("proposal_id", f.ProposalID.String()), slog.String("error", f.Error))
	}
	logger.Info("completed settlement backfill",
		slog.Int("processed", report.Processed),
		slog.Int("incomes", report.Incomes),
		slog.Int("commissions", report.Commissions),
		slog.Int("failed", report.Failed))
	return nil
}
