package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/aluga-erp/aluga/internal/jobs"
	"github.com/aluga-erp/aluga/internal/settlement"
	"github.com/aluga-erp/aluga/internal/shared"
)

// Recalculator is the settlement operation run by the job.
type Recalculator interface {
	Recalculate(ctx context.Context, in settlement.RecalculateInput) (settlement.Result, error)
}

// RecalculateJob recomputes settlements queued by the batch endpoint.
type RecalculateJob struct {
	Service Recalculator
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewRecalculateJob initialises the recalculation handler.
func NewRecalculateJob(service Recalculator, logger *slog.Logger, metrics *jobmetrics.Metrics) *RecalculateJob {
	return &RecalculateJob{Service: service, Logger: logger, Metrics: metrics}
}

// Handle processes TaskSettlementRecalculate tasks. Data errors are not
// retried; storage and lock failures are.
func (j *RecalculateJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Service == nil {
		return errors.New("recalculate: handler not configured")
	}
	var payload RecalculatePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("recalculate: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	tracker := j.Metrics.Track(TaskSettlementRecalculate)
	defer func() { _ = tracker.End(err) }()

	period := settlement.Period{Month: payload.Month, Year: payload.Year}
	logger := j.logger().With(
		slog.Int64("contract_id", payload.ContractID),
		slog.String("period", period.String()),
	)
	result, err := j.Service.Recalculate(ctx, settlement.RecalculateInput{
		ContractID: payload.ContractID,
		Period:     period,
		ActorID:    payload.ActorID,
	})
	if err != nil {
		if permanent(err) {
			logger.Warn("recalculation rejected", slog.Any("error", err))
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		logger.Error("recalculation failed", slog.Any("error", err))
		return err
	}
	logger.Info("recalculation completed",
		slog.String("status", string(result.Settlement.Status)),
		slog.String("net", result.Settlement.Net.StringFixed(2)),
	)
	return nil
}

func permanent(err error) bool {
	return errors.Is(err, shared.ErrNotFound) ||
		errors.Is(err, shared.ErrInvalidArgument) ||
		errors.Is(err, shared.ErrShareIntegrity) ||
		errors.Is(err, shared.ErrPrimaryDesignation) ||
		errors.Is(err, shared.ErrNoParticipants) ||
		errors.Is(err, shared.ErrSettlementLocked)
}

func (j *RecalculateJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
