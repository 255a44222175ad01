package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/aluga-erp/aluga/internal/jobs"
	"github.com/aluga-erp/aluga/internal/ownership"
	"github.com/aluga-erp/aluga/internal/shared"
)

// ContractLister lists contracts that are currently in force.
type ContractLister interface {
	ListActiveContractIDs(ctx context.Context) ([]int64, error)
}

// OwnershipChecker validates the participants of one contract.
type OwnershipChecker interface {
	Check(ctx context.Context, contractID int64) ([]ownership.Violation, error)
}

// IntegrityReport summarises one scan.
type IntegrityReport struct {
	Contracts  int
	Violations []ownership.Violation
}

// IntegrityJob reports active contracts whose ownership data would make a
// recalculation fail.
type IntegrityJob struct {
	Contracts ContractLister
	Checker   OwnershipChecker
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewIntegrityJob initialises the integrity scan.
func NewIntegrityJob(contracts ContractLister, checker OwnershipChecker, logger *slog.Logger, metrics *jobmetrics.Metrics) *IntegrityJob {
	return &IntegrityJob{Contracts: contracts, Checker: checker, Logger: logger, Metrics: metrics}
}

// Handle processes TaskOwnershipIntegrity tasks.
func (j *IntegrityJob) Handle(ctx context.Context, _ *asynq.Task) error {
	_, err := j.Run(ctx)
	return err
}

// Run scans every active contract. A failure on one contract is logged and
// the scan continues; the first such error is returned at the end.
func (j *IntegrityJob) Run(ctx context.Context) (report IntegrityReport, err error) {
	if j == nil || j.Contracts == nil || j.Checker == nil {
		return IntegrityReport{}, errors.New("integrity: job not configured")
	}
	tracker := j.Metrics.Track(TaskOwnershipIntegrity)
	defer func() { _ = tracker.End(err) }()

	start := time.Now()
	logger := j.logger()
	ids, err := j.Contracts.ListActiveContractIDs(ctx)
	if err != nil {
		return IntegrityReport{}, err
	}
	var firstErr error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Contracts++
		violations, err := j.Checker.Check(ctx, id)
		if err != nil {
			logger.Error("integrity check failed", slog.Int64("contract_id", id), slog.Any("error", err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		for _, v := range violations {
			logger.Warn("ownership integrity violation",
				slog.Int64("contract_id", v.ContractID),
				slog.String("role", string(v.Role)),
				slog.Any("error", v.Err),
			)
			j.Metrics.AddIntegrityViolations(string(v.Role), violationKind(v.Err), 1)
		}
		report.Violations = append(report.Violations, violations...)
	}
	logger.Info("ownership integrity scan completed",
		slog.Int("contracts", report.Contracts),
		slog.Int("violations", len(report.Violations)),
		slog.Duration("duration", time.Since(start)),
	)
	return report, firstErr
}

func violationKind(err error) string {
	switch {
	case errors.Is(err, shared.ErrShareIntegrity):
		return "share_sum"
	case errors.Is(err, shared.ErrPrimaryDesignation):
		return "primary"
	case errors.Is(err, shared.ErrNoParticipants):
		return "no_participants"
	default:
		return "invalid"
	}
}

func (j *IntegrityJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
