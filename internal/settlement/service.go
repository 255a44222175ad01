package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aluga-erp/aluga/internal/accrual"
	"github.com/aluga-erp/aluga/internal/ownership"
	"github.com/aluga-erp/aluga/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, contractID int64, period Period) (Settlement, error)
	ListByPeriod(ctx context.Context, period Period) ([]Settlement, error)
	Distributions(ctx context.Context, settlementID int64) ([]Distribution, error)
}

// TxRepository exposes the transactional operations.
type TxRepository interface {
	LoadContract(ctx context.Context, contractID int64) (Contract, error)
	// LockSettlement loads the stored settlement FOR UPDATE; nil when none exists.
	LockSettlement(ctx context.Context, contractID int64, period Period) (*Settlement, error)
	LoadCharges(ctx context.Context, contractID int64, period Period) ([]ChargeComponent, []RetainedItem, error)
	// Apply executes writes in order and returns the settlement id.
	Apply(ctx context.Context, settlementID int64, writes []Write) (int64, error)
}

// ParticipantResolver resolves contract participants.
type ParticipantResolver interface {
	ResolveLandlords(ctx context.Context, contractID int64) ([]ownership.Participant, error)
	ResolveTenants(ctx context.Context, contractID int64) ([]ownership.Participant, error)
}

// IndexLookup returns the correction index percentage for a period.
type IndexLookup interface {
	Percent(ctx context.Context, ref accrual.IndexRef) (decimal.Decimal, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort claims payment ids.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key, module string) error
}

// MetricsPort receives settlement outcomes.
type MetricsPort interface {
	ObserveSettlement(status string, negativeNet bool)
	ObserveIntegrityError(kind string)
}

const paymentModule = "settlement.payment"

// Service orchestrates settlement recomputation and lifecycle changes. Work on
// one contract period is serialised by a keyed lock plus a row lock.
type Service struct {
	repo        RepositoryPort
	resolver    ParticipantResolver
	index       IndexLookup
	engine      *Engine
	locker      shared.Locker
	audit       AuditPort
	idempotency IdempotencyPort
	metrics     MetricsPort
	logger      *slog.Logger
	now         func() time.Time
	loc         *time.Location
}

// NewService constructs a Service instance.
func NewService(repo RepositoryPort, resolver ParticipantResolver, index IndexLookup, engine *Engine, locker shared.Locker, logger *slog.Logger) *Service {
	if locker == nil {
		locker = shared.NewKeyedMutex()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		resolver: resolver,
		index:    index,
		engine:   engine,
		locker:   locker,
		logger:   logger,
		now:      time.Now,
		loc:      time.UTC,
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithLocation sets the timezone used for due dates.
func (s *Service) WithLocation(loc *time.Location) {
	if loc != nil {
		s.loc = loc
	}
}

// WithAudit attaches the generic audit log.
func (s *Service) WithAudit(audit AuditPort) { s.audit = audit }

// WithIdempotency attaches the payment id store.
func (s *Service) WithIdempotency(store IdempotencyPort) { s.idempotency = store }

// WithMetrics attaches metrics collectors.
func (s *Service) WithMetrics(metrics MetricsPort) { s.metrics = metrics }

// RecalculateInput requests a recomputation.
type RecalculateInput struct {
	ContractID int64
	Period     Period
	ActorID    int64
	// ManualAccruals overrides the computed accrual of components by id.
	ManualAccruals map[int64]accrual.Breakdown
}

// Recalculate computes and persists the settlement for a contract period.
func (s *Service) Recalculate(ctx context.Context, in RecalculateInput) (Result, error) {
	if in.ContractID <= 0 {
		return Result{}, fmt.Errorf("settlement: contract id required: %w", shared.ErrInvalidArgument)
	}
	if err := in.Period.Validate(); err != nil {
		return Result{}, err
	}
	release, err := s.locker.Acquire(ctx, shared.SettlementLockKey(in.ContractID, in.Period.Year, in.Period.Month))
	if err != nil {
		return Result{}, err
	}
	defer func() { _ = release(context.WithoutCancel(ctx)) }()

	var result Result
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		contract, err := tx.LoadContract(ctx, in.ContractID)
		if err != nil {
			return err
		}
		if !contract.Covers(in.Period) {
			return fmt.Errorf("settlement: contract %d not in force in %s: %w", in.ContractID, in.Period, shared.ErrNotFound)
		}
		previous, err := tx.LockSettlement(ctx, in.ContractID, in.Period)
		if err != nil {
			return err
		}
		if previous != nil && previous.Status.Terminal() {
			return &LockedError{ContractID: in.ContractID, Period: in.Period, Status: previous.Status}
		}
		components, retained, err := tx.LoadCharges(ctx, in.ContractID, in.Period)
		if err != nil {
			return err
		}
		if len(components) == 0 {
			return fmt.Errorf("settlement: no charges for contract %d in %s: %w", in.ContractID, in.Period, shared.ErrNotFound)
		}
		components = applyManualAccruals(components, in.ManualAccruals)

		index, err := s.index.Percent(ctx, accrual.IndexRef{Name: contract.IndexName, Month: in.Period.Month, Year: in.Period.Year})
		if err != nil {
			return err
		}
		landlords, err := s.resolver.ResolveLandlords(ctx, in.ContractID)
		if err != nil {
			return err
		}
		tenants, err := s.resolver.ResolveTenants(ctx, in.ContractID)
		if err != nil {
			return err
		}

		result, err = s.engine.Compute(BuildInput{
			ContractID:   in.ContractID,
			Period:       in.Period,
			Components:   components,
			Retained:     retained,
			DueDate:      in.Period.DueDate(contract.DueDay, s.loc),
			Today:        s.now().In(s.loc),
			IndexPercent: index,
			Previous:     previous,
			ActorID:      in.ActorID,
		}, landlords)
		if err != nil {
			return err
		}
		result.Tenants = tenants

		var previousID int64
		if previous != nil {
			previousID = previous.ID
		}
		id, err := tx.Apply(ctx, previousID, result.Writes)
		if err != nil {
			return err
		}
		result.Settlement.ID = id
		return nil
	})
	if err != nil {
		s.reportFailure(in.ContractID, in.Period, err)
		return Result{}, err
	}

	st := result.Settlement
	if s.metrics != nil {
		s.metrics.ObserveSettlement(string(st.Status), st.NegativeNet)
	}
	attrs := []any{
		slog.Int64("contract_id", st.ContractID),
		slog.String("period", st.Period.String()),
		slog.String("status", string(st.Status)),
		slog.String("net", st.Net.StringFixed(2)),
		slog.Int("days_overdue", st.DaysOverdue),
	}
	if st.NegativeNet {
		s.logger.Warn("settlement net is negative", attrs...)
	} else {
		s.logger.Info("settlement recalculated", attrs...)
	}
	s.recordAudit(ctx, in.ActorID, "SETTLEMENT_RECALCULATE", st, map[string]any{
		"net":    st.Net.StringFixed(2),
		"status": st.Status,
	})
	return result, nil
}

func applyManualAccruals(components []ChargeComponent, overrides map[int64]accrual.Breakdown) []ChargeComponent {
	if len(overrides) == 0 {
		return components
	}
	out := make([]ChargeComponent, len(components))
	copy(out, components)
	for i := range out {
		if b, ok := overrides[out[i].ID]; ok && out[i].ID != 0 {
			out[i].ManualAccrual = &b
		}
	}
	return out
}

// PaymentInput records a payment event.
type PaymentInput struct {
	ContractID int64
	Period     Period
	PaymentID  uuid.UUID
	Amount     decimal.Decimal
	PaidAt     time.Time
	ActorID    int64
}

// RecordPayment marks the settlement PAID. A payment id is accepted once;
// replays return shared.ErrIdempotencyConflict.
func (s *Service) RecordPayment(ctx context.Context, in PaymentInput) (Settlement, error) {
	if in.PaymentID == uuid.Nil {
		return Settlement{}, fmt.Errorf("settlement: payment id required: %w", shared.ErrInvalidArgument)
	}
	if !in.Amount.IsPositive() {
		return Settlement{}, fmt.Errorf("settlement: payment amount must be positive: %w", shared.ErrInvalidArgument)
	}
	key := in.PaymentID.String()
	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, paymentModule); err != nil {
			return Settlement{}, err
		}
	}
	if in.PaidAt.IsZero() {
		in.PaidAt = s.now()
	}
	st, err := s.transition(ctx, in.ContractID, in.Period, StatusPaid, in.ActorID, "payment "+key, in.PaidAt)
	if err != nil {
		if s.idempotency != nil {
			_ = s.idempotency.Delete(context.WithoutCancel(ctx), key, paymentModule)
		}
		return Settlement{}, err
	}
	s.recordAudit(ctx, in.ActorID, "SETTLEMENT_PAID", st, map[string]any{
		"payment_id": key,
		"amount":     in.Amount.StringFixed(2),
	})
	return st, nil
}

// CancelInput requests cancellation.
type CancelInput struct {
	ContractID int64
	Period     Period
	ActorID    int64
	Reason     string
}

// Cancel marks the settlement CANCELLED.
func (s *Service) Cancel(ctx context.Context, in CancelInput) (Settlement, error) {
	st, err := s.transition(ctx, in.ContractID, in.Period, StatusCancelled, in.ActorID, in.Reason, s.now())
	if err != nil {
		return Settlement{}, err
	}
	s.recordAudit(ctx, in.ActorID, "SETTLEMENT_CANCEL", st, map[string]any{"reason": in.Reason})
	return st, nil
}

func (s *Service) transition(ctx context.Context, contractID int64, period Period, to Status, actorID int64, reason string, at time.Time) (Settlement, error) {
	if contractID <= 0 {
		return Settlement{}, fmt.Errorf("settlement: contract id required: %w", shared.ErrInvalidArgument)
	}
	if err := period.Validate(); err != nil {
		return Settlement{}, err
	}
	release, err := s.locker.Acquire(ctx, shared.SettlementLockKey(contractID, period.Year, period.Month))
	if err != nil {
		return Settlement{}, err
	}
	defer func() { _ = release(context.WithoutCancel(ctx)) }()

	var updated Settlement
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.LockSettlement(ctx, contractID, period)
		if err != nil {
			return err
		}
		if current == nil {
			return fmt.Errorf("settlement: contract %d period %s: %w", contractID, period, shared.ErrNotFound)
		}
		if current.Status.Terminal() {
			return &LockedError{ContractID: contractID, Period: period, Status: current.Status}
		}
		if !CanTransition(current.Status, to) {
			return ErrInvalidTransition
		}
		note := StatusNote(*current, to, actorID, reason, at)
		if _, err := tx.Apply(ctx, current.ID, statusWrites(*current, note)); err != nil {
			return err
		}
		updated = *current
		updated.Status = to
		switch to {
		case StatusPaid:
			updated.PaidAt = &at
		case StatusCancelled:
			updated.CancelledAt = &at
			updated.Active = false
		}
		return nil
	})
	if err != nil {
		return Settlement{}, err
	}
	s.logger.Info("settlement status changed",
		slog.Int64("contract_id", contractID),
		slog.String("period", period.String()),
		slog.String("status", string(to)),
	)
	return updated, nil
}

// View is a stored settlement with its payout rows.
type View struct {
	Settlement    Settlement     `json:"settlement"`
	Distributions []Distribution `json:"distributions"`
}

// Get returns the stored settlement of a contract period.
func (s *Service) Get(ctx context.Context, contractID int64, period Period) (View, error) {
	if err := period.Validate(); err != nil {
		return View{}, err
	}
	st, err := s.repo.Get(ctx, contractID, period)
	if err != nil {
		return View{}, err
	}
	rows, err := s.repo.Distributions(ctx, st.ID)
	if err != nil {
		return View{}, err
	}
	return View{Settlement: st, Distributions: rows}, nil
}

// ListByPeriod returns the settlements of every contract for a period.
func (s *Service) ListByPeriod(ctx context.Context, period Period) ([]Settlement, error) {
	if err := period.Validate(); err != nil {
		return nil, err
	}
	return s.repo.ListByPeriod(ctx, period)
}

func (s *Service) reportFailure(contractID int64, period Period, err error) {
	var (
		shareErr   *ownership.ShareIntegrityError
		primaryErr *ownership.PrimaryDesignationError
		noneErr    *ownership.NoParticipantsError
	)
	switch {
	case errors.As(err, &shareErr):
		s.logger.Error("ownership shares do not total 100",
			slog.Int64("contract_id", shareErr.ContractID),
			slog.String("role", string(shareErr.Role)),
			slog.String("sum", shareErr.Sum.String()),
		)
		s.observeIntegrity("share_sum")
	case errors.As(err, &primaryErr):
		s.logger.Error("ownership primary designation invalid",
			slog.Int64("contract_id", primaryErr.ContractID),
			slog.String("role", string(primaryErr.Role)),
			slog.Any("primary_ids", primaryErr.PrimaryIDs),
		)
		s.observeIntegrity("primary")
	case errors.As(err, &noneErr):
		s.logger.Error("contract has no participants",
			slog.Int64("contract_id", noneErr.ContractID),
			slog.String("role", string(noneErr.Role)),
		)
		s.observeIntegrity("no_participants")
	case errors.Is(err, shared.ErrSettlementLocked):
		s.logger.Warn("settlement locked", slog.Int64("contract_id", contractID), slog.String("period", period.String()))
	}
}

func (s *Service) observeIntegrity(kind string) {
	if s.metrics != nil {
		s.metrics.ObserveIntegrityError(kind)
	}
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, st Settlement, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if meta == nil {
		meta = map[string]any{}
	}
	meta["period"] = st.Period.String()
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "settlement",
		EntityID: strconv.FormatInt(st.ContractID, 10) + ":" + st.Period.String(),
		Meta:     meta,
		At:       s.now(),
	})
	if err != nil {
		s.logger.Warn("audit log write failed",
			slog.String("action", action),
			slog.Int64("contract_id", st.ContractID),
			slog.String("period", st.Period.String()),
			slog.Any("error", err),
		)
	}
}
