package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/aluga-erp/aluga/internal/accrual"
	"github.com/aluga-erp/aluga/internal/platform/db"
	"github.com/aluga-erp/aluga/internal/shared"
)

// Repository persists settlements in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository using the provided pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// WithTx wraps fn in a read-committed transaction; settlement rows are locked
// explicitly.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("settlement: repository not initialised")
	}
	return db.WithTx(ctx, r.pool, db.ReadCommitted, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const settlementColumns = `s.id, s.contract_id, s.month, s.year, s.gross_charged, s.total_retained, s.net,
	s.due_date, s.days_overdue, s.index_percent, s.negative_net, s.status, s.active,
	s.paid_at, s.cancelled_at, s.computed_at`

func scanSettlement(row pgx.Row) (Settlement, error) {
	var (
		s                   Settlement
		status              string
		dueDate             pgtype.Date
		paidAt, cancelledAt pgtype.Timestamptz
	)
	err := row.Scan(&s.ID, &s.ContractID, &s.Period.Month, &s.Period.Year, &s.GrossCharged, &s.TotalRetained, &s.Net,
		&dueDate, &s.DaysOverdue, &s.IndexPercent, &s.NegativeNet, &status, &s.Active,
		&paidAt, &cancelledAt, &s.ComputedAt)
	if err != nil {
		return Settlement{}, err
	}
	s.Status = Status(status)
	if dueDate.Valid {
		s.DueDate = dueDate.Time
	}
	if paidAt.Valid {
		t := paidAt.Time
		s.PaidAt = &t
	}
	if cancelledAt.Valid {
		t := cancelledAt.Time
		s.CancelledAt = &t
	}
	return s, nil
}

// Get returns the stored settlement with its components and retained items.
func (r *Repository) Get(ctx context.Context, contractID int64, period Period) (Settlement, error) {
	s, err := scanSettlement(r.pool.QueryRow(ctx, `SELECT `+settlementColumns+`
FROM settlements s
WHERE s.contract_id = $1 AND s.year = $2 AND s.month = $3`, contractID, period.Year, period.Month))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Settlement{}, fmt.Errorf("settlement: contract %d period %s: %w", contractID, period, shared.ErrNotFound)
		}
		return Settlement{}, err
	}
	if err := loadLines(ctx, r.pool, &s); err != nil {
		return Settlement{}, err
	}
	return s, nil
}

// ListByPeriod returns the active settlements of a period ordered by contract.
func (r *Repository) ListByPeriod(ctx context.Context, period Period) ([]Settlement, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+settlementColumns+`
FROM settlements s
WHERE s.year = $1 AND s.month = $2 AND s.active = true
ORDER BY s.contract_id`, period.Year, period.Month)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Settlement
	for rows.Next() {
		s, err := scanSettlement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Distributions returns the payout rows of a settlement.
func (r *Repository) Distributions(ctx context.Context, settlementID int64) ([]Distribution, error) {
	rows, err := r.pool.Query(ctx, `SELECT landlord_id, name, share_percent, is_primary, payout_channel,
	gross_share, transfer_fee, payout, absorbs_remainder
FROM settlement_distributions
WHERE settlement_id = $1
ORDER BY position`, settlementID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Distribution
	for rows.Next() {
		d := Distribution{SettlementID: settlementID}
		if err := rows.Scan(&d.LandlordID, &d.Name, &d.SharePercent, &d.IsPrimary, &d.PayoutChannel,
			&d.GrossShare, &d.TransferFee, &d.Payout, &d.AbsorbsRemainder); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// LoadContract implements TxRepository.
func (t *txRepo) LoadContract(ctx context.Context, contractID int64) (Contract, error) {
	var (
		c      Contract
		start  pgtype.Date
		end    pgtype.Date
		index  pgtype.Text
		dueDay pgtype.Int4
	)
	err := t.tx.QueryRow(ctx, `SELECT id, property_id, start_date, end_date, due_day, index_name, active
FROM contracts WHERE id = $1`, contractID).Scan(&c.ID, &c.PropertyID, &start, &end, &dueDay, &index, &c.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Contract{}, fmt.Errorf("settlement: contract %d: %w", contractID, shared.ErrNotFound)
		}
		return Contract{}, err
	}
	if start.Valid {
		c.StartDate = start.Time
	}
	if end.Valid {
		e := end.Time
		c.EndDate = &e
	}
	c.DueDay = int(dueDay.Int32)
	if !dueDay.Valid {
		c.DueDay = 10
	}
	c.IndexName = index.String
	return c, nil
}

// LockSettlement implements TxRepository.
func (t *txRepo) LockSettlement(ctx context.Context, contractID int64, period Period) (*Settlement, error) {
	s, err := scanSettlement(t.tx.QueryRow(ctx, `SELECT `+settlementColumns+`
FROM settlements s
WHERE s.contract_id = $1 AND s.year = $2 AND s.month = $3
FOR UPDATE`, contractID, period.Year, period.Month))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err := loadLines(ctx, t.tx, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// LoadCharges implements TxRepository. Components come back in id order.
func (t *txRepo) LoadCharges(ctx context.Context, contractID int64, period Period) ([]ChargeComponent, []RetainedItem, error) {
	rows, err := t.tx.Query(ctx, `SELECT id, kind, description, original_amount, accrual_eligible, pass_through,
	manual_interest, manual_penalty, manual_correction
FROM charge_components
WHERE contract_id = $1 AND year = $2 AND month = $3 AND active = true
ORDER BY id`, contractID, period.Year, period.Month)
	if err != nil {
		return nil, nil, err
	}
	var components []ChargeComponent
	for rows.Next() {
		var (
			c                             ChargeComponent
			kind                          string
			interest, penalty, correction decimal.NullDecimal
		)
		if err := rows.Scan(&c.ID, &kind, &c.Description, &c.Original, &c.AccrualEligible, &c.PassThrough,
			&interest, &penalty, &correction); err != nil {
			rows.Close()
			return nil, nil, err
		}
		c.Kind = ComponentKind(kind)
		if interest.Valid || penalty.Valid || correction.Valid {
			c.ManualAccrual = &accrual.Breakdown{
				Interest:   interest.Decimal,
				Penalty:    penalty.Decimal,
				Correction: correction.Decimal,
			}
		}
		components = append(components, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	rows, err = t.tx.Query(ctx, `SELECT kind, description, amount
FROM retained_items
WHERE contract_id = $1 AND year = $2 AND month = $3 AND active = true
ORDER BY id`, contractID, period.Year, period.Month)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	var retained []RetainedItem
	for rows.Next() {
		var (
			item RetainedItem
			kind string
		)
		if err := rows.Scan(&kind, &item.Description, &item.Amount); err != nil {
			return nil, nil, err
		}
		item.Kind = RetainedKind(kind)
		retained = append(retained, item)
	}
	return components, retained, rows.Err()
}

// Apply implements TxRepository.
func (t *txRepo) Apply(ctx context.Context, settlementID int64, writes []Write) (int64, error) {
	for _, w := range writes {
		var err error
		switch w.Op {
		case OpUpsertSettlement:
			settlementID, err = t.upsertSettlement(ctx, *w.Settlement)
		case OpReplaceComponents:
			err = t.replaceComponents(ctx, settlementID, w.Components)
		case OpReplaceRetained:
			err = t.replaceRetained(ctx, settlementID, w.Retained)
		case OpReplaceDistributions:
			err = t.replaceDistributions(ctx, settlementID, w)
		case OpAppendHistory:
			err = t.appendHistory(ctx, w)
		case OpMarkStatus:
			err = t.markStatus(ctx, settlementID, w.Status, w.At)
		default:
			err = fmt.Errorf("settlement: unknown write %q", w.Op)
		}
		if err != nil {
			return 0, fmt.Errorf("settlement: %s: %w", w.Op, err)
		}
		if settlementID == 0 && w.Op != OpAppendHistory {
			return 0, fmt.Errorf("settlement: %s before settlement row exists", w.Op)
		}
	}
	return settlementID, nil
}

func (t *txRepo) upsertSettlement(ctx context.Context, s Settlement) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO settlements (contract_id, month, year, gross_charged, total_retained, net,
	due_date, days_overdue, index_percent, negative_net, status, active, computed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (contract_id, year, month) DO UPDATE SET
	gross_charged = EXCLUDED.gross_charged,
	total_retained = EXCLUDED.total_retained,
	net = EXCLUDED.net,
	due_date = EXCLUDED.due_date,
	days_overdue = EXCLUDED.days_overdue,
	index_percent = EXCLUDED.index_percent,
	negative_net = EXCLUDED.negative_net,
	status = EXCLUDED.status,
	active = EXCLUDED.active,
	computed_at = EXCLUDED.computed_at
RETURNING id`,
		s.ContractID, s.Period.Month, s.Period.Year, s.GrossCharged, s.TotalRetained, s.Net,
		pgtype.Date{Time: s.DueDate, Valid: !s.DueDate.IsZero()}, s.DaysOverdue, s.IndexPercent, s.NegativeNet,
		string(s.Status), s.Active, s.ComputedAt).Scan(&id)
	return id, err
}

func (t *txRepo) replaceComponents(ctx context.Context, settlementID int64, components []ChargeComponent) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM settlement_components WHERE settlement_id = $1`, settlementID); err != nil {
		return err
	}
	for i, c := range components {
		var componentID pgtype.Int8
		if c.ID != 0 {
			componentID = pgtype.Int8{Int64: c.ID, Valid: true}
		}
		_, err := t.tx.Exec(ctx, `INSERT INTO settlement_components (settlement_id, position, component_id, kind, description,
	original_amount, interest, penalty, correction, accrual_total, final_amount, accrual_eligible, pass_through, manual)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
			settlementID, i, componentID, string(c.Kind), c.Description,
			c.Original, c.Accrual.Interest, c.Accrual.Penalty, c.Accrual.Correction, c.Accrual.Total, c.Final,
			c.AccrualEligible, c.PassThrough, c.ManualAccrual != nil)
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *txRepo) replaceRetained(ctx context.Context, settlementID int64, items []RetainedItem) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM settlement_retained WHERE settlement_id = $1`, settlementID); err != nil {
		return err
	}
	for i, item := range items {
		var componentID pgtype.Int8
		if item.ComponentID != 0 {
			componentID = pgtype.Int8{Int64: item.ComponentID, Valid: true}
		}
		_, err := t.tx.Exec(ctx, `INSERT INTO settlement_retained (settlement_id, position, kind, description, amount, component_id)
VALUES ($1, $2, $3, $4, $5, $6)`, settlementID, i, string(item.Kind), item.Description, item.Amount, componentID)
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *txRepo) replaceDistributions(ctx context.Context, settlementID int64, w Write) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM settlement_distributions WHERE settlement_id = $1`, settlementID); err != nil {
		return err
	}
	for i, row := range w.Distributions {
		_, err := t.tx.Exec(ctx, `INSERT INTO settlement_distributions (settlement_id, position, landlord_id, name, share_percent,
	is_primary, payout_channel, gross_share, transfer_fee, payout, absorbs_remainder)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			settlementID, i, row.LandlordID, row.Name, row.SharePercent, row.IsPrimary, row.PayoutChannel,
			row.GrossShare, row.TransferFee, row.Payout, row.AbsorbsRemainder)
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *txRepo) appendHistory(ctx context.Context, w Write) error {
	if w.Note == nil {
		return errors.New("history note missing")
	}
	payload, err := json.Marshal(w.Note)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, `INSERT INTO settlement_history (contract_id, month, year, action, note, actor_id, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		w.ContractID, w.Period.Month, w.Period.Year, w.Note.Action, payload, w.Note.ActorID, w.Note.At)
	return err
}

func (t *txRepo) markStatus(ctx context.Context, settlementID int64, status Status, at time.Time) error {
	var (
		tag pgconn.CommandTag
		err error
	)
	switch status {
	case StatusPaid:
		tag, err = t.tx.Exec(ctx, `UPDATE settlements SET status = $2, paid_at = $3 WHERE id = $1`, settlementID, string(status), at)
	case StatusCancelled:
		tag, err = t.tx.Exec(ctx, `UPDATE settlements SET status = $2, cancelled_at = $3, active = false WHERE id = $1`, settlementID, string(status), at)
	default:
		tag, err = t.tx.Exec(ctx, `UPDATE settlements SET status = $2 WHERE id = $1`, settlementID, string(status))
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("settlement %d: %w", settlementID, shared.ErrNotFound)
	}
	return nil
}

func loadLines(ctx context.Context, q querier, s *Settlement) error {
	rows, err := q.Query(ctx, `SELECT COALESCE(component_id, 0), kind, description, original_amount, interest, penalty,
	correction, accrual_total, final_amount, accrual_eligible, pass_through, manual
FROM settlement_components
WHERE settlement_id = $1
ORDER BY position`, s.ID)
	if err != nil {
		return err
	}
	for rows.Next() {
		var (
			c      ChargeComponent
			kind   string
			manual bool
		)
		if err := rows.Scan(&c.ID, &kind, &c.Description, &c.Original, &c.Accrual.Interest, &c.Accrual.Penalty,
			&c.Accrual.Correction, &c.Accrual.Total, &c.Final, &c.AccrualEligible, &c.PassThrough, &manual); err != nil {
			rows.Close()
			return err
		}
		c.Kind = ComponentKind(kind)
		if manual {
			b := c.Accrual
			c.ManualAccrual = &b
		}
		s.Components = append(s.Components, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = q.Query(ctx, `SELECT kind, description, amount, COALESCE(component_id, 0)
FROM settlement_retained
WHERE settlement_id = $1
ORDER BY position`, s.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			item RetainedItem
			kind string
		)
		if err := rows.Scan(&kind, &item.Description, &item.Amount, &item.ComponentID); err != nil {
			return err
		}
		item.Kind = RetainedKind(kind)
		s.Retained = append(s.Retained, item)
	}
	return rows.Err()
}
