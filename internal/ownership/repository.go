package ownership

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aluga-erp/aluga/internal/shared"
)

// Querier is satisfied by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository reads ownership data from PostgreSQL. It serves both the
// association store and the legacy references.
type Repository struct {
	db Querier
}

// NewRepository constructs a repository backed by the pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

// WithQuerier returns a copy bound to q, typically a transaction.
func (r *Repository) WithQuerier(q Querier) *Repository {
	return &Repository{db: q}
}

const landlordSharesQuery = `SELECT cl.id, cl.contract_id, cl.landlord_id, l.name, cl.share_percent,
	cl.is_primary, cl.active, COALESCE(NULLIF(cl.payout_channel, ''), l.payout_channel, '')
FROM contract_landlords cl
JOIN landlords l ON l.id = cl.landlord_id
WHERE cl.contract_id = $1 AND cl.active = true
ORDER BY cl.id`

const tenantSharesQuery = `SELECT ct.id, ct.contract_id, ct.tenant_id, t.name, ct.share_percent,
	ct.is_primary, ct.active, ''
FROM contract_tenants ct
JOIN tenants t ON t.id = ct.tenant_id
WHERE ct.contract_id = $1 AND ct.active = true
ORDER BY ct.id`

// ActiveShares implements AssociationSource.
func (r *Repository) ActiveShares(ctx context.Context, contractID int64, role Role) ([]Share, error) {
	query := landlordSharesQuery
	if role == RoleTenant {
		query = tenantSharesQuery
	}
	rows, err := r.db.Query(ctx, query, contractID)
	if err != nil {
		return nil, fmt.Errorf("ownership: list %s shares: %w", role, err)
	}
	defer rows.Close()

	var shares []Share
	for rows.Next() {
		var s Share
		if err := rows.Scan(&s.RowID, &s.ContractID, &s.PartyID, &s.Name, &s.Percent, &s.IsPrimary, &s.Active, &s.PayoutChannel); err != nil {
			return nil, err
		}
		shares = append(shares, s)
	}
	return shares, rows.Err()
}

// LegacyParties implements LegacySource.
func (r *Repository) LegacyParties(ctx context.Context, contractID int64) (LegacyParties, error) {
	var (
		landlordID, tenantID     pgtype.Int8
		landlordName, tenantName pgtype.Text
		landlordChannel          pgtype.Text
	)
	err := r.db.QueryRow(ctx, `SELECT p.landlord_id, l.name, l.payout_channel, c.tenant_id, t.name
FROM contracts c
LEFT JOIN properties p ON p.id = c.property_id
LEFT JOIN landlords l ON l.id = p.landlord_id
LEFT JOIN tenants t ON t.id = c.tenant_id
WHERE c.id = $1`, contractID).Scan(&landlordID, &landlordName, &landlordChannel, &tenantID, &tenantName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LegacyParties{}, fmt.Errorf("ownership: contract %d: %w", contractID, shared.ErrNotFound)
		}
		return LegacyParties{}, err
	}
	out := LegacyParties{ContractID: contractID}
	if landlordID.Valid {
		out.Landlord = &LegacyParty{PartyID: landlordID.Int64, Name: landlordName.String, PayoutChannel: landlordChannel.String}
	}
	if tenantID.Valid {
		out.Tenant = &LegacyParty{PartyID: tenantID.Int64, Name: tenantName.String}
	}
	return out, nil
}

// ListActiveContractIDs returns contracts not yet ended, used by integrity scans.
func (r *Repository) ListActiveContractIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM contracts
WHERE active = true AND (end_date IS NULL OR end_date >= CURRENT_DATE)
ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
