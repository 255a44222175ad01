package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgRepository reads settlement_history with pgx.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a history repository.
func NewRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const historyQuery = `SELECT id, contract_id, month, year, action, COALESCE(actor_id, 0), occurred_at, note
FROM settlement_history
WHERE contract_id = $1
  AND ($2::text IS NULL OR action = $2)
  AND ($3::timestamptz IS NULL OR occurred_at >= $3)
  AND ($4::timestamptz IS NULL OR occurred_at < $4)
ORDER BY occurred_at DESC, id DESC
LIMIT $5 OFFSET $6`

// History implements Repository.
func (r *PgRepository) History(ctx context.Context, q Query) ([]Entry, error) {
	var limit pgtype.Int4
	if q.Limit > 0 {
		limit = pgtype.Int4{Int32: int32(q.Limit), Valid: true}
	}
	rows, err := r.pool.Query(ctx, historyQuery,
		q.ContractID, optionalText(q.Action), toPgTime(q.From), toPgTime(q.To), limit, q.Offset)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanEntry)
}

func scanEntry(row pgx.CollectableRow) (Entry, error) {
	var (
		e    Entry
		note []byte
	)
	if err := row.Scan(&e.ID, &e.ContractID, &e.Period.Month, &e.Period.Year, &e.Action, &e.ActorID, &e.At, &note); err != nil {
		return Entry{}, err
	}
	if len(note) > 0 {
		if err := json.Unmarshal(note, &e.Note); err != nil {
			return Entry{}, fmt.Errorf("audit: decode note %d: %w", e.ID, err)
		}
	}
	return e, nil
}

func toPgTime(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}

func optionalText(value string) pgtype.Text {
	if value == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: value, Valid: true}
}
