package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Store is the append/count contract over the activity ledger. Reads that
// feed a rate or eligibility decision must use the Tx variants so they run
// inside the same lock scope as the write that depends on them.
type Store interface {
	Append(ctx context.Context, e *Entry) (uuid.UUID, error)
	AppendTx(ctx context.Context, tx *sqlx.Tx, e *Entry) (uuid.UUID, error)
	Count(ctx context.Context, f Filter) (int, error)
	CountTx(ctx context.Context, tx *sqlx.Tx, f Filter) (int, error)
	ExistsTx(ctx context.Context, tx *sqlx.Tx, f Filter) (bool, error)
}

// Repository handles activity ledger database operations
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates a new ledger repository
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

const insertQuery = `
	INSERT INTO activity_log (
		id, member_id, partner_id, offer_id, code_used, action, result, reason, created_at
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, NOW()
	)
	RETURNING id
`

// Append inserts one entry outside any transaction
func (r *Repository) Append(ctx context.Context, e *Entry) (uuid.UUID, error) {
	return appendRow(ctx, r.db, e)
}

// AppendTx inserts one entry within the caller's transaction
func (r *Repository) AppendTx(ctx context.Context, tx *sqlx.Tx, e *Entry) (uuid.UUID, error) {
	return appendRow(ctx, tx, e)
}

// Count returns the number of entries matching the filter
func (r *Repository) Count(ctx context.Context, f Filter) (int, error) {
	query, args := buildCountQuery(f)
	var n int
	if err := r.db.GetContext(ctx, &n, query, args...); err != nil {
		return 0, fmt.Errorf("count ledger entries: %w", err)
	}
	return n, nil
}

// CountTx counts within the caller's transaction, sharing its lock scope
func (r *Repository) CountTx(ctx context.Context, tx *sqlx.Tx, f Filter) (int, error) {
	query, args := buildCountQuery(f)
	var n int
	if err := tx.GetContext(ctx, &n, query, args...); err != nil {
		return 0, fmt.Errorf("count ledger entries: %w", err)
	}
	return n, nil
}

// ExistsTx reports whether at least one matching entry exists
func (r *Repository) ExistsTx(ctx context.Context, tx *sqlx.Tx, f Filter) (bool, error) {
	n, err := r.CountTx(ctx, tx, f)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

type execer interface {
	QueryRowxContext(ctx context.Context, query string, args ...interface{}) *sqlx.Row
}

func appendRow(ctx context.Context, q execer, e *Entry) (uuid.UUID, error) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}

	var id uuid.UUID
	err := q.QueryRowxContext(ctx, insertQuery,
		e.ID,
		e.MemberID,
		e.PartnerID,
		e.OfferID,
		e.CodeUsed,
		e.Action,
		e.Result,
		e.Reason,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("append ledger entry: %w", err)
	}

	return id, nil
}

func buildCountQuery(f Filter) (string, []interface{}) {
	selector := "COUNT(*)"
	if f.DistinctPartners {
		selector = "COUNT(DISTINCT partner_id)"
	}
	query := `SELECT ` + selector + ` FROM activity_log WHERE 1=1`
	args := make([]interface{}, 0, 8)
	idx := 1

	if f.MemberID != nil {
		query += fmt.Sprintf(" AND member_id = $%d", idx)
		args = append(args, *f.MemberID)
		idx++
	}
	if f.PartnerID != nil {
		query += fmt.Sprintf(" AND partner_id = $%d", idx)
		args = append(args, *f.PartnerID)
		idx++
	}
	if f.OfferID != nil {
		query += fmt.Sprintf(" AND offer_id = $%d", idx)
		args = append(args, *f.OfferID)
		idx++
	}
	if f.CodeUsed != nil {
		query += fmt.Sprintf(" AND code_used = $%d", idx)
		args = append(args, *f.CodeUsed)
		idx++
	}
	if f.Action != nil {
		query += fmt.Sprintf(" AND action = $%d", idx)
		args = append(args, string(*f.Action))
		idx++
	}
	if len(f.Results) > 0 {
		results := make([]string, len(f.Results))
		for i, res := range f.Results {
			results[i] = string(res)
		}
		query += fmt.Sprintf(" AND result = ANY($%d)", idx)
		args = append(args, pq.Array(results))
		idx++
	}
	if f.From != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", idx)
		args = append(args, *f.From)
		idx++
	}
	if f.To != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", idx)
		args = append(args, *f.To)
		idx++
	}

	return query, args
}
