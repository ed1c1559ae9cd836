package directory

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Store is the read-side contract over the offer/partner directory.
// Offer and partner CRUD belongs to the admin surface; this core only reads.
type Store interface {
	LockOfferTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*Offer, error)
	LockPartnerTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*Partner, error)
}

// Repository handles directory database reads
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates a new directory repository
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

const offerColumns = `id, partner_id, title, is_enabled, classifications, created_at`

// LockOfferTx loads the offer under a FOR UPDATE row lock, pinning its
// partner and classification set for the duration of the transaction.
func (r *Repository) LockOfferTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*Offer, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT `+offerColumns+`
		FROM offers
		WHERE id = $1
		FOR UPDATE
	`, id)
	return scanOffer(row)
}

// LockPartnerTx takes a FOR UPDATE lock on the partner row. Issuance and
// rotation serialize on this lock; with no partner row there is nothing
// per-partner work can safely serialize on.
func (r *Repository) LockPartnerTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*Partner, error) {
	var p Partner
	err := tx.GetContext(ctx, &p, `
		SELECT id, name, is_active, created_at
		FROM partners
		WHERE id = $1
		FOR UPDATE
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPartnerNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func scanOffer(row *sql.Row) (*Offer, error) {
	var o Offer
	var classifications pq.StringArray

	err := row.Scan(&o.ID, &o.PartnerID, &o.Title, &o.IsEnabled, &classifications, &o.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOfferNotFound
	}
	if err != nil {
		return nil, err
	}

	o.Classifications = classifications
	return &o, nil
}
