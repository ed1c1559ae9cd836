package redemption

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Store is the persistence contract for redemptions. The existence check
// and the insert that depends on it share a transaction, so concurrent
// activations for the same pair serialize on the locked row.
type Store interface {
	ExistsRedeemedTx(ctx context.Context, tx *sqlx.Tx, memberID, offerID uuid.UUID) (bool, error)
	LockPendingTx(ctx context.Context, tx *sqlx.Tx, memberID, offerID uuid.UUID) (*Redemption, error)
	LockByCodeTx(ctx context.Context, tx *sqlx.Tx, code string) (*Redemption, error)
	CodeExistsTx(ctx context.Context, tx *sqlx.Tx, code string) (bool, error)
	InsertTx(ctx context.Context, tx *sqlx.Tx, r *Redemption) error
	MarkExpiredTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) error
	MarkRedeemedTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, at time.Time) error
	MarkExpired(ctx context.Context, id uuid.UUID) error
	UpdateQRToken(ctx context.Context, id uuid.UUID, token string) error
	GetByID(ctx context.Context, id uuid.UUID) (*Redemption, error)
	ListByMember(ctx context.Context, memberID uuid.UUID) ([]Redemption, error)
	SweepExpired(ctx context.Context, cutoff time.Time) (int, error)
}

// Repository handles redemption database operations
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates a new redemption repository
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

const redemptionColumns = `id, member_id, offer_id, partner_id, redemption_code, qr_token, status, created_at, redeemed_at`

// ExistsRedeemedTx reports whether the member already redeemed the offer
func (r *Repository) ExistsRedeemedTx(ctx context.Context, tx *sqlx.Tx, memberID, offerID uuid.UUID) (bool, error) {
	var n int
	err := tx.GetContext(ctx, &n, `
		SELECT COUNT(*)
		FROM redemptions
		WHERE member_id = $1 AND offer_id = $2 AND status = $3
	`, memberID, offerID, StatusRedeemed)
	if err != nil {
		return false, fmt.Errorf("check redeemed: %w", err)
	}
	return n > 0, nil
}

// LockPendingTx locks the member's pending redemption for the offer, if
// any. Returns nil without error when none exists.
func (r *Repository) LockPendingTx(ctx context.Context, tx *sqlx.Tx, memberID, offerID uuid.UUID) (*Redemption, error) {
	var red Redemption
	err := tx.GetContext(ctx, &red, `
		SELECT `+redemptionColumns+`
		FROM redemptions
		WHERE member_id = $1 AND offer_id = $2 AND status = $3
		ORDER BY created_at DESC
		LIMIT 1
		FOR UPDATE
	`, memberID, offerID, StatusPending)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lock pending redemption: %w", err)
	}
	return &red, nil
}

// LockByCodeTx locks the redemption matching the opaque code
func (r *Repository) LockByCodeTx(ctx context.Context, tx *sqlx.Tx, code string) (*Redemption, error) {
	var red Redemption
	err := tx.GetContext(ctx, &red, `
		SELECT `+redemptionColumns+`
		FROM redemptions
		WHERE redemption_code = $1
		ORDER BY created_at DESC
		LIMIT 1
		FOR UPDATE
	`, code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lock redemption by code: %w", err)
	}
	return &red, nil
}

// CodeExistsTx reports whether a non-expired row already uses the code
func (r *Repository) CodeExistsTx(ctx context.Context, tx *sqlx.Tx, code string) (bool, error) {
	var n int
	err := tx.GetContext(ctx, &n, `
		SELECT COUNT(*)
		FROM redemptions
		WHERE redemption_code = $1 AND status != $2
	`, code, StatusExpired)
	if err != nil {
		return false, fmt.Errorf("check code exists: %w", err)
	}
	return n > 0, nil
}

// InsertTx inserts a new redemption
func (r *Repository) InsertTx(ctx context.Context, tx *sqlx.Tx, red *Redemption) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO redemptions (
			id, member_id, offer_id, partner_id, redemption_code, qr_token, status, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)
	`, red.ID, red.MemberID, red.OfferID, red.PartnerID, red.RedemptionCode, red.QRToken, red.Status, red.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert redemption: %w", err)
	}
	return nil
}

// MarkExpiredTx transitions a pending redemption to expired
func (r *Repository) MarkExpiredTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) error {
	return markExpired(ctx, tx, id)
}

// MarkExpired transitions a pending redemption to expired outside a transaction.
// Used by lazy expiry on plain reads.
func (r *Repository) MarkExpired(ctx context.Context, id uuid.UUID) error {
	return markExpired(ctx, r.db, id)
}

// MarkRedeemedTx transitions a pending redemption to redeemed
func (r *Repository) MarkRedeemedTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, at time.Time) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE redemptions
		SET status = $2, redeemed_at = $3
		WHERE id = $1 AND status = $4
	`, id, StatusRedeemed, at, StatusPending)
	if err != nil {
		return fmt.Errorf("mark redeemed: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateQRToken replaces the rotatable QR token on a pending redemption
func (r *Repository) UpdateQRToken(ctx context.Context, id uuid.UUID, token string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE redemptions
		SET qr_token = $2
		WHERE id = $1 AND status = $3
	`, id, token, StatusPending)
	if err != nil {
		return fmt.Errorf("update qr token: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID returns a redemption by ID
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Redemption, error) {
	var red Redemption
	err := r.db.GetContext(ctx, &red, `
		SELECT `+redemptionColumns+`
		FROM redemptions
		WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get redemption: %w", err)
	}
	return &red, nil
}

// ListByMember returns all redemptions for a member, newest first
func (r *Repository) ListByMember(ctx context.Context, memberID uuid.UUID) ([]Redemption, error) {
	redemptions := make([]Redemption, 0)
	err := r.db.SelectContext(ctx, &redemptions, `
		SELECT `+redemptionColumns+`
		FROM redemptions
		WHERE member_id = $1
		ORDER BY created_at DESC
	`, memberID)
	if err != nil {
		return nil, fmt.Errorf("list redemptions: %w", err)
	}
	return redemptions, nil
}

// SweepExpired bulk-expires pending rows created before the cutoff.
// Exposed for an external scheduler; the request path relies on lazy expiry.
func (r *Repository) SweepExpired(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE redemptions
		SET status = $1
		WHERE status = $2 AND created_at < $3
	`, StatusExpired, StatusPending, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep expired: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sweep expired: %w", err)
	}
	return int(rows), nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func markExpired(ctx context.Context, q execer, id uuid.UUID) error {
	result, err := q.ExecContext(ctx, `
		UPDATE redemptions
		SET status = $2
		WHERE id = $1 AND status = $3
	`, id, StatusExpired, StatusPending)
	if err != nil {
		return fmt.Errorf("mark expired: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
