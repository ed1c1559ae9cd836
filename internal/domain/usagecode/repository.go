package usagecode

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Store is the persistence contract for usage codes. All mutating methods
// run inside the caller's transaction: issuance and verification both hold
// row locks across their check-then-act sequences.
type Store interface {
	LockLiveByPartnerTx(ctx context.Context, tx *sqlx.Tx, partnerID uuid.UUID) (*UsageCode, error)
	LockByPartnerCodeTx(ctx context.Context, tx *sqlx.Tx, partnerID uuid.UUID, code string) (*UsageCode, error)
	ExpireTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) error
	CodeLiveAnywhereTx(ctx context.Context, tx *sqlx.Tx, code string) (bool, error)
	InsertTx(ctx context.Context, tx *sqlx.Tx, c *UsageCode) error
	IncrementUsageTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) error
	GetLiveByPartner(ctx context.Context, partnerID uuid.UUID) (*UsageCode, error)
}

// Repository handles usage code database operations
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates a new usage code repository
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

const codeColumns = `id, code, partner_id, created_at, expires_at, usage_count, max_uses_per_window`

// LockLiveByPartnerTx locks the partner's live code row, if any.
// Returns nil without error when no live code exists.
func (r *Repository) LockLiveByPartnerTx(ctx context.Context, tx *sqlx.Tx, partnerID uuid.UUID) (*UsageCode, error) {
	var c UsageCode
	err := tx.GetContext(ctx, &c, `
		SELECT `+codeColumns+`
		FROM usage_codes
		WHERE partner_id = $1 AND expires_at > NOW()
		ORDER BY created_at DESC
		LIMIT 1
		FOR UPDATE
	`, partnerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lock live code: %w", err)
	}
	return &c, nil
}

// LockByPartnerCodeTx locks the partner's most recent code row matching
// the submitted digits, live or not. The caller decides expired-vs-invalid.
func (r *Repository) LockByPartnerCodeTx(ctx context.Context, tx *sqlx.Tx, partnerID uuid.UUID, code string) (*UsageCode, error) {
	var c UsageCode
	err := tx.GetContext(ctx, &c, `
		SELECT `+codeColumns+`
		FROM usage_codes
		WHERE partner_id = $1 AND code = $2
		ORDER BY created_at DESC
		LIMIT 1
		FOR UPDATE
	`, partnerID, code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lock code: %w", err)
	}
	return &c, nil
}

// ExpireTx force-expires a code row
func (r *Repository) ExpireTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE usage_codes SET expires_at = NOW() WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("expire code: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNoLiveCode
	}
	return nil
}

// CodeLiveAnywhereTx reports whether the digits collide with any code that
// is still live for any partner. Uniqueness only holds among live codes.
func (r *Repository) CodeLiveAnywhereTx(ctx context.Context, tx *sqlx.Tx, code string) (bool, error) {
	var n int
	err := tx.GetContext(ctx, &n, `
		SELECT COUNT(*)
		FROM usage_codes
		WHERE code = $1 AND expires_at > NOW()
	`, code)
	if err != nil {
		return false, fmt.Errorf("check code collision: %w", err)
	}
	return n > 0, nil
}

// InsertTx inserts a new code row
func (r *Repository) InsertTx(ctx context.Context, tx *sqlx.Tx, c *UsageCode) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO usage_codes (
			id, code, partner_id, created_at, expires_at, usage_count, max_uses_per_window
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7
		)
	`, c.ID, c.Code, c.PartnerID, c.CreatedAt, c.ExpiresAt, c.UsageCount, c.MaxUsesPerWindow)
	if err != nil {
		return fmt.Errorf("insert code: %w", err)
	}
	return nil
}

// IncrementUsageTx bumps the advisory usage counter on the code row
func (r *Repository) IncrementUsageTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE usage_codes SET usage_count = usage_count + 1 WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("increment usage: %w", err)
	}
	return nil
}

// GetLiveByPartner returns the partner's live code without locking
func (r *Repository) GetLiveByPartner(ctx context.Context, partnerID uuid.UUID) (*UsageCode, error) {
	var c UsageCode
	err := r.db.GetContext(ctx, &c, `
		SELECT `+codeColumns+`
		FROM usage_codes
		WHERE partner_id = $1 AND expires_at > NOW()
		ORDER BY created_at DESC
		LIMIT 1
	`, partnerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoLiveCode
	}
	if err != nil {
		return nil, fmt.Errorf("get live code: %w", err)
	}
	return &c, nil
}
