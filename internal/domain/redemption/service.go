package redemption

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/perkhub/perkhub-api/internal/domain/directory"
	"github.com/perkhub/perkhub-api/internal/pkg/events"
)

// OfferDirectory is the slice of the directory the lifecycle needs
type OfferDirectory interface {
	LockOfferTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*directory.Offer, error)
}

// Service manages the redemption lifecycle
type Service struct {
	db            *sqlx.DB
	repo          Store
	offers        OfferDirectory
	events        *events.Publisher
	window        time.Duration
	attemptBudget int
}

// NewService creates a redemption service. window is the validity window
// from creation; expiry is evaluated lazily against it.
func NewService(db *sqlx.DB, repo Store, offers OfferDirectory, publisher *events.Publisher, window time.Duration, attemptBudget int) *Service {
	if attemptBudget <= 0 {
		attemptBudget = 30
	}
	return &Service{
		db:            db,
		repo:          repo,
		offers:        offers,
		events:        publisher,
		window:        window,
		attemptBudget: attemptBudget,
	}
}

// Activate creates a redemption for the (member, offer) pair inside a new
// transaction, so the duplicate check and the insert are atomic.
func (s *Service) Activate(ctx context.Context, memberID, offerID uuid.UUID) (*Redemption, error) {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: begin tx", ErrInternal)
	}
	defer tx.Rollback()

	red, err := s.ActivateTx(ctx, tx, memberID, offerID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit tx", ErrInternal)
	}

	s.events.Publish(ctx, events.EventRedemptionActivated, red)

	return red, nil
}

// ActivateTx runs activation inside the caller's transaction. The offer
// row is locked before any check: with no redemption row yet for the
// (member, offer) pair there is nothing else for concurrent activations
// to serialize on, and two of them would otherwise both see "no active
// redemption" and both insert.
func (s *Service) ActivateTx(ctx context.Context, tx *sqlx.Tx, memberID uuid.UUID, offerID uuid.UUID) (*Redemption, error) {
	off, err := s.offers.LockOfferTx(ctx, tx, offerID)
	if err != nil {
		return nil, err
	}

	redeemed, err := s.repo.ExistsRedeemedTx(ctx, tx, memberID, off.ID)
	if err != nil {
		return nil, err
	}
	if redeemed {
		return nil, ErrAlreadyRedeemed
	}

	now := time.Now()

	pending, err := s.repo.LockPendingTx(ctx, tx, memberID, off.ID)
	if err != nil {
		return nil, err
	}
	if pending != nil {
		if !pending.WindowElapsed(s.window, now) {
			return nil, ErrActiveRedemptionExists
		}
		// Stale claim: lazily expire it and fall through to a fresh one
		if err := s.repo.MarkExpiredTx(ctx, tx, pending.ID); err != nil {
			return nil, err
		}
	}

	code, err := s.uniqueCodeTx(ctx, tx)
	if err != nil {
		return nil, err
	}

	qrToken, err := generateSecureToken(qrTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: generate qr token", ErrInternal)
	}

	red := &Redemption{
		ID:             uuid.New(),
		MemberID:       memberID,
		OfferID:        off.ID,
		PartnerID:      off.PartnerID,
		RedemptionCode: code,
		QRToken:        qrToken,
		Status:         StatusPending,
		CreatedAt:      now,
	}
	if err := s.repo.InsertTx(ctx, tx, red); err != nil {
		return nil, err
	}

	return red, nil
}

// Confirm marks a redemption redeemed on behalf of the partner terminal.
// Confirming an already-redeemed code again returns the existing record.
func (s *Service) Confirm(ctx context.Context, code string, partnerID uuid.UUID, qrToken string) (*Redemption, error) {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: begin tx", ErrInternal)
	}
	defer tx.Rollback()

	red, err := s.ConfirmTx(ctx, tx, code, partnerID, qrToken)
	if errors.Is(err, ErrExpired) {
		// The lazy expiry transition must stick even though the call fails
		if commitErr := tx.Commit(); commitErr != nil {
			return nil, fmt.Errorf("%w: commit tx", ErrInternal)
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit tx", ErrInternal)
	}

	s.events.Publish(ctx, events.EventRedemptionConfirmed, red)

	return red, nil
}

// ConfirmTx runs confirmation inside the caller's transaction
func (s *Service) ConfirmTx(ctx context.Context, tx *sqlx.Tx, code string, partnerID uuid.UUID, qrToken string) (*Redemption, error) {
	red, err := s.repo.LockByCodeTx(ctx, tx, code)
	if err != nil {
		return nil, err
	}
	if red == nil {
		return nil, ErrNotFound
	}

	if red.PartnerID != partnerID {
		return nil, ErrWrongPartner
	}

	if qrToken != "" && qrToken != red.QRToken {
		return nil, ErrTokenMismatch
	}

	if red.Status == StatusRedeemed {
		return red, nil
	}
	if red.Status == StatusExpired {
		return nil, ErrExpired
	}

	now := time.Now()
	if red.WindowElapsed(s.window, now) {
		if err := s.repo.MarkExpiredTx(ctx, tx, red.ID); err != nil {
			return nil, err
		}
		return nil, ErrExpired
	}

	if err := s.repo.MarkRedeemedTx(ctx, tx, red.ID, now); err != nil {
		return nil, err
	}

	red.Status = StatusRedeemed
	red.RedeemedAt = sql.NullTime{Time: now, Valid: true}
	return red, nil
}

// ListForMember returns the member's redemptions with lazy expiry applied
func (s *Service) ListForMember(ctx context.Context, memberID uuid.UUID) ([]Redemption, error) {
	redemptions, err := s.repo.ListByMember(ctx, memberID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	for i := range redemptions {
		red := &redemptions[i]
		if red.Status == StatusPending && red.WindowElapsed(s.window, now) {
			if err := s.repo.MarkExpired(ctx, red.ID); err != nil && !errors.Is(err, ErrNotFound) {
				log.Warn().Err(err).Str("redemption_id", red.ID.String()).Msg("Lazy expiry failed")
				continue
			}
			red.Status = StatusExpired
		}
	}

	return redemptions, nil
}

// RotateToken issues a fresh QR token for a member's pending redemption
func (s *Service) RotateToken(ctx context.Context, id, memberID uuid.UUID) (*Redemption, error) {
	red, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if red.MemberID != memberID {
		return nil, ErrNotFound
	}

	if red.Status == StatusPending && red.WindowElapsed(s.window, time.Now()) {
		if err := s.repo.MarkExpired(ctx, red.ID); err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, ErrExpired
	}
	if red.Status != StatusPending {
		return nil, ErrNotPending
	}

	token, err := generateSecureToken(qrTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: generate qr token", ErrInternal)
	}
	if err := s.repo.UpdateQRToken(ctx, red.ID, token); err != nil {
		return nil, err
	}

	red.QRToken = token
	return red, nil
}

// SweepExpired bulk-expires stale pending redemptions. Wired for an
// external cron-like caller; the core itself never schedules it.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	return s.repo.SweepExpired(ctx, time.Now().Add(-s.window))
}

func (s *Service) uniqueCodeTx(ctx context.Context, tx *sqlx.Tx) (string, error) {
	for attempt := 0; attempt < s.attemptBudget; attempt++ {
		code, err := generateSecureToken(redemptionCodeBytes)
		if err != nil {
			return "", fmt.Errorf("%w: generate code", ErrInternal)
		}

		taken, err := s.repo.CodeExistsTx(ctx, tx, code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}
	return "", ErrExhaustedCodeSpace
}
