package usagecode

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/perkhub/perkhub-api/internal/domain/directory"
	"github.com/perkhub/perkhub-api/internal/domain/settings"
	"github.com/perkhub/perkhub-api/internal/pkg/events"
)

// PartnerLocker is the slice of the directory store issuance depends on.
type PartnerLocker interface {
	LockPartnerTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*directory.Partner, error)
}

// Service issues and rotates partner usage codes
type Service struct {
	db            *sqlx.DB
	repo          Store
	partners      PartnerLocker
	settings      settings.Provider
	events        *events.Publisher
	attemptBudget int
	gen           func() string
}

// NewService creates a usage code service
func NewService(db *sqlx.DB, repo Store, partners PartnerLocker, provider settings.Provider, publisher *events.Publisher, attemptBudget int) *Service {
	if attemptBudget <= 0 {
		attemptBudget = 30
	}
	return &Service{
		db:            db,
		repo:          repo,
		partners:      partners,
		settings:      provider,
		events:        publisher,
		attemptBudget: attemptBudget,
		gen:           generateNumericCode,
	}
}

// Issue rotates the partner's code inside a new transaction: the current
// live code is force-expired and a fresh one created under the same lock,
// so no instant exists with two live codes for one partner.
func (s *Service) Issue(ctx context.Context, partnerID uuid.UUID) (*UsageCode, error) {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: begin tx", ErrInternal)
	}
	defer tx.Rollback()

	code, err := s.IssueTx(ctx, tx, partnerID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit tx", ErrInternal)
	}

	s.events.Publish(ctx, events.EventUsageCodeIssued, code)

	return code, nil
}

// IssueTx runs the rotation inside the caller's transaction. The partner
// row is locked before anything else: when the partner has no live code
// there is no code row to lock, and two concurrent issuances would
// otherwise both see "nothing live" and both insert.
func (s *Service) IssueTx(ctx context.Context, tx *sqlx.Tx, partnerID uuid.UUID) (*UsageCode, error) {
	if _, err := s.partners.LockPartnerTx(ctx, tx, partnerID); err != nil {
		return nil, err
	}

	cfg, err := s.settings.UsageCode(ctx)
	if err != nil {
		return nil, err
	}

	live, err := s.repo.LockLiveByPartnerTx(ctx, tx, partnerID)
	if err != nil {
		return nil, err
	}
	if live != nil {
		if err := s.repo.ExpireTx(ctx, tx, live.ID); err != nil {
			return nil, err
		}
	}

	now := time.Now()
	for attempt := 0; attempt < s.attemptBudget; attempt++ {
		candidate := s.gen()

		// The code just expired above is no longer live, so the
		// collision query will not see it. Skip its digits anyway: a
		// rotation that hands back the same number defeats the point.
		if live != nil && candidate == live.Code {
			continue
		}

		taken, err := s.repo.CodeLiveAnywhereTx(ctx, tx, candidate)
		if err != nil {
			return nil, err
		}
		if taken {
			continue
		}

		code := &UsageCode{
			ID:               uuid.New(),
			Code:             candidate,
			PartnerID:        partnerID,
			CreatedAt:        now,
			ExpiresAt:        now.Add(time.Duration(cfg.TTLSeconds) * time.Second),
			MaxUsesPerWindow: cfg.MaxUsesPerWindow,
		}
		if err := s.repo.InsertTx(ctx, tx, code); err != nil {
			return nil, err
		}
		return code, nil
	}

	return nil, ErrExhaustedCodeSpace
}

// Current returns the partner's live code for the terminal display
func (s *Service) Current(ctx context.Context, partnerID uuid.UUID) (*UsageCode, error) {
	return s.repo.GetLiveByPartner(ctx, partnerID)
}
