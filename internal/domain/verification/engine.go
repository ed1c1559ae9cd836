package verification

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/perkhub/perkhub-api/internal/domain/directory"
	"github.com/perkhub/perkhub-api/internal/domain/eligibility"
	"github.com/perkhub/perkhub-api/internal/domain/ledger"
	"github.com/perkhub/perkhub-api/internal/domain/usagecode"
	"github.com/perkhub/perkhub-api/internal/pkg/events"
)

// OfferLocker pins the offer row for the duration of a verification
type OfferLocker interface {
	LockOfferTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*directory.Offer, error)
}

// CodeStore is the slice of the usage code contract the engine needs
type CodeStore interface {
	LockByPartnerCodeTx(ctx context.Context, tx *sqlx.Tx, partnerID uuid.UUID, code string) (*usagecode.UsageCode, error)
	IncrementUsageTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) error
}

// LedgerStore records attempts and feeds the rate checks
type LedgerStore interface {
	AppendTx(ctx context.Context, tx *sqlx.Tx, e *ledger.Entry) (uuid.UUID, error)
	CountTx(ctx context.Context, tx *sqlx.Tx, f ledger.Filter) (int, error)
}

// EligibilityChecker decides whether the attempt may proceed
type EligibilityChecker interface {
	Evaluate(ctx context.Context, tx *sqlx.Tx, memberID *uuid.UUID, off *directory.Offer) (eligibility.Decision, error)
}

// Engine orchestrates a verification attempt:
// format check, code lookup under row locks, expiry, eligibility, rate
// caps, then a single committed ledger row. Every branch, success or
// failure, appends exactly one entry.
type Engine struct {
	db          *sqlx.DB
	offers      OfferLocker
	codes       CodeStore
	ledger      LedgerStore
	eligibility EligibilityChecker
	events      *events.Publisher
}

// NewEngine creates a verification engine
func NewEngine(db *sqlx.DB, offers OfferLocker, codes CodeStore, ledgerStore LedgerStore, checker EligibilityChecker, publisher *events.Publisher) *Engine {
	return &Engine{
		db:          db,
		offers:      offers,
		codes:       codes,
		ledger:      ledgerStore,
		eligibility: checker,
		events:      publisher,
	}
}

// Verify runs the attempt in a new top-level transaction. Callers that
// already hold a transaction use VerifyTx directly and own the commit.
func (e *Engine) Verify(ctx context.Context, memberID *uuid.UUID, offerID uuid.UUID, code string) (*Verdict, error) {
	tx, err := e.db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: begin tx", ErrInternal)
	}
	defer tx.Rollback()

	verdict, err := e.VerifyTx(ctx, tx, memberID, offerID, code)
	if err != nil {
		return nil, err
	}

	// Rejections commit too: the ledger row recording them is the point
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit tx", ErrInternal)
	}

	e.events.Publish(ctx, events.EventVerificationRecorded, verdict)

	return verdict, nil
}

// VerifyTx runs the verification pipeline inside the caller's transaction.
// The offer row is locked first, then the code row, so concurrent attempts
// against the same code serialize and the cap check stays race-free.
func (e *Engine) VerifyTx(ctx context.Context, tx *sqlx.Tx, memberID *uuid.UUID, offerID uuid.UUID, code string) (*Verdict, error) {
	// 1. Format check
	if !usagecode.ValidFormat(code) {
		if err := e.record(ctx, tx, memberID, nil, &offerID, code, ledger.ResultInvalid, ""); err != nil {
			return nil, err
		}
		return &Verdict{Result: ledger.ResultInvalid, Message: "Code must be 4 or 5 digits"}, nil
	}

	// 2. Code lookup: resolve offer, derive partner, lock the code row
	off, err := e.offers.LockOfferTx(ctx, tx, offerID)
	if err != nil && err != directory.ErrOfferNotFound {
		return nil, err
	}

	var partnerID *uuid.UUID
	if off != nil && off.PartnerID != uuid.Nil {
		partnerID = &off.PartnerID
	}

	if partnerID == nil {
		if err := e.record(ctx, tx, memberID, nil, &offerID, code, ledger.ResultInvalid, ""); err != nil {
			return nil, err
		}
		return &Verdict{Result: ledger.ResultInvalid, Message: "Unknown offer"}, nil
	}

	uc, err := e.codes.LockByPartnerCodeTx(ctx, tx, *partnerID, code)
	if err != nil {
		return nil, err
	}
	if uc == nil {
		if err := e.record(ctx, tx, memberID, partnerID, &offerID, code, ledger.ResultInvalid, ""); err != nil {
			return nil, err
		}
		return &Verdict{Result: ledger.ResultInvalid, Message: "Invalid code"}, nil
	}

	// 3. Expiry check
	now := time.Now()
	if !uc.IsLive(now) {
		if err := e.record(ctx, tx, memberID, partnerID, &offerID, code, ledger.ResultExpired, ""); err != nil {
			return nil, err
		}
		return &Verdict{Result: ledger.ResultExpired, Message: "Code has expired", ExpiresAt: &uc.ExpiresAt}, nil
	}

	// 4. Eligibility check
	decision, err := e.eligibility.Evaluate(ctx, tx, memberID, off)
	if err != nil {
		return nil, err
	}
	if !decision.Eligible {
		if err := e.record(ctx, tx, memberID, partnerID, &offerID, code, ledger.ResultNotEligible, decision.Reason); err != nil {
			return nil, err
		}
		return &Verdict{Result: ledger.ResultNotEligible, Reason: decision.Reason, Message: "Not eligible for this offer"}, nil
	}

	// 5. Rate/duplicate checks, scoped to the code's validity window
	window := ledger.Filter{
		Results: ledger.SuccessResults,
		From:    &uc.CreatedAt,
		To:      &uc.ExpiresAt,
	}

	if memberID != nil {
		memberWindow := window
		memberWindow.MemberID = memberID
		memberWindow.OfferID = &offerID
		n, err := e.ledger.CountTx(ctx, tx, memberWindow)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			if err := e.record(ctx, tx, memberID, partnerID, &offerID, code, ledger.ResultUsageLimitReached, ""); err != nil {
				return nil, err
			}
			return &Verdict{Result: ledger.ResultUsageLimitReached, Message: "Offer already verified this cycle"}, nil
		}
	}

	codeWindow := window
	codeWindow.PartnerID = partnerID
	codeWindow.CodeUsed = &code
	used, err := e.ledger.CountTx(ctx, tx, codeWindow)
	if err != nil {
		return nil, err
	}
	if used >= uc.MaxUsesPerWindow {
		if err := e.record(ctx, tx, memberID, partnerID, &offerID, code, ledger.ResultUsageLimitReached, ""); err != nil {
			return nil, err
		}
		return &Verdict{Result: ledger.ResultUsageLimitReached, Message: "Usage limit reached for this code", MaxUses: uc.MaxUsesPerWindow}, nil
	}

	// 6. Commit: the ledger row is the authoritative record; the counter
	// on the code row is advisory display data
	if err := e.record(ctx, tx, memberID, partnerID, &offerID, code, ledger.ResultValid, ""); err != nil {
		return nil, err
	}
	if err := e.codes.IncrementUsageTx(ctx, tx, uc.ID); err != nil {
		return nil, err
	}

	return &Verdict{
		OK:         true,
		Result:     ledger.ResultValid,
		Message:    "Code accepted",
		UsageCount: used + 1,
		MaxUses:    uc.MaxUsesPerWindow,
		ExpiresAt:  &uc.ExpiresAt,
	}, nil
}

func (e *Engine) record(ctx context.Context, tx *sqlx.Tx, memberID, partnerID, offerID *uuid.UUID, code string, result ledger.Result, reason string) error {
	entry := &ledger.Entry{
		MemberID:  memberID,
		PartnerID: partnerID,
		OfferID:   offerID,
		CodeUsed:  &code,
		Action:    ledger.ActionUsageCodeAttempt,
		Result:    result,
	}
	if reason != "" {
		entry.Reason = &reason
	}

	_, err := e.ledger.AppendTx(ctx, tx, entry)
	return err
}
