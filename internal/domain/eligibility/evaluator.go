package eligibility

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/perkhub/perkhub-api/internal/domain/directory"
	"github.com/perkhub/perkhub-api/internal/domain/ledger"
	"github.com/perkhub/perkhub-api/internal/domain/settings"
)

// Reason codes returned when a rule rejects an attempt
const (
	ReasonDisabledOffer  = "disabled_offer"
	ReasonAlreadyClaimed = "already_claimed"
	ReasonLoyaltyNotMet  = "loyalty_requirement_not_met"
	ReasonInactiveMember = "inactive_member"
)

// loyaltyThreshold is the number of prior successful uses at a partner
// required before its loyalty offers open up.
const loyaltyThreshold = 2

// Decision is the outcome of an eligibility evaluation
type Decision struct {
	Eligible     bool     `json:"eligible"`
	Reason       string   `json:"reason,omitempty"`
	AppliedRules []string `json:"applied_rules"`
}

// LedgerReader is the slice of the ledger contract the evaluator needs
type LedgerReader interface {
	Count(ctx context.Context, f ledger.Filter) (int, error)
	CountTx(ctx context.Context, tx *sqlx.Tx, f ledger.Filter) (int, error)
}

// Evaluator decides whether a usage attempt may proceed. It performs
// reads only and never mutates the ledger.
type Evaluator struct {
	ledger   LedgerReader
	settings settings.Provider
}

// NewEvaluator creates an eligibility evaluator
func NewEvaluator(ledgerStore LedgerReader, provider settings.Provider) *Evaluator {
	return &Evaluator{ledger: ledgerStore, settings: provider}
}

// Evaluate applies the offer's classification rules in fixed order; the
// first failing rule wins. When tx is non-nil all ledger reads run inside
// it, sharing the caller's lock scope. A nil memberID fails closed on any
// rule that needs member history.
func (e *Evaluator) Evaluate(ctx context.Context, tx *sqlx.Tx, memberID *uuid.UUID, off *directory.Offer) (Decision, error) {
	if off == nil || !off.IsEnabled {
		return Decision{Reason: ReasonDisabledOffer}, nil
	}

	applied := []string{}

	type rule struct {
		tag    directory.Classification
		reason string
		check  func(ctx context.Context) (bool, error)
	}

	rules := []rule{
		{
			tag:    directory.ClassificationFirstTimeOffer,
			reason: ReasonAlreadyClaimed,
			check: func(ctx context.Context) (bool, error) {
				if memberID == nil {
					return false, nil
				}
				n, err := e.count(ctx, tx, ledger.Filter{
					MemberID: memberID,
					OfferID:  &off.ID,
					Results:  ledger.SuccessResults,
				})
				if err != nil {
					return false, err
				}
				return n == 0, nil
			},
		},
		{
			tag:    directory.ClassificationLoyaltyOffer,
			reason: ReasonLoyaltyNotMet,
			check: func(ctx context.Context) (bool, error) {
				if memberID == nil {
					return false, nil
				}
				// Loyalty is partner-wide: successes across all of the
				// partner's offers count, not just this one.
				n, err := e.count(ctx, tx, ledger.Filter{
					MemberID:  memberID,
					PartnerID: &off.PartnerID,
					Results:   ledger.SuccessResults,
				})
				if err != nil {
					return false, err
				}
				return n >= loyaltyThreshold, nil
			},
		},
		{
			tag:    directory.ClassificationActiveMembersOnly,
			reason: ReasonInactiveMember,
			check:  func(ctx context.Context) (bool, error) { return e.isActiveMember(ctx, tx, memberID) },
		},
		{
			tag:    directory.ClassificationHappyHour,
			reason: ReasonInactiveMember,
			check:  func(ctx context.Context) (bool, error) { return e.isActiveMember(ctx, tx, memberID) },
		},
	}

	for _, rl := range rules {
		if !off.HasClassification(rl.tag) {
			continue
		}

		enabled, err := e.settings.ClassificationEnabled(ctx, string(rl.tag))
		if err != nil {
			return Decision{}, err
		}
		if !enabled {
			continue
		}

		applied = append(applied, string(rl.tag))

		ok, err := rl.check(ctx)
		if err != nil {
			return Decision{}, err
		}
		if !ok {
			return Decision{Reason: rl.reason, AppliedRules: applied}, nil
		}
	}

	return Decision{Eligible: true, AppliedRules: applied}, nil
}

func (e *Evaluator) isActiveMember(ctx context.Context, tx *sqlx.Tx, memberID *uuid.UUID) (bool, error) {
	if memberID == nil {
		return false, nil
	}

	cfg, err := e.settings.ActiveMember(ctx)
	if err != nil {
		return false, err
	}

	from := time.Now().AddDate(0, 0, -cfg.TimeWindowDays)
	n, err := e.count(ctx, tx, ledger.Filter{
		MemberID:         memberID,
		Results:          ledger.SuccessResults,
		From:             &from,
		DistinctPartners: cfg.RequireUniqueCustomers,
	})
	if err != nil {
		return false, err
	}

	return n >= cfg.RequiredUsages, nil
}

func (e *Evaluator) count(ctx context.Context, tx *sqlx.Tx, f ledger.Filter) (int, error) {
	if tx != nil {
		return e.ledger.CountTx(ctx, tx, f)
	}
	return e.ledger.Count(ctx, f)
}
