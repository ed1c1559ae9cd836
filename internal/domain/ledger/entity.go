package ledger

import (
	"time"

	"github.com/google/uuid"
)

// Action names the kind of fact recorded
type Action string

const (
	ActionUsageCodeAttempt Action = "usage_code_attempt"
	ActionIncentiveApplied Action = "incentive_applied"
)

// Result is the machine-readable outcome of an attempt
type Result string

const (
	ResultValid             Result = "valid"
	ResultSuccess           Result = "success"
	ResultInvalid           Result = "invalid"
	ResultExpired           Result = "expired"
	ResultNotEligible       Result = "not_eligible"
	ResultUsageLimitReached Result = "usage_limit_reached"
)

// SuccessResults are the outcomes that count as a successful use for
// rate limiting, loyalty counting and active-member determination.
var SuccessResults = []Result{ResultValid, ResultSuccess}

// Entry is one append-only activity fact. Rows are immutable once
// written; the ledger has no update or delete path.
type Entry struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	MemberID  *uuid.UUID `db:"member_id" json:"member_id,omitempty"`
	PartnerID *uuid.UUID `db:"partner_id" json:"partner_id,omitempty"`
	OfferID   *uuid.UUID `db:"offer_id" json:"offer_id,omitempty"`
	CodeUsed  *string    `db:"code_used" json:"code_used,omitempty"`
	Action    Action     `db:"action" json:"action"`
	Result    Result     `db:"result" json:"result"`
	Reason    *string    `db:"reason" json:"reason,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

// Filter selects ledger rows for counting and existence checks.
// Nil fields are not constrained.
type Filter struct {
	MemberID  *uuid.UUID
	PartnerID *uuid.UUID
	OfferID   *uuid.UUID
	CodeUsed  *string
	Action    *Action
	Results   []Result
	From      *time.Time
	To        *time.Time

	// DistinctPartners counts distinct partner_id values instead of rows.
	// Used when active-member status requires spread across partners.
	DistinctPartners bool
}
