package redemption

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Status represents redemption status. Transitions are monotonic:
// pending → redeemed or pending → expired, nothing else.
type Status string

const (
	StatusPending  Status = "pending"
	StatusRedeemed Status = "redeemed"
	StatusExpired  Status = "expired"
)

// Redemption is one member's claim on one offer. The redemption code is
// immutable once issued; the QR token can be rotated while pending.
type Redemption struct {
	ID             uuid.UUID    `db:"id" json:"id"`
	MemberID       uuid.UUID    `db:"member_id" json:"member_id"`
	OfferID        uuid.UUID    `db:"offer_id" json:"offer_id"`
	PartnerID      uuid.UUID    `db:"partner_id" json:"partner_id"`
	RedemptionCode string       `db:"redemption_code" json:"redemption_code"`
	QRToken        string       `db:"qr_token" json:"qr_token"`
	Status         Status       `db:"status" json:"status"`
	CreatedAt      time.Time    `db:"created_at" json:"created_at"`
	RedeemedAt     sql.NullTime `db:"redeemed_at" json:"redeemed_at,omitempty"`
}

// IsTerminal reports whether the redemption reached a final state
func (r *Redemption) IsTerminal() bool {
	return r.Status == StatusRedeemed || r.Status == StatusExpired
}

// WindowElapsed reports whether the validity window has run out. Expiry is
// applied lazily by whoever observes it; there is no background sweeper
// in the request path.
func (r *Redemption) WindowElapsed(window time.Duration, now time.Time) bool {
	return now.After(r.CreatedAt.Add(window))
}
