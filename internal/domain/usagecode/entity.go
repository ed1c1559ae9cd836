package usagecode

import (
	"time"

	"github.com/google/uuid"
)

// UsageCode is a short-lived numeric code shared partner-wide. At most one
// live code exists per partner; the terminal displays it until rotation.
type UsageCode struct {
	ID               uuid.UUID `db:"id" json:"id"`
	Code             string    `db:"code" json:"code"`
	PartnerID        uuid.UUID `db:"partner_id" json:"partner_id"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	ExpiresAt        time.Time `db:"expires_at" json:"expires_at"`
	UsageCount       int       `db:"usage_count" json:"usage_count"`
	MaxUsesPerWindow int       `db:"max_uses_per_window" json:"max_uses_per_window"`
}

// IsLive reports whether the code is still accepted at the given instant.
// UsageCount on the row is advisory display data; the authoritative usage
// counter is recomputed from the activity ledger.
func (c *UsageCode) IsLive(now time.Time) bool {
	return c.ExpiresAt.After(now)
}
