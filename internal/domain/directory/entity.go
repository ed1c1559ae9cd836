package directory

import (
	"time"

	"github.com/google/uuid"
)

// Classification is a business tag attached to an offer. Tags are a set,
// not mutually exclusive; each tag has its own eligibility rule.
type Classification string

const (
	ClassificationFirstTimeOffer    Classification = "first_time_offer"
	ClassificationLoyaltyOffer      Classification = "loyalty_offer"
	ClassificationActiveMembersOnly Classification = "active_members_only"
	ClassificationHappyHour         Classification = "happy_hour"
	ClassificationMidWeek           Classification = "mid_week"
)

// Partner represents a business that honors offers at its point of service
type Partner struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Offer represents a partner offer members can activate and use
type Offer struct {
	ID              uuid.UUID `db:"id" json:"id"`
	PartnerID       uuid.UUID `db:"partner_id" json:"partner_id"`
	Title           string    `db:"title" json:"title"`
	IsEnabled       bool      `db:"is_enabled" json:"is_enabled"`
	Classifications []string  `db:"-" json:"classifications"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// HasClassification reports whether the offer carries the given tag
func (o *Offer) HasClassification(c Classification) bool {
	for _, tag := range o.Classifications {
		if tag == string(c) {
			return true
		}
	}
	return false
}
