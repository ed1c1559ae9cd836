package redemption

import (
	"time"

	"github.com/google/uuid"
)

// ActivateRequest for POST /redemptions
type ActivateRequest struct {
	OfferID string `json:"offer_id" validate:"required,uuid"`
}

// ConfirmRequest for POST /redemptions/confirm
type ConfirmRequest struct {
	Code    string `json:"code" validate:"required,min=8,max=64"`
	QRToken string `json:"qr_token,omitempty" validate:"omitempty,max=64"`
}

// RedemptionResponse represents a redemption in the API
type RedemptionResponse struct {
	ID             uuid.UUID  `json:"id"`
	OfferID        uuid.UUID  `json:"offer_id"`
	PartnerID      uuid.UUID  `json:"partner_id"`
	RedemptionCode string     `json:"redemption_code"`
	QRToken        string     `json:"qr_token,omitempty"`
	Status         Status     `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	RedeemedAt     *time.Time `json:"redeemed_at,omitempty"`
}

// ResponseFromEntity converts a redemption to its API shape. The QR token
// is only included for the owning member.
func ResponseFromEntity(r *Redemption, includeToken bool) *RedemptionResponse {
	resp := &RedemptionResponse{
		ID:             r.ID,
		OfferID:        r.OfferID,
		PartnerID:      r.PartnerID,
		RedemptionCode: r.RedemptionCode,
		Status:         r.Status,
		CreatedAt:      r.CreatedAt,
	}
	if includeToken {
		resp.QRToken = r.QRToken
	}
	if r.RedeemedAt.Valid {
		resp.RedeemedAt = &r.RedeemedAt.Time
	}
	return resp
}
