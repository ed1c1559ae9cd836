package verification

import (
	"time"

	"github.com/perkhub/perkhub-api/internal/domain/ledger"
)

// VerifyRequest for POST /verifications
type VerifyRequest struct {
	OfferID string `json:"offer_id" validate:"required,uuid"`
	Code    string `json:"code" validate:"required,max=16"`
}

// Verdict is the typed outcome of a verification attempt. Business
// rejections are verdicts, not errors: callers branch on Result.
type Verdict struct {
	OK         bool          `json:"ok"`
	Result     ledger.Result `json:"result"`
	Reason     string        `json:"reason,omitempty"`
	Message    string        `json:"message"`
	UsageCount int           `json:"usage_count,omitempty"`
	MaxUses    int           `json:"max_uses,omitempty"`
	ExpiresAt  *time.Time    `json:"expires_at,omitempty"`
}
