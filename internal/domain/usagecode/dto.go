package usagecode

import (
	"time"

	"github.com/google/uuid"
)

// CodeResponse represents a usage code in the API
type CodeResponse struct {
	ID         uuid.UUID `json:"id"`
	Code       string    `json:"code"`
	ExpiresAt  time.Time `json:"expires_at"`
	UsageCount int       `json:"usage_count"`
	MaxUses    int       `json:"max_uses"`
}

// CodeResponseFromEntity converts a usage code to its API shape
func CodeResponseFromEntity(c *UsageCode) *CodeResponse {
	return &CodeResponse{
		ID:         c.ID,
		Code:       c.Code,
		ExpiresAt:  c.ExpiresAt,
		UsageCount: c.UsageCount,
		MaxUses:    c.MaxUsesPerWindow,
	}
}
