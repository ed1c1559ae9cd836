package settings

import "time"

// Setting is one admin-managed key/value row
type Setting struct {
	Key       string    `db:"key" json:"key"`
	Value     string    `db:"value" json:"value"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Setting keys managed from the admin panel
const (
	KeyUsageCodeExpirySeconds = "usage_code_expiry_seconds"
	KeyUsageCodeMaxUses       = "usage_code_max_uses_per_window"
	KeyRequiredUsages         = "required_usages"
	KeyTimeWindowDays         = "time_window_days"
	KeyRequireUniqueCustomers = "require_unique_customers"
	classificationKeyPrefix   = "classification_enabled:"
)

// UsageCodeSettings controls issuance of partner usage codes
type UsageCodeSettings struct {
	TTLSeconds       int
	MaxUsesPerWindow int
}

// ActiveMemberSettings controls the "active member" predicate
type ActiveMemberSettings struct {
	RequiredUsages         int
	TimeWindowDays         int
	RequireUniqueCustomers bool
}

// Defaults are the values used when the settings table has no row for a
// key. They come from bootstrap configuration, not from code.
type Defaults struct {
	UsageCodeTTLSeconds        int
	UsageCodeMaxUses           int
	ActiveMemberWindowDays     int
	ActiveMemberRequiredUsages int
}
