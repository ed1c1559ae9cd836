package settings

import (
	"context"
	"strconv"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Provider resolves admin-managed settings. Implementations must read
// fresh values on every call; callers never cache decisions across requests.
type Provider interface {
	UsageCode(ctx context.Context) (UsageCodeSettings, error)
	ClassificationEnabled(ctx context.Context, name string) (bool, error)
	ActiveMember(ctx context.Context) (ActiveMemberSettings, error)
}

// Repository reads the platform_settings table and implements Provider
type Repository struct {
	db       *sqlx.DB
	defaults Defaults
}

// NewRepository creates a settings repository with config-sourced defaults
func NewRepository(db *sqlx.DB, defaults Defaults) *Repository {
	return &Repository{db: db, defaults: defaults}
}

// UsageCode returns the current code TTL and per-window usage cap
func (r *Repository) UsageCode(ctx context.Context) (UsageCodeSettings, error) {
	values, err := r.fetch(ctx, KeyUsageCodeExpirySeconds, KeyUsageCodeMaxUses)
	if err != nil {
		return UsageCodeSettings{}, err
	}

	return UsageCodeSettings{
		TTLSeconds:       intValue(values, KeyUsageCodeExpirySeconds, r.defaults.UsageCodeTTLSeconds),
		MaxUsesPerWindow: intValue(values, KeyUsageCodeMaxUses, r.defaults.UsageCodeMaxUses),
	}, nil
}

// ClassificationEnabled reports whether a classification tag's rule is
// globally enabled. Tags default to enabled when no row exists.
func (r *Repository) ClassificationEnabled(ctx context.Context, name string) (bool, error) {
	key := classificationKeyPrefix + name
	values, err := r.fetch(ctx, key)
	if err != nil {
		return false, err
	}

	raw, ok := values[key]
	if !ok {
		return true, nil
	}
	enabled, err := strconv.ParseBool(raw)
	if err != nil {
		return true, nil
	}
	return enabled, nil
}

// ActiveMember returns the thresholds behind the "active member" predicate
func (r *Repository) ActiveMember(ctx context.Context) (ActiveMemberSettings, error) {
	values, err := r.fetch(ctx, KeyRequiredUsages, KeyTimeWindowDays, KeyRequireUniqueCustomers)
	if err != nil {
		return ActiveMemberSettings{}, err
	}

	s := ActiveMemberSettings{
		RequiredUsages: intValue(values, KeyRequiredUsages, r.defaults.ActiveMemberRequiredUsages),
		TimeWindowDays: intValue(values, KeyTimeWindowDays, r.defaults.ActiveMemberWindowDays),
	}
	if raw, ok := values[KeyRequireUniqueCustomers]; ok {
		s.RequireUniqueCustomers, _ = strconv.ParseBool(raw)
	}
	return s, nil
}

func (r *Repository) fetch(ctx context.Context, keys ...string) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT key, value
		FROM platform_settings
		WHERE key = ANY($1)
	`, pq.Array(keys))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	values := make(map[string]string, len(keys))
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		values[key] = value
	}

	return values, rows.Err()
}

func intValue(values map[string]string, key string, fallback int) int {
	raw, ok := values[key]
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
