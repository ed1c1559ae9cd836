package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Channel carries every domain event as a JSON envelope. Consumers
// (notification fan-out, partner terminals) subscribe and filter.
const Channel = "perkhub:events"

// Event names emitted by the core
const (
	EventRedemptionActivated  = "redemption.activated"
	EventRedemptionConfirmed  = "redemption.confirmed"
	EventUsageCodeIssued      = "usage_code.issued"
	EventVerificationRecorded = "verification.recorded"
)

// Envelope is the wire format published to Redis
type Envelope struct {
	Event      string          `json:"event"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// Publisher publishes domain events to Redis Pub/Sub. Delivery is
// fire-and-forget: publish failures are logged and never surfaced to the
// caller, so they cannot roll back a committed transaction.
type Publisher struct {
	rdb *redis.Client
}

// NewPublisher creates a publisher. A nil client yields a no-op publisher.
func NewPublisher(rdb *redis.Client) *Publisher {
	return &Publisher{rdb: rdb}
}

// Publish emits an event with the given payload
func (p *Publisher) Publish(ctx context.Context, event string, payload interface{}) {
	if p == nil || p.rdb == nil {
		return
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		log.Warn().Err(err).Str("event", event).Msg("Failed to marshal event payload")
		return
	}

	env, err := json.Marshal(Envelope{
		Event:      event,
		OccurredAt: time.Now().UTC(),
		Payload:    raw,
	})
	if err != nil {
		log.Warn().Err(err).Str("event", event).Msg("Failed to marshal event envelope")
		return
	}

	if err := p.rdb.Publish(ctx, Channel, env).Err(); err != nil {
		log.Warn().Err(err).Str("event", event).Msg("Failed to publish event")
	}
}
