package terminal

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/perkhub/perkhub-api/internal/pkg/events"
)

// codeIssuedPayload is the slice of the usage_code.issued payload the
// terminal display needs
type codeIssuedPayload struct {
	PartnerID uuid.UUID `json:"partner_id"`
}

// Hub fans usage-code rotation events out to connected partner terminals
// so the display always shows the current live code.
type Hub struct {
	redis  *redis.Client
	pubsub *redis.PubSub
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.RWMutex
	terminals map[uuid.UUID]map[*websocket.Conn]struct{}
}

// NewHub creates a terminal hub. A nil Redis client yields a hub that
// accepts connections but never receives rotation events.
func NewHub(redisClient *redis.Client) *Hub {
	ctx, cancel := context.WithCancel(context.Background())

	h := &Hub{
		redis:     redisClient,
		ctx:       ctx,
		cancel:    cancel,
		terminals: make(map[uuid.UUID]map[*websocket.Conn]struct{}),
	}

	if redisClient != nil {
		h.pubsub = redisClient.Subscribe(ctx, events.Channel)
		go h.runSubscriber()
	}

	return h
}

// Stop shuts the hub down
func (h *Hub) Stop() {
	h.cancel()
	if h.pubsub != nil {
		h.pubsub.Close()
	}
}

// Register attaches a terminal connection for the partner
func (h *Hub) Register(partnerID uuid.UUID, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.terminals[partnerID] == nil {
		h.terminals[partnerID] = make(map[*websocket.Conn]struct{})
	}
	h.terminals[partnerID][conn] = struct{}{}
}

// Unregister detaches a terminal connection
func (h *Hub) Unregister(partnerID uuid.UUID, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conns, ok := h.terminals[partnerID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.terminals, partnerID)
		}
	}
}

// runSubscriber forwards code rotation events to the owning partner's
// terminals. Delivery is best-effort; a dead connection is dropped.
func (h *Hub) runSubscriber() {
	ch := h.pubsub.Channel()

	for {
		select {
		case <-h.ctx.Done():
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}

			var env events.Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				continue
			}
			if env.Event != events.EventUsageCodeIssued {
				continue
			}

			var payload codeIssuedPayload
			if err := json.Unmarshal(env.Payload, &payload); err != nil {
				continue
			}

			h.broadcastLocal(payload.PartnerID, []byte(msg.Payload))
		}
	}
}

func (h *Hub) broadcastLocal(partnerID uuid.UUID, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for conn := range h.terminals[partnerID] {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Debug().Err(err).Str("partner_id", partnerID.String()).Msg("Dropping dead terminal connection")
		}
	}
}
