package terminal

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/perkhub/perkhub-api/internal/middleware"
	"github.com/perkhub/perkhub-api/internal/pkg/response"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler serves the partner terminal WebSocket feed
type Handler struct {
	hub *Hub
}

// NewHandler creates a terminal handler
func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

// Serve upgrades the connection and streams code rotation events until
// the terminal disconnects.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	partnerID := middleware.GetPartnerID(r.Context())
	if partnerID == uuid.Nil {
		response.Forbidden(w, "Partner account required")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to upgrade terminal connection")
		return
	}

	h.hub.Register(partnerID, conn)
	defer func() {
		h.hub.Unregister(partnerID, conn)
		conn.Close()
	}()

	// Reads are discarded; the feed is one-way. The read loop exists to
	// detect disconnects and answer control frames.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
