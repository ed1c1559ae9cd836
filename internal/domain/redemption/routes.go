package redemption

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/perkhub/perkhub-api/internal/middleware"
)

// Routes returns redemption routes
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Use(authMiddleware)

	// Member-facing
	r.Post("/", h.Activate)
	r.Get("/", h.ListMine)
	r.Post("/{id}/rotate-token", h.RotateToken)

	// Partner terminal
	r.With(middleware.RequirePartner()).Post("/confirm", h.Confirm)

	return r
}

// AdminRoutes returns maintenance routes for external schedulers
func (h *Handler) AdminRoutes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Use(authMiddleware)
	r.Use(middleware.RequirePartner())

	r.Post("/sweep", h.Sweep)

	return r
}
