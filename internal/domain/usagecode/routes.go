package usagecode

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/perkhub/perkhub-api/internal/middleware"
)

// Routes returns usage code routes. All of them are partner-only.
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Use(authMiddleware)
	r.Use(middleware.RequirePartner())

	r.Post("/", h.Issue)
	r.Get("/current", h.Current)

	return r
}
