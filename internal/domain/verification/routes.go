package verification

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes returns verification routes. Auth is optional: a terminal may
// verify a code without a signed-in member.
func (h *Handler) Routes(optionalAuth func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Use(optionalAuth)

	r.Post("/", h.Verify)

	return r
}
