package usagecode

import (
	"errors"
	"net/http"

	"github.com/perkhub/perkhub-api/internal/middleware"
	"github.com/perkhub/perkhub-api/internal/pkg/errorhandler"
	"github.com/perkhub/perkhub-api/internal/pkg/response"
)

// Handler handles usage code HTTP requests
type Handler struct {
	service *Service
}

// NewHandler creates a usage code handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Issue handles POST /usage-codes
func (h *Handler) Issue(w http.ResponseWriter, r *http.Request) {
	partnerID := middleware.GetPartnerID(r.Context())

	code, err := h.service.Issue(r.Context(), partnerID)
	if err != nil {
		if errors.Is(err, ErrExhaustedCodeSpace) {
			errorhandler.HandleError(r.Context(), w, http.StatusConflict, "CODE_SPACE_EXHAUSTED", "Could not allocate a unique code", err)
			return
		}
		errorhandler.HandleError(r.Context(), w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to issue usage code", err)
		return
	}

	response.Created(w, CodeResponseFromEntity(code))
}

// Current handles GET /usage-codes/current
func (h *Handler) Current(w http.ResponseWriter, r *http.Request) {
	partnerID := middleware.GetPartnerID(r.Context())

	code, err := h.service.Current(r.Context(), partnerID)
	if err != nil {
		if errors.Is(err, ErrNoLiveCode) {
			response.NotFound(w, "No live usage code")
			return
		}
		errorhandler.HandleError(r.Context(), w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load usage code", err)
		return
	}

	response.OK(w, CodeResponseFromEntity(code))
}
