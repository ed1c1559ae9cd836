package redemption

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/perkhub/perkhub-api/internal/domain/directory"
	"github.com/perkhub/perkhub-api/internal/middleware"
	"github.com/perkhub/perkhub-api/internal/pkg/errorhandler"
	"github.com/perkhub/perkhub-api/internal/pkg/response"
	"github.com/perkhub/perkhub-api/internal/pkg/validator"
)

// Handler handles redemption HTTP requests
type Handler struct {
	service *Service
}

// NewHandler creates a redemption handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Activate handles POST /redemptions
func (h *Handler) Activate(w http.ResponseWriter, r *http.Request) {
	var req ActivateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	offerID, err := uuid.Parse(req.OfferID)
	if err != nil {
		response.BadRequest(w, "Invalid offer_id")
		return
	}

	memberID := middleware.GetUserID(r.Context())

	red, err := h.service.Activate(r.Context(), memberID, offerID)
	if err != nil {
		switch {
		case errors.Is(err, directory.ErrOfferNotFound):
			response.NotFound(w, "Offer not found")
		case errors.Is(err, ErrAlreadyRedeemed):
			response.Error(w, http.StatusConflict, "ALREADY_REDEEMED", "You already redeemed this offer")
		case errors.Is(err, ErrActiveRedemptionExists):
			response.Error(w, http.StatusConflict, "ACTIVE_REDEMPTION_EXISTS", "An active redemption already exists for this offer")
		default:
			errorhandler.HandleError(r.Context(), w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to activate offer", err)
		}
		return
	}

	response.Created(w, ResponseFromEntity(red, true))
}

// Confirm handles POST /redemptions/confirm (partner terminal)
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req ConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	partnerID := middleware.GetPartnerID(r.Context())

	red, err := h.service.Confirm(r.Context(), req.Code, partnerID, req.QRToken)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			response.NotFound(w, "Redemption not found")
		case errors.Is(err, ErrWrongPartner):
			response.Forbidden(w, "Redemption belongs to a different partner")
		case errors.Is(err, ErrTokenMismatch):
			response.Forbidden(w, "QR token mismatch")
		case errors.Is(err, ErrExpired):
			response.Error(w, http.StatusGone, "REDEMPTION_EXPIRED", "Redemption has expired")
		default:
			errorhandler.HandleError(r.Context(), w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to confirm redemption", err)
		}
		return
	}

	response.OK(w, ResponseFromEntity(red, false))
}

// ListMine handles GET /redemptions
func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	memberID := middleware.GetUserID(r.Context())

	redemptions, err := h.service.ListForMember(r.Context(), memberID)
	if err != nil {
		errorhandler.HandleError(r.Context(), w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list redemptions", err)
		return
	}

	items := make([]*RedemptionResponse, len(redemptions))
	for i := range redemptions {
		items[i] = ResponseFromEntity(&redemptions[i], true)
	}

	response.OK(w, items)
}

// RotateToken handles POST /redemptions/{id}/rotate-token
func (h *Handler) RotateToken(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid redemption ID")
		return
	}

	memberID := middleware.GetUserID(r.Context())

	red, err := h.service.RotateToken(r.Context(), id, memberID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			response.NotFound(w, "Redemption not found")
		case errors.Is(err, ErrExpired):
			response.Error(w, http.StatusGone, "REDEMPTION_EXPIRED", "Redemption has expired")
		case errors.Is(err, ErrNotPending):
			response.Conflict(w, "Redemption is no longer pending")
		default:
			errorhandler.HandleError(r.Context(), w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to rotate token", err)
		}
		return
	}

	response.OK(w, ResponseFromEntity(red, true))
}

// Sweep handles POST /admin/redemptions/sweep
func (h *Handler) Sweep(w http.ResponseWriter, r *http.Request) {
	n, err := h.service.SweepExpired(r.Context())
	if err != nil {
		errorhandler.HandleError(r.Context(), w, http.StatusInternalServerError, "INTERNAL_ERROR", "Sweep failed", err)
		return
	}

	response.OK(w, map[string]int{"expired": n})
}
