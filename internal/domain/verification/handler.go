package verification

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/perkhub/perkhub-api/internal/middleware"
	"github.com/perkhub/perkhub-api/internal/pkg/errorhandler"
	"github.com/perkhub/perkhub-api/internal/pkg/response"
	"github.com/perkhub/perkhub-api/internal/pkg/validator"
)

// Verifier is implemented by the engine
type Verifier interface {
	Verify(ctx context.Context, memberID *uuid.UUID, offerID uuid.UUID, code string) (*Verdict, error)
}

// Handler handles verification HTTP requests
type Handler struct {
	engine Verifier
}

// NewHandler creates a verification handler
func NewHandler(engine Verifier) *Handler {
	return &Handler{engine: engine}
}

// Verify handles POST /verifications. Anonymous attempts are allowed;
// member-history rules then fail closed inside the engine.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
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

	var memberID *uuid.UUID
	if id := middleware.GetUserID(r.Context()); id != uuid.Nil {
		memberID = &id
	}

	verdict, err := h.engine.Verify(r.Context(), memberID, offerID, req.Code)
	if err != nil {
		errorhandler.HandleError(r.Context(), w, http.StatusInternalServerError, "INTERNAL_ERROR", "Verification failed", err)
		return
	}

	// Business rejections are 200s with a typed result; callers branch
	// on verdict.result, not on HTTP status
	response.OK(w, verdict)
}
