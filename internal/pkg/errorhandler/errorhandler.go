package errorhandler

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/perkhub/perkhub-api/internal/pkg/response"
)

// HandleError logs the error details and sends a formatted error response
func HandleError(ctx context.Context, w http.ResponseWriter, status int, code, message string, err error) {
	event := log.Error().
		Str("request_id", getRequestID(ctx)).
		Str("error_code", code).
		Str("error_message", message).
		Int("status_code", status)

	if err != nil {
		event.Err(err)
	}

	event.Msg("Request error")

	response.Error(w, status, code, message)
}

// LogDatabaseError logs database errors with context
func LogDatabaseError(ctx context.Context, operation string, err error) {
	log.Error().
		Str("request_id", getRequestID(ctx)).
		Str("operation", operation).
		Err(err).
		Msg("Database error")
}

func getRequestID(ctx context.Context) string {
	if reqID := ctx.Value("request_id"); reqID != nil {
		if id, ok := reqID.(string); ok {
			return id
		}
	}
	return "unknown"
}
