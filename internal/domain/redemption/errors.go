package redemption

import "errors"

var (
	// ErrAlreadyRedeemed is returned when the member already redeemed this offer
	ErrAlreadyRedeemed = errors.New("offer already redeemed by member")

	// ErrActiveRedemptionExists is returned when a valid pending redemption exists
	ErrActiveRedemptionExists = errors.New("active redemption already exists")

	// ErrNotFound is returned when no redemption matches the code
	ErrNotFound = errors.New("redemption not found")

	// ErrWrongPartner is returned when the code belongs to another partner
	ErrWrongPartner = errors.New("redemption belongs to a different partner")

	// ErrTokenMismatch is returned when the supplied QR token does not match
	ErrTokenMismatch = errors.New("qr token mismatch")

	// ErrExpired is returned when the validity window has elapsed
	ErrExpired = errors.New("redemption expired")

	// ErrNotPending is returned when rotating the token of a terminal redemption
	ErrNotPending = errors.New("redemption is not pending")

	// ErrExhaustedCodeSpace is returned after the code generation attempt
	// budget is spent; it indicates misconfiguration, not a transient state.
	ErrExhaustedCodeSpace = errors.New("exhausted redemption code space")

	ErrInternal = errors.New("internal error")
)
