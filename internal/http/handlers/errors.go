// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// These codes give clients a stable, machine-readable error taxonomy that
// supplements the human-readable message. Codes are lowercase snake_case.
// Generic codes mirror HTTP status semantics; the rest name a business
// condition that the status alone cannot convey.
//
// Codes written by middleware (rate_limited, bad_idempotency_key,
// idempotency_key_reused, idempotency_in_progress, payload_too_large) are
// listed here too so clients find the whole taxonomy in one place.

package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeInternal         = "internal_error"
	ErrCodeUnavailable      = "unavailable"

	// Domain-specific:
	ErrCodeInvalidTransition = "invalid_transition"
	ErrCodeExportFailed      = "export_failed"

	// Middleware:
	ErrCodeRateLimited           = "rate_limited"
	ErrCodeBadIdempotencyKey     = "bad_idempotency_key"
	ErrCodeIdempotencyKeyReused  = "idempotency_key_reused"
	ErrCodeIdempotencyInProgress = "idempotency_in_progress"
	ErrCodePayloadTooLarge       = "payload_too_large"
)
