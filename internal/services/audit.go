package services

import (
	"context"

	"github.com/rs/zerolog"
)

// audit emits a structured audit event through the request-scoped logger,
// which already carries request_id. Logging never fails the operation.
func audit(ctx context.Context, action, userID, entityID string) {
	zerolog.Ctx(ctx).Info().
		Str("event", "audit").
		Str("action", action).
		Str("user_id", userID).
		Str("entity_id", entityID).
		Msg("audit")
}
