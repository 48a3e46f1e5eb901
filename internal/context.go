package internal

import (
	"context"
	"time"
)

type ctxKey string

// ContextUserKey carries the authenticated staff user ID. Audit log lines
// for review and reconciliation actions read it back.
const ContextUserKey ctxKey = "userID"

func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ContextUserKey, userID)
}

func UserIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if userID, ok := ctx.Value(ContextUserKey).(string); ok {
		return userID
	}
	return ""
}

// WithTimeout bounds an operation, defaulting to 5 seconds when the caller
// passes no duration. Used for work running off the request path, where no
// server-level timeout applies.
func WithTimeout(ctx context.Context, duration time.Duration) (context.Context, context.CancelFunc) {
	if duration <= 0 {
		duration = 5 * time.Second
	}
	return context.WithTimeout(ctx, duration)
}
