package domain

import "context"

// contextKey is a private type for context keys to avoid collisions.
type contextKey string

const (
	accountIDKey contextKey = "account_id"
	requestIDKey contextKey = "webhook_request_id"
)

// WithAccountID stores the platform account id handling the current request.
func WithAccountID(ctx context.Context, accountID string) context.Context {
	return context.WithValue(ctx, accountIDKey, accountID)
}

// GetAccountIDFromContext returns the account id or "".
func GetAccountIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(accountIDKey).(string); ok {
		return v
	}
	return ""
}

// WithRequestID stores the webhook request id for log correlation.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// GetRequestIDFromContext returns the webhook request id or "".
func GetRequestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}
