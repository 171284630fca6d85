package domain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Error taxonomy. Callers branch on these with errors.Is/errors.As; the queue
// uses IsTransient to decide between reschedule and terminal failure.
var (
	// ErrMalformedPayload rejects a structurally invalid webhook before
	// anything is persisted.
	ErrMalformedPayload = errors.New("malformed webhook payload")

	// ErrDuplicateRequest rejects a notification whose request id was
	// already recorded.
	ErrDuplicateRequest = errors.New("duplicate webhook request")

	// ErrMappingMissing marks a required cross-account reference that could
	// not be resolved through the mapping store.
	ErrMappingMissing = errors.New("entity mapping missing")

	// ErrSyncDisabled marks work skipped because the link's configuration
	// turns the category off or required defaults are unset.
	ErrSyncDisabled = errors.New("sync disabled by configuration")
)

// APIError carries the platform's HTTP status so that 404, 429 and 5xx are
// distinguishable by callers.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("platform api error: status %d: %s", e.Status, e.Body)
}

// IsNotFound reports a definitive "entity gone" answer from the platform.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// IsRateLimited reports a 429 from the platform.
func IsRateLimited(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusTooManyRequests
}

// IsTransient reports an upstream failure worth retrying with backoff:
// rate limits, 5xx and timeouts.
func IsTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusTooManyRequests || apiErr.Status >= 500
	}
	return false
}
