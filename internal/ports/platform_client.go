package ports

import (
	"context"
	"net/url"
)

// PlatformClient is the external platform's REST surface reduced to the
// capability the sync layer needs: fetch with optional field expansion,
// replace fields, list with filter/pagination, manage webhook registrations.
// Non-2xx responses surface as *domain.APIError so 404, 429 and 5xx stay
// distinguishable by callers.
type PlatformClient interface {
	Get(ctx context.Context, path string, query url.Values) (map[string]any, error)
	Post(ctx context.Context, path string, body any) (map[string]any, error)
	Put(ctx context.Context, path string, body any) (map[string]any, error)
	Delete(ctx context.Context, path string) error
	// Download fetches binary content (image miniatures and files) from an
	// absolute platform href.
	Download(ctx context.Context, href string) ([]byte, error)
}

// ClientPool hands out a PlatformClient bound to one account's credentials.
// It is the single accessor through which tokens are decrypted.
type ClientPool interface {
	GetClient(ctx context.Context, accountID string) (PlatformClient, error)
}
