package platform

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"moysklad-sync-layer/internal/domain"
	"moysklad-sync-layer/internal/infrastructure/metrics"
	"moysklad-sync-layer/internal/ports"
)

// ClientPool caches one platform client per account. It is the only place
// account tokens are decrypted; nothing else touches credentials.
type ClientPool struct {
	accounts    ports.AccountRepository
	encryption  ports.EncryptionService
	rateLimiter *RateLimiter
	retryConfig RetryConfig
	metrics     *metrics.Metrics
	logger      zerolog.Logger

	mu      sync.RWMutex
	clients map[string]ports.PlatformClient
}

// NewClientPool creates the pool.
func NewClientPool(
	accounts ports.AccountRepository,
	encryption ports.EncryptionService,
	rateLimiter *RateLimiter,
	retryConfig RetryConfig,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *ClientPool {
	return &ClientPool{
		accounts:    accounts,
		encryption:  encryption,
		rateLimiter: rateLimiter,
		retryConfig: retryConfig,
		metrics:     m,
		logger:      logger,
		clients:     make(map[string]ports.PlatformClient),
	}
}

var _ ports.ClientPool = (*ClientPool)(nil)

// GetClient returns a client bound to the account's decrypted token. The
// account must exist and be activated.
func (p *ClientPool) GetClient(ctx context.Context, accountID string) (ports.PlatformClient, error) {
	p.mu.RLock()
	cached, ok := p.clients[accountID]
	p.mu.RUnlock()
	if ok {
		return cached, nil
	}

	account, err := p.accounts.GetByAccountID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load account %s: %w", accountID, err)
	}
	if account == nil {
		return nil, fmt.Errorf("account %s not found", accountID)
	}
	if account.Status != domain.StatusActivated {
		return nil, fmt.Errorf("account %s is not activated (status %s)", accountID, account.Status)
	}

	token, err := p.encryption.Decrypt(account.EncryptedToken)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt token for account %s: %w", accountID, err)
	}

	client := NewClientWithOptions(token, p.rateLimiter, p.retryConfig, p.metrics, p.logger)

	p.mu.Lock()
	p.clients[accountID] = client
	p.mu.Unlock()
	return client, nil
}

// Invalidate drops the cached client, forcing a token reload on next use.
// Called when an account's credential or status changes.
func (p *ClientPool) Invalidate(accountID string) {
	p.mu.Lock()
	delete(p.clients, accountID)
	p.mu.Unlock()
}
