package ports

import (
	"context"
	"time"
)

// Cache is the key/value/TTL abstraction injected into the classifier and
// strategy selector so tests can substitute a deterministic in-memory stub.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// EncryptionService encrypts account credentials at rest.
type EncryptionService interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}
