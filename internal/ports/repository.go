package ports

import (
	"context"
	"time"

	"moysklad-sync-layer/internal/domain"
)

// AccountRepository persists platform accounts.
type AccountRepository interface {
	Save(ctx context.Context, account *domain.Account) error
	GetByAccountID(ctx context.Context, accountID string) (*domain.Account, error)
	ListActive(ctx context.Context) ([]*domain.Account, error)
}

// ChildLinkRepository persists main->child relationships and their sync
// configuration.
type ChildLinkRepository interface {
	Save(ctx context.Context, link *domain.ChildLink) error
	GetByChild(ctx context.Context, childAccountID string) (*domain.ChildLink, error)
	ListByMain(ctx context.Context, mainAccountID string) ([]*domain.ChildLink, error)
}

// EntityMappingRepository is the id translation table between accounts.
type EntityMappingRepository interface {
	Get(ctx context.Context, mainAccountID, childAccountID string, category domain.EntityCategory, mainEntityID string) (*domain.EntityMapping, error)
	// GetByChildEntity is the reverse lookup used by the order flow.
	GetByChildEntity(ctx context.Context, mainAccountID, childAccountID string, category domain.EntityCategory, childEntityID string) (*domain.EntityMapping, error)
	Save(ctx context.Context, mapping *domain.EntityMapping) error
	Delete(ctx context.Context, id string) error
}

// NameMappingRepository is the name-scoped translation table (attributes,
// price types, characteristics, counterparties, standard references).
type NameMappingRepository interface {
	GetByName(ctx context.Context, mainAccountID, childAccountID string, kind domain.NameMappingKind, name string) (*domain.NameMapping, error)
	ListByKind(ctx context.Context, mainAccountID, childAccountID string, kind domain.NameMappingKind) ([]*domain.NameMapping, error)
	Save(ctx context.Context, mapping *domain.NameMapping) error
}

// WebhookLogRepository persists accepted notifications. Insert must return
// domain.ErrDuplicateRequest when the request id is already recorded.
type WebhookLogRepository interface {
	Insert(ctx context.Context, log *domain.WebhookLog) error
	Update(ctx context.Context, log *domain.WebhookLog) error
	GetByRequestID(ctx context.Context, requestID string) (*domain.WebhookLog, error)
	CountSince(ctx context.Context, accountID string, status domain.WebhookStatus, since time.Time) (int64, error)
	CountAllSince(ctx context.Context, accountID string, since time.Time) (int64, error)
}

// TaskRepository is the persistent priority queue. ClaimNext atomically moves
// the highest-priority due pending task to processing and returns it, or
// (nil, nil) when the queue is empty.
type TaskRepository interface {
	Insert(ctx context.Context, task *domain.SyncTask) error
	InsertMany(ctx context.Context, tasks []*domain.SyncTask) (int, error)
	ClaimNext(ctx context.Context) (*domain.SyncTask, error)
	Update(ctx context.Context, task *domain.SyncTask) error
	GetByID(ctx context.Context, id string) (*domain.SyncTask, error)
	ListFailed(ctx context.Context, accountID string, limit int64) ([]*domain.SyncTask, error)
}

// UpdateLogRepository persists partial-update audit records.
type UpdateLogRepository interface {
	Insert(ctx context.Context, log *domain.EntityUpdateLog) error
	Update(ctx context.Context, log *domain.EntityUpdateLog) error
}

// WebhookStatRepository persists per-registration health stats.
type WebhookStatRepository interface {
	Get(ctx context.Context, accountID, entityType string, action domain.WebhookAction) (*domain.WebhookStat, error)
	List(ctx context.Context, accountID string) ([]*domain.WebhookStat, error)
	Save(ctx context.Context, stat *domain.WebhookStat) error
	// IncrementReceived bumps the lifetime counter if a registration record
	// exists; it is a no-op otherwise.
	IncrementReceived(ctx context.Context, accountID, entityType string, action domain.WebhookAction) error
	IncrementFailed(ctx context.Context, accountID, entityType string, action domain.WebhookAction) error
}
