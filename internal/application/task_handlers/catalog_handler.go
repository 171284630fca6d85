package task_handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"moysklad-sync-layer/internal/application"
	"moysklad-sync-layer/internal/domain"
	"moysklad-sync-layer/internal/ports"
)

// CatalogHandler executes queued catalog tasks (products, variants, bundles,
// services, folders) against one child account. One instance is registered
// per category.
type CatalogHandler struct {
	category   domain.EntityCategory
	childLinks ports.ChildLinkRepository
	syncer     *application.EntitySyncer
	logger     zerolog.Logger
}

// NewCatalogHandler creates a handler for one catalog category.
func NewCatalogHandler(category domain.EntityCategory, childLinks ports.ChildLinkRepository, syncer *application.EntitySyncer, logger zerolog.Logger) *CatalogHandler {
	return &CatalogHandler{
		category:   category,
		childLinks: childLinks,
		syncer:     syncer,
		logger:     logger,
	}
}

func (h *CatalogHandler) Category() domain.EntityCategory {
	return h.category
}

func (h *CatalogHandler) Handle(ctx context.Context, task *domain.SyncTask) error {
	link, err := resolveLink(ctx, h.childLinks, task)
	if err != nil {
		return err
	}
	if !link.Config.CategoryEnabled(h.category) {
		h.logger.Debug().
			Str("taskId", task.ID).
			Str("category", string(h.category)).
			Str("childAccountId", task.AccountID).
			Msg("Category disabled for link, skipping task")
		return nil
	}

	switch task.Operation {
	case domain.OpCreate, domain.OpUpdate:
		return h.syncOne(ctx, task.EntityID, link)
	case domain.OpDelete:
		return h.archive(ctx, task.EntityID, link)
	case domain.OpBatchSync:
		return h.syncBatch(ctx, task, link)
	default:
		return fmt.Errorf("unsupported operation %s for category %s", task.Operation, h.category)
	}
}

// syncOne full-syncs one entity. A 404 means the mapped child entity
// vanished; the stale mapping is dropped before the error propagates, so the
// queue converts the task to a create and the retry starts from a clean
// slate instead of hitting the same dead id again.
func (h *CatalogHandler) syncOne(ctx context.Context, entityID string, link *domain.ChildLink) error {
	_, err := h.syncer.SyncFull(ctx, h.category, link.MainAccountID, entityID, link)
	if err != nil && domain.IsNotFound(err) {
		if dropErr := h.syncer.DropStaleMapping(ctx, h.category, link.MainAccountID, link.ChildAccountID, entityID); dropErr != nil {
			return dropErr
		}
		h.logger.Warn().
			Str("category", string(h.category)).
			Str("mainEntityId", entityID).
			Str("childAccountId", link.ChildAccountID).
			Msg("Child entity gone, stale mapping dropped")
	}
	return err
}

// archive marks the mapped child entity archived. A 404 means it is already
// gone; the stale mapping is dropped and the delete is complete.
func (h *CatalogHandler) archive(ctx context.Context, entityID string, link *domain.ChildLink) error {
	err := h.syncer.Archive(ctx, h.category, link.MainAccountID, entityID, link)
	if err != nil && domain.IsNotFound(err) {
		h.logger.Debug().
			Str("category", string(h.category)).
			Str("mainEntityId", entityID).
			Msg("Child entity already gone, dropping mapping")
		return h.syncer.DropStaleMapping(ctx, h.category, link.MainAccountID, link.ChildAccountID, entityID)
	}
	return err
}

// syncBatch full-syncs every entity in the batch. A stale mapping is dropped
// and the entity retried once within the batch; batch tasks have no single
// entity to convert to a create. Remaining failures are joined so a retry
// re-runs the whole batch; full syncs are idempotent.
func (h *CatalogHandler) syncBatch(ctx context.Context, task *domain.SyncTask, link *domain.ChildLink) error {
	var errs []error
	for _, entityID := range task.Payload.EntityIDs {
		err := h.syncOne(ctx, entityID, link)
		if err != nil && domain.IsNotFound(err) {
			// syncOne dropped the mapping; the rerun recreates the entity.
			err = h.syncOne(ctx, entityID, link)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s %s: %w", h.category, entityID, err))
		}
	}
	return errors.Join(errs...)
}

// resolveLink loads the active link for the task's target account and checks
// the payload's main account against it. A mismatch means the task predates a
// re-link and must not run.
func resolveLink(ctx context.Context, childLinks ports.ChildLinkRepository, task *domain.SyncTask) (*domain.ChildLink, error) {
	link, err := childLinks.GetByChild(ctx, task.AccountID)
	if err != nil {
		return nil, err
	}
	if link == nil {
		return nil, fmt.Errorf("no active link for account %s: %w", task.AccountID, domain.ErrSyncDisabled)
	}
	if task.Payload.MainAccountID == "" {
		return nil, fmt.Errorf("task %s has no main account id", task.ID)
	}
	if task.Payload.MainAccountID != link.MainAccountID {
		return nil, fmt.Errorf("task main account %s does not match link main %s", task.Payload.MainAccountID, link.MainAccountID)
	}
	return link, nil
}
