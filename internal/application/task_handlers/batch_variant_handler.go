package task_handlers

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/rs/zerolog"

	"moysklad-sync-layer/internal/application"
	"moysklad-sync-layer/internal/domain"
	"moysklad-sync-layer/internal/ports"
)

// variantPageSize bounds one page when the handler resolves the variant set
// itself.
const variantPageSize = 100

// BatchVariantHandler syncs the variants under one parent product in a
// single task. Emitted when a product-wide change has to cascade into its
// variants; the parent is mapped first so variant creates can attach to it.
// When the producer did not enumerate the variants, the handler resolves
// them from the main account by parent product.
type BatchVariantHandler struct {
	childLinks ports.ChildLinkRepository
	syncer     *application.EntitySyncer
	clients    ports.ClientPool
	logger     zerolog.Logger
}

// NewBatchVariantHandler creates the handler.
func NewBatchVariantHandler(childLinks ports.ChildLinkRepository, syncer *application.EntitySyncer, clients ports.ClientPool, logger zerolog.Logger) *BatchVariantHandler {
	return &BatchVariantHandler{
		childLinks: childLinks,
		syncer:     syncer,
		clients:    clients,
		logger:     logger,
	}
}

func (h *BatchVariantHandler) Category() domain.EntityCategory {
	return domain.CategoryBatchVariant
}

func (h *BatchVariantHandler) Handle(ctx context.Context, task *domain.SyncTask) error {
	link, err := resolveLink(ctx, h.childLinks, task)
	if err != nil {
		return err
	}
	if !link.Config.SyncVariants {
		return nil
	}
	if task.Payload.ParentID == "" {
		return fmt.Errorf("batch variant task %s has no parent product id", task.ID)
	}

	if _, err := h.syncer.EnsureMapping(ctx, domain.CategoryProduct, link.MainAccountID, task.Payload.ParentID, link); err != nil {
		return fmt.Errorf("parent product %s: %w", task.Payload.ParentID, err)
	}

	variantIDs := task.Payload.EntityIDs
	if len(variantIDs) == 0 {
		variantIDs, err = h.listVariants(ctx, link.MainAccountID, task.Payload.ParentID)
		if err != nil {
			return fmt.Errorf("failed to list variants of %s: %w", task.Payload.ParentID, err)
		}
	}

	var errs []error
	for _, variantID := range variantIDs {
		if _, err := h.syncer.SyncFull(ctx, domain.CategoryVariant, link.MainAccountID, variantID, link); err != nil {
			errs = append(errs, fmt.Errorf("variant %s: %w", variantID, err))
		}
	}
	return errors.Join(errs...)
}

func (h *BatchVariantHandler) listVariants(ctx context.Context, mainAccountID, parentID string) ([]string, error) {
	client, err := h.clients.GetClient(ctx, mainAccountID)
	if err != nil {
		return nil, err
	}

	var ids []string
	for offset := 0; ; offset += variantPageSize {
		query := url.Values{}
		query.Set("filter", "productid="+parentID)
		query.Set("limit", strconv.Itoa(variantPageSize))
		query.Set("offset", strconv.Itoa(offset))
		page, err := client.Get(ctx, "/entity/variant", query)
		if err != nil {
			return nil, err
		}
		rows, _ := page["rows"].([]any)
		for _, item := range rows {
			row, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if id := rowEntityID(row); id != "" {
				ids = append(ids, id)
			}
		}
		if len(rows) < variantPageSize {
			break
		}
	}
	return ids, nil
}

func rowEntityID(row map[string]any) string {
	if id, ok := row["id"].(string); ok && id != "" {
		return id
	}
	meta, ok := row["meta"].(map[string]any)
	if !ok {
		return ""
	}
	href, _ := meta["href"].(string)
	return (domain.Meta{Href: href}).EntityID()
}
