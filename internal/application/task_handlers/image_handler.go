package task_handlers

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"

	"github.com/rs/zerolog"

	"moysklad-sync-layer/internal/domain"
	"moysklad-sync-layer/internal/ports"
)

// ImageHandler mirrors a product's image set onto the mapped child product.
// The task's ParentID is the main-account product; individual image ids are
// not tracked, the whole set converges on every run.
type ImageHandler struct {
	childLinks     ports.ChildLinkRepository
	entityMappings ports.EntityMappingRepository
	clients        ports.ClientPool
	logger         zerolog.Logger
}

// NewImageHandler creates the handler.
func NewImageHandler(childLinks ports.ChildLinkRepository, entityMappings ports.EntityMappingRepository, clients ports.ClientPool, logger zerolog.Logger) *ImageHandler {
	return &ImageHandler{
		childLinks:     childLinks,
		entityMappings: entityMappings,
		clients:        clients,
		logger:         logger,
	}
}

func (h *ImageHandler) Category() domain.EntityCategory {
	return domain.CategoryImage
}

func (h *ImageHandler) Handle(ctx context.Context, task *domain.SyncTask) error {
	link, err := resolveLink(ctx, h.childLinks, task)
	if err != nil {
		return err
	}
	if !link.Config.SyncImages {
		return nil
	}
	parentID := task.Payload.ParentID
	if parentID == "" {
		return fmt.Errorf("image task %s has no parent product id", task.ID)
	}

	mapping, err := h.entityMappings.Get(ctx, link.MainAccountID, link.ChildAccountID, domain.CategoryProduct, parentID)
	if err != nil {
		return err
	}
	if mapping == nil {
		// The product task will land first; retry picks the images up after.
		return fmt.Errorf("product %s: %w", parentID, domain.ErrMappingMissing)
	}

	mainClient, err := h.clients.GetClient(ctx, link.MainAccountID)
	if err != nil {
		return err
	}
	childClient, err := h.clients.GetClient(ctx, link.ChildAccountID)
	if err != nil {
		return err
	}

	mainImages, err := listImages(ctx, mainClient, parentID)
	if err != nil {
		return fmt.Errorf("failed to list main product images: %w", err)
	}
	childImages, err := listImages(ctx, childClient, mapping.ChildEntityID)
	if err != nil {
		return fmt.Errorf("failed to list child product images: %w", err)
	}

	var errs []error
	for filename, image := range mainImages {
		if _, exists := childImages[filename]; exists {
			continue
		}
		if err := h.copyImage(ctx, mainClient, childClient, mapping.ChildEntityID, filename, image); err != nil {
			errs = append(errs, fmt.Errorf("image %s: %w", filename, err))
		}
	}
	for filename, image := range childImages {
		if _, exists := mainImages[filename]; exists {
			continue
		}
		imageID := imageRowID(image)
		if imageID == "" {
			continue
		}
		if err := childClient.Delete(ctx, fmt.Sprintf("/entity/product/%s/images/%s", mapping.ChildEntityID, imageID)); err != nil {
			errs = append(errs, fmt.Errorf("delete image %s: %w", filename, err))
		}
	}
	return errors.Join(errs...)
}

func (h *ImageHandler) copyImage(ctx context.Context, mainClient, childClient ports.PlatformClient, childProductID, filename string, image map[string]any) error {
	downloadHref := downloadHref(image)
	if downloadHref == "" {
		return fmt.Errorf("no download href")
	}
	content, err := mainClient.Download(ctx, downloadHref)
	if err != nil {
		return fmt.Errorf("download failed: %w", err)
	}
	body := map[string]any{
		"filename": filename,
		"content":  base64.StdEncoding.EncodeToString(content),
	}
	if _, err := childClient.Post(ctx, fmt.Sprintf("/entity/product/%s/images", childProductID), body); err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}
	return nil
}

func listImages(ctx context.Context, client ports.PlatformClient, productID string) (map[string]map[string]any, error) {
	query := url.Values{}
	query.Set("limit", "100")
	page, err := client.Get(ctx, fmt.Sprintf("/entity/product/%s/images", productID), query)
	if err != nil {
		return nil, err
	}
	images := map[string]map[string]any{}
	rows, _ := page["rows"].([]any)
	for _, item := range rows {
		row, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if filename, ok := row["filename"].(string); ok && filename != "" {
			images[filename] = row
		}
	}
	return images, nil
}

func downloadHref(image map[string]any) string {
	meta, ok := image["meta"].(map[string]any)
	if !ok {
		return ""
	}
	href, _ := meta["downloadHref"].(string)
	return href
}

func imageRowID(image map[string]any) string {
	meta, ok := image["meta"].(map[string]any)
	if !ok {
		return ""
	}
	href, _ := meta["href"].(string)
	return (domain.Meta{Href: href}).EntityID()
}
