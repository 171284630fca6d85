package domain

// EntityCategory is the closed set of platform record kinds the sync layer
// handles. The string values match the platform's meta.type names where one
// exists.
type EntityCategory string

const (
	CategoryProduct      EntityCategory = "product"
	CategoryVariant      EntityCategory = "variant"
	CategoryBundle       EntityCategory = "bundle"
	CategoryService      EntityCategory = "service"
	CategoryFolder       EntityCategory = "productfolder"
	CategoryOrder        EntityCategory = "customerorder"
	CategoryImage        EntityCategory = "image"
	CategoryBatchVariant EntityCategory = "batch_variant"
	CategoryWebhookCheck EntityCategory = "webhook_check"
)

// Categories lists every handled category; the task dispatcher registers one
// handler per entry.
func Categories() []EntityCategory {
	return []EntityCategory{
		CategoryProduct,
		CategoryVariant,
		CategoryBundle,
		CategoryService,
		CategoryFolder,
		CategoryOrder,
		CategoryImage,
		CategoryBatchVariant,
		CategoryWebhookCheck,
	}
}

// CategoryFromType maps a platform meta.type to its category. The second
// return is false for types the sync layer does not handle.
func CategoryFromType(metaType string) (EntityCategory, bool) {
	switch EntityCategory(metaType) {
	case CategoryProduct, CategoryVariant, CategoryBundle, CategoryService,
		CategoryFolder, CategoryOrder, CategoryImage:
		return EntityCategory(metaType), true
	default:
		return "", false
	}
}

// CatalogCategory reports whether the category flows main -> child.
// Orders flow the other way.
func (c EntityCategory) CatalogCategory() bool {
	switch c {
	case CategoryProduct, CategoryVariant, CategoryBundle, CategoryService, CategoryFolder:
		return true
	default:
		return false
	}
}
