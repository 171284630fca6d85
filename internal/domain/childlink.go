package domain

import "time"

// ChildLink is the directed relationship from one main account to one child
// account. A child account is linked to at most one active main account at a
// time; the per-link sync configuration lives on the link itself.
type ChildLink struct {
	ID             string     `json:"id"`
	MainAccountID  string     `json:"main_account_id"`
	ChildAccountID string     `json:"child_account_id"`
	Active         bool       `json:"active"`
	Config         SyncConfig `json:"config"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// PriceTypeLink pairs a main-account custom price type with its child-account
// equivalent. The name is what webhooks report; the ids are what the API needs.
type PriceTypeLink struct {
	Name        string `json:"name"`
	MainID      string `json:"main_id"`
	ChildID     string `json:"child_id"`
}

// OrderDefaults are the target-document defaults applied when an order is
// recreated on the main account. All values are platform entity hrefs.
type OrderDefaults struct {
	Organization string `json:"organization"`
	Store        string `json:"store"`
	Project      string `json:"project"`
	Owner        string `json:"owner"`
	State        string `json:"state"`
	SalesChannel string `json:"sales_channel"`
}

// SyncConfig holds the per-link toggles and translation lists.
// An empty AttributeAllowList means "sync all attributes"; an empty
// PriceTypes list means no custom price types are propagated.
type SyncConfig struct {
	SyncProducts bool `json:"sync_products"`
	SyncVariants bool `json:"sync_variants"`
	SyncBundles  bool `json:"sync_bundles"`
	SyncServices bool `json:"sync_services"`
	SyncImages   bool `json:"sync_images"`
	SyncOrders   bool `json:"sync_orders"`
	SyncPrices   bool `json:"sync_prices"`

	AttributeAllowList []string        `json:"attribute_allow_list"`
	PriceTypes         []PriceTypeLink `json:"price_types"`
	ProductFilters     []string        `json:"product_filters"`
	OrderDefaults      OrderDefaults   `json:"order_defaults"`
}

// CategoryEnabled reports whether the given entity category is switched on
// for this link.
func (c SyncConfig) CategoryEnabled(category EntityCategory) bool {
	switch category {
	case CategoryProduct, CategoryFolder:
		return c.SyncProducts
	case CategoryVariant, CategoryBatchVariant:
		return c.SyncVariants
	case CategoryBundle:
		return c.SyncBundles
	case CategoryService:
		return c.SyncServices
	case CategoryImage:
		return c.SyncImages
	case CategoryOrder:
		return c.SyncOrders
	default:
		return false
	}
}

// PriceTypeByName returns the configured price-type correspondence for a
// custom price-type name reported by a webhook.
func (c SyncConfig) PriceTypeByName(name string) (PriceTypeLink, bool) {
	for _, pt := range c.PriceTypes {
		if pt.Name == name {
			return pt, true
		}
	}
	return PriceTypeLink{}, false
}

// AttributeAllowed reports whether the attribute with the given main-account
// id passes the allow-list. An empty list allows everything.
func (c SyncConfig) AttributeAllowed(mainID string) bool {
	if len(c.AttributeAllowList) == 0 {
		return true
	}
	for _, id := range c.AttributeAllowList {
		if id == mainID {
			return true
		}
	}
	return false
}
