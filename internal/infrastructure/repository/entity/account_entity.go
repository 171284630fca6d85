package entity

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"moysklad-sync-layer/internal/domain"
)

// MongoAccountDoc is the MongoDB representation of a platform account.
type MongoAccountDoc struct {
	ID             primitive.ObjectID `bson:"_id,omitempty"`
	AccountID      string             `bson:"accountId"`
	Role           string             `bson:"role"`
	Status         string             `bson:"status"`
	EncryptedToken string             `bson:"encryptedToken"`
	CreatedAt      time.Time          `bson:"createdAt"`
	UpdatedAt      time.Time          `bson:"updatedAt"`
}

// ToDomain converts the document to the domain model.
func (d *MongoAccountDoc) ToDomain() *domain.Account {
	return &domain.Account{
		ID:             d.ID.Hex(),
		AccountID:      d.AccountID,
		Role:           domain.AccountRole(d.Role),
		Status:         domain.AccountStatus(d.Status),
		EncryptedToken: d.EncryptedToken,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

// MongoAccountDocFromDomain converts the domain model to a document.
func MongoAccountDocFromDomain(a *domain.Account) *MongoAccountDoc {
	doc := &MongoAccountDoc{
		AccountID:      a.AccountID,
		Role:           string(a.Role),
		Status:         string(a.Status),
		EncryptedToken: a.EncryptedToken,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
	if a.ID != "" {
		if oid, err := primitive.ObjectIDFromHex(a.ID); err == nil {
			doc.ID = oid
		}
	}
	return doc
}

// MongoPriceTypeLinkDoc is one price-type correspondence inside a sync config.
type MongoPriceTypeLinkDoc struct {
	Name    string `bson:"name"`
	MainID  string `bson:"mainId"`
	ChildID string `bson:"childId"`
}

// MongoOrderDefaultsDoc holds the target-document defaults for order creation.
type MongoOrderDefaultsDoc struct {
	Organization string `bson:"organization,omitempty"`
	Store        string `bson:"store,omitempty"`
	Project      string `bson:"project,omitempty"`
	Owner        string `bson:"owner,omitempty"`
	State        string `bson:"state,omitempty"`
	SalesChannel string `bson:"salesChannel,omitempty"`
}

// MongoSyncConfigDoc is the embedded per-link sync configuration.
type MongoSyncConfigDoc struct {
	SyncProducts bool `bson:"syncProducts"`
	SyncVariants bool `bson:"syncVariants"`
	SyncBundles  bool `bson:"syncBundles"`
	SyncServices bool `bson:"syncServices"`
	SyncImages   bool `bson:"syncImages"`
	SyncOrders   bool `bson:"syncOrders"`
	SyncPrices   bool `bson:"syncPrices"`

	AttributeAllowList []string                `bson:"attributeAllowList,omitempty"`
	PriceTypes         []MongoPriceTypeLinkDoc `bson:"priceTypes,omitempty"`
	ProductFilters     []string                `bson:"productFilters,omitempty"`
	OrderDefaults      MongoOrderDefaultsDoc   `bson:"orderDefaults"`
}

// MongoChildLinkDoc is one main->child relationship with its config.
type MongoChildLinkDoc struct {
	ID             primitive.ObjectID `bson:"_id,omitempty"`
	MainAccountID  string             `bson:"mainAccountId"`
	ChildAccountID string             `bson:"childAccountId"`
	Active         bool               `bson:"active"`
	Config         MongoSyncConfigDoc `bson:"config"`
	CreatedAt      time.Time          `bson:"createdAt"`
	UpdatedAt      time.Time          `bson:"updatedAt"`
}

// ToDomain converts the document to the domain model.
func (d *MongoChildLinkDoc) ToDomain() *domain.ChildLink {
	cfg := domain.SyncConfig{
		SyncProducts:       d.Config.SyncProducts,
		SyncVariants:       d.Config.SyncVariants,
		SyncBundles:        d.Config.SyncBundles,
		SyncServices:       d.Config.SyncServices,
		SyncImages:         d.Config.SyncImages,
		SyncOrders:         d.Config.SyncOrders,
		SyncPrices:         d.Config.SyncPrices,
		AttributeAllowList: d.Config.AttributeAllowList,
		ProductFilters:     d.Config.ProductFilters,
		OrderDefaults: domain.OrderDefaults{
			Organization: d.Config.OrderDefaults.Organization,
			Store:        d.Config.OrderDefaults.Store,
			Project:      d.Config.OrderDefaults.Project,
			Owner:        d.Config.OrderDefaults.Owner,
			State:        d.Config.OrderDefaults.State,
			SalesChannel: d.Config.OrderDefaults.SalesChannel,
		},
	}
	for _, pt := range d.Config.PriceTypes {
		cfg.PriceTypes = append(cfg.PriceTypes, domain.PriceTypeLink{
			Name:    pt.Name,
			MainID:  pt.MainID,
			ChildID: pt.ChildID,
		})
	}

	return &domain.ChildLink{
		ID:             d.ID.Hex(),
		MainAccountID:  d.MainAccountID,
		ChildAccountID: d.ChildAccountID,
		Active:         d.Active,
		Config:         cfg,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

// MongoChildLinkDocFromDomain converts the domain model to a document.
func MongoChildLinkDocFromDomain(l *domain.ChildLink) *MongoChildLinkDoc {
	doc := &MongoChildLinkDoc{
		MainAccountID:  l.MainAccountID,
		ChildAccountID: l.ChildAccountID,
		Active:         l.Active,
		Config: MongoSyncConfigDoc{
			SyncProducts:       l.Config.SyncProducts,
			SyncVariants:       l.Config.SyncVariants,
			SyncBundles:        l.Config.SyncBundles,
			SyncServices:       l.Config.SyncServices,
			SyncImages:         l.Config.SyncImages,
			SyncOrders:         l.Config.SyncOrders,
			SyncPrices:         l.Config.SyncPrices,
			AttributeAllowList: l.Config.AttributeAllowList,
			ProductFilters:     l.Config.ProductFilters,
			OrderDefaults: MongoOrderDefaultsDoc{
				Organization: l.Config.OrderDefaults.Organization,
				Store:        l.Config.OrderDefaults.Store,
				Project:      l.Config.OrderDefaults.Project,
				Owner:        l.Config.OrderDefaults.Owner,
				State:        l.Config.OrderDefaults.State,
				SalesChannel: l.Config.OrderDefaults.SalesChannel,
			},
		},
		CreatedAt: l.CreatedAt,
		UpdatedAt: l.UpdatedAt,
	}
	for _, pt := range l.Config.PriceTypes {
		doc.Config.PriceTypes = append(doc.Config.PriceTypes, MongoPriceTypeLinkDoc{
			Name:    pt.Name,
			MainID:  pt.MainID,
			ChildID: pt.ChildID,
		})
	}
	if l.ID != "" {
		if oid, err := primitive.ObjectIDFromHex(l.ID); err == nil {
			doc.ID = oid
		}
	}
	return doc
}
