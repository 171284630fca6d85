package entity

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"moysklad-sync-layer/internal/domain"
)

// MongoWebhookLogDoc is the MongoDB representation of a webhook log. The
// collection carries a unique index on requestId; an insert conflict there is
// the idempotency rejection.
type MongoWebhookLogDoc struct {
	ID            primitive.ObjectID `bson:"_id,omitempty"`
	RequestID     string             `bson:"requestId"`
	AccountID     string             `bson:"accountId"`
	EntityType    string             `bson:"entityType"`
	Action        string             `bson:"action"`
	Payload       []byte             `bson:"payload"`
	ChangedFields []string           `bson:"changedFields,omitempty"`
	Status        string             `bson:"status"`
	Error         string             `bson:"error,omitempty"`
	CreatedAt     time.Time          `bson:"createdAt"`
	ProcessedAt   *time.Time         `bson:"processedAt,omitempty"`
	DurationMS    int64              `bson:"durationMs"`
}

// ToDomain converts the document to the domain model.
func (d *MongoWebhookLogDoc) ToDomain() *domain.WebhookLog {
	return &domain.WebhookLog{
		ID:            d.ID.Hex(),
		RequestID:     d.RequestID,
		AccountID:     d.AccountID,
		EntityType:    d.EntityType,
		Action:        domain.WebhookAction(d.Action),
		Payload:       d.Payload,
		ChangedFields: d.ChangedFields,
		Status:        domain.WebhookStatus(d.Status),
		Error:         d.Error,
		CreatedAt:     d.CreatedAt,
		ProcessedAt:   d.ProcessedAt,
		Duration:      time.Duration(d.DurationMS) * time.Millisecond,
	}
}

// MongoWebhookLogDocFromDomain converts the domain model to a document.
func MongoWebhookLogDocFromDomain(l *domain.WebhookLog) *MongoWebhookLogDoc {
	doc := &MongoWebhookLogDoc{
		RequestID:     l.RequestID,
		AccountID:     l.AccountID,
		EntityType:    l.EntityType,
		Action:        string(l.Action),
		Payload:       l.Payload,
		ChangedFields: l.ChangedFields,
		Status:        string(l.Status),
		Error:         l.Error,
		CreatedAt:     l.CreatedAt,
		ProcessedAt:   l.ProcessedAt,
		DurationMS:    l.Duration.Milliseconds(),
	}
	if l.ID != "" {
		if oid, err := primitive.ObjectIDFromHex(l.ID); err == nil {
			doc.ID = oid
		}
	}
	return doc
}

// MongoClassificationDoc embeds a classification snapshot in an update log.
type MongoClassificationDoc struct {
	Standard         []string `bson:"standard,omitempty"`
	Base             []string `bson:"base,omitempty"`
	Prices           []string `bson:"prices,omitempty"`
	Complex          []string `bson:"complex,omitempty"`
	Simple           []string `bson:"simple,omitempty"`
	CustomAttributes []string `bson:"customAttributes,omitempty"`
	CustomPriceTypes []string `bson:"customPriceTypes,omitempty"`
	HasComplexDeps   bool     `bson:"hasComplexDeps"`
	HasPrices        bool     `bson:"hasPrices"`
	HasBaseFields    bool     `bson:"hasBaseFields"`
}

// MongoUpdateLogDoc is the MongoDB representation of an entity update log.
type MongoUpdateLogDoc struct {
	ID             primitive.ObjectID      `bson:"_id,omitempty"`
	MainAccountID  string                  `bson:"mainAccountId"`
	ChildAccountID string                  `bson:"childAccountId"`
	MainEntityID   string                  `bson:"mainEntityId"`
	ChildEntityID  string                  `bson:"childEntityId"`
	Category       string                  `bson:"category"`
	Strategy       string                  `bson:"strategy"`
	ChangedFields  []string                `bson:"changedFields,omitempty"`
	Classification *MongoClassificationDoc `bson:"classification,omitempty"`
	AppliedFields  []string                `bson:"appliedFields,omitempty"`
	Status         string                  `bson:"status"`
	Error          string                  `bson:"error,omitempty"`
	DurationMS     int64                   `bson:"durationMs"`
	CreatedAt      time.Time               `bson:"createdAt"`
}

// ToDomain converts the document to the domain model.
func (d *MongoUpdateLogDoc) ToDomain() *domain.EntityUpdateLog {
	log := &domain.EntityUpdateLog{
		ID:             d.ID.Hex(),
		MainAccountID:  d.MainAccountID,
		ChildAccountID: d.ChildAccountID,
		MainEntityID:   d.MainEntityID,
		ChildEntityID:  d.ChildEntityID,
		Category:       domain.EntityCategory(d.Category),
		Strategy:       domain.StrategyKind(d.Strategy),
		ChangedFields:  d.ChangedFields,
		AppliedFields:  d.AppliedFields,
		Status:         domain.UpdateLogStatus(d.Status),
		Error:          d.Error,
		Duration:       time.Duration(d.DurationMS) * time.Millisecond,
		CreatedAt:      d.CreatedAt,
	}
	if d.Classification != nil {
		log.Classification = &domain.Classification{
			Standard:         d.Classification.Standard,
			Base:             d.Classification.Base,
			Prices:           d.Classification.Prices,
			Complex:          d.Classification.Complex,
			Simple:           d.Classification.Simple,
			CustomAttributes: d.Classification.CustomAttributes,
			CustomPriceTypes: d.Classification.CustomPriceTypes,
			HasComplexDeps:   d.Classification.HasComplexDeps,
			HasPrices:        d.Classification.HasPrices,
			HasBaseFields:    d.Classification.HasBaseFields,
		}
	}
	return log
}

// MongoUpdateLogDocFromDomain converts the domain model to a document.
func MongoUpdateLogDocFromDomain(l *domain.EntityUpdateLog) *MongoUpdateLogDoc {
	doc := &MongoUpdateLogDoc{
		MainAccountID:  l.MainAccountID,
		ChildAccountID: l.ChildAccountID,
		MainEntityID:   l.MainEntityID,
		ChildEntityID:  l.ChildEntityID,
		Category:       string(l.Category),
		Strategy:       string(l.Strategy),
		ChangedFields:  l.ChangedFields,
		AppliedFields:  l.AppliedFields,
		Status:         string(l.Status),
		Error:          l.Error,
		DurationMS:     l.Duration.Milliseconds(),
		CreatedAt:      l.CreatedAt,
	}
	if l.Classification != nil {
		doc.Classification = &MongoClassificationDoc{
			Standard:         l.Classification.Standard,
			Base:             l.Classification.Base,
			Prices:           l.Classification.Prices,
			Complex:          l.Classification.Complex,
			Simple:           l.Classification.Simple,
			CustomAttributes: l.Classification.CustomAttributes,
			CustomPriceTypes: l.Classification.CustomPriceTypes,
			HasComplexDeps:   l.Classification.HasComplexDeps,
			HasPrices:        l.Classification.HasPrices,
			HasBaseFields:    l.Classification.HasBaseFields,
		}
	}
	if l.ID != "" {
		if oid, err := primitive.ObjectIDFromHex(l.ID); err == nil {
			doc.ID = oid
		}
	}
	return doc
}

// MongoWebhookStatDoc is the MongoDB representation of a registration stat.
type MongoWebhookStatDoc struct {
	ID             primitive.ObjectID `bson:"_id,omitempty"`
	AccountID      string             `bson:"accountId"`
	EntityType     string             `bson:"entityType"`
	Action         string             `bson:"action"`
	RegistrationID string             `bson:"registrationId,omitempty"`
	Active         bool               `bson:"active"`
	ReceivedCount  int64              `bson:"receivedCount"`
	FailedCount    int64              `bson:"failedCount"`
	FailedChecks   int                `bson:"failedChecks"`
	LastCheckAt    *time.Time         `bson:"lastCheckAt,omitempty"`
	LastSuccessAt  *time.Time         `bson:"lastSuccessAt,omitempty"`
	LastError      string             `bson:"lastError,omitempty"`
	CreatedAt      time.Time          `bson:"createdAt"`
	UpdatedAt      time.Time          `bson:"updatedAt"`
}

// ToDomain converts the document to the domain model.
func (d *MongoWebhookStatDoc) ToDomain() *domain.WebhookStat {
	return &domain.WebhookStat{
		ID:             d.ID.Hex(),
		AccountID:      d.AccountID,
		EntityType:     d.EntityType,
		Action:         domain.WebhookAction(d.Action),
		RegistrationID: d.RegistrationID,
		Active:         d.Active,
		ReceivedCount:  d.ReceivedCount,
		FailedCount:    d.FailedCount,
		FailedChecks:   d.FailedChecks,
		LastCheckAt:    d.LastCheckAt,
		LastSuccessAt:  d.LastSuccessAt,
		LastError:      d.LastError,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

// MongoWebhookStatDocFromDomain converts the domain model to a document.
func MongoWebhookStatDocFromDomain(s *domain.WebhookStat) *MongoWebhookStatDoc {
	doc := &MongoWebhookStatDoc{
		AccountID:      s.AccountID,
		EntityType:     s.EntityType,
		Action:         string(s.Action),
		RegistrationID: s.RegistrationID,
		Active:         s.Active,
		ReceivedCount:  s.ReceivedCount,
		FailedCount:    s.FailedCount,
		FailedChecks:   s.FailedChecks,
		LastCheckAt:    s.LastCheckAt,
		LastSuccessAt:  s.LastSuccessAt,
		LastError:      s.LastError,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
	if s.ID != "" {
		if oid, err := primitive.ObjectIDFromHex(s.ID); err == nil {
			doc.ID = oid
		}
	}
	return doc
}
