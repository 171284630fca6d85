package entity

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"moysklad-sync-layer/internal/domain"
)

// MongoEntityMappingDoc is the MongoDB representation of an entity mapping.
type MongoEntityMappingDoc struct {
	ID             primitive.ObjectID `bson:"_id,omitempty"`
	MainAccountID  string             `bson:"mainAccountId"`
	ChildAccountID string             `bson:"childAccountId"`
	Category       string             `bson:"category"`
	MainEntityID   string             `bson:"mainEntityId"`
	ChildEntityID  string             `bson:"childEntityId"`
	MatchField     string             `bson:"matchField,omitempty"`
	MatchValue     string             `bson:"matchValue,omitempty"`
	CreatedAt      time.Time          `bson:"createdAt"`
}

// ToDomain converts the document to the domain model.
func (d *MongoEntityMappingDoc) ToDomain() *domain.EntityMapping {
	return &domain.EntityMapping{
		ID:             d.ID.Hex(),
		MainAccountID:  d.MainAccountID,
		ChildAccountID: d.ChildAccountID,
		Category:       domain.EntityCategory(d.Category),
		MainEntityID:   d.MainEntityID,
		ChildEntityID:  d.ChildEntityID,
		MatchField:     d.MatchField,
		MatchValue:     d.MatchValue,
		CreatedAt:      d.CreatedAt,
	}
}

// MongoEntityMappingDocFromDomain converts the domain model to a document.
func MongoEntityMappingDocFromDomain(m *domain.EntityMapping) *MongoEntityMappingDoc {
	doc := &MongoEntityMappingDoc{
		MainAccountID:  m.MainAccountID,
		ChildAccountID: m.ChildAccountID,
		Category:       string(m.Category),
		MainEntityID:   m.MainEntityID,
		ChildEntityID:  m.ChildEntityID,
		MatchField:     m.MatchField,
		MatchValue:     m.MatchValue,
		CreatedAt:      m.CreatedAt,
	}
	if m.ID != "" {
		if oid, err := primitive.ObjectIDFromHex(m.ID); err == nil {
			doc.ID = oid
		}
	}
	return doc
}

// MongoNameMappingDoc is the MongoDB representation of a name-scoped mapping.
type MongoNameMappingDoc struct {
	ID             primitive.ObjectID `bson:"_id,omitempty"`
	MainAccountID  string             `bson:"mainAccountId"`
	ChildAccountID string             `bson:"childAccountId"`
	Kind           string             `bson:"kind"`
	Name           string             `bson:"name"`
	MainID         string             `bson:"mainId"`
	ChildID        string             `bson:"childId"`
	CreatedAt      time.Time          `bson:"createdAt"`
}

// ToDomain converts the document to the domain model.
func (d *MongoNameMappingDoc) ToDomain() *domain.NameMapping {
	return &domain.NameMapping{
		ID:             d.ID.Hex(),
		MainAccountID:  d.MainAccountID,
		ChildAccountID: d.ChildAccountID,
		Kind:           domain.NameMappingKind(d.Kind),
		Name:           d.Name,
		MainID:         d.MainID,
		ChildID:        d.ChildID,
		CreatedAt:      d.CreatedAt,
	}
}

// MongoNameMappingDocFromDomain converts the domain model to a document.
func MongoNameMappingDocFromDomain(m *domain.NameMapping) *MongoNameMappingDoc {
	doc := &MongoNameMappingDoc{
		MainAccountID:  m.MainAccountID,
		ChildAccountID: m.ChildAccountID,
		Kind:           string(m.Kind),
		Name:           m.Name,
		MainID:         m.MainID,
		ChildID:        m.ChildID,
		CreatedAt:      m.CreatedAt,
	}
	if m.ID != "" {
		if oid, err := primitive.ObjectIDFromHex(m.ID); err == nil {
			doc.ID = oid
		}
	}
	return doc
}
