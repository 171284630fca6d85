package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"moysklad-sync-layer/internal/domain"
	"moysklad-sync-layer/internal/infrastructure/repository/entity"
	"moysklad-sync-layer/internal/ports"
)

// MongoEntityMappingRepository implements EntityMappingRepository using MongoDB.
type MongoEntityMappingRepository struct {
	collection *mongo.Collection
}

// NewMongoEntityMappingRepository creates a new MongoDB entity mapping repository.
func NewMongoEntityMappingRepository(db *mongo.Database) ports.EntityMappingRepository {
	return &MongoEntityMappingRepository{
		collection: db.Collection("entity_mappings"),
	}
}

// Get retrieves a mapping by its unique key.
func (r *MongoEntityMappingRepository) Get(ctx context.Context, mainAccountID, childAccountID string, category domain.EntityCategory, mainEntityID string) (*domain.EntityMapping, error) {
	var doc entity.MongoEntityMappingDoc
	filter := bson.M{
		"mainAccountId":  mainAccountID,
		"childAccountId": childAccountID,
		"category":       string(category),
		"mainEntityId":   mainEntityID,
	}
	err := r.collection.FindOne(ctx, filter).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entity mapping: %w", err)
	}
	return doc.ToDomain(), nil
}

// GetByChildEntity is the reverse lookup used when translating child-side
// references back to the main account.
func (r *MongoEntityMappingRepository) GetByChildEntity(ctx context.Context, mainAccountID, childAccountID string, category domain.EntityCategory, childEntityID string) (*domain.EntityMapping, error) {
	var doc entity.MongoEntityMappingDoc
	filter := bson.M{
		"mainAccountId":  mainAccountID,
		"childAccountId": childAccountID,
		"category":       string(category),
		"childEntityId":  childEntityID,
	}
	err := r.collection.FindOne(ctx, filter).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entity mapping by child entity: %w", err)
	}
	return doc.ToDomain(), nil
}

// Save upserts a mapping by its unique key.
func (r *MongoEntityMappingRepository) Save(ctx context.Context, mapping *domain.EntityMapping) error {
	doc := entity.MongoEntityMappingDocFromDomain(mapping)
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}

	opts := options.Update().SetUpsert(true)
	filter := bson.M{
		"mainAccountId":  mapping.MainAccountID,
		"childAccountId": mapping.ChildAccountID,
		"category":       string(mapping.Category),
		"mainEntityId":   mapping.MainEntityID,
	}
	update := bson.M{"$set": bson.M{
		"childEntityId": doc.ChildEntityID,
		"matchField":    doc.MatchField,
		"matchValue":    doc.MatchValue,
	}, "$setOnInsert": bson.M{
		"mainAccountId":  doc.MainAccountID,
		"childAccountId": doc.ChildAccountID,
		"category":       doc.Category,
		"mainEntityId":   doc.MainEntityID,
		"createdAt":      doc.CreatedAt,
	}}

	if _, err := r.collection.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to save entity mapping: %w", err)
	}
	return nil
}

// Delete removes a stale mapping so the entity is recreated on next sync.
func (r *MongoEntityMappingRepository) Delete(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("invalid mapping id: %w", err)
	}
	if _, err := r.collection.DeleteOne(ctx, bson.M{"_id": oid}); err != nil {
		return fmt.Errorf("failed to delete entity mapping: %w", err)
	}
	return nil
}

// MongoNameMappingRepository implements NameMappingRepository using MongoDB.
type MongoNameMappingRepository struct {
	collection *mongo.Collection
}

// NewMongoNameMappingRepository creates a new MongoDB name mapping repository.
func NewMongoNameMappingRepository(db *mongo.Database) ports.NameMappingRepository {
	return &MongoNameMappingRepository{
		collection: db.Collection("name_mappings"),
	}
}

// GetByName retrieves a mapping by its unique (main, child, kind, name) key.
func (r *MongoNameMappingRepository) GetByName(ctx context.Context, mainAccountID, childAccountID string, kind domain.NameMappingKind, name string) (*domain.NameMapping, error) {
	var doc entity.MongoNameMappingDoc
	filter := bson.M{
		"mainAccountId":  mainAccountID,
		"childAccountId": childAccountID,
		"kind":           string(kind),
		"name":           name,
	}
	err := r.collection.FindOne(ctx, filter).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get name mapping: %w", err)
	}
	return doc.ToDomain(), nil
}

// ListByKind retrieves all mappings of one kind for a link.
func (r *MongoNameMappingRepository) ListByKind(ctx context.Context, mainAccountID, childAccountID string, kind domain.NameMappingKind) ([]*domain.NameMapping, error) {
	filter := bson.M{
		"mainAccountId":  mainAccountID,
		"childAccountId": childAccountID,
		"kind":           string(kind),
	}
	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list name mappings: %w", err)
	}
	defer cursor.Close(ctx)

	var mappings []*domain.NameMapping
	for cursor.Next(ctx) {
		var doc entity.MongoNameMappingDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode name mapping: %w", err)
		}
		mappings = append(mappings, doc.ToDomain())
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return mappings, nil
}

// Save upserts a mapping by its unique key.
func (r *MongoNameMappingRepository) Save(ctx context.Context, mapping *domain.NameMapping) error {
	doc := entity.MongoNameMappingDocFromDomain(mapping)
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}

	opts := options.Update().SetUpsert(true)
	filter := bson.M{
		"mainAccountId":  mapping.MainAccountID,
		"childAccountId": mapping.ChildAccountID,
		"kind":           string(mapping.Kind),
		"name":           mapping.Name,
	}
	update := bson.M{"$set": bson.M{
		"mainId":  doc.MainID,
		"childId": doc.ChildID,
	}, "$setOnInsert": bson.M{
		"mainAccountId":  doc.MainAccountID,
		"childAccountId": doc.ChildAccountID,
		"kind":           doc.Kind,
		"name":           doc.Name,
		"createdAt":      doc.CreatedAt,
	}}

	if _, err := r.collection.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to save name mapping: %w", err)
	}
	return nil
}
