package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"moysklad-sync-layer/internal/domain"
	"moysklad-sync-layer/internal/infrastructure/repository/entity"
	"moysklad-sync-layer/internal/ports"
)

// MongoUpdateLogRepository implements UpdateLogRepository using MongoDB.
type MongoUpdateLogRepository struct {
	collection *mongo.Collection
}

// NewMongoUpdateLogRepository creates a new MongoDB update log repository.
func NewMongoUpdateLogRepository(db *mongo.Database) ports.UpdateLogRepository {
	return &MongoUpdateLogRepository{
		collection: db.Collection("entity_update_logs"),
	}
}

// Insert persists a new audit record.
func (r *MongoUpdateLogRepository) Insert(ctx context.Context, log *domain.EntityUpdateLog) error {
	doc := entity.MongoUpdateLogDocFromDomain(log)
	doc.ID = primitive.NewObjectID()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}

	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to insert update log: %w", err)
	}
	log.ID = doc.ID.Hex()
	log.CreatedAt = doc.CreatedAt
	return nil
}

// Update finishes the audit record with its outcome.
func (r *MongoUpdateLogRepository) Update(ctx context.Context, log *domain.EntityUpdateLog) error {
	oid, err := primitive.ObjectIDFromHex(log.ID)
	if err != nil {
		return fmt.Errorf("invalid update log id: %w", err)
	}

	update := bson.M{"$set": bson.M{
		"status":        string(log.Status),
		"appliedFields": log.AppliedFields,
		"error":         log.Error,
		"durationMs":    log.Duration.Milliseconds(),
	}}
	if _, err := r.collection.UpdateOne(ctx, bson.M{"_id": oid}, update); err != nil {
		return fmt.Errorf("failed to update update log: %w", err)
	}
	return nil
}
