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

// MongoWebhookLogRepository implements WebhookLogRepository using MongoDB.
// The unique index on requestId enforces at-most-once acceptance; the insert
// races rather than read-then-write so concurrent duplicates cannot slip
// through.
type MongoWebhookLogRepository struct {
	collection *mongo.Collection
}

// NewMongoWebhookLogRepository creates a new MongoDB webhook log repository.
func NewMongoWebhookLogRepository(db *mongo.Database) ports.WebhookLogRepository {
	return &MongoWebhookLogRepository{
		collection: db.Collection("webhook_logs"),
	}
}

// Insert persists a new log. Returns domain.ErrDuplicateRequest when the
// request id is already recorded.
func (r *MongoWebhookLogRepository) Insert(ctx context.Context, log *domain.WebhookLog) error {
	doc := entity.MongoWebhookLogDocFromDomain(log)
	doc.ID = primitive.NewObjectID()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}

	_, err := r.collection.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return domain.ErrDuplicateRequest
	}
	if err != nil {
		return fmt.Errorf("failed to insert webhook log: %w", err)
	}

	log.ID = doc.ID.Hex()
	log.CreatedAt = doc.CreatedAt
	return nil
}

// Update writes the log's processing status and audit fields.
func (r *MongoWebhookLogRepository) Update(ctx context.Context, log *domain.WebhookLog) error {
	oid, err := primitive.ObjectIDFromHex(log.ID)
	if err != nil {
		return fmt.Errorf("invalid webhook log id: %w", err)
	}

	update := bson.M{"$set": bson.M{
		"status":      string(log.Status),
		"error":       log.Error,
		"processedAt": log.ProcessedAt,
		"durationMs":  log.Duration.Milliseconds(),
	}}
	if _, err := r.collection.UpdateOne(ctx, bson.M{"_id": oid}, update); err != nil {
		return fmt.Errorf("failed to update webhook log: %w", err)
	}
	return nil
}

// GetByRequestID retrieves a log by its idempotency key.
func (r *MongoWebhookLogRepository) GetByRequestID(ctx context.Context, requestID string) (*domain.WebhookLog, error) {
	var doc entity.MongoWebhookLogDoc
	err := r.collection.FindOne(ctx, bson.M{"requestId": requestID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get webhook log: %w", err)
	}
	return doc.ToDomain(), nil
}

// CountSince counts logs of one status for an account after the given time.
func (r *MongoWebhookLogRepository) CountSince(ctx context.Context, accountID string, status domain.WebhookStatus, since time.Time) (int64, error) {
	filter := bson.M{
		"accountId": accountID,
		"status":    string(status),
		"createdAt": bson.M{"$gte": since},
	}
	count, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to count webhook logs: %w", err)
	}
	return count, nil
}

// CountAllSince counts all logs for an account after the given time.
func (r *MongoWebhookLogRepository) CountAllSince(ctx context.Context, accountID string, since time.Time) (int64, error) {
	filter := bson.M{
		"accountId": accountID,
		"createdAt": bson.M{"$gte": since},
	}
	count, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to count webhook logs: %w", err)
	}
	return count, nil
}

// MongoWebhookStatRepository implements WebhookStatRepository using MongoDB.
type MongoWebhookStatRepository struct {
	collection *mongo.Collection
}

// NewMongoWebhookStatRepository creates a new MongoDB webhook stat repository.
func NewMongoWebhookStatRepository(db *mongo.Database) ports.WebhookStatRepository {
	return &MongoWebhookStatRepository{
		collection: db.Collection("webhook_stats"),
	}
}

// Get retrieves the stat for one (account, entity type, action).
func (r *MongoWebhookStatRepository) Get(ctx context.Context, accountID, entityType string, action domain.WebhookAction) (*domain.WebhookStat, error) {
	var doc entity.MongoWebhookStatDoc
	filter := bson.M{
		"accountId":  accountID,
		"entityType": entityType,
		"action":     string(action),
	}
	err := r.collection.FindOne(ctx, filter).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get webhook stat: %w", err)
	}
	return doc.ToDomain(), nil
}

// List retrieves all stats for an account.
func (r *MongoWebhookStatRepository) List(ctx context.Context, accountID string) ([]*domain.WebhookStat, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"accountId": accountID})
	if err != nil {
		return nil, fmt.Errorf("failed to list webhook stats: %w", err)
	}
	defer cursor.Close(ctx)

	var stats []*domain.WebhookStat
	for cursor.Next(ctx) {
		var doc entity.MongoWebhookStatDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode webhook stat: %w", err)
		}
		stats = append(stats, doc.ToDomain())
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return stats, nil
}

// Save upserts a stat by its (account, entity type, action) key.
func (r *MongoWebhookStatRepository) Save(ctx context.Context, stat *domain.WebhookStat) error {
	doc := entity.MongoWebhookStatDocFromDomain(stat)
	doc.UpdatedAt = time.Now()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}

	opts := options.Update().SetUpsert(true)
	filter := bson.M{
		"accountId":  stat.AccountID,
		"entityType": stat.EntityType,
		"action":     string(stat.Action),
	}
	update := bson.M{"$set": bson.M{
		"registrationId": doc.RegistrationID,
		"active":         doc.Active,
		"failedChecks":   doc.FailedChecks,
		"lastCheckAt":    doc.LastCheckAt,
		"lastSuccessAt":  doc.LastSuccessAt,
		"lastError":      doc.LastError,
		"updatedAt":      doc.UpdatedAt,
	}, "$setOnInsert": bson.M{
		"accountId":     doc.AccountID,
		"entityType":    doc.EntityType,
		"action":        doc.Action,
		"receivedCount": doc.ReceivedCount,
		"failedCount":   doc.FailedCount,
		"createdAt":     doc.CreatedAt,
	}}

	if _, err := r.collection.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to save webhook stat: %w", err)
	}
	return nil
}

// IncrementReceived bumps the lifetime received counter if a registration
// record exists for this (account, entity type, action).
func (r *MongoWebhookStatRepository) IncrementReceived(ctx context.Context, accountID, entityType string, action domain.WebhookAction) error {
	return r.increment(ctx, accountID, entityType, action, "receivedCount")
}

// IncrementFailed bumps the lifetime failure counter.
func (r *MongoWebhookStatRepository) IncrementFailed(ctx context.Context, accountID, entityType string, action domain.WebhookAction) error {
	return r.increment(ctx, accountID, entityType, action, "failedCount")
}

func (r *MongoWebhookStatRepository) increment(ctx context.Context, accountID, entityType string, action domain.WebhookAction, field string) error {
	filter := bson.M{
		"accountId":  accountID,
		"entityType": entityType,
		"action":     string(action),
	}
	update := bson.M{
		"$inc": bson.M{field: 1},
		"$set": bson.M{"updatedAt": time.Now()},
	}
	// No upsert: counting only applies to known registrations.
	if _, err := r.collection.UpdateOne(ctx, filter, update); err != nil {
		return fmt.Errorf("failed to increment %s: %w", field, err)
	}
	return nil
}
