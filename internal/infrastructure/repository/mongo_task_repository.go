package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"moysklad-sync-layer/internal/domain"
	"moysklad-sync-layer/internal/infrastructure/repository/entity"
	"moysklad-sync-layer/internal/ports"
)

// MongoTaskRepository implements the persistent priority queue on a MongoDB
// collection. Claiming uses FindOneAndUpdate so at most one worker holds an
// in-flight attempt per task.
type MongoTaskRepository struct {
	collection *mongo.Collection
}

// NewMongoTaskRepository creates a new MongoDB task repository.
func NewMongoTaskRepository(db *mongo.Database) ports.TaskRepository {
	return &MongoTaskRepository{
		collection: db.Collection("sync_tasks"),
	}
}

// Insert persists a new task.
func (r *MongoTaskRepository) Insert(ctx context.Context, task *domain.SyncTask) error {
	doc := entity.MongoSyncTaskDocFromDomain(task)
	now := time.Now()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to insert sync task: %w", err)
	}
	return nil
}

// InsertMany persists a batch of tasks and returns the count created.
func (r *MongoTaskRepository) InsertMany(ctx context.Context, tasks []*domain.SyncTask) (int, error) {
	if len(tasks) == 0 {
		return 0, nil
	}

	now := time.Now()
	docs := make([]interface{}, 0, len(tasks))
	for _, task := range tasks {
		doc := entity.MongoSyncTaskDocFromDomain(task)
		if doc.CreatedAt.IsZero() {
			doc.CreatedAt = now
		}
		doc.UpdatedAt = now
		docs = append(docs, doc)
	}

	result, err := r.collection.InsertMany(ctx, docs)
	if err != nil {
		return 0, fmt.Errorf("failed to insert sync tasks: %w", err)
	}
	return len(result.InsertedIDs), nil
}

// ClaimNext atomically claims the highest-priority due pending task, ties
// broken by earliest schedule time. Returns (nil, nil) when nothing is due.
func (r *MongoTaskRepository) ClaimNext(ctx context.Context) (*domain.SyncTask, error) {
	now := time.Now()
	filter := bson.M{
		"status":      string(domain.TaskPending),
		"scheduledAt": bson.M{"$lte": now},
	}
	update := bson.M{"$set": bson.M{
		"status":    string(domain.TaskProcessing),
		"updatedAt": now,
	}}
	opts := options.FindOneAndUpdate().
		SetSort(bson.D{{Key: "priority", Value: -1}, {Key: "scheduledAt", Value: 1}}).
		SetReturnDocument(options.After)

	var doc entity.MongoSyncTaskDoc
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim sync task: %w", err)
	}
	return doc.ToDomain(), nil
}

// Update writes the task's state after an attempt.
func (r *MongoTaskRepository) Update(ctx context.Context, task *domain.SyncTask) error {
	doc := entity.MongoSyncTaskDocFromDomain(task)
	doc.UpdatedAt = time.Now()

	update := bson.M{"$set": bson.M{
		"status":      doc.Status,
		"attempts":    doc.Attempts,
		"error":       doc.Error,
		"scheduledAt": doc.ScheduledAt,
		"operation":   doc.Operation,
		"updatedAt":   doc.UpdatedAt,
		"completedAt": doc.CompletedAt,
	}}
	if _, err := r.collection.UpdateOne(ctx, bson.M{"_id": task.ID}, update); err != nil {
		return fmt.Errorf("failed to update sync task: %w", err)
	}
	return nil
}

// GetByID retrieves a task.
func (r *MongoTaskRepository) GetByID(ctx context.Context, id string) (*domain.SyncTask, error) {
	var doc entity.MongoSyncTaskDoc
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync task: %w", err)
	}
	return doc.ToDomain(), nil
}

// ListFailed retrieves terminally failed tasks for operator inspection.
func (r *MongoTaskRepository) ListFailed(ctx context.Context, accountID string, limit int64) ([]*domain.SyncTask, error) {
	filter := bson.M{"status": string(domain.TaskFailed)}
	if accountID != "" {
		filter["accountId"] = accountID
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "updatedAt", Value: -1}}).
		SetLimit(limit)

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list failed tasks: %w", err)
	}
	defer cursor.Close(ctx)

	var tasks []*domain.SyncTask
	for cursor.Next(ctx) {
		var doc entity.MongoSyncTaskDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode sync task: %w", err)
		}
		tasks = append(tasks, doc.ToDomain())
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return tasks, nil
}
