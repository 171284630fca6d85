package repository

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureIndexes creates the indexes the sync layer depends on. The unique
// index on webhook_logs.requestId is load-bearing: it is the idempotency
// guarantee, not an optimization.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	specs := map[string][]mongo.IndexModel{
		"accounts": {
			{Keys: bson.D{{Key: "accountId", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		"child_links": {
			{Keys: bson.D{{Key: "mainAccountId", Value: 1}, {Key: "childAccountId", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "childAccountId", Value: 1}, {Key: "active", Value: 1}}},
		},
		"entity_mappings": {
			{Keys: bson.D{
				{Key: "mainAccountId", Value: 1},
				{Key: "childAccountId", Value: 1},
				{Key: "category", Value: 1},
				{Key: "mainEntityId", Value: 1},
			}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{
				{Key: "mainAccountId", Value: 1},
				{Key: "childAccountId", Value: 1},
				{Key: "category", Value: 1},
				{Key: "childEntityId", Value: 1},
			}},
		},
		"name_mappings": {
			{Keys: bson.D{
				{Key: "mainAccountId", Value: 1},
				{Key: "childAccountId", Value: 1},
				{Key: "kind", Value: 1},
				{Key: "name", Value: 1},
			}, Options: options.Index().SetUnique(true)},
		},
		"webhook_logs": {
			{Keys: bson.D{{Key: "requestId", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "accountId", Value: 1}, {Key: "createdAt", Value: -1}}},
		},
		"sync_tasks": {
			{Keys: bson.D{
				{Key: "status", Value: 1},
				{Key: "priority", Value: -1},
				{Key: "scheduledAt", Value: 1},
			}},
		},
		"webhook_stats": {
			{Keys: bson.D{
				{Key: "accountId", Value: 1},
				{Key: "entityType", Value: 1},
				{Key: "action", Value: 1},
			}, Options: options.Index().SetUnique(true)},
		},
		"entity_update_logs": {
			{Keys: bson.D{{Key: "mainAccountId", Value: 1}, {Key: "createdAt", Value: -1}}},
		},
	}

	for collection, models := range specs {
		if _, err := db.Collection(collection).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", collection, err)
		}
	}
	return nil
}
