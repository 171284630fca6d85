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

// MongoAccountRepository implements AccountRepository using MongoDB.
type MongoAccountRepository struct {
	collection *mongo.Collection
}

// NewMongoAccountRepository creates a new MongoDB account repository.
func NewMongoAccountRepository(db *mongo.Database) ports.AccountRepository {
	return &MongoAccountRepository{
		collection: db.Collection("accounts"),
	}
}

// Save upserts an account by its platform account id.
func (r *MongoAccountRepository) Save(ctx context.Context, account *domain.Account) error {
	doc := entity.MongoAccountDocFromDomain(account)
	doc.UpdatedAt = time.Now()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}

	opts := options.Update().SetUpsert(true)
	filter := bson.M{"accountId": account.AccountID}
	update := bson.M{"$set": bson.M{
		"accountId":      doc.AccountID,
		"role":           doc.Role,
		"status":         doc.Status,
		"encryptedToken": doc.EncryptedToken,
		"updatedAt":      doc.UpdatedAt,
	}, "$setOnInsert": bson.M{
		"createdAt": doc.CreatedAt,
	}}

	if _, err := r.collection.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	return nil
}

// GetByAccountID retrieves an account by its platform account id.
func (r *MongoAccountRepository) GetByAccountID(ctx context.Context, accountID string) (*domain.Account, error) {
	var doc entity.MongoAccountDoc
	err := r.collection.FindOne(ctx, bson.M{"accountId": accountID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return doc.ToDomain(), nil
}

// ListActive retrieves every activated account.
func (r *MongoAccountRepository) ListActive(ctx context.Context) ([]*domain.Account, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"status": string(domain.StatusActivated)})
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer cursor.Close(ctx)

	var accounts []*domain.Account
	for cursor.Next(ctx) {
		var doc entity.MongoAccountDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode account: %w", err)
		}
		accounts = append(accounts, doc.ToDomain())
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return accounts, nil
}

// MongoChildLinkRepository implements ChildLinkRepository using MongoDB.
type MongoChildLinkRepository struct {
	collection *mongo.Collection
}

// NewMongoChildLinkRepository creates a new MongoDB child link repository.
func NewMongoChildLinkRepository(db *mongo.Database) ports.ChildLinkRepository {
	return &MongoChildLinkRepository{
		collection: db.Collection("child_links"),
	}
}

// Save upserts a link by its (main, child) pair.
func (r *MongoChildLinkRepository) Save(ctx context.Context, link *domain.ChildLink) error {
	doc := entity.MongoChildLinkDocFromDomain(link)
	doc.UpdatedAt = time.Now()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}

	opts := options.Update().SetUpsert(true)
	filter := bson.M{
		"mainAccountId":  link.MainAccountID,
		"childAccountId": link.ChildAccountID,
	}
	update := bson.M{"$set": bson.M{
		"active":    doc.Active,
		"config":    doc.Config,
		"updatedAt": doc.UpdatedAt,
	}, "$setOnInsert": bson.M{
		"mainAccountId":  doc.MainAccountID,
		"childAccountId": doc.ChildAccountID,
		"createdAt":      doc.CreatedAt,
	}}

	if _, err := r.collection.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to save child link: %w", err)
	}
	return nil
}

// GetByChild retrieves the active link for a child account. A child has at
// most one active main at a time.
func (r *MongoChildLinkRepository) GetByChild(ctx context.Context, childAccountID string) (*domain.ChildLink, error) {
	var doc entity.MongoChildLinkDoc
	filter := bson.M{"childAccountId": childAccountID, "active": true}
	err := r.collection.FindOne(ctx, filter).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get child link: %w", err)
	}
	return doc.ToDomain(), nil
}

// ListByMain retrieves all active links of a main account.
func (r *MongoChildLinkRepository) ListByMain(ctx context.Context, mainAccountID string) ([]*domain.ChildLink, error) {
	filter := bson.M{"mainAccountId": mainAccountID, "active": true}
	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list child links: %w", err)
	}
	defer cursor.Close(ctx)

	var links []*domain.ChildLink
	for cursor.Next(ctx) {
		var doc entity.MongoChildLinkDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode child link: %w", err)
		}
		links = append(links, doc.ToDomain())
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return links, nil
}
