package entity

import (
	"time"

	"moysklad-sync-layer/internal/domain"
)

// MongoTaskPayloadDoc is the embedded task payload.
type MongoTaskPayloadDoc struct {
	MainAccountID string   `bson:"mainAccountId,omitempty"`
	EntityIDs     []string `bson:"entityIds,omitempty"`
	ChangedFields []string `bson:"changedFields,omitempty"`
	ParentID      string   `bson:"parentId,omitempty"`
}

// MongoSyncTaskDoc is the MongoDB representation of a queued sync task. The
// id is the application-generated UUID so callers can reference tasks without
// a round trip.
type MongoSyncTaskDoc struct {
	ID          string              `bson:"_id"`
	AccountID   string              `bson:"accountId"`
	Category    string              `bson:"category"`
	EntityID    string              `bson:"entityId,omitempty"`
	Operation   string              `bson:"operation"`
	Priority    int                 `bson:"priority"`
	Status      string              `bson:"status"`
	Attempts    int                 `bson:"attempts"`
	MaxAttempts int                 `bson:"maxAttempts"`
	Payload     MongoTaskPayloadDoc `bson:"payload"`
	Error       string              `bson:"error,omitempty"`
	ScheduledAt time.Time           `bson:"scheduledAt"`
	CreatedAt   time.Time           `bson:"createdAt"`
	UpdatedAt   time.Time           `bson:"updatedAt"`
	CompletedAt *time.Time          `bson:"completedAt,omitempty"`
}

// ToDomain converts the document to the domain model.
func (d *MongoSyncTaskDoc) ToDomain() *domain.SyncTask {
	return &domain.SyncTask{
		ID:          d.ID,
		AccountID:   d.AccountID,
		Category:    domain.EntityCategory(d.Category),
		EntityID:    d.EntityID,
		Operation:   domain.TaskOperation(d.Operation),
		Priority:    d.Priority,
		Status:      domain.TaskStatus(d.Status),
		Attempts:    d.Attempts,
		MaxAttempts: d.MaxAttempts,
		Payload: domain.TaskPayload{
			MainAccountID: d.Payload.MainAccountID,
			EntityIDs:     d.Payload.EntityIDs,
			ChangedFields: d.Payload.ChangedFields,
			ParentID:      d.Payload.ParentID,
		},
		Error:       d.Error,
		ScheduledAt: d.ScheduledAt,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
		CompletedAt: d.CompletedAt,
	}
}

// MongoSyncTaskDocFromDomain converts the domain model to a document.
func MongoSyncTaskDocFromDomain(t *domain.SyncTask) *MongoSyncTaskDoc {
	return &MongoSyncTaskDoc{
		ID:          t.ID,
		AccountID:   t.AccountID,
		Category:    string(t.Category),
		EntityID:    t.EntityID,
		Operation:   string(t.Operation),
		Priority:    t.Priority,
		Status:      string(t.Status),
		Attempts:    t.Attempts,
		MaxAttempts: t.MaxAttempts,
		Payload: MongoTaskPayloadDoc{
			MainAccountID: t.Payload.MainAccountID,
			EntityIDs:     t.Payload.EntityIDs,
			ChangedFields: t.Payload.ChangedFields,
			ParentID:      t.Payload.ParentID,
		},
		Error:       t.Error,
		ScheduledAt: t.ScheduledAt,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
		CompletedAt: t.CompletedAt,
	}
}
