package domain

import (
	"encoding/json"
	"time"
)

// WebhookAction is the change kind reported by the platform.
type WebhookAction string

const (
	ActionCreate WebhookAction = "CREATE"
	ActionUpdate WebhookAction = "UPDATE"
	ActionDelete WebhookAction = "DELETE"
)

// WebhookStatus tracks a notification through processing.
type WebhookStatus string

const (
	WebhookPending    WebhookStatus = "pending"
	WebhookProcessing WebhookStatus = "processing"
	WebhookCompleted  WebhookStatus = "completed"
	WebhookFailed     WebhookStatus = "failed"
)

// WebhookEvent is one entity change inside a notification. UpdatedFields is
// only populated by the platform on UPDATE.
type WebhookEvent struct {
	Meta          Meta          `json:"meta"`
	Action        WebhookAction `json:"action"`
	AccountID     string        `json:"accountId"`
	UpdatedFields []string      `json:"updatedFields,omitempty"`
}

// WebhookPayload is the platform's notification body. One notification may
// batch several entity changes.
type WebhookPayload struct {
	Events []WebhookEvent `json:"events"`
}

// EntityID is a convenience accessor for the changed entity's id.
func (e WebhookEvent) EntityID() string {
	return e.Meta.EntityID()
}

// WebhookLog is the durable record of one accepted notification. RequestID is
// the platform-supplied idempotency key; a unique index on it is the single
// at-most-once guarantee the pipeline depends on.
type WebhookLog struct {
	ID            string          `json:"id"`
	RequestID     string          `json:"request_id"`
	AccountID     string          `json:"account_id"`
	EntityType    string          `json:"entity_type"`
	Action        WebhookAction   `json:"action"`
	Payload       json.RawMessage `json:"payload"`
	ChangedFields []string        `json:"changed_fields,omitempty"`
	Status        WebhookStatus   `json:"status"`
	Error         string          `json:"error,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	ProcessedAt   *time.Time      `json:"processed_at,omitempty"`
	Duration      time.Duration   `json:"duration"`
}
