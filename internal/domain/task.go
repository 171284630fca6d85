package domain

import "time"

// TaskOperation is what a sync task should do to its entity.
type TaskOperation string

const (
	OpCreate    TaskOperation = "create"
	OpUpdate    TaskOperation = "update"
	OpDelete    TaskOperation = "delete"
	OpBatchSync TaskOperation = "batch_sync"
)

// TaskStatus is the task state machine: pending -> processing ->
// completed | failed. Failed tasks with attempts remaining go back to pending
// with a later schedule time.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// Task priorities. Higher runs sooner; ties break by earliest schedule time.
const (
	PriorityLow     = 0
	PriorityDefault = 5
	PriorityHigh    = 10
)

// DefaultMaxAttempts bounds automatic retries of a task.
const DefaultMaxAttempts = 3

// TaskPayload carries the task's working data. MainAccountID is required for
// every catalog category; order tasks derive the main account from the child
// link instead. EntityIDs is used by batch tasks whose members do not fit the
// single EntityID field.
type TaskPayload struct {
	MainAccountID string   `json:"main_account_id,omitempty"`
	EntityIDs     []string `json:"entity_ids,omitempty"`
	ChangedFields []string `json:"changed_fields,omitempty"`
	ParentID      string   `json:"parent_id,omitempty"`
}

// SyncTask is one unit of queued work targeting one account.
type SyncTask struct {
	ID          string         `json:"id"`
	AccountID   string         `json:"account_id"` // target account
	Category    EntityCategory `json:"category"`
	EntityID    string         `json:"entity_id,omitempty"` // empty for batch tasks
	Operation   TaskOperation  `json:"operation"`
	Priority    int            `json:"priority"`
	Status      TaskStatus     `json:"status"`
	Attempts    int            `json:"attempts"`
	MaxAttempts int            `json:"max_attempts"`
	Payload     TaskPayload    `json:"payload"`
	Error       string         `json:"error,omitempty"`
	ScheduledAt time.Time      `json:"scheduled_at"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// AttemptsExhausted reports whether the task has no automatic retries left.
func (t *SyncTask) AttemptsExhausted() bool {
	return t.Attempts >= t.MaxAttempts
}
