package domain

import "time"

// UpdateLogStatus is the outcome of one partial-update attempt.
type UpdateLogStatus string

const (
	UpdateProcessing UpdateLogStatus = "processing"
	UpdateCompleted  UpdateLogStatus = "completed"
	UpdateFailed     UpdateLogStatus = "failed"
)

// EntityUpdateLog is the write-once audit record per partial-update attempt.
// It exists even when the chosen strategy applied nothing; the stored
// classification is what makes systemic misclassification diagnosable.
type EntityUpdateLog struct {
	ID             string          `json:"id"`
	MainAccountID  string          `json:"main_account_id"`
	ChildAccountID string          `json:"child_account_id"`
	MainEntityID   string          `json:"main_entity_id"`
	ChildEntityID  string          `json:"child_entity_id"`
	Category       EntityCategory  `json:"category"`
	Strategy       StrategyKind    `json:"strategy"`
	ChangedFields  []string        `json:"changed_fields,omitempty"`
	Classification *Classification `json:"classification,omitempty"`
	AppliedFields  []string        `json:"applied_fields,omitempty"`
	Status         UpdateLogStatus `json:"status"`
	Error          string          `json:"error,omitempty"`
	Duration       time.Duration   `json:"duration"`
	CreatedAt      time.Time       `json:"created_at"`
}
