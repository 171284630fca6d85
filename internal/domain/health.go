package domain

import "time"

// RegistrationHealth classifies one webhook registration.
type RegistrationHealth string

const (
	HealthHealthy  RegistrationHealth = "healthy"
	HealthDegraded RegistrationHealth = "degraded"
	HealthCritical RegistrationHealth = "critical"
)

// FailedChecksCritical is the consecutive failed-existence-check count at
// which a registration is considered gone and eligible for auto-heal.
const FailedChecksCritical = 3

// WebhookStat is the per (account, entity type, action) health record for one
// external webhook registration.
type WebhookStat struct {
	ID             string        `json:"id"`
	AccountID      string        `json:"account_id"`
	EntityType     string        `json:"entity_type"`
	Action         WebhookAction `json:"action"`
	RegistrationID string        `json:"registration_id"`
	Active         bool          `json:"active"`
	ReceivedCount  int64         `json:"received_count"`
	FailedCount    int64         `json:"failed_count"`
	FailedChecks   int           `json:"failed_checks"`
	LastCheckAt    *time.Time    `json:"last_check_at,omitempty"`
	LastSuccessAt  *time.Time    `json:"last_success_at,omitempty"`
	LastError      string        `json:"last_error,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// Health classifies this registration from its check history.
func (s *WebhookStat) Health() RegistrationHealth {
	switch {
	case s.FailedChecks >= FailedChecksCritical:
		return HealthCritical
	case s.FailedChecks > 0 || !s.Active:
		return HealthDegraded
	default:
		return HealthHealthy
	}
}

// HealthReport aggregates registration stats for one account.
type HealthReport struct {
	AccountID           string             `json:"account_id"`
	Overall             RegistrationHealth `json:"overall"`
	Total               int                `json:"total"`
	Active              int                `json:"active"`
	Inactive            int                `json:"inactive"`
	Healthy             int                `json:"healthy"`
	Degraded            int                `json:"degraded"`
	Critical            int                `json:"critical"`
	LifetimeFailureRate float64            `json:"lifetime_failure_rate"`
	SuccessRate24h      float64            `json:"success_rate_24h"`
	Problems            []string           `json:"problems,omitempty"`
}

// HealResult reports the outcome of one auto-heal pass. Per-registration
// failures are accumulated, never raised.
type HealResult struct {
	AccountID string   `json:"account_id"`
	Healed    []string `json:"healed"`
	Failed    []string `json:"failed"`
}
