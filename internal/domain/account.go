package domain

import "time"

// AccountRole distinguishes the authoritative catalog account from its
// dependent accounts.
type AccountRole string

const (
	RoleMain  AccountRole = "main"
	RoleChild AccountRole = "child"
)

// AccountStatus follows the platform's app lifecycle.
type AccountStatus string

const (
	StatusActivating  AccountStatus = "activating"
	StatusActivated   AccountStatus = "activated"
	StatusSuspended   AccountStatus = "suspended"
	StatusUninstalled AccountStatus = "uninstalled"
)

// Account is one MoySklad account connected to the sync layer.
// EncryptedToken holds the access token encrypted at rest; it is only
// decrypted through the platform client pool and never logged.
type Account struct {
	ID             string        `json:"id"`
	AccountID      string        `json:"account_id"` // platform account identifier
	Role           AccountRole   `json:"role"`
	Status         AccountStatus `json:"status"`
	EncryptedToken string        `json:"-"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// Active reports whether sync tasks targeting this account may run.
func (a *Account) Active() bool {
	return a.Status == StatusActivated
}
