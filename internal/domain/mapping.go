package domain

import "time"

// EntityMapping records that a main-account entity has an equivalent on a
// child account. Unique per (main, child, category, main entity id).
// MatchField/MatchValue record how the child entity was recognized (code,
// externalCode, ...) so re-discovery stays idempotent.
type EntityMapping struct {
	ID             string         `json:"id"`
	MainAccountID  string         `json:"main_account_id"`
	ChildAccountID string         `json:"child_account_id"`
	Category       EntityCategory `json:"category"`
	MainEntityID   string         `json:"main_entity_id"`
	ChildEntityID  string         `json:"child_entity_id"`
	MatchField     string         `json:"match_field,omitempty"`
	MatchValue     string         `json:"match_value,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// NameMappingKind discriminates the name-scoped mapping tables.
type NameMappingKind string

const (
	MappingAttribute      NameMappingKind = "attribute"
	MappingPriceType      NameMappingKind = "price_type"
	MappingCharacteristic NameMappingKind = "characteristic"
	MappingCounterparty   NameMappingKind = "counterparty"
	MappingReference      NameMappingKind = "reference" // unit, currency, country, vat
)

// NameMapping correlates main and child identifiers by human-readable name.
// Webhooks report changed custom fields by name, not id, so the name is the
// lookup key. Unique per (main, child, kind, name).
type NameMapping struct {
	ID             string          `json:"id"`
	MainAccountID  string          `json:"main_account_id"`
	ChildAccountID string          `json:"child_account_id"`
	Kind           NameMappingKind `json:"kind"`
	Name           string          `json:"name"`
	MainID         string          `json:"main_id"`
	ChildID        string          `json:"child_id"`
	CreatedAt      time.Time       `json:"created_at"`
}
