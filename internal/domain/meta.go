package domain

import "strings"

// APIBase is the platform's JSON API root. Entity references in webhook
// payloads and documents are hrefs under this root.
const APIBase = "https://api.moysklad.ru/api/remap/1.2"

// Meta is the platform's typed entity reference: a href embedding the entity
// type and id, plus the declared type.
type Meta struct {
	Href      string `json:"href"`
	Type      string `json:"type"`
	MediaType string `json:"mediaType,omitempty"`
}

// EntityID extracts the entity id from the href (its last path segment).
func (m Meta) EntityID() string {
	href := strings.TrimSuffix(m.Href, "/")
	if i := strings.LastIndex(href, "/"); i >= 0 {
		return href[i+1:]
	}
	return href
}

// EntityMeta builds a reference to an entity on whatever account the caller's
// client is bound to. Rebuilding rather than copying the source href is what
// keeps cross-account references from leaking between accounts.
func EntityMeta(entityType, id string) Meta {
	return Meta{
		Href:      APIBase + "/entity/" + entityType + "/" + id,
		Type:      entityType,
		MediaType: "application/json",
	}
}

// MetadataAttributeMeta builds a reference to a custom attribute definition
// in an entity type's metadata.
func MetadataAttributeMeta(entityType, attributeID string) Meta {
	return Meta{
		Href:      APIBase + "/entity/" + entityType + "/metadata/attributes/" + attributeID,
		Type:      "attributemetadata",
		MediaType: "application/json",
	}
}

// CharacteristicMeta builds a reference to a variant characteristic
// definition.
func CharacteristicMeta(characteristicID string) Meta {
	return Meta{
		Href:      APIBase + "/entity/variant/metadata/characteristics/" + characteristicID,
		Type:      "attributemetadata",
		MediaType: "application/json",
	}
}

// PriceTypeMeta builds a reference to a custom price type definition.
func PriceTypeMeta(priceTypeID string) Meta {
	return Meta{
		Href:      APIBase + "/context/companysettings/pricetype/" + priceTypeID,
		Type:      "pricetype",
		MediaType: "application/json",
	}
}
