package application

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"moysklad-sync-layer/internal/domain"
	"moysklad-sync-layer/internal/ports"
)

// fieldSchema is the static partition of an entity category's standard API
// fields. Built once at init; classification itself is pure apart from the
// custom-name lookups.
type fieldSchema struct {
	base    map[string]struct{}
	prices  map[string]struct{}
	complex map[string]struct{}
	simple  map[string]struct{}
}

func newFieldSchema(base, prices, complexDeps, simple []string) fieldSchema {
	toSet := func(names []string) map[string]struct{} {
		set := make(map[string]struct{}, len(names))
		for _, n := range names {
			set[n] = struct{}{}
		}
		return set
	}
	return fieldSchema{
		base:    toSet(base),
		prices:  toSet(prices),
		complex: toSet(complexDeps),
		simple:  toSet(simple),
	}
}

// entitySchemas keys the platform's field names per entity category.
// complex holds every field whose propagation requires resolving other mapped
// entities; changes there always escalate to a full resync.
var entitySchemas = map[domain.EntityCategory]fieldSchema{
	domain.CategoryProduct: newFieldSchema(
		[]string{"name", "description", "code", "externalCode", "article"},
		[]string{"buyPrice", "salePrices", "minPrice"},
		[]string{"productFolder", "uom", "country", "supplier", "packs", "images", "alcoholic"},
		[]string{"weight", "volume", "vat", "useParentVat", "discountProhibited", "archived", "shared", "partialDisposal", "weighed", "tobacco"},
	),
	domain.CategoryVariant: newFieldSchema(
		[]string{"name", "code", "externalCode", "article"},
		[]string{"buyPrice", "salePrices", "minPrice"},
		[]string{"product", "characteristics", "packs", "images"},
		[]string{"archived", "discountProhibited", "barcodes"},
	),
	domain.CategoryBundle: newFieldSchema(
		[]string{"name", "description", "code", "externalCode", "article"},
		[]string{"salePrices", "minPrice"},
		[]string{"productFolder", "uom", "country", "components", "images", "overhead"},
		[]string{"weight", "volume", "vat", "useParentVat", "discountProhibited", "archived", "shared"},
	),
	domain.CategoryService: newFieldSchema(
		[]string{"name", "description", "code", "externalCode"},
		[]string{"buyPrice", "salePrices", "minPrice"},
		[]string{"productFolder", "uom"},
		[]string{"vat", "useParentVat", "discountProhibited", "archived", "shared"},
	),
	domain.CategoryFolder: newFieldSchema(
		[]string{"name", "description", "code", "externalCode"},
		nil,
		[]string{"productFolder"},
		[]string{"vat", "useParentVat", "archived", "shared"},
	),
	domain.CategoryOrder: newFieldSchema(
		[]string{"name", "description", "code", "externalCode"},
		nil,
		[]string{"agent", "organization", "store", "state", "positions", "project", "salesChannel"},
		[]string{"moment", "applicable", "vatEnabled", "vatIncluded", "deliveryPlannedMoment", "shipmentAddress"},
	),
}

// DefaultClassifyTTL is how long a (link, category, name) classification stays
// cached. Name->id mappings are stable within an account, so a short TTL only
// bounds staleness after mapping edits.
const DefaultClassifyTTL = 10 * time.Minute

const (
	cachedAttributePrefix = "attr:"
	cachedPriceType       = "pricetype"
)

// Classifier partitions a webhook's changed field names into standard fields,
// custom attributes and custom price types for one main->child link.
type Classifier struct {
	nameMappings ports.NameMappingRepository
	cache        ports.Cache
	ttl          time.Duration
	logger       zerolog.Logger
}

// NewClassifier creates a classifier with the default cache TTL.
func NewClassifier(nameMappings ports.NameMappingRepository, cache ports.Cache, logger zerolog.Logger) *Classifier {
	return &Classifier{
		nameMappings: nameMappings,
		cache:        cache,
		ttl:          DefaultClassifyTTL,
		logger:       logger,
	}
}

// WithTTL overrides the cache TTL.
func (c *Classifier) WithTTL(ttl time.Duration) *Classifier {
	c.ttl = ttl
	return c
}

// Classify partitions changed field names for a category. Names absent from
// the static schema are custom: membership in the attribute mapping table
// marks them custom attributes; anything else is assumed to be a custom price
// type name, by elimination.
func (c *Classifier) Classify(ctx context.Context, category domain.EntityCategory, changedFields []string, mainAccountID, childAccountID string) (domain.Classification, error) {
	schema, ok := entitySchemas[category]
	if !ok {
		return domain.Classification{}, fmt.Errorf("no field schema for category %q", category)
	}

	var cls domain.Classification
	for _, field := range changedFields {
		switch {
		case contains(schema.base, field):
			cls.Base = append(cls.Base, field)
			cls.Standard = append(cls.Standard, field)
			cls.HasBaseFields = true
		case contains(schema.prices, field):
			cls.Prices = append(cls.Prices, field)
			cls.Standard = append(cls.Standard, field)
			cls.HasPrices = true
		case contains(schema.complex, field):
			cls.Complex = append(cls.Complex, field)
			cls.Standard = append(cls.Standard, field)
			cls.HasComplexDeps = true
		case contains(schema.simple, field):
			cls.Simple = append(cls.Simple, field)
			cls.Standard = append(cls.Standard, field)
		default:
			isAttr, err := c.isCustomAttribute(ctx, category, field, mainAccountID, childAccountID)
			if err != nil {
				return domain.Classification{}, err
			}
			if isAttr {
				cls.CustomAttributes = append(cls.CustomAttributes, field)
			} else {
				cls.CustomPriceTypes = append(cls.CustomPriceTypes, field)
				cls.HasPrices = true
			}
		}
	}

	c.logger.Debug().
		Str("category", string(category)).
		Strs("changedFields", changedFields).
		Strs("customAttributes", cls.CustomAttributes).
		Strs("customPriceTypes", cls.CustomPriceTypes).
		Bool("hasComplexDeps", cls.HasComplexDeps).
		Msg("Classified changed fields")
	return cls, nil
}

// ResolveAttributeMainID returns the main-account attribute id for a mapped
// custom attribute name, or "" when no mapping exists.
func (c *Classifier) ResolveAttributeMainID(ctx context.Context, category domain.EntityCategory, name, mainAccountID, childAccountID string) (string, error) {
	value, err := c.lookup(ctx, category, name, mainAccountID, childAccountID)
	if err != nil {
		return "", err
	}
	if len(value) > len(cachedAttributePrefix) && value[:len(cachedAttributePrefix)] == cachedAttributePrefix {
		return value[len(cachedAttributePrefix):], nil
	}
	return "", nil
}

func (c *Classifier) isCustomAttribute(ctx context.Context, category domain.EntityCategory, name, mainAccountID, childAccountID string) (bool, error) {
	value, err := c.lookup(ctx, category, name, mainAccountID, childAccountID)
	if err != nil {
		return false, err
	}
	return value != cachedPriceType, nil
}

// lookup resolves a custom field name through the cache, falling back to the
// name mapping table. The cached value is "attr:<mainId>" for attributes and
// "pricetype" for everything else.
func (c *Classifier) lookup(ctx context.Context, category domain.EntityCategory, name, mainAccountID, childAccountID string) (string, error) {
	key := fmt.Sprintf("fieldclass:%s:%s:%s:%s", mainAccountID, childAccountID, category, name)

	if cached, ok, err := c.cache.Get(ctx, key); err != nil {
		// A cache outage must not block classification.
		c.logger.Warn().Err(err).Str("key", key).Msg("Classification cache read failed")
	} else if ok {
		return cached, nil
	}

	mapping, err := c.nameMappings.GetByName(ctx, mainAccountID, childAccountID, domain.MappingAttribute, name)
	if err != nil {
		return "", fmt.Errorf("failed to look up attribute mapping for %q: %w", name, err)
	}

	value := cachedPriceType
	if mapping != nil {
		value = cachedAttributePrefix + mapping.MainID
	}
	if err := c.cache.Set(ctx, key, value, c.ttl); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("Classification cache write failed")
	}
	return value, nil
}

func contains(set map[string]struct{}, name string) bool {
	_, ok := set[name]
	return ok
}
