package application

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"moysklad-sync-layer/internal/domain"
	"moysklad-sync-layer/internal/infrastructure/metrics"
	"moysklad-sync-layer/internal/ports"
)

// readOnlyFields are stripped before a full replacement write: identity,
// ownership and bookkeeping the target account must keep its own values for.
var readOnlyFields = map[string]struct{}{
	"meta": {}, "id": {}, "accountId": {}, "owner": {}, "group": {},
	"updated": {}, "created": {}, "deleted": {}, "syncId": {},
	"effectiveVat": {}, "effectiveVatEnabled": {}, "variantsCount": {},
	"files": {}, "barcodes": {},
}

// complexRefFields maps a complex dependency field to the entity category its
// reference must be translated through. Fields absent here (uom, country,
// currency) translate through the standard-reference name mappings instead.
var complexRefFields = map[string]domain.EntityCategory{
	"productFolder": domain.CategoryFolder,
	"product":       domain.CategoryProduct,
}

// Executor carries out a chosen update strategy against one child entity:
// fetch the minimal projection of the source, translate every cross-account
// reference through the mapping store, issue a single target write, and leave
// an audit record whatever the outcome.
type Executor struct {
	clients        ports.ClientPool
	entityMappings ports.EntityMappingRepository
	nameMappings   ports.NameMappingRepository
	updateLogs     ports.UpdateLogRepository
	metrics        *metrics.Metrics
	logger         zerolog.Logger
}

// NewExecutor creates an executor.
func NewExecutor(
	clients ports.ClientPool,
	entityMappings ports.EntityMappingRepository,
	nameMappings ports.NameMappingRepository,
	updateLogs ports.UpdateLogRepository,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *Executor {
	return &Executor{
		clients:        clients,
		entityMappings: entityMappings,
		nameMappings:   nameMappings,
		updateLogs:     updateLogs,
		metrics:        m,
		logger:         logger,
	}
}

// Apply runs one strategy against an already-mapped child entity. The audit
// record is created first and finished with the outcome; it exists even when
// the strategy applies nothing.
func (e *Executor) Apply(
	ctx context.Context,
	strategy domain.Strategy,
	category domain.EntityCategory,
	mainAccountID, childAccountID, mainEntityID, childEntityID string,
	cfg domain.SyncConfig,
	cls *domain.Classification,
) (*domain.EntityUpdateLog, error) {
	audit := &domain.EntityUpdateLog{
		MainAccountID:  mainAccountID,
		ChildAccountID: childAccountID,
		MainEntityID:   mainEntityID,
		ChildEntityID:  childEntityID,
		Category:       category,
		Strategy:       strategy.Kind,
		Classification: cls,
		Status:         domain.UpdateProcessing,
	}
	if cls != nil {
		audit.ChangedFields = cls.Standard
	}
	if err := e.updateLogs.Insert(ctx, audit); err != nil {
		return nil, fmt.Errorf("failed to create update log: %w", err)
	}

	start := time.Now()
	applied, err := e.run(ctx, strategy, category, mainAccountID, childAccountID, mainEntityID, childEntityID, cfg)
	audit.Duration = time.Since(start)
	audit.AppliedFields = applied

	if err != nil {
		audit.Status = domain.UpdateFailed
		audit.Error = err.Error()
		if updErr := e.updateLogs.Update(ctx, audit); updErr != nil {
			e.logger.Error().Err(updErr).Str("auditId", audit.ID).Msg("Failed to finish update log")
		}
		return audit, err
	}

	audit.Status = domain.UpdateCompleted
	if updErr := e.updateLogs.Update(ctx, audit); updErr != nil {
		e.logger.Error().Err(updErr).Str("auditId", audit.ID).Msg("Failed to finish update log")
	}

	e.metrics.UpdatesApplied.WithLabelValues(string(strategy.Kind)).Inc()
	e.logger.Info().
		Str("strategy", string(strategy.Kind)).
		Str("category", string(category)).
		Str("mainEntityId", mainEntityID).
		Str("childEntityId", childEntityID).
		Strs("appliedFields", applied).
		Dur("duration", audit.Duration).
		Msg("Partial update applied")
	return audit, nil
}

func (e *Executor) run(
	ctx context.Context,
	strategy domain.Strategy,
	category domain.EntityCategory,
	mainAccountID, childAccountID, mainEntityID, childEntityID string,
	cfg domain.SyncConfig,
) ([]string, error) {
	if strategy.Kind == domain.StrategySkip {
		return nil, nil
	}

	source, err := e.fetchSource(ctx, strategy.Kind, category, mainAccountID, mainEntityID)
	if err != nil {
		return nil, err
	}

	var update map[string]any
	switch strategy.Kind {
	case domain.StrategyPricesOnly:
		update, err = e.buildPrices(ctx, source, strategy, mainAccountID, childAccountID, cfg)
	case domain.StrategyAttributesOnly:
		update, err = e.buildAttributes(ctx, source, strategy.Attributes, category, mainAccountID, childAccountID)
	case domain.StrategyBaseFieldsOnly:
		update = copyFields(source, strategy.BaseFields)
	case domain.StrategyMixedSimple:
		update, err = e.buildMixed(ctx, source, strategy, category, mainAccountID, childAccountID, cfg)
	case domain.StrategyFullResync:
		update, err = e.buildFull(ctx, source, category, mainAccountID, childAccountID, cfg)
	default:
		return nil, fmt.Errorf("unknown strategy %q", strategy.Kind)
	}
	if err != nil {
		return nil, err
	}
	if len(update) == 0 {
		return nil, nil
	}

	childClient, err := e.clients.GetClient(ctx, childAccountID)
	if err != nil {
		return nil, err
	}
	path := fmt.Sprintf("/entity/%s/%s", category, childEntityID)
	if _, err := childClient.Put(ctx, path, update); err != nil {
		return nil, fmt.Errorf("target write failed: %w", err)
	}
	return fieldNames(update), nil
}

// fetchSource fetches the minimal projection of the source entity the
// strategy needs.
func (e *Executor) fetchSource(ctx context.Context, kind domain.StrategyKind, category domain.EntityCategory, mainAccountID, mainEntityID string) (map[string]any, error) {
	mainClient, err := e.clients.GetClient(ctx, mainAccountID)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	switch kind {
	case domain.StrategyPricesOnly:
		query.Set("expand", "salePrices.priceType")
	case domain.StrategyAttributesOnly:
		query.Set("expand", "attributes")
	case domain.StrategyMixedSimple:
		query.Set("expand", "attributes,salePrices.priceType")
	case domain.StrategyFullResync:
		expand := "attributes,salePrices.priceType,images"
		if category == domain.CategoryBundle {
			expand += ",components"
		}
		query.Set("expand", expand)
	}

	path := fmt.Sprintf("/entity/%s/%s", category, mainEntityID)
	source, err := mainClient.Get(ctx, path, query)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch source entity: %w", err)
	}
	return source, nil
}

// buildPrices copies the standard price fields verbatim and rebuilds the
// custom sale prices with the child account's price-type ids. Only names in
// the configuration's explicit mapping list are carried.
func (e *Executor) buildPrices(ctx context.Context, source map[string]any, strategy domain.Strategy, mainAccountID, childAccountID string, cfg domain.SyncConfig) (map[string]any, error) {
	update := map[string]any{}
	for _, field := range strategy.StandardPrices {
		if field == "salePrices" {
			continue // handled with custom price types below
		}
		if value, ok := source[field]; ok {
			update[field] = value
		}
	}

	wantSalePrices := len(strategy.CustomPriceTypes) > 0
	for _, field := range strategy.StandardPrices {
		if field == "salePrices" {
			wantSalePrices = true
		}
	}
	if !wantSalePrices {
		return update, nil
	}

	translated, err := e.translateSalePrices(ctx, source, mainAccountID, childAccountID, cfg)
	if err != nil {
		return nil, err
	}
	if len(translated) > 0 {
		update["salePrices"] = translated
	}
	return update, nil
}

func (e *Executor) translateSalePrices(ctx context.Context, source map[string]any, mainAccountID, childAccountID string, cfg domain.SyncConfig) ([]map[string]any, error) {
	raw, _ := source["salePrices"].([]any)
	var translated []map[string]any
	for _, item := range raw {
		sp, ok := item.(map[string]any)
		if !ok {
			continue
		}
		name := priceTypeName(sp)
		link, ok := cfg.PriceTypeByName(name)
		if !ok {
			continue
		}

		childID := link.ChildID
		if childID == "" {
			mapping, err := e.nameMappings.GetByName(ctx, mainAccountID, childAccountID, domain.MappingPriceType, name)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve price type %q: %w", name, err)
			}
			if mapping == nil {
				e.logger.Warn().Str("priceType", name).Msg("No price type mapping, skipping")
				continue
			}
			childID = mapping.ChildID
		}

		entry := map[string]any{
			"value":     sp["value"],
			"priceType": map[string]any{"meta": domain.PriceTypeMeta(childID)},
		}
		if currency, ok := sp["currency"]; ok {
			entry["currency"] = currency
		}
		translated = append(translated, entry)
	}
	return translated, nil
}

// buildAttributes resolves each allowed attribute to its child-account id and
// carries the source value. Missing mappings are skipped with a warning; the
// partial strategies never hard-fail on a single attribute.
func (e *Executor) buildAttributes(ctx context.Context, source map[string]any, names []string, category domain.EntityCategory, mainAccountID, childAccountID string) (map[string]any, error) {
	raw, _ := source["attributes"].([]any)
	byName := make(map[string]map[string]any, len(raw))
	for _, item := range raw {
		attr, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if name, ok := attr["name"].(string); ok {
			byName[name] = attr
		}
	}

	metaType := string(category)
	var attrs []map[string]any
	for _, name := range names {
		attr, ok := byName[name]
		if !ok {
			// Reported as changed but absent on the source: it was
			// likely cleared. Nothing to carry without a value slot.
			e.logger.Warn().Str("attribute", name).Msg("Changed attribute not present on source entity")
			continue
		}
		mapping, err := e.nameMappings.GetByName(ctx, mainAccountID, childAccountID, domain.MappingAttribute, name)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve attribute %q: %w", name, err)
		}
		if mapping == nil {
			e.logger.Warn().Str("attribute", name).Msg("No attribute mapping, skipping")
			continue
		}
		attrs = append(attrs, map[string]any{
			"meta":  domain.MetadataAttributeMeta(metaType, mapping.ChildID),
			"value": attr["value"],
		})
	}

	if len(attrs) == 0 {
		return map[string]any{}, nil
	}
	return map[string]any{"attributes": attrs}, nil
}

// buildMixed unions the base, simple, price and attribute sub-builds into one
// write so the target sees a single round trip.
func (e *Executor) buildMixed(ctx context.Context, source map[string]any, strategy domain.Strategy, category domain.EntityCategory, mainAccountID, childAccountID string, cfg domain.SyncConfig) (map[string]any, error) {
	update := copyFields(source, strategy.BaseFields)
	for field, value := range copyFields(source, strategy.SimpleFields) {
		update[field] = value
	}

	prices, err := e.buildPrices(ctx, source, strategy, mainAccountID, childAccountID, cfg)
	if err != nil {
		return nil, err
	}
	for field, value := range prices {
		update[field] = value
	}

	if len(strategy.Attributes) > 0 {
		attrs, err := e.buildAttributes(ctx, source, strategy.Attributes, category, mainAccountID, childAccountID)
		if err != nil {
			return nil, err
		}
		for field, value := range attrs {
			update[field] = value
		}
	}
	return update, nil
}

// buildFull produces a full replacement: everything except read-only system
// fields, with every cross-account reference translated. A missing mapping
// for a required complex dependency is a hard failure here, not an omission.
func (e *Executor) buildFull(ctx context.Context, source map[string]any, category domain.EntityCategory, mainAccountID, childAccountID string, cfg domain.SyncConfig) (map[string]any, error) {
	update := map[string]any{}
	for field, value := range source {
		if _, readOnly := readOnlyFields[field]; readOnly {
			continue
		}
		switch field {
		case "salePrices", "buyPrice", "minPrice":
			if !cfg.SyncPrices {
				continue
			}
			update[field] = value
		case "attributes", "components", "characteristics":
			// Rebuilt below with child-account references.
			continue
		case "images", "packs", "supplier", "positions":
			// Images converge through the image tasks; packs and supplier
			// carry account-local uom/counterparty ids with no mapping.
			continue
		default:
			update[field] = value
		}
	}

	for field, refCategory := range complexRefFields {
		ref, ok := source[field].(map[string]any)
		if !ok {
			continue
		}
		translated, err := e.translateEntityRef(ctx, field, ref, refCategory, mainAccountID, childAccountID)
		if err != nil {
			return nil, err
		}
		update[field] = translated
	}

	for _, field := range []string{"uom", "country", "currency"} {
		ref, ok := source[field].(map[string]any)
		if !ok {
			continue
		}
		translated, err := e.translateReferenceByName(ctx, field, ref, mainAccountID, childAccountID)
		if err != nil {
			return nil, err
		}
		if translated != nil {
			update[field] = translated
		}
	}

	if cfg.SyncPrices {
		translated, err := e.translateSalePrices(ctx, source, mainAccountID, childAccountID, cfg)
		if err != nil {
			return nil, err
		}
		if len(translated) > 0 {
			update["salePrices"] = translated
		} else {
			delete(update, "salePrices")
		}
	}

	if _, ok := source["attributes"]; ok {
		names := attributeNames(source)
		allowed := names[:0]
		for _, name := range names {
			mapping, err := e.nameMappings.GetByName(ctx, mainAccountID, childAccountID, domain.MappingAttribute, name)
			if err != nil {
				return nil, err
			}
			if mapping == nil || !cfg.AttributeAllowed(mapping.MainID) {
				continue
			}
			allowed = append(allowed, name)
		}
		attrs, err := e.buildAttributes(ctx, source, allowed, category, mainAccountID, childAccountID)
		if err != nil {
			return nil, err
		}
		for field, value := range attrs {
			update[field] = value
		}
	}

	if category == domain.CategoryBundle {
		components, err := e.translateComponents(ctx, source, mainAccountID, childAccountID)
		if err != nil {
			return nil, err
		}
		if len(components) > 0 {
			update["components"] = components
		}
	}
	if category == domain.CategoryVariant {
		characteristics, err := e.translateCharacteristics(ctx, source, mainAccountID, childAccountID)
		if err != nil {
			return nil, err
		}
		if len(characteristics) > 0 {
			update["characteristics"] = characteristics
		}
	}

	return update, nil
}

// translateComponents rebuilds a bundle's component list with child-account
// assortment references. Components are why bundle changes escalate to a full
// resync in the first place; a missing component mapping fails the write.
func (e *Executor) translateComponents(ctx context.Context, source map[string]any, mainAccountID, childAccountID string) ([]map[string]any, error) {
	var translated []map[string]any
	for _, item := range collectionRows(source["components"]) {
		row, ok := item.(map[string]any)
		if !ok {
			continue
		}
		assortment, ok := row["assortment"].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("bundle component has no assortment: %w", domain.ErrMappingMissing)
		}
		meta := extractMeta(assortment)
		refCategory, ok := domain.CategoryFromType(meta.Type)
		if !ok {
			return nil, fmt.Errorf("bundle component has unknown assortment type %q", meta.Type)
		}
		ref, err := e.translateEntityRef(ctx, "component", assortment, refCategory, mainAccountID, childAccountID)
		if err != nil {
			return nil, err
		}
		entry := map[string]any{"assortment": ref}
		if quantity, ok := row["quantity"]; ok {
			entry["quantity"] = quantity
		}
		translated = append(translated, entry)
	}
	return translated, nil
}

// translateCharacteristics rebuilds a variant's characteristic list with the
// child account's characteristic definitions, resolved by name. A variant
// cannot be written without its characteristics, so a missing mapping is a
// hard failure.
func (e *Executor) translateCharacteristics(ctx context.Context, source map[string]any, mainAccountID, childAccountID string) ([]map[string]any, error) {
	raw, _ := source["characteristics"].([]any)
	var translated []map[string]any
	for _, item := range raw {
		char, ok := item.(map[string]any)
		if !ok {
			continue
		}
		name, _ := char["name"].(string)
		if name == "" {
			continue
		}
		mapping, err := e.nameMappings.GetByName(ctx, mainAccountID, childAccountID, domain.MappingCharacteristic, name)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve characteristic %q: %w", name, err)
		}
		if mapping == nil {
			return nil, fmt.Errorf("characteristic %q has no mapping on child %s: %w", name, childAccountID, domain.ErrMappingMissing)
		}
		translated = append(translated, map[string]any{
			"meta":  domain.CharacteristicMeta(mapping.ChildID),
			"value": char["value"],
		})
	}
	return translated, nil
}

// collectionRows unwraps a platform collection field, which is inlined as
// {"rows": [...]} when expanded and a bare array in some report shapes.
func collectionRows(value any) []any {
	switch v := value.(type) {
	case []any:
		return v
	case map[string]any:
		rows, _ := v["rows"].([]any)
		return rows
	}
	return nil
}

// translateEntityRef swaps a main-account entity reference for the child
// account's equivalent. Required: failing to resolve it fails the resync.
func (e *Executor) translateEntityRef(ctx context.Context, field string, ref map[string]any, refCategory domain.EntityCategory, mainAccountID, childAccountID string) (map[string]any, error) {
	meta := extractMeta(ref)
	if meta.Href == "" {
		return nil, fmt.Errorf("%s reference has no meta: %w", field, domain.ErrMappingMissing)
	}
	mainID := meta.EntityID()

	mapping, err := e.entityMappings.Get(ctx, mainAccountID, childAccountID, refCategory, mainID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s mapping: %w", field, err)
	}
	if mapping == nil {
		return nil, fmt.Errorf("%s %s has no mapping on child %s: %w", field, mainID, childAccountID, domain.ErrMappingMissing)
	}
	return map[string]any{"meta": domain.EntityMeta(string(refCategory), mapping.ChildEntityID)}, nil
}

// translateReferenceByName resolves standard references (unit, country,
// currency) through the name-scoped reference mappings. Missing entries are
// dropped rather than failed: the platform's standard dictionaries usually
// match but ids differ per account.
func (e *Executor) translateReferenceByName(ctx context.Context, field string, ref map[string]any, mainAccountID, childAccountID string) (map[string]any, error) {
	name, _ := ref["name"].(string)
	meta := extractMeta(ref)
	if name == "" {
		name = meta.EntityID()
	}

	mapping, err := e.nameMappings.GetByName(ctx, mainAccountID, childAccountID, domain.MappingReference, field+":"+name)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s reference: %w", field, err)
	}
	if mapping == nil {
		e.logger.Warn().Str("field", field).Str("name", name).Msg("No reference mapping, dropping field")
		return nil, nil
	}
	return map[string]any{"meta": domain.EntityMeta(meta.Type, mapping.ChildID)}, nil
}

func copyFields(source map[string]any, fields []string) map[string]any {
	out := map[string]any{}
	for _, field := range fields {
		if value, ok := source[field]; ok {
			out[field] = value
		}
	}
	return out
}

func fieldNames(update map[string]any) []string {
	names := make([]string, 0, len(update))
	for name := range update {
		names = append(names, name)
	}
	return names
}

func priceTypeName(salePrice map[string]any) string {
	pt, ok := salePrice["priceType"].(map[string]any)
	if !ok {
		return ""
	}
	name, _ := pt["name"].(string)
	return name
}

func attributeNames(source map[string]any) []string {
	raw, _ := source["attributes"].([]any)
	var names []string
	for _, item := range raw {
		attr, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if name, ok := attr["name"].(string); ok {
			names = append(names, name)
		}
	}
	return names
}

func extractMeta(ref map[string]any) domain.Meta {
	raw, ok := ref["meta"].(map[string]any)
	if !ok {
		return domain.Meta{}
	}
	meta := domain.Meta{}
	meta.Href, _ = raw["href"].(string)
	meta.Type, _ = raw["type"].(string)
	return meta
}
