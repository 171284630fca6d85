package application

import (
	"context"

	"github.com/rs/zerolog"

	"moysklad-sync-layer/internal/domain"
)

// StrategySelector decides the scope of a partial update from a
// classification and the link's sync configuration. The configuration is
// always passed in explicitly; the selector holds no tenant state.
type StrategySelector struct {
	classifier *Classifier
	logger     zerolog.Logger
}

// NewStrategySelector creates a selector. The classifier is reused for its
// cached attribute-name -> main-id resolution during allow-list filtering.
func NewStrategySelector(classifier *Classifier, logger zerolog.Logger) *StrategySelector {
	return &StrategySelector{classifier: classifier, logger: logger}
}

// Determine filters the classified fields through the configuration and picks
// one strategy, first match wins:
//
//  1. drop everything the configuration disables
//  2. nothing left            -> skip
//  3. any complex dependency  -> full_resync
//  4. prices only             -> prices_only
//  5. attributes only         -> attributes_only
//  6. base fields only        -> base_fields_only
//  7. otherwise               -> mixed_simple
func (s *StrategySelector) Determine(ctx context.Context, category domain.EntityCategory, cls domain.Classification, cfg domain.SyncConfig, mainAccountID, childAccountID string) (domain.Strategy, error) {
	if !cfg.CategoryEnabled(category) {
		return domain.Strategy{Kind: domain.StrategySkip}, nil
	}

	var surviving domain.Strategy
	surviving.BaseFields = append(surviving.BaseFields, cls.Base...)
	surviving.SimpleFields = append(surviving.SimpleFields, cls.Simple...)

	if cfg.SyncPrices {
		surviving.StandardPrices = append(surviving.StandardPrices, cls.Prices...)
		for _, name := range cls.CustomPriceTypes {
			// Custom price types propagate only when explicitly mapped.
			if _, ok := cfg.PriceTypeByName(name); ok {
				surviving.CustomPriceTypes = append(surviving.CustomPriceTypes, name)
			}
		}
	}

	for _, name := range cls.CustomAttributes {
		mainID, err := s.classifier.ResolveAttributeMainID(ctx, category, name, mainAccountID, childAccountID)
		if err != nil {
			return domain.Strategy{}, err
		}
		if cfg.AttributeAllowed(mainID) {
			surviving.Attributes = append(surviving.Attributes, name)
		}
	}

	// Complex fields survive only by escalating; the configuration cannot
	// toggle them separately because partial application of dependency
	// changes is unsafe.
	hasComplex := cfg.CategoryEnabled(category) && cls.HasComplexDeps

	kind := s.pick(surviving, hasComplex)
	surviving.Kind = kind

	s.logger.Debug().
		Str("category", string(category)).
		Str("strategy", string(kind)).
		Strs("baseFields", surviving.BaseFields).
		Strs("standardPrices", surviving.StandardPrices).
		Strs("attributes", surviving.Attributes).
		Msg("Determined update strategy")

	if kind == domain.StrategySkip || kind == domain.StrategyFullResync {
		return domain.Strategy{Kind: kind}, nil
	}
	return surviving, nil
}

func (s *StrategySelector) pick(surviving domain.Strategy, hasComplex bool) domain.StrategyKind {
	hasPrices := len(surviving.StandardPrices) > 0 || len(surviving.CustomPriceTypes) > 0
	hasAttrs := len(surviving.Attributes) > 0
	hasBase := len(surviving.BaseFields) > 0
	hasSimple := len(surviving.SimpleFields) > 0

	switch {
	case hasComplex:
		return domain.StrategyFullResync
	case !hasPrices && !hasAttrs && !hasBase && !hasSimple:
		return domain.StrategySkip
	case hasPrices && !hasAttrs && !hasBase && !hasSimple:
		return domain.StrategyPricesOnly
	case hasAttrs && !hasPrices && !hasBase && !hasSimple:
		return domain.StrategyAttributesOnly
	case hasBase && !hasPrices && !hasAttrs && !hasSimple:
		return domain.StrategyBaseFieldsOnly
	default:
		return domain.StrategyMixedSimple
	}
}
