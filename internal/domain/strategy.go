package domain

// Classification is the field classifier's partition of a webhook's changed
// field names. Standard is the union of the four schema partitions; names not
// found in the static schema land in CustomAttributes when a name mapping
// exists and in CustomPriceTypes otherwise (by elimination).
type Classification struct {
	Standard         []string `json:"standard"`
	Base             []string `json:"base"`
	Prices           []string `json:"prices"`
	Complex          []string `json:"complex"`
	Simple           []string `json:"simple"`
	CustomAttributes []string `json:"custom_attributes"`
	CustomPriceTypes []string `json:"custom_price_types"`

	HasComplexDeps bool `json:"has_complex_deps"`
	HasPrices      bool `json:"has_prices"`
	HasBaseFields  bool `json:"has_base_fields"`
}

// StrategyKind is the decided scope of a partial update.
type StrategyKind string

const (
	StrategySkip           StrategyKind = "skip"
	StrategyFullResync     StrategyKind = "full_resync"
	StrategyPricesOnly     StrategyKind = "prices_only"
	StrategyAttributesOnly StrategyKind = "attributes_only"
	StrategyBaseFieldsOnly StrategyKind = "base_fields_only"
	StrategyMixedSimple    StrategyKind = "mixed_simple"
)

// Strategy carries the surviving fields per category so the executor can apply
// them in one target write.
type Strategy struct {
	Kind             StrategyKind `json:"kind"`
	BaseFields       []string     `json:"base_fields,omitempty"`
	SimpleFields     []string     `json:"simple_fields,omitempty"`
	StandardPrices   []string     `json:"standard_prices,omitempty"`
	CustomPriceTypes []string     `json:"custom_price_types,omitempty"`
	Attributes       []string     `json:"attributes,omitempty"`
}
