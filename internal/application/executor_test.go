package application

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moysklad-sync-layer/internal/domain"
	"moysklad-sync-layer/internal/infrastructure/metrics"
)

type executorFixture struct {
	executor       *Executor
	pool           *fakePool
	entityMappings *fakeEntityMappings
	nameMappings   *fakeNameMappings
	updateLogs     *fakeUpdateLogs
}

func newExecutorFixture() *executorFixture {
	pool := newFakePool()
	entityMappings := newFakeEntityMappings()
	nameMappings := newFakeNameMappings()
	updateLogs := &fakeUpdateLogs{}
	return &executorFixture{
		executor:       NewExecutor(pool, entityMappings, nameMappings, updateLogs, metrics.Nop(), zerolog.Nop()),
		pool:           pool,
		entityMappings: entityMappings,
		nameMappings:   nameMappings,
		updateLogs:     updateLogs,
	}
}

func (f *executorFixture) apply(t *testing.T, strategy domain.Strategy, cfg domain.SyncConfig) (*domain.EntityUpdateLog, error) {
	t.Helper()
	return f.executor.Apply(context.Background(), strategy, domain.CategoryProduct,
		"main-1", "child-1", "p1", "c1", cfg, nil)
}

func TestApplySkipStillWritesAudit(t *testing.T) {
	f := newExecutorFixture()

	audit, err := f.apply(t, domain.Strategy{Kind: domain.StrategySkip}, allOnConfig())
	require.NoError(t, err)

	require.Len(t, f.updateLogs.inserted, 1)
	assert.Equal(t, domain.UpdateCompleted, audit.Status)
	assert.Empty(t, f.pool.client("main-1").calls)
	assert.Empty(t, f.pool.client("child-1").calls)
}

func TestApplyPricesOnlyTranslatesPriceTypes(t *testing.T) {
	f := newExecutorFixture()
	f.pool.client("main-1").on("GET", "/entity/product/p1", map[string]any{
		"buyPrice": map[string]any{"value": 1500.0},
		"salePrices": []any{
			map[string]any{
				"value":     2000.0,
				"priceType": map[string]any{"name": "Опт"},
			},
			map[string]any{
				"value":     2500.0,
				"priceType": map[string]any{"name": "Розница спб"},
			},
		},
	})

	cfg := allOnConfig()
	cfg.PriceTypes = []domain.PriceTypeLink{{Name: "Опт", MainID: "pt-1", ChildID: "pt-1c"}}
	strategy := domain.Strategy{
		Kind:             domain.StrategyPricesOnly,
		StandardPrices:   []string{"buyPrice"},
		CustomPriceTypes: []string{"Опт"},
	}

	audit, err := f.apply(t, strategy, cfg)
	require.NoError(t, err)
	assert.Equal(t, domain.UpdateCompleted, audit.Status)

	puts := f.pool.client("child-1").callsTo("PUT", "/entity/product/c1")
	require.Len(t, puts, 1)
	body := puts[0].Body.(map[string]any)
	assert.Contains(t, body, "buyPrice")

	salePrices := body["salePrices"].([]map[string]any)
	require.Len(t, salePrices, 1, "only the configured price type is carried")
	assert.Equal(t, 2000.0, salePrices[0]["value"])
	priceType := salePrices[0]["priceType"].(map[string]any)
	meta := priceType["meta"].(domain.Meta)
	assert.Contains(t, meta.Href, "pt-1c")
}

func TestApplyAttributesOnlySkipsUnmappedNames(t *testing.T) {
	f := newExecutorFixture()
	f.pool.client("main-1").on("GET", "/entity/product/p1", map[string]any{
		"attributes": []any{
			map[string]any{"name": "Материал", "value": "хлопок"},
			map[string]any{"name": "Сезон", "value": "лето"},
		},
	})
	f.nameMappings.add(&domain.NameMapping{
		MainAccountID: "main-1", ChildAccountID: "child-1",
		Kind: domain.MappingAttribute, Name: "Материал",
		MainID: "attr-1", ChildID: "attr-1c",
	})

	strategy := domain.Strategy{
		Kind:       domain.StrategyAttributesOnly,
		Attributes: []string{"Материал", "Сезон"},
	}
	audit, err := f.apply(t, strategy, allOnConfig())
	require.NoError(t, err)
	assert.Equal(t, domain.UpdateCompleted, audit.Status)

	puts := f.pool.client("child-1").callsTo("PUT", "/entity/product/c1")
	require.Len(t, puts, 1)
	attrs := puts[0].Body.(map[string]any)["attributes"].([]map[string]any)
	require.Len(t, attrs, 1)
	meta := attrs[0]["meta"].(domain.Meta)
	assert.Contains(t, meta.Href, "attr-1c")
	assert.Equal(t, "хлопок", attrs[0]["value"])
}

func TestApplyBaseFieldsOnlyCopiesVerbatim(t *testing.T) {
	f := newExecutorFixture()
	f.pool.client("main-1").on("GET", "/entity/product/p1", map[string]any{
		"name":        "Футболка",
		"description": "базовая",
		"article":     "TS-01",
	})

	strategy := domain.Strategy{
		Kind:       domain.StrategyBaseFieldsOnly,
		BaseFields: []string{"name", "description"},
	}
	_, err := f.apply(t, strategy, allOnConfig())
	require.NoError(t, err)

	puts := f.pool.client("child-1").callsTo("PUT", "/entity/product/c1")
	require.Len(t, puts, 1)
	body := puts[0].Body.(map[string]any)
	assert.Equal(t, map[string]any{"name": "Футболка", "description": "базовая"}, body)
}

func TestApplyTargetFailureRecordsFailedAudit(t *testing.T) {
	f := newExecutorFixture()
	f.pool.client("main-1").on("GET", "/entity/product/p1", map[string]any{"name": "Футболка"})
	f.pool.client("child-1").fail("PUT", "/entity/product/c1", &domain.APIError{Status: 500, Body: "boom"})

	strategy := domain.Strategy{Kind: domain.StrategyBaseFieldsOnly, BaseFields: []string{"name"}}
	audit, err := f.apply(t, strategy, allOnConfig())
	require.Error(t, err)

	assert.Equal(t, domain.UpdateFailed, audit.Status)
	assert.NotEmpty(t, audit.Error)
	require.Len(t, f.updateLogs.inserted, 1, "audit row exists before the write is attempted")
}

func TestApplyFullResyncRequiresFolderMapping(t *testing.T) {
	f := newExecutorFixture()
	f.pool.client("main-1").on("GET", "/entity/product/p1", map[string]any{
		"name": "Футболка",
		"productFolder": map[string]any{
			"meta": map[string]any{
				"href": domain.APIBase + "/entity/productfolder/f1",
				"type": "productfolder",
			},
		},
	})

	_, err := f.apply(t, domain.Strategy{Kind: domain.StrategyFullResync}, allOnConfig())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMappingMissing)
}

func TestApplyFullResyncStripsReadOnlyAndTranslates(t *testing.T) {
	f := newExecutorFixture()
	f.pool.client("main-1").on("GET", "/entity/product/p1", map[string]any{
		"id":      "p1",
		"meta":    map[string]any{"href": "x"},
		"name":    "Футболка",
		"weight":  0.2,
		"updated": "2026-08-01 10:00:00",
		"productFolder": map[string]any{
			"meta": map[string]any{
				"href": domain.APIBase + "/entity/productfolder/f1",
				"type": "productfolder",
			},
		},
	})
	f.entityMappings.add(&domain.EntityMapping{
		MainAccountID: "main-1", ChildAccountID: "child-1",
		Category: domain.CategoryFolder, MainEntityID: "f1", ChildEntityID: "f1c",
	})

	audit, err := f.apply(t, domain.Strategy{Kind: domain.StrategyFullResync}, allOnConfig())
	require.NoError(t, err)
	assert.Equal(t, domain.UpdateCompleted, audit.Status)

	puts := f.pool.client("child-1").callsTo("PUT", "/entity/product/c1")
	require.Len(t, puts, 1)
	body := puts[0].Body.(map[string]any)
	assert.NotContains(t, body, "id")
	assert.NotContains(t, body, "meta")
	assert.NotContains(t, body, "updated")
	assert.Equal(t, "Футболка", body["name"])

	folder := body["productFolder"].(map[string]any)
	meta := folder["meta"].(domain.Meta)
	assert.Contains(t, meta.Href, "f1c")
}

func TestApplyFullResyncTranslatesBundleComponents(t *testing.T) {
	f := newExecutorFixture()
	f.pool.client("main-1").on("GET", "/entity/bundle/b1", map[string]any{
		"name": "Набор",
		"components": map[string]any{"rows": []any{
			map[string]any{
				"assortment": map[string]any{"meta": map[string]any{
					"href": domain.APIBase + "/entity/product/p-comp",
					"type": "product",
				}},
				"quantity": 2.0,
			},
		}},
	})
	f.entityMappings.add(&domain.EntityMapping{
		MainAccountID: "main-1", ChildAccountID: "child-1",
		Category: domain.CategoryProduct, MainEntityID: "p-comp", ChildEntityID: "c-comp",
	})

	_, err := f.executor.Apply(context.Background(), domain.Strategy{Kind: domain.StrategyFullResync},
		domain.CategoryBundle, "main-1", "child-1", "b1", "cb1", allOnConfig(), nil)
	require.NoError(t, err)

	puts := f.pool.client("child-1").callsTo("PUT", "/entity/bundle/cb1")
	require.Len(t, puts, 1)
	body := puts[0].Body.(map[string]any)
	components := body["components"].([]map[string]any)
	require.Len(t, components, 1)
	assert.Equal(t, 2.0, components[0]["quantity"])
	ref := components[0]["assortment"].(map[string]any)
	meta := ref["meta"].(domain.Meta)
	assert.Contains(t, meta.Href, "c-comp")
}

func TestApplyFullResyncFailsOnUnmappedComponent(t *testing.T) {
	f := newExecutorFixture()
	f.pool.client("main-1").on("GET", "/entity/bundle/b1", map[string]any{
		"name": "Набор",
		"components": map[string]any{"rows": []any{
			map[string]any{
				"assortment": map[string]any{"meta": map[string]any{
					"href": domain.APIBase + "/entity/product/p-comp",
					"type": "product",
				}},
			},
		}},
	})

	_, err := f.executor.Apply(context.Background(), domain.Strategy{Kind: domain.StrategyFullResync},
		domain.CategoryBundle, "main-1", "child-1", "b1", "cb1", allOnConfig(), nil)
	require.ErrorIs(t, err, domain.ErrMappingMissing)
	assert.Empty(t, f.pool.client("child-1").callsTo("PUT", "/entity/bundle/cb1"),
		"a bundle with a dangling component never reaches the child")
}

func TestApplyFullResyncTranslatesVariantCharacteristics(t *testing.T) {
	f := newExecutorFixture()
	f.pool.client("main-1").on("GET", "/entity/variant/v1", map[string]any{
		"name": "Футболка (S)",
		"characteristics": []any{
			map[string]any{"name": "Цвет", "value": "Синий"},
		},
	})
	f.nameMappings.add(&domain.NameMapping{
		MainAccountID: "main-1", ChildAccountID: "child-1",
		Kind: domain.MappingCharacteristic, Name: "Цвет",
		MainID: "ch-main", ChildID: "ch-child",
	})

	_, err := f.executor.Apply(context.Background(), domain.Strategy{Kind: domain.StrategyFullResync},
		domain.CategoryVariant, "main-1", "child-1", "v1", "cv1", allOnConfig(), nil)
	require.NoError(t, err)

	puts := f.pool.client("child-1").callsTo("PUT", "/entity/variant/cv1")
	require.Len(t, puts, 1)
	body := puts[0].Body.(map[string]any)
	characteristics := body["characteristics"].([]map[string]any)
	require.Len(t, characteristics, 1)
	assert.Equal(t, "Синий", characteristics[0]["value"])
	meta := characteristics[0]["meta"].(domain.Meta)
	assert.Contains(t, meta.Href, "ch-child")
}

func TestApplyFullResyncFailsOnUnmappedCharacteristic(t *testing.T) {
	f := newExecutorFixture()
	f.pool.client("main-1").on("GET", "/entity/variant/v1", map[string]any{
		"name": "Футболка (S)",
		"characteristics": []any{
			map[string]any{"name": "Размер", "value": "S"},
		},
	})

	_, err := f.executor.Apply(context.Background(), domain.Strategy{Kind: domain.StrategyFullResync},
		domain.CategoryVariant, "main-1", "child-1", "v1", "cv1", allOnConfig(), nil)
	require.ErrorIs(t, err, domain.ErrMappingMissing)
	assert.Empty(t, f.pool.client("child-1").callsTo("PUT", "/entity/variant/cv1"))
}
