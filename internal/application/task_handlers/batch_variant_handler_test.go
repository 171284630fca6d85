package task_handlers

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moysklad-sync-layer/internal/application"
	"moysklad-sync-layer/internal/domain"
	"moysklad-sync-layer/internal/infrastructure/metrics"
)

type batchVariantFixture struct {
	handler        *BatchVariantHandler
	links          *stubChildLinks
	entityMappings *stubEntityMappings
	pool           *stubPool
}

func newBatchVariantFixture() *batchVariantFixture {
	logger := zerolog.Nop()
	links := &stubChildLinks{link: &domain.ChildLink{
		ID:             "link-1",
		MainAccountID:  "main-1",
		ChildAccountID: "child-1",
		Active:         true,
		Config: domain.SyncConfig{
			SyncProducts: true,
			SyncVariants: true,
		},
	}}
	entityMappings := &stubEntityMappings{}
	pool := newStubPool()
	executor := application.NewExecutor(pool, entityMappings, &stubNameMappings{}, stubUpdateLogs{}, metrics.Nop(), logger)
	syncer := application.NewEntitySyncer(pool, entityMappings, executor, logger)
	return &batchVariantFixture{
		handler:        NewBatchVariantHandler(links, syncer, pool, logger),
		links:          links,
		entityMappings: entityMappings,
		pool:           pool,
	}
}

func (f *batchVariantFixture) addMapping(category domain.EntityCategory, mainID, childID string) {
	f.entityMappings.mappings = append(f.entityMappings.mappings, &domain.EntityMapping{
		ID:            "m-" + mainID,
		MainAccountID: "main-1", ChildAccountID: "child-1",
		Category: category, MainEntityID: mainID, ChildEntityID: childID,
	})
}

func batchVariantTask(parentID string, variantIDs ...string) *domain.SyncTask {
	return &domain.SyncTask{
		ID:        "task-1",
		AccountID: "child-1",
		Category:  domain.CategoryBatchVariant,
		Operation: domain.OpBatchSync,
		Payload: domain.TaskPayload{
			MainAccountID: "main-1",
			ParentID:      parentID,
			EntityIDs:     variantIDs,
		},
	}
}

func TestBatchVariantHandlerResolvesVariantsFromParent(t *testing.T) {
	f := newBatchVariantFixture()
	f.addMapping(domain.CategoryProduct, "p1", "cp1")
	f.addMapping(domain.CategoryVariant, "v1", "cv1")
	f.addMapping(domain.CategoryVariant, "v2", "cv2")

	main := f.pool.client("main-1")
	main.on("GET", "/entity/variant", map[string]any{"rows": []any{
		map[string]any{"id": "v1"},
		map[string]any{"meta": map[string]any{"href": domain.APIBase + "/entity/variant/v2"}},
	}})
	main.on("GET", "/entity/variant/v1", map[string]any{"name": "Футболка (S)"})
	main.on("GET", "/entity/variant/v2", map[string]any{"name": "Футболка (M)"})

	err := f.handler.Handle(context.Background(), batchVariantTask("p1"))
	require.NoError(t, err)

	child := f.pool.client("child-1")
	require.Len(t, child.callsTo("PUT", "/entity/variant/cv1"), 1)
	require.Len(t, child.callsTo("PUT", "/entity/variant/cv2"), 1)
	assert.Len(t, main.callsTo("GET", "/entity/variant"), 3, "one listing page plus the two fetches")
}

func TestBatchVariantHandlerUsesEnumeratedVariants(t *testing.T) {
	f := newBatchVariantFixture()
	f.addMapping(domain.CategoryProduct, "p1", "cp1")
	f.addMapping(domain.CategoryVariant, "v1", "cv1")

	main := f.pool.client("main-1")
	main.on("GET", "/entity/variant/v1", map[string]any{"name": "Футболка (S)"})

	err := f.handler.Handle(context.Background(), batchVariantTask("p1", "v1"))
	require.NoError(t, err)

	listings := 0
	for _, call := range main.callsTo("GET", "/entity/variant") {
		if call.Path == "/entity/variant" {
			listings++
		}
	}
	assert.Zero(t, listings, "enumerated tasks do not re-list the parent's variants")
	require.Len(t, f.pool.client("child-1").callsTo("PUT", "/entity/variant/cv1"), 1)
}

func TestBatchVariantHandlerRequiresParent(t *testing.T) {
	f := newBatchVariantFixture()

	err := f.handler.Handle(context.Background(), batchVariantTask(""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no parent product id")
}

func TestBatchVariantHandlerSkipsWhenVariantsDisabled(t *testing.T) {
	f := newBatchVariantFixture()
	f.links.link.Config.SyncVariants = false

	err := f.handler.Handle(context.Background(), batchVariantTask("p1"))
	require.NoError(t, err)
	assert.Empty(t, f.pool.client("main-1").calls)
}
