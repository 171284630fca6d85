package task_handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moysklad-sync-layer/internal/application"
	"moysklad-sync-layer/internal/domain"
	"moysklad-sync-layer/internal/infrastructure/metrics"
)

type stubUpdateLogs struct{}

func (stubUpdateLogs) Insert(context.Context, *domain.EntityUpdateLog) error { return nil }
func (stubUpdateLogs) Update(context.Context, *domain.EntityUpdateLog) error { return nil }

type catalogFixture struct {
	handler        *CatalogHandler
	links          *stubChildLinks
	entityMappings *stubEntityMappings
	pool           *stubPool
}

func newCatalogFixture() *catalogFixture {
	logger := zerolog.Nop()
	links := &stubChildLinks{link: &domain.ChildLink{
		ID:             "link-1",
		MainAccountID:  "main-1",
		ChildAccountID: "child-1",
		Active:         true,
		Config: domain.SyncConfig{
			SyncProducts: true,
			SyncPrices:   true,
		},
	}}
	entityMappings := &stubEntityMappings{}
	pool := newStubPool()
	executor := application.NewExecutor(pool, entityMappings, &stubNameMappings{}, stubUpdateLogs{}, metrics.Nop(), logger)
	syncer := application.NewEntitySyncer(pool, entityMappings, executor, logger)
	return &catalogFixture{
		handler:        NewCatalogHandler(domain.CategoryProduct, links, syncer, logger),
		links:          links,
		entityMappings: entityMappings,
		pool:           pool,
	}
}

func (f *catalogFixture) mapProduct(mainID, childID string) {
	f.entityMappings.mappings = append(f.entityMappings.mappings, &domain.EntityMapping{
		ID:            "m-" + mainID,
		MainAccountID: "main-1", ChildAccountID: "child-1",
		Category: domain.CategoryProduct, MainEntityID: mainID, ChildEntityID: childID,
	})
}

func (f *catalogFixture) mappingFor(mainID string) *domain.EntityMapping {
	for _, m := range f.entityMappings.mappings {
		if m.MainEntityID == mainID {
			return m
		}
	}
	return nil
}

func productTask(op domain.TaskOperation, entityID string) *domain.SyncTask {
	return &domain.SyncTask{
		ID:        "task-1",
		AccountID: "child-1",
		Category:  domain.CategoryProduct,
		EntityID:  entityID,
		Operation: op,
		Payload:   domain.TaskPayload{MainAccountID: "main-1"},
	}
}

func TestCatalogHandlerRequiresMainAccount(t *testing.T) {
	f := newCatalogFixture()
	task := productTask(domain.OpUpdate, "p1")
	task.Payload.MainAccountID = ""

	assert.Error(t, f.handler.Handle(context.Background(), task))
}

func TestCatalogHandlerRejectsRelinkLeftovers(t *testing.T) {
	f := newCatalogFixture()
	task := productTask(domain.OpUpdate, "p1")
	task.Payload.MainAccountID = "old-main"

	err := f.handler.Handle(context.Background(), task)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match")
}

func TestCatalogHandlerSkipsDisabledCategory(t *testing.T) {
	f := newCatalogFixture()
	f.links.link.Config.SyncProducts = false

	require.NoError(t, f.handler.Handle(context.Background(), productTask(domain.OpUpdate, "p1")))
	assert.Empty(t, f.pool.client("main-1").calls)
}

func TestCatalogHandlerDeleteArchivesChildEntity(t *testing.T) {
	f := newCatalogFixture()
	f.mapProduct("p1", "c1")

	require.NoError(t, f.handler.Handle(context.Background(), productTask(domain.OpDelete, "p1")))

	puts := f.pool.client("child-1").callsTo("PUT", "/entity/product/c1")
	require.Len(t, puts, 1)
	assert.Equal(t, map[string]any{"archived": true}, puts[0].Body)
	assert.Empty(t, f.pool.client("child-1").callsTo("DELETE", "/entity/product"),
		"child entities are archived, never deleted")
}

func TestCatalogHandlerDropsStaleMappingOnVanishedChild(t *testing.T) {
	f := newCatalogFixture()
	f.mapProduct("p1", "c1")
	f.pool.client("main-1").on("GET", "/entity/product/p1", map[string]any{"name": "Товар", "article": "TS-01"})
	f.pool.client("child-1").fail("PUT", "/entity/product/c1", &domain.APIError{Status: http.StatusNotFound, Body: "gone"})

	err := f.handler.Handle(context.Background(), productTask(domain.OpUpdate, "p1"))
	require.Error(t, err)
	assert.True(t, domain.IsNotFound(err), "the 404 must surface so the queue converts the task to a create")
	assert.Nil(t, f.mappingFor("p1"), "stale mapping must be deleted")
}

func TestCatalogHandlerRecreatesAfterStaleMappingDropped(t *testing.T) {
	f := newCatalogFixture()
	f.mapProduct("p1", "c1")
	f.pool.client("main-1").on("GET", "/entity/product/p1", map[string]any{"name": "Товар", "article": "TS-01"})
	f.pool.client("child-1").fail("PUT", "/entity/product/c1", &domain.APIError{Status: http.StatusNotFound, Body: "gone"})
	f.pool.client("child-1").on("POST", "/entity/product", map[string]any{"id": "c2"})

	// First run hits the dead child id and drops the mapping.
	require.Error(t, f.handler.Handle(context.Background(), productTask(domain.OpUpdate, "p1")))

	// The converted create resolves a fresh counterpart and remaps it.
	require.NoError(t, f.handler.Handle(context.Background(), productTask(domain.OpCreate, "p1")))

	mapping := f.mappingFor("p1")
	require.NotNil(t, mapping)
	assert.Equal(t, "c2", mapping.ChildEntityID)
	assert.Len(t, f.pool.client("child-1").callsTo("PUT", "/entity/product/c2"), 1)
}

func TestCatalogHandlerDeleteOfVanishedChildCompletes(t *testing.T) {
	f := newCatalogFixture()
	f.mapProduct("p1", "c1")
	f.pool.client("child-1").fail("PUT", "/entity/product/c1", &domain.APIError{Status: http.StatusNotFound, Body: "gone"})

	require.NoError(t, f.handler.Handle(context.Background(), productTask(domain.OpDelete, "p1")))
	assert.Nil(t, f.mappingFor("p1"), "mapping of an already-gone child is dropped")
}

func TestCatalogHandlerBatchSyncsEveryEntity(t *testing.T) {
	f := newCatalogFixture()
	f.mapProduct("p1", "c1")
	f.mapProduct("p2", "c2")
	f.pool.client("main-1").on("GET", "/entity/product/p1", map[string]any{"name": "Один"})
	f.pool.client("main-1").on("GET", "/entity/product/p2", map[string]any{"name": "Два"})

	task := productTask(domain.OpBatchSync, "")
	task.Payload.EntityIDs = []string{"p1", "p2"}
	require.NoError(t, f.handler.Handle(context.Background(), task))

	assert.Len(t, f.pool.client("child-1").callsTo("PUT", "/entity/product/c1"), 1)
	assert.Len(t, f.pool.client("child-1").callsTo("PUT", "/entity/product/c2"), 1)
}
