package domain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetaEntityID(t *testing.T) {
	tests := []struct {
		name string
		href string
		want string
	}{
		{"plain href", APIBase + "/entity/product/abc-123", "abc-123"},
		{"trailing slash", APIBase + "/entity/product/abc-123/", "abc-123"},
		{"bare id", "abc-123", "abc-123"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Meta{Href: tt.href}.EntityID())
		})
	}
}

func TestMetaBuildersRoundTrip(t *testing.T) {
	m := EntityMeta("product", "p1")
	assert.Equal(t, APIBase+"/entity/product/p1", m.Href)
	assert.Equal(t, "product", m.Type)
	assert.Equal(t, "p1", m.EntityID())

	attr := MetadataAttributeMeta("product", "a1")
	assert.Equal(t, APIBase+"/entity/product/metadata/attributes/a1", attr.Href)
	assert.Equal(t, "attributemetadata", attr.Type)
	assert.Equal(t, "a1", attr.EntityID())

	pt := PriceTypeMeta("pt1")
	assert.Equal(t, APIBase+"/context/companysettings/pricetype/pt1", pt.Href)
	assert.Equal(t, "pricetype", pt.Type)
}

func TestCategoryFromType(t *testing.T) {
	for _, metaType := range []string{"product", "variant", "bundle", "service", "productfolder", "customerorder", "image"} {
		category, ok := CategoryFromType(metaType)
		assert.True(t, ok, metaType)
		assert.Equal(t, EntityCategory(metaType), category)
	}

	_, ok := CategoryFromType("retaildemand")
	assert.False(t, ok)
	_, ok = CategoryFromType("batch_variant")
	assert.False(t, ok, "internal categories are not webhook meta types")
}

func TestCatalogCategory(t *testing.T) {
	assert.True(t, CategoryProduct.CatalogCategory())
	assert.True(t, CategoryFolder.CatalogCategory())
	assert.False(t, CategoryOrder.CatalogCategory())
	assert.False(t, CategoryImage.CatalogCategory())
}

func TestCategoryEnabled(t *testing.T) {
	cfg := SyncConfig{SyncProducts: true, SyncVariants: true}

	assert.True(t, cfg.CategoryEnabled(CategoryProduct))
	assert.True(t, cfg.CategoryEnabled(CategoryFolder), "folders follow the product toggle")
	assert.True(t, cfg.CategoryEnabled(CategoryBatchVariant), "variant backfill follows the variant toggle")
	assert.False(t, cfg.CategoryEnabled(CategoryBundle))
	assert.False(t, cfg.CategoryEnabled(CategoryOrder))
	assert.False(t, cfg.CategoryEnabled(CategoryWebhookCheck))
}

func TestPriceTypeByName(t *testing.T) {
	cfg := SyncConfig{PriceTypes: []PriceTypeLink{
		{Name: "Опт", MainID: "m1", ChildID: "c1"},
	}}

	pt, ok := cfg.PriceTypeByName("Опт")
	assert.True(t, ok)
	assert.Equal(t, "c1", pt.ChildID)

	_, ok = cfg.PriceTypeByName("Розница")
	assert.False(t, ok)
}

func TestAttributeAllowed(t *testing.T) {
	assert.True(t, SyncConfig{}.AttributeAllowed("any"), "empty list allows everything")

	cfg := SyncConfig{AttributeAllowList: []string{"a1"}}
	assert.True(t, cfg.AttributeAllowed("a1"))
	assert.False(t, cfg.AttributeAllowed("a2"))
}

func TestWebhookStatHealth(t *testing.T) {
	assert.Equal(t, HealthHealthy, (&WebhookStat{Active: true}).Health())
	assert.Equal(t, HealthDegraded, (&WebhookStat{Active: true, FailedChecks: 1}).Health())
	assert.Equal(t, HealthDegraded, (&WebhookStat{Active: false}).Health())
	assert.Equal(t, HealthCritical, (&WebhookStat{Active: false, FailedChecks: FailedChecksCritical}).Health())
}

func TestAttemptsExhausted(t *testing.T) {
	task := &SyncTask{Attempts: 2, MaxAttempts: 3}
	assert.False(t, task.AttemptsExhausted())
	task.Attempts = 3
	assert.True(t, task.AttemptsExhausted())
}

func TestErrorClassification(t *testing.T) {
	notFound := &APIError{Status: http.StatusNotFound, Body: "gone"}
	rateLimited := &APIError{Status: http.StatusTooManyRequests}
	serverErr := &APIError{Status: http.StatusBadGateway}
	badRequest := &APIError{Status: http.StatusBadRequest}

	assert.True(t, IsNotFound(notFound))
	assert.True(t, IsNotFound(fmt.Errorf("fetch: %w", notFound)), "wrapped errors still classify")
	assert.False(t, IsNotFound(serverErr))

	assert.True(t, IsRateLimited(rateLimited))
	assert.False(t, IsRateLimited(notFound))

	assert.True(t, IsTransient(rateLimited))
	assert.True(t, IsTransient(serverErr))
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.False(t, IsTransient(badRequest))
	assert.False(t, IsTransient(notFound))
	assert.False(t, IsTransient(errors.New("logic error")))
}

func TestAccountActive(t *testing.T) {
	assert.True(t, (&Account{Status: StatusActivated}).Active())
	assert.False(t, (&Account{Status: StatusUninstalled}).Active())
}

func TestWebhookEventEntityID(t *testing.T) {
	e := WebhookEvent{Meta: EntityMeta("product", "p9")}
	assert.Equal(t, "p9", e.EntityID())
}
