package application

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moysklad-sync-layer/internal/domain"
)

func newTestClassifier(names *fakeNameMappings) *Classifier {
	return NewClassifier(names, newFakeCache(), zerolog.Nop())
}

func TestClassifyPartitionsStandardFields(t *testing.T) {
	names := newFakeNameMappings()
	classifier := newTestClassifier(names)

	cls, err := classifier.Classify(context.Background(), domain.CategoryProduct,
		[]string{"name", "buyPrice", "productFolder", "weight"}, "main-1", "child-1")
	require.NoError(t, err)

	assert.Equal(t, []string{"name"}, cls.Base)
	assert.Equal(t, []string{"buyPrice"}, cls.Prices)
	assert.Equal(t, []string{"productFolder"}, cls.Complex)
	assert.Equal(t, []string{"weight"}, cls.Simple)
	assert.Equal(t, []string{"name", "buyPrice", "productFolder", "weight"}, cls.Standard)
	assert.True(t, cls.HasBaseFields)
	assert.True(t, cls.HasPrices)
	assert.True(t, cls.HasComplexDeps)
	assert.Zero(t, names.getCalls, "standard fields must not hit the mapping store")
}

func TestClassifyCustomNames(t *testing.T) {
	names := newFakeNameMappings()
	names.add(&domain.NameMapping{
		MainAccountID:  "main-1",
		ChildAccountID: "child-1",
		Kind:           domain.MappingAttribute,
		Name:           "Материал",
		MainID:         "attr-1",
		ChildID:        "attr-1c",
	})
	classifier := newTestClassifier(names)

	cls, err := classifier.Classify(context.Background(), domain.CategoryProduct,
		[]string{"Материал", "Франшиза москва"}, "main-1", "child-1")
	require.NoError(t, err)

	assert.Equal(t, []string{"Материал"}, cls.CustomAttributes)
	assert.Equal(t, []string{"Франшиза москва"}, cls.CustomPriceTypes,
		"unmapped custom names fall through to price types")
	assert.True(t, cls.HasPrices)
	assert.Empty(t, cls.Standard)
	assert.False(t, cls.HasComplexDeps)
}

func TestClassifyCachesCustomLookups(t *testing.T) {
	names := newFakeNameMappings()
	classifier := newTestClassifier(names)
	ctx := context.Background()

	_, err := classifier.Classify(ctx, domain.CategoryProduct, []string{"Сорт"}, "main-1", "child-1")
	require.NoError(t, err)
	_, err = classifier.Classify(ctx, domain.CategoryProduct, []string{"Сорт"}, "main-1", "child-1")
	require.NoError(t, err)

	assert.Equal(t, 1, names.getCalls)
}

func TestClassifyCacheIsScopedPerLink(t *testing.T) {
	names := newFakeNameMappings()
	classifier := newTestClassifier(names)
	ctx := context.Background()

	_, err := classifier.Classify(ctx, domain.CategoryProduct, []string{"Сорт"}, "main-1", "child-1")
	require.NoError(t, err)
	_, err = classifier.Classify(ctx, domain.CategoryProduct, []string{"Сорт"}, "main-1", "child-2")
	require.NoError(t, err)

	assert.Equal(t, 2, names.getCalls)
}

func TestClassifyUnknownCategory(t *testing.T) {
	classifier := newTestClassifier(newFakeNameMappings())

	_, err := classifier.Classify(context.Background(), domain.CategoryImage, []string{"name"}, "main-1", "child-1")
	assert.Error(t, err)
}

func TestResolveAttributeMainID(t *testing.T) {
	names := newFakeNameMappings()
	names.add(&domain.NameMapping{
		MainAccountID:  "main-1",
		ChildAccountID: "child-1",
		Kind:           domain.MappingAttribute,
		Name:           "Материал",
		MainID:         "attr-9",
	})
	classifier := newTestClassifier(names)
	ctx := context.Background()

	id, err := classifier.ResolveAttributeMainID(ctx, domain.CategoryProduct, "Материал", "main-1", "child-1")
	require.NoError(t, err)
	assert.Equal(t, "attr-9", id)

	id, err = classifier.ResolveAttributeMainID(ctx, domain.CategoryProduct, "Неизвестный", "main-1", "child-1")
	require.NoError(t, err)
	assert.Empty(t, id)
}
