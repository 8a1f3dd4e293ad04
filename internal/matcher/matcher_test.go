package matcher

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"productimages/internal/catalog"
	"productimages/internal/models"
)

type fakeIndex map[string]bool

func (f fakeIndex) HasLiveImage(pn string) bool { return f[pn] }

type failingCatalog struct{}

func (failingCatalog) FindByIdentifier(context.Context, string) (models.CatalogItem, bool, error) {
	return models.CatalogItem{}, false, errors.New("catalog down")
}

func (failingCatalog) ListAll(context.Context) ([]models.CatalogItem, error) {
	return nil, errors.New("catalog down")
}

func newMatcher() *Matcher {
	return New(catalog.NewMemory(models.CatalogItem{Identifier: "X1", DisplayName: "Widget"}))
}

func TestMatch_Linked(t *testing.T) {
	d, err := newMatcher().Match(context.Background(), " x1 ", fakeIndex{})
	require.NoError(t, err)

	assert.True(t, d.Linked)
	require.NotNil(t, d.Product)
	assert.Equal(t, "Widget", d.Product.DisplayName)
	assert.Equal(t, "X1", d.PartNumber)
	assert.False(t, d.HasPreviousImage)
}

func TestMatch_UnknownIdentifierIsArchived(t *testing.T) {
	d, err := newMatcher().Match(context.Background(), "NOPE", fakeIndex{"NOPE": true})
	require.NoError(t, err)

	assert.False(t, d.Linked)
	assert.Nil(t, d.Product)
	assert.True(t, d.HasPreviousImage)
}

func TestMatch_EmptyIdentifier(t *testing.T) {
	d, err := newMatcher().Match(context.Background(), "  ", fakeIndex{"": true})
	require.NoError(t, err)

	assert.False(t, d.Linked)
	assert.False(t, d.HasPreviousImage)
	assert.Equal(t, "", d.PartNumber)
}

func TestMatch_DuplicateFlag(t *testing.T) {
	d, err := newMatcher().Match(context.Background(), "X1", fakeIndex{"X1": true})
	require.NoError(t, err)
	assert.True(t, d.Linked)
	assert.True(t, d.HasPreviousImage)
}

func TestMatch_CatalogError(t *testing.T) {
	_, err := New(failingCatalog{}).Match(context.Background(), "X1", nil)
	assert.Error(t, err)
}

func TestDuplicateNote(t *testing.T) {
	assert.Contains(t, DuplicateNote("X1"), "X1")
}
