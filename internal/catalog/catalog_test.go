package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"productimages/internal/models"
)

func TestMemory_FindNormalizes(t *testing.T) {
	c := NewMemory(models.CatalogItem{Identifier: " abc-1 ", DisplayName: "Brake pad", Brand: "Acme"})

	it, ok, err := c.FindByIdentifier(context.Background(), "ABC-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "ABC-1", it.Identifier)

	_, ok, err = c.FindByIdentifier(context.Background(), "abc-2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemory_ListAllSorted(t *testing.T) {
	c := NewMemory(
		models.CatalogItem{Identifier: "B"},
		models.CatalogItem{Identifier: "A"},
	)
	items, err := c.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "A", items[0].Identifier)
}

func TestSearch(t *testing.T) {
	items := []models.CatalogItem{
		{Identifier: "ABC-1", DisplayName: "Brake pad", Brand: "Acme"},
		{Identifier: "XYZ-2", DisplayName: "Oil filter", Brand: "Bosch"},
	}
	assert.Len(t, Search(items, ""), 2)
	assert.Equal(t, "XYZ-2", Search(items, "bosch")[0].Identifier)
	assert.Equal(t, "ABC-1", Search(items, "BRAKE")[0].Identifier)
	assert.Equal(t, "ABC-1", Search(items, "abc")[0].Identifier)
	assert.Empty(t, Search(items, "nothing"))
}

func TestNewPostgres_QuotesTable(t *testing.T) {
	p := newPostgres(nil, `weird"name`)
	assert.Contains(t, p.listQuery, `"weird""name"`)
}
