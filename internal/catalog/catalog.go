// Package catalog is the read-only product lookup the pipeline consumes.
package catalog

import (
	"context"
	"sort"
	"strings"
	"sync"

	"productimages/internal/identifier"
	"productimages/internal/models"
)

type Catalog interface {
	FindByIdentifier(ctx context.Context, id string) (models.CatalogItem, bool, error)
	ListAll(ctx context.Context) ([]models.CatalogItem, error)
}

// Memory is an in-process catalog keyed by normalized identifier.
type Memory struct {
	mu    sync.RWMutex
	items map[string]models.CatalogItem
}

func NewMemory(items ...models.CatalogItem) *Memory {
	m := &Memory{items: make(map[string]models.CatalogItem, len(items))}
	for _, it := range items {
		m.Put(it)
	}
	return m
}

func (m *Memory) Put(item models.CatalogItem) {
	item.Identifier = identifier.Normalize(item.Identifier)
	m.mu.Lock()
	m.items[item.Identifier] = item
	m.mu.Unlock()
}

func (m *Memory) FindByIdentifier(_ context.Context, id string) (models.CatalogItem, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	it, ok := m.items[identifier.Normalize(id)]
	return it, ok, nil
}

func (m *Memory) ListAll(_ context.Context) ([]models.CatalogItem, error) {
	m.mu.RLock()
	out := make([]models.CatalogItem, 0, len(m.items))
	for _, it := range m.items {
		out = append(out, it)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Identifier < out[j].Identifier })
	return out, nil
}

// Search filters items by a case-insensitive substring of identifier,
// display name or brand. An empty query returns items unchanged.
func Search(items []models.CatalogItem, query string) []models.CatalogItem {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return items
	}
	var out []models.CatalogItem
	for _, it := range items {
		if strings.Contains(strings.ToLower(it.Identifier), q) ||
			strings.Contains(strings.ToLower(it.DisplayName), q) ||
			strings.Contains(strings.ToLower(it.Brand), q) {
			out = append(out, it)
		}
	}
	return out
}
