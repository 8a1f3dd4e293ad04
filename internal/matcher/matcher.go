package matcher

import (
	"context"
	"fmt"

	"productimages/internal/catalog"
	"productimages/internal/identifier"
	"productimages/internal/models"
)

// Index answers whether the collection already holds a current image for a
// part number.
type Index interface {
	HasLiveImage(partNumber string) bool
}

type Decision struct {
	PartNumber       string
	Product          *models.CatalogItem
	Linked           bool
	HasPreviousImage bool
}

type Matcher struct {
	catalog catalog.Catalog
}

func New(c catalog.Catalog) *Matcher {
	return &Matcher{catalog: c}
}

// Match looks id up in the catalog and in index. An empty id is never
// linked and never a duplicate.
func (m *Matcher) Match(ctx context.Context, id string, index Index) (Decision, error) {
	const op = "matcher.Match"

	id = identifier.Normalize(id)
	d := Decision{PartNumber: id}
	if id == "" {
		return d, nil
	}

	item, ok, err := m.catalog.FindByIdentifier(ctx, id)
	if err != nil {
		return Decision{}, fmt.Errorf("%s: %w", op, err)
	}
	if ok {
		d.Product = &item
		d.Linked = true
	}
	if index != nil {
		d.HasPreviousImage = index.HasLiveImage(id)
	}
	return d, nil
}

// DuplicateNote is the advisory note attached to an image whose part number
// already had a current image when it was ingested.
func DuplicateNote(partNumber string) string {
	return fmt.Sprintf("Previous image existed for part %s; this upload was added alongside it.", partNumber)
}
