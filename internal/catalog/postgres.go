package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"productimages/internal/identifier"
	"productimages/internal/models"
)

// Postgres reads catalog items from a table owned by the product service.
// The table needs identifier, display_name and brand columns.
type Postgres struct {
	db        *sql.DB
	findQuery string
	listQuery string
}

func NewPostgres(dsn, table string) (*Postgres, error) {
	const op = "catalog.NewPostgres"

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return newPostgres(db, table), nil
}

func newPostgres(db *sql.DB, table string) *Postgres {
	t := pq.QuoteIdentifier(table)
	return &Postgres{
		db: db,
		findQuery: `SELECT identifier, COALESCE(display_name, ''), COALESCE(brand, '')
			FROM ` + t + ` WHERE UPPER(TRIM(identifier)) = $1 LIMIT 1`,
		listQuery: `SELECT identifier, COALESCE(display_name, ''), COALESCE(brand, '')
			FROM ` + t + ` ORDER BY identifier`,
	}
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

func (p *Postgres) FindByIdentifier(ctx context.Context, id string) (models.CatalogItem, bool, error) {
	const op = "catalog.FindByIdentifier"

	var it models.CatalogItem
	err := p.db.QueryRowContext(ctx, p.findQuery, identifier.Normalize(id)).
		Scan(&it.Identifier, &it.DisplayName, &it.Brand)
	if errors.Is(err, sql.ErrNoRows) {
		return models.CatalogItem{}, false, nil
	}
	if err != nil {
		return models.CatalogItem{}, false, fmt.Errorf("%s: %w", op, err)
	}
	it.Identifier = identifier.Normalize(it.Identifier)
	return it, true, nil
}

func (p *Postgres) ListAll(ctx context.Context) ([]models.CatalogItem, error) {
	const op = "catalog.ListAll"

	rows, err := p.db.QueryContext(ctx, p.listQuery)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []models.CatalogItem
	for rows.Next() {
		var it models.CatalogItem
		if err := rows.Scan(&it.Identifier, &it.DisplayName, &it.Brand); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		it.Identifier = identifier.Normalize(it.Identifier)
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}
