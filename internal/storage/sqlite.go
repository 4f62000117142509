package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/vitrine-shop/vitrine/internal/catalog"
	"github.com/vitrine-shop/vitrine/internal/db"
)

// SQLiteBackend is the relational mirror behind the REST API. Each row is
// the item's JSON document; ordering comes from the created_at column.
type SQLiteBackend struct {
	db *sql.DB
}

var (
	_ ItemFinder  = (*SQLiteBackend)(nil)
	_ ItemCounter = (*SQLiteBackend)(nil)
)

// NewSQLiteBackend wraps an initialized database (see db.Init).
func NewSQLiteBackend(conn *sql.DB) *SQLiteBackend {
	return &SQLiteBackend{db: conn}
}

func (b *SQLiteBackend) Name() string { return EngineSQLite }

func (b *SQLiteBackend) GetProfile(ctx context.Context) (*catalog.Profile, error) {
	data, err := db.GetProfile(ctx, b.db)
	if err != nil || data == nil {
		return nil, err
	}
	var p catalog.Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	return &p, nil
}

func (b *SQLiteBackend) SaveProfile(ctx context.Context, p catalog.Profile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return db.PutProfile(ctx, b.db, data)
}

func (b *SQLiteBackend) GetItems(ctx context.Context) ([]catalog.Item, error) {
	rows, err := db.ListItems(ctx, b.db)
	if err != nil {
		return nil, err
	}
	items := make([]catalog.Item, 0, len(rows))
	for _, row := range rows {
		item, err := decodeItem(row)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func (b *SQLiteBackend) FindItem(ctx context.Context, id string) (catalog.Item, bool, error) {
	row, err := db.GetItem(ctx, b.db, id)
	if err != nil || row == nil {
		return catalog.Item{}, false, err
	}
	item, err := decodeItem(*row)
	if err != nil {
		return catalog.Item{}, false, err
	}
	return item, true, nil
}

func (b *SQLiteBackend) CountItems(ctx context.Context) (int, error) {
	return db.CountItems(ctx, b.db)
}

func decodeItem(row db.ItemRow) (catalog.Item, error) {
	var item catalog.Item
	if err := json.Unmarshal(row.Data, &item); err != nil {
		return catalog.Item{}, fmt.Errorf("decode item %s: %w", row.ID, err)
	}
	item.ID = row.ID
	return item, nil
}

func (b *SQLiteBackend) SaveItem(ctx context.Context, item catalog.Item) error {
	data, err := json.Marshal(item)
	if err != nil {
		return err
	}
	return db.UpsertItem(ctx, b.db, db.ItemRow{
		ID:        item.ID,
		CreatedAt: item.CreatedAt,
		Data:      data,
	})
}

func (b *SQLiteBackend) DeleteItem(ctx context.Context, id string) error {
	_, err := db.DeleteItem(ctx, b.db, id)
	return err
}
