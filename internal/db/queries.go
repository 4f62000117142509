package db

import (
	"context"
	"database/sql"
	stderrors "errors"
	"time"

	"github.com/vitrine-shop/vitrine/internal/errors"
)

// ItemRow is one stored item: an opaque JSON document keyed by id, with
// created_at lifted out for ordering.
type ItemRow struct {
	ID        string
	CreatedAt int64
	Data      []byte
	UpdatedAt int64
}

// GetProfile returns the stored profile document, or nil if none exists.
func GetProfile(ctx context.Context, db *sql.DB) ([]byte, error) {
	var data string
	err := db.QueryRowContext(ctx, `SELECT data FROM store_profile WHERE id = 1`).Scan(&data)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.NewInternal(err)
	}
	return []byte(data), nil
}

// PutProfile replaces the profile document.
func PutProfile(ctx context.Context, db *sql.DB, data []byte) error {
	query := `
		INSERT INTO store_profile (id, data, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`
	if _, err := db.ExecContext(ctx, query, string(data), time.Now().Unix()); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// ListItems returns all items, newest first.
func ListItems(ctx context.Context, db *sql.DB) ([]ItemRow, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, created_at, data, updated_at
		FROM items
		ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	result := make([]ItemRow, 0)
	for rows.Next() {
		var row ItemRow
		var data string
		if err := rows.Scan(&row.ID, &row.CreatedAt, &data, &row.UpdatedAt); err != nil {
			return nil, errors.NewInternal(err)
		}
		row.Data = []byte(data)
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}

	return result, nil
}

// GetItem returns a single item row, or nil if the id is unknown.
func GetItem(ctx context.Context, db *sql.DB, id string) (*ItemRow, error) {
	var row ItemRow
	var data string
	err := db.QueryRowContext(ctx, `
		SELECT id, created_at, data, updated_at FROM items WHERE id = ?
	`, id).Scan(&row.ID, &row.CreatedAt, &data, &row.UpdatedAt)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.NewInternal(err)
	}
	row.Data = []byte(data)
	return &row, nil
}

// UpsertItem inserts a row or fully replaces the row with the same id.
func UpsertItem(ctx context.Context, db *sql.DB, row ItemRow) error {
	if row.UpdatedAt == 0 {
		row.UpdatedAt = time.Now().Unix()
	}
	query := `
		INSERT INTO items (id, created_at, data, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			created_at = excluded.created_at,
			data = excluded.data,
			updated_at = excluded.updated_at
	`
	if _, err := db.ExecContext(ctx, query, row.ID, row.CreatedAt, string(row.Data), row.UpdatedAt); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// DeleteItem removes an item. Reports whether a row existed; deleting an
// unknown id is not an error.
func DeleteItem(ctx context.Context, db *sql.DB, id string) (bool, error) {
	result, err := db.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
	if err != nil {
		return false, errors.NewInternal(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, errors.NewInternal(err)
	}
	return n > 0, nil
}

// CountItems returns the number of stored items.
func CountItems(ctx context.Context, db *sql.DB) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items`).Scan(&n); err != nil {
		return 0, errors.NewInternal(err)
	}
	return n, nil
}
