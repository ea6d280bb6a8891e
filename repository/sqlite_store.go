package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/carloz138/catalogo-magico-mx-sub005/models"
	_ "github.com/mattn/go-sqlite3"
)

const sqliteInChunk = 500

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS products (
	id TEXT PRIMARY KEY,
	merchant_id TEXT NOT NULL,
	sku TEXT NOT NULL,
	name TEXT NOT NULL,
	price_cents INTEGER NOT NULL,
	wholesale_price_cents INTEGER,
	description TEXT,
	category TEXT,
	images TEXT,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	UNIQUE (merchant_id, sku)
)`

const sqliteUpsert = `
INSERT INTO products (id, merchant_id, sku, name, price_cents, wholesale_price_cents, description, category, images, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	name = excluded.name,
	price_cents = excluded.price_cents,
	wholesale_price_cents = excluded.wholesale_price_cents,
	description = excluded.description,
	category = excluded.category,
	images = excluded.images,
	updated_at = excluded.updated_at`

// SQLiteProductStore is a single-file product store for offline runs.
type SQLiteProductStore struct {
	db *sql.DB
}

// OpenSQLite opens (and creates) the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteProductStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	s := NewSQLiteProductStore(db)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func NewSQLiteProductStore(db *sql.DB) *SQLiteProductStore {
	return &SQLiteProductStore{db: db}
}

func (s *SQLiteProductStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("create products table: %w", err)
	}
	return nil
}

func (s *SQLiteProductStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteProductStore) ExistingSKUs(ctx context.Context, merchantID string, skus []string) (map[string]string, error) {
	found := make(map[string]string)
	for _, part := range chunk(skus, sqliteInChunk) {
		args := make([]interface{}, 0, len(part)+1)
		args = append(args, merchantID)
		for _, sku := range part {
			args = append(args, sku)
		}
		query := fmt.Sprintf("SELECT sku, name FROM products WHERE merchant_id = ? AND sku IN (%s)",
			strings.TrimSuffix(strings.Repeat("?,", len(part)), ","))

		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var sku, name string
			if err := rows.Scan(&sku, &name); err != nil {
				rows.Close()
				return nil, err
			}
			found[sku] = name
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return found, nil
}

// CreateMany upserts the batch inside one transaction.
func (s *SQLiteProductStore) CreateMany(ctx context.Context, products []models.Product) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, sqliteUpsert)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range products {
		images, err := json.Marshal(p.Images)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx,
			p.ID.String(),
			p.MerchantID,
			p.SKU,
			p.Name,
			p.PriceCents,
			p.WholesalePriceCents,
			nullString(p.Description),
			nullString(p.Category),
			string(images),
			p.CreatedAt,
			p.UpdatedAt,
		); err != nil {
			return fmt.Errorf("insert %s: %w", p.SKU, err)
		}
	}
	return tx.Commit()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
