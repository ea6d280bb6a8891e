package repository

import (
	"context"

	"github.com/carloz138/catalogo-magico-mx-sub005/models"
)

// ProductStore is the persisted inventory the ingestion pipeline writes to.
// CreateMany writes one batch; products carry their IDs so a retried batch
// overwrites instead of duplicating.
type ProductStore interface {
	ExistingSKUs(ctx context.Context, merchantID string, skus []string) (map[string]string, error)
	CreateMany(ctx context.Context, products []models.Product) error
}

func chunk(skus []string, size int) [][]string {
	var out [][]string
	for start := 0; start < len(skus); start += size {
		end := start + size
		if end > len(skus) {
			end = len(skus)
		}
		out = append(out, skus[start:end])
	}
	return out
}
