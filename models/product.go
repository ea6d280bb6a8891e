package models

import (
	"time"

	"github.com/google/uuid"
)

// ProductRow is one parsed line of a merchant product sheet. Prices are in cents.
type ProductRow struct {
	Row                 int    `json:"row"`
	SKU                 string `json:"sku" validate:"required,max=64"`
	Name                string `json:"nombre" validate:"required,max=255"`
	PriceCents          int64  `json:"precio" validate:"gte=0"`
	WholesalePriceCents *int64 `json:"precio_mayoreo,omitempty" validate:"omitempty,gte=0"`
	Description         string `json:"descripcion,omitempty" validate:"max=5000"`
	Category            string `json:"categoria,omitempty" validate:"max=120"`
}

// Product is the persisted catalog record built from a ProductRow.
type Product struct {
	ID                  uuid.UUID `json:"id" gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	MerchantID          string    `json:"merchant_id" gorm:"type:varchar(128);not null;uniqueIndex:idx_merchant_sku"`
	SKU                 string    `json:"sku" gorm:"type:varchar(64);not null;uniqueIndex:idx_merchant_sku"`
	Name                string    `json:"name"`
	PriceCents          int64     `json:"price_cents"`
	WholesalePriceCents *int64    `json:"wholesale_price_cents,omitempty"`
	Description         string    `json:"description,omitempty"`
	Category            string    `json:"category,omitempty"`
	Images              []string  `json:"images" gorm:"serializer:json"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// NewProduct converts a sheet row into a product owned by merchantID.
func NewProduct(merchantID string, row ProductRow, images []string, now time.Time) Product {
	if images == nil {
		images = []string{}
	}
	return Product{
		ID:                  uuid.New(),
		MerchantID:          merchantID,
		SKU:                 row.SKU,
		Name:                row.Name,
		PriceCents:          row.PriceCents,
		WholesalePriceCents: row.WholesalePriceCents,
		Description:         row.Description,
		Category:            row.Category,
		Images:              images,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}
