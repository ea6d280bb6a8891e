package repository

import (
	"context"
	"fmt"

	"github.com/carloz138/catalogo-magico-mx-sub005/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

const (
	pgInChunk     = 1000
	pgInsertChunk = 100
)

// GormProductStore keeps products in Postgres.
type GormProductStore struct {
	db *gorm.DB
}

func NewGormProductStore(db *gorm.DB) *GormProductStore {
	return &GormProductStore{db: db}
}

// OpenPostgres connects to dsn.
func OpenPostgres(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return db, nil
}

// Migrate creates or updates the products table.
func (s *GormProductStore) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&models.Product{})
}

type skuName struct {
	SKU  string
	Name string
}

func (s *GormProductStore) ExistingSKUs(ctx context.Context, merchantID string, skus []string) (map[string]string, error) {
	found := make(map[string]string)
	for _, part := range chunk(skus, pgInChunk) {
		var rows []skuName
		err := s.db.WithContext(ctx).
			Model(&models.Product{}).
			Select("sku", "name").
			Where("merchant_id = ? AND sku IN ?", merchantID, part).
			Find(&rows).Error
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			found[r.SKU] = r.Name
		}
	}
	return found, nil
}

// CreateMany inserts the batch in one transaction. Rows already present by
// ID are overwritten, which keeps a retried batch idempotent.
func (s *GormProductStore) CreateMany(ctx context.Context, products []models.Product) error {
	if len(products) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, UpdateAll: true}).
		CreateInBatches(&products, pgInsertChunk).Error
}
