package repository_test

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/carloz138/catalogo-magico-mx-sub005/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{})
	require.NoError(t, err)
	return gormDB, mock
}

func TestGormProductStore_CreateMany(t *testing.T) {
	db, mock := setupMockDB(t)
	store := repository.NewGormProductStore(db)
	batch := products(2)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "products"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(batch[0].ID).AddRow(batch[1].ID))
	mock.ExpectCommit()

	require.NoError(t, store.CreateMany(context.Background(), batch))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormProductStore_CreateManyRollsBack(t *testing.T) {
	db, mock := setupMockDB(t)
	store := repository.NewGormProductStore(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "products"`)).WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	assert.Error(t, store.CreateMany(context.Background(), products(1)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormProductStore_ExistingSKUs(t *testing.T) {
	db, mock := setupMockDB(t)
	store := repository.NewGormProductStore(db)

	mock.ExpectQuery(`SELECT (.+) FROM "products" WHERE merchant_id = \$1 AND sku IN`).
		WithArgs("m1", "A1", "B2").
		WillReturnRows(sqlmock.NewRows([]string{"sku", "name"}).AddRow("B2", "Pantalón"))

	found, err := store.ExistingSKUs(context.Background(), "m1", []string{"A1", "B2"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"B2": "Pantalón"}, found)
	assert.NoError(t, mock.ExpectationsWereMet())
}
