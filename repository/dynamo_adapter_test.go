package repository_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/carloz138/catalogo-magico-mx-sub005/models"
	"github.com/carloz138/catalogo-magico-mx-sub005/repository"
	"github.com/carloz138/catalogo-magico-mx-sub005/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDynamo struct {
	items        []map[string]types.AttributeValue
	scans        []*dynamodb.ScanInput
	writes       []int
	unprocessed  int // how many calls return the last item as unprocessed
	describeErr  error
	createdTable *dynamodb.CreateTableInput
}

func (f *fakeDynamo) Scan(ctx context.Context, in *dynamodb.ScanInput, opts ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.scans = append(f.scans, in)
	return &dynamodb.ScanOutput{Items: f.items}, nil
}

func (f *fakeDynamo) BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	var table string
	var reqs []types.WriteRequest
	for t, r := range in.RequestItems {
		table, reqs = t, r
	}
	f.writes = append(f.writes, len(reqs))
	out := &dynamodb.BatchWriteItemOutput{}
	if f.unprocessed > 0 {
		f.unprocessed--
		out.UnprocessedItems = map[string][]types.WriteRequest{table: reqs[len(reqs)-1:]}
	}
	return out, nil
}

func (f *fakeDynamo) DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, opts ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	if f.describeErr != nil {
		return nil, f.describeErr
	}
	return &dynamodb.DescribeTableOutput{}, nil
}

func (f *fakeDynamo) CreateTable(ctx context.Context, in *dynamodb.CreateTableInput, opts ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	f.createdTable = in
	return &dynamodb.CreateTableOutput{}, nil
}

func products(n int) []models.Product {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	out := make([]models.Product, n)
	for i := range out {
		out[i] = models.NewProduct("m1", models.ProductRow{SKU: fmt.Sprintf("SKU-%d", i), Name: "Producto"}, nil, now)
	}
	return out
}

func TestDynamoProductStore_ExistingSKUs(t *testing.T) {
	item, err := attributevalue.MarshalMap(map[string]string{"sku": "A1", "name": "Blusa Roja"})
	require.NoError(t, err)
	fake := &fakeDynamo{items: []map[string]types.AttributeValue{item}}
	store := repository.NewDynamoProductStore(fake, "products")

	found, err := store.ExistingSKUs(context.Background(), "m1", []string{"A1", "B2"})
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"A1": "Blusa Roja"}, found)
	require.Len(t, fake.scans, 1)
	assert.Equal(t, "merchant_id = :m AND sku IN (:s0, :s1)", aws.ToString(fake.scans[0].FilterExpression))
	assert.Equal(t, "products", aws.ToString(fake.scans[0].TableName))
}

func TestDynamoProductStore_ExistingSKUsChunksLargeInput(t *testing.T) {
	fake := &fakeDynamo{}
	store := repository.NewDynamoProductStore(fake, "products")

	skus := make([]string, 150)
	for i := range skus {
		skus[i] = fmt.Sprintf("S%d", i)
	}
	_, err := store.ExistingSKUs(context.Background(), "m1", skus)
	require.NoError(t, err)
	assert.Len(t, fake.scans, 2)
}

func TestDynamoProductStore_CreateManyChunksBy25(t *testing.T) {
	fake := &fakeDynamo{}
	store := repository.NewDynamoProductStore(fake, "products")

	require.NoError(t, store.CreateMany(context.Background(), products(30)))
	assert.Equal(t, []int{25, 5}, fake.writes)
}

func TestDynamoProductStore_CreateManyResendsUnprocessed(t *testing.T) {
	fake := &fakeDynamo{unprocessed: 1}
	store := repository.NewDynamoProductStore(fake, "products")

	require.NoError(t, store.CreateMany(context.Background(), products(3)))
	assert.Equal(t, []int{3, 1}, fake.writes)
}

func TestDynamoProductStore_CreateManyLeftoverIsRetryable(t *testing.T) {
	fake := &fakeDynamo{unprocessed: 10}
	store := repository.NewDynamoProductStore(fake, "products")

	err := store.CreateMany(context.Background(), products(2))
	require.Error(t, err)
	assert.True(t, retry.IsRetryable(err))
	assert.Len(t, fake.writes, 3)
}

func TestDynamoProductStore_EnsureTable(t *testing.T) {
	fake := &fakeDynamo{describeErr: &types.ResourceNotFoundException{Message: aws.String("missing")}}
	store := repository.NewDynamoProductStore(fake, "products")

	require.NoError(t, store.EnsureTable(context.Background()))
	require.NotNil(t, fake.createdTable)
	assert.Equal(t, "product_id", aws.ToString(fake.createdTable.KeySchema[0].AttributeName))

	fake = &fakeDynamo{describeErr: errors.New("access denied")}
	store = repository.NewDynamoProductStore(fake, "products")
	assert.Error(t, store.EnsureTable(context.Background()))
	assert.Nil(t, fake.createdTable)
}
