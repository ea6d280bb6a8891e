package repository

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/carloz138/catalogo-magico-mx-sub005/common/errors"
	"github.com/carloz138/catalogo-magico-mx-sub005/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

const (
	// DynamoDB limits.
	ddbWriteChunk = 25
	ddbInOperands = 99

	unprocessedAttempts = 3
)

// DynamoAPI is the subset of *dynamodb.Client used by DynamoProductStore.
type DynamoAPI interface {
	Scan(ctx context.Context, in *dynamodb.ScanInput, opts ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, opts ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	CreateTable(ctx context.Context, in *dynamodb.CreateTableInput, opts ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

// DynamoProductStore keeps products in a table keyed by `product_id`.
type DynamoProductStore struct {
	client     DynamoAPI
	table      string
	retryDelay time.Duration
}

func NewDynamoProductStore(client DynamoAPI, table string) *DynamoProductStore {
	return &DynamoProductStore{client: client, table: table, retryDelay: 300 * time.Millisecond}
}

type ddbProduct struct {
	ProductID           string   `dynamodbav:"product_id"`
	MerchantID          string   `dynamodbav:"merchant_id"`
	SKU                 string   `dynamodbav:"sku"`
	Name                string   `dynamodbav:"name"`
	PriceCents          int64    `dynamodbav:"price_cents"`
	WholesalePriceCents *int64   `dynamodbav:"wholesale_price_cents,omitempty"`
	Description         *string  `dynamodbav:"description,omitempty"`
	Category            *string  `dynamodbav:"category,omitempty"`
	Images              []string `dynamodbav:"images,omitempty"`
	CreatedAt           string   `dynamodbav:"created_at"`
	UpdatedAt           string   `dynamodbav:"updated_at"`
}

func toDDB(p models.Product) ddbProduct {
	dp := ddbProduct{
		ProductID:           p.ID.String(),
		MerchantID:          p.MerchantID,
		SKU:                 p.SKU,
		Name:                p.Name,
		PriceCents:          p.PriceCents,
		WholesalePriceCents: p.WholesalePriceCents,
		Images:              p.Images,
		CreatedAt:           p.CreatedAt.Format(time.RFC3339),
		UpdatedAt:           p.UpdatedAt.Format(time.RFC3339),
	}
	if p.Description != "" {
		dp.Description = aws.String(p.Description)
	}
	if p.Category != "" {
		dp.Category = aws.String(p.Category)
	}
	return dp
}

// ExistingSKUs scans for the merchant's products whose SKU is in skus.
func (d *DynamoProductStore) ExistingSKUs(ctx context.Context, merchantID string, skus []string) (map[string]string, error) {
	found := make(map[string]string)
	for _, part := range chunk(skus, ddbInOperands) {
		values := map[string]types.AttributeValue{
			":m": &types.AttributeValueMemberS{Value: merchantID},
		}
		placeholders := make([]string, len(part))
		for i, s := range part {
			ph := fmt.Sprintf(":s%d", i)
			placeholders[i] = ph
			values[ph] = &types.AttributeValueMemberS{Value: s}
		}

		input := &dynamodb.ScanInput{
			TableName:                 aws.String(d.table),
			FilterExpression:          aws.String(fmt.Sprintf("merchant_id = :m AND sku IN (%s)", strings.Join(placeholders, ", "))),
			ProjectionExpression:      aws.String("sku, #n"),
			ExpressionAttributeNames:  map[string]string{"#n": "name"},
			ExpressionAttributeValues: values,
		}

		pages := dynamodb.NewScanPaginator(d.client, input)
		for pages.HasMorePages() {
			out, err := pages.NextPage(ctx)
			if err != nil {
				return nil, fmt.Errorf("scan for skus failed: %w", err)
			}
			for _, it := range out.Items {
				var dp ddbProduct
				if err := attributevalue.UnmarshalMap(it, &dp); err != nil {
					return nil, fmt.Errorf("unmarshal item: %w", err)
				}
				found[dp.SKU] = dp.Name
			}
		}
	}
	return found, nil
}

// CreateMany puts products with BatchWriteItem in chunks of 25, re-sending
// unprocessed items a few times. Leftover items surface as a 503 so the
// caller's retry loop can resubmit the batch.
func (d *DynamoProductStore) CreateMany(ctx context.Context, products []models.Product) error {
	for start := 0; start < len(products); start += ddbWriteChunk {
		end := start + ddbWriteChunk
		if end > len(products) {
			end = len(products)
		}

		writeReqs := make([]types.WriteRequest, 0, end-start)
		for _, p := range products[start:end] {
			item, err := attributevalue.MarshalMap(toDDB(p))
			if err != nil {
				return fmt.Errorf("marshal batch item: %w", err)
			}
			writeReqs = append(writeReqs, types.WriteRequest{PutRequest: &types.PutRequest{Item: item}})
		}

		if err := d.writeChunk(ctx, writeReqs); err != nil {
			return err
		}
	}
	return nil
}

func (d *DynamoProductStore) writeChunk(ctx context.Context, reqs []types.WriteRequest) error {
	req := &dynamodb.BatchWriteItemInput{RequestItems: map[string][]types.WriteRequest{d.table: reqs}}
	for attempt := 0; ; attempt++ {
		out, err := d.client.BatchWriteItem(ctx, req)
		if err != nil {
			return fmt.Errorf("batch write failed: %w", err)
		}
		unp := out.UnprocessedItems[d.table]
		if len(unp) == 0 {
			return nil
		}
		if attempt+1 >= unprocessedAttempts {
			return fmt.Errorf("batch write left %d unprocessed items: %w", len(unp),
				&apperrors.StatusError{Status: http.StatusServiceUnavailable, Message: "unprocessed items"})
		}
		zap.L().Debug("Retrying unprocessed items", zap.Int("count", len(unp)), zap.Int("attempt", attempt+1))
		req.RequestItems[d.table] = unp

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * d.retryDelay):
		}
	}
}

// EnsureTable creates the products table when it does not exist yet.
func (d *DynamoProductStore) EnsureTable(ctx context.Context) error {
	_, err := d.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(d.table)})
	if err == nil {
		return nil
	}
	var notFound *types.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		return fmt.Errorf("describe table %s: %w", d.table, err)
	}

	_, err = d.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(d.table),
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("product_id"), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("product_id"), KeyType: types.KeyTypeHash},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	if err != nil {
		return fmt.Errorf("create table %s: %w", d.table, err)
	}
	zap.L().Info("Created DynamoDB table", zap.String("table", d.table))
	return nil
}
