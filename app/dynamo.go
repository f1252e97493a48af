package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/abhi007singh/legendary-sniffle/app/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog"
)

// BatchWriteItem accepts at most 25 requests per call.
const dynamoWriteChunk = 25

// DynamoAPI is the subset of *dynamodb.Client the store uses.
type DynamoAPI interface {
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// DynamoStore keeps rows in one table keyed by batchId (partition) and
// sNo (sort).
type DynamoStore struct {
	client DynamoAPI
	table  string
	log    zerolog.Logger
	now    func() time.Time
}

func NewDynamoStore(client DynamoAPI, table string, logger zerolog.Logger) *DynamoStore {
	return &DynamoStore{client: client, table: table, log: logger, now: time.Now}
}

type dynamoStatusItem struct {
	ID          string           `dynamodbav:"id"`
	ProductName string           `dynamodbav:"productName"`
	Status      models.RowStatus `dynamodbav:"status"`
}

func dynamoKey(batchID string, sNo int) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"batchId": &types.AttributeValueMemberS{Value: batchID},
		"sNo":     &types.AttributeValueMemberN{Value: strconv.Itoa(sNo)},
	}
}

// CreateRows writes in chunks of 25. If a chunk fails, chunks already
// written are deleted again so the batch is never left half created.
func (s *DynamoStore) CreateRows(ctx context.Context, rows []models.Row) error {
	now := s.now().UTC()
	var written []models.Row

	for start := 0; start < len(rows); start += dynamoWriteChunk {
		end := min(start+dynamoWriteChunk, len(rows))
		reqs := make([]types.WriteRequest, 0, end-start)
		for _, r := range rows[start:end] {
			c := r.Clone()
			if c.Status == "" {
				c.Status = models.StatusProcessing
			}
			if c.OutputImageURLs == nil {
				c.OutputImageURLs = []string{}
			}
			c.CreatedAt, c.UpdatedAt = now, now
			item, err := attributevalue.MarshalMap(c)
			if err != nil {
				return fmt.Errorf("marshal row %s: %w", c.ID, err)
			}
			reqs = append(reqs, types.WriteRequest{PutRequest: &types.PutRequest{Item: item}})
		}

		if err := s.writeAll(ctx, reqs); err != nil {
			s.rollback(written)
			return err
		}
		written = append(written, rows[start:end]...)
	}
	return nil
}

func (s *DynamoStore) rollback(rows []models.Row) {
	if len(rows) == 0 {
		return
	}
	// the caller's context may already be done
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for start := 0; start < len(rows); start += dynamoWriteChunk {
		end := min(start+dynamoWriteChunk, len(rows))
		reqs := make([]types.WriteRequest, 0, end-start)
		for _, r := range rows[start:end] {
			reqs = append(reqs, types.WriteRequest{DeleteRequest: &types.DeleteRequest{Key: dynamoKey(r.BatchID, r.SequenceNumber)}})
		}
		if err := s.writeAll(ctx, reqs); err != nil {
			s.log.Error().Err(err).Str("batch_id", rows[0].BatchID).Msg("failed to roll back partial batch")
		}
	}
}

// writeAll resubmits unprocessed items a bounded number of times.
func (s *DynamoStore) writeAll(ctx context.Context, reqs []types.WriteRequest) error {
	pending := map[string][]types.WriteRequest{s.table: reqs}
	for attempt := 0; attempt < 5; attempt++ {
		out, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
		if err != nil {
			return err
		}
		if len(out.UnprocessedItems[s.table]) == 0 {
			return nil
		}
		pending = out.UnprocessedItems
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 100 * time.Millisecond):
		}
	}
	return fmt.Errorf("BatchWriteItem: %d items left unprocessed", len(pending[s.table]))
}

func (s *DynamoStore) query(ctx context.Context, batchID string, projection bool) ([]map[string]types.AttributeValue, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		KeyConditionExpression: aws.String("batchId = :b"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":b": &types.AttributeValueMemberS{Value: batchID},
		},
		ScanIndexForward: aws.Bool(true),
	}
	if projection {
		// status is a reserved word
		in.ProjectionExpression = aws.String("id, productName, #s")
		in.ExpressionAttributeNames = map[string]string{"#s": "status"}
	}

	var items []map[string]types.AttributeValue
	p := dynamodb.NewQueryPaginator(s.client, in)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		items = append(items, page.Items...)
	}
	return items, nil
}

func (s *DynamoStore) FindRows(ctx context.Context, batchID string) ([]models.Row, error) {
	items, err := s.query(ctx, batchID, false)
	if err != nil {
		return nil, err
	}
	var rows []models.Row
	if err := attributevalue.UnmarshalListOfMaps(items, &rows); err != nil {
		return nil, err
	}
	for i := range rows {
		if rows[i].OutputImageURLs == nil {
			rows[i].OutputImageURLs = []string{}
		}
	}
	return rows, nil
}

func (s *DynamoStore) FindRowStatuses(ctx context.Context, batchID string) ([]models.RowStatusView, error) {
	items, err := s.query(ctx, batchID, true)
	if err != nil {
		return nil, err
	}
	var raw []dynamoStatusItem
	if err := attributevalue.UnmarshalListOfMaps(items, &raw); err != nil {
		return nil, err
	}
	out := make([]models.RowStatusView, 0, len(raw))
	for _, r := range raw {
		out = append(out, models.RowStatusView{ID: r.ID, ProductName: r.ProductName, Status: r.Status})
	}
	return out, nil
}

func (s *DynamoStore) SaveOutputs(ctx context.Context, row models.Row) error {
	list := make([]types.AttributeValue, 0, len(row.OutputImageURLs))
	for _, u := range row.OutputImageURLs {
		list = append(list, &types.AttributeValueMemberS{Value: u})
	}

	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.table),
		Key:                 dynamoKey(row.BatchID, row.SequenceNumber),
		UpdateExpression:    aws.String("SET outputImageUrls = :o, updatedAt = :u"),
		ConditionExpression: aws.String("attribute_exists(batchId)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":o": &types.AttributeValueMemberL{Value: list},
			":u": &types.AttributeValueMemberS{Value: s.now().UTC().Format(time.RFC3339Nano)},
		},
	})
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return ErrNotFound
	}
	return err
}

// SetBatchStatus updates rows one at a time; DynamoDB has no multi-item
// update by partition key.
func (s *DynamoStore) SetBatchStatus(ctx context.Context, batchID string, status models.RowStatus) (int, error) {
	rows, err := s.FindRows(ctx, batchID)
	if err != nil {
		return 0, err
	}
	now := s.now().UTC().Format(time.RFC3339Nano)
	for i, r := range rows {
		_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:                aws.String(s.table),
			Key:                      dynamoKey(batchID, r.SequenceNumber),
			UpdateExpression:         aws.String("SET #s = :s, updatedAt = :u"),
			ExpressionAttributeNames: map[string]string{"#s": "status"},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":s": &types.AttributeValueMemberS{Value: string(status)},
				":u": &types.AttributeValueMemberS{Value: now},
			},
		})
		if err != nil {
			return i, fmt.Errorf("update row %s: %w", r.ID, err)
		}
	}
	return len(rows), nil
}
