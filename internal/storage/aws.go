package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/ignite/adclassify/internal/config"
	"github.com/ignite/adclassify/internal/domain"
	"github.com/ignite/adclassify/internal/pkg/awsutil"
	"github.com/ignite/adclassify/internal/pkg/retry"
)

// maxBatchWrite is the DynamoDB BatchWriteItem item limit.
const maxBatchWrite = 25

const (
	dailyTTL          = 60 * 24 * time.Hour
	classificationTTL = 90 * 24 * time.Hour
)

var errUnprocessed = errors.New("dynamodb left items unprocessed")

// DynamoDBAPI is the subset of the DynamoDB client the store uses.
type DynamoDBAPI interface {
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// S3API is the subset of the S3 client the snapshot archive uses.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// AWSStorage keeps daily records, metrics and classifications in a single
// DynamoDB table and archives snapshots to S3.
//
// Table layout, all under PK CLIENT#{client}:
//
//	DAILY#{date}#{level}#{entity}   one day of platform data
//	METRICS#{level}#{entity}        latest rolling aggregate, overwritten
//	CLASS#{date}#{level}#{entity}   classification for one run date
type AWSStorage struct {
	dynamoDB  DynamoDBAPI
	s3Client  S3API
	tableName string
	bucket    string
	policy    retry.Policy
	now       func() time.Time
}

// DynamoDBItem represents an item stored in DynamoDB
type DynamoDBItem struct {
	PK        string `dynamodbav:"PK"`
	SK        string `dynamodbav:"SK"`
	Data      string `dynamodbav:"Data"`
	Timestamp string `dynamodbav:"Timestamp"`
	TTL       int64  `dynamodbav:"TTL,omitempty"`
}

// New loads AWS credentials the way the rest of the service does and returns
// a store bound to the configured table and bucket.
func New(ctx context.Context, cfg config.StorageConfig) (*AWSStorage, error) {
	awsCfg, err := awsutil.LoadConfig(ctx, cfg, "")
	if err != nil {
		return nil, err
	}
	return NewAWSStorage(dynamodb.NewFromConfig(awsCfg), s3.NewFromConfig(awsCfg), cfg.DynamoDBTable, cfg.S3Bucket), nil
}

// NewAWSStorage wires a store over already-built clients.
func NewAWSStorage(db DynamoDBAPI, s3c S3API, tableName, bucket string) *AWSStorage {
	return &AWSStorage{
		dynamoDB:  db,
		s3Client:  s3c,
		tableName: tableName,
		bucket:    bucket,
		policy:    retry.DefaultPolicy(),
		now:       time.Now,
	}
}

func clientPK(clientID string) string { return "CLIENT#" + clientID }

func dailySK(r domain.DailyRecord) string {
	return fmt.Sprintf("DAILY#%s#%s#%s", r.Day().Format(domain.DateLayout), r.Key.Level, r.Key.EntityID)
}

func metricsSK(k domain.EntityKey) string {
	return fmt.Sprintf("METRICS#%s#%s", k.Level, k.EntityID)
}

func classSK(date time.Time, k domain.EntityKey) string {
	return fmt.Sprintf("CLASS#%s#%s#%s", domain.Day(date).Format(domain.DateLayout), k.Level, k.EntityID)
}

// ListDailyRecords returns every daily record for the client dated within
// [from, to], both inclusive.
func (s *AWSStorage) ListDailyRecords(ctx context.Context, clientID string, from, to time.Time) ([]domain.DailyRecord, error) {
	items, err := s.query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND SK BETWEEN :from AND :to"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":   &types.AttributeValueMemberS{Value: clientPK(clientID)},
			":from": &types.AttributeValueMemberS{Value: "DAILY#" + domain.Day(from).Format(domain.DateLayout)},
			// "~" sorts after every level and entity character.
			":to": &types.AttributeValueMemberS{Value: "DAILY#" + domain.Day(to).Format(domain.DateLayout) + "#~"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("querying daily records: %w", err)
	}

	records := make([]domain.DailyRecord, 0, len(items))
	for _, item := range items {
		var rec domain.DailyRecord
		if err := decodeItem(item, &rec); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// PutDailyRecords writes platform records, replacing any existing record for
// the same entity and day.
func (s *AWSStorage) PutDailyRecords(ctx context.Context, records []domain.DailyRecord) error {
	items := make([]DynamoDBItem, 0, len(records))
	for _, r := range records {
		item, err := s.newItem(clientPK(r.Key.ClientID), dailySK(r), r, dailyTTL)
		if err != nil {
			return err
		}
		items = append(items, item)
	}
	return s.batchWrite(ctx, items)
}

// PutMetrics overwrites the latest aggregates for the given entities.
func (s *AWSStorage) PutMetrics(ctx context.Context, metrics []domain.EntityMetrics) error {
	items := make([]DynamoDBItem, 0, len(metrics))
	for _, m := range metrics {
		item, err := s.newItem(clientPK(m.Key.ClientID), metricsSK(m.Key), m, 0)
		if err != nil {
			return err
		}
		items = append(items, item)
	}
	return s.batchWrite(ctx, items)
}

// PutClassifications stores one run's classifications under their date.
// Rerunning the same date overwrites the previous result.
func (s *AWSStorage) PutClassifications(ctx context.Context, classifications []domain.EntityClassification) error {
	items := make([]DynamoDBItem, 0, len(classifications))
	for _, c := range classifications {
		item, err := s.newItem(clientPK(c.Key.ClientID), classSK(c.Date, c.Key), c, classificationTTL)
		if err != nil {
			return err
		}
		items = append(items, item)
	}
	return s.batchWrite(ctx, items)
}

// GetClassifications returns the client's classifications for one date.
func (s *AWSStorage) GetClassifications(ctx context.Context, clientID string, date time.Time) ([]domain.EntityClassification, error) {
	items, err := s.query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: clientPK(clientID)},
			":prefix": &types.AttributeValueMemberS{Value: "CLASS#" + domain.Day(date).Format(domain.DateLayout) + "#"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("querying classifications: %w", err)
	}

	out := make([]domain.EntityClassification, 0, len(items))
	for _, item := range items {
		var c domain.EntityClassification
		if err := decodeItem(item, &c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// PutSnapshot archives a client snapshot at snapshots/{client}/{date}.json.
func (s *AWSStorage) PutSnapshot(ctx context.Context, snap domain.ClientSnapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}
	key := SnapshotKey(snap.ClientID, snap.Date)
	return retry.Do(ctx, s.policy, "s3.PutObject", func(ctx context.Context) error {
		_, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(data),
			ContentType: aws.String("application/json"),
		})
		if err != nil {
			return fmt.Errorf("putting object to S3: %w", err)
		}
		return nil
	})
}

// GetSnapshot loads an archived snapshot. Returns ErrNotFound when the
// client has no snapshot for that date.
func (s *AWSStorage) GetSnapshot(ctx context.Context, clientID string, date time.Time) (*domain.ClientSnapshot, error) {
	result, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(SnapshotKey(clientID, date)),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting object from S3: %w", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("reading S3 object: %w", err)
	}
	var snap domain.ClientSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshaling snapshot: %w", err)
	}
	return &snap, nil
}

// SnapshotKey is the S3 object key for a client's snapshot on date.
func SnapshotKey(clientID string, date time.Time) string {
	return fmt.Sprintf("snapshots/%s/%s.json", clientID, domain.Day(date).Format(domain.DateLayout))
}

func (s *AWSStorage) newItem(pk, sk string, v interface{}, ttl time.Duration) (DynamoDBItem, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return DynamoDBItem{}, fmt.Errorf("marshaling %s: %w", sk, err)
	}
	now := s.now().UTC()
	item := DynamoDBItem{
		PK:        pk,
		SK:        sk,
		Data:      string(data),
		Timestamp: now.Format(time.RFC3339),
	}
	if ttl > 0 {
		item.TTL = now.Add(ttl).Unix()
	}
	return item, nil
}

func decodeItem(av map[string]types.AttributeValue, v interface{}) error {
	var item DynamoDBItem
	if err := attributevalue.UnmarshalMap(av, &item); err != nil {
		return fmt.Errorf("unmarshaling item: %w", err)
	}
	if err := json.Unmarshal([]byte(item.Data), v); err != nil {
		return fmt.Errorf("decoding %s: %w", item.SK, err)
	}
	return nil
}

// query follows LastEvaluatedKey until the result set is exhausted.
func (s *AWSStorage) query(ctx context.Context, in *dynamodb.QueryInput) ([]map[string]types.AttributeValue, error) {
	var items []map[string]types.AttributeValue
	for {
		var out *dynamodb.QueryOutput
		err := retry.Do(ctx, s.policy, "dynamodb.Query", func(ctx context.Context) error {
			var err error
			out, err = s.dynamoDB.Query(ctx, in)
			return err
		})
		if err != nil {
			return nil, err
		}
		items = append(items, out.Items...)
		if len(out.LastEvaluatedKey) == 0 {
			return items, nil
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

// batchWrite writes items in chunks of 25, resubmitting whatever DynamoDB
// reports as unprocessed until the retry policy is exhausted.
func (s *AWSStorage) batchWrite(ctx context.Context, items []DynamoDBItem) error {
	for start := 0; start < len(items); start += maxBatchWrite {
		end := start + maxBatchWrite
		if end > len(items) {
			end = len(items)
		}

		reqs := make([]types.WriteRequest, 0, end-start)
		for _, item := range items[start:end] {
			av, err := attributevalue.MarshalMap(item)
			if err != nil {
				return fmt.Errorf("marshaling item: %w", err)
			}
			reqs = append(reqs, types.WriteRequest{PutRequest: &types.PutRequest{Item: av}})
		}

		pending := map[string][]types.WriteRequest{s.tableName: reqs}
		err := retry.Do(ctx, s.policy, "dynamodb.BatchWriteItem", func(ctx context.Context) error {
			out, err := s.dynamoDB.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
			if err != nil {
				return err
			}
			if len(out.UnprocessedItems) == 0 {
				return nil
			}
			pending = out.UnprocessedItems
			return errUnprocessed
		})
		if err != nil {
			return fmt.Errorf("batch writing to DynamoDB: %w", err)
		}
	}
	return nil
}
