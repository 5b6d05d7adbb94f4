package dynamo

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"golang.org/x/time/rate"

	"github.com/3leaps/dynastore/pkg/storage"
)

// API is the subset of the DynamoDB client used by the store.
// Narrowed for fake injection in tests.
type API interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, opts ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	CreateTable(ctx context.Context, in *dynamodb.CreateTableInput, opts ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, opts ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	DeleteTable(ctx context.Context, in *dynamodb.DeleteTableInput, opts ...func(*dynamodb.Options)) (*dynamodb.DeleteTableOutput, error)
}

// Store implements storage.Storage on DynamoDB.
type Store struct {
	client        API
	tablePrefix   string
	limiter       *rate.Limiter
	writeAttempts int
	readAttempts  int

	// wait sleeps for the computed backoff, honoring ctx cancellation.
	// Replaced in tests.
	wait func(ctx context.Context, attempt int) error
}

// Ensure Store implements the interface.
var _ storage.Storage = (*Store)(nil)

// New creates a DynamoDB store with the given configuration.
//
// The store uses AWS SDK v2's default credential chain unless explicit
// credentials are provided in the config.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, &storage.StorageError{Op: "New", Err: err}
	}

	var ddbOpts []func(*dynamodb.Options)
	if cfg.Endpoint != "" {
		ddbOpts = append(ddbOpts, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	return NewWithClient(dynamodb.NewFromConfig(awsCfg, ddbOpts...), cfg)
}

// NewWithClient creates a store over an existing client. Used by tests
// and callers that manage their own SDK configuration.
func NewWithClient(client API, cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	writeAttempts := cfg.WriteAttempts
	if writeAttempts == 0 {
		writeAttempts = DefaultWriteAttempts
	}
	readAttempts := cfg.ReadAttempts
	if readAttempts == 0 {
		readAttempts = DefaultReadAttempts
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}

	return &Store{
		client:        client,
		tablePrefix:   cfg.TablePrefix,
		limiter:       limiter,
		writeAttempts: writeAttempts,
		readAttempts:  readAttempts,
		wait:          backoffWait,
	}, nil
}

// loadAWSConfig builds the AWS configuration with appropriate credentials.
func loadAWSConfig(ctx context.Context, cfg Config) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error

	// Let SDK resolve from env/profile first; only force an explicit region.
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.Profile))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, err
	}

	if awsCfg.Region == "" {
		awsCfg.Region = DefaultAWSRegion
	}
	return awsCfg, nil
}

// physicalName maps a logical table name to its stored name.
func (s *Store) physicalName(table string) string {
	return s.tablePrefix + table
}

// reserve blocks until the rate limiter admits one request.
func (s *Store) reserve(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	return s.limiter.Wait(ctx)
}

// Get returns the item with the given key.
func (s *Store) Get(ctx context.Context, table string, key storage.Record) (storage.Record, error) {
	var out *dynamodb.GetItemOutput
	err := s.retry(ctx, s.readAttempts, func() error {
		if err := s.reserve(ctx); err != nil {
			return err
		}
		var err error
		out, err = s.client.GetItem(ctx, &dynamodb.GetItemInput{
			TableName:      aws.String(s.physicalName(table)),
			Key:            key,
			ConsistentRead: aws.Bool(true),
		})
		return err
	})
	if err != nil {
		wrapped := s.wrapError("Get", table, key, err)
		// An absent table reads as an absent item.
		if storage.IsTableNotFound(wrapped) {
			return nil, &storage.StorageError{Op: "Get", Table: table, Key: renderKey(key), Err: storage.ErrNotFound}
		}
		return nil, wrapped
	}
	if len(out.Item) == 0 {
		return nil, &storage.StorageError{Op: "Get", Table: table, Key: renderKey(key), Err: storage.ErrNotFound}
	}
	return out.Item, nil
}

// Put writes an item, optionally guarded by a condition.
func (s *Store) Put(ctx context.Context, table string, item storage.Record, cond *storage.Condition) (storage.Record, error) {
	in := &dynamodb.PutItemInput{
		TableName:    aws.String(s.physicalName(table)),
		Item:         item,
		ReturnValues: types.ReturnValueAllOld,
	}
	applyCondition(in, cond)

	var out *dynamodb.PutItemOutput
	err := s.retry(ctx, s.writeAttempts, func() error {
		if err := s.reserve(ctx); err != nil {
			return err
		}
		var err error
		out, err = s.client.PutItem(ctx, in)
		return err
	})
	if err != nil {
		return nil, s.wrapError("Put", table, nil, err)
	}
	if len(out.Attributes) == 0 {
		return nil, nil
	}
	return out.Attributes, nil
}

// applyCondition renders the structured condition onto a PutItem input.
func applyCondition(in *dynamodb.PutItemInput, cond *storage.Condition) {
	if cond.None() {
		return
	}

	names := map[string]string{}
	values := map[string]types.AttributeValue{}
	var clauses []string

	if cond.AbsentAttr != "" {
		names["#absent"] = cond.AbsentAttr
		clauses = append(clauses, "attribute_not_exists(#absent)")
	}
	i := 0
	for attr, want := range cond.Equals {
		n := fmt.Sprintf("#c%d", i)
		v := fmt.Sprintf(":c%d", i)
		names[n] = attr
		values[v] = want
		clauses = append(clauses, n+" = "+v)
		i++
	}

	in.ConditionExpression = aws.String(strings.Join(clauses, " AND "))
	in.ExpressionAttributeNames = names
	if len(values) > 0 {
		in.ExpressionAttributeValues = values
	}
}

// Delete removes the item with the given key.
func (s *Store) Delete(ctx context.Context, table string, key storage.Record) error {
	err := s.retry(ctx, s.writeAttempts, func() error {
		if err := s.reserve(ctx); err != nil {
			return err
		}
		_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(s.physicalName(table)),
			Key:       key,
		})
		return err
	})
	if err != nil {
		wrapped := s.wrapError("Delete", table, key, err)
		if storage.IsTableNotFound(wrapped) {
			return nil
		}
		return wrapped
	}
	return nil
}

// Scan returns every item in the table, following pagination.
func (s *Store) Scan(ctx context.Context, table string) ([]storage.Record, error) {
	var items []storage.Record
	var startKey map[string]types.AttributeValue

	for {
		var out *dynamodb.ScanOutput
		err := s.retry(ctx, s.readAttempts, func() error {
			if err := s.reserve(ctx); err != nil {
				return err
			}
			var err error
			out, err = s.client.Scan(ctx, &dynamodb.ScanInput{
				TableName:         aws.String(s.physicalName(table)),
				ExclusiveStartKey: startKey,
			})
			return err
		})
		if err != nil {
			wrapped := s.wrapError("Scan", table, nil, err)
			// Scanning a table that does not exist yet yields nothing.
			if storage.IsTableNotFound(wrapped) {
				return nil, nil
			}
			return nil, wrapped
		}
		for _, item := range out.Items {
			items = append(items, item)
		}
		if len(out.LastEvaluatedKey) == 0 {
			return items, nil
		}
		startKey = out.LastEvaluatedKey
	}
}

// BatchPut writes items in chunks of the DynamoDB batch limit,
// resubmitting unprocessed items under the same retry budget.
func (s *Store) BatchPut(ctx context.Context, table string, items []storage.Record) error {
	physical := s.physicalName(table)

	for start := 0; start < len(items); start += maxBatchSize {
		end := min(start+maxBatchSize, len(items))

		pending := make([]types.WriteRequest, 0, end-start)
		for _, item := range items[start:end] {
			pending = append(pending, types.WriteRequest{
				PutRequest: &types.PutRequest{Item: item},
			})
		}

		err := s.retry(ctx, s.writeAttempts, func() error {
			if err := s.reserve(ctx); err != nil {
				return err
			}
			out, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
				RequestItems: map[string][]types.WriteRequest{physical: pending},
			})
			if err != nil {
				return err
			}
			if rest := out.UnprocessedItems[physical]; len(rest) > 0 {
				pending = rest
				return &types.ProvisionedThroughputExceededException{
					Message: aws.String("unprocessed batch items"),
				}
			}
			return nil
		})
		if err != nil {
			return s.wrapError("BatchPut", table, nil, err)
		}
	}
	return nil
}

// CreateTable creates the table with the given key schema using
// on-demand billing. Creating an existing table is not an error.
func (s *Store) CreateTable(ctx context.Context, table string, spec storage.TableSpec) error {
	attrs := []types.AttributeDefinition{{
		AttributeName: aws.String(spec.HashKey),
		AttributeType: types.ScalarAttributeTypeS,
	}}
	schema := []types.KeySchemaElement{{
		AttributeName: aws.String(spec.HashKey),
		KeyType:       types.KeyTypeHash,
	}}
	if spec.RangeKey != "" {
		attrs = append(attrs, types.AttributeDefinition{
			AttributeName: aws.String(spec.RangeKey),
			AttributeType: types.ScalarAttributeTypeS,
		})
		schema = append(schema, types.KeySchemaElement{
			AttributeName: aws.String(spec.RangeKey),
			KeyType:       types.KeyTypeRange,
		})
	}

	err := s.retry(ctx, s.writeAttempts, func() error {
		if err := s.reserve(ctx); err != nil {
			return err
		}
		_, err := s.client.CreateTable(ctx, &dynamodb.CreateTableInput{
			TableName:            aws.String(s.physicalName(table)),
			AttributeDefinitions: attrs,
			KeySchema:            schema,
			BillingMode:          types.BillingModePayPerRequest,
		})
		return err
	})
	if err != nil {
		var inUse *types.ResourceInUseException
		if asAny(err, &inUse) {
			return nil
		}
		return s.wrapError("CreateTable", table, nil, err)
	}
	return nil
}

// DescribeTable returns table metadata.
func (s *Store) DescribeTable(ctx context.Context, table string) (*storage.TableInfo, error) {
	var out *dynamodb.DescribeTableOutput
	err := s.retry(ctx, s.readAttempts, func() error {
		if err := s.reserve(ctx); err != nil {
			return err
		}
		var err error
		out, err = s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
			TableName: aws.String(s.physicalName(table)),
		})
		return err
	})
	if err != nil {
		return nil, s.wrapError("DescribeTable", table, nil, err)
	}

	info := &storage.TableInfo{Name: table}
	if out.Table != nil {
		info.Status = storage.TableStatus(out.Table.TableStatus)
		info.ItemCount = aws.ToInt64(out.Table.ItemCount)
	}
	return info, nil
}

// DeleteTable removes the table and all its items.
func (s *Store) DeleteTable(ctx context.Context, table string) error {
	err := s.retry(ctx, s.writeAttempts, func() error {
		if err := s.reserve(ctx); err != nil {
			return err
		}
		_, err := s.client.DeleteTable(ctx, &dynamodb.DeleteTableInput{
			TableName: aws.String(s.physicalName(table)),
		})
		return err
	})
	if err != nil {
		wrapped := s.wrapError("DeleteTable", table, nil, err)
		if storage.IsTableNotFound(wrapped) {
			return nil
		}
		return wrapped
	}
	return nil
}

// renderKey flattens a key record for error messages.
func renderKey(key storage.Record) string {
	parts := make([]string, 0, len(key))
	for name, value := range key {
		if s, ok := value.(*types.AttributeValueMemberS); ok {
			parts = append(parts, name+"="+s.Value)
		} else {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, ",")
}
