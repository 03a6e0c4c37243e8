package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/go-pkgz/lgr"

	"github.com/umputun/commentscope/pkg/domain"
)

// DynamoStore keeps quota records in a dynamodb table with string hash key "id".
// Puts are conditional on the version read by the same update.
type DynamoStore struct {
	client    *dynamodb.DynamoDB
	tableName string
}

// NewDynamoStore makes a dynamodb client and creates the table if it doesn't exist
func NewDynamoStore(ctx context.Context, cfg Config) (*DynamoStore, error) {
	awsConfig := &aws.Config{Region: aws.String(cfg.DynamoRegion)}
	if cfg.DynamoEndpoint != "" {
		awsConfig.Endpoint = aws.String(cfg.DynamoEndpoint) // dynamodb local
	}
	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("make aws session: %w", err)
	}

	tableName := cfg.Collection
	if tableName == "" {
		tableName = "users"
	}
	res := &DynamoStore{client: dynamodb.New(sess), tableName: tableName}
	if err := res.ensureTable(ctx); err != nil {
		return nil, fmt.Errorf("ensure table %s: %w", tableName, err)
	}
	lgr.Printf("[DEBUG] dynamodb quota store ready, table %s", tableName)
	return res, nil
}

func (s *DynamoStore) ensureTable(ctx context.Context) error {
	describe := &dynamodb.DescribeTableInput{TableName: aws.String(s.tableName)}
	if _, err := s.client.DescribeTableWithContext(ctx, describe); err == nil {
		return nil
	}

	_, err := s.client.CreateTableWithContext(ctx, &dynamodb.CreateTableInput{
		TableName:            aws.String(s.tableName),
		KeySchema:            []*dynamodb.KeySchemaElement{{AttributeName: aws.String("id"), KeyType: aws.String("HASH")}},
		AttributeDefinitions: []*dynamodb.AttributeDefinition{{AttributeName: aws.String("id"), AttributeType: aws.String("S")}},
		BillingMode:          aws.String("PAY_PER_REQUEST"),
	})
	if err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	return s.client.WaitUntilTableExistsWithContext(ctx, describe)
}

// Update reads the record with a consistent read, runs fn and puts the result
// only if the version is unchanged
func (s *DynamoStore) Update(ctx context.Context, callerID string, fn func(current *domain.Quota) (*domain.Quota, error)) error {
	return withRetry(ctx, conflictRetry, isConflict, func() error {
		out, err := s.client.GetItemWithContext(ctx, &dynamodb.GetItemInput{
			TableName:      aws.String(s.tableName),
			Key:            map[string]*dynamodb.AttributeValue{"id": {S: aws.String(callerID)}},
			ConsistentRead: aws.Bool(true),
		})
		if err != nil {
			return fmt.Errorf("get quota record: %w", err)
		}

		var doc quotaDoc
		var current *domain.Quota
		if out.Item != nil {
			if err := dynamodbattribute.UnmarshalMap(out.Item, &doc); err != nil {
				return fmt.Errorf("decode quota record: %w", err)
			}
			current = doc.toDomain()
		}

		next, err := fn(current)
		if err != nil || next == nil {
			return err
		}

		input, err := s.putInput(next, current == nil, doc.Version)
		if err != nil {
			return err
		}
		if _, err := s.client.PutItemWithContext(ctx, input); err != nil {
			if isConditionFailed(err) {
				return errConflict
			}
			return fmt.Errorf("put quota record: %w", err)
		}
		return nil
	})
}

// putInput makes the conditional put for the next version of the record
func (s *DynamoStore) putInput(next *domain.Quota, create bool, version int64) (*dynamodb.PutItemInput, error) {
	item, err := dynamodbattribute.MarshalMap(newQuotaDoc(next, version+1))
	if err != nil {
		return nil, fmt.Errorf("encode quota record: %w", err)
	}
	input := &dynamodb.PutItemInput{TableName: aws.String(s.tableName), Item: item}
	if create {
		input.ConditionExpression = aws.String("attribute_not_exists(id)")
		return input, nil
	}
	input.ConditionExpression = aws.String("#v = :v")
	input.ExpressionAttributeNames = map[string]*string{"#v": aws.String("version")}
	input.ExpressionAttributeValues = map[string]*dynamodb.AttributeValue{
		":v": {N: aws.String(strconv.FormatInt(version, 10))},
	}
	return input, nil
}

func isConditionFailed(err error) bool {
	var aerr awserr.Error
	return errors.As(err, &aerr) && aerr.Code() == dynamodb.ErrCodeConditionalCheckFailedException
}

// Close is a no-op, the aws client holds no connections to release
func (s *DynamoStore) Close() error { return nil }
