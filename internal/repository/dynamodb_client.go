package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// skValue is the single sort key used for KV items.
const skValue = "KV"

// dynamodbAPI is the minimal DynamoDB interface required by DynamoKV.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// DynamoKV stores values in a DynamoDB table keyed by PK/SK with a numeric
// "ttl" attribute enabled as the table's TTL attribute.
type DynamoKV struct {
	api       dynamodbAPI
	tableName string
	now       func() time.Time
}

// NewDynamoKV creates a DynamoDB-backed KV.
func NewDynamoKV(api dynamodbAPI, tableName string) (*DynamoKV, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &DynamoKV{api: api, tableName: tableName, now: time.Now}, nil
}

func itemKey(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: key},
		"SK": &types.AttributeValueMemberS{Value: skValue},
	}
}

// Get reads a live value. DynamoDB sweeps expired items lazily, so the ttl
// attribute is checked here as well.
func (d *DynamoKV) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := d.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(d.tableName),
		Key:            itemKey(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("repository: Get: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return nil, ErrNotFound
	}
	if d.expired(out.Item) {
		return nil, ErrNotFound
	}
	v, err := binAttr(out.Item, "value")
	if err != nil {
		return nil, fmt.Errorf("repository: Get decode: %w", err)
	}
	return v, nil
}

func (d *DynamoKV) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := d.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.tableName),
		Item:      d.item(key, value, ttl),
	})
	if err != nil {
		return fmt.Errorf("repository: Put: %w", err)
	}
	return nil
}

func (d *DynamoKV) PutIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	_, err := d.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(d.tableName),
		Item:                d.item(key, value, ttl),
		ConditionExpression: aws.String("attribute_not_exists(PK) OR (#ttl > :zero AND #ttl <= :now)"),
		ExpressionAttributeNames: map[string]string{
			"#ttl": "ttl",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now":  numAttr(d.now().Unix()),
			":zero": numAttr(0),
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return false, nil
		}
		return false, fmt.Errorf("repository: PutIfAbsent: %w", err)
	}
	return true, nil
}

// Take deletes the item only while it is live and returns the old image.
// The conditional delete is what makes token consumption single-use.
func (d *DynamoKV) Take(ctx context.Context, key string) ([]byte, error) {
	out, err := d.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(d.tableName),
		Key:                 itemKey(key),
		ConditionExpression: aws.String("attribute_exists(PK) AND (#ttl = :zero OR #ttl > :now)"),
		ExpressionAttributeNames: map[string]string{
			"#ttl": "ttl",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now":  numAttr(d.now().Unix()),
			":zero": numAttr(0),
		},
		ReturnValues: types.ReturnValueAllOld,
	})
	if err != nil {
		if isConditionFailed(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("repository: Take: %w", err)
	}
	if out == nil || len(out.Attributes) == 0 {
		return nil, ErrNotFound
	}
	v, err := binAttr(out.Attributes, "value")
	if err != nil {
		return nil, fmt.Errorf("repository: Take decode: %w", err)
	}
	return v, nil
}

func (d *DynamoKV) Delete(ctx context.Context, key string) error {
	_, err := d.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(d.tableName),
		Key:       itemKey(key),
	})
	if err != nil {
		return fmt.Errorf("repository: Delete: %w", err)
	}
	return nil
}

func (d *DynamoKV) item(key string, value []byte, ttl time.Duration) map[string]types.AttributeValue {
	item := itemKey(key)
	item["value"] = &types.AttributeValueMemberB{Value: value}
	item["ttl"] = numAttr(expiresAt(d.now(), ttl))
	return item
}

func (d *DynamoKV) expired(item map[string]types.AttributeValue) bool {
	exp, err := int64Attr(item, "ttl")
	if err != nil || exp == 0 {
		return false
	}
	return exp <= d.now().Unix()
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

func numAttr(n int64) *types.AttributeValueMemberN {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(n, 10)}
}

func binAttr(item map[string]types.AttributeValue, key string) ([]byte, error) {
	v, ok := item[key]
	if !ok {
		return nil, fmt.Errorf("repository: missing attribute %q", key)
	}
	switch b := v.(type) {
	case *types.AttributeValueMemberB:
		return b.Value, nil
	case *types.AttributeValueMemberS:
		return []byte(b.Value), nil
	default:
		return nil, fmt.Errorf("repository: attribute %q is not binary", key)
	}
}

func int64Attr(item map[string]types.AttributeValue, key string) (int64, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}
