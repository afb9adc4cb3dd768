package repository

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"
)

type fakeDynamo struct {
	getOut          *dynamodb.GetItemOutput
	getErr          error
	putErr          error
	deleteOut       *dynamodb.DeleteItemOutput
	deleteErr       error
	lastGetInput    *dynamodb.GetItemInput
	lastPutInput    *dynamodb.PutItemInput
	lastDeleteInput *dynamodb.DeleteItemInput
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.lastGetInput = in
	return f.getOut, f.getErr
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.lastPutInput = in
	return &dynamodb.PutItemOutput{}, f.putErr
}

func (f *fakeDynamo) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.lastDeleteInput = in
	if f.deleteOut == nil {
		return &dynamodb.DeleteItemOutput{}, f.deleteErr
	}
	return f.deleteOut, f.deleteErr
}

var fixedNow = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

func mustNewDynamoKV(t *testing.T, db *fakeDynamo) *DynamoKV {
	t.Helper()
	kv, err := NewDynamoKV(db, "test-table")
	require.NoError(t, err)
	kv.now = func() time.Time { return fixedNow }
	return kv
}

func makeKVItem(key, value string, ttl int64) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":    &types.AttributeValueMemberS{Value: key},
		"SK":    &types.AttributeValueMemberS{Value: skValue},
		"value": &types.AttributeValueMemberB{Value: []byte(value)},
		"ttl":   &types.AttributeValueMemberN{Value: strconv.FormatInt(ttl, 10)},
	}
}

func TestNewDynamoKV_Validates(t *testing.T) {
	_, err := NewDynamoKV(nil, "t")
	require.ErrorContains(t, err, "must not be nil")
	_, err = NewDynamoKV(&fakeDynamo{}, "  ")
	require.ErrorContains(t, err, "table name")
}

func TestDynamoGet_HappyPath(t *testing.T) {
	db := &fakeDynamo{getOut: &dynamodb.GetItemOutput{Item: makeKVItem("case:1", `{"a":1}`, fixedNow.Add(time.Hour).Unix())}}
	kv := mustNewDynamoKV(t, db)

	v, err := kv.Get(context.Background(), "case:1")
	require.NoError(t, err)
	require.Equal(t, `{"a":1}`, string(v))
	require.Equal(t, "test-table", aws.ToString(db.lastGetInput.TableName))
	require.True(t, aws.ToBool(db.lastGetInput.ConsistentRead))
}

func TestDynamoGet_MissingAndExpired(t *testing.T) {
	cases := []struct {
		name string
		out  *dynamodb.GetItemOutput
	}{
		{name: "missing", out: &dynamodb.GetItemOutput{}},
		{name: "expired but not swept", out: &dynamodb.GetItemOutput{Item: makeKVItem("k", "v", fixedNow.Add(-time.Second).Unix())}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			kv := mustNewDynamoKV(t, &fakeDynamo{getOut: tc.out})
			_, err := kv.Get(context.Background(), "k")
			require.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestDynamoGet_NoExpiry(t *testing.T) {
	kv := mustNewDynamoKV(t, &fakeDynamo{getOut: &dynamodb.GetItemOutput{Item: makeKVItem("k", "v", 0)}})
	v, err := kv.Get(context.Background(), "k")
	require.NoError(t, err)
	require.Equal(t, "v", string(v))
}

func TestDynamoGet_Error(t *testing.T) {
	kv := mustNewDynamoKV(t, &fakeDynamo{getErr: errors.New("boom")})
	_, err := kv.Get(context.Background(), "k")
	require.ErrorContains(t, err, "repository: Get")
}

func TestDynamoPut_WritesTTL(t *testing.T) {
	db := &fakeDynamo{}
	kv := mustNewDynamoKV(t, db)

	require.NoError(t, kv.Put(context.Background(), "conv_state:u1", []byte("x"), time.Hour))
	item := db.lastPutInput.Item
	require.Equal(t, "conv_state:u1", item["PK"].(*types.AttributeValueMemberS).Value)
	require.Equal(t, strconv.FormatInt(fixedNow.Add(time.Hour).Unix(), 10), item["ttl"].(*types.AttributeValueMemberN).Value)
	require.Nil(t, db.lastPutInput.ConditionExpression)
}

func TestDynamoPutIfAbsent(t *testing.T) {
	db := &fakeDynamo{}
	kv := mustNewDynamoKV(t, db)

	ok, err := kv.PutIfAbsent(context.Background(), "webhook_event:e1", []byte("1"), time.Hour)
	require.NoError(t, err)
	require.True(t, ok)
	require.Contains(t, aws.ToString(db.lastPutInput.ConditionExpression), "attribute_not_exists(PK)")

	db.putErr = &types.ConditionalCheckFailedException{Message: aws.String("exists")}
	ok, err = kv.PutIfAbsent(context.Background(), "webhook_event:e1", []byte("1"), time.Hour)
	require.NoError(t, err)
	require.False(t, ok)

	db.putErr = errors.New("throttled")
	_, err = kv.PutIfAbsent(context.Background(), "webhook_event:e1", []byte("1"), time.Hour)
	require.ErrorContains(t, err, "PutIfAbsent")
}

func TestDynamoTake_ReturnsOldImage(t *testing.T) {
	db := &fakeDynamo{deleteOut: &dynamodb.DeleteItemOutput{Attributes: makeKVItem("case_token:t", "case-1", fixedNow.Add(time.Minute).Unix())}}
	kv := mustNewDynamoKV(t, db)

	v, err := kv.Take(context.Background(), "case_token:t")
	require.NoError(t, err)
	require.Equal(t, "case-1", string(v))
	require.Equal(t, types.ReturnValueAllOld, db.lastDeleteInput.ReturnValues)
	require.Contains(t, aws.ToString(db.lastDeleteInput.ConditionExpression), "attribute_exists(PK)")
	now := db.lastDeleteInput.ExpressionAttributeValues[":now"].(*types.AttributeValueMemberN).Value
	require.Equal(t, strconv.FormatInt(fixedNow.Unix(), 10), now)
}

func TestDynamoTake_ConditionFailedIsNotFound(t *testing.T) {
	db := &fakeDynamo{deleteErr: &types.ConditionalCheckFailedException{Message: aws.String("gone")}}
	kv := mustNewDynamoKV(t, db)

	_, err := kv.Take(context.Background(), "case_token:t")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDynamoTake_Error(t *testing.T) {
	kv := mustNewDynamoKV(t, &fakeDynamo{deleteErr: errors.New("boom")})
	_, err := kv.Take(context.Background(), "k")
	require.ErrorContains(t, err, "repository: Take")
	require.NotErrorIs(t, err, ErrNotFound)
}

func TestDynamoDelete(t *testing.T) {
	db := &fakeDynamo{}
	kv := mustNewDynamoKV(t, db)
	require.NoError(t, kv.Delete(context.Background(), "k"))
	require.Nil(t, db.lastDeleteInput.ConditionExpression)

	db.deleteErr = errors.New("boom")
	require.ErrorContains(t, kv.Delete(context.Background(), "k"), "repository: Delete")
}

func TestBinAttr_MalformedValue(t *testing.T) {
	item := map[string]types.AttributeValue{"value": &types.AttributeValueMemberN{Value: "1"}}
	_, err := binAttr(item, "value")
	require.ErrorContains(t, err, "not binary")
	_, err = binAttr(item, "missing")
	require.ErrorContains(t, err, "missing attribute")
}
