package store

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shandysiswandi/otpgate/internal/otp/entity"
	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
)

const defaultDynamoTable = "otp_codes"

// DynamoAPI is the subset of *dynamodb.Client used by Dynamo.
type DynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	CreateTable(ctx context.Context, in *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DescribeTimeToLive(ctx context.Context, in *dynamodb.DescribeTimeToLiveInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTimeToLiveOutput, error)
	UpdateTimeToLive(ctx context.Context, in *dynamodb.UpdateTimeToLiveInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateTimeToLiveOutput, error)
}

// dynamoItem keeps expires_at in unix seconds for the table TTL and
// expires_at_ms for exact comparisons, since TTL deletion lags.
type dynamoItem struct {
	SessionID   string `dynamodbav:"session_id"`
	Code        string `dynamodbav:"code"`
	ExpiresAt   int64  `dynamodbav:"expires_at"`
	ExpiresAtMS int64  `dynamodbav:"expires_at_ms"`
	Attempts    int    `dynamodbav:"attempts"`
}

type Dynamo struct {
	client DynamoAPI
	table  string
	opts   Options
}

func NewDynamo(client DynamoAPI, table string, opts Options) *Dynamo {
	if table == "" {
		table = defaultDynamoTable
	}
	return &Dynamo{client: client, table: table, opts: opts.withDefaults()}
}

// EnsureTable creates the table with on-demand billing if it is missing and
// enables TTL on expires_at unless it is already enabled or enabling.
func (d *Dynamo) EnsureTable(ctx context.Context) error {
	_, err := d.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName:   aws.String(d.table),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("session_id"), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("session_id"), KeyType: types.KeyTypeHash},
		},
	})

	var inUse *types.ResourceInUseException
	if err != nil && !errors.As(err, &inUse) {
		return unavailable("create table", err)
	}

	desc, err := d.client.DescribeTimeToLive(ctx, &dynamodb.DescribeTimeToLiveInput{
		TableName: aws.String(d.table),
	})
	if err != nil {
		return unavailable("describe ttl", err)
	}
	if ttl := desc.TimeToLiveDescription; ttl != nil {
		switch ttl.TimeToLiveStatus {
		case types.TimeToLiveStatusEnabled, types.TimeToLiveStatusEnabling:
			return nil
		}
	}

	_, err = d.client.UpdateTimeToLive(ctx, &dynamodb.UpdateTimeToLiveInput{
		TableName: aws.String(d.table),
		TimeToLiveSpecification: &types.TimeToLiveSpecification{
			AttributeName: aws.String("expires_at"),
			Enabled:       aws.Bool(true),
		},
	})
	if err != nil {
		return unavailable("enable ttl", err)
	}

	return nil
}

func (d *Dynamo) key(sessionID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"session_id": &types.AttributeValueMemberS{Value: sessionID},
	}
}

func nowMS(t time.Time) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(t.UnixMilli(), 10)}
}

func (d *Dynamo) Issue(ctx context.Context, sessionID string) (*entity.Record, error) {
	rec := entity.Record{
		SessionID: sessionID,
		Code:      d.opts.Generator.Generate(),
		ExpiresAt: d.opts.Clock.Now().Add(d.opts.TTL).Truncate(time.Millisecond),
	}

	item, err := attributevalue.MarshalMap(dynamoItem{
		SessionID:   rec.SessionID,
		Code:        rec.Code,
		ExpiresAt:   rec.ExpiresAt.Unix(),
		ExpiresAtMS: rec.ExpiresAt.UnixMilli(),
	})
	if err != nil {
		return nil, unavailable("issue", err)
	}

	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.table),
		Item:      item,
	})
	if err != nil {
		return nil, unavailable("issue", err)
	}

	return &rec, nil
}

func (d *Dynamo) Lookup(ctx context.Context, sessionID string) (*entity.Record, error) {
	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(d.table),
		Key:            d.key(sessionID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, unavailable("lookup", err)
	}
	if len(out.Item) == 0 {
		return nil, goerror.ErrNotFound
	}

	var it dynamoItem
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return nil, unavailable("lookup", err)
	}

	rec := &entity.Record{
		SessionID: sessionID,
		Code:      it.Code,
		ExpiresAt: time.UnixMilli(it.ExpiresAtMS),
		Attempts:  it.Attempts,
	}
	if !rec.Live(d.opts.Clock.Now()) {
		return nil, goerror.ErrNotFound
	}

	return rec, nil
}

func (d *Dynamo) RecordFailedAttempt(ctx context.Context, sessionID string) (int, error) {
	out, err := d.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(d.table),
		Key:                 d.key(sessionID),
		UpdateExpression:    aws.String("ADD #attempts :one"),
		ConditionExpression: aws.String("attribute_exists(session_id) AND expires_at_ms > :now"),
		ExpressionAttributeNames: map[string]string{
			"#attempts": "attempts",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
			":now": nowMS(d.opts.Clock.Now()),
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})

	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return 0, nil
	}
	if err != nil {
		return 0, unavailable("record failed attempt", err)
	}

	var attempts int
	if err := attributevalue.Unmarshal(out.Attributes["attempts"], &attempts); err != nil {
		return 0, unavailable("record failed attempt", err)
	}

	return attempts, nil
}

func (d *Dynamo) Consume(ctx context.Context, sessionID string) error {
	_, err := d.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(d.table),
		Key:       d.key(sessionID),
	})
	if err != nil {
		return unavailable("consume", err)
	}
	return nil
}

func (d *Dynamo) CompareAndConsume(ctx context.Context, sessionID, code string) (bool, error) {
	_, err := d.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(d.table),
		Key:                 d.key(sessionID),
		ConditionExpression: aws.String("#code = :code AND expires_at_ms > :now"),
		ExpressionAttributeNames: map[string]string{
			"#code": "code",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":code": &types.AttributeValueMemberS{Value: code},
			":now":  nowMS(d.opts.Clock.Now()),
		},
	})

	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return false, nil
	}
	if err != nil {
		return false, unavailable("compare and consume", err)
	}

	return true, nil
}

// Sweep is a no-op: the table TTL purges expired items.
func (d *Dynamo) Sweep(context.Context) (int, error) {
	return 0, nil
}

func (d *Dynamo) Close() error {
	return nil
}
