package store

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/pkg/errors"

	"github.com/hatlonely/tablex/record"
	"github.com/hatlonely/tablex/schema"
)

type DynamoStoreOptions struct {
	// AWS 区域
	Region string `cfg:"region" def:"us-east-1"`

	// 自定义服务地址，本地开发时指向 DynamoDB Local
	Endpoint string `cfg:"endpoint"`

	// 静态凭证，不设置时走 SDK 默认凭证链
	AccessKeyID     string `cfg:"accessKeyID"`
	SecretAccessKey string `cfg:"secretAccessKey"`
	SessionToken    string `cfg:"sessionToken"`

	// 表名，默认取 schema 的 TableName
	TableName string `cfg:"tableName"`

	// 放弃前的最大请求尝试次数
	MaxRetries int `cfg:"maxRetries" def:"3"`

	// 单次存储调用的超时时间，0 表示不额外限制
	RequestTimeout time.Duration `cfg:"requestTimeout" def:"10s"`

	// 写入时附带存在性条件表达式，关闭先读后写的竞态窗口
	// 默认关闭，保持先检查再写入的两段式行为
	ConditionalWrites bool `cfg:"conditionalWrites"`
}

// dynamoAPI DynamoStore 依赖的客户端方法子集
type dynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// DynamoStore 把通用 CRUD/扫描翻译成 DynamoDB 操作
type DynamoStore struct {
	schema        *schema.TableSchema
	responseModel *record.Model
	client        dynamoAPI

	tableName         string
	requestTimeout    time.Duration
	conditionalWrites bool
}

func NewDynamoStoreWithOptions(s *schema.TableSchema, options *DynamoStoreOptions) (*DynamoStore, error) {
	if options == nil {
		options = &DynamoStoreOptions{}
	}
	if options.Region == "" {
		options.Region = "us-east-1"
	}
	if options.MaxRetries == 0 {
		options.MaxRetries = 3
	}
	if options.RequestTimeout == 0 {
		options.RequestTimeout = 10 * time.Second
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(options.Region),
		awsconfig.WithRetryMaxAttempts(options.MaxRetries),
	}
	if options.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(options.AccessKeyID, options.SecretAccessKey, options.SessionToken),
		))
	}
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), loadOpts...)
	if err != nil {
		return nil, errors.WithMessage(err, "load aws config failed")
	}

	client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if options.Endpoint != "" {
			o.BaseEndpoint = aws.String(options.Endpoint)
		}
	})

	return newDynamoStore(s, client, options), nil
}

func newDynamoStore(s *schema.TableSchema, client dynamoAPI, options *DynamoStoreOptions) *DynamoStore {
	tableName := options.TableName
	if tableName == "" {
		tableName = s.TableName
	}
	return &DynamoStore{
		schema:            s,
		responseModel:     record.NewResponseModel(s),
		client:            client,
		tableName:         tableName,
		requestTimeout:    options.RequestTimeout,
		conditionalWrites: options.ConditionalWrites,
	}
}

func (d *DynamoStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.requestTimeout > 0 {
		return context.WithTimeout(ctx, d.requestTimeout)
	}
	return ctx, func() {}
}

func (d *DynamoStore) keyAttributes(key Key) map[string]types.AttributeValue {
	attrs := map[string]types.AttributeValue{
		d.schema.KeyField: &types.AttributeValueMemberS{Value: key.Partition},
	}
	if d.schema.HasSortKey() && key.Sort != "" {
		attrs[d.schema.SortKeyField] = &types.AttributeValueMemberS{Value: key.Sort}
	}
	return attrs
}

// Insert 写入新记录
// 存在性检查和写入是两次独立调用，并发插入同一主键存在竞态窗口，
// 开启 ConditionalWrites 后改由条件表达式保证
func (d *DynamoStore) Insert(ctx context.Context, rec record.Record) (record.Record, error) {
	key, err := extractKey(d.schema, rec)
	if err != nil {
		return nil, err
	}
	item := encodeItem(d.schema, rec, time.Now())
	attrs, err := attributevalue.MarshalMap(item)
	if err != nil {
		return nil, newStoreError("MarshalItem", err)
	}

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	if !d.conditionalWrites {
		out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
			TableName: aws.String(d.tableName),
			Key:       d.keyAttributes(key),
		})
		if err != nil {
			return nil, newStoreError("GetItem", err)
		}
		if len(out.Item) > 0 {
			return nil, errors.WithMessagef(ErrAlreadyExists, "record with %s already exists", keyDescription(d.schema, key))
		}
	}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(d.tableName),
		Item:      attrs,
	}
	if d.conditionalWrites {
		input.ConditionExpression = aws.String("attribute_not_exists(#pk)")
		input.ExpressionAttributeNames = map[string]string{"#pk": d.schema.KeyField}
	}
	if _, err := d.client.PutItem(ctx, input); err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return nil, errors.WithMessagef(ErrAlreadyExists, "record with %s already exists", keyDescription(d.schema, key))
		}
		return nil, newStoreError("PutItem", err)
	}

	return d.responseModel.Shape(item), nil
}

func (d *DynamoStore) Get(ctx context.Context, key Key) (record.Record, error) {
	if err := validateKey(d.schema, key); err != nil {
		return nil, err
	}

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.tableName),
		Key:       d.keyAttributes(key),
	})
	if err != nil {
		return nil, newStoreError("GetItem", err)
	}
	if len(out.Item) == 0 {
		return nil, errors.WithMessagef(ErrNotFound, "record with %s not found", keyDescription(d.schema, key))
	}

	item, err := unmarshalItem(out.Item)
	if err != nil {
		return nil, newStoreError("UnmarshalItem", err)
	}
	return d.responseModel.Shape(item), nil
}

// Update 对单条记录做稀疏更新，通过 UpdateExpression 原子地只改动提供的字段
// 存在性检查和更新之间同样是两次独立调用，竞态窗口是已知的设计限制
func (d *DynamoStore) Update(ctx context.Context, key Key, partial record.Record) (record.Record, error) {
	if err := validateKey(d.schema, key); err != nil {
		return nil, err
	}

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.tableName),
		Key:       d.keyAttributes(key),
	})
	if err != nil {
		return nil, newStoreError("GetItem", err)
	}
	if len(out.Item) == 0 {
		return nil, errors.WithMessagef(ErrNotFound, "record with %s not found", keyDescription(d.schema, key))
	}

	values := updateValues(d.schema, partial, time.Now())
	expression := ""
	names := make(map[string]string, len(values))
	attrValues := make(map[string]types.AttributeValue, len(values))
	appendPart := func(name string) error {
		value, exists := values[name]
		if !exists {
			return nil
		}
		if expression != "" {
			expression += ", "
		}
		expression += "#" + name + " = :" + name
		names["#"+name] = name
		av, err := attributevalue.Marshal(value)
		if err != nil {
			return err
		}
		attrValues[":"+name] = av
		return nil
	}
	for _, field := range d.schema.Fields {
		if err := appendPart(field.Name); err != nil {
			return nil, newStoreError("MarshalItem", err)
		}
	}
	if err := appendPart(schema.UpdatedAtField); err != nil {
		return nil, newStoreError("MarshalItem", err)
	}

	input := &dynamodb.UpdateItemInput{
		TableName:                 aws.String(d.tableName),
		Key:                       d.keyAttributes(key),
		UpdateExpression:          aws.String("SET " + expression),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: attrValues,
		ReturnValues:              types.ReturnValueAllNew,
	}
	if d.conditionalWrites {
		input.ConditionExpression = aws.String("attribute_exists(#cond_pk)")
		input.ExpressionAttributeNames["#cond_pk"] = d.schema.KeyField
	}

	updated, err := d.client.UpdateItem(ctx, input)
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return nil, errors.WithMessagef(ErrNotFound, "record with %s not found", keyDescription(d.schema, key))
		}
		return nil, newStoreError("UpdateItem", err)
	}

	item, err := unmarshalItem(updated.Attributes)
	if err != nil {
		return nil, newStoreError("UnmarshalItem", err)
	}
	return d.responseModel.Shape(item), nil
}

func (d *DynamoStore) Delete(ctx context.Context, key Key) (bool, error) {
	if err := validateKey(d.schema, key); err != nil {
		return false, err
	}

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	out, err := d.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:    aws.String(d.tableName),
		Key:          d.keyAttributes(key),
		ReturnValues: types.ReturnValueAllOld,
	})
	if err != nil {
		return false, newStoreError("DeleteItem", err)
	}
	return len(out.Attributes) > 0, nil
}

func (d *DynamoStore) Query(ctx context.Context, field string, value string, limit int, token string) (*QueryResult, error) {
	filter, err := newQueryFilter(d.schema, field, value)
	if err != nil {
		return nil, err
	}
	limit = clampLimit(limit)

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	input := &dynamodb.ScanInput{
		TableName:                aws.String(d.tableName),
		Limit:                    aws.Int32(int32(limit)),
		ExpressionAttributeNames: map[string]string{"#f": field},
	}
	if filter.field.Type.IsNumeric() {
		av, err := attributevalue.Marshal(filter.numeric)
		if err != nil {
			return nil, newStoreError("MarshalItem", err)
		}
		input.FilterExpression = aws.String("#f = :f")
		input.ExpressionAttributeValues = map[string]types.AttributeValue{":f": av}
	} else {
		input.FilterExpression = aws.String("contains(#f, :f)")
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":f": &types.AttributeValueMemberS{Value: filter.text},
		}
	}
	if token != "" {
		input.ExclusiveStartKey = d.keyAttributes(keyFromToken(d.schema, token))
	}

	out, err := d.client.Scan(ctx, input)
	if err != nil {
		return nil, newStoreError("Scan", err)
	}

	result := &QueryResult{Records: make([]record.Record, 0, len(out.Items))}
	for _, attrs := range out.Items {
		item, err := unmarshalItem(attrs)
		if err != nil {
			return nil, newStoreError("UnmarshalItem", err)
		}
		result.Records = append(result.Records, d.responseModel.Shape(item))
	}
	result.TotalCount = len(result.Records)

	if len(out.LastEvaluatedKey) > 0 {
		lek, err := unmarshalItem(out.LastEvaluatedKey)
		if err != nil {
			return nil, newStoreError("UnmarshalItem", err)
		}
		result.NextToken = nextTokenOf(d.schema, lek)
	}
	return result, nil
}

func (d *DynamoStore) Ping(ctx context.Context) error {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	if _, err := d.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(d.tableName),
	}); err != nil {
		return newStoreError("DescribeTable", err)
	}
	return nil
}

func (d *DynamoStore) Close() error {
	return nil
}

func unmarshalItem(attrs map[string]types.AttributeValue) (map[string]any, error) {
	item := make(map[string]any, len(attrs))
	if err := attributevalue.UnmarshalMap(attrs, &item); err != nil {
		return nil, err
	}
	return item, nil
}
