package store

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	mongooptions "go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/hatlonely/tablex/record"
	"github.com/hatlonely/tablex/schema"
)

type MongoStoreOptions struct {
	// 完整连接串，设置后忽略 Host/Port/Username/Password
	URI string `cfg:"uri"`

	Host       string `cfg:"host" def:"localhost"`
	Port       int    `cfg:"port" def:"27017"`
	Database   string `cfg:"database" def:"tablex"`
	Username   string `cfg:"username"`
	Password   string `cfg:"password"`
	AuthSource string `cfg:"authSource" def:"admin"`

	// 集合名，默认取 schema 的 TableName
	Collection string `cfg:"collection"`

	// 连接和单次操作的超时时间
	Timeout time.Duration `cfg:"timeout" def:"10s"`

	MaxPoolSize uint64 `cfg:"maxPoolSize" def:"100"`
	MinPoolSize uint64 `cfg:"minPoolSize" def:"0"`
}

// MongoStore 把通用 CRUD/扫描翻译成 MongoDB 集合操作
// 记录标识写入 _id，稀疏更新走 $set
type MongoStore struct {
	schema        *schema.TableSchema
	responseModel *record.Model

	client     *mongo.Client
	collection *mongo.Collection
	timeout    time.Duration
}

func NewMongoStoreWithOptions(s *schema.TableSchema, options *MongoStoreOptions) (*MongoStore, error) {
	if options == nil {
		options = &MongoStoreOptions{}
	}
	if options.Host == "" {
		options.Host = "localhost"
	}
	if options.Port == 0 {
		options.Port = 27017
	}
	if options.Database == "" {
		options.Database = "tablex"
	}
	if options.AuthSource == "" {
		options.AuthSource = "admin"
	}
	if options.Timeout == 0 {
		options.Timeout = 10 * time.Second
	}
	if options.MaxPoolSize == 0 {
		options.MaxPoolSize = 100
	}

	uri := options.URI
	if uri == "" {
		if options.Username != "" && options.Password != "" {
			uri = fmt.Sprintf("mongodb://%s:%s@%s:%d/%s?authSource=%s",
				options.Username, options.Password, options.Host, options.Port,
				options.Database, options.AuthSource)
		} else {
			uri = fmt.Sprintf("mongodb://%s:%d/%s", options.Host, options.Port, options.Database)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), options.Timeout)
	defer cancel()

	clientOptions := mongooptions.Client().ApplyURI(uri)
	clientOptions.SetMaxPoolSize(options.MaxPoolSize)
	clientOptions.SetMinPoolSize(options.MinPoolSize)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, errors.WithMessage(err, "mongo.Connect failed")
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, errors.WithMessage(err, "mongo.Ping failed")
	}

	collection := options.Collection
	if collection == "" {
		collection = s.TableName
	}

	return &MongoStore{
		schema:        s,
		responseModel: record.NewResponseModel(s),
		client:        client,
		collection:    client.Database(options.Database).Collection(collection),
		timeout:       options.Timeout,
	}, nil
}

func (m *MongoStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.timeout > 0 {
		return context.WithTimeout(ctx, m.timeout)
	}
	return ctx, func() {}
}

func (m *MongoStore) Insert(ctx context.Context, rec record.Record) (record.Record, error) {
	key, err := extractKey(m.schema, rec)
	if err != nil {
		return nil, err
	}
	item := encodeItem(m.schema, rec, time.Now())
	identity := identityOf(m.schema, key)

	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	err = m.collection.FindOne(ctx, bson.M{"_id": identity}).Err()
	if err == nil {
		return nil, errors.WithMessagef(ErrAlreadyExists, "record with %s already exists", keyDescription(m.schema, key))
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, newStoreError("FindOne", err)
	}

	doc := bson.M{"_id": identity}
	for k, v := range item {
		doc[k] = v
	}
	if _, err := m.collection.InsertOne(ctx, doc); err != nil {
		// 预检查和写入之间的并发插入会在这里撞唯一键
		if mongo.IsDuplicateKeyError(err) {
			return nil, errors.WithMessagef(ErrAlreadyExists, "record with %s already exists", keyDescription(m.schema, key))
		}
		return nil, newStoreError("InsertOne", err)
	}

	return m.responseModel.Shape(item), nil
}

func (m *MongoStore) Get(ctx context.Context, key Key) (record.Record, error) {
	if err := validateKey(m.schema, key); err != nil {
		return nil, err
	}

	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	var doc bson.M
	err := m.collection.FindOne(ctx, bson.M{"_id": identityOf(m.schema, key)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errors.WithMessagef(ErrNotFound, "record with %s not found", keyDescription(m.schema, key))
	}
	if err != nil {
		return nil, newStoreError("FindOne", err)
	}

	return m.responseModel.Shape(docToItem(doc)), nil
}

func (m *MongoStore) Update(ctx context.Context, key Key, partial record.Record) (record.Record, error) {
	if err := validateKey(m.schema, key); err != nil {
		return nil, err
	}
	identity := identityOf(m.schema, key)

	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	err := m.collection.FindOne(ctx, bson.M{"_id": identity}).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errors.WithMessagef(ErrNotFound, "record with %s not found", keyDescription(m.schema, key))
	}
	if err != nil {
		return nil, newStoreError("FindOne", err)
	}

	set := bson.M{}
	for k, v := range updateValues(m.schema, partial, time.Now()) {
		set[k] = v
	}

	var doc bson.M
	err = m.collection.FindOneAndUpdate(
		ctx,
		bson.M{"_id": identity},
		bson.M{"$set": set},
		mongooptions.FindOneAndUpdate().SetReturnDocument(mongooptions.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errors.WithMessagef(ErrNotFound, "record with %s not found", keyDescription(m.schema, key))
	}
	if err != nil {
		return nil, newStoreError("FindOneAndUpdate", err)
	}

	return m.responseModel.Shape(docToItem(doc)), nil
}

func (m *MongoStore) Delete(ctx context.Context, key Key) (bool, error) {
	if err := validateKey(m.schema, key); err != nil {
		return false, err
	}

	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	err := m.collection.FindOneAndDelete(ctx, bson.M{"_id": identityOf(m.schema, key)}).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, newStoreError("FindOneAndDelete", err)
	}
	return true, nil
}

func (m *MongoStore) Query(ctx context.Context, field string, value string, limit int, token string) (*QueryResult, error) {
	filter, err := newQueryFilter(m.schema, field, value)
	if err != nil {
		return nil, err
	}
	limit = clampLimit(limit)

	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	match := bson.M{}
	if filter.field.Type.IsNumeric() {
		match[field] = filter.numeric
	} else {
		match[field] = primitive.Regex{Pattern: regexp.QuoteMeta(filter.text), Options: "i"}
	}
	if token != "" {
		match["_id"] = bson.M{"$gt": token}
	}

	findOptions := mongooptions.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetLimit(int64(limit))
	cursor, err := m.collection.Find(ctx, match, findOptions)
	if err != nil {
		return nil, newStoreError("Find", err)
	}
	defer cursor.Close(ctx)

	result := &QueryResult{Records: make([]record.Record, 0, limit)}
	lastIdentity := ""
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, newStoreError("Decode", err)
		}
		if id, ok := doc["_id"].(string); ok {
			lastIdentity = id
		}
		result.Records = append(result.Records, m.responseModel.Shape(docToItem(doc)))
	}
	if err := cursor.Err(); err != nil {
		return nil, newStoreError("Cursor", err)
	}

	result.TotalCount = len(result.Records)
	if len(result.Records) == limit {
		result.NextToken = lastIdentity
	}
	return result, nil
}

func (m *MongoStore) Ping(ctx context.Context) error {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	if err := m.client.Ping(ctx, readpref.Primary()); err != nil {
		return newStoreError("Ping", err)
	}
	return nil
}

func (m *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	return m.client.Disconnect(ctx)
}

// docToItem 去掉 _id，把 bson 文档还原成存储项
func docToItem(doc bson.M) map[string]any {
	item := make(map[string]any, len(doc))
	for k, v := range doc {
		if k == "_id" {
			continue
		}
		if arr, ok := v.(primitive.A); ok {
			item[k] = []any(arr)
			continue
		}
		item[k] = v
	}
	return item
}
