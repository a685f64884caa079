package store

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/hatlonely/tablex/record"
	"github.com/hatlonely/tablex/schema"
)

type RedisStoreOptions struct {
	// host:port 地址。
	Endpoint string `cfg:"endpoint" def:"localhost:6379"`

	// 使用指定的用户名来验证当前连接，
	// 连接到使用 Redis ACL 系统的实例时需要。
	Username string `cfg:"username"`

	// 可选密码。必须与 requirepass 服务器配置选项中指定的密码匹配。
	Password string `cfg:"password"`

	// 连接到服务器后选择的数据库。
	DB int `cfg:"db" def:"0"`

	// 放弃前的最大重试次数。
	// 默认是 3 次重试；-1（不是 0）禁用重试。
	MaxRetries int `cfg:"maxRetries" def:"3"`

	// 建立新连接的拨号超时时间。
	DialTimeout time.Duration `cfg:"dialTimeout" def:"5s"`

	// 套接字读取的超时时间。如果达到此时间，命令将失败，而不是阻塞。
	ReadTimeout time.Duration `cfg:"readTimeout" def:"3s"`

	// 套接字写入的超时时间。如果达到此时间，命令将失败，而不是阻塞。
	WriteTimeout time.Duration `cfg:"writeTimeout" def:"3s"`

	// 基础的套接字连接数。
	PoolSize int `cfg:"poolSize" def:"100"`

	// 键前缀，默认取 schema 的 TableName
	KeyPrefix string `cfg:"keyPrefix"`

	// 存储项编解码，msgpack/json
	ValCodec string `cfg:"valCodec" def:"msgpack" validate:"oneof=msgpack json"`
}

// RedisStore 把记录按 <prefix>:<identity> 存成独立的 redis 键
// 扫描类查询在客户端完成匹配，适合中小规模的表
type RedisStore struct {
	schema        *schema.TableSchema
	responseModel *record.Model

	client *redis.Client
	prefix string
	codec  itemCodec
}

func NewRedisStoreWithOptions(s *schema.TableSchema, options *RedisStoreOptions) (*RedisStore, error) {
	if options == nil {
		options = &RedisStoreOptions{}
	}
	if options.Endpoint == "" {
		options.Endpoint = "localhost:6379"
	}

	prefix := options.KeyPrefix
	if prefix == "" {
		prefix = s.TableName
	}

	codec, err := newItemCodec(options.ValCodec)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(&redis.Options{
		Addr:         options.Endpoint,
		Username:     options.Username,
		Password:     options.Password,
		DB:           options.DB,
		MaxRetries:   options.MaxRetries,
		DialTimeout:  options.DialTimeout,
		ReadTimeout:  options.ReadTimeout,
		WriteTimeout: options.WriteTimeout,
		PoolSize:     options.PoolSize,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, errors.WithMessage(err, "redis.client.Ping failed")
	}

	return &RedisStore{
		schema:        s,
		responseModel: record.NewResponseModel(s),
		client:        client,
		prefix:        prefix,
		codec:         codec,
	}, nil
}

func (r *RedisStore) redisKey(identity string) string {
	return r.prefix + ":" + identity
}

func (r *RedisStore) Insert(ctx context.Context, rec record.Record) (record.Record, error) {
	key, err := extractKey(r.schema, rec)
	if err != nil {
		return nil, err
	}
	item := encodeItem(r.schema, rec, time.Now())

	data, err := r.codec.Marshal(item)
	if err != nil {
		return nil, newStoreError("Marshal", err)
	}

	// SETNX 保证标识唯一
	ok, err := r.client.SetNX(ctx, r.redisKey(identityOf(r.schema, key)), data, 0).Result()
	if err != nil {
		return nil, newStoreError("SetNX", err)
	}
	if !ok {
		return nil, errors.WithMessagef(ErrAlreadyExists, "record with %s already exists", keyDescription(r.schema, key))
	}

	return r.responseModel.Shape(item), nil
}

func (r *RedisStore) Get(ctx context.Context, key Key) (record.Record, error) {
	if err := validateKey(r.schema, key); err != nil {
		return nil, err
	}

	data, err := r.client.Get(ctx, r.redisKey(identityOf(r.schema, key))).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, errors.WithMessagef(ErrNotFound, "record with %s not found", keyDescription(r.schema, key))
	}
	if err != nil {
		return nil, newStoreError("Get", err)
	}

	item, err := r.codec.Unmarshal(data)
	if err != nil {
		return nil, newStoreError("Unmarshal", err)
	}
	return r.responseModel.Shape(item), nil
}

func (r *RedisStore) Update(ctx context.Context, key Key, partial record.Record) (record.Record, error) {
	if err := validateKey(r.schema, key); err != nil {
		return nil, err
	}
	redisKey := r.redisKey(identityOf(r.schema, key))

	data, err := r.client.Get(ctx, redisKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, errors.WithMessagef(ErrNotFound, "record with %s not found", keyDescription(r.schema, key))
	}
	if err != nil {
		return nil, newStoreError("Get", err)
	}

	item, err := r.codec.Unmarshal(data)
	if err != nil {
		return nil, newStoreError("Unmarshal", err)
	}
	for k, v := range updateValues(r.schema, partial, time.Now()) {
		item[k] = v
	}

	data, err = r.codec.Marshal(item)
	if err != nil {
		return nil, newStoreError("Marshal", err)
	}
	if err := r.client.Set(ctx, redisKey, data, 0).Err(); err != nil {
		return nil, newStoreError("Set", err)
	}

	return r.responseModel.Shape(item), nil
}

func (r *RedisStore) Delete(ctx context.Context, key Key) (bool, error) {
	if err := validateKey(r.schema, key); err != nil {
		return false, err
	}

	deleted, err := r.client.Del(ctx, r.redisKey(identityOf(r.schema, key))).Result()
	if err != nil {
		return false, newStoreError("Del", err)
	}
	return deleted > 0, nil
}

func (r *RedisStore) Query(ctx context.Context, field string, value string, limit int, token string) (*QueryResult, error) {
	filter, err := newQueryFilter(r.schema, field, value)
	if err != nil {
		return nil, err
	}
	limit = clampLimit(limit)

	// SCAN 不保证顺序，先收齐 key 再排序，翻页 token 才稳定
	var keys []string
	iter := r.client.Scan(ctx, 0, r.prefix+":*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, newStoreError("Scan", err)
	}
	sort.Strings(keys)

	result := &QueryResult{Records: make([]record.Record, 0, limit)}
	lastIdentity := ""
	for _, k := range keys {
		identity := strings.TrimPrefix(k, r.prefix+":")
		if token != "" && identity <= token {
			continue
		}
		if len(result.Records) == limit {
			result.NextToken = lastIdentity
			break
		}

		data, err := r.client.Get(ctx, k).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, newStoreError("Get", err)
		}
		item, err := r.codec.Unmarshal(data)
		if err != nil {
			return nil, newStoreError("Unmarshal", err)
		}
		if !filter.Match(item) {
			continue
		}
		result.Records = append(result.Records, r.responseModel.Shape(item))
		lastIdentity = identity
	}

	result.TotalCount = len(result.Records)
	return result, nil
}

func (r *RedisStore) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return newStoreError("Ping", err)
	}
	return nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
