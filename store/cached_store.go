package store

import (
	"context"
	"time"

	"github.com/coocood/freecache"

	"github.com/hatlonely/tablex/record"
	"github.com/hatlonely/tablex/schema"
)

type CachedStoreOptions struct {
	// 缓存容量（字节），freecache 预分配这块内存
	CacheSize int `cfg:"cacheSize" def:"33554432"`

	// 缓存条目的过期时间，0 表示不过期
	Expiration time.Duration `cfg:"expiration" def:"5m"`
}

// CachedStore 读穿透缓存装饰器，按记录标识缓存单条读取
// 写路径回填缓存，删除时失效，扫描类查询不走缓存
type CachedStore struct {
	schema        *schema.TableSchema
	responseModel *record.Model

	store      RecordStore
	cache      *freecache.Cache
	expiration int
	codec      itemCodec
}

func NewCachedStoreWithOptions(s *schema.TableSchema, store RecordStore, options *CachedStoreOptions) (*CachedStore, error) {
	if options == nil {
		options = &CachedStoreOptions{}
	}
	if options.CacheSize == 0 {
		options.CacheSize = 32 * 1024 * 1024
	}
	if options.Expiration == 0 {
		options.Expiration = 5 * time.Minute
	}

	codec, err := newItemCodec("msgpack")
	if err != nil {
		return nil, err
	}

	return &CachedStore{
		schema:        s,
		responseModel: record.NewResponseModel(s),
		store:         store,
		cache:         freecache.NewCache(options.CacheSize),
		expiration:    int(options.Expiration / time.Second),
		codec:         codec,
	}, nil
}

func (c *CachedStore) cacheSet(key Key, rec record.Record) {
	data, err := c.codec.Marshal(rec)
	if err != nil {
		return
	}
	// 缓存写失败只影响命中率，不影响正确性
	_ = c.cache.Set([]byte(identityOf(c.schema, key)), data, c.expiration)
}

func (c *CachedStore) cacheGet(key Key) (record.Record, bool) {
	data, err := c.cache.Get([]byte(identityOf(c.schema, key)))
	if err != nil {
		return nil, false
	}
	item, err := c.codec.Unmarshal(data)
	if err != nil {
		return nil, false
	}
	return c.responseModel.Shape(item), true
}

func (c *CachedStore) cacheDel(key Key) {
	c.cache.Del([]byte(identityOf(c.schema, key)))
}

func (c *CachedStore) Insert(ctx context.Context, rec record.Record) (record.Record, error) {
	result, err := c.store.Insert(ctx, rec)
	if err != nil {
		return nil, err
	}
	if key, kerr := extractKey(c.schema, result); kerr == nil {
		c.cacheSet(key, result)
	}
	return result, nil
}

func (c *CachedStore) Get(ctx context.Context, key Key) (record.Record, error) {
	if err := validateKey(c.schema, key); err != nil {
		return nil, err
	}
	if rec, ok := c.cacheGet(key); ok {
		return rec, nil
	}

	rec, err := c.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	c.cacheSet(key, rec)
	return rec, nil
}

func (c *CachedStore) Update(ctx context.Context, key Key, partial record.Record) (record.Record, error) {
	result, err := c.store.Update(ctx, key, partial)
	if err != nil {
		return nil, err
	}
	c.cacheSet(key, result)
	return result, nil
}

func (c *CachedStore) Delete(ctx context.Context, key Key) (bool, error) {
	deleted, err := c.store.Delete(ctx, key)
	if err != nil {
		return false, err
	}
	c.cacheDel(key)
	return deleted, nil
}

func (c *CachedStore) Query(ctx context.Context, field string, value string, limit int, token string) (*QueryResult, error) {
	return c.store.Query(ctx, field, value, limit, token)
}

func (c *CachedStore) Ping(ctx context.Context) error {
	return c.store.Ping(ctx)
}

func (c *CachedStore) Close() error {
	c.cache.Clear()
	return c.store.Close()
}
