package store

import (
	"bytes"
	"context"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/hatlonely/tablex/record"
	"github.com/hatlonely/tablex/schema"
)

type BoltStoreOptions struct {
	// 数据库文件路径
	DBPath string `cfg:"dbPath" validate:"required"`

	// 桶名，默认取 schema 的 TableName
	BucketName string `cfg:"bucketName"`

	// 打开文件的超时时间，避免文件锁死等
	Timeout time.Duration `cfg:"timeout" def:"5s"`

	// 存储项编解码，msgpack/json
	ValCodec string `cfg:"valCodec" def:"msgpack" validate:"oneof=msgpack json"`
}

// BoltStore 基于 bbolt 的单文件存储，记录标识做桶内 key
type BoltStore struct {
	schema        *schema.TableSchema
	responseModel *record.Model

	db     *bolt.DB
	bucket []byte
	codec  itemCodec
}

func NewBoltStoreWithOptions(s *schema.TableSchema, options *BoltStoreOptions) (*BoltStore, error) {
	if options == nil || options.DBPath == "" {
		return nil, errors.New("dbPath is required")
	}
	if options.Timeout == 0 {
		options.Timeout = 5 * time.Second
	}
	bucketName := options.BucketName
	if bucketName == "" {
		bucketName = s.TableName
	}

	codec, err := newItemCodec(options.ValCodec)
	if err != nil {
		return nil, err
	}

	db, err := bolt.Open(options.DBPath, 0600, &bolt.Options{Timeout: options.Timeout})
	if err != nil {
		return nil, errors.WithMessage(err, "bolt.Open failed")
	}

	bucket := []byte(bucketName)
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.WithMessage(err, "bolt.CreateBucketIfNotExists failed")
	}

	return &BoltStore{
		schema:        s,
		responseModel: record.NewResponseModel(s),
		db:            db,
		bucket:        bucket,
		codec:         codec,
	}, nil
}

func (b *BoltStore) Insert(ctx context.Context, rec record.Record) (record.Record, error) {
	key, err := extractKey(b.schema, rec)
	if err != nil {
		return nil, err
	}
	item := encodeItem(b.schema, rec, time.Now())
	identity := []byte(identityOf(b.schema, key))

	data, err := b.codec.Marshal(item)
	if err != nil {
		return nil, newStoreError("Marshal", err)
	}

	err = b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(b.bucket)
		if bucket.Get(identity) != nil {
			return errors.WithMessagef(ErrAlreadyExists, "record with %s already exists", keyDescription(b.schema, key))
		}
		return bucket.Put(identity, data)
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return nil, err
		}
		return nil, newStoreError("Put", err)
	}

	return b.responseModel.Shape(item), nil
}

func (b *BoltStore) Get(ctx context.Context, key Key) (record.Record, error) {
	if err := validateKey(b.schema, key); err != nil {
		return nil, err
	}

	var item map[string]any
	err := b.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(b.bucket).Get([]byte(identityOf(b.schema, key)))
		if data == nil {
			return errors.WithMessagef(ErrNotFound, "record with %s not found", keyDescription(b.schema, key))
		}
		var err error
		item, err = b.codec.Unmarshal(data)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, newStoreError("Get", err)
	}

	return b.responseModel.Shape(item), nil
}

func (b *BoltStore) Update(ctx context.Context, key Key, partial record.Record) (record.Record, error) {
	if err := validateKey(b.schema, key); err != nil {
		return nil, err
	}
	identity := []byte(identityOf(b.schema, key))
	values := updateValues(b.schema, partial, time.Now())

	var item map[string]any
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(b.bucket)
		data := bucket.Get(identity)
		if data == nil {
			return errors.WithMessagef(ErrNotFound, "record with %s not found", keyDescription(b.schema, key))
		}
		var err error
		item, err = b.codec.Unmarshal(data)
		if err != nil {
			return err
		}
		for k, v := range values {
			item[k] = v
		}
		data, err = b.codec.Marshal(item)
		if err != nil {
			return err
		}
		return bucket.Put(identity, data)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, newStoreError("Update", err)
	}

	return b.responseModel.Shape(item), nil
}

func (b *BoltStore) Delete(ctx context.Context, key Key) (bool, error) {
	if err := validateKey(b.schema, key); err != nil {
		return false, err
	}
	identity := []byte(identityOf(b.schema, key))

	deleted := false
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(b.bucket)
		if bucket.Get(identity) == nil {
			return nil
		}
		deleted = true
		return bucket.Delete(identity)
	})
	if err != nil {
		return false, newStoreError("Delete", err)
	}
	return deleted, nil
}

func (b *BoltStore) Query(ctx context.Context, field string, value string, limit int, token string) (*QueryResult, error) {
	filter, err := newQueryFilter(b.schema, field, value)
	if err != nil {
		return nil, err
	}
	limit = clampLimit(limit)

	result := &QueryResult{Records: make([]record.Record, 0, limit)}
	err = b.db.View(func(tx *bolt.Tx) error {
		cursor := tx.Bucket(b.bucket).Cursor()

		k, v := cursor.First()
		if token != "" {
			// 定位到 token 的下一个 key
			k, v = cursor.Seek([]byte(token))
			if k != nil && bytes.Equal(k, []byte(token)) {
				k, v = cursor.Next()
			}
		}

		var lastKey []byte
		for ; k != nil; k, v = cursor.Next() {
			if len(result.Records) == limit {
				result.NextToken = string(lastKey)
				return nil
			}
			item, err := b.codec.Unmarshal(v)
			if err != nil {
				return err
			}
			if !filter.Match(item) {
				continue
			}
			result.Records = append(result.Records, b.responseModel.Shape(item))
			lastKey = append(lastKey[:0], k...)
		}
		return nil
	})
	if err != nil {
		return nil, newStoreError("Query", err)
	}

	result.TotalCount = len(result.Records)
	return result, nil
}

func (b *BoltStore) Ping(ctx context.Context) error {
	err := b.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(b.bucket) == nil {
			return errors.Errorf("bucket %q not found", string(b.bucket))
		}
		return nil
	})
	if err != nil {
		return newStoreError("Ping", err)
	}
	return nil
}

func (b *BoltStore) Close() error {
	return b.db.Close()
}
