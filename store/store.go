package store

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/hatlonely/tablex/record"
	"github.com/hatlonely/tablex/schema"
	"github.com/hatlonely/tablex/validator"
)

// 领域错误，调用方按 errors.Is 区分后映射到不同的客户端错误
var (
	// ErrAlreadyExists 插入的主键已存在
	ErrAlreadyExists = errors.New("record already exists")
	// ErrNotFound 主键对应的记录不存在
	ErrNotFound = errors.New("record not found")
	// ErrMissingSortKey 复合主键表的操作缺少排序键
	ErrMissingSortKey = errors.New("sort key is required")
	// ErrFieldNotQueryable 查询了主键字段或未声明的字段
	ErrFieldNotQueryable = errors.New("field is not queryable")
	// ErrInvalidQueryValue 查询值无法转换成字段类型
	ErrInvalidQueryValue = errors.New("invalid query value")
)

// StoreError 外部存储的传输层错误，原样透传，由调用方映射为服务端错误
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s failed: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func newStoreError(op string, err error) error {
	return &StoreError{Op: op, Err: err}
}

// Key 记录标识，Sort 仅在 schema 声明排序键时有意义
type Key struct {
	Partition string
	Sort      string
}

// QueryResult 一页查询结果
type QueryResult struct {
	Records []record.Record `json:"records"`

	// TotalCount 当前页的记录数，不是全表匹配总数
	TotalCount int `json:"total_count"`

	// NextToken 续查令牌，为上一页最后一条记录的主键值
	// 复合主键表为 partition\x00sort，为空表示不再有后续页
	NextToken string `json:"next_token,omitempty"`
}

const (
	defaultQueryLimit = 10
	maxQueryLimit     = 100
)

// clampLimit 把 limit 收敛到 [1, 100]，非法值替换为默认值 10
func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultQueryLimit
	}
	if limit > maxQueryLimit {
		return maxQueryLimit
	}
	return limit
}

// RecordStore 通用记录存储接口
// 所有操作只依赖 TableSchema，不硬编码任何字段名
type RecordStore interface {
	// Insert 写入新记录，主键已存在时返回 ErrAlreadyExists
	Insert(ctx context.Context, rec record.Record) (record.Record, error)
	// Get 点查记录，不存在时返回 ErrNotFound
	Get(ctx context.Context, key Key) (record.Record, error)
	// Update 稀疏更新，缺失字段保持原值，记录不存在时返回 ErrNotFound
	Update(ctx context.Context, key Key, partial record.Record) (record.Record, error)
	// Delete 删除记录，返回删除前记录是否存在
	Delete(ctx context.Context, key Key) (bool, error)
	// Query 按非主键字段过滤的全表扫描，带分页
	Query(ctx context.Context, field string, value string, limit int, token string) (*QueryResult, error)
	// Ping 探测外部存储可达性
	Ping(ctx context.Context) error
	Close() error
}

// RecordStoreOptions 存储后端配置，按 Driver 选择具体实现
type RecordStoreOptions struct {
	// Driver 后端类型
	Driver string `cfg:"driver" def:"memory" validate:"omitempty,oneof=dynamodb mongodb boltdb redis memory"`

	Dynamo *DynamoStoreOptions `cfg:"dynamo"`
	Mongo  *MongoStoreOptions  `cfg:"mongo"`
	Bolt   *BoltStoreOptions   `cfg:"bolt"`
	Redis  *RedisStoreOptions  `cfg:"redis"`
}

func NewRecordStoreWithOptions(s *schema.TableSchema, options *RecordStoreOptions) (RecordStore, error) {
	if s == nil {
		return nil, errors.New("schema is nil")
	}
	if options == nil {
		options = &RecordStoreOptions{}
	}
	if options.Driver == "" {
		options.Driver = "memory"
	}
	if err := validator.ValidateStruct(options); err != nil {
		return nil, errors.WithMessage(err, "validate options failed")
	}

	switch options.Driver {
	case "dynamodb":
		return NewDynamoStoreWithOptions(s, options.Dynamo)
	case "mongodb":
		return NewMongoStoreWithOptions(s, options.Mongo)
	case "boltdb":
		return NewBoltStoreWithOptions(s, options.Bolt)
	case "redis":
		return NewRedisStoreWithOptions(s, options.Redis)
	case "memory":
		return NewMemoryStore(s), nil
	}
	return nil, errors.Errorf("unknown driver %q", options.Driver)
}
