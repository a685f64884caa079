package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/hatlonely/tablex/log"
	"github.com/hatlonely/tablex/record"
	"github.com/hatlonely/tablex/schema"
	"github.com/hatlonely/tablex/store"
)

type RecordServiceOptions struct {
	// Schema 字段定义的加载配置
	Schema *schema.SchemaOptions `cfg:"schema"`

	// Store 存储后端配置
	Store *store.RecordStoreOptions `cfg:"store"`
}

// RecordService 面向接入层的记录服务
// 入参先过派生的校验模型，再翻译给存储后端
type RecordService struct {
	schema *schema.TableSchema
	store  store.RecordStore
	logger log.Logger

	createModel *record.Model
	updateModel *record.Model
}

func NewRecordServiceWithOptions(options *RecordServiceOptions) (*RecordService, error) {
	if options == nil {
		options = &RecordServiceOptions{}
	}

	s, err := schema.NewSchemaWithOptions(options.Schema)
	if err != nil {
		return nil, errors.WithMessage(err, "schema.NewSchemaWithOptions failed")
	}
	st, err := store.NewRecordStoreWithOptions(s, options.Store)
	if err != nil {
		return nil, errors.WithMessage(err, "store.NewRecordStoreWithOptions failed")
	}

	return NewRecordService(s, st, nil), nil
}

func NewRecordService(s *schema.TableSchema, st store.RecordStore, logger log.Logger) *RecordService {
	if logger == nil {
		logger = &log.Nop{}
	}
	return &RecordService{
		schema:      s,
		store:       st,
		logger:      logger.WithGroup("recordService"),
		createModel: record.NewCreateModel(s),
		updateModel: record.NewUpdateModel(s),
	}
}

func (s *RecordService) Schema() *schema.TableSchema {
	return s.schema
}

func requestID() string {
	return uuid.NewString()
}

// Insert 写入一条新记录
// 先补默认值，再按创建契约校验，主键冲突返回 ErrAlreadyExists
func (s *RecordService) Insert(ctx context.Context, rec record.Record) (record.Record, error) {
	rid := requestID()

	rec = rec.Clone()
	s.createModel.ApplyDefaults(rec)
	if err := s.createModel.Validate(rec); err != nil {
		s.logger.WarnContext(ctx, "insert rejected", "requestId", rid, "error", err.Error())
		return nil, err
	}

	result, err := s.store.Insert(ctx, rec)
	if err != nil {
		s.logger.ErrorContext(ctx, "insert failed", "requestId", rid, "error", err.Error())
		return nil, err
	}

	s.logger.InfoContext(ctx, "insert ok", "requestId", rid, "table", s.schema.TableName)
	return result, nil
}

// Get 按主键读取一条记录
func (s *RecordService) Get(ctx context.Context, key store.Key) (record.Record, error) {
	rid := requestID()

	result, err := s.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.logger.InfoContext(ctx, "get miss", "requestId", rid, "key", key.Partition)
		} else {
			s.logger.ErrorContext(ctx, "get failed", "requestId", rid, "error", err.Error())
		}
		return nil, err
	}
	return result, nil
}

// Update 稀疏更新一条已有记录
// 提供的字段按更新契约逐个校验，缺失字段保持原值
func (s *RecordService) Update(ctx context.Context, key store.Key, partial record.Record) (record.Record, error) {
	rid := requestID()

	if err := s.updateModel.Validate(partial); err != nil {
		s.logger.WarnContext(ctx, "update rejected", "requestId", rid, "error", err.Error())
		return nil, err
	}

	result, err := s.store.Update(ctx, key, partial)
	if err != nil {
		s.logger.ErrorContext(ctx, "update failed", "requestId", rid, "error", err.Error())
		return nil, err
	}

	s.logger.InfoContext(ctx, "update ok", "requestId", rid, "table", s.schema.TableName)
	return result, nil
}

// Delete 按主键删除记录，返回删除前记录是否存在
func (s *RecordService) Delete(ctx context.Context, key store.Key) (bool, error) {
	rid := requestID()

	deleted, err := s.store.Delete(ctx, key)
	if err != nil {
		s.logger.ErrorContext(ctx, "delete failed", "requestId", rid, "error", err.Error())
		return false, err
	}

	s.logger.InfoContext(ctx, "delete ok", "requestId", rid, "deleted", deleted)
	return deleted, nil
}

// Query 按单个非主键字段过滤的分页扫描
func (s *RecordService) Query(ctx context.Context, field string, value string, limit int, token string) (*store.QueryResult, error) {
	rid := requestID()

	result, err := s.store.Query(ctx, field, value, limit, token)
	if err != nil {
		s.logger.ErrorContext(ctx, "query failed", "requestId", rid, "field", field, "error", err.Error())
		return nil, err
	}

	s.logger.InfoContext(ctx, "query ok", "requestId", rid, "field", field, "count", result.TotalCount)
	return result, nil
}

func (s *RecordService) Close() error {
	return s.store.Close()
}
