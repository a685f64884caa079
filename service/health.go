package service

import (
	"context"

	"github.com/hatlonely/tablex/schema"
)

// HealthStatus 健康检查结果，带上当前生效的表结构摘要
type HealthStatus struct {
	Status  string          `json:"status"`
	Table   string          `json:"table"`
	KeyType string          `json:"key_type"`
	Store   string          `json:"store"`
	Schema  *schema.Summary `json:"schema"`
}

// Health 探测存储可达性并汇报表结构摘要
// 存储不可达时 Status 为 degraded，不返回错误
func (s *RecordService) Health(ctx context.Context) *HealthStatus {
	keyType := "simple"
	if s.schema.HasSortKey() {
		keyType = "composite"
	}

	status := &HealthStatus{
		Status:  "ok",
		Table:   s.schema.TableName,
		KeyType: keyType,
		Store:   "reachable",
		Schema:  s.schema.Summary(),
	}

	if err := s.store.Ping(ctx); err != nil {
		status.Status = "degraded"
		status.Store = err.Error()
	}
	return status
}
