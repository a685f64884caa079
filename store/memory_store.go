package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/hatlonely/tablex/record"
	"github.com/hatlonely/tablex/schema"
)

// MemoryStore 进程内存储，单元测试和本地联调使用
type MemoryStore struct {
	schema        *schema.TableSchema
	responseModel *record.Model

	mu    sync.RWMutex
	items map[string]map[string]any
}

func NewMemoryStore(s *schema.TableSchema) *MemoryStore {
	return &MemoryStore{
		schema:        s,
		responseModel: record.NewResponseModel(s),
		items:         make(map[string]map[string]any),
	}
}

func (m *MemoryStore) Insert(ctx context.Context, rec record.Record) (record.Record, error) {
	key, err := extractKey(m.schema, rec)
	if err != nil {
		return nil, err
	}
	item := encodeItem(m.schema, rec, time.Now())

	m.mu.Lock()
	defer m.mu.Unlock()
	identity := identityOf(m.schema, key)
	if _, exists := m.items[identity]; exists {
		return nil, errors.WithMessagef(ErrAlreadyExists, "record with %s already exists", keyDescription(m.schema, key))
	}
	m.items[identity] = item
	return m.responseModel.Shape(item), nil
}

func (m *MemoryStore) Get(ctx context.Context, key Key) (record.Record, error) {
	if err := validateKey(m.schema, key); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	item, exists := m.items[identityOf(m.schema, key)]
	if !exists {
		return nil, errors.WithMessagef(ErrNotFound, "record with %s not found", keyDescription(m.schema, key))
	}
	return m.responseModel.Shape(item), nil
}

func (m *MemoryStore) Update(ctx context.Context, key Key, partial record.Record) (record.Record, error) {
	if err := validateKey(m.schema, key); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	identity := identityOf(m.schema, key)
	item, exists := m.items[identity]
	if !exists {
		return nil, errors.WithMessagef(ErrNotFound, "record with %s not found", keyDescription(m.schema, key))
	}
	for name, value := range updateValues(m.schema, partial, time.Now()) {
		item[name] = value
	}
	return m.responseModel.Shape(item), nil
}

func (m *MemoryStore) Delete(ctx context.Context, key Key) (bool, error) {
	if err := validateKey(m.schema, key); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	identity := identityOf(m.schema, key)
	if _, exists := m.items[identity]; !exists {
		return false, nil
	}
	delete(m.items, identity)
	return true, nil
}

func (m *MemoryStore) Query(ctx context.Context, field string, value string, limit int, token string) (*QueryResult, error) {
	filter, err := newQueryFilter(m.schema, field, value)
	if err != nil {
		return nil, err
	}
	limit = clampLimit(limit)

	m.mu.RLock()
	defer m.mu.RUnlock()

	identities := make([]string, 0, len(m.items))
	for identity := range m.items {
		identities = append(identities, identity)
	}
	sort.Strings(identities)

	result := &QueryResult{Records: make([]record.Record, 0)}
	lastIdentity := ""
	for i, identity := range identities {
		if token != "" && identity <= token {
			continue
		}
		item := m.items[identity]
		if !filter.Match(item) {
			continue
		}
		result.Records = append(result.Records, m.responseModel.Shape(item))
		lastIdentity = identity
		if len(result.Records) >= limit {
			if i < len(identities)-1 {
				result.NextToken = lastIdentity
			}
			break
		}
	}
	result.TotalCount = len(result.Records)
	return result, nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}
