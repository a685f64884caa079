package store

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/hatlonely/tablex/record"
	"github.com/hatlonely/tablex/schema"
)

// tokenSeparator 复合主键在标识和续查令牌里的分隔符
const tokenSeparator = "\x00"

// extractKey 从待插入记录里取出主键标识
func extractKey(s *schema.TableSchema, rec record.Record) (Key, error) {
	partition, exists := rec[s.KeyField]
	if !exists || partition == nil {
		return Key{}, &schema.FieldError{
			Field:   s.KeyField,
			Rule:    schema.RuleRequired,
			Message: "key field is missing",
		}
	}

	key := Key{Partition: keyString(partition)}
	if s.HasSortKey() {
		sort, exists := rec[s.SortKeyField]
		if !exists || sort == nil {
			return Key{}, errors.WithMessagef(ErrMissingSortKey, "sort key %q is required for this table", s.SortKeyField)
		}
		key.Sort = keyString(sort)
	}
	return key, nil
}

// validateKey 校验复合主键完整性，任何存储调用之前执行
func validateKey(s *schema.TableSchema, key Key) error {
	if key.Partition == "" {
		return &schema.FieldError{
			Field:   s.KeyField,
			Rule:    schema.RuleRequired,
			Message: "key value is empty",
		}
	}
	if s.HasSortKey() && key.Sort == "" {
		return errors.WithMessagef(ErrMissingSortKey, "sort key %q is required for this table", s.SortKeyField)
	}
	return nil
}

// keyString 主键值的文本形式，整数值不带小数部分
func keyString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if float64(int64(t)) == t {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprint(v)
	}
}

// identityOf 记录在存储里的一维标识
func identityOf(s *schema.TableSchema, key Key) string {
	if s.HasSortKey() && key.Sort != "" {
		return key.Partition + tokenSeparator + key.Sort
	}
	return key.Partition
}

// keyFromToken 从续查令牌还原主键
func keyFromToken(s *schema.TableSchema, token string) Key {
	if s.HasSortKey() {
		if idx := strings.Index(token, tokenSeparator); idx >= 0 {
			return Key{Partition: token[:idx], Sort: token[idx+len(tokenSeparator):]}
		}
	}
	return Key{Partition: token}
}

// keyDescription 错误信息里的主键描述
func keyDescription(s *schema.TableSchema, key Key) string {
	desc := s.KeyField + "=" + key.Partition
	if s.HasSortKey() && key.Sort != "" {
		desc += ", " + s.SortKeyField + "=" + key.Sort
	}
	return desc
}

// encodeItem 把记录投影成扁平存储项
// 只投影 schema 声明且输入提供的字段，datetime 序列化成 ISO-8601 文本，
// 并以当前时刻写入 created_at/updated_at（插入时两者相等）
func encodeItem(s *schema.TableSchema, rec record.Record, now time.Time) map[string]any {
	item := make(map[string]any, len(s.Fields)+2)
	for _, field := range s.Fields {
		value, exists := rec[field.Name]
		if !exists || value == nil {
			continue
		}
		item[field.Name] = encodeValue(field, value)
	}
	item[schema.CreatedAtField] = schema.FormatDateTime(now)
	item[schema.UpdatedAtField] = schema.FormatDateTime(now)
	return item
}

// updateValues 从稀疏更新输入构造待写字段集
// 跳过主键和排序键，跳过缺失或置空的字段，总是刷新 updated_at
func updateValues(s *schema.TableSchema, partial record.Record, now time.Time) map[string]any {
	values := make(map[string]any)
	for _, field := range s.Fields {
		if s.IsKeyField(field.Name) {
			continue
		}
		value, exists := partial[field.Name]
		if !exists || value == nil {
			continue
		}
		values[field.Name] = encodeValue(field, value)
	}
	values[schema.UpdatedAtField] = schema.FormatDateTime(now)
	return values
}

func encodeValue(field *schema.FieldSpec, value any) any {
	if field.Type == schema.FieldTypeDateTime {
		if t, ok := value.(time.Time); ok {
			return schema.FormatDateTime(t)
		}
	}
	return value
}

// nextTokenOf 下一页令牌，取最后一条存储项的主键值
func nextTokenOf(s *schema.TableSchema, item map[string]any) string {
	partition, exists := item[s.KeyField]
	if !exists {
		return ""
	}
	key := Key{Partition: keyString(partition)}
	if s.HasSortKey() {
		if sort, exists := item[s.SortKeyField]; exists {
			key.Sort = keyString(sort)
		}
	}
	return identityOf(s, key)
}
