package store

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/hatlonely/tablex/schema"
)

// queryFilter 单字段过滤器
// 数值字段按解析后的数值相等匹配，其余类型对存储文本做大小写无关的子串匹配
// 全表扫描后过滤，不走任何索引，代价随表大小增长
type queryFilter struct {
	field   *schema.FieldSpec
	numeric float64
	text    string
}

func newQueryFilter(s *schema.TableSchema, field string, value string) (*queryFilter, error) {
	if field == s.KeyField {
		return nil, errors.WithMessagef(ErrFieldNotQueryable, "field %q is the key field", field)
	}
	spec := s.Field(field)
	if spec == nil {
		return nil, errors.WithMessagef(ErrFieldNotQueryable, "field %q is not declared in schema", field)
	}

	f := &queryFilter{field: spec}
	if spec.Type.IsNumeric() {
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, errors.WithMessagef(ErrInvalidQueryValue, "field %q expects a number, got %q", field, value)
		}
		f.numeric = v
	} else {
		f.text = strings.ToLower(value)
	}
	return f, nil
}

// Match 判断存储项是否命中过滤条件，字段缺失视为不命中
func (f *queryFilter) Match(item map[string]any) bool {
	value, exists := item[f.field.Name]
	if !exists || value == nil {
		return false
	}

	if f.field.Type.IsNumeric() {
		v, ok := toFloat(value)
		return ok && v == f.numeric
	}

	text, ok := value.(string)
	if !ok {
		text = fmt.Sprint(value)
	}
	return strings.Contains(strings.ToLower(text), f.text)
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	}
	return 0, false
}
