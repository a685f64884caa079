package schema

import (
	"fmt"
	"reflect"
	"regexp"
	"time"
)

// 校验规则标识，FieldError.Rule 的取值
const (
	RuleRequired     = "required"
	RuleType         = "type"
	RuleMinLength    = "min_length"
	RuleMaxLength    = "max_length"
	RuleMinValue     = "min_value"
	RuleMaxValue     = "max_value"
	RulePattern      = "pattern"
	RuleEnum         = "enum"
	RuleUnknownField = "unknown_field"
)

// FieldError 字段校验错误，携带字段名和被违反的规则
type FieldError struct {
	Field   string
	Rule    string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %q: %s", e.Field, e.Message)
}

func newFieldError(field string, rule string, format string, args ...any) *FieldError {
	return &FieldError{
		Field:   field,
		Rule:    rule,
		Message: fmt.Sprintf(format, args...),
	}
}

var (
	emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	urlPattern   = regexp.MustCompile(`^https?://[-\w.]+(?::\d+)?(?:/[\w/_.]*(?:\?[\w&=%.]*)?(?:#[\w.]*)?)?$`)
	phonePattern = regexp.MustCompile(`^\+?[\d\s\-()]+$`)
	uuidPattern  = regexp.MustCompile(`(?i)^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
)

// 时间字段接受的文本格式，按顺序尝试
var dateTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseDateTime 解析 ISO-8601 文本时间
func ParseDateTime(s string) (time.Time, error) {
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid datetime %q", s)
}

// FormatDateTime 序列化时间为存储用的 ISO-8601 文本
func FormatDateTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ValidateValue 按字段声明校验单个值
// Create 和 Update 走同一套规则，值合法返回 nil，否则返回 *FieldError
func ValidateValue(field *FieldSpec, value any) error {
	switch field.Type {
	case FieldTypeString:
		return validateString(field, value)
	case FieldTypeInteger:
		v, ok := asInt(value)
		if !ok {
			return newFieldError(field.Name, RuleType, "expect an integer, got %T", value)
		}
		return validateBounds(field, float64(v))
	case FieldTypeFloat:
		v, ok := asFloat(value)
		if !ok {
			return newFieldError(field.Name, RuleType, "expect a float, got %T", value)
		}
		return validateBounds(field, v)
	case FieldTypeBoolean:
		if _, ok := value.(bool); !ok {
			return newFieldError(field.Name, RuleType, "expect a boolean, got %T", value)
		}
	case FieldTypeDateTime:
		switch v := value.(type) {
		case time.Time:
		case string:
			if _, err := ParseDateTime(v); err != nil {
				return newFieldError(field.Name, RuleType, "expect an ISO-8601 datetime, got %q", v)
			}
		default:
			return newFieldError(field.Name, RuleType, "expect an ISO-8601 datetime, got %T", value)
		}
	case FieldTypeEmail:
		return validateText(field, value, emailPattern, "a valid email address")
	case FieldTypeURL:
		return validateText(field, value, urlPattern, "a valid url")
	case FieldTypePhone:
		return validateText(field, value, phonePattern, "a valid phone number")
	case FieldTypeUUID:
		return validateText(field, value, uuidPattern, "a valid uuid")
	case FieldTypeJSON:
		switch value.(type) {
		case map[string]any, []any:
		default:
			return newFieldError(field.Name, RuleType, "expect an object or array, got %T", value)
		}
	case FieldTypeArray:
		kind := reflect.ValueOf(value).Kind()
		if kind != reflect.Slice && kind != reflect.Array {
			return newFieldError(field.Name, RuleType, "expect an array, got %T", value)
		}
	case FieldTypeEnum:
		v, ok := value.(string)
		if !ok {
			return newFieldError(field.Name, RuleType, "expect a string, got %T", value)
		}
		for _, candidate := range field.EnumValues {
			if v == candidate {
				return nil
			}
		}
		return newFieldError(field.Name, RuleEnum, "value %q is not one of %v", v, field.EnumValues)
	default:
		return newFieldError(field.Name, RuleType, "unknown field type %q", field.Type)
	}
	return nil
}

func validateString(field *FieldSpec, value any) error {
	v, ok := value.(string)
	if !ok {
		return newFieldError(field.Name, RuleType, "expect a string, got %T", value)
	}
	length := len([]rune(v))
	if field.MinLength != nil && length < *field.MinLength {
		return newFieldError(field.Name, RuleMinLength, "length %d is less than %d", length, *field.MinLength)
	}
	if field.MaxLength != nil && length > *field.MaxLength {
		return newFieldError(field.Name, RuleMaxLength, "length %d is greater than %d", length, *field.MaxLength)
	}
	if field.pattern != nil && !field.pattern.MatchString(v) {
		return newFieldError(field.Name, RulePattern, "value %q does not match pattern %q", v, field.Pattern)
	}
	if field.pattern == nil && field.Pattern != "" {
		// 手工构造的 FieldSpec 未经过 schema 校验，惰性编译一次
		pattern, err := regexp.Compile("^(?:" + field.Pattern + ")$")
		if err != nil {
			return newFieldError(field.Name, RulePattern, "invalid pattern %q", field.Pattern)
		}
		field.pattern = pattern
		if !pattern.MatchString(v) {
			return newFieldError(field.Name, RulePattern, "value %q does not match pattern %q", v, field.Pattern)
		}
	}
	return nil
}

func validateText(field *FieldSpec, value any, pattern *regexp.Regexp, expect string) error {
	v, ok := value.(string)
	if !ok {
		return newFieldError(field.Name, RuleType, "expect a string, got %T", value)
	}
	if !pattern.MatchString(v) {
		return newFieldError(field.Name, RulePattern, "value %q is not %s", v, expect)
	}
	return nil
}

func validateBounds(field *FieldSpec, v float64) error {
	if field.MinValue != nil && v < *field.MinValue {
		return newFieldError(field.Name, RuleMinValue, "value %v is less than %v", v, *field.MinValue)
	}
	if field.MaxValue != nil && v > *field.MaxValue {
		return newFieldError(field.Name, RuleMaxValue, "value %v is greater than %v", v, *field.MaxValue)
	}
	return nil
}

func asInt(value any) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint:
		return int64(v), true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		return int64(v), true
	case float32:
		if float32(int64(v)) == v {
			return int64(v), true
		}
	case float64:
		// JSON 解码后整数也是 float64，只接受无小数部分的值
		if float64(int64(v)) == v {
			return int64(v), true
		}
	}
	return 0, false
}

func asFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float32:
		return float64(v), true
	case float64:
		return v, true
	default:
		if i, ok := asInt(value); ok {
			return float64(i), true
		}
	}
	return 0, false
}
