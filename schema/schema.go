package schema

import (
	"regexp"

	"github.com/pkg/errors"
)

// ErrInvalidSchema schema 配置非法，启动阶段致命错误
var ErrInvalidSchema = errors.New("invalid schema")

const (
	// CreatedAtField 记录创建时间字段，由存储层写入，不接受客户端输入
	CreatedAtField = "created_at"
	// UpdatedAtField 记录更新时间字段，由存储层写入，不接受客户端输入
	UpdatedAtField = "updated_at"
)

// FieldType 字段类型，封闭枚举
type FieldType string

const (
	FieldTypeString   FieldType = "string"
	FieldTypeInteger  FieldType = "integer"
	FieldTypeFloat    FieldType = "float"
	FieldTypeBoolean  FieldType = "boolean"
	FieldTypeDateTime FieldType = "datetime"
	FieldTypeEmail    FieldType = "email"
	FieldTypeURL      FieldType = "url"
	FieldTypePhone    FieldType = "phone"
	FieldTypeUUID     FieldType = "uuid"
	FieldTypeJSON     FieldType = "json"
	FieldTypeArray    FieldType = "array"
	FieldTypeEnum     FieldType = "enum"
)

var fieldTypes = map[FieldType]bool{
	FieldTypeString:   true,
	FieldTypeInteger:  true,
	FieldTypeFloat:    true,
	FieldTypeBoolean:  true,
	FieldTypeDateTime: true,
	FieldTypeEmail:    true,
	FieldTypeURL:      true,
	FieldTypePhone:    true,
	FieldTypeUUID:     true,
	FieldTypeJSON:     true,
	FieldTypeArray:    true,
	FieldTypeEnum:     true,
}

func ParseFieldType(s string) (FieldType, error) {
	t := FieldType(s)
	if !fieldTypes[t] {
		return "", errors.WithMessagef(ErrInvalidSchema, "unknown field type %q", s)
	}
	return t, nil
}

// IsNumeric 整型和浮点字段按数值相等查询，其余类型按子串匹配
func (t FieldType) IsNumeric() bool {
	return t == FieldTypeInteger || t == FieldTypeFloat
}

// FieldSpec 单个字段的声明
type FieldSpec struct {
	// 字段名，schema 内唯一
	Name string `json:"name" yaml:"name" toml:"name"`

	// 字段类型
	Type FieldType `json:"type" yaml:"type" toml:"type"`

	// 是否必填，默认 true
	Required bool `json:"required" yaml:"required" toml:"required"`

	// 字符串类字段的长度范围，按字符数计算
	MinLength *int `json:"min_length,omitempty" yaml:"min_length,omitempty" toml:"min_length"`
	MaxLength *int `json:"max_length,omitempty" yaml:"max_length,omitempty" toml:"max_length"`

	// 数值字段的取值范围，闭区间
	MinValue *float64 `json:"min_value,omitempty" yaml:"min_value,omitempty" toml:"min_value"`
	MaxValue *float64 `json:"max_value,omitempty" yaml:"max_value,omitempty" toml:"max_value"`

	// enum 类型的合法取值集合，enum 字段必须非空
	EnumValues []string `json:"enum_values,omitempty" yaml:"enum_values,omitempty" toml:"enum_values"`

	// 约束字符串取值的正则，要求完整匹配
	Pattern string `json:"pattern,omitempty" yaml:"pattern,omitempty" toml:"pattern"`

	// 默认值，创建时字段缺失则填充
	Default any `json:"default,omitempty" yaml:"default,omitempty" toml:"default"`

	// 以下两个为声明性标记，本层不独立强制
	Unique bool `json:"unique,omitempty" yaml:"unique,omitempty" toml:"unique"`
	Index  bool `json:"index,omitempty" yaml:"index,omitempty" toml:"index"`

	// 文档描述，无行为影响
	Description string `json:"description,omitempty" yaml:"description,omitempty" toml:"description"`

	pattern *regexp.Regexp
}

// TableSchema 表结构，进程启动时加载一次，之后只读
type TableSchema struct {
	TableName    string
	KeyField     string
	SortKeyField string
	Fields       []*FieldSpec

	fieldIndex map[string]*FieldSpec
}

// NewTableSchema 构造并校验表结构
func NewTableSchema(tableName string, keyField string, sortKeyField string, fields []*FieldSpec) (*TableSchema, error) {
	s := &TableSchema{
		TableName:    tableName,
		KeyField:     keyField,
		SortKeyField: sortKeyField,
		Fields:       fields,
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *TableSchema) validate() error {
	if len(s.Fields) == 0 {
		return errors.WithMessage(ErrInvalidSchema, "no fields defined")
	}
	if s.TableName == "" {
		return errors.WithMessage(ErrInvalidSchema, "table name is empty")
	}
	if s.KeyField == "" {
		return errors.WithMessage(ErrInvalidSchema, "key field is empty")
	}

	s.fieldIndex = make(map[string]*FieldSpec, len(s.Fields))
	for _, field := range s.Fields {
		if field.Name == "" {
			return errors.WithMessage(ErrInvalidSchema, "field name is empty")
		}
		if !fieldTypes[field.Type] {
			return errors.WithMessagef(ErrInvalidSchema, "field %q has unknown type %q", field.Name, field.Type)
		}
		if _, exists := s.fieldIndex[field.Name]; exists {
			return errors.WithMessagef(ErrInvalidSchema, "duplicate field name %q", field.Name)
		}
		if field.Type == FieldTypeEnum && len(field.EnumValues) == 0 {
			return errors.WithMessagef(ErrInvalidSchema, "enum field %q must define enum_values", field.Name)
		}
		if field.Pattern != "" {
			pattern, err := regexp.Compile("^(?:" + field.Pattern + ")$")
			if err != nil {
				return errors.WithMessagef(ErrInvalidSchema, "field %q has invalid pattern %q: %v", field.Name, field.Pattern, err)
			}
			field.pattern = pattern
		}
		s.fieldIndex[field.Name] = field
	}

	if _, exists := s.fieldIndex[s.KeyField]; !exists {
		return errors.WithMessagef(ErrInvalidSchema, "key field %q not found in schema", s.KeyField)
	}
	if s.SortKeyField != "" {
		if s.SortKeyField == s.KeyField {
			return errors.WithMessagef(ErrInvalidSchema, "sort key field %q duplicates key field", s.SortKeyField)
		}
		if _, exists := s.fieldIndex[s.SortKeyField]; !exists {
			return errors.WithMessagef(ErrInvalidSchema, "sort key field %q not found in schema", s.SortKeyField)
		}
	}

	return nil
}

// Field 按名称查找字段声明，不存在时返回 nil
func (s *TableSchema) Field(name string) *FieldSpec {
	return s.fieldIndex[name]
}

func (s *TableSchema) HasSortKey() bool {
	return s.SortKeyField != ""
}

// IsKeyField 是否为主键或排序键字段
func (s *TableSchema) IsKeyField(name string) bool {
	return name == s.KeyField || (s.SortKeyField != "" && name == s.SortKeyField)
}

func (s *TableSchema) FieldNames() []string {
	names := make([]string, 0, len(s.Fields))
	for _, field := range s.Fields {
		names = append(names, field.Name)
	}
	return names
}

// QueryableFields 可查询字段，主键字段不可查询
func (s *TableSchema) QueryableFields() []string {
	names := make([]string, 0, len(s.Fields))
	for _, field := range s.Fields {
		if field.Name != s.KeyField {
			names = append(names, field.Name)
		}
	}
	return names
}

func (s *TableSchema) IndexedFields() []string {
	names := make([]string, 0)
	for _, field := range s.Fields {
		if field.Index {
			names = append(names, field.Name)
		}
	}
	return names
}

func (s *TableSchema) UniqueFields() []string {
	names := make([]string, 0)
	for _, field := range s.Fields {
		if field.Unique {
			names = append(names, field.Name)
		}
	}
	return names
}

// ValidateField 校验指定字段的取值
func (s *TableSchema) ValidateField(name string, value any) error {
	field := s.Field(name)
	if field == nil {
		return newFieldError(name, RuleUnknownField, "field %q is not declared in schema", name)
	}
	return ValidateValue(field, value)
}

// Summary schema 概要信息，供健康检查和自省接口使用
type Summary struct {
	TableName      string               `json:"table_name"`
	KeyField       string               `json:"key_field"`
	SortKeyField   string               `json:"sort_key_field,omitempty"`
	TotalFields    int                  `json:"total_fields"`
	RequiredFields int                  `json:"required_fields"`
	OptionalFields int                  `json:"optional_fields"`
	IndexedFields  []string             `json:"indexed_fields"`
	UniqueFields   []string             `json:"unique_fields"`
	FieldTypes     map[string]FieldType `json:"field_types"`
}

func (s *TableSchema) Summary() *Summary {
	summary := &Summary{
		TableName:     s.TableName,
		KeyField:      s.KeyField,
		SortKeyField:  s.SortKeyField,
		TotalFields:   len(s.Fields),
		IndexedFields: s.IndexedFields(),
		UniqueFields:  s.UniqueFields(),
		FieldTypes:    make(map[string]FieldType, len(s.Fields)),
	}
	for _, field := range s.Fields {
		if field.Required {
			summary.RequiredFields++
		} else {
			summary.OptionalFields++
		}
		summary.FieldTypes[field.Name] = field.Type
	}
	return summary
}
