package schema

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/hatlonely/tablex/validator"
)

// SchemaOptions schema 来源配置
// 按优先级依次解析：结构化文件 > JSON 字符串 > 紧凑字段列表 > 内置默认 schema
type SchemaOptions struct {
	// 结构化 schema 文件路径，按扩展名支持 .json/.yaml/.yml/.toml
	// 文件不存在时回退到下一个来源，文件存在但内容非法时直接报错
	SchemaFile string `cfg:"schemaFile" def:"schema.json"`

	// JSON 字符串形式的 schema，支持字段数组和完整对象两种格式
	SchemaJSON string `cfg:"schemaJSON"`

	// 紧凑格式字段列表，逗号分隔
	// 单个字段格式：name:type[:required[:min[:max[:description]]]]
	TableFields string `cfg:"tableFields"`

	// 表名
	TableName string `cfg:"tableName" def:"default_table"`

	// 主键字段名，必须出现在字段列表中
	KeyField string `cfg:"keyField" def:"item_id"`

	// 可选的排序键字段名
	SortKeyField string `cfg:"sortKeyField"`
}

// schemaDoc 结构化来源的完整格式
type schemaDoc struct {
	TableName    string      `json:"table_name" yaml:"table_name" toml:"table_name"`
	KeyField     string      `json:"key_field" yaml:"key_field" toml:"key_field"`
	SortKeyField string      `json:"sort_key_field" yaml:"sort_key_field" toml:"sort_key_field"`
	Fields       []*fieldDoc `json:"fields" yaml:"fields" toml:"fields"`
}

// fieldDoc 结构化来源的字段格式，Required 缺省为 true
type fieldDoc struct {
	Name        string   `json:"name" yaml:"name" toml:"name"`
	Type        string   `json:"type" yaml:"type" toml:"type"`
	Required    *bool    `json:"required" yaml:"required" toml:"required"`
	MinLength   *int     `json:"min_length" yaml:"min_length" toml:"min_length"`
	MaxLength   *int     `json:"max_length" yaml:"max_length" toml:"max_length"`
	MinValue    *float64 `json:"min_value" yaml:"min_value" toml:"min_value"`
	MaxValue    *float64 `json:"max_value" yaml:"max_value" toml:"max_value"`
	EnumValues  []string `json:"enum_values" yaml:"enum_values" toml:"enum_values"`
	Pattern     string   `json:"pattern" yaml:"pattern" toml:"pattern"`
	Default     any      `json:"default" yaml:"default" toml:"default"`
	Unique      bool     `json:"unique" yaml:"unique" toml:"unique"`
	Index       bool     `json:"index" yaml:"index" toml:"index"`
	Description string   `json:"description" yaml:"description" toml:"description"`
}

// NewSchemaWithOptions 按来源优先级加载表结构
func NewSchemaWithOptions(options *SchemaOptions) (*TableSchema, error) {
	if options == nil {
		options = &SchemaOptions{}
	}
	if options.SchemaFile == "" {
		options.SchemaFile = "schema.json"
	}
	if options.TableName == "" {
		options.TableName = "default_table"
	}
	if options.KeyField == "" {
		options.KeyField = "item_id"
	}
	if err := validator.ValidateStruct(options); err != nil {
		return nil, errors.WithMessage(ErrInvalidSchema, err.Error())
	}

	if _, err := os.Stat(options.SchemaFile); err == nil {
		return loadFromFile(options)
	}

	if options.SchemaJSON != "" {
		doc, err := decodeDoc([]byte(options.SchemaJSON), "json")
		if err != nil {
			return nil, errors.WithMessage(err, "parse schemaJSON failed")
		}
		return buildSchema(options, doc)
	}

	if options.TableFields != "" {
		fields, err := parseCompactFields(options.TableFields)
		if err != nil {
			return nil, err
		}
		return NewTableSchema(options.TableName, options.KeyField, options.SortKeyField, fields)
	}

	return NewTableSchema(options.TableName, options.KeyField, options.SortKeyField, defaultFields())
}

// NewSchemaFromEnv 从环境变量构造 SchemaOptions 再加载
// 环境变量：SCHEMA_FILE / SCHEMA_JSON / TABLE_FIELDS / TABLE_NAME / KEY_FIELD / SORT_KEY_FIELD
func NewSchemaFromEnv() (*TableSchema, error) {
	return NewSchemaWithOptions(&SchemaOptions{
		SchemaFile:   os.Getenv("SCHEMA_FILE"),
		SchemaJSON:   os.Getenv("SCHEMA_JSON"),
		TableFields:  os.Getenv("TABLE_FIELDS"),
		TableName:    os.Getenv("TABLE_NAME"),
		KeyField:     os.Getenv("KEY_FIELD"),
		SortKeyField: os.Getenv("SORT_KEY_FIELD"),
	})
}

func loadFromFile(options *SchemaOptions) (*TableSchema, error) {
	data, err := os.ReadFile(options.SchemaFile)
	if err != nil {
		return nil, errors.WithMessagef(ErrInvalidSchema, "read schema file %s failed: %v", options.SchemaFile, err)
	}

	format := ""
	switch strings.ToLower(filepath.Ext(options.SchemaFile)) {
	case ".json":
		format = "json"
	case ".yaml", ".yml":
		format = "yaml"
	case ".toml":
		format = "toml"
	default:
		return nil, errors.WithMessagef(ErrInvalidSchema, "unsupported schema file extension %q", filepath.Ext(options.SchemaFile))
	}

	doc, err := decodeDoc(data, format)
	if err != nil {
		return nil, errors.WithMessagef(err, "parse schema file %s failed", options.SchemaFile)
	}
	return buildSchema(options, doc)
}

// decodeDoc 解析结构化 schema，json/yaml 额外支持顶层字段数组格式
func decodeDoc(data []byte, format string) (*schemaDoc, error) {
	doc := &schemaDoc{}
	switch format {
	case "json":
		trimmed := strings.TrimSpace(string(data))
		if strings.HasPrefix(trimmed, "[") {
			if err := json.Unmarshal(data, &doc.Fields); err != nil {
				return nil, errors.WithMessage(ErrInvalidSchema, err.Error())
			}
			return doc, nil
		}
		if err := json.Unmarshal(data, doc); err != nil {
			return nil, errors.WithMessage(ErrInvalidSchema, err.Error())
		}
	case "yaml":
		if err := yaml.Unmarshal(data, doc); err != nil {
			var fields []*fieldDoc
			if err2 := yaml.Unmarshal(data, &fields); err2 != nil {
				return nil, errors.WithMessage(ErrInvalidSchema, err.Error())
			}
			doc.Fields = fields
		}
	case "toml":
		if err := toml.Unmarshal(data, doc); err != nil {
			return nil, errors.WithMessage(ErrInvalidSchema, err.Error())
		}
	}
	return doc, nil
}

func buildSchema(options *SchemaOptions, doc *schemaDoc) (*TableSchema, error) {
	tableName := options.TableName
	keyField := options.KeyField
	sortKeyField := options.SortKeyField
	if doc.TableName != "" {
		tableName = doc.TableName
	}
	if doc.KeyField != "" {
		keyField = doc.KeyField
	}
	if doc.SortKeyField != "" {
		sortKeyField = doc.SortKeyField
	}

	fields := make([]*FieldSpec, 0, len(doc.Fields))
	for _, fd := range doc.Fields {
		field, err := fd.toSpec()
		if err != nil {
			return nil, err
		}
		fields = append(fields, field)
	}

	return NewTableSchema(tableName, keyField, sortKeyField, fields)
}

func (fd *fieldDoc) toSpec() (*FieldSpec, error) {
	if fd.Name == "" {
		return nil, errors.WithMessage(ErrInvalidSchema, "field name is required")
	}
	fieldType := fd.Type
	if fieldType == "" {
		fieldType = string(FieldTypeString)
	}
	t, err := ParseFieldType(fieldType)
	if err != nil {
		return nil, err
	}

	required := true
	if fd.Required != nil {
		required = *fd.Required
	}

	return &FieldSpec{
		Name:        fd.Name,
		Type:        t,
		Required:    required,
		MinLength:   fd.MinLength,
		MaxLength:   fd.MaxLength,
		MinValue:    fd.MinValue,
		MaxValue:    fd.MaxValue,
		EnumValues:  fd.EnumValues,
		Pattern:     fd.Pattern,
		Default:     fd.Default,
		Unique:      fd.Unique,
		Index:       fd.Index,
		Description: fd.Description,
	}, nil
}

// parseCompactFields 解析紧凑格式 name:type[:required[:min[:max[:description]]]]
// min/max 对字符串类字段落到长度约束，对数值字段落到取值约束
func parseCompactFields(config string) ([]*FieldSpec, error) {
	fields := make([]*FieldSpec, 0)
	for _, definition := range strings.Split(config, ",") {
		definition = strings.TrimSpace(definition)
		if definition == "" {
			continue
		}
		parts := strings.Split(definition, ":")
		if len(parts) < 2 {
			return nil, errors.WithMessagef(ErrInvalidSchema, "invalid field definition %q", definition)
		}

		t, err := ParseFieldType(parts[1])
		if err != nil {
			return nil, err
		}
		field := &FieldSpec{
			Name:     parts[0],
			Type:     t,
			Required: true,
		}
		if len(parts) > 2 && parts[2] != "" {
			field.Required = strings.EqualFold(parts[2], "true")
		}

		var minVal, maxVal *float64
		if len(parts) > 3 && parts[3] != "" {
			v, err := strconv.ParseFloat(parts[3], 64)
			if err != nil {
				return nil, errors.WithMessagef(ErrInvalidSchema, "invalid min in field definition %q", definition)
			}
			minVal = &v
		}
		if len(parts) > 4 && parts[4] != "" {
			v, err := strconv.ParseFloat(parts[4], 64)
			if err != nil {
				return nil, errors.WithMessagef(ErrInvalidSchema, "invalid max in field definition %q", definition)
			}
			maxVal = &v
		}
		if len(parts) > 5 {
			field.Description = parts[5]
		}

		if t.IsNumeric() {
			field.MinValue = minVal
			field.MaxValue = maxVal
		} else {
			if minVal != nil {
				length := int(*minVal)
				field.MinLength = &length
			}
			if maxVal != nil {
				length := int(*maxVal)
				field.MaxLength = &length
			}
		}

		fields = append(fields, field)
	}
	return fields, nil
}

// defaultFields 未配置任何来源时的内置 schema
func defaultFields() []*FieldSpec {
	intPtr := func(v int) *int { return &v }
	floatPtr := func(v float64) *float64 { return &v }
	return []*FieldSpec{
		{Name: "item_id", Type: FieldTypeString, Required: true, Description: "Unique identifier"},
		{Name: "name", Type: FieldTypeString, Required: true, MinLength: intPtr(1), MaxLength: intPtr(100), Description: "Name field"},
		{Name: "age", Type: FieldTypeInteger, Required: true, MinValue: floatPtr(0), MaxValue: floatPtr(150), Description: "Age field"},
		{Name: "address", Type: FieldTypeString, Required: true, MinLength: intPtr(1), MaxLength: intPtr(500), Description: "Address field"},
	}
}
