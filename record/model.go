package record

import (
	"github.com/hatlonely/tablex/schema"
)

// Record 一条记录，字段名到值的映射，来自 JSON 解码或存储层反序列化
type Record map[string]any

// Clone 浅拷贝
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Variant 模型变体，同一 schema 按操作派生出三种校验契约
type Variant string

const (
	// VariantCreate 创建契约：必填字段必须出现并通过校验，主键值由调用方提供
	VariantCreate Variant = "create"
	// VariantUpdate 更新契约：主键字段之外全部可选，缺失字段保持原值
	VariantUpdate Variant = "update"
	// VariantResponse 响应契约：所有字段可空，附带 created_at/updated_at
	VariantResponse Variant = "response"
)

// Model 运行时从 TableSchema 派生的记录模型，没有任何编译期字段知识
type Model struct {
	schema  *schema.TableSchema
	variant Variant
}

func NewCreateModel(s *schema.TableSchema) *Model {
	return &Model{schema: s, variant: VariantCreate}
}

func NewUpdateModel(s *schema.TableSchema) *Model {
	return &Model{schema: s, variant: VariantUpdate}
}

func NewResponseModel(s *schema.TableSchema) *Model {
	return &Model{schema: s, variant: VariantResponse}
}

func (m *Model) Variant() Variant {
	return m.variant
}

// ApplyDefaults 为缺失但声明了默认值的字段填充默认值，仅创建契约使用
func (m *Model) ApplyDefaults(rec Record) {
	if m.variant != VariantCreate {
		return
	}
	for _, field := range m.schema.Fields {
		if field.Default == nil {
			continue
		}
		if v, exists := rec[field.Name]; !exists || v == nil {
			rec[field.Name] = field.Default
		}
	}
}

// Validate 按变体契约校验记录
// 未声明的字段直接忽略，写入时也不会被投影到存储项
func (m *Model) Validate(rec Record) error {
	switch m.variant {
	case VariantUpdate:
		return m.validateUpdate(rec)
	default:
		return m.validateCreate(rec)
	}
}

func (m *Model) validateCreate(rec Record) error {
	for _, field := range m.schema.Fields {
		value, exists := rec[field.Name]
		if !exists || value == nil {
			if field.Required {
				return &schema.FieldError{
					Field:   field.Name,
					Rule:    schema.RuleRequired,
					Message: "required field is missing",
				}
			}
			continue
		}
		if err := schema.ValidateValue(field, value); err != nil {
			return err
		}
	}
	return nil
}

// validateUpdate 主键和排序键不参与更新，显式置空视同缺失
func (m *Model) validateUpdate(rec Record) error {
	for _, field := range m.schema.Fields {
		if m.schema.IsKeyField(field.Name) {
			continue
		}
		value, exists := rec[field.Name]
		if !exists || value == nil {
			continue
		}
		if err := schema.ValidateValue(field, value); err != nil {
			return err
		}
	}
	return nil
}

// Shape 把存储项整形成响应记录：每个 schema 字段都出现（缺失为 nil），
// datetime 字段从 ISO-8601 文本还原为 time.Time，时间戳字段总是附带
func (m *Model) Shape(item map[string]any) Record {
	rec := make(Record, len(m.schema.Fields)+2)
	for _, field := range m.schema.Fields {
		value, exists := item[field.Name]
		if !exists {
			rec[field.Name] = nil
			continue
		}
		if field.Type == schema.FieldTypeDateTime {
			if s, ok := value.(string); ok {
				if t, err := schema.ParseDateTime(s); err == nil {
					rec[field.Name] = t
					continue
				}
			}
		}
		rec[field.Name] = value
	}

	for _, name := range []string{schema.CreatedAtField, schema.UpdatedAtField} {
		value, exists := item[name]
		if !exists {
			rec[name] = nil
			continue
		}
		if s, ok := value.(string); ok {
			if t, err := schema.ParseDateTime(s); err == nil {
				rec[name] = t
				continue
			}
		}
		rec[name] = value
	}

	return rec
}
