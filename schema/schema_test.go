package schema

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }

func TestNewTableSchema(t *testing.T) {
	Convey("NewTableSchema", t, func() {
		Convey("合法的表结构", func() {
			s, err := NewTableSchema("items", "item_id", "", []*FieldSpec{
				{Name: "item_id", Type: FieldTypeString, Required: true},
				{Name: "name", Type: FieldTypeString, Required: true, MinLength: intPtr(1), MaxLength: intPtr(100)},
				{Name: "age", Type: FieldTypeInteger, Required: true, MinValue: floatPtr(0), MaxValue: floatPtr(150)},
			})
			So(err, ShouldBeNil)
			So(s.TableName, ShouldEqual, "items")
			So(s.KeyField, ShouldEqual, "item_id")
			So(s.HasSortKey(), ShouldBeFalse)
			So(s.Field("name"), ShouldNotBeNil)
			So(s.Field("unknown"), ShouldBeNil)
			So(s.FieldNames(), ShouldResemble, []string{"item_id", "name", "age"})
		})

		Convey("复合主键", func() {
			s, err := NewTableSchema("orders", "user_id", "order_id", []*FieldSpec{
				{Name: "user_id", Type: FieldTypeString, Required: true},
				{Name: "order_id", Type: FieldTypeString, Required: true},
				{Name: "amount", Type: FieldTypeFloat, Required: false},
			})
			So(err, ShouldBeNil)
			So(s.HasSortKey(), ShouldBeTrue)
			So(s.IsKeyField("user_id"), ShouldBeTrue)
			So(s.IsKeyField("order_id"), ShouldBeTrue)
			So(s.IsKeyField("amount"), ShouldBeFalse)
		})

		Convey("主键未声明", func() {
			_, err := NewTableSchema("items", "item_id", "", []*FieldSpec{
				{Name: "name", Type: FieldTypeString},
			})
			So(err, ShouldNotBeNil)
		})

		Convey("排序键与主键相同", func() {
			_, err := NewTableSchema("items", "item_id", "item_id", []*FieldSpec{
				{Name: "item_id", Type: FieldTypeString},
			})
			So(err, ShouldNotBeNil)
		})

		Convey("字段名重复", func() {
			_, err := NewTableSchema("items", "item_id", "", []*FieldSpec{
				{Name: "item_id", Type: FieldTypeString},
				{Name: "name", Type: FieldTypeString},
				{Name: "name", Type: FieldTypeInteger},
			})
			So(err, ShouldNotBeNil)
		})

		Convey("未知字段类型", func() {
			_, err := NewTableSchema("items", "item_id", "", []*FieldSpec{
				{Name: "item_id", Type: FieldType("blob")},
			})
			So(err, ShouldNotBeNil)
		})

		Convey("枚举字段缺少候选值", func() {
			_, err := NewTableSchema("items", "item_id", "", []*FieldSpec{
				{Name: "item_id", Type: FieldTypeString},
				{Name: "status", Type: FieldTypeEnum},
			})
			So(err, ShouldNotBeNil)
		})

		Convey("非法正则", func() {
			_, err := NewTableSchema("items", "item_id", "", []*FieldSpec{
				{Name: "item_id", Type: FieldTypeString, Pattern: "[a-z"},
			})
			So(err, ShouldNotBeNil)
		})
	})
}

func TestTableSchemaHelpers(t *testing.T) {
	Convey("TableSchema 辅助方法", t, func() {
		s, err := NewTableSchema("items", "item_id", "", []*FieldSpec{
			{Name: "item_id", Type: FieldTypeString, Required: true},
			{Name: "name", Type: FieldTypeString, Required: true, Index: true},
			{Name: "email", Type: FieldTypeEmail, Required: false, Unique: true},
			{Name: "age", Type: FieldTypeInteger, Required: false},
		})
		So(err, ShouldBeNil)

		Convey("QueryableFields 不包含主键", func() {
			So(s.QueryableFields(), ShouldResemble, []string{"name", "email", "age"})
		})

		Convey("IndexedFields", func() {
			So(s.IndexedFields(), ShouldResemble, []string{"name"})
		})

		Convey("UniqueFields", func() {
			So(s.UniqueFields(), ShouldResemble, []string{"email"})
		})

		Convey("Summary", func() {
			summary := s.Summary()
			So(summary.TableName, ShouldEqual, "items")
			So(summary.KeyField, ShouldEqual, "item_id")
			So(summary.TotalFields, ShouldEqual, 4)
			So(summary.RequiredFields, ShouldEqual, 2)
			So(summary.OptionalFields, ShouldEqual, 2)
			So(summary.FieldTypes["email"], ShouldEqual, FieldTypeEmail)
			So(summary.FieldTypes["age"], ShouldEqual, FieldTypeInteger)
		})
	})
}

func TestParseFieldType(t *testing.T) {
	Convey("ParseFieldType", t, func() {
		Convey("全部合法类型", func() {
			for _, name := range []string{
				"string", "integer", "float", "boolean", "datetime",
				"email", "url", "phone", "uuid", "json", "array", "enum",
			} {
				ft, err := ParseFieldType(name)
				So(err, ShouldBeNil)
				So(string(ft), ShouldEqual, name)
			}
		})

		Convey("未知类型", func() {
			_, err := ParseFieldType("blob")
			So(err, ShouldNotBeNil)
		})
	})
}
