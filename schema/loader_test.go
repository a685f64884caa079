package schema

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func writeFile(t *testing.T, name string, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestNewSchemaWithOptions(t *testing.T) {
	Convey("NewSchemaWithOptions", t, func() {
		Convey("不配置任何来源时使用内置 schema", func() {
			s, err := NewSchemaWithOptions(&SchemaOptions{SchemaFile: "no_such_file.json"})
			So(err, ShouldBeNil)
			So(s.TableName, ShouldEqual, "default_table")
			So(s.KeyField, ShouldEqual, "item_id")
			So(s.FieldNames(), ShouldResemble, []string{"item_id", "name", "age", "address"})
			So(s.Field("age").Type, ShouldEqual, FieldTypeInteger)
			So(*s.Field("age").MaxValue, ShouldEqual, 150)
		})

		Convey("JSON 文件完整对象格式", func() {
			path := writeFile(t, "schema.json", `{
				"table_name": "users",
				"key_field": "user_id",
				"fields": [
					{"name": "user_id", "type": "string"},
					{"name": "email", "type": "email", "required": false},
					{"name": "age", "type": "integer", "min_value": 0, "max_value": 120}
				]
			}`)
			s, err := NewSchemaWithOptions(&SchemaOptions{SchemaFile: path})
			So(err, ShouldBeNil)
			So(s.TableName, ShouldEqual, "users")
			So(s.KeyField, ShouldEqual, "user_id")
			So(s.Field("email").Required, ShouldBeFalse)
			// required 缺省为 true
			So(s.Field("user_id").Required, ShouldBeTrue)
			So(*s.Field("age").MaxValue, ShouldEqual, 120)
		})

		Convey("JSON 文件顶层数组格式", func() {
			path := writeFile(t, "schema.json", `[
				{"name": "item_id", "type": "string"},
				{"name": "name", "type": "string"}
			]`)
			s, err := NewSchemaWithOptions(&SchemaOptions{SchemaFile: path})
			So(err, ShouldBeNil)
			So(s.TableName, ShouldEqual, "default_table")
			So(s.FieldNames(), ShouldResemble, []string{"item_id", "name"})
		})

		Convey("YAML 文件", func() {
			path := writeFile(t, "schema.yaml", `
table_name: products
key_field: sku
fields:
  - name: sku
    type: string
  - name: price
    type: float
    min_value: 0
  - name: status
    type: enum
    enum_values: [draft, published]
`)
			s, err := NewSchemaWithOptions(&SchemaOptions{SchemaFile: path})
			So(err, ShouldBeNil)
			So(s.TableName, ShouldEqual, "products")
			So(s.KeyField, ShouldEqual, "sku")
			So(s.Field("status").EnumValues, ShouldResemble, []string{"draft", "published"})
		})

		Convey("TOML 文件", func() {
			path := writeFile(t, "schema.toml", `
table_name = "events"
key_field = "event_id"
sort_key_field = "ts"

[[fields]]
name = "event_id"
type = "string"

[[fields]]
name = "ts"
type = "string"

[[fields]]
name = "payload"
type = "json"
required = false
`)
			s, err := NewSchemaWithOptions(&SchemaOptions{SchemaFile: path})
			So(err, ShouldBeNil)
			So(s.TableName, ShouldEqual, "events")
			So(s.HasSortKey(), ShouldBeTrue)
			So(s.SortKeyField, ShouldEqual, "ts")
		})

		Convey("文件存在但内容非法时直接报错", func() {
			path := writeFile(t, "schema.json", `{not valid json`)
			_, err := NewSchemaWithOptions(&SchemaOptions{SchemaFile: path})
			So(err, ShouldNotBeNil)
		})

		Convey("不支持的扩展名", func() {
			path := writeFile(t, "schema.txt", `whatever`)
			_, err := NewSchemaWithOptions(&SchemaOptions{SchemaFile: path})
			So(err, ShouldNotBeNil)
		})

		Convey("SchemaJSON 字符串", func() {
			s, err := NewSchemaWithOptions(&SchemaOptions{
				SchemaFile: "no_such_file.json",
				SchemaJSON: `[{"name": "item_id", "type": "string"}, {"name": "score", "type": "float"}]`,
			})
			So(err, ShouldBeNil)
			So(s.Field("score").Type, ShouldEqual, FieldTypeFloat)
		})

		Convey("紧凑字段列表", func() {
			s, err := NewSchemaWithOptions(&SchemaOptions{
				SchemaFile:  "no_such_file.json",
				TableFields: "item_id:string,name:string:true:1:100,age:integer:false:0:150,notes:string:false",
			})
			So(err, ShouldBeNil)
			So(s.Field("name").Required, ShouldBeTrue)
			// 字符串类字段 min/max 落到长度约束
			So(*s.Field("name").MinLength, ShouldEqual, 1)
			So(*s.Field("name").MaxLength, ShouldEqual, 100)
			// 数值字段 min/max 落到取值约束
			So(s.Field("age").Required, ShouldBeFalse)
			So(*s.Field("age").MinValue, ShouldEqual, 0)
			So(*s.Field("age").MaxValue, ShouldEqual, 150)
			So(s.Field("notes").MinLength, ShouldBeNil)
		})

		Convey("紧凑格式非法定义", func() {
			_, err := NewSchemaWithOptions(&SchemaOptions{
				SchemaFile:  "no_such_file.json",
				TableFields: "just_a_name",
			})
			So(err, ShouldNotBeNil)
		})

		Convey("文件优先于 SchemaJSON", func() {
			path := writeFile(t, "schema.json", `[{"name": "from_file", "type": "string"}]`)
			s, err := NewSchemaWithOptions(&SchemaOptions{
				SchemaFile: path,
				SchemaJSON: `[{"name": "from_json", "type": "string"}]`,
				KeyField:   "from_file",
			})
			So(err, ShouldBeNil)
			So(s.Field("from_file"), ShouldNotBeNil)
			So(s.Field("from_json"), ShouldBeNil)
		})
	})
}

func TestNewSchemaFromEnv(t *testing.T) {
	Convey("NewSchemaFromEnv", t, func() {
		t.Setenv("SCHEMA_FILE", "no_such_file.json")
		t.Setenv("SCHEMA_JSON", "")
		t.Setenv("TABLE_FIELDS", "item_id:string,title:string")
		t.Setenv("TABLE_NAME", "articles")
		t.Setenv("KEY_FIELD", "item_id")
		t.Setenv("SORT_KEY_FIELD", "")

		s, err := NewSchemaFromEnv()
		So(err, ShouldBeNil)
		So(s.TableName, ShouldEqual, "articles")
		So(s.FieldNames(), ShouldResemble, []string{"item_id", "title"})
	})
}
