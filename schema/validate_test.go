package schema

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/stretchr/testify/assert"
)

func TestValidateValue(t *testing.T) {
	Convey("ValidateValue", t, func() {
		Convey("字符串长度", func() {
			field := &FieldSpec{Name: "name", Type: FieldTypeString, MinLength: intPtr(2), MaxLength: intPtr(5)}
			So(ValidateValue(field, "ab"), ShouldBeNil)
			So(ValidateValue(field, "abcde"), ShouldBeNil)

			err := ValidateValue(field, "a")
			So(err, ShouldNotBeNil)
			fieldErr, ok := err.(*FieldError)
			So(ok, ShouldBeTrue)
			So(fieldErr.Field, ShouldEqual, "name")
			So(fieldErr.Rule, ShouldEqual, RuleMinLength)

			err = ValidateValue(field, "abcdef")
			So(err.(*FieldError).Rule, ShouldEqual, RuleMaxLength)
		})

		Convey("字符串长度按字符数计算", func() {
			field := &FieldSpec{Name: "name", Type: FieldTypeString, MaxLength: intPtr(3)}
			So(ValidateValue(field, "你好吗"), ShouldBeNil)
		})

		Convey("字符串正则", func() {
			field := &FieldSpec{Name: "code", Type: FieldTypeString, Pattern: "[A-Z]{3}"}
			So(ValidateValue(field, "ABC"), ShouldBeNil)
			// 完整匹配，前后缀都不放过
			So(ValidateValue(field, "xABCx"), ShouldNotBeNil)
			So(ValidateValue(field, "AB"), ShouldNotBeNil)
		})

		Convey("整数接受 JSON 解码出的 float64", func() {
			field := &FieldSpec{Name: "age", Type: FieldTypeInteger, MinValue: floatPtr(0), MaxValue: floatPtr(150)}
			So(ValidateValue(field, 30), ShouldBeNil)
			So(ValidateValue(field, float64(30)), ShouldBeNil)
			So(ValidateValue(field, int64(0)), ShouldBeNil)

			So(ValidateValue(field, 30.5), ShouldNotBeNil)
			So(ValidateValue(field, "30"), ShouldNotBeNil)

			err := ValidateValue(field, 200)
			So(err.(*FieldError).Rule, ShouldEqual, RuleMaxValue)
			err = ValidateValue(field, -1)
			So(err.(*FieldError).Rule, ShouldEqual, RuleMinValue)
		})

		Convey("浮点取值范围", func() {
			field := &FieldSpec{Name: "score", Type: FieldTypeFloat, MinValue: floatPtr(0), MaxValue: floatPtr(1)}
			So(ValidateValue(field, 0.5), ShouldBeNil)
			// 闭区间
			So(ValidateValue(field, 0.0), ShouldBeNil)
			So(ValidateValue(field, 1.0), ShouldBeNil)
			// 整数提升为浮点
			So(ValidateValue(field, 1), ShouldBeNil)
			So(ValidateValue(field, 1.1), ShouldNotBeNil)
			So(ValidateValue(field, "0.5"), ShouldNotBeNil)
		})

		Convey("布尔", func() {
			field := &FieldSpec{Name: "active", Type: FieldTypeBoolean}
			So(ValidateValue(field, true), ShouldBeNil)
			So(ValidateValue(field, false), ShouldBeNil)
			So(ValidateValue(field, "true"), ShouldNotBeNil)
			So(ValidateValue(field, 1), ShouldNotBeNil)
		})

		Convey("时间", func() {
			field := &FieldSpec{Name: "birthday", Type: FieldTypeDateTime}
			So(ValidateValue(field, time.Now()), ShouldBeNil)
			So(ValidateValue(field, "2024-01-15T10:30:00Z"), ShouldBeNil)
			So(ValidateValue(field, "2024-01-15"), ShouldBeNil)
			So(ValidateValue(field, "not-a-date"), ShouldNotBeNil)
			So(ValidateValue(field, 1700000000), ShouldNotBeNil)
		})

		Convey("枚举", func() {
			field := &FieldSpec{Name: "status", Type: FieldTypeEnum, EnumValues: []string{"active", "inactive"}}
			So(ValidateValue(field, "active"), ShouldBeNil)
			err := ValidateValue(field, "unknown")
			So(err.(*FieldError).Rule, ShouldEqual, RuleEnum)
			So(ValidateValue(field, 1), ShouldNotBeNil)
		})

		Convey("JSON 对象和数组", func() {
			field := &FieldSpec{Name: "meta", Type: FieldTypeJSON}
			So(ValidateValue(field, map[string]any{"a": 1}), ShouldBeNil)
			So(ValidateValue(field, []any{1, 2}), ShouldBeNil)
			So(ValidateValue(field, "not-json"), ShouldNotBeNil)
		})

		Convey("数组", func() {
			field := &FieldSpec{Name: "tags", Type: FieldTypeArray}
			So(ValidateValue(field, []any{"a", "b"}), ShouldBeNil)
			So(ValidateValue(field, []string{"a"}), ShouldBeNil)
			So(ValidateValue(field, "a,b"), ShouldNotBeNil)
		})
	})
}

func TestValidateTextTypes(t *testing.T) {
	tests := []struct {
		fieldType FieldType
		value     string
		valid     bool
	}{
		{FieldTypeEmail, "user@example.com", true},
		{FieldTypeEmail, "user.name+tag@sub.example.co", true},
		{FieldTypeEmail, "not-an-email", false},
		{FieldTypeEmail, "user@", false},
		{FieldTypeURL, "http://example.com", true},
		{FieldTypeURL, "https://example.com:8080/path?q=1", true},
		{FieldTypeURL, "ftp://example.com", false},
		{FieldTypeURL, "example.com", false},
		{FieldTypePhone, "+8613800138000", true},
		{FieldTypePhone, "(010) 1234-5678", true},
		{FieldTypePhone, "call-me", false},
		{FieldTypeUUID, "123e4567-e89b-12d3-a456-426614174000", true},
		{FieldTypeUUID, "123E4567-E89B-12D3-A456-426614174000", true},
		{FieldTypeUUID, "123e4567e89b12d3a456426614174000", false},
	}

	for _, tt := range tests {
		field := &FieldSpec{Name: "value", Type: tt.fieldType}
		err := ValidateValue(field, tt.value)
		if tt.valid {
			assert.NoError(t, err, "%s %q", tt.fieldType, tt.value)
		} else {
			assert.Error(t, err, "%s %q", tt.fieldType, tt.value)
		}
	}
}

func TestDateTime(t *testing.T) {
	Convey("ParseDateTime/FormatDateTime", t, func() {
		Convey("往返一致", func() {
			now := time.Date(2024, 1, 15, 10, 30, 0, 123456789, time.UTC)
			parsed, err := ParseDateTime(FormatDateTime(now))
			So(err, ShouldBeNil)
			So(parsed.Equal(now), ShouldBeTrue)
		})

		Convey("多种文本格式", func() {
			for _, s := range []string{
				"2024-01-15T10:30:00Z",
				"2024-01-15T10:30:00+08:00",
				"2024-01-15T10:30:00",
				"2024-01-15 10:30:00",
				"2024-01-15",
			} {
				_, err := ParseDateTime(s)
				So(err, ShouldBeNil)
			}
		})

		Convey("非法文本", func() {
			_, err := ParseDateTime("15/01/2024")
			So(err, ShouldNotBeNil)
		})
	})
}
