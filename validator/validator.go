package validator

import (
	"reflect"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidateStruct 使用 validator 校验结构体的 validate tag
// nil 指针和非结构体对象直接放过，方便调用方传入可选的 options
func ValidateStruct(object interface{}) error {
	if object == nil {
		return nil
	}

	rv := reflect.ValueOf(object)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}

	return validate.Struct(rv.Interface())
}
