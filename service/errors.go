package service

import (
	"github.com/pkg/errors"

	"github.com/hatlonely/tablex/schema"
	"github.com/hatlonely/tablex/store"
)

// Kind 错误分类，接入层据此选择响应码
type Kind string

const (
	KindInvalidArgument Kind = "InvalidArgument"
	KindNotFound        Kind = "NotFound"
	KindAlreadyExists   Kind = "AlreadyExists"
	KindUnavailable     Kind = "Unavailable"
	KindInternal        Kind = "Internal"
)

// Classify 把领域错误归类
// 校验错误和非法查询参数是调用方的问题，StoreError 是外部存储的问题
func Classify(err error) Kind {
	if err == nil {
		return ""
	}

	var fieldErr *schema.FieldError
	if errors.As(err, &fieldErr) {
		return KindInvalidArgument
	}
	if errors.Is(err, store.ErrMissingSortKey) ||
		errors.Is(err, store.ErrFieldNotQueryable) ||
		errors.Is(err, store.ErrInvalidQueryValue) {
		return KindInvalidArgument
	}
	if errors.Is(err, store.ErrNotFound) {
		return KindNotFound
	}
	if errors.Is(err, store.ErrAlreadyExists) {
		return KindAlreadyExists
	}

	var storeErr *store.StoreError
	if errors.As(err, &storeErr) {
		return KindUnavailable
	}
	return KindInternal
}
