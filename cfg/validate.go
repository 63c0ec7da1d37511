package cfg

import (
	"reflect"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validate 按 validate tag 校验结构体，非结构体或 nil 指针直接通过
func Validate(object any) error {
	rv := reflect.ValueOf(object)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct || rv.Type() == timeType {
		return nil
	}

	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate.Struct(rv.Interface())
}
