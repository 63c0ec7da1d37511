package rdb

import (
	"fmt"

	"github.com/pkg/errors"
)

// 编译期错误，全部在语句到达驱动之前抛出
var (
	ErrInvalidParameterShape = errors.New("invalid parameter shape")
	ErrUnsupportedExpression = errors.New("unsupported expression")
	ErrUnknownField          = errors.New("unknown field")
	ErrMissingPrimaryKey     = errors.New("missing primary key")
	ErrParameterTypeMismatch = errors.New("parameter type mismatch")
)

// 执行期与模型错误
var (
	ErrProviderExecution = errors.New("provider execution failed")
	ErrInvalidEntity     = errors.New("invalid entity")
	ErrRecordNotFound    = errors.New("record not found")
	ErrDuplicateKey      = errors.New("duplicate key")
)

// FieldError 字段相关的编译错误
type FieldError struct {
	Kind  error
	Field string
	Table string
	Err   error
}

func (e *FieldError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Field)
	if e.Table != "" {
		msg += " (table " + e.Table + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FieldError) Is(target error) bool {
	return target == e.Kind
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// ProviderError 驱动或数据库返回的错误，原样透传，不做重试
type ProviderError struct {
	Err       error
	Text      string
	Duplicate bool
}

func (e *ProviderError) Error() string {
	return ErrProviderExecution.Error() + ": " + e.Err.Error()
}

func (e *ProviderError) Is(target error) bool {
	if target == ErrProviderExecution {
		return true
	}
	return e.Duplicate && target == ErrDuplicateKey
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func InvalidParameterShape(format string, args ...any) error {
	return errors.Wrapf(ErrInvalidParameterShape, format, args...)
}

func UnsupportedExpression(format string, args ...any) error {
	return errors.Wrapf(ErrUnsupportedExpression, format, args...)
}

func UnknownField(field, table string) error {
	return &FieldError{Kind: ErrUnknownField, Field: field, Table: table}
}

func MissingPrimaryKey(table string) error {
	return errors.Wrapf(ErrMissingPrimaryKey, "table %s", table)
}

func ParameterTypeMismatch(name string, value any, cause error) error {
	return &FieldError{
		Kind:  ErrParameterTypeMismatch,
		Field: fmt.Sprintf("%s (%T)", name, value),
		Err:   cause,
	}
}

// IsCompileError 判断错误是否在编译阶段产生
func IsCompileError(err error) bool {
	for _, kind := range []error{
		ErrInvalidParameterShape,
		ErrUnsupportedExpression,
		ErrUnknownField,
		ErrMissingPrimaryKey,
		ErrParameterTypeMismatch,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}
