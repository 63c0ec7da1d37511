package query

import (
	"fmt"
	"reflect"

	"github.com/hatlonely/rdbx/rdb"
	"github.com/pkg/errors"
)

// Field 字段引用，可带表名限定
type Field struct {
	Name  string
	Table string
}

func NewField(name string) Field {
	return Field{Name: name}
}

func Qualified(table, name string) Field {
	return Field{Name: name, Table: table}
}

func (f Field) String() string {
	if f.Table == "" {
		return f.Name
	}
	return f.Table + "." + f.Name
}

// Operation 比较操作
type Operation int

const (
	Equal Operation = iota
	NotEqual
	GreaterThan
	GreaterThanOrEqual
	LessThan
	LessThanOrEqual
	Like
	NotLike
	In
	NotIn
	Between
	NotBetween
	IsNull
	IsNotNull
)

var operationText = map[Operation]string{
	Equal:              "=",
	NotEqual:           "<>",
	GreaterThan:        ">",
	GreaterThanOrEqual: ">=",
	LessThan:           "<",
	LessThanOrEqual:    "<=",
	Like:               "LIKE",
	NotLike:            "NOT LIKE",
	In:                 "IN",
	NotIn:              "NOT IN",
	Between:            "BETWEEN",
	NotBetween:         "NOT BETWEEN",
	IsNull:             "IS NULL",
	IsNotNull:          "IS NOT NULL",
}

var operationNegation = map[Operation]Operation{
	Equal:              NotEqual,
	NotEqual:           Equal,
	GreaterThan:        LessThanOrEqual,
	LessThanOrEqual:    GreaterThan,
	GreaterThanOrEqual: LessThan,
	LessThan:           GreaterThanOrEqual,
	Like:               NotLike,
	NotLike:            Like,
	In:                 NotIn,
	NotIn:              In,
	Between:            NotBetween,
	NotBetween:         Between,
	IsNull:             IsNotNull,
	IsNotNull:          IsNull,
}

// String 返回操作对应的 SQL 运算符
func (o Operation) String() string {
	if text, ok := operationText[o]; ok {
		return text
	}
	return fmt.Sprintf("Operation(%d)", int(o))
}

// Negate 返回逻辑取反后的操作
func (o Operation) Negate() Operation {
	if n, ok := operationNegation[o]; ok {
		return n
	}
	return o
}

// checkArity 校验操作数个数
func (o Operation) checkArity(n int) error {
	switch o {
	case Between, NotBetween:
		if n != 2 {
			return rdb.InvalidParameterShape("%s requires exactly 2 operands, got %d", o, n)
		}
	case In, NotIn:
		if n < 1 {
			return rdb.InvalidParameterShape("%s requires at least 1 operand", o)
		}
	case IsNull, IsNotNull:
		if n != 0 {
			return rdb.InvalidParameterShape("%s takes no operand, got %d", o, n)
		}
	default:
		if _, ok := operationText[o]; !ok {
			return rdb.InvalidParameterShape("unknown operation %d", int(o))
		}
		if n != 1 {
			return rdb.InvalidParameterShape("%s requires exactly 1 operand, got %d", o, n)
		}
	}
	return nil
}

// QueryField 单个字段比较条件
type QueryField struct {
	Field     Field
	Operation Operation
	Values    []any
}

func (*QueryField) node() {}

func NewQueryField(name string, op Operation, values ...any) *QueryField {
	return &QueryField{Field: NewField(name), Operation: op, Values: values}
}

func Eq(name string, value any) *QueryField  { return NewQueryField(name, Equal, value) }
func Ne(name string, value any) *QueryField  { return NewQueryField(name, NotEqual, value) }
func Gt(name string, value any) *QueryField  { return NewQueryField(name, GreaterThan, value) }
func Gte(name string, value any) *QueryField { return NewQueryField(name, GreaterThanOrEqual, value) }
func Lt(name string, value any) *QueryField  { return NewQueryField(name, LessThan, value) }
func Lte(name string, value any) *QueryField { return NewQueryField(name, LessThanOrEqual, value) }

func Match(name string, pattern string) *QueryField {
	return NewQueryField(name, Like, pattern)
}

func NotMatch(name string, pattern string) *QueryField {
	return NewQueryField(name, NotLike, pattern)
}

func AnyOf(name string, values ...any) *QueryField {
	return NewQueryField(name, In, values...)
}

func NoneOf(name string, values ...any) *QueryField {
	return NewQueryField(name, NotIn, values...)
}

func Within(name string, low, high any) *QueryField {
	return NewQueryField(name, Between, low, high)
}

func Outside(name string, low, high any) *QueryField {
	return NewQueryField(name, NotBetween, low, high)
}

func Null(name string) *QueryField {
	return NewQueryField(name, IsNull)
}

func NotNull(name string) *QueryField {
	return NewQueryField(name, IsNotNull)
}

// Validate 校验操作数个数是否符合操作要求
func (f *QueryField) Validate() error {
	if f.Field.Name == "" {
		return rdb.InvalidParameterShape("query field without name")
	}
	if err := f.Operation.checkArity(len(f.Values)); err != nil {
		return errors.WithMessagef(err, "field %s", f.Field.Name)
	}
	return nil
}

// IsNullCheck 判断条件是否渲染为 IS [NOT] NULL
func (f *QueryField) IsNullCheck() bool {
	switch f.Operation {
	case IsNull, IsNotNull:
		return true
	case Equal, NotEqual:
		return len(f.Values) == 1 && IsNil(f.Values[0])
	}
	return false
}

// NullOperation 返回空值比较实际使用的操作
func (f *QueryField) NullOperation() Operation {
	if f.Operation == Equal || f.Operation == IsNull {
		return IsNull
	}
	return IsNotNull
}

// IsNil 判断值是否为 nil，包括带类型的空指针
func IsNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice:
		return rv.IsNil()
	}
	return false
}

func (f *QueryField) String() string {
	return fmt.Sprintf("%s %s %v", f.Field, f.Operation, f.Values)
}
