package param

import (
	"database/sql/driver"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/hatlonely/rdbx/rdb"
)

// Param 参数包中的一项
type Param struct {
	Name  string
	Value any
	Type  reflect.Type
}

// Bag 有序参数包，名字大小写不敏感
type Bag struct {
	params []Param
	index  map[string]int
}

func NewBag() *Bag {
	return &Bag{index: map[string]int{}}
}

// Set 设置参数，同名（忽略大小写）时原位替换
func (b *Bag) Set(name string, value any) *Bag {
	if b.index == nil {
		b.index = map[string]int{}
	}
	p := Param{Name: name, Value: value, Type: reflect.TypeOf(value)}
	key := strings.ToLower(name)
	if i, ok := b.index[key]; ok {
		b.params[i] = p
		return b
	}
	b.index[key] = len(b.params)
	b.params = append(b.params, p)
	return b
}

func (b *Bag) Get(name string) (Param, bool) {
	if b == nil {
		return Param{}, false
	}
	i, ok := b.index[strings.ToLower(name)]
	if !ok {
		return Param{}, false
	}
	return b.params[i], true
}

func (b *Bag) Params() []Param {
	if b == nil {
		return nil
	}
	return b.params
}

func (b *Bag) Names() []string {
	names := make([]string, 0, b.Len())
	for _, p := range b.Params() {
		names = append(names, p.Name)
	}
	return names
}

func (b *Bag) Len() int {
	if b == nil {
		return 0
	}
	return len(b.params)
}

// Pairs 按参数顺序构造参数包：Pairs("a", 1, "b", 2)
func Pairs(kv ...any) (*Bag, error) {
	if len(kv)%2 != 0 {
		return nil, rdb.InvalidParameterShape("odd number of pair arguments")
	}
	b := NewBag()
	for i := 0; i < len(kv); i += 2 {
		name, ok := kv[i].(string)
		if !ok {
			return nil, rdb.InvalidParameterShape("pair key at %d is %T, not string", i, kv[i])
		}
		if !IsScalar(kv[i+1]) {
			return nil, rdb.InvalidParameterShape("value of %s is %T, not scalar", name, kv[i+1])
		}
		b.Set(name, kv[i+1])
	}
	return b, nil
}

// From 将调用方参数转换为参数包
// 支持 nil、*Bag、map[string]X（按键排序）、结构体及其指针（按字段声明顺序）
func From(v any) (*Bag, error) {
	switch x := v.(type) {
	case nil:
		return NewBag(), nil
	case *Bag:
		if x == nil {
			return NewBag(), nil
		}
		for _, p := range x.params {
			if !IsScalar(p.Value) {
				return nil, rdb.InvalidParameterShape("value of %s is %T, not scalar", p.Name, p.Value)
			}
		}
		return x, nil
	case Bag:
		return From(&x)
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return NewBag(), nil
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Map:
		return fromMap(rv)
	case reflect.Struct:
		if rv.Type() == timeType {
			break
		}
		return fromStruct(rv)
	}
	return nil, rdb.InvalidParameterShape("cannot adapt %T to parameter bag", v)
}

// IsBagShape 判断值能否按参数包处理
func IsBagShape(v any) bool {
	switch v.(type) {
	case *Bag, Bag:
		return true
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr && !rv.IsNil() {
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map:
		return true
	case reflect.Struct:
		return rv.Type() != timeType && !rv.Type().Implements(valuerType) && !reflect.PointerTo(rv.Type()).Implements(valuerType)
	}
	return false
}

func fromMap(rv reflect.Value) (*Bag, error) {
	if rv.Type().Key().Kind() != reflect.String {
		return nil, rdb.InvalidParameterShape("map key type %s is not string", rv.Type().Key())
	}
	keys := make([]string, 0, rv.Len())
	for _, k := range rv.MapKeys() {
		keys = append(keys, k.String())
	}
	sort.Strings(keys)

	b := NewBag()
	for _, k := range keys {
		value := rv.MapIndex(reflect.ValueOf(k).Convert(rv.Type().Key())).Interface()
		if !IsScalar(value) {
			return nil, rdb.InvalidParameterShape("value of %s is %T, not scalar", k, value)
		}
		b.Set(k, value)
	}
	return b, nil
}

func fromStruct(rv reflect.Value) (*Bag, error) {
	b := NewBag()
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		name := field.Name
		if tag := field.Tag.Get("rdb"); tag != "" {
			if tag == "-" {
				continue
			}
			if first := strings.Split(tag, ",")[0]; first != "" && !strings.Contains(first, "=") {
				name = first
			}
		}
		value := rv.Field(i).Interface()
		if !IsScalar(value) {
			return nil, rdb.InvalidParameterShape("field %s is %T, not scalar", field.Name, value)
		}
		b.Set(name, value)
	}
	return b, nil
}

var (
	timeType   = reflect.TypeOf(time.Time{})
	bytesType  = reflect.TypeOf([]byte(nil))
	valuerType = reflect.TypeOf((*driver.Valuer)(nil)).Elem()
)

// IsScalar 判断值是否可以作为单个 SQL 参数
func IsScalar(v any) bool {
	if v == nil {
		return true
	}
	if _, ok := v.(driver.Valuer); ok {
		return true
	}
	rt := reflect.TypeOf(v)
	if rt.Kind() == reflect.Ptr {
		rt = rt.Elem()
		if rt.Implements(valuerType) {
			return true
		}
	}
	return isScalarType(rt)
}

func isScalarType(rt reflect.Type) bool {
	if rt == timeType || rt == bytesType || rt.Implements(valuerType) {
		return true
	}
	switch rt.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	case reflect.Slice:
		return rt.Elem().Kind() == reflect.Uint8
	}
	return false
}
