package cfg

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var (
	durationType = reflect.TypeOf(time.Duration(0))
	timeType     = reflect.TypeOf(time.Time{})
)

// ConvertTo 把 map/slice/标量组成的通用数据转换到 object 指向的值
//
// 结构体字段名依次取 cfg、json、yaml tag，否则使用字段名，匹配时忽略大小写。
// 字符串可以转换为数值、布尔、time.Duration 和 time.Time，逗号分隔的字符串可以转换为切片。
func ConvertTo(src any, object any) error {
	rv := reflect.ValueOf(object)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return errors.New("object must be a non-nil pointer")
	}
	return convertValue(src, rv.Elem())
}

func convertValue(src any, dst reflect.Value) error {
	if src == nil {
		return nil
	}

	if dst.Kind() == reflect.Ptr {
		if dst.IsNil() {
			dst.Set(reflect.New(dst.Type().Elem()))
		}
		return convertValue(src, dst.Elem())
	}

	sv := reflect.ValueOf(src)
	for sv.Kind() == reflect.Ptr || sv.Kind() == reflect.Interface {
		if sv.IsNil() {
			return nil
		}
		sv = sv.Elem()
	}

	switch dst.Type() {
	case durationType:
		return convertDuration(sv, dst)
	case timeType:
		return convertTime(sv, dst)
	}

	switch dst.Kind() {
	case reflect.Interface:
		if dst.Type().NumMethod() == 0 {
			dst.Set(sv)
			return nil
		}
	case reflect.Struct:
		return convertStruct(sv, dst)
	case reflect.Map:
		return convertMap(sv, dst)
	case reflect.Slice, reflect.Array:
		return convertSlice(sv, dst)
	case reflect.String:
		switch sv.Kind() {
		case reflect.String:
			dst.SetString(sv.String())
		case reflect.Bool, reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
			reflect.Float32, reflect.Float64:
			dst.SetString(fmt.Sprint(sv.Interface()))
		default:
			return errors.Errorf("cannot convert %v to %v", sv.Type(), dst.Type())
		}
		return nil
	case reflect.Bool:
		switch sv.Kind() {
		case reflect.Bool:
			dst.SetBool(sv.Bool())
			return nil
		case reflect.String:
			b, err := strconv.ParseBool(sv.String())
			if err != nil {
				return errors.Wrapf(err, "invalid bool %q", sv.String())
			}
			dst.SetBool(b)
			return nil
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return convertNumber(sv, dst)
	}

	if sv.Type().AssignableTo(dst.Type()) {
		dst.Set(sv)
		return nil
	}
	return errors.Errorf("cannot convert %v to %v", sv.Type(), dst.Type())
}

func convertNumber(sv, dst reflect.Value) error {
	if sv.Kind() == reflect.String {
		return setNumber(dst, sv.String())
	}
	switch sv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
	default:
		return errors.Errorf("cannot convert %v to %v", sv.Type(), dst.Type())
	}

	switch dst.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if (sv.CanInt() && sv.Int() < 0) || (sv.CanFloat() && sv.Float() < 0) {
			return errors.Errorf("negative value %v for %v", sv.Interface(), dst.Type())
		}
	}
	converted := sv.Convert(dst.Type())
	// 回转比较用于发现溢出与小数截断
	if !converted.Convert(sv.Type()).Equal(sv) {
		return errors.Errorf("value %v overflows %v", sv.Interface(), dst.Type())
	}
	dst.Set(converted)
	return nil
}

// setNumber 解析字符串为数值，0x、0o 等前缀按 Go 语法处理
func setNumber(dst reflect.Value, s string) error {
	s = strings.TrimSpace(s)
	switch dst.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, err := strconv.ParseInt(s, 0, dst.Type().Bits())
		if err != nil {
			return errors.Wrapf(err, "invalid int %q", s)
		}
		dst.SetInt(i)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(s, 0, dst.Type().Bits())
		if err != nil {
			return errors.Wrapf(err, "invalid uint %q", s)
		}
		dst.SetUint(u)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(s, dst.Type().Bits())
		if err != nil {
			return errors.Wrapf(err, "invalid float %q", s)
		}
		dst.SetFloat(f)
	default:
		return errors.Errorf("%v is not a number type", dst.Type())
	}
	return nil
}

// convertDuration 字符串按 time.ParseDuration 解析，整数视为纳秒，浮点数视为秒
func convertDuration(sv, dst reflect.Value) error {
	switch sv.Kind() {
	case reflect.String:
		d, err := parseDuration(sv.String())
		if err != nil {
			return err
		}
		dst.SetInt(int64(d))
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		dst.SetInt(sv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		dst.SetInt(int64(sv.Uint()))
	case reflect.Float32, reflect.Float64:
		dst.SetInt(int64(sv.Float() * float64(time.Second)))
	default:
		return errors.Errorf("cannot convert %v to time.Duration", sv.Type())
	}
	return nil
}

// convertTime 字符串按常见格式解析，数值视为 Unix 秒
func convertTime(sv, dst reflect.Value) error {
	switch sv.Kind() {
	case reflect.String:
		t, err := parseTime(sv.String())
		if err != nil {
			return err
		}
		dst.Set(reflect.ValueOf(t))
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		dst.Set(reflect.ValueOf(time.Unix(sv.Int(), 0)))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		dst.Set(reflect.ValueOf(time.Unix(int64(sv.Uint()), 0)))
	case reflect.Float32, reflect.Float64:
		sec := sv.Float()
		dst.Set(reflect.ValueOf(time.Unix(int64(sec), int64((sec-float64(int64(sec)))*1e9))))
	case reflect.Struct:
		if sv.Type() != timeType {
			return errors.Errorf("cannot convert %v to time.Time", sv.Type())
		}
		// toml 的日期时间字面量直接解码为 time.Time
		dst.Set(sv)
	default:
		return errors.Errorf("cannot convert %v to time.Time", sv.Type())
	}
	return nil
}

func convertMap(sv, dst reflect.Value) error {
	if sv.Kind() != reflect.Map {
		return errors.Errorf("cannot convert %v to %v", sv.Type(), dst.Type())
	}
	if dst.IsNil() {
		dst.Set(reflect.MakeMap(dst.Type()))
	}
	keyType := dst.Type().Key()
	for _, k := range sv.MapKeys() {
		key := reflect.New(keyType).Elem()
		if err := convertValue(k.Interface(), key); err != nil {
			return errors.WithMessagef(err, "map key %v", k.Interface())
		}
		val := reflect.New(dst.Type().Elem()).Elem()
		if err := convertValue(sv.MapIndex(k).Interface(), val); err != nil {
			return errors.WithMessagef(err, "map value %v", k.Interface())
		}
		dst.SetMapIndex(key, val)
	}
	return nil
}

func convertSlice(sv, dst reflect.Value) error {
	if sv.Kind() == reflect.String && dst.Type().Elem().Kind() != reflect.Uint8 {
		parts := strings.Split(sv.String(), ",")
		items := make([]any, len(parts))
		for i, p := range parts {
			items[i] = strings.TrimSpace(p)
		}
		sv = reflect.ValueOf(items)
	}
	if sv.Kind() == reflect.String {
		sv = reflect.ValueOf([]byte(sv.String()))
	}
	if sv.Kind() != reflect.Slice && sv.Kind() != reflect.Array {
		return errors.Errorf("cannot convert %v to %v", sv.Type(), dst.Type())
	}

	n := sv.Len()
	if dst.Kind() == reflect.Array {
		if n > dst.Len() {
			return errors.Errorf("%d items do not fit %v", n, dst.Type())
		}
	} else {
		dst.Set(reflect.MakeSlice(dst.Type(), n, n))
	}
	for i := 0; i < n; i++ {
		if err := convertValue(sv.Index(i).Interface(), dst.Index(i)); err != nil {
			return errors.WithMessagef(err, "index %d", i)
		}
	}
	return nil
}

func convertStruct(sv, dst reflect.Value) error {
	if sv.Kind() != reflect.Map {
		return errors.Errorf("cannot convert %v to %v", sv.Type(), dst.Type())
	}

	keys := make(map[string]reflect.Value, sv.Len())
	for _, k := range sv.MapKeys() {
		keys[strings.ToLower(fmt.Sprint(k.Interface()))] = k
	}

	rt := dst.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		name := fieldName(field)
		if name == "-" {
			continue
		}
		k, ok := keys[strings.ToLower(name)]
		if !ok {
			// 匿名嵌入的结构体共用同一层的键
			if field.Anonymous && indirectType(field.Type).Kind() == reflect.Struct {
				if err := convertValue(sv.Interface(), dst.Field(i)); err != nil {
					return err
				}
			}
			continue
		}
		if err := convertValue(sv.MapIndex(k).Interface(), dst.Field(i)); err != nil {
			return errors.WithMessagef(err, "field %s", name)
		}
	}
	return nil
}

func fieldName(field reflect.StructField) string {
	for _, tag := range []string{"cfg", "json", "yaml"} {
		if v, ok := field.Tag.Lookup(tag); ok {
			if name := strings.Split(v, ",")[0]; name != "" {
				return name
			}
		}
	}
	return field.Name
}

func indirectType(rt reflect.Type) reflect.Type {
	for rt.Kind() == reflect.Ptr {
		rt = rt.Elem()
	}
	return rt
}

func parseDuration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err == nil {
		return d, nil
	}
	if n, numErr := strconv.ParseInt(s, 10, 64); numErr == nil {
		return time.Duration(n), nil
	}
	return 0, errors.Wrapf(err, "invalid duration %q", s)
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"15:04:05",
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(sec, 0), nil
	}
	return time.Time{}, errors.Errorf("invalid time %q", s)
}
