package cfg

import (
	"reflect"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// SetDefaults 按 def tag 为零值字段设置默认值
//
// 嵌套结构体、非 nil 的结构体指针以及结构体（指针）切片会递归处理，nil 指针保持为 nil。
func SetDefaults(object any) error {
	if object == nil {
		return errors.New("object cannot be nil")
	}
	rv := reflect.ValueOf(object)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return errors.New("object must be a non-nil pointer")
	}
	return setDefaults(rv.Elem())
}

func setDefaults(rv reflect.Value) error {
	switch rv.Kind() {
	case reflect.Ptr:
		if rv.IsNil() {
			return nil
		}
		return setDefaults(rv.Elem())
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if err := setDefaults(rv.Index(i)); err != nil {
				return errors.WithMessagef(err, "index %d", i)
			}
		}
		return nil
	case reflect.Struct:
	default:
		return nil
	}
	if rv.Type() == timeType {
		return nil
	}

	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		fv := rv.Field(i)
		if !fv.CanSet() {
			continue
		}

		def, ok := field.Tag.Lookup("def")
		if ok && fv.IsZero() {
			target := fv
			if target.Kind() == reflect.Ptr {
				target.Set(reflect.New(target.Type().Elem()))
				target = target.Elem()
			}
			if err := setDefaultValue(target, def); err != nil {
				return errors.WithMessagef(err, "field %s", field.Name)
			}
			continue
		}

		if err := setDefaults(fv); err != nil {
			return errors.WithMessagef(err, "field %s", field.Name)
		}
	}
	return nil
}

func setDefaultValue(rv reflect.Value, def string) error {
	switch rv.Type() {
	case durationType:
		d, err := parseDuration(def)
		if err != nil {
			return err
		}
		rv.SetInt(int64(d))
		return nil
	case timeType:
		t, err := parseTime(def)
		if err != nil {
			return err
		}
		rv.Set(reflect.ValueOf(t))
		return nil
	}

	switch rv.Kind() {
	case reflect.String:
		rv.SetString(def)
		return nil
	case reflect.Bool:
		b, err := strconv.ParseBool(def)
		if err != nil {
			return errors.Wrapf(err, "invalid bool %q", def)
		}
		rv.SetBool(b)
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return setNumber(rv, def)
	case reflect.Slice:
		// 逗号分隔
		parts := strings.Split(def, ",")
		slice := reflect.MakeSlice(rv.Type(), len(parts), len(parts))
		for i, part := range parts {
			if err := setDefaultValue(slice.Index(i), strings.TrimSpace(part)); err != nil {
				return errors.WithMessagef(err, "index %d", i)
			}
		}
		rv.Set(slice)
		return nil
	}
	return errors.Errorf("unsupported default value type %v", rv.Type())
}
