package mapping

import (
	"database/sql"
	"database/sql/driver"
	"reflect"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

var scannerType = reflect.TypeOf((*sql.Scanner)(nil)).Elem()

func makeGetter(index []int) func(v reflect.Value) any {
	if len(index) == 1 {
		i := index[0]
		return func(v reflect.Value) any {
			return indirectValue(v.Field(i))
		}
	}
	return func(v reflect.Value) any {
		return indirectValue(v.FieldByIndex(index))
	}
}

func indirectValue(fv reflect.Value) any {
	if fv.Kind() == reflect.Ptr {
		if fv.IsNil() {
			return nil
		}
		if fv.Type().Implements(valuerType) {
			return fv.Interface()
		}
		fv = fv.Elem()
	}
	return fv.Interface()
}

var valuerType = reflect.TypeOf((*driver.Valuer)(nil)).Elem()

func makeSetter(index []int, t reflect.Type) func(v reflect.Value, value any) error {
	// sql.Scanner 交给字段自己处理
	if reflect.PointerTo(t).Implements(scannerType) {
		return func(v reflect.Value, value any) error {
			return v.FieldByIndex(index).Addr().Interface().(sql.Scanner).Scan(value)
		}
	}
	return func(v reflect.Value, value any) error {
		return setFieldValue(v.FieldByIndex(index), value)
	}
}

// setFieldValue 把驱动返回的值写入字段
func setFieldValue(fieldValue reflect.Value, value any) error {
	if value == nil {
		fieldValue.Set(reflect.Zero(fieldValue.Type()))
		return nil
	}

	fieldType := fieldValue.Type()
	if fieldType.Kind() == reflect.Ptr {
		elem := reflect.New(fieldType.Elem())
		if reflect.PointerTo(fieldType.Elem()).Implements(scannerType) {
			if err := elem.Interface().(sql.Scanner).Scan(value); err != nil {
				return err
			}
		} else if err := setFieldValue(elem.Elem(), value); err != nil {
			return err
		}
		fieldValue.Set(elem)
		return nil
	}

	// 文本协议下的数值以 []byte 返回
	if b, ok := value.([]byte); ok && fieldType != bytesType {
		value = string(b)
	}

	switch fieldType.Kind() {
	case reflect.Bool:
		switch v := value.(type) {
		case bool:
			fieldValue.SetBool(v)
			return nil
		case int64:
			fieldValue.SetBool(v != 0)
			return nil
		case string:
			b, err := strconv.ParseBool(v)
			if err != nil {
				return errors.Wrapf(err, "parse bool %q", v)
			}
			fieldValue.SetBool(b)
			return nil
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if s, ok := value.(string); ok {
			i, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return errors.Wrapf(err, "parse int %q", s)
			}
			value = i
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if s, ok := value.(string); ok {
			u, err := strconv.ParseUint(s, 10, 64)
			if err != nil {
				return errors.Wrapf(err, "parse uint %q", s)
			}
			value = u
		}
	case reflect.Float32, reflect.Float64:
		if s, ok := value.(string); ok {
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return errors.Wrapf(err, "parse float %q", s)
			}
			value = f
		}
	}

	if fieldType == timeType {
		switch v := value.(type) {
		case time.Time:
			fieldValue.Set(reflect.ValueOf(v))
			return nil
		case string:
			t, err := parseTime(v)
			if err != nil {
				return err
			}
			fieldValue.Set(reflect.ValueOf(t))
			return nil
		}
	}

	valueType := reflect.TypeOf(value)
	if valueType.AssignableTo(fieldType) {
		fieldValue.Set(reflect.ValueOf(value))
		return nil
	}
	if isNumber(valueType.Kind()) && isNumber(fieldType.Kind()) {
		fieldValue.Set(reflect.ValueOf(value).Convert(fieldType))
		return nil
	}
	if valueType.Kind() == reflect.String && fieldType.Kind() == reflect.String {
		fieldValue.SetString(reflect.ValueOf(value).String())
		return nil
	}
	if valueType.Kind() == reflect.String && fieldType == bytesType {
		fieldValue.SetBytes([]byte(value.(string)))
		return nil
	}
	return errors.Errorf("cannot convert %v to %v", valueType, fieldType)
}

var timeFormats = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	time.RFC3339Nano,
}

func parseTime(s string) (time.Time, error) {
	var lastErr error
	for _, format := range timeFormats {
		t, err := time.Parse(format, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, errors.Wrapf(lastErr, "parse time %q", s)
}

func isNumber(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
