package mapping

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/hatlonely/rdbx/rdb"
	"github.com/pkg/errors"
)

// FieldType 字段类型，建表时映射为各方言的列类型
type FieldType string

const (
	FieldTypeString FieldType = "string"
	FieldTypeInt    FieldType = "int"
	FieldTypeFloat  FieldType = "float"
	FieldTypeBool   FieldType = "bool"
	FieldTypeDate   FieldType = "date"
	FieldTypeBytes  FieldType = "bytes"
	FieldTypeJSON   FieldType = "json"
)

// Index 索引定义
type Index struct {
	Name    string
	Columns []string
	Unique  bool
}

// Field 实体字段，读写函数在解析时生成，逐行处理时不再查找字段
type Field struct {
	Name       string // 列名
	GoName     string
	Type       reflect.Type
	FieldType  FieldType
	PrimaryKey bool
	Identity   bool
	Required   bool
	Size       int
	Default    any

	index []int
	get   func(v reflect.Value) any
	set   func(v reflect.Value, value any) error
}

// Get 读取字段值，nil 指针返回 nil，非 nil 指针返回指向的值
func (f *Field) Get(v reflect.Value) any {
	return f.get(v)
}

// Set 写入字段值，v 必须可寻址
func (f *Field) Set(v reflect.Value, value any) error {
	if err := f.set(v, value); err != nil {
		return errors.WithMessagef(err, "set field %s", f.GoName)
	}
	return nil
}

// Model 实体结构的解析结果，与具体表无关
type Model struct {
	Type    reflect.Type
	Table   string
	Fields  []*Field
	Indexes []Index

	byName map[string]*Field
}

// Field 按列名或 Go 字段名查找字段，大小写不敏感
func (m *Model) Field(name string) (*Field, bool) {
	f, ok := m.byName[strings.ToLower(name)]
	return f, ok
}

// PrimaryKeys 显式标注为主键的字段
func (m *Model) PrimaryKeys() []*Field {
	var fields []*Field
	for _, f := range m.Fields {
		if f.PrimaryKey {
			fields = append(fields, f)
		}
	}
	return fields
}

type tableNamer interface {
	TableName() string
}

// ParseModel 解析实体结构
// 支持的 tag 格式：
// - `rdb:"column_name,type=string,size=255,default=x,required,primary,identity,index,unique"`
// - `table:"table_name"` 用于指定表名，通常写在 `_ struct{}` 字段上
func ParseModel(t reflect.Type) (*Model, error) {
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil, errors.Wrapf(rdb.ErrInvalidEntity, "expected struct, got %v", t)
	}

	model := &Model{
		Type:   t,
		Table:  tableName(t),
		byName: map[string]*Field{},
	}

	indexes := map[string]*Index{}
	var indexOrder []string
	if err := parseFields(model, t, nil, indexes, &indexOrder); err != nil {
		return nil, err
	}
	if len(model.Fields) == 0 {
		return nil, errors.Wrapf(rdb.ErrInvalidEntity, "%s has no mapped field", t)
	}
	for _, name := range indexOrder {
		model.Indexes = append(model.Indexes, *indexes[name])
	}

	var identities int
	for _, f := range model.Fields {
		if f.Identity {
			identities++
		}
	}
	if identities > 1 {
		return nil, errors.Wrapf(rdb.ErrInvalidEntity, "%s declares %d identity fields", t, identities)
	}
	return model, nil
}

func tableName(t reflect.Type) string {
	for i := 0; i < t.NumField(); i++ {
		if tag := t.Field(i).Tag.Get("table"); tag != "" {
			return tag
		}
	}
	if namer, ok := reflect.New(t).Interface().(tableNamer); ok {
		if name := namer.TableName(); name != "" {
			return name
		}
	}
	return strings.ToLower(t.Name())
}

func parseFields(model *Model, t reflect.Type, parent []int, indexes map[string]*Index, order *[]string) error {
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		tag := sf.Tag.Get("rdb")
		if tag == "-" {
			continue
		}
		index := append(append([]int{}, parent...), i)

		// 匿名结构体字段展开
		if sf.Anonymous && sf.Type.Kind() == reflect.Struct && tag == "" && sf.Type != timeType {
			if err := parseFields(model, sf.Type, index, indexes, order); err != nil {
				return err
			}
			continue
		}
		if !sf.IsExported() {
			continue
		}

		f, fieldIndexes, err := parseFieldTag(sf, tag)
		if err != nil {
			return errors.WithMessagef(err, "parse field %s", sf.Name)
		}
		f.index = index
		f.get = makeGetter(index)
		f.set = makeSetter(index, sf.Type)

		key := strings.ToLower(f.Name)
		if _, ok := model.byName[key]; ok {
			return errors.Wrapf(rdb.ErrInvalidEntity, "duplicate column %s", f.Name)
		}
		model.byName[key] = f
		if goKey := strings.ToLower(f.GoName); goKey != key {
			if _, ok := model.byName[goKey]; !ok {
				model.byName[goKey] = f
			}
		}
		model.Fields = append(model.Fields, f)

		for _, idx := range fieldIndexes {
			if existing, ok := indexes[idx.Name]; ok {
				existing.Columns = append(existing.Columns, f.Name)
				continue
			}
			idx.Columns = []string{f.Name}
			indexes[idx.Name] = &idx
			*order = append(*order, idx.Name)
		}
	}
	return nil
}

func parseFieldTag(sf reflect.StructField, tag string) (*Field, []Index, error) {
	f := &Field{
		Name:      sf.Name,
		GoName:    sf.Name,
		Type:      sf.Type,
		FieldType: inferFieldType(sf.Type),
	}
	if tag == "" {
		return f, nil, nil
	}

	var indexes []Index
	parts := strings.Split(tag, ",")
	if parts[0] != "" && !strings.Contains(parts[0], "=") {
		f.Name = strings.TrimSpace(parts[0])
		parts = parts[1:]
	}

	var defaultValue *string
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if key, value, ok := strings.Cut(part, "="); ok {
			key, value = strings.TrimSpace(key), strings.TrimSpace(value)
			switch key {
			case "type":
				f.FieldType = FieldType(value)
			case "size":
				size, err := strconv.Atoi(value)
				if err != nil {
					return nil, nil, errors.Wrapf(rdb.ErrInvalidEntity, "invalid size %q", value)
				}
				f.Size = size
			case "default":
				defaultValue = &value
			case "index":
				indexes = append(indexes, Index{Name: value})
			case "unique":
				indexes = append(indexes, Index{Name: value, Unique: true})
			default:
				return nil, nil, errors.Wrapf(rdb.ErrInvalidEntity, "unknown tag option %q", key)
			}
			continue
		}

		switch part {
		case "required", "not_null":
			f.Required = true
		case "primary", "pk":
			f.PrimaryKey = true
		case "identity", "auto_increment":
			f.Identity = true
		case "index":
			indexes = append(indexes, Index{Name: fmt.Sprintf("idx_%s", f.Name)})
		case "unique":
			indexes = append(indexes, Index{Name: fmt.Sprintf("uk_%s", f.Name), Unique: true})
		default:
			return nil, nil, errors.Wrapf(rdb.ErrInvalidEntity, "unknown tag option %q", part)
		}
	}
	if defaultValue != nil {
		f.Default = parseDefaultValue(*defaultValue, f.FieldType)
	}
	return f, indexes, nil
}

var (
	timeType  = reflect.TypeOf(time.Time{})
	bytesType = reflect.TypeOf([]byte(nil))
)

func inferFieldType(t reflect.Type) FieldType {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == timeType {
		return FieldTypeDate
	}
	if t == bytesType {
		return FieldTypeBytes
	}

	switch t.Kind() {
	case reflect.String:
		return FieldTypeString
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return FieldTypeInt
	case reflect.Float32, reflect.Float64:
		return FieldTypeFloat
	case reflect.Bool:
		return FieldTypeBool
	}
	return FieldTypeJSON
}

func parseDefaultValue(value string, fieldType FieldType) any {
	switch fieldType {
	case FieldTypeString:
		if len(value) >= 2 && (value[0] == '"' || value[0] == '\'') && value[len(value)-1] == value[0] {
			return value[1 : len(value)-1]
		}
		return value
	case FieldTypeInt:
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
		return int64(0)
	case FieldTypeFloat:
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
		return 0.0
	case FieldTypeBool:
		return value == "true" || value == "1"
	}
	return value
}
