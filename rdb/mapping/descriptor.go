package mapping

import (
	"reflect"
	"strings"

	"github.com/hatlonely/rdbx/rdb"
	"github.com/hatlonely/rdbx/rdb/schema"
	"github.com/pkg/errors"
)

// Column 实体字段与表列的交集中的一列
type Column struct {
	Name       string // 表中的列名
	Field      *Field
	DBType     string
	Nullable   bool
	PrimaryKey bool
	Identity   bool
}

// Descriptor 实体与表的映射关系，构建后只读，可以在 goroutine 间共享
type Descriptor struct {
	Table string
	Type  reflect.Type
	Model *Model

	columns     []*Column
	byName      map[string]*Column
	primaryKeys []*Column
	identity    *Column
}

// Build 根据实体模型和表的实际列构建映射
// tableColumns 为空时认为表结构未知，使用实体的全部字段
func Build(model *Model, table string, tableColumns []schema.Column) (*Descriptor, error) {
	if model == nil {
		return nil, errors.Wrap(rdb.ErrInvalidEntity, "model is nil")
	}
	if table == "" {
		table = model.Table
	}

	d := &Descriptor{
		Table:  table,
		Type:   model.Type,
		Model:  model,
		byName: map[string]*Column{},
	}

	if len(tableColumns) == 0 {
		for _, f := range model.Fields {
			d.columns = append(d.columns, &Column{
				Name:       f.Name,
				Field:      f,
				Nullable:   !f.Required && !f.PrimaryKey,
				PrimaryKey: f.PrimaryKey,
				Identity:   f.Identity,
			})
		}
	} else {
		for _, tc := range tableColumns {
			f, ok := model.byName[strings.ToLower(tc.Name)]
			if !ok {
				continue
			}
			d.columns = append(d.columns, &Column{
				Name:       tc.Name,
				Field:      f,
				DBType:     tc.DBType,
				Nullable:   tc.Nullable,
				PrimaryKey: tc.PrimaryKey,
				Identity:   tc.Identity || f.Identity,
			})
		}
		if len(d.columns) == 0 {
			return nil, errors.Wrapf(rdb.ErrInvalidEntity, "%s has no field mapped to table %s", model.Type, table)
		}
	}

	if err := d.resolveKeys(); err != nil {
		return nil, err
	}

	for _, c := range d.columns {
		d.byName[strings.ToLower(c.Name)] = c
	}
	for _, c := range d.columns {
		if key := strings.ToLower(c.Field.GoName); d.byName[key] == nil {
			d.byName[key] = c
		}
	}
	return d, nil
}

// resolveKeys 确定主键和自增列
// 主键优先取显式标注，其次表的单列主键，最后是唯一的自增列
func (d *Descriptor) resolveKeys() error {
	for _, c := range d.columns {
		if c.Identity {
			if d.identity != nil {
				return errors.Wrapf(rdb.ErrInvalidEntity, "%s has more than one identity column: %s, %s", d.Table, d.identity.Name, c.Name)
			}
			d.identity = c
		}
	}

	var tagged, table []*Column
	for _, c := range d.columns {
		if c.Field.PrimaryKey {
			tagged = append(tagged, c)
		}
		if c.PrimaryKey {
			table = append(table, c)
		}
	}

	switch {
	case len(tagged) > 0:
		d.primaryKeys = tagged
	case len(table) > 0:
		d.primaryKeys = table
	case d.identity != nil:
		d.primaryKeys = []*Column{d.identity}
	}

	for _, c := range d.columns {
		c.PrimaryKey = false
	}
	for _, c := range d.primaryKeys {
		c.PrimaryKey = true
	}
	return nil
}

func (d *Descriptor) Columns() []*Column {
	return d.columns
}

// Column 按列名或 Go 字段名查找，大小写不敏感
func (d *Descriptor) Column(name string) (*Column, bool) {
	c, ok := d.byName[strings.ToLower(name)]
	return c, ok
}

// PrimaryKey 单列主键，没有主键或为联合主键时返回 nil
func (d *Descriptor) PrimaryKey() *Column {
	if len(d.primaryKeys) != 1 {
		return nil
	}
	return d.primaryKeys[0]
}

func (d *Descriptor) PrimaryKeys() []*Column {
	return d.primaryKeys
}

func (d *Descriptor) Identity() *Column {
	return d.identity
}

func (d *Descriptor) Names() []string {
	names := make([]string, 0, len(d.columns))
	for _, c := range d.columns {
		names = append(names, c.Name)
	}
	return names
}

// New 创建一个新的实体，返回指针
func (d *Descriptor) New() reflect.Value {
	return reflect.New(d.Type)
}

// Value 读取实体某一列的值
func (d *Descriptor) Value(entity any, column *Column) (any, error) {
	rv, err := d.structValue(entity)
	if err != nil {
		return nil, err
	}
	return column.Field.Get(rv), nil
}

// Values 按列顺序读取实体的值
func (d *Descriptor) Values(entity any) ([]any, error) {
	rv, err := d.structValue(entity)
	if err != nil {
		return nil, err
	}
	values := make([]any, len(d.columns))
	for i, c := range d.columns {
		values[i] = c.Field.Get(rv)
	}
	return values, nil
}

// Assign 把值写入实体的某一列，entity 必须是指针
func (d *Descriptor) Assign(entity any, column string, value any) error {
	c, ok := d.Column(column)
	if !ok {
		return rdb.UnknownField(column, d.Table)
	}
	rv := reflect.ValueOf(entity)
	if rv.Kind() != reflect.Ptr || rv.IsNil() || rv.Elem().Type() != d.Type {
		return errors.Wrapf(rdb.ErrInvalidEntity, "assign needs *%s, got %T", d.Type, entity)
	}
	return c.Field.Set(rv.Elem(), value)
}

// Fill 把一行结果写入实体，结果中没有映射的列被忽略
func (d *Descriptor) Fill(dest reflect.Value, columns []string, values []any) error {
	if dest.Kind() == reflect.Ptr {
		dest = dest.Elem()
	}
	for i, name := range columns {
		c, ok := d.Column(name)
		if !ok {
			if f, ok := d.Model.Field(name); ok {
				if err := f.Set(dest, values[i]); err != nil {
					return err
				}
			}
			continue
		}
		if err := c.Field.Set(dest, values[i]); err != nil {
			return err
		}
	}
	return nil
}

func (d *Descriptor) structValue(entity any) (reflect.Value, error) {
	rv := reflect.ValueOf(entity)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return reflect.Value{}, errors.Wrapf(rdb.ErrInvalidEntity, "nil %T", entity)
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() || rv.Type() != d.Type {
		return reflect.Value{}, errors.Wrapf(rdb.ErrInvalidEntity, "expected %s, got %T", d.Type, entity)
	}
	return rv, nil
}
