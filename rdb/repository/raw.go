package repository

import (
	"context"
	"reflect"
	"strings"

	"github.com/hatlonely/rdbx/rdb"
	"github.com/hatlonely/rdbx/rdb/database"
	"github.com/hatlonely/rdbx/rdb/mapping"
	"github.com/hatlonely/rdbx/rdb/param"
	"github.com/hatlonely/rdbx/rdb/query"
	"github.com/hatlonely/rdbx/rdb/statement"
	"github.com/hatlonely/rdbx/rdb/where"
	"github.com/pkg/errors"
)

// NonQueryResultSet 原样执行的语句产生结果集时 ExecuteNonQuery 的返回值
const NonQueryResultSet int64 = -1

// Record 原样查询结果中的一行
type Record struct {
	columns []string
	values  map[string]any
}

// Columns 结果集中的列，保持查询顺序
func (r *Record) Columns() []string {
	return r.columns
}

func (r *Record) Fields() map[string]any {
	return r.values
}

func (r *Record) Get(column string) (any, bool) {
	v, ok := r.values[column]
	return v, ok
}

// Scan 按列名或 Go 字段名写入结构体，dest 必须是结构体指针
func (r *Record) Scan(dest any) error {
	rv := reflect.ValueOf(dest)
	if rv.Kind() != reflect.Ptr || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return errors.Wrapf(rdb.ErrInvalidEntity, "scan needs a struct pointer, got %T", dest)
	}
	model, err := mapping.Default().Model(rv.Type())
	if err != nil {
		return err
	}
	for _, column := range r.columns {
		if f, ok := model.Field(column); ok {
			if err := f.Set(rv.Elem(), r.values[column]); err != nil {
				return err
			}
		}
	}
	return nil
}

// ExecuteQuery 原样执行查询并映射为实体，params 的形状见 rawBindings
func (r *Repository[T]) ExecuteQuery(ctx context.Context, text string, params any) ([]*T, error) {
	d, err := r.Descriptor(ctx)
	if err != nil {
		return nil, err
	}
	c, err := r.compileRaw(text, params)
	if err != nil {
		return nil, err
	}
	return r.queryEntities(ctx, d, c)
}

func (r *Repository[T]) ExecuteQueryRecords(ctx context.Context, text string, params any) ([]*Record, error) {
	c, err := r.compileRaw(text, params)
	if err != nil {
		return nil, err
	}
	s, release, err := r.session(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	rows, err := s.Query(ctx, c)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	columns, err := rows.Columns()
	if err != nil {
		return nil, database.Classify(err, text)
	}

	var records []*Record
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, database.Classify(err, text)
		}
		record := &Record{columns: columns, values: make(map[string]any, len(columns))}
		for i, column := range columns {
			record.values[column] = values[i]
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, database.Classify(err, text)
	}
	return records, nil
}

// ExecuteNonQuery 原样执行语句并返回影响行数
// 语句以 SELECT、WITH 等产生结果集的关键字开头时，执行后丢弃结果并返回 NonQueryResultSet
// 带 RETURNING 的 INSERT、UPDATE、DELETE 同样按结果集处理；sqlserver 的 OUTPUT 子句不识别，需要结果时用 ExecuteQueryRecords
func (r *Repository[T]) ExecuteNonQuery(ctx context.Context, text string, params any) (int64, error) {
	c, err := r.compileRaw(text, params)
	if err != nil {
		return 0, err
	}
	s, release, err := r.session(ctx)
	if err != nil {
		return 0, err
	}
	defer release()

	if !returnsRows(text) {
		return s.Exec(ctx, c)
	}
	rows, err := s.Query(ctx, c)
	if err != nil {
		return 0, err
	}
	defer rows.Close()
	for rows.Next() {
	}
	if err := rows.Err(); err != nil {
		return 0, database.Classify(err, text)
	}
	return NonQueryResultSet, nil
}

// ExecuteScalar 返回第一行第一列，没有结果时返回 nil
func (r *Repository[T]) ExecuteScalar(ctx context.Context, text string, params any) (any, error) {
	c, err := r.compileRaw(text, params)
	if err != nil {
		return nil, err
	}
	s, release, err := r.session(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	return s.Scalar(ctx, c)
}

func (r *Repository[T]) compileRaw(text string, params any) (*statement.Compiled, error) {
	bindings, err := rawBindings(params)
	if err != nil {
		return nil, err
	}
	return r.compiler.Compile(&statement.Request{Kind: statement.Raw, Text: text, Params: bindings})
}

// rawBindings 原样语句的命名参数
//   - nil：没有参数
//   - []statement.Binding：原样使用
//   - *param.Bag、map、结构体：按参数包顺序
//   - QueryField、[]*QueryField、QueryGroup：每个条件的字段名绑定它唯一的值
func rawBindings(params any) ([]statement.Binding, error) {
	switch v := params.(type) {
	case nil:
		return nil, nil
	case []statement.Binding:
		return v, nil
	case *query.QueryField, query.QueryField, []*query.QueryField, []query.QueryField, *query.QueryGroup, query.QueryGroup:
		g, err := where.Normalize(v, nil)
		if err != nil {
			return nil, err
		}
		var bindings []statement.Binding
		for _, f := range g.Fields() {
			if len(f.Values) != 1 {
				return nil, rdb.InvalidParameterShape("parameter %s has %d values", f.Field.Name, len(f.Values))
			}
			bindings = append(bindings, statement.Binding{Name: f.Field.Name, Value: f.Values[0]})
		}
		return bindings, nil
	}

	if !param.IsBagShape(params) {
		return nil, rdb.InvalidParameterShape("unsupported parameter shape %T", params)
	}
	bag, err := param.From(params)
	if err != nil {
		return nil, err
	}
	bindings := make([]statement.Binding, 0, bag.Len())
	for _, p := range bag.Params() {
		bindings = append(bindings, statement.Binding{Name: p.Name, Value: p.Value})
	}
	return bindings, nil
}

// returningKeywords 带 RETURNING 子句时产生结果集的语句
var returningKeywords = map[string]bool{
	"INSERT":  true,
	"UPDATE":  true,
	"DELETE":  true,
	"REPLACE": true,
}

var resultSetKeywords = map[string]bool{
	"SELECT":   true,
	"WITH":     true,
	"VALUES":   true,
	"PRAGMA":   true,
	"SHOW":     true,
	"EXPLAIN":  true,
	"DESCRIBE": true,
}

// returnsRows 跳过前导空白、注释和括号后判断第一个关键字
func returnsRows(text string) bool {
	for {
		text = strings.TrimLeft(text, " \t\r\n(")
		switch {
		case strings.HasPrefix(text, "--"):
			i := strings.IndexByte(text, '\n')
			if i < 0 {
				return false
			}
			text = text[i+1:]
		case strings.HasPrefix(text, "/*"):
			i := strings.Index(text, "*/")
			if i < 0 {
				return false
			}
			text = text[i+2:]
		default:
			end := strings.IndexFunc(text, func(r rune) bool {
				return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z')
			})
			if end < 0 {
				end = len(text)
			}
			keyword := strings.ToUpper(text[:end])
			if returningKeywords[keyword] {
				return hasWord(text[end:], "RETURNING")
			}
			return resultSetKeywords[keyword]
		}
	}
}

// hasWord 在字符串字面量、带引号的标识符和注释之外查找关键字，不区分大小写
func hasWord(text string, word string) bool {
	for i := 0; i < len(text); {
		c := text[i]
		switch {
		case c == '\'' || c == '"' || c == '`' || c == '[':
			closing := c
			if c == '[' {
				closing = ']'
			}
			j := strings.IndexByte(text[i+1:], closing)
			if j < 0 {
				return false
			}
			i += j + 2
		case strings.HasPrefix(text[i:], "--"):
			j := strings.IndexByte(text[i:], '\n')
			if j < 0 {
				return false
			}
			i += j + 1
		case strings.HasPrefix(text[i:], "/*"):
			j := strings.Index(text[i:], "*/")
			if j < 0 {
				return false
			}
			i += j + 2
		case isIdentByte(c):
			j := i
			for j < len(text) && isIdentByte(text[j]) {
				j++
			}
			if strings.EqualFold(text[i:j], word) {
				return true
			}
			i = j
		default:
			i++
		}
	}
	return false
}

func isIdentByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_'
}
