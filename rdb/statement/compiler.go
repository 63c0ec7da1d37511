package statement

import (
	"database/sql/driver"
	"fmt"
	"reflect"
	"strings"

	"github.com/hatlonely/rdbx/rdb"
	"github.com/hatlonely/rdbx/rdb/mapping"
	"github.com/hatlonely/rdbx/rdb/param"
	"github.com/hatlonely/rdbx/rdb/query"
	"github.com/pkg/errors"
)

// Request 编译请求
type Request struct {
	Kind       Kind
	Descriptor *mapping.Descriptor

	Where      *query.QueryGroup
	Fields     []string   // 查询的列，为空时查询全部映射列
	Set        *param.Bag // 按条件更新时的列和值
	Rows       []any      // 批量写入的实体
	Qualifiers []string   // 批量更新、删除、合并时匹配已有行的列，默认主键

	OrderBy []query.OrderField
	Top     int
	Page    *query.Page
	Hints   []string

	Aggregate      AggregateFunc
	AggregateField string

	Text   string
	Params []Binding
}

// Compiler 把请求编译为中间语句，再交给方言渲染
// 编译过程没有副作用，相同的请求总是得到相同的文本和参数顺序
type Compiler struct {
	formatter Formatter
}

func NewCompiler(formatter Formatter) *Compiler {
	return &Compiler{formatter: formatter}
}

func (c *Compiler) Formatter() Formatter {
	return c.formatter
}

func (c *Compiler) Compile(req *Request) (*Compiled, error) {
	st, err := Build(req)
	if err != nil {
		return nil, err
	}
	compiled, err := c.formatter.Format(st)
	if err != nil {
		return nil, err
	}

	compiled.Kind = st.Kind
	compiled.Rows = len(st.Rows)
	switch st.Kind {
	case Select, Raw:
		compiled.Result = RowSet
	case Aggregate:
		compiled.Result = Scalar
	case Insert, Merge:
		compiled.Result = AffectedCount
		if st.Identity != "" {
			compiled.Result = GeneratedKeys
			compiled.KeyColumn = st.Identity
		}
	default:
		compiled.Result = AffectedCount
	}
	return compiled, nil
}

// Build 生成中间语句，所有字段、参数形状和参数类型的校验都在这里完成
func Build(req *Request) (*Statement, error) {
	if req == nil {
		return nil, rdb.InvalidParameterShape("nil request")
	}
	if req.Kind == Raw {
		return buildRaw(req)
	}

	d := req.Descriptor
	if d == nil {
		return nil, errors.Wrapf(rdb.ErrInvalidEntity, "%s without descriptor", req.Kind)
	}
	st := &Statement{Kind: req.Kind, Table: d.Table}
	if id := d.Identity(); id != nil {
		st.Identity = id.Name
	}

	var err error
	switch req.Kind {
	case Select:
		err = buildSelect(st, req)
	case Aggregate:
		err = buildAggregate(st, req)
	case Insert:
		err = buildInsert(st, req)
	case Update:
		if len(req.Rows) > 0 {
			err = buildRowsUpdate(st, req)
		} else {
			err = buildUpdate(st, req)
		}
	case Delete:
		if len(req.Rows) > 0 {
			err = buildRowsDelete(st, req)
		} else {
			st.Where, err = newBuilder(d, "").group(req.Where)
		}
	case Merge:
		err = buildMerge(st, req)
	default:
		err = rdb.InvalidParameterShape("unknown statement kind %d", int(req.Kind))
	}
	if err != nil {
		return nil, err
	}

	st.Hints = req.Hints
	return st, nil
}

func buildRaw(req *Request) (*Statement, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, rdb.InvalidParameterShape("empty raw statement")
	}
	st := &Statement{Kind: Raw, Text: req.Text}
	for _, b := range req.Params {
		if err := checkValue(b.Name, b.Value); err != nil {
			return nil, err
		}
		st.Params = append(st.Params, Param{Name: b.Name, Value: b.Value})
	}
	return st, nil
}

func buildSelect(st *Statement, req *Request) error {
	d := req.Descriptor
	if len(req.Fields) > 0 {
		for _, name := range req.Fields {
			c, err := resolve(d, query.NewField(name))
			if err != nil {
				return err
			}
			st.Columns = append(st.Columns, c.Name)
		}
	} else {
		st.Columns = d.Names()
	}

	var err error
	if st.Where, err = newBuilder(d, "").group(req.Where); err != nil {
		return err
	}
	for _, o := range req.OrderBy {
		c, err := resolve(d, o.Field)
		if err != nil {
			return err
		}
		st.OrderBy = append(st.OrderBy, OrderBy{Column: c.Name, Descending: o.Direction == query.Descending})
	}
	st.Limit, st.Offset, err = limitOffset(req.Top, req.Page)
	return err
}

// limitOffset Top 与分页同时指定时取较小的行数
func limitOffset(top int, page *query.Page) (int, int, error) {
	if top < 0 {
		return 0, 0, rdb.InvalidParameterShape("negative top %d", top)
	}
	limit, offset := top, 0
	if page != nil {
		if page.Index < 0 || page.Size < 0 {
			return 0, 0, rdb.InvalidParameterShape("invalid page %d/%d", page.Index, page.Size)
		}
		if page.Size > 0 {
			offset = page.Offset()
			if limit == 0 || page.Size < limit {
				limit = page.Size
			}
		}
	}
	return limit, offset, nil
}

func buildAggregate(st *Statement, req *Request) error {
	d := req.Descriptor
	st.Function = req.Aggregate
	if name := req.AggregateField; name != "" && name != "*" {
		c, err := resolve(d, query.NewField(name))
		if err != nil {
			return err
		}
		st.Column = c.Name
	} else if req.Aggregate != Count {
		return rdb.InvalidParameterShape("%s requires a field", req.Aggregate)
	}

	var err error
	st.Where, err = newBuilder(d, "").group(req.Where)
	return err
}

func buildInsert(st *Statement, req *Request) error {
	d := req.Descriptor
	if len(req.Rows) == 0 {
		return rdb.InvalidParameterShape("insert without rows")
	}
	for _, c := range d.Columns() {
		if !c.Identity {
			st.Columns = append(st.Columns, c.Name)
		}
	}

	for i, entity := range req.Rows {
		values, err := rowValues(d, entity, rowPrefix(i))
		if err != nil {
			return errors.WithMessagef(err, "row %d", i)
		}
		var insert []Assignment
		for _, a := range values {
			if a.Column != st.Identity {
				insert = append(insert, a)
			}
		}
		st.Rows = append(st.Rows, Row{Token: i, Values: values, Insert: insert})
	}
	return nil
}

func buildUpdate(st *Statement, req *Request) error {
	d := req.Descriptor
	seen := map[string]bool{}
	for _, p := range req.Set.Params() {
		c, err := resolve(d, query.NewField(p.Name))
		if err != nil {
			return err
		}
		if seen[c.Name] {
			return rdb.InvalidParameterShape("column %s assigned twice", c.Name)
		}
		seen[c.Name] = true
		if !param.IsScalar(p.Value) {
			return rdb.InvalidParameterShape("value of %s is %T, not scalar", p.Name, p.Value)
		}
		if err := checkValue(c.Name, p.Value); err != nil {
			return err
		}
		st.Set = append(st.Set, Assignment{Column: c.Name, Param: Param{Name: paramName(c.Name), Value: p.Value}})
	}
	if len(st.Set) == 0 {
		return rdb.InvalidParameterShape("update without columns")
	}

	var err error
	st.Where, err = newBuilder(d, "").group(req.Where)
	return err
}

func buildRowsUpdate(st *Statement, req *Request) error {
	d := req.Descriptor
	qualifiers, err := resolveQualifiers(d, req.Qualifiers)
	if err != nil {
		return err
	}
	st.Qualifiers = qualifiers
	st.SetColumns = setColumns(d, qualifiers)
	if len(st.SetColumns) == 0 {
		return rdb.InvalidParameterShape("no column to update on %s", d.Table)
	}

	for i, entity := range req.Rows {
		prefix := rowPrefix(i)
		values, err := rowValues(d, entity, prefix)
		if err != nil {
			return errors.WithMessagef(err, "row %d", i)
		}
		st.Rows = append(st.Rows, Row{
			Token:  i,
			Values: values,
			Set:    pick(values, st.SetColumns),
			Where:  qualifierPredicate(values, qualifiers, prefix),
		})
	}
	return nil
}

func buildRowsDelete(st *Statement, req *Request) error {
	d := req.Descriptor
	qualifiers, err := resolveQualifiers(d, req.Qualifiers)
	if err != nil {
		return err
	}
	st.Qualifiers = qualifiers

	for i, entity := range req.Rows {
		prefix := rowPrefix(i)
		values, err := rowValues(d, entity, prefix)
		if err != nil {
			return errors.WithMessagef(err, "row %d", i)
		}
		st.Rows = append(st.Rows, Row{
			Token:  i,
			Values: values,
			Where:  qualifierPredicate(values, qualifiers, prefix),
		})
	}
	return nil
}

func buildMerge(st *Statement, req *Request) error {
	d := req.Descriptor
	if len(req.Rows) == 0 {
		return rdb.InvalidParameterShape("merge without rows")
	}
	qualifiers, err := resolveQualifiers(d, req.Qualifiers)
	if err != nil {
		return err
	}
	st.Qualifiers = qualifiers
	st.Columns = d.Names()
	st.SetColumns = setColumns(d, qualifiers)

	identityQualified := st.Identity != "" && contains(qualifiers, st.Identity)
	for i, entity := range req.Rows {
		prefix := rowPrefix(i)
		values, err := rowValues(d, entity, prefix)
		if err != nil {
			return errors.WithMessagef(err, "row %d", i)
		}

		row := Row{Token: i, Values: values, Set: pick(values, st.SetColumns)}
		insertOnly := false
		if identityQualified {
			for _, a := range values {
				if a.Column == st.Identity && isZero(a.Param.Value) {
					insertOnly = true
				}
			}
		}
		for _, a := range values {
			// 限定列是自增列且有值时带上该值插入，保证重复执行时能匹配到同一行
			if a.Column == st.Identity && (insertOnly || !identityQualified) {
				continue
			}
			row.Insert = append(row.Insert, a)
		}
		row.InsertOnly = insertOnly
		if !insertOnly {
			row.Where = qualifierPredicate(values, qualifiers, prefix)
		}
		st.Rows = append(st.Rows, row)
	}
	return nil
}

func rowPrefix(i int) string {
	return fmt.Sprintf("r%d_", i)
}

// rowValues 按映射列顺序读取实体的值并校验类型
func rowValues(d *mapping.Descriptor, entity any, prefix string) ([]Assignment, error) {
	values, err := d.Values(entity)
	if err != nil {
		return nil, err
	}
	columns := d.Columns()
	assignments := make([]Assignment, len(columns))
	for i, c := range columns {
		name := prefix + paramName(c.Name)
		if err := checkValue(name, values[i]); err != nil {
			return nil, err
		}
		assignments[i] = Assignment{Column: c.Name, Param: Param{Name: name, Value: values[i]}}
	}
	return assignments, nil
}

func resolveQualifiers(d *mapping.Descriptor, names []string) ([]string, error) {
	var qualifiers []string
	if len(names) == 0 {
		for _, c := range d.PrimaryKeys() {
			qualifiers = append(qualifiers, c.Name)
		}
		if len(qualifiers) == 0 {
			return nil, rdb.MissingPrimaryKey(d.Table)
		}
		return qualifiers, nil
	}
	for _, name := range names {
		c, err := resolve(d, query.NewField(name))
		if err != nil {
			return nil, err
		}
		if !contains(qualifiers, c.Name) {
			qualifiers = append(qualifiers, c.Name)
		}
	}
	return qualifiers, nil
}

// setColumns 更新分支的列，排除自增列、限定列和主键
func setColumns(d *mapping.Descriptor, qualifiers []string) []string {
	var columns []string
	for _, c := range d.Columns() {
		if c.Identity || c.PrimaryKey || contains(qualifiers, c.Name) {
			continue
		}
		columns = append(columns, c.Name)
	}
	return columns
}

func qualifierPredicate(values []Assignment, qualifiers []string, prefix string) *Predicate {
	p := &Predicate{Group: true, Conjunction: query.And}
	for _, q := range qualifiers {
		for _, a := range values {
			if a.Column != q {
				continue
			}
			if query.IsNil(a.Param.Value) {
				p.Children = append(p.Children, &Predicate{Column: q, Operation: query.IsNull})
				continue
			}
			p.Children = append(p.Children, &Predicate{
				Column:    q,
				Operation: query.Equal,
				Params:    []Param{{Name: prefix + paramName(q) + "_0", Value: a.Param.Value}},
			})
		}
	}
	return p
}

func pick(values []Assignment, columns []string) []Assignment {
	var picked []Assignment
	for _, a := range values {
		if contains(columns, a.Column) {
			picked = append(picked, a)
		}
	}
	return picked
}

func resolve(d *mapping.Descriptor, f query.Field) (*mapping.Column, error) {
	if f.Table != "" && !strings.EqualFold(f.Table, d.Table) {
		return nil, rdb.UnknownField(f.String(), d.Table)
	}
	c, ok := d.Column(f.Name)
	if !ok {
		return nil, rdb.UnknownField(f.String(), d.Table)
	}
	return c, nil
}

// checkValue 参数必须能被 database/sql 的默认转换接受
func checkValue(name string, v any) error {
	if _, err := driver.DefaultParameterConverter.ConvertValue(v); err != nil {
		return rdb.ParameterTypeMismatch(name, v, err)
	}
	return nil
}

// paramName 列名中不能出现在参数名里的字符替换为下划线
func paramName(column string) string {
	var sb strings.Builder
	for _, r := range column {
		if r == '_' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' {
			sb.WriteRune(r)
		} else {
			sb.WriteByte('_')
		}
	}
	return sb.String()
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func isZero(v any) bool {
	if query.IsNil(v) {
		return true
	}
	return reflect.ValueOf(v).IsZero()
}

// builder 把条件树转换为中间条件，参数名为 列名_序号，序号按列从 0 开始
type builder struct {
	d        *mapping.Descriptor
	prefix   string
	ordinals map[string]int
}

func newBuilder(d *mapping.Descriptor, prefix string) *builder {
	return &builder{d: d, prefix: prefix, ordinals: map[string]int{}}
}

func (b *builder) next(column string) string {
	i := b.ordinals[column]
	b.ordinals[column] = i + 1
	return fmt.Sprintf("%s%s_%d", b.prefix, paramName(column), i)
}

func (b *builder) group(g *query.QueryGroup) (*Predicate, error) {
	p := &Predicate{Group: true, Conjunction: query.And}
	if g == nil {
		return p, nil
	}
	p.Conjunction = g.Conjunction
	p.Negated = g.Negated

	for _, child := range g.Children {
		switch v := child.(type) {
		case *query.QueryField:
			leaf, err := b.field(v)
			if err != nil {
				return nil, err
			}
			p.Children = append(p.Children, leaf)
		case *query.QueryGroup:
			sub, err := b.group(v)
			if err != nil {
				return nil, err
			}
			if !sub.IsEmpty() {
				p.Children = append(p.Children, sub)
			}
		default:
			return nil, rdb.InvalidParameterShape("unknown condition node %T", child)
		}
	}
	return p, nil
}

func (b *builder) field(f *query.QueryField) (*Predicate, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	c, err := resolve(b.d, f.Field)
	if err != nil {
		return nil, err
	}
	if f.IsNullCheck() {
		return &Predicate{Column: c.Name, Operation: f.NullOperation()}, nil
	}

	p := &Predicate{Column: c.Name, Operation: f.Operation}
	for _, v := range f.Values {
		name := b.next(c.Name)
		if err := checkValue(name, v); err != nil {
			return nil, err
		}
		p.Params = append(p.Params, Param{Name: name, Value: v})
	}
	return p, nil
}
