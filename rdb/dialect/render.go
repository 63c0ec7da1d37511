package dialect

import (
	"strconv"
	"strings"

	"github.com/hatlonely/rdbx/rdb"
	"github.com/hatlonely/rdbx/rdb/query"
	"github.com/hatlonely/rdbx/rdb/statement"
)

// hintStyle 提示插入的位置
type hintStyle int

const (
	hintAfterTable hintStyle = iota // 表名之后原样拼接
	hintLeading                     // 语句开头的 /*+ ... */ 注释
	hintWith                        // 表名之后的 WITH (...)
)

// renderer 各方言共用的渲染逻辑
type renderer struct {
	name       string
	open       string
	close      string
	named      bool
	positional func(n int) string
	hints      hintStyle
}

func (r *renderer) Name() string {
	return r.name
}

func (r *renderer) quote(ident string) string {
	return r.open + strings.ReplaceAll(ident, r.close, r.close+r.close) + r.close
}

func (r *renderer) quoteAll(idents []string) string {
	quoted := make([]string, len(idents))
	for i, ident := range idents {
		quoted[i] = r.quote(ident)
	}
	return strings.Join(quoted, ", ")
}

// text 一次往返的文本和参数
type text struct {
	r        *renderer
	sb       strings.Builder
	bindings []statement.Binding
	seen     map[string]bool
}

func (r *renderer) text() *text {
	return &text{r: r, seen: map[string]bool{}}
}

func (t *text) write(parts ...string) *text {
	for _, s := range parts {
		t.sb.WriteString(s)
	}
	return t
}

// param 写入占位符，按名字绑定时同名参数只绑定一次
func (t *text) param(p statement.Param) *text {
	if t.r.named {
		if !t.seen[p.Name] {
			t.seen[p.Name] = true
			t.bindings = append(t.bindings, statement.Binding{Name: p.Name, Value: p.Value})
		}
		t.sb.WriteString("@" + p.Name)
		return t
	}
	t.bindings = append(t.bindings, statement.Binding{Name: p.Name, Value: p.Value})
	t.sb.WriteString(t.r.positional(len(t.bindings)))
	return t
}

func (t *text) String() string {
	return t.sb.String()
}

func (t *text) unit(token int, keys statement.KeyRetrieval) statement.Unit {
	return statement.Unit{Text: t.String(), Bindings: t.bindings, Token: token, Keys: keys}
}

func (t *text) compiled(keys statement.KeyRetrieval) *statement.Compiled {
	return &statement.Compiled{Text: t.String(), Bindings: t.bindings, Named: t.r.named, Keys: keys}
}

func (r *renderer) units(units []statement.Unit, keys statement.KeyRetrieval) *statement.Compiled {
	c := &statement.Compiled{Named: r.named, Units: units, Keys: keys}
	if len(units) == 1 {
		c.Text, c.Bindings = units[0].Text, units[0].Bindings
	}
	return c
}

// leadingHint 语句开头的提示
func (t *text) leadingHint(hints []string) *text {
	if t.r.hints == hintLeading && len(hints) > 0 {
		t.write("/*+ ", strings.Join(hints, " "), " */ ")
	}
	return t
}

// insertInto INSERT 的目标表，表名之后原样拼接的提示（INDEXED BY、USE INDEX）不能用于 INSERT，只保留 WITH (...)
func (t *text) insertInto(table string, hints []string) *text {
	t.leadingHint(hints).write("INSERT INTO ")
	if t.r.hints == hintWith {
		return t.table(table, hints)
	}
	return t.write(t.r.quote(table))
}

// table 表名及表名之后的提示
func (t *text) table(name string, hints []string) *text {
	t.write(t.r.quote(name))
	if len(hints) == 0 {
		return t
	}
	switch t.r.hints {
	case hintAfterTable:
		t.write(" ", strings.Join(hints, " "))
	case hintWith:
		t.write(" WITH (", strings.Join(hints, ", "), ")")
	}
	return t
}

func (t *text) where(p *statement.Predicate) *text {
	if p.IsEmpty() {
		return t
	}
	t.write(" WHERE ")
	return t.predicate(p, false)
}

// predicate 深度优先渲染条件，嵌套分组加括号，取反分组加 NOT
func (t *text) predicate(p *statement.Predicate, nested bool) *text {
	if !p.Group {
		return t.leaf(p)
	}
	if p.IsFalse() {
		return t.write("1 = 0")
	}
	var children []*statement.Predicate
	for _, c := range p.Children {
		if !c.IsEmpty() {
			children = append(children, c)
		}
	}
	if p.Negated {
		t.write("NOT ")
		nested = true
	}
	if nested {
		t.write("(")
	}
	for i, c := range children {
		if i > 0 {
			t.write(" ", p.Conjunction.String(), " ")
		}
		t.predicate(c, true)
	}
	if nested {
		t.write(")")
	}
	return t
}

func (t *text) leaf(p *statement.Predicate) *text {
	t.write(t.r.quote(p.Column), " ", p.Operation.String())
	switch p.Operation {
	case query.IsNull, query.IsNotNull:
	case query.In, query.NotIn:
		t.write(" (")
		for i, param := range p.Params {
			if i > 0 {
				t.write(", ")
			}
			t.param(param)
		}
		t.write(")")
	case query.Between, query.NotBetween:
		t.write(" ").param(p.Params[0]).write(" AND ").param(p.Params[1])
	default:
		t.write(" ").param(p.Params[0])
	}
	return t
}

func (t *text) orderBy(orders []statement.OrderBy) *text {
	for i, o := range orders {
		if i == 0 {
			t.write(" ORDER BY ")
		} else {
			t.write(", ")
		}
		t.write(t.r.quote(o.Column))
		if o.Descending {
			t.write(" DESC")
		} else {
			t.write(" ASC")
		}
	}
	return t
}

func (t *text) values(assignments []statement.Assignment) *text {
	t.write("(")
	for i, a := range assignments {
		if i > 0 {
			t.write(", ")
		}
		t.param(a.Param)
	}
	return t.write(")")
}

func (t *text) set(assignments []statement.Assignment) *text {
	t.write(" SET ")
	for i, a := range assignments {
		if i > 0 {
			t.write(", ")
		}
		t.write(t.r.quote(a.Column), " = ").param(a.Param)
	}
	return t
}

func columnsOf(assignments []statement.Assignment) []string {
	columns := make([]string, len(assignments))
	for i, a := range assignments {
		columns[i] = a.Column
	}
	return columns
}

// limitOffset LIMIT/OFFSET 形式的分页
func (t *text) limitOffset(limit, offset int) *text {
	if limit > 0 {
		t.write(" LIMIT ", strconv.Itoa(limit))
	}
	if offset > 0 {
		t.write(" OFFSET ", strconv.Itoa(offset))
	}
	return t
}

func (r *renderer) selectPrefix(st *statement.Statement) *text {
	t := r.text().leadingHint(st.Hints)
	return t.write("SELECT ", r.quoteAll(st.Columns), " FROM ").table(st.Table, st.Hints)
}

// common 各方言写法一致的语句
func (r *renderer) common(st *statement.Statement) (*statement.Compiled, error) {
	switch st.Kind {
	case statement.Aggregate:
		t := r.text().leadingHint(st.Hints).write("SELECT ", r.aggregate(st), " FROM ").table(st.Table, st.Hints)
		return t.where(st.Where).compiled(statement.KeyNone), nil

	case statement.Update:
		if len(st.Rows) > 0 {
			return r.rowUpdates(st), nil
		}
		t := r.text().leadingHint(st.Hints).write("UPDATE ").table(st.Table, st.Hints)
		return t.set(st.Set).where(st.Where).compiled(statement.KeyNone), nil

	case statement.Delete:
		if len(st.Rows) > 0 {
			return r.rowDeletes(st), nil
		}
		t := r.text().leadingHint(st.Hints).write("DELETE FROM ").table(st.Table, st.Hints)
		return t.where(st.Where).compiled(statement.KeyNone), nil

	case statement.Raw:
		bindings := make([]statement.Binding, len(st.Params))
		for i, p := range st.Params {
			bindings[i] = statement.Binding{Name: p.Name, Value: p.Value}
		}
		return &statement.Compiled{Text: st.Text, Bindings: bindings, Named: r.named}, nil
	}
	return nil, rdb.InvalidParameterShape("%s cannot format %s", r.name, st.Kind)
}

func (r *renderer) aggregate(st *statement.Statement) string {
	if st.Column == "" {
		return st.Function.String() + "(*)"
	}
	return st.Function.String() + "(" + r.quote(st.Column) + ")"
}

// rowUpdates 每行一条 UPDATE，影响行数累加
func (r *renderer) rowUpdates(st *statement.Statement) *statement.Compiled {
	units := make([]statement.Unit, 0, len(st.Rows))
	for _, row := range st.Rows {
		t := r.text().leadingHint(st.Hints).write("UPDATE ").table(st.Table, st.Hints)
		units = append(units, t.set(row.Set).where(row.Where).unit(row.Token, statement.KeyNone))
	}
	return r.units(units, statement.KeyNone)
}

// rowDeletes 每行一条 DELETE，影响行数累加
func (r *renderer) rowDeletes(st *statement.Statement) *statement.Compiled {
	units := make([]statement.Unit, 0, len(st.Rows))
	for _, row := range st.Rows {
		t := r.text().leadingHint(st.Hints).write("DELETE FROM ").table(st.Table, st.Hints)
		units = append(units, t.where(row.Where).unit(row.Token, statement.KeyNone))
	}
	return r.units(units, statement.KeyNone)
}

// multiRowInsert 一条多行 INSERT
func (r *renderer) multiRowInsert(st *statement.Statement) *statement.Compiled {
	t := r.text().insertInto(st.Table, st.Hints).write(" (", r.quoteAll(st.Columns), ") VALUES ")
	for i, row := range st.Rows {
		if i > 0 {
			t.write(", ")
		}
		t.values(row.Insert)
	}
	return t.compiled(statement.KeyNone)
}

func (r *renderer) insertRow(t *text, st *statement.Statement, row statement.Row, empty string) *text {
	t.insertInto(st.Table, st.Hints)
	if len(row.Insert) == 0 {
		return t.write(" ", empty)
	}
	t.write(" (", r.quoteAll(columnsOf(row.Insert)), ") VALUES ")
	return t.values(row.Insert)
}
