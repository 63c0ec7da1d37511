package dialect

import (
	"strconv"

	"github.com/hatlonely/rdbx/rdb/statement"
)

// TokenColumn MERGE 源表中关联行号的列
const TokenColumn = "__RowToken"

// SQLServer 方括号标识符，@name 命名参数，TOP 与 OFFSET/FETCH 分页，提示写成表名之后的 WITH (...)
type SQLServer struct {
	renderer
}

func NewSQLServer() *SQLServer {
	return &SQLServer{renderer: renderer{
		name:  "sqlserver",
		open:  "[",
		close: "]",
		named: true,
		hints: hintWith,
	}}
}

func (d *SQLServer) Format(st *statement.Statement) (*statement.Compiled, error) {
	switch st.Kind {
	case statement.Select:
		return d.selectText(st).compiled(statement.KeyNone), nil
	case statement.Insert:
		if st.Identity == "" {
			return d.multiRowInsert(st), nil
		}
		if len(st.Columns) == 0 {
			return d.defaultValueRows(st), nil
		}
		return d.merge(st, true), nil
	case statement.Merge:
		return d.merge(st, false), nil
	}
	return d.common(st)
}

func (d *SQLServer) selectText(st *statement.Statement) *text {
	t := d.text().write("SELECT ")
	if st.Limit > 0 && st.Offset == 0 {
		t.write("TOP (", strconv.Itoa(st.Limit), ") ")
	}
	t.write(d.quoteAll(st.Columns), " FROM ").table(st.Table, st.Hints).where(st.Where)
	if st.Offset == 0 {
		return t.orderBy(st.OrderBy)
	}

	if len(st.OrderBy) == 0 {
		t.write(" ORDER BY (SELECT NULL)")
	} else {
		t.orderBy(st.OrderBy)
	}
	t.write(" OFFSET ", strconv.Itoa(st.Offset), " ROWS")
	if st.Limit > 0 {
		t.write(" FETCH NEXT ", strconv.Itoa(st.Limit), " ROWS ONLY")
	}
	return t
}

func (d *SQLServer) defaultValueRows(st *statement.Statement) *statement.Compiled {
	units := make([]statement.Unit, 0, len(st.Rows))
	for _, row := range st.Rows {
		t := d.text().insertInto(st.Table, st.Hints).write(" OUTPUT INSERTED.", d.quote(st.Identity), " DEFAULT VALUES")
		units = append(units, t.unit(row.Token, statement.KeyReturning))
	}
	return d.units(units, statement.KeyReturning)
}

// merge 整个批次一条 MERGE，OUTPUT 同时返回自增键和行号，按行号回填而不依赖返回顺序
// insertOnly 时匹配条件为 1 = 0，即批量插入
func (d *SQLServer) merge(st *statement.Statement, insertOnly bool) *statement.Compiled {
	source := st.Columns
	t := d.text().write("MERGE INTO ").table(st.Table, st.Hints).write(" AS T USING (VALUES ")
	for i, row := range st.Rows {
		if i > 0 {
			t.write(", ")
		}
		t.write("(")
		for j, a := range d.sourceValues(row, insertOnly) {
			if j > 0 {
				t.write(", ")
			}
			t.param(a.Param)
		}
		if len(source) > 0 {
			t.write(", ")
		}
		t.write(strconv.Itoa(row.Token), ")")
	}
	t.write(") AS S (", d.quoteAll(append(append([]string{}, source...), TokenColumn)), ") ON ")

	if insertOnly {
		t.write("1 = 0")
	} else {
		for i, q := range st.Qualifiers {
			if i > 0 {
				t.write(" AND ")
			}
			t.write("T.", d.quote(q), " = S.", d.quote(q))
		}
		set := st.SetColumns
		if len(set) == 0 {
			set = st.Qualifiers[:1]
		}
		t.write(" WHEN MATCHED THEN UPDATE SET ")
		for i, c := range set {
			if i > 0 {
				t.write(", ")
			}
			t.write("T.", d.quote(c), " = S.", d.quote(c))
		}
	}

	var insert []string
	for _, c := range st.Columns {
		if c != st.Identity {
			insert = append(insert, c)
		}
	}
	t.write(" WHEN NOT MATCHED THEN INSERT (", d.quoteAll(insert), ") VALUES (")
	for i, c := range insert {
		if i > 0 {
			t.write(", ")
		}
		t.write("S.", d.quote(c))
	}
	t.write(")")

	keys := statement.KeyNone
	if st.Identity != "" {
		keys = statement.KeyReturning
		t.write(" OUTPUT INSERTED.", d.quote(st.Identity), ", S.", d.quote(TokenColumn))
	}
	t.write(";")
	return t.compiled(keys)
}

func (d *SQLServer) sourceValues(row statement.Row, insertOnly bool) []statement.Assignment {
	if insertOnly {
		return row.Insert
	}
	return row.Values
}
