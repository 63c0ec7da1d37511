package dialect

import (
	"strconv"

	"github.com/hatlonely/rdbx/rdb/statement"
)

// PostgreSQL 双引号标识符，$n 位置参数（每次往返单独编号），提示写成语句开头的 /*+ */ 注释
// 合并依赖限定列上的唯一约束
type PostgreSQL struct {
	renderer
}

func NewPostgreSQL() *PostgreSQL {
	return &PostgreSQL{renderer: renderer{
		name:       "postgresql",
		open:       `"`,
		close:      `"`,
		positional: func(n int) string { return "$" + strconv.Itoa(n) },
		hints:      hintLeading,
	}}
}

func (d *PostgreSQL) Format(st *statement.Statement) (*statement.Compiled, error) {
	switch st.Kind {
	case statement.Select:
		t := d.selectPrefix(st).where(st.Where).orderBy(st.OrderBy)
		return t.limitOffset(st.Limit, st.Offset).compiled(statement.KeyNone), nil
	case statement.Insert:
		if st.Identity == "" {
			return d.multiRowInsert(st), nil
		}
		return d.returningRows(st), nil
	case statement.Merge:
		return d.onConflict(st), nil
	}
	return d.common(st)
}

func (d *PostgreSQL) returning(t *text, identity string) *text {
	if identity == "" {
		return t
	}
	return t.write(" RETURNING ", d.quote(identity))
}

// returningRows 每行一条 INSERT ... RETURNING
func (d *PostgreSQL) returningRows(st *statement.Statement) *statement.Compiled {
	units := make([]statement.Unit, 0, len(st.Rows))
	for _, row := range st.Rows {
		t := d.returning(d.insertRow(d.text(), st, row, "DEFAULT VALUES"), st.Identity)
		units = append(units, t.unit(row.Token, statement.KeyReturning))
	}
	return d.units(units, statement.KeyReturning)
}

// onConflict 每行一条 INSERT ... ON CONFLICT (限定列) DO UPDATE
func (d *PostgreSQL) onConflict(st *statement.Statement) *statement.Compiled {
	keys := statement.KeyNone
	if st.Identity != "" {
		keys = statement.KeyReturning
	}

	units := make([]statement.Unit, 0, len(st.Rows))
	for _, row := range st.Rows {
		t := d.insertRow(d.text(), st, row, "DEFAULT VALUES")
		if !row.InsertOnly {
			t.write(" ON CONFLICT (", d.quoteAll(st.Qualifiers), ") DO UPDATE SET ")
			set := columnsOf(row.Set)
			if len(set) == 0 {
				// 没有可更新的列时仍然走 DO UPDATE，否则冲突行不会出现在 RETURNING 中
				set = st.Qualifiers[:1]
			}
			for i, c := range set {
				if i > 0 {
					t.write(", ")
				}
				t.write(d.quote(c), " = EXCLUDED.", d.quote(c))
			}
		}
		units = append(units, d.returning(t, st.Identity).unit(row.Token, keys))
	}
	return d.units(units, keys)
}
