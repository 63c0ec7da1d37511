package dialect

import (
	"github.com/hatlonely/rdbx/rdb/statement"
)

// SQLite 双引号标识符，@name 命名参数，提示（如 INDEXED BY）写在表名之后
type SQLite struct {
	renderer
}

func NewSQLite() *SQLite {
	return &SQLite{renderer: renderer{
		name:  "sqlite",
		open:  `"`,
		close: `"`,
		named: true,
		hints: hintAfterTable,
	}}
}

func (d *SQLite) Format(st *statement.Statement) (*statement.Compiled, error) {
	switch st.Kind {
	case statement.Select:
		t := d.selectPrefix(st).where(st.Where).orderBy(st.OrderBy)
		if st.Limit == 0 && st.Offset > 0 {
			// OFFSET 必须跟在 LIMIT 之后
			t.write(" LIMIT -1")
		}
		return t.limitOffset(st.Limit, st.Offset).compiled(statement.KeyNone), nil
	case statement.Insert:
		if st.Identity == "" {
			return d.multiRowInsert(st), nil
		}
		return d.lastInsertIDRows(st, "DEFAULT VALUES"), nil
	case statement.Merge:
		return d.notExistsMerge(st, "", "DEFAULT VALUES"), nil
	}
	return d.common(st)
}

// lastInsertIDRows 每行一条 INSERT，执行后读取 LastInsertId
func (r *renderer) lastInsertIDRows(st *statement.Statement, empty string) *statement.Compiled {
	units := make([]statement.Unit, 0, len(st.Rows))
	for _, row := range st.Rows {
		units = append(units, r.insertRow(r.text(), st, row, empty).unit(row.Token, statement.KeyLastInsertID))
	}
	return r.units(units, statement.KeyLastInsertID)
}

// notExistsMerge 每行拆成 UPDATE 和 INSERT ... WHERE NOT EXISTS
// 自增列不在限定列中时再按限定列查询一次键
func (r *renderer) notExistsMerge(st *statement.Statement, from string, empty string) *statement.Compiled {
	identityQualified := false
	for _, q := range st.Qualifiers {
		if q == st.Identity {
			identityQualified = true
		}
	}

	var units []statement.Unit
	for _, row := range st.Rows {
		if row.InsertOnly {
			units = append(units, r.insertRow(r.text(), st, row, empty).unit(row.Token, statement.KeyLastInsertID))
			continue
		}

		if len(row.Set) > 0 {
			t := r.text().leadingHint(st.Hints).write("UPDATE ").table(st.Table, st.Hints).set(row.Set).where(row.Where)
			units = append(units, t.unit(row.Token, statement.KeyNone))
		}

		if len(row.Insert) > 0 {
			t := r.text().insertInto(st.Table, st.Hints).write(" (", r.quoteAll(columnsOf(row.Insert)), ") SELECT ")
			for i, a := range row.Insert {
				if i > 0 {
					t.write(", ")
				}
				t.param(a.Param)
			}
			t.write(from, " WHERE NOT EXISTS (SELECT 1 FROM ").table(st.Table, st.Hints).where(row.Where).write(")")
			units = append(units, t.unit(row.Token, statement.KeyNone))
		}

		if st.Identity != "" && !identityQualified {
			t := r.text().leadingHint(st.Hints).write("SELECT ", r.quote(st.Identity), " FROM ").table(st.Table, st.Hints).where(row.Where)
			units = append(units, t.unit(row.Token, statement.KeySelect))
		}
	}
	return r.units(units, statement.KeyNone)
}
