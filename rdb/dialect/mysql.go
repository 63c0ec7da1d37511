package dialect

import (
	"github.com/hatlonely/rdbx/rdb/statement"
)

// MySQL 反引号标识符，? 位置参数，提示（如 USE INDEX）写在表名之后
type MySQL struct {
	renderer
}

func NewMySQL() *MySQL {
	return &MySQL{renderer: renderer{
		name:       "mysql",
		open:       "`",
		close:      "`",
		positional: func(int) string { return "?" },
		hints:      hintAfterTable,
	}}
}

func (d *MySQL) Format(st *statement.Statement) (*statement.Compiled, error) {
	switch st.Kind {
	case statement.Select:
		t := d.selectPrefix(st).where(st.Where).orderBy(st.OrderBy)
		if st.Limit == 0 && st.Offset > 0 {
			t.write(" LIMIT 18446744073709551615")
		}
		return t.limitOffset(st.Limit, st.Offset).compiled(statement.KeyNone), nil
	case statement.Insert:
		if st.Identity == "" {
			return d.multiRowInsert(st), nil
		}
		return d.lastInsertIDRows(st, "() VALUES ()"), nil
	case statement.Merge:
		return d.notExistsMerge(st, " FROM DUAL", "() VALUES ()"), nil
	}
	return d.common(st)
}
