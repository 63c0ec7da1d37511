package dialect

import (
	"fmt"
	"strings"

	"github.com/hatlonely/rdbx/rdb/mapping"
)

// ddl 建表语句中各方言不同的部分
type ddl struct {
	columnType func(f *mapping.Field) string
	// identity 自增列的完整类型定义，inlineKey 表示已经包含 PRIMARY KEY
	identity    func(f *mapping.Field) (def string, inlineKey bool)
	createTable func(table, body string) string
	createIndex func(table string, index mapping.Index) string
}

func (r *renderer) createTable(d ddl, model *mapping.Model, table string) []string {
	if table == "" {
		table = model.Table
	}

	var defs []string
	var keys []string
	inlineKey := false
	for _, f := range model.Fields {
		if f.Identity {
			def, inline := d.identity(f)
			defs = append(defs, r.quote(f.Name)+" "+def)
			inlineKey = inline
			if !inline && len(model.PrimaryKeys()) == 0 {
				keys = append(keys, f.Name)
			}
			continue
		}

		parts := []string{r.quote(f.Name), d.columnType(f)}
		if f.Required || f.PrimaryKey {
			parts = append(parts, "NOT NULL")
		}
		if f.Default != nil {
			parts = append(parts, "DEFAULT "+formatDefaultValue(f.Default))
		}
		defs = append(defs, strings.Join(parts, " "))
	}

	if !inlineKey {
		for _, f := range model.PrimaryKeys() {
			keys = append(keys, f.Name)
		}
		if len(keys) > 0 {
			defs = append(defs, fmt.Sprintf("PRIMARY KEY (%s)", r.quoteAll(keys)))
		}
	}

	stmts := []string{d.createTable(r.quote(table), strings.Join(defs, ",\n  "))}
	for _, index := range model.Indexes {
		stmts = append(stmts, d.createIndex(table, index))
	}
	return stmts
}

func formatDefaultValue(value any) string {
	switch v := value.(type) {
	case string:
		return fmt.Sprintf("'%s'", strings.ReplaceAll(v, "'", "''"))
	case bool:
		if v {
			return "1"
		}
		return "0"
	}
	return fmt.Sprintf("%v", value)
}

func ifNotExists(table, body string) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n)", table, body)
}

func (r *renderer) indexIfNotExists(table string, index mapping.Index) string {
	kind := "INDEX"
	if index.Unique {
		kind = "UNIQUE INDEX"
	}
	return fmt.Sprintf("CREATE %s IF NOT EXISTS %s ON %s (%s)", kind, r.quote(index.Name), r.quote(table), r.quoteAll(index.Columns))
}

func varchar(f *mapping.Field, def int) int {
	if f.Size > 0 {
		return f.Size
	}
	return def
}

func (d *SQLite) CreateTable(model *mapping.Model, table string) []string {
	return d.createTable(ddl{
		columnType: func(f *mapping.Field) string {
			switch f.FieldType {
			case mapping.FieldTypeInt, mapping.FieldTypeBool:
				return "INTEGER"
			case mapping.FieldTypeFloat:
				return "REAL"
			case mapping.FieldTypeDate:
				return "DATETIME"
			case mapping.FieldTypeBytes:
				return "BLOB"
			}
			return "TEXT"
		},
		identity: func(f *mapping.Field) (string, bool) {
			return "INTEGER PRIMARY KEY AUTOINCREMENT", true
		},
		createTable: ifNotExists,
		createIndex: d.indexIfNotExists,
	}, model, table)
}

func (d *MySQL) CreateTable(model *mapping.Model, table string) []string {
	return d.createTable(ddl{
		columnType: func(f *mapping.Field) string {
			switch f.FieldType {
			case mapping.FieldTypeInt:
				return "BIGINT"
			case mapping.FieldTypeFloat:
				return "DOUBLE"
			case mapping.FieldTypeBool:
				return "BOOLEAN"
			case mapping.FieldTypeDate:
				return "DATETIME(6)"
			case mapping.FieldTypeBytes:
				return "BLOB"
			case mapping.FieldTypeJSON:
				return "JSON"
			}
			return fmt.Sprintf("VARCHAR(%d)", varchar(f, 255))
		},
		identity: func(f *mapping.Field) (string, bool) {
			return "BIGINT NOT NULL AUTO_INCREMENT", false
		},
		createTable: ifNotExists,
		// MySQL 的 CREATE INDEX 不支持 IF NOT EXISTS
		createIndex: func(table string, index mapping.Index) string {
			kind := "INDEX"
			if index.Unique {
				kind = "UNIQUE INDEX"
			}
			return fmt.Sprintf("CREATE %s %s ON %s (%s)", kind, d.quote(index.Name), d.quote(table), d.quoteAll(index.Columns))
		},
	}, model, table)
}

func (d *PostgreSQL) CreateTable(model *mapping.Model, table string) []string {
	return d.createTable(ddl{
		columnType: func(f *mapping.Field) string {
			switch f.FieldType {
			case mapping.FieldTypeInt:
				return "BIGINT"
			case mapping.FieldTypeFloat:
				return "DOUBLE PRECISION"
			case mapping.FieldTypeBool:
				return "BOOLEAN"
			case mapping.FieldTypeDate:
				return "TIMESTAMP"
			case mapping.FieldTypeBytes:
				return "BYTEA"
			case mapping.FieldTypeJSON:
				return "JSONB"
			}
			if f.Size > 0 {
				return fmt.Sprintf("VARCHAR(%d)", f.Size)
			}
			return "TEXT"
		},
		identity: func(f *mapping.Field) (string, bool) {
			return "BIGSERIAL", false
		},
		createTable: ifNotExists,
		createIndex: d.indexIfNotExists,
	}, model, table)
}

func (d *SQLServer) CreateTable(model *mapping.Model, table string) []string {
	return d.createTable(ddl{
		columnType: func(f *mapping.Field) string {
			switch f.FieldType {
			case mapping.FieldTypeInt:
				return "BIGINT"
			case mapping.FieldTypeFloat:
				return "FLOAT"
			case mapping.FieldTypeBool:
				return "BIT"
			case mapping.FieldTypeDate:
				return "DATETIME2"
			case mapping.FieldTypeBytes:
				return "VARBINARY(MAX)"
			case mapping.FieldTypeJSON:
				return "NVARCHAR(MAX)"
			}
			return fmt.Sprintf("NVARCHAR(%d)", varchar(f, 255))
		},
		identity: func(f *mapping.Field) (string, bool) {
			return "BIGINT IDENTITY(1,1) NOT NULL", false
		},
		createTable: func(quoted, body string) string {
			return fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NULL CREATE TABLE %s (\n  %s\n)", strings.ReplaceAll(quoted, "'", "''"), quoted, body)
		},
		createIndex: func(table string, index mapping.Index) string {
			kind := "INDEX"
			if index.Unique {
				kind = "UNIQUE INDEX"
			}
			return fmt.Sprintf("IF NOT EXISTS (SELECT 1 FROM sys.indexes WHERE name = N'%s') CREATE %s %s ON %s (%s)",
				strings.ReplaceAll(index.Name, "'", "''"), kind, d.quote(index.Name), d.quote(table), d.quoteAll(index.Columns))
		},
	}, model, table)
}
