package schema

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"
)

// Querier 执行元数据查询，*sql.DB、*sql.Conn、*sql.Tx 均满足
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// NewProvider 按方言创建基于系统表的 Provider
func NewProvider(dialect string, db Querier) (Provider, error) {
	switch strings.ToLower(dialect) {
	case "sqlite", "sqlite3":
		return &SQLiteProvider{db: db}, nil
	case "mysql":
		return &MySQLProvider{db: db}, nil
	case "postgres", "postgresql":
		return &PostgresProvider{db: db}, nil
	}
	return nil, errors.Errorf("no schema provider for dialect %s", dialect)
}

// SQLiteProvider 通过 pragma_table_info 查询列信息
type SQLiteProvider struct {
	db Querier
}

func NewSQLiteProvider(db Querier) *SQLiteProvider {
	return &SQLiteProvider{db: db}
}

func (p *SQLiteProvider) GetColumns(ctx context.Context, table string) ([]Column, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT name, type, "notnull", pk FROM pragma_table_info(?) ORDER BY cid`, table)
	if err != nil {
		return nil, errors.Wrapf(err, "query columns of %s", table)
	}
	defer rows.Close()

	var columns []Column
	var pkCount int
	for rows.Next() {
		var c Column
		var notNull, pk int
		if err := rows.Scan(&c.Name, &c.DBType, &notNull, &pk); err != nil {
			return nil, errors.Wrap(err, "scan column")
		}
		c.Nullable = notNull == 0
		c.PrimaryKey = pk > 0
		if c.PrimaryKey {
			pkCount++
		}
		columns = append(columns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate columns")
	}

	// 单列 INTEGER 主键是 rowid 的别名，由引擎自动生成
	if pkCount == 1 {
		for i := range columns {
			if columns[i].PrimaryKey && strings.EqualFold(columns[i].DBType, "INTEGER") {
				columns[i].Identity = true
			}
		}
	}
	return columns, nil
}

// MySQLProvider 通过 information_schema 查询列信息
type MySQLProvider struct {
	db Querier
}

func NewMySQLProvider(db Querier) *MySQLProvider {
	return &MySQLProvider{db: db}
}

func (p *MySQLProvider) GetColumns(ctx context.Context, table string) ([]Column, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT COLUMN_NAME, COLUMN_TYPE, IS_NULLABLE, COLUMN_KEY, EXTRA
FROM information_schema.COLUMNS
WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?
ORDER BY ORDINAL_POSITION`, table)
	if err != nil {
		return nil, errors.Wrapf(err, "query columns of %s", table)
	}
	defer rows.Close()

	var columns []Column
	for rows.Next() {
		var c Column
		var nullable, key, extra string
		if err := rows.Scan(&c.Name, &c.DBType, &nullable, &key, &extra); err != nil {
			return nil, errors.Wrap(err, "scan column")
		}
		c.Nullable = strings.EqualFold(nullable, "YES")
		c.PrimaryKey = key == "PRI"
		c.Identity = strings.Contains(strings.ToLower(extra), "auto_increment")
		columns = append(columns, c)
	}
	return columns, errors.Wrap(rows.Err(), "iterate columns")
}

// PostgresProvider 通过 information_schema 查询列信息
type PostgresProvider struct {
	db Querier
}

func NewPostgresProvider(db Querier) *PostgresProvider {
	return &PostgresProvider{db: db}
}

func (p *PostgresProvider) GetColumns(ctx context.Context, table string) ([]Column, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT c.column_name, c.data_type, c.is_nullable, c.is_identity, COALESCE(c.column_default, ''),
  EXISTS (
    SELECT 1 FROM information_schema.table_constraints tc
    JOIN information_schema.key_column_usage k
      ON tc.constraint_name = k.constraint_name AND tc.table_schema = k.table_schema AND tc.table_name = k.table_name
    WHERE tc.constraint_type = 'PRIMARY KEY' AND tc.table_schema = c.table_schema
      AND tc.table_name = c.table_name AND k.column_name = c.column_name
  )
FROM information_schema.columns c
WHERE c.table_schema = current_schema() AND c.table_name = $1
ORDER BY c.ordinal_position`, table)
	if err != nil {
		return nil, errors.Wrapf(err, "query columns of %s", table)
	}
	defer rows.Close()

	var columns []Column
	for rows.Next() {
		var c Column
		var nullable, identity, def string
		if err := rows.Scan(&c.Name, &c.DBType, &nullable, &identity, &def, &c.PrimaryKey); err != nil {
			return nil, errors.Wrap(err, "scan column")
		}
		c.Nullable = strings.EqualFold(nullable, "YES")
		c.Identity = strings.EqualFold(identity, "YES") || strings.HasPrefix(def, "nextval(")
		columns = append(columns, c)
	}
	return columns, errors.Wrap(rows.Err(), "iterate columns")
}
