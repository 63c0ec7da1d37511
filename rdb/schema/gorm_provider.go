package schema

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// GormProvider 借助 gorm 的 Migrator 获取列信息
type GormProvider struct {
	db      *gorm.DB
	dialect string
}

// NewGormProvider 复用已有的连接池创建 gorm 实例，仅支持 sqlite 和 mysql
func NewGormProvider(dialect string, sqlDB *sql.DB) (*GormProvider, error) {
	if sqlDB == nil {
		return nil, errors.New("sql db is required")
	}

	config := &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	}

	var dialector gorm.Dialector
	dialect = strings.ToLower(dialect)
	switch dialect {
	case "sqlite", "sqlite3":
		dialect = "sqlite"
		dialector = sqlite.New(sqlite.Config{Conn: sqlDB})
	case "mysql":
		dialector = mysql.New(mysql.Config{Conn: sqlDB})
	default:
		return nil, errors.Errorf("unsupported gorm dialect: %s", dialect)
	}

	db, err := gorm.Open(dialector, config)
	if err != nil {
		return nil, errors.Wrap(err, "gorm open")
	}
	return &GormProvider{db: db, dialect: dialect}, nil
}

func (p *GormProvider) GetColumns(ctx context.Context, table string) ([]Column, error) {
	migrator := p.db.WithContext(ctx).Migrator()
	if !migrator.HasTable(table) {
		return nil, nil
	}
	types, err := migrator.ColumnTypes(table)
	if err != nil {
		return nil, errors.Wrapf(err, "gorm column types of %s", table)
	}

	columns := make([]Column, 0, len(types))
	var pkCount int
	for _, t := range types {
		c := Column{Name: t.Name(), DBType: t.DatabaseTypeName(), Nullable: true}
		if v, ok := t.Nullable(); ok {
			c.Nullable = v
		}
		if v, ok := t.PrimaryKey(); ok && v {
			c.PrimaryKey = true
			pkCount++
		}
		if v, ok := t.AutoIncrement(); ok {
			c.Identity = v
		}
		columns = append(columns, c)
	}

	if p.dialect == "sqlite" && pkCount == 1 {
		for i := range columns {
			if columns[i].PrimaryKey && strings.EqualFold(columns[i].DBType, "INTEGER") {
				columns[i].Identity = true
			}
		}
	}
	return columns, nil
}
