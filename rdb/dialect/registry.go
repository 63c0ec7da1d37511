package dialect

import (
	"sort"
	"strings"
	"sync"

	"github.com/hatlonely/rdbx/rdb/mapping"
	"github.com/hatlonely/rdbx/rdb/statement"
	"github.com/pkg/errors"
)

// Dialect 方言：渲染语句并生成建表语句
type Dialect interface {
	statement.Formatter
	CreateTable(model *mapping.Model, table string) []string
}

type Factory func() Dialect

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
	aliases   = map[string]string{
		"sqlite3":  "sqlite",
		"postgres": "postgresql",
		"pgx":      "postgresql",
		"mssql":    "sqlserver",
	}
)

func init() {
	MustRegister("sqlite", func() Dialect { return NewSQLite() })
	MustRegister("mysql", func() Dialect { return NewMySQL() })
	MustRegister("postgresql", func() Dialect { return NewPostgreSQL() })
	MustRegister("sqlserver", func() Dialect { return NewSQLServer() })
}

func canonical(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if alias, ok := aliases[name]; ok {
		return alias
	}
	return name
}

// Register 注册方言，同名重复注册返回错误
func Register(name string, factory Factory) error {
	if factory == nil {
		return errors.Errorf("nil factory for dialect %s", name)
	}
	name = canonical(name)
	mu.Lock()
	defer mu.Unlock()
	if _, ok := factories[name]; ok {
		return errors.Errorf("dialect %s already registered", name)
	}
	factories[name] = factory
	return nil
}

func MustRegister(name string, factory Factory) {
	if err := Register(name, factory); err != nil {
		panic(err)
	}
}

// New 按名字创建方言，支持 sqlite3、postgres、mssql 等别名
func New(name string) (Dialect, error) {
	mu.RLock()
	factory, ok := factories[canonical(name)]
	mu.RUnlock()
	if !ok {
		return nil, errors.Errorf("unknown dialect %s", name)
	}
	return factory(), nil
}

func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
