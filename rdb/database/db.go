package database

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/hatlonely/rdbx/cfg"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

type Options struct {
	// Driver 驱动名：sqlite3、mysql、postgres
	Driver   string `cfg:"driver" def:"sqlite3" validate:"oneof=sqlite sqlite3 mysql postgres postgresql pgx"`
	DSN      string `cfg:"dsn"`
	Host     string `cfg:"host" def:"localhost"`
	Port     string `cfg:"port"`
	Database string `cfg:"database"`
	Username string `cfg:"username"`
	Password string `cfg:"password"`
	Charset  string `cfg:"charset" def:"utf8mb4"`
	SSLMode  string `cfg:"sslMode" def:"disable"`

	MaxConns        int           `cfg:"maxConns" def:"10"`
	MaxIdle         int           `cfg:"maxIdle" def:"5"`
	ConnMaxLifetime time.Duration `cfg:"connMaxLifetime" def:"30m"`
}

// DB 连接池
type DB struct {
	db      *sql.DB
	driver  string
	dialect string
}

func NewDBWithOptions(options *Options) (*DB, error) {
	if options == nil {
		return nil, errors.New("options is nil")
	}
	opts := *options
	if err := cfg.SetDefaults(&opts); err != nil {
		return nil, errors.WithMessage(err, "cfg.SetDefaults failed")
	}
	if err := cfg.Validate(&opts); err != nil {
		return nil, errors.Wrap(err, "invalid database options")
	}
	options = &opts

	driver, dialect, err := driverName(options.Driver)
	if err != nil {
		return nil, err
	}
	dsn := options.DSN
	if dsn == "" {
		if dsn, err = buildDSN(dialect, options); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", driver)
	}
	if options.MaxConns > 0 {
		db.SetMaxOpenConns(options.MaxConns)
	}
	if options.MaxIdle > 0 {
		db.SetMaxIdleConns(options.MaxIdle)
	}
	if options.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(options.ConnMaxLifetime)
	}

	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "ping %s", driver)
	}

	return &DB{db: db, driver: driver, dialect: dialect}, nil
}

// NewDB 包装已经打开的连接池，dialect 为 sqlite、mysql、postgresql 或 sqlserver
func NewDB(db *sql.DB, dialect string) *DB {
	driver, canonical, err := driverName(dialect)
	if err != nil {
		driver, canonical = dialect, strings.ToLower(dialect)
	}
	return &DB{db: db, driver: driver, dialect: canonical}
}

// driverName 返回注册的驱动名和方言名
func driverName(name string) (string, string, error) {
	switch strings.ToLower(name) {
	case "sqlite", "sqlite3":
		return "sqlite3", "sqlite", nil
	case "mysql":
		return "mysql", "mysql", nil
	case "postgres", "postgresql", "pgx":
		return "postgres", "postgresql", nil
	}
	return "", "", errors.Errorf("unsupported driver: %s", name)
}

func buildDSN(dialect string, options *Options) (string, error) {
	switch dialect {
	case "sqlite":
		if options.Database == "" {
			return "", errors.New("sqlite database path is empty")
		}
		return options.Database, nil

	case "mysql":
		port := options.Port
		if port == "" {
			port = "3306"
		}
		c := mysql.NewConfig()
		c.User = options.Username
		c.Passwd = options.Password
		c.Net = "tcp"
		c.Addr = net.JoinHostPort(options.Host, port)
		c.DBName = options.Database
		c.ParseTime = true
		c.Loc = time.Local
		if options.Charset != "" {
			c.Params = map[string]string{"charset": options.Charset}
		}
		return c.FormatDSN(), nil

	case "postgresql":
		port := options.Port
		if port == "" {
			port = "5432"
		}
		var parts []string
		for _, kv := range [][2]string{
			{"host", options.Host},
			{"port", port},
			{"user", options.Username},
			{"password", options.Password},
			{"dbname", options.Database},
			{"sslmode", options.SSLMode},
		} {
			if kv[1] != "" {
				parts = append(parts, kv[0]+"="+pqValue(kv[1]))
			}
		}
		return strings.Join(parts, " "), nil
	}
	return "", errors.Errorf("unsupported dialect: %s", dialect)
}

// pqValue 按 lib/pq 键值格式转义，含空白、引号或反斜杠时加单引号
func pqValue(v string) string {
	if !strings.ContainsAny(v, " \t\n'\\") {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return fmt.Sprintf("'%s'", v)
}

// Open 从连接池取出一个专用连接，调用方负责关闭
func (d *DB) Open(ctx context.Context) (*Conn, error) {
	conn, err := d.db.Conn(ctx)
	if err != nil {
		return nil, Classify(err, "")
	}
	return &Conn{Session: NewSession(conn), conn: conn}, nil
}

// Session 直接在连接池上执行，每条语句可能落在不同的连接上
func (d *DB) Session() Session {
	return NewSession(d.db)
}

func (d *DB) SQL() *sql.DB {
	return d.db
}

func (d *DB) Driver() string {
	return d.driver
}

func (d *DB) Dialect() string {
	return d.dialect
}

func (d *DB) Close() error {
	return d.db.Close()
}

// Conn 专用连接，同一个连接上顺序执行
type Conn struct {
	Session
	conn *sql.Conn
}

func (c *Conn) BeginTx(ctx context.Context, opts *sql.TxOptions) (*Tx, error) {
	tx, err := c.conn.BeginTx(ctx, opts)
	if err != nil {
		return nil, Classify(err, "BEGIN")
	}
	return &Tx{Session: NewSession(tx), tx: tx}, nil
}

func (c *Conn) Close() error {
	return c.conn.Close()
}

type Tx struct {
	Session
	tx *sql.Tx
}

func (t *Tx) Commit() error {
	return Classify(t.tx.Commit(), "COMMIT")
}

func (t *Tx) Rollback() error {
	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return Classify(err, "ROLLBACK")
}
