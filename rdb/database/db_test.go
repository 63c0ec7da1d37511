package database

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	. "github.com/bytedance/mockey"
	"github.com/go-sql-driver/mysql"
	"github.com/hatlonely/rdbx/rdb"
	"github.com/hatlonely/rdbx/rdb/statement"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"
)

func newSQLiteDB(t *testing.T) *DB {
	db, err := NewDBWithOptions(&Options{
		Driver:   "sqlite3",
		Database: filepath.Join(t.TempDir(), "test.db"),
		MaxConns: 4,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func raw(text string, args ...any) *statement.Compiled {
	c := &statement.Compiled{Kind: statement.Raw, Text: text}
	for _, a := range args {
		c.Bindings = append(c.Bindings, statement.Binding{Value: a})
	}
	return c
}

func TestNewDBWithOptions(t *testing.T) {
	Convey("测试 NewDBWithOptions 方法", t, func() {
		Convey("参数错误", func() {
			_, err := NewDBWithOptions(nil)
			So(err, ShouldNotBeNil)

			_, err = NewDBWithOptions(&Options{Driver: "oracle"})
			So(err, ShouldNotBeNil)

			_, err = NewDBWithOptions(&Options{Driver: "sqlite"})
			So(err, ShouldNotBeNil)
		})

		Convey("sqlite 文件数据库", func() {
			db := newSQLiteDB(t)
			So(db.Driver(), ShouldEqual, "sqlite3")
			So(db.Dialect(), ShouldEqual, "sqlite")
			So(db.SQL(), ShouldNotBeNil)

			n, err := db.Session().Exec(context.Background(), raw("CREATE TABLE t (id INTEGER PRIMARY KEY, name TEXT UNIQUE)"))
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 0)
		})

		Convey("NewDB 包装已有连接池", func() {
			sqlDB, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "wrap.db"))
			So(err, ShouldBeNil)
			db := NewDB(sqlDB, "postgres")
			So(db.Driver(), ShouldEqual, "postgres")
			So(db.Dialect(), ShouldEqual, "postgresql")
			So(NewDB(sqlDB, "mssql").Dialect(), ShouldEqual, "mssql")
			So(db.Close(), ShouldBeNil)
		})
	})
}

func TestPingFailure(t *testing.T) {
	PatchConvey("测试 Ping 失败", t, func() {
		Mock((*sql.DB).PingContext).Return(errors.New("connection refused")).Build()

		_, err := NewDBWithOptions(&Options{Driver: "sqlite3", Database: filepath.Join(t.TempDir(), "ping.db")})
		So(err, ShouldNotBeNil)
		So(err.Error(), ShouldContainSubstring, "connection refused")
	})
}

func TestBuildDSN(t *testing.T) {
	Convey("测试 buildDSN 方法", t, func() {
		Convey("mysql", func() {
			dsn, err := buildDSN("mysql", &Options{
				Host:     "localhost",
				Database: "app",
				Username: "root",
				Password: "p@ss",
				Charset:  "utf8mb4",
			})
			So(err, ShouldBeNil)
			So(dsn, ShouldContainSubstring, "charset=utf8mb4")

			c, err := mysql.ParseDSN(dsn)
			So(err, ShouldBeNil)
			So(c.User, ShouldEqual, "root")
			So(c.Passwd, ShouldEqual, "p@ss")
			So(c.Addr, ShouldEqual, "localhost:3306")
			So(c.DBName, ShouldEqual, "app")
			So(c.ParseTime, ShouldBeTrue)
		})

		Convey("postgres", func() {
			dsn, err := buildDSN("postgresql", &Options{
				Host:     "db",
				Port:     "6432",
				Database: "app",
				Username: "u",
				Password: "it's secret",
				SSLMode:  "disable",
			})
			So(err, ShouldBeNil)
			So(dsn, ShouldEqual, `host=db port=6432 user=u password='it\'s secret' dbname=app sslmode=disable`)
		})

		Convey("sqlite", func() {
			dsn, err := buildDSN("sqlite", &Options{Database: "/tmp/a.db"})
			So(err, ShouldBeNil)
			So(dsn, ShouldEqual, "/tmp/a.db")
		})
	})
}

func TestClassify(t *testing.T) {
	Convey("测试 Classify 方法", t, func() {
		So(Classify(nil, ""), ShouldBeNil)

		for _, err := range []error{
			&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"},
			sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique},
			sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintPrimaryKey},
			&pq.Error{Code: "23505"},
		} {
			classified := Classify(err, "INSERT")
			So(errors.Is(classified, rdb.ErrProviderExecution), ShouldBeTrue)
			So(errors.Is(classified, rdb.ErrDuplicateKey), ShouldBeTrue)
		}

		cause := &mysql.MySQLError{Number: 1146, Message: "Table doesn't exist"}
		classified := Classify(cause, "SELECT")
		So(errors.Is(classified, rdb.ErrProviderExecution), ShouldBeTrue)
		So(errors.Is(classified, rdb.ErrDuplicateKey), ShouldBeFalse)
		So(rdb.IsCompileError(classified), ShouldBeFalse)

		var me *mysql.MySQLError
		So(errors.As(classified, &me), ShouldBeTrue)
		So(me, ShouldEqual, cause)

		So(Classify(classified, "x"), ShouldEqual, classified)

		Convey("取消和超时原样返回", func() {
			So(Classify(context.Canceled, "SELECT 1"), ShouldEqual, context.Canceled)
			deadline := errors.WithMessage(context.DeadlineExceeded, "query")
			So(Classify(deadline, "SELECT 1"), ShouldEqual, deadline)
			So(errors.Is(Classify(deadline, "SELECT 1"), rdb.ErrProviderExecution), ShouldBeFalse)
		})
	})
}

func TestConnAndTx(t *testing.T) {
	Convey("测试 Conn 和 Tx", t, func() {
		db := newSQLiteDB(t)
		ctx := context.Background()

		conn, err := db.Open(ctx)
		So(err, ShouldBeNil)
		defer conn.Close()

		_, err = conn.Exec(ctx, raw("CREATE TABLE t (id INTEGER PRIMARY KEY, name TEXT UNIQUE)"))
		So(err, ShouldBeNil)

		Convey("提交", func() {
			tx, err := conn.BeginTx(ctx, nil)
			So(err, ShouldBeNil)
			n, err := tx.Exec(ctx, raw("INSERT INTO t (name) VALUES (?)", "a"))
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 1)
			So(tx.Commit(), ShouldBeNil)
			So(tx.Rollback(), ShouldBeNil)

			v, err := conn.Scalar(ctx, raw("SELECT COUNT(*) FROM t"))
			So(err, ShouldBeNil)
			So(v, ShouldEqual, int64(1))
		})

		Convey("回滚", func() {
			tx, err := conn.BeginTx(ctx, nil)
			So(err, ShouldBeNil)
			_, err = tx.Exec(ctx, raw("INSERT INTO t (name) VALUES (?)", "b"))
			So(err, ShouldBeNil)
			So(tx.Rollback(), ShouldBeNil)

			v, err := conn.Scalar(ctx, raw("SELECT COUNT(*) FROM t WHERE name = ?", "b"))
			So(err, ShouldBeNil)
			So(v, ShouldEqual, int64(0))
		})

		Convey("唯一约束冲突", func() {
			_, err := conn.Exec(ctx, raw("INSERT INTO t (name) VALUES (?)", "dup"))
			So(err, ShouldBeNil)
			_, err = conn.Exec(ctx, raw("INSERT INTO t (name) VALUES (?)", "dup"))
			So(errors.Is(err, rdb.ErrDuplicateKey), ShouldBeTrue)

			var pe *rdb.ProviderError
			So(errors.As(err, &pe), ShouldBeTrue)
			So(pe.Text, ShouldEqual, "INSERT INTO t (name) VALUES (?)")
		})

		Convey("命名参数", func() {
			c := &statement.Compiled{
				Text:     "INSERT INTO t (name) VALUES (@name)",
				Bindings: []statement.Binding{{Name: "name", Value: "named"}},
				Named:    true,
			}
			n, err := conn.Exec(ctx, c)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 1)
		})

		Convey("空结果的 Scalar", func() {
			v, err := conn.Scalar(ctx, raw("SELECT name FROM t WHERE id = ?", -1))
			So(err, ShouldBeNil)
			So(v, ShouldBeNil)
		})
	})
}
