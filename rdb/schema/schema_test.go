package schema

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	_ "github.com/mattn/go-sqlite3"
	. "github.com/smartystreets/goconvey/convey"
)

func openSQLite(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "schema.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec(`CREATE TABLE users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		age INT
	)`)
	if err != nil {
		t.Fatal(err)
	}
	_, err = db.Exec(`CREATE TABLE pairs (a TEXT, b TEXT, v INT, PRIMARY KEY (a, b))`)
	if err != nil {
		t.Fatal(err)
	}
	return db
}

func TestSQLiteProvider(t *testing.T) {
	db := openSQLite(t)
	ctx := context.Background()

	Convey("测试 SQLiteProvider", t, func() {
		p, err := NewProvider("sqlite3", db)
		So(err, ShouldBeNil)

		Convey("单列整数主键即自增列", func() {
			columns, err := p.GetColumns(ctx, "users")
			So(err, ShouldBeNil)
			So(len(columns), ShouldEqual, 3)
			So(columns[0], ShouldResemble, Column{Name: "id", DBType: "INTEGER", Nullable: true, PrimaryKey: true, Identity: true})
			So(columns[1].Name, ShouldEqual, "name")
			So(columns[1].Nullable, ShouldBeFalse)
			So(columns[2].Identity, ShouldBeFalse)
		})

		Convey("联合主键没有自增列", func() {
			columns, err := p.GetColumns(ctx, "pairs")
			So(err, ShouldBeNil)
			So(len(columns), ShouldEqual, 3)
			So(columns[0].PrimaryKey, ShouldBeTrue)
			So(columns[1].PrimaryKey, ShouldBeTrue)
			for _, c := range columns {
				So(c.Identity, ShouldBeFalse)
			}
		})

		Convey("不存在的表", func() {
			columns, err := p.GetColumns(ctx, "missing")
			So(err, ShouldBeNil)
			So(columns, ShouldBeEmpty)
		})
	})
}

func TestNewProvider(t *testing.T) {
	Convey("测试 NewProvider 方法", t, func() {
		for _, name := range []string{"sqlite", "mysql", "postgres", "PostgreSQL"} {
			p, err := NewProvider(name, nil)
			So(err, ShouldBeNil)
			So(p, ShouldNotBeNil)
		}
		_, err := NewProvider("oracle", nil)
		So(err, ShouldNotBeNil)
	})
}

func TestMySQLProvider(t *testing.T) {
	Convey("测试 MySQLProvider", t, func() {
		db, mock, err := sqlmock.New()
		So(err, ShouldBeNil)
		defer db.Close()

		mock.ExpectQuery("FROM information_schema.COLUMNS").WithArgs("users").WillReturnRows(
			sqlmock.NewRows([]string{"COLUMN_NAME", "COLUMN_TYPE", "IS_NULLABLE", "COLUMN_KEY", "EXTRA"}).
				AddRow("id", "bigint", "NO", "PRI", "auto_increment").
				AddRow("email", "varchar(64)", "YES", "UNI", ""),
		)

		columns, err := NewMySQLProvider(db).GetColumns(context.Background(), "users")
		So(err, ShouldBeNil)
		So(columns, ShouldResemble, []Column{
			{Name: "id", DBType: "bigint", PrimaryKey: true, Identity: true},
			{Name: "email", DBType: "varchar(64)", Nullable: true},
		})
		So(mock.ExpectationsWereMet(), ShouldBeNil)
	})
}

func TestPostgresProvider(t *testing.T) {
	Convey("测试 PostgresProvider", t, func() {
		db, mock, err := sqlmock.New()
		So(err, ShouldBeNil)
		defer db.Close()

		mock.ExpectQuery("FROM information_schema.columns").WithArgs("users").WillReturnRows(
			sqlmock.NewRows([]string{"column_name", "data_type", "is_nullable", "is_identity", "column_default", "exists"}).
				AddRow("id", "integer", "NO", "NO", "nextval('users_id_seq'::regclass)", true).
				AddRow("code", "text", "NO", "YES", "", false).
				AddRow("name", "text", "YES", "NO", "", false),
		)

		columns, err := NewPostgresProvider(db).GetColumns(context.Background(), "users")
		So(err, ShouldBeNil)
		So(len(columns), ShouldEqual, 3)
		So(columns[0].Identity, ShouldBeTrue)
		So(columns[0].PrimaryKey, ShouldBeTrue)
		So(columns[1].Identity, ShouldBeTrue)
		So(columns[2].Identity, ShouldBeFalse)
		So(columns[2].Nullable, ShouldBeTrue)
	})
}

func TestStaticProvider(t *testing.T) {
	Convey("测试 StaticProvider", t, func() {
		p := StaticProvider{"Users": {{Name: "id", PrimaryKey: true}}}
		columns, err := p.GetColumns(context.Background(), "users")
		So(err, ShouldBeNil)
		So(len(columns), ShouldEqual, 1)

		columns, err = p.GetColumns(context.Background(), "orders")
		So(err, ShouldBeNil)
		So(columns, ShouldBeNil)
	})
}

func TestCachedProvider(t *testing.T) {
	Convey("测试 CachedProvider", t, func() {
		calls := 0
		inner := ProviderFunc(func(ctx context.Context, table string) ([]Column, error) {
			calls++
			if table == "empty" {
				return nil, nil
			}
			return []Column{{Name: "id", DBType: "INTEGER", PrimaryKey: true, Identity: true}, {Name: "name", Nullable: true}}, nil
		})

		p, err := NewCachedProviderWithOptions(inner, &CachedProviderOptions{Size: 512 * 1024})
		So(err, ShouldBeNil)

		Convey("命中缓存不再查询", func() {
			first, err := p.GetColumns(context.Background(), "users")
			So(err, ShouldBeNil)
			second, err := p.GetColumns(context.Background(), "USERS")
			So(err, ShouldBeNil)
			So(second, ShouldResemble, first)
			So(calls, ShouldEqual, 1)
			So(p.Len(), ShouldEqual, 1)
		})

		Convey("Reset 清空缓存", func() {
			_, _ = p.GetColumns(context.Background(), "users")
			p.Reset()
			_, _ = p.GetColumns(context.Background(), "users")
			So(calls, ShouldEqual, 2)
		})

		Convey("空结果不缓存", func() {
			_, _ = p.GetColumns(context.Background(), "empty")
			_, _ = p.GetColumns(context.Background(), "empty")
			So(calls, ShouldEqual, 2)
		})

		Convey("缺少 provider", func() {
			_, err := NewCachedProviderWithOptions(nil, nil)
			So(err, ShouldNotBeNil)
		})
	})
}

func TestGormProvider(t *testing.T) {
	db := openSQLite(t)

	Convey("测试 GormProvider", t, func() {
		p, err := NewGormProvider("sqlite", db)
		So(err, ShouldBeNil)

		columns, err := p.GetColumns(context.Background(), "users")
		So(err, ShouldBeNil)
		So(len(columns), ShouldEqual, 3)
		So(columns[0].Name, ShouldEqual, "id")
		So(columns[1].Name, ShouldEqual, "name")
		So(columns[2].Name, ShouldEqual, "age")

		columns, err = p.GetColumns(context.Background(), "missing")
		So(err, ShouldBeNil)
		So(columns, ShouldBeNil)

		_, err = NewGormProvider("oracle", db)
		So(err, ShouldNotBeNil)
		_, err = NewGormProvider("sqlite", nil)
		So(err, ShouldNotBeNil)
	})
}
