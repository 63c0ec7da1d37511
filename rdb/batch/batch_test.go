package batch

import (
	"context"
	"database/sql"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/hatlonely/rdbx/rdb"
	"github.com/hatlonely/rdbx/rdb/database"
	"github.com/hatlonely/rdbx/rdb/dialect"
	"github.com/hatlonely/rdbx/rdb/mapping"
	"github.com/hatlonely/rdbx/rdb/statement"
	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"
)

type Item struct {
	ID   int64  `rdb:"id,pk,identity"`
	Code string `rdb:"code"`
}

func descriptor() *mapping.Descriptor {
	m, err := mapping.ParseModel(reflect.TypeOf(Item{}))
	if err != nil {
		panic(err)
	}
	d, err := mapping.Build(m, "", nil)
	if err != nil {
		panic(err)
	}
	return d
}

func items(n int) []any {
	entities := make([]any, n)
	for i := range entities {
		entities[i] = &Item{Code: string(rune('a' + i%26))}
	}
	return entities
}

func TestNewPlan(t *testing.T) {
	Convey("测试 NewPlan 方法", t, func() {
		Convey("批次数和每批行数", func() {
			for total := 1; total <= 40; total++ {
				for size := 1; size <= 45; size++ {
					p := NewPlan(total, size)
					So(len(p.Batches), ShouldEqual, (total+size-1)/size)

					covered := 0
					for i, b := range p.Batches {
						So(b.Index, ShouldEqual, i)
						So(b.Start, ShouldEqual, covered)
						So(b.Size(), ShouldBeGreaterThan, 0)
						covered = b.End
					}
					So(covered, ShouldEqual, total)

					last := p.Batches[len(p.Batches)-1].Size()
					if total%size == 0 || size > total {
						So(last, ShouldEqual, min(size, total))
					} else {
						So(last, ShouldEqual, total%size)
					}
				}
			}
		})

		Convey("没有实体时没有批次", func() {
			So(NewPlan(0, 10).Batches, ShouldBeEmpty)
		})

		Convey("批大小不大于 0 时只有一批", func() {
			p := NewPlan(7, 0)
			So(len(p.Batches), ShouldEqual, 1)
			So(p.Batches[0].Size(), ShouldEqual, 7)
			So(len(NewPlan(7, -3).Batches), ShouldEqual, 1)
		})

		Convey("参数名前缀", func() {
			So(Prefix(0), ShouldEqual, "r0_")
			So(Prefix(12), ShouldEqual, "r12_")
		})
	})
}

func TestPlannerCompile(t *testing.T) {
	Convey("测试 Planner.Compile 方法", t, func() {
		planner := NewPlanner(statement.NewCompiler(dialect.NewSQLite()), descriptor())

		plan, compiled, err := planner.Compile(statement.Insert, items(5), nil, 2)
		So(err, ShouldBeNil)
		So(len(plan.Batches), ShouldEqual, 3)
		So(len(compiled), ShouldEqual, 3)
		So(len(compiled[2].Units), ShouldEqual, 1)
		So(compiled[2].Units[0].Bindings[0].Name, ShouldEqual, Prefix(0)+"code")

		Convey("编译失败时不返回任何语句", func() {
			entities := items(5)
			entities[4] = Item{}
			entities[3] = "not an item"
			_, compiled, err := planner.Compile(statement.Update, entities, nil, 2)
			So(err, ShouldNotBeNil)
			So(compiled, ShouldBeNil)
		})

		Convey("不支持的语句类型", func() {
			_, _, err := planner.Compile(statement.Select, items(1), nil, 1)
			So(errors.Is(err, rdb.ErrInvalidParameterShape), ShouldBeTrue)
		})
	})
}

func TestPlannerExecute(t *testing.T) {
	Convey("测试 Planner.Execute 方法", t, func() {
		db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
		So(err, ShouldBeNil)
		defer db.Close()
		ctx := context.Background()

		Convey("乱序返回的自增键按行号写回", func() {
			planner := NewPlanner(statement.NewCompiler(dialect.NewSQLServer()), descriptor())
			entities := items(5)
			plan, compiled, err := planner.Compile(statement.Insert, entities, nil, 3)
			So(err, ShouldBeNil)

			mock.ExpectQuery(compiled[0].Text).WillReturnRows(sqlmock.NewRows([]string{"id", "__RowToken"}).
				AddRow(int64(102), int64(2)).
				AddRow(int64(100), int64(0)).
				AddRow(int64(101), int64(1)))
			mock.ExpectQuery(compiled[1].Text).WillReturnRows(sqlmock.NewRows([]string{"id", "__RowToken"}).
				AddRow(int64(104), int64(1)).
				AddRow(int64(103), int64(0)))

			var progress []int
			planner.WithProgress(func(done, total int) {
				So(total, ShouldEqual, 2)
				progress = append(progress, done)
			})
			affected, err := planner.Execute(ctx, database.NewSession(db), plan, compiled, entities)
			So(err, ShouldBeNil)
			So(affected, ShouldEqual, 5)
			So(progress, ShouldResemble, []int{1, 2})
			for i, e := range entities {
				So(e.(*Item).ID, ShouldEqual, int64(100+i))
			}
			So(mock.ExpectationsWereMet(), ShouldBeNil)
		})

		Convey("行号越界", func() {
			planner := NewPlanner(statement.NewCompiler(dialect.NewSQLServer()), descriptor())
			entities := items(2)
			plan, compiled, err := planner.Compile(statement.Insert, entities, nil, 2)
			So(err, ShouldBeNil)
			mock.ExpectQuery(compiled[0].Text).WillReturnRows(sqlmock.NewRows([]string{"id", "__RowToken"}).AddRow(int64(1), int64(5)))
			_, err = planner.Execute(ctx, database.NewSession(db), plan, compiled, entities)
			So(errors.Is(err, rdb.ErrProviderExecution), ShouldBeTrue)
		})

		Convey("LastInsertId 按行写回，影响行数累加", func() {
			planner := NewPlanner(statement.NewCompiler(dialect.NewMySQL()), descriptor())
			entities := items(3)
			plan, compiled, err := planner.Compile(statement.Insert, entities, nil, 2)
			So(err, ShouldBeNil)
			for i := 0; i < 3; i++ {
				mock.ExpectExec("INSERT INTO `item` (`code`) VALUES (?)").WillReturnResult(sqlmock.NewResult(int64(10+i), 1))
			}
			affected, err := planner.Execute(ctx, database.NewSession(db), plan, compiled, entities)
			So(err, ShouldBeNil)
			So(affected, ShouldEqual, 3)
			So(entities[2].(*Item).ID, ShouldEqual, 12)
		})

		Convey("驱动错误停止后续批次", func() {
			planner := NewPlanner(statement.NewCompiler(dialect.NewMySQL()), descriptor())
			entities := []any{&Item{ID: 1, Code: "a"}, &Item{ID: 2, Code: "b"}, &Item{ID: 3, Code: "c"}}
			plan, compiled, err := planner.Compile(statement.Delete, entities, nil, 1)
			So(err, ShouldBeNil)
			mock.ExpectExec("DELETE FROM `item` WHERE `id` = ?").WithArgs(1).WillReturnResult(sqlmock.NewResult(0, 1))
			mock.ExpectExec("DELETE FROM `item` WHERE `id` = ?").WithArgs(2).WillReturnError(sql.ErrConnDone)
			affected, err := planner.Execute(ctx, database.NewSession(db), plan, compiled, entities)
			So(errors.Is(err, sql.ErrConnDone), ShouldBeTrue)
			So(affected, ShouldEqual, 1)
			So(mock.ExpectationsWereMet(), ShouldBeNil)
		})
	})
}

// cancelSession 执行第 n 个批次后取消 ctx
type cancelSession struct {
	database.Session
	cancel context.CancelFunc
	after  int
	calls  int
}

func (s *cancelSession) Exec(ctx context.Context, c *statement.Compiled) (int64, error) {
	s.calls++
	if s.calls == s.after {
		s.cancel()
	}
	return 1, nil
}

func TestPlannerCancel(t *testing.T) {
	Convey("测试取消后不再发出新的批次", t, func() {
		planner := NewPlanner(statement.NewCompiler(dialect.NewSQLite()), descriptor())
		entities := []any{&Item{ID: 1}, &Item{ID: 2}, &Item{ID: 3}, &Item{ID: 4}}
		plan, compiled, err := planner.Compile(statement.Delete, entities, nil, 1)
		So(err, ShouldBeNil)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		s := &cancelSession{cancel: cancel, after: 2}
		affected, err := planner.Execute(ctx, s, plan, compiled, entities)
		So(errors.Is(err, context.Canceled), ShouldBeTrue)
		So(affected, ShouldEqual, 2)
		So(s.calls, ShouldEqual, 2)

		Convey("已经取消的 ctx 一个批次都不执行", func() {
			s := &cancelSession{cancel: func() {}}
			_, err := planner.Execute(ctx, s, plan, compiled, entities)
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
			So(s.calls, ShouldEqual, 0)
		})

		Convey("语句数与批次数不一致", func() {
			_, err := planner.Execute(context.Background(), s, plan, compiled[:1], entities)
			So(errors.Is(err, rdb.ErrInvalidParameterShape), ShouldBeTrue)
		})
	})
}

// cancelAfterExec 第一次 ExecContext 返回后取消 ctx
type cancelAfterExec struct {
	*sql.DB
	cancel context.CancelFunc
	calls  int
}

func (e *cancelAfterExec) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := e.DB.ExecContext(ctx, query, args...)
	e.calls++
	if e.calls == 1 {
		e.cancel()
	}
	return res, err
}

func TestPlannerDispatchedBatch(t *testing.T) {
	Convey("测试已经发出的批次在取消后仍然执行完", t, func() {
		db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "batch.db"))
		So(err, ShouldBeNil)
		defer db.Close()
		_, err = db.Exec(`CREATE TABLE "item" ("id" INTEGER PRIMARY KEY AUTOINCREMENT, "code" TEXT)`)
		So(err, ShouldBeNil)

		planner := NewPlanner(statement.NewCompiler(dialect.NewSQLite()), descriptor())
		entities := items(3)
		plan, compiled, err := planner.Compile(statement.Insert, entities, nil, 0)
		So(err, ShouldBeNil)
		So(len(plan.Batches), ShouldEqual, 1)
		So(len(compiled[0].Steps()), ShouldEqual, 3)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		exec := &cancelAfterExec{DB: db, cancel: cancel}
		affected, err := planner.Execute(ctx, database.NewSession(exec), plan, compiled, entities)
		So(err, ShouldBeNil)
		So(affected, ShouldEqual, 3)
		So(exec.calls, ShouldEqual, 3)
		So(ctx.Err(), ShouldNotBeNil)

		var n int
		So(db.QueryRow(`SELECT COUNT(*) FROM "item"`).Scan(&n), ShouldBeNil)
		So(n, ShouldEqual, 3)
		for i, e := range entities {
			So(e.(*Item).ID, ShouldEqual, int64(i+1))
		}
	})
}
