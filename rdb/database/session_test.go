package database

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/hatlonely/rdbx/log/logger"
	"github.com/hatlonely/rdbx/rdb"
	"github.com/hatlonely/rdbx/rdb/statement"
	"github.com/pkg/errors"
	dto "github.com/prometheus/client_model/go"
	. "github.com/smartystreets/goconvey/convey"
)

func TestSession(t *testing.T) {
	Convey("测试 Session", t, func() {
		db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
		So(err, ShouldBeNil)
		defer db.Close()
		s := NewSession(db)
		ctx := context.Background()

		Convey("按往返类型读取自增键", func() {
			c := &statement.Compiled{
				Kind: statement.Merge,
				Units: []statement.Unit{
					{Text: "INSERT a", Bindings: []statement.Binding{{Name: "r0_a", Value: 1}}, Token: 0, Keys: statement.KeyLastInsertID},
					{Text: "INSERT skipped", Token: 1, Keys: statement.KeyLastInsertID},
					{Text: "UPDATE c", Token: 2, Keys: statement.KeyNone},
					{Text: "SELECT id", Token: 2, Keys: statement.KeySelect},
					{Text: "MERGE d", Token: -1, Keys: statement.KeyReturning},
				},
			}
			mock.ExpectExec("INSERT a").WithArgs(1).WillReturnResult(sqlmock.NewResult(5, 1))
			mock.ExpectExec("INSERT skipped").WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectExec("UPDATE c").WillReturnResult(sqlmock.NewResult(0, 1))
			mock.ExpectQuery("SELECT id").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(9)))
			mock.ExpectQuery("MERGE d").WillReturnRows(sqlmock.NewRows([]string{"id", "__RowToken"}).
				AddRow(int64(21), int64(4)).
				AddRow(int64(20), []byte("3")))

			keys, affected, err := s.ExecuteReturningGeneratedKeys(ctx, c)
			So(err, ShouldBeNil)
			So(affected, ShouldEqual, 4)
			So(keys, ShouldResemble, []GeneratedKey{
				{Token: 0, Value: int64(5)},
				{Token: 2, Value: int64(9)},
				{Token: 4, Value: int64(21)},
				{Token: 3, Value: int64(20)},
			})
			So(mock.ExpectationsWereMet(), ShouldBeNil)
		})

		Convey("单条语句的影响行数", func() {
			mock.ExpectExec("DELETE FROM t").WillReturnResult(sqlmock.NewResult(0, 3))
			n, err := s.Exec(ctx, &statement.Compiled{Text: "DELETE FROM t"})
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 3)
		})

		Convey("驱动错误原样透传", func() {
			cause := errors.New("boom")
			mock.ExpectExec("UPDATE t").WillReturnError(cause)
			_, err := s.Exec(ctx, &statement.Compiled{Text: "UPDATE t"})
			So(errors.Is(err, rdb.ErrProviderExecution), ShouldBeTrue)
			So(errors.Cause(err), ShouldEqual, err)
			So(errors.Unwrap(err), ShouldEqual, cause)

			mock.ExpectQuery("SELECT 1").WillReturnError(cause)
			_, err = s.Query(ctx, &statement.Compiled{Text: "SELECT 1"})
			So(errors.Is(err, rdb.ErrProviderExecution), ShouldBeTrue)
		})

		Convey("查询不能拆成多次往返", func() {
			_, err := s.Query(ctx, &statement.Compiled{Units: []statement.Unit{{}, {}}})
			So(errors.Is(err, rdb.ErrInvalidParameterShape), ShouldBeTrue)
		})

		Convey("Scalar", func() {
			mock.ExpectQuery("SELECT COUNT(*) FROM t").WithArgs(2).WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(int64(7)))
			v, err := s.Scalar(ctx, &statement.Compiled{Text: "SELECT COUNT(*) FROM t", Bindings: []statement.Binding{{Value: 2}}})
			So(err, ShouldBeNil)
			So(v, ShouldEqual, int64(7))
		})

		Convey("行号不是整数", func() {
			mock.ExpectQuery("MERGE x").WillReturnRows(sqlmock.NewRows([]string{"id", "token"}).AddRow(int64(1), 1.5))
			_, _, err := s.ExecuteReturningGeneratedKeys(ctx, &statement.Compiled{Text: "MERGE x", Keys: statement.KeyReturning})
			So(err, ShouldNotBeNil)
		})
	})
}

func TestObservableSession(t *testing.T) {
	Convey("测试 ObservableSession", t, func() {
		db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
		So(err, ShouldBeNil)
		defer db.Close()
		ctx := context.Background()

		_, err = NewObservableSession(nil, "sqlite", &ObservableOptions{Name: "x"}, nil)
		So(err, ShouldNotBeNil)
		_, err = NewObservableSession(NewSession(db), "sqlite", nil, nil)
		So(err, ShouldNotBeNil)

		options := &ObservableOptions{EnableMetrics: true, EnableLogging: true, EnableTracing: true, Name: "rdb_observable_test"}
		obs, err := NewObservableSession(NewSession(db), "sqlite", options, logger.NewNop())
		So(err, ShouldBeNil)

		mock.ExpectExec("DELETE FROM t").WillReturnResult(sqlmock.NewResult(0, 2))
		n, err := obs.Exec(ctx, &statement.Compiled{Kind: statement.Delete, Text: "DELETE FROM t"})
		So(err, ShouldBeNil)
		So(n, ShouldEqual, 2)

		mock.ExpectExec("DELETE FROM t").WillReturnError(errors.New("locked"))
		_, err = obs.Exec(ctx, &statement.Compiled{Kind: statement.Delete, Text: "DELETE FROM t"})
		So(errors.Is(err, rdb.ErrProviderExecution), ShouldBeTrue)

		mock.ExpectQuery("SELECT COUNT(*) FROM t").WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(int64(1)))
		v, err := obs.Scalar(ctx, &statement.Compiled{Kind: statement.Aggregate, Text: "SELECT COUNT(*) FROM t"})
		So(err, ShouldBeNil)
		So(v, ShouldEqual, int64(1))

		m := &dto.Metric{}
		So(obs.metrics.statementCounter.WithLabelValues("delete", "success").Write(m), ShouldBeNil)
		So(m.GetCounter().GetValue(), ShouldEqual, 1)
		So(obs.metrics.statementCounter.WithLabelValues("delete", "error").Write(m), ShouldBeNil)
		So(m.GetCounter().GetValue(), ShouldEqual, 1)

		Convey("同名指标复用已注册的收集器", func() {
			again, err := NewObservableSession(NewSession(db), "sqlite", options, nil)
			So(err, ShouldBeNil)
			So(again.metrics.statementCounter, ShouldEqual, obs.metrics.statementCounter)
		})
	})
}
