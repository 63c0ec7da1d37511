package expr

import (
	"testing"

	"github.com/hatlonely/rdbx/rdb"
	"github.com/hatlonely/rdbx/rdb/query"
	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"
)

func TestParse(t *testing.T) {
	Convey("测试 Parse 方法", t, func() {
		Convey("区间条件", func() {
			e, err := Parse("ColumnInt > 5 && ColumnInt <= 8", nil)
			So(err, ShouldBeNil)
			g, err := ToGroup(e)
			So(err, ShouldBeNil)
			inner := g.Children[0].(*query.QueryGroup)
			So(inner.Conjunction, ShouldEqual, query.And)
			left := inner.Children[0].(*query.QueryField)
			right := inner.Children[1].(*query.QueryField)
			So(left.Operation, ShouldEqual, query.GreaterThan)
			So(left.Values, ShouldResemble, []any{int64(5)})
			So(right.Operation, ShouldEqual, query.LessThanOrEqual)
		})

		Convey("选择器与外部变量", func() {
			e, err := Parse("e.Age >= min || e.Name == name", Args{"min": 18, "name": "张三"})
			So(err, ShouldBeNil)
			g, err := ToGroup(e)
			So(err, ShouldBeNil)
			inner := g.Children[0].(*query.QueryGroup)
			So(inner.Conjunction, ShouldEqual, query.Or)
			So(inner.Children[0].(*query.QueryField).Field.Name, ShouldEqual, "Age")
			So(inner.Children[0].(*query.QueryField).Values, ShouldResemble, []any{18})
			So(inner.Children[1].(*query.QueryField).Values, ShouldResemble, []any{"张三"})
		})

		Convey("字符串函数与集合包含", func() {
			e, err := Parse(`strings.HasPrefix(Name, "ab") && !slices.Contains(ids, Id)`, Args{"ids": []int{1, 2}})
			So(err, ShouldBeNil)
			g, err := ToGroup(e)
			So(err, ShouldBeNil)
			inner := g.Children[0].(*query.QueryGroup)
			like := inner.Children[0].(*query.QueryField)
			So(like.Operation, ShouldEqual, query.Like)
			So(like.Values, ShouldResemble, []any{"ab%"})
			notIn := inner.Children[1].(*query.QueryField)
			So(notIn.Operation, ShouldEqual, query.NotIn)
			So(notIn.Values, ShouldResemble, []any{1, 2})
		})

		Convey("字面量", func() {
			e, err := Parse(`Score > -1.5 && Flag == true && Deleted == nil && Code != 'x'`, nil)
			So(err, ShouldBeNil)
			g, err := ToGroup(e)
			So(err, ShouldBeNil)
			fields := g.Fields()
			So(len(fields), ShouldEqual, 4)
			So(fields[0].Values, ShouldResemble, []any{-1.5})
			So(fields[1].Values, ShouldResemble, []any{true})
			So(fields[2].Operation, ShouldEqual, query.IsNull)
			So(fields[3].Values, ShouldResemble, []any{"x"})
		})

		Convey("括号改变结合顺序", func() {
			e, err := Parse("(a == 1 || b == 2) && c == 3", nil)
			So(err, ShouldBeNil)
			g, err := ToGroup(e)
			So(err, ShouldBeNil)
			top := g.Children[0].(*query.QueryGroup)
			So(top.Conjunction, ShouldEqual, query.And)
			So(top.Children[0].(*query.QueryGroup).Conjunction, ShouldEqual, query.Or)
		})

		Convey("不支持的语法", func() {
			for _, src := range []string{
				"a + 1 > 2",
				"fmt.Println(a)",
				"a[0] == 1",
				"strings.Contains(a)",
				"a ==",
				"-a > 1",
			} {
				_, err := Parse(src, nil)
				So(errors.Is(err, rdb.ErrUnsupportedExpression), ShouldBeTrue)
			}
		})

		Convey("MustParse 失败时 panic", func() {
			So(func() { MustParse("a +", nil) }, ShouldPanic)
			So(func() { MustParse("a > 1", nil) }, ShouldNotPanic)
		})
	})
}
