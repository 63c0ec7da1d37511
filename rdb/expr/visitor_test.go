package expr

import (
	"testing"

	"github.com/hatlonely/rdbx/rdb"
	"github.com/hatlonely/rdbx/rdb/query"
	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"
)

func single(g *query.QueryGroup) *query.QueryField {
	So(len(g.Children), ShouldEqual, 1)
	f, ok := g.Children[0].(*query.QueryField)
	So(ok, ShouldBeTrue)
	return f
}

func TestToGroupComparison(t *testing.T) {
	Convey("测试比较表达式转换", t, func() {
		Convey("关系比较一一对应", func() {
			cases := []struct {
				e  Expr
				op query.Operation
			}{
				{F("a").Eq(1), query.Equal},
				{F("a").Ne(1), query.NotEqual},
				{F("a").Gt(1), query.GreaterThan},
				{F("a").Ge(1), query.GreaterThanOrEqual},
				{F("a").Lt(1), query.LessThan},
				{F("a").Le(1), query.LessThanOrEqual},
			}
			for _, c := range cases {
				g, err := ToGroup(c.e)
				So(err, ShouldBeNil)
				So(g.Conjunction, ShouldEqual, query.And)
				f := single(g)
				So(f.Field.Name, ShouldEqual, "a")
				So(f.Operation, ShouldEqual, c.op)
				So(f.Values, ShouldResemble, []any{1})
			}
		})

		Convey("常量在左侧时交换方向", func() {
			g, err := ToGroup(Compare(Const(5), Less, F("a").Expr()))
			So(err, ShouldBeNil)
			f := single(g)
			So(f.Operation, ShouldEqual, query.GreaterThan)
			So(f.Values, ShouldResemble, []any{5})
		})

		Convey("与 nil 比较转换为 IS NULL", func() {
			g, err := ToGroup(F("a").Eq(nil))
			So(err, ShouldBeNil)
			So(single(g).Operation, ShouldEqual, query.IsNull)

			g, err = ToGroup(F("a").Ne(nil))
			So(err, ShouldBeNil)
			So(single(g).Operation, ShouldEqual, query.IsNotNull)
		})

		Convey("布尔字段单独出现视为等于 true", func() {
			g, err := ToGroup(F("active").Expr())
			So(err, ShouldBeNil)
			f := single(g)
			So(f.Operation, ShouldEqual, query.Equal)
			So(f.Values, ShouldResemble, []any{true})
		})
	})
}

func TestToGroupLogical(t *testing.T) {
	Convey("测试逻辑表达式转换", t, func() {
		Convey("&& 生成 AND 分组", func() {
			g, err := ToGroup(And(F("a").Gt(5), F("a").Le(8)))
			So(err, ShouldBeNil)
			inner := g.Children[0].(*query.QueryGroup)
			So(inner.Conjunction, ShouldEqual, query.And)
			So(len(inner.Children), ShouldEqual, 2)
		})

		Convey("嵌套保持结构不展平", func() {
			e := Or(F("a").Eq(1), And(F("b").Eq(2), F("c").Eq(3)))
			g, err := ToGroup(e)
			So(err, ShouldBeNil)
			top := g.Children[0].(*query.QueryGroup)
			So(top.Conjunction, ShouldEqual, query.Or)
			So(top.Children[0].(*query.QueryField).Field.Name, ShouldEqual, "a")
			nested := top.Children[1].(*query.QueryGroup)
			So(nested.Conjunction, ShouldEqual, query.And)
			So(len(nested.Children), ShouldEqual, 2)
		})

		Convey("多个操作数右结合嵌套", func() {
			g, err := ToGroup(And(F("a").Eq(1), F("b").Eq(2), F("c").Eq(3)))
			So(err, ShouldBeNil)
			top := g.Children[0].(*query.QueryGroup)
			So(len(top.Children), ShouldEqual, 2)
			So(top.Children[1].(*query.QueryGroup).Conjunction, ShouldEqual, query.And)
		})

		Convey("取反分组只设置标记", func() {
			g, err := ToGroup(Negate(And(F("a").Eq(1), F("b").Eq(2))))
			So(err, ShouldBeNil)
			top := g.Children[0].(*query.QueryGroup)
			So(top.Negated, ShouldBeTrue)
			So(top.Children[0].(*query.QueryField).Operation, ShouldEqual, query.Equal)
		})
	})
}

func TestToGroupCalls(t *testing.T) {
	Convey("测试方法调用转换", t, func() {
		Convey("字符串包含、前缀、后缀转换为 LIKE", func() {
			g, err := ToGroup(F("name").Contains("ab"))
			So(err, ShouldBeNil)
			f := single(g)
			So(f.Operation, ShouldEqual, query.Like)
			So(f.Values, ShouldResemble, []any{"%ab%"})

			g, _ = ToGroup(F("name").StartsWith("ab"))
			So(single(g).Values, ShouldResemble, []any{"ab%"})

			g, _ = ToGroup(F("name").EndsWith("ab"))
			So(single(g).Values, ShouldResemble, []any{"%ab"})
		})

		Convey("集合包含转换为 IN", func() {
			g, err := ToGroup(In([]int{1, 2, 3}, "id"))
			So(err, ShouldBeNil)
			f := single(g)
			So(f.Operation, ShouldEqual, query.In)
			So(f.Values, ShouldResemble, []any{1, 2, 3})
		})

		Convey("取反集合包含转换为 NOT IN", func() {
			g, err := ToGroup(Negate(In([]string{"x"}, "code")))
			So(err, ShouldBeNil)
			So(single(g).Operation, ShouldEqual, query.NotIn)
		})

		Convey("空集合", func() {
			_, err := ToGroup(In([]int{}, "id"))
			So(errors.Is(err, rdb.ErrInvalidParameterShape), ShouldBeTrue)
		})
	})
}

func TestToGroupPolarity(t *testing.T) {
	Convey("测试布尔极性", t, func() {
		Convey("单层取反", func() {
			g, err := ToGroup(Negate(F("a").Gt(5)))
			So(err, ShouldBeNil)
			So(single(g).Operation, ShouldEqual, query.LessThanOrEqual)
		})

		Convey("与 true 比较保持极性", func() {
			g, err := ToGroup(Compare(F("name").Contains("x"), Equal, Const(true)))
			So(err, ShouldBeNil)
			So(single(g).Operation, ShouldEqual, query.Like)
		})

		Convey("与 false 比较翻转极性", func() {
			g, err := ToGroup(Compare(F("name").Contains("x"), Equal, Const(false)))
			So(err, ShouldBeNil)
			So(single(g).Operation, ShouldEqual, query.NotLike)

			g, err = ToGroup(Compare(F("a").Gt(1), NotEqual, Const(true)))
			So(err, ShouldBeNil)
			So(single(g).Operation, ShouldEqual, query.LessThanOrEqual)
		})

		Convey("!= false 不翻转", func() {
			g, err := ToGroup(Compare(F("a").Gt(1), NotEqual, Const(false)))
			So(err, ShouldBeNil)
			So(single(g).Operation, ShouldEqual, query.GreaterThan)
		})

		Convey("常量在左侧的布尔比较", func() {
			g, err := ToGroup(Compare(Const(false), Equal, F("a").Gt(1)))
			So(err, ShouldBeNil)
			So(single(g).Operation, ShouldEqual, query.LessThanOrEqual)
		})

		// 多层取反只按奇偶次数校验，没有可对照的外部行为
		Convey("多层取反按奇偶折叠", func() {
			g, err := ToGroup(Negate(Negate(F("a").Gt(5))))
			So(err, ShouldBeNil)
			So(single(g).Operation, ShouldEqual, query.GreaterThan)

			g, err = ToGroup(Negate(Negate(Negate(F("a").Gt(5)))))
			So(err, ShouldBeNil)
			So(single(g).Operation, ShouldEqual, query.LessThanOrEqual)

			g, err = ToGroup(Compare(Negate(F("a").Gt(5)), Equal, Const(false)))
			So(err, ShouldBeNil)
			So(single(g).Operation, ShouldEqual, query.GreaterThan)

			g, err = ToGroup(Negate(Compare(Negate(And(F("a").Eq(1), F("b").Eq(2))), NotEqual, Const(true))))
			So(err, ShouldBeNil)
			So(g.Children[0].(*query.QueryGroup).Negated, ShouldBeTrue)
		})
	})
}

func TestToGroupUnsupported(t *testing.T) {
	Convey("测试不支持的表达式", t, func() {
		cases := []Expr{
			Const(true),
			Compare(F("a").Expr(), Equal, F("b").Expr()),
			Compare(Const(1), Equal, Const(1)),
			Compare(F("a").Gt(1), Greater, Const(true)),
			Compare(F("a").Gt(1), Equal, Const(1)),
			&Call{Method: Contains, Target: F("a").Expr(), Args: []Expr{F("b").Expr()}},
			&Call{Method: StartsWith, Target: Const([]int{1}), Args: []Expr{F("b").Expr()}},
			&Call{Method: Contains, Target: F("a").Expr(), Args: []Expr{Const(1)}},
			&Binary{Op: BinaryOp(42), Left: F("a").Expr(), Right: Const(1)},
			&Not{},
		}
		for _, e := range cases {
			g, err := ToGroup(e)
			So(g, ShouldBeNil)
			So(errors.Is(err, rdb.ErrUnsupportedExpression), ShouldBeTrue)
		}

		Convey("部分不支持时整体失败", func() {
			g, err := ToGroup(And(F("a").Eq(1), Const(true)))
			So(g, ShouldBeNil)
			So(errors.Is(err, rdb.ErrUnsupportedExpression), ShouldBeTrue)
		})

		Convey("nil 表达式为空树", func() {
			g, err := ToGroup(nil)
			So(err, ShouldBeNil)
			So(g.IsEmpty(), ShouldBeTrue)
		})
	})
}
