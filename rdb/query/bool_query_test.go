package query

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestQueryDSL(t *testing.T) {
	Convey("测试查询 DSL 转换为条件树", t, func() {
		Convey("TermQuery", func() {
			q := &TermQuery{Field: "status", Value: "active"}
			So(q.Type(), ShouldEqual, QueryTypeTerm)
			f := q.ToNode().(*QueryField)
			So(f.Operation, ShouldEqual, Equal)
			So(f.Values, ShouldResemble, []any{"active"})
		})

		Convey("TermsQuery", func() {
			q := &TermsQuery{Field: "id", Values: []any{1, 2, 3}}
			f := q.ToNode().(*QueryField)
			So(f.Operation, ShouldEqual, In)
			So(len(f.Values), ShouldEqual, 3)
		})

		Convey("RangeQuery 只包含设置的边界", func() {
			q := &RangeQuery{Field: "age", Gte: 18, Lt: 60}
			g := q.ToNode().(*QueryGroup)
			So(len(g.Children), ShouldEqual, 2)
			So(g.Children[0].(*QueryField).Operation, ShouldEqual, GreaterThanOrEqual)
			So(g.Children[1].(*QueryField).Operation, ShouldEqual, LessThan)
		})

		Convey("PrefixQuery", func() {
			f := (&PrefixQuery{Field: "name", Value: "张"}).ToNode().(*QueryField)
			So(f.Operation, ShouldEqual, Like)
			So(f.Values[0], ShouldEqual, "张%")
		})

		Convey("WildcardQuery", func() {
			f := (&WildcardQuery{Field: "name", Value: "a*b?"}).ToNode().(*QueryField)
			So(f.Values[0], ShouldEqual, "a%b_")
		})

		Convey("MatchQuery", func() {
			f := (&MatchQuery{Field: "name", Value: "abc"}).ToNode().(*QueryField)
			So(f.Values[0], ShouldEqual, "%abc%")
		})

		Convey("ExistsQuery", func() {
			f := (&ExistsQuery{Field: "email"}).ToNode().(*QueryField)
			So(f.Operation, ShouldEqual, IsNotNull)
		})

		Convey("BoolQuery", func() {
			q := &BoolQuery{
				Must:    []Query{&TermQuery{Field: "status", Value: "active"}},
				Filter:  []Query{&RangeQuery{Field: "age", Gte: 18}},
				Should:  []Query{&TermQuery{Field: "city", Value: "北京"}, &TermQuery{Field: "city", Value: "上海"}},
				MustNot: []Query{&TermQuery{Field: "deleted", Value: true}, &RangeQuery{Field: "score", Lt: 10}},
			}
			So(q.Type(), ShouldEqual, QueryTypeBool)
			g := q.ToNode().(*QueryGroup)
			So(g.Conjunction, ShouldEqual, And)
			So(len(g.Children), ShouldEqual, 5)

			should := g.Children[2].(*QueryGroup)
			So(should.Conjunction, ShouldEqual, Or)
			So(len(should.Children), ShouldEqual, 2)

			So(g.Children[3].(*QueryField).Operation, ShouldEqual, NotEqual)
			So(g.Children[4].(*QueryGroup).Negated, ShouldBeTrue)
		})
	})
}
