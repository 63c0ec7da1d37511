// Package where 把调用方传入的各种过滤条件统一转换为条件树
package where

import (
	"github.com/hatlonely/rdbx/rdb"
	"github.com/hatlonely/rdbx/rdb/expr"
	"github.com/hatlonely/rdbx/rdb/mapping"
	"github.com/hatlonely/rdbx/rdb/param"
	"github.com/hatlonely/rdbx/rdb/query"
)

// Normalize 支持的形状：
//   - nil：不过滤
//   - *query.QueryGroup / *query.QueryField / []*query.QueryField / []query.Node
//   - query.Query：term、range、bool 等 DSL
//   - expr.Expr：谓词表达式
//   - *param.Bag、map、结构体：每一项生成一个相等条件，nil 值生成 IS NULL
//   - 标量：主键等于该值
//
// 返回的条件树每次都是新建的，调用方可以随意修改
func Normalize(where any, desc *mapping.Descriptor) (*query.QueryGroup, error) {
	g, err := normalize(where, desc)
	if err != nil {
		return nil, err
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

func normalize(where any, desc *mapping.Descriptor) (*query.QueryGroup, error) {
	switch v := where.(type) {
	case nil:
		return query.AllOf(), nil
	case *query.QueryGroup:
		if v == nil {
			return query.AllOf(), nil
		}
		return v.Clone(), nil
	case query.QueryGroup:
		return v.Clone(), nil
	case *query.QueryField:
		if v == nil {
			return query.AllOf(), nil
		}
		f := *v
		return query.AllOf(&f), nil
	case query.QueryField:
		return query.AllOf(&v), nil
	case []*query.QueryField:
		g := query.AllOf()
		for _, f := range v {
			if f == nil {
				continue
			}
			c := *f
			g.Add(&c)
		}
		return g, nil
	case []query.QueryField:
		g := query.AllOf()
		for i := range v {
			c := v[i]
			g.Add(&c)
		}
		return g, nil
	case []query.Node:
		return query.AllOf(v...).Clone(), nil
	case query.Query:
		return query.Group(v.ToNode()).Clone(), nil
	case expr.Expr:
		return expr.ToGroup(v)
	}

	if param.IsBagShape(where) {
		bag, err := param.From(where)
		if err != nil {
			return nil, err
		}
		return FromBag(bag), nil
	}

	if param.IsScalar(where) {
		return primaryKeyFilter(where, desc)
	}
	return nil, rdb.InvalidParameterShape("unsupported filter shape %T", where)
}

// FromBag 参数包的每一项生成一个相等条件，保持参数顺序
func FromBag(bag *param.Bag) *query.QueryGroup {
	g := query.AllOf()
	for _, p := range bag.Params() {
		if query.IsNil(p.Value) {
			g.Add(query.Null(p.Name))
			continue
		}
		g.Add(query.Eq(p.Name, p.Value))
	}
	return g
}

func primaryKeyFilter(value any, desc *mapping.Descriptor) (*query.QueryGroup, error) {
	if desc == nil {
		return nil, rdb.MissingPrimaryKey("")
	}
	pk := desc.PrimaryKey()
	if pk == nil {
		return nil, rdb.MissingPrimaryKey(desc.Table)
	}
	if query.IsNil(value) {
		return query.AllOf(query.Null(pk.Name)), nil
	}
	return query.AllOf(query.Eq(pk.Name, value)), nil
}
