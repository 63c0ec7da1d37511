package expr

import (
	"reflect"

	"github.com/hatlonely/rdbx/rdb"
	"github.com/hatlonely/rdbx/rdb/query"
)

var comparisonOps = map[BinaryOp]query.Operation{
	Equal:          query.Equal,
	NotEqual:       query.NotEqual,
	Greater:        query.GreaterThan,
	GreaterOrEqual: query.GreaterThanOrEqual,
	Less:           query.LessThan,
	LessOrEqual:    query.LessThanOrEqual,
}

// 常量在左侧时交换比较方向
var mirroredOps = map[BinaryOp]BinaryOp{
	Equal:          Equal,
	NotEqual:       NotEqual,
	Greater:        Less,
	GreaterOrEqual: LessOrEqual,
	Less:           Greater,
	LessOrEqual:    GreaterOrEqual,
}

// ToGroup 把谓词表达式转换为条件树
// 根节点总是只有一个子节点的 AND，子节点是表达式本身对应的字段条件或分组
// && 与 || 保持原有嵌套，取反按奇偶次数翻转极性，遇到无法识别的节点整体失败
func ToGroup(e Expr) (*query.QueryGroup, error) {
	if e == nil {
		return query.AllOf(), nil
	}
	n, err := visit(e, false)
	if err != nil {
		return nil, err
	}
	return query.AllOf(n), nil
}

func visit(e Expr, negate bool) (query.Node, error) {
	switch v := e.(type) {
	case *Not:
		if v.Operand == nil {
			return nil, rdb.UnsupportedExpression("negation without operand")
		}
		return visit(v.Operand, !negate)
	case *Binary:
		switch v.Op {
		case AndAlso, OrElse:
			return visitLogical(v, negate)
		}
		if _, ok := comparisonOps[v.Op]; ok {
			return visitComparison(v, negate)
		}
		return nil, rdb.UnsupportedExpression("binary operator %s", v.Op)
	case *Call:
		return visitCall(v, negate)
	case *Member:
		return polarize(query.Eq(v.Name, true), negate), nil
	case *Constant:
		return nil, rdb.UnsupportedExpression("constant %v used as predicate", v.Value)
	}
	return nil, rdb.UnsupportedExpression("expression node %T", e)
}

func visitLogical(b *Binary, negate bool) (query.Node, error) {
	left, err := visit(b.Left, false)
	if err != nil {
		return nil, err
	}
	right, err := visit(b.Right, false)
	if err != nil {
		return nil, err
	}
	conjunction := query.And
	if b.Op == OrElse {
		conjunction = query.Or
	}
	g := query.NewGroup(conjunction, left, right)
	g.Negated = negate
	return g, nil
}

func visitComparison(b *Binary, negate bool) (query.Node, error) {
	switch left := b.Left.(type) {
	case *Member:
		if right, ok := b.Right.(*Constant); ok {
			return fieldComparison(left.Name, b.Op, right.Value, negate), nil
		}
		if isPredicate(b.Right) {
			return nil, rdb.UnsupportedExpression("comparison between field %s and predicate", left.Name)
		}
	case *Constant:
		if right, ok := b.Right.(*Member); ok {
			return fieldComparison(right.Name, mirroredOps[b.Op], left.Value, negate), nil
		}
		if isPredicate(b.Right) {
			return boolComparison(b.Right, b.Op, left.Value, negate)
		}
	default:
		if right, ok := b.Right.(*Constant); ok && isPredicate(b.Left) {
			return boolComparison(b.Left, b.Op, right.Value, negate)
		}
	}
	return nil, rdb.UnsupportedExpression("comparison %v", b)
}

// boolComparison 处理 pred == true / pred != false 等形式
func boolComparison(pred Expr, op BinaryOp, value any, negate bool) (query.Node, error) {
	flag, ok := value.(bool)
	if !ok {
		return nil, rdb.UnsupportedExpression("predicate compared with non-boolean %v", value)
	}
	if op != Equal && op != NotEqual {
		return nil, rdb.UnsupportedExpression("predicate compared with operator %s", op)
	}
	flip := !flag
	if op == NotEqual {
		flip = !flip
	}
	return visit(pred, negate != flip)
}

func fieldComparison(name string, op BinaryOp, value any, negate bool) query.Node {
	var f *query.QueryField
	if query.IsNil(value) && (op == Equal || op == NotEqual) {
		if op == Equal {
			f = query.Null(name)
		} else {
			f = query.NotNull(name)
		}
	} else {
		f = query.NewQueryField(name, comparisonOps[op], value)
	}
	return polarize(f, negate)
}

func visitCall(c *Call, negate bool) (query.Node, error) {
	if len(c.Args) != 1 {
		return nil, rdb.UnsupportedExpression("%s expects 1 argument, got %d", c.Method, len(c.Args))
	}

	switch target := c.Target.(type) {
	case *Member:
		arg, ok := c.Args[0].(*Constant)
		if !ok {
			return nil, rdb.UnsupportedExpression("%s argument must be a constant", c.Method)
		}
		s, ok := stringValue(arg.Value)
		if !ok {
			return nil, rdb.UnsupportedExpression("%s argument must be a string, got %T", c.Method, arg.Value)
		}
		var pattern string
		switch c.Method {
		case Contains:
			pattern = "%" + s + "%"
		case StartsWith:
			pattern = s + "%"
		case EndsWith:
			pattern = "%" + s
		default:
			return nil, rdb.UnsupportedExpression("method %s", c.Method)
		}
		return polarize(query.Match(target.Name, pattern), negate), nil

	case *Constant:
		member, ok := c.Args[0].(*Member)
		if !ok || c.Method != Contains {
			return nil, rdb.UnsupportedExpression("collection %s must test a field", c.Method)
		}
		values, ok := collectionValues(target.Value)
		if !ok {
			return nil, rdb.UnsupportedExpression("Contains target %T is not a collection", target.Value)
		}
		if len(values) == 0 {
			return nil, rdb.InvalidParameterShape("empty collection for field %s", member.Name)
		}
		return polarize(query.AnyOf(member.Name, values...), negate), nil
	}

	return nil, rdb.UnsupportedExpression("call target %T", c.Target)
}

func polarize(n query.Node, negate bool) query.Node {
	if negate {
		return query.Negate(n)
	}
	return n
}

func isPredicate(e Expr) bool {
	switch v := e.(type) {
	case *Binary, *Call, *Not:
		return true
	case *Member:
		return v != nil
	}
	return false
}

func stringValue(v any) (string, bool) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.String {
		return "", false
	}
	return rv.String(), true
}

func collectionValues(v any) ([]any, bool) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	if rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	values := make([]any, rv.Len())
	for i := range values {
		values[i] = rv.Index(i).Interface()
	}
	return values, true
}
