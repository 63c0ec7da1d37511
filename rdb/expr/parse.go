package expr

import (
	"go/ast"
	"go/parser"
	"go/token"
	"strconv"

	"github.com/hatlonely/rdbx/rdb"
)

// Args 表达式中引用的外部变量
type Args map[string]any

var binaryTokens = map[token.Token]BinaryOp{
	token.LAND: AndAlso,
	token.LOR:  OrElse,
	token.EQL:  Equal,
	token.NEQ:  NotEqual,
	token.GTR:  Greater,
	token.GEQ:  GreaterOrEqual,
	token.LSS:  Less,
	token.LEQ:  LessOrEqual,
}

var callMethods = map[string]Method{
	"strings.Contains":  Contains,
	"strings.HasPrefix": StartsWith,
	"strings.HasSuffix": EndsWith,
	"slices.Contains":   Contains,
}

// Parse 解析 Go 语法的布尔表达式
// 标识符与选择器（e.Name）解析为字段，args 中的名字解析为常量
// 例如：Parse(`ColumnInt > min && strings.HasPrefix(Name, "a")`, Args{"min": 5})
func Parse(src string, args Args) (Expr, error) {
	node, err := parser.ParseExpr(src)
	if err != nil {
		return nil, rdb.UnsupportedExpression("parse %q: %v", src, err)
	}
	p := &exprParser{args: args}
	return p.convert(node)
}

// MustParse 解析失败时 panic
func MustParse(src string, args Args) Expr {
	e, err := Parse(src, args)
	if err != nil {
		panic(err)
	}
	return e
}

type exprParser struct {
	args Args
}

func (p *exprParser) convert(node ast.Expr) (Expr, error) {
	switch n := node.(type) {
	case *ast.ParenExpr:
		return p.convert(n.X)

	case *ast.BinaryExpr:
		op, ok := binaryTokens[n.Op]
		if !ok {
			return nil, rdb.UnsupportedExpression("operator %s", n.Op)
		}
		left, err := p.convert(n.X)
		if err != nil {
			return nil, err
		}
		right, err := p.convert(n.Y)
		if err != nil {
			return nil, err
		}
		return &Binary{Op: op, Left: left, Right: right}, nil

	case *ast.UnaryExpr:
		switch n.Op {
		case token.NOT:
			operand, err := p.convert(n.X)
			if err != nil {
				return nil, err
			}
			return &Not{Operand: operand}, nil
		case token.SUB:
			operand, err := p.convert(n.X)
			if err != nil {
				return nil, err
			}
			c, ok := operand.(*Constant)
			if !ok {
				return nil, rdb.UnsupportedExpression("unary minus on non-constant")
			}
			return negateConstant(c)
		}
		return nil, rdb.UnsupportedExpression("unary operator %s", n.Op)

	case *ast.BasicLit:
		return basicLiteral(n)

	case *ast.Ident:
		switch n.Name {
		case "true":
			return Const(true), nil
		case "false":
			return Const(false), nil
		case "nil":
			return Const(nil), nil
		}
		if v, ok := p.args[n.Name]; ok {
			return Const(v), nil
		}
		return &Member{Name: n.Name}, nil

	case *ast.SelectorExpr:
		if ident, ok := n.X.(*ast.Ident); ok {
			if v, ok := p.args[ident.Name+"."+n.Sel.Name]; ok {
				return Const(v), nil
			}
		}
		return &Member{Name: n.Sel.Name}, nil

	case *ast.CallExpr:
		return p.convertCall(n)
	}

	return nil, rdb.UnsupportedExpression("syntax %T", node)
}

func (p *exprParser) convertCall(n *ast.CallExpr) (Expr, error) {
	sel, ok := n.Fun.(*ast.SelectorExpr)
	if !ok {
		return nil, rdb.UnsupportedExpression("call %T", n.Fun)
	}
	pkg, ok := sel.X.(*ast.Ident)
	if !ok {
		return nil, rdb.UnsupportedExpression("call receiver %T", sel.X)
	}
	name := pkg.Name + "." + sel.Sel.Name
	method, ok := callMethods[name]
	if !ok {
		return nil, rdb.UnsupportedExpression("function %s", name)
	}
	if len(n.Args) != 2 {
		return nil, rdb.UnsupportedExpression("%s expects 2 arguments", name)
	}
	target, err := p.convert(n.Args[0])
	if err != nil {
		return nil, err
	}
	arg, err := p.convert(n.Args[1])
	if err != nil {
		return nil, err
	}
	return &Call{Method: method, Target: target, Args: []Expr{arg}}, nil
}

func basicLiteral(n *ast.BasicLit) (Expr, error) {
	switch n.Kind {
	case token.INT:
		v, err := strconv.ParseInt(n.Value, 0, 64)
		if err != nil {
			return nil, rdb.UnsupportedExpression("integer literal %s: %v", n.Value, err)
		}
		return Const(v), nil
	case token.FLOAT:
		v, err := strconv.ParseFloat(n.Value, 64)
		if err != nil {
			return nil, rdb.UnsupportedExpression("float literal %s: %v", n.Value, err)
		}
		return Const(v), nil
	case token.STRING, token.CHAR:
		v, err := strconv.Unquote(n.Value)
		if err != nil {
			return nil, rdb.UnsupportedExpression("string literal %s: %v", n.Value, err)
		}
		return Const(v), nil
	}
	return nil, rdb.UnsupportedExpression("literal %s", n.Value)
}

func negateConstant(c *Constant) (Expr, error) {
	switch v := c.Value.(type) {
	case int64:
		return Const(-v), nil
	case float64:
		return Const(-v), nil
	case int:
		return Const(-v), nil
	}
	return nil, rdb.UnsupportedExpression("unary minus on %T", c.Value)
}
