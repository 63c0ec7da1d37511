package expr

import "fmt"

// Expr 谓词表达式节点
type Expr interface {
	expr()
}

// BinaryOp 二元运算
type BinaryOp int

const (
	AndAlso BinaryOp = iota
	OrElse
	Equal
	NotEqual
	Greater
	GreaterOrEqual
	Less
	LessOrEqual
)

var binaryOpText = map[BinaryOp]string{
	AndAlso:        "&&",
	OrElse:         "||",
	Equal:          "==",
	NotEqual:       "!=",
	Greater:        ">",
	GreaterOrEqual: ">=",
	Less:           "<",
	LessOrEqual:    "<=",
}

func (o BinaryOp) String() string {
	if s, ok := binaryOpText[o]; ok {
		return s
	}
	return fmt.Sprintf("BinaryOp(%d)", int(o))
}

// Method 方法调用
type Method int

const (
	Contains Method = iota
	StartsWith
	EndsWith
)

func (m Method) String() string {
	switch m {
	case Contains:
		return "Contains"
	case StartsWith:
		return "StartsWith"
	case EndsWith:
		return "EndsWith"
	}
	return fmt.Sprintf("Method(%d)", int(m))
}

// Member 实体字段访问
type Member struct {
	Name string
}

// Constant 常量
type Constant struct {
	Value any
}

// Binary 二元表达式
type Binary struct {
	Op    BinaryOp
	Left  Expr
	Right Expr
}

// Call 方法调用，Target 为接收者
// 字符串匹配：Target 为字段，Args 为一个字符串常量
// 集合包含：Target 为集合常量，Args 为一个字段
type Call struct {
	Method Method
	Target Expr
	Args   []Expr
}

// Not 逻辑取反
type Not struct {
	Operand Expr
}

func (*Member) expr()   {}
func (*Constant) expr() {}
func (*Binary) expr()   {}
func (*Call) expr()     {}
func (*Not) expr()      {}

func (m *Member) String() string   { return m.Name }
func (c *Constant) String() string { return fmt.Sprintf("%#v", c.Value) }
func (b *Binary) String() string {
	return fmt.Sprintf("(%v %s %v)", b.Left, b.Op, b.Right)
}
func (c *Call) String() string {
	return fmt.Sprintf("%v.%s(%v)", c.Target, c.Method, c.Args)
}
func (n *Not) String() string { return fmt.Sprintf("!%v", n.Operand) }
