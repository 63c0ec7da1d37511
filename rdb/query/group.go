package query

import "strings"

// Node 条件树节点，*QueryField 或 *QueryGroup
type Node interface {
	node()
}

// Conjunction 子节点之间的连接方式
type Conjunction int

const (
	And Conjunction = iota
	Or
)

func (c Conjunction) String() string {
	if c == Or {
		return "OR"
	}
	return "AND"
}

// QueryGroup 条件树，空树表示不过滤
type QueryGroup struct {
	Children    []Node
	Conjunction Conjunction
	Negated     bool
}

func (*QueryGroup) node() {}

func NewGroup(conjunction Conjunction, nodes ...Node) *QueryGroup {
	g := &QueryGroup{Conjunction: conjunction}
	return g.Add(nodes...)
}

func AllOf(nodes ...Node) *QueryGroup {
	return NewGroup(And, nodes...)
}

func OneOf(nodes ...Node) *QueryGroup {
	return NewGroup(Or, nodes...)
}

// Not 返回取反后的节点
func Not(n Node) Node {
	return Negate(n)
}

// Add 追加子节点，忽略 nil
func (g *QueryGroup) Add(nodes ...Node) *QueryGroup {
	for _, n := range nodes {
		switch v := n.(type) {
		case nil:
			continue
		case *QueryField:
			if v == nil {
				continue
			}
		case *QueryGroup:
			if v == nil {
				continue
			}
		}
		g.Children = append(g.Children, n)
	}
	return g
}

// IsEmpty 不过滤任何行时为真，取反的空分组恒为假，不算空
func (g *QueryGroup) IsEmpty() bool {
	if g == nil {
		return true
	}
	if g.Negated {
		return false
	}
	for _, child := range g.Children {
		if sub, ok := child.(*QueryGroup); ok && sub.IsEmpty() {
			continue
		}
		return false
	}
	return true
}

// Fields 深度优先返回树中所有字段条件
func (g *QueryGroup) Fields() []*QueryField {
	var fields []*QueryField
	walk(g, func(f *QueryField) {
		fields = append(fields, f)
	})
	return fields
}

// Validate 校验树中所有字段条件
func (g *QueryGroup) Validate() error {
	for _, f := range g.Fields() {
		if err := f.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Clone 深拷贝，操作数切片共享
func (g *QueryGroup) Clone() *QueryGroup {
	if g == nil {
		return nil
	}
	c := &QueryGroup{Conjunction: g.Conjunction, Negated: g.Negated}
	for _, child := range g.Children {
		switch v := child.(type) {
		case *QueryField:
			f := *v
			c.Children = append(c.Children, &f)
		case *QueryGroup:
			c.Children = append(c.Children, v.Clone())
		}
	}
	return c
}

func (g *QueryGroup) String() string {
	if g.IsEmpty() {
		return "()"
	}
	if g.Negated && AllOf(g.Children...).IsEmpty() {
		return "NOT ()"
	}
	parts := make([]string, 0, len(g.Children))
	for _, child := range g.Children {
		switch v := child.(type) {
		case *QueryField:
			parts = append(parts, v.String())
		case *QueryGroup:
			parts = append(parts, v.String())
		}
	}
	s := "(" + strings.Join(parts, " "+g.Conjunction.String()+" ") + ")"
	if g.Negated {
		s = "NOT " + s
	}
	return s
}

// Negate 翻转节点极性：字段条件取反操作，分组切换取反标记
func Negate(n Node) Node {
	switch v := n.(type) {
	case *QueryField:
		f := *v
		if f.IsNullCheck() {
			f.Operation = f.NullOperation().Negate()
			f.Values = nil
		} else {
			f.Operation = f.Operation.Negate()
		}
		return &f
	case *QueryGroup:
		g := *v
		g.Negated = !g.Negated
		return &g
	}
	return n
}

// Group 把节点包装成条件树，字段条件包成单元素 AND
func Group(n Node) *QueryGroup {
	switch v := n.(type) {
	case *QueryGroup:
		return v
	case *QueryField:
		return AllOf(v)
	}
	return &QueryGroup{}
}

func walk(g *QueryGroup, fn func(*QueryField)) {
	if g == nil {
		return
	}
	for _, child := range g.Children {
		switch v := child.(type) {
		case *QueryField:
			fn(v)
		case *QueryGroup:
			walk(v, fn)
		}
	}
}
