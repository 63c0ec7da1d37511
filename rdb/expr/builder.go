package expr

// FieldBuilder 以字段为左值构造比较表达式
type FieldBuilder struct {
	member *Member
}

// F 引用实体字段
func F(name string) FieldBuilder {
	return FieldBuilder{member: &Member{Name: name}}
}

func (f FieldBuilder) Expr() Expr { return f.member }

func (f FieldBuilder) Eq(v any) Expr { return f.cmp(Equal, v) }
func (f FieldBuilder) Ne(v any) Expr { return f.cmp(NotEqual, v) }
func (f FieldBuilder) Gt(v any) Expr { return f.cmp(Greater, v) }
func (f FieldBuilder) Ge(v any) Expr { return f.cmp(GreaterOrEqual, v) }
func (f FieldBuilder) Lt(v any) Expr { return f.cmp(Less, v) }
func (f FieldBuilder) Le(v any) Expr { return f.cmp(LessOrEqual, v) }

func (f FieldBuilder) IsTrue() Expr  { return f.cmp(Equal, true) }
func (f FieldBuilder) IsFalse() Expr { return f.cmp(Equal, false) }

func (f FieldBuilder) Contains(s string) Expr {
	return &Call{Method: Contains, Target: f.member, Args: []Expr{Const(s)}}
}

func (f FieldBuilder) StartsWith(s string) Expr {
	return &Call{Method: StartsWith, Target: f.member, Args: []Expr{Const(s)}}
}

func (f FieldBuilder) EndsWith(s string) Expr {
	return &Call{Method: EndsWith, Target: f.member, Args: []Expr{Const(s)}}
}

func (f FieldBuilder) cmp(op BinaryOp, v any) Expr {
	return &Binary{Op: op, Left: f.member, Right: Const(v)}
}

func Const(v any) *Constant {
	return &Constant{Value: v}
}

// In 集合包含测试，collection 为切片或数组
func In(collection any, field string) Expr {
	return &Call{Method: Contains, Target: Const(collection), Args: []Expr{&Member{Name: field}}}
}

// And 按右结合方式嵌套 &&
func And(first Expr, rest ...Expr) Expr {
	return chain(AndAlso, first, rest)
}

// Or 按右结合方式嵌套 ||
func Or(first Expr, rest ...Expr) Expr {
	return chain(OrElse, first, rest)
}

func Negate(e Expr) Expr {
	return &Not{Operand: e}
}

// Compare 任意两侧的二元比较，用于构造 pred == true 之类的表达式
func Compare(left Expr, op BinaryOp, right Expr) Expr {
	return &Binary{Op: op, Left: left, Right: right}
}

func chain(op BinaryOp, first Expr, rest []Expr) Expr {
	if len(rest) == 0 {
		return first
	}
	return &Binary{Op: op, Left: first, Right: chain(op, rest[0], rest[1:])}
}
