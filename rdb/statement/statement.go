package statement

import (
	"database/sql"
	"fmt"

	"github.com/hatlonely/rdbx/rdb/query"
)

// Kind 语句类型
type Kind int

const (
	Select Kind = iota
	Insert
	Update
	Delete
	Merge
	Aggregate
	Raw
)

var kindText = map[Kind]string{
	Select:    "select",
	Insert:    "insert",
	Update:    "update",
	Delete:    "delete",
	Merge:     "merge",
	Aggregate: "aggregate",
	Raw:       "raw",
}

func (k Kind) String() string {
	if s, ok := kindText[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// AggregateFunc 聚合函数
type AggregateFunc int

const (
	Count AggregateFunc = iota
	Sum
	Avg
	Min
	Max
)

func (f AggregateFunc) String() string {
	switch f {
	case Count:
		return "COUNT"
	case Sum:
		return "SUM"
	case Avg:
		return "AVG"
	case Min:
		return "MIN"
	case Max:
		return "MAX"
	}
	return fmt.Sprintf("AggregateFunc(%d)", int(f))
}

// ResultShape 语句期望的返回形式
type ResultShape int

const (
	RowSet ResultShape = iota
	Scalar
	AffectedCount
	GeneratedKeys
)

// KeyRetrieval 单次往返获取自增键的方式
type KeyRetrieval int

const (
	KeyNone KeyRetrieval = iota
	// KeyLastInsertID 执行后读取 LastInsertId，影响行数为 0 时没有键
	KeyLastInsertID
	// KeyReturning 语句返回结果集，两列时为 (键, token)，一列时 token 取 Unit.Token，行数计入影响行数
	KeyReturning
	// KeySelect 同 KeyReturning，但只用于取回键，不计入影响行数
	KeySelect
)

// Binding 参数绑定
type Binding struct {
	Name  string
	Value any
}

// Unit 一次往返，批量语句在方言不支持单条多行写法时拆成多个 Unit 顺序执行
type Unit struct {
	Text     string
	Bindings []Binding
	Token    int
	Keys     KeyRetrieval
}

// Compiled 编译结果
type Compiled struct {
	Kind      Kind
	Text      string
	Bindings  []Binding
	Named     bool // 参数按名字绑定
	Result    ResultShape
	KeyColumn string
	Keys      KeyRetrieval
	Units     []Unit
	Rows      int // 语句覆盖的行数
}

// Steps 需要执行的往返，没有拆分时就是语句本身
func (c *Compiled) Steps() []Unit {
	if len(c.Units) > 0 {
		return c.Units
	}
	return []Unit{{Text: c.Text, Bindings: c.Bindings, Token: -1, Keys: c.Keys}}
}

// Args 转换为 database/sql 的参数
func (c *Compiled) Args() []any {
	return Args(c.Bindings, c.Named)
}

func Args(bindings []Binding, named bool) []any {
	args := make([]any, len(bindings))
	for i, b := range bindings {
		if named {
			args[i] = sql.Named(b.Name, b.Value)
		} else {
			args[i] = b.Value
		}
	}
	return args
}

// Param 中间语句中的参数
type Param struct {
	Name  string
	Value any
}

// Assignment 列与参数的对应
type Assignment struct {
	Column string
	Param  Param
}

// Predicate 中间语句中的条件，叶子节点或分组
type Predicate struct {
	Column    string
	Operation query.Operation
	Params    []Param

	Group       bool
	Children    []*Predicate
	Conjunction query.Conjunction
	Negated     bool
}

// IsEmpty 空条件表示不过滤，取反的空分组不算空
func (p *Predicate) IsEmpty() bool {
	if p == nil {
		return true
	}
	if !p.Group || p.Negated {
		return false
	}
	for _, c := range p.Children {
		if !c.IsEmpty() {
			return false
		}
	}
	return true
}

// IsFalse 取反的空分组，不匹配任何行
func (p *Predicate) IsFalse() bool {
	if p == nil || !p.Group || !p.Negated {
		return false
	}
	for _, c := range p.Children {
		if !c.IsEmpty() {
			return false
		}
	}
	return true
}

// OrderBy 排序
type OrderBy struct {
	Column     string
	Descending bool
}

// Row 批量语句中的一行
type Row struct {
	Token  int
	Values []Assignment // 全部列
	Insert []Assignment // 插入分支的列
	Set    []Assignment // 更新分支的列
	Where  *Predicate   // 按限定列匹配已有行
	// InsertOnly 限定列包含自增列且值为零，不可能匹配已有行
	InsertOnly bool
}

// Statement 与方言无关的中间语句
type Statement struct {
	Kind     Kind
	Table    string
	Columns  []string
	Where    *Predicate
	Set      []Assignment
	Rows     []Row
	OrderBy  []OrderBy
	Limit    int
	Offset   int
	Hints    []string
	Function AggregateFunc
	Column   string // 聚合列，为空时 COUNT(*)

	Identity   string
	Qualifiers []string
	SetColumns []string

	Text   string
	Params []Param
}

// Formatter 方言格式化，把中间语句渲染为最终 SQL
type Formatter interface {
	Name() string
	Format(st *Statement) (*Compiled, error)
}
