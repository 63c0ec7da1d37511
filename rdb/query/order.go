package query

// Direction 排序方向
type Direction int

const (
	Ascending Direction = iota
	Descending
)

func (d Direction) String() string {
	if d == Descending {
		return "DESC"
	}
	return "ASC"
}

// OrderField 排序字段，多个按顺序组成稳定的多键排序
type OrderField struct {
	Field     Field
	Direction Direction
}

func Asc(name string) OrderField {
	return OrderField{Field: NewField(name), Direction: Ascending}
}

func Desc(name string) OrderField {
	return OrderField{Field: NewField(name), Direction: Descending}
}

// Page 分页请求，Index 从 0 开始
type Page struct {
	Index int
	Size  int
}

func (p Page) Offset() int {
	if p.Index <= 0 || p.Size <= 0 {
		return 0
	}
	return p.Index * p.Size
}
