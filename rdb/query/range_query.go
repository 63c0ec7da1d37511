package query

// RangeQuery 范围查询，未设置的边界不参与比较
type RangeQuery struct {
	Field string `json:"field"`
	Gt    any    `json:"gt,omitempty"`
	Gte   any    `json:"gte,omitempty"`
	Lt    any    `json:"lt,omitempty"`
	Lte   any    `json:"lte,omitempty"`
}

func (q *RangeQuery) Type() QueryType {
	return QueryTypeRange
}

func (q *RangeQuery) ToNode() Node {
	g := AllOf()
	if q.Gt != nil {
		g.Add(Gt(q.Field, q.Gt))
	}
	if q.Gte != nil {
		g.Add(Gte(q.Field, q.Gte))
	}
	if q.Lt != nil {
		g.Add(Lt(q.Field, q.Lt))
	}
	if q.Lte != nil {
		g.Add(Lte(q.Field, q.Lte))
	}
	return g
}
