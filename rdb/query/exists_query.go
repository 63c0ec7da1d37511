package query

// ExistsQuery 字段非空查询
type ExistsQuery struct {
	Field string `json:"field"`
}

func (q *ExistsQuery) Type() QueryType {
	return QueryTypeExists
}

func (q *ExistsQuery) ToNode() Node {
	return NotNull(q.Field)
}
