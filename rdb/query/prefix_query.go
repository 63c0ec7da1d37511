package query

// PrefixQuery 前缀匹配查询
type PrefixQuery struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

func (q *PrefixQuery) Type() QueryType {
	return QueryTypePrefix
}

func (q *PrefixQuery) ToNode() Node {
	return Match(q.Field, q.Value+"%")
}
