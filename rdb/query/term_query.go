package query

// TermQuery 精确匹配查询
type TermQuery struct {
	Field string `json:"field"`
	Value any    `json:"value"`
}

func (q *TermQuery) Type() QueryType {
	return QueryTypeTerm
}

func (q *TermQuery) ToNode() Node {
	return Eq(q.Field, q.Value)
}

// TermsQuery 多值匹配查询
type TermsQuery struct {
	Field  string `json:"field"`
	Values []any  `json:"values"`
}

func (q *TermsQuery) Type() QueryType {
	return QueryTypeTerms
}

func (q *TermsQuery) ToNode() Node {
	return AnyOf(q.Field, q.Values...)
}
