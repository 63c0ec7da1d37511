package query

import "fmt"

// MatchQuery 包含匹配查询
type MatchQuery struct {
	Field string `json:"field"`
	Value any    `json:"value"`
}

func (q *MatchQuery) Type() QueryType {
	return QueryTypeMatch
}

func (q *MatchQuery) ToNode() Node {
	return Match(q.Field, "%"+fmt.Sprint(q.Value)+"%")
}
