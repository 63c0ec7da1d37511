package query

import "strings"

// WildcardQuery 通配符查询，* 匹配任意字符串，? 匹配单个字符
type WildcardQuery struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

func (q *WildcardQuery) Type() QueryType {
	return QueryTypeWildcard
}

func (q *WildcardQuery) ToNode() Node {
	pattern := strings.ReplaceAll(q.Value, "*", "%")
	pattern = strings.ReplaceAll(pattern, "?", "_")
	return Match(q.Field, pattern)
}
