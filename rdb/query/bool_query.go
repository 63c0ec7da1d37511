package query

// BoolQuery 布尔查询
// Must 与 Filter 之间为 AND，Should 内部为 OR，MustNot 中每一项取反后参与 AND
type BoolQuery struct {
	Must    []Query `json:"must,omitempty"`
	Should  []Query `json:"should,omitempty"`
	MustNot []Query `json:"must_not,omitempty"`
	Filter  []Query `json:"filter,omitempty"`
}

func (q *BoolQuery) Type() QueryType {
	return QueryTypeBool
}

func (q *BoolQuery) ToNode() Node {
	g := AllOf()
	for _, sub := range q.Must {
		g.Add(sub.ToNode())
	}
	for _, sub := range q.Filter {
		g.Add(sub.ToNode())
	}
	if len(q.Should) > 0 {
		should := OneOf()
		for _, sub := range q.Should {
			should.Add(sub.ToNode())
		}
		g.Add(should)
	}
	for _, sub := range q.MustNot {
		g.Add(Negate(sub.ToNode()))
	}
	return g
}
