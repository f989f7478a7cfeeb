// Package query implements the typed query AST of spec.md §4.3.4: a
// query targets one model and one index, and specifies per-index-field
// operators, an overall order, a limit, and the set of topics to scan.
package query

// Operator is one of the comparison operators a Condition may apply to
// an indexed field.
type Operator int

const (
	Eq Operator = iota
	Gt
	Gte
	Lt
	Lte
	In
	Neq
)

// Order selects ascending or descending traversal of the index.
type Order int

const (
	Asc Order = iota
	Desc
)

// Condition constrains one indexed field. Value is used for every
// operator except In, which uses Values.
type Condition struct {
	Field  uint32
	Op     Operator
	Value  any
	Values []any
}

// Query targets model.Index and scans the listed topics, per
// spec.md §4.3.4.
type Query struct {
	Model      string
	Index      string
	Conditions []Condition
	Order      Order
	Topics     []string
	Limit      int

	// DateFrom/DateTo bound the date partitions scanned for a
	// date-partitioned model; nil means "all partitions known".
	DateFrom, DateTo *int64 // unix seconds, inclusive
}

// New starts a Query against model/index.
func New(model, index string) *Query {
	return &Query{Model: model, Index: index}
}

// Where appends an equality/comparison condition and returns q for
// chaining.
func (q *Query) Where(field uint32, op Operator, value any) *Query {
	q.Conditions = append(q.Conditions, Condition{Field: field, Op: op, Value: value})
	return q
}

// WhereIn appends an In condition.
func (q *Query) WhereIn(field uint32, values []any) *Query {
	q.Conditions = append(q.Conditions, Condition{Field: field, Op: In, Values: values})
	return q
}

// Topic adds a topic to scan.
func (q *Query) Topic(topic string) *Query {
	q.Topics = append(q.Topics, topic)
	return q
}

// OrderBy sets the traversal order.
func (q *Query) OrderBy(order Order) *Query {
	q.Order = order
	return q
}

// WithLimit bounds the result multiset.
func (q *Query) WithLimit(n int) *Query {
	q.Limit = n
	return q
}
