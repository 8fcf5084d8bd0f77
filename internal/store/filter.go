package store

// Condition matches a single document. With Exists unset it requires the
// document field to equal Value. With Exists set the match is decided by the
// related collection instead.
type Condition struct {
	Field  string
	Value  any
	Exists *Exists
}

// Exists is a relation-backed condition: a document matches when Collection
// contains at least one document whose RemoteField equals the document's
// LocalField value and whose Field equals Value.
type Exists struct {
	Collection  string
	LocalField  string
	RemoteField string
	Field       string
	Value       any
}

// Filter selects documents from a collection. Clauses are conjunctive; the
// conditions inside a clause are disjunctive. The zero Filter matches every
// document, so handler base queries and authorization scoping compose by
// appending clauses.
type Filter struct {
	Clauses [][]Condition
}

// Eq builds a filter requiring field == value.
func Eq(field string, value any) Filter {
	return Filter{}.AndClause(Condition{Field: field, Value: value})
}

// AndClause returns a copy of the filter extended with one more clause. At
// least one of conds must hold for a document to match the new clause.
func (f Filter) AndClause(conds ...Condition) Filter {
	clauses := make([][]Condition, 0, len(f.Clauses)+1)
	clauses = append(clauses, f.Clauses...)
	clauses = append(clauses, conds)
	return Filter{Clauses: clauses}
}

// And returns the conjunction of two filters.
func (f Filter) And(other Filter) Filter {
	if other.Empty() {
		return f
	}
	clauses := make([][]Condition, 0, len(f.Clauses)+len(other.Clauses))
	clauses = append(clauses, f.Clauses...)
	clauses = append(clauses, other.Clauses...)
	return Filter{Clauses: clauses}
}

// Empty reports whether the filter matches everything.
func (f Filter) Empty() bool { return len(f.Clauses) == 0 }

// valuesEqual compares document field values. JSON decoding produces float64
// for all numbers, so integer values are normalized before comparison.
func valuesEqual(a, b any) bool {
	if af, ok := toFloat(a); ok {
		bf, ok := toFloat(b)
		return ok && af == bf
	}
	return a == b
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	default:
		return 0, false
	}
}
