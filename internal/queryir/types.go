package queryir

import "github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/ir"

// Query is a sealed interface over the read shapes the executor supports.
type Query interface {
	queryNode() // Marker method - seals interface to this package
}

// Predicate is a sealed interface over attribute filters.
type Predicate interface {
	predicateNode() // Marker method - seals interface to this package
}

// Select reads instance rows.
//
// Semantics:
//
//	SELECT <row> FROM instances
//	WHERE type IN <Types> AND id IN <IDs> AND <Filter>
//	ORDER BY <OrderBy>, seq
//	LIMIT <Limit> OFFSET <Offset>
//
// Empty Types or nil IDs mean no restriction. A non-nil empty IDs slice
// matches nothing. Limit 0 means unlimited.
type Select struct {
	Types   []string
	IDs     []string
	Filter  Predicate
	OrderBy []Order
	Limit   int
	Offset  int
}

func (Select) queryNode() {}

// Order sorts by a stored attribute. Nulls sort last in both directions.
type Order struct {
	Field string
	Desc  bool
}

// Count counts the instances matched by Of. Ordering and paging are ignored.
type Count struct {
	Of Select
}

func (Count) queryNode() {}

// Links reads relation edges stored under Relation.
// Sources and Targets restrict either end; nil means no restriction.
type Links struct {
	Relation string
	Sources  []string
	Targets  []string
}

func (Links) queryNode() {}

// Equals matches a stored attribute against a literal.
//
// Supported values: String, Integer, Count, Decimal, Bool, Date, Time,
// Timestamp and Enum. Use IsNull for absent values.
type Equals struct {
	Field string
	Value ir.Value
}

func (Equals) predicateNode() {}

// IsNull matches instances where the attribute is absent or null.
type IsNull struct {
	Field string
}

func (IsNull) predicateNode() {}

// In matches a stored attribute against any of Values. An empty list
// matches nothing.
type In struct {
	Field  string
	Values []ir.Value
}

func (In) predicateNode() {}

// And is a conjunction. Empty Predicates is always true.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// All builds a conjunction, dropping nil predicates and collapsing the
// trivial cases.
func All(preds ...Predicate) Predicate {
	var out []Predicate
	for _, p := range preds {
		if p != nil {
			out = append(out, p)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	}
	return And{Predicates: out}
}
