package queryir

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/ir"
)

// TestSealedInterfaces ensures every node satisfies its interface.
func TestSealedInterfaces(t *testing.T) {
	queries := []Query{Select{}, &Select{}, Count{}, Links{}}
	assert.Len(t, queries, 4)

	preds := []Predicate{Equals{}, IsNull{}, In{}, And{}, &And{}}
	assert.Len(t, preds, 5)
}

func TestAll(t *testing.T) {
	eq := Equals{Field: "a", Value: ir.Integer(1)}
	assert.Nil(t, All())
	assert.Nil(t, All(nil, nil))
	assert.Equal(t, eq, All(nil, eq))
	assert.Equal(t, And{Predicates: []Predicate{eq, IsNull{Field: "b"}}}, All(eq, nil, IsNull{Field: "b"}))
}

func TestValidate_Valid(t *testing.T) {
	queries := map[string]Query{
		"empty select": Select{},
		"full select": Select{
			Types:   []string{"Order"},
			IDs:     []string{"a", "b"},
			Filter:  And{Predicates: []Predicate{Equals{Field: "title", Value: ir.String("x")}, IsNull{Field: "note"}}},
			OrderBy: []Order{{Field: "title"}, {Field: "total", Desc: true}},
			Limit:   10,
			Offset:  5,
		},
		"count":   Count{Of: Select{Types: []string{"Order"}}},
		"links":   Links{Relation: "Order.lines", Sources: []string{"a"}},
		"in":      Select{Filter: In{Field: "status", Values: []ir.Value{ir.Enum{Literal: "OPEN"}}}},
		"pointer": &Select{Filter: &Equals{Field: "ok", Value: ir.Bool(true)}},
	}
	for name, q := range queries {
		t.Run(name, func(t *testing.T) {
			assert.NoError(t, Validate(q))
		})
	}
}

func TestValidate_Invalid(t *testing.T) {
	cases := []struct {
		name  string
		query Query
		want  string
	}{
		{"nil", nil, "nil query"},
		{"negative limit", Select{Limit: -1}, "negative limit"},
		{"negative offset", Count{Of: Select{Offset: -2}}, "negative offset"},
		{"reserved order", Select{OrderBy: []Order{{Field: "__version"}}}, "engine-owned"},
		{"bad field", Select{Filter: IsNull{Field: "a.b"}}, "invalid field name"},
		{"empty field", Select{Filter: Equals{Value: ir.Integer(1)}}, "empty field name"},
		{"null literal", Select{Filter: Equals{Field: "a", Value: ir.Null{}}}, "use IsNull"},
		{"collection literal", Select{Filter: In{Field: "a", Values: []ir.Value{ir.Collection{}}}}, "cannot be used as a query literal"},
		{"links without relation", Links{}, "without relation"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(tc.query)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

// TestValidate_ReportsAll tests that validation does not stop at the first problem.
func TestValidate_ReportsAll(t *testing.T) {
	err := Validate(Select{Limit: -1, Offset: -1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "negative limit")
	assert.Contains(t, err.Error(), "negative offset")
}

func TestParam(t *testing.T) {
	ts := time.Date(2024, 3, 15, 8, 0, 0, 0, time.UTC)
	cases := []struct {
		in   ir.Value
		want any
	}{
		{ir.String("a"), "a"},
		{ir.Integer(3), int64(3)},
		{ir.Count(4), int64(4)},
		{ir.Bool(true), int64(1)},
		{ir.Bool(false), int64(0)},
		{ir.NewDecimal("12.50"), "12.50"},
		{ir.NewDate(2024, 3, 15), "2024-03-15"},
		{ir.NewTimestamp(ts), "2024-03-15T08:00:00.000000000Z"},
		{ir.Enum{Enumeration: "Status", Literal: "OPEN"}, "OPEN"},
	}
	for _, tc := range cases {
		got, err := Param(tc.in)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}

	_, err := Param(ir.NewMeasured("1", "kilogram"))
	assert.Error(t, err)
}
