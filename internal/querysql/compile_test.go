package querysql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/ir"
	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/queryir"
)

const selectPrefix = "SELECT " + RowColumns + " FROM instances i"

func TestCompile_EmptySelect(t *testing.T) {
	sql, params, err := Compile(queryir.Select{})
	require.NoError(t, err)
	assert.Equal(t, selectPrefix+" ORDER BY i.seq ASC", sql)
	assert.Empty(t, params)
}

func TestCompile_SelectByTypesAndIDs(t *testing.T) {
	sql, params, err := Compile(queryir.Select{
		Types: []string{"Customer", "Supplier"},
		IDs:   []string{"a"},
	})
	require.NoError(t, err)
	assert.Equal(t, selectPrefix+" WHERE i.type IN (?, ?) AND i.id IN (?) ORDER BY i.seq ASC", sql)
	assert.Equal(t, []any{"Customer", "Supplier", "a"}, params)
}

// TestCompile_EmptyIDs tests that an explicit empty id list matches nothing.
func TestCompile_EmptyIDs(t *testing.T) {
	sql, params, err := Compile(queryir.Select{IDs: []string{}})
	require.NoError(t, err)
	assert.Equal(t, selectPrefix+" WHERE 0 = 1 ORDER BY i.seq ASC", sql)
	assert.Empty(t, params)
}

func TestCompile_Filter(t *testing.T) {
	sql, params, err := Compile(queryir.Select{
		Types: []string{"Order"},
		Filter: queryir.And{Predicates: []queryir.Predicate{
			queryir.Equals{Field: "title", Value: ir.String("First")},
			queryir.Equals{Field: "total", Value: ir.NewDecimal("99.95")},
			queryir.IsNull{Field: "note"},
			queryir.In{Field: "priority", Values: []ir.Value{ir.Enum{Literal: "LOW"}, ir.Enum{Literal: "HIGH"}}},
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, selectPrefix+" WHERE i.type IN (?) AND ("+
		"json_extract(i.attrs, ?) = ? AND "+
		"json_extract(i.attrs, ?) = CAST(? AS NUMERIC) AND "+
		"json_extract(i.attrs, ?) IS NULL AND "+
		"(json_extract(i.attrs, ?) = ? OR json_extract(i.attrs, ?) = ?)"+
		") ORDER BY i.seq ASC", sql)
	assert.Equal(t, []any{
		"Order",
		"$.title", "First",
		"$.total", "99.95",
		"$.note",
		"$.priority", "LOW", "$.priority", "HIGH",
	}, params)

	// Values must never be interpolated.
	assert.NotContains(t, sql, "First")
}

func TestCompile_EmptyPredicates(t *testing.T) {
	sql, _, err := Compile(queryir.Select{Filter: queryir.And{}})
	require.NoError(t, err)
	assert.Contains(t, sql, "WHERE 1 = 1")

	sql, _, err = Compile(queryir.Select{Filter: queryir.In{Field: "a"}})
	require.NoError(t, err)
	assert.Contains(t, sql, "WHERE 0 = 1")
}

func TestCompile_OrderAndPaging(t *testing.T) {
	sql, params, err := Compile(queryir.Select{
		OrderBy: []queryir.Order{{Field: "title"}, {Field: "total", Desc: true}},
		Limit:   10,
		Offset:  20,
	})
	require.NoError(t, err)
	assert.Equal(t, selectPrefix+" ORDER BY "+
		"json_extract(i.attrs, ?) IS NULL ASC, json_extract(i.attrs, ?) ASC, "+
		"json_extract(i.attrs, ?) IS NULL ASC, json_extract(i.attrs, ?) DESC, "+
		"i.seq ASC LIMIT ? OFFSET ?", sql)
	assert.Equal(t, []any{"$.title", "$.title", "$.total", "$.total", int64(10), int64(20)}, params)
}

// TestCompile_OffsetWithoutLimit tests SQLite's LIMIT -1 idiom.
func TestCompile_OffsetWithoutLimit(t *testing.T) {
	sql, params, err := Compile(queryir.Select{Offset: 3})
	require.NoError(t, err)
	assert.Equal(t, selectPrefix+" ORDER BY i.seq ASC LIMIT -1 OFFSET ?", sql)
	assert.Equal(t, []any{int64(3)}, params)
}

func TestCompile_Count(t *testing.T) {
	sql, params, err := Compile(queryir.Count{Of: queryir.Select{
		Types:   []string{"Order"},
		Filter:  queryir.Equals{Field: "paid", Value: ir.Bool(true)},
		OrderBy: []queryir.Order{{Field: "title"}},
		Limit:   1,
	}})
	require.NoError(t, err)
	assert.Equal(t, "SELECT COUNT(*) FROM instances i WHERE i.type IN (?) AND json_extract(i.attrs, ?) = ?", sql)
	assert.Equal(t, []any{"Order", "$.paid", int64(1)}, params)
}

func TestCompile_Links(t *testing.T) {
	sql, params, err := Compile(queryir.Links{Relation: "Order.lines", Sources: []string{"o1"}})
	require.NoError(t, err)
	assert.Equal(t, "SELECT "+LinkColumns+" FROM links l"+
		" JOIN instances s ON s.id = l.source_id"+
		" JOIN instances t ON t.id = l.target_id"+
		" WHERE l.relation = ? AND l.source_id IN (?)"+
		" ORDER BY s.seq ASC, l.position ASC, t.seq ASC", sql)
	assert.Equal(t, []any{"Order.lines", "o1"}, params)

	sql, params, err = Compile(&queryir.Links{Relation: "r", Targets: []string{"x", "y"}, Sources: []string{}})
	require.NoError(t, err)
	assert.Contains(t, sql, "AND 0 = 1 AND l.target_id IN (?, ?)")
	assert.Equal(t, []any{"r", "x", "y"}, params)
}

func TestCompile_RejectsInvalid(t *testing.T) {
	_, _, err := Compile(queryir.Select{Filter: queryir.Equals{Field: "a", Value: ir.Null{}}})
	assert.ErrorContains(t, err, "compile query")

	_, _, err = Compile(nil)
	assert.Error(t, err)
}
