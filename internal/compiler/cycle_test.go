package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/schema"
)

func buildGraph(t *testing.T, types ...schema.TypeSpec) *schema.Graph {
	t.Helper()
	b := schema.NewBuilder()
	for _, ts := range types {
		b.Type(ts)
	}
	g, err := b.Build()
	require.NoError(t, err)
	return g
}

// TestAnalyzeCascadeCycles_DAG tests that plain compositions produce no warnings.
func TestAnalyzeCascadeCycles_DAG(t *testing.T) {
	g := buildGraph(t,
		schema.TypeSpec{Name: "Order", Relations: []schema.RelationSpec{
			{Name: "lines", Target: "Line", Upper: -1, Kind: schema.Composition},
			{Name: "customer", Target: "Customer"},
		}},
		schema.TypeSpec{Name: "Line"},
		schema.TypeSpec{Name: "Customer"},
	)
	assert.Empty(t, AnalyzeCascadeCycles(g))
}

// TestAnalyzeCascadeCycles_Tree tests that a self composition is reported as info.
func TestAnalyzeCascadeCycles_Tree(t *testing.T) {
	g := buildGraph(t,
		schema.TypeSpec{Name: "Folder", Relations: []schema.RelationSpec{
			{Name: "children", Target: "Folder", Upper: -1, Kind: schema.Composition},
		}},
	)
	warnings := AnalyzeCascadeCycles(g)
	require.Len(t, warnings, 1)
	assert.Equal(t, "info", warnings[0].Level)
	assert.Equal(t, []string{"Folder", "Folder"}, warnings[0].Path)
}

// TestAnalyzeCascadeCycles_ReverseCascade tests a cycle closed through
// reverseCascadeDelete.
func TestAnalyzeCascadeCycles_ReverseCascade(t *testing.T) {
	g := buildGraph(t,
		schema.TypeSpec{Name: "Order", Relations: []schema.RelationSpec{
			{Name: "lines", Target: "Line", Upper: -1, Kind: schema.Composition},
			{Name: "featured", Target: "Line", ReverseCascadeDelete: true},
		}},
		schema.TypeSpec{Name: "Line"},
	)
	warnings := AnalyzeCascadeCycles(g)
	require.Len(t, warnings, 1)
	assert.Equal(t, "warning", warnings[0].Level)
	assert.Equal(t, []string{"Line", "Order", "Line"}, warnings[0].Path)
	assert.Contains(t, warnings[0].Message, "cascade delete cycle")
}

// TestAnalyzeCascadeCycles_IgnoresTransferObjects tests that only entities
// participate.
func TestAnalyzeCascadeCycles_IgnoresTransferObjects(t *testing.T) {
	g := buildGraph(t,
		schema.TypeSpec{Name: "Node"},
		schema.TypeSpec{Name: "NodeView", Kind: schema.KindTransferObject, MapsTo: "Node", Relations: []schema.RelationSpec{
			{Name: "children", Target: "NodeView", Kind: schema.Composition, Member: schema.MemberTransient},
		}},
	)
	assert.Empty(t, AnalyzeCascadeCycles(g))
}
