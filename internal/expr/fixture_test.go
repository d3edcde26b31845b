package expr

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/ir"
	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/schema"
)

func int32p(v int32) *int32 { return &v }

func testGraph(t *testing.T) *schema.Graph {
	t.Helper()
	g, err := schema.NewBuilder().
		Measure(schema.MeasureSpec{Name: "Mass", Units: []schema.UnitSpec{
			{Name: "gram", Symbol: "g"},
			{Name: "kilogram", Symbol: "kg", Dividend: "1000"},
		}}).
		Measure(schema.MeasureSpec{Name: "Length", Units: []schema.UnitSpec{
			{Name: "metre", Symbol: "m"},
		}}).
		Enumeration("Priority", "LOW", "MEDIUM", "HIGH").
		Type(schema.TypeSpec{Name: "Party", Abstract: true, Attributes: []schema.AttributeSpec{
			{Name: "name", Type: "String"},
		}}).
		Type(schema.TypeSpec{Name: "Customer", Extends: []string{"Party"}, Relations: []schema.RelationSpec{
			{Name: "orders", Target: "Order", Upper: -1, Partner: "customer"},
		}}).
		Type(schema.TypeSpec{Name: "Supplier", Extends: []string{"Party"}}).
		Type(schema.TypeSpec{Name: "Order", Attributes: []schema.AttributeSpec{
			{Name: "title", Type: "String"},
			{Name: "priority", Type: "Priority"},
			{Name: "weight", Unit: "kg"},
			{Name: "total", Type: "Decimal", Precision: int32p(10), Scale: int32p(2)},
			{Name: "placed", Type: "Date"},
			{Name: "itemCount", Type: "Integer", Getter: "self.items!count()"},
			{Name: "heavy", Type: "Boolean", Getter: "self.weight > 10[kg]"},
			{Name: "loop", Type: "Integer", Getter: "self.loop + 1"},
		}, Relations: []schema.RelationSpec{
			{Name: "customer", Target: "Customer", Upper: 1, Partner: "orders"},
			{Name: "items", Target: "Item", Upper: -1, Kind: schema.Composition},
			{Name: "bigItems", Target: "Item", Upper: -1, Getter: "self.items!filter(i | i.quantity > 5)"},
		}}).
		Type(schema.TypeSpec{Name: "Item", Attributes: []schema.AttributeSpec{
			{Name: "product", Type: "String"},
			{Name: "quantity", Type: "Integer"},
			{Name: "price", Type: "Decimal"},
		}}).
		Build()
	require.NoError(t, err)
	return g
}

// memSource is an in-memory Source keyed by instance and relation name.
type memSource struct {
	graph     *schema.Graph
	instances []*ir.Instance
	links     map[string][]*ir.Instance
	allCalls  int
}

func newMemSource(g *schema.Graph) *memSource {
	return &memSource{graph: g, links: map[string][]*ir.Instance{}}
}

func (s *memSource) add(typeName, id string, kv ...any) *ir.Instance {
	inst := &ir.Instance{Type: typeName, ID: id, Version: 1, Attrs: ir.PayloadOf(kv...)}
	s.instances = append(s.instances, inst)
	return inst
}

func (s *memSource) link(from *ir.Instance, rel string, to ...*ir.Instance) {
	s.links[from.ID+"/"+rel] = append(s.links[from.ID+"/"+rel], to...)
}

func (s *memSource) AllOf(_ context.Context, t schema.TypeID) ([]*ir.Instance, error) {
	s.allCalls++
	var out []*ir.Instance
	for _, inst := range s.instances {
		it, _ := s.graph.TypeByName(inst.Type)
		if s.graph.IsKindOf(it.ID, t) {
			out = append(out, inst)
		}
	}
	return out, nil
}

func (s *memSource) Navigate(_ context.Context, from *ir.Instance, r *schema.Relation) ([]*ir.Instance, error) {
	return s.links[from.ID+"/"+r.Name], nil
}

type mapEnv struct {
	vars map[string]ir.Value
	now  time.Time
}

func (e mapEnv) Lookup(_ context.Context, scope, key string) (ir.Value, error) {
	if v, ok := e.vars[scope+"/"+key]; ok {
		return v, nil
	}
	return ir.Null{}, nil
}

func (e mapEnv) Now() time.Time { return e.now }

type fixture struct {
	graph  *schema.Graph
	source *memSource
	ev     *Evaluator
	order  *ir.Instance
	empty  *ir.Instance
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	g := testGraph(t)
	src := newMemSource(g)
	alice := src.add("Customer", "c1", "name", "Alice")
	src.add("Supplier", "s1", "name", "Acme")
	order := src.add("Order", "o1",
		"title", "First",
		"priority", ir.Enum{Enumeration: "Priority", Literal: "HIGH", Ordinal: 2},
		"weight", ir.NewMeasured("12.5", "kilogram"),
		"total", ir.NewDecimal("99.95"),
		"placed", ir.NewDate(2024, time.March, 15),
	)
	empty := src.add("Order", "o2", "title", "Second",
		"priority", ir.Enum{Enumeration: "Priority", Literal: "LOW", Ordinal: 0})
	i1 := src.add("Item", "i1", "product", "bolt", "quantity", 10, "price", ir.NewDecimal("1.50"))
	i2 := src.add("Item", "i2", "product", "nut", "quantity", 2, "price", ir.NewDecimal("0.25"))
	i3 := src.add("Item", "i3", "product", "washer", "quantity", 10, "price", ir.NewDecimal("0.10"))
	src.link(alice, "orders", order, empty)
	src.link(order, "customer", alice)
	src.link(empty, "customer", alice)
	src.link(order, "items", i1, i2, i3)

	env := mapEnv{
		vars: map[string]ir.Value{
			"ENVIRONMENT/LIMIT": ir.String("42"),
			"SYSTEM/region":     ir.String("eu"),
		},
		now: time.Date(2024, time.June, 1, 10, 30, 0, 0, time.UTC),
	}
	return &fixture{graph: g, source: src, ev: New(g, src, env), order: order, empty: empty}
}

func (fx *fixture) typeID(t *testing.T, name string) schema.TypeID {
	t.Helper()
	typ, ok := fx.graph.TypeByName(name)
	require.True(t, ok, name)
	return typ.ID
}

func (fx *fixture) eval(t *testing.T, src string, self *ir.Instance) (ir.Value, error) {
	t.Helper()
	scope := Scope{Type: schema.NoType, Self: self}
	if self != nil {
		scope.Type = fx.typeID(t, self.Type)
	}
	return fx.ev.Evaluate(context.Background(), src, scope)
}

func (fx *fixture) mustEval(t *testing.T, src string, self *ir.Instance) ir.Value {
	t.Helper()
	v, err := fx.eval(t, src, self)
	require.NoError(t, err, src)
	return v
}
