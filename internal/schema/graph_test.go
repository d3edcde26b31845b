package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int32p(v int32) *int32 { return &v }

func shopGraph(t *testing.T) *Graph {
	t.Helper()
	g, err := NewBuilder().
		Measure(MeasureSpec{Name: "Mass", Units: []UnitSpec{
			{Name: "gram", Symbol: "g"},
			{Name: "kilogram", Symbol: "kg", Dividend: "1000"},
		}}).
		Enumeration("Status", "OPEN", "CLOSED").
		Type(TypeSpec{Name: "Party", Abstract: true, Attributes: []AttributeSpec{
			{Name: "name", Type: "String", Required: true},
			{Name: "label", Type: "String", Getter: "self.name"},
		}}).
		Type(TypeSpec{Name: "Customer", Extends: []string{"Party"}, Attributes: []AttributeSpec{
			{Name: "label", Type: "String", Getter: "'customer ' + self.name"},
		}, Relations: []RelationSpec{
			{Name: "orders", Target: "Order", Upper: -1, Partner: "customer"},
		}}).
		Type(TypeSpec{Name: "Order", Attributes: []AttributeSpec{
			{Name: "status", Type: "Status"},
			{Name: "total", Type: "Decimal", Precision: int32p(10), Scale: int32p(2)},
			{Name: "weight", Unit: "kg"},
		}, Relations: []RelationSpec{
			{Name: "customer", Target: "Customer", Lower: 1, Upper: 1, Partner: "orders"},
			{Name: "lines", Target: "OrderLine", Upper: -1, Kind: Composition, Createable: true},
		}}).
		Type(TypeSpec{Name: "OrderLine", Attributes: []AttributeSpec{
			{Name: "quantity", Type: "Integer"},
		}}).
		Type(TypeSpec{Name: "OrderInfo", Kind: KindTransferObject, MapsTo: "Order", Attributes: []AttributeSpec{
			{Name: "state", Type: "Status", Member: MemberMapped, Binding: "status"},
		}}).
		Build()
	require.NoError(t, err)
	return g
}

func TestTypeByNameAcceptsQualifiedNames(t *testing.T) {
	g := shopGraph(t)

	order, ok := g.TypeByName("shop::Order")
	require.True(t, ok)
	assert.Equal(t, "Order", order.Name)

	_, ok = g.TypeByName("Missing")
	assert.False(t, ok)
}

func TestInheritedMembersComeFirstAndOverride(t *testing.T) {
	g := shopGraph(t)
	customer, _ := g.TypeByName("Customer")
	party, _ := g.TypeByName("Party")

	attrs := g.Attributes(customer.ID)
	require.Len(t, attrs, 2)
	assert.Equal(t, "name", attrs[0].Name)
	assert.Equal(t, "label", attrs[1].Name)
	assert.Equal(t, customer.ID, attrs[1].Owner, "own attribute hides inherited one")
	assert.Equal(t, MemberDerived, attrs[1].Member)

	assert.Equal(t, []TypeID{party.ID}, g.Ancestors(customer.ID))
	assert.Equal(t, []TypeID{customer.ID}, g.Subtypes(party.ID))
	assert.True(t, g.IsKindOf(customer.ID, party.ID))
	assert.False(t, g.IsKindOf(party.ID, customer.ID))
}

func TestDataTypes(t *testing.T) {
	g := shopGraph(t)
	order, _ := g.TypeByName("Order")

	total, ok := g.ResolveAttribute(order.ID, "total")
	require.True(t, ok)
	assert.Equal(t, int32(10), total.Type.Precision)
	assert.Equal(t, int32(2), total.Type.Scale)
	assert.False(t, total.Type.IsInteger())

	weight, _ := g.ResolveAttribute(order.ID, "weight")
	assert.Equal(t, DataMeasured, weight.Type.Kind)
	assert.Equal(t, "Mass", weight.Type.Measure)
	assert.Equal(t, "kilogram", weight.Type.Unit)

	status, _ := g.ResolveAttribute(order.ID, "status")
	assert.Equal(t, DataEnum, status.Type.Kind)
	e, ok := g.Enumeration(status.Type.Enumeration)
	require.True(t, ok)
	assert.Equal(t, 1, e.Ordinal("CLOSED"))

	kg, ok := g.Unit("kg")
	require.True(t, ok)
	assert.Equal(t, "kilogram", kg.Name)
}

func TestPartnersShareStorageKey(t *testing.T) {
	g := shopGraph(t)
	customer, _ := g.TypeByName("Customer")
	order, _ := g.TypeByName("Order")

	orders, ok := g.ResolveRelation(customer.ID, "orders")
	require.True(t, ok)
	back, ok := g.ResolveRelation(order.ID, "customer")
	require.True(t, ok)

	assert.Equal(t, back.ID, orders.Partner)
	assert.Equal(t, orders.ID, back.Partner)
	assert.Equal(t, orders.StorageKey, back.StorageKey)
	assert.NotEqual(t, orders.Reversed, back.Reversed)
	assert.True(t, orders.IsCollection())
	assert.False(t, back.IsCollection())
}

func TestIncomingRelationsIncludeSupertypeTargets(t *testing.T) {
	g := shopGraph(t)
	customer, _ := g.TypeByName("Customer")

	var names []string
	for _, r := range g.IncomingRelations(customer.ID) {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{"customer"}, names)
}

func TestEntityOf(t *testing.T) {
	g := shopGraph(t)
	order, _ := g.TypeByName("Order")
	info, _ := g.TypeByName("OrderInfo")

	assert.Equal(t, order.ID, g.EntityOf(order.ID))
	assert.Equal(t, order.ID, g.EntityOf(info.ID))
	assert.True(t, info.IsMapped())
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name    string
		builder *Builder
		wantErr string
	}{
		{
			name:    "unknown supertype",
			builder: NewBuilder().Type(TypeSpec{Name: "A", Extends: []string{"B"}}),
			wantErr: "unknown supertype B",
		},
		{
			name: "generalization cycle",
			builder: NewBuilder().
				Type(TypeSpec{Name: "A", Extends: []string{"B"}}).
				Type(TypeSpec{Name: "B", Extends: []string{"A"}}),
			wantErr: "generalization cycle",
		},
		{
			name:    "unknown attribute type",
			builder: NewBuilder().Type(TypeSpec{Name: "A", Attributes: []AttributeSpec{{Name: "x", Type: "Blob"}}}),
			wantErr: `unknown type "Blob"`,
		},
		{
			name: "bad bounds",
			builder: NewBuilder().Type(TypeSpec{Name: "A", Relations: []RelationSpec{
				{Name: "r", Target: "A", Lower: 2, Upper: 1},
			}}),
			wantErr: "invalid bounds",
		},
		{
			name: "unknown partner",
			builder: NewBuilder().
				Type(TypeSpec{Name: "A", Relations: []RelationSpec{{Name: "b", Target: "B", Partner: "a"}}}).
				Type(TypeSpec{Name: "B"}),
			wantErr: "unknown partner B.a",
		},
		{
			name: "entity mapping",
			builder: NewBuilder().
				Type(TypeSpec{Name: "A", MapsTo: "B"}).
				Type(TypeSpec{Name: "B"}),
			wantErr: "only transfer objects map onto entities",
		},
		{
			name:    "scale without numeric",
			builder: NewBuilder().Type(TypeSpec{Name: "A", Attributes: []AttributeSpec{{Name: "x", Type: "String", Scale: int32p(2)}}}),
			wantErr: "scale on non-numeric",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.builder.Build()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
