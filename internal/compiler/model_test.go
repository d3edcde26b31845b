package compiler

import (
	"testing"

	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/schema"
)

const shopModel = `
model: "shop"

measure: Mass: unit: {
	gram: {symbol: "g"}
	kilogram: {symbol: "kg", dividend: 1000}
}

enum: Status: ["OPEN", "SHIPPED", "CLOSED"]

type: Party: {
	abstract: true
	attribute: name: {type: "String", required: true, maxLength: 80}
}

type: Customer: {
	extends: ["Party"]
	relation: orders: {target: "Order", upper: "*", partner: "customer"}
}

type: Order: {
	attribute: {
		status: {type: "Status", default: "#OPEN"}
		total: {type: "Decimal", precision: 10, scale: 2}
		weight: {unit: "kg"}
		lineCount: {type: "Integer", getter: "self.lines!count()"}
		note: "String"
	}
	relation: {
		customer: {target: "Customer", lower: 1, partner: "orders"}
		lines: {target: "OrderLine", kind: "composition", upper: "*", createable: true}
	}
	operations: ["ship"]
}

type: OrderLine: attribute: quantity: "Integer"

type: OrderInfo: {
	kind: "transfer"
	mapsTo: "Order"
	attribute: {
		state: {type: "Status", binding: "status"}
		comment: "String"
	}
}
`

func TestCompileModel(t *testing.T) {
	v := cuecontext.New().CompileString(shopModel)
	require.NoError(t, v.Err())

	m, err := CompileModel(v)
	require.NoError(t, err)

	assert.Equal(t, "shop", m.Name)
	require.Len(t, m.Measures, 1)
	assert.Equal(t, "Mass", m.Measures[0].Name)
	require.Len(t, m.Measures[0].Units, 2)
	assert.Equal(t, schema.UnitSpec{Name: "kilogram", Symbol: "kg", Dividend: "1000"}, m.Measures[0].Units[1])

	require.Len(t, m.Enumerations, 1)
	assert.Equal(t, []string{"OPEN", "SHIPPED", "CLOSED"}, m.Enumerations[0].Literals)

	require.Len(t, m.Types, 5)
	names := make([]string, len(m.Types))
	for i, ts := range m.Types {
		names[i] = ts.Name
	}
	assert.Equal(t, []string{"Party", "Customer", "Order", "OrderLine", "OrderInfo"}, names)

	party := m.Types[0]
	assert.True(t, party.Abstract)
	assert.True(t, party.Attributes[0].Required)
	assert.Equal(t, 80, party.Attributes[0].MaxLength)

	order := m.Types[2]
	assert.Equal(t, []string{"ship"}, order.Operations)
	require.Len(t, order.Attributes, 5)
	assert.Equal(t, "#OPEN", order.Attributes[0].Default)
	require.NotNil(t, order.Attributes[1].Precision)
	assert.Equal(t, int32(10), *order.Attributes[1].Precision)
	assert.Equal(t, int32(2), *order.Attributes[1].Scale)
	assert.Equal(t, "kg", order.Attributes[2].Unit)
	assert.Equal(t, schema.MemberDerived, order.Attributes[3].Member)
	assert.Equal(t, "String", order.Attributes[4].Type, "bare string form")

	require.Len(t, order.Relations, 2)
	assert.Equal(t, 1, order.Relations[0].Lower)
	assert.Equal(t, 1, order.Relations[0].Upper)
	assert.Equal(t, schema.Composition, order.Relations[1].Kind)
	assert.Equal(t, -1, order.Relations[1].Upper)
	assert.True(t, order.Relations[1].Createable)

	info := m.Types[4]
	assert.Equal(t, schema.KindTransferObject, info.Kind)
	assert.Equal(t, "Order", info.MapsTo)
	assert.Equal(t, schema.MemberMapped, info.Attributes[0].Member)

	assert.True(t, m.Pos("type.Order.attribute.total").IsValid())
}

func TestCompileModelRejectsMalformedDeclarations(t *testing.T) {
	cases := map[string]string{
		"unknown kind":     `type: T: kind: "view"`,
		"missing type":     `type: T: attribute: a: {required: true}`,
		"missing target":   `type: T: relation: r: {upper: 1}`,
		"bad relation":     `type: T: relation: r: {target: "T", kind: "link"}`,
		"bad upper":        `type: T: relation: r: {target: "T", upper: "many"}`,
		"zero upper":       `type: T: relation: r: {target: "T", upper: 0}`,
		"bad member":       `type: T: attribute: a: {type: "String", member: "virtual"}`,
		"enum not a list":  `enum: E: "A"`,
		"non-boolean flag": `type: T: abstract: "yes"`,
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			v := cuecontext.New().CompileString(src)
			require.NoError(t, v.Err())
			_, err := CompileModel(v)
			assert.Error(t, err)
		})
	}
}

func TestModelBuildLinksGraph(t *testing.T) {
	v := cuecontext.New().CompileString(shopModel)
	m, err := CompileModel(v)
	require.NoError(t, err)

	g, err := m.Build()
	require.NoError(t, err)

	order, ok := g.TypeByName("Order")
	require.True(t, ok)
	customer, ok := g.ResolveRelation(order.ID, "customer")
	require.True(t, ok)
	orders := g.Partner(customer)
	require.NotNil(t, orders)
	assert.Equal(t, "orders", orders.Name)

	info, _ := g.TypeByName("OrderInfo")
	comment, ok := g.ResolveAttribute(info.ID, "comment")
	require.True(t, ok)
	assert.Equal(t, schema.MemberTransient, comment.Member, "transfer objects have no stored members")
	assert.Equal(t, order.ID, g.EntityOf(info.ID))
}
