package dao

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/compiler"
	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/env"
	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/ir"
	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/schema"
	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/store"
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
	attribute: name: {type: "String", required: true, maxLength: 20}
}

type: Customer: {
	extends: ["Party"]
	attribute: vip: "Boolean"
	relation: {
		orders: {target: "Order", upper: "*", partner: "customer"}
		ordersWithMultipleItems: {target: "Order", upper: "*", getter: "self.orders!filter(o | o.items!count() > 1)"}
	}
}

type: Order: {
	attribute: {
		status: {type: "Status", default: "Status#OPEN"}
		total: {type: "Decimal", precision: 10, scale: 2}
		weight: {unit: "kg"}
		itemCount: {type: "Integer", getter: "self.items!count()"}
		note: "String"
	}
	relation: {
		customer: {target: "Customer", lower: 1, partner: "orders"}
		items: {target: "OrderDetail", kind: "composition", upper: "*", createable: true}
		bigItems: {target: "OrderDetail", upper: "*", getter: "self.items!filter(i | i.quantity > 5)"}
		shipment: {target: "Shipment", createable: true}
	}
}

type: OrderDetail: attribute: quantity: "Integer"

type: Shipment: attribute: {
	carrier: "String"
	rate: {type: "Decimal", precision: 20, scale: 18}
}

type: Tester: attribute: number: {type: "Integer", default: "Tester!count()"}

type: Node: {
	attribute: label: "String"
	relation: next: {target: "Node", reverseCascadeDelete: true}
}

type: OrderInfo: {
	kind: "transfer"
	mapsTo: "Order"
	attribute: {
		state: {type: "Status", binding: "status"}
		comment: "String"
		lines: {type: "Integer", getter: "self.items!count()"}
	}
	relation: buyer: {target: "Customer", binding: "customer"}
}

type: Dashboard: {
	kind: "transfer"
	attribute: {
		orderCount: {type: "Integer", getter: "Order!count()"}
		stamp: {type: "Timestamp", getter: "Timestamp!now()"}
		region: {type: "String", getter: "String!getVariable('SYSTEM', 'region')"}
	}
	relation: openOrders: {target: "Order", upper: "*", getter: "Order!filter(o | o.status == Status#OPEN)"}
}
`

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	graph  *schema.Graph
	store  *store.Store
	engine *Engine
	clock  *env.FixedClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	g := compiler.MustLoadString(shopModel)
	st, err := store.Open(filepath.Join(t.TempDir(), "dao.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	clock := env.NewFixedClock(t0)
	provider := env.NewProvider(
		env.WithClock(clock),
		env.WithLookupEnv(nil),
		env.WithSystem(map[string]string{"region": "eu"}),
	)
	return &fixture{
		graph: g,
		store: st,
		engine: New(g,
			WithIdentifiers(NewSequentialProvider("id")),
			WithEnvironment(provider),
		),
		clock: clock,
	}
}

// run executes fn in one committed transaction and returns its error.
func (fx *fixture) run(t *testing.T, fn func(ctx context.Context, s *Session) error, opts ...SessionOption) error {
	t.Helper()
	ctx := context.Background()
	return fx.store.InTx(ctx, func(tx *store.Tx) error {
		return fn(ctx, fx.engine.Session(tx, opts...))
	})
}

// do is run that must succeed.
func (fx *fixture) do(t *testing.T, fn func(ctx context.Context, s *Session)) {
	t.Helper()
	require.NoError(t, fx.run(t, func(ctx context.Context, s *Session) error {
		fn(ctx, s)
		return nil
	}))
}

func (fx *fixture) typ(name string) *schema.Type {
	t, ok := fx.graph.TypeByName(name)
	if !ok {
		panic("no type " + name)
	}
	return t
}

func (fx *fixture) rel(typ, name string) *schema.Relation {
	r, ok := fx.graph.ResolveRelation(fx.typ(typ).ID, name)
	if !ok {
		panic("no relation " + typ + "." + name)
	}
	return r
}

func (fx *fixture) attr(typ, name string) *schema.Attribute {
	a, ok := fx.graph.ResolveAttribute(fx.typ(typ).ID, name)
	if !ok {
		panic("no attribute " + typ + "." + name)
	}
	return a
}

// create inserts one instance and returns its identifier.
func (fx *fixture) create(t *testing.T, typ string, kv ...any) string {
	t.Helper()
	var id string
	fx.do(t, func(ctx context.Context, s *Session) {
		p, err := s.Create(ctx, fx.typ(typ), ir.PayloadOf(kv...), QueryOptions{})
		require.NoError(t, err)
		id = idOf(t, p)
	})
	return id
}

func (fx *fixture) get(t *testing.T, typ, id string) *ir.Payload {
	t.Helper()
	var out *ir.Payload
	fx.do(t, func(ctx context.Context, s *Session) {
		p, err := s.GetByIdentifier(ctx, fx.typ(typ), id, QueryOptions{})
		require.NoError(t, err)
		out = p
	})
	return out
}

func (fx *fixture) customer(t *testing.T, name string) string {
	return fx.create(t, "Customer", "name", name)
}

func (fx *fixture) order(t *testing.T, customerID string, kv ...any) string {
	kv = append(kv, "customer", ref(customerID))
	return fx.create(t, "Order", kv...)
}

func ref(id string) *ir.Payload {
	return ir.PayloadOf(ir.IdentifierKey, id)
}

func items(quantities ...int) ir.Collection {
	c := make(ir.Collection, len(quantities))
	for i, q := range quantities {
		c[i] = ir.PayloadOf("quantity", q)
	}
	return c
}

func idOf(t *testing.T, p *ir.Payload) string {
	t.Helper()
	require.NotNil(t, p)
	id, ok := p.Identifier()
	require.True(t, ok, "payload has no identifier")
	return id
}

func field(t *testing.T, p *ir.Payload, key string) ir.Value {
	t.Helper()
	v, ok := p.Get(key)
	require.True(t, ok, "payload has no %s", key)
	return v
}

func ids(t *testing.T, ps []*ir.Payload) []string {
	t.Helper()
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = idOf(t, p)
	}
	return out
}
