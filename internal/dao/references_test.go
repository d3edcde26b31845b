package dao

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/ir"
)

func (fx *fixture) targets(t *testing.T, typ, id, rel string) []string {
	t.Helper()
	var out []string
	fx.do(t, func(ctx context.Context, s *Session) {
		ps, err := s.GetNavigationResultAt(ctx, fx.typ(typ), id, fx.rel(typ, rel), QueryOptions{})
		require.NoError(t, err)
		out = ids(t, ps)
	})
	return out
}

func TestReferences_SingleSlot(t *testing.T) {
	fx := newFixture(t)
	c := fx.customer(t, "Alice")
	s1 := fx.create(t, "Shipment", "carrier", "DHL")
	s2 := fx.create(t, "Shipment", "carrier", "UPS")
	o := fx.order(t, c, "shipment", ref(s1))
	shipment := fx.rel("Order", "shipment")

	err := fx.run(t, func(ctx context.Context, s *Session) error {
		return s.AddReferences(ctx, fx.typ("Order"), o, shipment, []string{s2})
	})
	require.Error(t, err)
	assert.True(t, IsArgument(err), "adding into a full slot: %v", err)
	assert.Equal(t, []string{s1}, fx.targets(t, "Order", o, "shipment"))

	fx.do(t, func(ctx context.Context, s *Session) {
		require.NoError(t, s.SetReference(ctx, fx.typ("Order"), o, shipment, []string{s2}))
	})
	assert.Equal(t, []string{s2}, fx.targets(t, "Order", o, "shipment"))

	fx.do(t, func(ctx context.Context, s *Session) {
		require.NoError(t, s.UnsetReference(ctx, fx.typ("Order"), o, shipment))
	})
	assert.Empty(t, fx.targets(t, "Order", o, "shipment"))

	assert.Equal(t, ir.Integer(1), field(t, fx.get(t, "Order", o), ir.VersionKey), "reference changes leave the version alone")
	assert.True(t, fx.exists(t, "Shipment", s1), "unlinked targets survive")
}

func TestReferences_LowerBound(t *testing.T) {
	fx := newFixture(t)
	c := fx.customer(t, "Alice")
	o := fx.order(t, c)
	customer := fx.rel("Order", "customer")

	for name, op := range map[string]func(ctx context.Context, s *Session) error{
		"remove": func(ctx context.Context, s *Session) error {
			return s.RemoveReferences(ctx, fx.typ("Order"), o, customer, []string{c})
		},
		"unset": func(ctx context.Context, s *Session) error {
			return s.UnsetReference(ctx, fx.typ("Order"), o, customer)
		},
		"set empty": func(ctx context.Context, s *Session) error {
			return s.SetReference(ctx, fx.typ("Order"), o, customer, nil)
		},
	} {
		t.Run(name, func(t *testing.T) {
			err := fx.run(t, op)
			require.Error(t, err)
			assert.True(t, IsArgument(err), "got %v", err)
		})
	}
	assert.Equal(t, []string{c}, fx.targets(t, "Order", o, "customer"))

	// Removing an identifier that is not referenced is a no-op.
	fx.do(t, func(ctx context.Context, s *Session) {
		require.NoError(t, s.RemoveReferences(ctx, fx.typ("Order"), o, customer, []string{"ghost"}))
	})
}

func TestReferences_PartnerBoundElsewhere(t *testing.T) {
	fx := newFixture(t)
	c1 := fx.customer(t, "Alice")
	c2 := fx.customer(t, "Bob")
	o := fx.order(t, c1)

	err := fx.run(t, func(ctx context.Context, s *Session) error {
		return s.AddReferences(ctx, fx.typ("Customer"), c2, fx.rel("Customer", "orders"), []string{o})
	})
	require.Error(t, err)
	var de *Error
	require.True(t, errors.As(err, &de))
	assert.Equal(t, CodeArgument, de.Code)
	assert.Equal(t, RulePartner, de.Rule)

	// Moving the order from its own side rebinds both ends.
	fx.do(t, func(ctx context.Context, s *Session) {
		require.NoError(t, s.SetReference(ctx, fx.typ("Order"), o, fx.rel("Order", "customer"), []string{c2}))
	})
	assert.Empty(t, fx.targets(t, "Customer", c1, "orders"))
	assert.Equal(t, []string{o}, fx.targets(t, "Customer", c2, "orders"))
}

func TestReferences_Rejects(t *testing.T) {
	fx := newFixture(t)
	c := fx.customer(t, "Alice")
	o := fx.order(t, c, "items", items(1))
	d := fx.create(t, "OrderDetail", "quantity", 2)

	cases := []struct {
		name  string
		op    func(ctx context.Context, s *Session) error
		check func(error) bool
		opts  []SessionOption
	}{
		{"add into composition", func(ctx context.Context, s *Session) error {
			return s.AddReferences(ctx, fx.typ("Order"), o, fx.rel("Order", "items"), []string{d})
		}, IsValidation, nil},
		{"derived relation", func(ctx context.Context, s *Session) error {
			return s.AddReferences(ctx, fx.typ("Order"), o, fx.rel("Order", "bigItems"), []string{d})
		}, IsValidation, nil},
		{"unknown target", func(ctx context.Context, s *Session) error {
			return s.SetReference(ctx, fx.typ("Order"), o, fx.rel("Order", "shipment"), []string{"ghost"})
		}, IsValidation, nil},
		{"missing owner", func(ctx context.Context, s *Session) error {
			return s.UnsetReference(ctx, fx.typ("Order"), "ghost", fx.rel("Order", "shipment"))
		}, IsState, nil},
		{"stateless", func(ctx context.Context, s *Session) error {
			return s.UnsetReference(ctx, fx.typ("Order"), o, fx.rel("Order", "shipment"))
		}, IsState, []SessionOption{WithStateful(false)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := fx.run(t, tc.op, tc.opts...)
			require.Error(t, err)
			assert.True(t, tc.check(err), "got %v", err)
		})
	}
}

func TestReferences_RemoveCompositionChildDeletesIt(t *testing.T) {
	fx := newFixture(t)
	c := fx.customer(t, "Alice")
	o := fx.order(t, c, "items", items(1, 2))
	children := fx.targets(t, "Order", o, "items")
	require.Len(t, children, 2)

	fx.do(t, func(ctx context.Context, s *Session) {
		require.NoError(t, s.RemoveReferences(ctx, fx.typ("Order"), o, fx.rel("Order", "items"), children[:1]))
	})
	assert.Equal(t, children[1:], fx.targets(t, "Order", o, "items"))
	assert.False(t, fx.exists(t, "OrderDetail", children[0]))
}
