package dao

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/ir"
)

func TestCreate_StampsVersionAndTimestamps(t *testing.T) {
	fx := newFixture(t)
	id := fx.customer(t, "Alice")
	assert.Equal(t, "id-1", id)

	p := fx.get(t, "Customer", id)
	assert.Equal(t, ir.Integer(1), field(t, p, ir.VersionKey))
	assert.Equal(t, ir.String("Customer"), field(t, p, ir.EntityTypeKey))
	created := field(t, p, ir.CreatedKey)
	assert.True(t, ir.Equal(created, field(t, p, ir.UpdatedKey)))
	assert.True(t, ir.Equal(ir.NewTimestamp(t0), created))
	assert.Equal(t, ir.String("Alice"), field(t, p, "name"))
	assert.False(t, p.Has("vip"), "null attributes are omitted")
}

func TestCreate_AppliesDefaultsAndConvertsUnits(t *testing.T) {
	fx := newFixture(t)
	c := fx.customer(t, "Alice")
	o := fx.order(t, c, "weight", ir.NewMeasured("1500", "g"), "total", ir.NewDecimal("12.345"))

	p := fx.get(t, "Order", o)
	status, ok := field(t, p, "status").(ir.Enum)
	require.True(t, ok)
	assert.Equal(t, "OPEN", status.Literal)

	w, ok := field(t, p, "weight").(ir.Measured)
	require.True(t, ok)
	assert.Equal(t, "kilogram", w.Unit)
	assert.True(t, ir.Equal(ir.NewDecimal("1.5"), ir.Decimal{Dec: w.Amount}))

	assert.True(t, ir.Equal(ir.NewDecimal("12.35"), field(t, p, "total")), "rounded to scale")
	assert.Equal(t, ir.Count(0), field(t, p, "itemCount"))
}

func TestCreate_TesterCountDefault(t *testing.T) {
	fx := newFixture(t)
	for want := range 3 {
		id := fx.create(t, "Tester")
		assert.Equal(t, ir.Integer(want), field(t, fx.get(t, "Tester", id), "number"))
	}
}

func TestCreate_NestedComposition(t *testing.T) {
	fx := newFixture(t)
	c := fx.customer(t, "Alice")
	o := fx.order(t, c, "items", items(2, 7))

	p := fx.get(t, "Order", o)
	assert.Equal(t, ir.Count(2), field(t, p, "itemCount"))
	lines, ok := field(t, p, "items").(ir.Collection)
	require.True(t, ok)
	require.Len(t, lines, 2)
	first := lines[0].(*ir.Payload)
	assert.Equal(t, ir.Integer(2), field(t, first, "quantity"))
	assert.Equal(t, ir.Integer(1), field(t, first, ir.VersionKey))

	customer, ok := field(t, p, "customer").(*ir.Payload)
	require.True(t, ok)
	assert.Equal(t, c, idOf(t, customer))
	assert.False(t, customer.Has("orders"), "associations nest attributes only")
}

func TestCreate_Rejects(t *testing.T) {
	fx := newFixture(t)
	c := fx.customer(t, "Alice")
	detail := fx.create(t, "OrderDetail", "quantity", 1)

	cases := []struct {
		name    string
		typ     string
		payload *ir.Payload
		rule    string
		check   func(error) bool
	}{
		{"abstract", "Party", ir.PayloadOf("name", "x"), RuleAbstract, IsValidation},
		{"required attribute", "Customer", ir.PayloadOf(), RuleRequired, IsValidation},
		{"required relation", "Order", ir.PayloadOf(), RuleRequired, IsValidation},
		{"unknown field", "Customer", ir.PayloadOf("name", "x", "age", 3), RuleUnknownField, IsValidation},
		{"too long", "Customer", ir.PayloadOf("name", "abcdefghijklmnopqrstuvwxyz"), RuleValue, IsValidation},
		{"bad enum", "Order", ir.PayloadOf("status", "LOST", "customer", ref(c)), RuleValue, IsValidation},
		{"unknown reference", "Order", ir.PayloadOf("customer", ref("nope")), RuleIdentifier, IsValidation},
		{"reference into composition", "Order", ir.PayloadOf("customer", ref(c), "items", ir.Collection{ref(detail)}), RuleIdentifier, IsValidation},
		{"inline into association", "Order", ir.PayloadOf("customer", ir.PayloadOf("name", "Bob")), RuleCreateable, IsValidation},
		{"collection into single", "Order", ir.PayloadOf("customer", ir.Collection{ref(c)}), RuleValue, IsValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := fx.run(t, func(ctx context.Context, s *Session) error {
				_, err := s.Create(ctx, fx.typ(tc.typ), tc.payload, QueryOptions{})
				return err
			})
			require.Error(t, err)
			assert.True(t, tc.check(err), "got %v", err)
			var de *Error
			require.True(t, errors.As(err, &de))
			assert.Equal(t, tc.rule, de.Rule)
		})
	}

	var n int64
	fx.do(t, func(ctx context.Context, s *Session) {
		var err error
		n, err = s.CountAllOf(ctx, fx.typ("Order"), "")
		require.NoError(t, err)
	})
	assert.Zero(t, n, "failed creates leave nothing behind")
}

type fixedIdentifiers struct{ id string }

func (p fixedIdentifiers) NewIdentifier() string { return p.id }

func (fixedIdentifiers) IdentifierFieldName() string { return ir.IdentifierKey }

func TestCreate_DuplicateIdentifier(t *testing.T) {
	fx := newFixture(t)
	fx.engine = New(fx.graph, WithIdentifiers(fixedIdentifiers{id: "dup"}))
	first := fx.customer(t, "Alice")
	assert.Equal(t, "dup", first)

	err := fx.run(t, func(ctx context.Context, s *Session) error {
		_, err := s.Create(ctx, fx.typ("Customer"), ir.PayloadOf("name", "Bob"), QueryOptions{})
		return err
	})
	require.Error(t, err)
	assert.True(t, IsValidation(err), "got %v", err)
	var de *Error
	require.True(t, errors.As(err, &de))
	assert.Equal(t, RuleIdentifier, de.Rule)
	assert.Equal(t, "dup", de.ID)

	assert.Equal(t, ir.String("Alice"), field(t, fx.get(t, "Customer", "dup"), "name"))
}

func TestCreate_StatelessSession(t *testing.T) {
	fx := newFixture(t)
	err := fx.run(t, func(ctx context.Context, s *Session) error {
		_, err := s.Create(ctx, fx.typ("Customer"), ir.PayloadOf("name", "Alice"), QueryOptions{})
		return err
	}, WithStateful(false))
	require.Error(t, err)
	assert.True(t, IsState(err))

	fx.do(t, func(ctx context.Context, s *Session) {
		all, err := s.GetAllOf(ctx, fx.typ("Customer"), QueryOptions{})
		require.NoError(t, err)
		assert.Empty(t, all)
	})
}

func TestUpdate_PartialBumpsVersion(t *testing.T) {
	fx := newFixture(t)
	c := fx.customer(t, "Alice")
	o := fx.order(t, c, "note", "first")

	fx.clock.Advance(time.Minute)
	fx.do(t, func(ctx context.Context, s *Session) {
		p, err := s.Update(ctx, fx.typ("Order"), ir.PayloadOf(ir.IdentifierKey, o, "total", ir.NewDecimal("5")), QueryOptions{})
		require.NoError(t, err)
		assert.Equal(t, ir.Integer(2), field(t, p, ir.VersionKey))
		assert.Equal(t, ir.String("first"), field(t, p, "note"), "absent keys are kept")
		assert.True(t, ir.Equal(ir.NewTimestamp(t0), field(t, p, ir.CreatedKey)))
		assert.True(t, ir.Equal(ir.NewTimestamp(t0.Add(time.Minute)), field(t, p, ir.UpdatedKey)))
	})

	// An identical update still counts as a write.
	fx.do(t, func(ctx context.Context, s *Session) {
		p, err := s.Update(ctx, fx.typ("Order"), ir.PayloadOf(ir.IdentifierKey, o, "total", ir.NewDecimal("5")), QueryOptions{})
		require.NoError(t, err)
		assert.Equal(t, ir.Integer(3), field(t, p, ir.VersionKey))
	})

	fx.do(t, func(ctx context.Context, s *Session) {
		p, err := s.Update(ctx, fx.typ("Order"), ir.PayloadOf(ir.IdentifierKey, o, "note", nil), QueryOptions{})
		require.NoError(t, err)
		assert.False(t, p.Has("note"), "explicit null clears")
	})
}

func TestUpdate_StaleVersionConflicts(t *testing.T) {
	fx := newFixture(t)
	c := fx.customer(t, "Alice")

	fx.do(t, func(ctx context.Context, s *Session) {
		_, err := s.Update(ctx, fx.typ("Customer"), ir.PayloadOf(ir.IdentifierKey, c, ir.VersionKey, 1, "name", "Alicia"), QueryOptions{})
		require.NoError(t, err)
	})

	err := fx.run(t, func(ctx context.Context, s *Session) error {
		_, err := s.Update(ctx, fx.typ("Customer"), ir.PayloadOf(ir.IdentifierKey, c, ir.VersionKey, 1, "name", "Bob"), QueryOptions{})
		return err
	})
	require.Error(t, err)
	assert.True(t, IsConflict(err))
	assert.ErrorIs(t, err, ErrConflict)

	p := fx.get(t, "Customer", c)
	assert.Equal(t, ir.String("Alicia"), field(t, p, "name"))
	assert.Equal(t, ir.Integer(2), field(t, p, ir.VersionKey))
}

func TestUpdate_Rejects(t *testing.T) {
	fx := newFixture(t)
	c := fx.customer(t, "Alice")
	o := fx.order(t, c)

	cases := []struct {
		name    string
		typ     string
		payload *ir.Payload
		check   func(error) bool
	}{
		{"no identifier", "Customer", ir.PayloadOf("name", "x"), IsValidation},
		{"missing row", "Customer", ir.PayloadOf(ir.IdentifierKey, "ghost", "name", "x"), IsState},
		{"wrong type", "Customer", ir.PayloadOf(ir.IdentifierKey, o, "name", "x"), IsValidation},
		{"bad version", "Customer", ir.PayloadOf(ir.IdentifierKey, c, ir.VersionKey, 0), IsValidation},
		{"clear required", "Customer", ir.PayloadOf(ir.IdentifierKey, c, "name", nil), IsValidation},
		{"clear required relation", "Order", ir.PayloadOf(ir.IdentifierKey, o, "customer", nil), IsValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := fx.run(t, func(ctx context.Context, s *Session) error {
				_, err := s.Update(ctx, fx.typ(tc.typ), tc.payload, QueryOptions{})
				return err
			})
			require.Error(t, err)
			assert.True(t, tc.check(err), "got %v", err)
		})
	}
	assert.Equal(t, ir.Integer(1), field(t, fx.get(t, "Customer", c), ir.VersionKey))
}

func TestUpdate_ReplacesComposition(t *testing.T) {
	fx := newFixture(t)
	c := fx.customer(t, "Alice")
	o := fx.order(t, c, "items", items(1, 2))

	lines := field(t, fx.get(t, "Order", o), "items").(ir.Collection)
	keep := idOf(t, lines[0].(*ir.Payload))
	drop := idOf(t, lines[1].(*ir.Payload))

	fx.do(t, func(ctx context.Context, s *Session) {
		_, err := s.Update(ctx, fx.typ("Order"), ir.PayloadOf(
			ir.IdentifierKey, o,
			"items", ir.Collection{
				ir.PayloadOf(ir.IdentifierKey, keep, "quantity", 10),
				ir.PayloadOf("quantity", 3),
			},
		), QueryOptions{})
		require.NoError(t, err)
	})

	p := fx.get(t, "Order", o)
	got := field(t, p, "items").(ir.Collection)
	require.Len(t, got, 2)
	assert.Equal(t, ir.Integer(10), field(t, fx.get(t, "OrderDetail", keep), "quantity"))

	fx.do(t, func(ctx context.Context, s *Session) {
		gone, err := s.GetByIdentifier(ctx, fx.typ("OrderDetail"), drop, QueryOptions{})
		require.NoError(t, err)
		assert.Nil(t, gone, "omitted composition children are deleted")
	})
}

func TestCreate_TransferObjectView(t *testing.T) {
	fx := newFixture(t)
	c := fx.customer(t, "Alice")

	var id string
	fx.do(t, func(ctx context.Context, s *Session) {
		p, err := s.Create(ctx, fx.typ("OrderInfo"), ir.PayloadOf(
			"state", "SHIPPED",
			"comment", "transient",
			"buyer", ref(c),
		), QueryOptions{})
		require.NoError(t, err)
		id = idOf(t, p)
		assert.Equal(t, ir.String("Order"), field(t, p, ir.EntityTypeKey))
		assert.Equal(t, "SHIPPED", field(t, p, "state").(ir.Enum).Literal)
		assert.Equal(t, ir.Count(0), field(t, p, "lines"))
		assert.False(t, p.Has("comment"), "transient members are not stored")
		assert.False(t, p.Has("status"), "views expose their own members")
		assert.Equal(t, c, idOf(t, field(t, p, "buyer").(*ir.Payload)))
	})

	order := fx.get(t, "Order", id)
	assert.Equal(t, "SHIPPED", field(t, order, "status").(ir.Enum).Literal)
}

func TestCreate_UnmappedTransferObject(t *testing.T) {
	fx := newFixture(t)
	err := fx.run(t, func(ctx context.Context, s *Session) error {
		_, err := s.Create(ctx, fx.typ("Dashboard"), ir.PayloadOf(), QueryOptions{})
		return err
	})
	require.Error(t, err)
	assert.True(t, IsArgument(err))
}
