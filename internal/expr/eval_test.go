package expr

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/ir"
	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/schema"
)

func TestArithmetic(t *testing.T) {
	fx := newFixture(t)

	cases := []struct {
		src  string
		want ir.Value
	}{
		{"1 + 2 * 3", ir.Integer(7)},
		{"7 div 2", ir.Integer(3)},
		{"7 mod 2", ir.Integer(1)},
		{"7 / 2", ir.NewDecimal("3.5")},
		{"1.5 + 1", ir.NewDecimal("2.5")},
		{"-(2 - 5)", ir.Integer(3)},
		{"'ab' + 'cd'", ir.String("abcd")},
		{"2 > 1 and 'a' < 'b'", ir.Bool(true)},
		{"true xor true", ir.Bool(false)},
		{"false implies false", ir.Bool(true)},
		{"1 == 1.0", ir.Bool(true)},
		{"3 <> 4", ir.Bool(true)},
		{"1 < 2 ? 'yes' : 'no'", ir.String("yes")},
	}
	for _, tc := range cases {
		t.Run(tc.src, func(t *testing.T) {
			got := fx.mustEval(t, tc.src, nil)
			assert.True(t, ir.Equal(tc.want, got), "got %s (%s)", ir.Format(got), ir.KindName(got))
			assert.Equal(t, ir.KindName(tc.want), ir.KindName(got))
		})
	}
}

func TestTypeErrors(t *testing.T) {
	fx := newFixture(t)

	for _, src := range []string{
		"1 + 'a'",
		"'a' < 1",
		"1.5 div 2",
		"not 1",
		"1 / 0",
		"1[kg] * 2[kg]",
		"1[kg] + 1[m]",
		"1[kg] + 1",
		"Priority#MISSING",
		"Unknown#X",
		"3[parsec]",
		"nowhere",
		"Order",
		"false ? 1 : 2 + 'x'",
	} {
		t.Run(src, func(t *testing.T) {
			_, err := fx.eval(t, src, nil)
			require.Error(t, err)
			assert.True(t, IsEvalError(err), "%v", err)
			var ee *EvalError
			require.ErrorAs(t, err, &ee)
			assert.Equal(t, src, ee.Expr)
		})
	}
}

func TestUndefinedPropagates(t *testing.T) {
	fx := newFixture(t)

	// o2 has no weight, total or items.
	for _, src := range []string{
		"self.weight > 1[kg]",
		"self.total * 2",
		"self.weight > 1[kg] and true",
		"self.weight > 1[kg] ? 1 : 2",
		"-self.total",
		"self.title!length() + self.total",
	} {
		t.Run(src, func(t *testing.T) {
			got := fx.mustEval(t, src, fx.empty)
			assert.True(t, ir.IsNull(got), "got %s", ir.Format(got))
		})
	}
}

func TestMembersAndNavigation(t *testing.T) {
	fx := newFixture(t)

	assert.Equal(t, ir.String("First"), fx.mustEval(t, "title", fx.order))
	assert.Equal(t, ir.String("Alice"), fx.mustEval(t, "self.customer.name", fx.order))

	products := fx.mustEval(t, "self.items.product", fx.order)
	assert.Equal(t, ir.Collection{ir.String("bolt"), ir.String("nut"), ir.String("washer")}, products)

	names := fx.mustEval(t, "self.customer.orders.title", fx.order)
	assert.Equal(t, ir.Collection{ir.String("First"), ir.String("Second")}, names)

	_, err := fx.eval(t, "self.nothing", fx.order)
	assert.True(t, IsEvalError(err))
}

func TestDerivedMembers(t *testing.T) {
	fx := newFixture(t)

	assert.Equal(t, ir.Count(3), fx.mustEval(t, "self.itemCount", fx.order))
	assert.Equal(t, ir.Bool(true), fx.mustEval(t, "heavy", fx.order))

	big := fx.mustEval(t, "self.bigItems.product", fx.order)
	assert.Equal(t, ir.Collection{ir.String("bolt"), ir.String("washer")}, big)

	_, err := fx.eval(t, "self.loop", fx.order)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nesting exceeds")
}

func TestCollectionFunctions(t *testing.T) {
	fx := newFixture(t)

	cases := []struct {
		src  string
		want ir.Value
	}{
		{"self.items!count()", ir.Count(3)},
		{"self.items!isEmpty()", ir.Bool(false)},
		{"self.items!sum(i | i.quantity)", ir.Integer(22)},
		{"self.items!sum(i | i.quantity * i.price)", ir.NewDecimal("16.5")},
		{"self.items!min(i | i.price)", ir.NewDecimal("0.10")},
		{"self.items!max(i | i.quantity)", ir.Integer(10)},
		{"self.items!exists(i | i.product == 'nut')", ir.Bool(true)},
		{"self.items!forAll(i | i.quantity > 1)", ir.Bool(true)},
		{"self.items!filter(i | i.quantity > 5)!count()", ir.Count(2)},
		{"self.items.product!contains('nut')", ir.Bool(true)},
		{"self.items!head(i | i.price).product", ir.String("washer")},
		{"self.items!tail(i | i.price).product", ir.String("bolt")},
		{"self.items!head(i | i.quantity DESC).product", ir.String("bolt")},
		{"self.items!heads(i | i.quantity DESC)!count()", ir.Count(2)},
		{"self.items!any().product", ir.String("bolt")},
	}
	for _, tc := range cases {
		t.Run(tc.src, func(t *testing.T) {
			got := fx.mustEval(t, tc.src, fx.order)
			assert.True(t, ir.Equal(tc.want, got), "got %s", ir.Format(got))
			assert.Equal(t, ir.KindName(tc.want), ir.KindName(got))
		})
	}
}

func TestAggregatesOverEmptyAreUndefined(t *testing.T) {
	fx := newFixture(t)

	for _, src := range []string{
		"self.items!sum(i | i.quantity)",
		"self.items!avg(i | i.quantity)",
		"self.items!min(i | i.quantity)",
		"self.items!head(i | i.quantity)",
		"self.items!any()",
	} {
		assert.True(t, ir.IsNull(fx.mustEval(t, src, fx.empty)), src)
	}
	assert.Equal(t, ir.Count(0), fx.mustEval(t, "self.items!count()", fx.empty))
	assert.Equal(t, ir.Bool(true), fx.mustEval(t, "self.items!forAll(i | false)", fx.empty))
}

func TestSortIsStable(t *testing.T) {
	fx := newFixture(t)

	asc := fx.mustEval(t, "self.items!sort(i | i.quantity).product", fx.order)
	assert.Equal(t, ir.Collection{ir.String("nut"), ir.String("bolt"), ir.String("washer")}, asc)

	desc := fx.mustEval(t, "self.items!sort(i | i.price DESC).product", fx.order)
	assert.Equal(t, ir.Collection{ir.String("bolt"), ir.String("nut"), ir.String("washer")}, desc)
}

func TestTypeLevelCalls(t *testing.T) {
	fx := newFixture(t)

	assert.Equal(t, ir.Count(2), fx.mustEval(t, "Order!all()!count()", nil))
	assert.Equal(t, ir.Count(2), fx.mustEval(t, "Party!count()", nil), "includes subtypes")
	assert.Equal(t, ir.Count(1), fx.mustEval(t, "Party!all()!asType(Supplier)!count()", nil))

	got := fx.mustEval(t, "Order!filter(o | o.items!count() > 1).title", nil)
	assert.Equal(t, ir.Collection{ir.String("First")}, got)

	assert.Equal(t, ir.Bool(true), fx.mustEval(t, "self.customer!kindOf(Party)", fx.order))
	assert.Equal(t, ir.Bool(false), fx.mustEval(t, "self.customer!typeOf(Party)", fx.order))
	assert.Equal(t, ir.Bool(true), fx.mustEval(t, "self.customer!typeOf(Customer)", fx.order))
}

func TestFilterOnUndefinedVariableIsEmpty(t *testing.T) {
	fx := newFixture(t)

	got := fx.mustEval(t, "Order!all()!filter(o | o.title == String!getVariable('ENVIRONMENT', 'MISSING'))", nil)
	assert.Equal(t, ir.Collection{}, got)
}

func TestGetVariable(t *testing.T) {
	fx := newFixture(t)

	assert.Equal(t, ir.Integer(42), fx.mustEval(t, "Integer!getVariable('ENVIRONMENT', 'LIMIT')", nil))
	assert.Equal(t, ir.String("eu"), fx.mustEval(t, "String!getVariable('SYSTEM', 'region')", nil))
	assert.True(t, ir.IsNull(fx.mustEval(t, "Integer!getVariable('SYSTEM', 'absent')", nil)))

	_, err := fx.eval(t, "Integer!getVariable('GLOBAL', 'LIMIT')", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid variable scope")

	_, err = fx.eval(t, "Date!getVariable('SYSTEM', 'region')", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot convert")
}

func TestClockFunctions(t *testing.T) {
	fx := newFixture(t)

	ts := fx.mustEval(t, "Timestamp!now()", nil)
	assert.Equal(t, ir.NewTimestamp(time.Date(2024, time.June, 1, 10, 30, 0, 0, time.UTC)), ts)
	assert.Equal(t, ir.NewDate(2024, time.June, 1), fx.mustEval(t, "Date!today()", nil))
	assert.Equal(t, ir.Time{Offset: 10*time.Hour + 30*time.Minute}, fx.mustEval(t, "Time!now()", nil))
	assert.Equal(t, ir.Integer(3), fx.mustEval(t, "self.placed!month()", fx.order))
	assert.Equal(t, ir.Bool(true), fx.mustEval(t, "self.placed < `2024-04-01`", fx.order))
}

func TestMeasuredArithmetic(t *testing.T) {
	fx := newFixture(t)

	sum := fx.mustEval(t, "1[kg] + 500[g]", nil)
	m, ok := sum.(ir.Measured)
	require.True(t, ok)
	assert.Equal(t, "gram", m.Unit)
	assert.Equal(t, "1500", m.Amount.Text('f'))

	same := fx.mustEval(t, "1[kg] + 2[kilogram]", nil).(ir.Measured)
	assert.Equal(t, "kilogram", same.Unit)
	assert.Equal(t, "3", same.Amount.Text('f'))

	scaled := fx.mustEval(t, "2 * self.weight", fx.order).(ir.Measured)
	assert.Equal(t, "kilogram", scaled.Unit)
	assert.Equal(t, "25.0", scaled.Amount.Text('f'))

	ratio := fx.mustEval(t, "self.weight / 500[g]", fx.order)
	assert.True(t, ir.Equal(ir.NewDecimal("25"), ratio))

	assert.Equal(t, ir.Bool(true), fx.mustEval(t, "2[kg] > 1500[g]", nil))
	assert.Equal(t, ir.Bool(true), fx.mustEval(t, "1000[g] == 1[kg]", nil))
}

func TestEnumComparison(t *testing.T) {
	fx := newFixture(t)

	assert.Equal(t, ir.Bool(true), fx.mustEval(t, "self.priority == #HIGH", fx.order))
	assert.Equal(t, ir.Bool(true), fx.mustEval(t, "self.priority > Priority#MEDIUM", fx.order))
	assert.Equal(t, ir.Bool(false), fx.mustEval(t, "self.priority > #MEDIUM", fx.empty))

	got := fx.mustEval(t, "Order!filter(o | o.priority == Priority#LOW).title", nil)
	assert.Equal(t, ir.Collection{ir.String("Second")}, got)
}

func TestStringFunctions(t *testing.T) {
	fx := newFixture(t)

	cases := []struct {
		src  string
		want ir.Value
	}{
		{"'Hello'!length()", ir.Integer(5)},
		{"'Hello'!lower()", ir.String("hello")},
		{"'Hello'!upper()", ir.String("HELLO")},
		{"'  pad '!trim()", ir.String("pad")},
		{"'Hello'!substring(1, 3)", ir.String("ell")},
		{"'Hello'!substring(3, 10)", ir.String("lo")},
		{"'Hello'!first(2)", ir.String("He")},
		{"'Hello'!last(3)", ir.String("llo")},
		{"'Hello'!position('l')", ir.Integer(2)},
		{"'Hello'!position('z')", ir.Integer(-1)},
		{"'a-b-c'!replace('-', '+')", ir.String("a+b+c")},
		{"'AB12'!matches('[A-Z]+[0-9]+')", ir.Bool(true)},
		{"'AB12x'!matches('[A-Z]+[0-9]+')", ir.Bool(false)},
		{"self.title!upper()", ir.String("FIRST")},
	}
	for _, tc := range cases {
		t.Run(tc.src, func(t *testing.T) {
			assert.Equal(t, tc.want, fx.mustEval(t, tc.src, fx.order))
		})
	}
}

func TestNumericFunctions(t *testing.T) {
	fx := newFixture(t)

	assert.Equal(t, ir.Integer(100), fx.mustEval(t, "self.total!round()", fx.order))
	got := fx.mustEval(t, "self.total!round(1)", fx.order)
	assert.Equal(t, "100.0", got.(ir.Decimal).Dec.Text('f'))
	assert.Equal(t, ir.Integer(4), fx.mustEval(t, "(0 - 4)!abs()", nil))
}

func TestDefinedness(t *testing.T) {
	fx := newFixture(t)

	assert.Equal(t, ir.Bool(true), fx.mustEval(t, "self.weight!isUndefined()", fx.empty))
	assert.Equal(t, ir.Bool(true), fx.mustEval(t, "self.weight!isDefined()", fx.order))
	assert.Equal(t, ir.Collection{}, fx.mustEval(t, "self.weight!asCollection()", fx.empty))
}

func TestScopeWithoutInstance(t *testing.T) {
	fx := newFixture(t)
	order := fx.typeID(t, "Order")

	// Defaults are evaluated before an instance exists.
	v, err := fx.ev.Evaluate(context.Background(), "title", Scope{Type: order})
	require.NoError(t, err)
	assert.True(t, ir.IsNull(v))

	v, err = fx.ev.Evaluate(context.Background(), "Order!count()", Scope{Type: schema.NoType})
	require.NoError(t, err)
	assert.Equal(t, ir.Count(2), v)
}

func TestMemberHelper(t *testing.T) {
	fx := newFixture(t)

	v, err := fx.ev.Member(context.Background(), fx.order, "itemCount")
	require.NoError(t, err)
	assert.Equal(t, ir.Count(3), v)
}

func TestEvaluateHonoursCancellation(t *testing.T) {
	fx := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := fx.ev.Evaluate(ctx, "1 + 1", Scope{Type: schema.NoType})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCompare(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	cmp, err := fx.ev.Compare(ctx, ir.NewMeasured("1500", "gram"), ir.NewMeasured("1", "kilogram"))
	require.NoError(t, err)
	assert.Positive(t, cmp)

	cmp, err = fx.ev.Compare(ctx, ir.Integer(2), ir.NewDecimal("2.0"))
	require.NoError(t, err)
	assert.Zero(t, cmp)

	_, err = fx.ev.Compare(ctx, ir.String("a"), ir.Integer(1))
	assert.True(t, IsEvalError(err))
}
