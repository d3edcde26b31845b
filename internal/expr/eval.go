package expr

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/apd/v3"

	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/ir"
	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/schema"
)

// MaxDepth bounds nested derived-member evaluation.
const MaxDepth = 64

// Source fetches persisted instances lazily during evaluation.
type Source interface {
	// AllOf returns every instance of t and its subtypes in insertion order.
	AllOf(ctx context.Context, t schema.TypeID) ([]*ir.Instance, error)

	// Navigate returns the targets of a stored relation from an instance.
	Navigate(ctx context.Context, from *ir.Instance, r *schema.Relation) ([]*ir.Instance, error)
}

// Environment resolves variables and the current time.
type Environment interface {
	// Lookup returns the value of key in scope, or ir.Null when unset.
	// SEQUENCE lookups increment the named sequence.
	Lookup(ctx context.Context, scope, key string) (ir.Value, error)

	// Now returns the current instant.
	Now() time.Time
}

// Scope is the evaluation context: the static type the expression belongs
// to and the current instance. Self is nil when there is no instance yet
// (defaults) or none at all (static members).
type Scope struct {
	Type schema.TypeID
	Self *ir.Instance
}

// Evaluator evaluates expressions against one Source. It holds no mutable
// state; create one per session and share it freely.
type Evaluator struct {
	graph  *schema.Graph
	source Source
	env    Environment
}

// New returns an evaluator over graph reading from source.
func New(graph *schema.Graph, source Source, env Environment) *Evaluator {
	return &Evaluator{graph: graph, source: source, env: env}
}

// Graph returns the schema graph.
func (e *Evaluator) Graph() *schema.Graph {
	return e.graph
}

// Evaluate parses (cached) and evaluates src in scope.
func (e *Evaluator) Evaluate(ctx context.Context, src string, scope Scope) (ir.Value, error) {
	return e.evaluate(ctx, src, scope, 0)
}

func (e *Evaluator) evaluate(ctx context.Context, src string, scope Scope, depth int) (ir.Value, error) {
	n, err := Parse(src)
	if err != nil {
		return nil, err
	}
	f := &frame{ev: e, ctx: ctx, scope: scope, depth: depth}
	v, err := f.eval(n)
	if err != nil {
		if ee, ok := err.(*EvalError); ok && ee.Expr == "" {
			ee.Expr = src
		}
		return nil, err
	}
	return v, nil
}

// Member returns the value of member name on inst, evaluating derived
// members and navigating stored relations.
func (e *Evaluator) Member(ctx context.Context, inst *ir.Instance, name string) (ir.Value, error) {
	f := &frame{ev: e, ctx: ctx, scope: Scope{Type: schema.NoType, Self: inst}}
	return f.member(inst, name)
}

// Compare orders two defined values the way sort and head do: numbers
// by value, measured amounts in a common unit, enumerations by ordinal.
func (e *Evaluator) Compare(ctx context.Context, l, r ir.Value) (int, error) {
	f := &frame{ev: e, ctx: ctx, scope: Scope{Type: schema.NoType}}
	return f.compare(l, r)
}

// binding is one lambda variable in a linked chain of scopes.
type binding struct {
	name   string
	value  ir.Value
	parent *binding
}

func (b *binding) lookup(name string) (ir.Value, bool) {
	for cur := b; cur != nil; cur = cur.parent {
		if cur.name == name {
			return cur.value, true
		}
	}
	return nil, false
}

// frame is the state of one evaluation.
type frame struct {
	ev    *Evaluator
	ctx   context.Context
	scope Scope
	vars  *binding
	depth int
}

func (f *frame) with(name string, v ir.Value) *frame {
	cp := *f
	cp.vars = &binding{name: name, value: v, parent: f.vars}
	return &cp
}

func (f *frame) eval(n Node) (ir.Value, error) {
	if err := f.ctx.Err(); err != nil {
		return nil, err
	}
	switch x := n.(type) {
	case Literal:
		return x.Value, nil
	case MeasuredLiteral:
		return f.measuredLiteral(x)
	case EnumLiteral:
		return f.enumLiteral(x)
	case Self:
		if f.scope.Self == nil {
			return ir.Null{}, nil
		}
		return f.scope.Self, nil
	case Ident:
		return f.ident(x.Name)
	case *Member:
		target, err := f.eval(x.Target)
		if err != nil {
			return nil, err
		}
		return f.navigate(target, x.Name)
	case *Call:
		return f.call(x)
	case *Unary:
		v, err := f.eval(x.X)
		if err != nil {
			return nil, err
		}
		return unary(x.Op, v)
	case *Binary:
		l, err := f.eval(x.L)
		if err != nil {
			return nil, err
		}
		r, err := f.eval(x.R)
		if err != nil {
			return nil, err
		}
		return f.binary(x.Op, l, r)
	case *Ternary:
		c, err := f.eval(x.Cond)
		if err != nil {
			return nil, err
		}
		if ir.IsNull(c) {
			return ir.Null{}, nil
		}
		b, ok := c.(ir.Bool)
		if !ok {
			return nil, evalErrorf("ternary condition is %s, not boolean", ir.KindName(c))
		}
		if b {
			return f.eval(x.Then)
		}
		return f.eval(x.Else)
	}
	return nil, evalErrorf("unsupported node %T", n)
}

func (f *frame) measuredLiteral(x MeasuredLiteral) (ir.Value, error) {
	u, ok := f.ev.graph.Unit(x.Unit)
	if !ok {
		return nil, evalErrorf("unknown unit %q", x.Unit)
	}
	amount, err := parseDecimal(x.Amount)
	if err != nil {
		return nil, evalErrorf("invalid amount %q", x.Amount)
	}
	return ir.Measured{Amount: amount, Unit: u.Name}, nil
}

func (f *frame) enumLiteral(x EnumLiteral) (ir.Value, error) {
	if x.Enumeration == "" {
		return ir.Enum{Literal: x.Literal, Ordinal: -1}, nil
	}
	e, ok := f.ev.graph.Enumeration(x.Enumeration)
	if !ok {
		return nil, evalErrorf("unknown enumeration %s", x.Enumeration)
	}
	ord := e.Ordinal(x.Literal)
	if ord < 0 {
		return nil, evalErrorf("enumeration %s has no literal %s", e.Name, x.Literal)
	}
	return ir.Enum{Enumeration: e.Name, Literal: x.Literal, Ordinal: ord}, nil
}

// ident resolves a bare name: lambda variable, then member of the scope,
// then nothing (type names are only valid as call targets and arguments).
func (f *frame) ident(name string) (ir.Value, error) {
	if v, ok := f.vars.lookup(name); ok {
		return v, nil
	}
	if f.scope.Self != nil {
		if f.hasMember(f.instanceType(f.scope.Self), name) {
			return f.member(f.scope.Self, name)
		}
	} else if f.scope.Type != schema.NoType && f.hasMember(f.scope.Type, name) {
		return ir.Null{}, nil
	}
	if _, ok := f.ev.graph.TypeByName(name); ok {
		return nil, evalErrorf("type %s used as a value; use %s!all()", name, name)
	}
	return nil, evalErrorf("unknown identifier %s", name)
}

func (f *frame) hasMember(t schema.TypeID, name string) bool {
	if t == schema.NoType {
		return false
	}
	if _, ok := f.ev.graph.ResolveAttribute(t, name); ok {
		return true
	}
	_, ok := f.ev.graph.ResolveRelation(t, name)
	return ok
}

func (f *frame) instanceType(inst *ir.Instance) schema.TypeID {
	if t, ok := f.ev.graph.TypeByName(inst.Type); ok {
		return t.ID
	}
	return f.scope.Type
}

// navigate applies member access to a value. Collections flatten.
func (f *frame) navigate(target ir.Value, name string) (ir.Value, error) {
	switch t := target.(type) {
	case nil, ir.Null:
		return ir.Null{}, nil
	case *ir.Instance:
		return f.member(t, name)
	case *ir.Payload:
		v, _ := t.Get(name)
		return v, nil
	case ir.Collection:
		out := ir.Collection{}
		for _, elem := range t {
			v, err := f.navigate(elem, name)
			if err != nil {
				return nil, err
			}
			switch vv := v.(type) {
			case ir.Null:
			case ir.Collection:
				out = append(out, vv...)
			default:
				out = append(out, vv)
			}
		}
		return out, nil
	}
	return nil, evalErrorf("cannot navigate .%s on %s", name, ir.KindName(target))
}

func (f *frame) member(inst *ir.Instance, name string) (ir.Value, error) {
	g := f.ev.graph
	typ, ok := g.TypeByName(inst.Type)
	if !ok {
		return nil, evalErrorf("instance %s has unknown type %s", inst.ID, inst.Type)
	}
	if a, ok := g.ResolveAttribute(typ.ID, name); ok {
		if a.Member == schema.MemberDerived {
			return f.derived(a.Getter, a.Owner, inst)
		}
		v, _ := inst.Attrs.Get(name)
		return v, nil
	}
	r, ok := g.ResolveRelation(typ.ID, name)
	if !ok {
		return nil, evalErrorf("type %s has no member %s", typ.Name, name)
	}
	if r.Member == schema.MemberDerived {
		v, err := f.derived(r.Getter, r.Owner, inst)
		if err != nil {
			return nil, err
		}
		if !r.IsCollection() {
			if c, ok := v.(ir.Collection); ok {
				if len(c) == 0 {
					return ir.Null{}, nil
				}
				return c[0], nil
			}
		}
		return v, nil
	}
	targets, err := f.ev.source.Navigate(f.ctx, inst, r)
	if err != nil {
		return nil, &EvalError{Message: fmt.Sprintf("navigate %s.%s", typ.Name, r.Name), Err: err}
	}
	if !r.IsCollection() {
		if len(targets) == 0 {
			return ir.Null{}, nil
		}
		return targets[0], nil
	}
	out := make(ir.Collection, len(targets))
	for i, t := range targets {
		out[i] = t
	}
	return out, nil
}

func (f *frame) derived(getter string, owner schema.TypeID, inst *ir.Instance) (ir.Value, error) {
	if f.depth+1 > MaxDepth {
		return nil, evalErrorf("derived member nesting exceeds %d", MaxDepth)
	}
	v, err := f.ev.evaluate(f.ctx, getter, Scope{Type: owner, Self: inst}, f.depth+1)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func parseDecimal(s string) (*apd.Decimal, error) {
	d, _, err := apd.NewFromString(s)
	return d, err
}
