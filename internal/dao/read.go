package dao

import (
	"context"
	"sort"

	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/expr"
	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/ir"
	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/queryir"
	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/schema"
)

// Mask selects payload keys. A relation key maps to the mask of its nested
// payloads; a nil nested mask selects their attributes only.
type Mask map[string]Mask

type shape uint8

const (
	// shapeDefault: all attributes, compositions nested in full, other
	// relations with attributes only.
	shapeDefault shape = iota
	shapeAttributes
	shapeMasked
)

func topShape(m Mask) shape {
	if m == nil {
		return shapeDefault
	}
	return shapeMasked
}

// GetByIdentifier returns the payload of instance id served through t, or
// nil when there is no such instance of t.
func (s *Session) GetByIdentifier(ctx context.Context, t *schema.Type, id string, opts QueryOptions) (*ir.Payload, error) {
	out, err := s.GetByIdentifiers(ctx, t, []string{id}, opts)
	if err != nil || len(out) == 0 {
		return nil, err
	}
	return out[0], nil
}

// GetByIdentifiers returns the payloads of the given instances in the
// order given. Missing identifiers are skipped.
func (s *Session) GetByIdentifiers(ctx context.Context, t *schema.Type, ids []string, opts QueryOptions) ([]*ir.Payload, error) {
	v, err := s.persistentView(failure{op: "get", typ: t.Name}, t)
	if err != nil {
		return nil, err
	}
	insts, err := s.loadAll(ctx, ids)
	if err != nil {
		return nil, err
	}
	return s.payloads(ctx, v, s.ofView(v, insts), opts.Mask)
}

// GetAllOf returns every instance of t and its subtypes, filtered, ordered
// and paged by opts. Without OrderBy instances come in insertion order.
func (s *Session) GetAllOf(ctx context.Context, t *schema.Type, opts QueryOptions) ([]*ir.Payload, error) {
	f := failure{op: "list", typ: t.Name}
	v, err := s.persistentView(f, t)
	if err != nil {
		return nil, err
	}
	insts, err := s.query(ctx, f, v, opts)
	if err != nil {
		return nil, err
	}
	return s.payloads(ctx, v, insts, opts.Mask)
}

// Search is GetAllOf with filter as the filter expression.
func (s *Session) Search(ctx context.Context, t *schema.Type, filter string, opts QueryOptions) ([]*ir.Payload, error) {
	opts.Filter = filter
	return s.GetAllOf(ctx, t, opts)
}

// CountAllOf counts the instances of t matching filter ("" counts all).
func (s *Session) CountAllOf(ctx context.Context, t *schema.Type, filter string) (int64, error) {
	f := failure{op: "count", typ: t.Name}
	v, err := s.persistentView(f, t)
	if err != nil {
		return 0, err
	}
	sel := queryir.Select{Types: s.typeNames(v.entity)}
	pushed, residual := s.pushdown(v, filter)
	sel.Filter = pushed
	if !residual {
		return s.exec.Count(ctx, sel)
	}
	insts, err := s.selectInstances(ctx, sel)
	if err != nil {
		return 0, err
	}
	insts, err = s.filter(ctx, v, insts, filter)
	return int64(len(insts)), err
}

// GetNavigationResultAt returns the targets of relation r from the owner
// instance, filtered, ordered and paged by opts. A missing owner yields
// nothing.
func (s *Session) GetNavigationResultAt(ctx context.Context, ownerType *schema.Type, ownerID string, r *schema.Relation, opts QueryOptions) ([]*ir.Payload, error) {
	f := failure{op: "navigate", typ: ownerType.Name, id: ownerID}
	targets, tv, err := s.navigationTargets(ctx, f, ownerType, ownerID, r)
	if err != nil || targets == nil {
		return nil, err
	}
	targets, err = s.refine(ctx, f, tv, targets, opts)
	if err != nil {
		return nil, err
	}
	return s.payloads(ctx, tv, targets, opts.Mask)
}

// CountNavigationResultAt counts the targets of r from the owner matching
// filter.
func (s *Session) CountNavigationResultAt(ctx context.Context, ownerType *schema.Type, ownerID string, r *schema.Relation, filter string) (int64, error) {
	f := failure{op: "count-navigation", typ: ownerType.Name, id: ownerID}
	targets, tv, err := s.navigationTargets(ctx, f, ownerType, ownerID, r)
	if err != nil {
		return 0, err
	}
	targets, err = s.filter(ctx, tv, targets, filter)
	return int64(len(targets)), err
}

func (s *Session) navigationTargets(ctx context.Context, f failure, ownerType *schema.Type, ownerID string, r *schema.Relation) ([]*ir.Instance, *view, error) {
	v, err := s.persistentView(f, ownerType)
	if err != nil {
		return nil, nil, err
	}
	field, ok := v.relByDecl(r)
	if !ok {
		return nil, nil, f.validation(RuleUnknownField, "type %s has no relation %s", ownerType.Name, r.Name)
	}
	owner, err := s.load(ctx, ownerID)
	if err != nil || owner == nil || !s.inView(v, owner) {
		return nil, nil, err
	}
	targets, err := s.relTargets(ctx, field, owner)
	if err != nil {
		return nil, nil, err
	}
	if targets == nil {
		targets = []*ir.Instance{}
	}
	return targets, s.view(r.Target), nil
}

// persistentView returns the view of t, failing for transfer objects
// that map onto no entity.
func (s *Session) persistentView(f failure, t *schema.Type) (*view, error) {
	v := s.view(t.ID)
	if v.entity == schema.NoType {
		return nil, f.errorf(CodeArgument, RuleUnmapped, "transfer object %s is not mapped onto an entity", t.Name)
	}
	return v, nil
}

func (s *Session) inView(v *view, inst *ir.Instance) bool {
	return s.graph().IsKindOf(s.instanceType(inst), v.entity)
}

func (s *Session) ofView(v *view, insts []*ir.Instance) []*ir.Instance {
	out := insts[:0:0]
	for _, inst := range insts {
		if s.inView(v, inst) {
			out = append(out, inst)
		}
	}
	return out
}

// query selects the instances of a view, pushing what it can into SQL.
func (s *Session) query(ctx context.Context, f failure, v *view, opts QueryOptions) ([]*ir.Instance, error) {
	if opts.Limit < 0 || opts.Offset < 0 {
		return nil, f.argument(RuleValue, "negative limit or offset")
	}
	sel := queryir.Select{Types: s.typeNames(v.entity)}
	pushed, residual := s.pushdown(v, opts.Filter)
	sel.Filter = pushed
	if order, ok := s.sqlOrder(v, opts.OrderBy); ok && !residual {
		sel.OrderBy, sel.Limit, sel.Offset = order, opts.Limit, opts.Offset
		return s.selectInstances(ctx, sel)
	}
	insts, err := s.selectInstances(ctx, sel)
	if err != nil {
		return nil, err
	}
	return s.refine(ctx, f, v, insts, opts)
}

// refine applies filter, order and paging in memory.
func (s *Session) refine(ctx context.Context, f failure, v *view, insts []*ir.Instance, opts QueryOptions) ([]*ir.Instance, error) {
	if opts.Limit < 0 || opts.Offset < 0 {
		return nil, f.argument(RuleValue, "negative limit or offset")
	}
	insts, err := s.filter(ctx, v, insts, opts.Filter)
	if err != nil {
		return nil, err
	}
	if len(opts.OrderBy) > 0 {
		if insts, err = s.order(ctx, v, insts, opts.OrderBy); err != nil {
			return nil, err
		}
	}
	if opts.Offset >= len(insts) {
		return []*ir.Instance{}, nil
	}
	insts = insts[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(insts) {
		insts = insts[:opts.Limit]
	}
	return insts, nil
}

// filter keeps the instances for which src evaluates to true. Undefined
// does not match.
func (s *Session) filter(ctx context.Context, v *view, insts []*ir.Instance, src string) ([]*ir.Instance, error) {
	if src == "" {
		return insts, nil
	}
	out := make([]*ir.Instance, 0, len(insts))
	for _, inst := range insts {
		got, err := s.eval.Evaluate(ctx, src, expr.Scope{Type: v.entity, Self: inst})
		if err != nil {
			return nil, err
		}
		if b, ok := got.(ir.Bool); ok && bool(b) {
			out = append(out, inst)
		}
	}
	return out, nil
}

// order sorts stably by the member values named in by, undefined last.
func (s *Session) order(ctx context.Context, v *view, insts []*ir.Instance, by []queryir.Order) ([]*ir.Instance, error) {
	keys := make([][]ir.Value, len(insts))
	for i, inst := range insts {
		keys[i] = make([]ir.Value, len(by))
		for j, o := range by {
			val, err := s.memberValue(ctx, v, inst, o.Field)
			if err != nil {
				return nil, err
			}
			keys[i][j] = val
		}
	}
	idx := make([]int, len(insts))
	for i := range idx {
		idx[i] = i
	}
	var cmpErr error
	sort.SliceStable(idx, func(a, b int) bool {
		for j, o := range by {
			x, y := keys[idx[a]][j], keys[idx[b]][j]
			switch {
			case ir.IsNull(x) && ir.IsNull(y):
				continue
			case ir.IsNull(x):
				return false
			case ir.IsNull(y):
				return true
			}
			c, err := s.eval.Compare(ctx, x, y)
			if err != nil {
				if cmpErr == nil {
					cmpErr = err
				}
				return false
			}
			if c != 0 {
				return (c < 0) != o.Desc
			}
		}
		return false
	})
	if cmpErr != nil {
		return nil, cmpErr
	}
	out := make([]*ir.Instance, len(insts))
	for i, j := range idx {
		out[i] = insts[j]
	}
	return out, nil
}

// memberValue reads an attribute by view name, falling back to the entity
// member of that name.
func (s *Session) memberValue(ctx context.Context, v *view, inst *ir.Instance, name string) (ir.Value, error) {
	if f, ok := v.attr(name); ok {
		return s.attrValue(ctx, f, inst)
	}
	return s.eval.Member(ctx, inst, name)
}

// pushdown translates a conjunction of "member == literal" comparisons on
// stored attributes into a query predicate. residual reports whether the
// filter must still be evaluated in memory.
func (s *Session) pushdown(v *view, src string) (queryir.Predicate, bool) {
	if src == "" {
		return nil, false
	}
	n, err := expr.Parse(src)
	if err != nil {
		return nil, true
	}
	var preds []queryir.Predicate
	if !s.collectEquals(v, n, &preds) {
		return nil, true
	}
	return queryir.All(preds...), false
}

func (s *Session) collectEquals(v *view, n expr.Node, out *[]queryir.Predicate) bool {
	b, ok := n.(*expr.Binary)
	if !ok {
		return false
	}
	switch b.Op {
	case "and":
		return s.collectEquals(v, b.L, out) && s.collectEquals(v, b.R, out)
	case "==":
		if p, ok := s.equality(v, b.L, b.R); ok {
			*out = append(*out, p)
			return true
		}
		if p, ok := s.equality(v, b.R, b.L); ok {
			*out = append(*out, p)
			return true
		}
	}
	return false
}

func (s *Session) equality(v *view, member, literal expr.Node) (queryir.Predicate, bool) {
	var name string
	switch m := member.(type) {
	case expr.Ident:
		name = m.Name
	case *expr.Member:
		if _, ok := m.Target.(expr.Self); !ok {
			return nil, false
		}
		name = m.Name
	default:
		return nil, false
	}
	a, ok := s.graph().ResolveAttribute(v.entity, name)
	if !ok || a.Member != schema.MemberStored {
		return nil, false
	}
	var val ir.Value
	switch lit := literal.(type) {
	case expr.Literal:
		val = lit.Value
	case expr.EnumLiteral:
		if a.Type.Kind != schema.DataEnum || (lit.Enumeration != "" && lit.Enumeration != a.Type.Enumeration) {
			return nil, false
		}
		e, ok := s.graph().Enumeration(a.Type.Enumeration)
		if !ok || e.Ordinal(lit.Literal) < 0 {
			return nil, false
		}
		val = ir.Enum{Enumeration: e.Name, Literal: lit.Literal, Ordinal: e.Ordinal(lit.Literal)}
	default:
		return nil, false
	}
	if !pushable(a.Type, val) {
		return nil, false
	}
	return queryir.Equals{Field: a.Name, Value: val}, true
}

// maxExactRealDigits is the number of significant decimal digits a
// float64 round-trips. SQLite compares non-integral JSON numbers as REAL.
const maxExactRealDigits = 15

// pushable reports whether SQL equality on the stored form agrees with
// the evaluator for this attribute and literal.
func pushable(dt schema.DataType, v ir.Value) bool {
	switch v.(type) {
	case ir.String:
		return dt.Kind == schema.DataString
	case ir.Integer:
		return dt.Kind == schema.DataNumeric && (dt.IsInteger() || dt.Precision <= maxExactRealDigits)
	case ir.Decimal:
		return dt.Kind == schema.DataNumeric && dt.Precision <= maxExactRealDigits
	case ir.Bool:
		return dt.Kind == schema.DataBoolean
	case ir.Date:
		return dt.Kind == schema.DataDate
	case ir.Time:
		return dt.Kind == schema.DataTime
	case ir.Timestamp:
		return dt.Kind == schema.DataTimestamp
	case ir.Enum:
		return dt.Kind == schema.DataEnum
	}
	return false
}

// sqlOrder maps ordering on stored attributes whose stored form sorts like
// the value itself.
func (s *Session) sqlOrder(v *view, by []queryir.Order) ([]queryir.Order, bool) {
	out := make([]queryir.Order, 0, len(by))
	for _, o := range by {
		f, ok := v.attr(o.Field)
		if !ok || f.stored == nil {
			return nil, false
		}
		switch f.stored.Type.Kind {
		case schema.DataEnum, schema.DataTime:
			return nil, false
		}
		out = append(out, queryir.Order{Field: f.stored.Name, Desc: o.Desc})
	}
	return out, true
}

func (s *Session) payloads(ctx context.Context, v *view, insts []*ir.Instance, mask Mask) ([]*ir.Payload, error) {
	out := make([]*ir.Payload, 0, len(insts))
	for _, inst := range insts {
		p, err := s.payload(ctx, v, inst, topShape(mask), mask, nil)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// payload assembles the output of inst through v. path holds the
// identifiers being assembled above this one; an instance already on the
// path is not nested again.
func (s *Session) payload(ctx context.Context, v *view, inst *ir.Instance, sh shape, mask Mask, path map[string]bool) (*ir.Payload, error) {
	p := ir.NewPayload()
	p.Set(s.engine.ids.IdentifierFieldName(), ir.String(inst.ID))
	p.Set(ir.EntityTypeKey, ir.String(inst.Type))
	p.Set(ir.VersionKey, ir.Integer(inst.Version))
	p.Set(ir.CreatedKey, ir.NewTimestamp(inst.Created))
	p.Set(ir.UpdatedKey, ir.NewTimestamp(inst.Updated))

	for _, f := range v.attrs {
		if sh == shapeMasked {
			if _, ok := mask[f.name]; !ok {
				continue
			}
		}
		val, err := s.attrValue(ctx, f, inst)
		if err != nil {
			return nil, err
		}
		if !ir.IsNull(val) {
			p.Set(f.name, val)
		}
	}
	if sh == shapeAttributes {
		return p, nil
	}

	for _, f := range v.rels {
		if f.transient() {
			continue
		}
		childShape, childMask := shapeAttributes, Mask(nil)
		switch sh {
		case shapeDefault:
			if f.decl.Kind == schema.Composition {
				childShape = shapeDefault
			}
		case shapeMasked:
			m, ok := mask[f.name]
			if !ok {
				continue
			}
			if m != nil {
				childShape, childMask = shapeMasked, m
			}
		}
		targets, err := s.relTargets(ctx, f, inst)
		if err != nil {
			return nil, err
		}
		if path == nil {
			path = map[string]bool{}
		}
		path[inst.ID] = true
		tv := s.view(f.decl.Target)
		nested := make(ir.Collection, 0, len(targets))
		for _, target := range targets {
			ts := childShape
			if path[target.ID] {
				ts = shapeAttributes
			}
			tp, err := s.payload(ctx, tv, target, ts, childMask, path)
			if err != nil {
				return nil, err
			}
			nested = append(nested, tp)
		}
		delete(path, inst.ID)
		switch {
		case f.decl.IsCollection():
			p.Set(f.name, nested)
		case len(nested) > 0:
			p.Set(f.name, nested[0])
		}
	}
	return p, nil
}

func (s *Session) attrValue(ctx context.Context, f *attrField, inst *ir.Instance) (ir.Value, error) {
	switch {
	case f.stored != nil:
		if v, ok := inst.Attrs.Get(f.stored.Name); ok {
			return v, nil
		}
		return ir.Null{}, nil
	case f.getter != "":
		v, err := s.eval.Evaluate(ctx, f.getter, expr.Scope{Type: f.owner, Self: inst})
		if err != nil {
			return nil, err
		}
		return coerceDerived(s.graph(), f.decl.Type, v), nil
	}
	return ir.Null{}, nil
}

// relTargets returns the instances a relation field reaches from inst.
func (s *Session) relTargets(ctx context.Context, f *relField, inst *ir.Instance) ([]*ir.Instance, error) {
	switch {
	case f.stored != nil:
		return s.navigate(ctx, inst.ID, f.stored)
	case f.getter != "":
		v, err := s.eval.Evaluate(ctx, f.getter, expr.Scope{Type: f.owner, Self: inst})
		if err != nil {
			return nil, err
		}
		return instances(v), nil
	}
	return nil, nil
}

// instances flattens an evaluation result to the instances it holds.
func instances(v ir.Value) []*ir.Instance {
	switch x := v.(type) {
	case *ir.Instance:
		return []*ir.Instance{x}
	case ir.Collection:
		out := make([]*ir.Instance, 0, len(x))
		for _, e := range x {
			out = append(out, instances(e)...)
		}
		return out
	}
	return nil
}
