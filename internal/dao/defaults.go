package dao

import (
	"context"

	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/expr"
	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/ir"
	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/schema"
)

// GetDefaultsOf returns the default payload of t. Nothing is persisted.
// Required createable relations without a default expression nest the
// target type's own defaults; a type already being expanded higher up is
// not expanded again.
func (s *Session) GetDefaultsOf(ctx context.Context, t *schema.Type, opts QueryOptions) (*ir.Payload, error) {
	p, err := s.defaults(ctx, s.view(t.ID), map[schema.TypeID]bool{})
	if err != nil {
		return nil, err
	}
	return applyMask(p, opts.Mask), nil
}

func (s *Session) defaults(ctx context.Context, v *view, expanding map[schema.TypeID]bool) (*ir.Payload, error) {
	expanding[v.typ.ID] = true
	defer delete(expanding, v.typ.ID)

	p := ir.NewPayload()
	for _, f := range v.attrs {
		val, err := s.attrDefault(ctx, v, f)
		if err != nil {
			return nil, err
		}
		if !ir.IsNull(val) {
			p.Set(f.name, val)
		}
	}
	for _, f := range v.rels {
		val, err := s.relDefault(ctx, v, f)
		if err != nil {
			return nil, err
		}
		if !ir.IsNull(val) {
			p.Set(f.name, val)
			continue
		}
		r := f.decl
		if r.Lower == 0 || f.getter != "" || expanding[r.Target] {
			continue
		}
		if !r.Createable && r.Kind != schema.Composition {
			continue
		}
		nested, err := s.defaults(ctx, s.view(r.Target), expanding)
		if err != nil {
			return nil, err
		}
		if !r.IsCollection() {
			p.Set(f.name, nested)
			continue
		}
		coll := make(ir.Collection, r.Lower)
		for i := range coll {
			coll[i] = nested.Clone()
		}
		p.Set(f.name, coll)
	}
	return p, nil
}

// defaultScope is a scope with a type and no instance.
func defaultScope(v *view) expr.Scope {
	if v.entity != schema.NoType {
		return expr.Scope{Type: v.entity}
	}
	return expr.Scope{Type: v.typ.ID}
}

func (s *Session) attrDefault(ctx context.Context, v *view, f *attrField) (ir.Value, error) {
	if f.getter != "" {
		return ir.Null{}, nil
	}
	src := f.decl.Default
	if src == "" && f.stored != nil {
		src = f.stored.Default
	}
	if src == "" {
		return ir.Null{}, nil
	}
	val, err := s.eval.Evaluate(ctx, src, defaultScope(v))
	if err != nil {
		return nil, err
	}
	return coerceDerived(s.graph(), f.decl.Type, val), nil
}

// relDefault evaluates a relation default to reference payloads carrying
// only identifiers.
func (s *Session) relDefault(ctx context.Context, v *view, f *relField) (ir.Value, error) {
	if f.getter != "" {
		return ir.Null{}, nil
	}
	src := f.decl.Default
	if src == "" && f.stored != nil {
		src = f.stored.Default
	}
	if src == "" {
		return ir.Null{}, nil
	}
	val, err := s.eval.Evaluate(ctx, src, defaultScope(v))
	if err != nil {
		return nil, err
	}
	targets := instances(val)
	if len(targets) == 0 {
		return ir.Null{}, nil
	}
	idKey := s.engine.ids.IdentifierFieldName()
	refs := make(ir.Collection, len(targets))
	for i, t := range targets {
		ref := ir.NewPayload()
		ref.Set(idKey, ir.String(t.ID))
		refs[i] = ref
	}
	if !f.decl.IsCollection() {
		return refs[0], nil
	}
	return refs, nil
}

// applyDefaults fills absent members of a create payload from their
// default expressions.
func (s *Session) applyDefaults(ctx context.Context, v *view, input *ir.Payload) error {
	for _, f := range v.attrs {
		if input.Has(f.name) {
			continue
		}
		val, err := s.attrDefault(ctx, v, f)
		if err != nil {
			return err
		}
		if !ir.IsNull(val) {
			input.Set(f.name, val)
		}
	}
	for _, f := range v.rels {
		if input.Has(f.name) {
			continue
		}
		val, err := s.relDefault(ctx, v, f)
		if err != nil {
			return err
		}
		if !ir.IsNull(val) {
			input.Set(f.name, val)
		}
	}
	return nil
}

// applyMask keeps the masked keys of a payload tree. Reserved keys always
// survive.
func applyMask(p *ir.Payload, mask Mask) *ir.Payload {
	if mask == nil || p == nil {
		return p
	}
	out := ir.NewPayload()
	for _, k := range p.Keys() {
		v, _ := p.Get(k)
		sub, ok := mask[k]
		if !ok && !ir.IsReservedKey(k) {
			continue
		}
		switch x := v.(type) {
		case *ir.Payload:
			v = applyMask(x, sub)
		case ir.Collection:
			c := make(ir.Collection, len(x))
			for i, e := range x {
				if ep, ok := e.(*ir.Payload); ok {
					c[i] = applyMask(ep, sub)
				} else {
					c[i] = e
				}
			}
			v = c
		}
		out.Set(k, v)
	}
	return out
}
