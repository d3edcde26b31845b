package dao

import (
	"context"

	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/expr"
	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/ir"
	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/schema"
)

// GetStaticData evaluates the getter of a derived attribute without an
// instance: current time, variables, sequences, type-level aggregates.
// Members of the owner read as undefined.
func (s *Session) GetStaticData(ctx context.Context, a *schema.Attribute) (ir.Value, error) {
	if a.Getter == "" {
		f := failure{op: "static", typ: s.graph().Type(a.Owner).Name}
		return nil, f.validation(RuleReadOnly, "attribute %s has no getter", a.Name)
	}
	v, err := s.eval.Evaluate(ctx, a.Getter, expr.Scope{Type: a.Owner})
	if err != nil {
		return nil, err
	}
	return coerceDerived(s.graph(), a.Type, v), nil
}

// GetStaticFeatures evaluates every derived member of t without an
// instance. Derived relations nest their targets' attributes.
func (s *Session) GetStaticFeatures(ctx context.Context, t *schema.Type, opts QueryOptions) (*ir.Payload, error) {
	v := s.view(t.ID)
	p := ir.NewPayload()
	for _, f := range v.attrs {
		if f.getter == "" {
			continue
		}
		val, err := s.eval.Evaluate(ctx, f.getter, expr.Scope{Type: f.owner})
		if err != nil {
			return nil, err
		}
		val = coerceDerived(s.graph(), f.decl.Type, val)
		if !ir.IsNull(val) {
			p.Set(f.name, val)
		}
	}
	for _, f := range v.rels {
		if f.getter == "" {
			continue
		}
		val, err := s.eval.Evaluate(ctx, f.getter, expr.Scope{Type: f.owner})
		if err != nil {
			return nil, err
		}
		targets := instances(val)
		tv := s.view(f.decl.Target)
		nested := make(ir.Collection, 0, len(targets))
		for _, target := range targets {
			tp, err := s.payload(ctx, tv, target, shapeAttributes, nil, nil)
			if err != nil {
				return nil, err
			}
			nested = append(nested, tp)
		}
		switch {
		case f.decl.IsCollection():
			p.Set(f.name, nested)
		case len(nested) > 0:
			p.Set(f.name, nested[0])
		}
	}
	return applyMask(p, opts.Mask), nil
}
