package dao

import (
	"context"
	"fmt"
	"slices"

	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/expr"
	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/ir"
	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/schema"
)

// CreateNavigationInstanceAt creates an instance from payload and links it
// as a target of r on the owner, atomically.
//
// A derived r is createable when its getter navigates one stored relation,
// optionally through !filter; the new instance must then be visible through
// r or the call fails with a StateError. A full relation is an
// ArgumentError and leaves the existing links alone.
func (s *Session) CreateNavigationInstanceAt(ctx context.Context, ownerType *schema.Type, ownerID string, r *schema.Relation, payload *ir.Payload, opts QueryOptions) (*ir.Payload, error) {
	f := failure{op: "create-navigation", typ: ownerType.Name, id: ownerID}
	var out *ir.Payload
	err := s.mutating(ctx, f, func() error {
		v, err := s.persistentView(f, ownerType)
		if err != nil {
			return err
		}
		fld, ok := v.relByDecl(r)
		if !ok {
			return f.validation(RuleUnknownField, "type %s has no relation %s", ownerType.Name, r.Name)
		}
		owner, err := s.load(ctx, ownerID)
		if err != nil {
			return err
		}
		if owner == nil || !s.inView(v, owner) {
			return f.state(RuleNotFound, "instance does not exist")
		}
		stored, filtered, err := s.navigationStorage(f, fld)
		if err != nil {
			return err
		}
		if !stored.Createable && stored.Kind != schema.Composition {
			return f.validation(RuleCreateable, "relation %s is not createable", r.Name)
		}
		current, err := s.linked(ctx, ownerID, stored)
		if err != nil {
			return err
		}
		if stored.Upper != -1 && len(current) >= stored.Upper {
			return f.argument(RuleUpperBound, "relation %s already holds %d of %d", r.Name, len(current), stored.Upper)
		}

		tv := s.view(r.Target)
		if tv.entity == schema.NoType || !s.graph().IsKindOf(tv.entity, stored.Target) {
			return f.validation(RuleUnmapped, "relation %s target %s is not persistent", r.Name, tv.typ.Name)
		}
		child, err := s.create(ctx, failure{op: f.op, typ: tv.typ.Name}, tv, payload, s.graph().Partner(stored))
		if err != nil {
			return err
		}
		if err := s.link(ctx, stored, ownerID, child.ID); err != nil {
			return fmt.Errorf("link %s: %w", stored.StorageKey, err)
		}
		if filtered {
			visible, err := s.relTargets(ctx, fld, owner)
			if err != nil {
				return err
			}
			if !slices.ContainsFunc(visible, func(i *ir.Instance) bool { return i.ID == child.ID }) {
				return f.state(RuleFilter, "new %s does not satisfy %s", tv.typ.Name, fld.getter)
			}
		}
		out, err = s.payload(ctx, tv, child, topShape(opts.Mask), opts.Mask, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// navigationStorage finds the stored relation a navigation create links
// through. filtered reports that the relation is computed and must be
// re-read to confirm the new instance shows up.
func (s *Session) navigationStorage(f failure, fld *relField) (*schema.Relation, bool, error) {
	if fld.stored != nil {
		return fld.stored, false, nil
	}
	if fld.getter == "" {
		return nil, false, f.validation(RuleCreateable, "relation %s is transient", fld.name)
	}
	n, err := expr.Parse(fld.getter)
	if err != nil {
		return nil, false, err
	}
	if c, ok := n.(*expr.Call); ok && c.Name == "filter" {
		n = c.Target
	}
	var name string
	switch x := n.(type) {
	case expr.Ident:
		name = x.Name
	case *expr.Member:
		if _, ok := x.Target.(expr.Self); ok {
			name = x.Name
		}
	}
	if name != "" {
		if r, ok := s.graph().ResolveRelation(fld.owner, name); ok && r.IsStored() {
			return r, true, nil
		}
	}
	return nil, false, f.validation(RuleCreateable, "relation %s is computed by %q and cannot be created through", fld.name, fld.getter)
}
