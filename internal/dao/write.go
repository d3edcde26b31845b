package dao

import (
	"context"
	"fmt"

	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/ir"
	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/schema"
	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/store"
)

// Create inserts a new instance of t from payload and returns it as read
// back through t. Absent members take their defaults; inline payloads in
// createable relations are created and linked, payloads carrying an
// identifier are linked as references.
func (s *Session) Create(ctx context.Context, t *schema.Type, payload *ir.Payload, opts QueryOptions) (*ir.Payload, error) {
	f := failure{op: "create", typ: t.Name}
	var out *ir.Payload
	err := s.mutating(ctx, f, func() error {
		v, err := s.persistentView(f, t)
		if err != nil {
			return err
		}
		inst, err := s.create(ctx, f, v, payload, nil)
		if err != nil {
			return err
		}
		out, err = s.payload(ctx, v, inst, topShape(opts.Mask), opts.Mask, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Update applies payload to the instance it identifies. Only present keys
// change and an explicit null clears. A version in the payload is a
// precondition.
func (s *Session) Update(ctx context.Context, t *schema.Type, payload *ir.Payload, opts QueryOptions) (*ir.Payload, error) {
	f := failure{op: "update", typ: t.Name}
	var out *ir.Payload
	err := s.mutating(ctx, f, func() error {
		v, err := s.persistentView(f, t)
		if err != nil {
			return err
		}
		inst, err := s.update(ctx, f, v, payload)
		if err != nil {
			return err
		}
		out, err = s.payload(ctx, v, inst, topShape(opts.Mask), opts.Mask, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// create inserts one instance. via is the relation of the new instance
// that its caller links right after; its lower bound is not checked here.
func (s *Session) create(ctx context.Context, f failure, v *view, payload *ir.Payload, via *schema.Relation) (*ir.Instance, error) {
	g := s.graph()
	entity := g.Type(v.entity)
	if entity.Abstract {
		return nil, f.validation(RuleAbstract, "abstract type %s cannot be instantiated", entity.Name)
	}
	input := s.input(payload)
	if err := checkFields(f, v, input); err != nil {
		return nil, err
	}
	if err := s.applyDefaults(ctx, v, input); err != nil {
		return nil, err
	}
	attrs, err := storedAttrs(g, f, v, input, true)
	if err != nil {
		return nil, err
	}

	id := s.engine.ids.NewIdentifier()
	f = f.with(id)
	if err := s.exec.Insert(ctx, s.newRow(id, entity.Name, attrs)); err != nil {
		if store.IsUniqueConstraintError(err) {
			return nil, f.validation(RuleIdentifier, "identifier already exists")
		}
		return nil, fmt.Errorf("insert %s: %w", entity.Name, err)
	}
	for _, fld := range v.rels {
		val, ok := input.Get(fld.name)
		if !ok || fld.stored == nil {
			continue
		}
		if err := s.fill(ctx, f, fld, id, val); err != nil {
			return nil, err
		}
	}
	if err := s.checkLowerBounds(ctx, f, v, id, input, true, via); err != nil {
		return nil, err
	}
	s.logger().Debug("create", "type", entity.Name, "id", id)
	return s.load(ctx, id)
}

func (s *Session) update(ctx context.Context, f failure, v *view, payload *ir.Payload) (*ir.Instance, error) {
	idKey := s.engine.ids.IdentifierFieldName()
	id, ok := identifierOf(payload, idKey)
	if !ok {
		return nil, f.validation(RuleIdentifier, "payload has no %s", idKey)
	}
	f = f.with(id)
	expected, err := precondition(f, payload)
	if err != nil {
		return nil, err
	}
	inst, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, f.state(RuleNotFound, "instance does not exist")
	}
	if !s.inView(v, inst) {
		return nil, f.validation(RuleIdentifier, "instance is a %s, not a %s", inst.Type, v.typ.Name)
	}

	input := s.input(payload)
	if err := checkFields(f, v, input); err != nil {
		return nil, err
	}
	attrs, err := storedAttrs(s.graph(), f, v, input, false)
	if err != nil {
		return nil, err
	}
	version, err := s.bump(ctx, f, id, attrs, expected)
	if err != nil {
		return nil, err
	}
	for _, fld := range v.rels {
		val, ok := input.Get(fld.name)
		if !ok || fld.stored == nil {
			continue
		}
		if err := s.replace(ctx, f, fld, id, val); err != nil {
			return nil, err
		}
	}
	if err := s.checkLowerBounds(ctx, f, v, id, input, false, nil); err != nil {
		return nil, err
	}
	s.logger().Debug("update", "type", inst.Type, "id", id, "version", version)
	return s.load(ctx, id)
}

// input strips engine-owned keys from a caller payload.
func (s *Session) input(payload *ir.Payload) *ir.Payload {
	in := payload.WithoutReserved()
	in.Delete(s.engine.ids.IdentifierFieldName())
	return in
}

func identifierOf(p *ir.Payload, key string) (string, bool) {
	v, ok := p.Get(key)
	if !ok {
		return "", false
	}
	id, ok := v.(ir.String)
	if !ok || id == "" {
		return "", false
	}
	return string(id), true
}

func checkFields(f failure, v *view, input *ir.Payload) error {
	for _, k := range input.Keys() {
		if _, ok := v.byName[k]; !ok {
			return f.validation(RuleUnknownField, "type %s has no member %s", v.typ.Name, k)
		}
	}
	return nil
}

// storedAttrs converts the present stored attributes of input. On create
// every required attribute must have a value; on update a required
// attribute cannot be cleared. Derived and transient members are dropped.
func storedAttrs(g *schema.Graph, f failure, v *view, input *ir.Payload, creating bool) (map[string]any, error) {
	attrs := map[string]any{}
	for _, fld := range v.attrs {
		if fld.stored == nil {
			continue
		}
		val, present := input.Get(fld.name)
		required := fld.decl.Required || fld.stored.Required
		if required && ir.IsNull(val) && (creating || present) {
			return nil, f.validation(RuleRequired, "attribute %s is required", fld.name)
		}
		if !present {
			continue
		}
		raw, err := toStored(g, fld.stored.Type, val)
		if err != nil {
			return nil, f.validation(RuleValue, "attribute %s: %v", fld.name, err)
		}
		if raw == nil && creating {
			continue
		}
		attrs[fld.stored.Name] = raw
	}
	return attrs, nil
}

// elements splits a relation value into its payloads, checking shape and
// upper bound.
func (s *Session) elements(f failure, fld *relField, val ir.Value) ([]*ir.Payload, error) {
	var out []*ir.Payload
	switch x := val.(type) {
	case nil, ir.Null:
		return nil, nil
	case *ir.Payload:
		if fld.decl.IsCollection() {
			return nil, f.validation(RuleValue, "relation %s expects a collection", fld.name)
		}
		out = []*ir.Payload{x}
	case ir.Collection:
		if !fld.decl.IsCollection() {
			return nil, f.validation(RuleValue, "relation %s expects a single payload", fld.name)
		}
		for i, e := range x {
			p, ok := e.(*ir.Payload)
			if !ok {
				return nil, f.validation(RuleValue, "relation %s[%d]: %s is not a payload", fld.name, i, ir.KindName(e))
			}
			out = append(out, p)
		}
	default:
		return nil, f.validation(RuleValue, "relation %s: %s is not a payload", fld.name, ir.KindName(val))
	}
	if r := fld.stored; r.Upper != -1 && len(out) > r.Upper {
		return nil, f.argument(RuleUpperBound, "relation %s holds at most %d, got %d", fld.name, r.Upper, len(out))
	}
	return out, nil
}

// fill links the content of a relation on a new instance.
func (s *Session) fill(ctx context.Context, f failure, fld *relField, ownerID string, val ir.Value) error {
	elems, err := s.elements(f, fld, val)
	if err != nil {
		return err
	}
	r := fld.stored
	idKey := s.engine.ids.IdentifierFieldName()
	for _, elem := range elems {
		if id, ok := identifierOf(elem, idKey); ok {
			if r.Kind == schema.Composition {
				return f.validation(RuleIdentifier, "composition %s takes inline payloads, not references", fld.name)
			}
			if err := s.attach(ctx, f, r, ownerID, id); err != nil {
				return err
			}
			continue
		}
		if _, err := s.createLinked(ctx, f, fld, ownerID, elem); err != nil {
			return err
		}
	}
	return nil
}

// replace sets the content of a relation on an existing instance.
// Composition children carrying an identifier are updated, new ones
// created and omitted ones deleted. Other relations relink like
// SetReference.
func (s *Session) replace(ctx context.Context, f failure, fld *relField, ownerID string, val ir.Value) error {
	elems, err := s.elements(f, fld, val)
	if err != nil {
		return err
	}
	r := fld.stored
	current, err := s.linked(ctx, ownerID, r)
	if err != nil {
		return err
	}
	isCurrent := make(map[string]bool, len(current))
	for _, id := range current {
		isCurrent[id] = true
	}
	idKey := s.engine.ids.IdentifierFieldName()
	keep := map[string]bool{}

	for _, elem := range elems {
		id, hasID := identifierOf(elem, idKey)
		switch {
		case !hasID:
			child, err := s.createLinked(ctx, f, fld, ownerID, elem)
			if err != nil {
				return err
			}
			keep[child.ID] = true
		case r.Kind == schema.Composition:
			if !isCurrent[id] {
				return f.validation(RuleIdentifier, "%s is not in composition %s", id, fld.name)
			}
			cf := failure{op: f.op, typ: s.graph().Type(fld.decl.Target).Name}
			if _, err := s.update(ctx, cf, s.view(fld.decl.Target), elem); err != nil {
				return err
			}
			keep[id] = true
		default:
			if !isCurrent[id] {
				if err := s.attach(ctx, f, r, ownerID, id); err != nil {
					return err
				}
			}
			keep[id] = true
		}
	}
	for _, id := range current {
		if keep[id] {
			continue
		}
		if err := s.detach(ctx, f, r, ownerID, id); err != nil {
			return err
		}
	}
	return nil
}

// createLinked creates an inline payload as a target of fld and links it.
func (s *Session) createLinked(ctx context.Context, f failure, fld *relField, ownerID string, elem *ir.Payload) (*ir.Instance, error) {
	r := fld.stored
	if !r.Createable && r.Kind != schema.Composition {
		return nil, f.validation(RuleCreateable, "relation %s does not accept inline payloads", fld.name)
	}
	tv := s.view(fld.decl.Target)
	if tv.entity == schema.NoType || !s.graph().IsKindOf(tv.entity, r.Target) {
		return nil, f.validation(RuleUnmapped, "relation %s target %s is not persistent", fld.name, tv.typ.Name)
	}
	cf := failure{op: f.op, typ: tv.typ.Name}
	child, err := s.create(ctx, cf, tv, elem, s.graph().Partner(r))
	if err != nil {
		return nil, err
	}
	if err := s.link(ctx, r, ownerID, child.ID); err != nil {
		return nil, fmt.Errorf("link %s: %w", r.StorageKey, err)
	}
	return child, nil
}

// attach links an existing target, checking its type and that a
// single-valued partner is not bound to another owner.
func (s *Session) attach(ctx context.Context, f failure, r *schema.Relation, ownerID, targetID string) error {
	target, err := s.load(ctx, targetID)
	if err != nil {
		return err
	}
	if target == nil {
		return f.validation(RuleIdentifier, "unknown identifier %s", targetID)
	}
	if !s.graph().IsKindOf(s.instanceType(target), r.Target) {
		return f.validation(RuleIdentifier, "%s is a %s, not a %s", targetID, target.Type, s.graph().Type(r.Target).Name)
	}
	if p := s.graph().Partner(r); p != nil && p.IsStored() && !p.IsCollection() {
		bound, err := s.linked(ctx, targetID, p)
		if err != nil {
			return err
		}
		for _, other := range bound {
			if other != ownerID {
				return f.argument(RulePartner, "%s is already bound through %s to %s", targetID, p.Name, other)
			}
		}
	}
	if err := s.link(ctx, r, ownerID, targetID); err != nil {
		return fmt.Errorf("link %s: %w", r.StorageKey, err)
	}
	return nil
}

// detach removes one target. Composition children are deleted with their
// cascade closure; other targets are unlinked unless that leaves them
// below the lower bound of the partner relation.
func (s *Session) detach(ctx context.Context, f failure, r *schema.Relation, ownerID, targetID string) error {
	if r.Kind == schema.Composition {
		child, err := s.load(ctx, targetID)
		if err != nil || child == nil {
			return err
		}
		return s.cascadeDelete(ctx, f, child)
	}
	if p := s.graph().Partner(r); p != nil && p.IsStored() && p.Lower > 0 {
		bound, err := s.linked(ctx, targetID, p)
		if err != nil {
			return err
		}
		if len(bound)-1 < p.Lower {
			return f.argument(RuleLowerBound, "%s.%s of %s requires at least %d target(s)",
				s.graph().Type(p.Owner).Name, p.Name, targetID, p.Lower)
		}
	}
	if _, err := s.unlink(ctx, r, ownerID, targetID); err != nil {
		return fmt.Errorf("unlink %s: %w", r.StorageKey, err)
	}
	return nil
}

// checkLowerBounds verifies required relations after a write. On create
// every stored relation of the view is checked except via; on update only
// the relations the payload replaced.
func (s *Session) checkLowerBounds(ctx context.Context, f failure, v *view, id string, input *ir.Payload, creating bool, via *schema.Relation) error {
	for _, fld := range v.rels {
		r := fld.stored
		if r == nil || r.Lower == 0 || (via != nil && r.ID == via.ID) {
			continue
		}
		if !creating && !input.Has(fld.name) {
			continue
		}
		ids, err := s.linked(ctx, id, r)
		if err != nil {
			return err
		}
		if len(ids) < r.Lower {
			return f.validation(RuleRequired, "relation %s requires at least %d target(s), got %d", fld.name, r.Lower, len(ids))
		}
	}
	return nil
}
