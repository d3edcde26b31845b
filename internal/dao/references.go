package dao

import (
	"context"
	"slices"

	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/schema"
)

// SetReference replaces the targets of r on instance id with targets.
// A full single-valued slot is replaced, unlike AddReferences.
func (s *Session) SetReference(ctx context.Context, t *schema.Type, id string, r *schema.Relation, targets []string) error {
	f := failure{op: "set-reference", typ: t.Name, id: id}
	return s.mutating(ctx, f, func() error {
		rel, current, err := s.references(ctx, f, t, id, r, true)
		if err != nil {
			return err
		}
		want := dedupe(targets)
		if rel.Upper != -1 && len(want) > rel.Upper {
			return f.argument(RuleUpperBound, "relation %s holds at most %d, got %d", r.Name, rel.Upper, len(want))
		}
		if len(want) < rel.Lower {
			return f.argument(RuleLowerBound, "relation %s requires at least %d target(s), got %d", r.Name, rel.Lower, len(want))
		}
		for _, cur := range current {
			if !slices.Contains(want, cur) {
				if err := s.detach(ctx, f, rel, id, cur); err != nil {
					return err
				}
			}
		}
		for _, target := range want {
			if !slices.Contains(current, target) {
				if err := s.attach(ctx, f, rel, id, target); err != nil {
					return err
				}
			}
		}
		s.logger().Debug("set reference", "type", t.Name, "id", id, "relation", r.Name, "targets", len(want))
		return nil
	})
}

// AddReferences adds targets to r on instance id. Exceeding the upper
// bound, including adding into a filled single-valued slot, is an
// ArgumentError.
func (s *Session) AddReferences(ctx context.Context, t *schema.Type, id string, r *schema.Relation, targets []string) error {
	f := failure{op: "add-references", typ: t.Name, id: id}
	return s.mutating(ctx, f, func() error {
		rel, current, err := s.references(ctx, f, t, id, r, true)
		if err != nil {
			return err
		}
		var add []string
		for _, target := range dedupe(targets) {
			if !slices.Contains(current, target) {
				add = append(add, target)
			}
		}
		if rel.Upper != -1 && len(current)+len(add) > rel.Upper {
			return f.argument(RuleUpperBound, "relation %s holds at most %d, has %d, adding %d",
				r.Name, rel.Upper, len(current), len(add))
		}
		for _, target := range add {
			if err := s.attach(ctx, f, rel, id, target); err != nil {
				return err
			}
		}
		s.logger().Debug("add references", "type", t.Name, "id", id, "relation", r.Name, "added", len(add))
		return nil
	})
}

// RemoveReferences removes targets from r on instance id. Identifiers not
// currently referenced are ignored. Removing composition children deletes
// them.
func (s *Session) RemoveReferences(ctx context.Context, t *schema.Type, id string, r *schema.Relation, targets []string) error {
	f := failure{op: "remove-references", typ: t.Name, id: id}
	return s.mutating(ctx, f, func() error {
		rel, current, err := s.references(ctx, f, t, id, r, false)
		if err != nil {
			return err
		}
		var remove []string
		for _, target := range dedupe(targets) {
			if slices.Contains(current, target) {
				remove = append(remove, target)
			}
		}
		if len(current)-len(remove) < rel.Lower {
			return f.argument(RuleLowerBound, "relation %s requires at least %d target(s)", r.Name, rel.Lower)
		}
		for _, target := range remove {
			if err := s.detach(ctx, f, rel, id, target); err != nil {
				return err
			}
		}
		s.logger().Debug("remove references", "type", t.Name, "id", id, "relation", r.Name, "removed", len(remove))
		return nil
	})
}

// UnsetReference clears r on instance id.
func (s *Session) UnsetReference(ctx context.Context, t *schema.Type, id string, r *schema.Relation) error {
	f := failure{op: "unset-reference", typ: t.Name, id: id}
	return s.mutating(ctx, f, func() error {
		rel, current, err := s.references(ctx, f, t, id, r, false)
		if err != nil {
			return err
		}
		if len(current) > 0 && rel.Lower > 0 {
			return f.argument(RuleLowerBound, "relation %s requires at least %d target(s)", r.Name, rel.Lower)
		}
		for _, target := range current {
			if err := s.detach(ctx, f, rel, id, target); err != nil {
				return err
			}
		}
		s.logger().Debug("unset reference", "type", t.Name, "id", id, "relation", r.Name)
		return nil
	})
}

// references resolves the stored relation behind r and its current
// targets on instance id. Compositions only accept removal.
func (s *Session) references(ctx context.Context, f failure, t *schema.Type, id string, r *schema.Relation, adding bool) (*schema.Relation, []string, error) {
	v, err := s.persistentView(f, t)
	if err != nil {
		return nil, nil, err
	}
	fld, ok := v.relByDecl(r)
	if !ok {
		return nil, nil, f.validation(RuleUnknownField, "type %s has no relation %s", t.Name, r.Name)
	}
	if fld.stored == nil {
		return nil, nil, f.validation(RuleReadOnly, "relation %s is not stored", r.Name)
	}
	if adding && fld.stored.Kind == schema.Composition {
		return nil, nil, f.validation(RuleIdentifier, "composition %s takes inline payloads, not references", r.Name)
	}
	owner, err := s.load(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if owner == nil || !s.inView(v, owner) {
		return nil, nil, f.state(RuleNotFound, "instance does not exist")
	}
	current, err := s.linked(ctx, id, fld.stored)
	if err != nil {
		return nil, nil, err
	}
	return fld.stored, current, nil
}

func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}
