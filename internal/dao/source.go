package dao

import (
	"context"
	"fmt"

	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/expr"
	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/ir"
	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/queryir"
	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/schema"
)

// source feeds the evaluator from the session's executor.
type source struct {
	s *Session
}

func (src source) AllOf(ctx context.Context, t schema.TypeID) ([]*ir.Instance, error) {
	return src.s.selectInstances(ctx, queryir.Select{Types: src.s.typeNames(t)})
}

func (src source) Navigate(ctx context.Context, from *ir.Instance, r *schema.Relation) ([]*ir.Instance, error) {
	return src.s.navigate(ctx, from.ID, r)
}

// typeNames lists t and its entity subtypes, the row types an instance of
// t may have.
func (s *Session) typeNames(t schema.TypeID) []string {
	g := s.graph()
	names := []string{g.Type(t).Name}
	for _, sub := range g.Subtypes(t) {
		if g.Type(sub).IsEntity() {
			names = append(names, g.Type(sub).Name)
		}
	}
	return names
}

func (s *Session) selectInstances(ctx context.Context, q queryir.Select) ([]*ir.Instance, error) {
	rows, err := s.exec.Select(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]*ir.Instance, 0, len(rows))
	for _, row := range rows {
		inst, err := s.instance(row)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, nil
}

// instance decodes a row using the stored attributes of its most specific
// type.
func (s *Session) instance(row ir.Row) (*ir.Instance, error) {
	g := s.graph()
	t, ok := g.TypeByName(row.Type)
	if !ok || !t.IsEntity() {
		return nil, fmt.Errorf("instance %s: unknown entity type %s", row.ID, row.Type)
	}
	attrs := ir.NewPayload()
	for _, a := range g.Attributes(t.ID) {
		if a.Member != schema.MemberStored {
			continue
		}
		raw, ok := row.Attrs[a.Name]
		if !ok {
			continue
		}
		v, err := fromStored(g, a.Type, raw)
		if err != nil {
			return nil, fmt.Errorf("instance %s: attribute %s: %w", row.ID, a.Name, err)
		}
		attrs.Set(a.Name, v)
	}
	return &ir.Instance{
		Type:    row.Type,
		ID:      row.ID,
		Version: row.Version,
		Created: row.Created,
		Updated: row.Updated,
		Attrs:   attrs,
	}, nil
}

// load returns the instance with id, or nil when there is none.
func (s *Session) load(ctx context.Context, id string) (*ir.Instance, error) {
	insts, err := s.selectInstances(ctx, queryir.Select{IDs: []string{id}})
	if err != nil || len(insts) == 0 {
		return nil, err
	}
	return insts[0], nil
}

// loadAll returns the instances with ids in the order given, skipping
// missing ones.
func (s *Session) loadAll(ctx context.Context, ids []string) ([]*ir.Instance, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	insts, err := s.selectInstances(ctx, queryir.Select{IDs: ids})
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*ir.Instance, len(insts))
	for _, inst := range insts {
		byID[inst.ID] = inst
	}
	out := make([]*ir.Instance, 0, len(ids))
	for _, id := range ids {
		if inst, ok := byID[id]; ok {
			out = append(out, inst)
		}
	}
	return out, nil
}

// linked returns the identifiers r reaches from id, in link order.
func (s *Session) linked(ctx context.Context, id string, r *schema.Relation) ([]string, error) {
	if r.Reversed {
		return s.exec.Sources(ctx, r.StorageKey, id)
	}
	return s.exec.Targets(ctx, r.StorageKey, id)
}

func (s *Session) navigate(ctx context.Context, id string, r *schema.Relation) ([]*ir.Instance, error) {
	if !r.IsStored() {
		return nil, fmt.Errorf("relation %s is not stored", r.Name)
	}
	ids, err := s.linked(ctx, id, r)
	if err != nil {
		return nil, err
	}
	return s.loadAll(ctx, ids)
}

// link stores r from one instance to another in r's storage direction.
func (s *Session) link(ctx context.Context, r *schema.Relation, from, to string) error {
	return s.exec.Link(ctx, storageLink(r, from, to))
}

func (s *Session) unlink(ctx context.Context, r *schema.Relation, from, to string) (bool, error) {
	return s.exec.Unlink(ctx, storageLink(r, from, to))
}

func storageLink(r *schema.Relation, from, to string) ir.Link {
	if r.Reversed {
		return ir.Link{Relation: r.StorageKey, Source: to, Target: from}
	}
	return ir.Link{Relation: r.StorageKey, Source: from, Target: to}
}

// instanceType returns the descriptor of an instance's row type.
func (s *Session) instanceType(inst *ir.Instance) schema.TypeID {
	t, _ := s.graph().TypeByName(inst.Type)
	return t.ID
}

// Evaluate evaluates src with the instance id of t as self, or with no
// instance when id is empty.
func (s *Session) Evaluate(ctx context.Context, src string, t *schema.Type, id string) (ir.Value, error) {
	scope := expr.Scope{Type: schema.NoType}
	if t != nil {
		scope.Type = s.graph().EntityOf(t.ID)
		if scope.Type == schema.NoType {
			scope.Type = t.ID
		}
	}
	if id != "" {
		inst, err := s.load(ctx, id)
		if err != nil {
			return nil, err
		}
		if inst == nil {
			return nil, fmt.Errorf("no instance %s", id)
		}
		scope.Self = inst
	}
	return s.eval.Evaluate(ctx, src, scope)
}
