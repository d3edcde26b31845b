package dao

import (
	"context"
	"fmt"

	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/ir"
	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/queryir"
	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/schema"
	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/store"
)

// node is one instance in a cascade closure.
type node struct {
	typ schema.TypeID
	id  string
}

// Delete removes instance id of t together with its cascade closure.
// Deleting an unknown identifier or one a surviving instance still
// requires is a StateError; either way the store is unchanged.
func (s *Session) Delete(ctx context.Context, t *schema.Type, id string) error {
	f := failure{op: "delete", typ: t.Name, id: id}
	return s.mutating(ctx, f, func() error {
		v, err := s.persistentView(f, t)
		if err != nil {
			return err
		}
		inst, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		if inst == nil || !s.inView(v, inst) {
			return f.state(RuleNotFound, "instance does not exist")
		}
		return s.cascadeDelete(ctx, f, inst)
	})
}

// cascadeDelete deletes root and everything its deletion implies, after
// checking that no survivor loses a required reference.
func (s *Session) cascadeDelete(ctx context.Context, f failure, root *ir.Instance) error {
	doomed, err := s.closure(ctx, node{typ: s.instanceType(root), id: root.ID})
	if err != nil {
		return err
	}
	if err := s.checkIntegrity(ctx, f, doomed); err != nil {
		return err
	}
	ids := make([]string, len(doomed))
	for i, n := range doomed {
		ids[i] = n.id
	}
	if err := s.exec.UnlinkAll(ctx, ids); err != nil {
		return fmt.Errorf("unlink closure of %s: %w", root.ID, err)
	}
	if _, err := s.exec.Delete(ctx, ids); err != nil {
		if store.IsForeignKeyConstraintError(err) {
			return f.state(RuleIntegrity, "instance is still referenced")
		}
		return fmt.Errorf("delete closure of %s: %w", root.ID, err)
	}
	s.logger().Info("cascade delete", "root", root.ID, "type", root.Type, "size", len(ids))
	return nil
}

// closure walks composition edges outward and reverseCascadeDelete edges
// backwards from root. Each instance is visited once, so cycles terminate.
func (s *Session) closure(ctx context.Context, root node) ([]node, error) {
	g := s.graph()
	visited := map[node]bool{root: true}
	queue := []node{root}
	for i := 0; i < len(queue); i++ {
		n := queue[i]
		var next []string
		for _, r := range g.Relations(n.typ) {
			if !r.IsStored() || r.Kind != schema.Composition {
				continue
			}
			ids, err := s.linked(ctx, n.id, r)
			if err != nil {
				return nil, err
			}
			next = append(next, ids...)
		}
		for _, r := range g.IncomingRelations(n.typ) {
			if !r.ReverseCascadeDelete {
				continue
			}
			ids, err := s.linkedFrom(ctx, n.id, r)
			if err != nil {
				return nil, err
			}
			next = append(next, ids...)
		}
		insts, err := s.loadAll(ctx, next)
		if err != nil {
			return nil, err
		}
		for _, inst := range insts {
			m := node{typ: s.instanceType(inst), id: inst.ID}
			if visited[m] {
				continue
			}
			visited[m] = true
			queue = append(queue, m)
		}
	}
	return queue, nil
}

// linkedFrom returns the instances whose r reaches id.
func (s *Session) linkedFrom(ctx context.Context, id string, r *schema.Relation) ([]string, error) {
	if r.Reversed {
		return s.exec.Targets(ctx, r.StorageKey, id)
	}
	return s.exec.Sources(ctx, r.StorageKey, id)
}

// checkIntegrity vetoes a deletion that would leave a surviving instance
// with fewer targets than a required relation's lower bound. Both ends of
// every stored relation are checked.
func (s *Session) checkIntegrity(ctx context.Context, f failure, doomed []node) error {
	g := s.graph()
	dead := make(map[string]bool, len(doomed))
	for _, n := range doomed {
		dead[n.id] = true
	}
	for _, n := range doomed {
		for _, r := range g.StorageRelations() {
			// Survivors at the target end hold the partner relation.
			if p := g.Partner(r); p != nil && p.IsStored() && p.Lower > 0 && g.IsKindOf(n.typ, r.Owner) {
				links, err := s.exec.Links(ctx, queryir.Links{Relation: r.StorageKey, Sources: []string{n.id}})
				if err != nil {
					return err
				}
				for _, l := range links {
					if dead[l.Target] {
						continue
					}
					if err := s.requireRemaining(ctx, f, queryir.Links{Relation: r.StorageKey, Targets: []string{l.Target}}, p, l.Target, dead, true); err != nil {
						return err
					}
				}
			}
			// Survivors at the source end hold r itself.
			if r.Lower > 0 && g.IsKindOf(n.typ, r.Target) {
				links, err := s.exec.Links(ctx, queryir.Links{Relation: r.StorageKey, Targets: []string{n.id}})
				if err != nil {
					return err
				}
				for _, l := range links {
					if dead[l.Source] {
						continue
					}
					if err := s.requireRemaining(ctx, f, queryir.Links{Relation: r.StorageKey, Sources: []string{l.Source}}, r, l.Source, dead, false); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

// requireRemaining counts the links of survivor that outlive the deletion.
// bySource selects which end of each link is the far end.
func (s *Session) requireRemaining(ctx context.Context, f failure, q queryir.Links, r *schema.Relation, survivor string, dead map[string]bool, bySource bool) error {
	links, err := s.exec.Links(ctx, q)
	if err != nil {
		return err
	}
	remaining := 0
	for _, l := range links {
		far := l.Target
		if bySource {
			far = l.Source
		}
		if !dead[far] {
			remaining++
		}
	}
	if remaining >= r.Lower {
		return nil
	}
	owner := s.graph().Type(r.Owner).Name
	return f.state(RuleIntegrity, "%s(%s).%s requires at least %d target(s), %d would remain",
		owner, survivor, r.Name, r.Lower, remaining)
}
