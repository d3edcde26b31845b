package dao

import (
	"strings"

	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/expr"
	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/schema"
)

// view is the member layout of one type as the DAO serves it. Entities
// are views of themselves; a mapped transfer object renames, derives or
// drops members of its entity.
type view struct {
	typ    *schema.Type
	entity schema.TypeID // NoType for unmapped transfer objects
	attrs  []*attrField
	rels   []*relField
	byName map[string]any // *attrField or *relField
}

type attrField struct {
	name string
	decl *schema.Attribute

	// stored is the backing entity attribute, nil when computed or
	// transient.
	stored *schema.Attribute

	// getter computes the value from the entity instance when stored is
	// nil. Empty for transient members.
	getter string
	owner  schema.TypeID // scope type for getter
}

type relField struct {
	name string
	decl *schema.Relation

	// stored is the backing entity relation, nil when computed or
	// transient.
	stored *schema.Relation

	getter string
	owner  schema.TypeID
}

func (a *attrField) transient() bool { return a.stored == nil && a.getter == "" }
func (r *relField) transient() bool  { return r.stored == nil && r.getter == "" }

func buildViews(g *schema.Graph) []*view {
	types := g.Types()
	out := make([]*view, len(types))
	for _, t := range types {
		out[t.ID] = buildView(g, t)
	}
	return out
}

func buildView(g *schema.Graph, t *schema.Type) *view {
	v := &view{typ: t, entity: g.EntityOf(t.ID), byName: map[string]any{}}
	for _, a := range g.Attributes(t.ID) {
		f := &attrField{name: a.Name, decl: a, owner: a.Owner}
		switch a.Member {
		case schema.MemberStored:
			f.stored = a
		case schema.MemberDerived:
			f.getter = a.Getter
			if !t.IsEntity() && v.entity != schema.NoType {
				f.owner = v.entity
			}
		case schema.MemberMapped:
			bindAttribute(g, v.entity, f, a.Binding)
		}
		v.attrs = append(v.attrs, f)
		v.byName[f.name] = f
	}
	for _, r := range g.Relations(t.ID) {
		f := &relField{name: r.Name, decl: r, owner: r.Owner}
		switch r.Member {
		case schema.MemberStored:
			f.stored = r
		case schema.MemberDerived:
			f.getter = r.Getter
			if !t.IsEntity() && v.entity != schema.NoType {
				f.owner = v.entity
			}
		case schema.MemberMapped:
			bindRelation(g, v.entity, f, r.Binding)
		}
		v.rels = append(v.rels, f)
		v.byName[f.name] = f
	}
	return v
}

// bindAttribute resolves a mapped attribute. A binding naming an entity
// attribute is writable; anything else is evaluated read-only against the
// entity instance.
func bindAttribute(g *schema.Graph, entity schema.TypeID, f *attrField, binding string) {
	if entity == schema.NoType {
		return
	}
	f.owner = entity
	name := bindingName(binding)
	if a, ok := g.ResolveAttribute(entity, name); ok {
		if a.Member == schema.MemberStored {
			f.stored = a
			return
		}
		f.getter, f.owner = a.Getter, a.Owner
		return
	}
	f.getter = binding
}

func bindRelation(g *schema.Graph, entity schema.TypeID, f *relField, binding string) {
	if entity == schema.NoType {
		return
	}
	f.owner = entity
	name := bindingName(binding)
	if r, ok := g.ResolveRelation(entity, name); ok {
		if r.IsStored() {
			f.stored = r
			return
		}
		f.getter, f.owner = r.Getter, r.Owner
		return
	}
	f.getter = binding
}

// bindingName returns the member named by a plain binding ("name" or
// "self.name"), or "" for a compound expression.
func bindingName(binding string) string {
	n, err := expr.Parse(strings.TrimSpace(binding))
	if err != nil {
		return ""
	}
	switch x := n.(type) {
	case expr.Ident:
		return x.Name
	case *expr.Member:
		if _, ok := x.Target.(expr.Self); ok {
			return x.Name
		}
	}
	return ""
}

func (v *view) attr(name string) (*attrField, bool) {
	f, ok := v.byName[name].(*attrField)
	return f, ok
}

func (v *view) rel(name string) (*relField, bool) {
	f, ok := v.byName[name].(*relField)
	return f, ok
}

// relByDecl finds the field for a relation descriptor visible on the view.
func (v *view) relByDecl(r *schema.Relation) (*relField, bool) {
	f, ok := v.rel(r.Name)
	if !ok || f.decl.ID != r.ID {
		return nil, false
	}
	return f, true
}
