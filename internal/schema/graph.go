package schema

import "strings"

// Graph is the read-only schema arena. Descriptors reference each other
// through TypeID/RelationID, so generalisation and partner cycles need no
// pointer cycles. A Graph is immutable after Build and safe to share.
type Graph struct {
	types     []*Type
	relations []*Relation
	byName    map[string]TypeID

	measures     map[string]*Measure
	units        map[string]*Unit // by name and by symbol
	enumerations map[string]*Enumeration

	// Precomputed per type.
	ancestors  [][]TypeID
	subtypes   [][]TypeID
	attributes [][]*Attribute
	allRels    [][]*Relation
	incoming   [][]*Relation
}

// Types returns all types in declaration order.
func (g *Graph) Types() []*Type {
	return g.types
}

// Type returns the descriptor for id. It panics on an invalid id.
func (g *Graph) Type(id TypeID) *Type {
	return g.types[id]
}

// Relation returns the descriptor for id. It panics on an invalid id.
func (g *Graph) Relation(id RelationID) *Relation {
	return g.relations[id]
}

// TypeByName looks up a type by simple or qualified ("model::Order") name.
func (g *Graph) TypeByName(name string) (*Type, bool) {
	if i := strings.LastIndex(name, "::"); i >= 0 {
		name = name[i+2:]
	}
	id, ok := g.byName[name]
	if !ok {
		return nil, false
	}
	return g.types[id], true
}

// ResolveAttribute finds the attribute named name visible on t, own
// attributes first.
func (g *Graph) ResolveAttribute(t TypeID, name string) (*Attribute, bool) {
	for _, a := range g.attributes[t] {
		if a.Name == name {
			return a, true
		}
	}
	return nil, false
}

// ResolveRelation finds the relation named name visible on t.
func (g *Graph) ResolveRelation(t TypeID, name string) (*Relation, bool) {
	for _, r := range g.allRels[t] {
		if r.Name == name {
			return r, true
		}
	}
	return nil, false
}

// Ancestors returns every transitive supertype of t, nearest first, without
// duplicates. t itself is not included.
func (g *Graph) Ancestors(t TypeID) []TypeID {
	return g.ancestors[t]
}

// Subtypes returns every transitive subtype of t. t itself is not included.
func (g *Graph) Subtypes(t TypeID) []TypeID {
	return g.subtypes[t]
}

// IsKindOf reports whether t is ancestor or one of its subtypes.
func (g *Graph) IsKindOf(t, ancestor TypeID) bool {
	if t == ancestor {
		return true
	}
	for _, a := range g.ancestors[t] {
		if a == ancestor {
			return true
		}
	}
	return false
}

// Attributes returns all attributes visible on t. Inherited attributes come
// first; an own attribute hides an inherited one of the same name.
func (g *Graph) Attributes(t TypeID) []*Attribute {
	return g.attributes[t]
}

// Relations returns all relations visible on t, inherited first.
func (g *Graph) Relations(t TypeID) []*Relation {
	return g.allRels[t]
}

// IncomingRelations returns the relations whose target t is a kind of.
func (g *Graph) IncomingRelations(t TypeID) []*Relation {
	return g.incoming[t]
}

// EntityOf returns the entity backing t: t itself for entities, the mapping
// target for mapped transfer objects, NoType otherwise.
func (g *Graph) EntityOf(t TypeID) TypeID {
	typ := g.types[t]
	if typ.IsEntity() {
		return t
	}
	if typ.MappingTarget != NoType {
		return g.EntityOf(typ.MappingTarget)
	}
	return NoType
}

// Unit looks up a unit by name or symbol.
func (g *Graph) Unit(name string) (*Unit, bool) {
	u, ok := g.units[name]
	return u, ok
}

// Measure looks up a measure by name.
func (g *Graph) Measure(name string) (*Measure, bool) {
	m, ok := g.measures[name]
	return m, ok
}

// Enumeration looks up an enumeration by simple or qualified name.
func (g *Graph) Enumeration(name string) (*Enumeration, bool) {
	if i := strings.LastIndex(name, "::"); i >= 0 {
		name = name[i+2:]
	}
	e, ok := g.enumerations[name]
	return e, ok
}

// Enumerations returns all enumerations keyed by name.
func (g *Graph) Enumerations() map[string]*Enumeration {
	return g.enumerations
}

// Partner returns the partner of r, or nil for one-way relations.
func (g *Graph) Partner(r *Relation) *Relation {
	if r.Partner == NoRelation {
		return nil
	}
	return g.relations[r.Partner]
}

// StorageRelations returns the stored relations of entity types, one per
// storage key.
func (g *Graph) StorageRelations() []*Relation {
	var out []*Relation
	for _, r := range g.relations {
		if r.IsStored() && !r.Reversed && g.types[r.Owner].IsEntity() {
			out = append(out, r)
		}
	}
	return out
}
