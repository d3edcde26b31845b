package schema

import (
	"fmt"

	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/measure"
)

// TypeSpec declares a type by name. References to other types are by name
// and resolved by Build.
type TypeSpec struct {
	Name       string
	Kind       TypeKind
	Abstract   bool
	Extends    []string
	MapsTo     string
	Attributes []AttributeSpec
	Relations  []RelationSpec
	Operations []string
}

// AttributeSpec declares an attribute. Type is a primitive name (String,
// Integer, Decimal, Boolean, Date, Time, Timestamp) or an enumeration name.
// A non-empty Unit makes the attribute measured and Type is ignored.
type AttributeSpec struct {
	Name      string
	Type      string
	Required  bool
	Member    MemberKind
	Getter    string
	Default   string
	Binding   string
	MaxLength int
	Precision *int32
	Scale     *int32
	Unit      string
}

// RelationSpec declares a relation. Upper 0 means 1; -1 is unbounded.
type RelationSpec struct {
	Name                 string
	Target               string
	Lower                int
	Upper                int
	Kind                 RelationKind
	Member               MemberKind
	Partner              string
	Createable           bool
	Updateable           bool
	Deleteable           bool
	ReverseCascadeDelete bool
	Getter               string
	Default              string
	Binding              string
}

// MeasureSpec declares a measure and its units.
type MeasureSpec struct {
	Name  string
	Units []UnitSpec
}

// UnitSpec declares a unit. Empty Dividend/Divisor mean 1.
type UnitSpec struct {
	Name     string
	Symbol   string
	Dividend string
	Divisor  string
}

// Builder assembles a Graph from name-based specs.
type Builder struct {
	measures     []MeasureSpec
	enumerations []Enumeration
	types        []TypeSpec
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Measure adds a measure.
func (b *Builder) Measure(m MeasureSpec) *Builder {
	b.measures = append(b.measures, m)
	return b
}

// Enumeration adds an enumeration.
func (b *Builder) Enumeration(name string, literals ...string) *Builder {
	b.enumerations = append(b.enumerations, Enumeration{Name: name, Literals: literals})
	return b
}

// Type adds a type.
func (b *Builder) Type(t TypeSpec) *Builder {
	b.types = append(b.types, t)
	return b
}

// MustBuild is Build for tests and static models. It panics on error.
func (b *Builder) MustBuild() *Graph {
	g, err := b.Build()
	if err != nil {
		panic(err)
	}
	return g
}

// Build resolves all names and precomputes inheritance closures.
func (b *Builder) Build() (*Graph, error) {
	g := &Graph{
		byName:       make(map[string]TypeID),
		measures:     make(map[string]*Measure),
		units:        make(map[string]*Unit),
		enumerations: make(map[string]*Enumeration),
	}
	if err := b.buildMeasures(g); err != nil {
		return nil, err
	}
	for i := range b.enumerations {
		e := b.enumerations[i]
		if _, dup := g.enumerations[e.Name]; dup {
			return nil, fmt.Errorf("enumeration %s: declared twice", e.Name)
		}
		g.enumerations[e.Name] = &e
	}

	for i, spec := range b.types {
		if _, dup := g.byName[spec.Name]; dup {
			return nil, fmt.Errorf("type %s: declared twice", spec.Name)
		}
		id := TypeID(i)
		g.byName[spec.Name] = id
		g.types = append(g.types, &Type{
			ID:            id,
			Name:          spec.Name,
			Kind:          spec.Kind,
			Abstract:      spec.Abstract,
			MappingTarget: NoType,
			Operations:    spec.Operations,
		})
	}

	for i, spec := range b.types {
		t := g.types[i]
		for _, ext := range spec.Extends {
			sup, ok := g.byName[ext]
			if !ok {
				return nil, fmt.Errorf("type %s: unknown supertype %s", t.Name, ext)
			}
			t.Generalizations = append(t.Generalizations, sup)
		}
		if spec.MapsTo != "" {
			target, ok := g.byName[spec.MapsTo]
			if !ok {
				return nil, fmt.Errorf("type %s: unknown mapping target %s", t.Name, spec.MapsTo)
			}
			if t.Kind != KindTransferObject || g.types[target].Kind != KindEntity {
				return nil, fmt.Errorf("type %s: only transfer objects map onto entities", t.Name)
			}
			t.MappingTarget = target
		}
	}
	if err := checkGeneralizationCycles(g); err != nil {
		return nil, err
	}
	g.computeClosures()

	for i, spec := range b.types {
		t := g.types[i]
		for _, as := range spec.Attributes {
			a, err := g.resolveAttribute(t, as)
			if err != nil {
				return nil, fmt.Errorf("type %s: attribute %s: %w", t.Name, as.Name, err)
			}
			t.Attributes = append(t.Attributes, a)
		}
		for _, rs := range spec.Relations {
			target, ok := g.byName[rs.Target]
			if !ok {
				return nil, fmt.Errorf("type %s: relation %s: unknown target %s", t.Name, rs.Name, rs.Target)
			}
			upper := rs.Upper
			if upper == 0 {
				upper = 1
			}
			if rs.Lower < 0 || (upper != -1 && rs.Lower > upper) {
				return nil, fmt.Errorf("type %s: relation %s: invalid bounds %d..%d", t.Name, rs.Name, rs.Lower, upper)
			}
			member := effectiveMember(t, rs.Member, rs.Getter)
			r := &Relation{
				ID:                   RelationID(len(g.relations)),
				Name:                 rs.Name,
				Owner:                t.ID,
				Target:               target,
				Lower:                rs.Lower,
				Upper:                upper,
				Kind:                 rs.Kind,
				Member:               member,
				Partner:              NoRelation,
				Createable:           rs.Createable,
				Updateable:           rs.Updateable,
				Deleteable:           rs.Deleteable,
				ReverseCascadeDelete: rs.ReverseCascadeDelete,
				Getter:               rs.Getter,
				Default:              rs.Default,
				Binding:              rs.Binding,
			}
			g.relations = append(g.relations, r)
			t.Relations = append(t.Relations, r.ID)
		}
	}
	g.computeMembers()

	if err := b.linkPartners(g); err != nil {
		return nil, err
	}
	g.computeIncoming()
	return g, nil
}

func (b *Builder) buildMeasures(g *Graph) error {
	for _, ms := range b.measures {
		if _, dup := g.measures[ms.Name]; dup {
			return fmt.Errorf("measure %s: declared twice", ms.Name)
		}
		m := &Measure{Name: ms.Name}
		for _, us := range ms.Units {
			rate, err := measure.NewRate(us.Dividend, us.Divisor)
			if err != nil {
				return fmt.Errorf("measure %s: unit %s: %w", ms.Name, us.Name, err)
			}
			u := &Unit{Name: us.Name, Symbol: us.Symbol, Measure: ms.Name, Rate: rate}
			for _, key := range []string{us.Name, us.Symbol} {
				if key == "" {
					continue
				}
				if prev, dup := g.units[key]; dup && prev != u {
					return fmt.Errorf("measure %s: unit %s: name %q already used by %s", ms.Name, us.Name, key, prev.Measure)
				}
				g.units[key] = u
			}
			m.Units = append(m.Units, u)
		}
		g.measures[ms.Name] = m
	}
	return nil
}

var primitives = map[string]DataType{
	"String":    {Name: "String", Kind: DataString},
	"Integer":   {Name: "Integer", Kind: DataNumeric, Precision: 18, Scale: 0},
	"Decimal":   {Name: "Decimal", Kind: DataNumeric, Precision: 34, Scale: 6},
	"Boolean":   {Name: "Boolean", Kind: DataBoolean},
	"Date":      {Name: "Date", Kind: DataDate},
	"Time":      {Name: "Time", Kind: DataTime},
	"Timestamp": {Name: "Timestamp", Kind: DataTimestamp},
}

// Primitive returns the primitive data type named name.
func Primitive(name string) (DataType, bool) {
	dt, ok := primitives[name]
	return dt, ok
}

func (g *Graph) resolveAttribute(t *Type, as AttributeSpec) (*Attribute, error) {
	var dt DataType
	switch {
	case as.Unit != "":
		u, ok := g.units[as.Unit]
		if !ok {
			return nil, fmt.Errorf("unknown unit %s", as.Unit)
		}
		dt = DataType{Name: u.Measure, Kind: DataMeasured, Precision: 34, Scale: 6, Measure: u.Measure, Unit: u.Name}
	default:
		if p, ok := primitives[as.Type]; ok {
			dt = p
		} else if e, ok := g.enumerations[as.Type]; ok {
			dt = DataType{Name: e.Name, Kind: DataEnum, Enumeration: e.Name}
		} else {
			return nil, fmt.Errorf("unknown type %q", as.Type)
		}
	}
	if as.Precision != nil {
		if !dt.IsNumeric() {
			return nil, fmt.Errorf("precision on non-numeric type %s", dt.Name)
		}
		dt.Precision = *as.Precision
	}
	if as.Scale != nil {
		if !dt.IsNumeric() {
			return nil, fmt.Errorf("scale on non-numeric type %s", dt.Name)
		}
		dt.Scale = *as.Scale
	}
	if dt.IsNumeric() && (dt.Scale < 0 || dt.Scale > dt.Precision) {
		return nil, fmt.Errorf("scale %d outside 0..%d", dt.Scale, dt.Precision)
	}
	dt.MaxLength = as.MaxLength

	member := effectiveMember(t, as.Member, as.Getter)
	return &Attribute{
		Name:     as.Name,
		Owner:    t.ID,
		Type:     dt,
		Member:   member,
		Required: as.Required,
		Getter:   as.Getter,
		Default:  as.Default,
		Binding:  as.Binding,
	}, nil
}

// effectiveMember applies the implicit member kinds: a getter makes a member
// derived, and transfer objects have no storage of their own.
func effectiveMember(t *Type, kind MemberKind, getter string) MemberKind {
	if kind != MemberStored {
		return kind
	}
	switch {
	case getter != "":
		return MemberDerived
	case t.Kind == KindTransferObject:
		return MemberTransient
	}
	return kind
}

// checkGeneralizationCycles runs a three-colour DFS over the supertype
// edges.
func checkGeneralizationCycles(g *Graph) error {
	const (
		white = iota
		grey
		black
	)
	colour := make([]int, len(g.types))
	var visit func(id TypeID) error
	visit = func(id TypeID) error {
		colour[id] = grey
		for _, sup := range g.types[id].Generalizations {
			switch colour[sup] {
			case grey:
				return fmt.Errorf("type %s: generalization cycle through %s", g.types[id].Name, g.types[sup].Name)
			case white:
				if err := visit(sup); err != nil {
					return err
				}
			}
		}
		colour[id] = black
		return nil
	}
	for i := range g.types {
		if colour[i] == white {
			if err := visit(TypeID(i)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (g *Graph) computeClosures() {
	n := len(g.types)
	g.ancestors = make([][]TypeID, n)
	g.subtypes = make([][]TypeID, n)
	for i := range g.types {
		seen := map[TypeID]bool{TypeID(i): true}
		queue := append([]TypeID(nil), g.types[i].Generalizations...)
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			if seen[cur] {
				continue
			}
			seen[cur] = true
			g.ancestors[i] = append(g.ancestors[i], cur)
			queue = append(queue, g.types[cur].Generalizations...)
		}
		for _, a := range g.ancestors[i] {
			g.subtypes[a] = append(g.subtypes[a], TypeID(i))
		}
	}
}

// lineage returns t's ancestors farthest first, followed by t.
func (g *Graph) lineage(t TypeID) []TypeID {
	anc := g.ancestors[t]
	out := make([]TypeID, 0, len(anc)+1)
	for i := len(anc) - 1; i >= 0; i-- {
		out = append(out, anc[i])
	}
	return append(out, t)
}

func (g *Graph) computeMembers() {
	n := len(g.types)
	g.attributes = make([][]*Attribute, n)
	g.allRels = make([][]*Relation, n)
	for i := range g.types {
		attrIdx := map[string]int{}
		relIdx := map[string]int{}
		for _, tid := range g.lineage(TypeID(i)) {
			for _, a := range g.types[tid].Attributes {
				if j, ok := attrIdx[a.Name]; ok {
					g.attributes[i][j] = a
					continue
				}
				attrIdx[a.Name] = len(g.attributes[i])
				g.attributes[i] = append(g.attributes[i], a)
			}
			for _, rid := range g.types[tid].Relations {
				r := g.relations[rid]
				if j, ok := relIdx[r.Name]; ok {
					g.allRels[i][j] = r
					continue
				}
				relIdx[r.Name] = len(g.allRels[i])
				g.allRels[i] = append(g.allRels[i], r)
			}
		}
	}
}

func (b *Builder) linkPartners(g *Graph) error {
	for ti, spec := range b.types {
		t := g.types[ti]
		for ri, rs := range spec.Relations {
			if rs.Partner == "" {
				continue
			}
			r := g.relations[t.Relations[ri]]
			p, ok := g.ResolveRelation(r.Target, rs.Partner)
			if !ok {
				return fmt.Errorf("type %s: relation %s: unknown partner %s.%s", t.Name, r.Name, g.types[r.Target].Name, rs.Partner)
			}
			if r.Partner != NoRelation && r.Partner != p.ID {
				return fmt.Errorf("type %s: relation %s: conflicting partners", t.Name, r.Name)
			}
			if !g.IsKindOf(r.Owner, p.Target) {
				return fmt.Errorf("type %s: relation %s: partner %s targets %s", t.Name, r.Name, p.Name, g.types[p.Target].Name)
			}
			r.Partner = p.ID
			if p.Partner == NoRelation {
				p.Partner = r.ID
			} else if p.Partner != r.ID {
				return fmt.Errorf("type %s: relation %s: partner %s is paired with another relation", t.Name, r.Name, p.Name)
			}
		}
	}
	for _, r := range g.relations {
		if !r.IsStored() {
			continue
		}
		p := g.Partner(r)
		if p == nil || r.ID < p.ID {
			r.StorageKey = g.types[r.Owner].Name + "." + r.Name
			continue
		}
		r.StorageKey = g.types[p.Owner].Name + "." + p.Name
		r.Reversed = true
	}
	return nil
}

func (g *Graph) computeIncoming() {
	g.incoming = make([][]*Relation, len(g.types))
	for _, r := range g.relations {
		if !r.IsStored() || !g.types[r.Owner].IsEntity() {
			continue
		}
		for i := range g.types {
			if g.IsKindOf(TypeID(i), r.Target) {
				g.incoming[i] = append(g.incoming[i], r)
			}
		}
	}
}
