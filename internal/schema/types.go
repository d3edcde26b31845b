package schema

import "github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/measure"

// TypeID addresses a Type in the graph arena.
type TypeID int32

// RelationID addresses a Relation in the graph arena.
type RelationID int32

// Sentinel IDs for "no type" and "no relation" (one-way relations, unmapped
// transfer objects).
const (
	NoType     TypeID     = -1
	NoRelation RelationID = -1
)

// TypeKind distinguishes persisted entities from transfer objects.
type TypeKind uint8

const (
	KindEntity TypeKind = iota
	KindTransferObject
)

func (k TypeKind) String() string {
	if k == KindTransferObject {
		return "transfer"
	}
	return "entity"
}

// MemberKind describes where the value of a member comes from.
type MemberKind uint8

const (
	// MemberStored values are persisted with the instance.
	MemberStored MemberKind = iota
	// MemberDerived values are computed by a getter expression on read.
	MemberDerived
	// MemberMapped members of a transfer object rename an entity member.
	MemberMapped
	// MemberTransient members are accepted on input and never stored.
	MemberTransient
)

func (k MemberKind) String() string {
	switch k {
	case MemberDerived:
		return "derived"
	case MemberMapped:
		return "mapped"
	case MemberTransient:
		return "transient"
	}
	return "stored"
}

// RelationKind is the ownership semantics of a relation.
type RelationKind uint8

const (
	Association RelationKind = iota
	Aggregation
	Composition
)

func (k RelationKind) String() string {
	switch k {
	case Aggregation:
		return "aggregation"
	case Composition:
		return "composition"
	}
	return "association"
}

// DataKind is the primitive family of an attribute type.
type DataKind uint8

const (
	DataString DataKind = iota
	DataNumeric
	DataBoolean
	DataDate
	DataTime
	DataTimestamp
	DataEnum
	DataMeasured
)

// DataType describes the value domain of an attribute.
type DataType struct {
	Name      string
	Kind      DataKind
	MaxLength int   // strings; 0 is unbounded
	Precision int32 // numerics; total significant digits
	Scale     int32 // numerics; fractional digits

	Enumeration string // DataEnum
	Measure     string // DataMeasured
	Unit        string // DataMeasured; store unit name
}

// IsInteger reports whether the type is a numeric with scale 0.
func (d DataType) IsInteger() bool {
	return d.Kind == DataNumeric && d.Scale == 0
}

// IsNumeric reports whether values are numbers (plain or measured).
func (d DataType) IsNumeric() bool {
	return d.Kind == DataNumeric || d.Kind == DataMeasured
}

// Attribute is a primitive-typed member of a Type.
type Attribute struct {
	Name     string
	Owner    TypeID
	Type     DataType
	Member   MemberKind
	Required bool
	Getter   string // derived: expression computing the value
	Default  string // expression evaluated by the default resolver
	Binding  string // mapped: name of the entity attribute
}

// Relation is a typed reference from its Owner to Target.
type Relation struct {
	ID     RelationID
	Name   string
	Owner  TypeID
	Target TypeID
	Lower  int
	Upper  int // -1 is unbounded
	Kind   RelationKind
	Member MemberKind

	Partner              RelationID
	Createable           bool
	Updateable           bool
	Deleteable           bool
	ReverseCascadeDelete bool

	Getter  string
	Default string
	Binding string

	// StorageKey names the physical link rows. Two-way partners share one
	// key; the partner that is Reversed reads them with ends swapped.
	StorageKey string
	Reversed   bool
}

// IsCollection reports whether the relation may hold more than one target.
func (r *Relation) IsCollection() bool {
	return r.Upper != 1
}

// IsStored reports whether the relation is backed by link rows.
func (r *Relation) IsStored() bool {
	return r.Member == MemberStored
}

// Type is an entity or transfer object descriptor.
type Type struct {
	ID              TypeID
	Name            string
	Kind            TypeKind
	Abstract        bool
	Generalizations []TypeID
	MappingTarget   TypeID
	Attributes      []*Attribute // own
	Relations       []RelationID // own
	Operations      []string
}

// IsEntity reports whether instances of the type are persisted.
func (t *Type) IsEntity() bool {
	return t.Kind == KindEntity
}

// IsMapped reports whether a transfer object is a view over an entity.
func (t *Type) IsMapped() bool {
	return t.Kind == KindTransferObject && t.MappingTarget != NoType
}

// Unit is one unit of a Measure.
type Unit struct {
	Name    string
	Symbol  string
	Measure string
	Rate    measure.Rate
}

// Measure is a physical quantity with its units. The base unit has rate 1.
type Measure struct {
	Name  string
	Units []*Unit
}

// Base returns the base unit (rate 1), or nil when the measure has none.
func (m *Measure) Base() *Unit {
	for _, u := range m.Units {
		if u.Rate.IsOne() {
			return u
		}
	}
	return nil
}

// Enumeration is an ordered list of literals.
type Enumeration struct {
	Name     string
	Literals []string
}

// Ordinal returns the position of literal, or -1.
func (e *Enumeration) Ordinal(literal string) int {
	for i, l := range e.Literals {
		if l == literal {
			return i
		}
	}
	return -1
}
