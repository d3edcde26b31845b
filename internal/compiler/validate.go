package compiler

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/cockroachdb/apd/v3"

	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/expr"
	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/ir"
	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/schema"
)

// Validation error codes (E200-E299)
const (
	ErrInvalidName       = "E201" // empty, malformed or reserved name
	ErrDuplicateName     = "E202" // duplicate type/member/unit/literal name
	ErrUnknownType       = "E203" // unknown supertype, target or data type
	ErrUnknownUnit       = "E204" // unknown unit on a measured attribute
	ErrInvalidBounds     = "E205" // lower > upper or negative lower
	ErrMemberMisuse      = "E206" // member kind not allowed here
	ErrInvalidExpression = "E207" // getter/default/binding does not parse
	ErrEmptyEnumeration  = "E208" // enumeration without literals
	ErrInvalidMeasure    = "E209" // measure without a base unit
	ErrInvalidNumeric    = "E210" // precision/scale out of range
)

var namePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// validator accumulates errors; it never fails fast.
type validator struct {
	model *Model
	errs  []ValidationError
}

func (v *validator) add(field, code, format string, args ...any) {
	ve := ValidationError{Field: field, Code: code, Message: fmt.Sprintf(format, args...)}
	if pos := v.model.Pos(field); pos.IsValid() {
		ve.Line = pos.Line()
	}
	v.errs = append(v.errs, ve)
}

func (v *validator) name(field, name string) {
	switch {
	case strings.TrimSpace(name) == "":
		v.add(field, ErrInvalidName, "name is required")
	case ir.IsReservedKey(name):
		v.add(field, ErrInvalidName, "name %q uses the reserved prefix %q", name, ir.ReservedPrefix)
	case !namePattern.MatchString(name):
		v.add(field, ErrInvalidName, "invalid name %q", name)
	}
}

func (v *validator) expression(field, src string) {
	if src == "" {
		return
	}
	if _, err := expr.Parse(src); err != nil {
		v.add(field, ErrInvalidExpression, "%v", err)
	}
}

// Validate checks a compiled model before linking.
// Returns all errors found (does not fail-fast).
func Validate(m *Model) []ValidationError {
	v := &validator{model: m}

	enums := make(map[string]bool)
	for _, e := range m.Enumerations {
		field := "enum." + e.Name
		v.name(field, e.Name)
		if enums[e.Name] {
			v.add(field, ErrDuplicateName, "duplicate enumeration %q", e.Name)
		}
		enums[e.Name] = true
		if len(e.Literals) == 0 {
			v.add(field, ErrEmptyEnumeration, "enumeration %q has no literals", e.Name)
		}
		seen := make(map[string]bool)
		for _, lit := range e.Literals {
			v.name(field, lit)
			if seen[lit] {
				v.add(field, ErrDuplicateName, "duplicate literal %q", lit)
			}
			seen[lit] = true
		}
	}

	units := make(map[string]bool)
	for _, ms := range m.Measures {
		field := "measure." + ms.Name
		v.name(field, ms.Name)
		if len(ms.Units) == 0 {
			v.add(field, ErrInvalidMeasure, "measure %q has no units", ms.Name)
		}
		base := false
		for _, u := range ms.Units {
			for _, key := range []string{u.Name, u.Symbol} {
				if key == "" {
					continue
				}
				if units[key] {
					v.add(field+".unit."+u.Name, ErrDuplicateName, "unit name or symbol %q already used", key)
				}
				units[key] = true
			}
			if isOne(u.Dividend) && isOne(u.Divisor) {
				base = true
			}
		}
		if len(ms.Units) > 0 && !base {
			v.add(field, ErrInvalidMeasure, "measure %q has no base unit (rate 1)", ms.Name)
		}
	}

	types := make(map[string]*schema.TypeSpec, len(m.Types))
	for i := range m.Types {
		t := &m.Types[i]
		field := "type." + t.Name
		v.name(field, t.Name)
		if _, dup := types[t.Name]; dup {
			v.add(field, ErrDuplicateName, "duplicate type %q", t.Name)
		}
		if enums[t.Name] {
			v.add(field, ErrDuplicateName, "type %q clashes with an enumeration", t.Name)
		}
		types[t.Name] = t
	}

	for i := range m.Types {
		v.validateType(&m.Types[i], types, enums, units)
	}
	return v.errs
}

func (v *validator) validateType(t *schema.TypeSpec, types map[string]*schema.TypeSpec, enums, units map[string]bool) {
	field := "type." + t.Name
	for _, sup := range t.Extends {
		st, ok := types[sup]
		if !ok {
			v.add(field, ErrUnknownType, "unknown supertype %q", sup)
			continue
		}
		if st.Kind != t.Kind {
			v.add(field, ErrUnknownType, "%s %q cannot extend %s %q", t.Kind, t.Name, st.Kind, sup)
		}
	}
	entity := t.Kind == schema.KindEntity
	if t.MapsTo != "" {
		target, ok := types[t.MapsTo]
		switch {
		case entity:
			v.add(field, ErrMemberMisuse, "entity %q cannot map to another type", t.Name)
		case !ok:
			v.add(field, ErrUnknownType, "unknown mapped entity %q", t.MapsTo)
		case target.Kind != schema.KindEntity:
			v.add(field, ErrUnknownType, "mapped type %q is not an entity", t.MapsTo)
		}
	}

	members := make(map[string]bool)
	for _, a := range t.Attributes {
		af := field + ".attribute." + a.Name
		v.name(af, a.Name)
		if members[a.Name] {
			v.add(af, ErrDuplicateName, "duplicate member %q", a.Name)
		}
		members[a.Name] = true

		switch {
		case a.Unit != "":
			if !units[a.Unit] {
				v.add(af, ErrUnknownUnit, "unknown unit %q", a.Unit)
			}
		default:
			if _, ok := schema.Primitive(a.Type); !ok && !enums[a.Type] {
				v.add(af, ErrUnknownType, "unknown data type %q", a.Type)
			}
		}
		v.numeric(af, a)
		v.member(af, entity, t.MapsTo != "", a.Member, a.Getter, a.Binding)
		v.expression(af+".getter", a.Getter)
		v.expression(af+".default", a.Default)
		v.expression(af+".binding", a.Binding)
	}

	for _, r := range t.Relations {
		rf := field + ".relation." + r.Name
		v.name(rf, r.Name)
		if members[r.Name] {
			v.add(rf, ErrDuplicateName, "duplicate member %q", r.Name)
		}
		members[r.Name] = true

		if target, ok := types[r.Target]; !ok {
			v.add(rf, ErrUnknownType, "unknown target type %q", r.Target)
		} else if entity && target.Kind != schema.KindEntity && r.Member == schema.MemberStored {
			v.add(rf, ErrUnknownType, "stored relation of entity %q cannot target transfer object %q", t.Name, r.Target)
		}
		upper := r.Upper
		if upper == 0 {
			upper = 1
		}
		if r.Lower < 0 || upper < -1 || (upper != -1 && r.Lower > upper) {
			v.add(rf, ErrInvalidBounds, "invalid bounds %d..%d", r.Lower, upper)
		}
		if entity && r.Kind != schema.Association && r.Member != schema.MemberStored {
			v.add(rf, ErrMemberMisuse, "%s relation must be stored", r.Kind)
		}
		v.member(rf, entity, t.MapsTo != "", r.Member, r.Getter, r.Binding)
		v.expression(rf+".getter", r.Getter)
		v.expression(rf+".default", r.Default)
		v.expression(rf+".binding", r.Binding)
	}
}

func (v *validator) numeric(field string, a schema.AttributeSpec) {
	if a.Precision == nil && a.Scale == nil {
		return
	}
	dt, ok := schema.Primitive(a.Type)
	if a.Unit == "" && (!ok || !dt.IsNumeric()) {
		v.add(field, ErrInvalidNumeric, "precision and scale apply to numeric types only")
		return
	}
	precision, scale := dt.Precision, dt.Scale
	if a.Unit != "" {
		precision, scale = 34, 6
	}
	if a.Precision != nil {
		precision = *a.Precision
	}
	if a.Scale != nil {
		scale = *a.Scale
	}
	if precision < 1 || precision > 34 {
		v.add(field, ErrInvalidNumeric, "precision %d out of range 1..34", precision)
	}
	if scale < 0 || scale > precision {
		v.add(field, ErrInvalidNumeric, "scale %d out of range 0..%d", scale, precision)
	}
}

func (v *validator) member(field string, entity, mapped bool, kind schema.MemberKind, getter, binding string) {
	switch kind {
	case schema.MemberDerived:
		if getter == "" {
			v.add(field, ErrMemberMisuse, "derived member requires a getter")
		}
	case schema.MemberMapped:
		switch {
		case entity:
			v.add(field, ErrMemberMisuse, "entities cannot declare mapped members")
		case !mapped:
			v.add(field, ErrMemberMisuse, "mapped member on an unmapped transfer object")
		case binding == "":
			v.add(field, ErrMemberMisuse, "mapped member requires a binding")
		}
	case schema.MemberTransient:
		if entity {
			v.add(field, ErrMemberMisuse, "entities cannot declare transient members")
		}
	}
}

func isOne(s string) bool {
	if strings.TrimSpace(s) == "" {
		return true
	}
	d, _, err := apd.NewFromString(strings.TrimSpace(s))
	return err == nil && d.Cmp(apd.New(1, 0)) == 0
}
