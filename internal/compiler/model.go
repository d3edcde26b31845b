package compiler

import (
	"fmt"
	"strconv"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/schema"
)

// Model is a compiled, not yet linked, schema model. Names are unresolved;
// Build links them into a schema.Graph.
type Model struct {
	Name         string
	Types        []schema.TypeSpec
	Measures     []schema.MeasureSpec
	Enumerations []EnumerationSpec

	// Positions of declarations, used to report line numbers.
	positions map[string]token.Pos
}

// EnumerationSpec declares an enumeration.
type EnumerationSpec struct {
	Name     string
	Literals []string
}

// Build links the model into a read-only schema graph.
func (m *Model) Build() (*schema.Graph, error) {
	b := schema.NewBuilder()
	for _, ms := range m.Measures {
		b.Measure(ms)
	}
	for _, e := range m.Enumerations {
		b.Enumeration(e.Name, e.Literals...)
	}
	for _, t := range m.Types {
		b.Type(t)
	}
	return b.Build()
}

// Pos returns the source position recorded for a declaration path such as
// "type.Order.attribute.total".
func (m *Model) Pos(path string) token.Pos {
	return m.positions[path]
}

// CompileModel parses a CUE value into a Model.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The value is the package root, with optional top-level fields:
//
//	model: "shop"
//	measure: Mass: unit: kilogram: {symbol: "kg", dividend: 1000}
//	enum: Status: ["OPEN", "CLOSED"]
//	type: Order: {attribute: total: {type: "Decimal", scale: 2}}
func CompileModel(v cue.Value) (*Model, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	m := &Model{positions: make(map[string]token.Pos)}

	if nameVal := v.LookupPath(cue.ParsePath("model")); nameVal.Exists() {
		name, err := nameVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		m.Name = name
	}

	if err := eachField(v, "measure", func(name string, mv cue.Value) error {
		ms, err := parseMeasure(name, mv)
		if err != nil {
			return err
		}
		m.Measures = append(m.Measures, ms)
		return nil
	}); err != nil {
		return nil, err
	}

	if err := eachField(v, "enum", func(name string, ev cue.Value) error {
		var literals []string
		if err := ev.Decode(&literals); err != nil {
			return &CompileError{Field: "enum." + name, Message: "must be a list of literal names", Pos: ev.Pos()}
		}
		m.Enumerations = append(m.Enumerations, EnumerationSpec{Name: name, Literals: literals})
		return nil
	}); err != nil {
		return nil, err
	}

	if err := eachField(v, "type", func(name string, tv cue.Value) error {
		ts, err := m.parseType(name, tv)
		if err != nil {
			return err
		}
		m.Types = append(m.Types, ts)
		return nil
	}); err != nil {
		return nil, err
	}
	return m, nil
}

func eachField(v cue.Value, field string, fn func(name string, v cue.Value) error) error {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return nil
	}
	iter, err := fv.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		if err := fn(iter.Label(), iter.Value()); err != nil {
			return err
		}
	}
	return nil
}

func parseMeasure(name string, v cue.Value) (schema.MeasureSpec, error) {
	ms := schema.MeasureSpec{Name: name}
	err := eachField(v, "unit", func(unit string, uv cue.Value) error {
		us := schema.UnitSpec{Name: unit}
		var err error
		if us.Symbol, err = optString(uv, "symbol"); err != nil {
			return err
		}
		if us.Dividend, err = optNumber(uv, "dividend"); err != nil {
			return err
		}
		if us.Divisor, err = optNumber(uv, "divisor"); err != nil {
			return err
		}
		ms.Units = append(ms.Units, us)
		return nil
	})
	if err != nil {
		return ms, err
	}
	if len(ms.Units) == 0 {
		return ms, &CompileError{Field: "measure." + name, Message: "at least one unit is required", Pos: v.Pos()}
	}
	return ms, nil
}

func (m *Model) parseType(name string, v cue.Value) (schema.TypeSpec, error) {
	ts := schema.TypeSpec{Name: name}
	path := "type." + name
	m.positions[path] = v.Pos()

	kind, err := optString(v, "kind")
	if err != nil {
		return ts, err
	}
	switch kind {
	case "", "entity":
		ts.Kind = schema.KindEntity
	case "transfer":
		ts.Kind = schema.KindTransferObject
	default:
		return ts, &CompileError{Field: path + ".kind", Message: fmt.Sprintf("unknown kind %q (entity or transfer)", kind), Pos: v.Pos()}
	}
	if ts.Abstract, err = optBool(v, "abstract"); err != nil {
		return ts, err
	}
	if ts.MapsTo, err = optString(v, "mapsTo"); err != nil {
		return ts, err
	}
	if ts.Extends, err = optStrings(v, "extends"); err != nil {
		return ts, err
	}
	if ts.Operations, err = optStrings(v, "operations"); err != nil {
		return ts, err
	}

	err = eachField(v, "attribute", func(attr string, av cue.Value) error {
		as, err := parseAttribute(attr, av)
		if err != nil {
			return err
		}
		m.positions[path+".attribute."+attr] = av.Pos()
		ts.Attributes = append(ts.Attributes, as)
		return nil
	})
	if err != nil {
		return ts, err
	}
	err = eachField(v, "relation", func(rel string, rv cue.Value) error {
		rs, err := parseRelation(rel, rv)
		if err != nil {
			return err
		}
		m.positions[path+".relation."+rel] = rv.Pos()
		ts.Relations = append(ts.Relations, rs)
		return nil
	})
	return ts, err
}

// parseAttribute accepts the full struct form or a bare type name:
//
//	name: "String"
//	total: {type: "Decimal", precision: 10, scale: 2}
func parseAttribute(name string, v cue.Value) (schema.AttributeSpec, error) {
	as := schema.AttributeSpec{Name: name}
	if s, err := v.String(); err == nil {
		as.Type = s
		return as, nil
	}
	var err error
	if as.Type, err = optString(v, "type"); err != nil {
		return as, err
	}
	if as.Unit, err = optString(v, "unit"); err != nil {
		return as, err
	}
	if as.Type == "" && as.Unit == "" {
		return as, &CompileError{Field: "attribute." + name, Message: "type or unit is required", Pos: v.Pos()}
	}
	if as.Required, err = optBool(v, "required"); err != nil {
		return as, err
	}
	if as.Getter, err = optString(v, "getter"); err != nil {
		return as, err
	}
	if as.Default, err = optString(v, "default"); err != nil {
		return as, err
	}
	if as.Binding, err = optString(v, "binding"); err != nil {
		return as, err
	}
	if as.Member, err = optMember(v, as.Getter, as.Binding); err != nil {
		return as, err
	}
	maxLen, err := optInt(v, "maxLength")
	if err != nil {
		return as, err
	}
	as.MaxLength = int(maxLen)
	if p := v.LookupPath(cue.ParsePath("precision")); p.Exists() {
		n, err := p.Int64()
		if err != nil {
			return as, formatCUEError(err)
		}
		prec := int32(n)
		as.Precision = &prec
	}
	if s := v.LookupPath(cue.ParsePath("scale")); s.Exists() {
		n, err := s.Int64()
		if err != nil {
			return as, formatCUEError(err)
		}
		scale := int32(n)
		as.Scale = &scale
	}
	return as, nil
}

func parseRelation(name string, v cue.Value) (schema.RelationSpec, error) {
	rs := schema.RelationSpec{Name: name}
	var err error
	if rs.Target, err = optString(v, "target"); err != nil {
		return rs, err
	}
	if rs.Target == "" {
		return rs, &CompileError{Field: "relation." + name + ".target", Message: "target is required", Pos: v.Pos()}
	}
	kind, err := optString(v, "kind")
	if err != nil {
		return rs, err
	}
	switch kind {
	case "", "association":
		rs.Kind = schema.Association
	case "aggregation":
		rs.Kind = schema.Aggregation
	case "composition":
		rs.Kind = schema.Composition
	default:
		return rs, &CompileError{Field: "relation." + name + ".kind", Message: fmt.Sprintf("unknown relation kind %q", kind), Pos: v.Pos()}
	}
	lower, err := optInt(v, "lower")
	if err != nil {
		return rs, err
	}
	rs.Lower = int(lower)
	if rs.Upper, err = parseUpper(v); err != nil {
		return rs, err
	}
	if rs.Partner, err = optString(v, "partner"); err != nil {
		return rs, err
	}
	for _, f := range []struct {
		name string
		dst  *bool
	}{
		{"createable", &rs.Createable},
		{"updateable", &rs.Updateable},
		{"deleteable", &rs.Deleteable},
		{"reverseCascadeDelete", &rs.ReverseCascadeDelete},
	} {
		if *f.dst, err = optBool(v, f.name); err != nil {
			return rs, err
		}
	}
	if rs.Getter, err = optString(v, "getter"); err != nil {
		return rs, err
	}
	if rs.Default, err = optString(v, "default"); err != nil {
		return rs, err
	}
	if rs.Binding, err = optString(v, "binding"); err != nil {
		return rs, err
	}
	if rs.Member, err = optMember(v, rs.Getter, rs.Binding); err != nil {
		return rs, err
	}
	return rs, nil
}

// parseUpper reads upper as an int or "*" (unbounded). Absent means 1.
func parseUpper(v cue.Value) (int, error) {
	uv := v.LookupPath(cue.ParsePath("upper"))
	if !uv.Exists() {
		return 1, nil
	}
	if s, err := uv.String(); err == nil {
		if s == "*" {
			return -1, nil
		}
		return 0, &CompileError{Field: "upper", Message: fmt.Sprintf("upper must be an integer or \"*\", got %q", s), Pos: uv.Pos()}
	}
	n, err := uv.Int64()
	if err != nil {
		return 0, formatCUEError(err)
	}
	if n == 0 || n < -1 {
		return 0, &CompileError{Field: "upper", Message: fmt.Sprintf("upper must be positive or -1, got %d", n), Pos: uv.Pos()}
	}
	return int(n), nil
}

func optMember(v cue.Value, getter, binding string) (schema.MemberKind, error) {
	s, err := optString(v, "member")
	if err != nil {
		return 0, err
	}
	switch s {
	case "":
		switch {
		case getter != "":
			return schema.MemberDerived, nil
		case binding != "":
			return schema.MemberMapped, nil
		}
		return schema.MemberStored, nil
	case "stored":
		return schema.MemberStored, nil
	case "derived":
		return schema.MemberDerived, nil
	case "mapped":
		return schema.MemberMapped, nil
	case "transient":
		return schema.MemberTransient, nil
	}
	return 0, &CompileError{Field: "member", Message: fmt.Sprintf("unknown member kind %q", s), Pos: v.Pos()}
}

func optString(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", nil
	}
	s, err := fv.String()
	if err != nil {
		return "", &CompileError{Field: field, Message: "must be a string", Pos: fv.Pos()}
	}
	return s, nil
}

func optStrings(v cue.Value, field string) ([]string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return nil, nil
	}
	var out []string
	if err := fv.Decode(&out); err != nil {
		return nil, &CompileError{Field: field, Message: "must be a list of strings", Pos: fv.Pos()}
	}
	return out, nil
}

func optBool(v cue.Value, field string) (bool, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return false, nil
	}
	b, err := fv.Bool()
	if err != nil {
		return false, &CompileError{Field: field, Message: "must be a boolean", Pos: fv.Pos()}
	}
	return b, nil
}

func optInt(v cue.Value, field string) (int64, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return 0, nil
	}
	n, err := fv.Int64()
	if err != nil {
		return 0, &CompileError{Field: field, Message: "must be an integer", Pos: fv.Pos()}
	}
	return n, nil
}

// optNumber reads an int, float or numeric string as decimal text.
func optNumber(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", nil
	}
	switch fv.Kind() {
	case cue.IntKind:
		n, err := fv.Int64()
		if err != nil {
			return "", formatCUEError(err)
		}
		return strconv.FormatInt(n, 10), nil
	case cue.FloatKind:
		return fmt.Sprint(fv), nil
	case cue.StringKind:
		return fv.String()
	}
	return "", &CompileError{Field: field, Message: "must be a number", Pos: fv.Pos()}
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
