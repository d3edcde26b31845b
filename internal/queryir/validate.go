package queryir

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/ir"
)

var fieldPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate checks a query for problems a backend cannot compile: missing or
// reserved field names, unsupported literal kinds, negative paging and
// empty link relations.
//
// Returns all problems found joined into one error, or nil.
func Validate(q Query) error {
	v := &validator{}
	v.query(q)
	return errors.Join(v.errs...)
}

type validator struct {
	errs []error
}

func (v *validator) add(format string, args ...any) {
	v.errs = append(v.errs, fmt.Errorf(format, args...))
}

func (v *validator) query(q Query) {
	switch query := q.(type) {
	case nil:
		v.add("nil query")
	case Select:
		v.sel(query)
	case *Select:
		v.sel(*query)
	case Count:
		v.sel(query.Of)
	case *Count:
		v.sel(query.Of)
	case Links:
		v.links(query)
	case *Links:
		v.links(*query)
	default:
		v.add("unsupported query type: %T", q)
	}
}

func (v *validator) sel(s Select) {
	if s.Limit < 0 {
		v.add("negative limit %d", s.Limit)
	}
	if s.Offset < 0 {
		v.add("negative offset %d", s.Offset)
	}
	for _, o := range s.OrderBy {
		v.field("order", o.Field)
	}
	v.predicate(s.Filter)
}

func (v *validator) links(l Links) {
	if l.Relation == "" {
		v.add("links query without relation")
	}
}

func (v *validator) field(where, name string) {
	switch {
	case name == "":
		v.add("%s: empty field name", where)
	case ir.IsReservedKey(name):
		v.add("%s: field %q is engine-owned", where, name)
	case !fieldPattern.MatchString(name):
		v.add("%s: invalid field name %q", where, name)
	}
}

func (v *validator) predicate(p Predicate) {
	switch pred := p.(type) {
	case nil:
	case Equals:
		v.field("equals", pred.Field)
		v.literal(pred.Field, pred.Value)
	case *Equals:
		v.predicate(*pred)
	case IsNull:
		v.field("is null", pred.Field)
	case *IsNull:
		v.predicate(*pred)
	case In:
		v.field("in", pred.Field)
		for _, val := range pred.Values {
			v.literal(pred.Field, val)
		}
	case *In:
		v.predicate(*pred)
	case And:
		for _, sub := range pred.Predicates {
			v.predicate(sub)
		}
	case *And:
		v.predicate(*pred)
	default:
		v.add("unsupported predicate type: %T", p)
	}
}

func (v *validator) literal(field string, val ir.Value) {
	if _, err := Param(val); err != nil {
		v.add("field %q: %v", field, err)
	}
}

// Param converts a literal into the form it is stored in: the JSON scalar
// written by ir.ToJSON, as a database/sql parameter. Decimals are returned
// as text and must be cast numerically by the backend.
func Param(val ir.Value) (any, error) {
	switch x := val.(type) {
	case ir.String:
		return string(x), nil
	case ir.Integer:
		return int64(x), nil
	case ir.Count:
		return int64(x), nil
	case ir.Bool:
		// json_extract yields 1/0 for JSON booleans
		if x {
			return int64(1), nil
		}
		return int64(0), nil
	case ir.Decimal:
		if x.Dec == nil {
			return nil, errors.New("nil decimal")
		}
		return x.Dec.Text('f'), nil
	case ir.Date, ir.Time, ir.Timestamp:
		return ir.Format(x), nil
	case ir.Enum:
		return x.Literal, nil
	case nil, ir.Null:
		return nil, errors.New("null literal (use IsNull)")
	}
	return nil, fmt.Errorf("%s cannot be used as a query literal", ir.KindName(val))
}
