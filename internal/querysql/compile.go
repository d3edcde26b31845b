package querysql

import (
	"fmt"
	"strings"

	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/ir"
	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/queryir"
)

// RowColumns is the column list of every instance Select, in scan order.
const RowColumns = "i.seq, i.id, i.type, i.version, i.created_at, i.updated_at, i.attrs"

// LinkColumns is the column list of every Links query, in scan order.
const LinkColumns = "l.relation, l.source_id, l.target_id, l.position"

// Compile converts a query to parameterized SQLite SQL.
// Returns (sql, params, error).
//
// Every query has a total ORDER BY. Values and JSON paths are always bound
// as parameters, never interpolated.
func Compile(q queryir.Query) (string, []any, error) {
	if err := queryir.Validate(q); err != nil {
		return "", nil, fmt.Errorf("compile query: %w", err)
	}
	switch query := q.(type) {
	case queryir.Select:
		return compileSelect(query)
	case *queryir.Select:
		return compileSelect(*query)
	case queryir.Count:
		return compileCount(query.Of)
	case *queryir.Count:
		return compileCount(query.Of)
	case queryir.Links:
		return compileLinks(query)
	case *queryir.Links:
		return compileLinks(*query)
	default:
		return "", nil, fmt.Errorf("unsupported query type: %T", q)
	}
}

type builder struct {
	sb     strings.Builder
	params []any
}

func (b *builder) write(s string, params ...any) {
	b.sb.WriteString(s)
	b.params = append(b.params, params...)
}

func compileSelect(q queryir.Select) (string, []any, error) {
	b := &builder{}
	b.write("SELECT " + RowColumns + " FROM instances i")
	if err := where(b, q); err != nil {
		return "", nil, err
	}

	b.write(" ORDER BY ")
	for _, o := range q.OrderBy {
		dir := "ASC"
		if o.Desc {
			dir = "DESC"
		}
		// Nulls last in both directions.
		b.write("json_extract(i.attrs, ?) IS NULL ASC, ", path(o.Field))
		b.write("json_extract(i.attrs, ?) "+dir+", ", path(o.Field))
	}
	b.write("i.seq ASC")

	switch {
	case q.Limit > 0:
		b.write(" LIMIT ?", int64(q.Limit))
	case q.Offset > 0:
		b.write(" LIMIT -1")
	}
	if q.Offset > 0 {
		b.write(" OFFSET ?", int64(q.Offset))
	}
	return b.sb.String(), b.params, nil
}

func compileCount(q queryir.Select) (string, []any, error) {
	b := &builder{}
	b.write("SELECT COUNT(*) FROM instances i")
	if err := where(b, q); err != nil {
		return "", nil, err
	}
	return b.sb.String(), b.params, nil
}

func where(b *builder, q queryir.Select) error {
	sep := " WHERE "
	next := func() {
		b.write(sep)
		sep = " AND "
	}
	if len(q.Types) > 0 {
		next()
		b.write("i.type IN ("+placeholders(len(q.Types))+")", strings2any(q.Types)...)
	}
	switch {
	case q.IDs == nil:
	case len(q.IDs) == 0:
		next()
		b.write("0 = 1")
	default:
		next()
		b.write("i.id IN ("+placeholders(len(q.IDs))+")", strings2any(q.IDs)...)
	}
	if q.Filter != nil {
		next()
		return predicate(b, q.Filter)
	}
	return nil
}

// predicate compiles a filter into b.
// CRITICAL: Values NEVER interpolated - always use ? placeholders.
func predicate(b *builder, p queryir.Predicate) error {
	switch pred := p.(type) {
	case nil:
		b.write("1 = 1")
	case queryir.Equals:
		return equals(b, pred.Field, pred.Value)
	case *queryir.Equals:
		return equals(b, pred.Field, pred.Value)
	case queryir.IsNull:
		b.write("json_extract(i.attrs, ?) IS NULL", path(pred.Field))
	case *queryir.IsNull:
		b.write("json_extract(i.attrs, ?) IS NULL", path(pred.Field))
	case queryir.In:
		return in(b, pred)
	case *queryir.In:
		return in(b, *pred)
	case queryir.And:
		return and(b, pred)
	case *queryir.And:
		return and(b, *pred)
	default:
		return fmt.Errorf("unsupported predicate type: %T", p)
	}
	return nil
}

func equals(b *builder, field string, v ir.Value) error {
	param, err := queryir.Param(v)
	if err != nil {
		return fmt.Errorf("field %q: %w", field, err)
	}
	if _, ok := v.(ir.Decimal); ok {
		b.write("json_extract(i.attrs, ?) = CAST(? AS NUMERIC)", path(field), param)
		return nil
	}
	b.write("json_extract(i.attrs, ?) = ?", path(field), param)
	return nil
}

func in(b *builder, p queryir.In) error {
	if len(p.Values) == 0 {
		b.write("0 = 1")
		return nil
	}
	b.write("(")
	for i, v := range p.Values {
		if i > 0 {
			b.write(" OR ")
		}
		if err := equals(b, p.Field, v); err != nil {
			return err
		}
	}
	b.write(")")
	return nil
}

func and(b *builder, a queryir.And) error {
	if len(a.Predicates) == 0 {
		b.write("1 = 1") // Always true (vacuous truth)
		return nil
	}
	b.write("(")
	for i, sub := range a.Predicates {
		if i > 0 {
			b.write(" AND ")
		}
		if err := predicate(b, sub); err != nil {
			return err
		}
	}
	b.write(")")
	return nil
}

func compileLinks(q queryir.Links) (string, []any, error) {
	b := &builder{}
	b.write("SELECT " + LinkColumns + " FROM links l" +
		" JOIN instances s ON s.id = l.source_id" +
		" JOIN instances t ON t.id = l.target_id" +
		" WHERE l.relation = ?", q.Relation)
	for _, end := range []struct {
		col string
		ids []string
	}{{"l.source_id", q.Sources}, {"l.target_id", q.Targets}} {
		switch {
		case end.ids == nil:
		case len(end.ids) == 0:
			b.write(" AND 0 = 1")
		default:
			b.write(" AND "+end.col+" IN ("+placeholders(len(end.ids))+")", strings2any(end.ids)...)
		}
	}
	b.write(" ORDER BY s.seq ASC, l.position ASC, t.seq ASC")
	return b.sb.String(), b.params, nil
}

func path(field string) string {
	return "$." + field
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func strings2any(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
