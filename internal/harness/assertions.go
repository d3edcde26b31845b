package harness

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/dao"
	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/ir"
	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/store"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return fmt.Sprintf("expected %s, got %s", e.Expected, e.Actual)
}

// assert checks one final-state assertion through a stateless session.
func (h *Harness) assert(ctx context.Context, a Assertion) error {
	t, ok := h.graph.TypeByName(a.Of)
	if !ok {
		return fmt.Errorf("unknown type %q", a.Of)
	}
	id, err := h.resolve(a.ID)
	if err != nil {
		return err
	}
	return h.store.InTx(ctx, func(tx *store.Tx) error {
		s := h.engine.Session(tx, dao.WithStateful(false))
		switch a.Type {
		case AssertCount:
			n, err := s.CountAllOf(ctx, t, a.Filter)
			if err != nil {
				return err
			}
			if n != int64(*a.Count) {
				return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("%d %s", *a.Count, a.Of), Actual: fmt.Sprintf("%d", n)}
			}
			return nil
		case AssertPresent, AssertAbsent:
			p, err := s.GetByIdentifier(ctx, t, id, dao.QueryOptions{})
			if err != nil {
				return err
			}
			if want := a.Type == AssertPresent; want != (p != nil) {
				return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("%s(%s) %s", a.Of, id, a.Type), Actual: presence(p != nil)}
			}
			return nil
		case AssertField:
			p, err := s.GetByIdentifier(ctx, t, id, dao.QueryOptions{})
			if err != nil {
				return err
			}
			if p == nil {
				return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("%s(%s) present", a.Of, id), Actual: "absent"}
			}
			want, err := h.substitute(a.Value)
			if err != nil {
				return err
			}
			got, _ := p.Get(a.Field)
			if msgs := Match(a.Field, want, got); len(msgs) > 0 {
				return fmt.Errorf("%s", strings.Join(msgs, "; "))
			}
			return nil
		}
		return fmt.Errorf("unknown assertion type %q", a.Type)
	})
}

func presence(present bool) string {
	if present {
		return "present"
	}
	return "absent"
}

// Match compares a plain expected value (as decoded from YAML) with an ir
// value and returns one message per mismatch.
//
// Maps match payloads by subset: only the keys given are compared, and a
// nil expectation means the key is absent or undefined. Lists match
// collections element by element. Strings match strings, enum literals
// ("OPEN" or "Status#OPEN") and the formatted form of any other value.
// Numbers compare by decimal value so 2, 2.0 and Count 2 are equal.
func Match(path string, want any, got ir.Value) []string {
	mismatch := func(expected string) []string {
		return []string{fmt.Sprintf("%s: expected %s, got %s", path, expected, describe(got))}
	}
	switch w := want.(type) {
	case nil:
		if !ir.IsNull(got) {
			return mismatch("undefined")
		}
		return nil
	case map[string]any:
		if m, ok := got.(ir.Measured); ok {
			return matchMeasured(path, w, m)
		}
		p, ok := got.(*ir.Payload)
		if !ok {
			return mismatch("a payload")
		}
		keys := make([]string, 0, len(w))
		for k := range w {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var msgs []string
		for _, k := range keys {
			v, has := p.Get(k)
			if !has && w[k] != nil {
				msgs = append(msgs, fmt.Sprintf("%s.%s: missing", path, k))
				continue
			}
			msgs = append(msgs, Match(path+"."+k, w[k], v)...)
		}
		return msgs
	case []any:
		c, ok := got.(ir.Collection)
		if !ok {
			return mismatch("a collection")
		}
		if len(c) != len(w) {
			return mismatch(fmt.Sprintf("%d elements", len(w)))
		}
		var msgs []string
		for i := range w {
			msgs = append(msgs, Match(fmt.Sprintf("%s[%d]", path, i), w[i], c[i])...)
		}
		return msgs
	case string:
		switch g := got.(type) {
		case ir.String:
			if string(g) == w {
				return nil
			}
		case ir.Enum:
			if g.Literal == w || ir.Format(g) == w {
				return nil
			}
		case nil, ir.Null:
		default:
			if ir.Format(g) == w {
				return nil
			}
		}
		return mismatch(fmt.Sprintf("%q", w))
	case bool:
		if b, ok := got.(ir.Bool); ok && bool(b) == w {
			return nil
		}
		return mismatch(fmt.Sprintf("%t", w))
	case int, int64, float64:
		ev, err := ir.FromAny(w)
		if err != nil {
			return []string{fmt.Sprintf("%s: %v", path, err)}
		}
		wd, _ := ir.AsDecimal(ev)
		gd, ok := ir.AsDecimal(got)
		if ok && wd.Cmp(gd) == 0 {
			return nil
		}
		return mismatch(ir.Format(ev))
	}
	return []string{fmt.Sprintf("%s: unsupported expectation %T", path, want)}
}

func matchMeasured(path string, w map[string]any, m ir.Measured) []string {
	var msgs []string
	if u, ok := w["unit"]; ok && u != m.Unit {
		msgs = append(msgs, fmt.Sprintf("%s.unit: expected %v, got %s", path, u, m.Unit))
	}
	if a, ok := w["amount"]; ok {
		msgs = append(msgs, Match(path+".amount", a, ir.Decimal{Dec: m.Amount})...)
	}
	return msgs
}

func describe(v ir.Value) string {
	if ir.IsNull(v) {
		return "undefined"
	}
	return fmt.Sprintf("%s %s", ir.KindName(v), ir.Format(v))
}
