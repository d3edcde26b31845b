package expr

import (
	"regexp"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/cockroachdb/apd/v3"

	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/env"
	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/ir"
	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/measure"
	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/schema"
)

var primitiveTypes = map[string]bool{
	"String": true, "Integer": true, "Decimal": true, "Boolean": true,
	"Date": true, "Time": true, "Timestamp": true,
}

var (
	regexMu    sync.Mutex
	regexCache = map[string]*regexp.Regexp{}
)

func (f *frame) call(c *Call) (ir.Value, error) {
	if id, ok := c.Target.(Ident); ok && !f.isValueName(id.Name) {
		if primitiveTypes[id.Name] {
			return f.primitiveCall(id.Name, c)
		}
		if t, ok := f.ev.graph.TypeByName(id.Name); ok {
			all, err := f.allOf(t)
			if err != nil {
				return nil, err
			}
			if c.Name == "all" {
				if len(c.Args) > 0 {
					return nil, evalErrorf("all() takes no arguments")
				}
				return all, nil
			}
			return f.apply(c, all)
		}
	}
	target, err := f.eval(c.Target)
	if err != nil {
		return nil, err
	}
	return f.apply(c, target)
}

// isValueName reports whether name binds to a value in the current frame,
// shadowing any type of the same name.
func (f *frame) isValueName(name string) bool {
	if _, ok := f.vars.lookup(name); ok {
		return true
	}
	if f.scope.Self != nil {
		return f.hasMember(f.instanceType(f.scope.Self), name)
	}
	return f.hasMember(f.scope.Type, name)
}

func (f *frame) allOf(t *schema.Type) (ir.Collection, error) {
	id := t.ID
	if !t.IsEntity() {
		if id = f.ev.graph.EntityOf(t.ID); id == schema.NoType {
			return nil, evalErrorf("%s is not mapped to an entity", t.Name)
		}
	}
	insts, err := f.ev.source.AllOf(f.ctx, id)
	if err != nil {
		return nil, &EvalError{Message: "load all of " + t.Name, Err: err}
	}
	out := make(ir.Collection, len(insts))
	for i, inst := range insts {
		out[i] = inst
	}
	return out, nil
}

func (f *frame) primitiveCall(typeName string, c *Call) (ir.Value, error) {
	switch c.Name {
	case "getVariable":
		if len(c.Args) != 2 {
			return nil, evalErrorf("getVariable takes a scope and a key")
		}
		scope, err := f.stringArg(c.Args[0])
		if err != nil {
			return nil, err
		}
		key, err := f.stringArg(c.Args[1])
		if err != nil {
			return nil, err
		}
		if err := env.ValidateScope(scope); err != nil {
			return nil, &EvalError{Message: "getVariable", Err: err}
		}
		if f.ev.env == nil {
			return ir.Null{}, nil
		}
		v, err := f.ev.env.Lookup(f.ctx, scope, key)
		if err != nil {
			return nil, &EvalError{Message: "variable " + scope + "." + key, Err: err}
		}
		return convertPrimitive(typeName, v)
	case "now", "today":
		if f.ev.env == nil {
			return nil, evalErrorf("no clock available")
		}
		now := f.ev.env.Now().UTC()
		switch {
		case typeName == "Timestamp" && c.Name == "now":
			return ir.NewTimestamp(now), nil
		case typeName == "Date":
			return ir.DateOf(now), nil
		case typeName == "Time" && c.Name == "now":
			return ir.TimeOf(now), nil
		}
	}
	return nil, evalErrorf("unknown function %s!%s", typeName, c.Name)
}

func (f *frame) stringArg(n Node) (string, error) {
	v, err := f.eval(n)
	if err != nil {
		return "", err
	}
	s, ok := v.(ir.String)
	if !ok {
		return "", evalErrorf("expected string argument, got %s", ir.KindName(v))
	}
	return string(s), nil
}

func (f *frame) intArg(n Node) (int64, bool, error) {
	v, err := f.eval(n)
	if err != nil {
		return 0, false, err
	}
	switch x := v.(type) {
	case ir.Null:
		return 0, false, nil
	case ir.Integer:
		return int64(x), true, nil
	case ir.Count:
		return int64(x), true, nil
	}
	return 0, false, evalErrorf("expected integer argument, got %s", ir.KindName(v))
}

// convertPrimitive converts a looked-up variable to the requested primitive.
func convertPrimitive(typeName string, v ir.Value) (ir.Value, error) {
	if ir.IsNull(v) {
		return ir.Null{}, nil
	}
	s := ir.Format(v)
	if str, ok := v.(ir.String); ok {
		s = string(str)
	}
	fail := func() (ir.Value, error) {
		return nil, evalErrorf("cannot convert %q to %s", s, typeName)
	}
	switch typeName {
	case "String":
		return ir.String(s), nil
	case "Integer":
		n, err := numberLiteral(strings.TrimSpace(s))
		if err != nil {
			return fail()
		}
		if i, ok := n.(ir.Integer); ok {
			return i, nil
		}
		return fail()
	case "Decimal":
		d, err := parseDecimal(strings.TrimSpace(s))
		if err != nil {
			return fail()
		}
		return ir.Decimal{Dec: d}, nil
	case "Boolean":
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "true":
			return ir.Bool(true), nil
		case "false":
			return ir.Bool(false), nil
		}
		return fail()
	case "Date", "Time", "Timestamp":
		switch v.(type) {
		case ir.Date, ir.Time, ir.Timestamp:
			return v, nil
		}
		t, err := temporalLiteral(s)
		if err != nil {
			return fail()
		}
		switch t.(type) {
		case ir.Date:
			if typeName == "Date" {
				return t, nil
			}
		case ir.Time:
			if typeName == "Time" {
				return t, nil
			}
		case ir.Timestamp:
			if typeName == "Timestamp" {
				return t, nil
			}
		}
		return fail()
	}
	return fail()
}

func toCollection(v ir.Value) ir.Collection {
	switch x := v.(type) {
	case nil, ir.Null:
		return ir.Collection{}
	case ir.Collection:
		return x
	}
	return ir.Collection{v}
}

func (f *frame) apply(c *Call, target ir.Value) (ir.Value, error) {
	switch c.Name {
	case "isDefined":
		return ir.Bool(!ir.IsNull(target)), nil
	case "isUndefined":
		return ir.Bool(ir.IsNull(target)), nil
	case "asCollection":
		return toCollection(target), nil
	case "asType", "kindOf", "typeOf":
		return f.typeCall(c, target)
	case "filter", "count", "sum", "avg", "min", "max", "any", "exists", "forAll",
		"contains", "isEmpty", "head", "tail", "heads", "tails", "sort", "size":
		return f.collectionCall(c, toCollection(target))
	case "length", "lower", "upper", "trim", "substring", "first", "last",
		"position", "replace", "matches":
		if ir.IsNull(target) {
			return ir.Null{}, nil
		}
		s, ok := target.(ir.String)
		if !ok {
			return nil, evalErrorf("%s applied to %s", c.Name, ir.KindName(target))
		}
		return f.stringCall(c, string(s))
	case "round", "abs":
		return f.numericCall(c, target)
	case "year", "month", "day":
		switch t := target.(type) {
		case ir.Null:
			return ir.Null{}, nil
		case ir.Date:
			return datePart(c.Name, t.Year(), int(t.Month()), t.Day()), nil
		case ir.Timestamp:
			return datePart(c.Name, t.Year(), int(t.Month()), t.Day()), nil
		}
		return nil, evalErrorf("%s applied to %s", c.Name, ir.KindName(target))
	}
	return nil, evalErrorf("unknown function %s", c.Name)
}

func datePart(name string, y, m, d int) ir.Value {
	switch name {
	case "year":
		return ir.Integer(y)
	case "month":
		return ir.Integer(m)
	}
	return ir.Integer(d)
}

func (f *frame) typeArg(c *Call) (*schema.Type, error) {
	if len(c.Args) != 1 {
		return nil, evalErrorf("%s takes one type argument", c.Name)
	}
	id, ok := c.Args[0].(Ident)
	if !ok {
		return nil, evalErrorf("%s argument must be a type name", c.Name)
	}
	t, ok := f.ev.graph.TypeByName(id.Name)
	if !ok {
		return nil, evalErrorf("unknown type %s", id.Name)
	}
	return t, nil
}

func (f *frame) typeCall(c *Call, target ir.Value) (ir.Value, error) {
	t, err := f.typeArg(c)
	if err != nil {
		return nil, err
	}
	g := f.ev.graph
	matches := func(inst *ir.Instance, exact bool) bool {
		it, ok := g.TypeByName(inst.Type)
		if !ok {
			return false
		}
		if exact {
			return it.ID == t.ID
		}
		return g.IsKindOf(it.ID, t.ID)
	}
	switch c.Name {
	case "asType":
		switch x := target.(type) {
		case ir.Null:
			return ir.Null{}, nil
		case *ir.Instance:
			if matches(x, false) {
				return x, nil
			}
			return ir.Null{}, nil
		case ir.Collection:
			out := ir.Collection{}
			for _, elem := range x {
				if inst, ok := elem.(*ir.Instance); ok && matches(inst, false) {
					out = append(out, inst)
				}
			}
			return out, nil
		}
		return nil, evalErrorf("asType applied to %s", ir.KindName(target))
	}
	switch x := target.(type) {
	case ir.Null:
		return ir.Null{}, nil
	case *ir.Instance:
		return ir.Bool(matches(x, c.Name == "typeOf")), nil
	}
	return nil, evalErrorf("%s applied to %s", c.Name, ir.KindName(target))
}

// predicate evaluates a lambda body for elem. Undefined results count as false.
func (f *frame) predicate(c *Call, elem ir.Value) (bool, error) {
	v, err := f.with(c.Var, elem).eval(c.Args[0])
	if err != nil {
		return false, err
	}
	switch b := v.(type) {
	case ir.Null:
		return false, nil
	case ir.Bool:
		return bool(b), nil
	}
	return false, evalErrorf("%s predicate is %s, not boolean", c.Name, ir.KindName(v))
}

func (f *frame) lambda(c *Call) error {
	if c.Var == "" || len(c.Args) != 1 {
		return evalErrorf("%s requires a lambda argument", c.Name)
	}
	return nil
}

// project maps elements through the lambda, or returns them as they are
// when the call has no lambda.
func (f *frame) project(c *Call, coll ir.Collection) ([]ir.Value, error) {
	if c.Var == "" {
		if len(c.Args) > 0 {
			return nil, evalErrorf("%s takes a lambda argument", c.Name)
		}
		return coll, nil
	}
	out := make([]ir.Value, len(coll))
	for i, elem := range coll {
		v, err := f.with(c.Var, elem).eval(c.Args[0])
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *frame) collectionCall(c *Call, coll ir.Collection) (ir.Value, error) {
	switch c.Name {
	case "count", "size":
		return ir.Count(len(coll)), nil
	case "isEmpty":
		return ir.Bool(len(coll) == 0), nil
	case "any":
		if len(coll) == 0 {
			return ir.Null{}, nil
		}
		return coll[0], nil
	case "contains":
		if len(c.Args) != 1 || c.Var != "" {
			return nil, evalErrorf("contains takes one argument")
		}
		v, err := f.eval(c.Args[0])
		if err != nil {
			return nil, err
		}
		if ir.IsNull(v) {
			return ir.Null{}, nil
		}
		for _, elem := range coll {
			if ir.Equal(elem, v) {
				return ir.Bool(true), nil
			}
		}
		return ir.Bool(false), nil
	case "filter":
		if err := f.lambda(c); err != nil {
			return nil, err
		}
		out := ir.Collection{}
		for _, elem := range coll {
			ok, err := f.predicate(c, elem)
			if err != nil {
				return nil, err
			}
			if ok {
				out = append(out, elem)
			}
		}
		return out, nil
	case "exists":
		if c.Var == "" {
			return ir.Bool(len(coll) > 0), nil
		}
		for _, elem := range coll {
			ok, err := f.predicate(c, elem)
			if err != nil {
				return nil, err
			}
			if ok {
				return ir.Bool(true), nil
			}
		}
		return ir.Bool(false), nil
	case "forAll":
		if err := f.lambda(c); err != nil {
			return nil, err
		}
		for _, elem := range coll {
			ok, err := f.predicate(c, elem)
			if err != nil {
				return nil, err
			}
			if !ok {
				return ir.Bool(false), nil
			}
		}
		return ir.Bool(true), nil
	case "sum", "avg":
		vals, err := f.project(c, coll)
		if err != nil {
			return nil, err
		}
		return f.sum(c.Name == "avg", vals)
	case "min", "max":
		vals, err := f.project(c, coll)
		if err != nil {
			return nil, err
		}
		var best ir.Value
		for _, v := range vals {
			if ir.IsNull(v) {
				continue
			}
			if best == nil {
				best = v
				continue
			}
			cmp, err := f.compare(v, best)
			if err != nil {
				return nil, err
			}
			if (c.Name == "min" && cmp < 0) || (c.Name == "max" && cmp > 0) {
				best = v
			}
		}
		if best == nil {
			return ir.Null{}, nil
		}
		return best, nil
	case "head", "tail", "heads", "tails":
		return f.extremes(c, coll)
	case "sort":
		return f.sort(c, coll)
	}
	return nil, evalErrorf("unknown function %s", c.Name)
}

func (f *frame) sum(avg bool, vals []ir.Value) (ir.Value, error) {
	var (
		acc ir.Value
		n   int64
	)
	for _, v := range vals {
		if ir.IsNull(v) {
			continue
		}
		n++
		if acc == nil {
			if c, ok := v.(ir.Count); ok {
				v = ir.Integer(c)
			}
			acc = v
			continue
		}
		next, err := f.arith("+", acc, v)
		if err != nil {
			return nil, err
		}
		acc = next
	}
	if acc == nil {
		return ir.Null{}, nil
	}
	if !avg {
		return acc, nil
	}
	return f.arith("/", acc, ir.Integer(n))
}

type keyed struct {
	elem ir.Value
	key  ir.Value
}

func (f *frame) keys(c *Call, coll ir.Collection) ([]keyed, error) {
	if err := f.lambda(c); err != nil {
		return nil, err
	}
	vals, err := f.project(c, coll)
	if err != nil {
		return nil, err
	}
	out := make([]keyed, len(coll))
	for i := range coll {
		out[i] = keyed{elem: coll[i], key: vals[i]}
	}
	return out, nil
}

// extremes implements head/tail (first element with the least/greatest key)
// and heads/tails (every element sharing it). Undefined keys never qualify.
func (f *frame) extremes(c *Call, coll ir.Collection) (ir.Value, error) {
	ks, err := f.keys(c, coll)
	if err != nil {
		return nil, err
	}
	wantMax := (c.Name == "tail" || c.Name == "tails") != c.Desc
	var best []keyed
	for _, k := range ks {
		if ir.IsNull(k.key) {
			continue
		}
		if len(best) == 0 {
			best = []keyed{k}
			continue
		}
		cmp, err := f.compare(k.key, best[0].key)
		if err != nil {
			return nil, err
		}
		switch {
		case cmp == 0:
			best = append(best, k)
		case (cmp > 0) == wantMax:
			best = []keyed{k}
		}
	}
	if c.Name == "head" || c.Name == "tail" {
		if len(best) == 0 {
			return ir.Null{}, nil
		}
		return best[0].elem, nil
	}
	out := make(ir.Collection, len(best))
	for i, k := range best {
		out[i] = k.elem
	}
	return out, nil
}

func (f *frame) sort(c *Call, coll ir.Collection) (ir.Value, error) {
	ks, err := f.keys(c, coll)
	if err != nil {
		return nil, err
	}
	var cmpErr error
	sort.SliceStable(ks, func(i, j int) bool {
		a, b := ks[i].key, ks[j].key
		switch {
		case ir.IsNull(a):
			return false
		case ir.IsNull(b):
			return true
		}
		cmp, err := f.compare(a, b)
		if err != nil && cmpErr == nil {
			cmpErr = err
		}
		if c.Desc {
			return cmp > 0
		}
		return cmp < 0
	})
	if cmpErr != nil {
		return nil, cmpErr
	}
	out := make(ir.Collection, len(ks))
	for i, k := range ks {
		out[i] = k.elem
	}
	return out, nil
}

func (f *frame) stringCall(c *Call, s string) (ir.Value, error) {
	rs := []rune(s)
	switch c.Name {
	case "length":
		return ir.Integer(len(rs)), nil
	case "lower":
		return ir.String(strings.ToLower(s)), nil
	case "upper":
		return ir.String(strings.ToUpper(s)), nil
	case "trim":
		return ir.String(strings.TrimFunc(s, unicode.IsSpace)), nil
	case "first", "last":
		if len(c.Args) != 1 {
			return nil, evalErrorf("%s takes a length", c.Name)
		}
		n, ok, err := f.intArg(c.Args[0])
		if err != nil || !ok {
			return ir.Null{}, err
		}
		n = clamp(n, 0, int64(len(rs)))
		if c.Name == "first" {
			return ir.String(rs[:n]), nil
		}
		return ir.String(rs[int64(len(rs))-n:]), nil
	case "substring":
		if len(c.Args) != 2 {
			return nil, evalErrorf("substring takes a start and a length")
		}
		start, ok, err := f.intArg(c.Args[0])
		if err != nil || !ok {
			return ir.Null{}, err
		}
		n, ok, err := f.intArg(c.Args[1])
		if err != nil || !ok {
			return ir.Null{}, err
		}
		start = clamp(start, 0, int64(len(rs)))
		end := clamp(start+n, start, int64(len(rs)))
		return ir.String(rs[start:end]), nil
	case "position":
		if len(c.Args) != 1 {
			return nil, evalErrorf("position takes one argument")
		}
		sub, err := f.stringArg(c.Args[0])
		if err != nil {
			return nil, err
		}
		i := strings.Index(s, sub)
		if i < 0 {
			return ir.Integer(-1), nil
		}
		return ir.Integer(len([]rune(s[:i]))), nil
	case "replace":
		if len(c.Args) != 2 {
			return nil, evalErrorf("replace takes a pattern and a replacement")
		}
		old, err := f.stringArg(c.Args[0])
		if err != nil {
			return nil, err
		}
		repl, err := f.stringArg(c.Args[1])
		if err != nil {
			return nil, err
		}
		return ir.String(strings.ReplaceAll(s, old, repl)), nil
	case "matches":
		if len(c.Args) != 1 {
			return nil, evalErrorf("matches takes a pattern")
		}
		pattern, err := f.stringArg(c.Args[0])
		if err != nil {
			return nil, err
		}
		re, err := compileRegex(pattern)
		if err != nil {
			return nil, &EvalError{Message: "invalid pattern " + pattern, Err: err}
		}
		return ir.Bool(re.MatchString(s)), nil
	}
	return nil, evalErrorf("unknown function %s", c.Name)
}

// compileRegex anchors pattern to the whole string.
func compileRegex(pattern string) (*regexp.Regexp, error) {
	regexMu.Lock()
	defer regexMu.Unlock()
	if re, ok := regexCache[pattern]; ok {
		return re, nil
	}
	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		return nil, err
	}
	regexCache[pattern] = re
	return re, nil
}

func clamp(n, lo, hi int64) int64 {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

func (f *frame) numericCall(c *Call, target ir.Value) (ir.Value, error) {
	if ir.IsNull(target) {
		return ir.Null{}, nil
	}
	var scale int64
	if c.Name == "round" && len(c.Args) > 0 {
		n, ok, err := f.intArg(c.Args[0])
		if err != nil {
			return nil, err
		}
		if ok {
			scale = n
		}
	}
	op := func(d *apd.Decimal) (*apd.Decimal, error) {
		if c.Name == "abs" {
			return measure.Abs(d), nil
		}
		out, err := measure.Round(d, int32(scale))
		if err != nil {
			return nil, arithError(err)
		}
		return out, nil
	}
	switch x := target.(type) {
	case ir.Integer:
		if c.Name == "abs" && x < 0 {
			return -x, nil
		}
		return x, nil
	case ir.Count:
		return ir.Integer(x), nil
	case ir.Decimal:
		d, err := op(x.Dec)
		if err != nil {
			return nil, err
		}
		if c.Name == "round" && scale == 0 {
			if n, err := measure.Int64(d); err == nil {
				return ir.Integer(n), nil
			}
		}
		return ir.Decimal{Dec: d}, nil
	case ir.Measured:
		d, err := op(x.Amount)
		if err != nil {
			return nil, err
		}
		return ir.Measured{Amount: d, Unit: x.Unit}, nil
	}
	return nil, evalErrorf("%s applied to %s", c.Name, ir.KindName(target))
}
