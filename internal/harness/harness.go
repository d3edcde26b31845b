package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/compiler"
	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/dao"
	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/env"
	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/ir"
	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/queryir"
	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/schema"
	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/store"
	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/testutil"
)

// Harness executes one scenario against a fresh in-memory database.
type Harness struct {
	scenario *Scenario
	graph    *schema.Graph
	store    *store.Store
	engine   *dao.Engine
	clock    *testutil.StepClock
	vars     map[string]string
	logger   *slog.Logger
}

// Option configures a run.
type Option func(*Harness)

// WithLogger routes engine logs to l. Runs are silent by default.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) { h.logger = l }
}

// Run executes the scenario and returns its result. Step failures that
// the scenario did not expect are recorded in the result; the returned
// error is reserved for setup problems (model, database).
func Run(ctx context.Context, sc *Scenario, opts ...Option) (*Result, error) {
	h := &Harness{
		scenario: sc,
		vars:     map[string]string{},
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(h)
	}

	graph, err := loadGraph(sc)
	if err != nil {
		return nil, err
	}
	h.graph = graph

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()
	h.store = st

	start, err := sc.StartTime()
	if err != nil {
		return nil, err
	}
	h.clock = testutil.NewStepClock(start, 0)
	provider := env.NewProvider(
		env.WithClock(h.clock),
		env.WithLookupEnv(nil),
		env.WithEnvironment(sc.Environment),
		env.WithSystem(sc.System),
	)
	h.engine = dao.New(graph,
		dao.WithLogger(h.logger),
		dao.WithIdentifiers(dao.NewSequentialProvider("id")),
		dao.WithEnvironment(provider),
	)

	result := NewResult()
	for i, step := range sc.Steps {
		h.clock.Tick()
		ev, err := h.execute(ctx, i, step)
		if err != nil {
			result.AddError(fmt.Sprintf("steps[%d] %s: %v", i, step.Op, err))
			continue
		}
		result.Trace = append(result.Trace, *ev)
		for _, msg := range h.check(step, ev) {
			result.AddError(fmt.Sprintf("steps[%d] %s: %s", i, step.Op, msg))
		}
		if step.As != "" && ev.Outcome == OutcomeOK {
			id, ok := boundIdentifier(ev.Result)
			if !ok {
				result.AddError(fmt.Sprintf("steps[%d] %s: result has no identifier to bind as %q", i, step.Op, step.As))
				continue
			}
			h.vars[step.As] = id
			result.Bindings[step.As] = id
		}
	}

	for i, a := range sc.Assertions {
		if err := h.assert(ctx, a); err != nil {
			result.AddError(fmt.Sprintf("assertions[%d] %s: %v", i, a.Type, err))
		}
	}
	return result, nil
}

func loadGraph(sc *Scenario) (*schema.Graph, error) {
	var (
		res  *compiler.LoadResult
		errs []error
	)
	if sc.Schema != "" {
		res, errs = compiler.LoadString(sc.Schema)
	} else {
		res, errs = compiler.LoadModel(sc.Model)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("load model: %w", errors.Join(errs...))
	}
	return res.Graph, nil
}

// execute runs one step in its own transaction. A failing step rolls
// back and is reported in the event, not as an error.
func (h *Harness) execute(ctx context.Context, seq int, step Step) (*TraceEvent, error) {
	id, err := h.resolve(step.ID)
	if err != nil {
		return nil, err
	}
	targets := make([]string, len(step.Targets))
	for i, t := range step.Targets {
		if targets[i], err = h.resolve(t); err != nil {
			return nil, err
		}
	}
	payload, err := h.payload(step.Payload)
	if err != nil {
		return nil, err
	}

	var t *schema.Type
	if step.Type != "" {
		var ok bool
		if t, ok = h.graph.TypeByName(step.Type); !ok {
			return nil, fmt.Errorf("unknown type %q", step.Type)
		}
	}
	var r *schema.Relation
	if step.Relation != "" {
		var ok bool
		if r, ok = h.graph.ResolveRelation(t.ID, step.Relation); !ok {
			return nil, fmt.Errorf("type %s has no relation %q", t.Name, step.Relation)
		}
	}
	opts := queryOptions(step)

	ev := &TraceEvent{Seq: int64(seq + 1), Op: step.Op, Type: step.Type, ID: id, Relation: step.Relation}
	call := func(ctx context.Context, s *dao.Session) (ir.Value, error) {
		switch step.Op {
		case OpCreate:
			return optional(s.Create(ctx, t, payload, opts))
		case OpUpdate:
			if id != "" {
				payload.Set(ir.IdentifierKey, ir.String(id))
			}
			return optional(s.Update(ctx, t, payload, opts))
		case OpDelete:
			return nil, s.Delete(ctx, t, id)
		case OpGet:
			p, err := s.GetByIdentifier(ctx, t, id, opts)
			if err != nil || p == nil {
				return ir.Null{}, err
			}
			return p, nil
		case OpList:
			if step.Filter != "" {
				return collection(s.Search(ctx, t, step.Filter, opts))
			}
			return collection(s.GetAllOf(ctx, t, opts))
		case OpCount:
			n, err := s.CountAllOf(ctx, t, step.Filter)
			return ir.Integer(n), err
		case OpDefaults:
			return optional(s.GetDefaultsOf(ctx, t, opts))
		case OpStatic:
			if step.Attribute == "" {
				return optional(s.GetStaticFeatures(ctx, t, opts))
			}
			a, ok := h.graph.ResolveAttribute(t.ID, step.Attribute)
			if !ok {
				return nil, fmt.Errorf("type %s has no attribute %q", t.Name, step.Attribute)
			}
			return s.GetStaticData(ctx, a)
		case OpSetReference:
			return nil, s.SetReference(ctx, t, id, r, targets)
		case OpAddReferences:
			return nil, s.AddReferences(ctx, t, id, r, targets)
		case OpRemove:
			return nil, s.RemoveReferences(ctx, t, id, r, targets)
		case OpUnset:
			return nil, s.UnsetReference(ctx, t, id, r)
		case OpNavigate:
			return collection(s.GetNavigationResultAt(ctx, t, id, r, opts))
		case OpNavigateCount:
			n, err := s.CountNavigationResultAt(ctx, t, id, r, step.Filter)
			return ir.Integer(n), err
		case OpNavigateCreate:
			return optional(s.CreateNavigationInstanceAt(ctx, t, id, r, payload, opts))
		case OpEval:
			return s.Evaluate(ctx, step.Expr, t, id)
		}
		return nil, fmt.Errorf("unknown op %q", step.Op)
	}

	err = h.store.InTx(ctx, func(tx *store.Tx) error {
		v, err := call(ctx, h.engine.Session(tx, dao.WithStateful(h.stateful(step))))
		ev.Result = v
		return err
	})
	if err != nil {
		ev.Result = nil
		ev.Outcome, ev.Rule = classify(err)
		h.logger.Debug("step failed", "seq", ev.Seq, "op", step.Op, "error", err)
		return ev, nil
	}
	ev.Outcome = OutcomeOK
	return ev, nil
}

func (h *Harness) stateful(step Step) bool {
	switch {
	case step.Stateful != nil:
		return *step.Stateful
	case h.scenario.Stateful != nil:
		return *h.scenario.Stateful
	}
	return true
}

// check compares an event against the step expectation.
func (h *Harness) check(step Step, ev *TraceEvent) []string {
	want := step.Expect
	if want == nil {
		want = &Expect{}
	}
	if want.Error == "" {
		if ev.Outcome != OutcomeOK {
			return []string{fmt.Sprintf("unexpected %s error (rule %q)", ev.Outcome, ev.Rule)}
		}
	} else {
		var msgs []string
		if ev.Outcome != want.Error {
			msgs = append(msgs, fmt.Sprintf("expected %s error, got %s", want.Error, ev.Outcome))
		}
		if want.Rule != "" && ev.Rule != want.Rule {
			msgs = append(msgs, fmt.Sprintf("expected rule %q, got %q", want.Rule, ev.Rule))
		}
		return msgs
	}
	if want.Result == nil {
		return nil
	}
	expected, err := h.substitute(want.Result)
	if err != nil {
		return []string{err.Error()}
	}
	return Match("result", expected, ev.Result)
}

// classify maps an error to its trace outcome and rule.
func classify(err error) (string, string) {
	var de *dao.Error
	if errors.As(err, &de) {
		return string(de.Code), de.Rule
	}
	return "ERROR", ""
}

func queryOptions(step Step) dao.QueryOptions {
	opts := dao.QueryOptions{Limit: step.Limit, Offset: step.Offset}
	if step.Op == OpNavigate {
		opts.Filter = step.Filter
	}
	for _, o := range step.OrderBy {
		if f, ok := strings.CutPrefix(o, "-"); ok {
			opts.OrderBy = append(opts.OrderBy, queryir.Order{Field: f, Desc: true})
			continue
		}
		opts.OrderBy = append(opts.OrderBy, queryir.Order{Field: o})
	}
	return opts
}

// resolve replaces a "$name" reference by its bound identifier.
func (h *Harness) resolve(s string) (string, error) {
	name, ok := strings.CutPrefix(s, "$")
	if !ok {
		return s, nil
	}
	id, ok := h.vars[name]
	if !ok {
		return "", fmt.Errorf("unbound name %q", s)
	}
	return id, nil
}

// substitute resolves "$name" strings anywhere inside v.
func (h *Harness) substitute(v any) (any, error) {
	switch x := v.(type) {
	case string:
		return h.resolve(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			s, err := h.substitute(e)
			if err != nil {
				return nil, err
			}
			out[i] = s
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			s, err := h.substitute(e)
			if err != nil {
				return nil, err
			}
			out[k] = s
		}
		return out, nil
	}
	return v, nil
}

func (h *Harness) payload(m map[string]any) (*ir.Payload, error) {
	if m == nil {
		return ir.NewPayload(), nil
	}
	s, err := h.substitute(m)
	if err != nil {
		return nil, err
	}
	v, err := ir.FromAny(measured(s))
	if err != nil {
		return nil, fmt.Errorf("payload: %w", err)
	}
	return v.(*ir.Payload), nil
}

// measured turns {amount: n, unit: u} maps into measured values.
func measured(v any) any {
	switch x := v.(type) {
	case []any:
		for i, e := range x {
			x[i] = measured(e)
		}
	case map[string]any:
		if unit, ok := x["unit"].(string); ok && len(x) == 2 {
			if amount, err := ir.FromAny(x["amount"]); err == nil {
				if d, ok := ir.AsDecimal(amount); ok {
					return ir.Measured{Amount: d, Unit: unit}
				}
			}
		}
		for k, e := range x {
			x[k] = measured(e)
		}
	}
	return v
}

func boundIdentifier(v ir.Value) (string, bool) {
	p, ok := v.(*ir.Payload)
	if !ok {
		return "", false
	}
	return p.Identifier()
}

func optional(p *ir.Payload, err error) (ir.Value, error) {
	if err != nil || p == nil {
		return nil, err
	}
	return p, nil
}

func collection(ps []*ir.Payload, err error) (ir.Value, error) {
	if err != nil {
		return nil, err
	}
	c := make(ir.Collection, len(ps))
	for i, p := range ps {
		c[i] = p
	}
	return c, nil
}
