package harness

import (
	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/ir"
)

// Outcome of a successful step.
const OutcomeOK = "ok"

// TraceEvent records one executed step.
type TraceEvent struct {
	Seq      int64
	Op       string
	Type     string
	ID       string
	Relation string

	// Outcome is OutcomeOK or the error code of the failure.
	Outcome string
	Rule    string

	// Result is the value the step returned, nil for steps that return
	// nothing.
	Result ir.Value
}

// Payload renders the event as an ir payload. Empty fields are omitted.
func (e TraceEvent) Payload() *ir.Payload {
	p := ir.NewPayload()
	p.Set("seq", ir.Integer(e.Seq))
	p.Set("op", ir.String(e.Op))
	for _, f := range []struct{ key, val string }{
		{"type", e.Type},
		{"id", e.ID},
		{"relation", e.Relation},
	} {
		if f.val != "" {
			p.Set(f.key, ir.String(f.val))
		}
	}
	p.Set("outcome", ir.String(e.Outcome))
	if e.Rule != "" {
		p.Set("rule", ir.String(e.Rule))
	}
	if e.Result != nil {
		p.Set("result", e.Result)
	}
	return p
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every step expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace holds one event per step, in step order.
	Trace []TraceEvent `json:"-"`

	// Errors lists the failed expectations. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Bindings maps the names bound with "as" to identifiers.
	Bindings map[string]string `json:"bindings,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Trace:    []TraceEvent{},
		Errors:   []string{},
		Bindings: map[string]string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
