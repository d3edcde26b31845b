package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario is a scripted sequence of DAO operations with expectations.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Model is the directory of CUE model files, relative to the scenario
	// file. Exactly one of Model and Schema is set.
	Model string `yaml:"model,omitempty"`

	// Schema is an inline CUE model.
	Schema string `yaml:"schema,omitempty"`

	// Clock is the RFC 3339 start instant. Every step ticks it by one
	// second. Defaults to 2024-01-01T00:00:00Z.
	Clock string `yaml:"clock,omitempty"`

	// Stateful is the default for steps that do not set their own.
	// Absent means true.
	Stateful *bool `yaml:"stateful,omitempty"`

	// Environment and System seed the variable scopes. The process
	// environment is never consulted.
	Environment map[string]string `yaml:"environment,omitempty"`
	System      map[string]string `yaml:"system,omitempty"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions,omitempty"`

	dir string
}

// Step is one DAO call. Which fields apply depends on Op.
type Step struct {
	Op        string         `yaml:"op"`
	Type      string         `yaml:"type,omitempty"`
	ID        string         `yaml:"id,omitempty"`
	Relation  string         `yaml:"relation,omitempty"`
	Attribute string         `yaml:"attribute,omitempty"`
	Payload   map[string]any `yaml:"payload,omitempty"`
	Targets   []string       `yaml:"targets,omitempty"`
	Filter    string         `yaml:"filter,omitempty"`
	Expr      string         `yaml:"expr,omitempty"`
	OrderBy   []string       `yaml:"orderBy,omitempty"`
	Limit     int            `yaml:"limit,omitempty"`
	Offset    int            `yaml:"offset,omitempty"`
	Stateful  *bool          `yaml:"stateful,omitempty"`

	// As names the identifier returned by the step. Later steps refer
	// to it as "$name" in ids, targets, payload and expected values.
	As string `yaml:"as,omitempty"`

	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect describes the outcome of a step. Without Error the step must
// succeed.
type Expect struct {
	// Error is an error code (VALIDATION, ARGUMENT, CONFLICT, STATE) or
	// ERROR for any other failure.
	Error string `yaml:"error,omitempty"`
	Rule  string `yaml:"rule,omitempty"`

	// Result is matched as a subset: maps need only the keys given,
	// lists must have the same length.
	Result any `yaml:"result,omitempty"`
}

// Step operations.
const (
	OpCreate         = "create"
	OpUpdate         = "update"
	OpDelete         = "delete"
	OpGet            = "get"
	OpList           = "list"
	OpCount          = "count"
	OpDefaults       = "defaults"
	OpStatic         = "static"
	OpSetReference   = "set"
	OpAddReferences  = "add"
	OpRemove         = "remove"
	OpUnset          = "unset"
	OpNavigate       = "navigate"
	OpNavigateCount  = "navigate-count"
	OpNavigateCreate = "navigate-create"
	OpEval           = "eval"
)

var stepFields = map[string]struct{ typ, id, relation, payload bool }{
	OpCreate:         {typ: true, payload: true},
	OpUpdate:         {typ: true, payload: true},
	OpDelete:         {typ: true, id: true},
	OpGet:            {typ: true, id: true},
	OpList:           {typ: true},
	OpCount:          {typ: true},
	OpDefaults:       {typ: true},
	OpStatic:         {typ: true},
	OpSetReference:   {typ: true, id: true, relation: true},
	OpAddReferences:  {typ: true, id: true, relation: true},
	OpRemove:         {typ: true, id: true, relation: true},
	OpUnset:          {typ: true, id: true, relation: true},
	OpNavigate:       {typ: true, id: true, relation: true},
	OpNavigateCount:  {typ: true, id: true, relation: true},
	OpNavigateCreate: {typ: true, id: true, relation: true, payload: true},
	OpEval:           {},
}

// Assertion checks the final state after all steps.
type Assertion struct {
	// Type is one of count, present, absent, field.
	Type string `yaml:"type"`

	// Of is the type name the assertion reads through.
	Of     string `yaml:"of"`
	ID     string `yaml:"id,omitempty"`
	Filter string `yaml:"filter,omitempty"`
	Count  *int   `yaml:"count,omitempty"`
	Field  string `yaml:"field,omitempty"`
	Value  any    `yaml:"value,omitempty"`
}

// Assertion types.
const (
	AssertCount   = "count"
	AssertPresent = "present"
	AssertAbsent  = "absent"
	AssertField   = "field"
)

const defaultClock = "2024-01-01T00:00:00Z"

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	sc, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	sc.dir = filepath.Dir(path)
	if sc.Model != "" && !filepath.IsAbs(sc.Model) {
		sc.Model = filepath.Join(sc.dir, sc.Model)
	}
	if sc.Model != "" {
		if _, err := os.Stat(sc.Model); err != nil {
			return nil, fmt.Errorf("%s: model directory: %w", path, err)
		}
	}
	return sc, nil
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var sc Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&sc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&sc); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &sc, nil
}

// StartTime parses Clock.
func (s *Scenario) StartTime() (time.Time, error) {
	c := s.Clock
	if c == "" {
		c = defaultClock
	}
	return time.Parse(time.RFC3339, c)
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if (s.Model == "") == (s.Schema == "") {
		return fmt.Errorf("exactly one of model and schema is required")
	}
	if _, err := s.StartTime(); err != nil {
		return fmt.Errorf("clock: %w", err)
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	names := map[string]bool{}
	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
		if step.As != "" {
			if names[step.As] {
				return fmt.Errorf("steps[%d]: name %q already bound", i, step.As)
			}
			names[step.As] = true
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(i int, st *Step) error {
	need, ok := stepFields[st.Op]
	if !ok {
		return fmt.Errorf("steps[%d]: unknown op %q", i, st.Op)
	}
	switch {
	case need.typ && st.Type == "":
		return fmt.Errorf("steps[%d]: %s needs type", i, st.Op)
	case need.id && st.ID == "":
		return fmt.Errorf("steps[%d]: %s needs id", i, st.Op)
	case need.relation && st.Relation == "":
		return fmt.Errorf("steps[%d]: %s needs relation", i, st.Op)
	case st.Op == OpEval && st.Expr == "":
		return fmt.Errorf("steps[%d]: eval needs expr", i)
	case !need.payload && st.Payload != nil:
		return fmt.Errorf("steps[%d]: %s takes no payload", i, st.Op)
	case st.Limit < 0 || st.Offset < 0:
		return fmt.Errorf("steps[%d]: limit and offset must be non-negative", i)
	}
	if e := st.Expect; e != nil && e.Error != "" {
		switch e.Error {
		case "VALIDATION", "ARGUMENT", "CONFLICT", "STATE", "ERROR":
		default:
			return fmt.Errorf("steps[%d].expect: unknown error code %q", i, e.Error)
		}
	}
	return nil
}

func validateAssertion(i int, a *Assertion) error {
	if a.Of == "" {
		return fmt.Errorf("assertions[%d]: of is required", i)
	}
	switch a.Type {
	case AssertCount:
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count needs a non-negative count", i)
		}
	case AssertPresent, AssertAbsent:
		if a.ID == "" {
			return fmt.Errorf("assertions[%d]: %s needs id", i, a.Type)
		}
	case AssertField:
		if a.ID == "" || a.Field == "" {
			return fmt.Errorf("assertions[%d]: field needs id and field", i)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", i)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", i, a.Type)
	}
	return nil
}
