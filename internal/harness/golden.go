package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/ir"
)

// MarshalTrace renders a scenario trace as canonical JSON:
//
//	{"scenario":"<name>","trace":[{"op":...,"outcome":...,"seq":1,...},...]}
//
// Identifiers and timestamps in the trace are deterministic, so the bytes
// are stable across runs.
func MarshalTrace(name string, trace []TraceEvent) ([]byte, error) {
	events := make(ir.Collection, len(trace))
	for i, ev := range trace {
		events[i] = ev.Payload()
	}
	snapshot := ir.NewPayload()
	snapshot.Set("scenario", ir.String(name))
	snapshot.Set("trace", events)
	return ir.MarshalCanonical(snapshot)
}

// RunWithGolden executes a scenario, fails the test on any expectation
// error and compares the trace against testdata/golden/<name>.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return err
	}
	for _, e := range result.Errors {
		t.Errorf("%s: %s", scenario.Name, e)
	}
	return AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares the result's trace against a golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := MarshalTrace(scenarioName, result.Trace)
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
