package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/musicbox/internal/ir"
)

// Snapshot is the golden form of a run: the applied trace, the final state
// and its digest, all as canonical JSON.
func Snapshot(name string, result *Result) ([]byte, error) {
	trace := make(ir.Array, len(result.Trace))
	for i, e := range result.Trace {
		trace[i] = e.Canonical()
	}
	return ir.MarshalCanonical(ir.Object{
		"scenario": ir.String(name),
		"trace":    trace,
		"final":    result.State.Canonical(),
		"digest":   ir.String(result.Digest),
	})
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := Snapshot(name, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
