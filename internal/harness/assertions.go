package harness

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/roach88/musicbox/internal/ir"
	"github.com/roach88/musicbox/internal/model"
)

// AssertionError is returned when an assertion fails. It carries the trace
// so a failure can be read without re-running the scenario.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s %s\n", event.Seq, event.Kind, formatArgs(event.Args), event.Outcome)
		}
	}
	return buf.String()
}

// EvaluateAssertions runs every assertion against a result and returns the
// failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertBall:
			err = assertBall(result, a)
		case AssertBallAbsent:
			err = assertBallAbsent(result, a)
		case AssertBallCount:
			err = assertBallCount(result, a)
		case AssertWrapTime:
			err = assertWrapTime(result, a)
		case AssertOutcomeCount:
			err = assertOutcomeCount(result, a)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d: %v", i, err))
		}
	}
	return errs
}

// assertBall checks a ball's fields with subset semantics: only the keys in
// Expect are compared.
func assertBall(result *Result, a Assertion) error {
	ball, ok := result.State.Lookup(model.BallID(a.ID))
	if !ok {
		return &AssertionError{
			Type:     AssertBall,
			Expected: fmt.Sprintf("ball %d", a.ID),
			Actual:   "ball not found",
			Trace:    result.Trace,
		}
	}

	expected, err := ir.ObjectFromGo(a.Expect)
	if err != nil {
		return fmt.Errorf("ball %d: expect: %w", a.ID, err)
	}
	actual := ballObject(ball)
	for _, key := range expected.SortedKeys() {
		got, ok := actual[key]
		if !ok {
			return fmt.Errorf("ball %d: unknown field %q", a.ID, key)
		}
		if !reflect.DeepEqual(got, expected[key]) {
			return &AssertionError{
				Type:     AssertBall,
				Expected: fmt.Sprintf("ball %d %s=%v", a.ID, key, expected[key]),
				Actual:   fmt.Sprintf("%s=%v", key, got),
				Trace:    result.Trace,
			}
		}
	}
	return nil
}

func ballObject(b model.Ball) ir.Object {
	return ir.Object{
		"id":        ir.Int(b.ID),
		"x":         ir.Int(b.X),
		"y":         ir.Int(b.Y),
		"grabbedBy": ir.String(b.GrabbedBy),
		"grabbedAt": ir.Int(b.GrabbedAt),
	}
}

func assertBallAbsent(result *Result, a Assertion) error {
	if b, ok := result.State.Lookup(model.BallID(a.ID)); ok {
		return &AssertionError{
			Type:     AssertBallAbsent,
			Expected: fmt.Sprintf("no ball %d", a.ID),
			Actual:   fmt.Sprintf("ball %d at (%d, %d)", b.ID, b.X, b.Y),
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertBallCount(result *Result, a Assertion) error {
	if n := int64(len(result.State.Balls)); n != a.Count {
		return &AssertionError{
			Type:     AssertBallCount,
			Expected: fmt.Sprintf("%d balls", a.Count),
			Actual:   fmt.Sprintf("%d balls", n),
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertWrapTime(result *Result, a Assertion) error {
	if result.State.WrapTime != a.Count {
		return &AssertionError{
			Type:     AssertWrapTime,
			Expected: fmt.Sprintf("wrap time %d", a.Count),
			Actual:   fmt.Sprintf("wrap time %d", result.State.WrapTime),
		}
	}
	return nil
}

// assertOutcomeCount checks how many intents of a kind ended with an
// outcome. An empty outcome counts every intent of the kind.
func assertOutcomeCount(result *Result, a Assertion) error {
	n := int64(result.Count(ir.Kind(a.Kind), model.Outcome(a.Outcome)))
	if n != a.Count {
		outcome := a.Outcome
		if outcome == "" {
			outcome = "any"
		}
		return &AssertionError{
			Type:     AssertOutcomeCount,
			Expected: fmt.Sprintf("%d %s intents with outcome %s", a.Count, a.Kind, outcome),
			Actual:   fmt.Sprintf("%d occurrences", n),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertTraceOrder checks that the kinds appear in the given relative order.
// Other intents may appear between them. Each expected kind matches the first
// occurrence after the previous match.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	pos := 0
	for _, kind := range a.Kinds {
		found := false
		for pos < len(trace) {
			e := trace[pos]
			pos++
			if string(e.Kind) == kind {
				found = true
				break
			}
		}
		if !found {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("kinds in order: %v", a.Kinds),
				Actual:   fmt.Sprintf("no %s after the preceding kinds", kind),
				Trace:    trace,
			}
		}
	}
	return nil
}

func formatArgs(args ir.Object) string {
	if len(args) == 0 {
		return "{}"
	}
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, args[k])
	}
	return "{" + strings.Join(parts, " ") + "}"
}
