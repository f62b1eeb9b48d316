package harness

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/musicbox/internal/model"
)

func loadTestScenario(t *testing.T, name string) *Scenario {
	t.Helper()
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
	require.NoError(t, err)
	return s
}

func TestScenarios_Golden(t *testing.T) {
	for _, name := range []string{"grab_race", "drag_to_remove"} {
		t.Run(name, func(t *testing.T) {
			result, err := RunWithGolden(t, loadTestScenario(t, name))
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestScenarios_AllPass(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			s, err := LoadScenario(path)
			require.NoError(t, err)

			result, err := Run(s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_TraceMatchesSequence(t *testing.T) {
	result, err := Run(loadTestScenario(t, "grab_race"))
	require.NoError(t, err)

	require.Len(t, result.Trace, 6)
	require.Len(t, result.Intents, 6)
	for i, e := range result.Trace {
		assert.Equal(t, int64(i+1), e.Seq)
		assert.Equal(t, result.Intents[i].Kind, e.Kind)
	}
	assert.Equal(t, 1, result.Count(model.KindGrab, model.OutcomeIgnored))
	assert.Equal(t, 2, result.Count(model.KindGrab, ""))
	assert.Equal(t, result.State.Digest(), result.Digest)
}

func TestRun_ExpectMismatchFails(t *testing.T) {
	s := &Scenario{
		Name:        "expect_mismatch",
		Description: "grab of a missing ball is ignored, not applied",
		Flow: []Step{
			{Intent: "grab", Args: map[string]any{"viewId": "p1", "id": 9}, Expect: "applied"},
		},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "was ignored, expected applied")
}

func TestRun_PublishesMismatchFails(t *testing.T) {
	s := &Scenario{
		Name:        "publishes_mismatch",
		Description: "pointer down on empty field publishes nothing",
		Flow: []Step{
			{Participant: "p1", Action: ActionDown, X: 500, Y: 500, Publishes: []string{"grab"}},
		},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], "published [], expected [grab]")
}

func TestRun_UnknownKindIsIgnored(t *testing.T) {
	s := &Scenario{
		Name:        "unknown_kind",
		Description: "unknown kinds are sequenced but change nothing",
		Replicas:    2,
		Flow: []Step{
			{Intent: "explode", Expect: "ignored"},
			{Intent: "addBall", Args: map[string]any{"x": 1}, Expect: "ignored"},
		},
		Assertions: []Assertion{{Type: AssertBallCount, Count: 0}},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Len(t, result.Intents, 2)
}

func TestRun_AssertionFailuresReported(t *testing.T) {
	s := loadTestScenario(t, "grab_race")
	s.Assertions = []Assertion{
		{Type: AssertBall, ID: 1, Expect: map[string]any{"x": 201}},
		{Type: AssertBallAbsent, ID: 1},
		{Type: AssertBallCount, Count: 2},
		{Type: AssertWrapTime, Count: 0},
		{Type: AssertOutcomeCount, Kind: "grab", Outcome: "applied", Count: 2},
		{Type: AssertTraceOrder, Kinds: []string{"tick", "addBall"}},
		{Type: AssertBall, ID: 7},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, len(s.Assertions))
	for i, msg := range result.Errors {
		assert.True(t, strings.HasPrefix(msg, "assertion "), "error %d: %s", i, msg)
	}
	assert.Contains(t, result.Errors[0], "x=201")
	assert.Contains(t, result.Errors[6], "ball not found")
}

func TestAssertTraceOrder(t *testing.T) {
	trace := []TraceEvent{
		{Seq: 1, Kind: "addBall"},
		{Seq: 2, Kind: "grab"},
		{Seq: 3, Kind: "tick"},
		{Seq: 4, Kind: "grab"},
	}

	tests := []struct {
		name  string
		kinds []string
		ok    bool
	}{
		{"in order with gaps", []string{"addBall", "tick"}, true},
		{"repeated kind", []string{"grab", "tick", "grab"}, true},
		{"reversed", []string{"tick", "addBall"}, false},
		{"missing", []string{"release"}, false},
		{"too many repeats", []string{"grab", "grab", "grab"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := assertTraceOrder(trace, Assertion{Type: AssertTraceOrder, Kinds: tt.kinds})
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestAssertionError_IncludesTrace(t *testing.T) {
	err := &AssertionError{
		Type:     AssertBallCount,
		Expected: "1 balls",
		Actual:   "0 balls",
		Trace:    []TraceEvent{{Seq: 1, Kind: "tick", Outcome: model.OutcomeApplied}},
	}
	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: ball_count")
	assert.Contains(t, msg, "[1] tick {} applied")
}

func TestLoadScenario_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "unknown field",
			content: "name: x\ndescription: d\nflow:\n  - intent: tick\nassertion: []\n",
			want:    "failed to parse YAML",
		},
		{
			name:    "missing name",
			content: "description: d\nflow:\n  - intent: tick\n",
			want:    "name is required",
		},
		{
			name:    "empty flow",
			content: "name: x\ndescription: d\nflow: []\n",
			want:    "flow list is required",
		},
		{
			name:    "both intent and participant",
			content: "name: x\ndescription: d\nflow:\n  - intent: tick\n    participant: p1\n",
			want:    "not both",
		},
		{
			name:    "bad action",
			content: "name: x\ndescription: d\nflow:\n  - participant: p1\n    action: jump\n",
			want:    `unknown action "jump"`,
		},
		{
			name:    "bad expect",
			content: "name: x\ndescription: d\nflow:\n  - intent: tick\n    expect: rejected\n",
			want:    "expect must be",
		},
		{
			name:    "bad assertion",
			content: "name: x\ndescription: d\nflow:\n  - intent: tick\nassertions:\n  - type: final_state\n",
			want:    `unknown type "final_state"`,
		},
		{
			name:    "tiny field",
			content: "name: x\ndescription: d\nfield: { width: 10, height: 10 }\nflow:\n  - intent: tick\n",
			want:    "too small",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "s.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			_, err := LoadScenario(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestScenario_Defaults(t *testing.T) {
	s := &Scenario{}
	assert.Equal(t, DefaultSession, s.SessionName())
	assert.Equal(t, int64(1024), s.FieldSize().Width)
	assert.Equal(t, int64(600), s.FieldSize().Height)
}
