package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/musicbox/internal/geom"
	"github.com/roach88/musicbox/internal/model"
)

// DefaultSession names the session when a scenario does not.
const DefaultSession = "scenario"

// Scenario defines one conformance run.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Session is the session name stamped into every intent.
	Session string `yaml:"session,omitempty"`

	// Field defaults to 1024x600.
	Field *FieldSpec `yaml:"field,omitempty"`

	// LeaseTicks enables the grab lease. Zero disables it.
	LeaseTicks int64 `yaml:"lease_ticks,omitempty"`

	// Replicas is the number of extra replicas that receive the stream
	// shuffled and duplicated. Zero skips the convergence run.
	Replicas int `yaml:"replicas,omitempty"`

	// Seed drives the shuffle so runs are reproducible.
	Seed int64 `yaml:"seed,omitempty"`

	Flow       []Step      `yaml:"flow"`
	Assertions []Assertion `yaml:"assertions"`
}

// FieldSpec is the field size in pixels.
type FieldSpec struct {
	Width  int64 `yaml:"width"`
	Height int64 `yaml:"height"`
}

// Step is one flow entry. Exactly one of Intent or Participant is set.
type Step struct {
	// Intent publishes a raw intent of this kind with Args.
	Intent string         `yaml:"intent,omitempty"`
	Args   map[string]any `yaml:"args,omitempty"`

	// Expect is the outcome the intent must have: applied or ignored.
	Expect string `yaml:"expect,omitempty"`

	// Participant drives that participant's pointer controller.
	Participant string `yaml:"participant,omitempty"`
	Action      string `yaml:"action,omitempty"`
	Pointer     int    `yaml:"pointer,omitempty"`
	X           int64  `yaml:"x,omitempty"`
	Y           int64  `yaml:"y,omitempty"`

	// Buttons overrides the pressed-button mask of a move. Defaults to 1.
	Buttons *uint `yaml:"buttons,omitempty"`

	// Publishes lists the kinds the controller must publish for this step,
	// in order. Nil skips the check; an empty list means nothing.
	Publishes []string `yaml:"publishes,omitempty"`
}

// Assertion validates the trace or the final state.
type Assertion struct {
	Type    string         `yaml:"type"`
	ID      int64          `yaml:"id,omitempty"`
	Expect  map[string]any `yaml:"expect,omitempty"`
	Count   int64          `yaml:"count,omitempty"`
	Kind    string         `yaml:"kind,omitempty"`
	Outcome string         `yaml:"outcome,omitempty"`
	Kinds   []string       `yaml:"kinds,omitempty"`
}

// Assertion types.
const (
	AssertBall         = "ball"
	AssertBallAbsent   = "ball_absent"
	AssertBallCount    = "ball_count"
	AssertWrapTime     = "wrap_time"
	AssertOutcomeCount = "outcome_count"
	AssertTraceOrder   = "trace_order"
)

// Pointer actions.
const (
	ActionDown    = "down"
	ActionMove    = "move"
	ActionHover   = "hover"
	ActionUp      = "up"
	ActionAddBall = "add_ball"
)

var knownAssertions = map[string]bool{
	AssertBall: true, AssertBallAbsent: true, AssertBallCount: true,
	AssertWrapTime: true, AssertOutcomeCount: true, AssertTraceOrder: true,
}

var knownActions = map[string]bool{
	ActionDown: true, ActionMove: true, ActionHover: true, ActionUp: true, ActionAddBall: true,
}

// SessionName returns the session, defaulted.
func (s *Scenario) SessionName() string {
	if s.Session == "" {
		return DefaultSession
	}
	return s.Session
}

// FieldSize returns the field, defaulted.
func (s *Scenario) FieldSize() geom.Field {
	if s.Field == nil {
		return geom.Field{Width: 1024, Height: 600}
	}
	return geom.Field{Width: s.Field.Width, Height: s.Field.Height}
}

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected so a typo cannot silently disable an assertion.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if f := s.FieldSize(); f.Width <= 0 || f.Height <= 2*geom.BallDiameter {
		return fmt.Errorf("field %dx%d too small", f.Width, f.Height)
	}
	if s.LeaseTicks < 0 {
		return fmt.Errorf("lease_ticks must not be negative")
	}
	if s.Replicas < 0 {
		return fmt.Errorf("replicas must not be negative")
	}

	for i, step := range s.Flow {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("flow step %d: %w", i, err)
		}
	}
	for i, a := range s.Assertions {
		if !knownAssertions[a.Type] {
			return fmt.Errorf("assertion %d: unknown type %q", i, a.Type)
		}
		if a.Type == AssertTraceOrder && len(a.Kinds) == 0 {
			return fmt.Errorf("assertion %d: trace_order needs kinds", i)
		}
	}
	return nil
}

func validateStep(step Step) error {
	switch {
	case step.Intent != "" && step.Participant != "":
		return fmt.Errorf("set either intent or participant, not both")
	case step.Intent != "":
		if step.Action != "" {
			return fmt.Errorf("action is only valid with participant")
		}
		if step.Expect != "" && step.Expect != string(model.OutcomeApplied) && step.Expect != string(model.OutcomeIgnored) {
			return fmt.Errorf("expect must be %q or %q", model.OutcomeApplied, model.OutcomeIgnored)
		}
	case step.Participant != "":
		if !knownActions[step.Action] {
			return fmt.Errorf("unknown action %q", step.Action)
		}
		if step.Expect != "" {
			return fmt.Errorf("expect is only valid with intent")
		}
	default:
		return fmt.Errorf("intent or participant is required")
	}
	return nil
}
