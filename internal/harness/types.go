package harness

import (
	"github.com/roach88/musicbox/internal/ir"
	"github.com/roach88/musicbox/internal/model"
)

// TraceEvent is one applied intent as the replica saw it.
type TraceEvent struct {
	Seq     int64         `json:"seq"`
	Kind    ir.Kind       `json:"kind"`
	Args    ir.Object     `json:"args"`
	Outcome model.Outcome `json:"outcome"`
}

// Canonical encodes the event for golden comparison.
func (e TraceEvent) Canonical() ir.Object {
	args := e.Args
	if args == nil {
		args = ir.Object{}
	}
	return ir.Object{
		"seq":     ir.Int(e.Seq),
		"kind":    ir.String(e.Kind),
		"args":    args,
		"outcome": ir.String(e.Outcome),
	}
}

// Result is the outcome of one scenario run.
type Result struct {
	// Pass is true when every expectation, assertion and convergence check
	// held.
	Pass bool `json:"pass"`

	Trace  []TraceEvent `json:"trace"`
	Errors []string     `json:"errors,omitempty"`

	// State is the live replica's final state and Digest its hash.
	State  model.State `json:"state"`
	Digest string      `json:"digest"`

	// Intents is the sequenced stream, as journaled.
	Intents []ir.Intent `json:"-"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:  true,
		Trace: []TraceEvent{},
	}
}

// AddError records a failure.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Count returns how many trace events of kind ended with outcome. An empty
// outcome matches any.
func (r *Result) Count(kind ir.Kind, outcome model.Outcome) int {
	n := 0
	for _, e := range r.Trace {
		if e.Kind == kind && (outcome == "" || e.Outcome == outcome) {
			n++
		}
	}
	return n
}
