package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"slices"

	"github.com/roach88/musicbox/internal/engine"
	"github.com/roach88/musicbox/internal/ir"
	"github.com/roach88/musicbox/internal/model"
	"github.com/roach88/musicbox/internal/store"
	"github.com/roach88/musicbox/internal/view"
)

// Harness is the loopback sequencer for one scenario run.
type Harness struct {
	scenario    *Scenario
	session     string
	store       *store.Store
	replica     *engine.Replica
	clock       *engine.Clock
	controllers map[model.ParticipantID]*view.Controller
	result      *Result
	logger      *slog.Logger
}

// Run executes a scenario and evaluates its assertions. The returned error
// covers setup and harness failures; scenario failures are reported in
// Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		scenario:    scenario,
		session:     scenario.SessionName(),
		store:       st,
		clock:       engine.NewClock(),
		controllers: make(map[model.ParticipantID]*view.Controller),
		result:      NewResult(),
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	field := scenario.FieldSize()
	sess := store.Session{Name: h.session, Width: field.Width, Height: field.Height, LeaseTicks: scenario.LeaseTicks}
	if err := st.WriteSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("write session: %w", err)
	}

	h.replica = engine.NewReplica(h.session, field, scenario.LeaseTicks,
		engine.WithJournal(st),
		engine.WithLogger(h.logger),
		engine.WithObserver(h.observe),
	)

	if err := h.executeFlow(ctx); err != nil {
		return nil, fmt.Errorf("failed to execute flow: %w", err)
	}

	res := h.result
	res.State = h.replica.Snapshot()
	res.Digest = res.State.Digest()

	if err := h.checkReplay(ctx); err != nil {
		return nil, err
	}
	h.checkConvergence(ctx)

	for _, msg := range EvaluateAssertions(res, scenario.Assertions) {
		res.AddError(msg)
	}
	return res, nil
}

func (h *Harness) observe(in ir.Intent, outcome model.Outcome) {
	h.result.Trace = append(h.result.Trace, TraceEvent{
		Seq:     in.Seq,
		Kind:    in.Kind,
		Args:    in.Args,
		Outcome: outcome,
	})
}

// Publish sequences one intent and applies it before returning, so the next
// step sees its effect. Controllers publish through it.
func (h *Harness) Publish(ctx context.Context, kind ir.Kind, args ir.Object) error {
	in := ir.Intent{Session: h.session, Kind: kind, Args: args}
	if err := in.Stamp(h.clock.Next()); err != nil {
		return fmt.Errorf("stamp %s: %w", kind, err)
	}
	h.result.Intents = append(h.result.Intents, in)
	h.replica.Deliver(in)
	h.replica.Drain(ctx)
	h.logger.Debug("intent sequenced", "seq", in.Seq, "kind", kind)
	return nil
}

func (h *Harness) controller(p model.ParticipantID) *view.Controller {
	c, ok := h.controllers[p]
	if !ok {
		c = view.NewController(p, h.replica, h, view.WithControllerLogger(h.logger))
		h.controllers[p] = c
	}
	return c
}

func (h *Harness) executeFlow(ctx context.Context) error {
	for i, step := range h.scenario.Flow {
		before := len(h.result.Trace)

		if step.Intent != "" {
			args, err := ir.ObjectFromGo(step.Args)
			if err != nil {
				return fmt.Errorf("flow step %d: failed to convert args: %w", i, err)
			}
			if err := h.Publish(ctx, ir.Kind(step.Intent), args); err != nil {
				return fmt.Errorf("flow step %d: %w", i, err)
			}
			h.checkExpect(i, step)
			continue
		}

		if err := h.pointer(ctx, step); err != nil {
			return fmt.Errorf("flow step %d: %w", i, err)
		}
		if step.Publishes != nil {
			got := make([]string, 0, len(h.result.Trace)-before)
			for _, e := range h.result.Trace[before:] {
				got = append(got, string(e.Kind))
			}
			if !slices.Equal(got, step.Publishes) {
				h.result.AddError(fmt.Sprintf("flow step %d: %s %s published %v, expected %v",
					i, step.Participant, step.Action, got, step.Publishes))
			}
		}
	}
	return nil
}

func (h *Harness) checkExpect(i int, step Step) {
	if step.Expect == "" {
		return
	}
	last := h.result.Trace[len(h.result.Trace)-1]
	if string(last.Outcome) != step.Expect {
		h.result.AddError(fmt.Sprintf("flow step %d: %s seq %d was %s, expected %s",
			i, step.Intent, last.Seq, last.Outcome, step.Expect))
	}
}

func (h *Harness) pointer(ctx context.Context, step Step) error {
	c := h.controller(model.ParticipantID(step.Participant))
	pid := view.PointerID(step.Pointer)

	switch step.Action {
	case ActionDown:
		return c.PointerDown(ctx, pid, step.X, step.Y)
	case ActionMove:
		buttons := uint(1)
		if step.Buttons != nil {
			buttons = *step.Buttons
		}
		return c.PointerMove(ctx, pid, step.X, step.Y, buttons)
	case ActionHover:
		return c.PointerMove(ctx, pid, step.X, step.Y, 0)
	case ActionUp:
		return c.PointerUp(ctx, pid)
	case ActionAddBall:
		if step.X == 0 && step.Y == 0 {
			return c.AddBall(ctx)
		}
		return c.AddBallAt(ctx, step.X, step.Y)
	default:
		return fmt.Errorf("unknown action %q", step.Action)
	}
}

// checkReplay rebuilds the session from the journal and compares it with the
// live replica.
func (h *Harness) checkReplay(ctx context.Context) error {
	replayed, err := engine.VerifyReplay(ctx, h.store, h.session)
	if err != nil {
		return fmt.Errorf("replay journal: %w", err)
	}
	if replayed.Digest != h.result.Digest {
		h.result.AddError(fmt.Sprintf("replay digest %s differs from live digest %s",
			short(replayed.Digest), short(h.result.Digest)))
	}
	return nil
}

// checkConvergence feeds each extra replica the stream in a shuffled order
// with every third intent delivered twice.
func (h *Harness) checkConvergence(ctx context.Context) {
	intents := h.result.Intents
	field := h.scenario.FieldSize()
	for n := 1; n <= h.scenario.Replicas; n++ {
		rng := rand.New(rand.NewSource(h.scenario.Seed + int64(n)))

		stream := slices.Clone(intents)
		for i := 0; i < len(intents); i += 3 {
			stream = append(stream, intents[i])
		}
		rng.Shuffle(len(stream), func(i, j int) { stream[i], stream[j] = stream[j], stream[i] })

		r := engine.NewReplica(h.session, field, h.scenario.LeaseTicks, engine.WithLogger(h.logger))
		for _, in := range stream {
			r.Deliver(in)
		}
		r.Drain(ctx)

		if r.LastSeq() != int64(len(intents)) {
			h.result.AddError(fmt.Sprintf("replica %d stopped at seq %d of %d", n, r.LastSeq(), len(intents)))
			continue
		}
		if d := r.Snapshot().Digest(); d != h.result.Digest {
			h.result.AddError(fmt.Sprintf("replica %d diverged: digest %s, expected %s", n, short(d), short(h.result.Digest)))
		}
	}
}

func short(digest string) string {
	if len(digest) > 12 {
		return digest[:12]
	}
	return digest
}
