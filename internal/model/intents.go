package model

import (
	"github.com/roach88/musicbox/internal/ir"
)

// Intent kinds. These are wire names; changing one breaks old journals.
const (
	KindAddBall    ir.Kind = "addBall"
	KindGrab       ir.Kind = "grab"
	KindMove       ir.Kind = "move"
	KindRelease    ir.Kind = "release"
	KindRemoveBall ir.Kind = "removeBall"
	KindTick       ir.Kind = "tick"
	KindLeave      ir.Kind = "leave"
)

// Kinds lists every intent kind the model understands.
var Kinds = []ir.Kind{KindAddBall, KindGrab, KindMove, KindRelease, KindRemoveBall, KindTick, KindLeave}

// Participant-originated kinds. Tick and leave come only from the sequencer.
var participantKinds = map[ir.Kind]bool{
	KindAddBall:    true,
	KindGrab:       true,
	KindMove:       true,
	KindRelease:    true,
	KindRemoveBall: true,
}

// IsParticipantKind reports whether a participant may publish kind.
func IsParticipantKind(kind ir.Kind) bool {
	return participantKinds[kind]
}

// Outcome records what an intent did. It is for traces and logs only: the
// model state is the same on every replica regardless.
type Outcome string

const (
	OutcomeApplied Outcome = "applied"
	OutcomeIgnored Outcome = "ignored"
)

func outcome(changed bool) Outcome {
	if changed {
		return OutcomeApplied
	}
	return OutcomeIgnored
}

// AddBallArgs builds the payload of an addBall intent.
func AddBallArgs(x, y int64) ir.Object {
	return ir.Object{"x": ir.Int(x), "y": ir.Int(y)}
}

// GrabArgs builds the payload of a grab intent.
func GrabArgs(p ParticipantID, id BallID) ir.Object {
	return ownedArgs(p, id)
}

// MoveArgs builds the payload of a move intent.
func MoveArgs(p ParticipantID, id BallID, x, y int64) ir.Object {
	args := ownedArgs(p, id)
	args["x"] = ir.Int(x)
	args["y"] = ir.Int(y)
	return args
}

// ReleaseArgs builds the payload of a release intent.
func ReleaseArgs(p ParticipantID, id BallID) ir.Object {
	return ownedArgs(p, id)
}

// RemoveBallArgs builds the payload of a removeBall intent.
func RemoveBallArgs(p ParticipantID, id BallID) ir.Object {
	return ownedArgs(p, id)
}

// LeaveArgs builds the payload of a leave intent.
func LeaveArgs(p ParticipantID) ir.Object {
	return ir.Object{"viewId": ir.String(p)}
}

func ownedArgs(p ParticipantID, id BallID) ir.Object {
	return ir.Object{"viewId": ir.String(p), "id": ir.Int(id)}
}

// Apply decodes one intent and runs its handler. Unknown kinds and payloads
// with missing or mistyped fields are ignored, exactly like a rejected
// command.
func (m *Model) Apply(in ir.Intent) Outcome {
	args := in.Args
	switch in.Kind {
	case KindAddBall:
		x, okX := args.Int64("x")
		y, okY := args.Int64("y")
		if !okX || !okY {
			return OutcomeIgnored
		}
		m.AddBall(x, y)
		return OutcomeApplied

	case KindGrab:
		p, id, ok := decodeOwned(args)
		return outcome(ok && m.Grab(p, id))

	case KindMove:
		p, id, ok := decodeOwned(args)
		x, okX := args.Int64("x")
		y, okY := args.Int64("y")
		return outcome(ok && okX && okY && m.Move(p, id, x, y))

	case KindRelease:
		p, id, ok := decodeOwned(args)
		return outcome(ok && m.Release(p, id))

	case KindRemoveBall:
		p, id, ok := decodeOwned(args)
		return outcome(ok && m.RemoveBall(p, id))

	case KindLeave:
		p, ok := args.Str("viewId")
		return outcome(ok && m.Leave(ParticipantID(p)))

	case KindTick:
		return outcome(m.Tick())

	default:
		return OutcomeIgnored
	}
}

func decodeOwned(args ir.Object) (ParticipantID, BallID, bool) {
	p, okP := args.Str("viewId")
	id, okID := args.Int64("id")
	return ParticipantID(p), BallID(id), okP && okID
}
