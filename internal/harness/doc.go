// Package harness runs music box scenarios against a real replica.
//
// A scenario is a YAML file describing a session, a flow of steps and a set
// of assertions on the resulting trace and final state. The harness plays
// the sequencer: every published intent is stamped with the next seq,
// journaled, delivered to the replica and applied before the next step runs.
//
// # Scenario Format
//
//	name: concurrent_grab
//	description: "Second grab of a held ball is ignored"
//	field: { width: 1024, height: 600 }
//	lease_ticks: 0
//	replicas: 3
//	seed: 7
//	flow:
//	  - intent: addBall
//	    args: { x: 40, y: 40 }
//	  - participant: p1
//	    action: down
//	    x: 60
//	    y: 60
//	    publishes: [grab]
//	  - intent: grab
//	    args: { viewId: p2, id: 1 }
//	    expect: ignored
//	assertions:
//	  - type: ball
//	    id: 1
//	    expect: { grabbedBy: p1 }
//	  - type: outcome_count
//	    kind: grab
//	    outcome: ignored
//	    count: 1
//
// A step either publishes a raw intent (intent, args, expect) or drives a
// participant's pointer controller (participant, action, pointer, x, y,
// buttons, publishes). Pointer actions are down, move, hover, up and
// add_ball.
//
// # Assertion Types
//
//   - ball: the ball with id exists and matches expect (subset of x, y,
//     grabbedBy, grabbedAt)
//   - ball_absent: no ball with id exists
//   - ball_count: exactly count balls exist
//   - wrap_time: the wrap timer equals count
//   - outcome_count: count intents of kind ended with outcome
//   - trace_order: kinds appear in the trace in this relative order
//
// Two checks always run. The journal is replayed twice and must reproduce the
// live digest, and when replicas is set each extra replica receives the
// stream shuffled with duplicates and must converge to the same digest.
package harness
