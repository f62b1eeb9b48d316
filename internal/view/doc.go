// Package view is the participant-local side of a music box session.
//
// Controller turns raw pointer events into intents. It keeps a table of
// in-progress drags keyed by pointer and checks ownership optimistically so
// a participant does not publish moves for a ball somebody else holds. The
// model repeats every check when the intent comes back in order; the
// controller only saves network chatter.
//
// Playhead converts replicated wrap ticks into a bar sweeping across the
// field in real time and reports which balls it crossed since the previous
// frame. Neither type is replicated and neither touches the model directly.
package view
