package audio

import (
	"time"

	"github.com/roach88/musicbox/internal/ir"
	"github.com/roach88/musicbox/internal/model"
	"github.com/roach88/musicbox/internal/view"
)

// DefaultFrame is the playhead refresh interval used for offline timelines.
const DefaultFrame = 10 * time.Millisecond

// Timeline replays intents into m and records what a participant's playhead
// would have played. Intents carry no wall time, so each tick is taken to
// arrive exactly one period after the previous one, and everything between
// two ticks is applied at the first of them.
func Timeline(m *model.Model, intents []ir.Intent, period, frame time.Duration) []Event {
	if period <= 0 {
		return nil
	}
	if frame <= 0 {
		frame = DefaultFrame
	}

	var now time.Duration
	clock := view.ClockFunc(func() time.Time { return time.Unix(0, 0).Add(now) })
	ph := view.NewPlayhead(period, clock)

	var events []Event
	record := func(notes []view.Note) {
		for _, n := range notes {
			events = append(events, Event{At: now, Frequency: n.Frequency})
		}
	}

	ph.Advance(m.Snapshot())
	i := 0
	for ; i < len(intents) && intents[i].Kind != model.KindTick; i++ {
		m.Apply(intents[i])
	}
	for i < len(intents) {
		m.Apply(intents[i])
		i++
		// Everything up to the next tick lands at the same instant.
		for ; i < len(intents) && intents[i].Kind != model.KindTick; i++ {
			m.Apply(intents[i])
		}
		record(ph.Advance(m.Snapshot()))
		for elapsed := frame; elapsed <= period; elapsed += frame {
			now += frame
			record(ph.Advance(m.Snapshot()))
		}
	}
	return events
}
