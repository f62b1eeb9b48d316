package audio

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/wav"
)

// Event is one tone at an offset into a recording.
type Event struct {
	At        time.Duration
	Frequency float64
}

// Length returns the duration of the recording: the last tone plus its
// ring-out.
func Length(events []Event) time.Duration {
	var end time.Duration
	for _, e := range events {
		if t := e.At + ToneLength; t > end {
			end = t
		}
	}
	return end
}

// schedule starts each event's tone when the stream reaches its offset.
type schedule struct {
	rate     beep.SampleRate
	events   []Event
	starts   []int
	next     int
	position int
	mixer    *beep.Mixer
	err      error
}

func newSchedule(events []Event, rate beep.SampleRate) *schedule {
	sorted := make([]Event, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].At < sorted[j].At })

	starts := make([]int, len(sorted))
	for i, e := range sorted {
		starts[i] = rate.N(e.At)
	}
	return &schedule{rate: rate, events: sorted, starts: starts, mixer: &beep.Mixer{}}
}

func (s *schedule) Stream(samples [][2]float64) (n int, ok bool) {
	for n < len(samples) {
		s.startDue()

		// Stream up to the next start so it lands on the right sample.
		end := len(samples)
		if s.next < len(s.starts) {
			if until := s.starts[s.next] - s.position; n+until < end {
				end = n + until
			}
		}
		seg := samples[n:end]
		m, _ := s.mixer.Stream(seg)
		for i := m; i < len(seg); i++ {
			seg[i] = [2]float64{}
		}
		n += len(seg)
		s.position += len(seg)
	}
	return n, true
}

func (s *schedule) startDue() {
	for s.next < len(s.events) && s.starts[s.next] <= s.position {
		t, err := NewTone(s.events[s.next].Frequency, s.rate)
		if err != nil {
			s.err = err
		} else {
			s.mixer.Add(t)
		}
		s.next++
	}
}

func (s *schedule) Err() error { return s.err }

// Stream returns the mixed events as a finite streamer.
func Stream(events []Event, rate beep.SampleRate) beep.Streamer {
	return beep.Take(rate.N(Length(events)), newSchedule(events, rate))
}

// RenderWAV writes the mixed events as 16-bit stereo WAV.
func RenderWAV(w io.WriteSeeker, events []Event, rate beep.SampleRate) error {
	if rate <= 0 {
		rate = DefaultSampleRate
	}
	format := beep.Format{SampleRate: rate, NumChannels: 2, Precision: 2}
	if err := wav.Encode(w, Stream(events, rate), format); err != nil {
		return fmt.Errorf("encode wav: %w", err)
	}
	return nil
}
