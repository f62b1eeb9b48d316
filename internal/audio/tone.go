// Package audio turns playhead notes into sound: a sine tone per swept
// ball, mixed live to the speaker or rendered offline to WAV.
package audio

import (
	"math"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/generators"
)

// Tone envelope. The gain ramps linearly from silence to Peak over Attack,
// then decays exponentially to Floor over Decay, and the tone stops.
const (
	Peak   = 0.2
	Floor  = 0.00001
	Attack = 100 * time.Millisecond
	Decay  = time.Second
)

// ToneLength is the total duration of one tone.
const ToneLength = Attack + Decay

// DefaultSampleRate is used for playback and rendering.
const DefaultSampleRate = beep.SampleRate(44100)

// envelope shapes a streamer with the tone gain curve and ends it after
// ToneLength.
type envelope struct {
	streamer beep.Streamer
	position int
	attack   int
	total    int
	// per-sample decay factor: Peak * k^decaySamples == Floor
	k    float64
	gain float64
}

func newEnvelope(s beep.Streamer, rate beep.SampleRate) *envelope {
	attack := rate.N(Attack)
	decay := rate.N(Decay)
	return &envelope{
		streamer: s,
		attack:   attack,
		total:    attack + decay,
		k:        math.Pow(Floor/Peak, 1/float64(decay)),
		gain:     Peak,
	}
}

func (e *envelope) Stream(samples [][2]float64) (n int, ok bool) {
	if e.position >= e.total {
		return 0, false
	}
	if left := e.total - e.position; len(samples) > left {
		samples = samples[:left]
	}
	n, ok = e.streamer.Stream(samples)
	for i := 0; i < n; i++ {
		g := e.gainAt()
		samples[i][0] *= g
		samples[i][1] *= g
		e.position++
	}
	return n, ok
}

func (e *envelope) gainAt() float64 {
	if e.position < e.attack {
		return Peak * float64(e.position) / float64(e.attack)
	}
	g := e.gain
	e.gain *= e.k
	return g
}

func (e *envelope) Err() error { return e.streamer.Err() }

// NewTone returns a finite sine tone at freq Hz with the tone envelope.
func NewTone(freq float64, rate beep.SampleRate) (beep.Streamer, error) {
	sine, err := generators.SineTone(rate, freq)
	if err != nil {
		return nil, err
	}
	return newEnvelope(sine, rate), nil
}

// GainAt returns the envelope gain t after the tone started. It is the
// closed form of what the streamer computes sample by sample.
func GainAt(t time.Duration) float64 {
	switch {
	case t < 0 || t >= ToneLength:
		return 0
	case t < Attack:
		return Peak * float64(t) / float64(Attack)
	default:
		frac := float64(t-Attack) / float64(Decay)
		return Peak * math.Pow(Floor/Peak, frac)
	}
}
