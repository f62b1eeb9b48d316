package audio

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/speaker"

	"github.com/roach88/musicbox/internal/view"
)

// Player mixes tones for live playback.
type Player struct {
	mu      sync.Mutex
	rate    beep.SampleRate
	mixer   *beep.Mixer
	started bool
	muted   bool
	logger  *slog.Logger
}

// NewPlayer creates a player. Nothing reaches the speaker until Start.
func NewPlayer(rate beep.SampleRate) *Player {
	if rate <= 0 {
		rate = DefaultSampleRate
	}
	return &Player{
		rate:   rate,
		mixer:  &beep.Mixer{},
		logger: slog.Default(),
	}
}

// Start opens the speaker and begins streaming the mixer.
func (p *Player) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return nil
	}
	if err := speaker.Init(p.rate, p.rate.N(100*time.Millisecond)); err != nil {
		return fmt.Errorf("init speaker: %w", err)
	}
	speaker.Play(p.mixer)
	p.started = true
	return nil
}

// Close silences the mixer and releases the speaker.
func (p *Player) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return
	}
	speaker.Clear()
	speaker.Close()
	p.started = false
}

// SetMuted drops every later note while muted.
func (p *Player) SetMuted(muted bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.muted = muted
}

// Play starts one tone per note, all at once.
func (p *Player) Play(notes []view.Note) {
	if len(notes) == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.muted {
		return
	}

	tones := make([]beep.Streamer, 0, len(notes))
	for _, n := range notes {
		t, err := NewTone(n.Frequency, p.rate)
		if err != nil {
			p.logger.Warn("tone skipped", "ball", n.Ball, "frequency", n.Frequency, "error", err)
			continue
		}
		tones = append(tones, t)
	}

	if p.started {
		speaker.Lock()
		defer speaker.Unlock()
	}
	p.mixer.Add(tones...)
}

// Voices returns the number of tones still sounding.
func (p *Player) Voices() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		speaker.Lock()
		defer speaker.Unlock()
	}
	return p.mixer.Len()
}

// Mixer exposes the underlying mix, for offline streaming.
func (p *Player) Mixer() beep.Streamer {
	return p.mixer
}
