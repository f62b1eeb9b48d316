// Package tui draws a music box session in a terminal and turns mouse input
// into pointer events for a view.Controller.
//
// The field is scaled onto the terminal grid minus one status line and a
// narrow gutter on the right. A cell maps to the pixel at its centre, so a
// click lands inside the ball drawn in that cell. Gutter cells map past the
// field's right edge: dropping a ball there removes it.
package tui

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/roach88/musicbox/internal/geom"
	"github.com/roach88/musicbox/internal/model"
	"github.com/roach88/musicbox/internal/view"
)

// FrameInterval is the redraw and playhead cadence, about 60 frames a second.
const FrameInterval = 16 * time.Millisecond

// Gutter is the number of columns right of the field.
const Gutter = 4

// mousePointer is the only pointer a terminal has.
const mousePointer view.PointerID = 1

// NotePlayer sounds the notes the playhead swept. *audio.Player implements it.
type NotePlayer interface {
	Play(notes []view.Note)
	SetMuted(muted bool)
}

type nopPlayer struct{}

func (nopPlayer) Play([]view.Note) {}
func (nopPlayer) SetMuted(bool)    {}

// App is the terminal presentation for one participant.
type App struct {
	screen     tcell.Screen
	state      view.StateReader
	controller *view.Controller
	playhead   *view.Playhead
	player     NotePlayer
	logger     *slog.Logger

	title   string
	muted   bool
	pressed bool
	lastErr error
}

// Option configures an App.
type Option func(*App)

// WithPlayer routes swept notes to p.
func WithPlayer(p NotePlayer) Option {
	return func(a *App) { a.player = p }
}

// WithLogger sets the logger. The terminal owns stdout, so logs should go to
// a file or be discarded.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.logger = l }
}

// WithMuted starts the app muted.
func WithMuted(muted bool) Option {
	return func(a *App) { a.muted = muted }
}

// WithTitle sets the status line prefix.
func WithTitle(title string) Option {
	return func(a *App) { a.title = title }
}

// New creates an App over an initialized screen.
func New(screen tcell.Screen, state view.StateReader, controller *view.Controller, playhead *view.Playhead, opts ...Option) *App {
	a := &App{
		screen:     screen,
		state:      state,
		controller: controller,
		playhead:   playhead,
		player:     nopPlayer{},
		logger:     slog.Default(),
		title:      "musicbox",
	}
	for _, opt := range opts {
		opt(a)
	}
	a.player.SetMuted(a.muted)
	return a
}

// Run polls terminal events and redraws every frame until the user quits or
// ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.screen.EnableMouse(tcell.MouseButtonEvents | tcell.MouseDragEvents)
	a.screen.HideCursor()

	events := make(chan tcell.Event, 100)
	quit := make(chan struct{})
	go a.screen.ChannelEvents(events, quit)
	defer close(quit)

	ticker := time.NewTicker(FrameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if !a.HandleEvent(ctx, ev) {
				return nil
			}
		case <-ticker.C:
			a.player.Play(a.playhead.Advance(a.state.Snapshot()))
			a.Draw()
		}
	}
}

// HandleEvent applies one terminal event and reports whether the app should
// keep running.
func (a *App) HandleEvent(ctx context.Context, ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		return a.handleKey(ctx, ev)
	case *tcell.EventMouse:
		a.handleMouse(ctx, ev)
	case *tcell.EventResize:
		a.screen.Sync()
	}
	return true
}

func (a *App) handleKey(ctx context.Context, ev *tcell.EventKey) bool {
	switch ev.Key() {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		return false
	case tcell.KeyEnter:
		a.report(a.controller.AddBall(ctx))
	case tcell.KeyRune:
		switch ev.Rune() {
		case 'q':
			return false
		case 'a', ' ':
			a.report(a.controller.AddBall(ctx))
		case 'm':
			a.muted = !a.muted
			a.player.SetMuted(a.muted)
		}
	}
	return true
}

// handleMouse derives pointer down/move/up from the button mask: tcell
// reports positions and held buttons, not transitions.
func (a *App) handleMouse(ctx context.Context, ev *tcell.EventMouse) {
	cx, cy := ev.Position()
	x, y := a.toField(cx, cy)
	held := ev.Buttons()&tcell.Button1 != 0

	switch {
	case held && !a.pressed:
		a.pressed = true
		a.report(a.controller.PointerDown(ctx, mousePointer, x, y))
	case held:
		a.report(a.controller.PointerMove(ctx, mousePointer, x, y, 1))
	case a.pressed:
		a.pressed = false
		a.report(a.controller.PointerMove(ctx, mousePointer, x, y, 1))
		a.report(a.controller.PointerUp(ctx, mousePointer))
	}
}

func (a *App) report(err error) {
	if err == nil {
		return
	}
	a.lastErr = err
	a.logger.Warn("publish failed", "error", err)
}

// grid returns the screen width and the field area: every row but the
// status line, every column but the gutter.
func (a *App) grid() (screenCols, cols, rows int) {
	screenCols, rows = a.screen.Size()
	rows--
	cols = screenCols - Gutter
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}
	return screenCols, cols, rows
}

// toField maps a cell to the field pixel at its centre.
func (a *App) toField(cx, cy int) (int64, int64) {
	f := a.state.Snapshot().Field
	_, cols, rows := a.grid()
	x := (int64(cx)*f.Width + f.Width/2) / int64(cols)
	y := (int64(cy)*f.Height + f.Height/2) / int64(rows)
	return x, y
}

// toCell maps a field pixel to its cell.
func (a *App) toCell(f geom.Field, x, y int64) (int, int) {
	_, cols, rows := a.grid()
	if f.Width <= 0 || f.Height <= 0 {
		return 0, 0
	}
	return int(x * int64(cols) / f.Width), int(y * int64(rows) / f.Height)
}

var (
	styleField   = tcell.StyleDefault
	styleBar     = tcell.StyleDefault.Foreground(tcell.ColorDarkCyan)
	styleFree    = tcell.StyleDefault.Foreground(tcell.ColorGreen)
	styleMine    = tcell.StyleDefault.Foreground(tcell.ColorYellow).Bold(true)
	styleTheirs  = tcell.StyleDefault.Foreground(tcell.ColorRed)
	styleOutside = tcell.StyleDefault.Foreground(tcell.ColorGray)
	styleStatus  = tcell.StyleDefault.Reverse(true)
)

// BallRune marks a ball's centre.
const BallRune = '●'

// Draw renders the field, the playhead bar and the status line.
func (a *App) Draw() {
	s := a.state.Snapshot()
	screenCols, cols, rows := a.grid()

	a.screen.Clear()
	a.screen.Fill(' ', styleField)
	for x := cols; x < screenCols; x++ {
		for y := 0; y < rows; y++ {
			a.screen.SetContent(x, y, '░', nil, styleOutside)
		}
	}

	if s.Field.Width > 0 {
		bar := int(a.playhead.Position() * float64(cols) / float64(s.Field.Width))
		if bar < cols {
			for y := 0; y < rows; y++ {
				a.screen.SetContent(bar, y, '│', nil, styleBar)
			}
		}
	}

	for _, b := range s.Balls {
		cx, cy := a.toCell(s.Field, b.X+geom.BallDiameter, b.Y+geom.BallDiameter)
		if cx >= screenCols {
			cx = screenCols - 1
		}
		if cy >= rows {
			cy = rows - 1
		}
		a.screen.SetContent(cx, cy, BallRune, nil, a.ballStyle(s.Field, b))
	}

	a.drawStatus(s, screenCols, rows)
	a.screen.Show()
}

func (a *App) ballStyle(f geom.Field, b model.Ball) tcell.Style {
	switch {
	case b.X > f.Width:
		return styleOutside
	case b.GrabbedBy == a.controller.Self():
		return styleMine
	case b.Grabbed():
		return styleTheirs
	default:
		return styleFree
	}
}

func (a *App) drawStatus(s model.State, cols, row int) {
	status := fmt.Sprintf(" %s | %s | balls %d | wrap %d", a.title, a.controller.Self(), len(s.Balls), s.WrapTime)
	if a.muted {
		status += " | muted"
	}
	if a.lastErr != nil {
		status += " | " + a.lastErr.Error()
	}
	status += " | a: add  m: mute  q: quit"

	x := 0
	for _, r := range status {
		if x >= cols {
			break
		}
		a.screen.SetContent(x, row, r, nil, styleStatus)
		x++
	}
	for ; x < cols; x++ {
		a.screen.SetContent(x, row, ' ', nil, styleStatus)
	}
}
