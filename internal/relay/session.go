package relay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/musicbox/internal/engine"
	"github.com/roach88/musicbox/internal/ir"
	"github.com/roach88/musicbox/internal/model"
	"github.com/roach88/musicbox/internal/store"
)

// Journal is everything the sequencer needs from storage. *store.Store and
// *store.Memory implement it.
type Journal interface {
	WriteSession(ctx context.Context, sess store.Session) error
	ReadSession(ctx context.Context, name string) (store.Session, error)
	WriteIntent(ctx context.Context, in ir.Intent) error
	ReadIntents(ctx context.Context, session string, afterSeq int64) ([]ir.Intent, error)
	LastSeq(ctx context.Context, session string) (int64, error)
}

// Sequencer commands. All of a session's state is owned by its Run
// goroutine; everything else talks to it through the inbox.
type (
	joinCmd struct {
		peer  *peer
		reply chan<- joinResult
	}
	joinResult struct {
		welcome Welcome
		err     error
	}
	publishCmd struct {
		viewID string
		kind   ir.Kind
		args   ir.Object
	}
	leaveCmd struct {
		viewID string
	}
	countCmd struct {
		reply chan<- int
	}
)

// Session is the ordered broadcast service for one session: it stamps each
// intent with the next seq, journals it, and fans it out to every
// participant, the publisher included.
type Session struct {
	info    store.Session
	tps     float64
	period  time.Duration
	journal Journal
	ids     IDGenerator
	logger  *slog.Logger

	inbox chan any
	done  chan struct{}

	// Run goroutine only
	clock *engine.Clock
	peers map[string]*peer
	order []string // join order, for deterministic fan-out
}

func newSession(ctx context.Context, info store.Session, tps float64, j Journal, ids IDGenerator, logger *slog.Logger) (*Session, error) {
	if err := j.WriteSession(ctx, info); err != nil {
		return nil, err
	}
	// An existing session keeps the field it was created with.
	stored, err := j.ReadSession(ctx, info.Name)
	if err != nil {
		return nil, err
	}
	head, err := j.LastSeq(ctx, info.Name)
	if err != nil {
		return nil, err
	}
	s := &Session{
		info:    stored,
		tps:     tps,
		period:  time.Duration(float64(time.Second) / tps),
		journal: j,
		ids:     ids,
		logger:  logger.With("session", info.Name),
		inbox:   make(chan any, 256),
		done:    make(chan struct{}),
		clock:   engine.NewClockAt(head),
		peers:   make(map[string]*peer),
	}
	if err := s.releaseOrphans(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// releaseOrphans sequences a leave for every participant that still holds a
// ball at the journal head. Those participants belonged to an earlier relay
// run and can never release on their own.
func (s *Session) releaseOrphans(ctx context.Context) error {
	if s.clock.Current() == 0 {
		return nil
	}
	res, err := engine.Replay(ctx, s.journal, s.info.Name)
	if err != nil {
		return fmt.Errorf("resume session %q: %w", s.info.Name, err)
	}
	seen := make(map[model.ParticipantID]bool)
	for _, b := range res.Model.Balls() {
		if !b.Grabbed() || seen[b.GrabbedBy] {
			continue
		}
		seen[b.GrabbedBy] = true
		s.logger.Info("releasing orphaned grab", "view_id", b.GrabbedBy, "ball", b.ID)
		s.sequence(ctx, model.KindLeave, model.LeaveArgs(b.GrabbedBy))
	}
	return nil
}

// Name returns the session name.
func (s *Session) Name() string {
	return s.info.Name
}

// Run sequences commands and ticks until ctx is cancelled. Ticks are only
// generated while someone is connected.
func (s *Session) Run(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	s.logger.Info("session started", "head", s.clock.Current(), "tps", s.tps)
	for {
		select {
		case <-ctx.Done():
			// Every participant leaves through the journal, so a relay
			// restarted over it starts with nothing held.
			stopCtx := context.WithoutCancel(ctx)
			for _, id := range append([]string(nil), s.order...) {
				s.handleLeave(stopCtx, id)
			}
			s.logger.Info("session stopped", "head", s.clock.Current())
			return
		case cmd := <-s.inbox:
			s.handle(ctx, cmd)
		case <-ticker.C:
			if len(s.peers) > 0 {
				s.sequence(ctx, model.KindTick, ir.Object{})
			}
		}
	}
}

func (s *Session) send(ctx context.Context, cmd any) error {
	select {
	case s.inbox <- cmd:
		return nil
	case <-s.done:
		return &ProtocolError{Code: CodeUnavailable, Message: "session closed"}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// join registers p and returns its welcome. The backlog and the synced
// marker are already queued on p when join returns.
func (s *Session) join(ctx context.Context, p *peer) (Welcome, error) {
	reply := make(chan joinResult, 1)
	if err := s.send(ctx, joinCmd{peer: p, reply: reply}); err != nil {
		return Welcome{}, err
	}
	select {
	case r := <-reply:
		return r.welcome, r.err
	case <-s.done:
		return Welcome{}, &ProtocolError{Code: CodeUnavailable, Message: "session closed"}
	case <-ctx.Done():
		return Welcome{}, ctx.Err()
	}
}

// Participants returns the number of connected participants.
func (s *Session) Participants(ctx context.Context) (int, error) {
	reply := make(chan int, 1)
	if err := s.send(ctx, countCmd{reply: reply}); err != nil {
		return 0, err
	}
	select {
	case n := <-reply:
		return n, nil
	case <-s.done:
		return 0, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (s *Session) handle(ctx context.Context, cmd any) {
	switch c := cmd.(type) {
	case joinCmd:
		c.reply <- s.handleJoin(ctx, c.peer)
	case publishCmd:
		if _, ok := s.peers[c.viewID]; !ok {
			return
		}
		s.sequence(ctx, c.kind, c.args)
	case leaveCmd:
		s.handleLeave(ctx, c.viewID)
	case countCmd:
		c.reply <- len(s.peers)
	}
}

func (s *Session) handleJoin(ctx context.Context, p *peer) joinResult {
	head := s.clock.Current()
	backlog, err := s.journal.ReadIntents(ctx, s.info.Name, 0)
	if err != nil {
		return joinResult{err: fmt.Errorf("read backlog: %w", err)}
	}

	p.viewID = s.ids.Generate()
	w := Welcome{
		ViewID:     p.viewID,
		Session:    s.info.Name,
		Width:      s.info.Width,
		Height:     s.info.Height,
		LeaseTicks: s.info.LeaseTicks,
		TPS:        s.tps,
		Head:       head,
	}

	frame, err := Encode(MsgWelcome, w)
	if err != nil {
		return joinResult{err: err}
	}
	p.enqueue(frame, false)
	for _, in := range backlog {
		if in.Seq > head {
			break
		}
		frame, err := Encode(MsgIntent, in)
		if err != nil {
			return joinResult{err: err}
		}
		p.enqueue(frame, false)
	}
	frame, err = Encode(MsgSynced, Synced{Head: head})
	if err != nil {
		return joinResult{err: err}
	}
	p.enqueue(frame, false)

	s.peers[p.viewID] = p
	s.order = append(s.order, p.viewID)
	s.logger.Info("participant joined", "view_id", p.viewID, "head", head, "backlog", len(backlog), "participants", len(s.peers))
	return joinResult{welcome: w}
}

func (s *Session) handleLeave(ctx context.Context, viewID string) {
	p, ok := s.peers[viewID]
	if !ok {
		return
	}
	p.close()
	delete(s.peers, viewID)
	for i, id := range s.order {
		if id == viewID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.logger.Info("participant left", "view_id", viewID, "participants", len(s.peers))
	s.sequence(ctx, model.KindLeave, model.LeaveArgs(model.ParticipantID(viewID)))
}

// sequence stamps, journals and broadcasts one intent. An intent that
// cannot be journaled is not broadcast, so late joiners never miss one
// that live replicas applied.
func (s *Session) sequence(ctx context.Context, kind ir.Kind, args ir.Object) {
	in := ir.Intent{Session: s.info.Name, Kind: kind, Args: args}
	if err := in.Stamp(s.clock.Current() + 1); err != nil {
		s.logger.Error("intent dropped: cannot stamp", "kind", kind, "error", err)
		return
	}
	if err := s.journal.WriteIntent(ctx, in); err != nil {
		s.logger.Error("intent dropped: journal write failed", "seq", in.Seq, "kind", kind, "error", err)
		return
	}
	s.clock.Next()

	frame, err := Encode(MsgIntent, in)
	if err != nil {
		s.logger.Error("intent not broadcast: encode failed", "seq", in.Seq, "error", err)
		return
	}
	var slow []string
	for _, id := range s.order {
		if !s.peers[id].enqueue(frame, true) {
			slow = append(slow, id)
		}
	}
	s.logger.Debug("intent sequenced", "seq", in.Seq, "kind", kind, "view_id", in.ViewID())

	for _, id := range slow {
		s.logger.Warn("dropping participant: outbox full", "view_id", id)
		s.handleLeave(ctx, id)
	}
}
