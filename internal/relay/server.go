// Package relay is a reference ordered-broadcast service for music box
// sessions. Participants connect over a websocket, publish intents, and
// receive every session's intent in one total order stamped by the relay.
//
// The relay is also the session's only time source: it sequences a tick
// intent every 1/tps seconds so that all replicas wrap together.
package relay

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roach88/musicbox/internal/config"
	"github.com/roach88/musicbox/internal/ir"
	"github.com/roach88/musicbox/internal/model"
	"github.com/roach88/musicbox/internal/store"
)

// Server hosts any number of sessions with the same settings.
type Server struct {
	cfg      config.Config
	journal  Journal
	ids      IDGenerator
	logger   *slog.Logger
	upgrader websocket.Upgrader

	ctx      context.Context
	mu       sync.Mutex
	sessions map[string]*Session
}

// Option configures a Server.
type Option func(*Server)

// WithJournal persists sessions. The default keeps them in memory.
func WithJournal(j Journal) Option {
	return func(s *Server) {
		s.journal = j
	}
}

// WithIDGenerator replaces UUIDv7 participant ids.
func WithIDGenerator(g IDGenerator) Option {
	return func(s *Server) {
		s.ids = g
	}
}

// WithLogger overrides slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// NewServer creates a relay. Sessions live until ctx is cancelled.
func NewServer(ctx context.Context, cfg config.Config, opts ...Option) *Server {
	s := &Server{
		cfg:      cfg,
		journal:  store.NewMemory(),
		ids:      UUIDGenerator{},
		logger:   slog.Default(),
		ctx:      ctx,
		sessions: make(map[string]*Session),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the relay's HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/sessions", s.handleSessions)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

// ListenAndServe serves on cfg.Listen until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("relay listening", "addr", s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return s.drain(shutdownCtx)
	}
}

// drain waits for every session to sequence its final leaves, so the
// journal can be closed after ListenAndServe returns.
func (s *Server) drain(ctx context.Context) error {
	s.mu.Lock()
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		select {
		case <-sess.done:
		case <-ctx.Done():
			return fmt.Errorf("shutdown: session %s: %w", sess.Name(), ctx.Err())
		}
	}
	return nil
}

// Session returns the named session, starting it on first use.
func (s *Server) Session(name string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[name]; ok {
		return sess, nil
	}
	info := store.Session{
		Name:       name,
		Width:      s.cfg.Width,
		Height:     s.cfg.Height,
		LeaseTicks: s.cfg.LeaseTicks,
	}
	sess, err := newSession(s.ctx, info, s.cfg.TPS, s.journal, s.ids, s.logger)
	if err != nil {
		return nil, fmt.Errorf("start session %s: %w", name, err)
	}
	s.sessions[name] = sess
	go sess.Run(s.ctx)
	return sess, nil
}

// SessionInfo describes a live session.
type SessionInfo struct {
	Name         string `json:"name"`
	Participants int    `json:"participants"`
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	live := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		live = append(live, sess)
	}
	s.mu.Unlock()
	sort.Slice(live, func(i, j int) bool { return live[i].Name() < live[j].Name() })

	out := make([]SessionInfo, 0, len(live))
	for _, sess := range live {
		n, err := sess.Participants(r.Context())
		if err != nil {
			continue
		}
		out = append(out, SessionInfo{Name: sess.Name(), Participants: n})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	conn.SetReadLimit(readLimit)

	hello, err := s.readHello(conn)
	if err != nil {
		s.reject(conn, err)
		return
	}
	sess, err := s.Session(hello.Session)
	if err != nil {
		s.logger.Error("session unavailable", "session", hello.Session, "error", err)
		s.reject(conn, &ProtocolError{Code: CodeUnavailable, Message: "session unavailable"})
		return
	}

	p := newPeer(conn, s.cfg.EventRateLimit)
	if _, err := sess.join(r.Context(), p); err != nil {
		s.reject(conn, err)
		return
	}
	go p.writeLoop()

	s.readLoop(r.Context(), sess, p)
	if err := sess.send(context.Background(), leaveCmd{viewID: p.viewID}); err != nil {
		p.close()
	}
	<-p.done
}

func (s *Server) readHello(conn *websocket.Conn) (Hello, error) {
	_ = conn.SetReadDeadline(time.Now().Add(helloWait))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return Hello{}, &ProtocolError{Code: CodeBadMessage, Message: "no hello"}
	}
	env, err := DecodeEnvelope(msg)
	if err != nil || env.T != MsgHello {
		return Hello{}, &ProtocolError{Code: CodeBadMessage, Message: "expected hello"}
	}
	hello, err := DecodePayload[Hello](env)
	if err != nil {
		return Hello{}, &ProtocolError{Code: CodeBadMessage, Message: err.Error()}
	}
	if hello.V != ProtocolVersion {
		return Hello{}, &ProtocolError{Code: CodeVersion, Message: fmt.Sprintf("want protocol %d, got %d", ProtocolVersion, hello.V)}
	}
	if hello.Session == "" {
		hello.Session = s.cfg.Name
	}
	if !s.authorized(hello) {
		return Hello{}, &ProtocolError{Code: CodeAuth, Message: "bad credentials"}
	}
	return hello, nil
}

func (s *Server) authorized(h Hello) bool {
	return secretMatches(s.cfg.AppID, h.AppID) &&
		secretMatches(s.cfg.Password, h.Password) &&
		secretMatches(s.cfg.APIKey, h.APIKey)
}

// secretMatches accepts anything when no secret is configured.
func secretMatches(want, got string) bool {
	if want == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}

// reject answers a connection that never joined and closes it.
func (s *Server) reject(conn *websocket.Conn, err error) {
	var pe *ProtocolError
	if !errors.As(err, &pe) {
		pe = &ProtocolError{Code: CodeUnavailable, Message: err.Error()}
	}
	s.logger.Warn("connection rejected", "remote", conn.RemoteAddr().String(), "code", pe.Code, "message", pe.Message)
	if frame, encErr := Encode(MsgError, pe); encErr == nil {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = conn.WriteMessage(websocket.TextMessage, frame)
	}
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, pe.Code))
	_ = conn.Close()
}

// readLoop forwards a participant's publishes to the sequencer until the
// connection drops.
func (s *Server) readLoop(ctx context.Context, sess *Session, p *peer) {
	logger := s.logger.With("session", sess.Name(), "view_id", p.viewID)
	_ = p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Info("connection lost", "error", err)
			}
			return
		}
		_ = p.conn.SetReadDeadline(time.Now().Add(pongWait))

		cmd, perr := s.decodePublish(msg, p)
		if perr != nil {
			logger.Debug("publish refused", "code", perr.Code, "message", perr.Message)
			if frame, err := Encode(MsgError, perr); err == nil {
				p.enqueue(frame, true)
			}
			continue
		}
		if err := sess.send(ctx, cmd); err != nil {
			return
		}
	}
}

func (s *Server) decodePublish(msg []byte, p *peer) (publishCmd, *ProtocolError) {
	env, err := DecodeEnvelope(msg)
	if err != nil {
		return publishCmd{}, &ProtocolError{Code: CodeBadMessage, Message: err.Error()}
	}
	if env.T != MsgPublish {
		return publishCmd{}, &ProtocolError{Code: CodeBadMessage, Message: fmt.Sprintf("unexpected %q", env.T)}
	}
	pub, err := DecodePayload[Publish](env)
	if err != nil {
		return publishCmd{}, &ProtocolError{Code: CodeBadMessage, Message: err.Error()}
	}
	if !model.IsParticipantKind(pub.Kind) {
		return publishCmd{}, &ProtocolError{Code: CodeForbidden, Message: fmt.Sprintf("kind %q", pub.Kind)}
	}
	if !p.limiter.Allow() {
		return publishCmd{}, &ProtocolError{Code: CodeRateLimited, Message: "slow down"}
	}
	return publishCmd{viewID: p.viewID, kind: pub.Kind, args: withViewID(pub.Kind, pub.Args, p.viewID)}, nil
}

// withViewID stamps the sender's id on ownership-bearing payloads, so a
// participant cannot act under someone else's name.
func withViewID(kind ir.Kind, args ir.Object, viewID string) ir.Object {
	out := make(ir.Object, len(args)+1)
	for k, v := range args {
		out[k] = v
	}
	if kind != model.KindAddBall {
		out["viewId"] = ir.String(viewID)
	}
	return out
}
