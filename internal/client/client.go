// Package client connects a local replica to a relay.
//
// Conn is both halves of the ordered broadcast boundary for one
// participant: it delivers every sequenced intent to an engine.Replica and
// publishes the participant's own intents back to the relay.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roach88/musicbox/internal/engine"
	"github.com/roach88/musicbox/internal/geom"
	"github.com/roach88/musicbox/internal/ir"
	"github.com/roach88/musicbox/internal/model"
	"github.com/roach88/musicbox/internal/relay"
)

const writeWait = 10 * time.Second

// Conn is a joined participant.
type Conn struct {
	ws      *websocket.Conn
	welcome relay.Welcome
	replica *engine.Replica
	logger  *slog.Logger

	writeMu sync.Mutex
}

// Options for Dial.
type Options struct {
	Hello   relay.Hello
	Replica []engine.ReplicaOption
	Logger  *slog.Logger
	Dialer  *websocket.Dialer
}

// Dial connects to url, performs the hello/welcome handshake, and creates
// the replica the session will be delivered into.
func Dial(ctx context.Context, url string, opts Options) (*Conn, error) {
	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ws, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	hello := opts.Hello
	if hello.V == 0 {
		hello.V = relay.ProtocolVersion
	}
	c := &Conn{ws: ws, logger: logger}
	if err := c.write(relay.MsgHello, hello); err != nil {
		ws.Close()
		return nil, err
	}

	w, err := c.readWelcome(ctx)
	if err != nil {
		ws.Close()
		return nil, err
	}
	c.welcome = w
	c.logger = logger.With("session", w.Session, "view_id", w.ViewID)

	replicaOpts := append([]engine.ReplicaOption{engine.WithLogger(c.logger)}, opts.Replica...)
	c.replica = engine.NewReplica(w.Session, geom.Field{Width: w.Width, Height: w.Height}, w.LeaseTicks, replicaOpts...)
	c.logger.Info("joined session", "head", w.Head, "tps", w.TPS)
	return c, nil
}

func (c *Conn) readWelcome(ctx context.Context) (relay.Welcome, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.ws.SetReadDeadline(deadline)
		defer c.ws.SetReadDeadline(time.Time{})
	}
	_, msg, err := c.ws.ReadMessage()
	if err != nil {
		return relay.Welcome{}, fmt.Errorf("read welcome: %w", err)
	}
	env, err := relay.DecodeEnvelope(msg)
	if err != nil {
		return relay.Welcome{}, err
	}
	switch env.T {
	case relay.MsgWelcome:
		return relay.DecodePayload[relay.Welcome](env)
	case relay.MsgError:
		pe, err := relay.DecodePayload[relay.ProtocolError](env)
		if err != nil {
			return relay.Welcome{}, err
		}
		return relay.Welcome{}, &pe
	default:
		return relay.Welcome{}, fmt.Errorf("expected welcome, got %q", env.T)
	}
}

// ViewID returns the participant id the relay assigned.
func (c *Conn) ViewID() model.ParticipantID {
	return model.ParticipantID(c.welcome.ViewID)
}

// Welcome returns the session settings received at join.
func (c *Conn) Welcome() relay.Welcome {
	return c.welcome
}

// Replica returns the local replica. The caller runs it.
func (c *Conn) Replica() *engine.Replica {
	return c.replica
}

// Publish sends an intent to the relay. It is applied locally only when it
// comes back sequenced.
func (c *Conn) Publish(_ context.Context, kind ir.Kind, args ir.Object) error {
	if args == nil {
		args = ir.Object{}
	}
	return c.write(relay.MsgPublish, relay.Publish{Kind: kind, Args: args})
}

func (c *Conn) write(typ string, payload any) error {
	frame, err := relay.Encode(typ, payload)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("send %s: %w", typ, err)
	}
	return nil
}

// Run delivers the relay's stream into the replica until the connection
// closes or ctx is cancelled. A clean close returns nil.
func (c *Conn) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { c.Close() })
	defer stop()

	c.ws.SetPingHandler(func(data string) error {
		c.writeMu.Lock()
		defer c.writeMu.Unlock()
		return c.ws.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})

	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		if err := c.dispatch(msg); err != nil {
			c.logger.Warn("message skipped", "error", err)
		}
	}
}

func (c *Conn) dispatch(msg []byte) error {
	env, err := relay.DecodeEnvelope(msg)
	if err != nil {
		return err
	}
	switch env.T {
	case relay.MsgIntent:
		in, err := relay.DecodePayload[ir.Intent](env)
		if err != nil {
			return err
		}
		c.replica.Deliver(in)
	case relay.MsgSynced:
		s, err := relay.DecodePayload[relay.Synced](env)
		if err != nil {
			return err
		}
		c.replica.MarkSynced(s.Head)
	case relay.MsgError:
		pe, err := relay.DecodePayload[relay.ProtocolError](env)
		if err != nil {
			return err
		}
		c.logger.Warn("relay refused intent", "code", pe.Code, "message", pe.Message)
	default:
		return fmt.Errorf("unexpected message %q", env.T)
	}
	return nil
}

// Close ends the connection.
func (c *Conn) Close() error {
	c.writeMu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.writeMu.Unlock()
	err := c.ws.Close()
	if errors.Is(err, websocket.ErrCloseSent) {
		return nil
	}
	return err
}

var _ engine.Publisher = (*Conn)(nil)
