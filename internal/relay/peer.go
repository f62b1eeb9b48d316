package relay

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 25 * time.Second
	helloWait  = 10 * time.Second
	readLimit  = 1 << 20

	// maxOutbox bounds what a slow reader may fall behind by before the
	// relay drops it. The backlog is exempt: it is queued before the peer
	// starts receiving live intents.
	maxOutbox = 4096
)

// peer is one connected participant.
type peer struct {
	viewID  string
	conn    *websocket.Conn
	limiter *rate.Limiter

	mu      sync.Mutex
	pending [][]byte
	closed  bool
	signal  chan struct{}
	done    chan struct{}
}

func newPeer(conn *websocket.Conn, eventsPerSecond int) *peer {
	return &peer{
		conn:    conn,
		limiter: rate.NewLimiter(rate.Limit(eventsPerSecond), eventsPerSecond),
		signal:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// enqueue queues a frame for the writer. Returns false if the peer is
// closed or has fallen too far behind.
func (p *peer) enqueue(frame []byte, live bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	if live && len(p.pending) >= maxOutbox {
		return false
	}
	p.pending = append(p.pending, frame)
	select {
	case p.signal <- struct{}{}:
	default:
	}
	return true
}

func (p *peer) take() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.pending
	p.pending = nil
	return out
}

// close stops the writer after it flushes what is queued.
func (p *peer) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.signal)
}

// writeLoop drains the outbox and keeps the connection alive with pings.
// It owns all writes to conn once started.
func (p *peer) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = p.conn.Close()
		close(p.done)
	}()

	for {
		select {
		case _, ok := <-p.signal:
			for _, frame := range p.take() {
				_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := p.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
					return
				}
			}
			if !ok {
				_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = p.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
		case <-ticker.C:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
