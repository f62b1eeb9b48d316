package relay

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/musicbox/internal/ir"
)

// Message types on the wire.
const (
	MsgHello   = "hello"   // client -> relay, first message
	MsgPublish = "publish" // client -> relay
	MsgWelcome = "welcome" // relay -> client, reply to hello
	MsgIntent  = "intent"  // relay -> client, one sequenced intent
	MsgSynced  = "synced"  // relay -> client, backlog complete
	MsgError   = "error"   // relay -> client
)

// ProtocolVersion is sent in Hello and must match.
const ProtocolVersion = 1

// Envelope wraps every message.
type Envelope struct {
	T string          `json:"t"`
	P json.RawMessage `json:"p"`
}

// Hello opens a connection.
type Hello struct {
	V        int    `json:"v"`
	Session  string `json:"session"`
	AppID    string `json:"appId,omitempty"`
	APIKey   string `json:"apiKey,omitempty"`
	Password string `json:"password,omitempty"`
}

// Welcome accepts a participant and carries the fixed session settings.
type Welcome struct {
	ViewID     string  `json:"viewId"`
	Session    string  `json:"session"`
	Width      int64   `json:"width"`
	Height     int64   `json:"height"`
	LeaseTicks int64   `json:"leaseTicks"`
	TPS        float64 `json:"tps"`
	// Head is the last seq sequenced before this participant joined. The
	// backlog up to Head follows, then Synced.
	Head int64 `json:"head"`
}

// Publish asks the sequencer to order an intent.
type Publish struct {
	Kind ir.Kind   `json:"kind"`
	Args ir.Object `json:"args"`
}

// Synced marks the end of the backlog.
type Synced struct {
	Head int64 `json:"head"`
}

// Error codes.
const (
	CodeBadMessage  = "bad_message"
	CodeVersion     = "version"
	CodeAuth        = "auth"
	CodeForbidden   = "forbidden_kind"
	CodeRateLimited = "rate_limited"
	CodeUnavailable = "unavailable"
)

// ProtocolError is sent to a client, and returned by the client side when
// the relay refuses it.
type ProtocolError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("relay: %s: %s", e.Code, e.Message)
}

// Encode wraps payload in an envelope of type t.
func Encode(t string, payload any) ([]byte, error) {
	if t == "" {
		return nil, fmt.Errorf("encode: empty message type")
	}
	if payload == nil {
		return nil, fmt.Errorf("encode %s: nil payload", t)
	}
	pb, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", t, err)
	}
	return json.Marshal(Envelope{T: t, P: pb})
}

// DecodeEnvelope parses the outer envelope.
func DecodeEnvelope(b []byte) (Envelope, error) {
	if len(b) == 0 {
		return Envelope{}, fmt.Errorf("decode: empty message")
	}
	var e Envelope
	if err := json.Unmarshal(b, &e); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if e.T == "" {
		return Envelope{}, fmt.Errorf("decode: missing message type")
	}
	return e, nil
}

// DecodePayload parses an envelope's payload as T.
func DecodePayload[T any](env Envelope) (T, error) {
	var out T
	if len(env.P) == 0 {
		return out, fmt.Errorf("empty payload for type %q", env.T)
	}
	if err := json.Unmarshal(env.P, &out); err != nil {
		return out, fmt.Errorf("decode %s: %w", env.T, err)
	}
	return out, nil
}
