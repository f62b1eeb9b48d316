package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes keep hashes of different record kinds from colliding.
const (
	DomainIntent   = "musicbox/intent/v1"
	DomainSnapshot = "musicbox/snapshot/v1"
)

// HashWithDomain returns hex(SHA256(domain || 0x00 || data)).
func HashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// IntentID computes the content-addressed id of an intent. The sender is
// part of the payload (viewId), so two participants issuing the same command
// at the same seq cannot collide.
func IntentID(session string, kind Kind, args Object, seq int64) (string, error) {
	if args == nil {
		args = Object{}
	}
	canonical, err := MarshalCanonical(Object{
		"session": String(session),
		"kind":    String(kind),
		"args":    args,
		"seq":     Int(seq),
	})
	if err != nil {
		return "", fmt.Errorf("intent id: %w", err)
	}
	return HashWithDomain(DomainIntent, canonical), nil
}

// MustIntentID is IntentID for inputs known to be valid.
func MustIntentID(session string, kind Kind, args Object, seq int64) string {
	id, err := IntentID(session, kind, args, seq)
	if err != nil {
		panic(err)
	}
	return id
}
