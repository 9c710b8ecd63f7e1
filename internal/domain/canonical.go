package domain

import (
	"time"

	"github.com/agenttrust/trustcore/pkg/canonical"
	"github.com/agenttrust/trustcore/pkg/signer"
)

// TimestampLayout is the RFC 3339 layout (second precision, explicit
// zone) every event timestamp is normalized to before canonicalization.
// Using a fixed precision everywhere is what makes hashing and signing
// reproducible: a timestamp carrying sub-second precision on the wire
// but truncated at rest would recompute to a different hash.
const TimestampLayout = time.RFC3339

// NormalizeTimestamp truncates t to second precision and fixes its
// zone to UTC, the canonical form stored and hashed everywhere.
func NormalizeTimestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// UnsignedEvent is the pre-image an event's hash and signature are
// computed over: every Event field except Hash and Signature.
type UnsignedEvent struct {
	AgentID       string
	EventType     EventType
	Timestamp     time.Time
	PrevHash      *string
	Payload       map[string]interface{}
	CorrelationID string
}

// ToMap renders the unsigned event as the map canonical.Marshal
// expects. Absent correlation_id is omitted entirely (not emitted as
// null); a nil PrevHash is emitted as an explicit null, per spec §4.1.
func (u UnsignedEvent) ToMap() map[string]interface{} {
	m := map[string]interface{}{
		"agent_id":   u.AgentID,
		"event_type": string(u.EventType),
		"timestamp":  NormalizeTimestamp(u.Timestamp).Format(TimestampLayout),
		"prev_hash":  nil,
		"payload":    normalizePayload(u.Payload),
	}
	if u.PrevHash != nil {
		m["prev_hash"] = *u.PrevHash
	}
	if u.CorrelationID != "" {
		m["correlation_id"] = u.CorrelationID
	}
	return m
}

// normalizePayload converts a payload decoded via encoding/json (which
// yields map[string]interface{} with nested map[string]interface{} and
// []interface{}) into itself — it already is the shape canonical.Marshal
// wants. A nil payload becomes an empty object so "payload" is never
// emitted as null (the spec treats payload as always present).
func normalizePayload(p map[string]interface{}) map[string]interface{} {
	if p == nil {
		return map[string]interface{}{}
	}
	return p
}

// CanonicalBytes encodes the unsigned event per RFC 8785.
func (u UnsignedEvent) CanonicalBytes() ([]byte, error) {
	return canonical.Marshal(u.ToMap())
}

// Hash returns the lowercase-hex SHA-256 digest of the canonical bytes.
func (u UnsignedEvent) Hash() (string, error) {
	b, err := u.CanonicalBytes()
	if err != nil {
		return "", err
	}
	return signer.SHA256Hex(b), nil
}

// Unsigned extracts the UnsignedEvent view of a persisted Event.
func (e Event) Unsigned() UnsignedEvent {
	return UnsignedEvent{
		AgentID:       e.AgentID,
		EventType:     e.EventType,
		Timestamp:     e.Timestamp,
		PrevHash:      e.PrevHash,
		Payload:       e.Payload,
		CorrelationID: e.CorrelationID,
	}
}
