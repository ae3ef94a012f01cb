// Package bus implements spec §4.8: the framed binary message protocol
// between an edge node and its connected terminal/KDS clients, carried
// over mTLS TCP. Grounded on
// original_source/edge-server/src/message/tcp_server.rs (accept loop,
// protocol handshake, lag-recovery resync) with the wire format itself
// coming from shared::message::BusMessage as described in spec §4.8.
package bus

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// EventType discriminates a BusMessage (spec §4.8 "Event types").
type EventType byte

const (
	EventHandshake      EventType = 1
	EventResponse       EventType = 2
	EventSync           EventType = 3
	EventNotification   EventType = 4
	EventRequestCommand EventType = 5
	EventServerCommand  EventType = 6
	EventOrderEvent     EventType = 7
)

func (e EventType) String() string {
	switch e {
	case EventHandshake:
		return "Handshake"
	case EventResponse:
		return "Response"
	case EventSync:
		return "Sync"
	case EventNotification:
		return "Notification"
	case EventRequestCommand:
		return "RequestCommand"
	case EventServerCommand:
		return "ServerCommand"
	case EventOrderEvent:
		return "OrderEvent"
	default:
		return fmt.Sprintf("Unknown(%d)", byte(e))
	}
}

// ProtocolVersion is the handshake version this build speaks (spec
// §4.7 "the client sends a Handshake message ... the server checks
// version equality").
const ProtocolVersion = 1

// maxPayloadBytes guards against a corrupt/hostile length prefix causing
// an unbounded allocation.
const maxPayloadBytes = 16 << 20

// BusMessage is the framed unit of the bus protocol (spec §4.8 exact byte
// layout):
//
//	[1 byte event_type]
//	[16 bytes request_id UUID]
//	[16 bytes correlation_id UUID, nil = none]
//	[4 bytes payload length, little-endian u32]
//	[N bytes payload]
type BusMessage struct {
	EventType     EventType
	RequestID     uuid.UUID
	CorrelationID *uuid.UUID
	Payload       []byte

	// Source/Target are routing metadata, never placed on the wire by
	// this struct's own Encode/Decode (the teacher's BusMessage carries
	// them as Rust struct fields outside the binary frame too — they are
	// set by the server on ingress/egress, not read from the client).
	Source string
	Target string
}

// NewMessage builds a fresh message with a random request id.
func NewMessage(eventType EventType, payload []byte) *BusMessage {
	return &BusMessage{EventType: eventType, RequestID: uuid.New(), Payload: payload}
}

// WithCorrelationID returns m with CorrelationID set, for chaining
// (mirrors the teacher's `.with_correlation_id(msg.request_id)`).
func (m *BusMessage) WithCorrelationID(id uuid.UUID) *BusMessage {
	m.CorrelationID = &id
	return m
}

// ParsePayload JSON-decodes Payload into v.
func (m *BusMessage) ParsePayload(v interface{}) error {
	return json.Unmarshal(m.Payload, v)
}

// HandshakePayload is the JSON payload of an EventHandshake message (spec
// §4.7 "{version, client_name, client_version, client_id}").
type HandshakePayload struct {
	Version       int     `json:"version"`
	ClientName    *string `json:"client_name,omitempty"`
	ClientVersion string  `json:"client_version"`
	ClientID      *string `json:"client_id,omitempty"`
}

// ResponsePayload is the JSON payload of an EventResponse message.
type ResponsePayload struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// NewResponse builds a Response message carrying payload, ready to have
// WithCorrelationID applied.
func NewResponse(payload ResponsePayload) *BusMessage {
	raw, _ := json.Marshal(payload)
	return NewMessage(EventResponse, raw)
}

// SyncResyncPayload is the JSON payload of the lag-recovery Sync message
// (spec §4.8 "Lag recovery").
type SyncResyncPayload struct {
	Reason          string `json:"reason"`
	DroppedMessages uint64 `json:"dropped_messages"`
	Action          string `json:"action"`
}

// NewResyncMessage builds the message the forwarder sends a client that
// fell behind on the broadcast channel.
func NewResyncMessage(target string, dropped uint64) *BusMessage {
	payload, _ := json.Marshal(SyncResyncPayload{Reason: "lagged", DroppedMessages: dropped, Action: "full_resync"})
	msg := NewMessage(EventSync, payload)
	msg.Target = target
	msg.Source = "server"
	return msg
}

// Encode writes m to w in the spec §4.8 wire format.
func Encode(w io.Writer, m *BusMessage) error {
	if len(m.Payload) > maxPayloadBytes {
		return fmt.Errorf("bus: payload too large: %d bytes", len(m.Payload))
	}

	var header [1 + 16 + 16 + 4]byte
	header[0] = byte(m.EventType)
	copy(header[1:17], m.RequestID[:])
	if m.CorrelationID != nil {
		copy(header[17:33], m.CorrelationID[:])
	}
	binary.LittleEndian.PutUint32(header[33:37], uint32(len(m.Payload)))

	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("bus: write header: %w", err)
	}
	if len(m.Payload) > 0 {
		if _, err := w.Write(m.Payload); err != nil {
			return fmt.Errorf("bus: write payload: %w", err)
		}
	}
	return nil
}

// Decode reads one BusMessage from r.
func Decode(r io.Reader) (*BusMessage, error) {
	var header [1 + 16 + 16 + 4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	msg := &BusMessage{EventType: EventType(header[0])}
	copy(msg.RequestID[:], header[1:17])

	var corr uuid.UUID
	copy(corr[:], header[17:33])
	if corr != uuid.Nil {
		msg.CorrelationID = &corr
	}

	length := binary.LittleEndian.Uint32(header[33:37])
	if length > maxPayloadBytes {
		return nil, fmt.Errorf("bus: payload length %d exceeds maximum", length)
	}
	if length > 0 {
		msg.Payload = make([]byte, length)
		if _, err := io.ReadFull(r, msg.Payload); err != nil {
			return nil, fmt.Errorf("bus: read payload: %w", err)
		}
	}
	return msg, nil
}
