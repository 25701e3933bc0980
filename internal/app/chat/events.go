/*
Package chat contains the real-time core: the presence registry, the message router,
and the per-connection session.

This file defines the wire protocol. Every WebSocket frame in either direction is an
Envelope carrying an event type and a JSON payload. Event type names follow the
client contract ("public message", "chat message", ...).
*/
package chat

import "encoding/json"

// EventType identifies the kind of a WebSocket event.
type EventType string

const (
	// EventPublicMessage is the inbound broadcast request from a client.
	EventPublicMessage EventType = "public message"

	// EventPrivateMessage is both the inbound direct-message request and the
	// outbound direct-message delivery.
	EventPrivateMessage EventType = "private message"

	// EventOnlineUsers is the outbound full presence roster, pushed on every change.
	EventOnlineUsers EventType = "online users"

	// EventChatMessage is the outbound public broadcast delivery.
	EventChatMessage EventType = "chat message"
)

// Envelope is the framing for every WebSocket event.
type Envelope struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// PublicMessagePayload is the inbound "public message" payload. SenderID and
// Timestamp are client-supplied: SenderID is never trusted (the router overwrites
// it from the session's bound identity), Timestamp is passed through when sane.
type PublicMessagePayload struct {
	Text      string `json:"text"`
	SenderID  string `json:"senderId,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// PrivateMessagePayload is the inbound "private message" payload.
type PrivateMessagePayload struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

// RosterEntry is one element of the outbound "online users" payload.
type RosterEntry struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// ChatMessage is the outbound "chat message" payload, enriched server-side with the
// sender's username resolved from the presence registry.
type ChatMessage struct {
	Text      string `json:"text"`
	SenderID  string `json:"senderId"`
	Username  string `json:"username"`
	Timestamp int64  `json:"timestamp"`
}

// PrivateMessage is the outbound "private message" payload, sent to the sender
// (guaranteed echo) and to the recipient when present.
type PrivateMessage struct {
	From         string `json:"from"`
	FromUsername string `json:"fromUsername"`
	To           string `json:"to"`
	Message      string `json:"message"`
	Timestamp    int64  `json:"timestamp"`
}

// NewEvent marshals the payload into a framed wire message ready to enqueue.
func NewEvent(eventType EventType, payload any) ([]byte, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return json.Marshal(Envelope{
		Type:    eventType,
		Payload: payloadBytes,
	})
}
