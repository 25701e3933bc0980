/*
Package chat contains the real-time core: the presence registry, the message router,
and the per-connection session.

This file defines the Session struct, representing one authenticated WebSocket
connection. It manages the connection lifecycle (Connecting, Authenticated,
Disconnected), the message communication loops (ReadPump and WritePump), and the
dispatch of inbound events into the Router.
*/
package chat

import (
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"chatwire/internal/app/user"
	"chatwire/internal/pkg/logx"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed for the server to wait for a Pong message from the client.
	pongWait = 60 * time.Second

	// frequency at which the server sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of a frame sent by the client.
	maxMessageSize = 8192

	// MaxContentBytes is the maximum allowed size (in bytes) for message text.
	MaxContentBytes = 5000

	// sendChannelBuffer is the per-connection outbound queue size.
	sendChannelBuffer = 256

	// WsCloseCodeSessionReplaced is a custom WebSocket Close Code (4000-4999 range)
	// used to signal the client that the session was replaced by a new connection.
	WsCloseCodeSessionReplaced = 4001
)

// SessionState models the connection lifecycle. Transitions are one-way:
// Connecting -> Authenticated -> Disconnected. A dropped connection is a brand-new
// Session on reconnect.
type SessionState int32

const (
	// StateConnecting: transport established, identity not yet bound.
	StateConnecting SessionState = iota

	// StateAuthenticated: identity bound, registered in the presence registry.
	StateAuthenticated

	// StateDisconnected: terminal.
	StateDisconnected
)

// Session represents one live WebSocket connection and its bound identity.
type Session struct {
	// underlying WebSocket connection object.
	conn *websocket.Conn

	// user is the identity bound at authentication time. It is immutable for the
	// lifetime of the session and is the only identity the router trusts.
	user user.User

	registry *Registry
	router   *Router

	// a buffered channel used to queue frames waiting to be sent to the client.
	send chan []byte

	// state holds the SessionState; the Disconnected transition is a swap so the
	// cleanup path runs exactly once.
	state atomic.Int32

	// structured logger with session context.
	logger zerolog.Logger
}

// NewSession constructs a Session in the Connecting state.
func NewSession(conn *websocket.Conn, u user.User, registry *Registry, router *Router) *Session {
	sessionLogger := logx.Logger().With().
		Str("user_id", u.ID).
		Str("username", u.Username).
		Logger()

	s := &Session{
		conn:     conn,
		user:     u,
		registry: registry,
		router:   router,
		send:     make(chan []byte, sendChannelBuffer),
		logger:   sessionLogger,
	}
	s.state.Store(int32(StateConnecting))

	return s
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

// User returns the identity bound to the session.
func (s *Session) User() user.User {
	return s.user
}

// Activate transitions the session to Authenticated and registers it in the
// presence registry, which broadcasts the updated roster to everyone including
// this session.
func (s *Session) Activate() {
	s.state.Store(int32(StateAuthenticated))
	s.registry.Register(s.user, s)
}

// ReadPump handles reading frames from the WebSocket connection.
// It handles heartbeats (Pong), event dispatch, and performs cleanup upon
// connection closure. Inbound events are processed strictly in arrival order.
func (s *Session) ReadPump() {
	defer s.cleanupOnDisconnect()

	s.conn.SetReadLimit(maxMessageSize)

	if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		s.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, messageBytes, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Info().Err(err).Msg("Error reading frame (client close/going away)")
			}
			break
		}

		s.handleInbound(messageBytes)
	}
}

// cleanupOnDisconnect runs the disconnect path exactly once, regardless of which
// exit triggered it: deregister from presence, then close the transport.
func (s *Session) cleanupOnDisconnect() {
	prev := SessionState(s.state.Swap(int32(StateDisconnected)))
	if prev == StateDisconnected {
		return
	}

	s.logger.Info().Msg("Session cleanup starting.")

	if prev == StateAuthenticated {
		s.registry.Deregister(s.user.ID, s)
	}

	if err := s.conn.Close(); err != nil {
		s.logger.Debug().Err(err).Msg("Connection close error during cleanup")
	}
}

// handleInbound parses and dispatches one raw frame received from the client.
// Malformed or incomplete payloads are dropped with no response; no event is
// processed unless the session is Authenticated.
func (s *Session) handleInbound(messageBytes []byte) {
	if s.State() != StateAuthenticated {
		s.logger.Warn().Msg("Dropping event from non-authenticated session")
		return
	}

	var env Envelope
	if err := json.Unmarshal(messageBytes, &env); err != nil {
		s.logger.Warn().Err(err).Msg("Client sent invalid JSON")
		return
	}

	switch env.Type {
	case EventPublicMessage:
		s.handlePublicMessage(env.Payload)

	case EventPrivateMessage:
		s.handlePrivateMessage(env.Payload)

	default:
		s.logger.Warn().Str("event_type", string(env.Type)).Msg("Client sent unsupported event type")
	}
}

// handlePublicMessage validates and routes an inbound broadcast request. The
// client-supplied senderId is ignored; the router uses the bound identity.
func (s *Session) handlePublicMessage(payloadBytes json.RawMessage) {
	var payload PublicMessagePayload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		s.logger.Warn().Err(err).Msg("Client sent invalid public message payload")
		return
	}

	if payload.Text == "" || len(payload.Text) > MaxContentBytes {
		s.logger.Warn().Int("text_bytes", len(payload.Text)).Msg("Dropping public message with invalid text")
		return
	}

	s.router.RoutePublic(s.user.ID, payload.Text, payload.Timestamp)
}

// handlePrivateMessage validates and routes an inbound direct-message request.
func (s *Session) handlePrivateMessage(payloadBytes json.RawMessage) {
	var payload PrivateMessagePayload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		s.logger.Warn().Err(err).Msg("Client sent invalid private message payload")
		return
	}

	if payload.To == "" || payload.Message == "" || len(payload.Message) > MaxContentBytes {
		s.logger.Warn().Msg("Dropping private message with missing or invalid fields")
		return
	}

	s.router.RoutePrivate(s.user, s, payload.To, payload.Message)
}

// WritePump handles writing frames from the send channel to the WebSocket
// connection and keeps the heartbeat alive.
func (s *Session) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()

		if err := s.conn.Close(); err != nil {
			s.logger.Debug().Err(err).Msg("Connection close error in WritePump")
		}
	}()

	for {
		select {
		case frame, ok := <-s.send:
			if !s.writeQueuedFrame(frame, ok) {
				return
			}

		case <-ticker.C:
			if !s.writePingMessage() {
				return
			}
		}
	}
}

// writeQueuedFrame writes one frame pulled from the send channel.
// Returns true if the WritePump loop should continue, false if it should terminate.
func (s *Session) writeQueuedFrame(frame []byte, ok bool) bool {
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		s.logger.Error().Err(err).Msg("Failed to set write deadline")
		return false
	}

	if !ok {
		if err := s.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
			s.logger.Error().Err(err).Msg("Error writing close message")
		}
		return false
	}

	if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		s.logger.Error().Err(err).Msg("Error writing frame")
		return false
	}

	return true
}

// writePingMessage sends a periodic WebSocket Ping message to maintain the
// connection heartbeat. Returns false if the WritePump loop should terminate.
func (s *Session) writePingMessage() bool {
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		s.logger.Error().Err(err).Msg("Failed to set write deadline on ping")
		return false
	}

	if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		s.logger.Error().Err(err).Msg("Error writing ping")
		return false
	}

	return true
}

// Enqueue implements Conn. It queues a frame for delivery without blocking;
// a full queue drops the frame.
func (s *Session) Enqueue(frame []byte) bool {
	select {
	case s.send <- frame:
		return true
	default:
		s.logger.Warn().Int("queue_len", len(s.send)).Msg("Send channel full, dropping frame")
		return false
	}
}

// Kick implements Conn. It closes the connection with a custom WebSocket Close
// Frame (code 4001) indicating that the session was replaced, then tears the
// transport down so the read loop unblocks and cleanup runs.
//
// Kick is called from foreign goroutines (the replacing session's handler, HTTP
// logout/delete handlers) while this session's WritePump may be writing, so the
// close frame goes out via WriteControl, the only write that is safe concurrently
// with another writer.
func (s *Session) Kick(reason string) {
	s.logger.Warn().
		Int("close_code", WsCloseCodeSessionReplaced).
		Str("reason", reason).
		Msg("Kicking session.")

	closeMessage := websocket.FormatCloseMessage(WsCloseCodeSessionReplaced, reason)

	if err := s.conn.WriteControl(websocket.CloseMessage, closeMessage, time.Now().Add(writeWait)); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to send close frame on kick.")
	}

	if err := s.conn.Close(); err != nil {
		s.logger.Debug().Err(err).Msg("Connection close error on kick")
	}
}
