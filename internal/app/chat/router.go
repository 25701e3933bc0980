/*
Package chat contains the real-time core: the presence registry, the message router,
and the per-connection session.

This file defines the Router, which dispatches inbound chat events to one or many
connections. Sender identity is always taken from the authenticated session or
re-resolved from the presence registry, never from client-supplied payload fields.
Routing is fire-and-forget: failures are absorbed locally and never surfaced to the
sender.
*/
package chat

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"chatwire/internal/app/user"
	"chatwire/internal/pkg/logx"
)

// archiveTimeout bounds the background write of a delivered private message.
const archiveTimeout = 5 * time.Second

// MessageArchiver persists delivered private messages for conversation history.
type MessageArchiver interface {
	Append(ctx context.Context, senderID, receiverID, content string) (string, error)
}

// Router resolves recipients through the presence registry and fans events out.
type Router struct {
	registry *Registry

	// archive receives private messages that were delivered to a live recipient.
	// Messages to offline recipients are dropped, not archived. May be nil.
	archive MessageArchiver

	logger zerolog.Logger
}

// NewRouter constructs a Router on top of the given registry.
func NewRouter(registry *Registry, archive MessageArchiver) *Router {
	return &Router{
		registry: registry,
		archive:  archive,
		logger:   logx.Logger().With().Str("component", "router").Logger(),
	}
}

// RoutePublic broadcasts a public message to every connection except the sender's.
// The sender relies on local echo, so the server never reflects the message back.
// The username is resolved from the registry; if the sender deregistered between
// dispatch and resolution the message is dropped silently.
func (rt *Router) RoutePublic(senderID string, text string, clientTimestamp int64) {
	sender, _, ok := rt.registry.Lookup(senderID)
	if !ok {
		rt.logger.Debug().
			Str("sender_id", senderID).
			Msg("Dropping public message from unregistered sender.")
		return
	}

	timestamp := clientTimestamp
	if timestamp <= 0 {
		timestamp = time.Now().UnixMilli()
	}

	frame, err := NewEvent(EventChatMessage, ChatMessage{
		Text:      text,
		SenderID:  sender.ID,
		Username:  sender.Username,
		Timestamp: timestamp,
	})
	if err != nil {
		rt.logger.Error().Err(err).Msg("Failed to build chat message event.")
		return
	}

	rt.registry.BroadcastExcept(sender.ID, frame)
}

// RoutePrivate delivers a direct message. The sender's own connection always
// receives the echo; the recipient receives it only when currently registered.
// An absent recipient is not an error: the message is simply not forwarded and
// never queued. Delivered messages are archived asynchronously.
func (rt *Router) RoutePrivate(sender user.User, senderConn Conn, to string, message string) {
	frame, err := NewEvent(EventPrivateMessage, PrivateMessage{
		From:         sender.ID,
		FromUsername: sender.Username,
		To:           to,
		Message:      message,
		Timestamp:    time.Now().UnixMilli(),
	})
	if err != nil {
		rt.logger.Error().Err(err).Msg("Failed to build private message event.")
		return
	}

	// Guaranteed self-echo, independent of the registry state.
	senderConn.Enqueue(frame)

	if to == sender.ID {
		// Self-addressed message: the echo above already delivered it.
		rt.archiveDelivered(sender.ID, to, message)
		return
	}

	if delivered := rt.registry.Send(to, frame); !delivered {
		rt.logger.Debug().
			Str("from", sender.ID).
			Str("to", to).
			Msg("Recipient offline, private message dropped.")
		return
	}

	rt.archiveDelivered(sender.ID, to, message)
}

// archiveDelivered writes a delivered private message to the message store in the
// background. Archive failures are logged and otherwise absorbed.
func (rt *Router) archiveDelivered(senderID, receiverID, content string) {
	if rt.archive == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()

		if _, err := rt.archive.Append(ctx, senderID, receiverID, content); err != nil {
			rt.logger.Error().Err(err).
				Str("from", senderID).
				Str("to", receiverID).
				Msg("Failed to archive private message.")
		}
	}()
}
