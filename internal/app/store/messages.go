/*
Package store implements the durable message store.

Private messages that were delivered to a live recipient are archived here so the
HTTP API can serve conversation history. Messages to offline recipients are never
written: routing is fire-and-forget and store-and-forward is deliberately out of
scope.
*/
package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"chatwire/internal/pkg/randx"
)

// DefaultConversationLimit caps how many messages a single history query returns.
const DefaultConversationLimit = 100

// Message is one archived private message.
type Message struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Store persists and queries private messages on Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore returns a Store backed by the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Append writes one message and returns its generated id.
func (s *Store) Append(ctx context.Context, senderID, receiverID, content string) (string, error) {
	id := randx.MessageID()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO messages (id, sender_id, receiver_id, content) VALUES ($1, $2, $3, $4)`,
		id, senderID, receiverID, content,
	)
	if err != nil {
		return "", err
	}

	return id, nil
}

// QueryConversation returns the messages exchanged between two users in
// chronological order, capped at limit (DefaultConversationLimit when <= 0).
func (s *Store) QueryConversation(ctx context.Context, userA, userB string, limit int) ([]Message, error) {
	if limit <= 0 || limit > DefaultConversationLimit {
		limit = DefaultConversationLimit
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, sender_id, receiver_id, content, created_at
		 FROM messages
		 WHERE (sender_id = $1 AND receiver_id = $2)
		    OR (sender_id = $2 AND receiver_id = $1)
		 ORDER BY created_at ASC
		 LIMIT $3`,
		userA, userB, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]Message, 0, limit)
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}

	return messages, rows.Err()
}
