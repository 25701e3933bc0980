/*
Package chat contains the real-time core: the presence registry, the message router,
and the per-connection session.

This file defines the Registry, the single source of truth for which users are
currently online. All mutation goes through its synchronized operations; the
underlying map is never exposed. Every presence change broadcasts the full updated
roster to all registered connections, computed inside the same critical section as
the mutation so no interleaving register/deregister can produce a stale roster.
*/
package chat

import (
	"sync"

	"github.com/rs/zerolog"

	"chatwire/internal/app/user"
	"chatwire/internal/pkg/logx"
)

// Conn is the writable handle the registry keeps for each online user. It is a
// lookup reference only: dropping it from the registry does not tear the
// transport down, except for the explicit Kick on session replacement.
type Conn interface {
	// Enqueue queues a frame for delivery without blocking. It reports false
	// when the connection's send queue is full and the frame was dropped.
	Enqueue(frame []byte) bool

	// Kick closes the connection with a session-replaced close frame.
	Kick(reason string)
}

type presenceEntry struct {
	user user.User
	conn Conn
}

// Registry is the process-wide mapping from user ID to live connection.
// At most one entry exists per user: a second connection replaces the first.
type Registry struct {
	// mu protects entries. Mutations and the derived roster broadcast run under
	// the write lock; lookups and fan-out take the read lock.
	mu sync.RWMutex

	// entries maps user ID to the live connection, keyed strictly by user ID.
	entries map[string]*presenceEntry

	logger zerolog.Logger
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*presenceEntry),
		logger:  logx.Logger().With().Str("component", "presence").Logger(),
	}
}

// Register inserts or replaces the entry for the user and pushes the updated
// roster to every registered connection. A previous connection for the same user
// is kicked: the newest session wins.
func (reg *Registry) Register(u user.User, conn Conn) {
	reg.mu.Lock()

	var displaced Conn
	if existing, ok := reg.entries[u.ID]; ok && existing.conn != conn {
		displaced = existing.conn
	}

	reg.entries[u.ID] = &presenceEntry{user: u, conn: conn}
	total := len(reg.entries)

	reg.broadcastRosterLocked()
	reg.mu.Unlock()

	// The kick writes a close frame to the displaced peer, which can stall on a
	// dead socket. It runs outside the lock so presence stays responsive; the
	// displaced session's later Deregister is rejected as stale.
	if displaced != nil {
		reg.logger.Warn().
			Str("user_id", u.ID).
			Msg("User already connected. Closing old connection for replacement.")

		displaced.Kick("Session replaced by a new connection. Check other tabs.")
	}

	reg.logger.Info().
		Str("user_id", u.ID).
		Str("username", u.Username).
		Int("online_users", total).
		Msg("User registered.")
}

// Deregister removes the user's entry and pushes the updated roster, but only
// when the entry still belongs to conn. A stale handle (the user reconnected and
// the old session is cleaning up) or an already removed entry is a no-op, which
// makes duplicate disconnect signals harmless.
func (reg *Registry) Deregister(userID string, conn Conn) {
	reg.mu.Lock()

	entry, ok := reg.entries[userID]

	switch {
	case ok && entry.conn == conn:
		delete(reg.entries, userID)
		total := len(reg.entries)
		reg.broadcastRosterLocked()
		reg.mu.Unlock()

		reg.logger.Info().
			Str("user_id", userID).
			Int("online_users", total).
			Msg("User deregistered.")

	case ok:
		reg.mu.Unlock()
		reg.logger.Info().
			Str("user_id", userID).
			Msg("Ignoring deregister for stale connection.")

	default:
		reg.mu.Unlock()
	}
}

// Lookup resolves a user ID to its identity and live connection.
func (reg *Registry) Lookup(userID string) (user.User, Conn, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	entry, ok := reg.entries[userID]
	if !ok {
		return user.User{}, nil, false
	}

	return entry.user, entry.conn, true
}

// Snapshot returns the current roster. Order is unspecified: clients re-render
// the full list on every update.
func (reg *Registry) Snapshot() []RosterEntry {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	return reg.rosterLocked()
}

// Broadcast enqueues the frame on every registered connection.
func (reg *Registry) Broadcast(frame []byte) {
	reg.BroadcastExcept("", frame)
}

// BroadcastExcept enqueues the frame on every registered connection except the
// excluded user's. Slow consumers drop the frame rather than block the caller.
func (reg *Registry) BroadcastExcept(excludeUserID string, frame []byte) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	for id, entry := range reg.entries {
		if id == excludeUserID {
			continue
		}

		if !entry.conn.Enqueue(frame) {
			reg.logger.Warn().
				Str("user_id", id).
				Msg("Send queue full, dropping broadcast frame.")
		}
	}
}

// Send enqueues the frame on a single user's connection. It reports false when
// the user is not registered or the frame was dropped.
func (reg *Registry) Send(userID string, frame []byte) bool {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	entry, ok := reg.entries[userID]
	if !ok {
		return false
	}

	return entry.conn.Enqueue(frame)
}

// Shutdown empties the registry and kicks every live connection. The kicks run
// after the map is cleared and the lock released, for the same reason Register
// kicks outside the lock.
func (reg *Registry) Shutdown() {
	reg.mu.Lock()
	conns := make([]Conn, 0, len(reg.entries))
	for _, entry := range reg.entries {
		conns = append(conns, entry.conn)
	}
	reg.entries = make(map[string]*presenceEntry)
	reg.mu.Unlock()

	for _, conn := range conns {
		conn.Kick("Server is shutting down.")
	}

	reg.logger.Info().Msg("Presence registry shut down.")
}

// rosterLocked builds the roster from current entries. Callers hold mu.
func (reg *Registry) rosterLocked() []RosterEntry {
	roster := make([]RosterEntry, 0, len(reg.entries))
	for _, entry := range reg.entries {
		roster = append(roster, RosterEntry{
			ID:       entry.user.ID,
			Username: entry.user.Username,
		})
	}
	return roster
}

// broadcastRosterLocked fans the current roster out to all registered
// connections. Callers hold the write lock, so the roster always reflects
// exactly the mutation that triggered it.
func (reg *Registry) broadcastRosterLocked() {
	frame, err := NewEvent(EventOnlineUsers, reg.rosterLocked())
	if err != nil {
		reg.logger.Error().Err(err).Msg("Failed to build online users event.")
		return
	}

	for id, entry := range reg.entries {
		if !entry.conn.Enqueue(frame) {
			reg.logger.Warn().
				Str("user_id", id).
				Msg("Send queue full, dropping roster update.")
		}
	}
}
