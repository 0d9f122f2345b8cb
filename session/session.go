package session

import (
	"time"
)

// Session is the ephemeral per-client state, keyed by an opaque identifier
// supplied by the caller.
type Session struct {
	ID            string   `json:"id"`
	EnabledAgents []string `json:"enabled_agents"`
	ActiveAgent   string   `json:"active_agent"`

	// ActiveConversation is the conversation that session-scoped messages
	// address when the request names none.
	ActiveConversation string    `json:"active_conversation,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	LastSeenAt         time.Time `json:"last_seen_at"`
}

// NewSession creates a session with all given specialists enabled.
func NewSession(id string, enabledAgents []string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:            id,
		EnabledAgents: append([]string(nil), enabledAgents...),
		CreatedAt:     now,
		LastSeenAt:    now,
	}
}

// Clone returns a deep copy safe for independent mutation.
func (s *Session) Clone() *Session {
	clone := *s
	clone.EnabledAgents = append([]string(nil), s.EnabledAgents...)
	return &clone
}

// AgentEnabled reports whether the session may address the given specialist.
// A session with no explicit set allows all.
func (s *Session) AgentEnabled(id string) bool {
	if len(s.EnabledAgents) == 0 {
		return true
	}
	for _, a := range s.EnabledAgents {
		if a == id {
			return true
		}
	}
	return false
}

// Touch updates the last-seen timestamp.
func (s *Session) Touch() {
	s.LastSeenAt = time.Now().UTC()
}

// Store is the session access contract the dispatcher and server consume.
type Store interface {
	// GetOrCreate returns an existing session or lazily creates one.
	GetOrCreate(id string) (*Session, error)

	// Get returns an existing session or core.ErrSessionNotFound.
	Get(id string) (*Session, error)

	// Put stores a session snapshot.
	Put(s *Session) error

	// Delete removes a session. Deleting an unknown id is a no-op.
	Delete(id string) error
}
