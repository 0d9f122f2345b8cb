package session

import (
	"context"
	"sync"
	"time"

	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/logging"
)

// Options configure eviction for the in-memory store. The zero value means
// no eviction at all: sessions live for the process lifetime. That is an
// explicit, testable configuration, not an accident of implementation.
type Options struct {
	// TTL evicts sessions idle for longer than this. 0 disables TTL eviction.
	TTL time.Duration

	// MaxEntries caps the number of stored sessions; when exceeded, the
	// least recently seen sessions are evicted first. 0 disables the cap.
	MaxEntries int

	// SweepInterval is how often the janitor scans for expired sessions.
	SweepInterval time.Duration

	// EnabledAgents is the default specialist set for lazily created
	// sessions. Empty means all specialists.
	EnabledAgents []string

	Logger logging.Logger
}

// InMemoryStore is a volatile Store implementation keeping sessions in a
// process-local map. Safe for concurrent access. Returned sessions are
// clones to prevent external mutation of internal state.
type InMemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	opts     Options
}

// NewInMemoryStore constructs an empty in-memory session store.
func NewInMemoryStore(optFns ...func(o *Options)) *InMemoryStore {
	opts := Options{
		SweepInterval: time.Minute,
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &InMemoryStore{sessions: make(map[string]*Session), opts: opts}
}

// GetOrCreate returns an existing session (clone) or creates one lazily.
func (s *InMemoryStore) GetOrCreate(id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok && !s.expiredLocked(sess) {
		sess.Touch()
		return sess.Clone(), nil
	}
	sess := NewSession(id, s.opts.EnabledAgents)
	s.sessions[id] = sess
	s.enforceCapacityLocked()
	return sess.Clone(), nil
}

// Get returns an existing session or core.ErrSessionNotFound.
func (s *InMemoryStore) Get(id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok || s.expiredLocked(sess) {
		return nil, core.ErrSessionNotFound
	}
	return sess.Clone(), nil
}

// Put stores a clone of the provided session snapshot.
func (s *InMemoryStore) Put(sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess.Clone()
	s.enforceCapacityLocked()
	return nil
}

// Delete removes a session. Unknown ids are a no-op.
func (s *InMemoryStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// Len returns the number of stored sessions, expired ones included until
// the next sweep.
func (s *InMemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Start runs the eviction janitor until the context is cancelled. It is a
// no-op when TTL eviction is disabled.
func (s *InMemoryStore) Start(ctx context.Context) {
	if s.opts.TTL <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(s.opts.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweep()
			}
		}
	}()
}

func (s *InMemoryStore) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	evicted := 0
	for id, sess := range s.sessions {
		if s.expiredLocked(sess) {
			delete(s.sessions, id)
			evicted++
		}
	}
	if evicted > 0 {
		s.opts.Logger.Debug("session sweep evicted entries", "count", evicted)
	}
}

func (s *InMemoryStore) expiredLocked(sess *Session) bool {
	return s.opts.TTL > 0 && time.Since(sess.LastSeenAt) > s.opts.TTL
}

// enforceCapacityLocked evicts least recently seen sessions until under the
// cap. Caller holds the lock.
func (s *InMemoryStore) enforceCapacityLocked() {
	if s.opts.MaxEntries <= 0 {
		return
	}
	for len(s.sessions) > s.opts.MaxEntries {
		oldestID := ""
		var oldest time.Time
		for id, sess := range s.sessions {
			if oldestID == "" || sess.LastSeenAt.Before(oldest) {
				oldestID = id
				oldest = sess.LastSeenAt
			}
		}
		delete(s.sessions, oldestID)
		s.opts.Logger.Debug("session capacity eviction", "session_id", oldestID)
	}
}

var _ Store = (*InMemoryStore)(nil)
