package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/parleyhq/parley/core"
)

// InMemoryStore is a volatile implementation of the conversation and
// exploration contracts, storing everything in process-local maps. Safe for
// concurrent access. Returned values are clones to prevent external
// mutation of internal state.
type InMemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*core.Conversation
	explorations  map[string]*core.ExplorationState
}

// NewInMemoryStore constructs an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		conversations: make(map[string]*core.Conversation),
		explorations:  make(map[string]*core.ExplorationState),
	}
}

// CreateConversation persists a new conversation for a subject.
func (s *InMemoryStore) CreateConversation(_ context.Context, subjectID string) (*core.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv := core.NewConversation(subjectID)
	s.conversations[conv.ID] = conv
	return conv.Clone(), nil
}

// GetConversation returns a clone of the conversation with full history.
func (s *InMemoryStore) GetConversation(_ context.Context, id string) (*core.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrConversationNotFound, id)
	}
	return conv.Clone(), nil
}

// ListConversations returns the subject's conversations, newest first,
// without message bodies.
func (s *InMemoryStore) ListConversations(_ context.Context, subjectID string) ([]*core.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*core.Conversation
	for _, conv := range s.conversations {
		if conv.SubjectID != subjectID {
			continue
		}
		clone := conv.Clone()
		clone.Messages = nil
		out = append(out, clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// AppendMessages atomically appends messages to a conversation's history.
func (s *InMemoryStore) AppendMessages(_ context.Context, id string, msgs []core.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[id]
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrConversationNotFound, id)
	}
	conv.Messages = append(conv.Messages, msgs...)
	conv.UpdatedAt = time.Now().UTC()
	return nil
}

// SetTitle rewrites the conversation title.
func (s *InMemoryStore) SetTitle(_ context.Context, id, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[id]
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrConversationNotFound, id)
	}
	conv.Title = title
	conv.UpdatedAt = time.Now().UTC()
	return nil
}

// DeleteConversation removes the conversation and any exploration state.
func (s *InMemoryStore) DeleteConversation(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[id]; !ok {
		return fmt.Errorf("%w: %s", core.ErrConversationNotFound, id)
	}
	delete(s.conversations, id)
	delete(s.explorations, id)
	return nil
}

// GetExploration returns a clone of the active topic for a conversation.
func (s *InMemoryStore) GetExploration(_ context.Context, conversationID string) (*core.ExplorationState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.explorations[conversationID]
	if !ok {
		return nil, fmt.Errorf("%w: conversation %s", core.ErrExplorationNotFound, conversationID)
	}
	return state.Clone(), nil
}

// PutExploration stores or replaces the topic state for its conversation.
func (s *InMemoryStore) PutExploration(_ context.Context, state *core.ExplorationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.explorations[state.ConversationID] = state.Clone()
	return nil
}

// DeleteExploration discards a topic. Unknown conversations are a no-op.
func (s *InMemoryStore) DeleteExploration(_ context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.explorations, conversationID)
	return nil
}

var (
	_ core.ConversationStore = (*InMemoryStore)(nil)
	_ core.ExplorationStore  = (*InMemoryStore)(nil)
)

// StaticSubjectDirectory is a fixed in-memory subject lookup, suitable for
// tests and demo deployments where profiles come from configuration.
type StaticSubjectDirectory struct {
	mu       sync.RWMutex
	subjects map[string]*core.Subject
}

// NewStaticSubjectDirectory builds a directory from the given subjects.
func NewStaticSubjectDirectory(subjects ...*core.Subject) *StaticSubjectDirectory {
	d := &StaticSubjectDirectory{subjects: make(map[string]*core.Subject, len(subjects))}
	for _, sub := range subjects {
		d.subjects[sub.ID] = sub
	}
	return d
}

// Add registers or replaces a subject.
func (d *StaticSubjectDirectory) Add(sub *core.Subject) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subjects[sub.ID] = sub
}

// GetSubject returns the subject or core.ErrSubjectNotFound.
func (d *StaticSubjectDirectory) GetSubject(_ context.Context, id string) (*core.Subject, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	sub, ok := d.subjects[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrSubjectNotFound, id)
	}
	clone := *sub
	return &clone, nil
}

var _ core.SubjectDirectory = (*StaticSubjectDirectory)(nil)
