package core

import "context"

// ConversationStore is the persistence contract the delivery pipeline
// consumes. Implementations must be safe for concurrent use and atomic at
// single-conversation granularity; the pipeline itself serializes mutation
// within one conversation.
type ConversationStore interface {
	// CreateConversation persists a new conversation and returns it.
	CreateConversation(ctx context.Context, subjectID string) (*Conversation, error)

	// GetConversation returns the conversation with its full ordered message
	// history, or ErrConversationNotFound.
	GetConversation(ctx context.Context, id string) (*Conversation, error)

	// ListConversations returns all conversations for a subject, newest
	// first, without message bodies.
	ListConversations(ctx context.Context, subjectID string) ([]*Conversation, error)

	// AppendMessages atomically appends messages to a conversation's history.
	AppendMessages(ctx context.Context, id string, msgs []Message) error

	// SetTitle performs the single allowed automatic title rewrite.
	SetTitle(ctx context.Context, id, title string) error

	// DeleteConversation removes the conversation and its messages.
	DeleteConversation(ctx context.Context, id string) error
}

// SubjectDirectory resolves child profiles. It is an external collaborator;
// the pipeline only reads from it.
type SubjectDirectory interface {
	GetSubject(ctx context.Context, id string) (*Subject, error)
}

// ExplorationStore holds in-flight exploration topics keyed by conversation.
// At most one non-completed topic exists per conversation.
type ExplorationStore interface {
	// GetExploration returns the active topic for a conversation, or
	// ErrExplorationNotFound when none is in flight.
	GetExploration(ctx context.Context, conversationID string) (*ExplorationState, error)

	// PutExploration stores or replaces the topic state for its conversation.
	PutExploration(ctx context.Context, state *ExplorationState) error

	// DeleteExploration discards a consumed or abandoned topic.
	DeleteExploration(ctx context.Context, conversationID string) error
}
