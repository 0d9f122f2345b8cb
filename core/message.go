package core

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a message.
type Role string

const (
	// RoleUser marks a message authored by the end user.
	RoleUser Role = "user"
	// RoleAssistant marks a message authored by a specialist.
	RoleAssistant Role = "assistant"
)

// Message is one immutable entry in a conversation. Assistant messages are
// assembled incrementally while streaming and frozen with a server-assigned
// id once the stream completes; only frozen messages reach the store.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// NewMessage creates a message with a fresh id and UTC timestamp.
func NewMessage(conversationID string, role Role, content string) Message {
	return Message{
		ID:             NewID(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      time.Now().UTC(),
	}
}

// Conversation groups an ordered message history under one subject.
// Title may be rewritten once, automatically, after the first exchange.
type Conversation struct {
	ID        string    `json:"id"`
	SubjectID string    `json:"subject_id"`
	ThreadID  string    `json:"thread_id"`
	Title     string    `json:"title"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Messages  []Message `json:"messages"`
}

// NewConversation creates an active, empty conversation for a subject.
func NewConversation(subjectID string) *Conversation {
	now := time.Now().UTC()
	return &Conversation{
		ID:        NewID(),
		SubjectID: subjectID,
		ThreadID:  NewID(),
		Title:     "New conversation",
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy safe for independent mutation.
func (c *Conversation) Clone() *Conversation {
	clone := *c
	clone.Messages = make([]Message, len(c.Messages))
	copy(clone.Messages, c.Messages)
	return &clone
}

// Subject is the child profile a conversation is about. The directory that
// resolves subjects is an external collaborator; the pipeline only reads it.
type Subject struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	AgeYears int    `json:"age_years"`
}

// DefaultSubjectAge is used when neither the subject record nor the request
// context carries an age.
const DefaultSubjectAge = 6

// NewID generates a new unique identifier for messages, conversations and
// stream correlation.
func NewID() string { return uuid.NewString() }
