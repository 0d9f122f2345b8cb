package core

import "time"

// EventType tags one discrete unit on the SSE wire.
type EventType string

const (
	// EventMessageStart opens a streamed assistant reply.
	EventMessageStart EventType = "message_start"
	// EventContentBlockDelta carries one incremental text chunk.
	EventContentBlockDelta EventType = "content_block_delta"
	// EventMessageComplete terminates a successful reply stream.
	EventMessageComplete EventType = "message_complete"
	// EventExplorationQuestion carries the next clarifying question.
	EventExplorationQuestion EventType = "exploration_question"
	// EventExplorationComplete terminates an exploration topic with its
	// accumulated answers.
	EventExplorationComplete EventType = "exploration_complete"
	// EventError terminates a failed stream. It is mutually exclusive with
	// EventMessageComplete within one stream.
	EventError EventType = "error"
)

// StreamEvent is the tagged union delivered over the streaming transport.
// After emission it should be treated as immutable. It is never persisted;
// it exists only on the wire for the duration of one request. Optional
// fields are pointers or omitempty values so absence can be distinguished
// from zero values.
type StreamEvent struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	// Set on every event once the dispatcher has resolved the conversation,
	// so clients that opened a session-scoped stream learn which conversation
	// to address next.
	ConversationID string `json:"conversation_id,omitempty"`

	// message_start, message_complete
	MessageID string `json:"message_id,omitempty"`

	// content_block_delta
	Delta string `json:"delta,omitempty"`

	// message_complete
	FullResponse        string   `json:"full_response,omitempty"`
	NewTitle            *string  `json:"new_title,omitempty"`
	RequiresHumanReview *bool    `json:"requires_human_review,omitempty"`
	SafetyFlags         []string `json:"safety_flags,omitempty"`

	// exploration_question
	Question       string `json:"question,omitempty"`
	QuestionNumber int    `json:"question_number,omitempty"`
	QuestionType   string `json:"question_type,omitempty"`
	IsLastQuestion *bool  `json:"is_last_question,omitempty"`

	// exploration_question, exploration_complete
	TopicID string `json:"topic_id,omitempty"`

	// exploration_complete
	ExplorationQA  []QuestionAnswer `json:"exploration_qa,omitempty"`
	DeepQA         []QuestionAnswer `json:"deep_qa,omitempty"`
	InitialConcern string           `json:"initial_concern,omitempty"`

	// error
	Error string `json:"error,omitempty"`
}

func newStreamEvent(t EventType) StreamEvent {
	return StreamEvent{Type: t, Timestamp: time.Now().UTC()}
}

// NewMessageStartEvent opens a reply stream with a freshly minted message id.
func NewMessageStartEvent(messageID string) StreamEvent {
	e := newStreamEvent(EventMessageStart)
	e.MessageID = messageID
	return e
}

// NewDeltaEvent carries one incremental text chunk in generation order.
func NewDeltaEvent(delta string) StreamEvent {
	e := newStreamEvent(EventContentBlockDelta)
	e.Delta = delta
	return e
}

// NewMessageCompleteEvent terminates a successful stream. fullResponse must
// equal the concatenation of all previously emitted deltas byte for byte.
func NewMessageCompleteEvent(messageID, fullResponse string) StreamEvent {
	e := newStreamEvent(EventMessageComplete)
	e.MessageID = messageID
	e.FullResponse = fullResponse
	return e
}

// NewExplorationQuestionEvent carries the next pending clarifying question.
func NewExplorationQuestionEvent(question string, number int, questionType string, isLast bool, topicID string) StreamEvent {
	e := newStreamEvent(EventExplorationQuestion)
	e.Question = question
	e.QuestionNumber = number
	e.QuestionType = questionType
	e.IsLastQuestion = &isLast
	e.TopicID = topicID
	return e
}

// NewExplorationCompleteEvent hands the accumulated topic context back to the
// client; the dispatcher follows it with a specialist reply in the same stream.
func NewExplorationCompleteEvent(explorationQA, deepQA []QuestionAnswer, initialConcern, topicID string) StreamEvent {
	e := newStreamEvent(EventExplorationComplete)
	e.ExplorationQA = explorationQA
	e.DeepQA = deepQA
	e.InitialConcern = initialConcern
	e.TopicID = topicID
	return e
}

// NewErrorEvent terminates a failed stream with a client-safe message.
func NewErrorEvent(msg string) StreamEvent {
	e := newStreamEvent(EventError)
	e.Error = msg
	return e
}

// IsTerminal reports whether no further events may follow this one within a
// single stream.
func (e StreamEvent) IsTerminal() bool {
	return e.Type == EventMessageComplete || e.Type == EventError
}
