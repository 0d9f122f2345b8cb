package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConversation(t *testing.T) {
	conv := NewConversation("child-1")

	assert.NotEmpty(t, conv.ID)
	assert.NotEmpty(t, conv.ThreadID)
	assert.NotEqual(t, conv.ID, conv.ThreadID)
	assert.Equal(t, "child-1", conv.SubjectID)
	assert.Equal(t, "New conversation", conv.Title)
	assert.True(t, conv.IsActive)
	assert.Empty(t, conv.Messages)
}

func TestConversation_Clone(t *testing.T) {
	conv := NewConversation("child-1")
	conv.Messages = append(conv.Messages, NewMessage(conv.ID, RoleUser, "hello"))

	clone := conv.Clone()
	clone.Title = "changed"
	clone.Messages[0].Content = "changed"
	clone.Messages = append(clone.Messages, NewMessage(conv.ID, RoleAssistant, "extra"))

	assert.Equal(t, "New conversation", conv.Title)
	assert.Equal(t, "hello", conv.Messages[0].Content)
	assert.Len(t, conv.Messages, 1)
}

func TestExplorationState_Clone(t *testing.T) {
	state := NewExplorationState("conv-1", "concern", 10)
	state.ExplorationQA = []QuestionAnswer{{Question: "q1", QuestionNumber: 1}}
	state.PendingQuestion = &QuestionAnswer{Question: "q2", QuestionNumber: 2}

	clone := state.Clone()
	clone.ExplorationQA[0].Answer = "mutated"
	clone.PendingQuestion.Question = "mutated"
	clone.Phase = PhaseCompleted

	assert.Empty(t, state.ExplorationQA[0].Answer)
	assert.Equal(t, "q2", state.PendingQuestion.Question)
	assert.Equal(t, PhaseNotStarted, state.Phase)
}

func TestExplorationState_AnsweredCount(t *testing.T) {
	state := NewExplorationState("conv-1", "concern", 10)
	assert.Zero(t, state.AnsweredCount())

	state.ExplorationQA = make([]QuestionAnswer, 5)
	state.DeepQA = make([]QuestionAnswer, 3)
	assert.Equal(t, 8, state.AnsweredCount())
}

func TestNewTopicID_Format(t *testing.T) {
	seen := map[string]struct{}{}
	for i := 0; i < 100; i++ {
		id := NewTopicID()
		assert.Regexp(t, `^topic_[0-9a-f]{12}$`, id)
		_, dup := seen[id]
		assert.False(t, dup, "topic ids must be unique")
		seen[id] = struct{}{}
	}
}

func TestStreamEvent_Constructors(t *testing.T) {
	start := NewMessageStartEvent("m1")
	assert.Equal(t, EventMessageStart, start.Type)
	assert.Equal(t, "m1", start.MessageID)
	assert.False(t, start.IsTerminal())
	assert.False(t, start.Timestamp.IsZero())

	delta := NewDeltaEvent("chunk")
	assert.Equal(t, EventContentBlockDelta, delta.Type)
	assert.Equal(t, "chunk", delta.Delta)
	assert.False(t, delta.IsTerminal())

	complete := NewMessageCompleteEvent("m1", "full text")
	assert.Equal(t, EventMessageComplete, complete.Type)
	assert.Equal(t, "full text", complete.FullResponse)
	assert.True(t, complete.IsTerminal())

	q := NewExplorationQuestionEvent("When?", 3, QuestionTypeExploration, false, "topic_abc123def456")
	assert.Equal(t, EventExplorationQuestion, q.Type)
	assert.Equal(t, 3, q.QuestionNumber)
	require.NotNil(t, q.IsLastQuestion)
	assert.False(t, *q.IsLastQuestion)
	assert.False(t, q.IsTerminal())

	errEv := NewErrorEvent("boom")
	assert.Equal(t, EventError, errEv.Type)
	assert.Equal(t, "boom", errEv.Error)
	assert.True(t, errEv.IsTerminal())
}

func TestStreamEvent_JSONOmitsAbsentFields(t *testing.T) {
	data, err := json.Marshal(NewDeltaEvent("x"))
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))

	assert.Equal(t, "content_block_delta", raw["type"])
	assert.Equal(t, "x", raw["delta"])
	assert.NotContains(t, raw, "message_id")
	assert.NotContains(t, raw, "full_response")
	assert.NotContains(t, raw, "new_title")
	assert.NotContains(t, raw, "error")
}
