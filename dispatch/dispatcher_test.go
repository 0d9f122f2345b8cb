package dispatch

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/agent"
	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/exploration"
	"github.com/parleyhq/parley/model"
	"github.com/parleyhq/parley/session"
	"github.com/parleyhq/parley/store"
)

type testEnv struct {
	dispatcher *Dispatcher
	model      *model.MockModel
	store      *store.InMemoryStore
	sessions   *session.InMemoryStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	m := model.NewMockModel("test")
	mem := store.NewInMemoryStore()
	sessions := session.NewInMemoryStore()
	registry := agent.NewDefaultRegistry()
	pipeline := agent.NewPipeline(m)
	expl := exploration.NewService(m, mem)
	trigger := NewTopicTrigger(m, nil)

	d := NewDispatcher(registry, pipeline, expl, mem, store.NewStaticSubjectDirectory(), sessions, trigger)
	return &testEnv{dispatcher: d, model: m, store: mem, sessions: sessions}
}

func drain(events <-chan core.StreamEvent) []core.StreamEvent {
	var out []core.StreamEvent
	for ev := range events {
		out = append(out, ev)
	}
	return out
}

func TestDispatcher_HandleMessage_StreamShape(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	events, err := env.dispatcher.HandleMessage(ctx, Request{
		SessionID: "s1",
		AgentID:   "reality-checker",
		Message:   "My 6yo refuses to nap",
	})
	require.NoError(t, err)

	got := drain(events)
	require.NotEmpty(t, got)

	assert.Equal(t, core.EventMessageStart, got[0].Type)
	assert.NotEmpty(t, got[0].MessageID)

	last := got[len(got)-1]
	require.Equal(t, core.EventMessageComplete, last.Type)
	assert.True(t, last.IsTerminal())
	assert.Equal(t, got[0].MessageID, last.MessageID)

	var deltas strings.Builder
	for _, ev := range got[1 : len(got)-1] {
		require.Equal(t, core.EventContentBlockDelta, ev.Type)
		deltas.WriteString(ev.Delta)
	}
	assert.NotZero(t, deltas.Len())
	assert.Equal(t, deltas.String(), last.FullResponse)

	require.NotNil(t, last.NewTitle)
	assert.Equal(t, "My 6yo refuses to nap", *last.NewTitle)
}

func TestDispatcher_HandleMessage_PersistsExchange(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	conv, err := env.store.CreateConversation(ctx, "child-1")
	require.NoError(t, err)

	events, err := env.dispatcher.HandleMessage(ctx, Request{
		SessionID:      "s1",
		AgentID:        "quick-answer",
		ConversationID: conv.ID,
		Message:        "How much sleep does a toddler need?",
	})
	require.NoError(t, err)
	got := drain(events)
	last := got[len(got)-1]
	require.Equal(t, core.EventMessageComplete, last.Type)

	stored, err := env.store.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, stored.Messages, 2)
	assert.Equal(t, core.RoleUser, stored.Messages[0].Role)
	assert.Equal(t, "How much sleep does a toddler need?", stored.Messages[0].Content)
	assert.Equal(t, core.RoleAssistant, stored.Messages[1].Role)
	assert.Equal(t, last.FullResponse, stored.Messages[1].Content)
	assert.Equal(t, last.MessageID, stored.Messages[1].ID)
}

func TestDispatcher_HandleMessage_ValidationErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.dispatcher.HandleMessage(ctx, Request{SessionID: "s1"})
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = env.dispatcher.HandleMessage(ctx, Request{Message: "hello"})
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestDispatcher_HandleMessage_UnknownAgent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	events, err := env.dispatcher.HandleMessage(ctx, Request{
		SessionID: "s1",
		AgentID:   "nonexistent",
		Message:   "hello",
	})
	require.NoError(t, err)

	got := drain(events)
	require.Len(t, got, 1)
	assert.Equal(t, core.EventError, got[0].Type)
	assert.True(t, got[0].IsTerminal())
	assert.Contains(t, got[0].Error, "nonexistent")
}

func TestDispatcher_HandleMessage_Busy(t *testing.T) {
	env := newTestEnv(t)

	require.True(t, env.dispatcher.locks.TryLock("conv-1"))
	defer env.dispatcher.locks.Unlock("conv-1")

	_, err := env.dispatcher.HandleMessage(context.Background(), Request{
		SessionID:      "s1",
		AgentID:        "quick-answer",
		ConversationID: "conv-1",
		Message:        "hello",
	})
	assert.ErrorIs(t, err, core.ErrConversationBusy)
}

func TestDispatcher_HandleMessage_LockReleasedAfterStream(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	conv, err := env.store.CreateConversation(ctx, "child-1")
	require.NoError(t, err)

	req := Request{SessionID: "s1", AgentID: "quick-answer", ConversationID: conv.ID, Message: "hello"}

	events, err := env.dispatcher.HandleMessage(ctx, req)
	require.NoError(t, err)
	drain(events)

	events, err = env.dispatcher.HandleMessage(ctx, req)
	require.NoError(t, err)
	drain(events)
}

func TestDispatcher_HandleMessage_TitleSetOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	conv, err := env.store.CreateConversation(ctx, "child-1")
	require.NoError(t, err)

	first, err := env.dispatcher.HandleMessage(ctx, Request{
		SessionID: "s1", AgentID: "quick-answer", ConversationID: conv.ID, Message: "first message",
	})
	require.NoError(t, err)
	got := drain(first)
	require.NotNil(t, got[len(got)-1].NewTitle)

	second, err := env.dispatcher.HandleMessage(ctx, Request{
		SessionID: "s1", AgentID: "quick-answer", ConversationID: conv.ID, Message: "second message",
	})
	require.NoError(t, err)
	got = drain(second)
	assert.Nil(t, got[len(got)-1].NewTitle)

	stored, err := env.store.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "first message", stored.Title)
}

func TestDispatcher_HandleMessage_FallbackReplyOnModelFailure(t *testing.T) {
	env := newTestEnv(t)
	env.model.FailAll(true)
	ctx := context.Background()

	events, err := env.dispatcher.HandleMessage(ctx, Request{
		SessionID: "s1", AgentID: "quick-answer", Message: "hello",
	})
	require.NoError(t, err)

	got := drain(events)
	last := got[len(got)-1]
	require.Equal(t, core.EventMessageComplete, last.Type)
	assert.Contains(t, last.FullResponse, "I apologize")

	var deltas strings.Builder
	for _, ev := range got {
		if ev.Type == core.EventContentBlockDelta {
			deltas.WriteString(ev.Delta)
		}
	}
	assert.Equal(t, deltas.String(), last.FullResponse)
}

func TestDispatcher_HandleMessage_DisconnectSkipsPersist(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())

	conv, err := env.store.CreateConversation(ctx, "child-1")
	require.NoError(t, err)

	cancel()
	events, err := env.dispatcher.HandleMessage(ctx, Request{
		SessionID: "s1", AgentID: "reality-checker", ConversationID: conv.ID, Message: "hello",
	})
	require.NoError(t, err)
	drain(events)

	stored, err := env.store.GetConversation(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Messages)
}

func TestDispatcher_ExplorationFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	conv, err := env.store.CreateConversation(ctx, "child-1")
	require.NoError(t, err)

	// an un-addressed first message opens a topic
	events, err := env.dispatcher.HandleMessage(ctx, Request{
		SessionID: "s1", ConversationID: conv.ID, Message: "My daughter bites other kids",
	})
	require.NoError(t, err)
	got := drain(events)
	require.Len(t, got, 1)
	require.Equal(t, core.EventExplorationQuestion, got[0].Type)
	assert.Equal(t, 1, got[0].QuestionNumber)
	assert.Equal(t, core.QuestionTypeExploration, got[0].QuestionType)
	topicID := got[0].TopicID
	require.NotEmpty(t, topicID)

	// nine more answers walk through both phases
	for i := 1; i < 10; i++ {
		events, err := env.dispatcher.HandleMessage(ctx, Request{
			SessionID: "s1", ConversationID: conv.ID, Message: fmt.Sprintf("answer %d", i),
		})
		require.NoError(t, err)
		got := drain(events)
		require.Len(t, got, 1)
		require.Equal(t, core.EventExplorationQuestion, got[0].Type)
		assert.Equal(t, i+1, got[0].QuestionNumber)
		assert.Equal(t, topicID, got[0].TopicID)
	}

	// final answer completes the topic and hands off in the same stream
	events, err = env.dispatcher.HandleMessage(ctx, Request{
		SessionID: "s1", ConversationID: conv.ID, Message: "answer 10",
	})
	require.NoError(t, err)
	got = drain(events)
	require.NotEmpty(t, got)

	require.Equal(t, core.EventExplorationComplete, got[0].Type)
	assert.Len(t, got[0].ExplorationQA, 5)
	assert.Len(t, got[0].DeepQA, 5)
	assert.Equal(t, "My daughter bites other kids", got[0].InitialConcern)

	require.Equal(t, core.EventMessageStart, got[1].Type)
	last := got[len(got)-1]
	require.Equal(t, core.EventMessageComplete, last.Type)

	// the persisted user message is the initial concern, not the last answer
	stored, err := env.store.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, stored.Messages, 2)
	assert.Equal(t, "My daughter bites other kids", stored.Messages[0].Content)

	// the consumed topic is gone
	_, err = env.store.GetExploration(ctx, conv.ID)
	assert.ErrorIs(t, err, core.ErrExplorationNotFound)
}

func TestDispatcher_SessionScopedExplorationContinues(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// a session-scoped message with no conversation opens a topic and tells
	// the client which conversation it landed in
	events, err := env.dispatcher.HandleMessage(ctx, Request{
		SessionID: "s1", Message: "My son screams every bedtime",
	})
	require.NoError(t, err)
	got := drain(events)
	require.Len(t, got, 1)
	require.Equal(t, core.EventExplorationQuestion, got[0].Type)
	assert.Equal(t, 1, got[0].QuestionNumber)
	require.NotEmpty(t, got[0].ConversationID)
	convID := got[0].ConversationID
	topicID := got[0].TopicID

	// the next session-scoped message is the pending answer, not a new topic
	events, err = env.dispatcher.HandleMessage(ctx, Request{
		SessionID: "s1", Message: "it started two weeks ago",
	})
	require.NoError(t, err)
	got = drain(events)
	require.Len(t, got, 1)
	require.Equal(t, core.EventExplorationQuestion, got[0].Type)
	assert.Equal(t, 2, got[0].QuestionNumber)
	assert.Equal(t, topicID, got[0].TopicID)
	assert.Equal(t, convID, got[0].ConversationID)

	sess, err := env.sessions.Get("s1")
	require.NoError(t, err)
	assert.Equal(t, convID, sess.ActiveConversation)
}

func TestDispatcher_SessionRebindsAfterConversationDelete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	events, err := env.dispatcher.HandleMessage(ctx, Request{
		SessionID: "s1", Message: "My son screams every bedtime",
	})
	require.NoError(t, err)
	got := drain(events)
	require.Len(t, got, 1)
	convID := got[0].ConversationID
	require.NotEmpty(t, convID)

	require.NoError(t, env.store.DeleteConversation(ctx, convID))

	events, err = env.dispatcher.HandleMessage(ctx, Request{
		SessionID: "s1", Message: "My daughter bites other kids",
	})
	require.NoError(t, err)
	got = drain(events)
	require.Len(t, got, 1)
	require.Equal(t, core.EventExplorationQuestion, got[0].Type)
	assert.Equal(t, 1, got[0].QuestionNumber)
	assert.NotEqual(t, convID, got[0].ConversationID)
}

func TestDispatcher_EventsCarryConversationID(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	events, err := env.dispatcher.HandleMessage(ctx, Request{
		SessionID: "s1", AgentID: "quick-answer", Message: "How much sleep does a toddler need?",
	})
	require.NoError(t, err)

	got := drain(events)
	require.NotEmpty(t, got)
	convID := got[0].ConversationID
	require.NotEmpty(t, convID)
	for _, ev := range got {
		assert.Equal(t, convID, ev.ConversationID)
	}
}

func TestDispatcher_SessionTracksActiveAgent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	events, err := env.dispatcher.HandleMessage(ctx, Request{
		SessionID: "s1", AgentID: "behavior-analyst", Message: "My child hits when angry",
	})
	require.NoError(t, err)
	drain(events)

	sess, err := env.sessions.Get("s1")
	require.NoError(t, err)
	assert.Equal(t, "behavior-analyst", sess.ActiveAgent)
}

func TestSummarizeTitle(t *testing.T) {
	assert.Equal(t, "short", summarizeTitle("short"))

	long := strings.Repeat("a", 60)
	got := summarizeTitle(long)
	assert.Equal(t, strings.Repeat("a", 50)+"...", got)
}
