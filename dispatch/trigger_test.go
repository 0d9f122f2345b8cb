package dispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/model"
)

// staticModel returns the same completion for every request.
type staticModel struct {
	text string
}

func (m *staticModel) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	respCh := make(chan model.Response, 1)
	errCh := make(chan error, 1)
	respCh <- model.Response{Text: m.text, FinishReason: "stop"}
	close(respCh)
	close(errCh)
	return respCh, errCh
}

func (m *staticModel) Info() model.Info {
	return model.Info{Name: "static", Provider: "mock"}
}

var _ model.Model = (*staticModel)(nil)

func history(contents ...string) []core.Message {
	msgs := make([]core.Message, len(contents))
	for i, c := range contents {
		msgs[i] = core.NewMessage("conv-1", core.RoleUser, c)
	}
	return msgs
}

func TestTopicTrigger_EmptyHistory(t *testing.T) {
	trigger := NewTopicTrigger(model.NewMockModel("test"), nil)

	assert.True(t, trigger.ShouldStartTopic(context.Background(), nil, "anything at all"))
}

func TestTopicTrigger_ExplicitIndicators(t *testing.T) {
	// the model would say no; the phrase alone decides
	trigger := NewTopicTrigger(&staticModel{text: `{"is_new_topic": false, "confidence": 0.9}`}, nil)
	h := history("we talked about sleep")

	assert.True(t, trigger.ShouldStartTopic(context.Background(), h, "Also wanted to ask about eating"))
	assert.True(t, trigger.ShouldStartTopic(context.Background(), h, "on a different note, she bites"))
	assert.True(t, trigger.ShouldStartTopic(context.Background(), h, "ANOTHER THING entirely"))
}

func TestTopicTrigger_ModelClassification(t *testing.T) {
	h := history("we talked about sleep")
	ctx := context.Background()

	trigger := NewTopicTrigger(&staticModel{text: `{"is_new_topic": true, "confidence": 0.85}`}, nil)
	assert.True(t, trigger.ShouldStartTopic(ctx, h, "what about mealtimes"))

	trigger = NewTopicTrigger(&staticModel{text: `{"is_new_topic": true, "confidence": 0.5}`}, nil)
	assert.False(t, trigger.ShouldStartTopic(ctx, h, "what about mealtimes"), "below threshold")

	trigger = NewTopicTrigger(&staticModel{text: `{"is_new_topic": false, "confidence": 0.95}`}, nil)
	assert.False(t, trigger.ShouldStartTopic(ctx, h, "and then what happened"))
}

func TestTopicTrigger_ChattyModelOutput(t *testing.T) {
	trigger := NewTopicTrigger(&staticModel{
		text: "Sure! Here is the result:\n{\"is_new_topic\": true, \"confidence\": 0.9}\nHope that helps.",
	}, nil)

	assert.True(t, trigger.ShouldStartTopic(context.Background(), history("sleep talk"), "mealtimes now"))
}

func TestTopicTrigger_FailsOpen(t *testing.T) {
	m := model.NewMockModel("test")
	m.FailAll(true)
	trigger := NewTopicTrigger(m, nil)

	assert.False(t, trigger.ShouldStartTopic(context.Background(), history("sleep talk"), "mealtimes now"))
}

func TestTopicTrigger_UnparseableOutput(t *testing.T) {
	trigger := NewTopicTrigger(&staticModel{text: "I cannot decide."}, nil)

	assert.False(t, trigger.ShouldStartTopic(context.Background(), history("sleep talk"), "mealtimes now"))
}

func TestKeyedMutex(t *testing.T) {
	m := newKeyedMutex()

	assert.True(t, m.TryLock("a"))
	assert.False(t, m.TryLock("a"))
	assert.True(t, m.TryLock("b"), "keys are independent")

	m.Unlock("a")
	assert.True(t, m.TryLock("a"))

	m.Unlock("unheld") // no-op
}
