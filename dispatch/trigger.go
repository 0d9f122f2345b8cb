package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/logging"
	"github.com/parleyhq/parley/model"
)

// newTopicIndicators are explicit phrases that mark a topic change without
// needing model classification.
var newTopicIndicators = []string{
	"another thing",
	"different issue",
	"also wanted to ask",
	"separate concern",
	"unrelated but",
	"different topic",
	"new problem",
	"something else",
	"on a different note",
	"changing subject",
	"while we're at it",
	"also struggling with",
	"another concern",
	"besides that",
	"apart from that",
}

// topicConfidenceThreshold is the minimum model confidence to treat an
// ambiguous message as a new topic.
const topicConfidenceThreshold = 0.7

const topicDetectorSystemPrompt = `You decide whether a parent's message starts a NEW behavioral topic or continues the current conversation.

Respond with a JSON object only:
{"is_new_topic": true|false, "confidence": 0.0-1.0}`

// TopicTrigger decides whether a message should start an exploration topic.
// Detection fails open: when the model call or its output is unusable, the
// message is treated as a continuation, never as a spurious new topic.
type TopicTrigger struct {
	model  model.Model
	logger logging.Logger
}

// NewTopicTrigger creates a trigger backed by a classification model.
func NewTopicTrigger(m model.Model, logger logging.Logger) *TopicTrigger {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &TopicTrigger{model: m, logger: logger}
}

// ShouldStartTopic reports whether the message opens a new topic given the
// conversation history. An empty history always starts one.
func (t *TopicTrigger) ShouldStartTopic(ctx context.Context, history []core.Message, message string) bool {
	if len(history) == 0 {
		return true
	}

	lower := strings.ToLower(message)
	for _, indicator := range newTopicIndicators {
		if strings.Contains(lower, indicator) {
			t.logger.Debug("explicit topic indicator found", "indicator", indicator)
			return true
		}
	}

	isNew, confidence, err := t.classify(ctx, history, message)
	if err != nil {
		t.logger.Warn("topic classification failed, treating as continuation", "error", err)
		return false
	}
	if isNew && confidence >= topicConfidenceThreshold {
		t.logger.Debug("new topic detected", "confidence", confidence)
		return true
	}
	return false
}

type topicDetection struct {
	IsNewTopic bool    `json:"is_new_topic"`
	Confidence float64 `json:"confidence"`
}

func (t *TopicTrigger) classify(ctx context.Context, history []core.Message, message string) (bool, float64, error) {
	var b strings.Builder
	b.WriteString("RECENT CONVERSATION:\n")
	start := 0
	if len(history) > 6 {
		start = len(history) - 6
	}
	for _, msg := range history[start:] {
		fmt.Fprintf(&b, "%s: %s\n", msg.Role, msg.Content)
	}
	fmt.Fprintf(&b, "\nNEW MESSAGE:\n%s", message)

	respCh, errCh := t.model.Generate(ctx, model.Request{
		System: topicDetectorSystemPrompt,
		Turns:  []model.Turn{{Role: core.RoleUser, Content: b.String()}},
	})

	var text string
	for resp := range respCh {
		if !resp.Partial {
			text = resp.Text
		}
	}
	if err := <-errCh; err != nil {
		return false, 0, err
	}

	var det topicDetection
	if err := json.Unmarshal([]byte(extractJSON(text)), &det); err != nil {
		return false, 0, fmt.Errorf("parse detection output: %w", err)
	}
	return det.IsNewTopic, det.Confidence, nil
}

// extractJSON trims surrounding prose so a fenced or chatty model reply
// still parses.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}
