package model

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/parleyhq/parley/core"
)

// Turn is one conversational exchange as seen by a model provider. It is
// deliberately smaller than core.Message; prompts are not persisted entities.
type Turn struct {
	Role    core.Role `json:"role"`
	Content string    `json:"content"`
}

// Request captures the normalized model input produced by specialist steps.
type Request struct {
	System      string  `json:"system"` // system instructions
	Turns       []Turn  `json:"turns"`  // ordered conversation turns
	Stream      bool    `json:"stream,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a (partial or final) chunk emitted by a model. For streaming
// requests, partial responses carry incremental text and the final response
// carries the full concatenated text with a finish reason.
type Response struct {
	Partial      bool        `json:"partial"`
	Text         string      `json:"text"`
	FinishReason string      `json:"finish_reason,omitempty"` // "stop", "length", etc.
	Usage        *TokenUsage `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "openai", "anthropic", "mock"
}

// Model is the minimal interface required to drive generation.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// MockModel is a lightweight in-memory Model for tests. Canned completions
// are keyed by the last turn's content; unmatched prompts get a generated
// echo. Failures can be injected to exercise fallback paths.
type MockModel struct {
	mu        sync.Mutex
	info      Info
	responses map[string]string
	failAll   bool
	failNext  int
	failWhen  string
}

// NewMockModel constructs an empty MockModel.
func NewMockModel(name string) *MockModel {
	return &MockModel{
		info:      Info{Name: name, Provider: "mock"},
		responses: make(map[string]string),
	}
}

// AddResponse registers a deterministic canned completion for an input prompt.
func (m *MockModel) AddResponse(prompt, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[prompt] = response
}

// FailAll makes every subsequent Generate call fail.
func (m *MockModel) FailAll(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAll = fail
}

// FailTimes makes the next n Generate calls fail, then recover.
func (m *MockModel) FailTimes(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = n
}

// FailWhen makes Generate fail whenever the last turn contains substr.
func (m *MockModel) FailWhen(substr string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWhen = substr
}

func (m *MockModel) shouldFail(input string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll {
		return true
	}
	if m.failNext > 0 {
		m.failNext--
		return true
	}
	return m.failWhen != "" && strings.Contains(input, m.failWhen)
}

func (m *MockModel) lookup(input string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.responses[input]; ok {
		return r
	}
	return fmt.Sprintf("Mock response to: %s", input)
}

// Generate implements Model; emits optional streaming word chunks then the
// final response.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(respCh)
		defer close(errCh)
		if len(req.Turns) == 0 {
			errCh <- fmt.Errorf("%w: no turns provided", core.ErrUpstreamModel)
			return
		}
		input := req.Turns[len(req.Turns)-1].Content
		if m.shouldFail(input) {
			errCh <- fmt.Errorf("%w: injected mock failure", core.ErrUpstreamModel)
			return
		}
		full := m.lookup(input)
		if req.Stream {
			for _, word := range splitChunks(full) {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case respCh <- Response{Partial: true, Text: word}:
				}
			}
		}
		respCh <- Response{Partial: false, Text: full, FinishReason: "stop"}
	}()
	return respCh, errCh
}

// Info implements Model interface.
func (m *MockModel) Info() Info { return m.info }

// splitChunks breaks text into whitespace-preserving word chunks so streamed
// deltas concatenate back to the original byte for byte.
func splitChunks(s string) []string {
	var chunks []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ' ' {
			chunks = append(chunks, s[start:i+1])
			start = i + 1
		}
	}
	if start < len(s) {
		chunks = append(chunks, s[start:])
	}
	return chunks
}

var _ Model = (*MockModel)(nil)
