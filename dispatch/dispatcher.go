package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/parleyhq/parley/agent"
	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/exploration"
	"github.com/parleyhq/parley/logging"
	"github.com/parleyhq/parley/model"
	"github.com/parleyhq/parley/safety"
	"github.com/parleyhq/parley/session"
)

// DefaultAgentID is the specialist invoked when neither the request nor the
// session names one.
const DefaultAgentID = "reality-checker"

// RequestContext carries optional request-supplied defaults.
type RequestContext struct {
	SubjectAge int    `json:"subject_age,omitempty"`
	Language   string `json:"language,omitempty"`
}

// Request is one inbound message for the dispatcher.
type Request struct {
	SessionID      string         `json:"session_id"`
	AgentID        string         `json:"agent_id,omitempty"`
	ConversationID string         `json:"conversation_id,omitempty"`
	SubjectID      string         `json:"subject_id,omitempty"`
	Message        string         `json:"message"`
	Context        RequestContext `json:"context"`
}

func (r Request) validate() error {
	if strings.TrimSpace(r.SessionID) == "" {
		return fmt.Errorf("%w: session id must not be empty", core.ErrValidation)
	}
	if strings.TrimSpace(r.Message) == "" {
		return fmt.Errorf("%w: message must not be empty", core.ErrValidation)
	}
	return nil
}

// Options configure the dispatcher.
type Options struct {
	Logger logging.Logger

	// DefaultAgentID overrides the built-in default specialist.
	DefaultAgentID string

	// DefaultSubjectID scopes conversations created without a subject.
	DefaultSubjectID string

	// DisableSafety turns off trigger detection and disclaimers.
	DisableSafety bool
}

// Dispatcher validates requests, serializes per-conversation work, routes to
// the exploration sub-dialogue or a specialist, and persists completed
// exchanges exactly once.
type Dispatcher struct {
	registry      *agent.Registry
	pipeline      *agent.Pipeline
	exploration   *exploration.Service
	conversations core.ConversationStore
	subjects      core.SubjectDirectory
	sessions      session.Store
	trigger       *TopicTrigger
	locks         *keyedMutex
	opts          Options
}

// NewDispatcher wires the pipeline components together.
func NewDispatcher(
	registry *agent.Registry,
	pipeline *agent.Pipeline,
	expl *exploration.Service,
	conversations core.ConversationStore,
	subjects core.SubjectDirectory,
	sessions session.Store,
	trigger *TopicTrigger,
	optFns ...func(o *Options),
) *Dispatcher {
	opts := Options{
		Logger:           logging.NoOpLogger{},
		DefaultAgentID:   DefaultAgentID,
		DefaultSubjectID: "default",
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Dispatcher{
		registry:      registry,
		pipeline:      pipeline,
		exploration:   expl,
		conversations: conversations,
		subjects:      subjects,
		sessions:      sessions,
		trigger:       trigger,
		locks:         newKeyedMutex(),
		opts:          opts,
	}
}

// HandleMessage processes one message and returns its event stream.
// Validation failures and a busy conversation are returned synchronously,
// before any stream opens; every later failure becomes a single terminal
// error event. The channel closes when the stream ends.
func (d *Dispatcher) HandleMessage(ctx context.Context, req Request) (<-chan core.StreamEvent, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	key := req.ConversationID
	if key == "" {
		key = req.SessionID
	}
	if !d.locks.TryLock(key) {
		return nil, fmt.Errorf("%w: %s", core.ErrConversationBusy, key)
	}

	events := make(chan core.StreamEvent, 32)
	go func() {
		defer close(events)
		defer d.locks.Unlock(key)
		d.run(ctx, req, events)
	}()
	return events, nil
}

func (d *Dispatcher) run(ctx context.Context, req Request, events chan<- core.StreamEvent) {
	log := d.opts.Logger

	sess, err := d.sessions.GetOrCreate(req.SessionID)
	if err != nil {
		d.emit(ctx, events, core.NewErrorEvent(fmt.Sprintf("session error: %v", err)))
		return
	}

	conv, err := d.resolveConversation(ctx, req, sess)
	if err != nil {
		d.emit(ctx, events, core.NewErrorEvent(err.Error()))
		return
	}

	subject := d.lookupSubject(ctx, conv.SubjectID, req)

	// An in-flight topic claims the message as the pending answer.
	if active, _ := d.exploration.Active(ctx, conv.ID); active {
		d.runExplorationAnswer(ctx, req, conv, subject, sess, events)
		return
	}

	// Only un-addressed conversation messages may open a topic; an explicit
	// agent id is a direct invocation.
	if req.AgentID == "" && d.trigger != nil && d.trigger.ShouldStartTopic(ctx, conv.Messages, req.Message) {
		q, err := d.exploration.Start(ctx, conv.ID, subject, req.Message)
		if err != nil {
			d.emit(ctx, events, core.NewErrorEvent(err.Error()))
			return
		}
		log.Info("exploration topic opened", "conversation_id", conv.ID, "topic_id", q.TopicID)
		d.emitConv(ctx, events, conv.ID, core.NewExplorationQuestionEvent(q.Text, q.Number, q.Type, q.IsLast, q.TopicID))
		return
	}

	sp, err := d.resolveSpecialist(req.AgentID, sess)
	if err != nil {
		d.emitConv(ctx, events, conv.ID, core.NewErrorEvent(err.Error()))
		return
	}

	sess.ActiveAgent = sp.ID
	sess.Touch()
	if err := d.sessions.Put(sess); err != nil {
		log.Warn("session update failed", "session_id", sess.ID, "error", err)
	}

	st := d.buildState(req, conv, subject, nil, req.Message)
	d.runSpecialist(ctx, conv, sp, st, req.Message, events)
}

// runExplorationAnswer advances the topic with the message as the pending
// answer, and on completion immediately invokes the specialist in the same
// stream with the accumulated context.
func (d *Dispatcher) runExplorationAnswer(ctx context.Context, req Request, conv *core.Conversation, subject *core.Subject, sess *session.Session, events chan<- core.StreamEvent) {
	outcome, err := d.exploration.SubmitAnswer(ctx, conv.ID, req.Message, subject)
	if err != nil {
		d.emitConv(ctx, events, conv.ID, core.NewErrorEvent(err.Error()))
		return
	}

	if outcome.Question != nil {
		q := outcome.Question
		d.emitConv(ctx, events, conv.ID, core.NewExplorationQuestionEvent(q.Text, q.Number, q.Type, q.IsLast, q.TopicID))
		return
	}

	state := outcome.Completed
	if !d.emitConv(ctx, events, conv.ID, core.NewExplorationCompleteEvent(state.ExplorationQA, state.DeepQA, state.InitialConcern, state.TopicID)) {
		return
	}

	sp, err := d.resolveSpecialist(req.AgentID, sess)
	if err != nil {
		d.emitConv(ctx, events, conv.ID, core.NewErrorEvent(err.Error()))
		return
	}

	st := d.buildState(req, conv, subject, state, state.InitialConcern)
	d.runSpecialist(ctx, conv, sp, st, state.InitialConcern, events)

	// topic context is read-once
	if err := d.exploration.Discard(ctx, conv.ID); err != nil {
		d.opts.Logger.Warn("exploration discard failed", "conversation_id", conv.ID, "error", err)
	}
}

// runSpecialist streams one specialist reply and persists the exchange after
// successful completion. A client disconnect stops forwarding and skips
// persistence entirely.
func (d *Dispatcher) runSpecialist(ctx context.Context, conv *core.Conversation, sp *agent.Specialist, st *agent.State, userContent string, events chan<- core.StreamEvent) {
	start := time.Now()
	messageID := core.NewID()

	if !d.emitConv(ctx, events, conv.ID, core.NewMessageStartEvent(messageID)) {
		return
	}

	chunks, errCh := d.pipeline.Run(ctx, sp, st)

	var final *agent.Chunk
	chunkCount := 0
	for ch := range chunks {
		if ch.Partial {
			chunkCount++
			if !d.emitConv(ctx, events, conv.ID, core.NewDeltaEvent(ch.Text)) {
				return
			}
			continue
		}
		c := ch
		final = &c
	}
	if err := <-errCh; err != nil {
		if ctx.Err() != nil {
			// client gone: nothing is persisted
			return
		}
		d.emitConv(ctx, events, conv.ID, core.NewErrorEvent(err.Error()))
		return
	}
	if final == nil {
		d.emitConv(ctx, events, conv.ID, core.NewErrorEvent("specialist produced no reply"))
		return
	}

	fullText := final.Text

	var det safety.Detection
	if !d.opts.DisableSafety {
		det = safety.DetectAll(userContent, fullText)
		if withDisclaimers := safety.ApplyDisclaimers(fullText, det.Flags); withDisclaimers != fullText {
			suffix := withDisclaimers[len(fullText):]
			if !d.emitConv(ctx, events, conv.ID, core.NewDeltaEvent(suffix)) {
				return
			}
			fullText = withDisclaimers
		}
	}

	if ctx.Err() != nil {
		return
	}

	firstExchange := len(conv.Messages) == 0

	userMsg := core.NewMessage(conv.ID, core.RoleUser, userContent)
	assistantMsg := core.Message{
		ID:             messageID,
		ConversationID: conv.ID,
		Role:           core.RoleAssistant,
		Content:        fullText,
		CreatedAt:      time.Now().UTC(),
	}
	if err := d.conversations.AppendMessages(ctx, conv.ID, []core.Message{userMsg, assistantMsg}); err != nil {
		d.emitConv(ctx, events, conv.ID, core.NewErrorEvent(fmt.Sprintf("%v: %v", core.ErrStore, err)))
		return
	}

	ev := core.NewMessageCompleteEvent(messageID, fullText)
	if firstExchange {
		title := summarizeTitle(userContent)
		if err := d.conversations.SetTitle(ctx, conv.ID, title); err != nil {
			d.opts.Logger.Warn("title rewrite failed", "conversation_id", conv.ID, "error", err)
		} else {
			ev.NewTitle = &title
		}
	}
	if det.RequiresReview {
		requiresReview := true
		ev.RequiresHumanReview = &requiresReview
	}
	ev.SafetyFlags = det.Flags

	d.opts.Logger.Info("reply stream completed",
		"conversation_id", conv.ID, "specialist", sp.ID, "chunks", chunkCount,
		"fell_back", final.FellBack, "duration", time.Since(start))
	d.emitConv(ctx, events, conv.ID, ev)
}

// resolveConversation loads the addressed conversation, or for session-scoped
// requests reuses the session's bound conversation so a pending exploration
// topic keeps receiving its answers. A fresh conversation is created only
// when the session has none (or its bound one was deleted), and the session
// is rebound to it.
func (d *Dispatcher) resolveConversation(ctx context.Context, req Request, sess *session.Session) (*core.Conversation, error) {
	if req.ConversationID != "" {
		conv, err := d.conversations.GetConversation(ctx, req.ConversationID)
		if err != nil {
			return nil, err
		}
		d.bindConversation(sess, conv.ID)
		return conv, nil
	}
	if sess.ActiveConversation != "" {
		conv, err := d.conversations.GetConversation(ctx, sess.ActiveConversation)
		if err == nil {
			return conv, nil
		}
		if !errors.Is(err, core.ErrConversationNotFound) {
			return nil, err
		}
	}
	subjectID := req.SubjectID
	if subjectID == "" {
		subjectID = d.opts.DefaultSubjectID
	}
	conv, err := d.conversations.CreateConversation(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("%w: create conversation: %v", core.ErrStore, err)
	}
	d.bindConversation(sess, conv.ID)
	return conv, nil
}

func (d *Dispatcher) bindConversation(sess *session.Session, convID string) {
	if sess.ActiveConversation == convID {
		return
	}
	sess.ActiveConversation = convID
	if err := d.sessions.Put(sess); err != nil {
		d.opts.Logger.Warn("session update failed", "session_id", sess.ID, "error", err)
	}
}

// lookupSubject resolves the conversation's subject; missing profiles fall
// back to the documented defaults rather than failing the request.
func (d *Dispatcher) lookupSubject(ctx context.Context, subjectID string, req Request) *core.Subject {
	sub, err := d.subjects.GetSubject(ctx, subjectID)
	if err != nil {
		age := req.Context.SubjectAge
		if age <= 0 {
			age = core.DefaultSubjectAge
		}
		return &core.Subject{ID: subjectID, AgeYears: age}
	}
	return sub
}

func (d *Dispatcher) resolveSpecialist(agentID string, sess *session.Session) (*agent.Specialist, error) {
	id := agentID
	if id == "" {
		id = sess.ActiveAgent
	}
	if id == "" {
		id = d.opts.DefaultAgentID
	}
	if !sess.AgentEnabled(id) {
		return nil, fmt.Errorf("%w: %q not enabled for session", core.ErrUnknownAgent, id)
	}
	return d.registry.Resolve(id)
}

func (d *Dispatcher) buildState(req Request, conv *core.Conversation, subject *core.Subject, exp *core.ExplorationState, concern string) *agent.State {
	st := agent.NewState(concern)
	if req.Context.Language != "" {
		st.Language = req.Context.Language
	}
	if subject != nil {
		st.SubjectName = subject.Name
		if subject.AgeYears > 0 {
			st.SubjectAge = subject.AgeYears
		}
	}
	if req.Context.SubjectAge > 0 {
		st.SubjectAge = req.Context.SubjectAge
	}
	for _, m := range conv.Messages {
		st.AppendHistory(model.Turn{Role: m.Role, Content: m.Content})
	}
	if exp != nil {
		st.ExplorationQA = append([]core.QuestionAnswer(nil), exp.ExplorationQA...)
		st.DeepQA = append([]core.QuestionAnswer(nil), exp.DeepQA...)
	}
	return st
}

// emit delivers one event unless the client context ended.
func (d *Dispatcher) emit(ctx context.Context, events chan<- core.StreamEvent, ev core.StreamEvent) bool {
	select {
	case <-ctx.Done():
		return false
	case events <- ev:
		return true
	}
}

// emitConv stamps the resolved conversation id before delivery.
func (d *Dispatcher) emitConv(ctx context.Context, events chan<- core.StreamEvent, convID string, ev core.StreamEvent) bool {
	ev.ConversationID = convID
	return d.emit(ctx, events, ev)
}

// summarizeTitle derives the one-time conversation title from the first
// user message: the first 50 characters, ellipsized when truncated.
func summarizeTitle(content string) string {
	content = strings.TrimSpace(content)
	runes := []rune(content)
	if len(runes) <= 50 {
		return content
	}
	return string(runes[:50]) + "..."
}
