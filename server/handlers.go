package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/dispatch"
)

// agentInfo is the public description of one registered specialist.
type agentInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Description string `json:"description"`
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	ids := s.registry.IDs()
	agents := make([]agentInfo, 0, len(ids))
	for _, id := range ids {
		sp, err := s.registry.Resolve(id)
		if err != nil {
			continue
		}
		agents = append(agents, agentInfo{
			ID:          sp.ID,
			DisplayName: sp.DisplayName,
			Description: sp.Description,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": agents})
}

func (s *Server) handleChatMessage(w http.ResponseWriter, r *http.Request) {
	var req dispatch.Request
	if !s.decodeBody(w, r, &req) {
		return
	}
	s.streamDispatch(w, r, req)
}

// conversationMessageRequest is the body of conversation-scoped streaming.
type conversationMessageRequest struct {
	SessionID string                  `json:"session_id,omitempty"`
	AgentID   string                  `json:"agent_id,omitempty"`
	Message   string                  `json:"message"`
	Context   dispatch.RequestContext `json:"context"`
}

func (s *Server) handleConversationStream(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")

	var body conversationMessageRequest
	if !s.decodeBody(w, r, &body) {
		return
	}
	sessionID := body.SessionID
	if sessionID == "" {
		sessionID = core.NewID()
	}

	s.streamDispatch(w, r, dispatch.Request{
		SessionID:      sessionID,
		AgentID:        body.AgentID,
		ConversationID: conversationID,
		Message:        body.Message,
		Context:        body.Context,
	})
}

// explorationAnswerRequest carries one answer to the pending question.
type explorationAnswerRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Answer    string `json:"answer"`
}

func (s *Server) handleExplorationAnswer(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")

	var body explorationAnswerRequest
	if !s.decodeBody(w, r, &body) {
		return
	}

	active, err := s.exploration.Active(r.Context(), conversationID)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !active {
		writeJSONError(w, http.StatusConflict, "no active exploration topic for conversation")
		return
	}

	sessionID := body.SessionID
	if sessionID == "" {
		sessionID = core.NewID()
	}
	s.streamDispatch(w, r, dispatch.Request{
		SessionID:      sessionID,
		ConversationID: conversationID,
		Message:        body.Answer,
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeJSONError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Delete(chi.URLParam(r, "id")); err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// createConversationRequest scopes a new conversation to a subject.
type createConversationRequest struct {
	SubjectID string `json:"subject_id"`
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var body createConversationRequest
	if !s.decodeBody(w, r, &body) {
		return
	}
	if body.SubjectID == "" {
		writeJSONError(w, http.StatusBadRequest, "subject_id is required")
		return
	}
	conv, err := s.conversations.CreateConversation(r.Context(), body.SubjectID)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	subjectID := r.URL.Query().Get("subject_id")
	if subjectID == "" {
		writeJSONError(w, http.StatusBadRequest, "subject_id query parameter is required")
		return
	}
	convs, err := s.conversations.ListConversations(r.Context(), subjectID)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": convs})
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := s.conversations.GetConversation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeJSONError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	if err := s.conversations.DeleteConversation(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeJSONError(w, statusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// streamDispatch hands the request to the dispatcher and relays its event
// stream over SSE. Failures before the stream opens remain plain JSON errors.
func (s *Server) streamDispatch(w http.ResponseWriter, r *http.Request, req dispatch.Request) {
	events, err := s.dispatcher.HandleMessage(r.Context(), req)
	if err != nil {
		writeJSONError(w, statusFor(err), err.Error())
		return
	}

	sse, err := newSSEWriter(w)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	for ev := range events {
		if err := sse.WriteEvent(ev); err != nil {
			s.opts.Logger.Warn("SSE write failed", "error", err)
			// client is gone; the dispatcher observes the request context
			return
		}
	}
}

// decodeBody parses a bounded JSON request body, writing the error response
// itself on failure.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrConversationNotFound),
		errors.Is(err, core.ErrSubjectNotFound),
		errors.Is(err, core.ErrSessionNotFound),
		errors.Is(err, core.ErrExplorationNotFound),
		errors.Is(err, core.ErrUnknownAgent):
		return http.StatusNotFound
	case errors.Is(err, core.ErrConversationBusy):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
