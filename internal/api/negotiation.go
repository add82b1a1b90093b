package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/influai/control-plane/internal/llm"
	"github.com/influai/control-plane/internal/negotiation"
)

type negotiateRequest struct {
	UserPrompt     string         `json:"userPrompt"`
	InfluencerData map[string]any `json:"influencerData"`
}

type conversationRequest struct {
	ConversationID string         `json:"conversationId"`
	UserMessage    string         `json:"userMessage"`
	InfluencerData map[string]any `json:"influencerData"`
}

func (s *Server) negotiate(w http.ResponseWriter, r *http.Request) {
	if !s.negotiationReady(w) {
		return
	}
	var req negotiateRequest
	if !s.readNegotiationBody(w, r, &req) {
		return
	}
	draft, err := s.negotiation.Start(r.Context(), req.UserPrompt, req.InfluencerData)
	if err != nil {
		writeNegotiationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

func (s *Server) negotiateConversation(w http.ResponseWriter, r *http.Request) {
	if !s.negotiationReady(w) {
		return
	}
	var req conversationRequest
	if !s.readNegotiationBody(w, r, &req) {
		return
	}
	reply, err := s.negotiation.Reply(r.Context(), req.ConversationID, req.UserMessage)
	if err != nil {
		writeNegotiationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) endConversation(w http.ResponseWriter, r *http.Request) {
	if !s.negotiationReady(w) {
		return
	}
	var req conversationRequest
	if !s.readNegotiationBody(w, r, &req) {
		return
	}
	if err := s.negotiation.End(r.Context(), req.ConversationID); err != nil {
		writeNegotiationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "Conversation ended"})
}

func (s *Server) negotiationHealth(w http.ResponseWriter, r *http.Request) {
	if !s.negotiationReady(w) {
		return
	}
	health, err := s.negotiation.Health(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, health)
}

// readNegotiationBody answers "Invalid JSON" for bodies that do not decode and for
// empty objects, null included.
func (s *Server) readNegotiationBody(w http.ResponseWriter, r *http.Request, out any) bool {
	var raw json.RawMessage
	if err := s.decodeJSONBody(w, r, &raw); err == nil {
		var fields map[string]json.RawMessage
		if json.Unmarshal(raw, &fields) == nil && len(fields) > 0 && json.Unmarshal(raw, out) == nil {
			return true
		}
	}
	writeError(w, http.StatusBadRequest, "Invalid JSON")
	return false
}

func (s *Server) negotiationReady(w http.ResponseWriter) bool {
	if s.negotiation == nil {
		writeError(w, http.StatusServiceUnavailable, "negotiation is not configured")
		return false
	}
	return true
}

func writeNegotiationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, negotiation.ErrPromptRequired):
		writeError(w, http.StatusBadRequest, "'userPrompt' is required.")
	case errors.Is(err, negotiation.ErrConversationIDRequired):
		writeError(w, http.StatusBadRequest, "'conversationId' is required.")
	case errors.Is(err, negotiation.ErrMessageRequired):
		writeError(w, http.StatusBadRequest, "'userMessage' is required.")
	case errors.Is(err, llm.ErrEmptyResponse):
		writeError(w, http.StatusInternalServerError, "Empty response from Gemini")
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "Gemini API error: " + err.Error(),
			"type":  errorType(err),
		})
	}
}

// errorType names the concrete type of err without its package or pointer marker.
func errorType(err error) string {
	name := fmt.Sprintf("%T", err)
	name = strings.TrimPrefix(name, "*")
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		name = name[idx+1:]
	}
	return name
}
