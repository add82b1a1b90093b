package api

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/influai/control-plane/internal/metrics"
	"github.com/influai/control-plane/internal/voice"
)

type signedURLRequest struct {
	AgentID string `json:"agentId"`
}

type signedURLResponse struct {
	SignedURL string `json:"signedUrl"`
}

// getSignedURL issues a voice session URL for the agent configured on the server.
func (s *Server) getSignedURL(w http.ResponseWriter, r *http.Request) {
	agentID := strings.TrimSpace(s.cfg.AgentID)
	if agentID == "" {
		metrics.ObserveSignedURL("misconfigured")
		writeError(w, http.StatusInternalServerError, "Agent ID not configured")
		return
	}
	if s.voice == nil {
		metrics.ObserveSignedURL("misconfigured")
		writeError(w, http.StatusInternalServerError, "Could not generate signed URL")
		return
	}
	url, err := s.voice.SignedURL(r.Context(), agentID)
	if err != nil {
		s.logger.Error("signed url request failed", zap.Error(err))
		metrics.ObserveSignedURL("failed")
		writeError(w, http.StatusInternalServerError, "Could not generate signed URL")
		return
	}
	metrics.ObserveSignedURL("success")
	writeJSON(w, http.StatusOK, signedURLResponse{SignedURL: url})
}

// getSignedWSURL issues a voice session URL for an agent named by the caller.
func (s *Server) getSignedWSURL(w http.ResponseWriter, r *http.Request) {
	var req signedURLRequest
	if err := s.decodeJSONBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	agentID := strings.TrimSpace(req.AgentID)
	if agentID == "" {
		writeError(w, http.StatusBadRequest, "Missing agentId in request body")
		return
	}
	if s.voice == nil {
		metrics.ObserveSignedURL("misconfigured")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	url, err := s.voice.SignedURL(r.Context(), agentID)
	if err != nil {
		var statusErr *voice.StatusError
		if errors.As(err, &statusErr) {
			s.logger.Warn("voice provider rejected signed url request", zap.Int("status", statusErr.Code), zap.String("body", statusErr.Body))
			metrics.ObserveSignedURL("upstream_error")
			writeError(w, http.StatusBadGateway, "Failed to fetch signed URL")
			return
		}
		s.logger.Error("signed url request failed", zap.Error(err))
		metrics.ObserveSignedURL("failed")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	metrics.ObserveSignedURL("success")
	writeJSON(w, http.StatusOK, signedURLResponse{SignedURL: url})
}
