package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerdfunk-net/cockpit-ng-sub003/internal/apperrors"
)

// Wait-and-return timeouts for the agent command endpoints. The generic
// endpoint and git-pull share 30s; docker-restart gets longer since a
// container restart can take a while to report back.
const (
	agentCommandWaitTimeout       = 30 * time.Second
	agentGitPullWaitTimeout       = 30 * time.Second
	agentDockerRestartWaitTimeout = 60 * time.Second
)

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := s.agentBus.ListAgents(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agents)
}

// sendAgentCommandRequest is the POST /api/agents/{agentID}/commands body.
type sendAgentCommandRequest struct {
	Command string          `json:"command" validate:"required"`
	Params  json.RawMessage `json:"params"`
	Wait    bool            `json:"wait"`
}

// handleSendAgentCommand publishes a command to the named agent. With
// wait=true it blocks for up to agentCommandWaitTimeout for the agent's
// response and returns 504 if none arrives in time; otherwise it returns
// immediately with the pending command id. An offline agent short-circuits
// to 503 before anything is published or persisted.
func (s *Server) handleSendAgentCommand(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	if agentID == "" {
		writeError(w, apperrors.New(apperrors.Validation, "missing agent id"))
		return
	}

	var req sendAgentCommandRequest
	if err := decodeAndValidate(s, r, &req); err != nil {
		writeError(w, err)
		return
	}

	if !s.requireAgentOnline(w, r, agentID) {
		return
	}

	c, _ := claimsFromContext(r.Context())
	commandID, err := s.agentBus.SendCommand(r.Context(), agentID, req.Command, req.Params, c.Username)
	if err != nil {
		writeError(w, err)
		return
	}

	if !req.Wait {
		writeJSON(w, http.StatusAccepted, map[string]string{"command_id": commandID, "status": "pending"})
		return
	}

	resp, err := s.agentBus.WaitForResponse(backgroundContext(), agentID, commandID, agentCommandWaitTimeout)
	if err != nil {
		writeJSON(w, http.StatusGatewayTimeout, map[string]string{"command_id": commandID, "error": "timed out waiting for agent response"})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// gitPullRequest is the POST /api/agents/{agentID}/git-pull body.
type gitPullRequest struct {
	RepositoryPath string `json:"repository_path" validate:"required"`
	Branch         string `json:"branch"`
}

// handleAgentGitPull is the wait-and-return convenience variant of
// handleSendAgentCommand for the git_pull command: always waits, with a
// fixed 30s timeout.
func (s *Server) handleAgentGitPull(w http.ResponseWriter, r *http.Request) {
	var req gitPullRequest
	if err := decodeAndValidate(s, r, &req); err != nil {
		writeError(w, err)
		return
	}
	params, err := json.Marshal(req)
	if err != nil {
		writeError(w, apperrors.New(apperrors.Validation, "invalid request body: "+err.Error()))
		return
	}
	s.dispatchAgentCommandAndWait(w, r, "git_pull", params, agentGitPullWaitTimeout)
}

// dockerRestartRequest is the POST /api/agents/{agentID}/docker-restart body.
type dockerRestartRequest struct {
	Container string `json:"container" validate:"required"`
}

// handleAgentDockerRestart is the wait-and-return convenience variant of
// handleSendAgentCommand for the docker_restart command: always waits, with
// a fixed 60s timeout.
func (s *Server) handleAgentDockerRestart(w http.ResponseWriter, r *http.Request) {
	var req dockerRestartRequest
	if err := decodeAndValidate(s, r, &req); err != nil {
		writeError(w, err)
		return
	}
	params, err := json.Marshal(req)
	if err != nil {
		writeError(w, apperrors.New(apperrors.Validation, "invalid request body: "+err.Error()))
		return
	}
	s.dispatchAgentCommandAndWait(w, r, "docker_restart", params, agentDockerRestartWaitTimeout)
}

// requireAgentOnline writes a 503 and reports false when agentID's last
// heartbeat is stale. Callers must check this before SendCommand so an
// offline agent never gets a command row persisted on its behalf.
func (s *Server) requireAgentOnline(w http.ResponseWriter, r *http.Request, agentID string) bool {
	online, err := s.agentBus.IsOnline(r.Context(), agentID)
	if err != nil {
		writeError(w, err)
		return false
	}
	if !online {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"detail": "Agent is offline or not responding"})
		return false
	}
	return true
}

// dispatchAgentCommandAndWait is the shared body of the git-pull and
// docker-restart convenience handlers: online check, send, then block for
// the response up to timeout.
func (s *Server) dispatchAgentCommandAndWait(w http.ResponseWriter, r *http.Request, command string, params json.RawMessage, timeout time.Duration) {
	agentID := chi.URLParam(r, "agentID")
	if agentID == "" {
		writeError(w, apperrors.New(apperrors.Validation, "missing agent id"))
		return
	}
	if !s.requireAgentOnline(w, r, agentID) {
		return
	}

	c, _ := claimsFromContext(r.Context())
	commandID, err := s.agentBus.SendCommand(r.Context(), agentID, command, params, c.Username)
	if err != nil {
		writeError(w, err)
		return
	}

	resp, err := s.agentBus.WaitForResponse(backgroundContext(), agentID, commandID, timeout)
	if err != nil {
		writeJSON(w, http.StatusGatewayTimeout, map[string]string{"command_id": commandID, "error": "timed out waiting for agent response"})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
