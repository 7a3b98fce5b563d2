package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/wardenhq/warden/internal/auth"
	"github.com/wardenhq/warden/internal/mfa"
	"github.com/wardenhq/warden/internal/runner"
	pkghttp "github.com/wardenhq/warden/pkg/http"
)

// ExecHandler serves the remote-execution endpoints. Every request passes
// level-2 credentials plus a valid MFA code; one validated code grants
// exactly one command.
type ExecHandler struct {
	runner       *runner.Runner
	orchestrator *mfa.Orchestrator
	streamTokens *auth.StreamTokenManager
	upgrader     websocket.Upgrader
	logger       *slog.Logger

	now func() time.Time

	mu      sync.Mutex
	pending map[string]pendingRun
}

// pendingRun is a command accepted for streaming but not yet connected.
// It expires with its stream token, so an unredeemed token never leaves an
// orphaned command behind.
type pendingRun struct {
	command   string
	timeout   time.Duration
	expiresAt time.Time
}

func NewExecHandler(r *runner.Runner, orchestrator *mfa.Orchestrator, streamTokens *auth.StreamTokenManager, logger *slog.Logger) *ExecHandler {
	return &ExecHandler{
		runner:       r,
		orchestrator: orchestrator,
		streamTokens: streamTokens,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		logger:  logger,
		now:     time.Now,
		pending: make(map[string]pendingRun),
	}
}

// RunCommandRequest is the body for POST /run-command.
type RunCommandRequest struct {
	Command        string `json:"command"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
}

// requireGrant validates the MFA code header. The code is consumed here, so
// a second command needs a fresh code.
func (h *ExecHandler) requireGrant(w http.ResponseWriter, r *http.Request) bool {
	code := r.Header.Get("X-MFA-Code")
	if code == "" {
		pkghttp.WriteUnauthorized(w, "Invalid or expired code")
		return false
	}
	if err := h.orchestrator.ValidateAny(r.Context(), code); err != nil {
		h.logger.Warn("remote execution denied, MFA code rejected",
			slog.String("ip", ClientIP(r)))
		pkghttp.WriteDomainError(w, err)
		return false
	}
	return true
}

// RunCommand handles POST /run-command. Executes the command to completion
// and returns its captured output.
func (h *ExecHandler) RunCommand(w http.ResponseWriter, r *http.Request) {
	if !h.requireGrant(w, r) {
		return
	}

	var req RunCommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Command == "" {
		pkghttp.WriteBadRequest(w, "command is required")
		return
	}

	result, err := h.runner.Run(r.Context(), req.Command, time.Duration(req.TimeoutSeconds)*time.Second)
	if err != nil {
		h.logger.Error("command execution failed", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Command execution failed")
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, result)
}

// RunCommandStreamResponse carries the single-use token for the websocket
// leg of a streaming run.
type RunCommandStreamResponse struct {
	StreamToken string `json:"stream_token"`
}

// RunCommandStream handles POST /run-command/stream. The command is parked
// and a single-use stream token returned; connecting to /ws/run with that
// token starts execution and streams output.
func (h *ExecHandler) RunCommandStream(w http.ResponseWriter, r *http.Request) {
	if !h.requireGrant(w, r) {
		return
	}

	var req RunCommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Command == "" {
		pkghttp.WriteBadRequest(w, "command is required")
		return
	}

	runID := uuid.NewString()
	h.mu.Lock()
	h.pending[runID] = pendingRun{
		command:   req.Command,
		timeout:   time.Duration(req.TimeoutSeconds) * time.Second,
		expiresAt: h.now().Add(h.streamTokens.TTL()),
	}
	h.mu.Unlock()

	token, err := h.streamTokens.Issue(runID)
	if err != nil {
		h.mu.Lock()
		delete(h.pending, runID)
		h.mu.Unlock()
		h.logger.Error("failed to issue stream token", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Failed to issue stream token")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, RunCommandStreamResponse{StreamToken: token})
}

// StreamSocket handles GET /ws/run. Consumes the stream token from the
// query, runs the parked command, and streams output line by line.
func (h *ExecHandler) StreamSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	runID, err := h.streamTokens.Consume(token)
	if err != nil {
		pkghttp.WriteDomainError(w, err)
		return
	}

	h.mu.Lock()
	run, ok := h.pending[runID]
	delete(h.pending, runID)
	h.mu.Unlock()
	if !ok {
		h.streamTokens.Release(token)
		pkghttp.WriteNotFound(w, "Not found")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade failed before any output was streamed; the token and the
		// parked run are discarded, a retry needs a fresh grant.
		h.streamTokens.Release(token)
		h.logger.Warn("websocket upgrade failed", slog.Any("error", err))
		return
	}
	defer conn.Close()

	lines, done, err := h.runner.Stream(r.Context(), run.command, run.timeout)
	if err != nil {
		h.logger.Error("failed to start streamed command", slog.Any("error", err))
		_ = conn.WriteJSON(map[string]string{"error": "failed to start command"})
		return
	}

	for line := range lines {
		if err := conn.WriteJSON(map[string]string{"line": line}); err != nil {
			h.logger.Warn("stream client went away", slog.Any("error", err))
			return
		}
	}

	if result := <-done; result != nil {
		_ = conn.WriteJSON(result)
	}
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"))
}

// SweepExpired drops parked runs whose stream token expired unredeemed and
// returns how many were removed.
func (h *ExecHandler) SweepExpired() int {
	now := h.now()
	h.mu.Lock()
	defer h.mu.Unlock()

	removed := 0
	for id, run := range h.pending {
		if now.After(run.expiresAt) {
			delete(h.pending, id)
			removed++
		}
	}
	return removed
}

// SetClock overrides the handler's time source. Test hook.
func (h *ExecHandler) SetClock(now func() time.Time) {
	h.now = now
}
