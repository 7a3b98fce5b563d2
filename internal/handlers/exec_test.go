package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wardenhq/warden/internal/auth"
	"github.com/wardenhq/warden/internal/mfa"
	"github.com/wardenhq/warden/internal/models"
	"github.com/wardenhq/warden/internal/runner"
)

func newExecTestHandler(t *testing.T, ch *stubChannel) (*ExecHandler, *mfa.Orchestrator) {
	t.Helper()

	store := newTestStore(t)
	orchestrator := newTestOrchestrator(t, store, ch)
	streamTokens := auth.NewStreamTokenManager(2*time.Minute, testLogger())
	cmdRunner := runner.New(5*time.Second, 10*time.Second, testLogger())

	return NewExecHandler(cmdRunner, orchestrator, streamTokens, testLogger()), orchestrator
}

func requestGrantCode(t *testing.T, o *mfa.Orchestrator, ch *stubChannel) string {
	t.Helper()

	_, err := o.Request(context.Background(), ch.name)
	require.NoError(t, err)
	require.NotEmpty(t, ch.dispatched)
	return ch.dispatched[len(ch.dispatched)-1]
}

func TestRunCommandWithGrant(t *testing.T) {
	ch := &stubChannel{name: models.ChannelEmail, code: "483921"}
	h, o := newExecTestHandler(t, ch)
	code := requestGrantCode(t, o, ch)

	r := httptest.NewRequest("POST", "/run-command",
		strings.NewReader(`{"command":"echo warden"}`))
	r.Header.Set("X-MFA-Code", code)

	w := httptest.NewRecorder()
	h.RunCommand(w, r)
	require.Equal(t, http.StatusOK, w.Code)

	var result runner.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, "warden\n", result.Stdout)
}

func TestRunCommandRejectedWithoutCode(t *testing.T) {
	ch := &stubChannel{name: models.ChannelEmail, code: "483921"}
	h, _ := newExecTestHandler(t, ch)

	r := httptest.NewRequest("POST", "/run-command",
		strings.NewReader(`{"command":"echo warden"}`))
	w := httptest.NewRecorder()
	h.RunCommand(w, r)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRunCommandGrantIsSingleUse(t *testing.T) {
	ch := &stubChannel{name: models.ChannelEmail, code: "483921"}
	h, o := newExecTestHandler(t, ch)
	code := requestGrantCode(t, o, ch)

	run := func() int {
		r := httptest.NewRequest("POST", "/run-command",
			strings.NewReader(`{"command":"echo once"}`))
		r.Header.Set("X-MFA-Code", code)
		w := httptest.NewRecorder()
		h.RunCommand(w, r)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, run())
	// The code was consumed by the first command.
	assert.Equal(t, http.StatusUnauthorized, run())
}

func TestRunCommandRequiresCommand(t *testing.T) {
	ch := &stubChannel{name: models.ChannelEmail, code: "483921"}
	h, o := newExecTestHandler(t, ch)
	code := requestGrantCode(t, o, ch)

	r := httptest.NewRequest("POST", "/run-command", strings.NewReader(`{}`))
	r.Header.Set("X-MFA-Code", code)
	w := httptest.NewRecorder()
	h.RunCommand(w, r)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRunCommandStreamIssuesToken(t *testing.T) {
	ch := &stubChannel{name: models.ChannelEmail, code: "483921"}
	h, o := newExecTestHandler(t, ch)
	code := requestGrantCode(t, o, ch)

	r := httptest.NewRequest("POST", "/run-command/stream",
		strings.NewReader(`{"command":"echo streamed"}`))
	r.Header.Set("X-MFA-Code", code)

	w := httptest.NewRecorder()
	h.RunCommandStream(w, r)
	require.Equal(t, http.StatusOK, w.Code)

	var resp RunCommandStreamResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.StreamToken)
}

func TestPendingRunsExpireWithTheirStreamToken(t *testing.T) {
	ch := &stubChannel{name: models.ChannelEmail, code: "483921"}
	h, o := newExecTestHandler(t, ch)
	code := requestGrantCode(t, o, ch)

	r := httptest.NewRequest("POST", "/run-command/stream",
		strings.NewReader(`{"command":"echo parked"}`))
	r.Header.Set("X-MFA-Code", code)
	w := httptest.NewRecorder()
	h.RunCommandStream(w, r)
	require.Equal(t, http.StatusOK, w.Code)

	// Nothing to sweep while the token is live.
	assert.Equal(t, 0, h.SweepExpired())

	// The client never connected; past the token TTL the parked run goes
	// with it.
	later := time.Now().Add(3 * time.Minute)
	h.SetClock(func() time.Time { return later })
	assert.Equal(t, 1, h.SweepExpired())
	assert.Equal(t, 0, h.SweepExpired())
}

func TestStreamSocketRejectsBadToken(t *testing.T) {
	ch := &stubChannel{name: models.ChannelEmail, code: "483921"}
	h, _ := newExecTestHandler(t, ch)

	r := httptest.NewRequest("GET", "/ws/run?token=never-issued", nil)
	w := httptest.NewRecorder()
	h.StreamSocket(w, r)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
