package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/wardenhq/warden/internal/mfa"
	"github.com/wardenhq/warden/internal/models"
	pkghttp "github.com/wardenhq/warden/pkg/http"
)

// MFAHandler handles passcode request, submission and enrolment endpoints.
type MFAHandler struct {
	orchestrator *mfa.Orchestrator
	logger       *slog.Logger
}

func NewMFAHandler(orchestrator *mfa.Orchestrator, logger *slog.Logger) *MFAHandler {
	return &MFAHandler{
		orchestrator: orchestrator,
		logger:       logger,
	}
}

// RequestCodeResponse is the body for a successful passcode request.
type RequestCodeResponse struct {
	Channel   string    `json:"channel"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SubmitCodeRequest is the body for passcode submission.
type SubmitCodeRequest struct {
	Code string `json:"code"`
}

// ListChannels handles GET /mfa/channels.
func (h *MFAHandler) ListChannels(w http.ResponseWriter, r *http.Request) {
	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{
		"channels": h.orchestrator.Channels(),
	})
}

// RequestCode handles POST /mfa/{channel}/request. Issues and dispatches a
// fresh passcode unless one was sent within the resend delay.
func (h *MFAHandler) RequestCode(w http.ResponseWriter, r *http.Request) {
	channel, ok := models.ParseMFAChannel(chi.URLParam(r, "channel"))
	if !ok {
		pkghttp.WriteNotFound(w, "Channel not configured")
		return
	}

	expiresAt, err := h.orchestrator.Request(r.Context(), channel)
	if err != nil {
		h.logger.Warn("passcode request rejected",
			slog.String("channel", string(channel)),
			slog.String("ip", ClientIP(r)))
		pkghttp.WriteDomainError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, RequestCodeResponse{
		Channel:   string(channel),
		ExpiresAt: expiresAt,
	})
}

// SubmitCode handles POST /mfa/{channel}/submit. A correct code is consumed
// by this call and cannot be used again.
func (h *MFAHandler) SubmitCode(w http.ResponseWriter, r *http.Request) {
	channel, ok := models.ParseMFAChannel(chi.URLParam(r, "channel"))
	if !ok {
		pkghttp.WriteNotFound(w, "Channel not configured")
		return
	}

	var req SubmitCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		pkghttp.WriteBadRequest(w, "code is required")
		return
	}

	if err := h.orchestrator.Validate(r.Context(), channel, req.Code); err != nil {
		h.logger.Warn("passcode rejected",
			slog.String("channel", string(channel)),
			slog.String("ip", ClientIP(r)))
		pkghttp.WriteDomainError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]bool{"valid": true})
}

// AuthenticatorSetup handles GET /mfa/authenticator/setup. Returns the
// provisioning URI and a QR PNG data URL for enrolment.
func (h *MFAHandler) AuthenticatorSetup(w http.ResponseWriter, r *http.Request) {
	ch, ok := h.orchestrator.Channel(models.ChannelAuthenticator)
	if !ok {
		pkghttp.WriteNotFound(w, "Channel not configured")
		return
	}
	authenticator, ok := ch.(*mfa.AuthenticatorChannel)
	if !ok {
		pkghttp.WriteNotFound(w, "Channel not configured")
		return
	}

	qr, err := authenticator.QRCodeDataURL()
	if err != nil {
		h.logger.Error("failed to render enrolment QR", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Failed to generate QR code")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{
		"provisioning_uri": authenticator.ProvisioningURI(),
		"qr_code":          qr,
	})
}
