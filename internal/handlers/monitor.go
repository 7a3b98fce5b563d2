package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/wardenhq/warden/internal/auth"
	"github.com/wardenhq/warden/internal/sysinfo"
	pkghttp "github.com/wardenhq/warden/pkg/http"
)

// MonitorHandler serves the monitoring pages: cookie login, a minimal
// dashboard, and the live snapshot websocket.
type MonitorHandler struct {
	sessions  *auth.SessionManager
	collector *sysinfo.Collector
	upgrader  websocket.Upgrader
	interval  time.Duration
	secure    bool
	lease     time.Duration
	logger    *slog.Logger
}

func NewMonitorHandler(sessions *auth.SessionManager, collector *sysinfo.Collector, lease time.Duration, secure bool, logger *slog.Logger) *MonitorHandler {
	return &MonitorHandler{
		sessions:  sessions,
		collector: collector,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		interval: 2 * time.Second,
		secure:   secure,
		lease:    lease,
		logger:   logger,
	}
}

// LoginRequest is the body for POST /login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login handles POST /login. Success sets the session cookie.
func (h *MonitorHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" || req.Password == "" {
		pkghttp.WriteBadRequest(w, "username and password are required")
		return
	}

	session, cookie, err := h.sessions.Login(req.Username, req.Password, ClientIP(r))
	if err != nil {
		h.logger.Warn("monitor login rejected", slog.String("ip", ClientIP(r)))
		pkghttp.WriteDomainError(w, err)
		return
	}

	auth.SetSessionCookie(w, cookie, h.lease, h.secure)
	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"expires_at":    session.ExpiresAt(),
	})
}

// Logout handles POST /logout.
func (h *MonitorHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := auth.GetSessionCookie(r); err == nil {
		h.sessions.Logout(cookie)
	}
	auth.ClearSessionCookie(w, h.secure)
	pkghttp.WriteJSON(w, http.StatusOK, map[string]bool{"authenticated": false})
}

// RequireSession gates the monitor page and websocket behind a valid
// session cookie.
func (h *MonitorHandler) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := auth.GetSessionCookie(r)
		if err != nil {
			pkghttp.WriteUnauthorized(w, "Authentication failed")
			return
		}
		if _, err := h.sessions.Validate(cookie); err != nil {
			pkghttp.WriteDomainError(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// MonitorPage handles GET /monitor with a minimal live dashboard.
func (h *MonitorHandler) MonitorPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(monitorPage))
}

// SystemSocket handles GET /ws/system. Pushes a snapshot every tick and
// re-validates the session cookie on every tick, so an expired or logged-out
// session drops the stream mid-flight.
func (h *MonitorHandler) SystemSocket(w http.ResponseWriter, r *http.Request) {
	cookie, err := auth.GetSessionCookie(r)
	if err != nil {
		pkghttp.WriteUnauthorized(w, "Authentication failed")
		return
	}
	if _, err := h.sessions.Validate(cookie); err != nil {
		pkghttp.WriteDomainError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.Any("error", err))
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := h.sessions.Validate(cookie); err != nil {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "session expired"))
				return
			}

			snap, err := h.collector.Snapshot(r.Context())
			if err != nil {
				h.logger.Error("failed to collect snapshot for stream", slog.Any("error", err))
				continue
			}
			if err := conn.WriteJSON(snap); err != nil {
				return
			}
		}
	}
}

const monitorPage = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Warden Monitor</title>
<style>
body { font-family: monospace; background: #111; color: #ddd; margin: 2em; }
pre { background: #1a1a1a; padding: 1em; border-radius: 4px; }
</style>
</head>
<body>
<h1>Warden Monitor</h1>
<pre id="out">connecting...</pre>
<script>
const proto = location.protocol === "https:" ? "wss" : "ws";
const ws = new WebSocket(proto + "://" + location.host + "/ws/system");
ws.onmessage = (e) => {
  document.getElementById("out").textContent = JSON.stringify(JSON.parse(e.data), null, 2);
};
ws.onclose = () => {
  document.getElementById("out").textContent += "\n[disconnected]";
};
</script>
</body>
</html>
`
