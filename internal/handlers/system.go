package handlers

import (
	"log/slog"
	"net/http"

	"github.com/wardenhq/warden/internal/storage"
	"github.com/wardenhq/warden/internal/sysinfo"
	pkghttp "github.com/wardenhq/warden/pkg/http"
)

// SystemHandler serves host metrics snapshots.
type SystemHandler struct {
	collector *sysinfo.Collector
	store     *storage.Store
	logger    *slog.Logger
}

func NewSystemHandler(collector *sysinfo.Collector, store *storage.Store, logger *slog.Logger) *SystemHandler {
	return &SystemHandler{
		collector: collector,
		store:     store,
		logger:    logger,
	}
}

// Health handles GET /health. Unauthenticated liveness probe that also
// reports store reachability.
func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := h.store.Ping(r.Context()); err != nil {
		h.logger.Error("health check store ping failed", slog.Any("error", err))
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	pkghttp.WriteJSON(w, code, map[string]string{"status": status})
}

// GetAll handles GET /get-all. Full system snapshot.
func (h *SystemHandler) GetAll(w http.ResponseWriter, r *http.Request) {
	snap, err := h.collector.Snapshot(r.Context())
	if err != nil {
		h.logger.Error("failed to collect system snapshot", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Failed to collect metrics")
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, snap)
}

// GetCPU handles GET /get-cpu.
func (h *SystemHandler) GetCPU(w http.ResponseWriter, r *http.Request) {
	snap, err := h.collector.Snapshot(r.Context())
	if err != nil {
		h.logger.Error("failed to collect system snapshot", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Failed to collect metrics")
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, snap.CPU)
}

// GetMemory handles GET /get-memory.
func (h *SystemHandler) GetMemory(w http.ResponseWriter, r *http.Request) {
	snap, err := h.collector.Snapshot(r.Context())
	if err != nil {
		h.logger.Error("failed to collect system snapshot", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Failed to collect metrics")
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, snap.Memory)
}

// GetDisks handles GET /get-all-disks.
func (h *SystemHandler) GetDisks(w http.ResponseWriter, r *http.Request) {
	snap, err := h.collector.Snapshot(r.Context())
	if err != nil {
		h.logger.Error("failed to collect system snapshot", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Failed to collect metrics")
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, snap.Disks)
}

// GetProcesses handles GET /get-process-status.
func (h *SystemHandler) GetProcesses(w http.ResponseWriter, r *http.Request) {
	snap, err := h.collector.Snapshot(r.Context())
	if err != nil {
		h.logger.Error("failed to collect system snapshot", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Failed to collect metrics")
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{
		"process_count": snap.Processes,
		"top_by_cpu":    snap.TopByCPU,
		"top_by_memory": snap.TopByMem,
	})
}
