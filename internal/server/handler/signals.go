package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/weatherbot/internal/domain"
)

// SignalHandler serves classified signals.
type SignalHandler struct {
	signals domain.SignalStore
	logger  *slog.Logger
}

// NewSignalHandler creates a SignalHandler.
func NewSignalHandler(signals domain.SignalStore, logger *slog.Logger) *SignalHandler {
	return &SignalHandler{signals: signals, logger: logHandler(logger, "signals")}
}

// ListSignals returns signals newest first, optionally filtered by city and
// target date range.
// GET /api/signals?city=london&since=2026-10-01&limit=50
func (h *SignalHandler) ListSignals(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sigs, err := h.signals.List(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list signals", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list signals")
		return
	}
	if sigs == nil {
		sigs = []domain.Signal{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"signals": sigs,
		"count":   len(sigs),
		"limit":   opts.Limit,
		"offset":  opts.Offset,
	})
}
