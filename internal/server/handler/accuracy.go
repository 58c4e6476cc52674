package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/weatherbot/internal/domain"
)

// AccuracyHandler serves per-model accuracy rows.
type AccuracyHandler struct {
	accuracy domain.AccuracyStore
	logger   *slog.Logger
}

// NewAccuracyHandler creates an AccuracyHandler.
func NewAccuracyHandler(accuracy domain.AccuracyStore, logger *slog.Logger) *AccuracyHandler {
	return &AccuracyHandler{accuracy: accuracy, logger: logHandler(logger, "accuracy")}
}

// ListAccuracy returns accuracy rows for one city, or every city when the
// city parameter is absent.
// GET /api/accuracy?city=chicago
func (h *AccuracyHandler) ListAccuracy(w http.ResponseWriter, r *http.Request) {
	city := r.URL.Query().Get("city")
	rows, err := h.accuracy.List(r.Context(), city)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list accuracy", slog.String("city", city), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list accuracy")
		return
	}
	if rows == nil {
		rows = []domain.AccuracyRow{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"city":     city,
		"accuracy": rows,
		"count":    len(rows),
	})
}
