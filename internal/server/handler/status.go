package handler

import (
	"net/http"

	"github.com/alanyoungcy/weatherbot/internal/strategy"
)

// TableSource exposes the confidence table currently in use.
type TableSource interface {
	Table() strategy.ConfidenceTable
}

// StatusHandler serves the engine mode and calibration in use.
type StatusHandler struct {
	Mode   string
	Cities []string
	tables TableSource
}

// NewStatusHandler creates a StatusHandler. tables may be nil in modes that
// never classify.
func NewStatusHandler(mode string, cities []string, tables TableSource) *StatusHandler {
	return &StatusHandler{Mode: mode, Cities: cities, tables: tables}
}

// GetStatus responds with the mode, tracked cities and table version.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"mode":   h.Mode,
		"cities": h.Cities,
	}
	if h.tables != nil {
		t := h.tables.Table()
		body["table_version"] = t.Version
		body["max_lead"] = t.MaxLead
		body["max_agreement"] = t.MaxAgreement
	}
	writeJSON(w, http.StatusOK, body)
}
