package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/weatherbot/internal/domain"
	"github.com/alanyoungcy/weatherbot/internal/strategy"
)

// TradeHandler serves paper trades and their drift alerts.
type TradeHandler struct {
	trades domain.TradeStore
	alerts domain.AlertStore
	logger *slog.Logger
}

// NewTradeHandler creates a TradeHandler.
func NewTradeHandler(trades domain.TradeStore, alerts domain.AlertStore, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{trades: trades, alerts: alerts, logger: logHandler(logger, "trades")}
}

// ListTrades returns trades newest first with a running PnL total over the
// resolved ones in the page.
// GET /api/trades?city=paris
func (h *TradeHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	trades, err := h.trades.List(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list trades", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list trades")
		return
	}
	if trades == nil {
		trades = []domain.Trade{}
	}

	var open, won, lost int
	var pnl float64
	for _, t := range trades {
		switch t.Status {
		case domain.TradeOpen:
			open++
		case domain.TradeWon:
			won++
		case domain.TradeLost:
			lost++
		}
		if t.PnL != nil {
			pnl += *t.PnL
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"trades": trades,
		"count":  len(trades),
		"open":   open,
		"won":    won,
		"lost":   lost,
		"pnl":    strategy.Round2(pnl),
	})
}

// ListAlerts returns the drift history of one trade, oldest first.
// GET /api/trades/{id}/alerts
func (h *TradeHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing trade id")
		return
	}

	trade, err := h.trades.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "trade not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "get trade", slog.String("id", id), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to load trade")
		return
	}

	alerts, err := h.alerts.ListByTrade(r.Context(), id)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list alerts", slog.String("id", id), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list alerts")
		return
	}
	if alerts == nil {
		alerts = []domain.TradeAlert{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"trade":  trade,
		"alerts": alerts,
	})
}
