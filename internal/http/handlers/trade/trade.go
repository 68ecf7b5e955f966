package trade

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/matchd/matchd/internal/storage"
	"github.com/matchd/matchd/internal/utils/response"
)

type TradeHandler struct {
	Storage storage.Storage
}

func NewTradeHandler(st storage.Storage) *TradeHandler {
	return &TradeHandler{
		Storage: st,
	}
}

func (h *TradeHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	instrument := r.URL.Query().Get("instrument")
	if instrument == "" {
		response.WriteJson(w, http.StatusBadRequest, response.GeneralErrorString("instrument is required"))
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			response.WriteJson(w, http.StatusBadRequest, response.GeneralErrorString("limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	slog.Info("Fetching trades for instrument", slog.String("instrument", instrument))

	trades, err := h.Storage.ListTrades(r.Context(), instrument, limit)
	if err != nil {
		slog.Error("Failed to fetch trades", slog.String("error", err.Error()))
		response.WriteJson(w, http.StatusInternalServerError, response.GeneralErrorString("failed to fetch trades"))
		return
	}

	response.WriteJson(w, http.StatusOK, map[string]any{
		"message": "trades fetched successfully",
		"data":    trades,
	})
}
