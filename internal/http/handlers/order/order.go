package order

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/matchd/matchd/internal/engine"
	"github.com/matchd/matchd/internal/idempotency"
	"github.com/matchd/matchd/internal/metrics"
	"github.com/matchd/matchd/internal/notify"
	"github.com/matchd/matchd/internal/persistence"
	"github.com/matchd/matchd/internal/storage"
	"github.com/matchd/matchd/internal/types"
	"github.com/matchd/matchd/internal/utils/response"
)

type OrderHandler struct {
	engine   *engine.MatchingEngine
	cache    idempotency.Cache
	queue    *persistence.Queue
	sink     notify.Sink
	storage  storage.Storage
	validate *validator.Validate
}

func NewOrderHandler(e *engine.MatchingEngine, cache idempotency.Cache, queue *persistence.Queue, sink notify.Sink, st storage.Storage) *OrderHandler {
	return &OrderHandler{
		engine:   e,
		cache:    cache,
		queue:    queue,
		sink:     sink,
		storage:  st,
		validate: validator.New(),
	}
}

// checkShape enforces what struct tags cannot: price is required and
// positive iff the order is a limit, forbidden for a market, and quantity
// is positive.
func checkShape(req *types.PlaceOrderRequest) error {
	if !req.Quantity.GreaterThan(decimal.Zero) {
		return errors.New("quantity must be greater than zero")
	}
	switch req.Type {
	case types.LIMIT:
		if req.Price == nil || !req.Price.GreaterThan(decimal.Zero) {
			return errors.New("limit orders require a positive price")
		}
	case types.MARKET:
		if req.Price != nil {
			return errors.New("market orders must not carry a price")
		}
	}
	return nil
}

func (h *OrderHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	timer := time.Now()
	defer func() {
		metrics.OrderLatency.WithLabelValues("place").Observe(time.Since(timer).Seconds())
	}()

	var req types.PlaceOrderRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	if errors.Is(err, io.EOF) {
		metrics.OrdersRejected.WithLabelValues("empty_body").Inc()
		response.WriteJson(w, http.StatusBadRequest, response.GeneralError(fmt.Errorf("empty body")))
		return
	}
	if err != nil {
		metrics.OrdersRejected.WithLabelValues("bad_json").Inc()
		response.WriteJson(w, http.StatusBadRequest, response.GeneralError(err))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		metrics.OrdersRejected.WithLabelValues("validation").Inc()
		validatorErrors := err.(validator.ValidationErrors)
		response.WriteJson(w, http.StatusBadRequest, response.ValidationError(validatorErrors))
		return
	}
	if err := checkShape(&req); err != nil {
		metrics.OrdersRejected.WithLabelValues("validation").Inc()
		response.WriteJson(w, http.StatusBadRequest, response.GeneralError(err))
		return
	}

	// a resubmission of the same key within TTL replays the previously
	// computed response verbatim, without touching the book
	if req.IdempotencyKey != "" {
		cached, ok, err := h.cache.Get(r.Context(), req.IdempotencyKey)
		if err != nil {
			slog.Error("idempotency get failed", slog.String("error", err.Error()))
		} else if ok {
			slog.Info("replaying cached response", slog.String("key", req.IdempotencyKey))
			response.WriteRaw(w, http.StatusOK, cached)
			return
		}
	}

	metrics.OrdersReceived.WithLabelValues(req.Instrument, string(req.Type), string(req.Side)).Inc()

	order := &types.Order{
		OrderID:    uuid.NewString(),
		ClientID:   req.ClientID,
		Instrument: req.Instrument,
		Side:       req.Side,
		Type:       req.Type,
		Price:      req.Price,
		Quantity:   req.Quantity,
	}

	res := h.engine.PlaceOrder(order)
	if len(res.Trades) > 0 {
		metrics.OrdersMatched.WithLabelValues(req.Instrument).Inc()
	}

	updated := res.UpdatedOrders

	payload := types.PlaceOrderResponse{
		Message: "order placed",
		Order:   updated[0],
		Trades:  res.Trades,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		slog.Error("failed to marshal response", slog.String("error", err.Error()))
		response.WriteJson(w, http.StatusInternalServerError, response.GeneralErrorString("internal server error"))
		return
	}

	// only successful matches are cached; failed attempts never are
	if req.IdempotencyKey != "" {
		if err := h.cache.Put(r.Context(), req.IdempotencyKey, body); err != nil {
			slog.Error("idempotency put failed", slog.String("error", err.Error()))
		}
	}

	response.WriteRaw(w, http.StatusCreated, body)

	// durability and notifications are decoupled from response latency
	if err := h.queue.Enqueue(persistence.Task{Trades: res.Trades, UpdatedOrders: updated}); err != nil {
		slog.Error("failed to enqueue persistence task", slog.String("error", err.Error()))
	}
	notify.PublishTrades(h.sink, res.Trades)
	notify.PublishOrders(h.sink, updated)
	notify.PublishBook(h.sink, h.engine.GetOrderBook(req.Instrument, 20))
}

func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	timer := time.Now()
	defer func() {
		metrics.OrderLatency.WithLabelValues("cancel").Observe(time.Since(timer).Seconds())
	}()

	orderID := r.PathValue("orderId")

	cancelled, found := h.engine.CancelOrder(orderID)
	if !found {
		response.WriteJson(w, http.StatusNotFound, response.GeneralErrorString("order not found"))
		return
	}

	slog.Info("order cancelled", slog.String("order_id", orderID))
	response.WriteJson(w, http.StatusOK, map[string]any{
		"message": "order cancelled",
		"order":   cancelled,
	})

	if err := h.queue.Enqueue(persistence.Task{UpdatedOrders: []types.Order{cancelled}}); err != nil {
		slog.Error("failed to enqueue persistence task", slog.String("error", err.Error()))
	}
	notify.PublishOrders(h.sink, []types.Order{cancelled})
	notify.PublishBook(h.sink, h.engine.GetOrderBook(cancelled.Instrument, 20))
}

func (h *OrderHandler) GetOrderBook(w http.ResponseWriter, r *http.Request) {
	instrument := r.URL.Query().Get("instrument")
	if instrument == "" {
		response.WriteJson(w, http.StatusBadRequest, response.GeneralErrorString("instrument is required"))
		return
	}

	levels := 20
	if raw := r.URL.Query().Get("levels"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			response.WriteJson(w, http.StatusBadRequest, response.GeneralErrorString("levels must be a positive integer"))
			return
		}
		levels = parsed
	}

	snapshot := h.engine.GetOrderBook(instrument, levels)

	bids, asks := h.engine.Depths(instrument)
	metrics.OrderBookDepth.WithLabelValues(instrument, "buy").Set(float64(bids))
	metrics.OrderBookDepth.WithLabelValues(instrument, "sell").Set(float64(asks))

	response.WriteJson(w, http.StatusOK, snapshot)
}

// GetOrderStatus serves the durable record; orders the engine no longer
// holds in memory are still readable once persisted.
func (h *OrderHandler) GetOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID := r.PathValue("orderId")

	if o, ok := h.engine.GetOrder(orderID); ok {
		response.WriteJson(w, http.StatusOK, o)
		return
	}

	o, err := h.storage.GetOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			response.WriteJson(w, http.StatusNotFound, response.GeneralErrorString("order not found"))
			return
		}
		slog.Error("failed to fetch order", slog.String("error", err.Error()))
		response.WriteJson(w, http.StatusInternalServerError, response.GeneralErrorString("failed to fetch order"))
		return
	}
	response.WriteJson(w, http.StatusOK, o)
}
