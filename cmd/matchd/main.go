package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/matchd/matchd/internal/config"
	"github.com/matchd/matchd/internal/engine"
	"github.com/matchd/matchd/internal/http/handlers/order"
	"github.com/matchd/matchd/internal/http/handlers/trade"
	"github.com/matchd/matchd/internal/idempotency"
	"github.com/matchd/matchd/internal/metrics"
	"github.com/matchd/matchd/internal/notify"
	"github.com/matchd/matchd/internal/persistence"
	"github.com/matchd/matchd/internal/storage/mysql"
	"github.com/matchd/matchd/internal/utils/response"
)

func main() {
	// load config
	cfg := config.MustLoad()

	// db setup
	storage, err := mysql.New(cfg)
	if err != nil {
		log.Fatal(err)
	}

	slog.Info("Storage initialized", slog.String("env", cfg.Env), slog.String("version", "1.0.0"))

	// idempotency cache: redis when configured, in-process otherwise
	var cache idempotency.Cache
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		cache = idempotency.NewRedisCache(client, idempotency.DefaultTTL)
		slog.Info("Idempotency cache initialized", slog.String("backend", "redis"), slog.String("addr", cfg.Redis.Addr))
	} else {
		cache = idempotency.NewMemoryCache(0, idempotency.DefaultTTL)
		slog.Info("Idempotency cache initialized", slog.String("backend", "memory"))
	}

	matcher := engine.NewMatchingEngine()
	queue := persistence.New(storage, cfg.Queue.Buffer, nil)
	hub := notify.NewHub()

	// setup router
	router := http.NewServeMux()

	orderHandler := order.NewOrderHandler(matcher, cache, queue, hub, storage)
	tradeHandler := trade.NewTradeHandler(storage)

	router.HandleFunc("POST /api/orders", orderHandler.PlaceOrder)
	router.HandleFunc("GET /api/orders/{orderId}", orderHandler.GetOrderStatus)
	router.HandleFunc("DELETE /api/orders/{orderId}", orderHandler.CancelOrder)
	router.HandleFunc("GET /api/orderbook", orderHandler.GetOrderBook)
	router.HandleFunc("GET /api/trades", tradeHandler.ListTrades)
	router.Handle("GET /metrics", metrics.Handler())
	router.Handle("GET /stream", hub)
	router.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := storage.Ping(r.Context()); err != nil {
			response.WriteJson(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "db": "disconnected"})
			return
		}
		response.WriteJson(w, http.StatusOK, map[string]string{"status": "ok", "db": "connected"})
	})

	// setup server
	server := http.Server{
		Addr:    cfg.Addr,
		Handler: router,
	}

	slog.Info("Server started", slog.String("address", cfg.Addr))

	// Graceful shutdown of server
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)
	go func() {
		err := server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			slog.Error("Failed to start server", slog.String("error", err.Error()))
		}
	}()

	<-done

	slog.Info("Shutting down the server...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// Shutdown server first so no new tasks are produced
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Failed to shutdown server", slog.String("error", err.Error()))
	}

	// Drain the persistence backlog before letting go of the database
	if err := queue.Close(ctx); err != nil {
		slog.Error("Persistence queue did not drain", slog.String("error", err.Error()))
	}

	hub.Close()

	// Close database connection
	if err := storage.Close(); err != nil {
		slog.Error("Failed to close database connection", slog.String("error", err.Error()))
	}

	slog.Info("Server shutdown successfully")
}
