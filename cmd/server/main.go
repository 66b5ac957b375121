package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"breathing-analytics/internal/analytics"
	"breathing-analytics/internal/cache"
	"breathing-analytics/internal/config"
	"breathing-analytics/internal/emitter"
	"breathing-analytics/internal/handlers"
	"breathing-analytics/internal/metrics"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	slog.Info("starting breathing analytics service")

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Инициализация Redis
	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	redisCache, err := cache.NewRedisCache(connectCtx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.ResultRetention)
	cancel()
	if err != nil {
		slog.Error("failed to connect to Redis", "addr", cfg.RedisAddr, "error", err)
		os.Exit(1)
	}
	defer redisCache.Close()
	slog.Info("connected to Redis", "addr", cfg.RedisAddr)

	// MQTT необязателен
	var publisher handlers.Publisher
	if cfg.MQTTBroker != "" {
		mqttEmitter := emitter.NewMQTTEmitter(emitter.Config{
			Broker:      cfg.MQTTBroker,
			ClientID:    cfg.MQTTClientID,
			TopicPrefix: cfg.MQTTTopicPrefix,
			QoS:         1,
		})
		connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := mqttEmitter.Connect(connectCtx)
		cancel()
		if err != nil {
			slog.Warn("mqtt unavailable, summaries will not be published", "error", err)
		} else {
			defer mqttEmitter.Disconnect()
			publisher = mqttEmitter
		}
	}

	pipeline := analytics.NewPipeline(cfg.Params, logger)
	pool := analytics.NewPool(pipeline, cfg.QueueSize)
	pool.Start(cfg.Workers)
	slog.Info("analysis pool started", "workers", cfg.Workers, "queue_size", cfg.QueueSize)

	handler := handlers.NewHandler(pipeline, pool, redisCache, publisher, cfg.MaxBodyBytes)

	// Результаты пула сохраняются в фоне
	delivered := make(chan struct{})
	go func() {
		defer close(delivered)
		handler.ProcessResults(context.WithoutCancel(ctx), pool.Results())
	}()

	go updateMetrics(ctx, pool)

	mux := http.NewServeMux()
	handler.Routes(mux)
	mux.Handle("/prometheus", promhttp.Handler())

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server listening", "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	pool.Stop()
	<-delivered

	slog.Info("server stopped gracefully")
}

// updateMetrics периодически обновляет метрики очереди
func updateMetrics(ctx context.Context, pool *analytics.Pool) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.QueueSize.Set(float64(pool.QueueSize()))
		}
	}
}
