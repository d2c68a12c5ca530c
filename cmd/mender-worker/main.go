// Mender Worker — выполняет workflow из очереди.
//
// Worker:
//   - Получает execution.requested из RabbitMQ
//   - Выполняет через Scheduler с ограничением параллелизма
//   - Лечит упавшие шаги и записывает лечение в документы
//   - Сохраняет историю (PostgreSQL или файлы аудита)
//   - Публикует execution.completed и healing.completed
//
// Workers масштабируются горизонтально.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Mender/internal/app"
	"github.com/shaiso/Mender/internal/config"
	"github.com/shaiso/Mender/internal/mq"
	"github.com/shaiso/Mender/internal/telemetry"
	"github.com/shaiso/Mender/internal/worker"
)

func main() {
	logger := telemetry.SetupLogger()
	logger.Info("starting mender-worker")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	opts := app.Options{Config: cfg, Logger: logger}

	if cfg.DatabaseURL != "" {
		history, err := app.OpenHistory(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer history.Close()
		history.Apply(&opts)
	}

	// RabbitMQ
	mqURL := cfg.RabbitMQURL
	if mqURL == "" {
		mqURL = mq.DefaultURL()
	}
	mqConn, err := mq.NewConnection(mqURL, logger)
	if err != nil {
		logger.Error("failed to connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer mqConn.Close()
	logger.Info("RabbitMQ connected")

	if err := mq.SetupTopology(ctx, mqConn); err != nil {
		logger.Error("failed to setup topology", "error", err)
		os.Exit(1)
	}
	publisher := mq.NewPublisher(mqConn, logger)

	opts.OnHealingFinished = worker.HealingEvents(publisher, logger)
	a := app.New(opts)

	w := worker.New(worker.Config{
		Runner:        a.Runner,
		MaxConcurrent: cfg.Batch.ConcurrencyLimit,
		Conn:          mqConn,
		Events:        publisher,
		Logger:        logger,
	})

	if err := w.Start(ctx); err != nil {
		logger.Error("failed to start worker", "error", err)
		os.Exit(1)
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, _ *http.Request) {
		if !mqConn.IsConnected() {
			http.Error(rw, "broker disconnected", http.StatusServiceUnavailable)
			return
		}
		rw.WriteHeader(http.StatusOK)
		rw.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":8082"
	if v := os.Getenv("WORKER_PORT"); v != "" {
		port = ":" + v
	}
	server := &http.Server{Addr: port, Handler: mux}

	go func() {
		logger.Info("listening", "addr", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	if err := w.Stop(shutdownCtx); err != nil {
		logger.Error("worker stop error", "error", err)
	}
	logger.Info("mender-worker stopped")
}
