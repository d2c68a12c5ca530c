// Mender API — HTTP API для постановки и просмотра выполнений.
//
// Запросы на выполнение публикуются в RabbitMQ для mender-worker. Если
// брокер не настроен (MENDER_RABBITMQ_URL пуст), выполнения идут в
// процессе API через встроенный Worker.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Mender/internal/api"
	"github.com/shaiso/Mender/internal/app"
	"github.com/shaiso/Mender/internal/config"
	"github.com/shaiso/Mender/internal/mq"
	"github.com/shaiso/Mender/internal/telemetry"
	"github.com/shaiso/Mender/internal/worker"
)

var (
	startTime = time.Now()
	reqTotal  = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mender_api_healthz_requests_total",
		Help: "Total health checks handled by mender-api",
	})
)

// localQueue выполняет запросы в процессе API.
type localQueue struct {
	w *worker.Worker
}

func (q localQueue) PublishExecutionRequested(_ context.Context, p mq.ExecutionRequestedPayload) error {
	_, err := q.w.Submit(p)
	return err
}

func main() {
	logger := telemetry.SetupLogger()
	logger.Info("starting mender-api")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	opts := app.Options{Config: cfg, Logger: logger}

	var history *app.History
	if cfg.DatabaseURL != "" {
		history, err = app.OpenHistory(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer history.Close()
		history.Apply(&opts)
	}
	a := app.New(opts)

	// чтение истории из того же хранилища, куда пишет выполнение
	hcfg := api.Config{Executions: a.Audit, Healing: a.Audit, Logger: logger}
	if history != nil {
		hcfg.Executions, hcfg.Healing = history.Executions, history.Healing
	}

	var local *worker.Worker
	if cfg.RabbitMQURL != "" {
		mqConn, err := mq.NewConnection(cfg.RabbitMQURL, logger)
		if err != nil {
			logger.Error("failed to connect to RabbitMQ", "error", err)
			os.Exit(1)
		}
		defer mqConn.Close()

		if err := mq.SetupTopology(ctx, mqConn); err != nil {
			logger.Error("failed to setup topology", "error", err)
			os.Exit(1)
		}
		hcfg.Queue = mq.NewPublisher(mqConn, logger)
		logger.Info("RabbitMQ connected")
	} else {
		local = worker.New(worker.Config{
			Runner:        a.Runner,
			MaxConcurrent: cfg.Batch.ConcurrencyLimit,
			Logger:        logger,
		})
		if err := local.Start(ctx); err != nil {
			logger.Error("failed to start local worker", "error", err)
			os.Exit(1)
		}
		hcfg.Queue = localQueue{w: local}
		logger.Warn("RabbitMQ not configured, executing requests in-process")
	}

	handler := api.NewHandler(hcfg)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		reqTotal.Inc()
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(startTime))
	})
	mux.Handle("/metrics", promhttp.Handler())

	handler.RegisterRoutes(mux)

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: mux,
	}

	go func() {
		logger.Info("listening", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
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
	if local != nil {
		if err := local.Stop(shutdownCtx); err != nil {
			logger.Error("local worker stop error", "error", err)
		}
	}

	logger.Info("stopped")
}
