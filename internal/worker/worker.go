package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/shaiso/Mender/internal/domain"
	"github.com/shaiso/Mender/internal/mq"
	"github.com/shaiso/Mender/internal/scheduler"
)

// Default configuration values.
const (
	defaultCleanupInterval = 5 * time.Minute
	defaultTaskTTL         = time.Hour
	defaultPrefetch        = 5
)

// Events публикует итоги; реализуется mq.Publisher.
type Events interface {
	PublishExecutionCompleted(ctx context.Context, r *domain.WorkflowExecutionResult) error
	PublishBatchCompleted(ctx context.Context, b *domain.BatchExecutionResult) error
	PublishHealingCompleted(ctx context.Context, s *domain.HealingSession) error
}

// Worker выполняет запросы из очереди executions.requested.
//
// Каждый запрос становится задачей Scheduler: одновременно выполняется
// не больше MaxConcurrent задач, остальные ждут. Итог задачи
// публикуется в execution.completed. Завершённые задачи периодически
// удаляются из реестра.
type Worker struct {
	sched  *scheduler.Scheduler
	events Events
	conn   *mq.Connection

	prefetch        int
	cleanupInterval time.Duration
	taskTTL         time.Duration

	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup

	stoppedMu sync.RWMutex
	stopped   bool
}

// Config — конфигурация Worker.
type Config struct {
	// Runner выполняет workflow (executor.Runner).
	Runner scheduler.Runner

	// MaxConcurrent — предел одновременных задач (default: 10).
	MaxConcurrent int

	// Conn — соединение с брокером; nil — без потребителя (только Submit).
	Conn *mq.Connection

	// Events — публикация итогов (опционально).
	Events Events

	Prefetch        int
	CleanupInterval time.Duration // default: 5m
	TaskTTL         time.Duration // сколько хранить завершённые задачи (default: 1h)

	Logger *slog.Logger
}

// New создаёт новый Worker.
func New(cfg Config) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = defaultPrefetch
	}
	interval := cfg.CleanupInterval
	if interval <= 0 {
		interval = defaultCleanupInterval
	}
	ttl := cfg.TaskTTL
	if ttl <= 0 {
		ttl = defaultTaskTTL
	}

	w := &Worker{
		events:          cfg.Events,
		conn:            cfg.Conn,
		prefetch:        prefetch,
		cleanupInterval: interval,
		taskTTL:         ttl,
		logger:          logger,
	}
	w.sched = scheduler.New(scheduler.Config{
		Runner:        cfg.Runner,
		MaxConcurrent: cfg.MaxConcurrent,
		OnFinish:      w.onTaskFinished,
		Logger:        logger,
	})
	return w
}

// Scheduler возвращает планировщик воркера.
func (w *Worker) Scheduler() *scheduler.Scheduler {
	return w.sched
}

// Start запускает потребителя executions.requested и цикл очистки.
func (w *Worker) Start(ctx context.Context) error {
	if w.IsStopped() {
		return ErrWorkerStopped
	}

	ctx, cancel := context.WithCancel(ctx)
	w.cancelFunc = cancel

	w.logger.Info("starting worker",
		"prefetch", w.prefetch,
		"cleanup_interval", w.cleanupInterval,
	)

	if w.conn != nil {
		consumer := mq.NewConsumer(w.conn, w.logger, mq.ConsumerConfig{
			Queue:    mq.QueueExecutionsRequested,
			Handler:  w.handleExecutionRequested,
			Prefetch: w.prefetch,
		})

		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.logger.Error("execution consumer error", "error", err)
			}
		}()
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.cleanupLoop(ctx)
	}()

	w.logger.Info("worker started")
	return nil
}

// Stop останавливает потребление и отменяет выполняющиеся задачи.
func (w *Worker) Stop(ctx context.Context) error {
	w.stoppedMu.Lock()
	w.stopped = true
	w.stoppedMu.Unlock()

	w.logger.Info("stopping worker...")

	if w.cancelFunc != nil {
		w.cancelFunc()
	}
	w.wg.Wait()

	err := w.sched.Close(ctx)
	w.logger.Info("worker stopped")
	return err
}

// IsStopped проверяет, остановлен ли Worker.
func (w *Worker) IsStopped() bool {
	w.stoppedMu.RLock()
	defer w.stoppedMu.RUnlock()
	return w.stopped
}

// cleanupLoop удаляет из реестра давно завершённые задачи.
func (w *Worker) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(w.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := w.sched.Cleanup(w.taskTTL); n > 0 {
				w.logger.Debug("finished tasks removed", "count", n)
			}
		}
	}
}
