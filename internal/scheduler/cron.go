package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser — парсер cron-выражений: пять полей или дескриптор (@hourly, @every 5m).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateCronExpr проверяет валидность cron-выражения.
func ValidateCronExpr(expr string) error {
	if _, err := cronParser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}

// NextRuns возвращает n ближайших запусков после from (в UTC).
func NextRuns(expr string, from time.Time, n int) ([]time.Time, error) {
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parse cron expression %q: %w", expr, err)
	}

	out := make([]time.Time, 0, n)
	next := from
	for range n {
		next = schedule.Next(next)
		out = append(out, next.UTC())
	}
	return out, nil
}

// Cron периодически ставит задачи в Scheduler.
//
// Запуск пропускается, если предыдущая задача того же расписания ещё
// выполняется.
type Cron struct {
	sched  *Scheduler
	cron   *cron.Cron
	logger *slog.Logger
}

// NewCron создаёт Cron поверх Scheduler.
func NewCron(sched *Scheduler, logger *slog.Logger) *Cron {
	if logger == nil {
		logger = slog.Default()
	}
	cl := cronLogger{logger: logger}
	return &Cron{
		sched: sched,
		cron: cron.New(
			cron.WithParser(cronParser),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger: logger,
	}
}

// Add регистрирует расписание. ID запроса игнорируется: каждый запуск
// получает новый.
func (c *Cron) Add(expr string, req Request) (cron.EntryID, error) {
	if err := ValidateCronExpr(expr); err != nil {
		return 0, err
	}
	if req.Workflow == nil {
		return 0, ErrNoWorkflow
	}
	id, err := c.cron.AddFunc(expr, c.job(expr, req))
	if err != nil {
		return 0, fmt.Errorf("add cron entry: %w", err)
	}
	c.logger.Info("cron entry added", "expr", expr, "workflow", req.Workflow.Name)
	return id, nil
}

// job ставит задачу и ждёт её завершения.
func (c *Cron) job(expr string, req Request) func() {
	return func() {
		req.ID = ""
		id, err := c.sched.Submit(req)
		if err != nil {
			c.logger.Error("cron submit failed", "expr", expr, "error", err)
			return
		}

		task, err := c.sched.Wait(context.Background(), id)
		if err != nil {
			c.logger.Error("cron wait failed", "expr", expr, "task_id", id, "error", err)
			return
		}
		c.logger.Info("cron run finished", "expr", expr, "task_id", id, "status", task.Status)
	}
}

// Entries возвращает ближайшие запуски зарегистрированных расписаний.
func (c *Cron) Entries() []time.Time {
	entries := c.cron.Entries()
	out := make([]time.Time, len(entries))
	for i, e := range entries {
		out[i] = e.Next
	}
	return out
}

// Start запускает расписания в фоне.
func (c *Cron) Start() {
	c.cron.Start()
}

// Stop останавливает расписания и ждёт выполняющиеся запуски или отмены ctx.
func (c *Cron) Stop(ctx context.Context) error {
	select {
	case <-c.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger направляет журнал cron в slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
