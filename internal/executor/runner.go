package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/shaiso/Mender/internal/domain"
	"github.com/shaiso/Mender/internal/driver"
	"github.com/shaiso/Mender/internal/engine"
	"github.com/shaiso/Mender/internal/telemetry"
	"golang.org/x/sync/semaphore"
)

// ExecutionStore сохраняет итоги выполнений.
type ExecutionStore interface {
	SaveExecution(ctx context.Context, r *domain.WorkflowExecutionResult) error
	SaveBatch(ctx context.Context, b *domain.BatchExecutionResult) error
}

// RunnerConfig — конфигурация Runner.
type RunnerConfig struct {
	// Launcher открывает отдельную сессию браузера на каждое выполнение.
	Launcher driver.Launcher

	// Steps выполняет шаги (default: StepExecutor без лечения).
	Steps *StepExecutor

	// Store — история выполнений (опционально).
	Store ExecutionStore

	// ConcurrencyLimit — число одновременных выполнений пакета (default: 10).
	ConcurrencyLimit int

	// LaunchRetries — повторы запуска браузера. 0 — без повторов.
	LaunchRetries int

	// DefaultTimeout — таймаут шага для workflow без собственного timeout.
	DefaultTimeout time.Duration

	Logger *slog.Logger
}

// Runner выполняет workflow целиком и пакетами.
type Runner struct {
	launcher      driver.Launcher
	steps         *StepExecutor
	store         ExecutionStore
	limit         int
	launchRetries int
	timeout       time.Duration
	logger        *slog.Logger
}

// NewRunner создаёт Runner.
func NewRunner(cfg RunnerConfig) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	steps := cfg.Steps
	if steps == nil {
		steps = NewStepExecutor(Config{Logger: logger})
	}
	limit := cfg.ConcurrencyLimit
	if limit <= 0 {
		limit = domain.DefaultConcurrencyLimit
	}

	return &Runner{
		launcher:      cfg.Launcher,
		steps:         steps,
		store:         cfg.Store,
		limit:         limit,
		launchRetries: max(cfg.LaunchRetries, 0),
		timeout:       cfg.DefaultTimeout,
		logger:        logger,
	}
}

// ConcurrencyLimit возвращает размер пула пакетного выполнения.
func (r *Runner) ConcurrencyLimit() int {
	return r.limit
}

// RunOptions — параметры одного выполнения.
type RunOptions struct {
	// ExecutionID — ID выполнения; пустой — сгенерировать.
	ExecutionID string

	// WorkflowPath — путь к документу; нужен для записи лечения.
	WorkflowPath string

	Inputs map[string]any
}

// Run выполняет шаги workflow по порядку до первого неуспешного.
//
// Ошибка возвращается, только если выполнение не удалось начать
// (определение, переменные, браузер); результат при этом тоже
// возвращается в статусе FAILED. Сбои шагов отражаются в результате.
func (r *Runner) Run(ctx context.Context, wf *domain.Workflow, opts RunOptions) (*domain.WorkflowExecutionResult, error) {
	id := opts.ExecutionID
	if id == "" {
		id = uuid.New().String()
	}
	logger := telemetry.WithExecutionID(r.logger, id).With("workflow", wf.Name)
	ctx = telemetry.WithLogger(ctx, logger)

	result := domain.NewWorkflowExecutionResult(id, wf.Name, len(wf.Steps), opts.Inputs)
	result.WorkflowPath = opts.WorkflowPath
	defer r.finish(ctx, result, logger)

	if err := engine.Validate(wf); err != nil {
		result.MarkFailed(err.Error())
		return result, err
	}
	initial, err := engine.ResolveVariables(wf, opts.Inputs)
	if err != nil {
		result.MarkFailed(err.Error())
		return result, err
	}
	vars := engine.NewVars(initial)

	session, err := r.launch(ctx)
	if err != nil {
		result.MarkFailed(err.Error())
		return result, err
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.Warn("close browser session", "error", err)
		}
	}()

	logger.Info("execution started", "steps", len(wf.Steps))

	sc := StepContext{
		Vars:           vars,
		DefaultTimeout: r.stepTimeout(wf),
		WorkflowPath:   opts.WorkflowPath,
		Info:           session.Info(),
	}

	// документ может быть переписан лечением; выполняется снимок шагов
	steps := wf.Clone().Steps
	for i, step := range steps {
		if ctx.Err() != nil {
			break
		}
		sc.Index = i

		sr := r.steps.Execute(ctx, session, step, sc)
		result.AddStepResult(sr)
		if sid, ok := sr.Metadata["healing_session_id"].(string); ok && sid != "" {
			result.HealingSessions = append(result.HealingSessions, sid)
		}

		if sr.Status != domain.StepCompleted {
			result.FailedStepID = step.ID
			result.Error = sr.Error
			break
		}
	}

	result.OutputVariables = vars.Snapshot()
	if ctx.Err() != nil {
		result.MarkCancelled(cancelMessage(ctx))
	} else {
		result.MarkCompleted()
	}
	return result, nil
}

func (r *Runner) stepTimeout(wf *domain.Workflow) time.Duration {
	if wf.Timeout <= 0 && r.timeout > 0 {
		return r.timeout
	}
	return wf.DefaultTimeout()
}

// launch открывает сессию браузера с повторами.
func (r *Runner) launch(ctx context.Context) (driver.Session, error) {
	if r.launcher == nil {
		return nil, ErrNoLauncher
	}

	var session driver.Session
	backoff := retry.WithMaxRetries(uint64(r.launchRetries), retry.NewExponential(time.Second))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		s, err := r.launcher.Launch(ctx)
		if err != nil {
			return retry.RetryableError(err)
		}
		session = s
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	return session, nil
}

func (r *Runner) finish(ctx context.Context, result *domain.WorkflowExecutionResult, logger *slog.Logger) {
	telemetry.ObserveExecution(string(result.Status))
	logger.Info("execution finished",
		"status", result.Status,
		"duration_ms", result.DurationMs,
		"success_rate", result.SuccessRate,
	)

	if r.store == nil {
		return
	}
	if err := r.store.SaveExecution(context.WithoutCancel(ctx), result); err != nil {
		logger.Error("save execution failed", "error", err)
	}
}

// BatchOptions — параметры пакетного выполнения.
type BatchOptions struct {
	BatchID      string
	WorkflowPath string

	// Inputs — наборы переменных, по одному выполнению на набор.
	Inputs []map[string]any

	// Concurrency переопределяет размер пула; 0 — значение Runner.
	Concurrency int
}

// Batch выполняет workflow по разу на каждый набор переменных.
//
// Одновременно работает не больше Concurrency выполнений, у каждого
// своя сессия браузера и свой контекст переменных. Результаты идут
// в порядке наборов. Не начатые из-за отмены выполнения CANCELLED.
func (r *Runner) Batch(ctx context.Context, wf *domain.Workflow, opts BatchOptions) (*domain.BatchExecutionResult, error) {
	if len(opts.Inputs) == 0 {
		return nil, ErrEmptyBatch
	}

	id := opts.BatchID
	if id == "" {
		id = uuid.New().String()
	}
	limit := opts.Concurrency
	if limit <= 0 {
		limit = r.limit
	}
	logger := r.logger.With("batch_id", id, "workflow", wf.Name)

	batch := domain.NewBatchExecutionResult(id, wf.Name, len(opts.Inputs), limit)
	logger.Info("batch started", "executions", len(opts.Inputs), "concurrency", limit)

	sem := semaphore.NewWeighted(int64(limit))
	results := make([]*domain.WorkflowExecutionResult, len(opts.Inputs))
	var wg sync.WaitGroup

	for i, inputs := range opts.Inputs {
		if err := sem.Acquire(ctx, 1); err != nil {
			for j := i; j < len(opts.Inputs); j++ {
				skipped := domain.NewWorkflowExecutionResult(uuid.New().String(), wf.Name, len(wf.Steps), opts.Inputs[j])
				skipped.WorkflowPath = opts.WorkflowPath
				skipped.MarkCancelled(cancelMessage(ctx))
				results[j] = skipped
			}
			break
		}

		wg.Add(1)
		go func(i int, inputs map[string]any) {
			defer wg.Done()
			defer sem.Release(1)
			telemetry.BatchSlotAcquired()
			defer telemetry.BatchSlotReleased()

			res, err := r.Run(ctx, wf, RunOptions{WorkflowPath: opts.WorkflowPath, Inputs: inputs})
			if err != nil {
				logger.Warn("batch execution not started", "index", i, "error", err)
			}
			results[i] = res
		}(i, inputs)
	}
	wg.Wait()

	for _, res := range results {
		batch.AddExecution(res)
	}
	batch.MarkCompleted()

	logger.Info("batch finished",
		"status", batch.Status,
		"completed", batch.CompletedExecutions,
		"failed", batch.FailedExecutions,
		"duration_ms", batch.DurationMs,
	)

	if r.store != nil {
		if err := r.store.SaveBatch(context.WithoutCancel(ctx), batch); err != nil {
			logger.Error("save batch failed", "error", err)
		}
	}
	return batch, nil
}
