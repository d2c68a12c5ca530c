package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Mender/internal/domain"
	"github.com/shaiso/Mender/internal/executor"
	"golang.org/x/sync/semaphore"
)

// Runner выполняет workflow; реализуется executor.Runner.
type Runner interface {
	Run(ctx context.Context, wf *domain.Workflow, opts executor.RunOptions) (*domain.WorkflowExecutionResult, error)
	Batch(ctx context.Context, wf *domain.Workflow, opts executor.BatchOptions) (*domain.BatchExecutionResult, error)
}

// Request — запрос на выполнение.
type Request struct {
	// ID задачи; пустой — сгенерировать. Для одиночного выполнения
	// он же становится execution_id.
	ID string

	Workflow     *domain.Workflow
	WorkflowPath string

	// Inputs — переменные одиночного выполнения.
	Inputs map[string]any

	// Batch — наборы переменных; непустой Batch делает задачу пакетной.
	Batch       []map[string]any
	Concurrency int
}

// Task — снимок состояния задачи.
type Task struct {
	ID           string                 `json:"task_id"`
	WorkflowName string                 `json:"workflow_name"`
	IsBatch      bool                   `json:"is_batch"`
	Status       domain.ExecutionStatus `json:"status"`

	SubmittedAt time.Time  `json:"submitted_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`

	Result *domain.WorkflowExecutionResult `json:"result,omitempty"`
	Batch  *domain.BatchExecutionResult    `json:"batch,omitempty"`
	Error  string                          `json:"error,omitempty"`
}

// Done сообщает, что задача в финальном статусе.
func (t Task) Done() bool {
	return t.Status.IsTerminal()
}

// Config — конфигурация Scheduler.
type Config struct {
	Runner Runner

	// MaxConcurrent — сколько задач выполняется одновременно (default: 10).
	MaxConcurrent int

	// OnFinish вызывается для каждой завершённой задачи (опционально).
	OnFinish func(ctx context.Context, t Task)

	Logger *slog.Logger
}

// Scheduler — явный реестр задач выполнения.
//
// Каждая задача владеет своим контекстом: Submit не привязывает её к
// контексту вызывающего. Одновременно выполняется не больше
// MaxConcurrent задач, остальные ждут в статусе PENDING.
type Scheduler struct {
	runner   Runner
	sem      *semaphore.Weighted
	onFinish func(ctx context.Context, t Task)
	logger   *slog.Logger

	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	mu     sync.Mutex
	tasks  map[string]*entry
	closed bool
}

type entry struct {
	task   Task
	cancel context.CancelFunc
	done   chan struct{}
}

// New создаёт Scheduler.
func New(cfg Config) *Scheduler {
	limit := cfg.MaxConcurrent
	if limit <= 0 {
		limit = domain.DefaultConcurrencyLimit
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, stop := context.WithCancel(context.Background())
	return &Scheduler{
		runner:   cfg.Runner,
		sem:      semaphore.NewWeighted(int64(limit)),
		onFinish: cfg.OnFinish,
		logger:   logger,
		ctx:      ctx,
		stop:     stop,
		tasks:    make(map[string]*entry),
	}
}

// Submit ставит задачу в очередь и возвращает её ID.
func (s *Scheduler) Submit(req Request) (string, error) {
	if req.Workflow == nil {
		return "", ErrNoWorkflow
	}
	id := req.ID
	if id == "" {
		id = uuid.New().String()
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", ErrClosed
	}
	if _, ok := s.tasks[id]; ok {
		s.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrDuplicateTask, id)
	}

	ctx, cancel := context.WithCancel(s.ctx)
	e := &entry{
		task: Task{
			ID:           id,
			WorkflowName: req.Workflow.Name,
			IsBatch:      len(req.Batch) > 0,
			Status:       domain.ExecutionPending,
			SubmittedAt:  time.Now(),
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.tasks[id] = e
	s.wg.Add(1)
	s.mu.Unlock()

	s.logger.Info("task submitted", "task_id", id, "workflow", req.Workflow.Name, "batch", e.task.IsBatch)

	go s.run(ctx, e, req)
	return id, nil
}

// run ждёт слот и выполняет задачу.
func (s *Scheduler) run(ctx context.Context, e *entry, req Request) {
	defer s.wg.Done()
	defer close(e.done)
	defer e.cancel()

	if err := s.sem.Acquire(ctx, 1); err != nil {
		s.complete(ctx, e, func(t *Task) {
			t.Status = domain.ExecutionCancelled
			t.Error = "cancelled before start"
		})
		return
	}
	defer s.sem.Release(1)

	s.update(e, func(t *Task) {
		now := time.Now()
		t.Status = domain.ExecutionRunning
		t.StartedAt = &now
	})

	if len(req.Batch) > 0 {
		batch, err := s.runner.Batch(ctx, req.Workflow, executor.BatchOptions{
			BatchID:      e.task.ID,
			WorkflowPath: req.WorkflowPath,
			Inputs:       req.Batch,
			Concurrency:  req.Concurrency,
		})
		s.complete(ctx, e, func(t *Task) {
			t.Batch = batch
			switch {
			case err != nil:
				t.Status = domain.ExecutionFailed
				t.Error = err.Error()
			case ctx.Err() != nil:
				t.Status = domain.ExecutionCancelled
			default:
				t.Status = batch.Status
			}
		})
		return
	}

	result, err := s.runner.Run(ctx, req.Workflow, executor.RunOptions{
		ExecutionID:  e.task.ID,
		WorkflowPath: req.WorkflowPath,
		Inputs:       req.Inputs,
	})
	s.complete(ctx, e, func(t *Task) {
		t.Result = result
		switch {
		case result != nil:
			t.Status = result.Status
			t.Error = result.Error
		case err != nil:
			t.Status = domain.ExecutionFailed
		}
		if err != nil {
			t.Error = err.Error()
		}
	})
}

func (s *Scheduler) update(e *entry, fn func(t *Task)) {
	s.mu.Lock()
	fn(&e.task)
	s.mu.Unlock()
}

func (s *Scheduler) complete(ctx context.Context, e *entry, fn func(t *Task)) {
	s.mu.Lock()
	fn(&e.task)
	now := time.Now()
	e.task.FinishedAt = &now
	snapshot := e.task
	s.mu.Unlock()

	s.logger.Info("task finished", "task_id", snapshot.ID, "status", snapshot.Status)
	if s.onFinish != nil {
		s.onFinish(context.WithoutCancel(ctx), snapshot)
	}
}

// Result возвращает текущий снимок задачи.
func (s *Scheduler) Result(id string) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.tasks[id]
	if !ok {
		return Task{}, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return e.task, nil
}

// Wait блокируется до завершения задачи или отмены ctx.
func (s *Scheduler) Wait(ctx context.Context, id string) (Task, error) {
	s.mu.Lock()
	e, ok := s.tasks[id]
	s.mu.Unlock()
	if !ok {
		return Task{}, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}

	select {
	case <-e.done:
		return s.Result(id)
	case <-ctx.Done():
		return Task{}, ctx.Err()
	}
}

// Cancel отменяет задачу. Возвращает false, если задача неизвестна
// или уже завершена.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	e, ok := s.tasks[id]
	if !ok || e.task.Done() {
		s.mu.Unlock()
		return false
	}
	s.mu.Unlock()

	e.cancel()
	s.logger.Info("task cancel requested", "task_id", id)
	return true
}

// Active возвращает незавершённые задачи в порядке постановки.
func (s *Scheduler) Active() []Task {
	return s.list(func(t Task) bool { return !t.Done() })
}

// List возвращает все известные задачи в порядке постановки.
func (s *Scheduler) List() []Task {
	return s.list(func(Task) bool { return true })
}

func (s *Scheduler) list(keep func(Task) bool) []Task {
	s.mu.Lock()
	out := make([]Task, 0, len(s.tasks))
	for _, e := range s.tasks {
		if keep(e.task) {
			out = append(out, e.task)
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].SubmittedAt.Before(out[j].SubmittedAt)
	})
	return out
}

// Cleanup удаляет завершённые задачи старше maxAge и возвращает их число.
func (s *Scheduler) Cleanup(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, e := range s.tasks {
		if e.task.FinishedAt != nil && e.task.FinishedAt.Before(cutoff) {
			delete(s.tasks, id)
			removed++
		}
	}
	if removed > 0 {
		s.logger.Debug("tasks cleaned up", "removed", removed)
	}
	return removed
}

// Close отменяет все задачи и ждёт их завершения или отмены ctx.
func (s *Scheduler) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.stop()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
