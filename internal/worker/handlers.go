package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shaiso/Mender/internal/domain"
	"github.com/shaiso/Mender/internal/engine"
	"github.com/shaiso/Mender/internal/mq"
	"github.com/shaiso/Mender/internal/scheduler"
)

// handleExecutionRequested ставит запрос из очереди в Scheduler.
//
// Некорректный запрос подтверждается без выполнения: повтор его не
// исправит. Повторная доставка уже принятого запроса игнорируется.
func (w *Worker) handleExecutionRequested(ctx context.Context, msg *mq.Message) error {
	payload, err := mq.ParsePayload[mq.ExecutionRequestedPayload](msg)
	if err != nil {
		w.logger.Error("failed to parse execution.requested payload", "error", err)
		return nil
	}

	id, err := w.Submit(payload)
	switch {
	case errors.Is(err, ErrInvalidRequest):
		w.logger.Warn("execution request rejected",
			"execution_id", payload.ExecutionID,
			"error", err,
		)
		return nil
	case errors.Is(err, scheduler.ErrDuplicateTask):
		w.logger.Debug("execution already accepted", "execution_id", payload.ExecutionID)
		return nil
	case err != nil:
		return err
	}

	w.logger.Info("execution accepted",
		"execution_id", id,
		"workflow", payload.Workflow.Name,
		"batch", payload.Batch,
	)
	return nil
}

// Submit проверяет запрос и ставит его в Scheduler.
func (w *Worker) Submit(p mq.ExecutionRequestedPayload) (string, error) {
	if w.IsStopped() {
		return "", ErrWorkerStopped
	}
	if p.Workflow == nil {
		return "", fmt.Errorf("%w: workflow is required", ErrInvalidRequest)
	}
	if err := engine.Validate(p.Workflow); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	req := scheduler.Request{
		ID:           p.ExecutionID,
		Workflow:     p.Workflow,
		WorkflowPath: p.WorkflowPath,
		Concurrency:  p.Concurrency,
	}
	switch {
	case p.Batch:
		if len(p.Inputs) == 0 {
			return "", fmt.Errorf("%w: batch without inputs", ErrInvalidRequest)
		}
		req.Batch = p.Inputs
	case len(p.Inputs) > 1:
		return "", fmt.Errorf("%w: %d input sets for a single execution", ErrInvalidRequest, len(p.Inputs))
	case len(p.Inputs) == 1:
		req.Inputs = p.Inputs[0]
	}

	id, err := w.sched.Submit(req)
	if errors.Is(err, scheduler.ErrClosed) {
		return "", ErrWorkerStopped
	}
	return id, err
}

// onTaskFinished публикует итог задачи.
func (w *Worker) onTaskFinished(ctx context.Context, t scheduler.Task) {
	log := w.logger.With("execution_id", t.ID, "status", t.Status)
	log.Info("execution finished", "error", t.Error)

	if w.events == nil {
		return
	}

	var err error
	switch {
	case t.Batch != nil:
		err = w.events.PublishBatchCompleted(ctx, t.Batch)
	case t.Result != nil:
		err = w.events.PublishExecutionCompleted(ctx, t.Result)
	default:
		// Runner не вернул результат (например, отмена до старта).
		r := domain.NewWorkflowExecutionResult(t.ID, t.WorkflowName, 0, nil)
		if t.Status == domain.ExecutionCancelled {
			r.MarkCancelled(t.Error)
		} else {
			r.MarkFailed(t.Error)
		}
		err = w.events.PublishExecutionCompleted(ctx, r)
	}
	if err != nil {
		// результат уже сохранён Runner'ом
		log.Warn("failed to publish execution.completed", "error", err)
	}
}

// HealingEvents возвращает обработчик для healing.Config.OnFinish,
// публикующий итог каждой сессии лечения.
func HealingEvents(events Events, logger *slog.Logger) func(context.Context, *domain.HealingSession) {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, s *domain.HealingSession) {
		if events == nil {
			return
		}
		if err := events.PublishHealingCompleted(ctx, s); err != nil {
			logger.Warn("failed to publish healing.completed",
				"session_id", s.ID,
				"error", err,
			)
		}
	}
}
