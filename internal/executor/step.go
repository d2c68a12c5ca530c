package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/shaiso/Mender/internal/classify"
	"github.com/shaiso/Mender/internal/domain"
	"github.com/shaiso/Mender/internal/driver"
	"github.com/shaiso/Mender/internal/engine"
	"github.com/shaiso/Mender/internal/mutator"
	"github.com/shaiso/Mender/internal/telemetry"
)

// Значения по умолчанию для StepExecutor.
const (
	DefaultRetryBaseDelay = 500 * time.Millisecond
	DefaultActionGrace    = 2 * time.Second
)

// Healer проводит сессии лечения.
type Healer interface {
	Heal(ctx context.Context, ec domain.ErrorContext) *domain.HealingSession

	// Record сохраняет сессию после подтверждения её действий.
	Record(ctx context.Context, s *domain.HealingSession)
}

// Persister записывает успешную сессию в документ workflow.
type Persister interface {
	ApplyHealingSession(ctx context.Context, path string, s *domain.HealingSession) (*mutator.ApplyResult, error)
}

// ErrorStore сохраняет ErrorContext для аудита.
type ErrorStore interface {
	SaveError(ctx context.Context, ec *domain.ErrorContext) error
}

// Capturer создаёт ErrorContext в момент сбоя.
type Capturer interface {
	Capture(ctx context.Context, in classify.Input) domain.ErrorContext
}

// Config — конфигурация StepExecutor.
type Config struct {
	// Healer — лечение сбоев; nil — лечение выключено.
	Healer Healer

	// Capturer — снимки состояния при сбое (default: classify.Capturer без скриншотов).
	Capturer Capturer

	// Errors — аудит ErrorContext (опционально).
	Errors ErrorStore

	// AutoSave — записывать успешное лечение в документ через Persister.
	AutoSave  bool
	Persister Persister

	// TransientRetries — повторы при network_error и page_load_error.
	TransientRetries int
	RetryBaseDelay   time.Duration

	// ActionGrace — сколько ждать выхода действия после отмены.
	ActionGrace time.Duration

	Logger *slog.Logger
}

// StepExecutor выполняет один шаг: гонка действия с таймером,
// повтор транзиентных сбоев, лечение.
type StepExecutor struct {
	healer    Healer
	capturer  Capturer
	errors    ErrorStore
	autoSave  bool
	persister Persister
	retries   int
	retryBase time.Duration
	grace     time.Duration
	logger    *slog.Logger
}

// NewStepExecutor создаёт StepExecutor.
func NewStepExecutor(cfg Config) *StepExecutor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	capturer := cfg.Capturer
	if capturer == nil {
		capturer = classify.NewCapturer(classify.CapturerConfig{Logger: logger})
	}
	retryBase := cfg.RetryBaseDelay
	if retryBase <= 0 {
		retryBase = DefaultRetryBaseDelay
	}
	grace := cfg.ActionGrace
	if grace <= 0 {
		grace = DefaultActionGrace
	}

	return &StepExecutor{
		healer:    cfg.Healer,
		capturer:  capturer,
		errors:    cfg.Errors,
		autoSave:  cfg.AutoSave,
		persister: cfg.Persister,
		retries:   max(cfg.TransientRetries, 0),
		retryBase: retryBase,
		grace:     grace,
		logger:    logger,
	}
}

// StepContext — контекст шага внутри выполнения.
type StepContext struct {
	Index int

	// Vars — переменные выполнения; extract пишет сюда extracted_<id>.
	Vars *engine.Vars

	// DefaultTimeout — таймаут шага без собственного timeout.
	DefaultTimeout time.Duration

	WorkflowPath string
	Info         driver.Info
}

// Execute выполняет шаг и возвращает его результат в финальном статусе.
//
// Ошибки драйвера наружу не выходят: они классифицируются и попадают
// в результат. При успешном лечении шаг COMPLETED с healing_applied,
// иначе FAILED или TIMEOUT с исходной ошибкой. Отмена ctx даёт CANCELLED.
func (e *StepExecutor) Execute(ctx context.Context, page driver.PageDriver, step domain.Step, sc StepContext) *domain.StepResult {
	sc = normalize(sc)
	logger := e.log(ctx).With("step_id", step.ID, "step_type", step.Type)

	result := domain.NewStepResult(&step)
	result.MarkRunning()
	defer func() {
		telemetry.ObserveStep(string(step.Type), string(result.Status), time.Since(result.StartTime))
	}()

	logger.Debug("step started", "index", sc.Index)

	rendered := engine.RenderStep(step, sc.Vars)
	if err := checkStep(rendered); err != nil {
		logger.Error("step misconfigured", "error", err)
		result.MarkFailed(err.Error(), domain.ErrorUnknown)
		return result
	}

	out, err := e.attempt(ctx, page, rendered, sc, result, logger)
	if err == nil {
		succeed(result, step.ID, out, sc.Vars)
		logger.Info("step completed", "duration_ms", result.DurationMs)
		return result
	}

	if ctx.Err() != nil {
		result.MarkCancelled(cancelMessage(ctx))
		logger.Warn("step cancelled")
		return result
	}

	e.handleFailure(ctx, page, step, rendered, sc, result, newFailure(err), logger)
	return result
}

// attempt выполняет гонку, повторяя транзиентные сбои.
func (e *StepExecutor) attempt(ctx context.Context, page driver.PageDriver, step domain.Step, sc StepContext, result *domain.StepResult, logger *slog.Logger) (output, error) {
	if e.retries == 0 {
		return e.race(ctx, page, step, sc)
	}

	var out output
	tries := 0
	backoff := retry.WithMaxRetries(uint64(e.retries), retry.NewExponential(e.retryBase))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if tries > 0 {
			result.MarkRetry()
			logger.Warn("retrying step", "attempt", result.RetryCount)
			result.Status = domain.StepRunning
		}
		tries++

		var err error
		out, err = e.race(ctx, page, step, sc)
		if err != nil && ctx.Err() == nil && transient(err) {
			return retry.RetryableError(err)
		}
		return err
	})
	return out, err
}

// transient — сбои, которые стоит повторить до лечения.
func transient(err error) bool {
	switch newFailure(err).Kind {
	case domain.ErrorNetwork, domain.ErrorPageLoad:
		return true
	default:
		return false
	}
}

type raceResult struct {
	out output
	err error
}

// race запускает действие в горутине и ждёт первого из: завершения
// действия, таймера шага, отмены ctx. Контекст действия отменяется
// на любом пути, таймер освобождается.
func (e *StepExecutor) race(ctx context.Context, page driver.PageDriver, step domain.Step, sc StepContext) (output, error) {
	timeout := step.TimeoutDuration(sc.DefaultTimeout)
	limit := timeout
	if step.Type == domain.ActionWait && target(step) == "" {
		// пауза сама по себе занимает timeout шага
		limit = step.TimeoutDuration(DefaultPause) + sc.DefaultTimeout
	}

	actCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan raceResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- raceResult{err: fmt.Errorf("action panic: %v", r)}
			}
		}()
		out, err := dispatch(actCtx, page, step, timeout)
		done <- raceResult{out: out, err: err}
	}()

	timer := time.NewTimer(limit)
	defer timer.Stop()

	select {
	case r := <-done:
		if r.err != nil {
			if ctx.Err() != nil {
				return output{}, ctx.Err()
			}
			return output{}, newFailure(r.err)
		}
		return r.out, nil

	case <-timer.C:
		cancel()
		e.await(done, step)
		return output{}, timeoutFailure(limit)

	case <-ctx.Done():
		cancel()
		e.await(done, step)
		return output{}, ctx.Err()
	}
}

// await ждёт выхода отменённого действия не дольше grace.
func (e *StepExecutor) await(done <-chan raceResult, step domain.Step) {
	t := time.NewTimer(e.grace)
	defer t.Stop()
	select {
	case <-done:
	case <-t.C:
		e.logger.Warn("action ignored cancellation", "step_id", step.ID, "grace", e.grace)
	}
}

// handleFailure фиксирует ErrorContext и пробует лечение.
func (e *StepExecutor) handleFailure(ctx context.Context, page driver.PageDriver, step, rendered domain.Step, sc StepContext, result *domain.StepResult, fail *Failure, logger *slog.Logger) {
	logger.Warn("step failed", "error", fail, "error_type", fail.Kind)

	ec := e.capturer.Capture(ctx, classify.Input{
		Err:          fail,
		Step:         rendered,
		SourceStep:   step,
		StepIndex:    sc.Index,
		WorkflowPath: sc.WorkflowPath,
		RetryCount:   result.RetryCount,
		Page:         page,
		Info:         sc.Info,
		Variables:    sc.Vars.Snapshot(),
	})
	if e.errors != nil {
		if err := e.errors.SaveError(ctx, &ec); err != nil {
			logger.Warn("save error context failed", "error", err)
		}
	}

	if e.healer == nil || !ec.IsHealable {
		logger.Info("healing not attempted", "healable", ec.IsHealable, "severity", ec.Severity)
		if fail.Timeout() {
			result.MarkTimeout(fail.Error())
		} else {
			result.MarkFailed(fail.Error(), fail.Kind)
		}
		return
	}

	session := e.healer.Heal(ctx, ec)
	result.SetMeta("healing_session_id", session.ID)
	logger = telemetry.WithSessionID(logger, session.ID)

	if !session.Success {
		if ctx.Err() != nil {
			result.MarkCancelled(cancelMessage(ctx))
			return
		}
		logger.Warn("healing failed", "reason", session.Reason)
		result.SetMeta("healing_applied", false)
		result.MarkFailed(fail.Error(), fail.Kind)
		return
	}

	out, ok := e.replay(ctx, page, session, sc, logger)
	e.healer.Record(ctx, session)

	if !ok {
		if ctx.Err() != nil {
			result.MarkCancelled(cancelMessage(ctx))
			return
		}
		logger.Warn("healed steps failed", "tier", session.Tier)
		result.SetMeta("healing_applied", false)
		result.MarkFailed(fail.Error(), fail.Kind)
		return
	}

	result.SetMeta("healing_applied", true)
	result.SetMeta("new_steps_count", len(mutator.AppliedSteps(session)))
	result.SetMeta("healing_tier", string(session.Tier))
	e.persist(ctx, session, sc, result, logger)

	succeed(result, step.ID, out, sc.Vars)
	logger.Info("step healed", "tier", session.Tier, "duration_ms", result.DurationMs)
}

// replay выполняет заменяющие шаги сессии и подтверждает их действия.
//
// Альтернативы пробуются по порядку до первого успеха; обычная
// последовательность должна пройти целиком.
func (e *StepExecutor) replay(ctx context.Context, page driver.PageDriver, s *domain.HealingSession, sc StepContext, logger *slog.Logger) (output, bool) {
	var last output
	for _, step := range s.NewSteps {
		rendered := engine.RenderStep(step, sc.Vars)
		err := checkStep(rendered)
		var out output
		if err == nil {
			out, err = e.race(ctx, page, rendered, sc)
		}

		if err == nil {
			s.ConfirmAction(step.ID)
			if s.Alternatives {
				return out, true
			}
			last = out
			continue
		}

		if ctx.Err() != nil {
			return output{}, false
		}
		logger.Debug("healed step failed", "healed_step_id", step.ID, "error", err)
		if !s.Alternatives {
			return output{}, false
		}
	}

	if s.Alternatives || len(s.NewSteps) == 0 {
		return output{}, false
	}
	return last, true
}

// persist записывает сессию в документ. Сбой записи не отменяет
// успешно вылеченный шаг.
func (e *StepExecutor) persist(ctx context.Context, s *domain.HealingSession, sc StepContext, result *domain.StepResult, logger *slog.Logger) {
	if !e.autoSave || e.persister == nil || sc.WorkflowPath == "" {
		return
	}
	applied, err := e.persister.ApplyHealingSession(ctx, sc.WorkflowPath, s)
	if errors.Is(err, mutator.ErrStepNotFound) {
		// шаг уже заменён другой сессией
		logger.Info("persist healing skipped", "path", sc.WorkflowPath, "error", err)
		result.SetMeta("healing_persist_skipped", true)
		return
	}
	if err != nil {
		logger.Error("persist healing failed", "path", sc.WorkflowPath, "error", err)
		result.SetMeta("healing_persist_error", err.Error())
		return
	}
	result.SetMeta("healing_backup_path", applied.BackupPath)
}

// succeed переводит шаг в COMPLETED и публикует извлечённые данные в переменные.
func succeed(result *domain.StepResult, stepID string, out output, vars *engine.Vars) {
	if out.extracted != nil {
		result.ExtractedData = out.extracted
		if texts, _ := out.extracted["data"].([]string); len(texts) > 0 {
			vars.Set("extracted_"+stepID, texts)
		}
	}
	result.ScreenshotPath = out.screenshot
	result.MarkSuccess(out.data)
}

func (e *StepExecutor) log(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(telemetry.CtxLogger).(*slog.Logger); ok {
		return logger
	}
	return e.logger
}

func normalize(sc StepContext) StepContext {
	if sc.Vars == nil {
		sc.Vars = engine.NewVars(nil)
	}
	if sc.DefaultTimeout <= 0 {
		sc.DefaultTimeout = domain.DefaultWorkflowTimeout * time.Millisecond
	}
	return sc
}

func cancelMessage(ctx context.Context) string {
	if cause := context.Cause(ctx); cause != nil {
		return cause.Error()
	}
	return "cancelled"
}
