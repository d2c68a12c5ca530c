package healing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Mender/internal/domain"
	"github.com/shaiso/Mender/internal/telemetry"
)

// SessionStore сохраняет завершённые сессии для аудита.
type SessionStore interface {
	SaveHealing(ctx context.Context, s *domain.HealingSession) error
}

// Config — конфигурация Orchestrator.
type Config struct {
	// Agent — AI-уровень; nil — только эвристики.
	Agent Agent

	// DisableHeuristic выключает эвристический уровень.
	DisableHeuristic bool

	// AITimeout ограничивает AI-уровень (default: 60s).
	AITimeout time.Duration

	// Store — аудит сессий (опционально).
	Store SessionStore

	// OnFinish вызывается для каждой завершённой сессии (опционально).
	OnFinish func(ctx context.Context, s *domain.HealingSession)

	Logger *slog.Logger
}

// Orchestrator проводит сессии лечения.
//
// Уровни пробуются строго по порядку: AI, затем эвристики. Ошибки и
// паники уровня не выходят наружу, а переводят к следующему уровню.
type Orchestrator struct {
	agent     Agent
	heuristic bool
	aiTimeout time.Duration
	store     SessionStore
	onFinish  func(ctx context.Context, s *domain.HealingSession)
	logger    *slog.Logger

	mu     sync.Mutex
	active map[string]context.CancelCauseFunc

	now func() time.Time
}

// New создаёт Orchestrator.
func New(cfg Config) *Orchestrator {
	aiTimeout := cfg.AITimeout
	if aiTimeout == 0 {
		aiTimeout = 60 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		agent:     cfg.Agent,
		heuristic: !cfg.DisableHeuristic,
		aiTimeout: aiTimeout,
		store:     cfg.Store,
		onFinish:  cfg.OnFinish,
		logger:    logger,
		active:    make(map[string]context.CancelCauseFunc),
		now:       time.Now,
	}
}

// errUserCancelled — причина отмены сессии через Cancel.
var errUserCancelled = errors.New(ReasonCancelled)

// Heal проводит одну сессию лечения и возвращает её в финальном статусе.
//
// При успехе NewSteps содержит заменяющие шаги, действия которых ещё
// не подтверждены. Неудача обоих уровней даёт статус FAILED с причиной.
func (o *Orchestrator) Heal(ctx context.Context, ec domain.ErrorContext) *domain.HealingSession {
	session := domain.NewHealingSession(uuid.New().String(), ec, Goal(ec))
	logger := telemetry.WithSessionID(o.logger, session.ID).With(
		"error_kind", ec.Kind,
		"step_id", ec.Step.ID,
	)

	if !ec.IsHealable {
		session.MarkSkipped(ErrNotHealable.Error())
		o.finish(ctx, session, logger)
		return session
	}

	ctx, cancel := context.WithCancelCause(ctx)
	o.register(session.ID, cancel)
	defer func() {
		o.unregister(session.ID)
		cancel(nil)
	}()

	logger.Info("healing started", "goal", session.Goal)

	var reasons []string
	for _, tier := range []domain.Tier{domain.TierAI, domain.TierHeuristic} {
		plan, err := o.runTier(ctx, tier, session, ec)
		if err == nil {
			session.Alternatives = plan.Alternatives
			session.MarkSucceeded(tier, plan.Steps, plan.Actions)
			logger.Info("healing succeeded", "tier", tier, "new_steps", len(plan.Steps))
			break
		}

		if cause := context.Cause(ctx); cause != nil {
			reason := cause.Error()
			if errors.Is(cause, context.Canceled) || errors.Is(cause, errUserCancelled) {
				reason = ReasonCancelled
			}
			session.MarkFailed(reason)
			logger.Warn("healing cancelled", "reason", reason)
			break
		}

		logger.Info("healing tier failed", "tier", tier, "error", err)
		reasons = append(reasons, fmt.Sprintf("%s: %v", tier, err))
	}

	if !session.Status.IsTerminal() {
		session.MarkFailed(joinReasons(reasons))
		logger.Warn("healing failed", "reason", session.Reason)
	}

	o.finish(ctx, session, logger)
	return session
}

// runTier выполняет уровень с перехватом паники.
func (o *Orchestrator) runTier(ctx context.Context, tier domain.Tier, s *domain.HealingSession, ec domain.ErrorContext) (plan Plan, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrTierPanic, r)
		}
	}()

	switch tier {
	case domain.TierAI:
		if o.agent == nil {
			return Plan{}, ErrAgentUnavailable
		}
		aiCtx, cancel := context.WithTimeout(ctx, o.aiTimeout)
		defer cancel()

		res, err := o.agent.Run(aiCtx, Prompt(ec, s.Goal))
		if err != nil {
			return Plan{}, err
		}
		return planFromAgent(res, s.ID, ec, o.now())

	case domain.TierHeuristic:
		if !o.heuristic {
			return Plan{}, errors.New("heuristic tier disabled")
		}
		if err := ctx.Err(); err != nil {
			return Plan{}, err
		}
		return Heuristic(s.ID, ec, o.now())

	default:
		return Plan{}, fmt.Errorf("unknown tier %q", tier)
	}
}

// Cancel прерывает активную сессию; она завершится с причиной "user cancelled".
// Возвращает false, если сессия не активна.
func (o *Orchestrator) Cancel(sessionID string) bool {
	o.mu.Lock()
	cancel, ok := o.active[sessionID]
	o.mu.Unlock()

	if ok {
		cancel(errUserCancelled)
	}
	return ok
}

// Active возвращает идентификаторы активных сессий.
func (o *Orchestrator) Active() []string {
	o.mu.Lock()
	defer o.mu.Unlock()

	ids := make([]string, 0, len(o.active))
	for id := range o.active {
		ids = append(ids, id)
	}
	return ids
}

func (o *Orchestrator) register(id string, cancel context.CancelCauseFunc) {
	o.mu.Lock()
	o.active[id] = cancel
	o.mu.Unlock()
}

func (o *Orchestrator) unregister(id string) {
	o.mu.Lock()
	delete(o.active, id)
	o.mu.Unlock()
}

// finish сохраняет сессию и учитывает метрики. Ошибки аудита только логируются.
func (o *Orchestrator) finish(ctx context.Context, s *domain.HealingSession, logger *slog.Logger) {
	telemetry.ObserveHealing(string(s.Tier), string(s.Status))

	ctx = context.WithoutCancel(ctx)
	if o.store != nil {
		if err := o.store.SaveHealing(ctx, s); err != nil {
			logger.Warn("failed to save healing session", "error", err)
		}
	}
	if o.onFinish != nil {
		o.onFinish(ctx, s)
	}
}

// Record повторно сохраняет сессию, например после подтверждения действий.
func (o *Orchestrator) Record(ctx context.Context, s *domain.HealingSession) {
	if o.store == nil {
		return
	}
	if err := o.store.SaveHealing(context.WithoutCancel(ctx), s); err != nil {
		telemetry.WithSessionID(o.logger, s.ID).Warn("failed to save healing session", "error", err)
	}
}

func joinReasons(reasons []string) string {
	if len(reasons) == 0 {
		return ErrNoSteps.Error()
	}
	out := reasons[0]
	for _, r := range reasons[1:] {
		out += "; " + r
	}
	return out
}
