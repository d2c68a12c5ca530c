package api

import (
	"context"
	"log/slog"

	"github.com/shaiso/Mender/internal/audit"
	"github.com/shaiso/Mender/internal/domain"
	"github.com/shaiso/Mender/internal/mq"
)

// ExecutionReader — чтение истории выполнений.
// Реализуется audit.FileStore и repo.ExecutionRepo.
type ExecutionReader interface {
	GetExecution(ctx context.Context, id string) (*domain.WorkflowExecutionResult, error)
	GetBatch(ctx context.Context, id string) (*domain.BatchExecutionResult, error)
	ListExecutions(ctx context.Context, f audit.ExecutionFilter) ([]audit.ExecutionSummary, error)
}

// HealingReader — чтение сессий лечения.
// Реализуется audit.FileStore и repo.HealingRepo.
type HealingReader interface {
	GetHealing(ctx context.Context, id string) (*domain.HealingSession, error)
}

// Queue принимает запросы на выполнение; реализуется mq.Publisher.
type Queue interface {
	PublishExecutionRequested(ctx context.Context, p mq.ExecutionRequestedPayload) error
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	executions ExecutionReader
	healing    HealingReader
	queue      Queue
	logger     *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Executions ExecutionReader
	Healing    HealingReader

	// Queue — nil отключает POST /api/v1/executions.
	Queue Queue

	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		executions: cfg.Executions,
		healing:    cfg.Healing,
		queue:      cfg.Queue,
		logger:     logger,
	}
}
