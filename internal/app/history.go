package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Mender/internal/repo"
)

// History — история выполнений и сессий лечения в PostgreSQL.
type History struct {
	Pool       *pgxpool.Pool
	Executions *repo.ExecutionRepo
	Healing    *repo.HealingRepo
}

// OpenHistory подключается к базе и применяет схему.
func OpenHistory(ctx context.Context, dsn string, logger *slog.Logger) (*History, error) {
	pool, err := repo.NewPool(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := repo.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	logger.Info("connected to database")

	return &History{
		Pool:       pool,
		Executions: repo.NewExecutionRepo(pool),
		Healing:    repo.NewHealingRepo(pool),
	}, nil
}

// Close закрывает пул соединений.
func (h *History) Close() {
	h.Pool.Close()
}

// Apply направляет историю App в базу.
func (h *History) Apply(opts *Options) {
	opts.Executions = h.Executions
	opts.Healing = h.Healing
}
