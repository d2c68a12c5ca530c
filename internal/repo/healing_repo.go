package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Mender/internal/domain"
)

// HealingRepo — журнал сессий лечения.
type HealingRepo struct {
	pool *pgxpool.Pool
}

// NewHealingRepo создаёт новый HealingRepo.
func NewHealingRepo(pool *pgxpool.Pool) *HealingRepo {
	return &HealingRepo{pool: pool}
}

// SaveHealing сохраняет сессию. Повторное сохранение (после
// подтверждения действий) перезаписывает запись.
func (r *HealingRepo) SaveHealing(ctx context.Context, s *domain.HealingSession) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal healing session: %w", err)
	}

	query := `
		INSERT INTO healing_sessions (id, status, tier, error_kind, step_id, workflow_path,
		                              start_time, end_time, session)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status,
		    tier = EXCLUDED.tier,
		    end_time = EXCLUDED.end_time,
		    session = EXCLUDED.session
	`
	_, err = r.pool.Exec(ctx, query,
		s.ID,
		s.Status,
		nullString(string(s.Tier)),
		s.ErrorContext.Kind,
		nullString(s.ErrorContext.Step.ID),
		nullString(s.ErrorContext.WorkflowPath),
		s.StartTime,
		s.EndTime,
		data,
	)
	if err != nil {
		return fmt.Errorf("upsert healing session: %w", err)
	}
	return nil
}

// GetHealing возвращает сессию по ID.
func (r *HealingRepo) GetHealing(ctx context.Context, id string) (*domain.HealingSession, error) {
	var data []byte
	err := r.pool.QueryRow(ctx, `SELECT session FROM healing_sessions WHERE id = $1`, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: healing session %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get healing session: %w", err)
	}

	var s domain.HealingSession
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal healing session: %w", err)
	}
	return &s, nil
}
