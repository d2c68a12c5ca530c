package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Mender/internal/audit"
	"github.com/shaiso/Mender/internal/domain"
)

// ExecutionRepo — история выполнений и пакетов.
//
// Полный результат хранится в JSONB, для фильтрации и списков
// вынесены отдельные колонки.
type ExecutionRepo struct {
	pool *pgxpool.Pool
}

// NewExecutionRepo создаёт новый ExecutionRepo.
func NewExecutionRepo(pool *pgxpool.Pool) *ExecutionRepo {
	return &ExecutionRepo{pool: pool}
}

const upsertExecution = `
	INSERT INTO executions (id, workflow_name, workflow_path, status, is_batch,
	                        start_time, end_time, duration_ms, success_rate, error, result)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	ON CONFLICT (id) DO UPDATE
	SET status = EXCLUDED.status,
	    end_time = EXCLUDED.end_time,
	    duration_ms = EXCLUDED.duration_ms,
	    success_rate = EXCLUDED.success_rate,
	    error = EXCLUDED.error,
	    result = EXCLUDED.result
`

// SaveExecution сохраняет или обновляет результат выполнения.
func (r *ExecutionRepo) SaveExecution(ctx context.Context, res *domain.WorkflowExecutionResult) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal execution: %w", err)
	}

	_, err = r.pool.Exec(ctx, upsertExecution,
		res.ExecutionID,
		res.WorkflowName,
		nullString(res.WorkflowPath),
		res.Status,
		false,
		res.StartTime,
		res.EndTime,
		res.DurationMs,
		res.SuccessRate,
		nullString(res.Error),
		data,
	)
	if err != nil {
		return fmt.Errorf("upsert execution: %w", err)
	}
	return nil
}

// SaveBatch сохраняет или обновляет результат пакета.
func (r *ExecutionRepo) SaveBatch(ctx context.Context, b *domain.BatchExecutionResult) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}

	_, err = r.pool.Exec(ctx, upsertExecution,
		b.BatchID,
		b.WorkflowName,
		nil,
		b.Status,
		true,
		b.StartTime,
		b.EndTime,
		b.DurationMs,
		b.SuccessRate,
		nil,
		data,
	)
	if err != nil {
		return fmt.Errorf("upsert batch: %w", err)
	}
	return nil
}

// GetExecution возвращает результат выполнения по ID.
func (r *ExecutionRepo) GetExecution(ctx context.Context, id string) (*domain.WorkflowExecutionResult, error) {
	var res domain.WorkflowExecutionResult
	if err := r.getResult(ctx, id, false, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// GetBatch возвращает результат пакета по ID.
func (r *ExecutionRepo) GetBatch(ctx context.Context, id string) (*domain.BatchExecutionResult, error) {
	var b domain.BatchExecutionResult
	if err := r.getResult(ctx, id, true, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *ExecutionRepo) getResult(ctx context.Context, id string, batch bool, v any) error {
	query := `SELECT result FROM executions WHERE id = $1 AND is_batch = $2`

	var data []byte
	err := r.pool.QueryRow(ctx, query, id, batch).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: execution %s", ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("get execution: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal execution: %w", err)
	}
	return nil
}

// ListExecutions возвращает сводки выполнений, новые первыми.
func (r *ExecutionRepo) ListExecutions(ctx context.Context, f audit.ExecutionFilter) ([]audit.ExecutionSummary, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = audit.DefaultListLimit
	}

	query := `
		SELECT id, workflow_name, status, start_time, duration_ms, success_rate, is_batch
		FROM executions
		WHERE ($1::text IS NULL OR workflow_name = $1)
		ORDER BY start_time DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, nullString(f.WorkflowName), limit)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var out []audit.ExecutionSummary
	for rows.Next() {
		var s audit.ExecutionSummary
		if err := rows.Scan(&s.ID, &s.WorkflowName, &s.Status, &s.StartTime, &s.DurationMs, &s.SuccessRate, &s.IsBatch); err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
