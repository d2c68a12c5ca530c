package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/shaiso/Mender/internal/domain"
	"github.com/spf13/afero"
)

// ErrNotFound — запись не найдена.
var ErrNotFound = errors.New("audit record not found")

// Значения по умолчанию.
const (
	DefaultDir           = "logs"
	DefaultListLimit     = 50
	DefaultRetentionDays = 30
)

const (
	errorsDir     = "errors"
	healingDir    = "healing"
	executionsDir = "executions"
	batchPrefix   = "batch_"
)

// Config — конфигурация FileStore.
type Config struct {
	FS     afero.Fs
	Dir    string
	Logger *slog.Logger
}

// FileStore — хранилище аудита на файловой системе.
type FileStore struct {
	fs     afero.Fs
	dir    string
	logger *slog.Logger
	now    func() time.Time
}

// NewFileStore создаёт FileStore.
func NewFileStore(cfg Config) *FileStore {
	fsys := cfg.FS
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	dir := cfg.Dir
	if dir == "" {
		dir = DefaultDir
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{fs: fsys, dir: dir, logger: logger, now: time.Now}
}

// SaveError сохраняет контекст сбоя.
func (s *FileStore) SaveError(_ context.Context, ec *domain.ErrorContext) error {
	return s.write(errorsDir, ec.ID, ec)
}

// GetError читает контекст сбоя по ID.
func (s *FileStore) GetError(_ context.Context, id string) (*domain.ErrorContext, error) {
	var ec domain.ErrorContext
	if err := s.read(errorsDir, id, &ec); err != nil {
		return nil, err
	}
	return &ec, nil
}

// ListErrors возвращает все сохранённые контексты сбоев, новые первыми.
func (s *FileStore) ListErrors(_ context.Context) ([]domain.ErrorContext, error) {
	var out []domain.ErrorContext
	err := s.each(errorsDir, func(name string, data []byte) {
		var ec domain.ErrorContext
		if err := json.Unmarshal(data, &ec); err != nil {
			s.logger.Warn("skipping unreadable error record", "file", name, "error", err)
			return
		}
		out = append(out, ec)
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, err
}

// SaveHealing сохраняет сессию лечения.
func (s *FileStore) SaveHealing(_ context.Context, hs *domain.HealingSession) error {
	return s.write(healingDir, hs.ID, hs)
}

// GetHealing читает сессию лечения по ID.
func (s *FileStore) GetHealing(_ context.Context, id string) (*domain.HealingSession, error) {
	var hs domain.HealingSession
	if err := s.read(healingDir, id, &hs); err != nil {
		return nil, err
	}
	return &hs, nil
}

// ListHealing возвращает все сессии лечения, новые первыми.
func (s *FileStore) ListHealing(_ context.Context) ([]domain.HealingSession, error) {
	var out []domain.HealingSession
	err := s.each(healingDir, func(name string, data []byte) {
		var hs domain.HealingSession
		if err := json.Unmarshal(data, &hs); err != nil {
			s.logger.Warn("skipping unreadable healing record", "file", name, "error", err)
			return
		}
		out = append(out, hs)
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	return out, err
}

// SaveExecution сохраняет результат выполнения.
func (s *FileStore) SaveExecution(_ context.Context, r *domain.WorkflowExecutionResult) error {
	return s.write(executionsDir, r.ExecutionID, r)
}

// SaveBatch сохраняет результат пакета.
func (s *FileStore) SaveBatch(_ context.Context, b *domain.BatchExecutionResult) error {
	return s.write(executionsDir, batchPrefix+b.BatchID, b)
}

// GetExecution читает результат выполнения по ID.
func (s *FileStore) GetExecution(_ context.Context, id string) (*domain.WorkflowExecutionResult, error) {
	var r domain.WorkflowExecutionResult
	if err := s.read(executionsDir, id, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// GetBatch читает результат пакета по ID.
func (s *FileStore) GetBatch(_ context.Context, id string) (*domain.BatchExecutionResult, error) {
	var b domain.BatchExecutionResult
	if err := s.read(executionsDir, batchPrefix+id, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// ExecutionFilter — фильтр списка выполнений.
type ExecutionFilter struct {
	// WorkflowName — только выполнения этого workflow.
	WorkflowName string

	// Limit — максимум записей (default: 50).
	Limit int
}

// ExecutionSummary — краткая запись о выполнении или пакете.
type ExecutionSummary struct {
	ID           string                 `json:"execution_id"`
	WorkflowName string                 `json:"workflow_name"`
	Status       domain.ExecutionStatus `json:"status"`
	StartTime    time.Time              `json:"start_time"`
	DurationMs   int64                  `json:"duration_ms"`
	SuccessRate  float64                `json:"success_rate"`
	IsBatch      bool                   `json:"is_batch"`
}

// ListExecutions возвращает сводки выполнений, новые первыми.
func (s *FileStore) ListExecutions(_ context.Context, f ExecutionFilter) ([]ExecutionSummary, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	var out []ExecutionSummary
	err := s.each(executionsDir, func(name string, data []byte) {
		var rec struct {
			ExecutionID  string                 `json:"execution_id"`
			BatchID      string                 `json:"batch_id"`
			WorkflowName string                 `json:"workflow_name"`
			Status       domain.ExecutionStatus `json:"status"`
			StartTime    time.Time              `json:"start_time"`
			DurationMs   int64                  `json:"duration_ms"`
			SuccessRate  float64                `json:"success_rate"`
		}
		if err := json.Unmarshal(data, &rec); err != nil {
			s.logger.Warn("skipping unreadable execution record", "file", name, "error", err)
			return
		}
		if f.WorkflowName != "" && rec.WorkflowName != f.WorkflowName {
			return
		}

		sum := ExecutionSummary{
			ID:           rec.ExecutionID,
			WorkflowName: rec.WorkflowName,
			Status:       rec.Status,
			StartTime:    rec.StartTime,
			DurationMs:   rec.DurationMs,
			SuccessRate:  rec.SuccessRate,
		}
		if rec.BatchID != "" {
			sum.ID = rec.BatchID
			sum.IsBatch = true
		}
		out = append(out, sum)
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Cleanup удаляет записи старше days дней и возвращает их число.
func (s *FileStore) Cleanup(_ context.Context, days int) (int, error) {
	if days <= 0 {
		days = DefaultRetentionDays
	}
	cutoff := s.now().Add(-time.Duration(days) * 24 * time.Hour)

	var removed int
	for _, sub := range []string{errorsDir, healingDir, executionsDir} {
		dir := filepath.Join(s.dir, sub)
		entries, err := afero.ReadDir(s.fs, dir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return removed, fmt.Errorf("read %s: %w", dir, err)
		}
		for _, e := range entries {
			if e.IsDir() || !e.ModTime().Before(cutoff) {
				continue
			}
			if err := s.fs.Remove(filepath.Join(dir, e.Name())); err != nil {
				return removed, fmt.Errorf("remove %s: %w", e.Name(), err)
			}
			removed++
		}
	}

	s.logger.Info("audit records cleaned", "removed", removed, "days", days)
	return removed, nil
}

func (s *FileStore) write(sub, id string, v any) error {
	if id == "" {
		return fmt.Errorf("save %s record: empty id", sub)
	}

	dir := filepath.Join(s.dir, sub)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s record: %w", sub, err)
	}

	path := filepath.Join(dir, id+".json")
	if err := afero.WriteFile(s.fs, path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	s.logger.Debug("audit record saved", "kind", sub, "id", id)
	return nil
}

func (s *FileStore) read(sub, id string, v any) error {
	if id == "" || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}

	data, err := afero.ReadFile(s.fs, filepath.Join(s.dir, sub, id+".json"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s/%s", ErrNotFound, sub, id)
		}
		return fmt.Errorf("read %s record: %w", sub, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s record: %w", sub, err)
	}
	return nil
}

func (s *FileStore) each(sub string, fn func(name string, data []byte)) error {
	dir := filepath.Join(s.dir, sub)
	entries, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", dir, err)
	}

	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		data, err := afero.ReadFile(s.fs, filepath.Join(dir, e.Name()))
		if err != nil {
			s.logger.Warn("skipping unreadable audit file", "file", e.Name(), "error", err)
			continue
		}
		fn(e.Name(), data)
	}
	return nil
}
