package mutator

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/shaiso/Mender/internal/domain"
	"github.com/shaiso/Mender/internal/engine"
	"github.com/spf13/afero"
)

// Значения по умолчанию.
const (
	DefaultBackupDir     = "workflows/backups"
	DefaultLockTimeout   = 10 * time.Second
	DefaultRetentionDays = 30

	backupTimeLayout = "20060102_150405"
	backupMarker     = "_backup_"
)

// Config — конфигурация Mutator.
type Config struct {
	// FS — файловая система документов и копий (default: OS).
	FS afero.Fs

	// BackupDir — каталог резервных копий.
	BackupDir string

	// LockTimeout — ожидание файловой блокировки.
	// Файловая блокировка берётся только на файловой системе ОС;
	// внутри процесса записи всегда идут под мьютексом Mutator.
	LockTimeout time.Duration

	Logger *slog.Logger
}

// Mutator — резервные копии, замена шагов, проверка, запись и откат.
type Mutator struct {
	fs          afero.Fs
	backupDir   string
	lockTimeout time.Duration
	osBacked    bool
	logger      *slog.Logger

	// mu — один писатель документов на процесс.
	mu sync.Mutex

	now func() time.Time
}

// New создаёт Mutator.
func New(cfg Config) *Mutator {
	fsys := cfg.FS
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	backupDir := cfg.BackupDir
	if backupDir == "" {
		backupDir = DefaultBackupDir
	}
	lockTimeout := cfg.LockTimeout
	if lockTimeout == 0 {
		lockTimeout = DefaultLockTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	_, osBacked := fsys.(*afero.OsFs)

	return &Mutator{
		fs:          fsys,
		backupDir:   backupDir,
		lockTimeout: lockTimeout,
		osBacked:    osBacked,
		logger:      logger,
		now:         time.Now,
	}
}

// BackupDir возвращает каталог резервных копий.
func (m *Mutator) BackupDir() string {
	return m.backupDir
}

// Load читает workflow с диска.
func (m *Mutator) Load(path string) (*domain.Workflow, error) {
	if err := m.mustExist(path, ErrWorkflowNotFound); err != nil {
		return nil, err
	}
	return engine.LoadFile(m.fs, path)
}

// Backup копирует документ в каталог копий как {stem}_backup_{YYYYmmdd_HHMMSS}{ext}.
func (m *Mutator) Backup(path string) (string, error) {
	if err := m.mustExist(path, ErrWorkflowNotFound); err != nil {
		return "", err
	}

	data, err := afero.ReadFile(m.fs, path)
	if err != nil {
		return "", fmt.Errorf("read workflow: %w", err)
	}

	if err := m.fs.MkdirAll(m.backupDir, 0o755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}

	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(filepath.Base(path), ext)
	name := stem + backupMarker + m.now().Format(backupTimeLayout)

	backupPath := filepath.Join(m.backupDir, name+ext)
	for n := 1; ; n++ {
		exists, err := afero.Exists(m.fs, backupPath)
		if err != nil {
			return "", fmt.Errorf("stat backup: %w", err)
		}
		if !exists {
			break
		}
		backupPath = filepath.Join(m.backupDir, fmt.Sprintf("%s_%d%s", name, n, ext))
	}

	if err := afero.WriteFile(m.fs, backupPath, data, 0o644); err != nil {
		return "", fmt.Errorf("write backup: %w", err)
	}

	m.logger.Info("workflow backed up", "path", path, "backup", backupPath)
	return backupPath, nil
}

// Replace заменяет шаг failedIndex копии wf; см. пакетную функцию Replace.
func (m *Mutator) Replace(wf *domain.Workflow, failedIndex int, newSteps []domain.Step) (*domain.Workflow, error) {
	updated, err := Replace(wf, failedIndex, newSteps, m.now())
	if err != nil {
		return nil, err
	}
	m.logger.Info("failed step replaced",
		"failed_index", failedIndex,
		"new_steps", len(newSteps),
		"total_steps", len(updated.Steps),
	)
	return updated, nil
}

// Validate проверяет workflow; см. пакетную функцию Validate.
func (m *Mutator) Validate(wf *domain.Workflow) *domain.ValidationResult {
	res := Validate(wf)
	m.logger.Info("workflow validated",
		"accepted", res.Accepted(),
		"score", res.Score,
		"errors", len(res.Errors),
		"warnings", len(res.Warnings),
	)
	return res
}

// Save записывает workflow под файловой блокировкой.
func (m *Mutator) Save(ctx context.Context, wf *domain.Workflow, path string) error {
	unlock, err := m.lock(ctx, path)
	if err != nil {
		return err
	}
	defer unlock()

	return m.write(wf, path)
}

// Rollback восстанавливает документ из резервной копии.
func (m *Mutator) Rollback(ctx context.Context, path, backupPath string) error {
	if err := m.mustExist(backupPath, ErrBackupNotFound); err != nil {
		return err
	}

	unlock, err := m.lock(ctx, path)
	if err != nil {
		return err
	}
	defer unlock()

	data, err := afero.ReadFile(m.fs, backupPath)
	if err != nil {
		return fmt.Errorf("read backup: %w", err)
	}
	if err := m.writeAtomic(path, data); err != nil {
		return err
	}

	m.logger.Info("workflow rolled back", "path", path, "backup", backupPath)
	return nil
}

// ApplyResult — итог применения сессии лечения к документу.
type ApplyResult struct {
	BackupPath string                   `json:"backup_path"`
	Validation *domain.ValidationResult `json:"validation"`
	Workflow   *domain.Workflow         `json:"-"`
}

// ApplyHealingSession применяет успешную сессию к документу path.
//
// Порядок: блокировка, чтение, резервная копия, замена, отметка о
// сессии, проверка, запись. Отклонённый проверкой документ не
// записывается и возвращается ErrValidationRejected.
//
// Упавший шаг ищется по ID (см. locate); если его в документе уже нет,
// например его заменила другая сессия того же сбоя, возвращается
// ErrStepNotFound и документ не меняется.
func (m *Mutator) ApplyHealingSession(ctx context.Context, path string, s *domain.HealingSession) (*ApplyResult, error) {
	if !s.Success {
		return nil, ErrSessionNotSuccessful
	}

	unlock, err := m.lock(ctx, path)
	if err != nil {
		return nil, err
	}
	defer unlock()

	wf, err := m.Load(path)
	if err != nil {
		return nil, err
	}

	failedIndex, err := locate(wf, s.ErrorContext)
	if err != nil {
		return nil, err
	}

	backupPath, err := m.Backup(path)
	if err != nil {
		return nil, err
	}

	updated, err := m.Replace(wf, failedIndex, AppliedSteps(s))
	if err != nil {
		return nil, err
	}
	updated.AppliedHealingSessions = append(updated.AppliedHealingSessions, domain.AppliedHealingSession{
		SessionID:  s.ID,
		Timestamp:  m.now(),
		Success:    s.Success,
		BackupPath: backupPath,
	})

	result := &ApplyResult{BackupPath: backupPath, Validation: m.Validate(updated), Workflow: updated}
	if !result.Validation.Accepted() {
		return result, fmt.Errorf("%w: score %.2f, errors: %s",
			ErrValidationRejected, result.Validation.Score, strings.Join(result.Validation.Errors, "; "))
	}

	if err := m.write(updated, path); err != nil {
		return result, err
	}

	m.logger.Info("healing session applied", "path", path, "healing_session_id", s.ID, "backup", backupPath)
	return result, nil
}

// AppliedSteps возвращает шаги сессии, которые должны попасть в документ.
//
// Из альтернатив попадают только подтверждённые выполнением; без
// подтверждённых результат пуст и шаг в документе помечается skipped.
func AppliedSteps(s *domain.HealingSession) []domain.Step {
	if !s.Alternatives {
		return s.NewSteps
	}

	confirmed := make(map[string]bool)
	for _, a := range s.Actions {
		if a.Success {
			confirmed[a.StepID] = true
		}
	}

	var steps []domain.Step
	for _, step := range s.NewSteps {
		if confirmed[step.ID] {
			steps = append(steps, step)
		}
	}
	return steps
}

// locate находит упавший шаг в документе. Документ мог измениться после
// начала выполнения, поэтому индекс используется только для шага без ID.
func locate(wf *domain.Workflow, ec domain.ErrorContext) (int, error) {
	if ec.Step.ID == "" {
		if ec.StepIndex < 0 || ec.StepIndex >= len(wf.Steps) {
			return 0, fmt.Errorf("%w: index %d", ErrIndexOutOfRange, ec.StepIndex)
		}
		return ec.StepIndex, nil
	}
	if _, idx := wf.StepByID(ec.Step.ID); idx >= 0 {
		return idx, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrStepNotFound, ec.Step.ID)
}

// History возвращает журнал healing_history документа.
func (m *Mutator) History(path string) ([]domain.HealingHistoryEntry, error) {
	wf, err := m.Load(path)
	if err != nil {
		return nil, err
	}
	if wf.HealingHistory == nil {
		return []domain.HealingHistoryEntry{}, nil
	}
	return wf.HealingHistory, nil
}

// BackupInfo — описание резервной копии.
type BackupInfo struct {
	Path    string    `json:"path"`
	ModTime time.Time `json:"mod_time"`
	Size    int64     `json:"size"`
}

// ListBackups возвращает копии документа path, новые первыми.
// Пустой path — все копии каталога.
func (m *Mutator) ListBackups(path string) ([]BackupInfo, error) {
	match := func(name string) bool { return strings.Contains(name, backupMarker) }
	if path != "" {
		prefix := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)) + backupMarker
		match = func(name string) bool { return strings.HasPrefix(name, prefix) }
	}

	var out []BackupInfo
	err := m.walkBackups(func(p string, info fs.FileInfo) error {
		if match(info.Name()) {
			out = append(out, BackupInfo{Path: p, ModTime: info.ModTime(), Size: info.Size()})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].ModTime.After(out[j].ModTime) })
	return out, nil
}

// CleanupBackups удаляет копии старше days дней и возвращает их число.
func (m *Mutator) CleanupBackups(days int) (int, error) {
	if days <= 0 {
		days = DefaultRetentionDays
	}
	cutoff := m.now().Add(-time.Duration(days) * 24 * time.Hour)

	var removed int
	err := m.walkBackups(func(p string, info fs.FileInfo) error {
		if !strings.Contains(info.Name(), backupMarker) || !info.ModTime().Before(cutoff) {
			return nil
		}
		if err := m.fs.Remove(p); err != nil {
			return fmt.Errorf("remove backup %s: %w", p, err)
		}
		removed++
		return nil
	})

	m.logger.Info("old backups cleaned", "removed", removed, "days", days)
	return removed, err
}

func (m *Mutator) walkBackups(fn func(path string, info fs.FileInfo) error) error {
	entries, err := afero.ReadDir(m.fs, m.backupDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read backup dir: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := fn(filepath.Join(m.backupDir, e.Name()), e); err != nil {
			return err
		}
	}
	return nil
}

func (m *Mutator) write(wf *domain.Workflow, path string) error {
	format, err := engine.FormatFromPath(path)
	if err != nil {
		return err
	}
	data, err := engine.Encode(wf, format)
	if err != nil {
		return err
	}
	if err := m.writeAtomic(path, data); err != nil {
		return err
	}

	m.logger.Info("workflow saved", "path", path, "steps", len(wf.Steps))
	return nil
}

// writeAtomic пишет во временный файл рядом и переименовывает его.
func (m *Mutator) writeAtomic(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := m.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create workflow dir: %w", err)
		}
	}

	tmp := path + ".tmp"
	if err := afero.WriteFile(m.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("write workflow: %w", err)
	}
	if err := m.fs.Rename(tmp, path); err != nil {
		_ = m.fs.Remove(tmp)
		return fmt.Errorf("replace workflow: %w", err)
	}
	return nil
}

// lock берёт мьютекс Mutator и, на файловой системе ОС, файловую
// блокировку {path}.lock для других процессов.
func (m *Mutator) lock(ctx context.Context, path string) (func(), error) {
	m.mu.Lock()
	if !m.osBacked {
		return m.mu.Unlock, nil
	}

	locked := false
	defer func() {
		if !locked {
			m.mu.Unlock()
		}
	}()

	if err := m.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create workflow dir: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, m.lockTimeout)
	defer cancel()

	fl := flock.New(path + ".lock")
	ok, err := fl.TryLockContext(ctx, 100*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrLocked, path, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, path)
	}
	locked = true

	return func() {
		if err := fl.Unlock(); err != nil {
			m.logger.Warn("failed to release workflow lock", "path", path, "error", err)
		}
		m.mu.Unlock()
	}, nil
}

func (m *Mutator) mustExist(path string, notFound error) error {
	exists, err := afero.Exists(m.fs, path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if !exists {
		return fmt.Errorf("%w: %s", notFound, path)
	}
	return nil
}
