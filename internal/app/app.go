// Package app собирает компоненты Mender из конфигурации.
//
// Используется всеми бинарниками: CLI выполняет workflow в своём
// процессе, mender-worker — через очередь, mender-api — для чтения
// истории и локальной очереди без брокера.
package app

import (
	"context"
	"log/slog"

	"github.com/shaiso/Mender/internal/audit"
	"github.com/shaiso/Mender/internal/classify"
	"github.com/shaiso/Mender/internal/config"
	"github.com/shaiso/Mender/internal/domain"
	"github.com/shaiso/Mender/internal/driver"
	"github.com/shaiso/Mender/internal/executor"
	"github.com/shaiso/Mender/internal/healing"
	"github.com/shaiso/Mender/internal/mutator"
	"github.com/spf13/afero"
)

// Options — зависимости, которые вызывающий может подменить.
type Options struct {
	Config *config.Config
	Logger *slog.Logger

	// FS — файловая система документов, аудита и копий (default: OS).
	FS afero.Fs

	// Launcher — браузер (default: Chrome по секции browser).
	Launcher driver.Launcher

	// Executions и Healing заменяют файловый аудит, например на PostgreSQL.
	Executions executor.ExecutionStore
	Healing    healing.SessionStore

	// OnHealingFinished вызывается для каждой завершённой сессии лечения.
	OnHealingFinished func(ctx context.Context, s *domain.HealingSession)
}

// App — собранные компоненты.
type App struct {
	Config *config.Config
	Logger *slog.Logger
	FS     afero.Fs

	Audit   *audit.FileStore
	Mutator *mutator.Mutator

	// Healer — nil, если лечение выключено.
	Healer *healing.Orchestrator

	Steps  *executor.StepExecutor
	Runner *executor.Runner
}

// New собирает App.
func New(opts Options) *App {
	cfg := opts.Config
	if cfg == nil {
		def := config.Default()
		cfg = &def
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	fsys := opts.FS
	if fsys == nil {
		fsys = afero.NewOsFs()
	}

	a := &App{Config: cfg, Logger: logger, FS: fsys}

	a.Audit = audit.NewFileStore(audit.Config{FS: fsys, Dir: cfg.Storage.LogsDir, Logger: logger})
	a.Mutator = mutator.New(mutator.Config{FS: fsys, BackupDir: cfg.Storage.BackupDir, Logger: logger})

	var sessions healing.SessionStore = a.Audit
	if opts.Healing != nil {
		sessions = opts.Healing
	}
	var executions executor.ExecutionStore = a.Audit
	if opts.Executions != nil {
		executions = opts.Executions
	}

	stepCfg := executor.Config{
		Capturer: classify.NewCapturer(classify.CapturerConfig{
			FS:          fsys,
			Dir:         cfg.Storage.LogsDir,
			Screenshots: cfg.Storage.Screenshots,
			Logger:      logger,
		}),
		Errors:           a.Audit,
		AutoSave:         cfg.Healing.AutoSave,
		Persister:        a.Mutator,
		TransientRetries: cfg.Executor.TransientRetries,
		RetryBaseDelay:   cfg.Executor.RetryBaseDelay,
		Logger:           logger,
	}

	if cfg.Executor.HealingEnabled {
		hcfg := healing.Config{
			DisableHeuristic: !cfg.Healing.Heuristics,
			AITimeout:        cfg.Healing.AITimeout,
			Store:            sessions,
			OnFinish:         opts.OnHealingFinished,
			Logger:           logger,
		}
		if cfg.OpenAI.Enabled() {
			hcfg.Agent = healing.NewOpenAIAgent(healing.OpenAIConfig{
				APIKey:      cfg.OpenAI.APIKey,
				BaseURL:     cfg.OpenAI.BaseURL,
				Model:       cfg.OpenAI.Model,
				Temperature: cfg.OpenAI.Temperature,
				Timeout:     cfg.Healing.AITimeout,
				Logger:      logger,
			})
		}
		a.Healer = healing.New(hcfg)
		stepCfg.Healer = a.Healer
	}
	a.Steps = executor.NewStepExecutor(stepCfg)

	launcher := opts.Launcher
	if launcher == nil {
		launcher = driver.NewChromeLauncher(driver.ChromeConfig{
			RemoteURL: cfg.Browser.RemoteURL,
			ExecPath:  cfg.Browser.ExecPath,
			Headless:  cfg.Browser.Headless,
			Width:     cfg.Browser.Width,
			Height:    cfg.Browser.Height,
			// повторы запуска делает Runner
			LaunchRetries: -1,
			FS:            fsys,
			Logger:        logger,
		})
	}

	a.Runner = executor.NewRunner(executor.RunnerConfig{
		Launcher:         launcher,
		Steps:            a.Steps,
		Store:            executions,
		ConcurrencyLimit: cfg.Batch.ConcurrencyLimit,
		LaunchRetries:    cfg.Executor.LaunchRetries,
		DefaultTimeout:   cfg.Executor.DefaultTimeout,
		Logger:           logger,
	})

	return a
}

// LoadWorkflow читает документ workflow с файловой системы App.
func (a *App) LoadWorkflow(path string) (*domain.Workflow, error) {
	return a.Mutator.Load(path)
}
