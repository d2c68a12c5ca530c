// Package executor выполняет шаги и workflow на сессии браузера.
//
// Структура:
//   - step.go     — StepExecutor: гонка действия с таймером, повтор
//     транзиентных сбоев, лечение и подтверждение заменяющих шагов
//   - dispatch.go — единственная точка выбора поведения по ActionKind
//   - runner.go   — Runner: последовательное выполнение и пакет с пулом разрешений
//   - errors.go   — Failure и ошибки конфигурации шага
//
// Использование:
//
//	steps := executor.NewStepExecutor(executor.Config{
//	    Healer:    orchestrator, // nil — без лечения
//	    Errors:    auditStore,
//	    AutoSave:  true,
//	    Persister: mut,
//	    Logger:    logger,
//	})
//	runner := executor.NewRunner(executor.RunnerConfig{
//	    Launcher: launcher,
//	    Steps:    steps,
//	    Store:    auditStore,
//	    Logger:   logger,
//	})
//
//	result, err := runner.Run(ctx, wf, executor.RunOptions{
//	    WorkflowPath: "workflows/search.json",
//	    Inputs:       map[string]any{"query": "go"},
//	})
package executor
