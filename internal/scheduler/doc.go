// Package scheduler управляет задачами выполнения workflow.
//
// Scheduler — явный реестр задач вместо глобального менеджера: его
// создают в main и передают в worker, API и CLI.
//
// Структура:
//   - scheduler.go — Scheduler (Submit, Result, Wait, Cancel, Active, Cleanup)
//   - cron.go      — Cron: периодические запуски по cron-выражению
//
// Использование:
//
//	sched := scheduler.New(scheduler.Config{
//	    Runner:        runner, // *executor.Runner
//	    MaxConcurrent: 4,
//	    Logger:        logger,
//	})
//	defer sched.Close(ctx)
//
//	id, err := sched.Submit(scheduler.Request{Workflow: wf, Inputs: vars})
//	task, err := sched.Wait(ctx, id)
//
// Периодические запуски:
//
//	c := scheduler.NewCron(sched, logger)
//	c.Add("*/15 * * * *", scheduler.Request{Workflow: wf})
//	c.Start()
//	defer c.Stop(ctx)
package scheduler
