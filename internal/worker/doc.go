// Package worker выполняет запросы на выполнение workflow из RabbitMQ.
//
// # Обзор
//
// Worker потребляет очередь executions.requested и ставит каждый
// запрос в scheduler.Scheduler. Планировщик ограничивает число
// одновременных выполнений; итог каждой задачи публикуется событием
// execution.completed. Итоги сессий лечения публикуются через
// HealingEvents, подключаемый к healing.Config.OnFinish.
//
// Воркеры масштабируются горизонтально: несколько экземпляров
// потребляют из одной очереди.
//
//	w := worker.New(worker.Config{
//	    Runner:        runner,
//	    MaxConcurrent: 10,
//	    Conn:          conn,
//	    Events:        publisher,
//	    Logger:        logger,
//	})
//	if err := w.Start(ctx); err != nil {
//	    return err
//	}
//	defer w.Stop(shutdownCtx)
//
// # Доставка
//
// Запрос подтверждается сразу после постановки в планировщик.
// Некорректные запросы подтверждаются без выполнения, повторная
// доставка уже принятого execution_id игнорируется.
package worker
