// Package cli реализует инструмент командной строки Mender.
//
// # Обзор
//
// Команды делятся на локальные и удалённые. Локальные (run, batch,
// validate, rollback, history, backups, errors, executions, cron)
// собирают компоненты через internal/app и работают в своём процессе:
// браузер, лечение, аудит и резервные копии на локальном диске.
// Удалённые (remote submit/list/show/healing) ходят в mender-api по HTTP.
//
// # Ключевые компоненты
//
// ## Env
//
// Ленивые зависимости: загрузка конфигурации, сборка App, HTTP-клиент,
// форматирование вывода. Каждая команда создаётся фабрикой
// (NewRunCmd и т.д.), принимающей Env, и вызывает его функции уже
// после разбора флагов.
//
// ## Client
//
// HTTP-клиент для Mender API. Разбирает конверт ответа (data или
// error), превращает 4xx/5xx в *APIError и повторяет запросы, пока
// сервер недоступен.
//
//	client := cli.NewClient("http://localhost:8080")
//	items, err := client.ListExecutions(ctx, "", 20)
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: mender executions list --json | jq .
//
// # Коды выхода
//
// run завершается с ошибкой, если выполнение не в статусе completed;
// batch — только с --stop-on-error и долей успешных выполнений не
// выше половины.
package cli
