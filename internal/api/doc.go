// Package api содержит HTTP API сервер Mender.
//
// Структура:
//   - handler.go           — Handler с DI (хранилища, очередь, logger)
//   - routes.go            — регистрация маршрутов
//   - middleware.go        — middleware (logging, recovery)
//   - response.go          — унифицированные JSON-ответы и обработка ошибок
//   - dto.go               — Data Transfer Objects (request/response)
//   - execution_handler.go — обработчики для /executions
//   - workflow_handler.go  — проверка документов workflow
//
// Выполнения не запускаются в процессе API: запрос публикуется в
// очередь и выполняется mender-worker. История читается из
// PostgreSQL или из файлов аудита, в зависимости от конфигурации.
package api
