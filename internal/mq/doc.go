// Package mq — инфраструктура RabbitMQ: соединение с переподключением,
// топология, публикация и потребление сообщений.
//
// Типы сообщений:
//   - execution.requested — запрос на выполнение (потребитель: mender-worker)
//   - execution.completed — итог выполнения или пакета
//   - healing.completed   — итог сессии лечения
//
// Exchanges:
//   - mender.executions — запросы и итоги выполнений
//   - mender.healing    — события лечения
//   - mender.dlq        — dead letter queue
package mq
