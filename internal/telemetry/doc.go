// Package telemetry обеспечивает наблюдаемость системы.
//
// Включает:
//   - logging.go — structured logging через slog
//   - metrics.go — Prometheus метрики исполнения и лечения
//
// Все бинарники используют единый формат логирования,
// сервисы экспортируют метрики на /metrics endpoint.
package telemetry
