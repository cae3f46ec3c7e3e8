// Package telemetry — логирование и метрики Feedline.
//
// logging.go настраивает slog (LOG_LEVEL, LOG_FORMAT) и даёт помощники
// для полей entry, task и queue. metrics.go регистрирует Prometheus
// метрики: исходы обработки сообщений, длительность правил, findings
// по severity, финальные статусы entries, брошенные reaper'ом tasks.
// Сервисы отдают их на /metrics.
package telemetry
