// Package mq предоставляет очереди сообщений для pipeline.
//
// Структура:
//   - connection.go   — соединение с RabbitMQ (reconnect, graceful shutdown)
//   - channel.go      — интерфейс Channel, имена очередей, QueueNameFor
//   - amqp_channel.go — Channel поверх RabbitMQ (publish / basic.get / ack)
//   - memory.go       — Channel в памяти (тесты, локальный режим)
//   - message.go      — конверт Message с Retry
//   - topology.go     — объявление очередей
//
// Типы сообщений:
//   - job.delegation — entry ожидает отправки tasks
//   - job.validation — запуск правила валидации
//   - job.conversion — запуск правила конвертации
//   - task.result    — task завершена (успешно или брошена)
//
// Очереди:
//   - entries.delegation       — Orchestrator
//   - tasks.results            — Orchestrator
//   - rules.<category>.<rule>  — Worker
//   - dlq.jobs                 — ручной разбор
package mq
