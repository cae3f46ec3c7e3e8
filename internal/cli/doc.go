// Package cli реализует инструмент командной строки Feedline.
//
// CLI работает напрямую с БД и RabbitMQ (как orchestrator) или, с флагом
// --local, собирает весь pipeline в памяти процесса: это удобно для
// проверки правил на одном feed без инфраструктуры.
//
// # Ключевые компоненты
//
// ## Backend
//
// Всё, что нужно командам: Orchestrator, реестр правил и доступ на чтение
// к entries, tasks, findings и report'ам (если хранение включено). В локальном режиме дополнительно содержит
// Worker, а Settle прогоняет очереди до пустых.
//
//	b, err := cli.OpenBackend(ctx, cfg, local, logger)
//	defer b.Close()
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: feedline entry findings ID --json | jq .
//
// ## Commands
//
//   - entry: submit, show, findings, report
//   - reap: разовый проход reaper
//   - rules: список правил
//
// Каждая команда создаётся фабричной функцией (NewEntryCmd и т.д.),
// принимающей backendFn и outputFn — замыкания для ленивого создания
// Backend и Output после парсинга PersistentFlags.
package cli
