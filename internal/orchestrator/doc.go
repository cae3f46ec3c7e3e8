// Package orchestrator ведёт жизненный цикл entries.
//
// Orchestrator отвечает за:
//   - Создание entry и её tasks (Submit)
//   - Отправку готовых tasks в очереди правил
//   - Запуск конвертаций после завершения всех валидаций
//   - Финализацию entry по findings (compare-and-set, уведомление один раз)
//   - Подбор зависших tasks и entries (ReapStale)
//
// Orchestrator — единственный, кто пишет финальный статус entry.
package orchestrator
