// Package worker выполняет правила над entries.
//
// # Обзор
//
// Worker — stateless компонент Feedline. На каждое правило из
// rules.Registry он читает свою очередь rules.<category>.<rule>,
// выполняет правило и публикует TaskResult в tasks.results.
// Workers масштабируются горизонтально.
//
//	w := worker.New(worker.Config{
//	    Channel:  channel,
//	    Rules:    registry,
//	    Entries:  entryRepo,
//	    Tasks:    taskRepo,
//	    Findings: findingRepo,
//	    Reports:  reportStore,
//	    Logger:   logger,
//	})
//
//	if err := w.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer w.Stop()
//
// # Loop
//
// Loop — общий цикл обработки очереди, его использует и orchestrator.
// Сообщение удаляется из очереди ровно один раз при любом исходе.
//
// # Retry
//
// Повтор выполняется через requeue: копия сообщения с TryNumber+1
// отправляется в ту же очередь. Повторяются только ошибки,
// обёрнутые в RecoverableError. Когда TryNumber > MaxRetries,
// вместо тела вызывается ExhaustedHandler: task помечается FAILED,
// сообщение уходит в dlq.jobs.
//
// # Ошибки
//
//   - rules.DataError — ошибка во входных данных, становится finding
//   - rules.ErrInfrastructure — инфраструктура, повторяется
//   - всё остальное — неожиданный сбой, логируется без повтора
package worker
