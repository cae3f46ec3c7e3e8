// Package scheduler запускает периодические задачи по cron-расписанию.
//
// Используется оркестратором для reaper: зависшие tasks и entries
// подбираются раз в REAPER_SCHEDULE.
//
// Структура:
//   - scheduler.go — Scheduler (Add, Tick, Start, Stop)
//   - cron.go      — парсинг cron-выражений
//
// Использование:
//
//	sched := scheduler.New(scheduler.Config{
//	    Lock:   repo.NewAdvisoryLock(pool, repo.ReaperLockKey), // опционально
//	    Logger: logger,
//	})
//
//	err := sched.Add("reaper", "@every 1m", func(ctx context.Context) error {
//	    _, err := orch.ReapStale(ctx, staleAfter)
//	    return err
//	})
//
//	sched.Start(ctx)
//	defer sched.Stop()
//
// Leader Election:
//
// Scheduler сам не выбирает лидера. Locker (обычно pg_try_advisory_lock)
// проверяется на каждом тике, Job выполняется только лидером.
package scheduler
