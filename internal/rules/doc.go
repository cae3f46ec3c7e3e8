// Package rules содержит правила, которые выполняют tasks.
//
// # Rule
//
// Правило бывает двух видов:
//   - ValidatorRule — валидация feed одного формата
//   - ConverterRule — конвертация из формата в формат
//
// Оба реализуют Execute(ctx, entry, cfg, task) и отдают результат через
// канал (Result). Перед доменной логикой проверяется формат entry:
// при несовпадении правило сразу возвращает placeholder report с одним
// ERROR finding (код format_mismatch).
//
// # Ошибки
//
//   - DataError — проблема во входных данных, становится finding
//   - ErrInfrastructure — сбой сети/сервиса, воркер повторит job
//   - всё остальное — неожиданная ошибка
//
// # Реализации
//
//   - Remote (remote.go) — логика во внешнем HTTP-сервисе
//   - PackageValidator (package.go) — проверка состава ZIP-архива
//
// # Registry
//
// Registry собирается при старте из переменной RULES:
//
//	registry, err := rules.BuildRegistry(os.Getenv("RULES"), nil, 0)
//	rule, err := registry.Get("gtfs.canonical")
package rules
