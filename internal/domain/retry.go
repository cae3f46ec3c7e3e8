package domain

// DefaultMaxRetries — максимальное количество попыток для job по умолчанию.
const DefaultMaxRetries = 5

// Retry — счётчик попыток, который путешествует вместе с job message.
//
// Значение неизменяемое: Increment возвращает копию.
type Retry struct {
	// TryNumber — номер текущей попытки (начиная с 1).
	TryNumber int `json:"try_number"`

	// MaxRetries — максимальное количество попыток для данного вида job.
	MaxRetries int `json:"max_retries"`
}

// NewRetry создаёт счётчик для первой попытки.
func NewRetry(maxRetries int) Retry {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return Retry{TryNumber: 1, MaxRetries: maxRetries}
}

// ShouldAttempt возвращает true, если попытку с этим номером ещё можно выполнять.
// Попытка с номером MaxRetries — последняя разрешённая.
func (r Retry) ShouldAttempt() bool {
	return r.TryNumber <= r.MaxRetries
}

// Increment возвращает счётчик для следующей попытки.
func (r Retry) Increment() Retry {
	return Retry{TryNumber: r.TryNumber + 1, MaxRetries: r.MaxRetries}
}
