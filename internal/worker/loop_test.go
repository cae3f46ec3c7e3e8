package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/shaiso/Feedline/internal/domain"
	"github.com/shaiso/Feedline/internal/mq"
	"github.com/shaiso/Feedline/internal/telemetry"
)

const testQueue = mq.Queue("rules.validation.gtfs.canonical")

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// countingChannel считает Delete по каждому handle.
type countingChannel struct {
	*mq.MemoryChannel

	mu      sync.Mutex
	deletes map[mq.DeleteHandle]int
}

func newCountingChannel() *countingChannel {
	return &countingChannel{MemoryChannel: mq.NewMemoryChannel(), deletes: make(map[mq.DeleteHandle]int)}
}

func (c *countingChannel) Delete(ctx context.Context, queue mq.Queue, handle mq.DeleteHandle) error {
	c.mu.Lock()
	c.deletes[handle]++
	c.mu.Unlock()
	return c.MemoryChannel.Delete(ctx, queue, handle)
}

func (c *countingChannel) assertDeletedOnce(t *testing.T, expected int) {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.deletes) != expected {
		t.Errorf("expected %d deleted messages, got %d", expected, len(c.deletes))
	}
	for handle, n := range c.deletes {
		if n != 1 {
			t.Errorf("handle %s deleted %d times", handle, n)
		}
	}
	if c.InFlight() != 0 {
		t.Errorf("expected nothing in flight, got %d", c.InFlight())
	}
}

func send(t *testing.T, ch mq.Channel, maxRetries int) {
	t.Helper()
	msg, err := mq.NewMessage(mq.MessageTypeValidation, map[string]string{"k": "v"}, domain.NewRetry(maxRetries))
	if err != nil {
		t.Fatalf("new message: %v", err)
	}
	if err := ch.Send(context.Background(), testQueue, msg); err != nil {
		t.Fatalf("send: %v", err)
	}
}

// drainAll повторяет проходы, пока очередь не опустеет.
// Возвращает общее количество обработанных сообщений.
func drainAll(t *testing.T, drain func(context.Context) (int, error)) int {
	t.Helper()
	total := 0
	for range 100 {
		n, err := drain(context.Background())
		if err != nil {
			t.Fatalf("drain: %v", err)
		}
		if n == 0 {
			return total
		}
		total += n
	}
	t.Fatal("queue did not drain")
	return total
}

// --- Loop Tests ---

func TestLoop_Success(t *testing.T) {
	ch := newCountingChannel()
	send(t, ch, 5)

	calls := 0
	loop := NewLoop(ch, testQueue, func(ctx context.Context, msg *mq.Message) error {
		calls++
		return nil
	}, nil, quietLogger())

	n, err := loop.Drain(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("Drain = (%d, %v), want (1, nil)", n, err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	ch.assertDeletedOnce(t, 1)
	if ch.Len(testQueue) != 0 {
		t.Error("queue should be empty")
	}
}

func TestLoop_SucceedsOnBoundaryTry(t *testing.T) {
	// max retries = 5: попытки 1–4 падают, попытка 5 (граница) проходит
	ch := newCountingChannel()
	send(t, ch, 5)

	var tries []int
	exhausted := 0
	loop := NewLoop(ch, testQueue,
		func(ctx context.Context, msg *mq.Message) error {
			tries = append(tries, msg.Retry.TryNumber)
			if msg.Retry.TryNumber < 5 {
				return Recoverable(errors.New("validator busy"))
			}
			return nil
		},
		func(ctx context.Context, msg *mq.Message) error {
			exhausted++
			return nil
		},
		quietLogger())

	n := drainAll(t, loop.Drain)

	want := []int{1, 2, 3, 4, 5}
	if len(tries) != len(want) {
		t.Fatalf("expected tries %v, got %v", want, tries)
	}
	for i := range want {
		if tries[i] != want[i] {
			t.Fatalf("expected tries %v, got %v", want, tries)
		}
	}
	if exhausted != 0 {
		t.Error("terminal handler must not run when the boundary try succeeds")
	}
	// Исходное сообщение + 4 requeue
	if n != 5 {
		t.Errorf("expected 5 deliveries, got %d", n)
	}
	ch.assertDeletedOnce(t, 5)
}

func TestLoop_ExhaustedRunsTerminalHandler(t *testing.T) {
	ch := newCountingChannel()
	send(t, ch, 5)

	var tries []int
	var exhaustedTry int
	loop := NewLoop(ch, testQueue,
		func(ctx context.Context, msg *mq.Message) error {
			tries = append(tries, msg.Retry.TryNumber)
			return Recoverable(errors.New("validator busy"))
		},
		func(ctx context.Context, msg *mq.Message) error {
			exhaustedTry = msg.Retry.TryNumber
			return nil
		},
		quietLogger())

	drainAll(t, loop.Drain)

	// Тело выполняется на попытках 1..5, на 6-й — только terminal handler
	if len(tries) != 5 || tries[4] != 5 {
		t.Errorf("expected body on tries 1..5, got %v", tries)
	}
	if exhaustedTry != 6 {
		t.Errorf("expected terminal handler on try 6, got %d", exhaustedTry)
	}
	ch.assertDeletedOnce(t, 6)
	if ch.Len(testQueue) != 0 {
		t.Error("nothing should be requeued after exhaustion")
	}
}

func TestLoop_RequeueEndsPass(t *testing.T) {
	ch := newCountingChannel()
	send(t, ch, 5)
	send(t, ch, 5)

	var tries []int
	loop := NewLoop(ch, testQueue, func(ctx context.Context, msg *mq.Message) error {
		tries = append(tries, msg.Retry.TryNumber)
		if len(tries) == 1 {
			return Recoverable(errors.New("db unavailable"))
		}
		return nil
	}, nil, quietLogger())

	n, err := loop.Drain(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("Drain = (%d, %v), want (1, nil)", n, err)
	}
	if ch.Len(testQueue) != 2 {
		t.Errorf("requeued try should wait for the next pass, queue len %d", ch.Len(testQueue))
	}

	// Следующий проход: второе исходное сообщение, затем повторная попытка
	n, err = loop.Drain(context.Background())
	if err != nil || n != 2 {
		t.Fatalf("second Drain = (%d, %v), want (2, nil)", n, err)
	}
	if len(tries) != 3 || tries[2] != 2 {
		t.Errorf("expected retry with try 2 last, got %v", tries)
	}
	ch.assertDeletedOnce(t, 3)
}

func TestLoop_HandlerSeesMessageLogger(t *testing.T) {
	ch := newCountingChannel()
	send(t, ch, 5)

	var got *slog.Logger
	base := quietLogger()
	loop := NewLoop(ch, testQueue, func(ctx context.Context, msg *mq.Message) error {
		got = telemetry.FromContext(ctx)
		return nil
	}, nil, base)

	loop.Drain(context.Background())

	if got == nil || got == slog.Default() || got == base {
		t.Error("handler context should carry the per-message logger")
	}
}

func TestLoop_ZeroMaxRetries(t *testing.T) {
	// max retries = 0: первая же попытка за границей
	ch := newCountingChannel()
	send(t, ch, 0)

	bodyCalls, exhausted := 0, 0
	loop := NewLoop(ch, testQueue,
		func(ctx context.Context, msg *mq.Message) error { bodyCalls++; return nil },
		func(ctx context.Context, msg *mq.Message) error { exhausted++; return nil },
		quietLogger())

	loop.Drain(context.Background())

	if bodyCalls != 0 || exhausted != 1 {
		t.Errorf("expected only terminal handler, got body=%d exhausted=%d", bodyCalls, exhausted)
	}
}

func TestLoop_UnexpectedErrorIsNotRetried(t *testing.T) {
	ch := newCountingChannel()
	send(t, ch, 5)

	calls := 0
	loop := NewLoop(ch, testQueue, func(ctx context.Context, msg *mq.Message) error {
		calls++
		return errors.New("nil pointer somewhere")
	}, nil, quietLogger())

	var outcome string
	for d := range ch.Receive(context.Background(), testQueue) {
		outcome = loop.Process(context.Background(), d)
	}

	if outcome != telemetry.OutcomeFailed {
		t.Errorf("expected failed outcome, got %s", outcome)
	}
	if calls != 1 || ch.Len(testQueue) != 0 {
		t.Errorf("unexpected faults must not be requeued: calls=%d len=%d", calls, ch.Len(testQueue))
	}
	ch.assertDeletedOnce(t, 1)
}

func TestLoop_PanicIsContained(t *testing.T) {
	ch := newCountingChannel()
	send(t, ch, 5)
	send(t, ch, 5)

	calls := 0
	loop := NewLoop(ch, testQueue, func(ctx context.Context, msg *mq.Message) error {
		calls++
		if calls == 1 {
			panic("boom")
		}
		return nil
	}, nil, quietLogger())

	n, err := loop.Drain(context.Background())
	if err != nil || n != 2 {
		t.Fatalf("Drain = (%d, %v), loop should survive the panic", n, err)
	}
	ch.assertDeletedOnce(t, 2)
}

func TestLoop_MalformedMessageIsDropped(t *testing.T) {
	ch := newCountingChannel()
	ch.Push(testQueue, []byte("{not json"))

	loop := NewLoop(ch, testQueue, func(ctx context.Context, msg *mq.Message) error {
		t.Error("handler must not run for malformed messages")
		return nil
	}, nil, quietLogger())

	var outcome string
	for d := range ch.Receive(context.Background(), testQueue) {
		outcome = loop.Process(context.Background(), d)
	}
	if outcome != telemetry.OutcomeMalformed {
		t.Errorf("expected malformed outcome, got %s", outcome)
	}
	ch.assertDeletedOnce(t, 1)
}

func TestLoop_TerminalHandlerErrorStillDeletes(t *testing.T) {
	ch := newCountingChannel()
	send(t, ch, 0)

	loop := NewLoop(ch, testQueue,
		func(ctx context.Context, msg *mq.Message) error { return nil },
		func(ctx context.Context, msg *mq.Message) error { return errors.New("db down") },
		quietLogger())

	loop.Drain(context.Background())
	ch.assertDeletedOnce(t, 1)
}

func TestRecoverable(t *testing.T) {
	base := errors.New("timeout")
	err := Recoverable(base)

	if !IsRecoverable(err) || !errors.Is(err, base) {
		t.Errorf("expected recoverable wrapping base, got %v", err)
	}
	if IsRecoverable(base) {
		t.Error("plain error should not be recoverable")
	}
	if Recoverable(nil) != nil {
		t.Error("Recoverable(nil) should be nil")
	}
}
