package battle

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
)

// --- QuestionOracle ---

type MockOracle struct {
	mock.Mock
}

func (m *MockOracle) GenerateQuestion(ctx context.Context, topic, difficulty string, round int, scenario string) (*Question, error) {
	args := m.Called(ctx, topic, difficulty, round, scenario)
	q, _ := args.Get(0).(*Question)
	return q, args.Error(1)
}

func (m *MockOracle) ScoreAnswer(ctx context.Context, q *Question, answer string) (ScoreResult, error) {
	args := m.Called(ctx, q, answer)
	return args.Get(0).(ScoreResult), args.Error(1)
}

// --- Broadcaster ---

type publishedMessage struct {
	topic string
	msg   Message
}

type queuedPayload struct {
	userID  string
	queue   string
	payload any
}

// fakeBus records everything the orchestrator publishes so tests can
// wait on asynchronous pipeline events.
type fakeBus struct {
	mu     sync.Mutex
	topics []publishedMessage
	queues []queuedPayload
}

func (b *fakeBus) Publish(topic string, msg Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.topics = append(b.topics, publishedMessage{topic: topic, msg: msg})
}

func (b *fakeBus) PublishToUser(userID, queue string, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queues = append(b.queues, queuedPayload{userID: userID, queue: queue, payload: payload})
}

func (b *fakeBus) messagesOfType(t MessageType) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Message
	for _, pm := range b.topics {
		if pm.msg.Type == t {
			out = append(out, pm.msg)
		}
	}
	return out
}

func (b *fakeBus) queuePayloads(queue string) []queuedPayload {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []queuedPayload
	for _, qp := range b.queues {
		if qp.queue == queue {
			out = append(out, qp)
		}
	}
	return out
}

// waitFor blocks until at least count messages of the given type have
// been published, failing the test after two seconds.
func (b *fakeBus) waitFor(t *testing.T, typ MessageType, count int) []Message {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if msgs := b.messagesOfType(typ); len(msgs) >= count {
			return msgs
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d %s message(s), got %d", count, typ, len(b.messagesOfType(typ)))
	return nil
}

// --- TickerFactory ---

// fakeTickerFactory hands each timer its own buffered channel so tests
// drive the active countdown explicitly; stale timers never see ticks
// meant for their successor.
type fakeTickerFactory struct {
	mu  sync.Mutex
	chs []chan time.Time
}

func newFakeTickerFactory() *fakeTickerFactory {
	return &fakeTickerFactory{}
}

func (f *fakeTickerFactory) Create(d time.Duration) (<-chan time.Time, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan time.Time, 64)
	f.chs = append(f.chs, ch)
	return ch, func() {}
}

// tick feeds the most recently created timer.
func (f *fakeTickerFactory) tick(n int) {
	f.mu.Lock()
	ch := f.chs[len(f.chs)-1]
	f.mu.Unlock()
	for i := 0; i < n; i++ {
		ch <- time.Now()
	}
}

// timers reports how many countdowns have been armed.
func (f *fakeTickerFactory) timers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.chs)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRoomConfig() RoomConfig {
	return RoomConfig{
		RoomName:    "test room",
		MaxPlayers:  4,
		TotalRounds: 2,
		Topic:       "history",
		Difficulty:  "medium",
	}
}
