package battle

import (
	"context"
	"time"
)

// QuestionOracle generates questions and grades answers. Calls are slow
// (network latency) and must never run while a room lock is held.
type QuestionOracle interface {
	GenerateQuestion(ctx context.Context, topic, difficulty string, round int, scenario string) (*Question, error)
	ScoreAnswer(ctx context.Context, q *Question, answer string) (ScoreResult, error)
}

// Broadcaster delivers payloads to topic subscribers and to a single
// user's private queue. Delivery failures are the transport's problem.
type Broadcaster interface {
	Publish(topic string, msg Message)
	PublishToUser(userID, queue string, payload any)
}

// TickerFactory lets tests substitute the countdown clock.
type TickerFactory interface {
	Create(d time.Duration) (<-chan time.Time, func())
}

type tickerFactory struct{}

func (tickerFactory) Create(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

func NewTickerFactory() TickerFactory { return tickerFactory{} }
