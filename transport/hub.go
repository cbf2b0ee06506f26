package transport

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/shiquanshi/haikedasai/battle"
)

// frame is the outbound wire envelope: topic fan-out or a private
// queue delivery, never both.
type frame struct {
	Topic string `json:"topic,omitempty"`
	Queue string `json:"queue,omitempty"`
	Data  any    `json:"data"`
}

// Hub routes published payloads to topic subscribers and private
// queues. It implements battle.Broadcaster. Subscriptions are driven by
// the clients' control frames; a slow consumer has its frame dropped
// rather than stalling the publisher.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[*Client]struct{}
	users  map[string]*Client
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		topics: make(map[string]map[*Client]struct{}),
		users:  make(map[string]*Client),
		logger: logger,
	}
}

// Publish implements battle.Broadcaster for room and lobby topics.
func (h *Hub) Publish(topic string, msg battle.Message) {
	h.send(topic, frame{Topic: topic, Data: msg})
}

// PublishToUser implements battle.Broadcaster for private queues.
func (h *Hub) PublishToUser(userID, queue string, payload any) {
	h.mu.RLock()
	client := h.users[userID]
	h.mu.RUnlock()
	if client == nil {
		return
	}

	data, err := json.Marshal(frame{Queue: queue, Data: payload})
	if err != nil {
		h.logger.Error("marshal queue frame", "queue", queue, "err", err)
		return
	}
	client.enqueue(data)
}

func (h *Hub) send(topic string, f frame) {
	data, err := json.Marshal(f)
	if err != nil {
		h.logger.Error("marshal topic frame", "topic", topic, "err", err)
		return
	}

	h.mu.RLock()
	subscribers := make([]*Client, 0, len(h.topics[topic]))
	for c := range h.topics[topic] {
		subscribers = append(subscribers, c)
	}
	h.mu.RUnlock()

	for _, c := range subscribers {
		c.enqueue(data)
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	if prev, ok := h.users[c.userID]; ok && prev != c {
		h.detachLocked(prev)
		prev.closeSend()
	}
	h.users[c.userID] = c
	h.mu.Unlock()
	h.logger.Info("client connected", "user_id", c.userID, "username", c.username)
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if h.users[c.userID] == c {
		delete(h.users, c.userID)
	}
	h.detachLocked(c)
	h.mu.Unlock()
	c.closeSend()
	h.logger.Info("client disconnected", "user_id", c.userID)
}

// detachLocked removes the client from every topic. Caller holds mu.
func (h *Hub) detachLocked(c *Client) {
	for topic, subs := range h.topics {
		delete(subs, c)
		if len(subs) == 0 {
			delete(h.topics, topic)
		}
	}
}

func (h *Hub) subscribe(c *Client, topic string) {
	h.mu.Lock()
	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[*Client]struct{})
		h.topics[topic] = subs
	}
	subs[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) unsubscribe(c *Client, topic string) {
	h.mu.Lock()
	if subs, ok := h.topics[topic]; ok {
		delete(subs, c)
		if len(subs) == 0 {
			delete(h.topics, topic)
		}
	}
	h.mu.Unlock()
}
