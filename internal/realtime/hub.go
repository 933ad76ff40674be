// Package realtime delivers live snapshots over WebSocket. Topics are plain strings
// ("catalog", "host:<id>", "user:<id>", "webinar:<id>") and fan out across instances
// through a Redis pub/sub bridge.
package realtime

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are used for heartbeat, in seconds.
	PingInterval = 30
	PongWait     = 60
)

// Bridge carries events between instances.
type Bridge interface {
	Publish(topic, event string, payload []byte) error
	Subscribe(topic string, handler func(event string, payload []byte)) (cancel func(), err error)
}

// Hub maintains topic -> set of connections and broadcasts messages.
type Hub struct {
	topics      map[string]map[*Client]struct{}
	users       map[uuid.UUID]map[*Client]struct{}
	subs        map[string]func() // cancel bridge subscription per topic
	subscribing map[string]bool
	mu          sync.RWMutex
	bridge      Bridge
	logger      *zap.Logger
}

// NewHub creates a hub. With a nil bridge events stay on this instance.
func NewHub(bridge Bridge, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		topics:      make(map[string]map[*Client]struct{}),
		users:       make(map[uuid.UUID]map[*Client]struct{}),
		subs:        make(map[string]func()),
		subscribing: make(map[string]bool),
		bridge:      bridge,
		logger:      logger,
	}
}

// Register adds a client to its topics. Topics without a live bridge subscription on this
// instance are subscribed after the lock is released; a failed subscribe is retried by the
// next Register of that topic.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	var pending []string
	for _, topic := range c.Topics {
		if h.topics[topic] == nil {
			h.topics[topic] = make(map[*Client]struct{})
		}
		h.topics[topic][c] = struct{}{}
		if h.bridge != nil && h.subs[topic] == nil && !h.subscribing[topic] {
			h.subscribing[topic] = true
			pending = append(pending, topic)
		}
	}
	if h.users[c.UserID] == nil {
		h.users[c.UserID] = make(map[*Client]struct{})
	}
	h.users[c.UserID][c] = struct{}{}
	h.mu.Unlock()

	for _, topic := range pending {
		h.subscribe(topic)
	}
	h.logger.Debug("client connected", zap.String("client_id", c.ID), zap.Strings("topics", c.Topics))
}

func (h *Hub) subscribe(topic string) {
	cancel, err := h.bridge.Subscribe(topic, func(event string, payload []byte) {
		h.Broadcast(topic, event, payload)
	})

	h.mu.Lock()
	delete(h.subscribing, topic)
	keep := err == nil && len(h.topics[topic]) > 0
	if keep {
		h.subs[topic] = cancel
	}
	h.mu.Unlock()

	switch {
	case err != nil:
		h.logger.Warn("bridge subscribe failed, delivering locally", zap.String("topic", topic), zap.Error(err))
	case !keep:
		// every client left while subscribing
		cancel()
	}
}

// Unregister removes a client. The bridge subscription of a topic ends with its last client.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	var cancels []func()
	for _, topic := range c.Topics {
		m, ok := h.topics[topic]
		if !ok {
			continue
		}
		delete(m, c)
		if len(m) == 0 {
			delete(h.topics, topic)
			if cancel, ok := h.subs[topic]; ok {
				cancels = append(cancels, cancel)
				delete(h.subs, topic)
			}
		}
	}
	if m, ok := h.users[c.UserID]; ok {
		delete(m, c)
		if len(m) == 0 {
			delete(h.users, c.UserID)
		}
	}
	h.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	h.logger.Debug("client disconnected", zap.String("client_id", c.ID))
}

// Publish sends an event to every subscriber of topic on all instances. With a bridge the
// event goes through Redis and this instance's subscription delivers it locally. Local
// clients of a topic without a subscription get it directly.
func (h *Hub) Publish(topic, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("marshal event", zap.String("event", event), zap.Error(err))
		return
	}
	if h.bridge != nil {
		err := h.bridge.Publish(topic, event, data)
		if err == nil && h.bridged(topic) {
			return
		}
		if err != nil {
			h.logger.Warn("bridge publish failed, delivering locally", zap.String("topic", topic), zap.Error(err))
		}
	}
	h.Broadcast(topic, event, data)
}

// bridged reports whether local delivery of topic is left to the bridge subscription.
func (h *Hub) bridged(topic string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.subs[topic]
	return ok || len(h.topics[topic]) == 0
}

// Broadcast delivers an encoded event to local subscribers. Slow clients drop messages.
func (h *Hub) Broadcast(topic, event string, data []byte) {
	msg := WSMessage{Event: event, Data: data}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.topics[topic] {
		c.deliver(msg)
	}
}

// DisconnectUser closes every connection of the user. Called on sign-out.
func (h *Hub) DisconnectUser(userID uuid.UUID) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.users[userID]))
	for c := range h.users[userID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		c.Close()
	}
	if len(clients) > 0 {
		h.logger.Info("disconnected signed-out user", zap.String("user_id", userID.String()), zap.Int("connections", len(clients)))
	}
}

// Subscribers returns the number of local connections on topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}
