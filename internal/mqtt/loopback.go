package mqtt

import (
	"log/slog"
	"sync"

	"github.com/orrn/printerd/internal/core"
)

// LoopbackMessage is one message that crossed the loopback.
type LoopbackMessage struct {
	Topic   string
	Payload []byte
}

// Loopback is an in-memory transport for simulated mode and tests. Publishes
// are retained and delivered synchronously to matching subscribers, so the
// full agent pipeline runs without a broker.
type Loopback struct {
	log *slog.Logger

	mu       sync.Mutex
	handlers map[string][]core.MessageHandler
	messages []LoopbackMessage
}

func NewLoopback(log *slog.Logger) *Loopback {
	return &Loopback{
		log:      log,
		handlers: make(map[string][]core.MessageHandler),
	}
}

func (l *Loopback) Connect() error {
	l.log.Info("loopback transport ready, running in simulated mode")
	return nil
}

func (l *Loopback) Disconnect() {}

func (l *Loopback) Subscribe(topic string, handler core.MessageHandler) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.handlers[topic] = append(l.handlers[topic], handler)
	return nil
}

func (l *Loopback) Publish(topic string, payload []byte) error {
	l.mu.Lock()
	l.messages = append(l.messages, LoopbackMessage{Topic: topic, Payload: payload})
	handlers := append([]core.MessageHandler(nil), l.handlers[topic]...)
	l.mu.Unlock()

	l.log.Debug("loopback message", "topic", topic, "subscribers", len(handlers))

	for _, handler := range handlers {
		handler(topic, payload)
	}
	return nil
}

// Messages returns everything published so far, in order.
func (l *Loopback) Messages() []LoopbackMessage {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]LoopbackMessage, len(l.messages))
	copy(out, l.messages)
	return out
}
