// Package memory records run notifications in process, for development
// without Pub/Sub and for tests.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// Message is one recorded publish, stored as the JSON a broker would carry.
type Message struct {
	ID    string
	Topic string
	Data  []byte
}

// Publisher keeps the most recent messages up to a fixed capacity.
type Publisher struct {
	mu       sync.RWMutex
	capacity int
	seq      int
	messages []Message
}

// New returns a Publisher that retains at most capacity messages; a
// non-positive capacity keeps 100.
func New(capacity int) *Publisher {
	if capacity <= 0 {
		capacity = 100
	}
	return &Publisher{capacity: capacity}
}

// Publish encodes payload and records it.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	if topic == "" {
		return "", errors.New("topic is required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	id := fmt.Sprintf("memory-%d", p.seq)
	p.messages = append(p.messages, Message{ID: id, Topic: topic, Data: data})
	if over := len(p.messages) - p.capacity; over > 0 {
		p.messages = append([]Message(nil), p.messages[over:]...)
	}
	return id, nil
}

// Messages returns a copy of the retained messages, oldest first.
func (p *Publisher) Messages() []Message {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Message, len(p.messages))
	copy(out, p.messages)
	return out
}
