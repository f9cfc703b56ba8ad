// Package memory contains an in-memory publisher for tests and dry runs.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/newsroom-builder/internal/publisher"
)

// Publisher stores published payloads for inspection.
type Publisher struct {
	mu       sync.RWMutex
	messages []PublishedMessage
}

// PublishedMessage captures one publish call.
type PublishedMessage struct {
	Topic      string
	Payload    any
	Data       []byte
	Attributes map[string]string
}

// New returns a memory Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish encodes the payload like a real publisher would, records it and
// returns a pseudo ID.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	data, attrs, err := publisher.Encode(payload)
	if err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, PublishedMessage{Topic: topic, Payload: payload, Data: data, Attributes: attrs})
	return fmt.Sprintf("memory-%d", len(p.messages)), nil
}

// Messages returns the recorded publishes.
func (p *Publisher) Messages() []PublishedMessage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]PublishedMessage, len(p.messages))
	copy(out, p.messages)
	return out
}

// Close implements io.Closer.
func (p *Publisher) Close() error { return nil }
