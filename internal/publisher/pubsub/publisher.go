// Package pubsub implements a Google Cloud Pub/Sub publisher.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"

	"github.com/JakeFAU/newsroom-builder/internal/publisher"
)

// Publisher wraps a Pub/Sub client and caches topic handles.
type Publisher struct {
	client *pubsub.Client
	owned  bool

	mu     sync.Mutex
	topics map[string]*pubsub.Topic
}

// New creates a Publisher on an existing client. Close does not close the client.
func New(client *pubsub.Client) *Publisher {
	return &Publisher{client: client, topics: make(map[string]*pubsub.Topic)}
}

// Dial creates a client for projectID and a Publisher owning it.
func Dial(ctx context.Context, projectID string, opts ...option.ClientOption) (*Publisher, error) {
	if projectID == "" {
		return nil, errors.New("pubsub project id is required")
	}
	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	p := New(client)
	p.owned = true
	return p, nil
}

// Publish marshals the payload to JSON and publishes it to topic.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	if p.client == nil {
		return "", errors.New("pubsub publisher is not configured")
	}
	if topic == "" {
		return "", errors.New("pubsub topic is required")
	}
	data, attrs, err := publisher.Encode(payload)
	if err != nil {
		return "", err
	}
	result := p.topic(topic).Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	return id, nil
}

func (p *Publisher) topic(name string) *pubsub.Topic {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.topics[name]
	if !ok {
		t = p.client.Topic(name)
		p.topics[name] = t
	}
	return t
}

// Close flushes pending publishes and, for dialed publishers, the client.
func (p *Publisher) Close() error {
	p.mu.Lock()
	for _, t := range p.topics {
		t.Stop()
	}
	p.topics = make(map[string]*pubsub.Topic)
	p.mu.Unlock()
	if p.owned && p.client != nil {
		if err := p.client.Close(); err != nil {
			return fmt.Errorf("close pubsub client: %w", err)
		}
	}
	return nil
}
