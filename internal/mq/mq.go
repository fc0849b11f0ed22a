package mq

import (
	"context"
	"fmt"

	"github.com/feedgraph/apiserver/config"
)

// Message is a broker-agnostic payload delivered to subscribers.
type Message struct {
	ID         string
	Data       []byte
	Attributes map[string]string
}

// Handler processes a message. Return an error to have it redelivered.
type Handler func(ctx context.Context, msg Message) error

// Backend is implemented by every broker client.
type Backend interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Subscribe(ctx context.Context, channel string, handler Handler) error
	Close() error
}

// MQ wraps a backend with a stable API.
type MQ struct {
	backend Backend
}

func New(backend Backend) *MQ {
	return &MQ{backend: backend}
}

// Open connects to the broker selected by cfg.Queue.Backend. It returns a
// nil MQ when no broker is configured.
func Open(ctx context.Context, cfg config.Config) (*MQ, error) {
	var (
		backend Backend
		err     error
	)
	switch cfg.Queue.Backend {
	case config.QueueBackendNone, "":
		return nil, nil
	case config.QueueBackendRabbitMQ:
		backend, err = NewRabbitMQClient(cfg.RabbitMQ)
	case config.QueueBackendPubSub:
		backend, err = NewPubSubClient(ctx, cfg.PubSub)
	default:
		return nil, fmt.Errorf("unknown queue backend %q", cfg.Queue.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.Queue.Backend, err)
	}
	return New(backend), nil
}

func (m *MQ) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	return m.backend.Publish(ctx, channel, data, attrs)
}

// Subscribe blocks consuming channel until ctx is done or the backend fails.
func (m *MQ) Subscribe(ctx context.Context, channel string, handler Handler) error {
	return m.backend.Subscribe(ctx, channel, handler)
}

func (m *MQ) Close() error {
	return m.backend.Close()
}
