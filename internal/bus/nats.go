package bus

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/opensource-finance/sentinel/internal/domain"
)

// NATSBus implements EventBus using NATS.
// Used as the pro tier bus for multi-node deployments.
type NATSBus struct {
	conn *nats.Conn
}

// NewNATSBus creates a new NATS-backed event bus.
func NewNATSBus(cfg domain.EventBusConfig) (*NATSBus, error) {
	url := cfg.NATSUrl
	if url == "" {
		url = nats.DefaultURL
	}

	maxReconnects := cfg.NATSMaxReconnects
	if maxReconnects == 0 {
		maxReconnects = 10
	}
	reconnectWait := time.Duration(cfg.NATSReconnectWait) * time.Second
	if reconnectWait == 0 {
		reconnectWait = 2 * time.Second
	}

	opts := []nats.Option{
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.Timeout(5 * time.Second),
	}
	if cfg.NATSToken != "" {
		opts = append(opts, nats.Token(cfg.NATSToken))
	}

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	return &NATSBus{conn: conn}, nil
}

// Publish sends the payload to a NATS subject. Topic names double as
// subjects; they already carry the sentinel prefix.
func (b *NATSBus) Publish(ctx context.Context, topic string, payload []byte) error {
	return b.conn.Publish(topic, payload)
}

// Subscribe registers a handler for a NATS subject.
func (b *NATSBus) Subscribe(ctx context.Context, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	sub, err := b.conn.Subscribe(topic, func(m *nats.Msg) {
		msg := &domain.Message{
			ID:        uuid.New().String(),
			Topic:     topic,
			Payload:   m.Data,
			Timestamp: time.Now().UnixNano(),
		}
		// NATS core is at-most-once; handler errors are not retried.
		_ = handler(context.Background(), msg)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}

	return &natsSubscription{topic: topic, sub: sub}, nil
}

// Ping checks NATS connectivity.
func (b *NATSBus) Ping(ctx context.Context) error {
	if !b.conn.IsConnected() {
		return fmt.Errorf("nats connection lost")
	}
	return nil
}

// Close drains and closes the NATS connection.
func (b *NATSBus) Close() error {
	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
		return err
	}
	return nil
}

type natsSubscription struct {
	topic string
	sub   *nats.Subscription
}

func (s *natsSubscription) Unsubscribe() error {
	return s.sub.Unsubscribe()
}

func (s *natsSubscription) Topic() string {
	return s.topic
}
