// Package bus provides event bus implementations for Sentinel.
package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/sentinel/internal/domain"
)

// ChannelBus is an in-process event bus backed by Go channels.
// Used as the community tier bus; a single process, no broker.
type ChannelBus struct {
	mu          sync.RWMutex
	subscribers map[string][]*channelSubscriber
	bufferSize  int
	closed      bool
	wg          sync.WaitGroup
}

type channelSubscriber struct {
	id      string
	topic   string
	ch      chan *domain.Message
	handler domain.MessageHandler
	done    chan struct{}
}

// NewChannelBus creates a new channel-based event bus.
func NewChannelBus(bufferSize int) *ChannelBus {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	return &ChannelBus{
		subscribers: make(map[string][]*channelSubscriber),
		bufferSize:  bufferSize,
	}
}

// Publish delivers the payload to every subscriber of the topic. Delivery
// is asynchronous; a slow subscriber drops messages rather than blocking
// the publisher.
func (b *ChannelBus) Publish(ctx context.Context, topic string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("bus is closed")
	}

	msg := &domain.Message{
		ID:        uuid.New().String(),
		Topic:     topic,
		Payload:   payload,
		Timestamp: time.Now().UnixNano(),
	}

	for _, sub := range b.subscribers[topic] {
		select {
		case sub.ch <- msg:
		default:
			slog.Warn("dropping message, subscriber buffer full",
				"topic", topic,
				"subscriber", sub.id,
			)
		}
	}

	return nil
}

// Subscribe registers a handler for a topic. Each subscriber gets its own
// buffered channel and goroutine.
func (b *ChannelBus) Subscribe(ctx context.Context, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("bus is closed")
	}

	sub := &channelSubscriber{
		id:      uuid.New().String(),
		topic:   topic,
		ch:      make(chan *domain.Message, b.bufferSize),
		handler: handler,
		done:    make(chan struct{}),
	}
	b.subscribers[topic] = append(b.subscribers[topic], sub)

	b.wg.Add(1)
	go b.deliver(sub)

	return &channelSubscription{bus: b, sub: sub}, nil
}

func (b *ChannelBus) deliver(sub *channelSubscriber) {
	defer b.wg.Done()
	for {
		select {
		case msg, ok := <-sub.ch:
			if !ok {
				return
			}
			if err := sub.handler(context.Background(), msg); err != nil {
				slog.Warn("message handler failed",
					"topic", sub.topic,
					"message_id", msg.ID,
					"error", err,
				)
			}
		case <-sub.done:
			return
		}
	}
}

func (b *ChannelBus) removeSubscriber(sub *channelSubscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[sub.topic]
	for i, s := range subs {
		if s.id == sub.id {
			b.subscribers[sub.topic] = append(subs[:i], subs[i+1:]...)
			close(sub.done)
			return
		}
	}
}

// Ping checks bus health.
func (b *ChannelBus) Ping(ctx context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return fmt.Errorf("bus is closed")
	}
	return nil
}

// Close shuts down the bus and all subscriber goroutines.
func (b *ChannelBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	for _, subs := range b.subscribers {
		for _, sub := range subs {
			close(sub.done)
		}
	}
	b.subscribers = make(map[string][]*channelSubscriber)
	b.mu.Unlock()

	b.wg.Wait()
	return nil
}

type channelSubscription struct {
	bus  *ChannelBus
	sub  *channelSubscriber
	once sync.Once
}

func (s *channelSubscription) Unsubscribe() error {
	s.once.Do(func() {
		s.bus.removeSubscriber(s.sub)
	})
	return nil
}

func (s *channelSubscription) Topic() string {
	return s.sub.topic
}
