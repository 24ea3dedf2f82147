package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"higgs-distributed/internal/domain"
)

var ErrConnectionClosed = errors.New("connection closed")

// PublishFilter decides whether a published message reaches its channel.
// Returning false drops it, simulating loss in transit.
type PublishFilter func(channel string, body []byte) bool

type memoryMessage struct {
	body        []byte
	redelivered bool
}

// MemoryBroker is an in-process at-least-once broker. Each message is handed
// to exactly one TryReceive call and stays owned by that connection until it
// is acked, nacked or the connection closes.
type MemoryBroker struct {
	mu      sync.Mutex
	queues  map[string][]memoryMessage
	nextTag uint64
	filter  PublishFilter
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{queues: make(map[string][]memoryMessage)}
}

// SetPublishFilter installs f for all subsequent publishes.
func (b *MemoryBroker) SetPublishFilter(f PublishFilter) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.filter = f
}

// Len returns the number of ready messages in a channel.
func (b *MemoryBroker) Len(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queues[channel])
}

// Connect opens a new connection to the broker.
func (b *MemoryBroker) Connect() *MemoryConnection {
	return &MemoryConnection{broker: b, unacked: make(map[uint64]*domain.Delivery)}
}

// Dialer adapts the broker to domain.Dialer.
func (b *MemoryBroker) Dialer() domain.Dialer {
	return func(context.Context) (domain.Connection, error) {
		return b.Connect(), nil
	}
}

type MemoryConnection struct {
	broker *MemoryBroker

	mu      sync.Mutex
	closed  bool
	unacked map[uint64]*domain.Delivery
}

func (c *MemoryConnection) checkOpen() error {
	if c.closed {
		return ErrConnectionClosed
	}
	return nil
}

func (c *MemoryConnection) Declare(_ context.Context, channel string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return err
	}

	b := c.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.queues[channel]; !ok {
		b.queues[channel] = nil
	}
	return nil
}

func (c *MemoryConnection) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return err
	}

	body := append([]byte(nil), payload...)
	b := c.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.filter != nil && !b.filter(channel, body) {
		return nil
	}
	b.queues[channel] = append(b.queues[channel], memoryMessage{body: body})
	return nil
}

func (c *MemoryConnection) TryReceive(ctx context.Context, channel string) (*domain.Delivery, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return nil, err
	}

	b := c.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.queues[channel]
	if len(q) == 0 {
		return nil, nil
	}
	msg := q[0]
	b.queues[channel] = q[1:]
	b.nextTag++

	d := &domain.Delivery{
		Channel:     channel,
		Body:        msg.body,
		Tag:         b.nextTag,
		Redelivered: msg.redelivered,
	}
	c.unacked[d.Tag] = d
	return d, nil
}

func (c *MemoryConnection) take(d *domain.Delivery) (*domain.Delivery, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	owned, ok := c.unacked[d.Tag]
	if !ok {
		return nil, fmt.Errorf("%w: tag %d", domain.ErrUnknownDelivery, d.Tag)
	}
	delete(c.unacked, d.Tag)
	return owned, nil
}

func (c *MemoryConnection) Ack(d *domain.Delivery) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.take(d)
	return err
}

func (c *MemoryConnection) Nack(d *domain.Delivery, requeue bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	owned, err := c.take(d)
	if err != nil || !requeue {
		return err
	}
	c.broker.requeue(owned)
	return nil
}

// Close returns every unacked delivery to the head of its channel.
func (c *MemoryConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	for tag, d := range c.unacked {
		c.broker.requeue(d)
		delete(c.unacked, tag)
	}
	return nil
}

func (b *MemoryBroker) requeue(d *domain.Delivery) {
	b.mu.Lock()
	defer b.mu.Unlock()
	msg := memoryMessage{body: d.Body, redelivered: true}
	b.queues[d.Channel] = append([]memoryMessage{msg}, b.queues[d.Channel]...)
}
