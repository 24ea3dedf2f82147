package infrastructure

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"higgs-distributed/internal/domain"
)

const contentTypeMsgpack = "application/msgpack"

// AMQPConnection implements domain.Connection over a single AMQP channel.
// Messages are consumed with basic.get and manual acknowledgement.
type AMQPConnection struct {
	conn *amqp.Connection
	ch   *amqp.Channel

	mu       sync.Mutex
	declared map[string]bool
}

// DialAMQP connects to url, retrying up to retries times with a fixed
// interval between attempts.
func DialAMQP(ctx context.Context, url string, retries int, interval time.Duration, logger *zap.Logger) (*AMQPConnection, error) {
	conn, err := retryConnect(ctx, retries, interval, logger, func() (*amqp.Connection, error) {
		return amqp.Dial(url)
	})
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: open channel: %w", domain.ErrConnectFailed, err)
	}

	return &AMQPConnection{
		conn:     conn,
		ch:       ch,
		declared: make(map[string]bool),
	}, nil
}

// AMQPDialer adapts DialAMQP to domain.Dialer.
func AMQPDialer(cfg domain.BrokerConfig, logger *zap.Logger) domain.Dialer {
	return func(ctx context.Context) (domain.Connection, error) {
		return DialAMQP(ctx, cfg.URL, cfg.ConnectRetries, cfg.ConnectInterval, logger)
	}
}

func retryConnect[T any](ctx context.Context, retries int, interval time.Duration, logger *zap.Logger, dial func() (T, error)) (T, error) {
	var zero T
	if retries < 1 {
		retries = 1
	}

	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		conn, err := dial()
		if err == nil {
			return conn, nil
		}
		lastErr = err
		logger.Warn("Broker connection attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("retries", retries),
			zap.Error(err))

		if attempt == retries {
			break
		}
		select {
		case <-ctx.Done():
			return zero, fmt.Errorf("%w: %w", domain.ErrConnectFailed, ctx.Err())
		case <-time.After(interval):
		}
	}
	return zero, fmt.Errorf("%w after %d attempts: %w", domain.ErrConnectFailed, retries, lastErr)
}

func (c *AMQPConnection) Declare(_ context.Context, channel string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.declared[channel] {
		return nil
	}

	// durable, not auto-deleted, not exclusive
	if _, err := c.ch.QueueDeclare(channel, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", channel, err)
	}
	c.declared[channel] = true
	return nil
}

func (c *AMQPConnection) Publish(ctx context.Context, channel string, payload []byte) error {
	return c.ch.PublishWithContext(ctx, "", channel, false, false, amqp.Publishing{
		ContentType:  contentTypeMsgpack,
		DeliveryMode: amqp.Persistent,
		Body:         payload,
	})
}

func (c *AMQPConnection) TryReceive(_ context.Context, channel string) (*domain.Delivery, error) {
	msg, ok, err := c.ch.Get(channel, false)
	if err != nil {
		return nil, fmt.Errorf("get from %s: %w", channel, err)
	}
	if !ok {
		return nil, nil
	}
	return &domain.Delivery{
		Channel:     channel,
		Body:        msg.Body,
		Tag:         msg.DeliveryTag,
		Redelivered: msg.Redelivered,
	}, nil
}

func (c *AMQPConnection) Ack(d *domain.Delivery) error {
	return c.ch.Ack(d.Tag, false)
}

func (c *AMQPConnection) Nack(d *domain.Delivery, requeue bool) error {
	return c.ch.Nack(d.Tag, false, requeue)
}

// Close closes the channel and then the connection. The broker requeues any
// delivery left unacknowledged.
func (c *AMQPConnection) Close() error {
	errs := new(multierror.Error)
	if err := c.ch.Close(); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("close channel: %w", err))
	}
	if err := c.conn.Close(); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("close connection: %w", err))
	}
	return errs.ErrorOrNil()
}
