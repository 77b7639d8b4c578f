package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// HandlerFunc processes one delivery. A returned error is logged and
// the delivery is dropped; the tracker's idempotent state converges
// through later lifecycle events.
type HandlerFunc func(ctx context.Context, delivery amqp091.Delivery) error

const (
	prefetchCount  = 10
	handlerTimeout = 10 * time.Second
	maxDialDelay   = 60 * time.Second
)

// DialOptions configures the retrying AMQP dial.
type DialOptions struct {
	URL           string
	RetryAttempts int
	Delay         time.Duration
}

// DialWithRetry connects to RabbitMQ with exponential backoff, honoring
// context cancellation for graceful shutdown.
func DialWithRetry(ctx context.Context, opts DialOptions) (*amqp091.Connection, error) {
	var lastErr error

	for i := 1; i <= opts.RetryAttempts; i++ {
		conn, err := amqp091.Dial(opts.URL)
		if err == nil {
			if i > 1 {
				slog.Info("amqp connected", "attempt", i)
			}
			return conn, nil
		}
		lastErr = err

		sleep := opts.Delay * time.Duration(math.Pow(2, float64(i-1)))
		if sleep > maxDialDelay {
			sleep = maxDialDelay
		}

		slog.Warn("amqp dial failed",
			"attempt", i,
			"sleep", sleep,
			"error", err,
		)

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("dial cancelled: %w", ctx.Err())
		case <-timer.C:
		}
	}

	return nil, fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w",
		opts.RetryAttempts, lastErr)
}

// Subscriber consumes conversation lifecycle events from a durable
// queue bound to a topic exchange. The queue is expected to have a
// single active consumer; within the queue deliveries are ordered.
type Subscriber struct {
	conn     *amqp091.Connection
	ch       *amqp091.Channel
	exchange string
	handlers map[string]HandlerFunc
	done     chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

// NewSubscriber opens a channel on the given connection and declares
// the topic exchange.
func NewSubscriber(conn *amqp091.Connection, exchange string) (*Subscriber, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &Subscriber{
		conn:     conn,
		ch:       ch,
		exchange: exchange,
		handlers: make(map[string]HandlerFunc),
		done:     make(chan struct{}),
	}, nil
}

// RegisterHandler binds a handler to a routing key. Must be called
// before Start.
func (s *Subscriber) RegisterHandler(routingKey string, handler HandlerFunc) {
	s.handlers[routingKey] = handler
}

// Start declares the durable queue, binds all registered routing keys
// and begins consuming. It is safe to call once.
func (s *Subscriber) Start(queueName string) error {
	var startErr error
	s.once.Do(func() {
		if err := s.ch.Qos(prefetchCount, 0, false); err != nil {
			startErr = fmt.Errorf("set qos: %w", err)
			return
		}
		q, err := s.ch.QueueDeclare(queueName, true, false, false, false, nil)
		if err != nil {
			startErr = fmt.Errorf("declare queue %s: %w", queueName, err)
			return
		}
		for key := range s.handlers {
			if err := s.ch.QueueBind(q.Name, key, s.exchange, false, nil); err != nil {
				startErr = fmt.Errorf("bind %s to %s: %w", q.Name, key, err)
				return
			}
		}

		deliveries, err := s.ch.Consume(q.Name, "", false, false, false, false, nil)
		if err != nil {
			startErr = fmt.Errorf("consume %s: %w", q.Name, err)
			return
		}

		s.wg.Add(1)
		go s.consumeLoop(deliveries)
		slog.Info("event subscriber started", "queue", queueName, "exchange", s.exchange)
	})
	return startErr
}

// consumeLoop processes deliveries sequentially, preserving the
// per-queue ordering the tracker relies on.
func (s *Subscriber) consumeLoop(deliveries <-chan amqp091.Delivery) {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case delivery, ok := <-deliveries:
			if !ok {
				return
			}
			s.dispatch(delivery)
		}
	}
}

func (s *Subscriber) dispatch(delivery amqp091.Delivery) {
	handler, ok := s.handlers[delivery.RoutingKey]
	if !ok {
		slog.Warn("no handler for routing key", "routing_key", delivery.RoutingKey)
		_ = delivery.Nack(false, false)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	err := handler(ctx, delivery)
	cancel()

	if err != nil {
		slog.Error("event handler failed",
			"routing_key", delivery.RoutingKey,
			"message_id", delivery.MessageId,
			"error", err,
		)
		_ = delivery.Nack(false, false)
		return
	}
	_ = delivery.Ack(false)
}

// Close stops consumption and closes the channel. The connection is
// owned by the caller.
func (s *Subscriber) Close() error {
	close(s.done)
	s.wg.Wait()
	if err := s.ch.Close(); err != nil && !errors.Is(err, amqp091.ErrClosed) {
		return err
	}
	return nil
}
