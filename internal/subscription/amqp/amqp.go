package amqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	amqp091 "github.com/rabbitmq/amqp091-go"

	"github.com/livetrack/mapview/internal/config"
	"github.com/livetrack/mapview/internal/subscription"
)

const (
	exchangeKind  = "topic"
	defaultBuffer = 64
)

// ErrDeliveriesClosed is streamed when the broker cancels the consumer.
var ErrDeliveriesClosed = errors.New("amqp deliveries closed")

// Channel is the part of *amqp091.Channel used by the subscriber.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp091.Table) (amqp091.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp091.Table) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp091.Table) (<-chan amqp091.Delivery, error)
	Cancel(consumer string, noWait bool) error
}

var (
	_ Channel                 = (*amqp091.Channel)(nil)
	_ subscription.Subscriber = (*Subscriber)(nil)
)

// Dial opens a connection and channel to the broker at cfg.URL.
func Dial(cfg config.AMQPConfig) (*amqp091.Connection, *amqp091.Channel, error) {
	conn, err := amqp091.Dial(cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("rabbitmq connect: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("rabbitmq channel: %w", err)
	}
	return conn, ch, nil
}

// Subscriber consumes snapshots routed by device id on a topic exchange.
type Subscriber struct {
	ch     Channel
	cfg    config.AMQPConfig
	buffer int
	log    *slog.Logger
}

// New creates a subscriber on an open channel.
func New(ch Channel, cfg config.AMQPConfig, log *slog.Logger) *Subscriber {
	if log == nil {
		log = slog.Default()
	}
	return &Subscriber{ch: ch, cfg: cfg, buffer: defaultBuffer, log: log.With("component", "amqp")}
}

// Subscribe implements subscription.Subscriber.
func (s *Subscriber) Subscribe(ctx context.Context, deviceID string) (<-chan subscription.Result, error) {
	if err := s.ch.ExchangeDeclare(s.cfg.Exchange, exchangeKind, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	// An empty queue name asks the broker for an exclusive, server-named queue.
	name := subscription.ExpandTopic(s.cfg.Queue, deviceID)
	exclusive := name == ""
	q, err := s.ch.QueueDeclare(name, !exclusive, exclusive, exclusive, false, nil)
	if err != nil {
		return nil, fmt.Errorf("declare queue: %w", err)
	}

	key := subscription.ExpandTopic(s.cfg.RoutingKey, deviceID)
	if err := s.ch.QueueBind(q.Name, key, s.cfg.Exchange, false, nil); err != nil {
		return nil, fmt.Errorf("bind queue: %w", err)
	}

	consumer := "mapview-" + deviceID
	deliveries, err := s.ch.Consume(q.Name, consumer, true, exclusive, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume: %w", err)
	}
	s.log.Info("consuming", "queue", q.Name, "routingKey", key, "device", deviceID)

	stream := subscription.NewStream(ctx, deviceID, s.buffer)
	go s.consume(ctx, consumer, deliveries, stream)
	return stream.C(), nil
}

func (s *Subscriber) consume(ctx context.Context, consumer string, deliveries <-chan amqp091.Delivery, stream *subscription.Stream) {
	defer stream.Close()
	for {
		select {
		case <-ctx.Done():
			if err := s.ch.Cancel(consumer, false); err != nil {
				s.log.Warn("cancel consumer failed", "consumer", consumer, "error", err)
			}
			return
		case d, ok := <-deliveries:
			if !ok {
				stream.Send(subscription.Result{Err: ErrDeliveriesClosed})
				return
			}
			stream.Deliver(d.Body)
		}
	}
}
