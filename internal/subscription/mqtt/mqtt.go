package mqtt

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/livetrack/mapview/internal/config"
	"github.com/livetrack/mapview/internal/subscription"
)

const defaultBuffer = 64

var _ subscription.Subscriber = (*Subscriber)(nil)

// Connect dials the broker described by cfg.
func Connect(cfg config.MQTTConfig) (paho.Client, error) {
	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetCleanSession(true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username).SetPassword(cfg.Password)
	}
	if cfg.ConnectTimeout > 0 {
		opts.SetConnectTimeout(cfg.ConnectTimeout)
	}

	client := paho.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	return client, nil
}

// Subscriber streams snapshots published on a per-device MQTT topic.
type Subscriber struct {
	client paho.Client
	topic  string
	qos    byte
	buffer int
	log    *slog.Logger
}

// New creates a subscriber. cfg.Topic may contain the device placeholder.
func New(client paho.Client, cfg config.MQTTConfig, log *slog.Logger) *Subscriber {
	if log == nil {
		log = slog.Default()
	}
	return &Subscriber{
		client: client,
		topic:  cfg.Topic,
		qos:    cfg.QoS,
		buffer: defaultBuffer,
		log:    log.With("component", "mqtt"),
	}
}

// Subscribe implements subscription.Subscriber.
func (s *Subscriber) Subscribe(ctx context.Context, deviceID string) (<-chan subscription.Result, error) {
	topic := subscription.ExpandTopic(s.topic, deviceID)
	stream := subscription.NewStream(ctx, deviceID, s.buffer)

	token := s.client.Subscribe(topic, s.qos, s.handler(stream))
	token.Wait()
	if err := token.Error(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("mqtt subscribe %s: %w", topic, err)
	}
	s.log.Info("subscribed", "topic", topic, "device", deviceID)

	go func() {
		<-ctx.Done()
		if t := s.client.Unsubscribe(topic); !t.WaitTimeout(5*time.Second) || t.Error() != nil {
			s.log.Warn("unsubscribe failed", "topic", topic, "error", t.Error())
		}
		stream.Close()
	}()

	return stream.C(), nil
}

func (s *Subscriber) handler(stream *subscription.Stream) paho.MessageHandler {
	return func(_ paho.Client, msg paho.Message) {
		stream.Deliver(msg.Payload())
	}
}

// Publish sends one snapshot body to the device topic. Used by feeders.
func Publish(client paho.Client, cfg config.MQTTConfig, deviceID string, body []byte) error {
	topic := subscription.ExpandTopic(cfg.Topic, deviceID)
	token := client.Publish(topic, cfg.QoS, false, body)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish %s: %w", topic, err)
	}
	return nil
}
