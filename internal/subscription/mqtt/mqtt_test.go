package mqtt

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livetrack/mapview/internal/config"
	"github.com/livetrack/mapview/internal/subscription"
)

type fakeToken struct {
	err error
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *fakeToken) Error() error { return t.err }

// fakeClient implements the subset of paho.Client the subscriber uses.
type fakeClient struct {
	paho.Client

	mu           sync.Mutex
	subscribeErr error
	handlers     map[string]paho.MessageHandler
	unsubscribed []string
	published    map[string][]byte
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		handlers:  make(map[string]paho.MessageHandler),
		published: make(map[string][]byte),
	}
}

func (c *fakeClient) Subscribe(topic string, _ byte, h paho.MessageHandler) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subscribeErr != nil {
		return &fakeToken{err: c.subscribeErr}
	}
	c.handlers[topic] = h
	return &fakeToken{}
}

func (c *fakeClient) Unsubscribe(topics ...string) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unsubscribed = append(c.unsubscribed, topics...)
	return &fakeToken{}
}

func (c *fakeClient) Publish(topic string, _ byte, _ bool, payload interface{}) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published[topic] = payload.([]byte)
	return &fakeToken{}
}

func (c *fakeClient) deliver(topic string, payload []byte) {
	c.mu.Lock()
	h := c.handlers[topic]
	c.mu.Unlock()
	h(c, &fakeMQTTMessage{topic: topic, payload: payload})
}

func (c *fakeClient) unsubscribedTopics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.unsubscribed...)
}

type fakeMQTTMessage struct {
	topic   string
	payload []byte
}

func (f *fakeMQTTMessage) Duplicate() bool   { return false }
func (f *fakeMQTTMessage) Qos() byte         { return 0 }
func (f *fakeMQTTMessage) Retained() bool    { return false }
func (f *fakeMQTTMessage) Topic() string     { return f.topic }
func (f *fakeMQTTMessage) MessageID() uint16 { return 0 }
func (f *fakeMQTTMessage) Payload() []byte   { return f.payload }
func (f *fakeMQTTMessage) Ack()              {}

var testCfg = config.MQTTConfig{Topic: "devices/{device}/snapshot", QoS: 1}

func TestSubscribe_DeliversSnapshots(t *testing.T) {
	client := newFakeClient()
	sub := New(client, testCfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	results, err := sub.Subscribe(ctx, "dev-1")
	require.NoError(t, err)

	client.deliver("devices/dev-1/snapshot",
		[]byte(`{"deviceId":"dev-1","latitude":10,"longitude":20,"accuracy":8,"timestamp":1700000000000}`))

	select {
	case r := <-results:
		require.NoError(t, r.Err)
		require.NotNil(t, r.Snapshot)
		assert.Equal(t, 10.0, r.Snapshot.Coordinate.Lat)
		assert.Equal(t, 8.0, r.Snapshot.HorizontalAccuracy)
	case <-time.After(time.Second):
		t.Fatal("no result delivered")
	}
}

func TestSubscribe_InvalidPayloadIsStreamedAsError(t *testing.T) {
	client := newFakeClient()
	sub := New(client, testCfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	results, err := sub.Subscribe(ctx, "dev-1")
	require.NoError(t, err)

	client.deliver("devices/dev-1/snapshot", []byte("invalid"))

	r := <-results
	assert.Nil(t, r.Snapshot)
	assert.ErrorIs(t, r.Err, subscription.ErrInvalidPayload)
}

func TestSubscribe_CancelUnsubscribesAndCloses(t *testing.T) {
	client := newFakeClient()
	sub := New(client, testCfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	results, err := sub.Subscribe(ctx, "dev-1")
	require.NoError(t, err)

	cancel()

	select {
	case _, ok := <-results:
		assert.False(t, ok, "channel should be closed")
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
	assert.Equal(t, []string{"devices/dev-1/snapshot"}, client.unsubscribedTopics())

	// late broker callbacks are dropped
	client.deliver("devices/dev-1/snapshot", []byte("invalid"))
}

func TestSubscribe_Error(t *testing.T) {
	client := newFakeClient()
	client.subscribeErr = errors.New("not authorized")
	sub := New(client, testCfg, nil)

	_, err := sub.Subscribe(context.Background(), "dev-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "devices/dev-1/snapshot")
}

func TestPublish(t *testing.T) {
	client := newFakeClient()
	require.NoError(t, Publish(client, testCfg, "dev-9", []byte("{}")))
	assert.Equal(t, []byte("{}"), client.published["devices/dev-9/snapshot"])
}
