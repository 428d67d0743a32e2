package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/livetrack/mapview/pkg/core"
)

// ErrClosed is returned by Dispatch after Close.
var ErrClosed = errors.New("dispatcher closed")

// Event is one subscription result for a device.
type Event struct {
	DeviceID string
	Snapshot *core.Snapshot
	Err      error
	Received time.Time
}

// HandlerFunc processes an event.
type HandlerFunc func(Event) error

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures handler registration.
type Option func(*config)

type config struct {
	bufferSize int
	blocking   bool
	logged     bool
}

// Buffered makes the handler async with a queue of the given size. The
// queue is drained by a single goroutine, so events for one device are
// handled one at a time in arrival order.
func Buffered(size int) Option {
	return func(c *config) {
		c.bufferSize = size
	}
}

// Blocking makes a buffered handler block when the queue is full. Without
// it a full queue evicts its oldest event so the newest one is always kept.
func Blocking() Option {
	return func(c *config) {
		c.blocking = true
	}
}

// Logged adds debug logging to the handler.
func Logged() Option {
	return func(c *config) {
		c.logged = true
	}
}

// Dispatcher routes events to the handler registered for their device.
type Dispatcher struct {
	logger Logger

	// OTEL metrics
	queueSize metric.Int64ObservableGauge
	processed metric.Int64Counter
	failed    metric.Int64Counter
	dropped   metric.Int64Counter

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	buffers  map[string]chan Event
	closed   bool
	wg       sync.WaitGroup
}

// New creates a new Dispatcher with the given logger.
// Uses the global OTel meter for metrics (no-op if not configured).
func New(logger Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		handlers: make(map[string]HandlerFunc),
		buffers:  make(map[string]chan Event),
		logger:   logger,
	}

	m := meter()

	var err error

	d.queueSize, err = m.Int64ObservableGauge(
		"dispatcher.queue.size",
		metric.WithDescription("Current number of snapshots waiting per device"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating queue size gauge: %w", err)
	}

	_, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			d.mu.RLock()
			defer d.mu.RUnlock()
			for device, buf := range d.buffers {
				o.ObserveInt64(d.queueSize, int64(len(buf)),
					metric.WithAttributes(attribute.String("device", device)))
			}
			return nil
		},
		d.queueSize,
	)
	if err != nil {
		return nil, fmt.Errorf("registering queue callback: %w", err)
	}

	d.processed, err = m.Int64Counter(
		"dispatcher.events.processed",
		metric.WithDescription("Total events processed"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating processed counter: %w", err)
	}

	d.failed, err = m.Int64Counter(
		"dispatcher.events.failed",
		metric.WithDescription("Total events whose handler returned an error"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating failed counter: %w", err)
	}

	d.dropped, err = m.Int64Counter(
		"dispatcher.events.dropped",
		metric.WithDescription("Total events evicted from a full queue"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}

	return d, nil
}

// Register adds a handler for the given device with optional configuration.
// Registering a device again replaces its handler; events already queued
// for the old one are still handled before its goroutine exits.
func (d *Dispatcher) Register(deviceID string, h HandlerFunc, opts ...Option) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	handler := h

	if cfg.logged {
		handler = d.withLogging(deviceID, handler)
	}

	var buffer chan Event
	if cfg.bufferSize > 0 {
		handler, buffer = d.withBuffer(deviceID, cfg.bufferSize, cfg.blocking, handler)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if old, ok := d.buffers[deviceID]; ok {
		close(old)
		delete(d.buffers, deviceID)
	}
	if buffer != nil {
		if d.closed {
			close(buffer)
		} else {
			d.buffers[deviceID] = buffer
		}
	}
	d.handlers[deviceID] = handler
}

// Dispatch routes an event to the handler registered for its device.
func (d *Dispatcher) Dispatch(e Event) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	h, ok := d.handlers[e.DeviceID]
	if !ok {
		return fmt.Errorf("no handler for device: %s", e.DeviceID)
	}
	return h(e)
}

// HasHandler returns true if a handler is registered for the device.
func (d *Dispatcher) HasHandler(deviceID string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.handlers[deviceID]
	return ok
}

// Close stops accepting events and waits until every queued event has
// been handled.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, buf := range d.buffers {
		close(buf)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

// withBuffer starts the drain goroutine for a new queue. The caller owns
// publishing the queue in d.buffers.
func (d *Dispatcher) withBuffer(deviceID string, size int, blocking bool, h HandlerFunc) (HandlerFunc, chan Event) {
	buffer := make(chan Event, size)

	attrs := metric.WithAttributes(attribute.String("device", deviceID))

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for e := range buffer {
			if err := h(e); err != nil {
				d.failed.Add(context.Background(), 1, attrs)
			}
			d.processed.Add(context.Background(), 1, attrs)
		}
	}()

	if blocking {
		return func(e Event) error {
			buffer <- e
			return nil
		}, buffer
	}

	return func(e Event) error {
		for {
			select {
			case buffer <- e:
				return nil
			default:
			}
			select {
			case old := <-buffer:
				d.dropped.Add(context.Background(), 1, attrs)
				d.logger.Debug("evicted queued event", "device", deviceID, "received", old.Received)
			default:
			}
		}
	}, buffer
}

func (d *Dispatcher) withLogging(deviceID string, h HandlerFunc) HandlerFunc {
	return func(e Event) error {
		start := time.Now()
		d.logger.Debug("handling event", "device", deviceID, "error", e.Err != nil)

		err := h(e)

		if err != nil {
			d.logger.Error("event failed", "device", deviceID, "duration", time.Since(start), "error", err)
		} else {
			d.logger.Debug("event complete", "device", deviceID, "duration", time.Since(start))
		}

		return err
	}
}
