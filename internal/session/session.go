// Package session feeds one device's snapshot stream through the
// dispatcher into the reconciler and keeps the camera on a follow target.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/livetrack/mapview/internal/dispatcher"
	"github.com/livetrack/mapview/internal/geo"
	"github.com/livetrack/mapview/internal/httpapi"
	"github.com/livetrack/mapview/internal/influx"
	"github.com/livetrack/mapview/internal/reconcile"
	"github.com/livetrack/mapview/internal/subscription"
	"github.com/livetrack/mapview/internal/surface"
	"github.com/livetrack/mapview/internal/viewport"
	"github.com/livetrack/mapview/pkg/core"
)

// ErrStreamEnded is returned by Run when the subscription closes while
// the context is still live.
var ErrStreamEnded = errors.New("snapshot stream ended")

// PointWriter receives one telemetry point per pass.
type PointWriter interface {
	WritePoint(point *influxdb2_write.Point) error
}

// Config holds the per-session settings.
type Config struct {
	DeviceID    string
	SurfaceType string
	BufferSize  int
	Blocking    bool
	// DropStale skips snapshots whose timestamp is not after the last
	// applied one.
	DropStale bool
	// Follow is "none", "device" or "trip".
	Follow   string
	Viewport viewport.Options
}

// Session runs the subscription for one device.
type Session struct {
	cfg    Config
	sub    subscription.Subscriber
	disp   *dispatcher.Dispatcher
	rec    *reconcile.Reconciler
	surf   surface.Surface
	points PointWriter
	log    *slog.Logger
	now    func() time.Time

	// passMu serialises passes and camera moves on the surface.
	passMu sync.Mutex

	mu     sync.Mutex
	status httpapi.Status
	last   time.Time
}

// Option configures a Session.
type Option func(*Session)

// WithPointWriter records a telemetry point after every pass.
func WithPointWriter(w PointWriter) Option {
	return func(s *Session) { s.points = w }
}

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.log = l }
}

// New wires a session. The reconciler must drive surf.
func New(cfg Config, sub subscription.Subscriber, disp *dispatcher.Dispatcher, rec *reconcile.Reconciler, surf surface.Surface, opts ...Option) *Session {
	s := &Session{
		cfg:  cfg,
		sub:  sub,
		disp: disp,
		rec:  rec,
		surf: surf,
		log:  slog.Default(),
		now:  time.Now,
		status: httpapi.Status{
			DeviceID: cfg.DeviceID,
			Surface:  cfg.SurfaceType,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "session", "device", cfg.DeviceID)
	return s
}

// Run subscribes and dispatches results until ctx is cancelled or the
// stream ends. A cancelled context is a clean stop and returns nil.
func (s *Session) Run(ctx context.Context) error {
	opts := []dispatcher.Option{dispatcher.Buffered(s.cfg.BufferSize), dispatcher.Logged()}
	if s.cfg.Blocking {
		opts = append(opts, dispatcher.Blocking())
	}
	s.disp.Register(s.cfg.DeviceID, s.Handle, opts...)

	results, err := s.sub.Subscribe(ctx, s.cfg.DeviceID)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", s.cfg.DeviceID, err)
	}
	s.log.Info("session started", "follow", s.cfg.Follow, "dropStale", s.cfg.DropStale)

	for r := range results {
		err := s.disp.Dispatch(dispatcher.Event{
			DeviceID: s.cfg.DeviceID,
			Snapshot: r.Snapshot,
			Err:      r.Err,
			Received: s.now(),
		})
		switch {
		case errors.Is(err, dispatcher.ErrClosed):
			return nil
		case err != nil:
			s.log.Error("dispatch failed", "error", err)
		}
	}

	if ctx.Err() != nil {
		s.log.Info("session stopped")
		return nil
	}
	return ErrStreamEnded
}

// Handle processes one stream result. Stream errors leave the map
// untouched. Reconciliation errors are returned to the dispatcher.
func (s *Session) Handle(e dispatcher.Event) error {
	if e.Err != nil {
		s.log.Warn("snapshot stream error", "error", e.Err)
		s.setError(e.Err)
		return nil
	}
	if e.Snapshot == nil {
		return nil
	}
	snap := *e.Snapshot

	if s.cfg.DropStale && s.isStale(snap.Timestamp) {
		s.log.Debug("stale snapshot skipped", "timestamp", snap.Timestamp)
		return nil
	}

	s.passMu.Lock()
	defer s.passMu.Unlock()

	start := s.now()
	res, err := s.rec.Apply(core.DisplayFor(snap))
	elapsed := s.now().Sub(start)
	s.record(snap, res, elapsed, err)
	if err != nil {
		return fmt.Errorf("apply snapshot: %w", err)
	}

	s.follow()
	return nil
}

func (s *Session) isStale(ts time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.last.IsZero() && !ts.After(s.last) {
		return true
	}
	s.last = ts
	return false
}

func (s *Session) follow() {
	var target viewport.Target
	switch s.cfg.Follow {
	case "device":
		target = viewport.TargetDevice
	case "trip":
		target = viewport.TargetTrip
	default:
		return
	}
	if err := viewport.Zoom(s.surf, target, s.cfg.Viewport); err != nil && !errors.Is(err, viewport.ErrNoTarget) {
		s.log.Error("follow failed", "target", s.cfg.Follow, "error", err)
	}
}

func (s *Session) record(snap core.Snapshot, res reconcile.Result, elapsed time.Duration, err error) {
	s.mu.Lock()
	s.status.Passes++
	if err != nil {
		s.status.Failures++
		s.status.LastError = err.Error()
	} else {
		s.status.LastApplied = s.now().UTC()
		s.status.LastError = ""
	}
	s.mu.Unlock()

	if s.points == nil {
		return
	}
	stats := influx.PassStats{
		DeviceID:    s.cfg.DeviceID,
		At:          snap.Timestamp,
		Duration:    elapsed,
		Added:       res.Added.Total(),
		Updated:     res.Updated.Total(),
		Removed:     res.Removed.Total(),
		RoutePoints: res.RoutePoints,
		Accuracy:    snap.HorizontalAccuracy,
		OnTrip:      snap.Trip != nil,
		Failed:      err != nil,
	}
	if res.RoutePoints > 0 {
		for _, o := range s.surf.Overlays() {
			if rl, ok := o.(*core.RouteLine); ok {
				stats.RouteMeters = geo.GroundLength(rl.Points)
			}
		}
	}
	if werr := s.points.WritePoint(influx.PassPoint(stats)); werr != nil {
		s.log.Warn("telemetry point not written", "error", werr)
	}
}

func (s *Session) setError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.LastError = err.Error()
}

// Status reports pass counters for the health endpoint.
func (s *Session) Status() httpapi.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Zoom moves the camera to target between passes.
func (s *Session) Zoom(target viewport.Target) error {
	s.passMu.Lock()
	defer s.passMu.Unlock()
	return viewport.Zoom(s.surf, target, s.cfg.Viewport)
}

// Clear removes a component from the surface between passes.
func (s *Session) Clear(c reconcile.Component) (reconcile.Result, error) {
	s.passMu.Lock()
	defer s.passMu.Unlock()
	return s.rec.Remove(c)
}
