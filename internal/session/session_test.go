package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livetrack/mapview/internal/config"
	"github.com/livetrack/mapview/internal/dispatcher"
	"github.com/livetrack/mapview/internal/logging"
	"github.com/livetrack/mapview/internal/reconcile"
	"github.com/livetrack/mapview/internal/subscription"
	"github.com/livetrack/mapview/internal/surface/memory"
	"github.com/livetrack/mapview/internal/viewport"
	"github.com/livetrack/mapview/pkg/core"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeSubscriber struct {
	results chan subscription.Result
	err     error
}

func (f *fakeSubscriber) Subscribe(ctx context.Context, _ string) (<-chan subscription.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make(chan subscription.Result)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case r, ok := <-f.results:
				if !ok {
					return
				}
				select {
				case out <- r:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

type pointLog struct {
	mu     sync.Mutex
	points []string
}

func (p *pointLog) WritePoint(point *influxdb2_write.Point) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.points = append(p.points, influxdb2_write.PointToLineProtocol(point, time.Millisecond))
	return nil
}

type fixture struct {
	sub     *fakeSubscriber
	disp    *dispatcher.Dispatcher
	surface *memory.Surface
	session *Session
	points  *pointLog
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	cfg.Blocking = true
	return newFixtureWith(t, cfg, &pointLog{})
}

func newFixtureWith(t *testing.T, cfg Config, points PointWriter) *fixture {
	t.Helper()
	surf := memory.New(config.SurfaceConfig{Type: "memory", ViewPoolLimit: 4})
	require.NoError(t, surf.Init())

	rec, err := reconcile.New(surf, reconcile.WithLogger(discard))
	require.NoError(t, err)

	disp, err := dispatcher.New(logging.NewDispatcherLogger(discard))
	require.NoError(t, err)

	if cfg.DeviceID == "" {
		cfg.DeviceID = "dev-1"
	}
	if cfg.BufferSize == 0 {
		cfg.BufferSize = 8
	}

	f := &fixture{
		sub:     &fakeSubscriber{results: make(chan subscription.Result, 16)},
		disp:    disp,
		surface: surf,
	}
	if pl, ok := points.(*pointLog); ok {
		f.points = pl
	}
	f.session = New(cfg, f.sub, disp, rec, surf, WithLogger(discard), WithPointWriter(points))
	return f
}

// run feeds results, ends the stream and waits for every pass.
func (f *fixture) run(t *testing.T, results ...subscription.Result) {
	t.Helper()
	for _, r := range results {
		f.sub.results <- r
	}
	close(f.sub.results)

	err := f.session.Run(context.Background())
	assert.ErrorIs(t, err, ErrStreamEnded)
	f.disp.Close()
}

func snap(lat, lon float64, ts int64) *core.Snapshot {
	return &core.Snapshot{
		DeviceID:           "dev-1",
		Coordinate:         core.Coordinate{Lat: lat, Lon: lon},
		Bearing:            core.BearingUnknown,
		HorizontalAccuracy: 10,
		Timestamp:          time.Unix(ts, 0),
	}
}

func withTrip(s *core.Snapshot) *core.Snapshot {
	s.Trip = &core.Trip{ID: "trip-1", Destination: &core.Destination{
		Coordinate:     core.Coordinate{Lat: 0, Lon: 0.04},
		EstimatedRoute: core.Route{{Lat: 0, Lon: 0.01}, {Lat: 0, Lon: 0.02}, {Lat: 0, Lon: 0.03}},
	}}
	return s
}

func kinds(s *memory.Surface) map[core.EntityKind]int {
	out := make(map[core.EntityKind]int)
	for _, e := range append(s.Markers(), s.Overlays()...) {
		out[e.Kind()]++
	}
	return out
}

func devicePosition(t *testing.T, s *memory.Surface) core.Coordinate {
	t.Helper()
	for _, m := range s.Markers() {
		if d, ok := m.(*core.DeviceMarker); ok {
			c, _ := d.Position()
			return c
		}
	}
	t.Fatal("no device marker")
	return core.Coordinate{}
}

func TestRun_AppliesSnapshotsInOrder(t *testing.T) {
	f := newFixture(t, Config{})

	f.run(t,
		subscription.Result{Snapshot: withTrip(snap(0, 0, 1))},
		subscription.Result{Snapshot: snap(0, 0.005, 2)},
	)

	got := kinds(f.surface)
	assert.Equal(t, 1, got[core.KindDevice])
	assert.Equal(t, 1, got[core.KindAccuracyCircle])
	assert.Equal(t, 0, got[core.KindDestination], "trip torn down")
	assert.Equal(t, 0, got[core.KindRouteLine])
	assert.Equal(t, core.Coordinate{Lat: 0, Lon: 0.005}, devicePosition(t, f.surface))

	st := f.session.Status()
	assert.Equal(t, int64(2), st.Passes)
	assert.Zero(t, st.Failures)
	assert.False(t, st.LastApplied.IsZero())
}

func TestRun_StreamErrorLeavesMapUntouched(t *testing.T) {
	f := newFixture(t, Config{})

	f.run(t,
		subscription.Result{Snapshot: snap(1, 1, 1)},
		subscription.Result{Err: subscription.ErrInvalidPayload},
	)

	assert.Equal(t, core.Coordinate{Lat: 1, Lon: 1}, devicePosition(t, f.surface))
	st := f.session.Status()
	assert.Equal(t, int64(1), st.Passes)
	assert.Equal(t, subscription.ErrInvalidPayload.Error(), st.LastError)
}

func TestRun_DropStale(t *testing.T) {
	f := newFixture(t, Config{DropStale: true})

	f.run(t,
		subscription.Result{Snapshot: snap(1, 1, 10)},
		subscription.Result{Snapshot: snap(2, 2, 5)},
		subscription.Result{Snapshot: snap(3, 3, 10)},
	)

	assert.Equal(t, core.Coordinate{Lat: 1, Lon: 1}, devicePosition(t, f.surface))
	assert.Equal(t, int64(1), f.session.Status().Passes)
}

func TestRun_WithoutDropStaleAppliesEverything(t *testing.T) {
	f := newFixture(t, Config{})

	f.run(t,
		subscription.Result{Snapshot: snap(1, 1, 10)},
		subscription.Result{Snapshot: snap(2, 2, 5)},
	)

	assert.Equal(t, core.Coordinate{Lat: 2, Lon: 2}, devicePosition(t, f.surface))
}

func TestRun_FollowDevice(t *testing.T) {
	f := newFixture(t, Config{Follow: "device", Viewport: viewport.Options{Radius: 100}})

	f.run(t, subscription.Result{Snapshot: snap(0, 0, 1)})

	region, ok := f.surface.Region()
	require.True(t, ok)
	assert.Equal(t, viewport.FitDevice(core.Coordinate{}, 100), region.Rect)
}

func TestRun_FollowNoneLeavesCamera(t *testing.T) {
	f := newFixture(t, Config{Follow: "none"})

	f.run(t, subscription.Result{Snapshot: snap(0, 0, 1)})

	_, ok := f.surface.Region()
	assert.False(t, ok)
}

func TestRun_WritesTelemetry(t *testing.T) {
	f := newFixture(t, Config{})

	f.run(t, subscription.Result{Snapshot: withTrip(snap(0, 0, 1))})

	f.points.mu.Lock()
	defer f.points.mu.Unlock()
	require.Len(t, f.points.points, 1)
	line := f.points.points[0]
	assert.True(t, strings.HasPrefix(line, "reconcile_pass,device=dev-1,on_trip=true "), line)
	assert.Contains(t, line, "added=4i")
	assert.Contains(t, line, "route_points=4i")
	assert.NotContains(t, line, "route_meters=0,")
}

func TestRun_CancelIsCleanStop(t *testing.T) {
	f := newFixture(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- f.session.Run(ctx) }()

	f.sub.results <- subscription.Result{Snapshot: snap(0, 0, 1)}
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	f.disp.Close()
}

func TestRun_SubscribeError(t *testing.T) {
	f := newFixture(t, Config{})
	f.sub.err = errors.New("broker down")

	err := f.session.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "subscribe dev-1")
}

type failingSurface struct {
	*memory.Surface
}

func (failingSurface) AddMarker(core.Entity) error { return errors.New("surface gone") }

func TestHandle_ApplyFailure(t *testing.T) {
	surf := failingSurface{Surface: memory.New(config.SurfaceConfig{})}
	rec, err := reconcile.New(surf, reconcile.WithLogger(discard))
	require.NoError(t, err)
	disp, err := dispatcher.New(logging.NewDispatcherLogger(discard))
	require.NoError(t, err)

	s := New(Config{DeviceID: "dev-1"}, &fakeSubscriber{}, disp, rec, surf, WithLogger(discard))

	err = s.Handle(dispatcher.Event{DeviceID: "dev-1", Snapshot: snap(0, 0, 1)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "apply snapshot")

	st := s.Status()
	assert.Equal(t, int64(1), st.Failures)
	assert.Contains(t, st.LastError, "surface gone")
}

func TestZoomAndClear(t *testing.T) {
	f := newFixture(t, Config{})
	f.run(t, subscription.Result{Snapshot: withTrip(snap(0, 0, 1))})

	require.NoError(t, f.session.Zoom(viewport.TargetTrip))
	_, ok := f.surface.Region()
	assert.True(t, ok)

	res, err := f.session.Clear(reconcile.ComponentDeviceWithTrip)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Removed.Total())
	assert.Empty(t, f.surface.Markers())
	assert.Empty(t, f.surface.Overlays())

	assert.ErrorIs(t, f.session.Zoom(viewport.TargetDevice), viewport.ErrNoTarget)
}

// gatedWriter holds the first pass open until release is closed.
type gatedWriter struct {
	once    sync.Once
	release chan struct{}
}

func (g *gatedWriter) WritePoint(*influxdb2_write.Point) error {
	g.once.Do(func() { <-g.release })
	return nil
}

func TestRun_FullQueueKeepsNewestSnapshot(t *testing.T) {
	gate := &gatedWriter{release: make(chan struct{})}
	f := newFixtureWith(t, Config{BufferSize: 1}, gate)

	ended := snap(0, 0.002, 3)
	f.sub.results <- subscription.Result{Snapshot: withTrip(snap(0, 0, 1))}
	f.sub.results <- subscription.Result{Snapshot: withTrip(snap(0, 0.001, 2))}
	f.sub.results <- subscription.Result{Snapshot: ended}
	close(f.sub.results)

	err := f.session.Run(context.Background())
	assert.ErrorIs(t, err, ErrStreamEnded)
	close(gate.release)
	f.disp.Close()

	got := kinds(f.surface)
	assert.Equal(t, 1, got[core.KindDevice])
	assert.Zero(t, got[core.KindDestination], "trip ended in the latest snapshot")
	assert.Zero(t, got[core.KindRouteLine])
	assert.Equal(t, ended.Coordinate, devicePosition(t, f.surface))
}
