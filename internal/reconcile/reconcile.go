// Package reconcile converges a map surface to the latest device snapshot
// with the fewest add, update and remove operations.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/livetrack/mapview/internal/route"
	"github.com/livetrack/mapview/internal/surface"
	"github.com/livetrack/mapview/pkg/core"
)

// Counts holds a number of mutations per entity kind.
type Counts map[core.EntityKind]int

// Total sums the counts over every kind.
func (c Counts) Total() int {
	var n int
	for _, v := range c {
		n += v
	}
	return n
}

// Result summarises the mutations of one pass.
type Result struct {
	Added   Counts
	Updated Counts
	Removed Counts
	// RoutePoints is the number of points in the route line drawn by the
	// pass, zero when none was drawn.
	RoutePoints int
}

func newResult() Result {
	return Result{Added: Counts{}, Updated: Counts{}, Removed: Counts{}}
}

// Component selects what Remove takes off the surface.
type Component int

const (
	// ComponentDevice is the device marker and its accuracy circle.
	ComponentDevice Component = iota
	// ComponentDeviceWithTrip adds the destination marker and route line.
	ComponentDeviceWithTrip
	// ComponentEverything is every marker and overlay on the surface.
	ComponentEverything
)

// ParseComponent maps "device", "trip" and "everything" to components.
func ParseComponent(s string) (Component, bool) {
	switch s {
	case "device":
		return ComponentDevice, true
	case "trip":
		return ComponentDeviceWithTrip, true
	case "everything":
		return ComponentEverything, true
	default:
		return 0, false
	}
}

func (c Component) kinds() []core.EntityKind {
	switch c {
	case ComponentDevice:
		return []core.EntityKind{core.KindDevice, core.KindAccuracyCircle}
	case ComponentDeviceWithTrip:
		return []core.EntityKind{core.KindDevice, core.KindAccuracyCircle, core.KindDestination, core.KindRouteLine}
	default:
		return nil
	}
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithLogger sets the logger for mutation failures and debug output.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reconciler) {
		r.logger = l
	}
}

// Reconciler drives one surface. It keeps no state between passes; what is
// on the surface is rediscovered by querying it.
type Reconciler struct {
	surface surface.Surface
	logger  *slog.Logger
	metrics *metrics
}

// New creates a Reconciler for s.
// Uses the global OTel meter for metrics (no-op if not configured).
func New(s surface.Surface, opts ...Option) (*Reconciler, error) {
	m, err := newMetrics()
	if err != nil {
		return nil, err
	}
	r := &Reconciler{surface: s, logger: slog.Default(), metrics: m}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// index groups what is on the surface by kind, preserving surface order.
func index(s surface.Surface) map[core.EntityKind][]core.Entity {
	idx := make(map[core.EntityKind][]core.Entity)
	for _, e := range s.Markers() {
		idx[e.Kind()] = append(idx[e.Kind()], e)
	}
	for _, e := range s.Overlays() {
		idx[e.Kind()] = append(idx[e.Kind()], e)
	}
	return idx
}

// pass carries the bookkeeping of a single Apply or Remove call.
type pass struct {
	s   surface.Surface
	res Result
}

func (p *pass) addMarker(e core.Entity) error {
	if err := p.s.AddMarker(e); err != nil {
		return fmt.Errorf("add %s marker: %w", e.Kind(), err)
	}
	p.res.Added[e.Kind()]++
	return nil
}

func (p *pass) addOverlay(e core.Entity) error {
	if err := p.s.AddOverlay(e); err != nil {
		return fmt.Errorf("add %s overlay: %w", e.Kind(), err)
	}
	p.res.Added[e.Kind()]++
	return nil
}

func (p *pass) remove(e core.Entity) error {
	var err error
	if e.Kind().IsOverlay() {
		err = p.s.RemoveOverlay(e)
	} else {
		err = p.s.RemoveMarker(e)
	}
	if err != nil {
		return fmt.Errorf("remove %s: %w", e.Kind(), err)
	}
	p.res.Removed[e.Kind()]++
	return nil
}

func (p *pass) removeAll(list []core.Entity) error {
	for _, e := range list {
		if err := p.remove(e); err != nil {
			return err
		}
	}
	return nil
}

// Apply converges the surface to display. The pass stops at the first
// surface error, which is returned wrapped together with the mutations
// issued so far.
func (r *Reconciler) Apply(display core.Display) (Result, error) {
	p := &pass{s: r.surface, res: newResult()}
	err := r.apply(p, display)
	r.metrics.record(context.Background(), p.res, err)
	if err != nil {
		r.logger.Error("reconciliation stopped", "device", display.Current().DeviceID, "error", err)
		return p.res, err
	}
	r.logger.Debug("reconciled",
		"device", display.Current().DeviceID,
		"added", p.res.Added.Total(),
		"updated", p.res.Updated.Total(),
		"removed", p.res.Removed.Total(),
	)
	return p.res, nil
}

func (r *Reconciler) apply(p *pass, display core.Display) error {
	snap := display.Current()
	idx := index(p.s)

	if err := r.applyDevice(p, snap, idx[core.KindDevice]); err != nil {
		return err
	}

	// The route line comes off before the circle goes on so that re-adding
	// it afterwards keeps it drawn above the circle.
	if err := p.removeAll(idx[core.KindRouteLine]); err != nil {
		return err
	}
	if err := p.removeAll(idx[core.KindAccuracyCircle]); err != nil {
		return err
	}
	if snap.HasAccuracy() {
		if err := p.addOverlay(core.NewAccuracyCircle(snap.Coordinate, snap.HorizontalAccuracy)); err != nil {
			return err
		}
	}

	var dest *core.Destination
	var tripID string
	if d, ok := display.(core.DeviceWithTrip); ok {
		dest = d.Trip.Destination
		tripID = d.Trip.ID
	}

	if err := r.applyDestination(p, tripID, dest, idx[core.KindDestination]); err != nil {
		return err
	}

	if dest != nil && dest.EstimatedRoute != nil {
		points := append(route.Stitch(snap.Coordinate, dest.EstimatedRoute), dest.Coordinate)
		if err := p.addOverlay(core.NewRouteLine(points)); err != nil {
			return err
		}
		p.res.RoutePoints = len(points)
	}
	return nil
}

func (r *Reconciler) applyDevice(p *pass, snap core.Snapshot, existing []core.Entity) error {
	var kept *core.DeviceMarker
	var stale []core.Entity
	for _, e := range existing {
		if m, ok := e.(*core.DeviceMarker); ok && kept == nil {
			kept = m
			continue
		}
		stale = append(stale, e)
	}
	if err := p.removeAll(stale); err != nil {
		return err
	}
	if kept != nil {
		kept.Move(snap.Coordinate, snap.Bearing)
		p.res.Updated[core.KindDevice]++
		return nil
	}
	return p.addMarker(core.NewDeviceMarker(snap.Coordinate, snap.Bearing))
}

func (r *Reconciler) applyDestination(p *pass, tripID string, dest *core.Destination, existing []core.Entity) error {
	var kept bool
	var stale []core.Entity
	for _, e := range existing {
		m, ok := e.(*core.DestinationMarker)
		if ok && !kept && dest != nil && m.TripID == tripID && m.Coordinate == dest.Coordinate {
			kept = true
			continue
		}
		stale = append(stale, e)
	}
	if err := p.removeAll(stale); err != nil {
		return err
	}
	if dest == nil || kept {
		return nil
	}
	return p.addMarker(core.NewDestinationMarker(dest.Coordinate, tripID))
}

// Remove takes a component off the surface. Unlike Apply it attempts every
// removal and joins the errors.
func (r *Reconciler) Remove(c Component) (Result, error) {
	p := &pass{s: r.surface, res: newResult()}

	var targets []core.Entity
	if c == ComponentEverything {
		targets = append(p.s.Markers(), p.s.Overlays()...)
	} else {
		idx := index(p.s)
		for _, k := range c.kinds() {
			targets = append(targets, idx[k]...)
		}
	}

	var errs []error
	for _, e := range targets {
		if err := p.remove(e); err != nil {
			errs = append(errs, err)
		}
	}
	err := errors.Join(errs...)
	r.metrics.record(context.Background(), p.res, err)
	return p.res, err
}
