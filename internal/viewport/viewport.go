// Package viewport fits the visible map region to the device and its route.
package viewport

import (
	"errors"
	"fmt"

	"github.com/livetrack/mapview/internal/geo"
	"github.com/livetrack/mapview/internal/surface"
	"github.com/livetrack/mapview/pkg/core"
)

// ErrNoTarget is returned by Zoom when the surface holds nothing to zoom on.
var ErrNoTarget = errors.New("nothing to zoom on")

// Expand grows every edge of rect by its inset in metres, converted to map
// units at the latitude of the rectangle's centre.
func Expand(rect core.MapRect, insets Insets) core.MapRect {
	f := geo.MapPointsPerMeter(geo.FromMap(rect.Center()).Lat)
	return core.MapRect{
		Min: core.MapPoint{
			X: rect.Min.X - insets.Leading*f,
			Y: rect.Min.Y - insets.Bottom*f,
		},
		Max: core.MapPoint{
			X: rect.Max.X + insets.Trailing*f,
			Y: rect.Max.Y + insets.Top*f,
		},
	}
}

// Bounds returns the smallest rectangle holding every coordinate. It
// reports false when there are none or one does not project.
func Bounds(cs ...core.Coordinate) (core.MapRect, bool) {
	env, err := geo.Envelope(cs...)
	if err != nil {
		return core.MapRect{}, false
	}
	return geo.RectFromEnvelope(env)
}

// FitDevice returns the region around a lone device, radius metres on
// every edge.
func FitDevice(device core.Coordinate, radius uint) core.MapRect {
	return FitDeviceInsets(device, All(radius))
}

// FitDeviceInsets is FitDevice with per-edge amounts.
func FitDeviceInsets(device core.Coordinate, insets Insets) core.MapRect {
	p := geo.ToMap(device)
	return Expand(core.MapRect{Min: p, Max: p}, insets)
}

// FitRoute returns the region holding the route and the device, each edge
// expanded by mapInsets. Without route points it falls back to the device
// alone, using mapInsets or All(DefaultRadius) when those are nil. A
// route that cannot be bounded is treated as missing.
func FitRoute(points core.Route, device core.Coordinate, mapInsets *Insets) core.MapRect {
	all := make([]core.Coordinate, 0, len(points)+1)
	all = append(all, points...)
	all = append(all, device)
	rect, ok := Bounds(all...)
	if len(points) == 0 || !ok {
		if mapInsets == nil {
			return FitDevice(device, DefaultRadius)
		}
		return FitDeviceInsets(device, *mapInsets)
	}
	if mapInsets == nil {
		return rect
	}
	return Expand(rect, *mapInsets)
}

type targetKind int

const (
	targetDevice targetKind = iota
	targetTrip
	targetCoordinate
)

// Target selects what Zoom centres on.
type Target struct {
	kind       targetKind
	coordinate core.Coordinate
}

var (
	// TargetDevice frames the device marker.
	TargetDevice = Target{kind: targetDevice}
	// TargetTrip frames the route line and device, or the device alone
	// when there is no route.
	TargetTrip = Target{kind: targetTrip}
)

// TargetCoordinate frames an arbitrary coordinate.
func TargetCoordinate(c core.Coordinate) Target {
	return Target{kind: targetCoordinate, coordinate: c}
}

// ParseTarget maps "device" and "trip" to their targets.
func ParseTarget(s string) (Target, bool) {
	switch s {
	case "device":
		return TargetDevice, true
	case "trip":
		return TargetTrip, true
	default:
		return Target{}, false
	}
}

// Options are the zoom parameters.
type Options struct {
	// Radius around a lone device or coordinate, in metres. Zero means
	// DefaultRadius.
	Radius uint
	// MapInsets expand a route's bounding box, in metres.
	MapInsets *Insets
	// Padding is passed through to the surface as on-screen edge padding.
	Padding *Insets
}

func (o Options) radius() uint {
	if o.Radius == 0 {
		return DefaultRadius
	}
	return o.Radius
}

// Zoom reads the device marker and route line back from s and sets the
// visible region for target.
func Zoom(s surface.Surface, target Target, opts Options) error {
	var rect core.MapRect
	switch target.kind {
	case targetCoordinate:
		rect = FitDevice(target.coordinate, opts.radius())
	case targetDevice, targetTrip:
		device, ok := findDevice(s)
		if !ok {
			return ErrNoTarget
		}
		var points core.Route
		if target.kind == targetTrip {
			points = findRoute(s)
		}
		if len(points) > 0 {
			rect = FitRoute(points, device, opts.MapInsets)
		} else if opts.MapInsets != nil && target.kind == targetTrip {
			rect = FitDeviceInsets(device, *opts.MapInsets)
		} else {
			rect = FitDevice(device, opts.radius())
		}
	default:
		return fmt.Errorf("zoom: unknown target %d", target.kind)
	}
	if err := s.SetVisibleRegion(rect, opts.Padding); err != nil {
		return fmt.Errorf("set visible region: %w", err)
	}
	return nil
}

func findDevice(s surface.Surface) (core.Coordinate, bool) {
	for _, m := range s.Markers() {
		if dm, ok := m.(*core.DeviceMarker); ok {
			c, _ := dm.Position()
			return c, true
		}
	}
	return core.Coordinate{}, false
}

func findRoute(s surface.Surface) core.Route {
	for _, o := range s.Overlays() {
		if l, ok := o.(*core.RouteLine); ok {
			return l.Points
		}
	}
	return nil
}
