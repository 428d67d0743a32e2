// pkg/core/entity.go
package core

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
)

// EntityKind identifies the four kinds of entities drawn on a surface.
type EntityKind uint8

const (
	KindUnknown EntityKind = iota
	KindDevice
	KindDestination
	KindAccuracyCircle
	KindRouteLine
)

func (k EntityKind) String() string {
	switch k {
	case KindDevice:
		return "device"
	case KindDestination:
		return "destination"
	case KindAccuracyCircle:
		return "accuracy_circle"
	case KindRouteLine:
		return "route_line"
	default:
		return "unknown"
	}
}

// IsOverlay reports whether entities of this kind are drawn as overlays
// rather than markers.
func (k EntityKind) IsOverlay() bool {
	return k == KindAccuracyCircle || k == KindRouteLine
}

// ParseEntityKind is the inverse of EntityKind.String.
func ParseEntityKind(s string) EntityKind {
	switch s {
	case "device":
		return KindDevice
	case "destination":
		return KindDestination
	case "accuracy_circle":
		return KindAccuracyCircle
	case "route_line":
		return KindRouteLine
	default:
		return KindUnknown
	}
}

// Entity is anything that can be placed on a map surface.
type Entity interface {
	EntityID() string
	Kind() EntityKind
}

// DeviceMarker is the moving marker for the tracked device. It is the only
// entity mutated in place; observers are notified on every Move.
type DeviceMarker struct {
	id string

	mu         sync.RWMutex
	coordinate Coordinate
	bearing    Bearing
	observers  []func(Coordinate, Bearing)
}

// NewDeviceMarker creates a device marker with a fresh identity.
func NewDeviceMarker(c Coordinate, b Bearing) *DeviceMarker {
	return &DeviceMarker{id: uuid.NewString(), coordinate: c, bearing: b}
}

func (m *DeviceMarker) EntityID() string { return m.id }
func (m *DeviceMarker) Kind() EntityKind { return KindDevice }

// Position returns the marker's current coordinate and bearing.
func (m *DeviceMarker) Position() (Coordinate, Bearing) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.coordinate, m.bearing
}

// Move updates coordinate and bearing and notifies observers.
// Observers run synchronously, outside the marker's lock.
func (m *DeviceMarker) Move(c Coordinate, b Bearing) {
	m.mu.Lock()
	m.coordinate = c
	m.bearing = b
	observers := make([]func(Coordinate, Bearing), len(m.observers))
	copy(observers, m.observers)
	m.mu.Unlock()

	for _, fn := range observers {
		fn(c, b)
	}
}

// Observe registers fn to be called after every Move.
func (m *DeviceMarker) Observe(fn func(Coordinate, Bearing)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, fn)
}

// MarshalJSON encodes the marker's current state.
func (m *DeviceMarker) MarshalJSON() ([]byte, error) {
	c, b := m.Position()
	return json.Marshal(struct {
		ID         string     `json:"id"`
		Coordinate Coordinate `json:"coordinate"`
		Bearing    Bearing    `json:"bearing"`
	}{m.id, c, b})
}

// DestinationMarker marks where the current trip ends.
type DestinationMarker struct {
	ID         string     `json:"id"`
	Coordinate Coordinate `json:"coordinate"`
	TripID     string     `json:"tripId"`
}

func NewDestinationMarker(c Coordinate, tripID string) *DestinationMarker {
	return &DestinationMarker{ID: uuid.NewString(), Coordinate: c, TripID: tripID}
}

func (m *DestinationMarker) EntityID() string { return m.ID }
func (m *DestinationMarker) Kind() EntityKind { return KindDestination }

// AccuracyCircle is the horizontal accuracy overlay around the device.
type AccuracyCircle struct {
	ID           string     `json:"id"`
	Center       Coordinate `json:"center"`
	RadiusMeters float64    `json:"radiusMeters"`
}

func NewAccuracyCircle(center Coordinate, radius float64) *AccuracyCircle {
	return &AccuracyCircle{ID: uuid.NewString(), Center: center, RadiusMeters: radius}
}

func (c *AccuracyCircle) EntityID() string { return c.ID }
func (c *AccuracyCircle) Kind() EntityKind { return KindAccuracyCircle }

// RouteLine is the polyline from the device to the destination.
type RouteLine struct {
	ID     string `json:"id"`
	Points Route  `json:"points"`
}

func NewRouteLine(points Route) *RouteLine {
	return &RouteLine{ID: uuid.NewString(), Points: points.Clone()}
}

func (l *RouteLine) EntityID() string { return l.ID }
func (l *RouteLine) Kind() EntityKind { return KindRouteLine }
