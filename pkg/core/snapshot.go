// pkg/core/snapshot.go
package core

import (
	"math"
	"time"
)

// Bearing is a course over ground in degrees clockwise from true north.
type Bearing float64

// BearingUnknown marks a snapshot without course or heading information.
const BearingUnknown Bearing = -1

// Known reports whether the bearing carries a usable heading.
// NaN is treated the same as BearingUnknown.
func (b Bearing) Known() bool {
	return b != BearingUnknown && !math.IsNaN(float64(b))
}

// Snapshot is one immutable reading of a device's position, heading,
// accuracy and optional trip. Each snapshot is a full-state refresh.
type Snapshot struct {
	DeviceID   string
	Coordinate Coordinate
	Bearing    Bearing
	// HorizontalAccuracy is the accuracy radius in metres. Values <= 0 mean
	// the accuracy is unavailable.
	HorizontalAccuracy float64
	Timestamp          time.Time
	Trip               *Trip
}

// HasAccuracy reports whether an accuracy circle should be drawn.
func (s Snapshot) HasAccuracy() bool {
	return s.HorizontalAccuracy > 0
}

// Trip is an in-progress journey.
type Trip struct {
	ID          string
	Destination *Destination
}

// Destination is where a trip ends, optionally with a precomputed route.
type Destination struct {
	Coordinate Coordinate
	// EstimatedRoute runs from the device towards the destination and
	// excludes the destination itself. Nil when no estimate exists.
	EstimatedRoute Route
}

// Display selects what is drawn for a snapshot.
// It is either DeviceOnly or DeviceWithTrip.
type Display interface {
	Current() Snapshot
	isDisplay()
}

// DeviceOnly draws the device marker and its accuracy circle.
type DeviceOnly struct {
	Snapshot Snapshot
}

func (d DeviceOnly) Current() Snapshot { return d.Snapshot }
func (DeviceOnly) isDisplay()          {}

// DeviceWithTrip draws the device plus the trip's destination and route.
type DeviceWithTrip struct {
	Snapshot Snapshot
	Trip     Trip
}

func (d DeviceWithTrip) Current() Snapshot { return d.Snapshot }
func (DeviceWithTrip) isDisplay()          {}

// DisplayFor picks the display variant from whether the snapshot has a trip.
func DisplayFor(s Snapshot) Display {
	if s.Trip != nil {
		return DeviceWithTrip{Snapshot: s, Trip: *s.Trip}
	}
	return DeviceOnly{Snapshot: s}
}
