// pkg/core/coordinate.go
package core

import "math"

// Coordinate is a WGS84 position in decimal degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether the coordinate lies within the WGS84 bounds.
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lon) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

// Route is an ordered sequence of coordinates, device first.
type Route []Coordinate

// Clone returns a copy of the route that shares no backing array with r.
func (r Route) Clone() Route {
	if r == nil {
		return nil
	}
	out := make(Route, len(r))
	copy(out, r)
	return out
}

// MapPoint is a position in the surface's native map units (EPSG:3857 metres).
type MapPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// MapRect is an axis-aligned rectangle in map units. Y grows northwards.
type MapRect struct {
	Min MapPoint `json:"min"`
	Max MapPoint `json:"max"`
}

// Width returns the east-west extent of the rectangle.
func (r MapRect) Width() float64 {
	return r.Max.X - r.Min.X
}

// Height returns the north-south extent of the rectangle.
func (r MapRect) Height() float64 {
	return r.Max.Y - r.Min.Y
}

// Center returns the midpoint of the rectangle.
func (r MapRect) Center() MapPoint {
	return MapPoint{X: (r.Min.X + r.Max.X) / 2, Y: (r.Min.Y + r.Max.Y) / 2}
}
