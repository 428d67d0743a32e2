package core

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ Entity = (*DeviceMarker)(nil)
	_ Entity = (*DestinationMarker)(nil)
	_ Entity = (*AccuracyCircle)(nil)
	_ Entity = (*RouteLine)(nil)
)

func TestBearingKnown(t *testing.T) {
	assert.False(t, BearingUnknown.Known())
	assert.False(t, Bearing(math.NaN()).Known())
	assert.True(t, Bearing(0).Known())
	assert.True(t, Bearing(359.9).Known())
}

func TestDisplayFor(t *testing.T) {
	s := Snapshot{DeviceID: "d1", Coordinate: Coordinate{Lat: 1, Lon: 2}}
	_, ok := DisplayFor(s).(DeviceOnly)
	assert.True(t, ok)

	s.Trip = &Trip{ID: "t1"}
	d, ok := DisplayFor(s).(DeviceWithTrip)
	require.True(t, ok)
	assert.Equal(t, "t1", d.Trip.ID)
	assert.Equal(t, s, d.Current())
}

func TestDeviceMarkerMoveNotifiesObservers(t *testing.T) {
	m := NewDeviceMarker(Coordinate{Lat: 1, Lon: 1}, BearingUnknown)
	id := m.EntityID()

	var got []Bearing
	m.Observe(func(_ Coordinate, b Bearing) { got = append(got, b) })

	m.Move(Coordinate{Lat: 2, Lon: 2}, 90)
	m.Move(Coordinate{Lat: 3, Lon: 3}, BearingUnknown)

	c, b := m.Position()
	assert.Equal(t, Coordinate{Lat: 3, Lon: 3}, c)
	assert.Equal(t, BearingUnknown, b)
	assert.Equal(t, []Bearing{90, BearingUnknown}, got)
	assert.Equal(t, id, m.EntityID(), "identity survives moves")
}

func TestDeviceMarkerJSON(t *testing.T) {
	m := NewDeviceMarker(Coordinate{Lat: 52.5, Lon: 13.4}, 45)
	data, err := json.Marshal(m)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, m.EntityID(), decoded["id"])
	assert.InDelta(t, 45, decoded["bearing"], 1e-9)
}

func TestEntityKindRoundTrip(t *testing.T) {
	for _, k := range []EntityKind{KindDevice, KindDestination, KindAccuracyCircle, KindRouteLine} {
		assert.Equal(t, k, ParseEntityKind(k.String()))
	}
	assert.Equal(t, KindUnknown, ParseEntityKind("bogus"))
	assert.True(t, KindRouteLine.IsOverlay())
	assert.False(t, KindDevice.IsOverlay())
}

func TestRouteLineCopiesPoints(t *testing.T) {
	pts := Route{{Lat: 0, Lon: 0}, {Lat: 1, Lon: 1}}
	l := NewRouteLine(pts)
	pts[0].Lat = 99
	assert.Equal(t, 0.0, l.Points[0].Lat)
}
