package geo

import (
	"math"
	"testing"

	"github.com/livetrack/mapview/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCoordinate(t *testing.T) {
	c, err := ParseCoordinate("52.52, 13.405")
	require.NoError(t, err)
	assert.Equal(t, core.Coordinate{Lat: 52.52, Lon: 13.405}, c)
}

func TestParseCoordinate_Invalid(t *testing.T) {
	for _, in := range []string{"", "1", "a,b", "1,2,3", "91,0", "0,181"} {
		_, err := ParseCoordinate(in)
		assert.ErrorIs(t, err, ErrInvalidCoordinates, in)
	}
}

func TestToXY_Origin(t *testing.T) {
	xy := ToXY(core.Coordinate{})
	assert.InDelta(t, 0, xy.X, 1e-6)
	assert.InDelta(t, 0, xy.Y, 1e-6)
}

func TestToXY_Monotonic(t *testing.T) {
	a := ToXY(core.Coordinate{Lat: 0, Lon: 1})
	b := ToXY(core.Coordinate{Lat: 1, Lon: 0})
	// One degree of longitude at the equator is ~111.32 km.
	assert.InDelta(t, 111319.49, a.X, 1)
	assert.Greater(t, b.Y, 0.0)
}

func TestFromMap_RoundTrip(t *testing.T) {
	in := core.Coordinate{Lat: 48.8566, Lon: 2.3522}
	out := FromMap(ToMap(in))
	assert.InDelta(t, in.Lat, out.Lat, 1e-6)
	assert.InDelta(t, in.Lon, out.Lon, 1e-6)
}

func TestMapPointsPerMeter(t *testing.T) {
	assert.InDelta(t, 1, MapPointsPerMeter(0), 1e-12)
	assert.InDelta(t, 2, MapPointsPerMeter(60), 1e-9)
	assert.Greater(t, MapPointsPerMeter(-45), 1.0)
}

func TestEnvelopeAndRect(t *testing.T) {
	env, err := Envelope(core.Coordinate{Lat: 0, Lon: 0}, core.Coordinate{Lat: 1, Lon: 1})
	require.NoError(t, err)
	rect, ok := RectFromEnvelope(env)
	require.True(t, ok)
	assert.InDelta(t, 0, rect.Min.X, 1e-6)
	assert.InDelta(t, 0, rect.Min.Y, 1e-6)
	assert.Greater(t, rect.Max.X, 111000.0)
	assert.Greater(t, rect.Max.Y, 111000.0)

	empty, err := Envelope()
	require.NoError(t, err)
	_, ok = RectFromEnvelope(empty)
	assert.False(t, ok)
}

func TestEnvelope_NonFinite(t *testing.T) {
	_, err := Envelope(core.Coordinate{Lat: math.NaN(), Lon: 0})
	assert.Error(t, err)
}

func TestGroundLength(t *testing.T) {
	r := core.Route{{Lat: 60, Lon: 0}, {Lat: 60, Lon: 1}}
	// A degree of longitude at 60°N is about half of one at the equator.
	assert.InDelta(t, 55660, GroundLength(r), 200)
	assert.Equal(t, 0.0, GroundLength(core.Route{{Lat: 1, Lon: 1}}))
	assert.False(t, math.IsNaN(GroundLength(nil)))
}

func TestLineString(t *testing.T) {
	ls, err := LineString(core.Route{{Lat: 0, Lon: 0}, {Lat: 0, Lon: 1}})
	require.NoError(t, err)
	assert.InDelta(t, 111319.49, ls.Length(), 1)
}
