package geo

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/livetrack/mapview/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"
)

// Map units are EPSG:3857 metres. All planar work (nearest point, bounding
// boxes, inset expansion) happens in that space so that distances are
// comparable in every direction.

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

var (
	toMercator   = wgs84.EPSG().Transform(4326, 3857)
	fromMercator = wgs84.EPSG().Transform(3857, 4326)
)

// ParseCoordinate parses "lat,lon" into a coordinate.
func ParseCoordinate(s string) (core.Coordinate, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return core.Coordinate{}, ErrInvalidCoordinates
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return core.Coordinate{}, ErrInvalidCoordinates
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return core.Coordinate{}, ErrInvalidCoordinates
	}
	c := core.Coordinate{Lat: lat, Lon: lon}
	if !c.Valid() {
		return core.Coordinate{}, ErrInvalidCoordinates
	}
	return c, nil
}

// ToXY projects a WGS84 coordinate into map units.
func ToXY(c core.Coordinate) geom.XY {
	x, y, _ := toMercator(c.Lon, c.Lat, 0)
	return geom.XY{X: x, Y: y}
}

// ToMap is ToXY returning the core map point type.
func ToMap(c core.Coordinate) core.MapPoint {
	xy := ToXY(c)
	return core.MapPoint{X: xy.X, Y: xy.Y}
}

// FromMap converts a map point back to WGS84.
func FromMap(p core.MapPoint) core.Coordinate {
	lon, lat, _ := fromMercator(p.X, p.Y, 0)
	return core.Coordinate{Lat: lat, Lon: lon}
}

// MapPointsPerMeter returns how many map units one ground metre spans at
// the given latitude.
func MapPointsPerMeter(lat float64) float64 {
	return 1 / math.Cos(lat*math.Pi/180)
}

// Distance is the planar distance between two coordinates in map units.
func Distance(a, b core.Coordinate) float64 {
	return ToXY(a).Sub(ToXY(b)).Length()
}

// Envelope returns the bounding box of the coordinates in map units.
// Coordinates that do not project to finite map units are an error.
func Envelope(cs ...core.Coordinate) (geom.Envelope, error) {
	var env geom.Envelope
	for _, c := range cs {
		var err error
		env, err = env.ExtendToIncludeXY(ToXY(c))
		if err != nil {
			return geom.Envelope{}, fmt.Errorf("envelope: %w", err)
		}
	}
	return env, nil
}

// RectFromEnvelope converts an envelope into a map rectangle. An empty
// envelope yields ok=false.
func RectFromEnvelope(env geom.Envelope) (core.MapRect, bool) {
	lo, hi, ok := env.MinMaxXYs()
	if !ok {
		return core.MapRect{}, false
	}
	return core.MapRect{
		Min: core.MapPoint{X: lo.X, Y: lo.Y},
		Max: core.MapPoint{X: hi.X, Y: hi.Y},
	}, true
}

// LineString builds a projected line string from a route.
func LineString(r core.Route) (geom.LineString, error) {
	flat := make([]float64, 0, len(r)*2)
	for _, c := range r {
		xy := ToXY(c)
		flat = append(flat, xy.X, xy.Y)
	}
	ls, err := geom.NewLineString(geom.NewSequence(flat, geom.DimXY))
	if err != nil {
		return geom.LineString{}, fmt.Errorf("line string: %w", err)
	}
	return ls, nil
}

// GroundLength approximates the route's length in metres by scaling each
// projected segment at its mid latitude.
func GroundLength(r core.Route) float64 {
	var total float64
	for i := 1; i < len(r); i++ {
		mid := (r[i-1].Lat + r[i].Lat) / 2
		total += Distance(r[i-1], r[i]) / MapPointsPerMeter(mid)
	}
	return total
}
