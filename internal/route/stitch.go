// Package route trims a previously computed route so that it starts at the
// device's live position.
package route

import (
	"math"

	"github.com/livetrack/mapview/internal/geo"
	"github.com/livetrack/mapview/pkg/core"
)

// NearestIndex returns the index of the route point closest to c in map
// units. Ties resolve to the lowest index. ok is false when the route is
// empty or no distance could be computed.
func NearestIndex(c core.Coordinate, r core.Route) (int, bool) {
	origin := geo.ToXY(c)
	best, bestDist := -1, math.Inf(1)
	for i, p := range r {
		d := geo.ToXY(p).Sub(origin).Length()
		if math.IsNaN(d) {
			continue
		}
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	return best, best >= 0
}

// Stitch returns a new route beginning at c and continuing with the points
// of r after the one nearest to c. r is never modified.
//
// A route with fewer than two points yields just [c]. When no nearest point
// can be resolved the whole route is kept behind c.
func Stitch(c core.Coordinate, r core.Route) core.Route {
	if len(r) <= 1 {
		return core.Route{c}
	}
	k, ok := NearestIndex(c, r)
	if !ok {
		out := make(core.Route, 0, len(r)+1)
		out = append(out, c)
		return append(out, r...)
	}
	tail := r[k+1:]
	out := make(core.Route, 0, len(tail)+1)
	out = append(out, c)
	return append(out, tail...)
}
