package viewport

import "github.com/livetrack/mapview/pkg/core"

// Insets are per-edge amounts: metres when expanding a map rectangle,
// on-screen points when used as padding.
type Insets = core.EdgeInsets

// DefaultRadius is the padding around a lone device, in metres.
const DefaultRadius = 400

// All applies n to every edge.
func All(n uint) Insets {
	f := float64(n)
	return Insets{Top: f, Leading: f, Bottom: f, Trailing: f}
}

func Top(n uint) Insets      { return Insets{Top: float64(n)} }
func Bottom(n uint) Insets   { return Insets{Bottom: float64(n)} }
func Leading(n uint) Insets  { return Insets{Leading: float64(n)} }
func Trailing(n uint) Insets { return Insets{Trailing: float64(n)} }

// Horizontal applies n to the leading and trailing edges.
func Horizontal(n uint) Insets {
	return Insets{Leading: float64(n), Trailing: float64(n)}
}

// Vertical applies n to the top and bottom edges.
func Vertical(n uint) Insets {
	return Insets{Top: float64(n), Bottom: float64(n)}
}

// Custom sets each edge individually.
func Custom(top, leading, bottom, trailing uint) Insets {
	return Insets{
		Top:      float64(top),
		Leading:  float64(leading),
		Bottom:   float64(bottom),
		Trailing: float64(trailing),
	}
}

// ParseInsets builds insets from a preset name and amount, as found in
// configuration. Unknown presets report false.
func ParseInsets(preset string, n uint) (Insets, bool) {
	switch preset {
	case "all":
		return All(n), true
	case "top":
		return Top(n), true
	case "bottom":
		return Bottom(n), true
	case "leading":
		return Leading(n), true
	case "trailing":
		return Trailing(n), true
	case "horizontal":
		return Horizontal(n), true
	case "vertical":
		return Vertical(n), true
	default:
		return Insets{}, false
	}
}
