// pkg/core/region.go
package core

// EdgeInsets are per-edge amounts. Leading and trailing follow the
// surface's layout direction (left and right for left-to-right layouts).
// Units depend on use: metres for map insets, on-screen points for padding.
type EdgeInsets struct {
	Top      float64 `json:"top"`
	Leading  float64 `json:"leading"`
	Bottom   float64 `json:"bottom"`
	Trailing float64 `json:"trailing"`
}

// IsZero reports whether every edge is zero.
func (e EdgeInsets) IsZero() bool {
	return e == EdgeInsets{}
}

// Region is a visible map region as last requested from a surface.
type Region struct {
	Rect    MapRect     `json:"rect"`
	Padding *EdgeInsets `json:"padding,omitempty"`
}
