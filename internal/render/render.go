// Package render describes how map entities look: annotation views for
// markers and renderers for overlays. The surface turns these descriptions
// into pixels.
package render

import (
	"fmt"

	"github.com/livetrack/mapview/pkg/core"
)

// Reuse identifiers, one per marker kind.
const (
	DeviceReuseID      = "DeviceAnnotation"
	DestinationReuseID = "DestinationAnnotation"
)

// Color is an sRGB colour with alpha in [0,1].
type Color struct {
	R uint8   `json:"r"`
	G uint8   `json:"g"`
	B uint8   `json:"b"`
	A float64 `json:"a"`
}

// Hex formats the colour as #RRGGBB, ignoring alpha.
func (c Color) Hex() string {
	return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
}

// WithAlpha returns c with a different alpha.
func (c Color) WithAlpha(a float64) Color {
	c.A = a
	return c
}

var (
	// DeviceGreen is the device dot and accuracy circle colour.
	DeviceGreen = Color{R: 0x50, G: 0xE3, B: 0xC2, A: 1}
	Black       = Color{A: 1}
)

// Size is a width and height in on-screen points.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

var (
	DeviceViewSize      = Size{Width: 34, Height: 34}
	DestinationViewSize = Size{Width: 26, Height: 28}
)

// View is the annotation view for a marker.
type View struct {
	ReuseID string          `json:"reuseId"`
	Kind    core.EntityKind `json:"-"`
	Size    Size            `json:"size"`
	Tint    Color           `json:"tint"`
	// EntityID is the marker the view currently displays.
	EntityID string `json:"entityId"`
	// ShowsArrow is true when the device bearing is known.
	ShowsArrow bool `json:"showsArrow"`
	// ArrowRotation is the arrow's rotation in degrees, the negated bearing.
	ArrowRotation float64 `json:"arrowRotation"`
}

// ApplyBearing updates the arrow for a new device bearing.
func (v *View) ApplyBearing(b core.Bearing) {
	v.ShowsArrow = b.Known()
	if v.ShowsArrow {
		v.ArrowRotation = -float64(b)
	} else {
		v.ArrowRotation = 0
	}
}

// Dequeuer hands out previously created views by reuse identifier.
type Dequeuer interface {
	DequeueReusableView(reuseID string) (*View, bool)
}

// ViewFor returns the annotation view for a marker, reusing a dequeued
// view of the same reuse identifier when one is available. d may be nil.
// Unknown kinds return nil.
func ViewFor(e core.Entity, d Dequeuer) *View {
	switch m := e.(type) {
	case *core.DeviceMarker:
		v := dequeue(d, DeviceReuseID, func() *View {
			return &View{ReuseID: DeviceReuseID, Kind: core.KindDevice, Size: DeviceViewSize, Tint: DeviceGreen}
		})
		_, b := m.Position()
		v.EntityID = m.EntityID()
		v.ApplyBearing(b)
		return v
	case *core.DestinationMarker:
		v := dequeue(d, DestinationReuseID, func() *View {
			return &View{ReuseID: DestinationReuseID, Kind: core.KindDestination, Size: DestinationViewSize, Tint: Black}
		})
		v.EntityID = m.EntityID()
		return v
	default:
		return nil
	}
}

func dequeue(d Dequeuer, reuseID string, build func() *View) *View {
	if d != nil {
		if v, ok := d.DequeueReusableView(reuseID); ok && v != nil {
			return v
		}
	}
	return build()
}

// LineJoin names how polyline segments are joined.
type LineJoin string

const (
	JoinMiter LineJoin = "miter"
	JoinRound LineJoin = "round"
)

// Renderer describes how an overlay is stroked and filled.
type Renderer struct {
	Kind      core.EntityKind `json:"-"`
	Fill      *Color          `json:"fill,omitempty"`
	Stroke    Color           `json:"stroke"`
	LineWidth float64         `json:"lineWidth"`
	LineJoin  LineJoin        `json:"lineJoin,omitempty"`
}

// RendererFor returns the renderer for an overlay, or nil for kinds that
// are not overlays.
func RendererFor(e core.Entity) *Renderer {
	switch e.(type) {
	case *core.AccuracyCircle:
		fill := DeviceGreen.WithAlpha(0.3)
		return &Renderer{
			Kind:      core.KindAccuracyCircle,
			Fill:      &fill,
			Stroke:    DeviceGreen.WithAlpha(0.1),
			LineWidth: 1.5,
		}
	case *core.RouteLine:
		return &Renderer{
			Kind:      core.KindRouteLine,
			Stroke:    Black,
			LineWidth: 4,
			LineJoin:  JoinMiter,
		}
	default:
		return nil
	}
}
