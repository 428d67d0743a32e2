// internal/surface/surface.go
package surface

import (
	"errors"

	"github.com/livetrack/mapview/internal/render"
	"github.com/livetrack/mapview/pkg/core"
)

var (
	// ErrUnknownEntity is returned when removing an entity the surface does
	// not hold, or adding one of an unsupported kind.
	ErrUnknownEntity = errors.New("unknown entity")
	// ErrDuplicateEntity is returned when adding an entity whose ID is
	// already on the surface.
	ErrDuplicateEntity = errors.New("entity already on surface")
)

// Surface is the map widget the reconciler drives. It owns the entities
// placed on it; callers hold references only for the duration of a pass.
type Surface interface {
	// Lifecycle
	Init() error
	Close() error

	// Markers are drawn above overlays.
	AddMarker(m core.Entity) error
	RemoveMarker(m core.Entity) error

	// Overlays draw in insertion order, later ones on top.
	AddOverlay(o core.Entity) error
	RemoveOverlay(o core.Entity) error

	// SetVisibleRegion moves the camera. padding is on-screen edge padding
	// and may be nil.
	SetVisibleRegion(rect core.MapRect, padding *core.EdgeInsets) error

	// Queries return entities in insertion order.
	Markers() []core.Entity
	Overlays() []core.Entity

	DequeueReusableView(reuseID string) (*render.View, bool)
}

// Regioner is implemented by surfaces that remember the last visible region.
type Regioner interface {
	Region() (core.Region, bool)
}

// EntityState is one entity as currently drawn.
type EntityState struct {
	Kind     string           `json:"kind"`
	Entity   core.Entity      `json:"entity"`
	View     *render.View     `json:"view,omitempty"`
	Renderer *render.Renderer `json:"renderer,omitempty"`
}

// State is a point-in-time copy of everything on a surface.
type State struct {
	Markers  []EntityState `json:"markers"`
	Overlays []EntityState `json:"overlays"`
	Region   *core.Region  `json:"region,omitempty"`
}

// Stater is implemented by surfaces that can report their full state.
type Stater interface {
	State() State
}
