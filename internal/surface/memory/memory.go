// internal/surface/memory/memory.go
package memory

import (
	"fmt"
	"sync"

	"github.com/livetrack/mapview/internal/cache"
	"github.com/livetrack/mapview/internal/config"
	"github.com/livetrack/mapview/internal/render"
	"github.com/livetrack/mapview/internal/surface"
	"github.com/livetrack/mapview/pkg/core"
)

type placed struct {
	entity   core.Entity
	view     *render.View
	renderer *render.Renderer
}

// Surface keeps the map state in memory. It is the model behind the
// streaming surface and the default surface in tests.
type Surface struct {
	cfg  config.SurfaceConfig
	pool *cache.ViewPool

	mu       sync.RWMutex
	markers  []*placed
	overlays []*placed
	region   *core.Region
}

// New creates a new memory surface
func New(cfg config.SurfaceConfig) *Surface {
	return &Surface{
		cfg:  cfg,
		pool: cache.NewViewPool(cfg.ViewPoolLimit),
	}
}

// Init initializes the surface
func (s *Surface) Init() error {
	return nil
}

// Close drops every entity and pooled view
func (s *Surface) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markers = nil
	s.overlays = nil
	s.region = nil
	s.pool.Reset()
	return nil
}

// AddMarker places a marker and builds its annotation view.
func (s *Surface) AddMarker(m core.Entity) error {
	if m == nil || m.Kind().IsOverlay() || m.Kind() == core.KindUnknown {
		return fmt.Errorf("add marker: %w", surface.ErrUnknownEntity)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if indexOf(s.markers, m.EntityID()) >= 0 {
		return fmt.Errorf("add marker %s: %w", m.EntityID(), surface.ErrDuplicateEntity)
	}
	view := render.ViewFor(m, s.pool)
	s.markers = append(s.markers, &placed{entity: m, view: view})

	if dm, ok := m.(*core.DeviceMarker); ok {
		id := dm.EntityID()
		dm.Observe(func(_ core.Coordinate, b core.Bearing) {
			s.mu.Lock()
			defer s.mu.Unlock()
			// the view may have been released and reused by another marker
			if view.EntityID == id {
				view.ApplyBearing(b)
			}
		})
	}
	return nil
}

// RemoveMarker removes a marker and releases its view for reuse.
func (s *Surface) RemoveMarker(m core.Entity) error {
	if m == nil {
		return fmt.Errorf("remove marker: %w", surface.ErrUnknownEntity)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := indexOf(s.markers, m.EntityID())
	if i < 0 {
		return fmt.Errorf("remove marker %s: %w", m.EntityID(), surface.ErrUnknownEntity)
	}
	view := s.markers[i].view
	s.markers = append(s.markers[:i], s.markers[i+1:]...)
	if view != nil {
		view.EntityID = ""
		s.pool.Put(view)
	}
	return nil
}

// AddOverlay places an overlay on top of the existing ones.
func (s *Surface) AddOverlay(o core.Entity) error {
	if o == nil || !o.Kind().IsOverlay() {
		return fmt.Errorf("add overlay: %w", surface.ErrUnknownEntity)
	}
	renderer := render.RendererFor(o)

	s.mu.Lock()
	defer s.mu.Unlock()
	if indexOf(s.overlays, o.EntityID()) >= 0 {
		return fmt.Errorf("add overlay %s: %w", o.EntityID(), surface.ErrDuplicateEntity)
	}
	s.overlays = append(s.overlays, &placed{entity: o, renderer: renderer})
	return nil
}

// RemoveOverlay removes an overlay.
func (s *Surface) RemoveOverlay(o core.Entity) error {
	if o == nil {
		return fmt.Errorf("remove overlay: %w", surface.ErrUnknownEntity)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := indexOf(s.overlays, o.EntityID())
	if i < 0 {
		return fmt.Errorf("remove overlay %s: %w", o.EntityID(), surface.ErrUnknownEntity)
	}
	s.overlays = append(s.overlays[:i], s.overlays[i+1:]...)
	return nil
}

// SetVisibleRegion records the requested region.
func (s *Surface) SetVisibleRegion(rect core.MapRect, padding *core.EdgeInsets) error {
	r := core.Region{Rect: rect}
	if padding != nil {
		p := *padding
		r.Padding = &p
	}
	s.mu.Lock()
	s.region = &r
	s.mu.Unlock()
	return nil
}

// Region returns the last visible region set on the surface.
func (s *Surface) Region() (core.Region, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.region == nil {
		return core.Region{}, false
	}
	return *s.region, true
}

// Markers returns the markers in insertion order.
func (s *Surface) Markers() []core.Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return entities(s.markers)
}

// Overlays returns the overlays in drawing order, bottom first.
func (s *Surface) Overlays() []core.Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return entities(s.overlays)
}

// DequeueReusableView hands out a released view for reuseID.
func (s *Surface) DequeueReusableView(reuseID string) (*render.View, bool) {
	return s.pool.Dequeue(reuseID)
}

// View returns a copy of the annotation view of a marker.
func (s *Surface) View(id string) (render.View, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := indexOf(s.markers, id)
	if i < 0 || s.markers[i].view == nil {
		return render.View{}, false
	}
	return *s.markers[i].view, true
}

// State returns a copy of everything on the surface.
func (s *Surface) State() surface.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := surface.State{
		Markers:  make([]surface.EntityState, 0, len(s.markers)),
		Overlays: make([]surface.EntityState, 0, len(s.overlays)),
	}
	for _, p := range s.markers {
		es := surface.EntityState{Kind: p.entity.Kind().String(), Entity: p.entity}
		if p.view != nil {
			v := *p.view
			es.View = &v
		}
		st.Markers = append(st.Markers, es)
	}
	for _, p := range s.overlays {
		st.Overlays = append(st.Overlays, surface.EntityState{
			Kind:     p.entity.Kind().String(),
			Entity:   p.entity,
			Renderer: p.renderer,
		})
	}
	if s.region != nil {
		r := *s.region
		st.Region = &r
	}
	return st
}

func indexOf(list []*placed, id string) int {
	for i, p := range list {
		if p.entity.EntityID() == id {
			return i
		}
	}
	return -1
}

func entities(list []*placed) []core.Entity {
	out := make([]core.Entity, len(list))
	for i, p := range list {
		out[i] = p.entity
	}
	return out
}
