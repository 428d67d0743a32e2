package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/livetrack/mapview/internal/render"
	"github.com/livetrack/mapview/internal/surface"
	"github.com/livetrack/mapview/internal/surface/memory"
	"github.com/livetrack/mapview/pkg/core"
	"github.com/livetrack/mapview/pkg/streaming"
)

// Config holds WebSocket surface configuration.
type Config struct {
	URL      string
	Secret   string
	DeviceID string
}

// Surface mirrors a memory surface to a map client over WebSocket. Every
// mutation is applied to the model first and then streamed. The full state
// is sent as an acknowledged sync on Init and replayed after reconnects.
type Surface struct {
	model *memory.Surface
	conn  *connection
	cfg   Config
}

// New creates a new WebSocket surface on top of model.
func New(cfg Config, model *memory.Surface) *Surface {
	s := &Surface{
		model: model,
		conn:  newConnection(slog.Default().With("surface", "websocket")),
		cfg:   cfg,
	}
	s.conn.replay = s.syncMessage
	return s
}

// Init connects to the map client and waits for it to acknowledge the
// initial sync.
func (s *Surface) Init() error {
	if err := s.model.Init(); err != nil {
		return err
	}
	if err := s.conn.dial(s.cfg.URL, s.cfg.Secret); err != nil {
		return err
	}
	data, err := s.syncMessage()
	if err != nil {
		return err
	}
	return s.conn.sendAndWait(data, streaming.TypeSync, ackTimeout)
}

// Close disconnects from the map client.
func (s *Surface) Close() error {
	err := s.conn.close()
	if cerr := s.model.Close(); err == nil {
		err = cerr
	}
	return err
}

// marshalEnvelope builds a JSON-encoded Envelope from a message type and payload.
func marshalEnvelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	env := streaming.Envelope{Type: msgType, Payload: raw}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

// sendEnvelope marshals the payload into an Envelope and pushes it
// to the write loop (fire-and-forget).
func (s *Surface) sendEnvelope(msgType string, payload any) error {
	data, err := marshalEnvelope(msgType, payload)
	if err != nil {
		return err
	}
	s.conn.send(data)
	return nil
}

func (s *Surface) syncMessage() ([]byte, error) {
	st := s.model.State()
	payload := streaming.SyncPayload{
		DeviceID: s.cfg.DeviceID,
		Markers:  make([]streaming.MarkerPayload, 0, len(st.Markers)),
		Overlays: make([]streaming.OverlayPayload, 0, len(st.Overlays)),
	}
	for _, m := range st.Markers {
		payload.Markers = append(payload.Markers, markerPayload(m.Entity, m.View))
	}
	for _, o := range st.Overlays {
		payload.Overlays = append(payload.Overlays, overlayPayload(o.Entity, o.Renderer))
	}
	if st.Region != nil {
		payload.Region = &streaming.RegionPayload{Rect: st.Region.Rect, Padding: st.Region.Padding}
	}
	return marshalEnvelope(streaming.TypeSync, payload)
}

func markerPayload(e core.Entity, view *render.View) streaming.MarkerPayload {
	p := streaming.MarkerPayload{ID: e.EntityID(), Kind: e.Kind().String()}
	if view != nil {
		p.View = view
	}
	switch m := e.(type) {
	case *core.DeviceMarker:
		c, b := m.Position()
		p.Coordinate = c
		p.Bearing = &b
	case *core.DestinationMarker:
		p.Coordinate = m.Coordinate
		p.TripID = m.TripID
	}
	return p
}

func overlayPayload(e core.Entity, r *render.Renderer) streaming.OverlayPayload {
	p := streaming.OverlayPayload{ID: e.EntityID(), Kind: e.Kind().String()}
	if r != nil {
		p.Renderer = r
	}
	switch o := e.(type) {
	case *core.AccuracyCircle:
		c := o.Center
		p.Center = &c
		p.RadiusMeters = o.RadiusMeters
	case *core.RouteLine:
		p.Points = o.Points
	}
	return p
}

func (s *Surface) AddMarker(m core.Entity) error {
	if err := s.model.AddMarker(m); err != nil {
		return err
	}
	view, _ := s.model.View(m.EntityID())
	if dm, ok := m.(*core.DeviceMarker); ok {
		id := dm.EntityID()
		dm.Observe(func(c core.Coordinate, b core.Bearing) {
			if _, ok := s.model.View(id); !ok {
				return
			}
			if err := s.sendEnvelope(streaming.TypeUpdateMarker, streaming.UpdateMarkerPayload{
				ID: id, Coordinate: c, Bearing: b,
			}); err != nil {
				s.conn.logger.Error("Failed to stream marker update", "id", id, "error", err)
			}
		})
	}
	return s.sendEnvelope(streaming.TypeAddMarker, markerPayload(m, &view))
}

func (s *Surface) RemoveMarker(m core.Entity) error {
	if err := s.model.RemoveMarker(m); err != nil {
		return err
	}
	return s.sendEnvelope(streaming.TypeRemoveMarker, streaming.RemovePayload{ID: m.EntityID(), Kind: m.Kind().String()})
}

func (s *Surface) AddOverlay(o core.Entity) error {
	if err := s.model.AddOverlay(o); err != nil {
		return err
	}
	return s.sendEnvelope(streaming.TypeAddOverlay, overlayPayload(o, render.RendererFor(o)))
}

func (s *Surface) RemoveOverlay(o core.Entity) error {
	if err := s.model.RemoveOverlay(o); err != nil {
		return err
	}
	return s.sendEnvelope(streaming.TypeRemoveOverlay, streaming.RemovePayload{ID: o.EntityID(), Kind: o.Kind().String()})
}

func (s *Surface) SetVisibleRegion(rect core.MapRect, padding *core.EdgeInsets) error {
	if err := s.model.SetVisibleRegion(rect, padding); err != nil {
		return err
	}
	return s.sendEnvelope(streaming.TypeSetRegion, streaming.RegionPayload{Rect: rect, Padding: padding})
}

func (s *Surface) Markers() []core.Entity  { return s.model.Markers() }
func (s *Surface) Overlays() []core.Entity { return s.model.Overlays() }

func (s *Surface) DequeueReusableView(reuseID string) (*render.View, bool) {
	return s.model.DequeueReusableView(reuseID)
}

func (s *Surface) Region() (core.Region, bool) { return s.model.Region() }
func (s *Surface) State() surface.State        { return s.model.State() }
