package streaming

import (
	"encoding/json"

	"github.com/livetrack/mapview/pkg/core"
)

// Message type constants matching the streaming protocol.
const (
	TypeSync          = "sync"
	TypeAddMarker     = "add_marker"
	TypeUpdateMarker  = "update_marker"
	TypeRemoveMarker  = "remove_marker"
	TypeAddOverlay    = "add_overlay"
	TypeRemoveOverlay = "remove_overlay"
	TypeSetRegion     = "set_region"
	TypeAck           = "ack"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the client's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// MarkerPayload describes a marker and how to draw it.
type MarkerPayload struct {
	ID         string          `json:"id"`
	Kind       string          `json:"kind"`
	Coordinate core.Coordinate `json:"coordinate"`
	Bearing    *core.Bearing   `json:"bearing,omitempty"`
	TripID     string          `json:"tripId,omitempty"`
	View       any             `json:"view,omitempty"`
}

// UpdateMarkerPayload moves an existing marker.
type UpdateMarkerPayload struct {
	ID         string          `json:"id"`
	Coordinate core.Coordinate `json:"coordinate"`
	Bearing    core.Bearing    `json:"bearing"`
}

// RemovePayload removes a marker or overlay.
type RemovePayload struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
}

// OverlayPayload describes an overlay and how to render it. Circles carry
// Center and RadiusMeters, route lines carry Points.
type OverlayPayload struct {
	ID           string           `json:"id"`
	Kind         string           `json:"kind"`
	Center       *core.Coordinate `json:"center,omitempty"`
	RadiusMeters float64          `json:"radiusMeters,omitempty"`
	Points       core.Route       `json:"points,omitempty"`
	Renderer     any              `json:"renderer,omitempty"`
}

// RegionPayload sets the visible region.
type RegionPayload struct {
	Rect    core.MapRect     `json:"rect"`
	Padding *core.EdgeInsets `json:"padding,omitempty"`
}

// SyncPayload carries the complete surface state. It is sent on connect
// and again after every reconnect.
type SyncPayload struct {
	DeviceID string           `json:"deviceId,omitempty"`
	Markers  []MarkerPayload  `json:"markers"`
	Overlays []OverlayPayload `json:"overlays"`
	Region   *RegionPayload   `json:"region,omitempty"`
}
