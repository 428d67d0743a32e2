// internal/subscription/subscription.go
package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/livetrack/mapview/pkg/core"
)

// ErrInvalidPayload wraps every decode or validation failure of an
// inbound snapshot message.
var ErrInvalidPayload = errors.New("invalid snapshot payload")

// DevicePlaceholder is substituted with the device id in topic and
// routing key templates.
const DevicePlaceholder = "{device}"

// Result is one item of a snapshot stream. Exactly one field is set.
type Result struct {
	Snapshot *core.Snapshot
	Err      error
}

// Subscriber delivers the snapshot stream for one device until ctx is
// cancelled, after which the returned channel is closed.
type Subscriber interface {
	Subscribe(ctx context.Context, deviceID string) (<-chan Result, error)
}

// ExpandTopic fills the device placeholder of a topic template.
func ExpandTopic(template, deviceID string) string {
	return strings.ReplaceAll(template, DevicePlaceholder, deviceID)
}

// PointPayload is a coordinate on the wire.
type PointPayload struct {
	Latitude  float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"longitude" validate:"gte=-180,lte=180"`
}

// DestinationPayload is a trip destination on the wire. A missing route
// means no estimate; an empty one is kept as an empty route.
type DestinationPayload struct {
	PointPayload
	Route []PointPayload `json:"route,omitempty" validate:"omitempty,dive"`
}

// TripPayload is an in-progress trip on the wire.
type TripPayload struct {
	ID          string              `json:"id" validate:"required"`
	Destination *DestinationPayload `json:"destination,omitempty"`
}

// Payload is the JSON snapshot message published per device.
type Payload struct {
	DeviceID string `json:"deviceId" validate:"required"`
	PointPayload
	// Bearing in degrees; absent when no course is known.
	Bearing  *float64 `json:"bearing,omitempty" validate:"omitempty,gte=0,lt=360"`
	Accuracy float64  `json:"accuracy"`
	// Timestamp in Unix milliseconds.
	Timestamp int64        `json:"timestamp" validate:"gt=0"`
	Trip      *TripPayload `json:"trip,omitempty"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Decode parses and validates a snapshot message.
func Decode(data []byte) (*core.Snapshot, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := validate.Struct(p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	s := p.Snapshot()
	return &s, nil
}

// Snapshot converts the payload into a core snapshot.
func (p Payload) Snapshot() core.Snapshot {
	s := core.Snapshot{
		DeviceID:           p.DeviceID,
		Coordinate:         p.PointPayload.coordinate(),
		Bearing:            core.BearingUnknown,
		HorizontalAccuracy: p.Accuracy,
		Timestamp:          time.UnixMilli(p.Timestamp).UTC(),
	}
	if p.Bearing != nil {
		s.Bearing = core.Bearing(*p.Bearing)
	}
	if p.Trip != nil {
		s.Trip = &core.Trip{ID: p.Trip.ID}
		if d := p.Trip.Destination; d != nil {
			dest := &core.Destination{Coordinate: d.PointPayload.coordinate()}
			if d.Route != nil {
				dest.EstimatedRoute = make(core.Route, len(d.Route))
				for i, pt := range d.Route {
					dest.EstimatedRoute[i] = pt.coordinate()
				}
			}
			s.Trip.Destination = dest
		}
	}
	return s
}

// PayloadFrom converts a snapshot into its wire form.
func PayloadFrom(s core.Snapshot) Payload {
	p := Payload{
		DeviceID:     s.DeviceID,
		PointPayload: pointFrom(s.Coordinate),
		Accuracy:     s.HorizontalAccuracy,
		Timestamp:    s.Timestamp.UnixMilli(),
	}
	if s.Bearing.Known() {
		b := float64(s.Bearing)
		p.Bearing = &b
	}
	if s.Trip != nil {
		p.Trip = &TripPayload{ID: s.Trip.ID}
		if d := s.Trip.Destination; d != nil {
			dp := &DestinationPayload{PointPayload: pointFrom(d.Coordinate)}
			if d.EstimatedRoute != nil {
				dp.Route = make([]PointPayload, len(d.EstimatedRoute))
				for i, c := range d.EstimatedRoute {
					dp.Route[i] = pointFrom(c)
				}
			}
			p.Trip.Destination = dp
		}
	}
	return p
}

// Encode marshals a snapshot into a message body.
func Encode(s core.Snapshot) ([]byte, error) {
	return json.Marshal(PayloadFrom(s))
}

func (p PointPayload) coordinate() core.Coordinate {
	return core.Coordinate{Lat: p.Latitude, Lon: p.Longitude}
}

func pointFrom(c core.Coordinate) PointPayload {
	return PointPayload{Latitude: c.Lat, Longitude: c.Lon}
}

// Stream is the result channel shared by transports. Deliveries after
// Close are discarded.
type Stream struct {
	ctx      context.Context
	deviceID string

	mu     sync.Mutex
	closed bool
	out    chan Result
}

// NewStream creates a stream for deviceID with the given buffer size.
func NewStream(ctx context.Context, deviceID string, size int) *Stream {
	if size < 0 {
		size = 0
	}
	return &Stream{ctx: ctx, deviceID: deviceID, out: make(chan Result, size)}
}

// C returns the receive side of the stream.
func (s *Stream) C() <-chan Result {
	return s.out
}

// Deliver decodes a message body and sends the snapshot, or the decode
// error, downstream. Messages for another device are reported as invalid.
func (s *Stream) Deliver(body []byte) {
	snap, err := Decode(body)
	if err == nil && snap.DeviceID != s.deviceID {
		err = fmt.Errorf("%w: device %q on stream for %q", ErrInvalidPayload, snap.DeviceID, s.deviceID)
		snap = nil
	}
	s.Send(Result{Snapshot: snap, Err: err})
}

// Send blocks until the result is queued or the stream's context ends.
func (s *Stream) Send(r Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.out <- r:
	case <-s.ctx.Done():
	}
}

// Close closes the result channel. It is safe to call more than once.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.out)
}
