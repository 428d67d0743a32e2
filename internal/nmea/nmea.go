// Package nmea folds NMEA 0183 RMC and GGA sentences into device snapshots.
package nmea

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	gonmea "github.com/adrianmo/go-nmea"

	"github.com/livetrack/mapview/pkg/core"
)

const (
	// DefaultMinSpeedKnots is the speed below which course over ground is
	// treated as noise.
	DefaultMinSpeedKnots = 0.5
	// DefaultUERE is the user equivalent range error in metres used to turn
	// HDOP into a horizontal accuracy radius.
	DefaultUERE = 5.0
)

// ErrNoFix is returned for RMC sentences flagged void.
var ErrNoFix = errors.New("no gps fix")

// Decoder keeps the latest GGA dilution so RMC fixes can carry accuracy.
type Decoder struct {
	DeviceID      string
	MinSpeedKnots float64
	UERE          float64

	hdop float64
	now  func() time.Time
}

// NewDecoder creates a decoder for deviceID with default thresholds.
func NewDecoder(deviceID string) *Decoder {
	return &Decoder{
		DeviceID:      deviceID,
		MinSpeedKnots: DefaultMinSpeedKnots,
		UERE:          DefaultUERE,
		now:           time.Now,
	}
}

// Feed parses one sentence. Only RMC sentences produce a snapshot; GGA
// updates the accuracy estimate and other types are ignored.
func (d *Decoder) Feed(line string) (*core.Snapshot, error) {
	sentence, err := gonmea.Parse(strings.TrimSpace(line))
	if err != nil {
		return nil, fmt.Errorf("parse nmea: %w", err)
	}

	switch s := sentence.(type) {
	case gonmea.GGA:
		if s.FixQuality == gonmea.Invalid {
			d.hdop = 0
		} else {
			d.hdop = s.HDOP
		}
		return nil, nil
	case gonmea.RMC:
		if s.Validity != gonmea.ValidRMC {
			return nil, ErrNoFix
		}
		course := s.Course
		if !hasCourse(s) {
			course = math.NaN()
		}
		snap := core.Snapshot{
			DeviceID:           d.DeviceID,
			Coordinate:         core.Coordinate{Lat: s.Latitude, Lon: s.Longitude},
			Bearing:            d.bearing(s.Speed, course),
			HorizontalAccuracy: d.hdop * d.UERE,
			Timestamp:          d.timestamp(s.Date, s.Time),
		}
		return &snap, nil
	default:
		return nil, nil
	}
}

// rmcCourseField is the index of course over ground in the RMC fields.
const rmcCourseField = 7

// hasCourse reports whether the sentence carried a course at all; the
// parser reads an empty field as zero.
func hasCourse(s gonmea.RMC) bool {
	return len(s.Fields) > rmcCourseField && strings.TrimSpace(s.Fields[rmcCourseField]) != ""
}

func (d *Decoder) bearing(speed, course float64) core.Bearing {
	if speed < d.MinSpeedKnots || math.IsNaN(course) {
		return core.BearingUnknown
	}
	c := math.Mod(course, 360)
	if c < 0 {
		c += 360
	}
	return core.Bearing(c)
}

func (d *Decoder) timestamp(date gonmea.Date, tm gonmea.Time) time.Time {
	if !date.Valid || !tm.Valid {
		return d.now().UTC()
	}
	year := 2000 + date.YY
	if date.YY >= 80 {
		year = 1900 + date.YY
	}
	return time.Date(year, time.Month(date.MM), date.DD,
		tm.Hour, tm.Minute, tm.Second, tm.Millisecond*int(time.Millisecond), time.UTC)
}

// Scan reads sentences line by line and calls emit for each snapshot.
// Unparseable lines and void fixes are skipped. It returns when r is
// exhausted, on a read error, or when emit fails.
func (d *Decoder) Scan(r io.Reader, emit func(core.Snapshot) error) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, "$") {
			continue
		}
		snap, err := d.Feed(line)
		if err != nil || snap == nil {
			continue
		}
		if err := emit(*snap); err != nil {
			return err
		}
	}
	return sc.Err()
}
