package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livetrack/mapview/internal/config"
)

func TestConnect_Disabled(t *testing.T) {
	m := NewManager(config.InfluxConfig{Enabled: false}, zerolog.Nop(), "")
	err := m.Connect(context.Background())
	assert.True(t, errors.Is(err, ErrDisabled))
}

func TestWritePoint_NoBackend(t *testing.T) {
	m := NewManager(config.InfluxConfig{}, zerolog.Nop(), "")
	err := m.WritePoint(influxdb2_write.NewPointWithMeasurement("x").AddField("v", 1))
	assert.Error(t, err)
}

func TestConnect_FallsBackToBackupFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "influx_backup.log.gz")
	m := NewManager(config.InfluxConfig{
		Enabled:  true,
		Protocol: "http",
		Host:     "127.0.0.1",
		Port:     "1",
		Bucket:   "mapview",
	}, zerolog.Nop(), path)

	require.NoError(t, m.Connect(context.Background()))
	assert.False(t, m.IsValid)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, m.WritePoint(PassPoint(PassStats{
		DeviceID: "dev-1", At: at, Added: 2, RoutePoints: 4, OnTrip: true,
	})))
	require.NoError(t, m.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	zr, err := gzip.NewReader(f)
	require.NoError(t, err)
	data, err := io.ReadAll(zr)
	require.NoError(t, err)

	line := strings.TrimSpace(string(data))
	assert.True(t, strings.HasPrefix(line, MeasurementPass+",device=dev-1,on_trip=true "), line)
	assert.Contains(t, line, "added=2i")
	assert.Contains(t, line, "route_points=4i")
}

func TestPassPoint(t *testing.T) {
	at := time.Unix(1700000000, 0)
	p := PassPoint(PassStats{
		DeviceID:    "dev-9",
		At:          at,
		Duration:    1500 * time.Microsecond,
		Removed:     1,
		RouteMeters: 1234.5,
		Accuracy:    12,
		Failed:      true,
	})

	line := influxdb2_write.PointToLineProtocol(p, time.Second)
	assert.Contains(t, line, "device=dev-9")
	assert.Contains(t, line, "on_trip=false")
	assert.Contains(t, line, "removed=1i")
	assert.Contains(t, line, "route_meters=1234.5")
	assert.Contains(t, line, "duration_us=1500i")
	assert.Contains(t, line, "failed=true")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(line), "1700000000"), line)
}
