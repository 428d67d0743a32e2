package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(body), 0644))
	return dir
}

func TestLoad_WithValidConfigFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := writeConfig(t, `{
		"logLevel": "debug",
		"device": { "id": "truck-7" },
		"surface": { "type": "websocket", "url": "ws://localhost:9000/map" }
	}`)

	err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "debug", viper.GetString("logLevel"))
	assert.Equal(t, "truck-7", viper.GetString("device.id"))
	assert.Equal(t, "websocket", viper.GetString("surface.type"))
	assert.Equal(t, "ws://localhost:9000/map", viper.GetString("surface.url"))
}

func TestLoad_DefaultValues(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{}`)))

	assert.Equal(t, "info", viper.GetString("logLevel"))
	assert.Equal(t, "./mapviewlogs", viper.GetString("logsDir"))
	assert.Equal(t, false, viper.GetBool("logToFile"))
	assert.Equal(t, "mqtt", viper.GetString("subscription.transport"))
	assert.Equal(t, "devices/{device}/snapshot", viper.GetString("subscription.mqtt.topic"))
	assert.Equal(t, "memory", viper.GetString("surface.type"))
	assert.Equal(t, 400, viper.GetInt("viewport.radius"))
	assert.Equal(t, 64, viper.GetInt("stream.bufferSize"))
	assert.Equal(t, false, viper.GetBool("stream.dropStale"))
	assert.Equal(t, false, viper.GetBool("graylog.enabled"))
	assert.Equal(t, "localhost:12201", viper.GetString("graylog.address"))
	assert.Equal(t, false, viper.GetBool("influx.enabled"))
	assert.Equal(t, true, viper.GetBool("http.enabled"))
	assert.Equal(t, ":8080", viper.GetString("http.address"))

	assert.NoError(t, Validate())
}

func TestLoad_MissingFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	err := Load("/nonexistent/path")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Cleanup(viper.Reset)
	t.Setenv("MAPVIEW_SURFACE_TYPE", "websocket")
	t.Setenv("MAPVIEW_SURFACE_URL", "ws://example.test/ws")

	require.NoError(t, Load(writeConfig(t, `{}`)))

	sc := GetSurfaceConfig()
	assert.Equal(t, "websocket", sc.Type)
	assert.Equal(t, "ws://example.test/ws", sc.URL)
}

func TestGetString(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testKey", "testValue")
	assert.Equal(t, "testValue", GetString("testKey"))
}

func TestGetInt(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testInt", 42)
	assert.Equal(t, 42, GetInt("testInt"))
}

func TestGetBool(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testBool", true)
	assert.Equal(t, true, GetBool("testBool"))
}

func TestGetSubscriptionConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{
		"subscription": {
			"transport": "amqp",
			"amqp": { "url": "amqp://u:p@rabbit:5672/", "exchange": "fleet", "routingKey": "gps.{device}" }
		}
	}`)))

	sc := GetSubscriptionConfig()
	assert.Equal(t, "amqp", sc.Transport)
	assert.True(t, sc.AMQP.Enabled)
	assert.False(t, sc.MQTT.Enabled)
	assert.Equal(t, "fleet", sc.AMQP.Exchange)
	assert.Equal(t, "gps.{device}", sc.AMQP.RoutingKey)
	assert.Equal(t, 10*time.Second, sc.MQTT.ConnectTimeout)
	assert.Equal(t, byte(1), sc.MQTT.QoS)
}

func TestGetViewportConfig(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{
		"viewport": {
			"follow": "trip",
			"mapInsets": { "preset": "vertical", "amount": 120 },
			"padding": { "preset": "all", "amount": 16 }
		}
	}`)))

	vc := GetViewportConfig()
	assert.Equal(t, "trip", vc.Follow)
	assert.Equal(t, uint(400), vc.Radius)
	assert.Equal(t, InsetsConfig{Preset: "vertical", Amount: 120}, vc.MapInsets)
	assert.Equal(t, InsetsConfig{Preset: "all", Amount: 16}, vc.Padding)
}

func TestGetOTelConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{}`)))

	cfg := GetOTelConfig()
	assert.Equal(t, false, cfg.Enabled)
	assert.Equal(t, "mapview", cfg.ServiceName)
	assert.Equal(t, 5*time.Second, cfg.BatchTimeout)
	assert.Equal(t, "", cfg.Endpoint)
	assert.Equal(t, true, cfg.Insecure)
}

func TestGetOTelConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{
		"otel": {
			"enabled": true,
			"serviceName": "my-service",
			"batchTimeout": "30s",
			"endpoint": "localhost:4317",
			"insecure": false
		}
	}`)))

	oc := GetOTelConfig()
	assert.Equal(t, true, oc.Enabled)
	assert.Equal(t, "my-service", oc.ServiceName)
	assert.Equal(t, 30*time.Second, oc.BatchTimeout)
	assert.Equal(t, "localhost:4317", oc.Endpoint)
	assert.Equal(t, false, oc.Insecure)
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown transport", `{"subscription": {"transport": "kafka"}}`, "subscription"},
		{"websocket without url", `{"surface": {"type": "websocket"}}`, "surface"},
		{"unknown follow", `{"viewport": {"follow": "everything"}}`, "viewport"},
		{"unknown insets preset", `{"viewport": {"mapInsets": {"preset": "diagonal"}}}`, "viewport"},
		{"empty buffer", `{"stream": {"bufferSize": 0}}`, "stream"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Cleanup(viper.Reset)
			require.NoError(t, Load(writeConfig(t, tt.body)))

			err := Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestBindFlags(t *testing.T) {
	t.Cleanup(viper.Reset)

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	require.NoError(t, BindFlags(fs))
	require.NoError(t, fs.Parse([]string{"--device", "bike-3", "--config-dir", "/etc/mapview"}))

	require.NoError(t, Load(writeConfig(t, `{"device": {"id": "from-file"}}`)))

	assert.Equal(t, "bike-3", viper.GetString("device.id"))
	dir, err := fs.GetString("config-dir")
	require.NoError(t, err)
	assert.Equal(t, "/etc/mapview", dir)
}
