package main

import (
	"fmt"
	"strings"

	"github.com/livetrack/mapview/internal/config"
	"github.com/livetrack/mapview/internal/subscription"
	amqpsub "github.com/livetrack/mapview/internal/subscription/amqp"
	mqttsub "github.com/livetrack/mapview/internal/subscription/mqtt"
	"github.com/livetrack/mapview/internal/surface"
	"github.com/livetrack/mapview/internal/surface/memory"
	wssurface "github.com/livetrack/mapview/internal/surface/websocket"
	"github.com/livetrack/mapview/internal/viewport"
)

// mapSurface is what the session and HTTP API need from a surface.
type mapSurface interface {
	surface.Surface
	surface.Stater
}

func createSurface(cfg config.SurfaceConfig, deviceID string) (mapSurface, error) {
	model := memory.New(cfg)
	switch cfg.Type {
	case "websocket":
		url := httpToWS(cfg.URL)
		Logger.Info("WebSocket surface selected", "url", url)
		return wssurface.New(wssurface.Config{
			URL:      url,
			Secret:   cfg.Secret,
			DeviceID: deviceID,
		}, model), nil
	case "memory", "":
		Logger.Info("Memory surface selected")
		return model, nil
	default:
		return nil, fmt.Errorf("unknown surface type %q", cfg.Type)
	}
}

// createSubscriber connects the configured transport. The returned func
// closes the broker connection.
func createSubscriber(cfg config.SubscriptionConfig) (subscription.Subscriber, func(), error) {
	switch cfg.Transport {
	case "amqp":
		conn, ch, err := amqpsub.Dial(cfg.AMQP)
		if err != nil {
			return nil, nil, err
		}
		Logger.Info("AMQP subscriber connected", "exchange", cfg.AMQP.Exchange)
		return amqpsub.New(ch, cfg.AMQP, Logger), func() {
			_ = ch.Close()
			_ = conn.Close()
		}, nil
	case "mqtt", "":
		client, err := mqttsub.Connect(cfg.MQTT)
		if err != nil {
			return nil, nil, err
		}
		Logger.Info("MQTT subscriber connected", "broker", cfg.MQTT.Broker)
		return mqttsub.New(client, cfg.MQTT, Logger), func() {
			client.Disconnect(250)
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown subscription transport %q", cfg.Transport)
	}
}

func viewportOptions(cfg config.ViewportConfig) viewport.Options {
	opts := viewport.Options{Radius: cfg.Radius}
	if cfg.MapInsets.Amount > 0 {
		if in, ok := viewport.ParseInsets(cfg.MapInsets.Preset, cfg.MapInsets.Amount); ok {
			opts.MapInsets = &in
		}
	}
	if cfg.Padding.Amount > 0 {
		if in, ok := viewport.ParseInsets(cfg.Padding.Preset, cfg.Padding.Amount); ok {
			opts.Padding = &in
		}
	}
	return opts
}

// httpToWS converts an HTTP(S) URL to a WebSocket URL.
func httpToWS(httpURL string) string {
	s := strings.TrimRight(httpURL, "/")
	s = strings.Replace(s, "https://", "wss://", 1)
	s = strings.Replace(s, "http://", "ws://", 1)
	return s
}
