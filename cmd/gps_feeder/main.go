package main

import (
	"errors"
	"fmt"
	"os"

	serial "github.com/jacobsa/go-serial/serial"
	"github.com/spf13/pflag"

	"github.com/livetrack/mapview/internal/config"
	"github.com/livetrack/mapview/internal/logging"
	"github.com/livetrack/mapview/internal/nmea"
	"github.com/livetrack/mapview/internal/subscription"
	mqttsub "github.com/livetrack/mapview/internal/subscription/mqtt"
	"github.com/livetrack/mapview/pkg/core"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "gps_feeder: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	fs := pflag.NewFlagSet("gps_feeder", pflag.ExitOnError)
	if err := config.BindFlags(fs); err != nil {
		return err
	}
	port := fs.String("port", "/dev/serial0", "serial port of the GPS receiver")
	baud := fs.Uint("baud", 9600, "serial baud rate")
	minSpeed := fs.Float64("min-speed", nmea.DefaultMinSpeedKnots, "speed in knots below which course is ignored")
	if err := fs.Parse(os.Args[1:]); err != nil {
		return err
	}
	configDir, _ := fs.GetString("config-dir")

	logs := logging.NewSlogManager()
	logs.Setup(logging.Config{Level: "info"})
	logger := logs.Logger()

	if err := config.Load(configDir); err != nil {
		logger.Warn("Failed to load config, using defaults!", "error", err)
	}
	logs.Setup(logging.Config{Level: config.GetString("logLevel")})
	logger = logs.Logger()

	deviceID := config.GetString("device.id")
	if deviceID == "" {
		return errors.New("no device id configured (device.id or --device)")
	}

	mqttCfg := config.GetSubscriptionConfig().MQTT
	mqttCfg.ClientID = mqttCfg.ClientID + "-feeder-" + deviceID
	client, err := mqttsub.Connect(mqttCfg)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)
	logger.Info("GPS feeder connected to MQTT broker", "broker", mqttCfg.Broker)

	serialOpts := serial.OpenOptions{
		PortName:              *port,
		BaudRate:              *baud,
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}
	rw, err := serial.Open(serialOpts)
	if err != nil {
		return fmt.Errorf("open %s: %w", *port, err)
	}
	defer rw.Close()
	logger.Info("GPS serial port opened", "port", *port, "baud", *baud)

	dec := nmea.NewDecoder(deviceID)
	dec.MinSpeedKnots = *minSpeed

	return dec.Scan(rw, func(s core.Snapshot) error {
		body, err := subscription.Encode(s)
		if err != nil {
			return fmt.Errorf("encode snapshot: %w", err)
		}
		if err := mqttsub.Publish(client, mqttCfg, deviceID, body); err != nil {
			logger.Warn("GPS publish error", "error", err)
			return nil
		}
		logger.Debug("published GPS fix", "lat", s.Coordinate.Lat, "lon", s.Coordinate.Lon, "bearing", s.Bearing)
		return nil
	})
}
