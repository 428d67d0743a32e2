package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/livetrack/mapview/internal/config"
	"github.com/livetrack/mapview/internal/dispatcher"
	"github.com/livetrack/mapview/internal/httpapi"
	"github.com/livetrack/mapview/internal/influx"
	"github.com/livetrack/mapview/internal/logging"
	"github.com/livetrack/mapview/internal/monitor"
	intOtel "github.com/livetrack/mapview/internal/otel"
	"github.com/livetrack/mapview/internal/reconcile"
	"github.com/livetrack/mapview/internal/session"
)

// BuildDate can be set at build time via ldflags
var (
	CurrentVersion string = "0.0.1"
	BuildDate      string = "unknown"

	ServiceName string = "mapview"
)

var (
	// SlogManager handles all slog-based logging
	SlogManager *logging.SlogManager

	// Logger is the slog logger (convenience reference)
	Logger *slog.Logger

	// OTelProvider handles OpenTelemetry
	OTelProvider *intOtel.Provider

	// InfluxManager records one point per reconciliation pass
	InfluxManager *influx.Manager

	SessionStartTime time.Time = time.Now()

	LogFile *os.File
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "mapview: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	fs := pflag.NewFlagSet(ServiceName, pflag.ExitOnError)
	if err := config.BindFlags(fs); err != nil {
		return err
	}
	if err := fs.Parse(os.Args[1:]); err != nil {
		return err
	}
	configDir, _ := fs.GetString("config-dir")

	SlogManager = logging.NewSlogManager()
	SlogManager.Setup(logging.Config{Level: "info"})
	Logger = SlogManager.Logger()

	if err := config.Load(configDir); err != nil {
		Logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		Logger.Info("Loaded config", "dir", configDir)
	}
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	deviceID := config.GetString("device.id")
	if deviceID == "" {
		return errors.New("no device id configured (device.id or --device)")
	}
	surfaceCfg := config.GetSurfaceConfig()

	if err := setupLogging(deviceID, surfaceCfg.Type); err != nil {
		return err
	}
	defer shutdownTelemetry()

	Logger.Info("Starting up...", "version", CurrentVersion, "buildDate", BuildDate, "device", deviceID)

	setupInflux()

	surf, err := createSurface(surfaceCfg, deviceID)
	if err != nil {
		return err
	}
	if err := surf.Init(); err != nil {
		return fmt.Errorf("init %s surface: %w", surfaceCfg.Type, err)
	}
	defer func() {
		if err := surf.Close(); err != nil {
			Logger.Warn("Failed to close surface", "error", err)
		}
	}()
	Logger.Info("Surface initialized", "type", surfaceCfg.Type)

	sub, closeSub, err := createSubscriber(config.GetSubscriptionConfig())
	if err != nil {
		return err
	}
	defer closeSub()

	rec, err := reconcile.New(surf, reconcile.WithLogger(Logger))
	if err != nil {
		return fmt.Errorf("create reconciler: %w", err)
	}

	eventDispatcher, err := dispatcher.New(logging.NewDispatcherLogger(Logger))
	if err != nil {
		return fmt.Errorf("create dispatcher: %w", err)
	}
	defer eventDispatcher.Close()

	streamCfg := config.GetStreamConfig()
	viewportCfg := config.GetViewportConfig()
	opts := []session.Option{session.WithLogger(Logger)}
	if InfluxManager != nil {
		opts = append(opts, session.WithPointWriter(InfluxManager))
	}
	sess := session.New(session.Config{
		DeviceID:    deviceID,
		SurfaceType: surfaceCfg.Type,
		BufferSize:  streamCfg.BufferSize,
		Blocking:    streamCfg.Blocking,
		DropStale:   streamCfg.DropStale,
		Follow:      viewportCfg.Follow,
		Viewport:    viewportOptions(viewportCfg),
	}, sub, eventDispatcher, rec, surf, opts...)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if httpCfg := config.GetHTTPConfig(); httpCfg.Enabled {
		srv := httpapi.NewServer(httpCfg.Address, httpapi.NewHandler(surf, sess, Logger), Logger)
		srv.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				Logger.Warn("Failed to stop HTTP server", "error", err)
			}
		}()
	}

	if config.GetBool("logToFile") {
		monitorService := monitor.NewService(monitor.Dependencies{
			Status:     sess.Status,
			Logger:     Logger,
			StatusPath: filepath.Join(config.GetString("logsDir"), "status.json"),
		})
		if err := monitorService.Start(); err != nil {
			Logger.Warn("Failed to start status monitor", "error", err)
		}
		defer monitorService.Stop()
	}

	if err := sess.Run(ctx); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	Logger.Info("Shutting down")
	return nil
}

// setupLogging opens the log file, starts OTel and Graylog when enabled
// and replaces the bootstrap logger.
func setupLogging(deviceID, surfaceType string) error {
	var file io.Writer
	if config.GetBool("logToFile") {
		logsDir := config.GetString("logsDir")
		if err := os.MkdirAll(logsDir, 0755); err != nil {
			return fmt.Errorf("create logs dir: %w", err)
		}
		path := logging.LogFilePath(logsDir, ServiceName, SessionStartTime)
		f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		LogFile = f
		file = f
	}

	// Initialize OTel provider if enabled (after log file is created)
	var otelLogProvider *sdklog.LoggerProvider
	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled {
		w := file
		if w == nil {
			w = os.Stdout
		}
		p, err := intOtel.New(intOtel.ConfigFrom(otelCfg, w, deviceID))
		if err != nil {
			Logger.Error("Failed to initialize OTel provider", "error", err)
		} else {
			OTelProvider = p
			otelLogProvider = p.LoggerProvider()
		}
	}

	var graylog io.Writer
	if config.GetBool("graylog.enabled") {
		gw, err := logging.NewGraylogWriter(config.GetString("graylog.address"), ServiceName)
		if err != nil {
			Logger.Warn("Graylog unavailable", "error", err)
		} else {
			graylog = gw
		}
	}

	SlogManager.Setup(logging.Config{
		File:     file,
		Level:    config.GetString("logLevel"),
		Provider: otelLogProvider,
		Graylog:  graylog,
		Context: func() []slog.Attr {
			return []slog.Attr{
				slog.String("device", deviceID),
				slog.String("surface", surfaceType),
			}
		},
	})
	Logger = SlogManager.Logger()
	slog.SetDefault(Logger)
	return nil
}

func setupInflux() {
	influxCfg := config.GetInfluxConfig()
	if !influxCfg.Enabled {
		return
	}

	out := io.Writer(os.Stdout)
	if LogFile != nil {
		out = LogFile
	}
	zl := zerolog.New(out).With().Timestamp().Str("component", "influx").Logger()
	backup := filepath.Join(config.GetString("logsDir"),
		fmt.Sprintf("influx_backup.%s.log.gz", SessionStartTime.Format("20060102_150405")))

	m := influx.NewManager(influxCfg, zl, backup)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.Connect(ctx); err != nil {
		Logger.Warn("InfluxDB telemetry disabled", "error", err)
		return
	}
	InfluxManager = m
}

func shutdownTelemetry() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if InfluxManager != nil {
		if err := InfluxManager.Close(); err != nil {
			Logger.Warn("Failed to close InfluxDB", "error", err)
		}
	}
	if err := SlogManager.Flush(ctx); err != nil {
		Logger.Warn("Failed to flush logs", "error", err)
	}
	if OTelProvider != nil {
		if err := OTelProvider.Shutdown(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "otel shutdown: %v\n", err)
		}
	}
	if LogFile != nil {
		_ = LogFile.Close()
	}
}
