package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

var osStdout io.Writer = os.Stdout

// Config selects the outputs of the logging system.
type Config struct {
	// File receives text logs. When nil, logs go to stdout instead.
	File io.Writer
	// Level is one of debug, info, warn, error.
	Level string
	// Provider enables the OTel log bridge when non-nil.
	Provider *sdklog.LoggerProvider
	// Graylog receives JSON records, usually a GELF writer.
	Graylog io.Writer
	// Context adds dynamic attributes to every record.
	Context ContextProvider
}

// SlogManager manages slog-based logging with optional OTel integration.
type SlogManager struct {
	logger *slog.Logger

	// OTel provider for flushing
	logProvider *sdklog.LoggerProvider
}

// NewSlogManager creates a new slog-based logging manager.
func NewSlogManager() *SlogManager {
	return &SlogManager{}
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup initializes the logging system. It replaces any previous setup.
func (m *SlogManager) Setup(cfg Config) {
	lvl := parseLevel(cfg.Level)
	m.logProvider = cfg.Provider

	// Common handler options with RFC3339 time formatting
	handlerOpts := &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.UTC().Format(time.RFC3339))
				}
			}
			return a
		},
	}

	var handlers []slog.Handler

	if cfg.File != nil {
		handlers = append(handlers, slog.NewTextHandler(cfg.File, handlerOpts))
	} else {
		handlers = append(handlers, slog.NewTextHandler(osStdout, handlerOpts))
	}

	if cfg.Graylog != nil {
		handlers = append(handlers, slog.NewJSONHandler(cfg.Graylog, handlerOpts))
	}

	if cfg.Provider != nil {
		handlers = append(handlers, otelslog.NewHandler("mapview", otelslog.WithLoggerProvider(cfg.Provider)))
	}

	var handler slog.Handler = NewMultiHandler(handlers...)
	if cfg.Context != nil {
		handler = NewContextHandler(handler, cfg.Context)
	}

	m.logger = slog.New(handler)
	m.logger.Info("Logging initialized", "level", cfg.Level)
}

// Logger returns the configured slog.Logger.
func (m *SlogManager) Logger() *slog.Logger {
	if m.logger == nil {
		// Return a default logger if Setup hasn't been called
		return slog.Default()
	}
	return m.logger
}

// Flush forces a flush of OTel logs if available.
func (m *SlogManager) Flush(ctx context.Context) error {
	if m.logProvider != nil {
		return m.logProvider.ForceFlush(ctx)
	}
	return nil
}
