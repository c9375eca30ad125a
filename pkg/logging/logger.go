// Package logging configures the storefront's zerolog loggers.
//
// Every service component logs through a component logger from NewLogger.
// Request handling code logs through FromContext so entries carry the
// request_id set by the HTTP middleware. Warnings are reserved for degraded
// but served responses (defaulted price or stock, persisted cache write
// failures, an open upstream cooldown); errors are for failed requests.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Field names shared by every component.
const (
	FieldService   = "service"
	FieldVersion   = "version"
	FieldComponent = "component"
	FieldRequestID = "request_id"
	FieldNamespace = "namespace"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output
	Level LogLevel

	// Pretty enables console output instead of JSON
	Pretty bool

	// Output defaults to os.Stderr
	Output io.Writer

	// Service and Version are attached to every entry when set
	Service string
	Version string
}

// DefaultConfig returns the configuration of the storefront service.
func DefaultConfig() Config {
	return Config{
		Level:   LevelInfo,
		Output:  os.Stderr,
		Service: "storefront",
	}
}

// Setup configures the global zerolog logger. Component loggers created
// afterwards inherit its output and fields.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	ctx := zerolog.New(output).With().Timestamp()
	if cfg.Service != "" {
		ctx = ctx.Str(FieldService, cfg.Service)
	}
	if cfg.Version != "" {
		ctx = ctx.Str(FieldVersion, cfg.Version)
	}
	logger := ctx.Logger()

	log.Logger = logger
	return logger
}

func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(string(level))) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger returns a logger for one service component, such as
// "aggregator" or "erp-client".
func NewLogger(component string) zerolog.Logger {
	return log.With().Str(FieldComponent, component).Logger()
}

// NewCacheLogger returns the cache component logger of one persisted
// namespace.
func NewCacheLogger(namespace string) zerolog.Logger {
	return log.With().
		Str(FieldComponent, "cache").
		Str(FieldNamespace, namespace).
		Logger()
}
