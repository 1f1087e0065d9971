package sipbridge

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// BridgeLogger wraps zerolog for structured logging
type BridgeLogger struct {
	logger zerolog.Logger
}

// LogLevel represents the logging level
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

// LogConfig represents the configuration for logging
type LogConfig struct {
	Level  LogLevel
	Pretty bool
	Output io.Writer
	Fields map[string]interface{}
}

// DefaultLogConfig returns a default logging configuration
func DefaultLogConfig() *LogConfig {
	return &LogConfig{
		Level:  InfoLevel,
		Pretty: true,
		Output: os.Stdout,
		Fields: make(map[string]interface{}),
	}
}

// NewBridgeLogger creates a new structured logger
func NewBridgeLogger(config *LogConfig) *BridgeLogger {
	if config == nil {
		config = DefaultLogConfig()
	}

	zerolog.TimeFieldFormat = time.RFC3339

	var logger zerolog.Logger
	if config.Pretty {
		logger = log.Output(zerolog.ConsoleWriter{
			Out:        config.Output,
			TimeFormat: time.Kitchen,
		})
	} else {
		logger = zerolog.New(config.Output)
	}

	switch config.Level {
	case DebugLevel:
		logger = logger.Level(zerolog.DebugLevel)
	case InfoLevel:
		logger = logger.Level(zerolog.InfoLevel)
	case WarnLevel:
		logger = logger.Level(zerolog.WarnLevel)
	case ErrorLevel:
		logger = logger.Level(zerolog.ErrorLevel)
	case FatalLevel:
		logger = logger.Level(zerolog.FatalLevel)
	}

	logger = logger.With().Timestamp().Logger()

	if len(config.Fields) > 0 {
		logger = logger.With().Fields(config.Fields).Logger()
	}

	return &BridgeLogger{logger: logger}
}

// WithComponent adds a component field to the logger
func (l *BridgeLogger) WithComponent(component string) *BridgeLogger {
	return &BridgeLogger{
		logger: l.logger.With().Str("component", component).Logger(),
	}
}

// WithCall adds a call id field to the logger
func (l *BridgeLogger) WithCall(callID string) *BridgeLogger {
	return &BridgeLogger{
		logger: l.logger.With().Str("call_id", callID).Logger(),
	}
}

// WithField adds a field to the logger
func (l *BridgeLogger) WithField(key string, value interface{}) *BridgeLogger {
	return &BridgeLogger{
		logger: l.logger.With().Interface(key, value).Logger(),
	}
}

// WithError adds an error field to the logger
func (l *BridgeLogger) WithError(err error) *BridgeLogger {
	return &BridgeLogger{
		logger: l.logger.With().Err(err).Logger(),
	}
}

func (l *BridgeLogger) Debug(msg string) { l.logger.Debug().Msg(msg) }

func (l *BridgeLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug().Msgf(format, args...)
}

func (l *BridgeLogger) Info(msg string) { l.logger.Info().Msg(msg) }

func (l *BridgeLogger) Infof(format string, args ...interface{}) {
	l.logger.Info().Msgf(format, args...)
}

func (l *BridgeLogger) Warn(msg string) { l.logger.Warn().Msg(msg) }

func (l *BridgeLogger) Warnf(format string, args ...interface{}) {
	l.logger.Warn().Msgf(format, args...)
}

func (l *BridgeLogger) Error(msg string) { l.logger.Error().Msg(msg) }

func (l *BridgeLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error().Msgf(format, args...)
}

func (l *BridgeLogger) Fatal(msg string) { l.logger.Fatal().Msg(msg) }

func (l *BridgeLogger) Fatalf(format string, args ...interface{}) {
	l.logger.Fatal().Msgf(format, args...)
}

// LogAudioEvent logs audio-related events with structured fields
func (l *BridgeLogger) LogAudioEvent(event string, fields map[string]interface{}) {
	l.logger.Info().
		Str("event_type", "audio").
		Str("event", event).
		Fields(fields).
		Msg("Audio event")
}

// LogConnectionEvent logs realtime connection events
func (l *BridgeLogger) LogConnectionEvent(event string, state ConnectionState, fields map[string]interface{}) {
	l.logger.Info().
		Str("event_type", "connection").
		Str("event", event).
		Str("state", string(state)).
		Fields(fields).
		Msg("Connection event")
}

// LogBridgeError logs a BridgeError with structured fields
func (l *BridgeLogger) LogBridgeError(err *BridgeError) {
	l.logger.Error().
		Str("error_code", err.Code).
		Time("at", err.Timestamp).
		Fields(err.Details).
		Msg(err.Message)
}

// Global logger instance
var globalLogger *BridgeLogger

func init() {
	globalLogger = NewBridgeLogger(DefaultLogConfig())
}

// GetGlobalLogger returns the global logger instance
func GetGlobalLogger() *BridgeLogger {
	return globalLogger
}

// SetGlobalLogger sets the global logger instance
func SetGlobalLogger(logger *BridgeLogger) {
	globalLogger = logger
}
