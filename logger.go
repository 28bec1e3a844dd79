package apicore

import (
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Logger receives structured debug output from the client. Key-value pairs
// follow the message as alternating keys and values.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// DebugConfig gates which request lifecycle events are logged.
type DebugConfig struct {
	Enabled      bool
	LogRequests  bool
	LogRetries   bool
	LogErrors    bool
	RequestIDGen func() string
}

// DefaultDebugConfig enables all event categories with UUID request IDs.
func DefaultDebugConfig() *DebugConfig {
	return &DebugConfig{
		Enabled:      false,
		LogRequests:  true,
		LogRetries:   true,
		LogErrors:    true,
		RequestIDGen: uuid.NewString,
	}
}

// NopLogger discards all output.
type NopLogger struct{}

func (NopLogger) Debug(string, ...any) {}
func (NopLogger) Info(string, ...any)  {}
func (NopLogger) Warn(string, ...any)  {}
func (NopLogger) Error(string, ...any) {}

// zeroLogger adapts a zerolog.Logger to the Logger interface.
type zeroLogger struct {
	log zerolog.Logger
}

// NewZerologLogger wraps an existing zerolog.Logger.
func NewZerologLogger(log zerolog.Logger) Logger {
	return &zeroLogger{log: log}
}

// NewSimpleLogger returns a human-readable console logger on stderr.
func NewSimpleLogger() Logger {
	writer := zerolog.ConsoleWriter{Out: os.Stderr}
	return &zeroLogger{log: zerolog.New(writer).With().Timestamp().Logger()}
}

func (l *zeroLogger) Debug(msg string, keysAndValues ...any) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l *zeroLogger) Info(msg string, keysAndValues ...any) {
	l.log.Info().Fields(keysAndValues).Msg(msg)
}

func (l *zeroLogger) Warn(msg string, keysAndValues ...any) {
	l.log.Warn().Fields(keysAndValues).Msg(msg)
}

func (l *zeroLogger) Error(msg string, keysAndValues ...any) {
	l.log.Error().Fields(keysAndValues).Msg(msg)
}
