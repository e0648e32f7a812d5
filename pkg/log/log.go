package log

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logLevel = zap.NewAtomicLevelAt(zapcore.InfoLevel)

func init() {
	logger := zap.New(zapcore.NewCore(
		zapcore.NewJSONEncoder(config()),
		zapcore.Lock(os.Stdout),
		logLevel,
	))

	zap.ReplaceGlobals(logger)
}

func config() zapcore.EncoderConfig {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	return encoderCfg
}

// Debug logs a debug message with optional key/value pairs.
func Debug(msg string, keysAndValues ...interface{}) {
	zap.S().Debugw(msg, keysAndValues...)
}

// Info logs an info message with optional key/value pairs.
func Info(msg string, keysAndValues ...interface{}) {
	zap.S().Infow(msg, keysAndValues...)
}

// Warn logs a warning message with optional key/value pairs.
func Warn(msg string, keysAndValues ...interface{}) {
	zap.S().Warnw(msg, keysAndValues...)
}

// Error logs an error message with optional key/value pairs.
func Error(msg string, keysAndValues ...interface{}) {
	zap.S().Errorw(msg, keysAndValues...)
}

// Panic logs a message and then panics.
func Panic(msg string, keysAndValues ...interface{}) {
	zap.S().Panicw(msg, keysAndValues...)
}

// Fatal logs a message and then calls os.Exit(1).
func Fatal(msg string, keysAndValues ...interface{}) {
	zap.S().Fatalw(msg, keysAndValues...)
}

// With returns a sugared logger that carries the supplied
// key/value pairs on every entry. It is resolved against the
// global logger at call time, so ReplaceGlobals in tests applies.
func With(keysAndValues ...interface{}) *zap.SugaredLogger {
	return zap.S().With(keysAndValues...)
}

// SetLevel sets the log level by name, which can be any of:
// ["debug", "info", "warn", "error", "dpanic", "panic", "fatal"],
// case-insensitive.
func SetLevel(name string) error {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(name)))); err != nil {
		return fmt.Errorf("invalid log level string: %v", name)
	}

	logLevel.SetLevel(lvl)
	return nil
}

// GetLevel returns the current log level.
func GetLevel() zapcore.Level {
	return logLevel.Level()
}

// Logger is the scoped logging surface handed to batches and jobs.
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type scoped struct {
	s *zap.SugaredLogger
}

// Scoped returns a Logger that writes through zap with the supplied
// key/value pairs attached to every entry.
func Scoped(keysAndValues ...interface{}) Logger {
	return &scoped{s: With(keysAndValues...)}
}

func (l *scoped) Info(msg string, keysAndValues ...interface{}) {
	l.s.Infow(msg, keysAndValues...)
}

func (l *scoped) Error(msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, keysAndValues...)
}
