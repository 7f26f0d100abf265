package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var logger *zap.Logger

// LogLevelEnvVar is the environment variable that controls logging verbosity.
// When unset or empty, logging is silent.
// Valid values: "debug", "info", "warn", "error"
const LogLevelEnvVar = "WIFIPORTAL_LOG_LEVEL"

// Options controls logger construction.
type Options struct {
	Level string // debug, info, warn, error; empty falls back to WIFIPORTAL_LOG_LEVEL

	File       string // optional log file, rotated by size
	MaxSizeMB  int    // rotation threshold (default 10)
	MaxBackups int    // rotated files kept (default 3)

	// DisableConsole drops the stdout sink. Only honoured when File is set.
	DisableConsole bool
}

// Initialize creates the global logger.
// If no level is configured anywhere, logging is disabled (silent mode).
func Initialize(opts Options) error {
	level := opts.Level
	if level == "" {
		level = os.Getenv(LogLevelEnvVar)
	}

	if level == "" {
		logger = zap.NewNop()
		return nil
	}

	zapLevel, err := ParseLevel(level)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	var cores []zapcore.Core

	if !opts.DisableConsole || opts.File == "" {
		consoleCfg := zap.NewDevelopmentEncoderConfig()
		consoleCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		consoleCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		consoleCfg.EncodeCaller = zapcore.ShortCallerEncoder
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(consoleCfg),
			zapcore.Lock(os.Stdout),
			zapLevel,
		))
	}

	if opts.File != "" {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.AddSync(rotatingFile(opts)),
			zapLevel,
		))
	}

	logger = zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1))
	return nil
}

// InitializeFromEnv initializes the logger from WIFIPORTAL_LOG_LEVEL only.
func InitializeFromEnv() error {
	return Initialize(Options{})
}

// ParseLevel maps a level name to a zap level. Unknown names are an error.
func ParseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
}

func rotatingFile(opts Options) io.Writer {
	maxSize := opts.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 10
	}
	backups := opts.MaxBackups
	if backups <= 0 {
		backups = 3
	}
	return &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    maxSize,
		MaxBackups: backups,
		Compress:   true,
	}
}

// SetLogger replaces the global logger. Tests use this with zaptest/observer.
func SetLogger(l *zap.Logger) {
	logger = l
}

// GetLogger returns the global logger instance
func GetLogger() *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return logger
}

// Info logs an info message
func Info(msg string, fields ...zap.Field) {
	GetLogger().Info(msg, fields...)
}

// Debug logs a debug message
func Debug(msg string, fields ...zap.Field) {
	GetLogger().Debug(msg, fields...)
}

// Warn logs a warning message
func Warn(msg string, fields ...zap.Field) {
	GetLogger().Warn(msg, fields...)
}

// Error logs an error message
func Error(msg string, fields ...zap.Field) {
	GetLogger().Error(msg, fields...)
}

// Fatal logs a fatal message and exits
func Fatal(msg string, fields ...zap.Field) {
	GetLogger().Fatal(msg, fields...)
}

// LogModeTransition logs a connection-mode change
func LogModeTransition(from, to, reason string) {
	Info("Connection mode changed",
		zap.String("from", from),
		zap.String("to", to),
		zap.String("reason", reason),
	)
}

// LogHTTPRequest logs a portal HTTP request
func LogHTTPRequest(remoteAddr, method, host, path string) {
	Debug("HTTP request received",
		zap.String("remote_addr", remoteAddr),
		zap.String("method", method),
		zap.String("host", host),
		zap.String("path", path),
	)
}

// LogRadioEvent logs an event delivered by the radio driver
func LogRadioEvent(event string, fields ...zap.Field) {
	Debug("Radio event", append([]zap.Field{zap.String("event", event)}, fields...)...)
}

// LogFault logs a recoverable fault. Faults never stop the supervisor.
func LogFault(kind, message string, err error) {
	fields := []zap.Field{
		zap.String("kind", kind),
		zap.String("detail", message),
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	Warn("Fault recorded", fields...)
}

// Sync flushes any buffered log entries
func Sync() {
	if logger != nil {
		_ = logger.Sync()
	}
}
