package logger

import (
	"context"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// Log is the global logger instance. It is a no-op logger until Init runs.
	Log = zap.NewNop()
	// Sugar is the sugared logger for easier use
	Sugar = Log.Sugar()
)

// Config holds logger configuration
type Config struct {
	Level    string // debug, info, warn, error
	Format   string // json, text
	Output   string // stdout, file
	FilePath string

	// Rotation settings, only used when Output is "file"
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Init initializes the global logger with configuration
func Init(cfg *Config) error {
	level := parseLevel(cfg.Level)

	var encoder zapcore.Encoder
	if cfg.Format == "json" {
		encCfg := zap.NewProductionEncoderConfig()
		encCfg.TimeKey = "timestamp"
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg := zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}

	var sink zapcore.WriteSyncer
	if cfg.Output == "file" && cfg.FilePath != "" {
		sink = zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    orDefault(cfg.MaxSizeMB, 50),
			MaxBackups: orDefault(cfg.MaxBackups, 5),
			MaxAge:     orDefault(cfg.MaxAgeDays, 14),
			Compress:   true,
		})
	} else {
		sink = zapcore.Lock(os.Stdout)
	}

	core := zapcore.NewCore(encoder, sink, zap.NewAtomicLevelAt(level))
	Log = zap.New(core,
		zap.AddCaller(),
		zap.AddCallerSkip(1),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	Sugar = Log.Sugar()

	return nil
}

// InitDefault initializes logger with default settings
func InitDefault() {
	cfg := &Config{
		Level:    getEnv("LOG_LEVEL", "info"),
		Format:   getEnv("LOG_FORMAT", "text"),
		Output:   getEnv("LOG_OUTPUT", "stdout"),
		FilePath: getEnv("LOG_FILE_PATH", "consultline.log"),
	}

	if err := Init(cfg); err != nil {
		// Fallback to basic logger
		Log, _ = zap.NewProduction()
		Sugar = Log.Sugar()
	}
}

func parseLevel(s string) zapcore.Level {
	switch s {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Context keys
type contextKey string

const (
	requestIDKey contextKey = "request_id"
	callIDKey    contextKey = "call_id"
)

// WithRequestID adds request ID to context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// WithCallID tags the context with the local call attempt ID
func WithCallID(ctx context.Context, callID string) context.Context {
	return context.WithValue(ctx, callIDKey, callID)
}

// FromContext creates a logger with context fields
func FromContext(ctx context.Context) *zap.Logger {
	l := Log
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		l = l.With(zap.String("request_id", requestID))
	}
	if callID, ok := ctx.Value(callIDKey).(string); ok {
		l = l.With(zap.String("call_id", callID))
	}
	return l
}

// Convenience functions

// Debug logs a debug message
func Debug(msg string, fields ...zap.Field) {
	Log.Debug(msg, fields...)
}

// Info logs an info message
func Info(msg string, fields ...zap.Field) {
	Log.Info(msg, fields...)
}

// Warn logs a warning message
func Warn(msg string, fields ...zap.Field) {
	Log.Warn(msg, fields...)
}

// Error logs an error message
func Error(msg string, fields ...zap.Field) {
	Log.Error(msg, fields...)
}

// Fatal logs a fatal message and exits
func Fatal(msg string, fields ...zap.Field) {
	Log.Fatal(msg, fields...)
}

// With creates a child logger with additional fields
func With(fields ...zap.Field) *zap.Logger {
	return Log.With(fields...)
}

// Sync flushes any buffered log entries
func Sync() error {
	return Log.Sync()
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
