package logger

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu  sync.RWMutex
	log *zap.Logger
)

type contextKey string

const (
	correlationIDContextKey contextKey = "correlation_id"
)

// Init builds the global logger. Development gets a colored console encoder,
// every other environment JSON with ISO8601 timestamps.
func Init(environment, level string) error {
	var config zap.Config

	if environment == "development" || environment == "test" {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
		config.EncoderConfig.TimeKey = "timestamp"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	if level != "" {
		parsed, err := zapcore.ParseLevel(level)
		if err != nil {
			return err
		}
		config.Level = zap.NewAtomicLevelAt(parsed)
	}

	built, err := config.Build()
	if err != nil {
		return err
	}

	Set(built)
	return nil
}

// Set replaces the global logger.
func Set(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	log = l
}

// Get returns the global logger instance
func Get() *zap.Logger {
	mu.RLock()
	l := log
	mu.RUnlock()
	if l != nil {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if log == nil {
		log, _ = zap.NewDevelopment()
	}
	return log
}

// WithContext returns a logger enriched with the request's correlation ID.
func WithContext(ctx context.Context) *zap.Logger {
	if correlationID := CorrelationIDFromContext(ctx); correlationID != "" {
		return Get().With(zap.String(string(correlationIDContextKey), correlationID))
	}
	return Get()
}

// ContextWithCorrelationID returns a context containing the provided correlation ID.
func ContextWithCorrelationID(ctx context.Context, correlationID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, correlationIDContextKey, correlationID)
}

// CorrelationIDFromContext extracts a correlation ID from the provided context if available.
func CorrelationIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	correlationID, _ := ctx.Value(correlationIDContextKey).(string)
	return correlationID
}

func Info(msg string, fields ...zap.Field) {
	Get().Info(msg, fields...)
}

func InfoContext(ctx context.Context, msg string, fields ...zap.Field) {
	WithContext(ctx).Info(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	Get().Error(msg, fields...)
}

func ErrorContext(ctx context.Context, msg string, fields ...zap.Field) {
	WithContext(ctx).Error(msg, fields...)
}

func Debug(msg string, fields ...zap.Field) {
	Get().Debug(msg, fields...)
}

func DebugContext(ctx context.Context, msg string, fields ...zap.Field) {
	WithContext(ctx).Debug(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	Get().Warn(msg, fields...)
}

func WarnContext(ctx context.Context, msg string, fields ...zap.Field) {
	WithContext(ctx).Warn(msg, fields...)
}

// Fatal logs a fatal message and exits
func Fatal(msg string, fields ...zap.Field) {
	Get().Fatal(msg, fields...)
}

// Sync flushes any buffered log entries
func Sync() error {
	mu.RLock()
	defer mu.RUnlock()
	if log != nil {
		return log.Sync()
	}
	return nil
}
