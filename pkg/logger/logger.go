// Package logger provides structured logging with context support.
package logger

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	appctx "stallpos/internal/core/context"
)

// Logger wraps zap.SugaredLogger with context-aware logging.
type Logger struct {
	*zap.SugaredLogger
}

// Config holds logger configuration.
type Config struct {
	Level       string // debug, info, warn, error
	Development bool
}

// New builds a zap logger. An unknown level falls back to info.
func New(cfg Config) (*Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	config := zap.NewProductionConfig()
	if cfg.Development {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	config.Level = zap.NewAtomicLevelAt(level)

	zapLogger, err := config.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	return &Logger{zapLogger.Sugar()}, nil
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zap.NewNop().Sugar()}
}

var process atomic.Pointer[Logger]

// SetDefault routes the package-level Info, Warn and Error through l.
func SetDefault(l *Logger) {
	process.Store(l)
}

func fromContext(ctx context.Context) *Logger {
	l := process.Load()
	if l == nil {
		l = Nop()
	}
	return l.WithContext(ctx)
}

// WithContext adds trace and operator info from context.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	sugar := l.SugaredLogger

	if traceID := appctx.GetTraceID(ctx); traceID != "" {
		sugar = sugar.With("trace_id", traceID)
	}
	if trace := appctx.GetTrace(ctx); trace != nil {
		sugar = sugar.With("request_id", trace.RequestID)
		if trace.Origin != "" {
			sugar = sugar.With("origin", trace.Origin)
		}
	}
	if op := appctx.GetOperator(ctx); op != nil {
		sugar = sugar.With("operator_id", op.OperatorID)
		if op.StallID != "" {
			sugar = sugar.With("stall_id", op.StallID)
		}
	}

	return &Logger{sugar}
}

// WithComponent tags every entry with the component name.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{l.SugaredLogger.With("component", name)}
}

func Info(ctx context.Context, msg string, keysAndValues ...any) {
	fromContext(ctx).Infow(msg, keysAndValues...)
}

func Warn(ctx context.Context, msg string, keysAndValues ...any) {
	fromContext(ctx).Warnw(msg, keysAndValues...)
}

func Error(ctx context.Context, msg string, keysAndValues ...any) {
	fromContext(ctx).Errorw(msg, keysAndValues...)
}
