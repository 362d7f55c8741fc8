// Package utils carries the cross-cutting concerns of the agent runtime:
// structured logging, audit logging and timing helpers.
package utils

import (
	"context"
	"os"
	"strconv"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/vanetlab/crossing/pkg/consensus/types"
)

// Context keys
type contextKey string

const (
	ContextKeyAgentID   contextKey = "agent_id"
	ContextKeyComponent contextKey = "component"
	ContextKeyRoundKey  contextKey = "round_key"
)

// Logger configuration constants
const (
	DefaultLogLevel    = "info"
	DefaultLogFileSize = 100 // MB
	DefaultMaxBackups  = 10
	DefaultMaxAge      = 30 // days
)

// LogConfig holds logger configuration
type LogConfig struct {
	Level       string
	Development bool

	// Output settings
	OutputPath      string
	ErrorOutputPath string

	// Rotation settings
	EnableRotation bool
	MaxSize        int // megabytes
	MaxBackups     int
	MaxAge         int // days
	Compress       bool

	// Static fields
	AgentID   string
	Component string
}

// DefaultLogConfig returns production-ready defaults, env-overridable.
func DefaultLogConfig() *LogConfig {
	return &LogConfig{
		Level:           getEnvOrDefault("LOG_LEVEL", DefaultLogLevel),
		Development:     getEnvOrDefault("ENVIRONMENT", "production") == "development",
		OutputPath:      getEnvOrDefault("LOG_FILE_PATH", ""),
		ErrorOutputPath: "stderr",
		EnableRotation:  getEnvOrDefault("LOG_FILE_PATH", "") != "",
		MaxSize:         getEnvAsIntOrDefault("LOG_MAX_SIZE", DefaultLogFileSize),
		MaxBackups:      getEnvAsIntOrDefault("LOG_MAX_BACKUPS", DefaultMaxBackups),
		MaxAge:          getEnvAsIntOrDefault("LOG_MAX_AGE", DefaultMaxAge),
		Compress:        getEnvAsBoolOrDefault("LOG_COMPRESS", true),
		Component:       getEnvOrDefault("SERVICE_NAME", "crossing"),
	}
}

// Logger provides structured logging around a zap core. It satisfies
// types.Logger through loosely-typed key/value pairs so the consensus
// packages stay decoupled from zap.
type Logger struct {
	base        *zap.SugaredLogger
	config      *LogConfig
	atomicLevel zap.AtomicLevel
}

// NewLogger creates a new logger instance
func NewLogger(config *LogConfig) (*Logger, error) {
	if config == nil {
		config = DefaultLogConfig()
	}

	level, err := zapcore.ParseLevel(config.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	atomicLevel := zap.NewAtomicLevelAt(level)

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	core := buildCore(config, encoderConfig, atomicLevel)

	zapLogger := zap.New(core,
		zap.AddCaller(),
		zap.AddCallerSkip(1),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)

	if config.AgentID != "" {
		zapLogger = zapLogger.With(zap.String("agent_id", config.AgentID))
	}
	if config.Component != "" {
		zapLogger = zapLogger.With(zap.String("component", config.Component))
	}

	return &Logger{
		base:        zapLogger.Sugar(),
		config:      config,
		atomicLevel: atomicLevel,
	}, nil
}

func buildCore(config *LogConfig, encoderConfig zapcore.EncoderConfig, level zap.AtomicLevel) zapcore.Core {
	var encoder zapcore.Encoder
	if config.Development {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	if config.EnableRotation && config.OutputPath != "" {
		writer := &lumberjack.Logger{
			Filename:   config.OutputPath,
			MaxSize:    config.MaxSize,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAge,
			Compress:   config.Compress,
		}
		return zapcore.NewCore(encoder, zapcore.AddSync(writer), level)
	}

	return zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level)
}

// With returns a logger with additional bound fields.
func (l *Logger) With(fields ...interface{}) types.Logger {
	return &Logger{
		base:        l.base.With(fields...),
		config:      l.config,
		atomicLevel: l.atomicLevel,
	}
}

func (l *Logger) DebugContext(ctx context.Context, msg string, fields ...interface{}) {
	l.withContext(ctx).Debugw(msg, fields...)
}

func (l *Logger) InfoContext(ctx context.Context, msg string, fields ...interface{}) {
	l.withContext(ctx).Infow(msg, fields...)
}

func (l *Logger) WarnContext(ctx context.Context, msg string, fields ...interface{}) {
	l.withContext(ctx).Warnw(msg, fields...)
}

func (l *Logger) ErrorContext(ctx context.Context, msg string, fields ...interface{}) {
	l.withContext(ctx).Errorw(msg, fields...)
}

func (l *Logger) withContext(ctx context.Context) *zap.SugaredLogger {
	if ctx == nil {
		return l.base
	}
	out := l.base
	if val := ctx.Value(ContextKeyAgentID); val != nil {
		out = out.With("agent_id", val)
	}
	if val := ctx.Value(ContextKeyComponent); val != nil {
		out = out.With("component", val)
	}
	if val := ctx.Value(ContextKeyRoundKey); val != nil {
		out = out.With("round_key", val)
	}
	return out
}

// SetLevel changes the log level at runtime.
func (l *Logger) SetLevel(level string) error {
	newLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		return err
	}
	l.atomicLevel.SetLevel(newLevel)
	return nil
}

// Shutdown flushes buffered log entries.
func (l *Logger) Shutdown() error {
	return l.base.Sync()
}

// Context helper functions

func ContextWithAgentID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ContextKeyAgentID, id)
}

func ContextWithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, ContextKeyComponent, component)
}

// CreateTestLogger returns a development-mode logger for tests.
func CreateTestLogger() *Logger {
	logger, _ := NewLogger(&LogConfig{
		Level:       "debug",
		Development: true,
	})
	return logger
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
