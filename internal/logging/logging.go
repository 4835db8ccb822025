// Package logging provides the structured logger shared by every lyra
// component. It trims the teacher's Logger interface (zap fields plus a
// slog level) down to the handful of methods the rest of this module
// actually calls.
package logging

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the structured logging surface used across lyra packages.
type Logger interface {
	Debug(msg string, fields ...zap.Field)
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
	With(fields ...zap.Field) Logger
	Sync() error
}

type zapLogger struct {
	z *zap.Logger
}

func (l *zapLogger) Debug(msg string, fields ...zap.Field) { l.z.Debug(msg, fields...) }
func (l *zapLogger) Info(msg string, fields ...zap.Field)  { l.z.Info(msg, fields...) }
func (l *zapLogger) Warn(msg string, fields ...zap.Field)  { l.z.Warn(msg, fields...) }
func (l *zapLogger) Error(msg string, fields ...zap.Field) { l.z.Error(msg, fields...) }
func (l *zapLogger) Sync() error                           { return l.z.Sync() }

func (l *zapLogger) With(fields ...zap.Field) Logger {
	return &zapLogger{z: l.z.With(fields...)}
}

// New builds the default production logger: JSON to stderr, info level,
// or debug level when debug is set.
func New(debug bool) Logger {
	return wrap(os.Stderr, debug)
}

// NewFile builds a logger that writes JSON lines to a rotating file sink
// via lumberjack, in addition to stderr.
func NewFile(path string, debug bool) Logger {
	rotator := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    50, // megabytes
		MaxBackups: 5,
		MaxAge:     28, // days
		Compress:   true,
	}
	return wrap(io.MultiWriter(os.Stderr, rotator), debug)
}

func wrap(w io.Writer, debug bool) Logger {
	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(w), level)
	return &zapLogger{z: zap.New(core)}
}

// NoOp returns a logger that discards everything, for tests that don't
// want log noise.
func NoOp() Logger {
	return &zapLogger{z: zap.NewNop()}
}
