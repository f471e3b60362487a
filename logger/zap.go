package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type zapLogger struct {
	sugar *zap.SugaredLogger
	level LogLevel
}

var _ Logger = (*zapLogger)(nil)

func zapLevel(level LogLevel) zapcore.Level {
	switch level {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelInfo:
		return zapcore.InfoLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.FatalLevel
	}
}

// New returns a console logger at the given level, writing to stderr.
func New(level LogLevel) Logger {
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.Lock(os.Stderr),
		zapLevel(level),
	)
	return &zapLogger{sugar: zap.New(core).Sugar(), level: level}
}

// NewJSON returns a JSON logger at the given level, writing to stderr.
// Intended for non-interactive / production environments.
func NewJSON(level LogLevel) Logger {
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		zapcore.Lock(os.Stderr),
		zapLevel(level),
	)
	return &zapLogger{sugar: zap.New(core).Sugar(), level: level}
}

func (l *zapLogger) With(metadata map[string]interface{}) Logger {
	args := make([]interface{}, 0, len(metadata)*2)
	for k, v := range metadata {
		args = append(args, k, v)
	}
	return &zapLogger{sugar: l.sugar.With(args...), level: l.level}
}

func (l *zapLogger) Debug(msg string, args ...interface{}) {
	l.sugar.Debugw(msg, args...)
}

func (l *zapLogger) Info(msg string, args ...interface{}) {
	l.sugar.Infow(msg, args...)
}

func (l *zapLogger) Warn(msg string, args ...interface{}) {
	l.sugar.Warnw(msg, args...)
}

func (l *zapLogger) Error(msg string, args ...interface{}) {
	l.sugar.Errorw(msg, args...)
}

func (l *zapLogger) IsLevelEnabled(level LogLevel) bool {
	return level >= l.level && l.level != LevelNone
}
