// Package logging wraps go.uber.org/zap behind the same printf-style
// Info/Warn/Error/Debug call shape the rest of this codebase was written
// against, so structured logging drops in without touching call sites.
package logging

import (
	"strings"

	"go.uber.org/zap"
)

// Logger is a thin façade over a *zap.SugaredLogger.
type Logger struct {
	sugar *zap.SugaredLogger
}

// New builds a Logger from a level ("debug", "info", "warn", "error") and a
// format ("console" or "json").
func New(level, format string) (*Logger, error) {
	var cfg zap.Config
	if strings.EqualFold(format, "json") {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = parseLevel(level)

	zapLogger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{sugar: zapLogger.Sugar()}, nil
}

func parseLevel(level string) zap.AtomicLevel {
	var l zap.AtomicLevel
	switch strings.ToLower(level) {
	case "debug":
		l = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn", "warning":
		l = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		l = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		l = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return l
}

func (l *Logger) Sync() { _ = l.sugar.Sync() }

func (l *Logger) Debug(format string, args ...any) { l.sugar.Debugf(format, args...) }
func (l *Logger) Info(format string, args ...any)  { l.sugar.Infof(format, args...) }
func (l *Logger) Warn(format string, args ...any)  { l.sugar.Warnf(format, args...) }
func (l *Logger) Error(format string, args ...any) { l.sugar.Errorf(format, args...) }

// With returns a Logger carrying the given structured fields on every
// subsequent call, for call sites that want to attach a host or job id
// without building a format string.
func (l *Logger) With(keysAndValues ...any) *Logger {
	return &Logger{sugar: l.sugar.With(keysAndValues...)}
}
