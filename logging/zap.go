// Package logging adapts zap to the bridge Logger interface.
package logging

import (
	"fmt"

	bridge "github.com/goliatone/go-auth-bridge"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLogger implements bridge.Logger on a sugared zap logger.
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

var _ bridge.Logger = (*ZapLogger)(nil)

// Wrap adapts an existing sugared logger.
func Wrap(sugar *zap.SugaredLogger) *ZapLogger {
	return &ZapLogger{sugar: sugar}
}

// New builds a zap logger from the bridge log configuration. Development
// mode logs human readable lines, otherwise JSON.
func New(cfg bridge.LogConfig) (*ZapLogger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zcfg.Build()
	if err != nil {
		return nil, err
	}
	return Wrap(logger.Sugar().Named("bridge")), nil
}

// Named returns a child logger, e.g. for one component.
func (l *ZapLogger) Named(name string) *ZapLogger {
	return &ZapLogger{sugar: l.sugar.Named(name)}
}

func (l *ZapLogger) Debug(format string, args ...any) {
	l.sugar.Debugf(format, args...)
}

func (l *ZapLogger) Info(format string, args ...any) {
	l.sugar.Infof(format, args...)
}

func (l *ZapLogger) Warn(format string, args ...any) {
	l.sugar.Warnf(format, args...)
}

func (l *ZapLogger) Error(format string, args ...any) {
	l.sugar.Errorf(format, args...)
}

// Sync flushes buffered entries.
func (l *ZapLogger) Sync() error {
	return l.sugar.Sync()
}
