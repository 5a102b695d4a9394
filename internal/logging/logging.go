// Package logging constructs the process-wide structured logger. The
// logger is built once at startup and passed explicitly; nothing in the
// repository logs through a package-level singleton.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a production JSON logger, or a human-readable development
// logger when dev is set. enabled=false yields a no-op logger so tests
// and quiet deployments stay silent.
func New(enabled, dev bool) *zap.Logger {
	if !enabled {
		return zap.NewNop()
	}
	if dev {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		log, err := cfg.Build()
		if err != nil {
			return zap.NewNop()
		}
		return log
	}
	log, err := zap.NewProduction()
	if err != nil {
		return zap.NewNop()
	}
	return log
}
